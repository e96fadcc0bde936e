package session

import "strings"

// DefaultWordTarget is the pending-buffer word count that triggers an
// extraction cycle.
const DefaultWordTarget = 30

// TriggerPolicy decides when the pending transcript buffer holds enough new
// material to justify an extraction call.
type TriggerPolicy struct {
	// Target is the word threshold. Zero or negative falls back to
	// DefaultWordTarget.
	Target int
}

// target returns the effective threshold.
func (p TriggerPolicy) target() int {
	if p.Target <= 0 {
		return DefaultWordTarget
	}
	return p.Target
}

// WordCount counts whitespace-delimited tokens across the buffer fragments.
func (p TriggerPolicy) WordCount(buffer []string) int {
	n := 0
	for _, fragment := range buffer {
		n += len(strings.Fields(fragment))
	}
	return n
}

// ShouldFire reports whether the buffer has reached the threshold.
func (p TriggerPolicy) ShouldFire(buffer []string) bool {
	return p.WordCount(buffer) >= p.target()
}
