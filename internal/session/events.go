package session

import "github.com/devdraft-ai/devdraft/internal/spec"

// Outbound event type tags.
const (
	EventTranscript  = "transcript"
	EventWordCount   = "word_count"
	EventProjectSpec = "project_spec"
	EventError       = "error"
)

// TranscriptEvent carries one committed transcript fragment.
type TranscriptEvent struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// WordCountEvent reports trigger progress after each inbound unit while
// capture is active. Count of zero is meaningful and must serialise.
type WordCountEvent struct {
	Type   string `json:"type"`
	Count  int    `json:"count"`
	Target int    `json:"target"`
}

// SpecEvent carries the full updated specification after a merge.
type SpecEvent struct {
	Type string            `json:"type"`
	Data *spec.ProjectSpec `json:"data"`
}

// ErrorEvent reports a non-fatal failure. Capture continues after one.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newTranscriptEvent(text string) TranscriptEvent {
	return TranscriptEvent{Type: EventTranscript, Data: text}
}

func newWordCountEvent(count, target int) WordCountEvent {
	return WordCountEvent{Type: EventWordCount, Count: count, Target: target}
}

func newSpecEvent(s *spec.ProjectSpec) SpecEvent {
	return SpecEvent{Type: EventProjectSpec, Data: s}
}

func newErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message}
}
