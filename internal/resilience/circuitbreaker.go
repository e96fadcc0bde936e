// Package resilience provides the failover primitives used around external
// model backends: a three-state circuit breaker and a generic fallback group
// that composes several backends of the same type behind one call site.
//
// Extraction runs on a fixed cadence against remote LLM APIs, so a struggling
// backend must be sidelined quickly instead of burning every trigger window on
// timeouts. All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [CircuitBreaker.Do] while the breaker rejects
// calls and the cool-down has not elapsed.
var ErrBreakerOpen = errors.New("circuit breaker open")

// BreakerState is the operating mode of a [CircuitBreaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects every call with [ErrBreakerOpen] until the
	// cool-down elapses.
	BreakerOpen

	// BreakerHalfOpen lets a bounded number of probe calls through. Enough
	// successes close the breaker; a single failure re-opens it.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a [CircuitBreaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// FailureThreshold is the number of consecutive failures that trip the
	// breaker. Default 5.
	FailureThreshold int

	// CoolDown is how long the breaker stays open before probing again.
	// Default 30s.
	CoolDown time.Duration

	// ProbeBudget is how many half-open probe calls may run before the
	// breaker decides. Default 2.
	ProbeBudget int
}

// CircuitBreaker trips after a run of consecutive failures and recovers via
// half-open probing.
type CircuitBreaker struct {
	name      string
	threshold int
	coolDown  time.Duration
	budget    int
	now       func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probes   int
	probeOK  int
}

// NewCircuitBreaker creates a breaker from cfg.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 2
	}
	return &CircuitBreaker{
		name:      cfg.Name,
		threshold: cfg.FailureThreshold,
		coolDown:  cfg.CoolDown,
		budget:    cfg.ProbeBudget,
		now:       time.Now,
	}
}

// Do runs fn unless the breaker rejects the call. The error from fn is
// returned unwrapped so callers can inspect it.
func (b *CircuitBreaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.coolDown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.probes = 0
		b.probeOK = 0
		slog.Info("circuit breaker half-open", "name", b.name)

	case BreakerHalfOpen:
		if b.probes >= b.budget {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}
	probing := b.state == BreakerHalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *CircuitBreaker) onFailure(probing bool) {
	b.openedAt = b.now()
	if probing {
		b.state = BreakerOpen
		b.failures = b.threshold
		slog.Warn("circuit breaker re-opened", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.state = BreakerOpen
		slog.Warn("circuit breaker opened",
			"name", b.name, "consecutive_failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *CircuitBreaker) onSuccess(probing bool) {
	if probing {
		b.probeOK++
		if b.probeOK >= b.budget {
			b.state = BreakerClosed
			b.failures = 0
			slog.Info("circuit breaker closed", "name", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the breaker's effective state. An open breaker whose cool-down
// has elapsed reports half-open; the transition itself happens on the next Do.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.coolDown {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probes = 0
	b.probeOK = 0
}
