package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllBackendsFailed is returned when every entry in a [FallbackGroup]
// either failed or was skipped because its breaker is open.
var ErrAllBackendsFailed = errors.New("all backends failed")

// FallbackConfig configures the breaker created for each group entry.
type FallbackConfig struct {
	Breaker BreakerConfig
}

type groupEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup chains a primary backend and any number of fallbacks of the
// same type. Entries are tried in registration order; each has a dedicated
// circuit breaker so a tripped primary is skipped without a call.
//
// FallbackGroup is safe for concurrent use once assembled. Add is not safe to
// call concurrently with Execute.
type FallbackGroup[T any] struct {
	entries []groupEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a group whose first entry is the primary backend.
func NewFallbackGroup[T any](primaryName string, primary T, cfg FallbackConfig) *FallbackGroup[T] {
	g := &FallbackGroup[T]{cfg: cfg}
	g.Add(primaryName, primary)
	return g
}

// Add appends a fallback backend. Fallbacks are tried after the primary, in
// the order they were added.
func (g *FallbackGroup[T]) Add(name string, value T) {
	bc := g.cfg.Breaker
	bc.Name = name
	g.entries = append(g.entries, groupEntry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(bc),
	})
}

// Names returns the entry names in try order.
func (g *FallbackGroup[T]) Names() []string {
	names := make([]string, len(g.entries))
	for i, e := range g.entries {
		names[i] = e.name
	}
	return names
}

// Execute runs fn against each healthy entry until one succeeds. If every
// entry fails, the last error is wrapped in [ErrAllBackendsFailed].
func (g *FallbackGroup[T]) Execute(fn func(name string, v T) error) error {
	var lastErr error
	for i := range g.entries {
		e := &g.entries[i]
		err := e.breaker.Do(func() error {
			return fn(e.name, e.value)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping backend, breaker open", "backend", e.name)
		} else {
			slog.Warn("backend failed, trying next", "backend", e.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}

// ExecuteWithResult runs fn against each healthy entry until one succeeds and
// returns that entry's result plus its name. A package-level function because
// Go has no method-level type parameters.
func ExecuteWithResult[T, R any](g *FallbackGroup[T], fn func(name string, v T) (R, error)) (R, string, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range g.entries {
		e := &g.entries[i]
		var result R
		err := e.breaker.Do(func() error {
			var innerErr error
			result, innerErr = fn(e.name, e.value)
			return innerErr
		})
		if err == nil {
			return result, e.name, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping backend, breaker open", "backend", e.name)
		} else {
			slog.Warn("backend failed, trying next", "backend", e.name, "error", err)
		}
	}
	return zero, "", fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}
