// Package extract turns a conversation transcript into a structured raw
// extraction by prompting an LLM backend chain. Parsing happens inside the
// failover loop, so a backend that answers with malformed JSON is treated the
// same as one that is down and the next backend is tried.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/devdraft-ai/devdraft/internal/resilience"
	"github.com/devdraft-ai/devdraft/internal/spec"
	"github.com/devdraft-ai/devdraft/pkg/provider/llm"
)

const (
	defaultTemperature = 0.3
	defaultMaxTokens   = 4096
)

// ErrMalformedOutput marks a backend response that could not be decoded as a
// raw extraction even after code fence stripping.
var ErrMalformedOutput = errors.New("extraction output is not valid JSON")

// Result is one successful extraction.
type Result struct {
	// Raw is the decoded extraction, not yet structurally validated.
	Raw spec.RawExtraction

	// Backend names the backend that produced the output. Empty on a cache
	// hit.
	Backend string

	// CacheHit reports whether the result was served from the cache.
	CacheHit bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCache sets the result cache. Without one, every call hits a backend.
func WithCache(c *Cache) Option {
	return func(e *Extractor) { e.cache = c }
}

// WithRecentWindow overrides how many trailing transcript words are flagged
// as recent context.
func WithRecentWindow(words int) Option {
	return func(e *Extractor) { e.recentWords = words }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(e *Extractor) { e.temperature = t }
}

// WithMaxTokens overrides the completion token limit.
func WithMaxTokens(n int) Option {
	return func(e *Extractor) { e.maxTokens = n }
}

// Extractor runs requirement extraction against a fallback chain of LLM
// backends. Safe for concurrent use.
type Extractor struct {
	group       *resilience.FallbackGroup[llm.Provider]
	cache       *Cache
	recentWords int
	temperature float64
	maxTokens   int
}

// New creates an Extractor over the given backend chain.
func New(group *resilience.FallbackGroup[llm.Provider], opts ...Option) *Extractor {
	e := &Extractor{
		group:       group,
		recentWords: defaultRecentWindowWords,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract analyses transcript and returns the backend's view of the updated
// specification. prev, when non-nil, is included in the prompt so the backend
// can preserve requirement ids and mark supersessions.
//
// The cache is consulted only when prev is nil: a cached result computed
// without previous state would silently drop the incremental-update
// instruction otherwise. Successful backend results are always cached.
func (e *Extractor) Extract(ctx context.Context, transcript string, prev *spec.ProjectSpec) (Result, error) {
	key := Fingerprint(transcript)

	if e.cache != nil && prev == nil {
		if raw, ok := e.cache.Get(key); ok {
			slog.Debug("extraction cache hit", "fingerprint", key[:12])
			return Result{Raw: raw, CacheHit: true}, nil
		}
	}

	prompt := buildPrompt(prev, transcript, e.recentWords)
	req := llm.CompletionRequest{
		SystemPrompt: jsonOnlyDirective,
		Messages:     []llm.Message{llm.UserMessage(prompt)},
		Temperature:  e.temperature,
		MaxTokens:    e.maxTokens,
	}

	raw, backend, err := resilience.ExecuteWithResult(e.group, func(name string, p llm.Provider) (spec.RawExtraction, error) {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			return spec.RawExtraction{}, err
		}
		return decodeExtraction(resp.Content)
	})
	if err != nil {
		return Result{}, err
	}

	if e.cache != nil {
		e.cache.Put(key, raw)
	}
	return Result{Raw: raw, Backend: backend}, nil
}

// decodeExtraction parses a backend completion into a RawExtraction.
func decodeExtraction(content string) (spec.RawExtraction, error) {
	cleaned := stripCodeFences(content)
	var raw spec.RawExtraction
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return spec.RawExtraction{}, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return raw, nil
}
