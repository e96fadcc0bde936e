package resilience

import (
	"context"

	"github.com/devdraft-ai/devdraft/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across several
// LLM backends. Each backend has its own circuit breaker.
//
// The generation pipeline uses this directly. The extractor does not: it
// needs to validate the model output inside the failover loop, so it works
// with the underlying [FallbackGroup] instead.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend.
func NewLLMFallback(primaryName string, primary llm.Provider, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primaryName, primary, cfg)}
}

// Add registers an additional backend tried after the primary.
func (f *LLMFallback) Add(name string, provider llm.Provider) {
	f.group.Add(name, provider)
}

// Group exposes the underlying fallback group for callers that need to run
// validation inside the failover loop.
func (f *LLMFallback) Group() *FallbackGroup[llm.Provider] {
	return f.group
}

// Complete sends the request to the first healthy backend and returns its
// response.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, _, err := ExecuteWithResult(f.group, func(_ string, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
	return resp, err
}
