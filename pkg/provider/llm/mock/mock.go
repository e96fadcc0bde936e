// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the extraction and generation
// subsystems send correct CompletionRequests and to feed controlled responses
// without a live backend. All fields are safe to set before calling any
// method; mutating them during a concurrent call is the caller's
// responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: `{"requirements":[]}`},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/devdraft-ai/devdraft/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Result is one scripted outcome for a Complete call.
type Result struct {
	// Response is returned when Err is nil.
	Response *llm.CompletionResponse
	// Err, if non-nil, is returned instead of Response.
	Err error
}

// Provider is a mock implementation of llm.Provider.
//
// Resolution order for each Complete call:
//  1. CompleteFunc, when set, is invoked and its result returned.
//  2. The next unconsumed entry of Script, when any remain.
//  3. CompleteResponse / CompleteErr.
type Provider struct {
	mu sync.Mutex

	// CompleteFunc, if set, fully controls every Complete call.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Script is a queue of outcomes consumed one per Complete call.
	Script []Result

	// CompleteResponse is returned by Complete once Script is exhausted.
	// May be nil (returns nil, nil).
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned as the error from Complete.
	CompleteErr error

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	scriptPos int
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the next configured outcome.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, req)
	}
	if p.scriptPos < len(p.Script) {
		r := p.Script[p.scriptPos]
		p.scriptPos++
		return r.Response, r.Err
	}
	return p.CompleteResponse, p.CompleteErr
}

// Calls returns the number of Complete invocations so far. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// Reset clears all recorded calls and rewinds the script. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
	p.scriptPos = 0
}
