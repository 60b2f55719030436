// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify the prompts the pipeline sends and to
// feed controlled responses without a live generation backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []string{"/ˈbʌtər/"},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/aneeshram/artivox/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
//
// Response selection order: CompleteFunc when set, otherwise the next unread
// entry of Responses (the last entry repeats once exhausted), otherwise the
// empty string. Set CompleteErr to inject a transport failure.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// CompleteFunc, when set, computes the response for each call. It
	// receives the zero-based call index and the request.
	CompleteFunc func(call int, req llm.CompletionRequest) (string, error)

	// Responses is a queue of completion texts returned in order.
	Responses []string

	// CompleteErr, if non-nil, is returned as the error from every Complete.
	CompleteErr error

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	// CloseCount is the number of times Close was called.
	CloseCount int

	next int
}

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Complete records the call and returns the configured response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	call := len(p.CompleteCalls)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}

	if p.CompleteFunc != nil {
		text, err := p.CompleteFunc(call, req)
		if err != nil {
			return nil, err
		}
		return &llm.CompletionResponse{Content: text}, nil
	}

	var text string
	if len(p.Responses) > 0 {
		idx := p.next
		if idx >= len(p.Responses) {
			idx = len(p.Responses) - 1
		}
		text = p.Responses[idx]
		p.next++
	}
	return &llm.CompletionResponse{Content: text}, nil
}

// Close increments CloseCount and returns nil.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCount++
	return nil
}
