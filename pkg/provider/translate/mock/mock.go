// Package mock provides a test double for the translate.Provider interface.
//
// Script per-call behaviour through the Queue; once it is drained every
// further call answers with Default. Inspect TranslateCalls (or Calls) to
// verify what the caller sent — in particular, that same-language utterances
// never reached the provider at all.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxlate/pkg/provider/translate"
)

// Response scripts the outcome of a single Translate call.
type Response struct {
	// Text is returned when Err is nil.
	Text string
	// Err is the error to return.
	Err error
	// Delay postpones the response; the call aborts early if ctx is done.
	Delay time.Duration
}

// Provider is a mock implementation of translate.Provider.
type Provider struct {
	mu sync.Mutex

	// TranslateFunc, when set, answers every call instead of Queue/Default.
	// Deriving the result from the request keeps responses deterministic when
	// several pipelines call concurrently and queue order would be racy.
	TranslateFunc func(ctx context.Context, req translate.Request) (string, error)

	// Queue holds scripted responses, consumed one per call in order.
	Queue []Response

	// Default is returned once Queue is drained.
	Default Response

	// TranslateCalls records every request, in call order.
	TranslateCalls []translate.Request
}

// Ensure Provider implements translate.Provider at compile time.
var _ translate.Provider = (*Provider)(nil)

// Translate records the request and answers with the next scripted response.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (string, error) {
	p.mu.Lock()
	p.TranslateCalls = append(p.TranslateCalls, req)
	fn := p.TranslateFunc
	r := p.Default
	if fn == nil && len(p.Queue) > 0 {
		r = p.Queue[0]
		p.Queue = p.Queue[1:]
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}

	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if r.Err != nil {
		return "", r.Err
	}
	return r.Text, nil
}

// Calls returns how many Translate calls have been recorded. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranslateCalls)
}

// Reset clears recorded calls and any unconsumed queue entries. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranslateCalls = nil
	p.Queue = nil
}
