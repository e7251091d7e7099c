// Package mock provides a test double for the stt.Provider interface.
//
// Script per-call behaviour through the Queue; once it is drained every
// further call answers with Default. Inspect TranscribeCalls to verify what
// audio and hints the caller delivered.
//
// Example:
//
//	p := &mock.Provider{
//	    Queue: []mock.Response{
//	        {Err: fault.Transient(errors.New("hiccup"))},
//	        {Result: stt.Result{Text: "hello", Language: "en"}},
//	    },
//	}
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxlate/pkg/provider/stt"
)

// Response scripts the outcome of a single Transcribe call.
type Response struct {
	// Result is returned when Err is nil.
	Result stt.Result
	// Err is the error to return.
	Err error
	// Delay postpones the response; the call aborts early if ctx is done.
	Delay time.Duration
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// TranscribeFunc, when set, answers every call instead of Queue/Default.
	// Deriving the result from the request keeps responses deterministic when
	// several pipelines call concurrently and queue order would be racy.
	TranscribeFunc func(ctx context.Context, req stt.Request) (stt.Result, error)

	// Queue holds scripted responses, consumed one per call in order.
	Queue []Response

	// Default is returned once Queue is drained.
	Default Response

	// TranscribeCalls records every request, in call order.
	TranscribeCalls []stt.Request
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Transcribe records the request and answers with the next scripted response.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, req)
	fn := p.TranscribeFunc
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
			return stt.Result{}, ctx.Err()
		}
	}
	if r.Err != nil {
		return stt.Result{}, r.Err
	}
	return r.Result, nil
}

// Calls returns how many Transcribe calls have been recorded. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears recorded calls and any unconsumed queue entries. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.Queue = nil
}
