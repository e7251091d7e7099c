// Package mock provides a test double for the tts.Provider interface.
//
// Script per-call behaviour through the Queue; once it is drained every
// further call answers with Default. Inspect SynthesizeCalls to verify which
// text, voice slot and language the caller requested.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/voxlate/pkg/provider/tts"
	"github.com/MrWong99/voxlate/pkg/types"
)

// Clip builds a silent 48 kHz stereo clip of the given playback length.
// Handy for scheduling tests that only care about timing.
func Clip(d time.Duration) types.SynthesizedClip {
	samples := int(d * 48000 / time.Second)
	return types.SynthesizedClip{
		PCM:        make([]byte, samples*4),
		SampleRate: 48000,
		Channels:   2,
		Duration:   d,
	}
}

// Response scripts the outcome of a single Synthesize call.
type Response struct {
	// Clip is returned when Err is nil.
	Clip types.SynthesizedClip
	// Err is the error to return.
	Err error
	// Delay postpones the response; the call aborts early if ctx is done.
	Delay time.Duration
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// SynthesizeFunc, when set, answers every call instead of Queue/Default.
	// Deriving the result from the request keeps responses deterministic when
	// several pipelines call concurrently and queue order would be racy.
	SynthesizeFunc func(ctx context.Context, req tts.Request) (types.SynthesizedClip, error)

	// Queue holds scripted responses, consumed one per call in order.
	Queue []Response

	// Default is returned once Queue is drained.
	Default Response

	// SynthesizeCalls records every request, in call order.
	SynthesizeCalls []tts.Request

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.Voice

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

// Synthesize records the request and answers with the next scripted response.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (types.SynthesizedClip, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, req)
	fn := p.SynthesizeFunc
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
			return types.SynthesizedClip{}, ctx.Err()
		}
	}
	if r.Err != nil {
		return types.SynthesizedClip{}, r.Err
	}
	return r.Clip, nil
}

// ListVoices returns the scripted catalogue.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ListVoicesResult, p.ListVoicesErr
}

// Calls returns how many Synthesize calls have been recorded. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears recorded calls and any unconsumed queue entries. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.Queue = nil
}
