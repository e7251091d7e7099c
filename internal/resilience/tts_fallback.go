package resilience

import (
	"context"

	"github.com/MrWong99/voxlate/pkg/provider/tts"
	"github.com/MrWong99/voxlate/pkg/types"
)

// TTSFallback implements [tts.Provider] with automatic failover across multiple
// synthesis backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesis provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders the request with the first healthy provider.
//
// Voice slots resolve against each provider's own voice table, so a fallback
// renders the same slot with its closest equivalent voice rather than failing
// on an unknown provider-specific ID.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (types.SynthesizedClip, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (types.SynthesizedClip, error) {
		return p.Synthesize(ctx, req)
	})
}

// ListVoices returns the voice catalogue of the first healthy provider.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.Voice, error) {
		return p.ListVoices(ctx)
	})
}
