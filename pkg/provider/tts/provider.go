// Package tts defines the Provider interface for speech-synthesis backends.
//
// A synthesis provider renders one translated utterance into a finished audio
// clip for the playback scheduler. Unlike transcription input, synthesis
// output is consumed whole — the scheduler plays exactly one clip at a time —
// so the interface is per-utterance rather than streaming.
//
// Implementations must be safe for concurrent use; several participant
// pipelines may synthesize at once.
package tts

import (
	"context"

	"github.com/MrWong99/voxlate/pkg/types"
)

// Request carries one translated utterance into synthesis.
type Request struct {
	// Text is the translated text to speak. Must not be empty — the pipeline
	// never synthesizes an empty translation.
	Text string

	// VoiceID selects the synthesis voice slot (1–20), resolved to a
	// provider-specific voice through the provider's configured voice table.
	// Zero selects the default slot.
	VoiceID int

	// Language is the human-readable name of the language Text is written in.
	// Providers that pick per-language models or voices may use it; others
	// ignore it.
	Language string
}

// Provider is the abstraction over a speech-synthesis backend.
type Provider interface {
	// Synthesize renders req.Text as speech and returns the finished clip
	// with PCM, format and Duration populated. The caller stamps participant
	// identity and sequence before handing the clip to the scheduler.
	//
	// Failures carry a fault classification: rate limits, timeouts and
	// upstream hiccups wrap fault.Transient, validation (empty text, unknown
	// voice slot) wraps fault.Fatal. A synthesis failure is scoped to its one
	// utterance and never suppresses the utterance's transcript.
	Synthesize(ctx context.Context, req Request) (types.SynthesizedClip, error)

	// ListVoices returns the provider's current voice catalogue. Used by the
	// readiness probe and the ops surface; never on the per-utterance hot
	// path.
	ListVoices(ctx context.Context) ([]Voice, error)
}
