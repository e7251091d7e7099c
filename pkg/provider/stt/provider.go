// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription service (e.g. ElevenLabs Scribe, a
// local whisper.cpp model, or Deepgram) behind a uniform per-utterance
// interface: the caller hands over one complete utterance of PCM audio and
// receives the recognized text. Utterance boundaries are decided upstream by
// the audio segmenter, so providers never see partial speech.
//
// Implementations must be safe for concurrent use. One provider instance
// serves every participant in a session.
package stt

import (
	"context"
)

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// Transcribe converts one utterance of audio into text. It blocks until
	// the provider responds or ctx is done.
	//
	// Errors carry a [fault] classification: [fault.ErrNoSpeech] when the
	// audio contains no recognizable speech, transient for retryable provider
	// hiccups (timeouts, rate limits, server errors), fatal otherwise.
	Transcribe(ctx context.Context, req Request) (Result, error)
}
