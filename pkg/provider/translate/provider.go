// Package translate defines the Provider interface for text translation
// backends.
//
// A translation provider carries one utterance's transcript from its source
// language into a listener's target language. It is invoked at most once per
// utterance: the relay pipeline short-circuits utterances whose source and
// target languages already match, so implementations never see (and need not
// special-case) a same-language request.
//
// Implementors must be safe for concurrent use and must honor context
// cancellation promptly.
package translate

import "context"

// Request carries one transcript through translation.
//
// Languages are the human-readable names from types.Languages ("English",
// "Japanese"), not ISO codes — the chat-completion backends work better with
// names, and it keeps the prompt readable in logs.
type Request struct {
	// Text is the transcript to translate. Must not be empty.
	Text string

	// SourceLanguage is the language Text is written in. It may be empty when
	// auto-detected transcription could not resolve the language; providers
	// then translate without a source hint.
	SourceLanguage string

	// TargetLanguage is the language to translate into. Required.
	TargetLanguage string
}

// Provider is the abstraction over a translation backend.
//
// Translate returns the translated text, trimmed of surrounding whitespace.
// Failures carry a fault classification: rate limits, timeouts and upstream
// hiccups wrap fault.Transient (worth one retry), request validation wraps
// fault.Fatal. A translation failure is always scoped to the one utterance
// that triggered it.
type Provider interface {
	Translate(ctx context.Context, req Request) (string, error)
}
