// Package fault classifies pipeline stage failures.
//
// Every external-service call in the relay pipeline (transcription,
// translation, synthesis) fails in one of a small number of ways that the
// orchestrator must tell apart:
//
//   - no recognizable speech — not an error at all; the utterance is dropped
//     silently with no transcript, no translation, no playback.
//   - transient — timeouts, rate limits, service-unavailable; worth exactly
//     one retry before the utterance is skipped.
//   - fatal — authentication or validation failures; retrying cannot help,
//     the utterance is skipped immediately.
//
// Providers wrap their errors with [Transient] or [Fatal] (or return
// [ErrNoSpeech]); the orchestrator calls [Classify] to decide what to do.
// A failure is always scoped to the single utterance that triggered it —
// classification never escalates to session teardown.
package fault

import "errors"

// ErrNoSpeech reports that the transcription provider found no recognizable
// speech in an utterance. It is an expected outcome, not a failure: callers
// drop the utterance without logging an error.
var ErrNoSpeech = errors.New("no recognizable speech")

// Class partitions stage failures by how the orchestrator should react.
type Class int

const (
	// ClassFatal covers authentication and validation failures, and any error
	// not otherwise classified. No retry; the utterance is skipped.
	ClassFatal Class = iota

	// ClassTransient covers network timeouts, rate limiting, and
	// service-unavailable responses. Worth exactly one retry.
	ClassTransient

	// ClassNoSpeech covers [ErrNoSpeech]. The utterance is dropped silently.
	ClassNoSpeech
)

// String returns the stable, log-friendly name of the class.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassNoSpeech:
		return "no_speech"
	default:
		return "fatal"
	}
}

// transientError marks an error as worth a single retry.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// fatalError marks an error as not retryable.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Transient wraps err so that [Classify] reports [ClassTransient].
// Returns nil if err is nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Fatal wraps err so that [Classify] reports [ClassFatal].
// Returns nil if err is nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsTransient reports whether err carries a [Transient] marker anywhere in its
// chain.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// Classify maps err onto its [Class]. Unmarked errors classify as
// [ClassFatal] — an unknown failure is not retried.
func Classify(err error) Class {
	switch {
	case errors.Is(err, ErrNoSpeech):
		return ClassNoSpeech
	case IsTransient(err):
		return ClassTransient
	default:
		return ClassFatal
	}
}

// FromStatusCode wraps err according to the usual HTTP semantics of provider
// APIs: 408, 429 and all 5xx responses are transient; everything else
// (malformed request, bad credentials, not found) is fatal.
func FromStatusCode(status int, err error) error {
	if err == nil {
		return nil
	}
	if status == 408 || status == 429 || status >= 500 {
		return Transient(err)
	}
	return Fatal(err)
}
