// Package store defines the persistence interfaces behind the relay.
//
// Three narrow concerns, each its own interface so backends can implement any
// subset:
//
//   - [Prefs]: the authoritative per-participant configuration
//     ([types.ParticipantConfig] CRUD, defaults materialized on first read).
//   - [Archive]: an append-only log of published [types.TranscriptPair]
//     records, kept per session for operator review.
//   - [TranslationCache]: completed translations keyed by language pair and
//     source text, so repeated utterances skip the translation backend.
//
// The in-process backend in the memory subpackage is the default and is
// sufficient for the relay's correctness: nothing here sits on an utterance's
// critical path except a cache get/put, and a cache failure only costs a
// backend round trip. The postgres subpackage adds durability across restarts
// and semantic (embedding-based) cache matching.
//
// Every implementation must be safe for concurrent use.
package store

import (
	"context"

	"github.com/MrWong99/voxlate/pkg/types"
)

// Prefs stores per-participant configuration.
//
// Reads return value copies; mutating a returned config never changes the
// stored one. A participant that was never configured reads back as
// [DefaultConfig], and that default is persisted by the read, so later All
// calls list every participant the relay has seen.
type Prefs interface {
	// Get returns the participant's configuration, materializing and storing
	// the default on first reference.
	Get(ctx context.Context, participantID string) (types.ParticipantConfig, error)

	// Set upserts the configuration. Implementations stamp LastUpdated.
	Set(ctx context.Context, cfg types.ParticipantConfig) error

	// Delete removes the participant's configuration. Deleting an unknown
	// participant is not an error.
	Delete(ctx context.Context, participantID string) error

	// All returns every stored configuration, ordered by participant ID.
	// Returns an empty (non-nil) slice when nothing is stored.
	All(ctx context.Context) ([]types.ParticipantConfig, error)
}

// Archive is an append-only transcript log, grouped by session.
type Archive interface {
	// Append records a published transcript pair under sessionID.
	// sessionID must be non-empty.
	Append(ctx context.Context, sessionID string, pair types.TranscriptPair) error

	// Recent returns up to limit of the newest pairs for sessionID in
	// chronological order (oldest of the window first). limit <= 0 returns
	// everything retained. Returns an empty (non-nil) slice when the session
	// has no entries.
	Recent(ctx context.Context, sessionID string, limit int) ([]types.TranscriptPair, error)
}

// TranslationCache remembers completed translations.
//
// Keys are (source language, target language, source text). Backends may
// additionally match semantically similar source texts — the postgres backend
// does, via embedding distance — so a hit is not necessarily byte-exact.
// Callers treat any error as a miss; the cache is an optimization, never a
// correctness dependency.
type TranslationCache interface {
	// Get looks up a translation for sourceText in the given language pair.
	// ok reports whether a usable entry was found.
	Get(ctx context.Context, sourceText, sourceLang, targetLang string) (translated string, ok bool, err error)

	// Put records a completed translation for future lookups. Re-putting the
	// same key replaces the entry.
	Put(ctx context.Context, sourceText, sourceLang, targetLang, translated string) error
}

// DefaultConfig is the configuration a participant starts with before any
// command has touched it: default language in and out, voice slot 1.
func DefaultConfig(participantID string) types.ParticipantConfig {
	return types.ParticipantConfig{
		ParticipantID:  participantID,
		InputLanguage:  types.DefaultLanguage,
		OutputLanguage: types.DefaultLanguage,
		VoiceID:        types.DefaultVoiceSlot,
	}
}
