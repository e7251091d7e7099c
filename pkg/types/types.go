// Package types defines the shared data records used across all Voxlate packages.
//
// These types form the lingua franca between the segmenter, the pipeline stages,
// the playback scheduler, and the stores. They are intentionally minimal — each
// package defines its own domain types, but cross-cutting records live here to
// avoid circular imports.
package types

import "time"

// AutoDetect is the sentinel input language meaning "let the transcription
// provider detect the spoken language". Providers omit the language hint from
// their requests when they see this value.
const AutoDetect = "auto"

// ParticipantConfig holds the per-participant translation settings.
//
// The configuration store owns the authoritative copy; everything handed to a
// pipeline is a value snapshot taken when the utterance was created, so a
// configuration change never retroactively applies to speech already in flight.
type ParticipantConfig struct {
	// ParticipantID is the platform-specific unique identifier (Discord user ID).
	ParticipantID string

	// DisplayName is the human-readable participant name, used in transcript
	// output and glossary correction. May be empty if the platform has not
	// reported it yet.
	DisplayName string

	// InputLanguage is the language the participant speaks, passed to the
	// transcription provider as a hint. [AutoDetect] defers to the provider.
	InputLanguage string

	// OutputLanguage is the language their speech is translated into.
	OutputLanguage string

	// VoiceID selects the synthesis voice slot (1–20). The slot maps to a
	// provider-specific voice identifier through the configured voice table.
	VoiceID int

	// LastUpdated is when any field of this record last changed.
	LastUpdated time.Time
}

// Utterance is one silence-bounded segment of a participant's speech, produced
// by the segmenter and owned by exactly one pipeline task until synthesis
// completes or fails.
type Utterance struct {
	// ParticipantID identifies whose capture stream produced this utterance.
	ParticipantID string

	// Seq is the per-participant utterance sequence number. Strictly increasing;
	// the playback scheduler and transcript publisher observe utterances in Seq
	// order for any given participant.
	Seq uint64

	// PCM is little-endian int16 mono audio at SampleRate, ready for
	// transcription. Trailing silence up to the endpointing threshold is
	// included; leading silence is not.
	PCM []byte

	// SampleRate in Hz (16000 after the capture downmix).
	SampleRate int

	// Start and End bound the utterance relative to stream start.
	Start, End time.Duration
}

// Duration returns the utterance length derived from its boundaries.
func (u Utterance) Duration() time.Duration {
	return u.End - u.Start
}

// TranscriptPair is the text outcome of one utterance: the original transcript
// and its translation. Created once transcription and translation both
// succeed; published to the session's text channel and then discarded.
type TranscriptPair struct {
	// ParticipantID identifies the speaker.
	ParticipantID string

	// Seq is the utterance sequence number this pair was produced from.
	// At most one TranscriptPair exists per (ParticipantID, Seq).
	Seq uint64

	// OriginalText is the (possibly glossary-corrected) transcription.
	OriginalText string

	// SourceLanguage is the resolved spoken language — the participant's
	// configured input language, or the provider-detected one under [AutoDetect].
	SourceLanguage string

	// TranslatedText is the translation of OriginalText into TargetLanguage.
	// Equal to OriginalText when source and target languages match.
	TranslatedText string

	// TargetLanguage is the participant's output language at utterance time.
	TargetLanguage string
}

// SynthesizedClip is the audio outcome of one utterance: translated speech
// rendered by the synthesis provider, owned by the playback scheduler until
// played or purged.
type SynthesizedClip struct {
	// ParticipantID identifies whose utterance produced this clip.
	ParticipantID string

	// Seq is the utterance sequence number. At most one clip exists per
	// (ParticipantID, Seq).
	Seq uint64

	// PCM is little-endian int16 audio at SampleRate/Channels, ready for the
	// session output (48 kHz stereo for Discord).
	PCM []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Duration is the clip's playback length.
	Duration time.Duration
}
