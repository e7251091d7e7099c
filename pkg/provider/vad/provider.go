// Package vad defines the Engine interface for Voice Activity Detection backends.
//
// A VAD engine wraps a frame-level speech detector (an energy gate, Silero VAD,
// WebRTC VAD, or a custom model) and surfaces it as a stateful, per-stream
// session. Each session maintains its own internal state so that many
// concurrent participant streams can be analysed independently.
//
// VAD is synchronous by design: ProcessFrame returns immediately with a
// detection result, which is what lets the utterance segmenter make an
// endpointing decision per frame without buffering ahead.
//
// Implementations must be safe for concurrent use across different sessions.
// A single SessionHandle should not be shared across goroutines unless the
// implementation explicitly documents thread safety for that type.
package vad

// Config holds the parameters for a VAD session. All numeric thresholds are
// expressed in the engine's native scale; see each Engine's documentation for
// recommended starting values.
type Config struct {
	// SampleRate is the audio sample rate in Hz. Must match the rate of the
	// PCM frames passed to ProcessFrame. Common values: 8000, 16000, 48000.
	SampleRate int

	// FrameSizeMs is the duration of each audio frame in milliseconds.
	// Engines that operate on fixed frame sizes return an error from
	// ProcessFrame when the supplied frame does not match. Zero means the
	// engine accepts frames of any length.
	FrameSizeMs int

	// SpeechThreshold is the probability at or above which a frame is
	// classified as speech. Higher values reduce false positives at the cost
	// of clipped speech onsets.
	SpeechThreshold float64

	// SilenceThreshold is the probability below which a frame is classified
	// as silence and an active speech run is considered ended. Must be ≤
	// SpeechThreshold; the band between the two is hysteresis — frames there
	// keep the current classification.
	SilenceThreshold float64
}

// SessionHandle represents an active VAD session for a single audio stream.
// It is an interface so that test code can supply mock implementations
// without a live engine. Each session maintains its own detection state;
// Reset clears this state without closing the session.
//
// A SessionHandle should not be shared between goroutines unless the
// implementation explicitly guarantees concurrent safety.
type SessionHandle interface {
	// ProcessFrame analyses a single audio frame and returns the detection
	// result. The frame must be raw little-endian int16 PCM at the
	// SampleRate configured when the session was created. Returns an error
	// if the frame size is wrong or the engine encounters an internal
	// failure.
	//
	// This method is called synchronously from the segmenter loop; it must
	// not block.
	ProcessFrame(frame []byte) (VADEvent, error)

	// Reset clears all accumulated detection state without closing the
	// session. Use this when the audio stream is interrupted or restarted so
	// stale state from a previous segment cannot leak into the next.
	Reset()

	// Close releases all resources associated with the session. After Close,
	// ProcessFrame and Reset must return errors or be no-ops. Calling Close
	// more than once is safe and returns nil.
	Close() error
}

// Engine is the factory for VAD sessions. It is the top-level interface
// implemented by each VAD backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call NewSession simultaneously to create independent sessions.
type Engine interface {
	// NewSession creates a new VAD session with the given configuration. The
	// session is immediately ready to accept audio frames.
	//
	// Returns an error if the configuration is invalid (unsupported sample
	// rate, threshold out of range) or if the engine cannot allocate
	// resources for the session.
	NewSession(cfg Config) (SessionHandle, error)
}
