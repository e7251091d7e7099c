package stt

// Request carries one complete utterance to transcribe.
type Request struct {
	// PCM is the raw audio as little-endian 16-bit mono samples.
	PCM []byte

	// SampleRate is the audio sample rate in Hz. The segmenter emits 16000;
	// providers that need a different rate resample internally.
	SampleRate int

	// Language is the ISO 639-1 code of the spoken language (e.g. "en", "de").
	// [types.AutoDetect] or an empty string lets the provider detect it.
	Language string
}

// Result is the outcome of a transcription.
type Result struct {
	// Text is the recognized text, whitespace-trimmed.
	Text string

	// Language is the ISO 639-1 code of the detected (or confirmed) spoken
	// language. Empty if the provider does not report one.
	Language string
}
