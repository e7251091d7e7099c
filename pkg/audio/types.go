package audio

import "time"

// Frame represents a single chunk of PCM audio flowing through the pipeline.
// Frames are the atomic unit of audio transport — captured from per-participant
// input streams, consumed by the segmenter, and played through the session
// output stream.
type Frame struct {
	// Data is little-endian int16 PCM. Sample rate and channel count are
	// carried alongside because capture (48 kHz stereo) and transcription
	// (16 kHz mono) sides of the pipeline differ.
	Data []byte

	// SampleRate in Hz (e.g., 48000 for Discord Opus, 16000 for STT input).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// ParticipantID identifies whose capture stream produced this frame.
	// Empty on output frames.
	ParticipantID string

	// Seq is the per-stream frame sequence number assigned at capture.
	Seq uint64

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Duration returns the frame's play length derived from its PCM size and format.
// Returns zero for frames with an unset format.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / 2 / f.Channels
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
