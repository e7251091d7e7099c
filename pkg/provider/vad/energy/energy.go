// Package energy implements [vad.Engine] with a root-mean-square energy gate.
//
// The engine classifies a frame as speech when its RMS energy — normalized to
// [0, 1] by the int16 full-scale value — meets the configured speech
// threshold. It needs no model files and no cgo, which makes it the default
// endpointing detector for the relay: voice-channel audio is close-mic'd and
// noise-gated by the platform already, so a plain energy gate segments it
// reliably.
//
// The engine's native threshold scale is normalized RMS; [DefaultThreshold]
// corresponds to an RMS of 300 on the raw int16 scale (near-silence for
// 16-bit audio, whose full scale is 32767).
package energy

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/MrWong99/voxlate/pkg/provider/vad"
)

// DefaultThreshold is the recommended speech threshold for this engine:
// the normalized equivalent of a raw RMS of 300.
const DefaultThreshold = 300.0 / 32767.0

// Compile-time interface assertions.
var (
	_ vad.Engine        = (*Engine)(nil)
	_ vad.SessionHandle = (*session)(nil)
)

// Engine is the RMS-gate [vad.Engine]. The zero value is ready for use.
type Engine struct{}

// New returns a ready Engine.
func New() *Engine {
	return &Engine{}
}

// NewSession implements [vad.Engine]. Zero thresholds default to
// [DefaultThreshold] for speech and half of it for silence, giving a small
// hysteresis band.
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SpeechThreshold < 0 || cfg.SpeechThreshold > 1 {
		return nil, fmt.Errorf("energy vad: speech threshold %v out of range [0,1]", cfg.SpeechThreshold)
	}
	if cfg.SilenceThreshold > cfg.SpeechThreshold {
		return nil, fmt.Errorf("energy vad: silence threshold %v exceeds speech threshold %v",
			cfg.SilenceThreshold, cfg.SpeechThreshold)
	}

	s := &session{cfg: cfg}
	if s.cfg.SpeechThreshold == 0 {
		s.cfg.SpeechThreshold = DefaultThreshold
		s.cfg.SilenceThreshold = DefaultThreshold / 2
	}
	return s, nil
}

// session holds the per-stream gate state. Not safe for concurrent use; the
// segmenter drives it from a single goroutine.
type session struct {
	cfg      vad.Config
	inSpeech bool
	closed   bool
}

// ProcessFrame implements [vad.SessionHandle].
func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	if s.closed {
		return vad.VADEvent{}, fmt.Errorf("energy vad: session closed")
	}
	if len(frame)%2 != 0 {
		return vad.VADEvent{}, fmt.Errorf("energy vad: frame has odd byte count %d", len(frame))
	}
	if s.cfg.FrameSizeMs > 0 && s.cfg.SampleRate > 0 {
		want := s.cfg.SampleRate * s.cfg.FrameSizeMs / 1000 * 2
		if len(frame) != want {
			return vad.VADEvent{}, fmt.Errorf("energy vad: frame size %d bytes, want %d", len(frame), want)
		}
	}

	p := rms(frame) / 32767.0

	switch {
	case p >= s.cfg.SpeechThreshold:
		if s.inSpeech {
			return vad.VADEvent{Type: vad.VADSpeechContinue, Probability: p}, nil
		}
		s.inSpeech = true
		return vad.VADEvent{Type: vad.VADSpeechStart, Probability: p}, nil

	case p < s.cfg.SilenceThreshold:
		if s.inSpeech {
			s.inSpeech = false
			return vad.VADEvent{Type: vad.VADSpeechEnd, Probability: p}, nil
		}
		return vad.VADEvent{Type: vad.VADSilence, Probability: p}, nil

	default:
		// Hysteresis band: keep the current classification.
		if s.inSpeech {
			return vad.VADEvent{Type: vad.VADSpeechContinue, Probability: p}, nil
		}
		return vad.VADEvent{Type: vad.VADSilence, Probability: p}, nil
	}
}

// Reset implements [vad.SessionHandle].
func (s *session) Reset() {
	s.inSpeech = false
}

// Close implements [vad.SessionHandle].
func (s *session) Close() error {
	s.closed = true
	return nil
}

// rms computes the root-mean-square energy of little-endian int16 PCM.
func rms(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		v := float64(sample)
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
