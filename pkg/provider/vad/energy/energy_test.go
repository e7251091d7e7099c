package energy_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/MrWong99/voxlate/pkg/provider/vad"
	"github.com/MrWong99/voxlate/pkg/provider/vad/energy"
)

// makeSpeechPCM generates a 440 Hz sine-wave frame whose RMS is well above
// the default gate.
func makeSpeechPCM(samples int) []byte {
	const amplitude = 10_000.0 // RMS ≈ 7071, far above the gate
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

// makeSilencePCM generates a zero-valued frame (RMS = 0).
func makeSilencePCM(samples int) []byte {
	return make([]byte, samples*2)
}

func newSession(t *testing.T) vad.SessionHandle {
	t.Helper()
	s, err := energy.New().NewSession(vad.Config{SampleRate: 16000})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func TestSpeechLifecycle(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	defer s.Close()

	steps := []struct {
		frame []byte
		want  vad.VADEventType
	}{
		{makeSilencePCM(320), vad.VADSilence},
		{makeSpeechPCM(320), vad.VADSpeechStart},
		{makeSpeechPCM(320), vad.VADSpeechContinue},
		{makeSilencePCM(320), vad.VADSpeechEnd},
		{makeSilencePCM(320), vad.VADSilence},
		{makeSpeechPCM(320), vad.VADSpeechStart},
	}

	for i, step := range steps {
		ev, err := s.ProcessFrame(step.frame)
		if err != nil {
			t.Fatalf("step %d: ProcessFrame: %v", i, err)
		}
		if ev.Type != step.want {
			t.Errorf("step %d: event = %v, want %v", i, ev.Type, step.want)
		}
	}
}

func TestResetClearsState(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	defer s.Close()

	if _, err := s.ProcessFrame(makeSpeechPCM(320)); err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	s.Reset()

	// After Reset the next speech frame is a fresh start, not a continuation.
	ev, err := s.ProcessFrame(makeSpeechPCM(320))
	if err != nil {
		t.Fatalf("ProcessFrame: %v", err)
	}
	if ev.Type != vad.VADSpeechStart {
		t.Errorf("event after Reset = %v, want VADSpeechStart", ev.Type)
	}
}

func TestFrameSizeEnforcement(t *testing.T) {
	t.Parallel()

	s, err := energy.New().NewSession(vad.Config{SampleRate: 16000, FrameSizeMs: 20})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	// 20 ms at 16 kHz mono is 320 samples; 100 samples must be rejected.
	if _, err := s.ProcessFrame(makeSpeechPCM(100)); err == nil {
		t.Errorf("expected error for wrong frame size")
	}
	if _, err := s.ProcessFrame(makeSpeechPCM(320)); err != nil {
		t.Errorf("ProcessFrame with exact size: %v", err)
	}
}

func TestInvalidConfig(t *testing.T) {
	t.Parallel()

	if _, err := energy.New().NewSession(vad.Config{SpeechThreshold: 1.5}); err == nil {
		t.Errorf("expected error for out-of-range speech threshold")
	}
	if _, err := energy.New().NewSession(vad.Config{SpeechThreshold: 0.1, SilenceThreshold: 0.2}); err == nil {
		t.Errorf("expected error for silence threshold above speech threshold")
	}
}

func TestClosedSessionRejectsFrames(t *testing.T) {
	t.Parallel()

	s := newSession(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.ProcessFrame(makeSpeechPCM(320)); err == nil {
		t.Errorf("expected error after Close")
	}
}
