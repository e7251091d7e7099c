package whisper_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/MrWong99/voxlate/pkg/fault"
	"github.com/MrWong99/voxlate/pkg/provider/stt"
	"github.com/MrWong99/voxlate/pkg/provider/stt/whisper"
)

// testModelPath returns the path to a whisper model for integration tests.
// It reads from the WHISPER_MODEL_PATH environment variable. If unset the
// test is skipped.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNewNative_EmptyPath_ReturnsError(t *testing.T) {
	_, err := whisper.NewNative("")
	if err == nil {
		t.Fatal("expected error for empty model path, got nil")
	}
}

func TestNewNative_InvalidPath_ReturnsError(t *testing.T) {
	_, err := whisper.NewNative("/nonexistent/path/to/model.bin")
	if err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestNativeTranscribe_EmptyUtteranceIsNoSpeech(t *testing.T) {
	modelPath := testModelPath(t)
	p, err := whisper.NewNative(modelPath)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	_, err = p.Transcribe(context.Background(), stt.Request{SampleRate: 16000})
	if !errors.Is(err, fault.ErrNoSpeech) {
		t.Fatalf("want ErrNoSpeech, got %v", err)
	}
}

func TestNativeTranscribe_SilenceProducesNoSpeech(t *testing.T) {
	modelPath := testModelPath(t)
	p, err := whisper.NewNative(modelPath)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	// 1 second of digital silence.
	req := stt.Request{PCM: makeSilencePCM(16000), SampleRate: 16000, Language: "en"}
	_, err = p.Transcribe(context.Background(), req)
	if err != nil && !errors.Is(err, fault.ErrNoSpeech) {
		t.Fatalf("silence: want nil or ErrNoSpeech, got %v", err)
	}
}

func TestNativeTranscribe_SpeechReturnsText(t *testing.T) {
	modelPath := testModelPath(t)
	p, err := whisper.NewNative(modelPath)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	// One second of tone. The content depends on the model, so we only verify
	// that inference completes without a fatal error.
	req := stt.Request{PCM: makeSpeechPCM(16000), SampleRate: 16000, Language: "en"}
	res, err := p.Transcribe(context.Background(), req)
	if err != nil && !errors.Is(err, fault.ErrNoSpeech) {
		t.Fatalf("Transcribe: %v", err)
	}
	t.Logf("transcribed text: %q", res.Text)
}

func TestNativeTranscribe_CancelledContext_ReturnsError(t *testing.T) {
	modelPath := testModelPath(t)
	p, err := whisper.NewNative(modelPath)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := p.Transcribe(ctx, utteranceRequest()); err == nil {
		t.Fatal("expected error for cancelled context, got nil")
	}
}

func TestNativeClose_Idempotent(t *testing.T) {
	modelPath := testModelPath(t)
	p, err := whisper.NewNative(modelPath)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("first Close() returned error: %v", err)
	}
}
