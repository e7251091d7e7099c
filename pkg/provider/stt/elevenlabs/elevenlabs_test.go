package elevenlabs

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/voxlate/pkg/fault"
	"github.com/MrWong99/voxlate/pkg/provider/stt"
	"github.com/MrWong99/voxlate/pkg/types"
)

// newTestProvider returns a Provider pointed at a httptest server running handler.
func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// someUtterance returns a small fake PCM utterance.
func someUtterance() stt.Request {
	return stt.Request{
		PCM:        make([]byte, 3200), // 100ms of 16kHz mono
		SampleRate: 16000,
		Language:   types.AutoDetect,
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New with empty apiKey: want error, got nil")
	}
}

func TestTranscribe_Success(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/v1/speech-to-text" {
			t.Errorf("path = %s, want /v1/speech-to-text", r.URL.Path)
		}
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("xi-api-key = %q, want %q", got, "test-key")
		}

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model_id"); got != "scribe_v1" {
			t.Errorf("model_id = %q, want %q", got, "scribe_v1")
		}
		if _, ok := r.MultipartForm.Value["language_code"]; ok {
			t.Error("language_code sent for auto-detect request")
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		head := make([]byte, 4)
		if _, err := io.ReadFull(file, head); err != nil {
			t.Fatalf("read file: %v", err)
		}
		if string(head) != "RIFF" {
			t.Errorf("file header = %q, want RIFF", head)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text": " Hello world ", "language_code": "en", "language_probability": 0.97}`)
	})

	got, err := p.Transcribe(context.Background(), someUtterance())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "Hello world" {
		t.Errorf("Text = %q, want %q (trimmed)", got.Text, "Hello world")
	}
	if got.Language != "en" {
		t.Errorf("Language = %q, want %q", got.Language, "en")
	}
}

func TestTranscribe_LanguageHintForwarded(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("language_code"); got != "de" {
			t.Errorf("language_code = %q, want %q", got, "de")
		}
		io.WriteString(w, `{"text": "Hallo", "language_code": "de"}`)
	})

	req := someUtterance()
	req.Language = "de"
	got, err := p.Transcribe(context.Background(), req)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got.Text != "Hallo" {
		t.Errorf("Text = %q, want %q", got.Text, "Hallo")
	}
}

func TestTranscribe_EmptyTextIsNoSpeech(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"text": "   "}`)
	})

	_, err := p.Transcribe(context.Background(), someUtterance())
	if !errors.Is(err, fault.ErrNoSpeech) {
		t.Fatalf("Transcribe: want ErrNoSpeech, got %v", err)
	}
}

func TestTranscribe_EmptyPCMIsNoSpeech(t *testing.T) {
	t.Parallel()

	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = p.Transcribe(context.Background(), stt.Request{SampleRate: 16000})
	if !errors.Is(err, fault.ErrNoSpeech) {
		t.Fatalf("Transcribe: want ErrNoSpeech, got %v", err)
	}
}

func TestTranscribe_RateLimitIsTransient(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	_, err := p.Transcribe(context.Background(), someUtterance())
	if err == nil {
		t.Fatal("Transcribe: want error, got nil")
	}
	if !fault.IsTransient(err) {
		t.Fatalf("429: want transient, got %v (%v)", fault.Classify(err), err)
	}
}

func TestTranscribe_AuthFailureIsFatal(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	_, err := p.Transcribe(context.Background(), someUtterance())
	if err == nil {
		t.Fatal("Transcribe: want error, got nil")
	}
	if fault.IsTransient(err) {
		t.Fatal("401: want fatal, got transient")
	}
	if errors.Is(err, fault.ErrNoSpeech) {
		t.Fatal("401: want fatal, got no-speech")
	}
}

func TestWAVBytes(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 320)
	wav := wavBytes(pcm, 16000, 1)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
}
