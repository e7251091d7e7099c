package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxlate/pkg/fault"
	"github.com/MrWong99/voxlate/pkg/provider/tts"
)

// ─── Helpers ──────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startStreamServer launches a test WebSocket server. The handler receives
// the accepted conn and the upgrade request.
func startStreamServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readClientMessage reads one text frame and decodes it into a generic map.
func readClientMessage(conn *websocket.Conn) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// writeServerMessage marshals v and sends it as a text frame.
func writeServerMessage(conn *websocket.Conn, v any) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	_ = conn.Write(ctx, websocket.MessageText, data)
}

// monoChunk returns n bytes of non-silent 16 kHz mono PCM with a marker in
// the first sample.
func monoChunk(n int) []byte {
	pcm := make([]byte, n)
	pcm[0], pcm[1] = 0x34, 0x12
	for i := 2; i+1 < n; i += 2 {
		pcm[i], pcm[i+1] = 0xE8, 0x03 // 1000
	}
	return pcm
}

// ─── Constructor ──────────────────────────────────────────────────────────────

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("expected model %q, got %q", defaultModel, p.model)
	}
	if p.outputFormat != defaultOutputFmt {
		t.Errorf("expected outputFormat %q, got %q", defaultOutputFmt, p.outputFormat)
	}
	if p.sampleRate != 16000 {
		t.Errorf("expected sample rate 16000, got %d", p.sampleRate)
	}

	voice, err := p.resolveVoice(0)
	if err != nil {
		t.Fatalf("resolveVoice(0): %v", err)
	}
	if voice != DefaultVoice {
		t.Errorf("expected default voice %q, got %q", DefaultVoice, voice)
	}
}

func TestNew_WithOptions(t *testing.T) {
	p, err := New("key",
		WithModel("eleven_multilingual_v2"),
		WithOutputFormat("pcm_24000"),
		WithVoices(map[int]string{2: "voice-two"}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "eleven_multilingual_v2" {
		t.Errorf("expected model 'eleven_multilingual_v2', got %q", p.model)
	}
	if p.sampleRate != 24000 {
		t.Errorf("expected sample rate 24000, got %d", p.sampleRate)
	}

	// Merging keeps the default slot and adds the new one.
	if voice, err := p.resolveVoice(1); err != nil || voice != DefaultVoice {
		t.Errorf("resolveVoice(1) = %q, %v; want default", voice, err)
	}
	if voice, err := p.resolveVoice(2); err != nil || voice != "voice-two" {
		t.Errorf("resolveVoice(2) = %q, %v; want voice-two", voice, err)
	}
	if _, err := p.resolveVoice(7); err == nil {
		t.Error("expected error for unconfigured slot 7")
	}
}

func TestNew_UnsupportedOutputFormat(t *testing.T) {
	if _, err := New("key", WithOutputFormat("mp3_44100_128")); err == nil {
		t.Error("expected error for non-PCM output format")
	}
}

func TestOutputRate(t *testing.T) {
	tests := []struct {
		format  string
		rate    int
		wantErr bool
	}{
		{"pcm_16000", 16000, false},
		{"pcm_22050", 22050, false},
		{"pcm_24000", 24000, false},
		{"pcm_44100", 44100, false},
		{"ulaw_8000", 0, true},
		{"pcm_", 0, true},
	}
	for _, tt := range tests {
		rate, err := outputRate(tt.format)
		if tt.wantErr {
			if err == nil {
				t.Errorf("outputRate(%q): expected error", tt.format)
			}
			continue
		}
		if err != nil {
			t.Errorf("outputRate(%q): %v", tt.format, err)
			continue
		}
		if rate != tt.rate {
			t.Errorf("outputRate(%q) = %d, want %d", tt.format, rate, tt.rate)
		}
	}
}

// ─── Synthesize ───────────────────────────────────────────────────────────────

func TestSynthesize_EmptyTextIsFatal(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Synthesize(context.Background(), tts.Request{Text: "   "})
	if err == nil {
		t.Fatal("expected error for empty text")
	}
	if fault.IsTransient(err) {
		t.Errorf("expected fatal classification, got transient: %v", err)
	}
}

func TestSynthesize_UnknownVoiceSlotIsFatal(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Synthesize(context.Background(), tts.Request{Text: "Hola", VoiceID: 13})
	if err == nil {
		t.Fatal("expected error for unconfigured voice slot")
	}
	if fault.IsTransient(err) {
		t.Errorf("expected fatal classification, got transient: %v", err)
	}
}

func TestSynthesize_Success(t *testing.T) {
	gotPath := make(chan string, 1)
	gotModel := make(chan string, 1)
	gotMsgs := make(chan map[string]any, 3)

	srv := startStreamServer(t, func(conn *websocket.Conn, r *http.Request) {
		gotPath <- r.URL.Path
		gotModel <- r.URL.Query().Get("model_id")
		for range 3 {
			m, err := readClientMessage(conn)
			if err != nil {
				return
			}
			gotMsgs <- m
		}
		// Two chunks of 16 kHz mono PCM, then the final marker.
		writeServerMessage(conn, audioResponse{Audio: base64.StdEncoding.EncodeToString(monoChunk(320))})
		writeServerMessage(conn, audioResponse{Audio: base64.StdEncoding.EncodeToString(monoChunk(320))})
		writeServerMessage(conn, audioResponse{IsFinal: true})
	})

	p, err := New("test-key", WithStreamBaseURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clip, err := p.Synthesize(context.Background(), tts.Request{Text: "Hola a todos.", Language: "Spanish"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if path := <-gotPath; path != "/v1/text-to-speech/"+DefaultVoice+"/stream-input" {
		t.Errorf("unexpected stream path %q", path)
	}
	if model := <-gotModel; model != defaultModel {
		t.Errorf("expected model_id %q, got %q", defaultModel, model)
	}

	boi := <-gotMsgs
	if boi["xi_api_key"] != "test-key" {
		t.Errorf("expected xi_api_key in handshake, got %v", boi["xi_api_key"])
	}
	if boi["output_format"] != defaultOutputFmt {
		t.Errorf("expected output_format %q, got %v", defaultOutputFmt, boi["output_format"])
	}
	vs, ok := boi["voice_settings"].(map[string]any)
	if !ok {
		t.Fatalf("expected voice_settings object, got %v", boi["voice_settings"])
	}
	if vs["stability"] != 0.5 || vs["similarity_boost"] != 0.5 {
		t.Errorf("expected stability/similarity 0.5/0.5, got %v/%v", vs["stability"], vs["similarity_boost"])
	}

	// The utterance must end with a space per the stream protocol.
	msg := <-gotMsgs
	if msg["text"] != "Hola a todos. " {
		t.Errorf("expected utterance with trailing space, got %q", msg["text"])
	}
	flush := <-gotMsgs
	if flush["text"] != "" {
		t.Errorf("expected empty flush message, got %q", flush["text"])
	}

	// 640 bytes of 16 kHz mono become 3840 bytes of 48 kHz stereo.
	if clip.SampleRate != 48000 || clip.Channels != 2 {
		t.Errorf("expected 48000 Hz stereo, got %d Hz %dch", clip.SampleRate, clip.Channels)
	}
	if len(clip.PCM) != 3840 {
		t.Errorf("expected 3840 bytes of PCM, got %d", len(clip.PCM))
	}
	if clip.Duration != 20*time.Millisecond {
		t.Errorf("expected 20ms clip, got %v", clip.Duration)
	}
	// First sample survives resampling and is duplicated across channels.
	if clip.PCM[0] != 0x34 || clip.PCM[1] != 0x12 || clip.PCM[2] != 0x34 || clip.PCM[3] != 0x12 {
		t.Errorf("unexpected leading samples % X", clip.PCM[:4])
	}
}

func TestSynthesize_ServerCloseAfterAudio(t *testing.T) {
	srv := startStreamServer(t, func(conn *websocket.Conn, r *http.Request) {
		for range 3 {
			if _, err := readClientMessage(conn); err != nil {
				return
			}
		}
		// No isFinal marker: the deferred normal closure ends the stream.
		writeServerMessage(conn, audioResponse{Audio: base64.StdEncoding.EncodeToString(monoChunk(320))})
	})

	p, err := New("key", WithStreamBaseURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clip, err := p.Synthesize(context.Background(), tts.Request{Text: "Hej"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(clip.PCM) == 0 {
		t.Error("expected audio from stream closed after last chunk")
	}
}

func TestSynthesize_NoAudioIsTransient(t *testing.T) {
	srv := startStreamServer(t, func(conn *websocket.Conn, r *http.Request) {
		for range 3 {
			if _, err := readClientMessage(conn); err != nil {
				return
			}
		}
		writeServerMessage(conn, audioResponse{IsFinal: true})
	})

	p, err := New("key", WithStreamBaseURL(wsURL(srv)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Synthesize(context.Background(), tts.Request{Text: "Hola"})
	if err == nil {
		t.Fatal("expected error for stream without audio")
	}
	if !fault.IsTransient(err) {
		t.Errorf("expected transient classification, got: %v", err)
	}
}

func TestSynthesize_RejectedHandshake(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantTransient bool
	}{
		{"unauthorized is fatal", http.StatusUnauthorized, false},
		{"unavailable is transient", http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			t.Cleanup(srv.Close)

			p, err := New("key", WithStreamBaseURL(wsURL(srv)))
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			_, err = p.Synthesize(context.Background(), tts.Request{Text: "Hola"})
			if err == nil {
				t.Fatal("expected error for rejected handshake")
			}
			if got := fault.IsTransient(err); got != tt.wantTransient {
				t.Errorf("IsTransient = %v, want %v (%v)", got, tt.wantTransient, err)
			}
		})
	}
}

// ─── ListVoices ───────────────────────────────────────────────────────────────

func TestListVoices_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/voices" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "test-key" {
			t.Errorf("expected xi-api-key header, got %q", r.Header.Get("xi-api-key"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"voices": [
				{"voice_id": "abc123", "name": "Rachel", "category": "premade"},
				{"voice_id": "def456", "name": "Adam", "category": "premade"}
			]
		}`))
	}))
	t.Cleanup(srv.Close)

	p, err := New("test-key", WithAPIBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("expected 2 voices, got %d", len(voices))
	}
	if voices[0].ID != "abc123" || voices[0].Name != "Rachel" || voices[0].Category != "premade" {
		t.Errorf("unexpected first voice %+v", voices[0])
	}
}

func TestListVoices_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p, err := New("bad-key", WithAPIBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.ListVoices(context.Background())
	if err == nil {
		t.Fatal("expected error for unauthorized request")
	}
	if fault.IsTransient(err) {
		t.Errorf("expected fatal classification, got transient: %v", err)
	}
}
