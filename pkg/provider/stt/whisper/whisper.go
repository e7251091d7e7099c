// Package whisper provides STT providers backed by whisper.cpp: an HTTP
// client for a running whisper-server binary, and a native provider that
// loads the model in-process via the CGO bindings.
//
// whisper.cpp is a batch engine, which matches the per-utterance contract
// exactly: each Transcribe call submits one complete utterance and returns
// its text.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080")
//	res, err := p.Transcribe(ctx, stt.Request{PCM: pcm, SampleRate: 16000})
package whisper

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/voxlate/pkg/audio"
	"github.com/MrWong99/voxlate/pkg/fault"
	"github.com/MrWong99/voxlate/pkg/provider/stt"
	"github.com/MrWong99/voxlate/pkg/types"
)

const (
	// bitsPerSample is fixed at 16 for the 16-bit signed little-endian PCM
	// audio that whisper.cpp expects.
	bitsPerSample = 16

	// whisperSampleRate is the only sample rate whisper.cpp accepts.
	whisperSampleRate = 16000
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper-server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithHTTPClient sets a custom HTTP client. The default carries a 30 s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper-server HTTP endpoint.
// It is safe for concurrent use; the server serializes inference internally.
type Provider struct {
	serverURL  string
	model      string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper-server at serverURL
// (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe encodes the utterance as WAV and POSTs it to the whisper-server
// /inference endpoint as multipart/form-data.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if len(req.PCM) == 0 {
		return stt.Result{}, fmt.Errorf("whisper: empty utterance: %w", fault.ErrNoSpeech)
	}

	pcm := req.PCM
	if req.SampleRate > 0 && req.SampleRate != whisperSampleRate {
		pcm = audio.ResampleMono16(pcm, req.SampleRate, whisperSampleRate)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return stt.Result{}, fault.Fatal(fmt.Errorf("whisper: create form file: %w", err))
	}
	if _, err := fw.Write(encodeWAV(pcm, whisperSampleRate, 1)); err != nil {
		return stt.Result{}, fault.Fatal(fmt.Errorf("whisper: write wav data: %w", err))
	}

	// whisper-server treats "auto" as language detection; empty falls back to
	// whatever -l flag the server was started with, so always send a value.
	if err := mw.WriteField("language", requestLanguage(req.Language)); err != nil {
		return stt.Result{}, fault.Fatal(fmt.Errorf("whisper: write language field: %w", err))
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return stt.Result{}, fault.Fatal(fmt.Errorf("whisper: write model field: %w", err))
		}
	}
	if err := mw.Close(); err != nil {
		return stt.Result{}, fault.Fatal(fmt.Errorf("whisper: close multipart writer: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return stt.Result{}, fault.Fatal(fmt.Errorf("whisper: create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return stt.Result{}, fault.Transient(fmt.Errorf("whisper: http request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return stt.Result{}, fault.FromStatusCode(resp.StatusCode,
			fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fault.Transient(fmt.Errorf("whisper: read response body: %w", err))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return stt.Result{}, fault.Transient(fmt.Errorf("whisper: parse JSON response: %w", err))
	}

	text := strings.TrimSpace(result.Text)
	if text == "" || isNonSpeechAnnotation(text) {
		return stt.Result{}, fmt.Errorf("whisper: no speech recognized: %w", fault.ErrNoSpeech)
	}

	lang := ""
	if req.Language != "" && req.Language != types.AutoDetect {
		lang = req.Language
	}
	return stt.Result{Text: text, Language: lang}, nil
}

// ---- helpers ----------------------------------------------------------------

// requestLanguage maps the request language to whisper's language field.
func requestLanguage(lang string) string {
	if lang == "" || lang == types.AutoDetect {
		return "auto"
	}
	return lang
}

// isNonSpeechAnnotation reports whether text is one of whisper's sound-event
// annotations like "[BLANK_AUDIO]" or "(wind blowing)" with no actual speech.
func isNonSpeechAnnotation(text string) bool {
	if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
		return true
	}
	if strings.HasPrefix(text, "(") && strings.HasSuffix(text, ")") {
		return true
	}
	return false
}

// encodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container. The returned byte slice is suitable for direct inclusion
// in a multipart form upload.
func encodeWAV(pcm []byte, sampleRate, channels int) []byte {
	bps := bitsPerSample
	byteRate := sampleRate * channels * bps / 8
	blockAlign := channels * bps / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], uint16(bps))        // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}
