// Package elevenlabs provides an ElevenLabs-backed STT provider using the
// ElevenLabs Scribe speech-to-text API. It implements the stt.Provider interface.
package elevenlabs

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

	"github.com/MrWong99/voxlate/pkg/fault"
	"github.com/MrWong99/voxlate/pkg/provider/stt"
	"github.com/MrWong99/voxlate/pkg/types"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	sttPath        = "/v1/speech-to-text"
	defaultModel   = "scribe_v1"
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs transcription model ID (e.g., "scribe_v1").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the API base URL. Used by tests.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client (e.g., with a request timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by the ElevenLabs Scribe API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// transcriptionResponse is the JSON structure returned by the Scribe endpoint.
type transcriptionResponse struct {
	Text                string  `json:"text"`
	LanguageCode        string  `json:"language_code"`
	LanguageProbability float64 `json:"language_probability"`
}

// Transcribe sends one utterance to the Scribe endpoint as a WAV file and
// returns the recognized text. A language hint is only forwarded when the
// request names a concrete language; auto-detect requests omit it.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if len(req.PCM) == 0 {
		return stt.Result{}, fmt.Errorf("elevenlabs: empty utterance: %w", fault.ErrNoSpeech)
	}

	body, contentType, err := buildMultipart(req, p.model)
	if err != nil {
		return stt.Result{}, fault.Fatal(fmt.Errorf("elevenlabs: build request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+sttPath, body)
	if err != nil {
		return stt.Result{}, fault.Fatal(fmt.Errorf("elevenlabs: build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("xi-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return stt.Result{}, fault.Transient(fmt.Errorf("elevenlabs: transcribe: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return stt.Result{}, fault.FromStatusCode(resp.StatusCode,
			fmt.Errorf("elevenlabs: transcribe: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return stt.Result{}, fault.Transient(fmt.Errorf("elevenlabs: decode response: %w", err))
	}

	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return stt.Result{}, fmt.Errorf("elevenlabs: no speech recognized: %w", fault.ErrNoSpeech)
	}

	return stt.Result{Text: text, Language: tr.LanguageCode}, nil
}

// buildMultipart assembles the multipart/form-data body for a Scribe request:
// the utterance wrapped as a WAV file plus the model and optional language hint.
func buildMultipart(req stt.Request, model string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(wavBytes(req.PCM, req.SampleRate, 1)); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("model_id", model); err != nil {
		return nil, "", err
	}
	if req.Language != "" && req.Language != types.AutoDetect {
		if err := w.WriteField("language_code", req.Language); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// wavBytes wraps raw little-endian 16-bit PCM in a minimal RIFF/WAVE container.
func wavBytes(pcm []byte, sampleRate, channels int) []byte {
	const (
		bitsPerSample = 16
		headerSize    = 44
	)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	buf := make([]byte, 0, headerSize+len(pcm))
	out := bytes.NewBuffer(buf)

	out.WriteString("RIFF")
	binary.Write(out, binary.LittleEndian, uint32(36+len(pcm)))
	out.WriteString("WAVE")

	out.WriteString("fmt ")
	binary.Write(out, binary.LittleEndian, uint32(16))
	binary.Write(out, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(out, binary.LittleEndian, uint16(channels))
	binary.Write(out, binary.LittleEndian, uint32(sampleRate))
	binary.Write(out, binary.LittleEndian, uint32(byteRate))
	binary.Write(out, binary.LittleEndian, uint16(blockAlign))
	binary.Write(out, binary.LittleEndian, uint16(bitsPerSample))

	out.WriteString("data")
	binary.Write(out, binary.LittleEndian, uint32(len(pcm)))
	out.Write(pcm)

	return out.Bytes()
}
