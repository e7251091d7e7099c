// Package deepgram provides a Deepgram-backed STT provider using the
// pre-recorded listen API. It implements the stt.Provider interface.
//
// Each utterance is submitted as one raw PCM request; Deepgram's streaming
// API is unnecessary here because utterance boundaries are already decided
// by the audio segmenter.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/MrWong99/voxlate/pkg/fault"
	"github.com/MrWong99/voxlate/pkg/provider/stt"
	"github.com/MrWong99/voxlate/pkg/types"
)

const (
	defaultBaseURL = "https://api.deepgram.com"
	listenPath     = "/v1/listen"
	defaultModel   = "nova-3"
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
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

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by the Deepgram pre-recorded API.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
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

// Transcribe submits one utterance of raw linear16 PCM to the listen endpoint.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (stt.Result, error) {
	if len(req.PCM) == 0 {
		return stt.Result{}, fmt.Errorf("deepgram: empty utterance: %w", fault.ErrNoSpeech)
	}

	endpoint, err := p.buildURL(req)
	if err != nil {
		return stt.Result{}, fault.Fatal(fmt.Errorf("deepgram: build URL: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(req.PCM))
	if err != nil {
		return stt.Result{}, fault.Fatal(fmt.Errorf("deepgram: build request: %w", err))
	}
	httpReq.Header.Set("Authorization", "Token "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return stt.Result{}, fault.Transient(fmt.Errorf("deepgram: transcribe: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return stt.Result{}, fault.FromStatusCode(resp.StatusCode,
			fmt.Errorf("deepgram: transcribe: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return stt.Result{}, fault.Transient(fmt.Errorf("deepgram: read response: %w", err))
	}

	res, ok := parseResponse(data)
	if !ok {
		return stt.Result{}, fmt.Errorf("deepgram: no speech recognized: %w", fault.ErrNoSpeech)
	}
	return res, nil
}

// buildURL constructs the listen endpoint URL for the given request.
func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.baseURL + listenPath)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(req.SampleRate))
	q.Set("channels", "1")
	if req.Language == "" || req.Language == types.AutoDetect {
		q.Set("detect_language", "true")
	} else {
		q.Set("language", req.Language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// listenResponse is the JSON structure returned by the pre-recorded listen API.
type listenResponse struct {
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// parseResponse extracts the first alternative of the first channel.
// Returns false when the response carries no usable transcript.
func parseResponse(data []byte) (stt.Result, bool) {
	var resp listenResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Result{}, false
	}
	if len(resp.Results.Channels) == 0 {
		return stt.Result{}, false
	}
	ch := resp.Results.Channels[0]
	if len(ch.Alternatives) == 0 {
		return stt.Result{}, false
	}
	text := strings.TrimSpace(ch.Alternatives[0].Transcript)
	if text == "" {
		return stt.Result{}, false
	}
	return stt.Result{Text: text, Language: ch.DetectedLanguage}, true
}
