// Package elevenlabs synthesizes speech through the ElevenLabs streaming
// WebSocket API. It implements the tts.Provider interface.
//
// Each Synthesize call opens one stream-input connection, sends the whole
// utterance, flushes, and collects the audio into a single clip. The stream
// protocol still pays off for single utterances: audio generation starts
// while later chunks are in flight, which keeps the voice-to-voice latency
// below what the blocking REST endpoint delivers.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxlate/pkg/audio"
	"github.com/MrWong99/voxlate/pkg/fault"
	"github.com/MrWong99/voxlate/pkg/provider/tts"
	"github.com/MrWong99/voxlate/pkg/types"
)

const (
	defaultStreamBase = "wss://api.elevenlabs.io"
	defaultAPIBase    = "https://api.elevenlabs.io"
	streamPathFmt     = "/v1/text-to-speech/%s/stream-input?model_id=%s"
	voicesPath        = "/v1/voices"

	defaultModel     = "eleven_monolingual_v1"
	defaultOutputFmt = "pcm_16000"
)

// DefaultVoice fills voice slot 1 unless the configured voice table overrides
// it.
const DefaultVoice = "9BWtsMINqrJLrRacOk9x"

// Voice settings applied to every stream.
const (
	stability       = 0.5
	similarityBoost = 0.5
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_multilingual_v2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format. Only raw PCM formats
// ("pcm_16000", "pcm_24000", ...) are supported.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithVoices merges entries into the slot → voice table. Entries override the
// defaults slot by slot.
func WithVoices(table map[int]string) Option {
	return func(p *Provider) {
		for slot, id := range table {
			p.voices[slot] = id
		}
	}
}

// WithStreamBaseURL overrides the WebSocket endpoint base, e.g. for tests.
func WithStreamBaseURL(u string) Option {
	return func(p *Provider) {
		p.streamBase = strings.TrimRight(u, "/")
	}
}

// WithAPIBaseURL overrides the REST endpoint base, e.g. for tests.
func WithAPIBaseURL(u string) Option {
	return func(p *Provider) {
		p.apiBase = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets the HTTP client used for REST calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	sampleRate   int
	streamBase   string
	apiBase      string
	voices       map[int]string
	httpClient   *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		streamBase:   defaultStreamBase,
		apiBase:      defaultAPIBase,
		voices:       map[int]string{types.DefaultVoiceSlot: DefaultVoice},
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}

	rate, err := outputRate(p.outputFormat)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", err)
	}
	p.sampleRate = rate
	return p, nil
}

// outputRate extracts the sample rate from a pcm_<rate> output format.
func outputRate(format string) (int, error) {
	suffix, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("unsupported output format %q (want pcm_<rate>)", format)
	}
	rate, err := strconv.Atoi(suffix)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("unsupported output format %q (want pcm_<rate>)", format)
	}
	return rate, nil
}

// resolveVoice maps a voice slot to a provider voice ID. Slot zero selects
// the default slot.
func (p *Provider) resolveVoice(slot int) (string, error) {
	if slot == 0 {
		slot = types.DefaultVoiceSlot
	}
	id, ok := p.voices[slot]
	if !ok {
		return "", fmt.Errorf("elevenlabs: no voice configured for slot %d", slot)
	}
	return id, nil
}

// ─── WebSocket message types ──────────────────────────────────────────────────

// textMessage is the JSON payload sent to ElevenLabs for a text fragment.
// An empty Text is the flush command.
type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// boiMessage is the initial "begin of input" handshake carrying the API key.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
	OutputFormat  string         `json:"output_format,omitempty"`
}

// audioResponse is a JSON message received from ElevenLabs over the WebSocket.
type audioResponse struct {
	Audio   string `json:"audio"` // base64-encoded PCM
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
}

// ─── Synthesize ───────────────────────────────────────────────────────────────

// Synthesize renders the text through one stream-input connection and returns
// the collected audio as a 48 kHz stereo clip.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (types.SynthesizedClip, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return types.SynthesizedClip{}, fault.Fatal(errors.New("elevenlabs: text must not be empty"))
	}
	voice, err := p.resolveVoice(req.VoiceID)
	if err != nil {
		return types.SynthesizedClip{}, fault.Fatal(err)
	}

	wsURL := p.streamBase + fmt.Sprintf(streamPathFmt, voice, p.model)
	conn, resp, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return types.SynthesizedClip{}, fmt.Errorf("elevenlabs: dial: %w", err)
		case resp != nil:
			return types.SynthesizedClip{}, fault.FromStatusCode(resp.StatusCode, fmt.Errorf("elevenlabs: dial: %w", err))
		default:
			return types.SynthesizedClip{}, fault.Transient(fmt.Errorf("elevenlabs: dial: %w", err))
		}
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// One utterance per connection: handshake, the utterance, flush. The
	// stream protocol wants every text chunk to end with a space.
	messages := []any{
		boiMessage{
			Text:          " ",
			VoiceSettings: &voiceSettings{Stability: stability, SimilarityBoost: similarityBoost},
			XiAPIKey:      p.apiKey,
			OutputFormat:  p.outputFormat,
		},
		textMessage{Text: text + " "},
		textMessage{},
	}
	for _, msg := range messages {
		data, err := json.Marshal(msg)
		if err != nil {
			return types.SynthesizedClip{}, fault.Fatal(fmt.Errorf("elevenlabs: marshal stream message: %w", err))
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			if ctx.Err() != nil {
				return types.SynthesizedClip{}, fmt.Errorf("elevenlabs: send stream message: %w", err)
			}
			return types.SynthesizedClip{}, fault.Transient(fmt.Errorf("elevenlabs: send stream message: %w", err))
		}
	}

	pcm, err := collectAudio(ctx, conn)
	if err != nil {
		return types.SynthesizedClip{}, err
	}
	return p.buildClip(pcm), nil
}

// collectAudio drains audio messages until the server reports the final chunk
// or closes the stream.
func collectAudio(ctx context.Context, conn *websocket.Conn) ([]byte, error) {
	var pcm []byte
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Some responses skip isFinal and just close after the last
			// chunk; a normal closure with audio in hand is success.
			if len(pcm) > 0 && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return pcm, nil
			}
			if ctx.Err() != nil {
				return nil, fmt.Errorf("elevenlabs: read stream: %w", err)
			}
			return nil, fault.Transient(fmt.Errorf("elevenlabs: read stream: %w", err))
		}

		var msg audioResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return nil, fault.Transient(fmt.Errorf("elevenlabs: decode audio chunk: %w", err))
			}
			pcm = append(pcm, chunk...)
		}
		if msg.IsFinal {
			if len(pcm) == 0 {
				return nil, fault.Transient(errors.New("elevenlabs: stream finished without audio"))
			}
			return pcm, nil
		}
	}
}

// buildClip converts provider PCM (mono at the configured output rate) into
// the 48 kHz stereo clip the playback scheduler expects.
func (p *Provider) buildClip(pcm []byte) types.SynthesizedClip {
	out := audio.ResampleMono16(pcm, p.sampleRate, audio.FormatDiscord.SampleRate)
	out = audio.MonoToStereo(out)
	return types.SynthesizedClip{
		PCM:        out,
		SampleRate: audio.FormatDiscord.SampleRate,
		Channels:   audio.FormatDiscord.Channels,
		Duration:   audio.PCMDuration(out, audio.FormatDiscord),
	}
}

// ─── ListVoices ───────────────────────────────────────────────────────────────

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []catalogVoice `json:"voices"`
}

// catalogVoice is a single voice entry from the ElevenLabs API.
type catalogVoice struct {
	VoiceID  string `json:"voice_id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// ListVoices returns all voices available for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+voicesPath, nil)
	if err != nil {
		return nil, fault.Fatal(fmt.Errorf("elevenlabs: list voices: %w", err))
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fault.Transient(fmt.Errorf("elevenlabs: list voices: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fault.FromStatusCode(resp.StatusCode, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode))
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fault.Transient(fmt.Errorf("elevenlabs: list voices decode: %w", err))
	}

	voices := make([]tts.Voice, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		voices = append(voices, tts.Voice{ID: v.VoiceID, Name: v.Name, Category: v.Category})
	}
	return voices, nil
}
