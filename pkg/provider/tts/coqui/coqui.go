// Package coqui synthesizes speech through a locally running Coqui TTS
// server. It implements the tts.Provider interface.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts with
//     URL query parameters; the voice catalogue comes from GET /details.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is
//     performed via POST /tts_to_audio/ with a JSON body; the voice catalogue
//     comes from GET /studio_speakers.
//
// Both servers answer one blocking HTTP call per utterance with a WAV file,
// which matches the per-utterance Provider contract directly: the WAV header
// is stripped and the PCM resampled to the 48 kHz stereo playback format.
package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/MrWong99/voxlate/pkg/audio"
	"github.com/MrWong99/voxlate/pkg/fault"
	"github.com/MrWong99/voxlate/pkg/provider/tts"
	"github.com/MrWong99/voxlate/pkg/types"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultTimeout         = 30 * time.Second
	ttsEndpoint            = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"
	apiTTSEndpoint         = "/api/tts"
	detailsEndpoint        = "/details"
)

// APIMode selects which Coqui server API the provider will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	// Voice listing is performed via /studio_speakers.
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode. Voice listing is performed via /details.
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Coqui Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout for calls to the TTS server.
// Defaults to 30 s if not set.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode. Use APIModeStandard (default) for the
// standard Coqui TTS Docker image or APIModeXTTS for the XTTS v2 API server.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithVoices merges entries into the slot → speaker table. Entries override
// existing slots.
func WithVoices(table map[int]string) Option {
	return func(p *Provider) {
		for slot, id := range table {
			p.voices[slot] = id
		}
	}
}

// WithHTTPClient sets the HTTP client used for server calls.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by a locally-running Coqui TTS
// server. It is safe for concurrent use.
type Provider struct {
	serverURL  string
	apiMode    APIMode
	voices     map[int]string
	httpClient *http.Client
}

// New creates a new Coqui Provider that targets the TTS server at serverURL
// (e.g., "http://localhost:5002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		apiMode:   APIModeStandard,
		voices:    make(map[int]string),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// resolveVoice maps a voice slot to a speaker ID. Slot zero selects the
// default slot. An unmapped slot is an error in XTTS mode, which always needs
// a speaker; the standard server falls back to its single built-in speaker.
func (p *Provider) resolveVoice(slot int) (string, error) {
	if slot == 0 {
		slot = types.DefaultVoiceSlot
	}
	id, ok := p.voices[slot]
	if !ok && p.apiMode == APIModeXTTS {
		return "", fmt.Errorf("coqui: no speaker configured for slot %d", slot)
	}
	return id, nil
}

// languageCode converts the request's human-readable language name to the ISO
// code Coqui expects. Unknown names fall through to English.
func languageCode(name string) string {
	if l, ok := types.LanguageByName(name); ok {
		return l.Code
	}
	return "en"
}

// ─── Synthesize ───────────────────────────────────────────────────────────────

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Synthesize renders the text through one blocking server call and returns
// the WAV payload as a 48 kHz stereo clip.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (types.SynthesizedClip, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return types.SynthesizedClip{}, fault.Fatal(errors.New("coqui: text must not be empty"))
	}
	speaker, err := p.resolveVoice(req.VoiceID)
	if err != nil {
		return types.SynthesizedClip{}, fault.Fatal(err)
	}

	var wav []byte
	if p.apiMode == APIModeStandard {
		wav, err = p.synthesizeStandard(ctx, text, speaker, languageCode(req.Language))
	} else {
		wav, err = p.synthesizeXTTS(ctx, text, speaker, languageCode(req.Language))
	}
	if err != nil {
		return types.SynthesizedClip{}, err
	}

	info, err := parseWAV(wav)
	if err != nil {
		return types.SynthesizedClip{}, fault.Transient(err)
	}
	return buildClip(wav[info.DataOffset:], info), nil
}

// synthesizeXTTS performs a single POST /tts_to_audio/ call (XTTS v2 mode).
func (p *Provider) synthesizeXTTS(ctx context.Context, text, speaker, lang string) ([]byte, error) {
	body := ttsRequest{
		Text:       text,
		SpeakerWav: speaker,
		Language:   lang,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fault.Fatal(fmt.Errorf("coqui: marshal tts request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fault.Fatal(fmt.Errorf("coqui: create tts request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	return p.doAudioRequest(ctx, req, ttsEndpoint)
}

// synthesizeStandard performs a single GET /api/tts request (standard server
// mode) using URL query parameters.
func (p *Provider) synthesizeStandard(ctx context.Context, text, speaker, lang string) ([]byte, error) {
	params := url.Values{}
	params.Set("text", text)
	if speaker != "" {
		params.Set("speaker_id", speaker)
	}
	if lang != "" {
		params.Set("language_id", lang)
	}

	reqURL := p.serverURL + apiTTSEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fault.Fatal(fmt.Errorf("coqui: create tts request: %w", err))
	}
	req.Header.Set("Accept", "audio/wav")

	return p.doAudioRequest(ctx, req, apiTTSEndpoint)
}

// doAudioRequest executes one synthesis call and returns the raw WAV bytes.
func (p *Provider) doAudioRequest(ctx context.Context, req *http.Request, endpoint string) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("coqui: %s: %w", endpoint, err)
		}
		return nil, fault.Transient(fmt.Errorf("coqui: %s: %w", endpoint, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fault.FromStatusCode(resp.StatusCode, fmt.Errorf("coqui: %s returned status %d", endpoint, resp.StatusCode))
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Transient(fmt.Errorf("coqui: read WAV response: %w", err))
	}
	return wav, nil
}

// buildClip converts the server's PCM into the 48 kHz stereo clip the
// playback scheduler expects.
func buildClip(pcm []byte, info wavInfo) types.SynthesizedClip {
	if info.Channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	out := audio.ResampleMono16(pcm, info.SampleRate, audio.FormatDiscord.SampleRate)
	out = audio.MonoToStereo(out)
	return types.SynthesizedClip{
		PCM:        out,
		SampleRate: audio.FormatDiscord.SampleRate,
		Channels:   audio.FormatDiscord.Channels,
		Duration:   audio.PCMDuration(out, audio.FormatDiscord),
	}
}

// ─── ListVoices ───────────────────────────────────────────────────────────────

// studioSpeakersResponse is the raw map[name]any returned by
// GET /studio_speakers. Only the keys (voice names) matter, so the values are
// left as json.RawMessage.
type studioSpeakersResponse map[string]json.RawMessage

// detailsResponse is the JSON body returned by GET /details (standard mode).
// Speakers is nil for single-speaker models and non-nil for multi-speaker
// models.
type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// ListVoices retrieves the voice catalogue from the Coqui server.
//
// In APIModeXTTS it calls GET /studio_speakers; in APIModeStandard it calls
// GET /details and returns one entry per speaker for multi-speaker models, or
// a single entry (identified by model name) for single-speaker models.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	if p.apiMode == APIModeStandard {
		return p.listVoicesStandard(ctx)
	}
	return p.listVoicesXTTS(ctx)
}

func (p *Provider) listVoicesXTTS(ctx context.Context) ([]tts.Voice, error) {
	var raw studioSpeakersResponse
	if err := p.doJSONRequest(ctx, studioSpeakersEndpoint, &raw); err != nil {
		return nil, err
	}

	// Sort keys for deterministic output.
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	voices := make([]tts.Voice, 0, len(names))
	for _, name := range names {
		voices = append(voices, tts.Voice{ID: name, Name: name, Category: "studio"})
	}
	return voices, nil
}

func (p *Provider) listVoicesStandard(ctx context.Context) ([]tts.Voice, error) {
	var details detailsResponse
	if err := p.doJSONRequest(ctx, detailsEndpoint, &details); err != nil {
		return nil, err
	}

	// Multi-speaker model: one entry per speaker.
	if len(details.Speakers) > 0 {
		speakers := make([]string, len(details.Speakers))
		copy(speakers, details.Speakers)
		sort.Strings(speakers)

		voices := make([]tts.Voice, 0, len(speakers))
		for _, spk := range speakers {
			voices = append(voices, tts.Voice{ID: spk, Name: spk, Category: "speaker"})
		}
		return voices, nil
	}

	// Single-speaker model: one entry identified by the model name.
	name := details.ModelName
	if name == "" {
		name = "default"
	}
	return []tts.Voice{{ID: name, Name: name, Category: "single-speaker"}}, nil
}

// doJSONRequest executes a GET against endpoint and decodes the JSON response
// into out.
func (p *Provider) doJSONRequest(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+endpoint, nil)
	if err != nil {
		return fault.Fatal(fmt.Errorf("coqui: create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fault.Transient(fmt.Errorf("coqui: GET %s: %w", endpoint, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fault.FromStatusCode(resp.StatusCode, fmt.Errorf("coqui: GET %s returned status %d", endpoint, resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fault.Transient(fmt.Errorf("coqui: decode %s response: %w", endpoint, err))
	}
	return nil
}

// ─── WAV parsing ──────────────────────────────────────────────────────────────

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	DataOffset int // byte offset of the first PCM sample
	SampleRate int // samples per second (e.g., 22050, 44100, 48000)
	Channels   int // 1 = mono, 2 = stereo
}

// parseWAV scans the RIFF/WAVE container in wav and returns the data offset
// and audio format from the "fmt " sub-chunk. This is more robust than
// hardcoding a fixed 44-byte offset because the fmt chunk size may vary.
//
// Returns an error if wav is not a valid RIFF/WAVE container or if the fmt
// or data chunk cannot be located.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("coqui: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("coqui: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("coqui: WAV response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				// fmt should appear before data; assume the common model rate.
				info.SampleRate = 22050
				info.Channels = 1
			}
			return info, nil
		}

		// Advance past this chunk (chunks are word-aligned: pad by 1 if odd size).
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("coqui: WAV response missing data chunk")
}
