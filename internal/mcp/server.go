// Package mcp exposes Voxlate's operational surface as a Model Context
// Protocol server. External assistants and dashboards connect via the
// Streamable HTTP transport mounted on the ops listener and call tools to
// inspect the active session, read or change participant settings, and pull
// recent transcripts.
//
// The tools mirror what the slash commands offer, minus the pieces that only
// make sense inside Discord (voice-state lookups, ephemeral replies).
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/voxlate/internal/app"
	"github.com/MrWong99/voxlate/pkg/store"
	"github.com/MrWong99/voxlate/pkg/types"
)

// serverName and serverVersion identify this MCP server to clients.
const (
	serverName    = "voxlate-ops"
	serverVersion = "1.0.0"
)

// defaultTranscriptLimit bounds recent_transcripts when the caller does not
// pass a limit.
const defaultTranscriptLimit = 20

// Config assembles the ops server's dependencies.
type Config struct {
	// Sessions is the session manager the tools inspect. Required.
	Sessions *app.SessionManager

	// Prefs is the participant preference store. Required.
	Prefs store.Prefs

	// Archive supplies recent transcripts. Optional; without it
	// recent_transcripts reports an error.
	Archive store.Archive
}

// Server is the Voxlate ops MCP server. Create with [New] and mount
// [Server.Handler] on the ops HTTP listener.
type Server struct {
	cfg Config
	srv *mcpsdk.Server
}

// New creates the ops server and registers its tools.
func New(cfg Config) *Server {
	s := &Server{
		cfg: cfg,
		srv: mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: serverVersion}, nil),
	}

	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "list_sessions",
		Description: "List the active voice session with its statistics. At most one session is active at a time.",
	}, s.listSessions)

	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "get_participant_config",
		Description: "Read a participant's translation settings (languages and voice slot).",
	}, s.getParticipantConfig)

	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "set_participant_language",
		Description: "Set a participant's input (spoken) or output (target) language. Takes effect from their next utterance.",
	}, s.setParticipantLanguage)

	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "list_languages",
		Description: "List the languages Voxlate can translate between.",
	}, s.listLanguages)

	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "recent_transcripts",
		Description: "Return the newest transcript pairs of the active session, oldest first.",
	}, s.recentTranscripts)

	return s
}

// Handler returns the Streamable HTTP handler for this server, ready to mount
// on the ops mux.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s.srv
	}, nil)
}

// ─── list_sessions ────────────────────────────────────────────────────────────

// SessionSummary describes the active session for tool output.
type SessionSummary struct {
	SessionID           string    `json:"session_id"`
	ChannelID           string    `json:"channel_id"`
	StartedAt           time.Time `json:"started_at"`
	StartedBy           string    `json:"started_by"`
	Participants        int       `json:"participants"`
	UtterancesPublished uint64    `json:"utterances_published"`
	UtterancesDropped   uint64    `json:"utterances_dropped"`
	UtterancesFailed    uint64    `json:"utterances_failed"`
	QueueDepth          int       `json:"queue_depth"`
}

type listSessionsOutput struct {
	Sessions []SessionSummary `json:"sessions"`
}

func (s *Server) listSessions(_ context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, listSessionsOutput, error) {
	out := listSessionsOutput{Sessions: []SessionSummary{}}

	stats, ok := s.cfg.Sessions.Stats()
	if !ok {
		return nil, out, nil
	}
	info := s.cfg.Sessions.Info()
	out.Sessions = append(out.Sessions, SessionSummary{
		SessionID:           stats.SessionID,
		ChannelID:           info.ChannelID,
		StartedAt:           info.StartedAt,
		StartedBy:           info.StartedBy,
		Participants:        stats.Participants,
		UtterancesPublished: stats.UtterancesPublished,
		UtterancesDropped:   stats.UtterancesDropped,
		UtterancesFailed:    stats.UtterancesFailed,
		QueueDepth:          stats.QueueDepth,
	})
	return nil, out, nil
}

// ─── get_participant_config ───────────────────────────────────────────────────

type participantInput struct {
	ParticipantID string `json:"participant_id" jsonschema:"the Discord user ID of the participant"`
}

// ParticipantSettings is the tool-facing view of a participant configuration.
type ParticipantSettings struct {
	ParticipantID  string    `json:"participant_id"`
	DisplayName    string    `json:"display_name,omitempty"`
	InputLanguage  string    `json:"input_language"`
	OutputLanguage string    `json:"output_language"`
	VoiceSlot      int       `json:"voice_slot"`
	LastUpdated    time.Time `json:"last_updated,omitzero"`
}

func settingsFromConfig(cfg types.ParticipantConfig) ParticipantSettings {
	return ParticipantSettings{
		ParticipantID:  cfg.ParticipantID,
		DisplayName:    cfg.DisplayName,
		InputLanguage:  cfg.InputLanguage,
		OutputLanguage: cfg.OutputLanguage,
		VoiceSlot:      cfg.VoiceID,
		LastUpdated:    cfg.LastUpdated,
	}
}

func (s *Server) getParticipantConfig(ctx context.Context, _ *mcpsdk.CallToolRequest, in participantInput) (*mcpsdk.CallToolResult, ParticipantSettings, error) {
	if in.ParticipantID == "" {
		return nil, ParticipantSettings{}, fmt.Errorf("participant_id is required")
	}
	cfg, err := s.cfg.Prefs.Get(ctx, in.ParticipantID)
	if err != nil {
		return nil, ParticipantSettings{}, fmt.Errorf("load participant %s: %w", in.ParticipantID, err)
	}
	return nil, settingsFromConfig(cfg), nil
}

// ─── set_participant_language ─────────────────────────────────────────────────

type setLanguageInput struct {
	ParticipantID string `json:"participant_id" jsonschema:"the Discord user ID of the participant"`
	Direction     string `json:"direction" jsonschema:"which side to change: input (spoken) or output (target)"`
	Language      string `json:"language" jsonschema:"language name, or auto for detected input"`
}

func (s *Server) setParticipantLanguage(ctx context.Context, _ *mcpsdk.CallToolRequest, in setLanguageInput) (*mcpsdk.CallToolResult, ParticipantSettings, error) {
	if in.ParticipantID == "" {
		return nil, ParticipantSettings{}, fmt.Errorf("participant_id is required")
	}

	direction := strings.ToLower(strings.TrimSpace(in.Direction))
	if direction != "input" && direction != "output" {
		return nil, ParticipantSettings{}, fmt.Errorf("direction must be %q or %q, got %q", "input", "output", in.Direction)
	}

	var resolved string
	if direction == "input" && strings.EqualFold(strings.TrimSpace(in.Language), types.AutoDetect) {
		resolved = types.AutoDetect
	} else {
		lang, ok := types.LanguageByName(in.Language)
		if !ok {
			return nil, ParticipantSettings{}, fmt.Errorf("unsupported language %q; call list_languages for the supported set", in.Language)
		}
		resolved = lang.Name
	}

	cfg, err := s.cfg.Prefs.Get(ctx, in.ParticipantID)
	if err != nil {
		return nil, ParticipantSettings{}, fmt.Errorf("load participant %s: %w", in.ParticipantID, err)
	}
	if direction == "input" {
		cfg.InputLanguage = resolved
	} else {
		cfg.OutputLanguage = resolved
	}
	if err := s.cfg.Prefs.Set(ctx, cfg); err != nil {
		return nil, ParticipantSettings{}, fmt.Errorf("save participant %s: %w", in.ParticipantID, err)
	}
	return nil, settingsFromConfig(cfg), nil
}

// ─── list_languages ───────────────────────────────────────────────────────────

// LanguageEntry pairs a language name with its ISO code for tool output.
type LanguageEntry struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

type listLanguagesOutput struct {
	Languages []LanguageEntry `json:"languages"`

	// AutoDetect is the sentinel accepted as an input language.
	AutoDetect string `json:"auto_detect"`
}

func (s *Server) listLanguages(context.Context, *mcpsdk.CallToolRequest, struct{}) (*mcpsdk.CallToolResult, listLanguagesOutput, error) {
	langs := types.Languages()
	out := listLanguagesOutput{
		Languages:  make([]LanguageEntry, 0, len(langs)),
		AutoDetect: types.AutoDetect,
	}
	for _, l := range langs {
		out.Languages = append(out.Languages, LanguageEntry{Name: l.Name, Code: l.Code})
	}
	return nil, out, nil
}

// ─── recent_transcripts ───────────────────────────────────────────────────────

type recentTranscriptsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of pairs to return, default 20"`
}

// TranscriptEntry is one published transcript pair for tool output.
type TranscriptEntry struct {
	ParticipantID  string `json:"participant_id"`
	Seq            uint64 `json:"seq"`
	OriginalText   string `json:"original_text"`
	SourceLanguage string `json:"source_language"`
	TranslatedText string `json:"translated_text"`
	TargetLanguage string `json:"target_language"`
}

type recentTranscriptsOutput struct {
	SessionID   string            `json:"session_id"`
	Transcripts []TranscriptEntry `json:"transcripts"`
}

func (s *Server) recentTranscripts(ctx context.Context, _ *mcpsdk.CallToolRequest, in recentTranscriptsInput) (*mcpsdk.CallToolResult, recentTranscriptsOutput, error) {
	if s.cfg.Archive == nil {
		return nil, recentTranscriptsOutput{}, fmt.Errorf("transcript archive is not configured")
	}
	info := s.cfg.Sessions.Info()
	if info.SessionID == "" {
		return nil, recentTranscriptsOutput{}, fmt.Errorf("no session is active")
	}

	limit := in.Limit
	if limit <= 0 {
		limit = defaultTranscriptLimit
	}
	pairs, err := s.cfg.Archive.Recent(ctx, info.SessionID, limit)
	if err != nil {
		return nil, recentTranscriptsOutput{}, fmt.Errorf("read archive: %w", err)
	}

	out := recentTranscriptsOutput{
		SessionID:   info.SessionID,
		Transcripts: make([]TranscriptEntry, 0, len(pairs)),
	}
	for _, p := range pairs {
		out.Transcripts = append(out.Transcripts, TranscriptEntry{
			ParticipantID:  p.ParticipantID,
			Seq:            p.Seq,
			OriginalText:   p.OriginalText,
			SourceLanguage: p.SourceLanguage,
			TranslatedText: p.TranslatedText,
			TargetLanguage: p.TargetLanguage,
		})
	}
	return nil, out, nil
}
