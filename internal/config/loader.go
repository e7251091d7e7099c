package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/MrWong99/voxlate/pkg/types"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":        {"elevenlabs", "deepgram", "whisper", "whisper-native"},
	"translate":  {"mistral", "openai", "anthropic", "gemini", "ollama", "groq"},
	"tts":        {"elevenlabs", "coqui"},
	"embeddings": {"openai", "ollama"},
	"vad":        {"energy"},
	"audio":      {"discord"},
}

// envOverrides maps environment variable names to the config fields they
// override. Environment values always win over file values, so secrets can
// stay out of the config file entirely.
var envOverrides = map[string]func(*Config, string){
	"VOXLATE_DISCORD_TOKEN":      func(c *Config, v string) { c.Discord.Token = v },
	"VOXLATE_STT_API_KEY":        func(c *Config, v string) { c.Providers.STT.APIKey = v },
	"VOXLATE_TRANSLATE_API_KEY":  func(c *Config, v string) { c.Providers.Translate.APIKey = v },
	"VOXLATE_TTS_API_KEY":        func(c *Config, v string) { c.Providers.TTS.APIKey = v },
	"VOXLATE_EMBEDDINGS_API_KEY": func(c *Config, v string) { c.Providers.Embeddings.APIKey = v },
	"VOXLATE_POSTGRES_DSN":       func(c *Config, v string) { c.Store.PostgresDSN = v },
	"VOXLATE_LISTEN_ADDR":        func(c *Config, v string) { c.Server.ListenAddr = v },
	"VOXLATE_LOG_LEVEL":          func(c *Config, v string) { c.Server.LogLevel = LogLevel(v) },
}

// Load reads the YAML configuration file at path, applies VOXLATE_* environment
// overrides, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides,
// and validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overwrites cfg fields from VOXLATE_* environment variables.
// Only set, non-empty variables override.
func ApplyEnv(cfg *Config) {
	for name, apply := range envOverrides {
		if v := os.Getenv(name); v != "" {
			apply(cfg, v)
		}
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Discord
	if cfg.Discord.Token == "" {
		errs = append(errs, errors.New("discord.token is required (or set VOXLATE_DISCORD_TOKEN)"))
	}
	if cfg.Discord.TextChannelID == "" {
		errs = append(errs, errors.New("discord.text_channel_id is required"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("translate", cfg.Providers.Translate.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// Fallback chains exist for the three pipeline stages only.
	for _, kind := range []struct {
		name  string
		entry ProviderEntry
	}{
		{"stt", cfg.Providers.STT},
		{"translate", cfg.Providers.Translate},
		{"tts", cfg.Providers.TTS},
	} {
		for _, fb := range kind.entry.Fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks entries need a name", kind.name))
				continue
			}
			validateProviderName(kind.name, fb.Name)
			if len(fb.Fallbacks) > 0 {
				errs = append(errs, fmt.Errorf("providers.%s fallback %q must not nest further fallbacks", kind.name, fb.Name))
			}
		}
	}
	if len(cfg.Providers.Embeddings.Fallbacks) > 0 {
		errs = append(errs, errors.New("providers.embeddings does not support fallbacks"))
	}
	if len(cfg.Providers.VAD.Fallbacks) > 0 {
		errs = append(errs, errors.New("providers.vad does not support fallbacks"))
	}

	// The cascade needs at least transcription and translation to produce
	// transcript pairs; synthesis is required for playback.
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt is required"))
	}
	if cfg.Providers.Translate.Name == "" {
		errs = append(errs, errors.New("providers.translate is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts is required"))
	}

	// Pipeline
	if cfg.Pipeline.SilenceMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.silence_ms %d must not be negative", cfg.Pipeline.SilenceMs))
	}
	if cfg.Pipeline.MinUtteranceMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.min_utterance_ms %d must not be negative", cfg.Pipeline.MinUtteranceMs))
	}
	if cfg.Pipeline.MaxUtteranceMs < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_utterance_ms %d must not be negative", cfg.Pipeline.MaxUtteranceMs))
	}
	if cfg.Pipeline.MaxUtteranceMs > 0 && cfg.Pipeline.MinUtteranceMs > cfg.Pipeline.MaxUtteranceMs {
		errs = append(errs, fmt.Errorf("pipeline.min_utterance_ms %d exceeds pipeline.max_utterance_ms %d", cfg.Pipeline.MinUtteranceMs, cfg.Pipeline.MaxUtteranceMs))
	}
	if cfg.Pipeline.DefaultLanguage != "" {
		if _, ok := types.LanguageByName(cfg.Pipeline.DefaultLanguage); !ok {
			errs = append(errs, fmt.Errorf("pipeline.default_language %q is not a supported language", cfg.Pipeline.DefaultLanguage))
		}
	}

	// Voice slots
	for slot := range cfg.Voices {
		if slot < 1 || slot > 20 {
			errs = append(errs, fmt.Errorf("voices slot %d is out of range [1, 20]", slot))
		}
	}

	// Store
	if cfg.Store.CacheMaxDistance < 0 || cfg.Store.CacheMaxDistance > 2 {
		errs = append(errs, fmt.Errorf("store.cache_max_distance %.2f is out of range [0, 2]", cfg.Store.CacheMaxDistance))
	}
	if cfg.Store.PostgresDSN != "" && cfg.Providers.Embeddings.Name == "" {
		slog.Warn("store.postgres_dsn is set but providers.embeddings is not; translation cache falls back to exact-match lookups")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
