package config_test

import (
	"testing"

	"github.com/MrWong99/voxlate/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:   config.ServerConfig{LogLevel: config.LogInfo},
		Glossary: []string{"Voxlate", "Kubernetes"},
		Voices:   map[int]string{1: "v1"},
		Pipeline: config.PipelineConfig{SilenceMs: 500},
	}
	d := config.Diff(cfg, cfg)
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.Empty() {
		t.Error("expected Empty()=false")
	}
}

func TestDiff_GlossaryChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Glossary: []string{"Voxlate"}}
	new := &config.Config{Glossary: []string{"Voxlate", "Kubernetes"}}

	d := config.Diff(old, new)
	if !d.GlossaryChanged {
		t.Error("expected GlossaryChanged=true")
	}
	if d.PipelineChanged || d.PlaybackChanged || d.VoicesChanged {
		t.Errorf("unrelated fields flagged: %+v", d)
	}
}

func TestDiff_PipelineChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Pipeline: config.PipelineConfig{SilenceMs: 500}}
	new := &config.Config{Pipeline: config.PipelineConfig{SilenceMs: 800}}

	d := config.Diff(old, new)
	if !d.PipelineChanged {
		t.Error("expected PipelineChanged=true")
	}
}

func TestDiff_PlaybackChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Playback: config.PlaybackConfig{GapMs: 200}}
	new := &config.Config{Playback: config.PlaybackConfig{GapMs: 100}}

	d := config.Diff(old, new)
	if !d.PlaybackChanged {
		t.Error("expected PlaybackChanged=true")
	}
}

func TestDiff_VoicesChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Voices: map[int]string{1: "v1", 2: "v2"}}
	new := &config.Config{Voices: map[int]string{1: "v1", 2: "v3"}}

	d := config.Diff(old, new)
	if !d.VoicesChanged {
		t.Error("expected VoicesChanged=true")
	}
}

func TestDiff_ProviderChangeIsNotHotReloadable(t *testing.T) {
	t.Parallel()
	old := &config.Config{Providers: config.ProvidersConfig{Translate: config.ProviderEntry{Name: "mistral"}}}
	new := &config.Config{Providers: config.ProvidersConfig{Translate: config.ProviderEntry{Name: "openai"}}}

	d := config.Diff(old, new)
	if !d.Empty() {
		t.Errorf("provider changes must not appear in the diff, got %+v", d)
	}
}
