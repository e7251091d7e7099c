package config

import (
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider, Discord,
// and store changes need a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// GlossaryChanged is true when the correction term list differs.
	GlossaryChanged bool

	// PipelineChanged is true when segmentation or stage tuning differs.
	// Applies to utterances created after the reload.
	PipelineChanged bool

	// PlaybackChanged is true when the inter-clip gap differs.
	PlaybackChanged bool

	// VoicesChanged is true when the voice slot table differs.
	VoicesChanged bool
}

// Empty reports whether the diff contains no hot-reloadable change.
func (d ConfigDiff) Empty() bool {
	return d == ConfigDiff{}
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Order-sensitive on purpose; a reorder re-applies the terms, which is
	// harmless.
	if !slices.Equal(old.Glossary, new.Glossary) {
		d.GlossaryChanged = true
	}

	if old.Pipeline != new.Pipeline {
		d.PipelineChanged = true
	}

	if old.Playback != new.Playback {
		d.PlaybackChanged = true
	}

	if !maps.Equal(old.Voices, new.Voices) {
		d.VoicesChanged = true
	}

	return d
}
