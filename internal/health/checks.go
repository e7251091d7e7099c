package health

import (
	"context"

	"github.com/MrWong99/voxlate/pkg/provider/tts"
)

// VoiceCatalogue probes the synthesis provider by listing its voice catalogue.
// A provider that cannot enumerate voices cannot synthesize either, so the
// relay is reported not ready.
func VoiceCatalogue(p tts.Provider) Checker {
	return Checker{
		Name: "tts",
		Check: func(ctx context.Context) error {
			_, err := p.ListVoices(ctx)
			return err
		},
	}
}

// Database probes a store with a Ping method, such as the Postgres transcript
// store.
func Database(ping func(ctx context.Context) error) Checker {
	return Checker{
		Name:  "database",
		Check: ping,
	}
}
