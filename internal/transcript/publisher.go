package transcript

import (
	"context"
	"fmt"

	"github.com/MrWong99/voxlate/pkg/store"
	"github.com/MrWong99/voxlate/pkg/types"
)

// SendFunc delivers one formatted message to a text channel. The Discord bot
// supplies a closure over its session; tests supply a recorder.
type SendFunc func(channelID, content string) error

// Publisher posts transcript pairs to the configured text channel, one message
// per utterance:
//
//	**<display name>**: <original text>
//	**Translated**: <translated text>
//
// Display names come from the preference store; a participant the platform has
// not named yet falls back to their ID.
type Publisher struct {
	channelID string
	send      SendFunc
	prefs     store.Prefs
}

// NewPublisher returns a Publisher posting to channelID via send. prefs may be
// nil, in which case every speaker is labelled by participant ID.
func NewPublisher(channelID string, send SendFunc, prefs store.Prefs) *Publisher {
	return &Publisher{channelID: channelID, send: send, prefs: prefs}
}

// Publish formats and sends pair. Called in per-participant sequence order by
// the relay.
func (p *Publisher) Publish(ctx context.Context, pair types.TranscriptPair) error {
	name := pair.ParticipantID
	if p.prefs != nil {
		if cfg, err := p.prefs.Get(ctx, pair.ParticipantID); err == nil && cfg.DisplayName != "" {
			name = cfg.DisplayName
		}
	}

	content := fmt.Sprintf("**%s**: %s\n**Translated**: %s", name, pair.OriginalText, pair.TranslatedText)
	if err := p.send(p.channelID, content); err != nil {
		return fmt.Errorf("transcript: send to channel %s: %w", p.channelID, err)
	}
	return nil
}
