package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxlate/pkg/store"
	"github.com/MrWong99/voxlate/pkg/types"
)

// PrefsImpl is the participant configuration backend, one row per participant.
//
// Obtain one via [Store.Prefs] rather than constructing directly.
// All methods are safe for concurrent use.
type PrefsImpl struct {
	pool *pgxpool.Pool
}

const prefsColumns = "participant_id, display_name, input_language, output_language, voice_id, last_updated"

// Get implements [store.Prefs]. A participant without a row gets the default
// configuration inserted and returned, so later All calls list every
// participant the relay has seen.
func (p *PrefsImpl) Get(ctx context.Context, participantID string) (types.ParticipantConfig, error) {
	const q = `
		SELECT ` + prefsColumns + `
		FROM   participant_prefs
		WHERE  participant_id = $1`

	cfg, err := scanConfig(p.pool.QueryRow(ctx, q, participantID))
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return types.ParticipantConfig{}, fmt.Errorf("prefs: get: %w", err)
	}

	// First reference: materialize the default. DO NOTHING keeps a concurrent
	// writer's row; the follow-up read returns whichever won.
	cfg = store.DefaultConfig(participantID)
	cfg.LastUpdated = time.Now()
	const ins = `
		INSERT INTO participant_prefs
		    (participant_id, display_name, input_language, output_language, voice_id, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (participant_id) DO NOTHING`
	if _, err := p.pool.Exec(ctx, ins,
		cfg.ParticipantID, cfg.DisplayName, cfg.InputLanguage, cfg.OutputLanguage, cfg.VoiceID, cfg.LastUpdated,
	); err != nil {
		return types.ParticipantConfig{}, fmt.Errorf("prefs: materialize default: %w", err)
	}

	cfg, err = scanConfig(p.pool.QueryRow(ctx, q, participantID))
	if err != nil {
		return types.ParticipantConfig{}, fmt.Errorf("prefs: get after materialize: %w", err)
	}
	return cfg, nil
}

// Set implements [store.Prefs].
func (p *PrefsImpl) Set(ctx context.Context, cfg types.ParticipantConfig) error {
	const q = `
		INSERT INTO participant_prefs
		    (participant_id, display_name, input_language, output_language, voice_id, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (participant_id) DO UPDATE SET
		    display_name    = EXCLUDED.display_name,
		    input_language  = EXCLUDED.input_language,
		    output_language = EXCLUDED.output_language,
		    voice_id        = EXCLUDED.voice_id,
		    last_updated    = EXCLUDED.last_updated`

	_, err := p.pool.Exec(ctx, q,
		cfg.ParticipantID, cfg.DisplayName, cfg.InputLanguage, cfg.OutputLanguage, cfg.VoiceID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("prefs: set: %w", err)
	}
	return nil
}

// Delete implements [store.Prefs]. Deleting an unknown participant is not an
// error.
func (p *PrefsImpl) Delete(ctx context.Context, participantID string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM participant_prefs WHERE participant_id = $1`, participantID); err != nil {
		return fmt.Errorf("prefs: delete: %w", err)
	}
	return nil
}

// All implements [store.Prefs].
func (p *PrefsImpl) All(ctx context.Context) ([]types.ParticipantConfig, error) {
	const q = `
		SELECT ` + prefsColumns + `
		FROM   participant_prefs
		ORDER  BY participant_id`

	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("prefs: all: %w", err)
	}
	configs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.ParticipantConfig, error) {
		return scanConfig(row)
	})
	if err != nil {
		return nil, fmt.Errorf("prefs: scan rows: %w", err)
	}
	if configs == nil {
		configs = []types.ParticipantConfig{}
	}
	return configs, nil
}

// scanConfig scans one participant_prefs row.
func scanConfig(row pgx.Row) (types.ParticipantConfig, error) {
	var cfg types.ParticipantConfig
	err := row.Scan(
		&cfg.ParticipantID,
		&cfg.DisplayName,
		&cfg.InputLanguage,
		&cfg.OutputLanguage,
		&cfg.VoiceID,
		&cfg.LastUpdated,
	)
	return cfg, err
}
