package postgres

import (
	"context"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxlate/pkg/types"
)

// ArchiveImpl is the transcript log backend, an append-only table keyed by
// session.
//
// Obtain one via [Store.Archive] rather than constructing directly.
// All methods are safe for concurrent use.
type ArchiveImpl struct {
	pool *pgxpool.Pool
}

// Append implements [store.Archive].
func (a *ArchiveImpl) Append(ctx context.Context, sessionID string, pair types.TranscriptPair) error {
	const q = `
		INSERT INTO transcript_archive
		    (session_id, participant_id, seq, original_text, source_language, translated_text, target_language)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := a.pool.Exec(ctx, q,
		sessionID,
		pair.ParticipantID,
		int64(pair.Seq),
		pair.OriginalText,
		pair.SourceLanguage,
		pair.TranslatedText,
		pair.TargetLanguage,
	)
	if err != nil {
		return fmt.Errorf("archive: append: %w", err)
	}
	return nil
}

// Recent implements [store.Archive]. The newest rows are selected descending
// and reversed so the returned window reads chronologically.
func (a *ArchiveImpl) Recent(ctx context.Context, sessionID string, limit int) ([]types.TranscriptPair, error) {
	q := `
		SELECT participant_id, seq, original_text, source_language, translated_text, target_language
		FROM   transcript_archive
		WHERE  session_id = $1
		ORDER  BY id DESC`
	args := []any{sessionID}
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := a.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: recent: %w", err)
	}
	pairs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.TranscriptPair, error) {
		var (
			p   types.TranscriptPair
			seq int64
		)
		if err := row.Scan(
			&p.ParticipantID,
			&seq,
			&p.OriginalText,
			&p.SourceLanguage,
			&p.TranslatedText,
			&p.TargetLanguage,
		); err != nil {
			return types.TranscriptPair{}, err
		}
		p.Seq = uint64(seq)
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan rows: %w", err)
	}
	if pairs == nil {
		pairs = []types.TranscriptPair{}
	}
	slices.Reverse(pairs)
	return pairs, nil
}
