// Package postgres provides the optional PostgreSQL-backed [store] implementation:
// durable participant preferences, a transcript archive, and a translation cache
// with semantic (pgvector) matching.
//
// All three share a single [pgxpool.Pool]. The pgvector extension must be
// available in the target database; [Migrate] installs it automatically via
// CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn, postgres.WithEmbedder(embedder))
//	if err != nil { … }
//	defer st.Close()
//
//	cfg, _ := st.Prefs().Get(ctx, participantID)
//	_ = st.Archive().Append(ctx, sessionID, pair)
//	translated, ok, _ := st.Cache().Get(ctx, text, "English", "Spanish")
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlParticipantPrefs = `
CREATE TABLE IF NOT EXISTS participant_prefs (
    participant_id   TEXT         PRIMARY KEY,
    display_name     TEXT         NOT NULL DEFAULT '',
    input_language   TEXT         NOT NULL,
    output_language  TEXT         NOT NULL,
    voice_id         INT          NOT NULL,
    last_updated     TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

const ddlTranscriptArchive = `
CREATE TABLE IF NOT EXISTS transcript_archive (
    id               BIGSERIAL    PRIMARY KEY,
    session_id       TEXT         NOT NULL,
    participant_id   TEXT         NOT NULL,
    seq              BIGINT       NOT NULL,
    original_text    TEXT         NOT NULL,
    source_language  TEXT         NOT NULL DEFAULT '',
    translated_text  TEXT         NOT NULL,
    target_language  TEXT         NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcript_archive_session
    ON transcript_archive (session_id, id);
`

// ddlTranslationCache returns the cache DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time; the column stays NULL when no embedder is configured.
func ddlTranslationCache(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS translation_cache (
    source_language  TEXT         NOT NULL,
    target_language  TEXT         NOT NULL,
    source_text      TEXT         NOT NULL,
    translated_text  TEXT         NOT NULL,
    embedding        vector(%d),
    model            TEXT         NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (source_language, target_language, source_text)
);

CREATE INDEX IF NOT EXISTS idx_translation_cache_embedding
    ON translation_cache USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables and extensions exist. It is
// idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS) and
// safe to call on every application start.
//
// embeddingDimensions must match the embedding model configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing this value after the first migration requires a
// manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlParticipantPrefs,
		ddlTranscriptArchive,
		ddlTranslationCache(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
