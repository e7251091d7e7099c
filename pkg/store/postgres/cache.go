package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/MrWong99/voxlate/pkg/provider/embeddings"
)

// CacheImpl is the translation cache backend. Lookups try an exact key match
// first and then, when an embedder is configured, a cosine-distance search
// over the embedding column; entries only match vectors produced by the same
// embedding model.
//
// Obtain one via [Store.Cache] rather than constructing directly.
// All methods are safe for concurrent use.
type CacheImpl struct {
	pool        *pgxpool.Pool
	embedder    embeddings.Provider
	maxDistance float64
}

// Get implements [store.TranslationCache].
func (c *CacheImpl) Get(ctx context.Context, sourceText, sourceLang, targetLang string) (string, bool, error) {
	const exact = `
		SELECT translated_text
		FROM   translation_cache
		WHERE  source_language = $1
		  AND  target_language = $2
		  AND  source_text     = $3`

	var translated string
	err := c.pool.QueryRow(ctx, exact, sourceLang, targetLang, sourceText).Scan(&translated)
	if err == nil {
		return translated, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("translation cache: exact lookup: %w", err)
	}

	if c.embedder == nil {
		return "", false, nil
	}

	vec, err := c.embedder.Embed(ctx, sourceText)
	if err != nil {
		return "", false, fmt.Errorf("translation cache: embed query: %w", err)
	}

	const semantic = `
		SELECT translated_text, embedding <=> $1 AS distance
		FROM   translation_cache
		WHERE  source_language = $2
		  AND  target_language = $3
		  AND  model           = $4
		  AND  embedding IS NOT NULL
		ORDER  BY distance
		LIMIT  1`

	var distance float64
	err = c.pool.QueryRow(ctx, semantic,
		pgvector.NewVector(vec), sourceLang, targetLang, c.embedder.ModelID(),
	).Scan(&translated, &distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("translation cache: semantic lookup: %w", err)
	}
	if distance > c.maxDistance {
		return "", false, nil
	}
	return translated, true, nil
}

// Put implements [store.TranslationCache]. When the embedder fails, the entry
// is still stored without a vector — it downgrades to exact matching rather
// than being lost.
func (c *CacheImpl) Put(ctx context.Context, sourceText, sourceLang, targetLang, translated string) error {
	var (
		vec   any
		model string
	)
	if c.embedder != nil {
		if v, err := c.embedder.Embed(ctx, sourceText); err == nil {
			vec = pgvector.NewVector(v)
			model = c.embedder.ModelID()
		}
	}

	const q = `
		INSERT INTO translation_cache
		    (source_language, target_language, source_text, translated_text, embedding, model)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_language, target_language, source_text) DO UPDATE SET
		    translated_text = EXCLUDED.translated_text,
		    embedding       = EXCLUDED.embedding,
		    model           = EXCLUDED.model,
		    created_at      = now()`

	if _, err := c.pool.Exec(ctx, q, sourceLang, targetLang, sourceText, translated, vec, model); err != nil {
		return fmt.Errorf("translation cache: put: %w", err)
	}
	return nil
}
