package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/voxlate/pkg/provider/embeddings"
	"github.com/MrWong99/voxlate/pkg/store"
)

// DefaultEmbeddingDimensions sizes the cache's vector column when no embedder
// is configured (the column then stays NULL and matching is exact-only).
const DefaultEmbeddingDimensions = 1536

// DefaultMaxDistance is the cosine-distance ceiling for a semantic cache hit.
// Identical texts embed at distance 0; light rephrasings of short utterances
// land well under this with the supported embedding models.
const DefaultMaxDistance = 0.1

// Compile-time interface checks.
var (
	_ store.Prefs            = (*PrefsImpl)(nil)
	_ store.Archive          = (*ArchiveImpl)(nil)
	_ store.TranslationCache = (*CacheImpl)(nil)
)

// Store is the PostgreSQL-backed persistence layer. It holds a single
// [pgxpool.Pool] and exposes the three store interfaces:
//
//   - [Store.Prefs] returns a [PrefsImpl] implementing [store.Prefs]
//   - [Store.Archive] returns an [ArchiveImpl] implementing [store.Archive]
//   - [Store.Cache] returns a [CacheImpl] implementing [store.TranslationCache]
//
// All operations are safe for concurrent use.
type Store struct {
	pool    *pgxpool.Pool
	prefs   *PrefsImpl
	archive *ArchiveImpl
	cache   *CacheImpl
}

// config holds optional configuration collected from functional options.
type config struct {
	embedder    embeddings.Provider
	maxDistance float64
}

// Option is a functional option for [NewStore].
type Option func(*config)

// WithEmbedder enables semantic cache matching. The embedder's Dimensions()
// sizes the vector column on first migration, and its ModelID() scopes
// lookups so vectors from different models never compare.
func WithEmbedder(p embeddings.Provider) Option {
	return func(c *config) {
		c.embedder = p
	}
}

// WithMaxDistance overrides [DefaultMaxDistance] for semantic cache hits.
func WithMaxDistance(d float64) Option {
	return func(c *config) {
		if d > 0 {
			c.maxDistance = d
		}
	}
}

// NewStore creates a Store, establishes a connection pool to the PostgreSQL
// database at dsn, registers pgvector types on every connection, and runs
// [Migrate] to ensure all required tables and extensions exist.
func NewStore(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	cfg := &config{maxDistance: DefaultMaxDistance}
	for _, o := range opts {
		o(cfg)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so the embedding column
	// can be scanned into and inserted from pgvector.Vector values.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	dims := DefaultEmbeddingDimensions
	if cfg.embedder != nil {
		if d := cfg.embedder.Dimensions(); d > 0 {
			dims = d
		}
	}
	if err := Migrate(ctx, pool, dims); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{
		pool:    pool,
		prefs:   &PrefsImpl{pool: pool},
		archive: &ArchiveImpl{pool: pool},
		cache:   &CacheImpl{pool: pool, embedder: cfg.embedder, maxDistance: cfg.maxDistance},
	}, nil
}

// Prefs returns the participant configuration backend.
func (s *Store) Prefs() *PrefsImpl { return s.prefs }

// Archive returns the transcript log backend.
func (s *Store) Archive() *ArchiveImpl { return s.archive }

// Cache returns the translation cache backend.
func (s *Store) Cache() *CacheImpl { return s.cache }

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool. Call it when
// the Store is no longer needed, typically via defer.
func (s *Store) Close() {
	s.pool.Close()
}
