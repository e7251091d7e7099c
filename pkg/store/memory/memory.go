// Package memory provides the default in-process [store] backend.
//
// Everything lives in maps guarded by RWMutexes; nothing survives a restart,
// which matches the relay's lifetime model — participant configuration and
// transcripts only need to outlive the utterances that reference them. The
// archive and cache are bounded so a long-running session cannot grow without
// limit.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voxlate/pkg/store"
	"github.com/MrWong99/voxlate/pkg/types"
)

// DefaultArchiveLimit is how many transcript pairs are retained per session.
const DefaultArchiveLimit = 500

// DefaultCacheLimit is how many translations are retained before the oldest
// entries are evicted.
const DefaultCacheLimit = 1024

// Compile-time interface checks.
var (
	_ store.Prefs            = (*Prefs)(nil)
	_ store.Archive          = (*Archive)(nil)
	_ store.TranslationCache = (*Cache)(nil)
)

// Store bundles the three in-memory backends behind one constructor so the
// application wires a single value.
type Store struct {
	prefs   *Prefs
	archive *Archive
	cache   *Cache
}

// Option is a functional option for [New].
type Option func(*Store)

// WithArchiveLimit caps the per-session transcript retention. Values <= 0
// keep the default.
func WithArchiveLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.archive.limit = n
		}
	}
}

// WithCacheLimit caps the translation cache size. Values <= 0 keep the
// default.
func WithCacheLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.cache.limit = n
		}
	}
}

// New returns a ready-to-use in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		prefs:   &Prefs{configs: make(map[string]types.ParticipantConfig)},
		archive: &Archive{sessions: make(map[string][]types.TranscriptPair), limit: DefaultArchiveLimit},
		cache:   &Cache{entries: make(map[cacheKey]string), limit: DefaultCacheLimit},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Prefs returns the participant configuration backend.
func (s *Store) Prefs() *Prefs { return s.prefs }

// Archive returns the transcript log backend.
func (s *Store) Archive() *Archive { return s.archive }

// Cache returns the translation cache backend.
func (s *Store) Cache() *Cache { return s.cache }

// ─────────────────────────────────────────────────────────────────────────────
// Prefs
// ─────────────────────────────────────────────────────────────────────────────

// Prefs is the in-memory [store.Prefs] implementation.
type Prefs struct {
	mu      sync.RWMutex
	configs map[string]types.ParticipantConfig
}

// Get implements [store.Prefs]. The default configuration is stored on first
// reference so All reflects every participant seen.
func (p *Prefs) Get(ctx context.Context, participantID string) (types.ParticipantConfig, error) {
	p.mu.RLock()
	cfg, ok := p.configs[participantID]
	p.mu.RUnlock()
	if ok {
		return cfg, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	// Re-check under the write lock; another goroutine may have materialized.
	if cfg, ok := p.configs[participantID]; ok {
		return cfg, nil
	}
	cfg = store.DefaultConfig(participantID)
	cfg.LastUpdated = time.Now()
	p.configs[participantID] = cfg
	return cfg, nil
}

// Set implements [store.Prefs].
func (p *Prefs) Set(ctx context.Context, cfg types.ParticipantConfig) error {
	cfg.LastUpdated = time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs[cfg.ParticipantID] = cfg
	return nil
}

// Delete implements [store.Prefs].
func (p *Prefs) Delete(ctx context.Context, participantID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.configs, participantID)
	return nil
}

// All implements [store.Prefs].
func (p *Prefs) All(ctx context.Context) ([]types.ParticipantConfig, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.ParticipantConfig, 0, len(p.configs))
	for _, cfg := range p.configs {
		out = append(out, cfg)
	}
	slices.SortFunc(out, func(a, b types.ParticipantConfig) int {
		return strings.Compare(a.ParticipantID, b.ParticipantID)
	})
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Archive
// ─────────────────────────────────────────────────────────────────────────────

// Archive is the in-memory [store.Archive] implementation. Each session keeps
// at most limit pairs; older ones are dropped as new ones arrive.
type Archive struct {
	mu       sync.RWMutex
	sessions map[string][]types.TranscriptPair
	limit    int
}

// Append implements [store.Archive].
func (a *Archive) Append(ctx context.Context, sessionID string, pair types.TranscriptPair) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	pairs := append(a.sessions[sessionID], pair)
	if len(pairs) > a.limit {
		pairs = pairs[len(pairs)-a.limit:]
	}
	a.sessions[sessionID] = pairs
	return nil
}

// Recent implements [store.Archive].
func (a *Archive) Recent(ctx context.Context, sessionID string, limit int) ([]types.TranscriptPair, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	pairs := a.sessions[sessionID]
	if limit > 0 && len(pairs) > limit {
		pairs = pairs[len(pairs)-limit:]
	}
	out := make([]types.TranscriptPair, len(pairs))
	copy(out, pairs)
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Cache
// ─────────────────────────────────────────────────────────────────────────────

type cacheKey struct {
	sourceLang string
	targetLang string
	sourceText string
}

// Cache is the in-memory [store.TranslationCache] implementation. Matching is
// exact; per-key entries beyond limit evict in insertion order.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]string
	order   []cacheKey
	limit   int
}

// Get implements [store.TranslationCache].
func (c *Cache) Get(ctx context.Context, sourceText, sourceLang, targetLang string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	translated, ok := c.entries[cacheKey{sourceLang, targetLang, sourceText}]
	return translated, ok, nil
}

// Put implements [store.TranslationCache].
func (c *Cache) Put(ctx context.Context, sourceText, sourceLang, targetLang, translated string) error {
	key := cacheKey{sourceLang, targetLang, sourceText}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
		if len(c.order) > c.limit {
			delete(c.entries, c.order[0])
			c.order = c.order[1:]
		}
	}
	c.entries[key] = translated
	return nil
}

// Len returns the number of cached translations. Intended for tests and the
// status surface.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
