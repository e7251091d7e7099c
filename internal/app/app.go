// Package app wires all Voxlate subsystems into a running application.
//
// The App struct owns the long-lived pieces: the persistence backend, the
// glossary corrector, the transcript publisher, the session manager, and the
// ops HTTP surface (health, metrics, MCP). The Discord bot and the providers
// are constructed in main and injected; sessions come and go through the
// [SessionManager].
//
// For testing, inject mock implementations via functional options
// (WithStores, WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voxlate/internal/config"
	"github.com/MrWong99/voxlate/internal/health"
	"github.com/MrWong99/voxlate/internal/observe"
	"github.com/MrWong99/voxlate/internal/relay"
	"github.com/MrWong99/voxlate/internal/transcript"
	"github.com/MrWong99/voxlate/pkg/audio"
	"github.com/MrWong99/voxlate/pkg/provider/embeddings"
	"github.com/MrWong99/voxlate/pkg/provider/stt"
	"github.com/MrWong99/voxlate/pkg/provider/translate"
	"github.com/MrWong99/voxlate/pkg/provider/tts"
	"github.com/MrWong99/voxlate/pkg/provider/vad"
	"github.com/MrWong99/voxlate/pkg/store"
	"github.com/MrWong99/voxlate/pkg/store/memory"
	"github.com/MrWong99/voxlate/pkg/store/postgres"
)

// opsShutdownTimeout bounds the graceful drain of the ops HTTP server.
const opsShutdownTimeout = 5 * time.Second

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	STT        stt.Provider
	Translate  translate.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider
	VAD        vad.Engine
	Audio      audio.Platform
}

// App owns the long-lived Voxlate subsystems.
type App struct {
	cfg       *config.Config
	providers *Providers

	prefs     store.Prefs
	archive   store.Archive
	cache     store.TranslationCache
	pg        *postgres.Store
	corrector *transcript.GlossaryCorrector
	publisher *transcript.Publisher
	sessions  *SessionManager
	metrics   *observe.Metrics

	// logLevel, when set, is retargeted on hot reload.
	logLevel *slog.LevelVar

	// extraChecks are additional readiness checkers mounted by OpsHandler.
	extraChecks []health.Checker

	// voices is the current slot-to-voice table, replaceable via hot reload.
	mu     sync.Mutex
	voices map[int]string

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStores injects the persistence backends instead of creating them from
// config. cache may be nil to disable translation caching.
func WithStores(prefs store.Prefs, archive store.Archive, cache store.TranslationCache) Option {
	return func(a *App) {
		a.prefs = prefs
		a.archive = archive
		a.cache = cache
	}
}

// WithMetrics injects a metrics instance instead of using the global default.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogLevelVar hands the App the level var behind the process logger so
// hot reloads of server.log_level take effect.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// WithHealthCheckers adds readiness checkers beyond the built-in provider and
// database checks, e.g. the Discord gateway probe wired in main.
func WithHealthCheckers(checkers ...health.Checker) Option {
	return func(a *App) { a.extraChecks = append(a.extraChecks, checkers...) }
}

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry); send posts
// transcript messages to Discord and is normally the bot's SendMessage.
func New(ctx context.Context, cfg *config.Config, providers *Providers, send transcript.SendFunc, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
		voices:    maps.Clone(cfg.Voices),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStores(ctx); err != nil {
		return nil, fmt.Errorf("app: init stores: %w", err)
	}

	a.corrector = transcript.NewGlossaryCorrector(cfg.Glossary)
	a.publisher = transcript.NewPublisher(cfg.Discord.TextChannelID, send, a.prefs)

	a.sessions = NewSessionManager(SessionManagerConfig{
		Platform: providers.Audio,
		Prefs:    a.prefs,
		Archive:  a.archive,
		Cache:    a.cache,
		Stages: relay.Stages{
			STT:       providers.STT,
			Translate: providers.Translate,
			TTS:       providers.TTS,
		},
		Publisher: a.publisher,
		Corrector: a.corrector,
		VAD:       providers.VAD,
		Metrics:   a.metrics,
		Pipeline:  cfg.Pipeline,
		Playback:  cfg.Playback,
	})

	return a, nil
}

// initStores sets up the persistence backend: PostgreSQL when a DSN is
// configured, the in-process store otherwise.
func (a *App) initStores(ctx context.Context) error {
	if a.prefs != nil {
		return nil // injected
	}

	dsn := a.cfg.Store.PostgresDSN
	if dsn == "" {
		st := memory.New()
		a.prefs = st.Prefs()
		a.archive = st.Archive()
		a.cache = st.Cache()
		slog.Info("using in-process store")
		return nil
	}

	var opts []postgres.Option
	if a.providers.Embeddings != nil {
		opts = append(opts, postgres.WithEmbedder(a.providers.Embeddings))
	}
	if a.cfg.Store.CacheMaxDistance > 0 {
		opts = append(opts, postgres.WithMaxDistance(a.cfg.Store.CacheMaxDistance))
	}

	pg, err := postgres.NewStore(ctx, dsn, opts...)
	if err != nil {
		return err
	}
	a.pg = pg
	a.prefs = pg.Prefs()
	a.archive = pg.Archive()
	a.cache = pg.Cache()
	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	slog.Info("using postgres store", "semantic_cache", a.providers.Embeddings != nil)
	return nil
}

// SessionManager returns the session manager for command and tool wiring.
func (a *App) SessionManager() *SessionManager {
	return a.sessions
}

// Prefs returns the participant preference store.
func (a *App) Prefs() store.Prefs {
	return a.prefs
}

// Archive returns the transcript archive.
func (a *App) Archive() store.Archive {
	return a.archive
}

// Voices returns a copy of the current slot-to-voice table.
func (a *App) Voices() map[int]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.voices)
}

// OpsHandler assembles the ops HTTP surface: health probes, the Prometheus
// /metrics endpoint, and optionally an MCP handler mounted at /mcp. The whole
// mux is wrapped in the metrics middleware.
func (a *App) OpsHandler(mcpHandler http.Handler) http.Handler {
	checkers := []health.Checker{}
	if a.providers.TTS != nil {
		checkers = append(checkers, health.VoiceCatalogue(a.providers.TTS))
	}
	if a.pg != nil {
		checkers = append(checkers, health.Database(a.pg.Ping))
	}
	checkers = append(checkers, a.extraChecks...)

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	if mcpHandler != nil {
		mux.Handle("/mcp", mcpHandler)
	}

	return observe.Middleware(a.metrics)(mux)
}

// RunOps serves handler on the configured listen address until ctx is
// cancelled, then drains connections. A missing listen address disables the
// ops server; RunOps then just waits for ctx.
func (a *App) RunOps(ctx context.Context, handler http.Handler) error {
	addr := a.cfg.Server.ListenAddr
	if addr == "" {
		slog.Info("ops server disabled, no listen address configured")
		<-ctx.Done()
		return ctx.Err()
	}

	srv := &http.Server{Addr: addr, Handler: handler}

	errc := make(chan error, 1)
	go func() {
		slog.Info("ops server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: ops server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), opsShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("ops server shutdown error", "err", err)
	}
	return ctx.Err()
}

// ApplyConfig is the config watcher callback. It applies the hot-reloadable
// changes between old and new: log level, glossary, segmentation and playback
// tuning, and the voice table. Everything else (providers, Discord settings,
// store) requires a restart and is logged as ignored.
func (a *App) ApplyConfig(old, new *config.Config) {
	diff := config.Diff(old, new)
	if diff.Empty() {
		return
	}

	if diff.LogLevelChanged {
		if a.logLevel != nil {
			a.logLevel.Set(diff.NewLogLevel.SlogLevel())
			slog.Info("log level changed", "level", diff.NewLogLevel)
		} else {
			slog.Warn("log level change ignored, no level var wired")
		}
	}

	if diff.GlossaryChanged {
		a.corrector.SetTerms(new.Glossary)
		slog.Info("glossary reloaded", "terms", len(new.Glossary))
	}

	if diff.PipelineChanged || diff.PlaybackChanged {
		a.sessions.UpdateTuning(new.Pipeline, new.Playback)
		slog.Info("pipeline tuning updated, applies to the next session")
	}

	if diff.VoicesChanged {
		a.mu.Lock()
		a.voices = maps.Clone(new.Voices)
		a.mu.Unlock()
		slog.Info("voice table reloaded", "slots", len(new.Voices))
	}
}

// Shutdown stops the active session, if any, and tears down all subsystems.
// It respects the context deadline: if ctx expires before all closers finish,
// remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.sessions.IsActive() {
			if err := a.sessions.Stop(); err != nil {
				slog.Warn("session stop error during shutdown", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
