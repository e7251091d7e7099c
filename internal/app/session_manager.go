package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/voxlate/internal/config"
	"github.com/MrWong99/voxlate/internal/observe"
	"github.com/MrWong99/voxlate/internal/relay"
	"github.com/MrWong99/voxlate/pkg/audio"
	"github.com/MrWong99/voxlate/pkg/audio/playback"
	"github.com/MrWong99/voxlate/pkg/audio/segment"
	"github.com/MrWong99/voxlate/pkg/provider/vad"
	"github.com/MrWong99/voxlate/pkg/store"
)

// SessionInfo holds metadata about an active relay session.
type SessionInfo struct {
	// SessionID is the unique identifier for this session.
	SessionID string

	// StartedAt is when the session was started.
	StartedAt time.Time

	// StartedBy is the Discord user ID of the operator who started the session.
	StartedBy string

	// ChannelID is the voice channel ID the session is connected to.
	ChannelID string
}

// SessionManager manages the lifecycle of voice relay sessions.
// Only one session can be active at a time (enforced by mutex).
// All exported methods are safe for concurrent use.
type SessionManager struct {
	mu       sync.Mutex
	active   bool
	info     SessionInfo
	conn     audio.Connection
	sess     *relay.Session
	queueReg metric.Registration

	// closers are called in reverse order during Stop.
	closers []func() error

	// Segmentation and playback tuning, replaceable via hot reload. Changes
	// apply to the next session, not the running one.
	pipeline config.PipelineConfig
	playback config.PlaybackConfig

	// Dependencies injected at construction.
	platform  audio.Platform
	prefs     store.Prefs
	archive   store.Archive
	cache     store.TranslationCache
	stages    relay.Stages
	publisher relay.Publisher
	corrector relay.Corrector
	vadEngine vad.Engine
	metrics   *observe.Metrics
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	Platform  audio.Platform
	Prefs     store.Prefs
	Archive   store.Archive
	Cache     store.TranslationCache
	Stages    relay.Stages
	Publisher relay.Publisher
	Corrector relay.Corrector
	VAD       vad.Engine
	Metrics   *observe.Metrics
	Pipeline  config.PipelineConfig
	Playback  config.PlaybackConfig
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	return &SessionManager{
		platform:  cfg.Platform,
		prefs:     cfg.Prefs,
		archive:   cfg.Archive,
		cache:     cfg.Cache,
		stages:    cfg.Stages,
		publisher: cfg.Publisher,
		corrector: cfg.Corrector,
		vadEngine: cfg.VAD,
		metrics:   cfg.Metrics,
		pipeline:  cfg.Pipeline,
		playback:  cfg.Playback,
	}
}

// Start begins a new relay session. It connects to the voice channel, creates
// the playback scheduler, builds the relay over the connection, and starts
// consuming participant audio.
//
// Returns an error if a session is already active.
func (sm *SessionManager) Start(ctx context.Context, channelID string, startedBy string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.active {
		return fmt.Errorf("session: a session is already active (id=%s)", sm.info.SessionID)
	}

	now := time.Now().UTC()
	sessionID := "session-" + now.Format("20060102T150405Z")

	// Connect to voice channel.
	conn, err := sm.platform.Connect(ctx, channelID)
	if err != nil {
		return fmt.Errorf("session: connect to voice channel: %w", err)
	}

	// Create the playback scheduler for this session, wired to the voice
	// connection output.
	var schedOpts []playback.Option
	if sm.playback.GapMs > 0 {
		schedOpts = append(schedOpts, playback.WithGap(msDuration(sm.playback.GapMs)))
	}
	sched := playback.New(conn.OutputStream(), schedOpts...)
	closers := []func() error{sched.Close}

	sess, err := relay.New(conn, relay.Config{
		SessionID: sessionID,
		Prefs:     sm.prefs,
		Archive:   sm.archive,
		Cache:     sm.cache,
		Stages:    sm.stages,
		Publisher: sm.publisher,
		Corrector: sm.corrector,
		Scheduler: sched,
		Segmenter: segment.Config{
			Silence: msDuration(sm.pipeline.SilenceMs),
			Min:     msDuration(sm.pipeline.MinUtteranceMs),
			Max:     msDuration(sm.pipeline.MaxUtteranceMs),
			VAD:     sm.vadEngine,
		},
		Metrics:      sm.metrics,
		StageTimeout: msDuration(sm.pipeline.StageTimeoutMs),
	})
	if err != nil {
		_ = sched.Close()
		_ = conn.Disconnect()
		return fmt.Errorf("session: build relay: %w", err)
	}

	if err := sess.Start(); err != nil {
		_ = sched.Close()
		_ = conn.Disconnect()
		return fmt.Errorf("session: start relay: %w", err)
	}

	// Export the playback queue depth while the session runs. Failure only
	// costs the gauge.
	var queueReg metric.Registration
	if sm.metrics != nil {
		queueReg, err = sm.metrics.RegisterQueueDepth(func() int64 {
			return int64(sched.QueueDepth())
		})
		if err != nil {
			slog.Warn("session: queue depth gauge registration failed", "err", err)
		}
	}

	sm.active = true
	sm.conn = conn
	sm.sess = sess
	sm.queueReg = queueReg
	sm.closers = closers
	sm.info = SessionInfo{
		SessionID: sessionID,
		StartedAt: now,
		StartedBy: startedBy,
		ChannelID: channelID,
	}

	slog.Info("session started",
		"session_id", sessionID,
		"channel_id", channelID,
		"started_by", startedBy,
	)

	return nil
}

// Stop gracefully ends the active session. It drains in-flight utterances,
// disconnects from voice, and cleans up resources.
//
// Returns an error if no session is active.
func (sm *SessionManager) Stop() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.active {
		return fmt.Errorf("session: no active session to stop")
	}

	sessionID := sm.info.SessionID

	if sm.queueReg != nil {
		if err := sm.queueReg.Unregister(); err != nil {
			slog.Warn("session: queue depth gauge unregister error", "session_id", sessionID, "err", err)
		}
	}

	// Stop the relay first: cancels pipelines and waits for in-flight
	// workers before the connection and scheduler go away under them.
	if sm.sess != nil {
		if err := sm.sess.Close(); err != nil {
			slog.Warn("session: relay close error", "session_id", sessionID, "err", err)
		}
	}

	// Disconnect from voice.
	if sm.conn != nil {
		if err := sm.conn.Disconnect(); err != nil {
			slog.Warn("session: voice disconnect error", "session_id", sessionID, "err", err)
		}
	}

	// Run closers (scheduler) in reverse order.
	for i := len(sm.closers) - 1; i >= 0; i-- {
		if err := sm.closers[i](); err != nil {
			slog.Warn("session: closer error", "session_id", sessionID, "index", i, "err", err)
		}
	}

	// Clear state.
	sm.active = false
	sm.conn = nil
	sm.sess = nil
	sm.queueReg = nil
	sm.closers = nil
	sm.info = SessionInfo{}

	slog.Info("session stopped", "session_id", sessionID)

	return nil
}

// IsActive reports whether a session is currently running.
func (sm *SessionManager) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

// Info returns metadata about the active session.
// Returns zero value if no session is active.
func (sm *SessionManager) Info() SessionInfo {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.info
}

// Stats returns the active session's counters.
// Returns ok=false if no session is active.
func (sm *SessionManager) Stats() (relay.Stats, bool) {
	sm.mu.Lock()
	sess := sm.sess
	sm.mu.Unlock()

	if sess == nil {
		return relay.Stats{}, false
	}
	return sess.Stats(), true
}

// UpdateTuning replaces the segmentation and playback tuning used for future
// sessions. The running session, if any, keeps the tuning it started with.
func (sm *SessionManager) UpdateTuning(pipeline config.PipelineConfig, playbackCfg config.PlaybackConfig) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.pipeline = pipeline
	sm.playback = playbackCfg
}

// msDuration converts a millisecond count to a [time.Duration]. Zero or
// negative values yield zero, which downstream components treat as "use
// default".
func msDuration(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
