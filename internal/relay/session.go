// Package relay contains the session orchestrator: the component that turns
// one connected voice channel into a running set of translation pipelines.
//
// A [Session] owns one [audio.Connection]. For every participant whose audio
// is observed it builds a capture chain — segmenter, then one worker goroutine
// per utterance — and drives each utterance through transcription,
// translation and synthesis. Workers for the same participant may overlap
// (utterance N+1 starts its stages while N is still in flight), but their
// results are published in utterance order: a per-participant sequence gate
// holds each worker until every earlier utterance has published, failed or
// been dropped.
//
// Participant configuration is snapshotted from the preference store when the
// utterance leaves the segmenter, so a /language or /voice change never
// applies to speech already in flight. When a participant leaves, their
// pipeline context is cancelled and their queued clips are purged from the
// playback scheduler; speech already playing is not cut off.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/voxlate/internal/observe"
	"github.com/MrWong99/voxlate/internal/resilience"
	"github.com/MrWong99/voxlate/pkg/audio"
	"github.com/MrWong99/voxlate/pkg/audio/segment"
	"github.com/MrWong99/voxlate/pkg/fault"
	"github.com/MrWong99/voxlate/pkg/provider/stt"
	"github.com/MrWong99/voxlate/pkg/provider/translate"
	"github.com/MrWong99/voxlate/pkg/provider/tts"
	"github.com/MrWong99/voxlate/pkg/store"
	"github.com/MrWong99/voxlate/pkg/types"
)

// DefaultStageTimeout bounds each provider call (transcribe, translate,
// synthesize) per attempt.
const DefaultStageTimeout = 30 * time.Second

// Stages bundles the three pipeline providers a session runs utterances
// through.
type Stages struct {
	STT       stt.Provider
	Translate translate.Provider
	TTS       tts.Provider
}

// Publisher receives the finished transcript pair of each utterance, in
// per-participant sequence order.
type Publisher interface {
	Publish(ctx context.Context, pair types.TranscriptPair) error
}

// Corrector rewrites a transcript before translation. The glossary corrector
// implements it; nil skips correction.
type Corrector interface {
	Correct(text string) string
}

// Config assembles a [Session]'s dependencies.
type Config struct {
	// SessionID labels this session in the transcript archive and logs.
	SessionID string

	// Prefs is the authoritative per-participant configuration store.
	Prefs store.Prefs

	// Archive, when non-nil, receives every published transcript pair.
	Archive store.Archive

	// Cache, when non-nil, short-circuits repeated translations.
	Cache store.TranslationCache

	// Stages are the pipeline providers. All three are required.
	Stages Stages

	// Publisher receives finished transcript pairs. Required.
	Publisher Publisher

	// Corrector rewrites transcripts before translation. Optional.
	Corrector Corrector

	// Scheduler plays synthesized clips. Required.
	Scheduler audio.Scheduler

	// Segmenter tunes the per-participant endpointing policy.
	Segmenter segment.Config

	// Metrics records pipeline telemetry. Nil uses [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// StageTimeout bounds each provider call. Zero uses [DefaultStageTimeout].
	StageTimeout time.Duration
}

// validate reports every missing required dependency at once.
func (c Config) validate() error {
	var errs []error
	if c.SessionID == "" {
		errs = append(errs, errors.New("session id is required"))
	}
	if c.Prefs == nil {
		errs = append(errs, errors.New("preference store is required"))
	}
	if c.Stages.STT == nil {
		errs = append(errs, errors.New("transcription provider is required"))
	}
	if c.Stages.Translate == nil {
		errs = append(errs, errors.New("translation provider is required"))
	}
	if c.Stages.TTS == nil {
		errs = append(errs, errors.New("synthesis provider is required"))
	}
	if c.Publisher == nil {
		errs = append(errs, errors.New("transcript publisher is required"))
	}
	if c.Scheduler == nil {
		errs = append(errs, errors.New("playback scheduler is required"))
	}
	return errors.Join(errs...)
}

// Stats is a point-in-time snapshot of a session's counters, served by the
// /status command and the ops tools.
type Stats struct {
	SessionID    string
	StartedAt    time.Time
	Participants int

	// UtterancesPublished counts utterances that produced a transcript pair.
	UtterancesPublished uint64

	// UtterancesDropped counts utterances with no recognizable speech.
	UtterancesDropped uint64

	// UtterancesFailed counts utterances skipped on stage failure or
	// cancelled by a leave.
	UtterancesFailed uint64

	// QueueDepth is the number of clips waiting in the playback scheduler.
	QueueDepth int
}

// participant is the per-speaker pipeline state owned by a Session.
type participant struct {
	id     string
	cancel context.CancelFunc
	gate   *seqGate
}

// Session orchestrates the translation pipelines of one voice channel.
// Create with [New], then call [Session.Start] once; [Session.Close] tears
// everything down. All methods are safe for concurrent use.
type Session struct {
	conn       audio.Connection
	cfg        Config
	metrics    *observe.Metrics
	translator *cachedTranslator
	retry      resilience.RetryConfig
	log        *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	participants map[string]*participant
	started      bool

	startedAt time.Time
	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64

	closeOnce sync.Once
}

// New creates a Session over an established connection. The session does not
// consume audio until [Session.Start] is called.
func New(conn audio.Connection, cfg Config) (*Session, error) {
	if conn == nil {
		return nil, errors.New("relay: connection is required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = DefaultStageTimeout
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	retry := resilience.RetryConfig{
		MaxRetries:  1,
		IsRetryable: fault.IsTransient,
	}

	return &Session{
		conn:    conn,
		cfg:     cfg,
		metrics: metrics,
		retry:   retry,
		translator: &cachedTranslator{
			provider: cfg.Stages.Translate,
			cache:    cfg.Cache,
			metrics:  metrics,
			retry:    retry,
		},
		log:          slog.With("component", "relay", "session", cfg.SessionID),
		participants: make(map[string]*participant),
	}, nil
}

// Start registers the participant-change callback and attaches a pipeline to
// every capture stream the connection already has. Start may be called once.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("relay: session already started")
	}
	s.started = true
	s.startedAt = time.Now()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.metrics.ActiveSessions.Add(s.ctx, 1)

	s.conn.OnParticipantChange(s.handleEvent)
	for id, in := range s.conn.InputStreams() {
		s.attach(id, "", in)
	}

	s.log.Info("session started")
	return nil
}

// Close cancels every pipeline and waits for in-flight workers to finish.
// It does not disconnect the connection or close the scheduler; their owner
// does that. Close is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if !started {
			return
		}
		s.cancel()
		s.wg.Wait()
		s.metrics.ActiveSessions.Add(context.Background(), -1)
		s.log.Info("session closed",
			"published", s.published.Load(),
			"dropped", s.dropped.Load(),
			"failed", s.failed.Load())
	})
	return nil
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	n := len(s.participants)
	startedAt := s.startedAt
	s.mu.Unlock()

	return Stats{
		SessionID:           s.cfg.SessionID,
		StartedAt:           startedAt,
		Participants:        n,
		UtterancesPublished: s.published.Load(),
		UtterancesDropped:   s.dropped.Load(),
		UtterancesFailed:    s.failed.Load(),
		QueueDepth:          s.cfg.Scheduler.QueueDepth(),
	}
}

// handleEvent reacts to participant joins and leaves.
func (s *Session) handleEvent(ev audio.Event) {
	switch ev.Type {
	case audio.EventJoin:
		in, ok := s.conn.InputStreams()[ev.ParticipantID]
		if !ok {
			// Voice-state join before any audio. The connection emits another
			// join when the capture stream materializes; until then only the
			// display name is worth keeping.
			s.upsertDisplayName(ev.ParticipantID, ev.DisplayName)
			return
		}
		s.attach(ev.ParticipantID, ev.DisplayName, in)
	case audio.EventLeave:
		s.detach(ev.ParticipantID)
	}
}

// attach builds the pipeline for one participant's capture stream. Attaching
// an already-attached participant is a no-op.
func (s *Session) attach(id, displayName string, in <-chan audio.Frame) {
	s.mu.Lock()
	if !s.started || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if _, exists := s.participants[id]; exists {
		s.mu.Unlock()
		s.upsertDisplayName(id, displayName)
		return
	}

	pctx, cancel := context.WithCancel(s.ctx)
	seg, err := segment.New(id, in, s.cfg.Segmenter)
	if err != nil {
		cancel()
		s.mu.Unlock()
		s.log.Error("segmenter creation failed", "participant", id, "error", err)
		return
	}
	p := &participant{id: id, cancel: cancel, gate: newSeqGate()}
	s.participants[id] = p
	s.mu.Unlock()

	s.upsertDisplayName(id, displayName)
	s.metrics.ActiveParticipants.Add(pctx, 1)
	s.log.Info("participant attached", "participant", id)

	s.wg.Add(1)
	go s.runParticipant(pctx, p, seg)
}

// detach cancels a participant's pipeline and purges their queued playback.
func (s *Session) detach(id string) {
	s.mu.Lock()
	p, ok := s.participants[id]
	if ok {
		delete(s.participants, id)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	p.cancel()
	s.cfg.Scheduler.DropParticipant(id)
	s.metrics.ActiveParticipants.Add(context.Background(), -1)
	s.log.Info("participant detached", "participant", id)
}

// runParticipant consumes one participant's utterance stream, snapshotting
// their configuration per utterance and spawning a worker for each.
func (s *Session) runParticipant(ctx context.Context, p *participant, seg *segment.Segmenter) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			// The capture channel closes once the platform tears the stream
			// down; until then the segmenter keeps running, so hand it to a
			// drainer instead of blocking shutdown on it.
			go audio.Drain(seg.Utterances())
			return
		case utt, ok := <-seg.Utterances():
			if !ok {
				return
			}

			// Snapshot the configuration at utterance creation: a change made
			// while this utterance is in flight must not affect it.
			pcfg, err := s.cfg.Prefs.Get(ctx, p.id)
			if err != nil {
				s.failed.Add(1)
				s.log.Warn("preference read failed, utterance skipped",
					"participant", p.id, "seq", utt.Seq, "error", err)
				p.gate.release(utt.Seq)
				continue
			}

			s.wg.Add(1)
			go func(utt types.Utterance, pcfg types.ParticipantConfig) {
				defer s.wg.Done()
				s.runUtterance(ctx, p, utt, pcfg)
			}(utt, pcfg)
		}
	}
}

// upsertDisplayName records a platform-reported display name in the
// preference store so transcripts and command output can use it.
func (s *Session) upsertDisplayName(id, displayName string) {
	if displayName == "" {
		return
	}
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := s.cfg.Prefs.Get(ctx, id)
	if err != nil {
		s.log.Warn("preference read failed", "participant", id, "error", err)
		return
	}
	if cfg.DisplayName == displayName {
		return
	}
	cfg.DisplayName = displayName
	if err := s.cfg.Prefs.Set(ctx, cfg); err != nil {
		s.log.Warn("display name update failed", "participant", id, "error", err)
	}
}
