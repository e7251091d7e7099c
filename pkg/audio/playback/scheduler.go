// Package playback provides the session-wide [audio.Scheduler] implementation.
//
// One voice session exposes exactly one output device, while many participant
// pipelines finish synthesis at unpredictable times. The scheduler is the
// single writer that stands between them: clips queue in arrival order and a
// background dispatch goroutine plays them one at a time, so no two clips'
// samples are ever interleaved on the output.
package playback

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/MrWong99/voxlate/pkg/audio"
	"github.com/MrWong99/voxlate/pkg/types"
)

// Compile-time interface assertion.
var _ audio.Scheduler = (*Scheduler)(nil)

const (
	// DefaultGap is the base silence duration inserted between consecutive
	// clips when no explicit gap is configured via [WithGap].
	DefaultGap = 200 * time.Millisecond

	// defaultQueueCap is the initial capacity hint for the clip queue.
	defaultQueueCap = 16

	// chunkMs is the slice size clips are written to the sink in. Writing in
	// small chunks keeps Close and the sink's own pacing responsive.
	chunkMs = 20
)

// Option configures a [Scheduler] during construction.
type Option func(*Scheduler)

// WithGap sets the base silence gap inserted between consecutive clips.
// Jitter of ±1/6 of the gap is applied automatically. A gap of zero disables
// inter-clip silence entirely.
func WithGap(d time.Duration) Option {
	return func(s *Scheduler) {
		s.gap = d
	}
}

// WithQueueCapacity sets the initial capacity hint for the internal queue.
// This does not impose a hard limit — the queue grows as needed.
func WithQueueCapacity(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.queue = make([]types.SynthesizedClip, 0, n)
		}
	}
}

// Scheduler is a concrete [audio.Scheduler] that plays queued clips in global
// FIFO arrival order through a sink channel (normally the session's
// [audio.Connection] output stream).
//
// The sink is drained at real-time rate by the platform, so the dispatch
// goroutine experiences natural pacing backpressure; the scheduler itself
// imposes no timing beyond the inter-clip gap.
//
// All exported methods are safe for concurrent use.
type Scheduler struct {
	sink chan<- audio.Frame

	mu     sync.Mutex
	queue  []types.SynthesizedClip
	gap    time.Duration
	closed bool

	notify chan struct{} // signalled when a clip is enqueued
	done   chan struct{} // closed by Close to stop the dispatch goroutine
}

// New creates a [Scheduler] that writes clip audio to sink. The scheduler
// starts its background dispatch goroutine immediately.
//
// The scheduler never closes sink; the caller owns it. Call
// [Scheduler.Close] to stop the background goroutine and discard the queue.
func New(sink chan<- audio.Frame, opts ...Option) *Scheduler {
	s := &Scheduler{
		sink:   sink,
		queue:  make([]types.SynthesizedClip, 0, defaultQueueCap),
		gap:    DefaultGap,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.dispatch()
	return s
}

// Enqueue implements [audio.Scheduler]. It appends clip to the queue and
// returns immediately; a closed scheduler discards the clip without error.
func (s *Scheduler) Enqueue(clip types.SynthesizedClip) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.queue = append(s.queue, clip)

	// Wake the dispatch goroutine.
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// DropParticipant implements [audio.Scheduler]. It removes every queued clip
// belonging to participantID. The clip currently being written to the sink,
// if any, plays out.
func (s *Scheduler) DropParticipant(participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.queue[:0]
	for _, c := range s.queue {
		if c.ParticipantID != participantID {
			kept = append(kept, c)
		}
	}
	// Zero the tail so dropped clips' PCM can be collected.
	for i := len(kept); i < len(s.queue); i++ {
		s.queue[i] = types.SynthesizedClip{}
	}
	s.queue = kept
}

// QueueDepth implements [audio.Scheduler].
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Close implements [audio.Scheduler]. Queued clips are discarded without
// error; a clip mid-write is cut off. Close is idempotent.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()

	close(s.done)
	return nil
}

// dequeue pops the oldest queued clip. Returns ok=false if the queue is empty.
func (s *Scheduler) dequeue() (clip types.SynthesizedClip, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return types.SynthesizedClip{}, false
	}
	clip = s.queue[0]
	s.queue[0] = types.SynthesizedClip{}
	s.queue = s.queue[1:]
	return clip, true
}

// dispatch is the background goroutine that pulls clips from the queue and
// writes their PCM to the sink. It runs until [Close] is called.
func (s *Scheduler) dispatch() {
	var lastPlayed bool // true if a clip was just played (for gap insertion)

	gapTimer := time.NewTimer(0)
	if !gapTimer.Stop() {
		<-gapTimer.C
	}
	defer gapTimer.Stop()

	for {
		// Wait for work or shutdown.
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			clip, ok := s.dequeue()
			if !ok {
				break
			}

			// Insert gap between consecutive clips.
			if lastPlayed {
				gapDur := s.gapWithJitter()
				if gapDur > 0 {
					gapTimer.Reset(gapDur)
					select {
					case <-s.done:
						if !gapTimer.Stop() {
							<-gapTimer.C
						}
						return
					case <-gapTimer.C:
					}
				}
			}

			if !s.play(clip) {
				return // scheduler closed mid-clip
			}
			lastPlayed = true
		}
	}
}

// play writes clip to the sink in [chunkMs] slices. Returns false if the
// scheduler was closed before the clip finished.
func (s *Scheduler) play(clip types.SynthesizedClip) bool {
	if len(clip.PCM) == 0 || clip.SampleRate <= 0 || clip.Channels <= 0 {
		return true
	}

	chunkBytes := clip.SampleRate * chunkMs / 1000 * clip.Channels * 2

	for off := 0; off < len(clip.PCM); off += chunkBytes {
		end := min(off+chunkBytes, len(clip.PCM))
		frame := audio.Frame{
			Data:          clip.PCM[off:end],
			SampleRate:    clip.SampleRate,
			Channels:      clip.Channels,
			ParticipantID: clip.ParticipantID,
			Seq:           clip.Seq,
		}
		select {
		case s.sink <- frame:
		case <-s.done:
			return false
		}
	}
	return true
}

// gapWithJitter returns the configured gap duration with ±1/6 jitter applied.
// Returns zero if the base gap is zero.
func (s *Scheduler) gapWithJitter() time.Duration {
	s.mu.Lock()
	base := s.gap
	s.mu.Unlock()

	if base <= 0 {
		return 0
	}

	jitterRange := base / 6
	if jitterRange <= 0 {
		return base
	}

	// rand/v2 is concurrency-safe with the global source.
	jitter := time.Duration(rand.Int64N(int64(2*jitterRange+1))) - jitterRange
	return base + jitter
}
