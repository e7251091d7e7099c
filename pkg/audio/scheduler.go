package audio

import "github.com/MrWong99/voxlate/pkg/types"

// Scheduler serializes synthesized clips from all participant pipelines onto
// the single shared output of a voice session. It guarantees that exactly one
// clip plays at a time — clips are never mixed or overlapped — and that clips
// play in global FIFO order of arrival at the scheduler. Per-participant
// ordering holds because each pipeline enqueues its own clips strictly in
// utterance sequence order; the scheduler itself imposes no cross-participant
// ordering beyond arrival.
//
// Implementations must be safe for concurrent use.
type Scheduler interface {
	// Enqueue schedules clip for playback. It never blocks the caller: the
	// queue is unbounded, and a scheduler whose output device is gone accepts
	// and silently discards clips.
	Enqueue(clip types.SynthesizedClip)

	// DropParticipant purges every queued, not-yet-played clip belonging to
	// the given participant. A clip already being played is not cut short.
	// Used when a participant leaves mid-pipeline.
	DropParticipant(participantID string)

	// QueueDepth reports the number of clips waiting to be played, excluding
	// the one currently playing. Exposed for observability gauges.
	QueueDepth() int

	// Close stops playback, discards all queued clips without error, and
	// releases the dispatch goroutine. Close is idempotent; subsequent calls
	// are no-ops and return nil.
	Close() error
}
