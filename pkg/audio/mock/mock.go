// Package mock provides in-memory mock implementations of the [audio.Platform],
// [audio.Connection], and [audio.Scheduler] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	out := make(chan audio.Frame, 16)
//	conn := &mock.Connection{
//	    InputStreamsResult: map[string]<-chan audio.Frame{
//	        "user-1": make(chan audio.Frame),
//	    },
//	    OutputStreamResult: out,
//	}
//	platform := &mock.Platform{ConnectResult: conn}
//	got, err := platform.Connect(ctx, "channel-42")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxlate/pkg/audio"
	"github.com/MrWong99/voxlate/pkg/types"
)

// ─── Connection ───────────────────────────────────────────────────────────────

// Connection is a mock implementation of [audio.Connection].
// Set the exported Result fields before use; inspect the Call* fields after.
type Connection struct {
	mu sync.Mutex

	// InputStreamsResult is returned by [Connection.InputStreams].
	// Defaults to an empty (non-nil) map if left nil.
	InputStreamsResult map[string]<-chan audio.Frame

	// OutputStreamResult is returned by [Connection.OutputStream].
	OutputStreamResult chan<- audio.Frame

	// DisconnectError is returned by [Connection.Disconnect].
	DisconnectError error

	// CallCountInputStreams records how many times InputStreams was called.
	CallCountInputStreams int

	// CallCountOutputStream records how many times OutputStream was called.
	CallCountOutputStream int

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	// CallCountOnParticipantChange records how many times OnParticipantChange was called.
	CallCountOnParticipantChange int

	// RecordedCallbacks holds the callbacks registered via OnParticipantChange,
	// in order of registration.
	RecordedCallbacks []func(audio.Event)
}

// InputStreams implements [audio.Connection]. Returns InputStreamsResult.
// If InputStreamsResult is nil, an empty non-nil map is returned.
func (c *Connection) InputStreams() map[string]<-chan audio.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountInputStreams++
	if c.InputStreamsResult == nil {
		return map[string]<-chan audio.Frame{}
	}
	return c.InputStreamsResult
}

// OutputStream implements [audio.Connection]. Returns OutputStreamResult.
func (c *Connection) OutputStream() chan<- audio.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountOutputStream++
	return c.OutputStreamResult
}

// OnParticipantChange implements [audio.Connection].
// The callback is appended to RecordedCallbacks. To simulate events in tests,
// call [Connection.EmitEvent].
func (c *Connection) OnParticipantChange(cb func(audio.Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountOnParticipantChange++
	c.RecordedCallbacks = append(c.RecordedCallbacks, cb)
}

// Disconnect implements [audio.Connection]. Returns DisconnectError.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountDisconnect++
	return c.DisconnectError
}

// EmitEvent calls all registered participant-change callbacks with the given event.
// Use this in tests to simulate participants joining or leaving.
func (c *Connection) EmitEvent(ev audio.Event) {
	c.mu.Lock()
	cbs := make([]func(audio.Event), len(c.RecordedCallbacks))
	copy(cbs, c.RecordedCallbacks)
	c.mu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// ConnectCall records the arguments of a single [Platform.Connect] invocation.
type ConnectCall struct {
	// ChannelID is the channelID argument passed to Connect.
	ChannelID string
}

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectResult is the [audio.Connection] returned by Connect.
	ConnectResult audio.Connection

	// ConnectError is the error returned by Connect.
	ConnectError error

	// ConnectCalls records all Connect invocations.
	ConnectCalls []ConnectCall
}

// Connect implements [audio.Platform]. Records the call and returns ConnectResult / ConnectError.
func (p *Platform) Connect(_ context.Context, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{ChannelID: channelID})
	return p.ConnectResult, p.ConnectError
}

// ─── Scheduler ────────────────────────────────────────────────────────────────

// Scheduler is a mock implementation of [audio.Scheduler].
type Scheduler struct {
	mu sync.Mutex

	// QueueDepthResult is returned by [Scheduler.QueueDepth].
	QueueDepthResult int

	// CloseError is returned by [Scheduler.Close].
	CloseError error

	// EnqueueCalls records all clips passed to Enqueue, in order.
	EnqueueCalls []types.SynthesizedClip

	// DropParticipantCalls records the participant IDs passed to DropParticipant.
	DropParticipantCalls []string

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Enqueue implements [audio.Scheduler]. Records the clip.
func (s *Scheduler) Enqueue(clip types.SynthesizedClip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EnqueueCalls = append(s.EnqueueCalls, clip)
}

// DropParticipant implements [audio.Scheduler]. Records the participant ID.
func (s *Scheduler) DropParticipant(participantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DropParticipantCalls = append(s.DropParticipantCalls, participantID)
}

// QueueDepth implements [audio.Scheduler]. Returns QueueDepthResult.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.QueueDepthResult
}

// Close implements [audio.Scheduler]. Returns CloseError.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

// Enqueued returns a snapshot of all clips recorded so far.
func (s *Scheduler) Enqueued() []types.SynthesizedClip {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make([]types.SynthesizedClip, len(s.EnqueueCalls))
	copy(snap, s.EnqueueCalls)
	return snap
}
