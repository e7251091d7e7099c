package relay

import "sync"

// seqGate serializes the publication step of one participant's utterance
// workers. Workers may transcribe, translate and synthesize concurrently, but
// each must hold its turn before publishing, and turns are granted in strict
// sequence order.
//
// A worker that fails or is cancelled still calls release, so a dead sequence
// number never blocks its successors.
type seqGate struct {
	mu      sync.Mutex
	next    uint64 // sequence number whose turn it currently is
	done    map[uint64]struct{}
	waiters map[uint64]chan struct{}
}

// newSeqGate creates a gate whose first turn belongs to sequence 1, matching
// the segmenter's numbering.
func newSeqGate() *seqGate {
	return &seqGate{
		next:    1,
		done:    make(map[uint64]struct{}),
		waiters: make(map[uint64]chan struct{}),
	}
}

// turn returns a channel that is closed once it is seq's turn to publish.
// Callers select on it together with their context so cancellation can win.
func (g *seqGate) turn(seq uint64) <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch := make(chan struct{})
	if seq <= g.next {
		close(ch)
		return ch
	}
	if existing, ok := g.waiters[seq]; ok {
		return existing
	}
	g.waiters[seq] = ch
	return ch
}

// release marks seq as finished and advances the turn past every consecutive
// finished sequence, waking the next waiter if one is parked.
func (g *seqGate) release(seq uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.done[seq] = struct{}{}
	for {
		if ch, ok := g.waiters[g.next]; ok {
			close(ch)
			delete(g.waiters, g.next)
		}
		if _, ok := g.done[g.next]; !ok {
			break
		}
		delete(g.done, g.next)
		g.next++
	}
}
