// Package mock provides a test double for the embeddings.Provider interface.
//
// Script per-call behaviour through the Queue; once it is drained every
// further call answers with Default. For cache tests that need stable,
// text-dependent vectors regardless of call order, set EmbedFunc — usually
// to a closure over UnitVector.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/MrWong99/voxlate/pkg/provider/embeddings"
)

// UnitVector derives a deterministic unit-length vector of the given
// dimension from text. Identical texts map to identical vectors, so cosine
// similarity between them is exactly 1; unrelated texts land elsewhere on the
// sphere. Handy as an EmbedFunc for semantic-cache tests.
func UnitVector(text string, dims int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, dims)
	var norm float64
	for i := range vec {
		v := rng.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Response scripts the outcome of a single Embed call.
type Response struct {
	// Vector is returned when Err is nil.
	Vector []float32
	// Err is the error to return.
	Err error
	// Delay postpones the response; the call aborts early if ctx is done.
	Delay time.Duration
}

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// EmbedFunc, when set, answers every call instead of Queue/Default.
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)

	// Queue holds scripted responses, consumed one per call in order.
	Queue []Response

	// Default is returned once Queue is drained.
	Default Response

	// DimensionsValue is returned by Dimensions.
	DimensionsValue int

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// EmbedCalls records every embedded text, in call order.
	EmbedCalls []string
}

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)

// Embed records the text and answers with the next scripted response.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	fn := p.EmbedFunc
	r := p.Default
	if fn == nil && len(p.Queue) > 0 {
		r = p.Queue[0]
		p.Queue = p.Queue[1:]
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}

	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Vector, nil
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.DimensionsValue
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// Calls returns how many Embed calls have been recorded. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.EmbedCalls)
}

// Reset clears recorded calls and any unconsumed queue entries. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EmbedCalls = nil
	p.Queue = nil
}
