// Package embeddings defines the interface for text embedding providers.
//
// Embedding vectors back the semantic translation cache: before an utterance
// is sent to the translation backend, its vector is compared against
// previously translated utterances for the same language pair, and a close
// enough match reuses the stored translation instead of issuing a fresh
// request. Vectors never influence playback or transcripts directly.
//
// Implementations live in subpackages:
//   - openai: OpenAI embeddings API (text-embedding-3-small and friends)
//   - ollama: local Ollama server (nomic-embed-text and friends)
//   - mock: scriptable in-memory double for tests
package embeddings

import "context"

// Provider computes dense vector representations of text.
//
// Unlike the speech and translation providers, Provider errors carry no
// retry classification: the cache treats any failure as a miss and falls
// through to the translation backend, so there is nothing useful to retry.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed returns the embedding vector for a single text. The text is
	// passed through verbatim; any model-specific prompt formatting is the
	// caller's responsibility.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the fixed length of vectors produced by this
	// provider. The cache uses it to size its vector column; entries
	// embedded at a different dimension are never comparable.
	Dimensions() int

	// ModelID returns the identifier of the underlying embedding model.
	// Cache entries record it so lookups only match vectors produced by
	// the same model.
	ModelID() string
}
