// Package embed provides the pluggable embedding collaborator: text in,
// fixed-dimension vectors out. All chunks in a vault must share one
// dimension, enforced by the store at EnsureVault time.
package embed

import "context"

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed embedding dimension this Embedder
	// produces.
	Dimensions() int

	// ModelName identifies the embedding model, used as part of the
	// embedding cache key so two models never collide on the same text.
	ModelName() string

	// Available reports whether the embedder is ready to serve requests.
	Available(ctx context.Context) bool

	// Close releases any resources held by the embedder.
	Close() error
}
