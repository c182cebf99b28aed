// Package embeddings defines the text-embedding provider used by the
// semantic memory layer.
package embeddings

import "context"

// Provider turns free text into a dense vector for nearest-neighbour search.
type Provider interface {
	// Embed returns the embedding vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions is the output vector size of the configured model.
	Dimensions() int

	// ModelID identifies the underlying model (for logs and diagnostics).
	ModelID() string
}
