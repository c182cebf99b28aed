package memory

import "context"

// Store persists memories and answers nearest-neighbour queries over their
// embeddings. Implementations must be safe for concurrent use.
type Store interface {
	// Save upserts one memory; an existing entry with the same ID is replaced.
	Save(ctx context.Context, m Memory) error

	// Search returns the topK stored memories closest to the query embedding,
	// ordered by ascending distance.
	Search(ctx context.Context, embedding []float32, topK int) ([]Result, error)

	// List returns up to limit memories, newest first.
	List(ctx context.Context, limit int) ([]Memory, error)

	// Count returns the total number of stored memories.
	Count(ctx context.Context) (int, error)

	// Delete removes one memory by ID. Deleting a missing ID is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every memory and returns how many were deleted.
	DeleteAll(ctx context.Context) (int64, error)

	// Close releases the store's resources.
	Close()
}
