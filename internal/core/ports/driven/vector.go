package driven

import (
	"context"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

// VectorStore persists embedding vectors keyed by chunk ID with full
// metadata payload for later filtering. Upserts are idempotent: writing
// the same chunk ID twice replaces the vector (at-least-once delivery
// with idempotent upsert).
type VectorStore interface {
	// Upsert writes vectors. Existing chunk IDs are replaced wholesale.
	Upsert(ctx context.Context, vectors []domain.EmbeddingVector, metadata map[string]any) error

	// Delete removes vectors by chunk ID. Missing IDs are not an error.
	Delete(ctx context.Context, chunkIDs []string) error

	// Close releases resources.
	Close() error
}
