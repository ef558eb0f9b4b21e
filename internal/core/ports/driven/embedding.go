package driven

import "context"

// EmbeddingService generates vector embeddings from text by calling the
// embedding backend's batch endpoint.
type EmbeddingService interface {
	// EmbedBatch generates embeddings for multiple texts in one call.
	// Results are positional: result i corresponds to texts[i].
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding vector size for the configured model.
	Dimensions() int

	// ModelName returns the embedding model identifier.
	ModelName() string

	// Ping validates the backend is reachable with a lightweight request.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}
