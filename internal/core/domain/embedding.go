package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// EmbeddingVector is the output of running a chunk through the embedding
// backend. Vectors are never mutated, only replaced wholesale when the chunk
// text changes.
type EmbeddingVector struct {
	// ChunkID is the originating chunk.
	ChunkID string

	// Model is the embedding model identifier. Dimension is constant for
	// a given model.
	Model string

	// ContentHash is the cache/deduplication key, a pure function of
	// (model, normalized chunk text).
	ContentHash string

	// Values is the fixed-dimension vector.
	Values []float32

	// Dimension is len(Values), recorded for validation against the model.
	Dimension int
}

// ContentHash computes the cache key for a chunk text under a model.
// Text is normalized (whitespace-trimmed) so formatting-only differences
// share an entry.
func ContentHash(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(h.Sum(nil))
}
