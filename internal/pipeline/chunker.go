// Package pipeline implements the chunking and embedding pipeline:
// documents are split into overlapping chunks, embedded in batches against
// the embedding backend (cache-checked, retried), and forwarded to the
// vector store.
package pipeline

import (
	"strings"

	"github.com/google/uuid"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Chunker splits document content into bounded, overlapping chunks.
// Splitting is deterministic: the same text always yields the same chunk
// boundaries.
type Chunker struct {
	chunkSize int
	overlap   int
}

// ChunkerOption configures the chunker.
type ChunkerOption func(*Chunker)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// NewChunker creates a chunker with the given options.
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Overlap must leave room for forward progress.
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// Chunk splits a document's text into chunks with contiguous ordinals from
// 0. Paragraph and line boundaries are preserved where one falls in the
// second half of the window; otherwise the text is split at the size limit
// and the next chunk starts overlap characters earlier. Every character of
// the input appears in at least one chunk.
func (c *Chunker) Chunk(doc *domain.SourceDocument, text string) []domain.Chunk {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	total := len(runes)

	estimated := total/(c.chunkSize-c.overlap) + 1
	chunks := make([]domain.Chunk, 0, estimated)

	start := 0
	for start < total {
		end := start + c.chunkSize
		if end >= total {
			end = total
		} else {
			end = c.boundaryBefore(runes, start, end)
		}

		chunks = append(chunks, domain.Chunk{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			Ordinal:    len(chunks),
			Content:    string(runes[start:end]),
			Start:      start,
			End:        end,
			Metadata:   inheritMetadata(doc),
		})

		if end == total {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// boundaryBefore finds a preferred split point at or before limit. A
// paragraph break wins over a line break; both must fall in the second
// half of the window so honouring a boundary never produces a tiny chunk.
// Returns limit when no boundary qualifies (hard split).
func (c *Chunker) boundaryBefore(runes []rune, start, limit int) int {
	window := string(runes[start:limit])
	minCut := c.chunkSize / 2

	if idx := strings.LastIndex(window, "\n\n"); idx >= 0 {
		if cut := len([]rune(window[:idx])); cut >= minCut {
			return start + cut + 2
		}
	}
	if idx := strings.LastIndex(window, "\n"); idx >= 0 {
		if cut := len([]rune(window[:idx])); cut >= minCut {
			return start + cut + 1
		}
	}
	return limit
}

// inheritMetadata copies the chunk-visible document fields.
func inheritMetadata(doc *domain.SourceDocument) map[string]any {
	return map[string]any{
		"source_type": doc.SourceType,
		"title":       doc.Name,
	}
}

// Reassemble reconstructs the original text from chunks by trimming each
// chunk's leading overlap with its predecessor. Inverse of Chunk.
func Reassemble(chunks []domain.Chunk) string {
	var b strings.Builder
	prevEnd := 0
	for _, ch := range chunks {
		runes := []rune(ch.Content)
		if ch.Start < prevEnd {
			runes = runes[prevEnd-ch.Start:]
		}
		b.WriteString(string(runes))
		prevEnd = ch.End
	}
	return b.String()
}
