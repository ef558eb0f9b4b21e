package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

func testDoc() *domain.SourceDocument {
	return &domain.SourceDocument{
		ID:         "doc-1",
		SourceType: "github",
		Name:       "README.md",
	}
}

func TestChunkEmptyText(t *testing.T) {
	c := NewChunker()
	assert.Nil(t, c.Chunk(testDoc(), ""))
}

func TestChunkShortText(t *testing.T) {
	c := NewChunker()
	chunks := c.Chunk(testDoc(), "hello world")

	require.Len(t, chunks, 1)
	assert.Equal(t, "hello world", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Ordinal)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 11, chunks[0].End)
	assert.Equal(t, "doc-1", chunks[0].DocumentID)
	assert.Equal(t, "github", chunks[0].Metadata["source_type"])
	assert.Equal(t, "README.md", chunks[0].Metadata["title"])
}

func TestChunkOverlap(t *testing.T) {
	// 1200 characters with no natural boundaries: two chunks, the second
	// starting overlap characters before the first ends.
	text := strings.Repeat("a", 1200)
	c := NewChunker()
	chunks := c.Chunk(testDoc(), text)

	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 1000, chunks[0].End)
	assert.Equal(t, 800, chunks[1].Start)
	assert.Equal(t, 1200, chunks[1].End)

	// The overlap region appears in both chunks.
	first := chunks[0].Content
	second := chunks[1].Content
	assert.Equal(t, first[800:], second[:200])
}

func TestChunkOrdinalsContiguous(t *testing.T) {
	text := strings.Repeat("x", 5000)
	c := NewChunker()
	chunks := c.Chunk(testDoc(), text)

	require.Greater(t, len(chunks), 1)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
	}
}

func TestChunkPrefersParagraphBoundary(t *testing.T) {
	// A paragraph break at position 700 falls in the second half of the
	// 1000-character window, so the first chunk ends there.
	text := strings.Repeat("a", 700) + "\n\n" + strings.Repeat("b", 600)
	c := NewChunker()
	chunks := c.Chunk(testDoc(), text)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, 702, chunks[0].End)
	assert.True(t, strings.HasSuffix(chunks[0].Content, "\n\n"))
}

func TestChunkIgnoresEarlyBoundary(t *testing.T) {
	// A line break in the first half of the window is ignored: honouring
	// it would produce a tiny chunk.
	text := strings.Repeat("a", 100) + "\n" + strings.Repeat("b", 1100)
	c := NewChunker()
	chunks := c.Chunk(testDoc(), text)

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, 1000, chunks[0].End)
}

func TestChunkClampsExcessiveOverlap(t *testing.T) {
	c := NewChunker(WithChunkSize(100), WithOverlap(500))
	assert.Equal(t, 25, c.overlap)
}

func TestChunkMultibyte(t *testing.T) {
	// Offsets count characters, not bytes.
	text := strings.Repeat("世界", 30)
	c := NewChunker(WithChunkSize(20), WithOverlap(5))
	chunks := c.Chunk(testDoc(), text)

	require.Greater(t, len(chunks), 1)
	assert.Equal(t, 20, chunks[0].End)
	assert.Equal(t, 20, len([]rune(chunks[0].Content)))
}

func TestReassemble(t *testing.T) {
	texts := []string{
		strings.Repeat("a", 1200),
		strings.Repeat("line of text\n", 300),
		"para one\n\n" + strings.Repeat("second paragraph text ", 80) + "\n\nlast",
		strings.Repeat("世界и", 700),
	}

	c := NewChunker()
	for _, text := range texts {
		chunks := c.Chunk(testDoc(), text)
		assert.Equal(t, text, Reassemble(chunks))
	}
}

func TestReassembleSmallChunks(t *testing.T) {
	c := NewChunker(WithChunkSize(10), WithOverlap(3))
	text := "the quick brown fox jumps over the lazy dog"
	assert.Equal(t, text, Reassemble(c.Chunk(testDoc(), text)))
}
