package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
type DocumentStore struct {
	mu     sync.RWMutex
	byID   map[string]domain.SourceDocument
	byExt  map[string]string // accountID+"/"+externalID -> document ID
	chunks map[string][]domain.Chunk
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		byID:   make(map[string]domain.SourceDocument),
		byExt:  make(map[string]string),
		chunks: make(map[string][]domain.Chunk),
	}
}

func externalKey(accountID, externalID string) string {
	return accountID + "/" + externalID
}

// UpsertDocument stores a document keyed by (AccountID, ExternalID).
func (s *DocumentStore) UpsertDocument(_ context.Context, doc *domain.SourceDocument) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := externalKey(doc.AccountID, doc.ExternalID)
	existingID, exists := s.byExt[key]
	if exists && existingID != doc.ID {
		// The external object keeps one row; a replacement ID supersedes it.
		delete(s.byID, existingID)
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	s.byID[doc.ID] = *doc
	s.byExt[key] = doc.ID
	return !exists, nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.SourceDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &doc, nil
}

// FindByExternalID retrieves a document by its source-native identifier.
func (s *DocumentStore) FindByExternalID(_ context.Context, accountID, externalID string) (*domain.SourceDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byExt[externalKey(accountID, externalID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc := s.byID[id]
	return &doc, nil
}

// ReplaceChunks supersedes a document's chunks.
func (s *DocumentStore) ReplaceChunks(_ context.Context, documentID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]domain.Chunk, len(chunks))
	copy(stored, chunks)
	s.chunks[documentID] = stored
	return nil
}

// GetChunks retrieves a document's chunks in ordinal order.
func (s *DocumentStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chunks := s.chunks[documentID]
	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)
	return out, nil
}

// ListDocuments returns documents for an account.
func (s *DocumentStore) ListDocuments(_ context.Context, accountID string) ([]domain.SourceDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SourceDocument
	for _, doc := range s.byID {
		if doc.AccountID == accountID {
			out = append(out, doc)
		}
	}
	return out, nil
}

// MarkIndexed records when a document's vectors reached the vector store.
func (s *DocumentStore) MarkIndexed(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.byID[documentID]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	doc.IndexedAt = &now
	s.byID[documentID] = doc
	return nil
}
