package driven

import (
	"context"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

// AccountStore persists connected accounts.
type AccountStore interface {
	// Save stores or updates an account.
	Save(ctx context.Context, account *domain.Account) error

	// Get retrieves an account by ID. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, id string) (*domain.Account, error)

	// FindActiveByIdentity returns the active account for a
	// (user, source type, external identity) triple, or domain.ErrNotFound.
	// Backs the at-most-one-active-account invariant.
	FindActiveByIdentity(ctx context.Context, userID, sourceType, identity string) (*domain.Account, error)

	// List returns all accounts, including disconnected ones.
	List(ctx context.Context) ([]domain.Account, error)
}

// DocumentStore persists source documents and their chunks.
type DocumentStore interface {
	// UpsertDocument stores a document keyed by (AccountID, ExternalID).
	// Re-fetching the same external object updates the existing row.
	// Returns true when a new row was created.
	UpsertDocument(ctx context.Context, doc *domain.SourceDocument) (created bool, err error)

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.SourceDocument, error)

	// FindByExternalID retrieves a document by its source-native identifier.
	FindByExternalID(ctx context.Context, accountID, externalID string) (*domain.SourceDocument, error)

	// ReplaceChunks supersedes a document's chunks: old chunks are removed,
	// the given ones stored.
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error

	// GetChunks retrieves a document's chunks in ordinal order.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// ListDocuments returns documents for an account.
	ListDocuments(ctx context.Context, accountID string) ([]domain.SourceDocument, error)

	// MarkIndexed records when a document's vectors reached the vector store.
	MarkIndexed(ctx context.Context, documentID string) error
}

// SyncRunStore persists the sync audit trail.
type SyncRunStore interface {
	// Create stores a new run in running state.
	Create(ctx context.Context, run *domain.SyncRun) error

	// Finalize records the terminal status, counts and cursor of a run.
	// A finalized run is immutable; finalizing twice is an error.
	Finalize(ctx context.Context, run *domain.SyncRun) error

	// Get retrieves a run by ID.
	Get(ctx context.Context, id string) (*domain.SyncRun, error)

	// ListByAccount returns an account's runs, most recent first.
	ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.SyncRun, error)
}
