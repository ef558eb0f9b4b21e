package domain

import "time"

// RawDocument represents one unit of content fetched by a connector,
// before chunking. It is the connector's output.
type RawDocument struct {
	// AccountID links to the Account that produced this document.
	AccountID string

	// ExternalID is the source-native identifier (e.g., "owner/repo/path@sha",
	// a Drive file ID, an upload path). Unique within an account.
	ExternalID string

	// Name is the human-readable title.
	Name string

	// ContentType is the MIME type (e.g., "text/markdown").
	ContentType string

	// Content is the document text.
	Content []byte

	// ModifiedAt is the source-side modification time, when known.
	ModifiedAt time.Time

	// Metadata contains connector-specific key-value pairs.
	Metadata map[string]any
}

// SourceDocument is the persisted record of a fetched document.
// (AccountID, ExternalID) is unique: re-fetching the same external object
// updates the existing row. Rows are never deleted automatically; origin-side
// deletion is recorded as a tombstone and garbage collection is left to the
// caller.
type SourceDocument struct {
	// ID is the unique identifier (UUID).
	ID string

	// AccountID links to the owning Account.
	AccountID string

	// SourceType identifies the connector type that fetched it.
	SourceType string

	// ExternalID is the source-native identifier.
	ExternalID string

	// Name is the human-readable title.
	Name string

	// ContentType is the MIME type.
	ContentType string

	// ContentHash is a hash of the document text, used for change detection.
	ContentHash string

	// Metadata contains free-form key-value pairs.
	Metadata map[string]any

	// IndexedAt is when the document's chunks last reached the vector store.
	// Nil until the first successful indexing.
	IndexedAt *time.Time

	// CreatedAt is when the document was first fetched.
	CreatedAt time.Time
	// UpdatedAt is when the document was last updated.
	UpdatedAt time.Time
}

// TombstoneKey marks a SourceDocument whose origin object was deleted.
// The row is kept; callers garbage-collect tombstoned rows on their own
// schedule.
const TombstoneKey = "tombstone"

// Tombstoned returns true if the origin object was deleted.
func (d *SourceDocument) Tombstoned() bool {
	v, ok := d.Metadata[TombstoneKey]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// Chunk is a bounded slice of a SourceDocument's text. Ordinals are
// contiguous from 0; concatenating chunks minus overlap reconstructs the
// document text.
type Chunk struct {
	// ID is the unique identifier (UUID).
	ID string

	// DocumentID links to the parent SourceDocument.
	DocumentID string

	// Ordinal is the position within the document, starting at 0.
	Ordinal int

	// Content is the chunk text.
	Content string

	// Start and End are character offsets into the document text.
	Start int
	End   int

	// Metadata is inherited from the parent (source type, document title).
	Metadata map[string]any
}

// ChangeType represents the type of document change reported by an
// incremental sync.
type ChangeType int

const (
	// ChangeCreated indicates a new document.
	ChangeCreated ChangeType = iota
	// ChangeUpdated indicates a modified document.
	ChangeUpdated
	// ChangeDeleted indicates a removed document.
	ChangeDeleted
)

// DocumentChange represents a change event from a connector.
type DocumentChange struct {
	// Type is the kind of change.
	Type ChangeType

	// Document is the affected document. For ChangeDeleted only
	// ExternalID is populated.
	Document RawDocument
}
