package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
)

// Pipeline processes document changes emitted by connectors. Each document
// flows through change detection, upsert, chunking, embedding and vector
// storage. Processing is idempotent: an unchanged document is skipped, and
// re-processing a changed one replaces its chunks and vectors wholesale.
type Pipeline struct {
	documents driven.DocumentStore
	vectors   driven.VectorStore
	chunker   *Chunker
	embedder  *Embedder
	logger    zerolog.Logger
}

// New creates a pipeline over the given stores.
func New(
	documents driven.DocumentStore,
	vectors driven.VectorStore,
	chunker *Chunker,
	embedder *Embedder,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		documents: documents,
		vectors:   vectors,
		chunker:   chunker,
		embedder:  embedder,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// Outcome reports what one ProcessChange call did, for run accounting.
type Outcome int

const (
	// OutcomeSkipped means the document was unchanged.
	OutcomeSkipped Outcome = iota
	// OutcomeCreated means a new document was indexed.
	OutcomeCreated
	// OutcomeUpdated means an existing document was re-indexed.
	OutcomeUpdated
	// OutcomeDeleted means a tombstone was recorded and vectors removed.
	OutcomeDeleted
)

// ProcessChange routes a connector change event. Deletions tombstone the
// stored document and remove its vectors; creations and updates flow
// through ProcessDocument.
func (p *Pipeline) ProcessChange(ctx context.Context, account *domain.Account, change domain.DocumentChange) (Outcome, error) {
	if change.Type == domain.ChangeDeleted {
		return p.processDeletion(ctx, account, change.Document.ExternalID)
	}
	return p.ProcessDocument(ctx, account, change.Document)
}

// ProcessDocument indexes one raw document. Unchanged content (same hash as
// the stored row) is skipped entirely. Changed content is upserted, chunked,
// embedded, written to the vector store, and its chunks replaced. The
// document is marked indexed only after both writes succeed.
func (p *Pipeline) ProcessDocument(ctx context.Context, account *domain.Account, raw domain.RawDocument) (Outcome, error) {
	text := string(raw.Content)
	hash := hashContent(text)

	existing, err := p.documents.FindByExternalID(ctx, account.ID, raw.ExternalID)
	switch {
	case err == nil:
		if existing.ContentHash == hash && existing.IndexedAt != nil && !existing.Tombstoned() {
			p.logger.Debug().
				Str("external_id", raw.ExternalID).
				Msg("document unchanged, skipping")
			return OutcomeSkipped, nil
		}
	case errors.Is(err, domain.ErrNotFound):
		existing = nil
	default:
		return OutcomeSkipped, fmt.Errorf("looking up document: %w", err)
	}

	doc := &domain.SourceDocument{
		ID:          uuid.NewString(),
		AccountID:   account.ID,
		SourceType:  account.SourceType,
		ExternalID:  raw.ExternalID,
		Name:        raw.Name,
		ContentType: raw.ContentType,
		ContentHash: hash,
		Metadata:    cloneMetadata(raw.Metadata),
	}
	if existing != nil {
		doc.ID = existing.ID
		doc.CreatedAt = existing.CreatedAt
	}

	created, err := p.documents.UpsertDocument(ctx, doc)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("upserting document: %w", err)
	}

	chunks := p.chunker.Chunk(doc, text)
	if err := p.indexChunks(ctx, account, doc, chunks); err != nil {
		return OutcomeSkipped, err
	}

	if err := p.documents.MarkIndexed(ctx, doc.ID); err != nil {
		return OutcomeSkipped, fmt.Errorf("marking indexed: %w", err)
	}

	if created {
		return OutcomeCreated, nil
	}
	return OutcomeUpdated, nil
}

// indexChunks embeds and stores a document's chunks. Vector upsert happens
// before chunk replacement so a crash between the two leaves stale chunks
// pointing at fresh vectors rather than fresh chunks with no vectors; the
// document stays unmarked until both complete.
func (p *Pipeline) indexChunks(ctx context.Context, account *domain.Account, doc *domain.SourceDocument, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return p.documents.ReplaceChunks(ctx, doc.ID, nil)
	}

	vectors, err := p.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		// Partial batches are not indexed: a half-embedded document
		// would be unsearchable for its missing regions.
		return fmt.Errorf("embedding %q: %w", doc.Name, err)
	}

	metadata := map[string]any{
		"account_id":  account.ID,
		"source_type": account.SourceType,
		"document_id": doc.ID,
		"name":        doc.Name,
	}
	if err := p.vectors.Upsert(ctx, vectors, metadata); err != nil {
		return fmt.Errorf("storing vectors for %q: %w", doc.Name, err)
	}

	if err := p.documents.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return fmt.Errorf("replacing chunks for %q: %w", doc.Name, err)
	}
	return nil
}

// processDeletion keeps the stored row as a tombstone and removes its
// vectors so the deleted content stops surfacing in search.
func (p *Pipeline) processDeletion(ctx context.Context, account *domain.Account, externalID string) (Outcome, error) {
	doc, err := p.documents.FindByExternalID(ctx, account.ID, externalID)
	if errors.Is(err, domain.ErrNotFound) {
		return OutcomeSkipped, nil
	}
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("looking up deleted document: %w", err)
	}

	chunks, err := p.documents.GetChunks(ctx, doc.ID)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("loading chunks for deletion: %w", err)
	}
	chunkIDs := make([]string, len(chunks))
	for i, ch := range chunks {
		chunkIDs[i] = ch.ID
	}
	if err := p.vectors.Delete(ctx, chunkIDs); err != nil {
		return OutcomeSkipped, fmt.Errorf("deleting vectors: %w", err)
	}

	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any)
	}
	doc.Metadata[domain.TombstoneKey] = true
	if _, err := p.documents.UpsertDocument(ctx, doc); err != nil {
		return OutcomeSkipped, fmt.Errorf("tombstoning document: %w", err)
	}

	p.logger.Debug().Str("external_id", externalID).Msg("document tombstoned")
	return OutcomeDeleted, nil
}

// Run drains a connector's change stream into the pipeline, updating the
// run's counters as it goes. The sync protocol terminates the error channel
// with a completion sentinel carrying the new cursor. Cancellation stops
// consumption; the run is finalized as cancelled by the caller.
func (p *Pipeline) Run(
	ctx context.Context,
	account *domain.Account,
	run *domain.SyncRun,
	changes <-chan domain.DocumentChange,
	errs <-chan error,
) error {
	for {
		select {
		case <-ctx.Done():
			run.Status = domain.SyncCancelled
			return ctx.Err()

		case change, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			run.Seen++
			outcome, err := p.ProcessChange(ctx, account, change)
			if err != nil {
				run.Failed++
				p.logger.Warn().
					Err(err).
					Str("external_id", change.Document.ExternalID).
					Msg("document processing failed")
				continue
			}
			switch outcome {
			case OutcomeCreated:
				run.Created++
			case OutcomeUpdated, OutcomeDeleted:
				run.Updated++
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if complete, done := driven.IsSyncComplete(err); done {
				// Drain remaining buffered changes before finishing.
				if changes == nil {
					changes = closedChanges
				}
				for change := range changes {
					run.Seen++
					outcome, perr := p.ProcessChange(ctx, account, change)
					if perr != nil {
						run.Failed++
						continue
					}
					switch outcome {
					case OutcomeCreated:
						run.Created++
					case OutcomeUpdated, OutcomeDeleted:
						run.Updated++
					}
				}
				run.Cursor = complete.NewCursor
				if run.Failed > 0 {
					run.Status = domain.SyncCompletedWithErrors
				} else {
					run.Status = domain.SyncCompleted
				}
				now := time.Now().UTC()
				run.FinishedAt = &now
				return nil
			}
			run.Status = domain.SyncFailed
			return fmt.Errorf("sync stream: %w", err)
		}
	}
}

// closedChanges stands in for an already-drained change channel so the
// completion drain loop terminates immediately.
var closedChanges = func() <-chan domain.DocumentChange {
	ch := make(chan domain.DocumentChange)
	close(ch)
	return ch
}()

func hashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func cloneMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
