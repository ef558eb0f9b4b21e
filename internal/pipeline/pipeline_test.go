package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
)

type fakeDocStore struct {
	mu        sync.Mutex
	byExt     map[string]*domain.SourceDocument
	chunks    map[string][]domain.Chunk
	replaces  int
	upsertErr error
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{
		byExt:  make(map[string]*domain.SourceDocument),
		chunks: make(map[string][]domain.Chunk),
	}
}

func extKey(accountID, externalID string) string {
	return accountID + "/" + externalID
}

func (s *fakeDocStore) UpsertDocument(_ context.Context, doc *domain.SourceDocument) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return false, s.upsertErr
	}
	key := extKey(doc.AccountID, doc.ExternalID)
	_, exists := s.byExt[key]
	stored := *doc
	s.byExt[key] = &stored
	return !exists, nil
}

func (s *fakeDocStore) GetDocument(_ context.Context, id string) (*domain.SourceDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.byExt {
		if doc.ID == id {
			copied := *doc
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *fakeDocStore) FindByExternalID(_ context.Context, accountID, externalID string) (*domain.SourceDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.byExt[extKey(accountID, externalID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (s *fakeDocStore) ReplaceChunks(_ context.Context, documentID string, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaces++
	s.chunks[documentID] = chunks
	return nil
}

func (s *fakeDocStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks[documentID], nil
}

func (s *fakeDocStore) ListDocuments(_ context.Context, accountID string) ([]domain.SourceDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SourceDocument
	for _, doc := range s.byExt {
		if doc.AccountID == accountID {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (s *fakeDocStore) MarkIndexed(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.byExt {
		if doc.ID == documentID {
			now := time.Now().UTC()
			doc.IndexedAt = &now
			return nil
		}
	}
	return domain.ErrNotFound
}

type fakeVectorStore struct {
	mu       sync.Mutex
	upserts  int
	stored   map[string]domain.EmbeddingVector
	metadata map[string]any
	deleted  []string
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{stored: make(map[string]domain.EmbeddingVector)}
}

func (s *fakeVectorStore) Upsert(_ context.Context, vectors []domain.EmbeddingVector, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	s.metadata = metadata
	for _, v := range vectors {
		s.stored[v.ChunkID] = v
	}
	return nil
}

func (s *fakeVectorStore) Delete(_ context.Context, chunkIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range chunkIDs {
		delete(s.stored, id)
		s.deleted = append(s.deleted, id)
	}
	return nil
}

func (s *fakeVectorStore) Close() error { return nil }

type pipelineFixture struct {
	pipeline *Pipeline
	docs     *fakeDocStore
	vectors  *fakeVectorStore
	service  *fakeEmbedService
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	docs := newFakeDocStore()
	vectors := newFakeVectorStore()
	service := &fakeEmbedService{}
	embedder := newTestEmbedder(t, service)

	return &pipelineFixture{
		pipeline: New(docs, vectors, NewChunker(), embedder, zerolog.Nop()),
		docs:     docs,
		vectors:  vectors,
		service:  service,
	}
}

func testAccount() *domain.Account {
	return &domain.Account{
		ID:         "acct-1",
		UserID:     "user-1",
		SourceType: "github",
		Status:     domain.AccountConnected,
	}
}

func rawDoc(externalID, content string) domain.RawDocument {
	return domain.RawDocument{
		AccountID:   "acct-1",
		ExternalID:  externalID,
		Name:        externalID,
		ContentType: "text/markdown",
		Content:     []byte(content),
	}
}

func TestProcessDocumentCreates(t *testing.T) {
	f := newPipelineFixture(t)
	account := testAccount()

	outcome, err := f.pipeline.ProcessDocument(context.Background(), account, rawDoc("readme", "# Hello\n\nSome content."))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)

	doc, err := f.docs.FindByExternalID(context.Background(), "acct-1", "readme")
	require.NoError(t, err)
	assert.NotEmpty(t, doc.ContentHash)
	assert.NotNil(t, doc.IndexedAt)
	assert.Equal(t, "github", doc.SourceType)

	chunks, err := f.docs.GetChunks(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, f.vectors.stored, chunks[0].ID)
	assert.Equal(t, doc.ID, f.vectors.metadata["document_id"])
}

func TestProcessDocumentSkipsUnchanged(t *testing.T) {
	f := newPipelineFixture(t)
	account := testAccount()
	raw := rawDoc("readme", "stable content")

	outcome, err := f.pipeline.ProcessDocument(context.Background(), account, raw)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome)

	outcome, err = f.pipeline.ProcessDocument(context.Background(), account, raw)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Equal(t, 1, f.vectors.upserts)
	assert.Equal(t, 1, f.docs.replaces)
}

func TestProcessDocumentUpdatesChanged(t *testing.T) {
	f := newPipelineFixture(t)
	account := testAccount()

	_, err := f.pipeline.ProcessDocument(context.Background(), account, rawDoc("readme", "version one"))
	require.NoError(t, err)
	first, err := f.docs.FindByExternalID(context.Background(), "acct-1", "readme")
	require.NoError(t, err)

	outcome, err := f.pipeline.ProcessDocument(context.Background(), account, rawDoc("readme", "version two"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, outcome)

	second, err := f.docs.FindByExternalID(context.Background(), "acct-1", "readme")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.ContentHash, second.ContentHash)
}

func TestProcessDocumentPartialEmbeddingNotIndexed(t *testing.T) {
	f := newPipelineFixture(t)
	f.service.failFirst = 100
	account := testAccount()

	_, err := f.pipeline.ProcessDocument(context.Background(), account, rawDoc("readme", "doomed content"))
	require.Error(t, err)

	doc, err := f.docs.FindByExternalID(context.Background(), "acct-1", "readme")
	require.NoError(t, err)
	assert.Nil(t, doc.IndexedAt)
	assert.Zero(t, f.vectors.upserts)
}

func TestProcessDeletionTombstones(t *testing.T) {
	f := newPipelineFixture(t)
	account := testAccount()

	_, err := f.pipeline.ProcessDocument(context.Background(), account, rawDoc("readme", "to be deleted"))
	require.NoError(t, err)
	doc, err := f.docs.FindByExternalID(context.Background(), "acct-1", "readme")
	require.NoError(t, err)
	chunks, _ := f.docs.GetChunks(context.Background(), doc.ID)
	require.NotEmpty(t, chunks)

	outcome, err := f.pipeline.ProcessChange(context.Background(), account, domain.DocumentChange{
		Type:     domain.ChangeDeleted,
		Document: domain.RawDocument{ExternalID: "readme"},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeleted, outcome)

	// The row survives as a tombstone; its vectors do not.
	doc, err = f.docs.FindByExternalID(context.Background(), "acct-1", "readme")
	require.NoError(t, err)
	assert.True(t, doc.Tombstoned())
	assert.NotContains(t, f.vectors.stored, chunks[0].ID)
}

func TestProcessDeletionUnknownDocument(t *testing.T) {
	f := newPipelineFixture(t)

	outcome, err := f.pipeline.ProcessChange(context.Background(), testAccount(), domain.DocumentChange{
		Type:     domain.ChangeDeleted,
		Document: domain.RawDocument{ExternalID: "never-seen"},
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func startFakeSync(changes []domain.DocumentChange, final error) (<-chan domain.DocumentChange, <-chan error) {
	changeCh := make(chan domain.DocumentChange, len(changes))
	errCh := make(chan error, 1)
	for _, c := range changes {
		changeCh <- c
	}
	close(changeCh)
	errCh <- final
	close(errCh)
	return changeCh, errCh
}

func newRun(account *domain.Account, mode domain.SyncMode) *domain.SyncRun {
	return &domain.SyncRun{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		Mode:      mode,
		Status:    domain.SyncRunning,
		StartedAt: time.Now().UTC(),
	}
}

func TestRunCompletes(t *testing.T) {
	f := newPipelineFixture(t)
	account := testAccount()
	run := newRun(account, domain.SyncFull)

	changes, errs := startFakeSync([]domain.DocumentChange{
		{Type: domain.ChangeCreated, Document: rawDoc("a.md", "first")},
		{Type: domain.ChangeCreated, Document: rawDoc("b.md", "second")},
	}, &driven.SyncComplete{NewCursor: "cursor-42"})

	err := f.pipeline.Run(context.Background(), account, run, changes, errs)
	require.NoError(t, err)

	assert.Equal(t, domain.SyncCompleted, run.Status)
	assert.Equal(t, "cursor-42", run.Cursor)
	assert.Equal(t, 2, run.Seen)
	assert.Equal(t, 2, run.Created)
	assert.Zero(t, run.Failed)
	require.NotNil(t, run.FinishedAt)
}

func TestRunCompletedWithErrors(t *testing.T) {
	f := newPipelineFixture(t)
	f.service.failText = "poison"
	account := testAccount()
	run := newRun(account, domain.SyncFull)

	changes, errs := startFakeSync([]domain.DocumentChange{
		{Type: domain.ChangeCreated, Document: rawDoc("good.md", "fine")},
		{Type: domain.ChangeCreated, Document: rawDoc("bad.md", "poison")},
	}, &driven.SyncComplete{NewCursor: "c1"})

	err := f.pipeline.Run(context.Background(), account, run, changes, errs)
	require.NoError(t, err)

	assert.Equal(t, domain.SyncCompletedWithErrors, run.Status)
	assert.Equal(t, 2, run.Seen)
	assert.Equal(t, 1, run.Created)
	assert.Equal(t, 1, run.Failed)
}

func TestRunStreamFailure(t *testing.T) {
	f := newPipelineFixture(t)
	account := testAccount()
	run := newRun(account, domain.SyncFull)

	changes, errs := startFakeSync(nil, errors.New("rate limited hard"))

	err := f.pipeline.Run(context.Background(), account, run, changes, errs)
	require.Error(t, err)
	assert.Equal(t, domain.SyncFailed, run.Status)
}

func TestRunCancelled(t *testing.T) {
	f := newPipelineFixture(t)
	account := testAccount()
	run := newRun(account, domain.SyncFull)

	// Channels that never produce: only cancellation can end the run.
	changes := make(chan domain.DocumentChange)
	errs := make(chan error)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.pipeline.Run(ctx, account, run, changes, errs)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.SyncCancelled, run.Status)
}
