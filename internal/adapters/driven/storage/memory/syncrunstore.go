package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
)

// Ensure SyncRunStore implements the interface.
var _ driven.SyncRunStore = (*SyncRunStore)(nil)

// SyncRunStore is an in-memory implementation of driven.SyncRunStore.
type SyncRunStore struct {
	mu        sync.RWMutex
	runs      map[string]domain.SyncRun
	finalized map[string]struct{}
}

// NewSyncRunStore creates a new in-memory sync run store.
func NewSyncRunStore() *SyncRunStore {
	return &SyncRunStore{
		runs:      make(map[string]domain.SyncRun),
		finalized: make(map[string]struct{}),
	}
}

// Create stores a new run in running state.
func (s *SyncRunStore) Create(_ context.Context, run *domain.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("sync run %s: %w", run.ID, domain.ErrAlreadyExists)
	}
	s.runs[run.ID] = *run
	return nil
}

// Finalize records the terminal state of a run. Finalizing twice is an error.
func (s *SyncRunStore) Finalize(_ context.Context, run *domain.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		return fmt.Errorf("sync run %s: %w", run.ID, domain.ErrNotFound)
	}
	if _, done := s.finalized[run.ID]; done {
		return fmt.Errorf("sync run %s already finalized", run.ID)
	}
	s.runs[run.ID] = *run
	s.finalized[run.ID] = struct{}{}
	return nil
}

// Get retrieves a run by ID.
func (s *SyncRunStore) Get(_ context.Context, id string) (*domain.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &run, nil
}

// ListByAccount returns an account's runs, most recent first.
func (s *SyncRunStore) ListByAccount(_ context.Context, accountID string, limit int) ([]domain.SyncRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.SyncRun
	for _, run := range s.runs {
		if run.AccountID == accountID {
			out = append(out, run)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
