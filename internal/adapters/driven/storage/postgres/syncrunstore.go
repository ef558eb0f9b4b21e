package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
)

// Ensure syncRunStore implements the interface.
var _ driven.SyncRunStore = (*syncRunStore)(nil)

type syncRunStore struct {
	store *Store
}

func (s *syncRunStore) Create(ctx context.Context, run *domain.SyncRun) error {
	db, lease, err := s.store.db(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	model := runToModel(run)
	return db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&SyncRunModel{}).Where("id = ?", run.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("sync run %s: %w", run.ID, domain.ErrAlreadyExists)
		}
		return tx.Create(&model).Error
	})
}

func (s *syncRunStore) Finalize(ctx context.Context, run *domain.SyncRun) error {
	db, lease, err := s.store.db(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	model := runToModel(run)
	// The finished_at guard makes finalization a one-shot transition.
	result := db.Model(&SyncRunModel{}).
		Where("id = ? AND finished_at IS NULL", run.ID).
		Updates(map[string]any{
			"status":      model.Status,
			"cursor":      model.Cursor,
			"seen":        model.Seen,
			"created":     model.Created,
			"updated":     model.Updated,
			"failed":      model.Failed,
			"finished_at": model.FinishedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := db.Model(&SyncRunModel{}).Where("id = ?", run.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("sync run %s: %w", run.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("sync run %s already finalized", run.ID)
	}
	return nil
}

func (s *syncRunStore) Get(ctx context.Context, id string) (*domain.SyncRun, error) {
	db, lease, err := s.store.db(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	var model SyncRunModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	run := runFromModel(model)
	return &run, nil
}

func (s *syncRunStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]domain.SyncRun, error) {
	db, lease, err := s.store.db(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	query := db.Where("account_id = ?", accountID).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var models []SyncRunModel
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	runs := make([]domain.SyncRun, 0, len(models))
	for _, m := range models {
		runs = append(runs, runFromModel(m))
	}
	return runs, nil
}
