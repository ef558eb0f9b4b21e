package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
)

// Ensure documentStore implements the interface.
var _ driven.DocumentStore = (*documentStore)(nil)

type documentStore struct {
	store *Store
}

func (s *documentStore) UpsertDocument(ctx context.Context, doc *domain.SourceDocument) (bool, error) {
	db, lease, err := s.store.db(ctx)
	if err != nil {
		return false, err
	}
	defer lease.Release()

	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	model, err := documentToModel(doc)
	if err != nil {
		return false, fmt.Errorf("encoding document: %w", err)
	}

	created := false
	err = db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&DocumentModel{}).
			Where("account_id = ? AND external_id = ?", doc.AccountID, doc.ExternalID).
			Count(&count).Error; err != nil {
			return err
		}
		created = count == 0
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "external_id"}},
			UpdateAll: true,
		}).Create(&model).Error
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (s *documentStore) GetDocument(ctx context.Context, id string) (*domain.SourceDocument, error) {
	db, lease, err := s.store.db(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	var model DocumentModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	doc, err := documentFromModel(model)
	if err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return &doc, nil
}

func (s *documentStore) FindByExternalID(ctx context.Context, accountID, externalID string) (*domain.SourceDocument, error) {
	db, lease, err := s.store.db(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	var model DocumentModel
	err = db.Where("account_id = ? AND external_id = ?", accountID, externalID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	doc, err := documentFromModel(model)
	if err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return &doc, nil
}

func (s *documentStore) ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error {
	db, lease, err := s.store.db(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&ChunkModel{}, "document_id = ?", documentID).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		models := make([]ChunkModel, 0, len(chunks))
		for _, chunk := range chunks {
			model, err := chunkToModel(chunk)
			if err != nil {
				return fmt.Errorf("encoding chunk %s: %w", chunk.ID, err)
			}
			model.DocumentID = documentID
			models = append(models, model)
		}
		return tx.CreateInBatches(&models, 200).Error
	})
}

func (s *documentStore) GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	db, lease, err := s.store.db(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	var models []ChunkModel
	if err := db.Where("document_id = ?", documentID).Order("ordinal ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, 0, len(models))
	for _, m := range models {
		chunk, err := chunkFromModel(m)
		if err != nil {
			return nil, fmt.Errorf("decoding chunk %s: %w", m.ID, err)
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (s *documentStore) ListDocuments(ctx context.Context, accountID string) ([]domain.SourceDocument, error) {
	db, lease, err := s.store.db(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	var models []DocumentModel
	if err := db.Where("account_id = ?", accountID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	docs := make([]domain.SourceDocument, 0, len(models))
	for _, m := range models {
		doc, err := documentFromModel(m)
		if err != nil {
			return nil, fmt.Errorf("decoding document %s: %w", m.ID, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (s *documentStore) MarkIndexed(ctx context.Context, documentID string) error {
	db, lease, err := s.store.db(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	now := time.Now().UTC()
	result := db.Model(&DocumentModel{}).
		Where("id = ?", documentID).
		Updates(map[string]any{"indexed_at": now, "updated_at": now})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
