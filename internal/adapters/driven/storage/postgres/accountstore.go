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

// Ensure accountStore implements the interface.
var _ driven.AccountStore = (*accountStore)(nil)

type accountStore struct {
	store *Store
}

func (s *accountStore) Save(ctx context.Context, account *domain.Account) error {
	db, lease, err := s.store.db(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	model, err := accountToModel(account)
	if err != nil {
		return fmt.Errorf("encoding account: %w", err)
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&model).Error
}

func (s *accountStore) Get(ctx context.Context, id string) (*domain.Account, error) {
	db, lease, err := s.store.db(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	var model AccountModel
	if err := db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	account, err := accountFromModel(model)
	if err != nil {
		return nil, fmt.Errorf("decoding account: %w", err)
	}
	return &account, nil
}

func (s *accountStore) FindActiveByIdentity(ctx context.Context, userID, sourceType, identity string) (*domain.Account, error) {
	db, lease, err := s.store.db(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	var model AccountModel
	err = db.Where(
		"user_id = ? AND source_type = ? AND external_identity = ? AND status <> ?",
		userID, sourceType, identity, string(domain.AccountDisconnected),
	).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	account, err := accountFromModel(model)
	if err != nil {
		return nil, fmt.Errorf("decoding account: %w", err)
	}
	return &account, nil
}

func (s *accountStore) List(ctx context.Context) ([]domain.Account, error) {
	db, lease, err := s.store.db(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	var models []AccountModel
	if err := db.Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	accounts := make([]domain.Account, 0, len(models))
	for _, m := range models {
		account, err := accountFromModel(m)
		if err != nil {
			return nil, fmt.Errorf("decoding account %s: %w", m.ID, err)
		}
		accounts = append(accounts, account)
	}
	return accounts, nil
}
