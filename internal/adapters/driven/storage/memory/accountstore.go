package memory

import (
	"context"
	"sync"

	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
)

// Ensure AccountStore implements the interface.
var _ driven.AccountStore = (*AccountStore)(nil)

// AccountStore is an in-memory implementation of driven.AccountStore.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

// NewAccountStore creates a new in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{
		accounts: make(map[string]domain.Account),
	}
}

// Save stores or updates an account.
func (s *AccountStore) Save(_ context.Context, account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = *account
	return nil
}

// Get retrieves an account by ID.
func (s *AccountStore) Get(_ context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &account, nil
}

// FindActiveByIdentity returns the active account for a
// (user, source type, external identity) triple.
func (s *AccountStore) FindActiveByIdentity(_ context.Context, userID, sourceType, identity string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, account := range s.accounts {
		if account.Active() && account.UserID == userID &&
			account.SourceType == sourceType && account.ExternalIdentity == identity {
			found := account
			return &found, nil
		}
	}
	return nil, domain.ErrNotFound
}

// List returns all accounts, including disconnected ones.
func (s *AccountStore) List(_ context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		result = append(result, account)
	}
	return result, nil
}
