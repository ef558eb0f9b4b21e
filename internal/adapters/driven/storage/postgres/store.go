package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
	"github.com/tidemark-ai/harvest/internal/pool"
)

// Store is the unified Postgres-backed storage. It borrows a relational
// handle from the shared pool manager for every operation and exposes the
// individual store interfaces through wrapper types.
type Store struct {
	pools      *pool.Manager
	connString string
}

// NewStore creates a Postgres store on the given connection string and
// runs auto-migrations.
func NewStore(ctx context.Context, pools *pool.Manager, connString string) (*Store, error) {
	s := &Store{pools: pools, connString: connString}

	db, lease, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	if err := db.AutoMigrate(&AccountModel{}, &DocumentModel{}, &ChunkModel{}, &SyncRunModel{}); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// AccountStore returns an AccountStore interface backed by this store.
func (s *Store) AccountStore() driven.AccountStore {
	return &accountStore{store: s}
}

// DocumentStore returns a DocumentStore interface backed by this store.
func (s *Store) DocumentStore() driven.DocumentStore {
	return &documentStore{store: s}
}

// SyncRunStore returns a SyncRunStore interface backed by this store.
func (s *Store) SyncRunStore() driven.SyncRunStore {
	return &syncRunStore{store: s}
}

// db borrows the relational handle. The caller releases the lease when
// the operation completes.
func (s *Store) db(ctx context.Context) (*gorm.DB, *pool.Lease, error) {
	p, err := s.pools.Get(pool.KindPostgres, s.connString)
	if err != nil {
		return nil, nil, fmt.Errorf("getting postgres pool: %w", err)
	}
	lease, err := p.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquiring postgres handle: %w", err)
	}
	handle := lease.Postgres()
	if handle == nil {
		lease.Release()
		return nil, nil, fmt.Errorf("pool returned non-postgres handle")
	}
	return handle.DB.WithContext(ctx), lease, nil
}
