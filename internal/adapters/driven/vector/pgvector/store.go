// Package pgvector implements the vector store over Postgres with the
// pgvector extension. Vectors are keyed by chunk ID; writing the same ID
// twice replaces the row, which makes redelivered work idempotent.
package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pgv "github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
	"github.com/tidemark-ai/harvest/internal/pool"
)

// DefaultDimension is used when no dimension is configured.
const DefaultDimension = 1536

// Ensure Store implements the interface.
var _ driven.VectorStore = (*Store)(nil)

// VectorModel is the persisted embedding row.
type VectorModel struct {
	ChunkID     string     `gorm:"primaryKey"`
	Model       string     `gorm:"not null"`
	ContentHash string     `gorm:"not null;index"`
	Embedding   pgv.Vector `gorm:"type:vector(1536)"`
	Dimension   int        `gorm:"not null"`
	Metadata    datatypes.JSON
	UpdatedAt   time.Time `gorm:"not null"`
}

func (VectorModel) TableName() string { return "chunk_vectors" }

// Store persists embedding vectors in a pgvector column, borrowing its
// connection from the shared pool manager per operation.
type Store struct {
	pools      *pool.Manager
	connString string
	dimension  int
}

// Option configures a Store.
type Option func(*Store)

// WithDimension sets the vector column dimension. All vectors written to
// the store must match it.
func WithDimension(dim int) Option {
	return func(s *Store) {
		if dim > 0 {
			s.dimension = dim
		}
	}
}

// NewStore creates the vector store, ensuring the pgvector extension and
// the vector table exist with the configured dimension.
func NewStore(ctx context.Context, pools *pool.Manager, connString string, opts ...Option) (*Store, error) {
	s := &Store{pools: pools, connString: connString, dimension: DefaultDimension}
	for _, opt := range opts {
		opt(s)
	}

	db, lease, err := s.db(ctx)
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return nil, fmt.Errorf("creating pgvector extension: %w", err)
	}
	if err := db.AutoMigrate(&VectorModel{}); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if s.dimension != DefaultDimension {
		if err := db.Exec(fmt.Sprintf(
			"ALTER TABLE chunk_vectors ALTER COLUMN embedding TYPE vector(%d)", s.dimension,
		)).Error; err != nil {
			return nil, fmt.Errorf("setting vector dimension: %w", err)
		}
	}
	return s, nil
}

// Upsert writes vectors. Existing chunk IDs are replaced wholesale.
func (s *Store) Upsert(ctx context.Context, vectors []domain.EmbeddingVector, metadata map[string]any) error {
	if len(vectors) == 0 {
		return nil
	}

	var meta datatypes.JSON
	if metadata != nil {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("encoding vector metadata: %w", err)
		}
		meta = raw
	}

	now := time.Now().UTC()
	models := make([]VectorModel, 0, len(vectors))
	for _, v := range vectors {
		if len(v.Values) != s.dimension {
			return fmt.Errorf("vector for chunk %s has dimension %d, store expects %d",
				v.ChunkID, len(v.Values), s.dimension)
		}
		models = append(models, VectorModel{
			ChunkID:     v.ChunkID,
			Model:       v.Model,
			ContentHash: v.ContentHash,
			Embedding:   pgv.NewVector(v.Values),
			Dimension:   v.Dimension,
			Metadata:    meta,
			UpdatedAt:   now,
		})
	}

	db, lease, err := s.db(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chunk_id"}},
		UpdateAll: true,
	}).CreateInBatches(&models, 200).Error
}

// Delete removes vectors by chunk ID. Missing IDs are not an error.
func (s *Store) Delete(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}

	db, lease, err := s.db(ctx)
	if err != nil {
		return err
	}
	defer lease.Release()

	return db.Delete(&VectorModel{}, "chunk_id IN ?", chunkIDs).Error
}

// Close releases resources. The pool manager owns the backend handle, so
// there is nothing to tear down here.
func (s *Store) Close() error {
	return nil
}

func (s *Store) db(ctx context.Context) (*gorm.DB, *pool.Lease, error) {
	p, err := s.pools.Get(pool.KindVector, s.connString)
	if err != nil {
		return nil, nil, fmt.Errorf("getting vector pool: %w", err)
	}
	lease, err := p.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("acquiring vector handle: %w", err)
	}
	handle := lease.Postgres()
	if handle == nil {
		lease.Release()
		return nil, nil, fmt.Errorf("pool returned non-postgres handle")
	}
	return handle.DB.WithContext(ctx), lease, nil
}
