package postgres

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

// GORM models used for persistence.
type AccountModel struct {
	ID               string `gorm:"primaryKey"`
	UserID           string `gorm:"not null;index"`
	SourceType       string `gorm:"not null"`
	Name             string `gorm:"not null"`
	ExternalIdentity string `gorm:"index"`
	Credential       datatypes.JSON
	Config           datatypes.JSON
	Status           string `gorm:"not null;index"`
	LastSyncAt       *time.Time
	Cursor           string
	Metadata         datatypes.JSON
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

func (AccountModel) TableName() string { return "accounts" }

type DocumentModel struct {
	ID          string `gorm:"primaryKey"`
	AccountID   string `gorm:"not null;uniqueIndex:idx_documents_account_external"`
	ExternalID  string `gorm:"not null;uniqueIndex:idx_documents_account_external"`
	SourceType  string `gorm:"not null"`
	Name        string `gorm:"not null"`
	ContentType string
	ContentHash string `gorm:"not null"`
	Metadata    datatypes.JSON
	IndexedAt   *time.Time
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

func (DocumentModel) TableName() string { return "documents" }

type ChunkModel struct {
	ID          string `gorm:"primaryKey"`
	DocumentID  string `gorm:"not null;index"`
	Ordinal     int    `gorm:"not null"`
	Content     string `gorm:"type:text;not null"`
	StartOffset int    `gorm:"not null"`
	EndOffset   int    `gorm:"not null"`
	Metadata    datatypes.JSON
}

func (ChunkModel) TableName() string { return "chunks" }

type SyncRunModel struct {
	ID         string `gorm:"primaryKey"`
	AccountID  string `gorm:"not null;index"`
	Mode       string `gorm:"not null"`
	Cursor     string
	Seen       int       `gorm:"not null"`
	Created    int       `gorm:"not null"`
	Updated    int       `gorm:"not null"`
	Failed     int       `gorm:"not null"`
	Status     string    `gorm:"not null"`
	StartedAt  time.Time `gorm:"not null;index"`
	FinishedAt *time.Time
}

func (SyncRunModel) TableName() string { return "sync_runs" }

func accountToModel(a *domain.Account) (AccountModel, error) {
	m := AccountModel{
		ID:               a.ID,
		UserID:           a.UserID,
		SourceType:       a.SourceType,
		Name:             a.Name,
		ExternalIdentity: a.ExternalIdentity,
		Status:           string(a.Status),
		LastSyncAt:       a.LastSyncAt,
		Cursor:           a.Cursor,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	if a.Credential != nil {
		raw, err := json.Marshal(a.Credential)
		if err != nil {
			return m, err
		}
		m.Credential = raw
	}
	if a.Config != nil {
		raw, err := json.Marshal(a.Config)
		if err != nil {
			return m, err
		}
		m.Config = raw
	}
	if a.Metadata != nil {
		raw, err := json.Marshal(a.Metadata)
		if err != nil {
			return m, err
		}
		m.Metadata = raw
	}
	return m, nil
}

func accountFromModel(m AccountModel) (domain.Account, error) {
	a := domain.Account{
		ID:               m.ID,
		UserID:           m.UserID,
		SourceType:       m.SourceType,
		Name:             m.Name,
		ExternalIdentity: m.ExternalIdentity,
		Status:           domain.AccountStatus(m.Status),
		LastSyncAt:       m.LastSyncAt,
		Cursor:           m.Cursor,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	if len(m.Credential) > 0 {
		var cred domain.Credential
		if err := json.Unmarshal(m.Credential, &cred); err != nil {
			return a, err
		}
		a.Credential = &cred
	}
	if len(m.Config) > 0 {
		if err := json.Unmarshal(m.Config, &a.Config); err != nil {
			return a, err
		}
	}
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &a.Metadata); err != nil {
			return a, err
		}
	}
	return a, nil
}

func documentToModel(d *domain.SourceDocument) (DocumentModel, error) {
	m := DocumentModel{
		ID:          d.ID,
		AccountID:   d.AccountID,
		ExternalID:  d.ExternalID,
		SourceType:  d.SourceType,
		Name:        d.Name,
		ContentType: d.ContentType,
		ContentHash: d.ContentHash,
		IndexedAt:   d.IndexedAt,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
	if d.Metadata != nil {
		raw, err := json.Marshal(d.Metadata)
		if err != nil {
			return m, err
		}
		m.Metadata = raw
	}
	return m, nil
}

func documentFromModel(m DocumentModel) (domain.SourceDocument, error) {
	d := domain.SourceDocument{
		ID:          m.ID,
		AccountID:   m.AccountID,
		ExternalID:  m.ExternalID,
		SourceType:  m.SourceType,
		Name:        m.Name,
		ContentType: m.ContentType,
		ContentHash: m.ContentHash,
		IndexedAt:   m.IndexedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &d.Metadata); err != nil {
			return d, err
		}
	}
	return d, nil
}

func chunkToModel(c domain.Chunk) (ChunkModel, error) {
	m := ChunkModel{
		ID:          c.ID,
		DocumentID:  c.DocumentID,
		Ordinal:     c.Ordinal,
		Content:     c.Content,
		StartOffset: c.Start,
		EndOffset:   c.End,
	}
	if c.Metadata != nil {
		raw, err := json.Marshal(c.Metadata)
		if err != nil {
			return m, err
		}
		m.Metadata = raw
	}
	return m, nil
}

func chunkFromModel(m ChunkModel) (domain.Chunk, error) {
	c := domain.Chunk{
		ID:         m.ID,
		DocumentID: m.DocumentID,
		Ordinal:    m.Ordinal,
		Content:    m.Content,
		Start:      m.StartOffset,
		End:        m.EndOffset,
	}
	if len(m.Metadata) > 0 {
		if err := json.Unmarshal(m.Metadata, &c.Metadata); err != nil {
			return c, err
		}
	}
	return c, nil
}

func runToModel(r *domain.SyncRun) SyncRunModel {
	return SyncRunModel{
		ID:         r.ID,
		AccountID:  r.AccountID,
		Mode:       string(r.Mode),
		Cursor:     r.Cursor,
		Seen:       r.Seen,
		Created:    r.Created,
		Updated:    r.Updated,
		Failed:     r.Failed,
		Status:     string(r.Status),
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

func runFromModel(m SyncRunModel) domain.SyncRun {
	return domain.SyncRun{
		ID:         m.ID,
		AccountID:  m.AccountID,
		Mode:       domain.SyncMode(m.Mode),
		Cursor:     m.Cursor,
		Seen:       m.Seen,
		Created:    m.Created,
		Updated:    m.Updated,
		Failed:     m.Failed,
		Status:     domain.SyncRunStatus(m.Status),
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
	}
}
