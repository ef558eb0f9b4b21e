// Package driving defines the operational surface exposed to the
// (excluded) API layer. These are the "driving" or "primary" ports in
// hexagonal architecture.
package driving

import (
	"context"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

// ConnectorManager owns the set of configured connector instances and
// routes operations to the right one.
type ConnectorManager interface {
	// Connect authenticates against a source and registers a new account.
	Connect(ctx context.Context, req ConnectRequest) (*domain.Account, error)

	// SyncOne triggers a sync for one account. A second request for an
	// account already syncing fails immediately with
	// domain.ErrSyncInProgress rather than queuing or blocking.
	SyncOne(ctx context.Context, accountID string, req domain.SyncRequest) (*domain.SyncRun, error)

	// SyncAll fans out SyncOne over every connected account. Failures are
	// independent: one account's failure never aborts another's sync.
	SyncAll(ctx context.Context, req domain.SyncRequest) ([]SyncOutcome, error)

	// Disconnect revokes access best-effort and soft-deletes the account.
	Disconnect(ctx context.Context, accountID string) error

	// ListAccounts returns read-only projections of the configured accounts.
	ListAccounts(ctx context.Context) ([]domain.Account, error)

	// SyncHistory returns an account's recent sync runs, most recent first.
	SyncHistory(ctx context.Context, accountID string, limit int) ([]domain.SyncRun, error)
}

// ConnectRequest carries the inputs for connecting a new source.
type ConnectRequest struct {
	// UserID is the owning user.
	UserID string

	// SourceType selects the connector (e.g., "github", "gdrive", "upload").
	SourceType string

	// AccountName is the display name for the new account.
	AccountName string

	// Credentials carries the provider authorization artifact
	// (OAuth code, PAT, path), connector-specific.
	Credentials map[string]string
}

// SyncOutcome reports one account's result from a fan-out sync.
type SyncOutcome struct {
	// AccountID identifies the account.
	AccountID string

	// Run is the sync run, nil when the sync could not start.
	Run *domain.SyncRun

	// Err is the failure, nil on success.
	Err error
}
