package driven

import (
	"context"
	"errors"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

// Connector implements the uniform lifecycle over one external content
// source. Each source type (github, gdrive, upload) provides one
// implementation.
type Connector interface {
	// Type returns the source-type identifier.
	Type() string

	// Capabilities returns what this connector supports.
	Capabilities() Capabilities

	// Authenticate exchanges a provider authorization artifact (OAuth code,
	// PAT, local path) for a stored credential. It performs no network
	// calls unrelated to the token exchange. Fails with
	// domain.ErrAuthenticationFailed on invalid or expired authorization
	// input and domain.ErrInvalidConfiguration on malformed config.
	Authenticate(ctx context.Context, config map[string]string) (*domain.Credential, error)

	// Connect validates that stored credentials still work with a cheap
	// provider call and marks the account ready for sync. Fails with
	// domain.ErrConnectionFailed when the credential is rejected; the
	// caller must trigger re-authentication, not retry blindly.
	Connect(ctx context.Context, account *domain.Account) error

	// Sync enumerates and fetches documents. For incremental requests the
	// connector only enumerates objects changed since the request cursor;
	// for full requests it enumerates everything. Documents stream on the
	// first channel; the second carries errors and, on success, a
	// SyncComplete sentinel with the new cursor. Calling Sync repeatedly
	// with the same cursor yields the same document set.
	Sync(ctx context.Context, account *domain.Account, req domain.SyncRequest) (<-chan domain.DocumentChange, <-chan error)

	// Watch listens for real-time changes. Only available when
	// Capabilities().SupportsWatch is true.
	Watch(ctx context.Context, account *domain.Account) (<-chan domain.DocumentChange, error)

	// Disconnect revokes provider-side access on a best-effort basis.
	// It never fails the caller: revocation errors are logged and the
	// account is marked disconnected regardless.
	Disconnect(ctx context.Context, account *domain.Account)

	// Close releases resources.
	Close() error
}

// Capabilities describes what a connector supports.
type Capabilities struct {
	// SupportsIncremental indicates the connector can fetch only changes.
	SupportsIncremental bool

	// SupportsWatch indicates the connector can push real-time events.
	SupportsWatch bool

	// RequiresAuth indicates the connector needs authentication.
	// False for local connectors like upload.
	RequiresAuth bool

	// SupportsCursorReturn indicates Sync returns an updated cursor via
	// the SyncComplete sentinel on the error channel.
	SupportsCursorReturn bool

	// SupportsRateLimiting indicates the connector throttles and handles
	// provider rate limits internally.
	SupportsRateLimiting bool
}

// SyncComplete is sent on the error channel when a sync completes
// successfully. Carries the new cursor for incremental sync.
type SyncComplete struct {
	NewCursor string
}

// Error implements the error interface so SyncComplete can travel the
// error channel.
func (*SyncComplete) Error() string {
	return "sync complete"
}

// IsSyncComplete checks if an error is actually a successful completion.
func IsSyncComplete(err error) (*SyncComplete, bool) {
	var sc *SyncComplete
	if errors.As(err, &sc) {
		return sc, true
	}
	return nil, false
}

// ConnectorBuilder creates a Connector for an account. The TokenProvider
// may be nil for connectors that don't require authentication.
type ConnectorBuilder func(account *domain.Account, tokens TokenProvider) (Connector, error)

// ConnectorFactory creates connectors from account configuration.
type ConnectorFactory interface {
	// Create returns a Connector for the given account.
	// Returns domain.ErrUnsupportedType for unknown source types.
	Create(ctx context.Context, account *domain.Account) (Connector, error)

	// Register adds a connector builder for the given source type.
	Register(sourceType string, builder ConnectorBuilder)

	// SupportedTypes returns all registered source types.
	SupportedTypes() []string
}

// TokenProvider provides access tokens for authenticated API calls.
// Implementations refresh expired OAuth tokens transparently.
type TokenProvider interface {
	// GetToken returns a valid access token, refreshing if necessary.
	// Returns empty string for no-auth connectors.
	GetToken(ctx context.Context) (string, error)

	// IsAuthenticated returns true if valid authentication is available.
	IsAuthenticated() bool
}
