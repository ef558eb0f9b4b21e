package domain

import "time"

// AccountStatus represents the lifecycle state of a connected account.
type AccountStatus string

const (
	// AccountConnected means credentials are valid and the account is ready to sync.
	AccountConnected AccountStatus = "connected"
	// AccountSyncing means a sync is currently running for the account.
	AccountSyncing AccountStatus = "syncing"
	// AccountError means the last sync or connection check failed.
	AccountError AccountStatus = "error"
	// AccountDisconnected means the user disconnected the account.
	// Disconnected accounts are soft-deleted: the row is kept while sync
	// history still references it.
	AccountDisconnected AccountStatus = "disconnected"
)

// Account represents a user's authorized link to one external content source.
// At most one active account may exist per (user, source type, external
// identity) triple; the Connector Manager enforces this on registration.
type Account struct {
	// ID is the unique identifier (UUID).
	ID string `json:"id"`

	// UserID is the owning user.
	UserID string `json:"user_id"`

	// SourceType identifies the connector type (e.g., "github", "gdrive", "upload").
	SourceType string `json:"source_type"`

	// Name is the human-readable display name.
	Name string `json:"name"`

	// ExternalIdentity is the provider-side account identity
	// (e.g., "octocat", "user@gmail.com"). Empty for no-auth sources.
	ExternalIdentity string `json:"external_identity,omitempty"`

	// Credential is the stored token material for this account.
	// Nil for no-auth sources.
	Credential *Credential `json:"credential,omitempty"`

	// Config contains connector-specific configuration.
	Config map[string]string `json:"config,omitempty"`

	// Status is the current lifecycle state.
	Status AccountStatus `json:"status"`

	// LastSyncAt is when the last successful sync completed. Nil before
	// the first successful sync.
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`

	// Cursor is the opaque incremental-sync position from the last
	// successful run. Empty means the next sync must be full.
	Cursor string `json:"cursor,omitempty"`

	// Metadata contains free-form key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is when the account was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the account was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Active returns true if the account has not been disconnected.
func (a *Account) Active() bool {
	return a.Status != AccountDisconnected
}

// IdentityKey returns the uniqueness key for the active-account invariant.
func (a *Account) IdentityKey() string {
	return a.UserID + "/" + a.SourceType + "/" + a.ExternalIdentity
}

// CredentialIdentityKey is the Credential.Extra key under which a
// connector's Authenticate reports the provider-side account identity
// (login, email). The Connector Manager copies it to
// Account.ExternalIdentity to enforce the one-active-account invariant.
const CredentialIdentityKey = "identity"

// Credential stores token material for an account.
// Either OAuth or PAT is set, never both.
type Credential struct {
	// OAuth holds OAuth tokens. Nil for PAT authentication.
	OAuth *OAuthCredential `json:"oauth,omitempty"`

	// PAT holds a personal access token. Nil for OAuth authentication.
	PAT *PATCredential `json:"pat,omitempty"`

	// Extra carries provider-specific fields (e.g., Google token scopes).
	Extra map[string]string `json:"extra,omitempty"`
}

// OAuthCredential stores OAuth tokens for a specific account.
type OAuthCredential struct {
	// AccessToken is the bearer token for API access.
	AccessToken string `json:"access_token"`
	// RefreshToken is used to obtain new access tokens.
	RefreshToken string `json:"refresh_token,omitempty"`
	// TokenType is typically "Bearer".
	TokenType string `json:"token_type"`
	// Expiry is when the access token expires.
	Expiry time.Time `json:"expiry,omitempty"`
}

// PATCredential stores a personal access token.
type PATCredential struct {
	// Token is the actual personal access token.
	Token string `json:"token"`
}

// IsExpired returns true if the OAuth access token has expired.
func (c *OAuthCredential) IsExpired() bool {
	if c.Expiry.IsZero() {
		return false
	}
	return time.Now().After(c.Expiry)
}

// AccessToken returns the usable token, OAuth or PAT.
func (c *Credential) AccessToken() string {
	if c == nil {
		return ""
	}
	if c.OAuth != nil && c.OAuth.AccessToken != "" {
		return c.OAuth.AccessToken
	}
	if c.PAT != nil && c.PAT.Token != "" {
		return c.PAT.Token
	}
	return ""
}

// NeedsRefresh returns true if the OAuth token is expired and refreshable.
func (c *Credential) NeedsRefresh() bool {
	if c == nil || c.OAuth == nil {
		return false
	}
	return c.OAuth.IsExpired() && c.OAuth.RefreshToken != ""
}

// IsAuthenticated returns true if the credential contains a usable token.
func (c *Credential) IsAuthenticated() bool {
	return c.AccessToken() != ""
}
