package github

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// Connector fetches documents from GitHub repositories.
type Connector struct {
	config *Config
	client *Client
	logger zerolog.Logger
	mu     sync.Mutex
	closed bool
}

// New creates a GitHub connector for an account. Pass a nil TokenProvider
// only for Authenticate-only use; Sync requires one.
func New(account *domain.Account, tokens driven.TokenProvider, logger zerolog.Logger) (*Connector, error) {
	cfg, err := ParseConfig(account.Config)
	if err != nil {
		return nil, err
	}

	return &Connector{
		config: cfg,
		client: NewClient(tokens),
		logger: logger.With().Str("connector", "github").Logger(),
	}, nil
}

// Type returns the connector type identifier.
func (c *Connector) Type() string {
	return "github"
}

// Capabilities returns the connector's capabilities.
func (c *Connector) Capabilities() driven.Capabilities {
	return driven.Capabilities{
		SupportsIncremental:  true,
		SupportsWatch:        false, // no webhook listener
		RequiresAuth:         true,
		SupportsCursorReturn: true,
		SupportsRateLimiting: true,
	}
}

// Authenticate validates the token in config ("token": PAT or OAuth access
// token) and returns the credential with the provider identity attached.
func (c *Connector) Authenticate(ctx context.Context, config map[string]string) (*domain.Credential, error) {
	token := config["token"]
	if token == "" {
		return nil, &domain.ValidationError{Fields: map[string]string{
			"token": "required",
		}}
	}

	login, err := NewClientWithToken(ctx, token).CurrentUser(ctx)
	if err != nil {
		if IsUnauthorized(err) {
			return nil, fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, err)
		}
		return nil, err
	}

	return &domain.Credential{
		PAT:   &domain.PATCredential{Token: token},
		Extra: map[string]string{domain.CredentialIdentityKey: login},
	}, nil
}

// Connect validates that stored credentials still work with a single
// whoami call.
func (c *Connector) Connect(ctx context.Context, account *domain.Account) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return domain.ErrConnectorClosed
	}
	c.mu.Unlock()

	login, err := c.client.CurrentUser(ctx)
	if err != nil {
		if IsUnauthorized(err) {
			return fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err)
		}
		return err
	}

	c.logger.Debug().
		Str("account_id", account.ID).
		Str("login", login).
		Msg("github connection validated")
	return nil
}

// Sync enumerates repositories and streams file and issue documents.
// Incremental syncs skip repositories whose tree SHA is unchanged and
// fetch only issues updated since the cursor timestamp.
func (c *Connector) Sync(
	ctx context.Context, account *domain.Account, req domain.SyncRequest,
) (<-chan domain.DocumentChange, <-chan error) {
	changes := make(chan domain.DocumentChange)
	errs := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errs)

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			errs <- domain.ErrConnectorClosed
			return
		}
		c.mu.Unlock()

		incremental := req.Mode() == domain.SyncIncremental

		cursor := NewCursor()
		if incremental {
			decoded, err := DecodeCursor(req.Cursor)
			if err != nil {
				errs <- err
				return
			}
			cursor = decoded
		}

		repos, err := c.client.ListRepos(ctx)
		if err != nil {
			errs <- fmt.Errorf("list repos: %w", err)
			return
		}

		for _, repo := range repos {
			select {
			case <-ctx.Done():
				return
			default:
			}

			fullName := repo.GetFullName()
			if !c.config.wantsRepo(fullName) || repo.GetArchived() {
				continue
			}

			prev := cursor.Get(fullName)
			next := prev

			if c.config.HasContentType(ContentFiles) {
				// Compare tree SHAs before fetching blobs: an unchanged
				// tree skips the whole repository. The fetched tree is
				// reused for the file walk.
				tree, err := c.client.GetTree(ctx, repo.GetOwner().GetLogin(), repo.GetName(), repo.GetDefaultBranch())
				switch {
				case err != nil && !IsNotFound(err):
					c.logger.Warn().Err(err).Str("repo", fullName).Msg("tree lookup failed")
				case err == nil && (!incremental || tree.GetSHA() != prev.TreeSHA):
					docs, err := fetchFiles(ctx, c.client, repo, tree, c.config)
					if err != nil && !IsNotFound(err) {
						c.logger.Warn().Err(err).Str("repo", fullName).Msg("file fetch failed")
					}
					if err == nil {
						next.TreeSHA = tree.GetSHA()
						if !c.emit(ctx, changes, account, docs, incremental) {
							return
						}
					}
				}
			}

			if c.config.HasContentType(ContentIssues) {
				since := prev.IssuesSince
				if !incremental {
					since = time.Time{}
				}
				docs, latest, err := fetchIssues(ctx, c.client, repo, since)
				if err != nil && !IsNotFound(err) {
					c.logger.Warn().Err(err).Str("repo", fullName).Msg("issue fetch failed")
				}
				if err == nil {
					if !latest.IsZero() {
						next.IssuesSince = latest
					}
					if !c.emit(ctx, changes, account, docs, incremental) {
						return
					}
				}
			}

			cursor.Set(fullName, next)
		}

		errs <- &driven.SyncComplete{NewCursor: cursor.Encode()}
	}()

	return changes, errs
}

// emit streams documents, stamping the account ID. Returns false when the
// context is cancelled.
func (c *Connector) emit(
	ctx context.Context,
	changes chan<- domain.DocumentChange,
	account *domain.Account,
	docs []domain.RawDocument,
	incremental bool,
) bool {
	changeType := domain.ChangeCreated
	if incremental {
		changeType = domain.ChangeUpdated
	}

	for _, doc := range docs {
		doc.AccountID = account.ID
		select {
		case <-ctx.Done():
			return false
		case changes <- domain.DocumentChange{Type: changeType, Document: doc}:
		}
	}
	return true
}

// Watch is not supported: there is no webhook listener.
func (c *Connector) Watch(_ context.Context, _ *domain.Account) (<-chan domain.DocumentChange, error) {
	return nil, domain.ErrUnsupportedType
}

// Disconnect has no provider-side revocation for tokens; the caller marks
// the account disconnected.
func (c *Connector) Disconnect(_ context.Context, account *domain.Account) {
	c.logger.Info().Str("account_id", account.ID).Msg("github account disconnected")
}

// Close releases resources.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
