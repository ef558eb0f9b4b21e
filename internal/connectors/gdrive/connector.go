package gdrive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
)

const (
	userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	revokeURL   = "https://oauth2.googleapis.com/revoke"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// Connector fetches documents from a Google Drive.
type Connector struct {
	config *Config
	tokens driven.TokenProvider
	logger zerolog.Logger

	mu     sync.Mutex
	svc    *drive.Service
	closed bool
}

// New creates a drive connector for an account.
func New(account *domain.Account, tokens driven.TokenProvider, logger zerolog.Logger) (*Connector, error) {
	return &Connector{
		config: ParseConfig(account.Config),
		tokens: tokens,
		logger: logger.With().Str("connector", "gdrive").Logger(),
	}, nil
}

// Type returns the connector type identifier.
func (c *Connector) Type() string {
	return "gdrive"
}

// Capabilities returns the connector's capabilities.
func (c *Connector) Capabilities() driven.Capabilities {
	return driven.Capabilities{
		SupportsIncremental:  true,
		SupportsWatch:        false, // push channels need a public HTTPS endpoint
		RequiresAuth:         true,
		SupportsCursorReturn: true,
		SupportsRateLimiting: false,
	}
}

// Authenticate validates the OAuth tokens in config ("access_token",
// optional "refresh_token") and returns the credential with the account
// email attached as identity.
func (c *Connector) Authenticate(ctx context.Context, config map[string]string) (*domain.Credential, error) {
	accessToken := config["access_token"]
	if accessToken == "" {
		return nil, &domain.ValidationError{Fields: map[string]string{
			"access_token": "required",
		}}
	}

	email, err := fetchUserEmail(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthenticationFailed, err)
	}

	return &domain.Credential{
		OAuth: &domain.OAuthCredential{
			AccessToken:  accessToken,
			RefreshToken: config["refresh_token"],
			TokenType:    "Bearer",
		},
		Extra: map[string]string{domain.CredentialIdentityKey: email},
	}, nil
}

// Connect validates stored credentials with a cheap about.get call.
func (c *Connector) Connect(ctx context.Context, account *domain.Account) error {
	svc, err := c.service(ctx)
	if err != nil {
		return err
	}

	about, err := svc.About.Get().Fields("user(emailAddress)").Context(ctx).Do()
	if err != nil {
		if isUnauthorized(err) {
			return fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err)
		}
		return err
	}

	c.logger.Debug().
		Str("account_id", account.ID).
		Str("email", about.User.EmailAddress).
		Msg("drive connection validated")
	return nil
}

// Sync lists files via files.list. Incremental syncs query only files
// modified after the cursor watermark and additionally surface trashed
// files as deletions.
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

		svc, err := c.service(ctx)
		if err != nil {
			errs <- err
			return
		}

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

		// The next watermark is the sync start time: anything modified
		// during the run is re-fetched next time rather than missed.
		watermark := time.Now().UTC()

		if err := c.listFiles(ctx, svc, account, changes, cursor, incremental); err != nil {
			errs <- fmt.Errorf("list files: %w", err)
			return
		}

		if incremental {
			if err := c.listTrashed(ctx, svc, account, changes, cursor); err != nil {
				c.logger.Warn().Err(err).Msg("trashed file listing failed")
			}
		}

		next := NewCursor()
		next.ModifiedAfter = watermark
		errs <- &driven.SyncComplete{NewCursor: next.Encode()}
	}()

	return changes, errs
}

// listFiles pages through files.list and emits in-scope documents.
func (c *Connector) listFiles(
	ctx context.Context,
	svc *drive.Service,
	account *domain.Account,
	changes chan<- domain.DocumentChange,
	cursor *Cursor,
	incremental bool,
) error {
	changeType := domain.ChangeCreated
	if incremental {
		changeType = domain.ChangeUpdated
	}

	query := c.buildQuery(cursor, incremental, false)
	pageToken := ""
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		call := svc.Files.List().
			Q(query).
			PageSize(c.config.PageSize).
			Fields("nextPageToken, files(id, name, mimeType, size, trashed, parents, webViewLink, modifiedTime)").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		list, err := call.Do()
		if err != nil {
			return wrapError(err)
		}

		for _, file := range list.Files {
			if !shouldSyncFile(file, c.config) {
				continue
			}

			doc, err := fileToRawDocument(ctx, svc, file, account.ID)
			if err != nil {
				c.logger.Warn().Err(err).Str("file_id", file.Id).Msg("file fetch failed")
				continue
			}
			if doc == nil {
				c.logger.Debug().
					Str("file_id", file.Id).
					Str("name", file.Name).
					Str("mime_type", file.MimeType).
					Msg("file has no fetchable text content, skipping")
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case changes <- domain.DocumentChange{Type: changeType, Document: *doc}:
			}
		}

		if list.NextPageToken == "" {
			return nil
		}
		pageToken = list.NextPageToken
	}
}

// listTrashed emits deletions for files trashed since the watermark.
func (c *Connector) listTrashed(
	ctx context.Context,
	svc *drive.Service,
	account *domain.Account,
	changes chan<- domain.DocumentChange,
	cursor *Cursor,
) error {
	query := c.buildQuery(cursor, true, true)
	pageToken := ""
	for {
		call := svc.Files.List().
			Q(query).
			PageSize(c.config.PageSize).
			Fields("nextPageToken, files(id)").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		list, err := call.Do()
		if err != nil {
			return wrapError(err)
		}

		for _, file := range list.Files {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case changes <- domain.DocumentChange{
				Type: domain.ChangeDeleted,
				Document: domain.RawDocument{
					AccountID:  account.ID,
					ExternalID: file.Id,
				},
			}:
			}
		}

		if list.NextPageToken == "" {
			return nil
		}
		pageToken = list.NextPageToken
	}
}

// buildQuery assembles the files.list q expression.
func (c *Connector) buildQuery(cursor *Cursor, incremental, trashed bool) string {
	terms := []string{fmt.Sprintf("trashed = %t", trashed)}

	if incremental && !cursor.IsEmpty() {
		terms = append(terms, fmt.Sprintf(
			"modifiedTime > '%s'", cursor.ModifiedAfter.Format(time.RFC3339)))
	}

	if len(c.config.FolderIDs) > 0 {
		parents := make([]string, len(c.config.FolderIDs))
		for i, id := range c.config.FolderIDs {
			parents[i] = fmt.Sprintf("'%s' in parents", id)
		}
		terms = append(terms, "("+strings.Join(parents, " or ")+")")
	}

	return strings.Join(terms, " and ")
}

// Watch is not supported: Drive push channels require a public HTTPS
// endpoint.
func (c *Connector) Watch(_ context.Context, _ *domain.Account) (<-chan domain.DocumentChange, error) {
	return nil, domain.ErrUnsupportedType
}

// Disconnect revokes the token with Google on a best-effort basis.
func (c *Connector) Disconnect(ctx context.Context, account *domain.Account) {
	token := account.Credential.AccessToken()
	if token == "" {
		return
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("account_id", account.ID).Msg("token revocation failed")
		return
	}
	resp.Body.Close()

	c.logger.Info().Str("account_id", account.ID).Msg("drive token revoked")
}

// Close releases resources.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// service builds the Drive API client lazily.
func (c *Connector) service(ctx context.Context) (*drive.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.svc != nil {
		return c.svc, nil
	}
	if c.tokens == nil {
		return nil, domain.ErrAuthenticationFailed
	}

	svc, err := drive.NewService(ctx, option.WithTokenSource(NewTokenSource(ctx, c.tokens)))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	c.svc = svc
	return svc, nil
}

// fetchUserEmail resolves the account email for an access token.
func fetchUserEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userInfoURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("user info request failed with status %d", resp.StatusCode)
	}

	var info struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", fmt.Errorf("decode user info: %w", err)
	}

	return info.Email, nil
}

func isUnauthorized(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized
	}
	return false
}

// wrapError converts API errors to domain error types where they carry
// retry semantics.
func wrapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return &domain.RateLimitError{Provider: "gdrive"}
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err)
		}
	}
	return err
}
