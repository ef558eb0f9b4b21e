package services

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"

	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
)

// staticTokenProvider serves a fixed token: a PAT, or the empty token for
// no-auth connectors.
type staticTokenProvider struct {
	token string
}

// StaticTokens returns a provider for a fixed token.
func StaticTokens(token string) driven.TokenProvider {
	return &staticTokenProvider{token: token}
}

func (p *staticTokenProvider) GetToken(context.Context) (string, error) {
	return p.token, nil
}

func (p *staticTokenProvider) IsAuthenticated() bool {
	return p.token != ""
}

// oauthTokenProvider serves OAuth access tokens, refreshing expired ones
// through the provider's token endpoint. Refreshed tokens are written back
// into the credential so the account can be re-persisted with them.
type oauthTokenProvider struct {
	cfg  *oauth2.Config
	cred *domain.Credential

	mu sync.Mutex
}

// OAuthTokens returns a refreshing provider over an OAuth credential. The
// config may be nil when no token endpoint is configured; tokens are then
// served as-is.
func OAuthTokens(cfg *oauth2.Config, cred *domain.Credential) driven.TokenProvider {
	return &oauthTokenProvider{cfg: cfg, cred: cred}
}

func (p *oauthTokenProvider) GetToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.cred.NeedsRefresh() || p.cfg == nil {
		return p.cred.AccessToken(), nil
	}

	source := p.cfg.TokenSource(ctx, &oauth2.Token{
		AccessToken:  p.cred.OAuth.AccessToken,
		RefreshToken: p.cred.OAuth.RefreshToken,
		TokenType:    p.cred.OAuth.TokenType,
		Expiry:       p.cred.OAuth.Expiry,
	})
	tok, err := source.Token()
	if err != nil {
		return "", fmt.Errorf("%w: token refresh: %w", domain.ErrAuthenticationFailed, err)
	}

	p.cred.OAuth.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		p.cred.OAuth.RefreshToken = tok.RefreshToken
	}
	p.cred.OAuth.Expiry = tok.Expiry
	return tok.AccessToken, nil
}

func (p *oauthTokenProvider) IsAuthenticated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cred.IsAuthenticated()
}

// TokenProviderFor selects the right provider for an account's credential.
func TokenProviderFor(account *domain.Account, cfg *oauth2.Config) driven.TokenProvider {
	cred := account.Credential
	switch {
	case cred == nil:
		return StaticTokens("")
	case cred.OAuth != nil:
		return OAuthTokens(cfg, cred)
	default:
		return StaticTokens(cred.AccessToken())
	}
}
