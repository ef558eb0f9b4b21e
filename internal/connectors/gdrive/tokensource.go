package gdrive

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
)

// tokenSourceAdapter adapts a TokenProvider to oauth2.TokenSource so the
// Google API client can pull refreshed tokens through our credential
// management.
type tokenSourceAdapter struct {
	provider driven.TokenProvider
	ctx      context.Context
}

// NewTokenSource creates an oauth2.TokenSource from a TokenProvider, for
// use with option.WithTokenSource when building Drive services.
func NewTokenSource(ctx context.Context, provider driven.TokenProvider) oauth2.TokenSource {
	return &tokenSourceAdapter{provider: provider, ctx: ctx}
}

func (t *tokenSourceAdapter) Token() (*oauth2.Token, error) {
	accessToken, err := t.provider.GetToken(t.ctx)
	if err != nil {
		return nil, err
	}

	return &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}, nil
}
