package services

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

func TestDefaultFactory(t *testing.T) {
	f := NewDefaultFactory(zerolog.Nop(), nil)

	t.Run("supported types", func(t *testing.T) {
		assert.Equal(t, []string{"gdrive", "github", "upload"}, f.SupportedTypes())
	})

	t.Run("creates upload connector", func(t *testing.T) {
		account := &domain.Account{
			ID:         "acct-1",
			SourceType: "upload",
			Config:     map[string]string{"path": t.TempDir()},
		}

		connector, err := f.Create(context.Background(), account)
		require.NoError(t, err)
		defer connector.Close()

		assert.Equal(t, "upload", connector.Type())
	})

	t.Run("creates github connector", func(t *testing.T) {
		account := &domain.Account{
			ID:         "acct-2",
			SourceType: "github",
			Credential: &domain.Credential{PAT: &domain.PATCredential{Token: "ghp_x"}},
		}

		connector, err := f.Create(context.Background(), account)
		require.NoError(t, err)
		defer connector.Close()

		assert.Equal(t, "github", connector.Type())
	})

	t.Run("unknown source type", func(t *testing.T) {
		account := &domain.Account{ID: "acct-3", SourceType: "gopher-mail"}

		_, err := f.Create(context.Background(), account)

		assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	})
}

func TestStaticTokens(t *testing.T) {
	p := StaticTokens("ghp_x")

	token, err := p.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ghp_x", token)
	assert.True(t, p.IsAuthenticated())

	assert.False(t, StaticTokens("").IsAuthenticated())
}

func TestOAuthTokensWithoutRefresh(t *testing.T) {
	cred := &domain.Credential{
		OAuth: &domain.OAuthCredential{
			AccessToken: "ya29.fresh",
			TokenType:   "Bearer",
			Expiry:      time.Now().Add(time.Hour),
		},
	}
	p := OAuthTokens(nil, cred)

	token, err := p.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ya29.fresh", token)
	assert.True(t, p.IsAuthenticated())
}

func TestTokenProviderFor(t *testing.T) {
	t.Run("nil credential", func(t *testing.T) {
		p := TokenProviderFor(&domain.Account{}, nil)
		assert.False(t, p.IsAuthenticated())
	})

	t.Run("pat credential", func(t *testing.T) {
		account := &domain.Account{
			Credential: &domain.Credential{PAT: &domain.PATCredential{Token: "ghp_x"}},
		}
		p := TokenProviderFor(account, nil)

		token, err := p.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ghp_x", token)
	})

	t.Run("oauth credential", func(t *testing.T) {
		account := &domain.Account{
			Credential: &domain.Credential{
				OAuth: &domain.OAuthCredential{AccessToken: "ya29.x", TokenType: "Bearer"},
			},
		}
		p := TokenProviderFor(account, nil)

		token, err := p.GetToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "ya29.x", token)
	})
}
