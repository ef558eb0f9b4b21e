package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/tidemark-ai/harvest/internal/connectors/gdrive"
	"github.com/tidemark-ai/harvest/internal/connectors/github"
	"github.com/tidemark-ai/harvest/internal/connectors/upload"
	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
)

// Ensure Factory implements the interface.
var _ driven.ConnectorFactory = (*Factory)(nil)

// Factory builds connectors from account configuration. Each account gets
// a fresh connector instance with a token provider bound to its credential.
type Factory struct {
	logger zerolog.Logger
	oauth  map[string]*oauth2.Config

	mu       sync.RWMutex
	builders map[string]driven.ConnectorBuilder
}

// NewFactory creates an empty factory. The oauth map provides per-source
// token endpoints for credential refresh; sources absent from it serve
// their stored tokens without refreshing.
func NewFactory(logger zerolog.Logger, oauth map[string]*oauth2.Config) *Factory {
	return &Factory{
		logger:   logger,
		oauth:    oauth,
		builders: make(map[string]driven.ConnectorBuilder),
	}
}

// NewDefaultFactory creates a factory with the built-in connectors
// registered: github, gdrive and upload.
func NewDefaultFactory(logger zerolog.Logger, oauth map[string]*oauth2.Config) *Factory {
	f := NewFactory(logger, oauth)
	f.Register("github", func(account *domain.Account, tokens driven.TokenProvider) (driven.Connector, error) {
		return github.New(account, tokens, logger)
	})
	f.Register("gdrive", func(account *domain.Account, tokens driven.TokenProvider) (driven.Connector, error) {
		return gdrive.New(account, tokens, logger)
	})
	f.Register("upload", func(account *domain.Account, tokens driven.TokenProvider) (driven.Connector, error) {
		return upload.New(account, tokens, logger)
	})
	return f
}

// Register adds a connector builder for a source type.
func (f *Factory) Register(sourceType string, builder driven.ConnectorBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[sourceType] = builder
}

// Create builds a connector for the account's source type.
func (f *Factory) Create(_ context.Context, account *domain.Account) (driven.Connector, error) {
	f.mu.RLock()
	builder, ok := f.builders[account.SourceType]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedType, account.SourceType)
	}

	tokens := TokenProviderFor(account, f.oauth[account.SourceType])
	return builder(account, tokens)
}

// SupportedTypes returns the registered source types, sorted.
func (f *Factory) SupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
