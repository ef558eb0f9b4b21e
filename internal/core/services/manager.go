package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
	"github.com/tidemark-ai/harvest/internal/core/ports/driving"
	"github.com/tidemark-ai/harvest/internal/pipeline"
)

// Ensure Manager implements the interface.
var _ driving.ConnectorManager = (*Manager)(nil)

// Rate-limit backoff for sync attempts: providers that indicate a reset
// time are honored, otherwise the delay starts at 500ms and doubles.
const (
	syncMaxAttempts  = 3
	syncInitialDelay = 500 * time.Millisecond
)

// Manager owns the account lifecycle: connecting sources, running syncs
// through the pipeline, and disconnecting. At most one sync runs per
// account at a time.
type Manager struct {
	accounts driven.AccountStore
	runs     driven.SyncRunStore
	factory  driven.ConnectorFactory
	registry *Registry
	pipeline *pipeline.Pipeline
	logger   zerolog.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	syncing map[string]struct{}
}

// NewManager creates a connector manager.
func NewManager(
	accounts driven.AccountStore,
	runs driven.SyncRunStore,
	factory driven.ConnectorFactory,
	registry *Registry,
	pipe *pipeline.Pipeline,
	logger zerolog.Logger,
) *Manager {
	return &Manager{
		accounts: accounts,
		runs:     runs,
		factory:  factory,
		registry: registry,
		pipeline: pipe,
		logger:   logger.With().Str("component", "manager").Logger(),
		sleep:    sleepCtx,
		syncing:  make(map[string]struct{}),
	}
}

// Connect authenticates against the source and registers a new account.
// At most one active account may exist per (user, source type, identity);
// a duplicate fails with domain.ErrAlreadyExists.
func (m *Manager) Connect(ctx context.Context, req driving.ConnectRequest) (*domain.Account, error) {
	if err := validateConnectRequest(req); err != nil {
		return nil, err
	}
	if err := m.registry.ValidateConfig(req.SourceType, req.Credentials); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		SourceType: req.SourceType,
		Name:       req.AccountName,
		Config:     req.Credentials,
		Status:     domain.AccountConnected,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	connector, err := m.factory.Create(ctx, account)
	if err != nil {
		return nil, err
	}
	defer connector.Close()

	cred, err := connector.Authenticate(ctx, req.Credentials)
	if err != nil {
		return nil, err
	}
	if cred != nil {
		account.Credential = cred
		account.ExternalIdentity = cred.Extra[domain.CredentialIdentityKey]
	}

	// No-auth sources have no provider identity; uniqueness there is the
	// user's concern, not ours.
	if account.ExternalIdentity != "" {
		existing, err := m.accounts.FindActiveByIdentity(ctx, req.UserID, req.SourceType, account.ExternalIdentity)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("identity lookup: %w", err)
		}
		if existing != nil {
			return nil, fmt.Errorf("%w: %s account for %s", domain.ErrAlreadyExists, req.SourceType, account.ExternalIdentity)
		}
	}

	if err := connector.Connect(ctx, account); err != nil {
		return nil, err
	}

	if err := m.accounts.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}

	m.logger.Info().
		Str("account_id", account.ID).
		Str("source_type", account.SourceType).
		Str("identity", account.ExternalIdentity).
		Msg("account connected")
	return account, nil
}

// SyncOne runs one sync for an account. A request for an account that is
// already syncing fails immediately with domain.ErrSyncInProgress.
func (m *Manager) SyncOne(ctx context.Context, accountID string, req domain.SyncRequest) (*domain.SyncRun, error) {
	account, err := m.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !account.Active() {
		return nil, domain.ErrAccountDisconnected
	}

	if !m.beginSync(accountID) {
		return nil, domain.ErrSyncInProgress
	}
	defer m.endSync(accountID)

	// An incremental request without an explicit cursor resumes from the
	// account's stored one.
	if req.Incremental && req.Cursor == "" {
		req.Cursor = account.Cursor
	}

	run := &domain.SyncRun{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Mode:      req.Mode(),
		Status:    domain.SyncRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := m.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	account.Status = domain.AccountSyncing
	account.UpdatedAt = time.Now().UTC()
	if err := m.accounts.Save(ctx, account); err != nil {
		return nil, fmt.Errorf("save account: %w", err)
	}

	m.logger.Info().
		Str("account_id", accountID).
		Str("run_id", run.ID).
		Str("mode", string(run.Mode)).
		Msg("sync started")

	syncErr := m.runSync(ctx, account, run, req)

	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	if err := m.runs.Finalize(ctx, run); err != nil {
		m.logger.Error().Err(err).Str("run_id", run.ID).Msg("finalize run failed")
	}

	switch run.Status {
	case domain.SyncCompleted, domain.SyncCompletedWithErrors:
		account.Status = domain.AccountConnected
		account.Cursor = run.Cursor
		account.LastSyncAt = run.FinishedAt
	case domain.SyncCancelled:
		account.Status = domain.AccountConnected
	default:
		account.Status = domain.AccountError
	}
	account.UpdatedAt = time.Now().UTC()
	if err := m.accounts.Save(ctx, account); err != nil {
		m.logger.Error().Err(err).Str("account_id", accountID).Msg("save account failed")
	}

	m.logger.Info().
		Str("account_id", accountID).
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Int("seen", run.Seen).
		Int("created", run.Created).
		Int("updated", run.Updated).
		Int("failed", run.Failed).
		Msg("sync finished")

	return run, syncErr
}

// runSync drives the connector stream through the pipeline. Rate-limited
// attempts back off and retry up to syncMaxAttempts before failing the run.
// Panics from a connector are contained: they fail the run, not the process.
func (m *Manager) runSync(ctx context.Context, account *domain.Account, run *domain.SyncRun, req domain.SyncRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().
				Interface("panic", r).
				Str("account_id", account.ID).
				Msg("sync panicked")
			run.Status = domain.SyncFailed
			err = fmt.Errorf("%w: panic: %v", domain.ErrSyncFailed, r)
		}
	}()

	delay := syncInitialDelay
	for attempt := 1; ; attempt++ {
		err = m.syncAttempt(ctx, account, run, req)

		var rle *domain.RateLimitError
		if err == nil || !errors.As(err, &rle) || attempt >= syncMaxAttempts {
			return err
		}

		wait := delay
		if until := time.Until(rle.RetryAfter); until > 0 {
			wait = until
		}
		delay *= 2

		m.logger.Warn().
			Str("account_id", account.ID).
			Str("provider", rle.Provider).
			Dur("wait", wait).
			Int("attempt", attempt).
			Msg("rate limited, backing off before retry")

		if serr := m.sleep(ctx, wait); serr != nil {
			run.Status = domain.SyncCancelled
			return serr
		}
		run.Status = domain.SyncRunning
	}
}

// syncAttempt streams one connector pass through the pipeline. Document
// counters on the run accumulate across attempts; re-streamed documents
// are deduplicated by content hash downstream.
func (m *Manager) syncAttempt(ctx context.Context, account *domain.Account, run *domain.SyncRun, req domain.SyncRequest) error {
	connector, err := m.factory.Create(ctx, account)
	if err != nil {
		run.Status = domain.SyncFailed
		return err
	}
	defer connector.Close()

	changes, errs := connector.Sync(ctx, account, req)
	return m.pipeline.Run(ctx, account, run, changes, errs)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SyncAll fans SyncOne out over every active account. One account's
// failure never aborts another's sync.
func (m *Manager) SyncAll(ctx context.Context, req domain.SyncRequest) ([]driving.SyncOutcome, error) {
	accounts, err := m.accounts.List(ctx)
	if err != nil {
		return nil, err
	}

	var active []domain.Account
	for _, account := range accounts {
		if account.Active() {
			active = append(active, account)
		}
	}

	outcomes := make([]driving.SyncOutcome, len(active))
	var g errgroup.Group
	for i, account := range active {
		g.Go(func() error {
			run, syncErr := m.SyncOne(ctx, account.ID, req)
			outcomes[i] = driving.SyncOutcome{AccountID: account.ID, Run: run, Err: syncErr}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes, nil
}

// Disconnect revokes provider access best-effort and soft-deletes the
// account. Disconnecting an already disconnected account is a no-op.
func (m *Manager) Disconnect(ctx context.Context, accountID string) error {
	account, err := m.accounts.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.Active() {
		return nil
	}

	if connector, err := m.factory.Create(ctx, account); err == nil {
		connector.Disconnect(ctx, account)
		connector.Close()
	} else {
		m.logger.Warn().Err(err).Str("account_id", accountID).Msg("connector create failed during disconnect")
	}

	account.Status = domain.AccountDisconnected
	account.Credential = nil
	account.UpdatedAt = time.Now().UTC()
	if err := m.accounts.Save(ctx, account); err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	m.logger.Info().Str("account_id", accountID).Msg("account disconnected")
	return nil
}

// ListAccounts returns projections of all accounts with credential
// material stripped.
func (m *Manager) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts, err := m.accounts.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		accounts[i].Credential = nil
	}
	return accounts, nil
}

// SyncHistory returns an account's recent runs, most recent first.
func (m *Manager) SyncHistory(ctx context.Context, accountID string, limit int) ([]domain.SyncRun, error) {
	if _, err := m.accounts.Get(ctx, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	return m.runs.ListByAccount(ctx, accountID, limit)
}

// Close sweeps accounts stuck in syncing state, downgrading them to error
// so the next start does not mistake them for live syncs.
func (m *Manager) Close(ctx context.Context) error {
	accounts, err := m.accounts.List(ctx)
	if err != nil {
		return err
	}

	for i := range accounts {
		account := &accounts[i]
		if account.Status != domain.AccountSyncing {
			continue
		}
		account.Status = domain.AccountError
		account.UpdatedAt = time.Now().UTC()
		if err := m.accounts.Save(ctx, account); err != nil {
			m.logger.Warn().Err(err).Str("account_id", account.ID).Msg("sweep save failed")
			continue
		}
		m.logger.Warn().Str("account_id", account.ID).Msg("account was stuck in syncing state")
	}
	return nil
}

// beginSync marks an account as syncing. Returns false when a sync is
// already running for it.
func (m *Manager) beginSync(accountID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.syncing[accountID]; running {
		return false
	}
	m.syncing[accountID] = struct{}{}
	return true
}

func (m *Manager) endSync(accountID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.syncing, accountID)
}

func validateConnectRequest(req driving.ConnectRequest) error {
	fields := map[string]string{}
	if req.UserID == "" {
		fields["user_id"] = "required"
	}
	if req.SourceType == "" {
		fields["source_type"] = "required"
	}
	if req.AccountName == "" {
		fields["account_name"] = "required"
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}
