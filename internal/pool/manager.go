package pool

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Opener creates a backend handle for a connection string.
type Opener func(connString string, cfg Config) (Handle, error)

type poolKey struct {
	kind       Kind
	connString string
}

// Manager owns one pool per distinct (kind, connection string) pair.
// Pools are created lazily on first request and reused by all subsequent
// requests with the same key. Process-wide shared state; all mutation goes
// through Get/Close.
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.RWMutex
	pools   map[poolKey]*Pool
	openers map[Kind]Opener
	closed  bool

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// NewManager creates a pool manager with the given shared defaults and
// starts the idle-pool sweep.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	m := &Manager{
		cfg:    cfg.withDefaults(),
		logger: logger.With().Str("component", "pool").Logger(),
		pools:  make(map[poolKey]*Pool),
		openers: map[Kind]Opener{
			KindPostgres: openPostgres,
			KindVector:   openPostgres,
			KindRedis:    openRedis,
		},
		stopSweep: make(chan struct{}),
	}
	if m.cfg.SweepInterval > 0 {
		go m.sweepLoop()
	}
	return m
}

// RegisterOpener replaces the opener for a backend kind. Used by tests and
// by callers with custom backends.
func (m *Manager) RegisterOpener(kind Kind, opener Opener) {
	m.mu.Lock()
	m.openers[kind] = opener
	m.mu.Unlock()
}

// Get returns the pool for (kind, connString), creating it on first use.
func (m *Manager) Get(kind Kind, connString string) (*Pool, error) {
	key := poolKey{kind: kind, connString: connString}

	m.mu.RLock()
	p, ok := m.pools[key]
	m.mu.RUnlock()
	if ok {
		return p, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("pool manager closed")
	}
	if p, ok := m.pools[key]; ok {
		return p, nil
	}

	opener, ok := m.openers[kind]
	if !ok {
		return nil, fmt.Errorf("no opener for backend kind %q", kind)
	}
	handle, err := opener(connString, m.cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s pool: %w", kind, err)
	}
	p = newPool(kind, connString, handle, m.cfg)
	m.pools[key] = p
	m.logger.Debug().Str("kind", string(kind)).Msg("pool created")
	return p, nil
}

// Stats reports read-only pool statistics. Reads never block Get callers
// beyond the brief registry lock; per-pool counters are atomics.
type Stats struct {
	// PoolsPerKind counts pools by backend kind.
	PoolsPerKind map[Kind]int
	// OutstandingBorrows is the total number of unreleased leases.
	OutstandingBorrows int64
}

// Stats returns a snapshot of the manager's pools.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := Stats{PoolsPerKind: make(map[Kind]int)}
	for key, p := range m.pools {
		st.PoolsPerKind[key.kind]++
		st.OutstandingBorrows += p.Borrows()
	}
	return st
}

// Close stops the sweep and closes every pool. Outstanding leases keep
// their handles; backends finish closing when drivers drain.
func (m *Manager) Close() error {
	m.sweepOnce.Do(func() { close(m.stopSweep) })

	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true

	var firstErr error
	for key, p := range m.pools {
		if err := p.close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.pools, key)
	}
	return firstErr
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

// sweepIdle evicts pools with no outstanding borrows that have sat unused
// past the idle timeout. Per-connection lifetime/idle eviction below the
// borrow gate is delegated to the backend drivers (database/sql, go-redis),
// configured from the same limits. In-flight borrows are never affected:
// a pool with outstanding leases is skipped.
func (m *Manager) sweepIdle() {
	cutoff := time.Now().Add(-m.cfg.IdleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	for key, p := range m.pools {
		if p.Borrows() > 0 || p.idleSince().After(cutoff) {
			continue
		}
		if err := p.close(); err != nil {
			m.logger.Warn().Err(err).Str("kind", string(key.kind)).Msg("closing idle pool")
		}
		delete(m.pools, key)
		m.logger.Debug().Str("kind", string(key.kind)).Msg("idle pool evicted")
	}
}
