package cache

import "sync"

// Well-known cache instance names.
const (
	// GeneralCache memoizes expensive lookups (10k entries, 5 minute TTL).
	GeneralCache = "general"
	// EmbeddingCache holds embedding vectors keyed by content hash
	// (5k entries, 1 hour TTL).
	EmbeddingCache = "embedding"
	// SearchCache holds search-result projections (10k entries, 10 minute TTL).
	SearchCache = "search"
)

// Manager owns the process-wide set of named cache instances.
// Instances are created on first use and torn down on Close; there is no
// implicit reinitialisation.
type Manager struct {
	mu     sync.RWMutex
	caches map[string]*Cache
	closed bool
}

// NewManager creates an empty cache manager.
func NewManager() *Manager {
	return &Manager{caches: make(map[string]*Cache)}
}

// Get returns the named cache, creating it on first use. Well-known names
// get their documented limits; unknown names get general-cache limits.
func (m *Manager) Get(name string) *Cache {
	m.mu.RLock()
	c, ok := m.caches[name]
	m.mu.RUnlock()
	if ok {
		return c
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.caches[name]; ok {
		return c
	}
	c = New(configFor(name))
	if !m.closed {
		m.caches[name] = c
	}
	return c
}

// Stats returns per-instance statistics.
func (m *Manager) Stats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Stats, len(m.caches))
	for name, c := range m.caches {
		out[name] = c.Stats()
	}
	return out
}

// Close stops every instance's sweep goroutine.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.caches {
		c.Close()
	}
	m.closed = true
}

func configFor(name string) Config {
	switch name {
	case EmbeddingCache:
		return Config{MaxEntries: EmbeddingMaxEntries, DefaultTTL: EmbeddingTTL}
	case SearchCache:
		return Config{MaxEntries: SearchMaxEntries, DefaultTTL: SearchTTL}
	default:
		return Config{MaxEntries: GeneralMaxEntries, DefaultTTL: GeneralTTL}
	}
}
