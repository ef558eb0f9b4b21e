// Package cache provides the in-process cache manager: named, sharded
// key/value caches with per-entry TTL and least-recently-used eviction
// under simultaneous entry-count and byte-size limits.
package cache

import (
	"container/list"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// Default limits for the named cache instances.
const (
	DefaultShards        = 16
	DefaultSweepInterval = time.Minute

	GeneralMaxEntries = 10000
	GeneralTTL        = 5 * time.Minute

	EmbeddingMaxEntries = 5000
	EmbeddingTTL        = time.Hour

	SearchMaxEntries = 10000
	SearchTTL        = 10 * time.Minute

	// DefaultMaxBytes bounds the total value bytes per instance.
	DefaultMaxBytes = 64 << 20
)

// Config holds the limits for one cache instance.
type Config struct {
	// MaxEntries is the entry-count limit. Exceeding it triggers LRU eviction.
	MaxEntries int

	// MaxBytes is the total value-byte limit. Exceeding it triggers LRU
	// eviction. Both limits are enforced simultaneously.
	MaxBytes int64

	// MaxEntryBytes rejects any single value larger than this, without
	// evicting others. Defaults to MaxBytes / 4.
	MaxEntryBytes int64

	// DefaultTTL applies when Set is called with ttl <= 0.
	DefaultTTL time.Duration

	// Shards is the number of independent shards. Defaults to 16.
	Shards int

	// SweepInterval is how often expired entries are removed
	// opportunistically. Defaults to one minute. A negative value disables
	// the sweep; expired entries are then only removed lazily on access.
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxEntries <= 0 {
		c.MaxEntries = GeneralMaxEntries
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.MaxEntryBytes <= 0 {
		c.MaxEntryBytes = c.MaxBytes / 4
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = GeneralTTL
	}
	if c.Shards <= 0 {
		c.Shards = DefaultShards
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Entries int
	Bytes   int64
}

type entry struct {
	key       string
	value     []byte
	size      int64
	expiresAt time.Time
}

// shard is one independent slice of the key space with its own lock and
// LRU order. Limits are split evenly across shards.
type shard struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lru        *list.List // front = most recently used
	bytes      int64
	maxEntries int
	maxBytes   int64
}

// Cache is a sharded TTL/LRU cache. Safe for concurrent use.
type Cache struct {
	cfg    Config
	shards []*shard

	hits   atomic.Uint64
	misses atomic.Uint64

	stopSweep chan struct{}
	sweepOnce sync.Once
}

// New creates a cache with the given configuration and starts its sweep
// goroutine. Call Close to stop the sweep.
func New(cfg Config) *Cache {
	cfg = cfg.withDefaults()

	perShardEntries := cfg.MaxEntries / cfg.Shards
	if perShardEntries < 1 {
		perShardEntries = 1
	}
	perShardBytes := cfg.MaxBytes / int64(cfg.Shards)
	if perShardBytes < 1 {
		perShardBytes = 1
	}

	c := &Cache{
		cfg:       cfg,
		shards:    make([]*shard, cfg.Shards),
		stopSweep: make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &shard{
			entries:    make(map[string]*list.Element),
			lru:        list.New(),
			maxEntries: perShardEntries,
			maxBytes:   perShardBytes,
		}
	}

	if cfg.SweepInterval > 0 {
		go c.sweepLoop()
	}
	return c
}

func (c *Cache) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Get returns the value for key, or ok=false on a miss. An expired entry
// behaves identically to a miss and is removed.
func (c *Cache) Get(key string) ([]byte, bool) {
	s := c.shardFor(key)

	s.mu.Lock()
	elem, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	e := elem.Value.(*entry)
	if time.Now().After(e.expiresAt) {
		s.remove(elem)
		s.mu.Unlock()
		c.misses.Add(1)
		return nil, false
	}
	s.lru.MoveToFront(elem)
	value := e.value
	s.mu.Unlock()

	c.hits.Add(1)
	return value, true
}

// Set stores value under key with the given ttl (the instance default when
// ttl <= 0). A value larger than MaxEntryBytes or than a shard's byte
// budget is rejected; Set then reports false.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) bool {
	size := int64(len(value))
	if size > c.cfg.MaxEntryBytes {
		return false
	}
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}

	s := c.shardFor(key)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	// A value larger than the shard's whole byte budget can never fit, even
	// with everything else evicted.
	if size > s.maxBytes {
		return false
	}

	elem, ok := s.entries[key]
	if ok {
		e := elem.Value.(*entry)
		s.bytes += size - e.size
		e.value = value
		e.size = size
		e.expiresAt = now.Add(ttl)
		s.lru.MoveToFront(elem)
	} else {
		e := &entry{key: key, value: value, size: size, expiresAt: now.Add(ttl)}
		elem = s.lru.PushFront(e)
		s.entries[key] = elem
		s.bytes += size
	}

	// Evict least-recently-used entries until both limits hold, keeping
	// the entry just written.
	for (len(s.entries) > s.maxEntries || s.bytes > s.maxBytes) && s.lru.Back() != elem {
		s.remove(s.lru.Back())
	}
	return true
}

// Invalidate removes key if present.
func (c *Cache) Invalidate(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	if elem, ok := s.entries[key]; ok {
		s.remove(elem)
	}
	s.mu.Unlock()
}

// Stats returns a point-in-time snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	st := Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	for _, s := range c.shards {
		s.mu.Lock()
		st.Entries += len(s.entries)
		st.Bytes += s.bytes
		s.mu.Unlock()
	}
	return st
}

// Close stops the background sweep. The cache remains usable afterwards;
// expiry then happens lazily on access only.
func (c *Cache) Close() {
	c.sweepOnce.Do(func() { close(c.stopSweep) })
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *Cache) sweepExpired() {
	now := time.Now()
	for _, s := range c.shards {
		s.mu.Lock()
		for elem := s.lru.Back(); elem != nil; {
			prev := elem.Prev()
			if e := elem.Value.(*entry); now.After(e.expiresAt) {
				s.remove(elem)
			}
			elem = prev
		}
		s.mu.Unlock()
	}
}

// remove deletes an element. Caller holds the shard lock.
func (s *shard) remove(elem *list.Element) {
	e := elem.Value.(*entry)
	s.lru.Remove(elem)
	delete(s.entries, e.key)
	s.bytes -= e.size
}
