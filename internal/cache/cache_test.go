package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCache uses a single shard so LRU order is deterministic.
func newTestCache(cfg Config) *Cache {
	cfg.Shards = 1
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = -1 // lazy expiry only
	}
	return New(cfg)
}

func TestCache_SetGet(t *testing.T) {
	c := newTestCache(Config{})
	defer c.Close()

	_, ok := c.Get("missing")
	assert.False(t, ok)

	require.True(t, c.Set("k", []byte("v"), time.Minute))
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	st := c.Stats()
	assert.Equal(t, uint64(1), st.Hits)
	assert.Equal(t, uint64(1), st.Misses)
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, int64(1), st.Bytes)
}

func TestCache_ExpiredEntryIsAMiss(t *testing.T) {
	c := newTestCache(Config{})
	defer c.Close()

	require.True(t, c.Set("k", []byte("v"), time.Nanosecond))
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("k")
	assert.False(t, ok, "expired entry must behave identically to a miss")
	assert.Equal(t, 0, c.Stats().Entries, "expired entry is removed on access")
}

func TestCache_LRUEvictionByEntryCount(t *testing.T) {
	c := newTestCache(Config{MaxEntries: 3, DefaultTTL: time.Minute})
	defer c.Close()

	for i := 0; i < 3; i++ {
		require.True(t, c.Set(fmt.Sprintf("k%d", i), []byte("v"), 0))
	}

	// Touch k0 so k1 becomes least recently used.
	_, ok := c.Get("k0")
	require.True(t, ok)

	require.True(t, c.Set("k3", []byte("v"), 0))

	_, ok = c.Get("k1")
	assert.False(t, ok, "least-recently-used entry evicted first")
	for _, k := range []string{"k0", "k2", "k3"} {
		_, ok := c.Get(k)
		assert.True(t, ok, "%s should survive", k)
	}
}

func TestCache_EvictionByByteSize(t *testing.T) {
	// 4 shards' worth of limits collapse to one shard here.
	c := newTestCache(Config{MaxEntries: 100, MaxBytes: 10, MaxEntryBytes: 10})
	defer c.Close()

	require.True(t, c.Set("a", []byte("12345"), 0))
	require.True(t, c.Set("b", []byte("12345"), 0))
	require.True(t, c.Set("c", []byte("12345"), 0)) // pushes total past 10 bytes

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.LessOrEqual(t, c.Stats().Bytes, int64(10))
}

func TestCache_OversizedEntryRejected(t *testing.T) {
	c := newTestCache(Config{MaxEntries: 10, MaxBytes: 100, MaxEntryBytes: 4})
	defer c.Close()

	require.True(t, c.Set("small", []byte("ok"), 0))
	assert.False(t, c.Set("big", []byte("too large"), 0))

	// The rejected insert must not evict anything.
	_, ok := c.Get("small")
	assert.True(t, ok)
	_, ok = c.Get("big")
	assert.False(t, ok)
}

func TestCache_ByteLimitHoldsForLargeSingleEntry(t *testing.T) {
	// MaxEntryBytes above the shard byte budget: an admissible entry may
	// still be too big to hold alongside anything else, or at all.
	c := newTestCache(Config{MaxEntries: 10, MaxBytes: 10, MaxEntryBytes: 20})
	defer c.Close()

	require.True(t, c.Set("a", []byte("123"), 0))
	require.True(t, c.Set("b", []byte("123"), 0))

	// Fits alone: everything else is evicted to make room.
	require.True(t, c.Set("big", make([]byte, 9), 0))
	_, ok := c.Get("big")
	assert.True(t, ok)
	assert.Equal(t, 1, c.Stats().Entries)
	assert.LessOrEqual(t, c.Stats().Bytes, int64(10))

	// Larger than the whole budget: rejected without evicting anything.
	assert.False(t, c.Set("huge", make([]byte, 15), 0))
	_, ok = c.Get("huge")
	assert.False(t, ok)
	_, ok = c.Get("big")
	assert.True(t, ok)
	assert.LessOrEqual(t, c.Stats().Bytes, int64(10))
}

func TestCache_UpdateExistingKey(t *testing.T) {
	c := newTestCache(Config{})
	defer c.Close()

	require.True(t, c.Set("k", []byte("one"), time.Minute))
	require.True(t, c.Set("k", []byte("three"), time.Minute))

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, []byte("three"), got)

	st := c.Stats()
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, int64(5), st.Bytes)
}

func TestCache_Invalidate(t *testing.T) {
	c := newTestCache(Config{})
	defer c.Close()

	require.True(t, c.Set("k", []byte("v"), time.Minute))
	c.Invalidate("k")
	c.Invalidate("never-existed") // no-op

	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestCache_SweepRemovesExpired(t *testing.T) {
	c := New(Config{Shards: 1, SweepInterval: 10 * time.Millisecond})
	defer c.Close()

	require.True(t, c.Set("short", []byte("v"), time.Nanosecond))
	require.True(t, c.Set("long", []byte("v"), time.Minute))

	assert.Eventually(t, func() bool {
		return c.Stats().Entries == 1
	}, time.Second, 10*time.Millisecond)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New(Config{MaxEntries: 128, SweepInterval: -1})
	defer c.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", i%32)
				c.Set(key, []byte("v"), time.Minute)
				c.Get(key)
				if i%17 == 0 {
					c.Invalidate(key)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Stats().Entries, 128)
}

func TestManager_NamedInstances(t *testing.T) {
	m := NewManager()
	defer m.Close()

	general := m.Get(GeneralCache)
	embedding := m.Get(EmbeddingCache)

	assert.Same(t, general, m.Get(GeneralCache), "create on first use, reuse after")
	assert.NotSame(t, general, embedding)

	assert.Equal(t, EmbeddingTTL, embedding.cfg.DefaultTTL)
	assert.Equal(t, EmbeddingMaxEntries, embedding.cfg.MaxEntries)
	assert.Equal(t, SearchTTL, m.Get(SearchCache).cfg.DefaultTTL)

	general.Set("k", []byte("v"), 0)
	general.Get("k")
	stats := m.Stats()
	assert.Equal(t, uint64(1), stats[GeneralCache].Hits)
	assert.Contains(t, stats, EmbeddingCache)
}
