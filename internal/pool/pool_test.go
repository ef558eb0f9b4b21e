package pool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

// fakeHandle implements Handle without a real backend.
type fakeHandle struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeHandle) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeHandle) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestManager(t *testing.T, cfg Config) (*Manager, *int) {
	t.Helper()
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = -1
	}
	m := NewManager(cfg, zerolog.Nop())
	t.Cleanup(func() { _ = m.Close() })

	opened := 0
	m.RegisterOpener(KindPostgres, func(string, Config) (Handle, error) {
		opened++
		return &fakeHandle{}, nil
	})
	return m, &opened
}

func TestManager_GetCreatesLazilyAndReuses(t *testing.T) {
	m, opened := newTestManager(t, Config{})

	p1, err := m.Get(KindPostgres, "dsn-a")
	require.NoError(t, err)
	p2, err := m.Get(KindPostgres, "dsn-a")
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, 1, *opened)

	_, err = m.Get(KindPostgres, "dsn-b")
	require.NoError(t, err)
	assert.Equal(t, 2, *opened)

	st := m.Stats()
	assert.Equal(t, 2, st.PoolsPerKind[KindPostgres])
	assert.Equal(t, int64(0), st.OutstandingBorrows)
}

func TestManager_UnknownKind(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	_, err := m.Get(Kind("mainframe"), "whatever")
	assert.Error(t, err)
}

func TestManager_OpenerFailure(t *testing.T) {
	m, _ := newTestManager(t, Config{})
	m.RegisterOpener(KindRedis, func(string, Config) (Handle, error) {
		return nil, errors.New("connection refused")
	})

	_, err := m.Get(KindRedis, "localhost:6379")
	assert.ErrorContains(t, err, "connection refused")
}

func TestPool_AcquireRelease(t *testing.T) {
	m, _ := newTestManager(t, Config{MaxConns: 2})

	p, err := m.Get(KindPostgres, "dsn")
	require.NoError(t, err)

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.Borrows())
	assert.NotNil(t, lease.Handle())

	lease.Release()
	lease.Release() // idempotent
	assert.Equal(t, int64(0), p.Borrows())
}

func TestPool_ExhaustionFailsInsteadOfHanging(t *testing.T) {
	m, _ := newTestManager(t, Config{MaxConns: 2, AcquireTimeout: 50 * time.Millisecond})

	p, err := m.Get(KindPostgres, "dsn")
	require.NoError(t, err)

	l1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	l2, err := p.Acquire(context.Background())
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, domain.ErrPoolExhausted)
	assert.Less(t, time.Since(start), time.Second, "must fail after the acquire timeout, not hang")

	l1.Release()
	l3, err := p.Acquire(context.Background())
	require.NoError(t, err, "released borrow becomes available again")
	l3.Release()
	l2.Release()
}

func TestPool_AcquireHonoursCallerCancellation(t *testing.T) {
	m, _ := newTestManager(t, Config{MaxConns: 1, AcquireTimeout: 10 * time.Second})

	p, err := m.Get(KindPostgres, "dsn")
	require.NoError(t, err)

	l1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer l1.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, domain.ErrPoolExhausted)
}

func TestManager_SweepEvictsIdlePoolsOnly(t *testing.T) {
	m, opened := newTestManager(t, Config{
		IdleTimeout:   10 * time.Millisecond,
		SweepInterval: -1, // drive the sweep by hand
	})

	idle, err := m.Get(KindPostgres, "idle-dsn")
	require.NoError(t, err)
	busy, err := m.Get(KindPostgres, "busy-dsn")
	require.NoError(t, err)

	lease, err := busy.Acquire(context.Background())
	require.NoError(t, err)
	defer lease.Release()

	time.Sleep(20 * time.Millisecond)
	m.sweepIdle()

	st := m.Stats()
	assert.Equal(t, 1, st.PoolsPerKind[KindPostgres], "borrowed pool survives the sweep")
	assert.True(t, idle.handle.(*fakeHandle).isClosed())
	assert.False(t, busy.handle.(*fakeHandle).isClosed())

	// The evicted pool is recreated lazily on next request.
	_, err = m.Get(KindPostgres, "idle-dsn")
	require.NoError(t, err)
	assert.Equal(t, 3, *opened)
}

func TestManager_CloseClosesAllPools(t *testing.T) {
	m, _ := newTestManager(t, Config{})

	p, err := m.Get(KindPostgres, "dsn")
	require.NoError(t, err)

	require.NoError(t, m.Close())
	assert.True(t, p.handle.(*fakeHandle).isClosed())

	_, err = m.Get(KindPostgres, "dsn")
	assert.Error(t, err, "no implicit reinitialisation after Close")
}

func TestOpenRedis(t *testing.T) {
	srv := miniredis.RunT(t)

	handle, err := openRedis(srv.Addr(), Config{}.withDefaults())
	require.NoError(t, err)
	defer handle.Close()

	rh, ok := handle.(*RedisHandle)
	require.True(t, ok)
	require.NoError(t, rh.Client.Ping(context.Background()).Err())

	require.NoError(t, rh.Client.Set(context.Background(), "k", "v", 0).Err())
	got, err := rh.Client.Get(context.Background(), "k").Result()
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestOpenRedis_URL(t *testing.T) {
	srv := miniredis.RunT(t)

	handle, err := openRedis("redis://"+srv.Addr(), Config{}.withDefaults())
	require.NoError(t, err)
	defer handle.Close()

	_, err = openRedis("redis://bad url\x00", Config{}.withDefaults())
	assert.Error(t, err)
}

func TestLease_TypedAccessors(t *testing.T) {
	srv := miniredis.RunT(t)

	m := NewManager(Config{SweepInterval: -1}, zerolog.Nop())
	defer m.Close()

	p, err := m.Get(KindRedis, srv.Addr())
	require.NoError(t, err)

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer lease.Release()

	require.NotNil(t, lease.Redis())
	assert.Nil(t, lease.Postgres())
	assert.Equal(t, KindRedis, p.Kind())
}
