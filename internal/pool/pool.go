// Package pool provides the connection pool manager: one lazily created,
// reusable pool per (backend kind, connection string) pair, with bounded
// borrowing and background eviction of idle pools.
package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/tidemark-ai/harvest/internal/core/domain"
)

// Kind identifies a backend type.
type Kind string

const (
	// KindPostgres is the relational store.
	KindPostgres Kind = "postgres"
	// KindRedis is the key-value cache backend.
	KindRedis Kind = "redis"
	// KindVector is the vector store (pgvector over Postgres).
	KindVector Kind = "vector"
)

// Shared pool defaults, overridable per manager.
const (
	DefaultMaxConns       = 20
	DefaultMinIdle        = 5
	DefaultMaxLifetime    = time.Hour
	DefaultIdleTimeout    = 10 * time.Minute
	DefaultAcquireTimeout = 30 * time.Second
	DefaultSweepInterval  = time.Minute
)

// Config holds pool limits.
type Config struct {
	// MaxConns caps concurrent borrows per pool.
	MaxConns int

	// MinIdle is the minimum idle connections the backend driver keeps warm.
	MinIdle int

	// MaxLifetime is the maximum age of a backend connection.
	MaxLifetime time.Duration

	// IdleTimeout is how long a connection (and a whole unused pool) may
	// sit idle before eviction.
	IdleTimeout time.Duration

	// AcquireTimeout bounds Acquire. Waiting beyond it fails with
	// ErrPoolExhausted rather than blocking indefinitely.
	AcquireTimeout time.Duration

	// SweepInterval is how often idle pools are checked for eviction.
	// A negative value disables the sweep.
	SweepInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MinIdle <= 0 {
		c.MinIdle = DefaultMinIdle
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = DefaultMaxLifetime
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = DefaultAcquireTimeout
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// Handle is a backend client owned by a pool.
type Handle interface {
	Close() error
}

// Pool lends a shared backend handle under a borrow limit. The underlying
// drivers (database/sql, go-redis) multiplex actual connections; the pool
// enforces the borrow ceiling and the acquire timeout.
type Pool struct {
	kind       Kind
	connString string
	handle     Handle
	cfg        Config

	sem      *semaphore.Weighted
	borrows  atomic.Int64
	lastUsed atomic.Int64 // unix nanos

	closeOnce sync.Once
	closeErr  error
}

func newPool(kind Kind, connString string, handle Handle, cfg Config) *Pool {
	p := &Pool{
		kind:       kind,
		connString: connString,
		handle:     handle,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConns)),
	}
	p.touch()
	return p
}

// Kind returns the backend kind.
func (p *Pool) Kind() Kind { return p.kind }

// Acquire borrows the pool's handle. It suspends up to the acquire timeout
// when MaxConns borrows are outstanding, then fails with ErrPoolExhausted.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, domain.ErrPoolExhausted
		}
		return nil, err
	}
	p.borrows.Add(1)
	p.touch()
	return &Lease{pool: p}, nil
}

// Borrows returns the number of outstanding leases.
func (p *Pool) Borrows() int64 {
	return p.borrows.Load()
}

func (p *Pool) touch() {
	p.lastUsed.Store(time.Now().UnixNano())
}

func (p *Pool) idleSince() time.Time {
	return time.Unix(0, p.lastUsed.Load())
}

// close shuts the backend handle. Safe to call more than once.
func (p *Pool) close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.handle.Close()
	})
	return p.closeErr
}

// Lease is one borrowed use of a pool's handle. Release it when done.
type Lease struct {
	pool *Pool
	once sync.Once
}

// Handle returns the borrowed backend handle.
func (l *Lease) Handle() Handle {
	return l.pool.handle
}

// Postgres returns the relational handle, or nil for other kinds.
func (l *Lease) Postgres() *PostgresHandle {
	h, _ := l.pool.handle.(*PostgresHandle)
	return h
}

// Redis returns the key-value handle, or nil for other kinds.
func (l *Lease) Redis() *RedisHandle {
	h, _ := l.pool.handle.(*RedisHandle)
	return h
}

// Release returns the borrow. Safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.borrows.Add(-1)
		l.pool.touch()
		l.pool.sem.Release(1)
	})
}
