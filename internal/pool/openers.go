package pool

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresHandle is the relational backend handle. Also used for the
// vector kind: vectors live in pgvector columns on the same server.
type PostgresHandle struct {
	DB *gorm.DB
}

// Close closes the underlying connection pool.
func (h *PostgresHandle) Close() error {
	sqlDB, err := h.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RedisHandle is the key-value backend handle.
type RedisHandle struct {
	Client *redis.Client
}

// Close closes the client and its connection pool.
func (h *RedisHandle) Close() error {
	return h.Client.Close()
}

// openPostgres opens a gorm/Postgres handle with the pool limits applied
// to the driver's own connection pool.
func openPostgres(dsn string, cfg Config) (Handle, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access sql pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.MinIdle)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.IdleTimeout)

	return &PostgresHandle{DB: db}, nil
}

// openRedis opens a go-redis client with the pool limits applied.
// Accepts either a bare "host:port" address or a "redis://" URL.
func openRedis(connString string, cfg Config) (Handle, error) {
	var opts *redis.Options
	if strings.Contains(connString, "://") {
		parsed, err := redis.ParseURL(connString)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: connString}
	}

	opts.PoolSize = cfg.MaxConns
	opts.MinIdleConns = cfg.MinIdle
	opts.ConnMaxLifetime = cfg.MaxLifetime
	opts.ConnMaxIdleTime = cfg.IdleTimeout
	opts.PoolTimeout = cfg.AcquireTimeout

	return &RedisHandle{Client: redis.NewClient(opts)}, nil
}
