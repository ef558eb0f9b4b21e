// Package config loads the daemon configuration from a TOML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default configuration values.
const (
	DefaultConfigPath   = "harvest.toml"
	DefaultLogLevel     = "info"
	DefaultVectorDim    = 1536
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultBatchSize    = 16
	DefaultSyncInterval = 300
)

// Config is the daemon configuration.
type Config struct {
	Log       LogConfig       `toml:"log"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	Vector    VectorConfig    `toml:"vector"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Pool      PoolConfig      `toml:"pool"`
	Sync      SyncConfig      `toml:"sync"`
}

// LogConfig controls log output.
type LogConfig struct {
	// Level is a zerolog level name: trace, debug, info, warn, error.
	Level string `toml:"level"`
}

// DatabaseConfig locates the relational store.
type DatabaseConfig struct {
	// URL is the Postgres connection string.
	URL string `toml:"url"`
}

// RedisConfig locates the optional Redis backend.
type RedisConfig struct {
	// Addr is a "host:port" address or a "redis://" URL. Empty disables Redis.
	Addr string `toml:"addr"`
}

// VectorConfig locates the vector store.
type VectorConfig struct {
	// URL is the Postgres connection string for pgvector. Defaults to the
	// database URL.
	URL string `toml:"url"`
	// Dimension is the embedding dimension of the vector column.
	Dimension int `toml:"dimension"`
}

// EmbeddingConfig locates the embedding backend.
type EmbeddingConfig struct {
	// URL is the backend base URL.
	URL string `toml:"url"`
	// Model is the embedding model identifier.
	Model string `toml:"model"`
	// APIKey is sent as a bearer token when set.
	APIKey string `toml:"api_key"`
	// Normalize asks the backend for unit-length vectors.
	Normalize bool `toml:"normalize"`
	// TimeoutSeconds bounds each backend request.
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// PipelineConfig tunes chunking and embedding batches.
type PipelineConfig struct {
	ChunkSize    int `toml:"chunk_size"`
	ChunkOverlap int `toml:"chunk_overlap"`
	BatchSize    int `toml:"batch_size"`
}

// PoolConfig tunes the shared connection pools.
type PoolConfig struct {
	MaxConns              int `toml:"max_conns"`
	MinIdle               int `toml:"min_idle"`
	AcquireTimeoutSeconds int `toml:"acquire_timeout_seconds"`
	IdleTimeoutSeconds    int `toml:"idle_timeout_seconds"`
}

// SyncConfig controls the periodic sync loop.
type SyncConfig struct {
	// IntervalSeconds is the delay between incremental sync sweeps across
	// all active accounts. Zero or negative disables the loop.
	IntervalSeconds int `toml:"interval_seconds"`
}

// Load reads configuration from path (defaults to harvest.toml), applies
// environment overrides and validates the result. A missing file is not an
// error; defaults and environment variables alone can configure the daemon.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		path = DefaultConfigPath
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		// No config file; environment and defaults apply.
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Log:    LogConfig{Level: DefaultLogLevel},
		Vector: VectorConfig{Dimension: DefaultVectorDim},
		Pipeline: PipelineConfig{
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
			BatchSize:    DefaultBatchSize,
		},
		Sync: SyncConfig{IntervalSeconds: DefaultSyncInterval},
	}
}

// SyncInterval returns the periodic sync delay, or zero when disabled.
func (c Config) SyncInterval() time.Duration {
	if c.Sync.IntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Sync.IntervalSeconds) * time.Second
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HARVEST_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("HARVEST_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("HARVEST_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("HARVEST_VECTOR_URL"); v != "" {
		cfg.Vector.URL = v
	}
	if v := os.Getenv("HARVEST_VECTOR_DIMENSION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Vector.Dimension = n
		}
	}
	if v := os.Getenv("HARVEST_EMBEDDING_URL"); v != "" {
		cfg.Embedding.URL = v
	}
	if v := os.Getenv("HARVEST_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("HARVEST_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
}

func validate(cfg Config) error {
	if cfg.Database.URL == "" {
		return errors.New("config: database.url is required (or HARVEST_DATABASE_URL)")
	}
	if cfg.Embedding.URL == "" {
		return errors.New("config: embedding.url is required (or HARVEST_EMBEDDING_URL)")
	}
	if cfg.Vector.Dimension <= 0 {
		return errors.New("config: vector.dimension must be > 0")
	}
	if cfg.Pipeline.ChunkSize <= 0 {
		return errors.New("config: pipeline.chunk_size must be > 0")
	}
	if cfg.Pipeline.ChunkOverlap < 0 {
		return errors.New("config: pipeline.chunk_overlap must be >= 0")
	}
	if cfg.Pipeline.ChunkOverlap >= cfg.Pipeline.ChunkSize {
		return errors.New("config: pipeline.chunk_overlap must be smaller than chunk_size")
	}
	return nil
}

// VectorURL returns the vector store connection string, falling back to the
// database URL when unset.
func (c Config) VectorURL() string {
	if c.Vector.URL != "" {
		return c.Vector.URL
	}
	return c.Database.URL
}

// EmbeddingTimeout returns the embedding request timeout.
func (c Config) EmbeddingTimeout() time.Duration {
	if c.Embedding.TimeoutSeconds > 0 {
		return time.Duration(c.Embedding.TimeoutSeconds) * time.Second
	}
	return 0
}
