package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harvest.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
[log]
level = "debug"

[database]
url = "postgres://localhost/harvest"

[redis]
addr = "localhost:6379"

[vector]
dimension = 768

[embedding]
url = "http://localhost:8080"
model = "nomic-embed-text"

[pipeline]
chunk_size = 500
chunk_overlap = 100
batch_size = 8

[pool]
max_conns = 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "postgres://localhost/harvest", cfg.Database.URL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 768, cfg.Vector.Dimension)
	assert.Equal(t, "http://localhost:8080", cfg.Embedding.URL)
	assert.Equal(t, 500, cfg.Pipeline.ChunkSize)
	assert.Equal(t, 100, cfg.Pipeline.ChunkOverlap)
	assert.Equal(t, 8, cfg.Pipeline.BatchSize)
	assert.Equal(t, 10, cfg.Pool.MaxConns)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
[database]
url = "postgres://localhost/harvest"

[embedding]
url = "http://localhost:8080"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultVectorDim, cfg.Vector.Dimension)
	assert.Equal(t, DefaultChunkSize, cfg.Pipeline.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, cfg.Pipeline.ChunkOverlap)
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("HARVEST_DATABASE_URL", "postgres://env/harvest")
	t.Setenv("HARVEST_EMBEDDING_URL", "http://env:8080")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/harvest", cfg.Database.URL)
	assert.Equal(t, "http://env:8080", cfg.Embedding.URL)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[database]
url = "postgres://file/harvest"

[embedding]
url = "http://file:8080"
model = "file-model"
`)
	t.Setenv("HARVEST_DATABASE_URL", "postgres://env/harvest")
	t.Setenv("HARVEST_EMBEDDING_MODEL", "env-model")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/harvest", cfg.Database.URL)
	assert.Equal(t, "http://file:8080", cfg.Embedding.URL)
	assert.Equal(t, "env-model", cfg.Embedding.Model)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	path := writeConfig(t, `
[embedding]
url = "http://localhost:8080"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.url")
}

func TestLoad_MissingEmbeddingURL(t *testing.T) {
	path := writeConfig(t, `
[database]
url = "postgres://localhost/harvest"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.url")
}

func TestLoad_OverlapLargerThanChunkSize(t *testing.T) {
	path := writeConfig(t, `
[database]
url = "postgres://localhost/harvest"

[embedding]
url = "http://localhost:8080"

[pipeline]
chunk_size = 100
chunk_overlap = 100
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap")
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeConfig(t, `[database`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestConfig_VectorURL_FallsBackToDatabase(t *testing.T) {
	cfg := Config{Database: DatabaseConfig{URL: "postgres://localhost/harvest"}}
	assert.Equal(t, "postgres://localhost/harvest", cfg.VectorURL())

	cfg.Vector.URL = "postgres://vectors/harvest"
	assert.Equal(t, "postgres://vectors/harvest", cfg.VectorURL())
}
