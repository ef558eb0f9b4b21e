package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_EmbedBatch(t *testing.T) {
	var gotReq embedRequest
	srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embed", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := embedResponse{
			Embeddings: make([][]float32, len(gotReq.Texts)),
			Dimension:  3,
			Model:      "nomic-embed-text",
		}
		for i := range resp.Embeddings {
			resp.Embeddings[i] = []float32{float32(i), 1, 2}
		}
		json.NewEncoder(w).Encode(resp)
	})

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "sk-test", Normalize: true})
	require.NoError(t, err)
	defer c.Close()

	vecs, err := c.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0, 1, 2}, vecs[0])
	assert.Equal(t, []float32{1, 1, 2}, vecs[1])

	assert.Equal(t, []string{"alpha", "beta"}, gotReq.Texts)
	assert.True(t, gotReq.Normalize)
	assert.Equal(t, 3, c.Dimensions())
}

func TestClient_EmptyInput(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://unused"})
	require.NoError(t, err)

	vecs, err := c.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs, "no network call for empty input")
}

func TestClient_BackendError(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(embedResponse{Error: "model not loaded"})
	})

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.EmbedBatch(context.Background(), []string{"x"})
	assert.ErrorContains(t, err, "model not loaded")
}

func TestClient_CountMismatch(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{1}}, Dimension: 1})
	})

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorContains(t, err, "2 texts")
}

func TestClient_ConcurrentEmbedBatch(t *testing.T) {
	srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := embedResponse{
			Embeddings: make([][]float32, len(req.Texts)),
			Dimension:  4,
		}
		for i := range resp.Embeddings {
			resp.Embeddings[i] = []float32{1, 2, 3, 4}
		}
		json.NewEncoder(w).Encode(resp)
	})

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	// The embedder fans batches out over a worker pool, so EmbedBatch and
	// Dimensions run concurrently against the one shared client.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
			assert.NoError(t, err)
			_ = c.Dimensions()
		}()
	}
	wg.Wait()

	assert.Equal(t, 4, c.Dimensions())
}

func TestClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestClient_Ping(t *testing.T) {
	calls := 0
	srv := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(embedResponse{Embeddings: [][]float32{{0.1}}, Dimension: 1})
	})

	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	require.NoError(t, c.Ping(context.Background()))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, c.Dimensions())
}
