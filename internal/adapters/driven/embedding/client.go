// Package embedding provides the HTTP client for the embedding backend's
// batch endpoint.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
)

// Ensure Client implements the interface.
var _ driven.EmbeddingService = (*Client)(nil)

// Default configuration values.
const (
	DefaultModel   = "nomic-embed-text"
	DefaultTimeout = 60 * time.Second
)

// Config holds configuration for the embedding backend client.
type Config struct {
	// BaseURL is the backend base URL (required).
	BaseURL string

	// Model is the embedding model identifier reported by the backend.
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Normalize asks the backend for unit-length vectors.
	Normalize bool

	// Timeout is the request timeout (default: 60s).
	Timeout time.Duration
}

// Client calls the embedding backend's batch endpoint.
type Client struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	model      string
	normalize  bool
	dimensions atomic.Int64
}

// embedRequest is the backend's batch request format.
type embedRequest struct {
	Texts     []string `json:"texts"`
	Normalize bool     `json:"normalize"`
}

// embedResponse is the backend's batch response format.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Dimension  int         `json:"dimension"`
	Model      string      `json:"model"`
	Error      string      `json:"error,omitempty"`
}

// NewClient creates a new embedding backend client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding: base URL is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Client{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		normalize: cfg.Normalize,
	}, nil
}

// EmbedBatch generates embeddings for multiple texts in one call.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	jsonBody, err := json.Marshal(embedRequest{Texts: texts, Normalize: c.normalize})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/embed",
		bytes.NewReader(jsonBody),
	)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var embedResp embedResponse
	if err := json.Unmarshal(body, &embedResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if embedResp.Error != "" {
		return nil, fmt.Errorf("embedding backend error: %s", embedResp.Error)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding backend error (status %d): %s", resp.StatusCode, string(body))
	}
	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding backend returned %d vectors for %d texts",
			len(embedResp.Embeddings), len(texts))
	}

	// The backend reports the model's dimension; remember it for callers.
	// EmbedBatch runs concurrently from the embedder's worker pool, so the
	// field is atomic.
	if embedResp.Dimension > 0 {
		c.dimensions.Store(int64(embedResp.Dimension))
	}

	return embedResp.Embeddings, nil
}

// Dimensions returns the embedding vector size reported by the backend.
// Zero until the first successful call or Ping.
func (c *Client) Dimensions() int {
	return int(c.dimensions.Load())
}

// ModelName returns the embedding model identifier.
func (c *Client) ModelName() string {
	return c.model
}

// Ping validates the backend is reachable by embedding a single short text.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.EmbedBatch(ctx, []string{"ping"})
	return err
}

// Close releases resources.
func (c *Client) Close() error {
	return nil
}
