package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidConfiguration indicates a malformed connector or account
	// configuration. Caller error, never retried automatically.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrAuthenticationFailed indicates the authorization artifact was
	// invalid or expired. Surfaced immediately, without retry.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrConnectionFailed indicates stored credentials were rejected by the
	// provider. The caller must trigger re-authentication, not retry.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrSyncFailed indicates a transient sync failure. Retryable by the caller.
	ErrSyncFailed = errors.New("sync failed")

	// ErrSyncInProgress indicates a sync is already running for the account.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrPoolExhausted indicates the connection pool's acquire timeout
	// elapsed. Retryable after a short delay.
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// ErrConnectorClosed indicates the connector has been closed.
	ErrConnectorClosed = errors.New("connector closed")

	// ErrUnsupportedType indicates an unknown connector type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrAccountDisconnected indicates an operation was attempted on a
	// disconnected account.
	ErrAccountDisconnected = errors.New("account disconnected")
)

// RateLimitError indicates a provider rate limit was exceeded.
// Callers must back off until RetryAfter if set, otherwise with exponential
// backoff starting at 500ms.
type RateLimitError struct {
	// Provider names the source (e.g., "github").
	Provider string
	// RetryAfter is the provider-indicated reset time. Zero if unknown.
	RetryAfter time.Time
	// Remaining and Limit report the provider quota, when known.
	Remaining int
	Limit     int
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter.IsZero() {
		return fmt.Sprintf("%s: rate limit exceeded", e.Provider)
	}
	return fmt.Sprintf("%s: rate limit exceeded, resets at %s", e.Provider, e.RetryAfter.Format(time.RFC3339))
}

// IsRateLimited checks if the error indicates provider rate limiting.
func IsRateLimited(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// EmbeddingError reports a partial embedding failure: chunks that embedded
// successfully are still returned alongside this error.
type EmbeddingError struct {
	// FailedChunkIDs lists the chunks that could not be embedded.
	FailedChunkIDs []string
	// Cause is the last underlying error.
	Cause error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed for %d chunks: %v", len(e.FailedChunkIDs), e.Cause)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Cause
}

// IsPartialEmbedding checks if the error is a partial embedding failure.
func IsPartialEmbedding(err error) (*EmbeddingError, bool) {
	var ee *EmbeddingError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}

// ValidationError aggregates configuration validation failures.
type ValidationError struct {
	// Fields maps a config key to its problem.
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for k, v := range e.Fields {
		parts = append(parts, k+": "+v)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfiguration
}
