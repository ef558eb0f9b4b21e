package pipeline

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/tidemark-ai/harvest/internal/cache"
	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/ports/driven"
)

// Embedding batch defaults.
const (
	DefaultBatchSize     = 16
	DefaultMaxRetries    = 3
	DefaultInitialDelay  = 500 * time.Millisecond
	DefaultConcurrency   = 4
	embeddingCacheTTL    = time.Hour
	embeddingFloat32Size = 4
)

// Embedder turns chunks into embedding vectors. Cache hits bypass the
// network entirely; misses are grouped into batches, dispatched on a
// worker pool, and retried with exponential backoff. Failures are partial:
// chunks that embedded successfully are always returned.
type Embedder struct {
	service   driven.EmbeddingService
	cache     *cache.Cache
	logger    zerolog.Logger
	workers   *ants.Pool
	batchSize int
	retries   int
	delay     time.Duration

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// EmbedderOption configures the embedder.
type EmbedderOption func(*Embedder)

// WithBatchSize sets the maximum chunks per backend call.
func WithBatchSize(n int) EmbedderOption {
	return func(e *Embedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithRetries sets the per-batch retry attempts.
func WithRetries(n int) EmbedderOption {
	return func(e *Embedder) {
		if n > 0 {
			e.retries = n
		}
	}
}

// WithInitialDelay sets the first backoff delay. Subsequent delays double.
func WithInitialDelay(d time.Duration) EmbedderOption {
	return func(e *Embedder) {
		if d > 0 {
			e.delay = d
		}
	}
}

// NewEmbedder creates an embedder over the given backend service and the
// embedding cache instance.
func NewEmbedder(
	service driven.EmbeddingService,
	embeddingCache *cache.Cache,
	logger zerolog.Logger,
	opts ...EmbedderOption,
) (*Embedder, error) {
	workers, err := ants.NewPool(DefaultConcurrency)
	if err != nil {
		return nil, err
	}

	e := &Embedder{
		service:   service,
		cache:     embeddingCache,
		logger:    logger.With().Str("component", "embedder").Logger(),
		workers:   workers,
		batchSize: DefaultBatchSize,
		retries:   DefaultMaxRetries,
		delay:     DefaultInitialDelay,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close releases the worker pool.
func (e *Embedder) Close() {
	e.workers.Release()
}

// EmbedChunks embeds chunks, returning vectors in the order of the input
// chunks. Vectors are re-associated with chunks by ID, never by batch
// position. On partial failure the successful vectors are returned
// alongside a *domain.EmbeddingError naming the failed chunks.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.EmbeddingVector, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	model := e.service.ModelName()
	byID := make(map[string]domain.EmbeddingVector, len(chunks))
	var misses []domain.Chunk

	for _, ch := range chunks {
		hash := domain.ContentHash(model, ch.Content)
		if raw, ok := e.cache.Get(hash); ok {
			values := decodeVector(raw)
			byID[ch.ID] = domain.EmbeddingVector{
				ChunkID:     ch.ID,
				Model:       model,
				ContentHash: hash,
				Values:      values,
				Dimension:   len(values),
			}
			continue
		}
		misses = append(misses, ch)
	}

	var (
		mu       sync.Mutex
		failed   []string
		lastErr  error
		wg       sync.WaitGroup
		batches  = batchChunks(misses, e.batchSize)
		canceled bool
	)

	for _, batch := range batches {
		// Cancellation stops new batches promptly; batches already
		// submitted run to completion so paid-for results are cached.
		if ctx.Err() != nil {
			mu.Lock()
			for _, ch := range batch {
				failed = append(failed, ch.ID)
			}
			lastErr = ctx.Err()
			canceled = true
			mu.Unlock()
			continue
		}

		batch := batch
		wg.Add(1)
		submitErr := e.workers.Submit(func() {
			defer wg.Done()
			vectors, err := e.embedBatchWithRetry(ctx, model, batch)

			mu.Lock()
			defer mu.Unlock()
			for _, v := range vectors {
				byID[v.ChunkID] = v
			}
			if err != nil {
				lastErr = err
				for _, ch := range batch {
					if _, ok := byID[ch.ID]; !ok {
						failed = append(failed, ch.ID)
					}
				}
			}
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			for _, ch := range batch {
				failed = append(failed, ch.ID)
			}
			lastErr = submitErr
			mu.Unlock()
		}
	}
	wg.Wait()

	// Output order equals input chunk order, regardless of batch
	// completion order.
	out := make([]domain.EmbeddingVector, 0, len(byID))
	for _, ch := range chunks {
		if v, ok := byID[ch.ID]; ok {
			out = append(out, v)
		}
	}

	if len(failed) > 0 {
		if canceled {
			e.logger.Debug().Int("failed", len(failed)).Msg("embedding cancelled")
		}
		return out, &domain.EmbeddingError{FailedChunkIDs: failed, Cause: lastErr}
	}
	return out, nil
}

// embedBatchWithRetry embeds one batch with bounded exponential backoff.
// After retries are exhausted the batch is split in half and each half
// retried once before giving up.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, model string, batch []domain.Chunk) ([]domain.EmbeddingVector, error) {
	vectors, err := e.attemptWithBackoff(ctx, model, batch)
	if err == nil {
		return vectors, nil
	}
	if len(batch) < 2 {
		return nil, err
	}

	e.logger.Debug().Int("batch", len(batch)).Err(err).Msg("splitting failed batch")
	mid := len(batch) / 2
	var out []domain.EmbeddingVector
	var lastErr error
	for _, half := range [][]domain.Chunk{batch[:mid], batch[mid:]} {
		vectors, halfErr := e.embedOnce(ctx, model, half)
		if halfErr != nil {
			lastErr = halfErr
			continue
		}
		out = append(out, vectors...)
	}
	if lastErr != nil {
		return out, lastErr
	}
	return out, nil
}

func (e *Embedder) attemptWithBackoff(ctx context.Context, model string, batch []domain.Chunk) ([]domain.EmbeddingVector, error) {
	var lastErr error
	delay := e.delay

	for attempt := 0; attempt < e.retries; attempt++ {
		if attempt > 0 {
			if err := e.sleep(ctx, delay); err != nil {
				return nil, lastErr
			}
			delay *= 2
		}

		vectors, err := e.embedOnce(ctx, model, batch)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		// Retrying is a new provider request; stop once cancelled.
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// embedOnce performs a single backend call and caches every result before
// returning. The call itself is detached from the caller's cancellation so
// an in-flight request completes and its results are kept.
func (e *Embedder) embedOnce(ctx context.Context, model string, batch []domain.Chunk) ([]domain.EmbeddingVector, error) {
	texts := make([]string, len(batch))
	for i, ch := range batch {
		texts[i] = ch.Content
	}

	raw, err := e.service.EmbedBatch(context.WithoutCancel(ctx), texts)
	if err != nil {
		return nil, err
	}

	out := make([]domain.EmbeddingVector, len(batch))
	for i, ch := range batch {
		hash := domain.ContentHash(model, ch.Content)
		out[i] = domain.EmbeddingVector{
			ChunkID:     ch.ID,
			Model:       model,
			ContentHash: hash,
			Values:      raw[i],
			Dimension:   len(raw[i]),
		}
		e.cache.Set(hash, encodeVector(raw[i]), embeddingCacheTTL)
	}
	return out, nil
}

func batchChunks(chunks []domain.Chunk, size int) [][]domain.Chunk {
	if len(chunks) == 0 {
		return nil
	}
	batches := make([][]domain.Chunk, 0, len(chunks)/size+1)
	for start := 0; start < len(chunks); start += size {
		end := start + size
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[start:end])
	}
	return batches
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// encodeVector serializes float32 values little-endian for cache storage.
func encodeVector(values []float32) []byte {
	buf := make([]byte, len(values)*embeddingFloat32Size)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*embeddingFloat32Size:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	values := make([]float32, len(buf)/embeddingFloat32Size)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*embeddingFloat32Size:]))
	}
	return values
}
