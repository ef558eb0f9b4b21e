// Command harvestd runs the content ingestion daemon: it wires the stores,
// the embedding pipeline and the connector manager together, then sweeps
// every active account with an incremental sync on a fixed interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidemark-ai/harvest/internal/adapters/driven/embedding"
	"github.com/tidemark-ai/harvest/internal/adapters/driven/storage/postgres"
	pgvstore "github.com/tidemark-ai/harvest/internal/adapters/driven/vector/pgvector"
	"github.com/tidemark-ai/harvest/internal/cache"
	"github.com/tidemark-ai/harvest/internal/config"
	"github.com/tidemark-ai/harvest/internal/core/domain"
	"github.com/tidemark-ai/harvest/internal/core/services"
	"github.com/tidemark-ai/harvest/internal/logger"
	"github.com/tidemark-ai/harvest/internal/pipeline"
	"github.com/tidemark-ai/harvest/internal/pool"
)

func main() {
	configPath := flag.String("config", "", "path to the TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "harvestd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := logger.New(logger.ParseLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pools := pool.NewManager(pool.Config{
		MaxConns:       cfg.Pool.MaxConns,
		MinIdle:        cfg.Pool.MinIdle,
		AcquireTimeout: time.Duration(cfg.Pool.AcquireTimeoutSeconds) * time.Second,
		IdleTimeout:    time.Duration(cfg.Pool.IdleTimeoutSeconds) * time.Second,
	}, log)
	defer pools.Close()

	caches := cache.NewManager()
	defer caches.Close()

	store, err := postgres.NewStore(ctx, pools, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("opening postgres store: %w", err)
	}

	vectors, err := pgvstore.NewStore(ctx, pools, cfg.VectorURL(),
		pgvstore.WithDimension(cfg.Vector.Dimension))
	if err != nil {
		return fmt.Errorf("opening vector store: %w", err)
	}
	defer vectors.Close()

	if cfg.Redis.Addr != "" {
		if _, err := pools.Get(pool.KindRedis, cfg.Redis.Addr); err != nil {
			return fmt.Errorf("opening redis pool: %w", err)
		}
	}

	embedClient, err := embedding.NewClient(embedding.Config{
		BaseURL:   cfg.Embedding.URL,
		Model:     cfg.Embedding.Model,
		APIKey:    cfg.Embedding.APIKey,
		Normalize: cfg.Embedding.Normalize,
		Timeout:   cfg.EmbeddingTimeout(),
	})
	if err != nil {
		return fmt.Errorf("creating embedding client: %w", err)
	}
	defer embedClient.Close()

	embedder, err := pipeline.NewEmbedder(embedClient, caches.Get(cache.EmbeddingCache), log,
		pipeline.WithBatchSize(cfg.Pipeline.BatchSize))
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}
	defer embedder.Close()

	chunker := pipeline.NewChunker(
		pipeline.WithChunkSize(cfg.Pipeline.ChunkSize),
		pipeline.WithOverlap(cfg.Pipeline.ChunkOverlap),
	)
	pipe := pipeline.New(store.DocumentStore(), vectors, chunker, embedder, log)

	factory := services.NewDefaultFactory(log, nil)
	registry := services.NewRegistry()
	manager := services.NewManager(
		store.AccountStore(),
		store.SyncRunStore(),
		factory,
		registry,
		pipe,
		log,
	)

	log.Info().
		Strs("source_types", factory.SupportedTypes()).
		Msg("harvestd started")

	runSyncLoop(ctx, manager, cfg.SyncInterval(), log)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := manager.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("manager shutdown failed")
	}
	log.Info().Msg("harvestd stopped")
	return nil
}

// runSyncLoop sweeps all active accounts with incremental syncs until the
// context is cancelled. A zero interval waits for cancellation only.
func runSyncLoop(ctx context.Context, manager *services.Manager, interval time.Duration, log zerolog.Logger) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outcomes, err := manager.SyncAll(ctx, domain.SyncRequest{Incremental: true})
			if err != nil {
				log.Error().Err(err).Msg("sync sweep failed")
				continue
			}
			failed := 0
			for _, outcome := range outcomes {
				if outcome.Err != nil {
					failed++
				}
			}
			log.Info().
				Int("accounts", len(outcomes)).
				Int("failed", failed).
				Msg("sync sweep finished")
		}
	}
}
