package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/doclane/doclane/db"
	aiclient "github.com/doclane/doclane/internal/ai"
	"github.com/doclane/doclane/internal/answer"
	"github.com/doclane/doclane/internal/chunks"
	"github.com/doclane/doclane/internal/config"
	"github.com/doclane/doclane/internal/documents"
	"github.com/doclane/doclane/internal/ingest"
	"github.com/doclane/doclane/internal/jobs"
	"github.com/doclane/doclane/internal/log"
	"github.com/doclane/doclane/internal/observability"
	"github.com/doclane/doclane/internal/rag"
	"github.com/doclane/doclane/internal/retrieval"
)

// Setup builds the application. Call Close on the returned App to release
// everything; on error the partial App is already cleaned up.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			_ = a.Close()
		}
	}()

	if cfg.TraceEnabled {
		a.otelCleanup = observability.Setup(ctx, observability.Config{
			AgentHost:   cfg.TraceAgentHost,
			ServiceName: cfg.TraceService,
		})
	}

	pool, dbCleanup, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.dbCleanup = dbCleanup

	client, err := aiclient.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing AI client: %w", err)
	}
	a.AI = client

	a.Chunks = chunks.NewStore(pool, logger)
	a.Documents = documents.NewStore(pool, logger)

	fetcher, err := ingest.NewFileFetcher(cfg.StorageDir)
	if err != nil {
		return nil, fmt.Errorf("initializing fetcher: %w", err)
	}

	a.Pipeline, err = ingest.NewPipeline(ingest.Config{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		BatchSize:    cfg.EmbedBatchSize,
		VectorDim:    cfg.VectorDim,
		RateLimit:    cfg.EmbedRateLimit,
	}, fetcher, ingest.PlainTextNormalizer{}, client.Embedder, a.Chunks, a.Documents, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing pipeline: %w", err)
	}
	a.Worker = jobs.NewWorker(a.Pipeline, logger)

	retriever, err := retrieval.New(client.Embedder, a.Chunks, int32(cfg.MaxChunks), logger)
	if err != nil {
		return nil, fmt.Errorf("initializing retriever: %w", err)
	}

	synthesizer, err := answer.New(client, cfg.ContextBudget, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing synthesizer: %w", err)
	}

	a.RAG = rag.New(a.Chunks, retriever, synthesizer, logger)
	return a, nil
}

// providePool runs migrations and opens the connection pool. Every new
// connection registers the pgvector codecs so embeddings bind as native
// vector values.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, pool.Close, nil
}
