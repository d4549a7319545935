// Package main implements the RouteWise API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/WessleyAI/routewise/engine/agent"
	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/engine/embed"
	"github.com/WessleyAI/routewise/engine/ingest"
	"github.com/WessleyAI/routewise/engine/llm"
	"github.com/WessleyAI/routewise/engine/rag"
	"github.com/WessleyAI/routewise/engine/semantic"
	"github.com/WessleyAI/routewise/engine/store"
	"github.com/WessleyAI/routewise/engine/tools"
	"github.com/WessleyAI/routewise/pkg/config"
	"github.com/WessleyAI/routewise/pkg/metrics"
	"github.com/WessleyAI/routewise/pkg/resilience"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, cleanup, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      a.routes(cfg.Server),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Server.Port, "llm", a.llmName)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// build wires every collaborator from cfg. Optional backends (Neo4j, Qdrant,
// NATS, Redis) are used when configured and skipped otherwise.
func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*app, func(), error) {
		cleanup()
		return nil, nil, err
	}

	reg := metrics.New()

	catalog, err := loadCatalog(cfg.Catalog)
	if err != nil {
		return fail(err)
	}

	// --- Stores ---
	stores, err := store.Open(ctx, cfg.Neo4j)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = stores.Close(context.Background()) })
	logger.Info("stores ready", "durable", stores.Durable)

	sinks := store.Fanout{stores.Runs}

	// --- NATS ---
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL, nats.Name("routewise-api"))
		if err != nil {
			return fail(fmt.Errorf("nats connect: %w", err))
		}
		closers = append(closers, nc.Close)
		sinks = append(sinks, store.NewNATSRunPublisher(nc))
		logger.Info("connected to NATS", "url", cfg.NATS.URL)
	}

	// --- Redis cache for external capabilities ---
	var cache tools.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		closers = append(closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed, continuing without cache", "err", err)
		} else {
			cache = tools.NewRedisCache(rdb, "")
		}
	}

	// --- Embeddings + retrieval ---
	embedder, err := embed.New(cfg.Embedding, cfg.LLM.OllamaURL)
	if err != nil {
		return fail(err)
	}
	if err := embed.Probe(ctx, embedder); err != nil {
		return fail(fmt.Errorf("embedder probe: %w", err))
	}

	ropts := rag.Options{TopK: cfg.Retrieval.TopK, Metrics: reg}
	if cfg.Qdrant.Addr != "" {
		vs, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = vs.Close() })
		ropts.Remote = vs
	}
	retriever := rag.New(stores.Chunks, embedder, ropts, logger)

	if !stores.Durable {
		seedChunks(ctx, cfg.Ingest, ingest.Deps{Chunks: stores.Chunks, Embedder: embedder, Logger: logger}, logger)
	}
	n, err := retriever.Rebuild(ctx)
	if errors.Is(err, domain.ErrDimensionMismatch) {
		return fail(err)
	}
	if err != nil {
		logger.Warn("initial index build failed, retrying on first request", "err", err)
	} else {
		logger.Info("retrieval index ready", "chunks", n)
	}
	if nc != nil {
		sub, err := retriever.WatchRebuilds(nc)
		if err != nil {
			return fail(fmt.Errorf("watch rebuilds: %w", err))
		}
		closers = append(closers, func() { _ = sub.Unsubscribe() })
	}

	// --- LLM ---
	completer, err := llm.FromConfig(cfg.LLM)
	if err != nil {
		return fail(err)
	}
	guarded := llm.NewGuarded(completer, llm.GuardOpts{
		Timeout: cfg.LLM.Timeout,
		Breaker: resilience.DefaultBreakerOpts,
		Metrics: reg,
	}, logger)

	// --- Capabilities ---
	topts := tools.DefaultRunnerOpts()
	topts.Timeout = cfg.Tools.Timeout
	topts.Metrics = reg
	runner := tools.NewRunner(tools.Standard(cfg.Tools, tools.Deps{Catalog: catalog, Cache: cache}), topts, logger)

	deps := agent.Deps{
		Catalog:   catalog,
		Runner:    runner,
		Retriever: retriever,
		LLM:       guarded,
		Runs:      sinks,
		Metrics:   reg,
		Logger:    logger,
		TopK:      cfg.Retrieval.TopK,
	}

	return &app{
		readiness: agent.NewReadinessAgent(deps),
		validator: agent.NewRouteValidator(deps),
		chat:      agent.NewChatAgent(deps),
		runs:      stores.Runs,
		search:    retriever,
		metrics:   reg,
		logger:    logger,
		llmName:   guarded.Name(),
	}, cleanup, nil
}

func loadCatalog(cfg config.Catalog) (*domain.Catalog, error) {
	base := domain.DefaultCatalog()
	if cfg.File == "" {
		return base, nil
	}
	data, err := os.ReadFile(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return domain.LoadCatalog(base, data)
}

// seedChunks ingests the configured document directory into in-memory
// stores so retrieval has content without a database. Missing directories
// and unreadable files are logged and skipped.
func seedChunks(ctx context.Context, cfg config.Ingest, deps ingest.Deps, logger *slog.Logger) {
	entries, err := os.ReadDir(cfg.Dir)
	if err != nil {
		logger.Info("no documents to seed", "dir", cfg.Dir, "err", err)
		return
	}
	deps.ChunkSize, deps.Overlap = cfg.ChunkSize, cfg.Overlap
	pipeline := ingest.NewPipeline(deps)
	for _, e := range entries {
		path := filepath.Join(cfg.Dir, e.Name())
		if e.IsDir() || !ingest.IsSource(path) {
			continue
		}
		doc, err := ingest.ReadDocument(path)
		if err != nil {
			logger.Warn("seed: read failed, continuing without", "path", path, "err", err)
			continue
		}
		res, err := pipeline(ctx, doc).Unwrap()
		if err != nil {
			logger.Warn("seed: ingest failed, continuing without", "path", path, "err", err)
			continue
		}
		logger.Info("seeded document", "slug", res.Slug, "chunks", res.Chunks)
	}
}
