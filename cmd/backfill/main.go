// Command backfill embeds stored chunks that have no vector yet, mirrors
// them to Qdrant when configured, and tells running API servers to rebuild
// their retrieval index.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/engine/embed"
	"github.com/WessleyAI/routewise/engine/ingest"
	"github.com/WessleyAI/routewise/engine/rag"
	"github.com/WessleyAI/routewise/engine/semantic"
	"github.com/WessleyAI/routewise/engine/store"
	"github.com/WessleyAI/routewise/pkg/config"
	"github.com/WessleyAI/routewise/pkg/fn"
	"github.com/WessleyAI/routewise/pkg/metrics"
	"github.com/WessleyAI/routewise/pkg/natsutil"
)

// upsertBatch bounds the points sent to Qdrant per request.
const upsertBatch = 256

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("backfill failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	stores, err := store.Open(ctx, cfg.Neo4j)
	if err != nil {
		return err
	}
	defer func() { _ = stores.Close(context.Background()) }()
	if !stores.Durable {
		return fmt.Errorf("neo4j.url is required: nothing to backfill in memory")
	}

	embedder, err := embed.New(cfg.Embedding, cfg.LLM.OllamaURL)
	if err != nil {
		return err
	}

	var mirror *semantic.VectorStore
	if cfg.Qdrant.Addr != "" {
		mirror, err = semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
		if err != nil {
			return err
		}
		defer func() { _ = mirror.Close() }()
		if err := mirror.EnsureCollection(ctx, embedder.Dimension()); err != nil {
			return fmt.Errorf("qdrant collection: %w", err)
		}
	}

	var nc natsutil.Conn
	if cfg.NATS.URL != "" {
		conn, err := nats.Connect(cfg.NATS.URL, nats.Name("routewise-backfill"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer func() { _ = conn.Drain() }()
		nc = conn
	}

	var m upserter
	if mirror != nil {
		m = mirror
	}
	return backfill(ctx, backfillDeps{
		Chunks:   stores.Chunks,
		Embedder: embedder,
		Mirror:   m,
		NATS:     nc,
		Metrics:  metrics.New(),
		Logger:   logger,
		Now:      time.Now,
	})
}

type upserter interface {
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
}

type backfillDeps struct {
	Chunks   store.ChunkStore
	Embedder embed.Embedder
	Mirror   upserter
	NATS     natsutil.Conn
	Metrics  *metrics.Registry
	Logger   *slog.Logger
	Now      func() time.Time
}

// backfill embeds missing vectors, then mirrors the whole chunk set so
// Qdrant catches up with chunks ingested while it was unreachable. The
// change is announced only when something was written.
func backfill(ctx context.Context, d backfillDeps) error {
	r := rag.New(d.Chunks, d.Embedder, rag.Options{Metrics: d.Metrics}, d.Logger)
	chunks, n, err := r.Backfill(ctx)
	if err != nil {
		return err
	}
	d.Logger.Info("embedded missing vectors", "chunks", len(chunks), "backfilled", n)

	mirrored := 0
	if d.Mirror != nil {
		mirrored, err = mirrorAll(ctx, d.Mirror, chunks)
		if err != nil {
			return fmt.Errorf("qdrant upsert: %w", err)
		}
		d.Logger.Info("mirrored to qdrant", "points", mirrored)
	}

	if d.NATS == nil || n == 0 {
		return nil
	}
	change := store.IndexChange{Chunks: n, Reason: "backfill", At: d.Now().UTC()}
	if err := store.IndexChanged.Publish(ctx, d.NATS, change); err != nil {
		return fmt.Errorf("announce: %w", err)
	}
	return nil
}

func mirrorAll(ctx context.Context, m upserter, chunks []domain.DocumentChunk) (int, error) {
	n := 0
	for _, batch := range fn.Chunk(ingest.VectorRecords(chunks), upsertBatch) {
		if err := m.Upsert(ctx, batch); err != nil {
			return n, err
		}
		n += len(batch)
	}
	return n, nil
}
