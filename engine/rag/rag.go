// Package rag owns retrieval for the agents. It keeps an immutable vector
// index snapshot built from the chunk store, backfills missing embeddings
// before each build, and swaps snapshots atomically so in-flight searches
// never observe a half-built index.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/engine/embed"
	"github.com/WessleyAI/routewise/engine/semantic"
	"github.com/WessleyAI/routewise/engine/store"
	"github.com/WessleyAI/routewise/pkg/metrics"
	"github.com/WessleyAI/routewise/pkg/natsutil"
)

// ChunkSource is the part of the chunk store retrieval needs.
type ChunkSource interface {
	LoadAll(ctx context.Context) ([]domain.DocumentChunk, error)
	Save(ctx context.Context, chunk domain.DocumentChunk) error
}

// RemoteSearcher abstracts Qdrant vector search.
type RemoteSearcher interface {
	Search(ctx context.Context, embedding []float32, topK int) ([]semantic.Hit, error)
}

// Options configures the retriever.
type Options struct {
	TopK int
	// Remote, when set, is queried first; failures fall back to the local index.
	Remote        RemoteSearcher
	SearchTimeout time.Duration
	Metrics       *metrics.Registry
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:          3,
		SearchTimeout: 5 * time.Second,
	}
}

// Retriever answers top-k queries against the current index snapshot.
type Retriever struct {
	chunks   ChunkSource
	embedder embed.Embedder
	opts     Options
	logger   *slog.Logger

	index   atomic.Pointer[semantic.Index]
	buildMu sync.Mutex

	indexSize  prometheus.Gauge
	backfilled prometheus.Counter
}

// New creates a Retriever. The index is built lazily on first use or
// eagerly via Rebuild.
func New(chunks ChunkSource, embedder embed.Embedder, opts Options, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultOptions().SearchTimeout
	}
	r := &Retriever{chunks: chunks, embedder: embedder, opts: opts, logger: logger}
	if opts.Metrics != nil {
		r.indexSize = opts.Metrics.Gauge("index_chunks", "Chunks in the current retrieval snapshot.").WithLabelValues()
		r.backfilled = opts.Metrics.Counter("backfilled_chunks_total", "Chunks embedded lazily before an index build.").WithLabelValues()
	}
	return r
}

// Backfill embeds every chunk lacking a vector and saves it back. It returns
// the full chunk set with embeddings filled in and how many were written.
// Concurrent backfills may embed the same chunk twice; the write is
// idempotent so the race is benign.
func (r *Retriever) Backfill(ctx context.Context) ([]domain.DocumentChunk, int, error) {
	chunks, err := r.chunks.LoadAll(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("rag: load chunks: %w", err)
	}
	n := 0
	for i := range chunks {
		if len(chunks[i].Embedding) > 0 {
			continue
		}
		vec, err := r.embedder.Embed(ctx, chunks[i].Content)
		if err != nil {
			return nil, n, fmt.Errorf("rag: embed chunk %s: %w", chunks[i].ID, err)
		}
		chunks[i].Embedding = vec
		if err := r.chunks.Save(ctx, chunks[i]); err != nil {
			// the in-memory vector is still usable for this build
			r.logger.Warn("rag: backfill save failed, continuing without", "chunk", chunks[i].ID, "err", err)
			continue
		}
		n++
	}
	if n > 0 {
		r.logger.Info("rag backfill done", "chunks", n)
		if r.backfilled != nil {
			r.backfilled.Add(float64(n))
		}
	}
	return chunks, n, nil
}

// Rebuild backfills, builds a fresh snapshot and swaps it in. A dimension
// mismatch between stored vectors and the embedder is returned as
// domain.ErrDimensionMismatch.
func (r *Retriever) Rebuild(ctx context.Context) (int, error) {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()
	return r.rebuildLocked(ctx)
}

func (r *Retriever) rebuildLocked(ctx context.Context) (int, error) {
	chunks, _, err := r.Backfill(ctx)
	if err != nil {
		return 0, err
	}
	entries := make([]semantic.Entry, len(chunks))
	for i, c := range chunks {
		entries[i] = semantic.Entry{Content: c.Content, Source: c.Source, Vector: c.Embedding}
	}
	idx, err := semantic.NewIndex(r.embedder.Dimension(), entries)
	if err != nil {
		return 0, fmt.Errorf("rag: build index: %w", err)
	}
	r.index.Store(idx)
	if r.indexSize != nil {
		r.indexSize.Set(float64(idx.Len()))
	}
	r.logger.Info("rag index built", "chunks", idx.Len(), "dimension", idx.Dimension())
	return idx.Len(), nil
}

// snapshot returns the current index, building it on first use.
func (r *Retriever) snapshot(ctx context.Context) (*semantic.Index, error) {
	if idx := r.index.Load(); idx != nil {
		return idx, nil
	}
	r.buildMu.Lock()
	defer r.buildMu.Unlock()
	if idx := r.index.Load(); idx != nil {
		return idx, nil
	}
	if _, err := r.rebuildLocked(ctx); err != nil {
		return nil, err
	}
	return r.index.Load(), nil
}

// Search embeds query and returns up to k hits closest first. k <= 0 uses
// the configured TopK.
func (r *Retriever) Search(ctx context.Context, query string, k int) ([]semantic.Hit, error) {
	if k <= 0 {
		k = r.opts.TopK
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embed query: %w", err)
	}
	if r.opts.Remote != nil {
		searchCtx, cancel := context.WithTimeout(ctx, r.opts.SearchTimeout)
		hits, err := r.opts.Remote.Search(searchCtx, vec, k)
		cancel()
		if err == nil {
			return hits, nil
		}
		r.logger.Warn("rag: remote search failed, using local index", "err", err)
	}
	idx, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return idx.Search(vec, k)
}

// Retrieve is Search mapped onto the run-record context type.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedContext, error) {
	hits, err := r.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]domain.RetrievedContext, len(hits))
	for i, h := range hits {
		out[i] = domain.RetrievedContext{Content: h.Content, Source: h.Source, Score: h.Distance}
	}
	return out, nil
}

// Len reports the size of the current snapshot, zero before the first build.
func (r *Retriever) Len() int {
	if idx := r.index.Load(); idx != nil {
		return idx.Len()
	}
	return 0
}

// WatchRebuilds rebuilds the snapshot whenever ingestion announces a change.
func (r *Retriever) WatchRebuilds(nc natsutil.Conn) (*nats.Subscription, error) {
	return store.IndexChanged.Subscribe(nc, func(ctx context.Context, ch store.IndexChange, _ *nats.Msg) {
		n, err := r.Rebuild(ctx)
		if err != nil {
			r.logger.Error("rag rebuild failed", "slug", ch.Slug, "reason", ch.Reason, "err", err)
			return
		}
		r.logger.Info("rag rebuilt on change", "slug", ch.Slug, "reason", ch.Reason, "chunks", n)
	}, func(err error) {
		r.logger.Warn("rag: bad index change message", "err", err)
	})
}
