// Package ingest turns source documents into retrievable chunks: validate,
// split into sentences, pack into overlapping chunks, embed, then replace the
// document's chunks in the store and optionally in the Qdrant mirror.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/engine/embed"
	"github.com/WessleyAI/routewise/engine/semantic"
	"github.com/WessleyAI/routewise/engine/store"
	"github.com/WessleyAI/routewise/pkg/fn"
	"github.com/WessleyAI/routewise/pkg/metrics"
	"github.com/WessleyAI/routewise/pkg/natsutil"
)

// Subjects for queued ingestion.
var (
	Requests    = natsutil.NewSubject[Document]("routewise.ingest")
	DeadLetters = natsutil.NewSubject[DeadLetter]("routewise.ingest.dlq")
)

const (
	// QueueGroup shares queued documents among consumer replicas.
	QueueGroup = "routewise-ingest"
	// MaxRetries before a document goes to DeadLetters.
	MaxRetries = 3
	// EmbedWorkers bounds concurrent embedding calls per document.
	EmbedWorkers = 4
)

// Mirror is the write side of the Qdrant vector store.
type Mirror interface {
	DeleteBySlug(ctx context.Context, slug string) error
	Upsert(ctx context.Context, records []semantic.VectorRecord) error
}

var _ Mirror = (*semantic.VectorStore)(nil)

// Deps holds the external dependencies for the ingestion pipeline. Only
// Chunks is required. Without an Embedder chunks are stored bare and the
// retriever backfills them on its next build.
type Deps struct {
	Chunks    store.ChunkStore
	Embedder  embed.Embedder
	Mirror    Mirror
	NATS      natsutil.Conn
	Metrics   *metrics.Registry
	Logger    *slog.Logger
	ChunkSize int
	Overlap   int
	Now       func() time.Time
}

func (d *Deps) defaults() {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.ChunkSize <= 0 {
		d.ChunkSize = DefaultChunkSize
		if d.Overlap == 0 {
			d.Overlap = DefaultOverlap
		}
	}
	if d.Overlap < 0 {
		d.Overlap = 0
	}
	if d.Now == nil {
		d.Now = time.Now
	}
}

// --- Pipeline Stages ---

// Validate rejects documents without a usable slug or content.
var Validate fn.Stage[Document, Document] = func(_ context.Context, doc Document) fn.Result[Document] {
	doc.Slug = strings.TrimSpace(doc.Slug)
	switch {
	case doc.Slug == "":
		return fn.Err[Document](domain.NewValidationError("slug", doc.Slug, domain.ErrRequired))
	case strings.ContainsAny(doc.Slug, "# \t\n"):
		return fn.Err[Document](domain.NewValidationError("slug", doc.Slug, domain.ErrInvalidFormat))
	case strings.TrimSpace(doc.Content) == "":
		return fn.Err[Document](domain.NewValidationError("content", "", domain.ErrRequired))
	}
	if doc.Source == "" {
		doc.Source = doc.Slug
	}
	return fn.Ok(doc)
}

// Parse splits a document into sentences.
var Parse fn.Stage[Document, ParsedDoc] = func(_ context.Context, doc Document) fn.Result[ParsedDoc] {
	return fn.Ok(ParsedDoc{Document: doc, Sentences: splitSentences(doc.Content)})
}

// NewChunk creates the stage packing sentences into chunks.
func NewChunk(size, overlap int, now func() time.Time) fn.Stage[ParsedDoc, ChunkedDoc] {
	return func(_ context.Context, doc ParsedDoc) fn.Result[ChunkedDoc] {
		texts := chunkSentences(doc.Sentences, size, overlap)
		return fn.Ok(ChunkedDoc{ParsedDoc: doc, Chunks: toChunks(doc.Document, texts, now().UTC())})
	}
}

// NewEmbed creates the stage that fills chunk embeddings. A nil embedder
// passes chunks through untouched.
func NewEmbed(e embed.Embedder) fn.Stage[ChunkedDoc, ChunkedDoc] {
	return func(ctx context.Context, doc ChunkedDoc) fn.Result[ChunkedDoc] {
		if e == nil {
			return fn.Ok(doc)
		}
		vecs := fn.Collect(fn.ParMapResult(doc.Chunks, EmbedWorkers, func(c domain.DocumentChunk) fn.Result[[]float32] {
			if err := ctx.Err(); err != nil {
				return fn.Err[[]float32](err)
			}
			v, err := e.Embed(ctx, c.Content)
			if err != nil {
				return fn.Err[[]float32](fmt.Errorf("embed %s: %w", c.ID, err))
			}
			return fn.Ok(v)
		}))
		out, err := vecs.Unwrap()
		if err != nil {
			return fn.Err[ChunkedDoc](err)
		}
		for i := range doc.Chunks {
			doc.Chunks[i].Embedding = out[i]
		}
		return fn.Ok(doc)
	}
}

// NewStore creates the stage that replaces the document's chunks. The chunk
// store is authoritative; mirror failures are logged and skipped.
func NewStore(chunks store.ChunkStore, mirror Mirror, log *slog.Logger) fn.Stage[ChunkedDoc, Result] {
	return func(ctx context.Context, doc ChunkedDoc) fn.Result[Result] {
		replaced, err := chunks.DeleteSlug(ctx, doc.Slug)
		if err != nil {
			return fn.Err[Result](fmt.Errorf("delete %s: %w", doc.Slug, err))
		}
		for _, c := range doc.Chunks {
			if err := chunks.Save(ctx, c); err != nil {
				return fn.Err[Result](fmt.Errorf("save %s: %w", c.ID, err))
			}
		}
		if mirror != nil {
			if err := mirrorChunks(ctx, mirror, doc); err != nil {
				log.Warn("ingest: mirror failed, continuing without", "slug", doc.Slug, "err", err)
			}
		}
		return fn.Ok(Result{Slug: doc.Slug, Chunks: len(doc.Chunks), Replaced: replaced})
	}
}

func mirrorChunks(ctx context.Context, mirror Mirror, doc ChunkedDoc) error {
	if err := mirror.DeleteBySlug(ctx, doc.Slug); err != nil {
		return err
	}
	return mirror.Upsert(ctx, VectorRecords(doc.Chunks))
}

// VectorRecords converts embedded chunks to Qdrant points. Chunks without
// an embedding are skipped.
func VectorRecords(chunks []domain.DocumentChunk) []semantic.VectorRecord {
	return fn.FilterMap(chunks, func(c domain.DocumentChunk) (semantic.VectorRecord, bool) {
		return semantic.VectorRecord{
			ID:        PointID(c.ID),
			Embedding: c.Embedding,
			Payload: map[string]any{
				"content":  c.Content,
				"slug":     c.Slug,
				"source":   c.Source,
				"chunk_id": c.ID,
			},
		}, len(c.Embedding) > 0
	})
}

// PointID derives the stable Qdrant point ID of a chunk.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

// NewAnnounce creates the stage publishing store.IndexChanged so retrievers
// rebuild. A nil connection or a publish failure leaves the result as is.
func NewAnnounce(nc natsutil.Conn, now func() time.Time, log *slog.Logger) fn.Stage[Result, Result] {
	return func(ctx context.Context, res Result) fn.Result[Result] {
		if nc == nil {
			return fn.Ok(res)
		}
		change := store.IndexChange{Slug: res.Slug, Chunks: res.Chunks, Reason: "ingest", At: now().UTC()}
		if err := store.IndexChanged.Publish(ctx, nc, change); err != nil {
			log.Warn("ingest: index change publish failed", "slug", res.Slug, "err", err)
		}
		return fn.Ok(res)
	}
}

// LoggedTap returns a stage that logs entry with the stage name.
func LoggedTap[T any](name string, log *slog.Logger) fn.Stage[T, T] {
	return fn.TapStage(func(ctx context.Context, _ T) {
		log.DebugContext(ctx, "stage.enter", "stage", name)
	})
}

// NewPipeline constructs the full ingestion pipeline with all stages wired.
func NewPipeline(deps Deps) fn.Stage[Document, Result] {
	deps.defaults()
	log := deps.Logger

	// Validate → Parse → Chunk → Embed → Store → Announce
	parsed := fn.Then(Validate, fn.Then(LoggedTap[Document]("parse", log), Parse))
	chunked := fn.Then(parsed, fn.Then(LoggedTap[ParsedDoc]("chunk", log), NewChunk(deps.ChunkSize, deps.Overlap, deps.Now)))
	embedded := fn.Then(chunked, fn.Then(LoggedTap[ChunkedDoc]("embed", log), NewEmbed(deps.Embedder)))
	stored := fn.Then(embedded, fn.Then(LoggedTap[ChunkedDoc]("store", log), NewStore(deps.Chunks, deps.Mirror, log)))
	pipeline := fn.TracedStage("ingest.document", fn.Then(stored, NewAnnounce(deps.NATS, deps.Now, log)))

	if deps.Metrics == nil {
		return pipeline
	}
	docs := deps.Metrics.Counter("ingest_documents_total", "Documents ingested, by outcome.", "outcome")
	written := deps.Metrics.Counter("ingest_chunks_total", "Chunks written by ingestion.")
	return func(ctx context.Context, doc Document) fn.Result[Result] {
		res := pipeline(ctx, doc)
		if res.IsErr() {
			docs.WithLabelValues("error").Inc()
			return res
		}
		r, _ := res.Unwrap()
		docs.WithLabelValues("ok").Inc()
		written.WithLabelValues().Add(float64(r.Chunks))
		return res
	}
}

// Remove deletes every chunk of slug from the store and the mirror and
// announces the change. It reports how many chunks the store dropped.
func Remove(ctx context.Context, deps Deps, slug string) (int, error) {
	deps.defaults()
	n, err := deps.Chunks.DeleteSlug(ctx, slug)
	if err != nil {
		return 0, fmt.Errorf("ingest: remove %s: %w", slug, err)
	}
	if deps.Mirror != nil {
		if err := deps.Mirror.DeleteBySlug(ctx, slug); err != nil {
			deps.Logger.Warn("ingest: mirror delete failed, continuing without", "slug", slug, "err", err)
		}
	}
	if deps.NATS != nil && n > 0 {
		change := store.IndexChange{Slug: slug, Reason: "remove", At: deps.Now().UTC()}
		if err := store.IndexChanged.Publish(ctx, deps.NATS, change); err != nil {
			deps.Logger.Warn("ingest: index change publish failed", "slug", slug, "err", err)
		}
	}
	return n, nil
}

// Enqueue publishes doc for a consumer to ingest.
func Enqueue(ctx context.Context, nc natsutil.Conn, doc Document) error {
	return Requests.Publish(ctx, nc, doc)
}

// DeadLetter is published to DeadLetters on repeated or permanent failure.
type DeadLetter struct {
	Document Document `json:"document"`
	Error    string   `json:"error"`
	Retries  int      `json:"retries"`
}

// StartConsumer subscribes to Requests in QueueGroup and runs each document
// through the pipeline. Failures are redelivered with an incremented retry
// header; invalid documents and those out of retries go to DeadLetters.
func StartConsumer(nc natsutil.Conn, deps Deps) (*nats.Subscription, error) {
	deps.defaults()
	pipeline := NewPipeline(deps)
	log := deps.Logger

	return Requests.QueueSubscribe(nc, QueueGroup, func(ctx context.Context, doc Document, msg *nats.Msg) {
		res, err := pipeline(ctx, doc).Unwrap()
		if err == nil {
			log.Info("ingest: success", "slug", res.Slug, "chunks", res.Chunks, "replaced", res.Replaced)
			ack(msg)
			return
		}

		retries := natsutil.RetryCount(msg) + 1
		log.Error("ingest: pipeline failed", "slug", doc.Slug, "retry", retries, "err", err)

		var verr *domain.ValidationError
		if errors.As(err, &verr) || retries >= MaxRetries {
			dl := DeadLetter{Document: doc, Error: err.Error(), Retries: retries}
			if err := DeadLetters.Publish(ctx, nc, dl); err != nil {
				log.Error("ingest: DLQ publish failed", "err", err)
			}
		} else if err := natsutil.Redeliver(nc, msg, retries); err != nil {
			log.Error("ingest: retry publish failed", "err", err)
		}
		ack(msg)
	}, func(err error) {
		log.Error("ingest: unmarshal failed", "err", err)
	})
}

// ack acknowledges JetStream deliveries; core NATS messages have no reply.
func ack(msg *nats.Msg) {
	if msg.Reply != "" {
		_ = msg.Ack()
	}
}
