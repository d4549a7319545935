// Package agent orchestrates the readiness, route validation and chat
// pipelines: capabilities, retrieval, one optional LLM call, then
// deterministic synthesis. Every request runs as a single sequential chain.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/engine/llm"
	"github.com/WessleyAI/routewise/engine/prompt"
	"github.com/WessleyAI/routewise/engine/store"
	"github.com/WessleyAI/routewise/engine/tools"
	"github.com/WessleyAI/routewise/pkg/metrics"
)

// Retriever finds reference snippets for a query, closest first.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedContext, error)
}

// Deps are shared by every pipeline. Retriever, LLM and Runs may be nil.
type Deps struct {
	Catalog   *domain.Catalog
	Runner    *tools.Runner
	Retriever Retriever
	LLM       llm.Completer
	Runs      store.RunSink
	Metrics   *metrics.Registry
	Logger    *slog.Logger
	Now       func() time.Time
	// TopK is the number of snippets retrieved per run.
	TopK int
	// PersistTimeout bounds the run-record write.
	PersistTimeout time.Duration
}

// DefaultTopK is used when Deps.TopK is not set.
const DefaultTopK = 3

type base struct {
	Deps
	duration *prometheus.HistogramVec
}

func newBase(d Deps) base {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.TopK <= 0 {
		d.TopK = DefaultTopK
	}
	if d.PersistTimeout <= 0 {
		d.PersistTimeout = 5 * time.Second
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	return base{
		Deps:     d,
		duration: d.Metrics.Histogram("pipeline_duration_seconds", "End-to-end pipeline latency.", metrics.DefaultBuckets, "variant"),
	}
}

func (b *base) observe(variant string, start time.Time) {
	b.duration.WithLabelValues(variant).Observe(time.Since(start).Seconds())
}

// retrieve returns snippets and the matching trace entry. Only a dimension
// mismatch is an error; anything else degrades to no snippets.
func (b *base) retrieve(ctx context.Context, query string) ([]domain.RetrievedContext, *domain.ToolCall, error) {
	if b.Retriever == nil {
		return []domain.RetrievedContext{}, nil, nil
	}
	found, err := b.Retriever.Retrieve(ctx, query, b.TopK)
	if errors.Is(err, domain.ErrDimensionMismatch) {
		return nil, nil, err
	}
	if err != nil {
		b.Logger.Warn("retrieval failed, continuing without", "query", query, "err", err)
		return []domain.RetrievedContext{}, nil, nil
	}
	if len(found) == 0 {
		return []domain.RetrievedContext{}, nil, nil
	}
	call := &domain.ToolCall{
		Tool:          tools.RAGRetrieval,
		Arguments:     map[string]any{"query": query, "k": b.TopK},
		OutputPreview: fmt.Sprintf("Retrieved %d relevant documents", len(found)),
	}
	return found, call, nil
}

// complete asks the LLM, treating "not configured" like any other failure.
func (b *base) complete(ctx context.Context, p prompt.Prompt) (string, bool) {
	if b.LLM == nil {
		return "", false
	}
	text, err := b.LLM.Complete(ctx, p)
	if err != nil {
		b.Logger.Debug("llm unavailable, using deterministic path", "err", err)
		return "", false
	}
	return text, true
}

func (b *base) llmCall(preview string) domain.ToolCall {
	provider := "unknown"
	if b.LLM != nil {
		provider = b.LLM.Name()
	}
	return domain.ToolCall{
		Tool:          tools.LLMInsight,
		Arguments:     map[string]any{"provider": provider},
		OutputPreview: tools.Preview(preview),
	}
}

// persist writes rec within PersistTimeout. Failures are logged only.
func (b *base) persist(ctx context.Context, rec domain.AgentRunRecord) {
	if b.Runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.PersistTimeout)
	defer cancel()
	if err := b.Runs.Save(ctx, rec); err != nil {
		b.Logger.Warn("run persistence failed, continuing without", "run_id", rec.ID, "variant", rec.Variant, "err", err)
	}
}

func (b *base) newRecord(variant string) domain.AgentRunRecord {
	return domain.AgentRunRecord{
		ID:        uuid.NewString(),
		Variant:   variant,
		CreatedAt: b.Now().UTC(),
	}
}
