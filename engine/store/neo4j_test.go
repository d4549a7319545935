package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/pkg/repo"
)

type fakeRepo[T any] struct {
	items    []T
	listErr  error
	lists    []repo.ListOpts
	upserted []T
	created  []T
	deleted  []string
}

func (f *fakeRepo[T]) Get(context.Context, string) (T, error) {
	var zero T
	return zero, repo.ErrNotFound
}

func (f *fakeRepo[T]) List(_ context.Context, opts repo.ListOpts) ([]T, error) {
	f.lists = append(f.lists, opts)
	if f.listErr != nil {
		return nil, f.listErr
	}
	if opts.Offset >= len(f.items) {
		return nil, nil
	}
	end := min(opts.Offset+opts.Limit, len(f.items))
	return f.items[opts.Offset:end], nil
}

func (f *fakeRepo[T]) Create(_ context.Context, e T) (T, error) {
	f.created = append(f.created, e)
	return e, nil
}

func (f *fakeRepo[T]) Upsert(_ context.Context, e T) (T, error) {
	f.upserted = append(f.upserted, e)
	return e, nil
}

func (f *fakeRepo[T]) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func TestNeo4jChunkStoreLoadAllPages(t *testing.T) {
	fr := &fakeRepo[domain.DocumentChunk]{}
	for _, id := range []string{"a#0", "a#1", "a#2", "b#0", "b#1"} {
		fr.items = append(fr.items, domain.DocumentChunk{ID: id})
	}
	s := newNeo4jChunkStore(fr)
	s.page = 2

	all, err := s.LoadAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 || all[4].ID != "b#1" {
		t.Fatalf("unexpected chunks: %+v", all)
	}
	if len(fr.lists) != 3 || fr.lists[0].OrderBy != "id" || fr.lists[2].Offset != 4 {
		t.Fatalf("unexpected paging: %+v", fr.lists)
	}
}

func TestNeo4jChunkStoreLoadAllError(t *testing.T) {
	s := newNeo4jChunkStore(&fakeRepo[domain.DocumentChunk]{listErr: errors.New("unavailable")})
	if _, err := s.LoadAll(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNeo4jChunkStoreSaveUpserts(t *testing.T) {
	fr := &fakeRepo[domain.DocumentChunk]{}
	s := newNeo4jChunkStore(fr)
	if err := s.Save(context.Background(), domain.DocumentChunk{ID: "a#0"}); err != nil {
		t.Fatal(err)
	}
	if len(fr.upserted) != 1 {
		t.Fatal("save should upsert so backfill is idempotent")
	}
}

func TestChunkRoundTripThroughNodeProps(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	in := domain.DocumentChunk{ID: "doc#0001", Slug: "doc", Source: "doc.md", Content: "text", Embedding: []float32{0.5, -1}, CreatedAt: created}

	props := chunkToMap(in)
	emb := props["embedding"].([]float64)
	raw := make([]any, len(emb))
	for i, v := range emb {
		raw[i] = v
	}
	props["embedding"] = raw

	rec := &neo4j.Record{Keys: []string{"n"}, Values: []any{neo4j.Node{Props: props}}}
	out, err := chunkFromRecord(rec)
	if err != nil {
		t.Fatal(err)
	}
	if out.ID != in.ID || out.Source != "doc.md" || !out.CreatedAt.Equal(created) {
		t.Fatalf("unexpected chunk: %+v", out)
	}
	if len(out.Embedding) != 2 || out.Embedding[1] != -1 {
		t.Fatalf("unexpected embedding: %v", out.Embedding)
	}
}

func TestChunkWithoutEmbeddingHasNoProperty(t *testing.T) {
	if _, ok := chunkToMap(domain.DocumentChunk{ID: "x"})["embedding"]; ok {
		t.Fatal("missing embeddings must stay absent so backfill can find them")
	}
}

func TestRunRecordProps(t *testing.T) {
	call := domain.ToolCall{
		Tool:          "fetch_brief",
		Arguments:     map[string]any{"route_slug": "express-delivery"},
		OutputPreview: `{"name":"Express`,
		RawOutput:     `{"name":"Express Delivery Route"}`,
	}
	in := domain.AgentRunRecord{
		ID:                 "run-1",
		SubjectSlug:        "express-delivery",
		Variant:            domain.VariantReadiness,
		AudienceRole:       "Driver",
		AudienceExperience: domain.Intermediate,
		Summary:            "ok",
		Recommendations:    []domain.Recommendation{{Title: "t", Detail: "d", Priority: domain.PriorityHigh}},
		ToolCalls:          []domain.ToolCall{call},
		RetrievedContexts:  []domain.RetrievedContext{{Content: "c", Source: "s", Score: 0.5}},
		UsedLLM:            true,
		CreatedAt:          time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	rec := &neo4j.Record{Keys: []string{"n"}, Values: []any{neo4j.Node{Props: runToMap(in)}}}
	out, err := runFromRecord(rec)
	if err != nil {
		t.Fatal(err)
	}
	if out.SubjectSlug != in.SubjectSlug || !out.UsedLLM || out.AudienceExperience != domain.Intermediate {
		t.Fatalf("unexpected run: %+v", out)
	}
	if len(out.Recommendations) != 1 || out.Recommendations[0].Priority != domain.PriorityHigh {
		t.Fatalf("recommendations: %+v", out.Recommendations)
	}
	if len(out.ToolCalls) != 1 || out.ToolCalls[0].Tool != "fetch_brief" {
		t.Fatalf("tool calls: %+v", out.ToolCalls)
	}
	if out.ToolCalls[0].RawOutput != `{"name":"Express Delivery Route"}` {
		t.Errorf("raw output not persisted: %q", out.ToolCalls[0].RawOutput)
	}
	if len(out.RetrievedContexts) != 1 || out.RetrievedContexts[0].Score != 0.5 {
		t.Fatalf("contexts: %+v", out.RetrievedContexts)
	}
}

func TestRunFromRecordRejectsBadJSON(t *testing.T) {
	props := runToMap(domain.AgentRunRecord{ID: "r"})
	props["tool_calls"] = "{not json"
	rec := &neo4j.Record{Keys: []string{"n"}, Values: []any{neo4j.Node{Props: props}}}
	if _, err := runFromRecord(rec); err == nil {
		t.Fatal("expected decode error")
	}
}
