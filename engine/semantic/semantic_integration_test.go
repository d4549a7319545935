//go:build integration

package semantic

import (
	"context"
	"os"
	"testing"
)

func qdrantAddr() string {
	if v := os.Getenv("QDRANT_URL"); v != "" {
		return v
	}
	return "localhost:6334"
}

func testStore(t *testing.T, collection string) *VectorStore {
	t.Helper()
	vs, err := New(qdrantAddr(), collection)
	if err != nil {
		t.Fatalf("connect qdrant: %v", err)
	}
	t.Cleanup(func() {
		vs.DeleteCollection(context.Background())
		vs.Close()
	})
	return vs
}

func TestQdrant_UpsertSearchDelete(t *testing.T) {
	vs := testStore(t, "routewise_it")
	ctx := context.Background()

	if err := vs.EnsureCollection(ctx, 4); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if err := vs.EnsureCollection(ctx, 4); err != nil {
		t.Fatalf("EnsureCollection (idempotent): %v", err)
	}

	records := []VectorRecord{
		{ID: "00000000-0000-0000-0000-000000000001", Embedding: []float32{1, 0, 0, 0},
			Payload: map[string]any{"content": "Rain slows deliveries", "source": "A", "slug": "weather"}},
		{ID: "00000000-0000-0000-0000-000000000002", Embedding: []float32{0, 1, 0, 0},
			Payload: map[string]any{"content": "Sunny day ahead", "source": "B", "slug": "forecast"}},
	}
	if err := vs.Upsert(ctx, records); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := vs.Search(ctx, []float32{0.9, 0.1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 || hits[0].Source != "A" {
		t.Fatalf("unexpected hits: %+v", hits)
	}

	if err := vs.DeleteBySlug(ctx, "weather"); err != nil {
		t.Fatalf("DeleteBySlug: %v", err)
	}
	hits, _ = vs.SearchFiltered(ctx, []float32{1, 0, 0, 0}, 2, map[string]string{"slug": "weather"})
	if len(hits) != 0 {
		t.Fatalf("expected weather points gone, got %+v", hits)
	}
}
