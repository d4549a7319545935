package rag

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/engine/embed"
	"github.com/WessleyAI/routewise/engine/semantic"
	"github.com/WessleyAI/routewise/engine/store"
	"github.com/WessleyAI/routewise/pkg/metrics"
)

// --- fakes ---

type countingStore struct {
	*store.MemoryChunkStore
	mu      sync.Mutex
	saves   int
	saveErr error
}

func (s *countingStore) Save(ctx context.Context, c domain.DocumentChunk) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	return s.MemoryChunkStore.Save(ctx, c)
}

type mockRemote struct {
	hits  []semantic.Hit
	err   error
	calls int
}

func (m *mockRemote) Search(_ context.Context, _ []float32, _ int) ([]semantic.Hit, error) {
	m.calls++
	return m.hits, m.err
}

type failingEmbedder struct{ embed.Embedder }

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("model offline")
}

func weatherChunks() []domain.DocumentChunk {
	return []domain.DocumentChunk{
		{ID: "weather#0000", Slug: "weather", Source: "A", Content: "Rain slows deliveries"},
		{ID: "weather#0001", Slug: "weather", Source: "B", Content: "Sunny day ahead"},
	}
}

// --- tests ---

func TestRetrieveRanksRainFirst(t *testing.T) {
	st := &countingStore{MemoryChunkStore: store.NewMemoryChunkStore(weatherChunks()...)}
	r := New(st, embed.NewHash(embed.DefaultDimension), DefaultOptions(), nil)

	got, err := r.Retrieve(context.Background(), "rain forecast", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 contexts, got %d", len(got))
	}
	if got[0].Source != "A" || got[0].Content != "Rain slows deliveries" {
		t.Fatalf("expected rain chunk first, got %+v", got[0])
	}
	if got[0].Score > got[1].Score {
		t.Fatalf("scores not ascending: %v > %v", got[0].Score, got[1].Score)
	}
}

func TestBackfillPersistsAndConverges(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{MemoryChunkStore: store.NewMemoryChunkStore(weatherChunks()...)}
	r := New(st, embed.NewHash(32), DefaultOptions(), nil)

	if _, err := r.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	if st.saves != 2 {
		t.Fatalf("expected 2 backfill saves, got %d", st.saves)
	}
	all, _ := st.LoadAll(ctx)
	for _, c := range all {
		if len(c.Embedding) != 32 {
			t.Fatalf("chunk %s not backfilled", c.ID)
		}
	}

	if _, err := r.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	if st.saves != 2 {
		t.Fatalf("second build should not write again, saves=%d", st.saves)
	}
}

func TestBackfillSaveFailureStillBuilds(t *testing.T) {
	st := &countingStore{MemoryChunkStore: store.NewMemoryChunkStore(weatherChunks()...), saveErr: errors.New("read only")}
	r := New(st, embed.NewHash(16), DefaultOptions(), nil)
	n, err := r.Rebuild(context.Background())
	if err != nil || n != 2 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestRebuildDimensionMismatchIsFatal(t *testing.T) {
	chunks := weatherChunks()
	chunks[0].Embedding = []float32{1, 0, 0}
	st := &countingStore{MemoryChunkStore: store.NewMemoryChunkStore(chunks...)}
	r := New(st, embed.NewHash(16), DefaultOptions(), nil)

	_, err := r.Rebuild(context.Background())
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if _, err := r.Retrieve(context.Background(), "rain", 1); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("retrieve should surface the build error, got %v", err)
	}
}

func TestRetrieveEmptyStore(t *testing.T) {
	st := &countingStore{MemoryChunkStore: store.NewMemoryChunkStore()}
	r := New(st, embed.NewHash(16), DefaultOptions(), nil)
	got, err := r.Retrieve(context.Background(), "anything", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no contexts, got %+v", got)
	}
}

func TestRebuildSwapsSnapshot(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{MemoryChunkStore: store.NewMemoryChunkStore(weatherChunks()[:1]...)}
	r := New(st, embed.NewHash(16), DefaultOptions(), nil)
	if _, err := r.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	old := r.index.Load()

	st.MemoryChunkStore.Save(ctx, weatherChunks()[1])
	if _, err := r.Rebuild(ctx); err != nil {
		t.Fatal(err)
	}
	if old.Len() != 1 {
		t.Fatal("old snapshot must not be mutated")
	}
	if r.Len() != 2 {
		t.Fatalf("new snapshot should hold 2 chunks, got %d", r.Len())
	}
}

func TestRemoteSearchPreferredThenFallback(t *testing.T) {
	st := &countingStore{MemoryChunkStore: store.NewMemoryChunkStore(weatherChunks()...)}
	remote := &mockRemote{hits: []semantic.Hit{{Content: "remote", Source: "qdrant", Distance: 0.1}}}
	opts := DefaultOptions()
	opts.Remote = remote
	r := New(st, embed.NewHash(16), opts, nil)

	got, err := r.Retrieve(context.Background(), "rain", 1)
	if err != nil || len(got) != 1 || got[0].Source != "qdrant" {
		t.Fatalf("got %+v err=%v", got, err)
	}

	remote.err = errors.New("unavailable")
	got, err = r.Retrieve(context.Background(), "rain", 1)
	if err != nil || len(got) != 1 || got[0].Source != "A" {
		t.Fatalf("expected local fallback, got %+v err=%v", got, err)
	}
}

func TestSearchEmbedError(t *testing.T) {
	st := &countingStore{MemoryChunkStore: store.NewMemoryChunkStore()}
	r := New(st, failingEmbedder{embed.NewHash(8)}, DefaultOptions(), nil)
	if _, err := r.Search(context.Background(), "rain", 1); err == nil {
		t.Fatal("expected embed error")
	}
}

func TestMetricsRecorded(t *testing.T) {
	reg := metrics.New()
	st := &countingStore{MemoryChunkStore: store.NewMemoryChunkStore(weatherChunks()...)}
	opts := DefaultOptions()
	opts.Metrics = reg
	r := New(st, embed.NewHash(16), opts, nil)
	if _, err := r.Rebuild(context.Background()); err != nil {
		t.Fatal(err)
	}
	families, err := reg.Gatherer().Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			if g := m.GetGauge(); g != nil {
				found[f.GetName()] = g.GetValue()
			}
			if c := m.GetCounter(); c != nil {
				found[f.GetName()] = c.GetValue()
			}
		}
	}
	if found["routewise_index_chunks"] != 2 || found["routewise_backfilled_chunks_total"] != 2 {
		t.Fatalf("unexpected metrics: %v", found)
	}
}

type captureConn struct {
	handler nats.MsgHandler
}

func (c *captureConn) PublishMsg(msg *nats.Msg) error {
	if c.handler != nil {
		c.handler(msg)
	}
	return nil
}

func (c *captureConn) Subscribe(_ string, cb nats.MsgHandler) (*nats.Subscription, error) {
	c.handler = cb
	return &nats.Subscription{}, nil
}

func (c *captureConn) QueueSubscribe(_, _ string, cb nats.MsgHandler) (*nats.Subscription, error) {
	c.handler = cb
	return &nats.Subscription{}, nil
}

func TestWatchRebuildsOnIndexChange(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{MemoryChunkStore: store.NewMemoryChunkStore()}
	r := New(st, embed.NewHash(16), DefaultOptions(), nil)
	nc := &captureConn{}
	if _, err := r.WatchRebuilds(nc); err != nil {
		t.Fatal(err)
	}

	st.MemoryChunkStore.Save(ctx, weatherChunks()[0])
	if err := store.IndexChanged.Publish(ctx, nc, store.IndexChange{Slug: "weather", Chunks: 1, Reason: "ingest"}); err != nil {
		t.Fatal(err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected rebuild after change, len=%d", r.Len())
	}

	nc.handler(&nats.Msg{Data: []byte("not json")})
	if r.Len() != 1 {
		t.Fatal("malformed message must not disturb the snapshot")
	}
}

func TestConcurrentRetrieveDuringRebuild(t *testing.T) {
	ctx := context.Background()
	st := &countingStore{MemoryChunkStore: store.NewMemoryChunkStore(weatherChunks()...)}
	r := New(st, embed.NewHash(16), DefaultOptions(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := r.Retrieve(ctx, "rain", 2); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := r.Rebuild(ctx); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
}
