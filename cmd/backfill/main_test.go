package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/engine/embed"
	"github.com/WessleyAI/routewise/engine/semantic"
	"github.com/WessleyAI/routewise/engine/store"
	"github.com/WessleyAI/routewise/pkg/metrics"
)

type fakeConn struct {
	published []*nats.Msg
}

func (f *fakeConn) PublishMsg(msg *nats.Msg) error {
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeConn) Subscribe(subject string, _ nats.MsgHandler) (*nats.Subscription, error) {
	return &nats.Subscription{Subject: subject}, nil
}

func (f *fakeConn) QueueSubscribe(subject, queue string, _ nats.MsgHandler) (*nats.Subscription, error) {
	return &nats.Subscription{Subject: subject, Queue: queue}, nil
}

type fakeUpserter struct {
	batches [][]semantic.VectorRecord
	err     error
}

func (u *fakeUpserter) Upsert(_ context.Context, records []semantic.VectorRecord) error {
	if u.err != nil {
		return u.err
	}
	u.batches = append(u.batches, records)
	return nil
}

var fixedNow = func() time.Time { return time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC) }

func testDeps(chunks store.ChunkStore) backfillDeps {
	return backfillDeps{
		Chunks:   chunks,
		Embedder: embed.NewHash(8),
		Metrics:  metrics.New(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:      fixedNow,
	}
}

func seeded() *store.MemoryChunkStore {
	return store.NewMemoryChunkStore(
		domain.DocumentChunk{ID: "fuel#0000", Slug: "fuel", Source: "fuel.txt", Content: "Refuel before the pass."},
		domain.DocumentChunk{ID: "fuel#0001", Slug: "fuel", Source: "fuel.txt", Content: "Diesel gels below -10C."},
		domain.DocumentChunk{ID: "docks#0000", Slug: "docks", Source: "docks.md", Content: "Dock 2 is for reefers.", Embedding: []float32{1, 0, 0, 0, 0, 0, 0, 0}},
	)
}

func TestBackfillEmbedsMirrorsAndAnnounces(t *testing.T) {
	chunks := seeded()
	mirror := &fakeUpserter{}
	nc := &fakeConn{}
	d := testDeps(chunks)
	d.Mirror = mirror
	d.NATS = nc

	if err := backfill(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	all, _ := chunks.LoadAll(context.Background())
	for _, c := range all {
		if len(c.Embedding) != 8 {
			t.Errorf("chunk %s has %d dims", c.ID, len(c.Embedding))
		}
	}

	if len(mirror.batches) != 1 || len(mirror.batches[0]) != 3 {
		t.Fatalf("mirror batches = %v", mirror.batches)
	}

	if len(nc.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(nc.published))
	}
	_, change, err := store.IndexChanged.Decode(nc.published[0])
	if err != nil {
		t.Fatal(err)
	}
	if change.Reason != "backfill" || change.Chunks != 2 || !change.At.Equal(fixedNow()) {
		t.Errorf("change = %+v", change)
	}
}

func TestBackfillNothingToDoIsSilent(t *testing.T) {
	chunks := store.NewMemoryChunkStore(
		domain.DocumentChunk{ID: "docks#0000", Slug: "docks", Content: "Dock 2.", Embedding: []float32{1, 0, 0, 0, 0, 0, 0, 0}},
	)
	nc := &fakeConn{}
	d := testDeps(chunks)
	d.NATS = nc

	if err := backfill(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	if len(nc.published) != 0 {
		t.Errorf("published %d messages, want 0", len(nc.published))
	}
}

func TestBackfillMirrorFailure(t *testing.T) {
	d := testDeps(seeded())
	d.Mirror = &fakeUpserter{err: errors.New("qdrant down")}
	if err := backfill(context.Background(), d); err == nil {
		t.Fatal("expected mirror error")
	}
}

func TestMirrorAllBatches(t *testing.T) {
	chunks := make([]domain.DocumentChunk, upsertBatch+5)
	for i := range chunks {
		chunks[i] = domain.DocumentChunk{ID: "c" + string(rune('a'+i%26)), Embedding: []float32{1}}
	}
	chunks[3].Embedding = nil

	u := &fakeUpserter{}
	n, err := mirrorAll(context.Background(), u, chunks)
	if err != nil {
		t.Fatal(err)
	}
	if n != upsertBatch+4 {
		t.Errorf("mirrored %d, want %d", n, upsertBatch+4)
	}
	if len(u.batches) != 2 || len(u.batches[0]) != upsertBatch || len(u.batches[1]) != 4 {
		t.Errorf("batch sizes wrong: %d batches", len(u.batches))
	}
}
