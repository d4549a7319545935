// Package store persists document chunks and agent run records. Memory
// implementations back tests and single-process runs; Neo4j implementations
// back deployments, and run records can additionally be announced on NATS.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/WessleyAI/routewise/engine/domain"
)

// ChunkStore holds retrievable chunks.
type ChunkStore interface {
	LoadAll(ctx context.Context) ([]domain.DocumentChunk, error)
	Save(ctx context.Context, chunk domain.DocumentChunk) error
	// DeleteSlug removes every chunk of a document and reports how many went.
	DeleteSlug(ctx context.Context, slug string) (int, error)
}

// RunSink accepts completed run records.
type RunSink interface {
	Save(ctx context.Context, rec domain.AgentRunRecord) error
}

// RunStore persists run records and lists them newest first. An empty slug
// lists every subject.
type RunStore interface {
	RunSink
	List(ctx context.Context, slug string, limit int) ([]domain.AgentRunRecord, error)
}

// DefaultHistoryLimit applies when List is called with limit <= 0.
const DefaultHistoryLimit = 10

// MemoryChunkStore keeps chunks in insertion order. Saving an existing ID
// replaces it in place.
type MemoryChunkStore struct {
	mu     sync.RWMutex
	chunks []domain.DocumentChunk
}

// NewMemoryChunkStore seeds a store with chunks.
func NewMemoryChunkStore(seed ...domain.DocumentChunk) *MemoryChunkStore {
	s := &MemoryChunkStore{}
	for _, c := range seed {
		s.chunks = append(s.chunks, cloneChunk(c))
	}
	return s
}

func (s *MemoryChunkStore) LoadAll(context.Context) ([]domain.DocumentChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DocumentChunk, len(s.chunks))
	for i, c := range s.chunks {
		out[i] = cloneChunk(c)
	}
	return out, nil
}

func (s *MemoryChunkStore) Save(_ context.Context, chunk domain.DocumentChunk) error {
	if chunk.ID == "" {
		return errors.New("store: chunk without id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.chunks {
		if s.chunks[i].ID == chunk.ID {
			s.chunks[i] = cloneChunk(chunk)
			return nil
		}
	}
	s.chunks = append(s.chunks, cloneChunk(chunk))
	return nil
}

func (s *MemoryChunkStore) DeleteSlug(_ context.Context, slug string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.chunks[:0]
	n := 0
	for _, c := range s.chunks {
		if c.Slug == slug {
			n++
			continue
		}
		kept = append(kept, c)
	}
	s.chunks = kept
	return n, nil
}

func cloneChunk(c domain.DocumentChunk) domain.DocumentChunk {
	if c.Embedding != nil {
		c.Embedding = append([]float32(nil), c.Embedding...)
	}
	return c
}

// MemoryRunStore keeps run records in process.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs []domain.AgentRunRecord
}

func NewMemoryRunStore() *MemoryRunStore { return &MemoryRunStore{} }

func (s *MemoryRunStore) Save(_ context.Context, rec domain.AgentRunRecord) error {
	s.mu.Lock()
	s.runs = append(s.runs, rec)
	s.mu.Unlock()
	return nil
}

func (s *MemoryRunStore) List(_ context.Context, slug string, limit int) ([]domain.AgentRunRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	s.mu.RLock()
	var out []domain.AgentRunRecord
	for _, r := range s.runs {
		if slug == "" || r.SubjectSlug == slug {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	// newest first; equal timestamps keep the later save first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Fanout saves to every sink and joins their errors. Every sink is tried.
type Fanout []RunSink

func (f Fanout) Save(ctx context.Context, rec domain.AgentRunRecord) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Save(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
