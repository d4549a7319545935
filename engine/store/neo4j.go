package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/pkg/repo"
)

// Node labels.
const (
	ChunkLabel = "DocumentChunk"
	RunLabel   = "AgentRun"
)

// Neo4jChunkStore persists chunks as :DocumentChunk nodes.
type Neo4jChunkStore struct {
	repo repo.Repository[domain.DocumentChunk, string]
	page int
}

// NewNeo4jChunkStore builds a chunk store on driver. database may be empty.
func NewNeo4jChunkStore(driver neo4j.DriverWithContext, database string) *Neo4jChunkStore {
	r := repo.NewNeo4jRepo[domain.DocumentChunk, string](driver, ChunkLabel, chunkToMap, chunkFromRecord,
		repo.WithDatabase[domain.DocumentChunk, string](database))
	return newNeo4jChunkStore(r)
}

func newNeo4jChunkStore(r repo.Repository[domain.DocumentChunk, string]) *Neo4jChunkStore {
	return &Neo4jChunkStore{repo: r, page: repo.DefaultListLimit}
}

// LoadAll pages through every chunk ordered by id, which keeps chunks of a
// document in sequence.
func (s *Neo4jChunkStore) LoadAll(ctx context.Context) ([]domain.DocumentChunk, error) {
	var all []domain.DocumentChunk
	for offset := 0; ; offset += s.page {
		page, err := s.repo.List(ctx, repo.ListOpts{Offset: offset, Limit: s.page, OrderBy: "id"})
		if err != nil {
			return nil, fmt.Errorf("store: load chunks: %w", err)
		}
		all = append(all, page...)
		if len(page) < s.page {
			return all, nil
		}
	}
}

func (s *Neo4jChunkStore) Save(ctx context.Context, chunk domain.DocumentChunk) error {
	if _, err := s.repo.Upsert(ctx, chunk); err != nil {
		return fmt.Errorf("store: save chunk %s: %w", chunk.ID, err)
	}
	return nil
}

func (s *Neo4jChunkStore) DeleteSlug(ctx context.Context, slug string) (int, error) {
	n := 0
	for {
		page, err := s.repo.List(ctx, repo.ListOpts{Limit: s.page, Filter: map[string]any{"slug": slug}})
		if err != nil {
			return n, fmt.Errorf("store: list chunks of %s: %w", slug, err)
		}
		for _, c := range page {
			if err := s.repo.Delete(ctx, c.ID); err != nil {
				return n, fmt.Errorf("store: delete chunk %s: %w", c.ID, err)
			}
			n++
		}
		if len(page) < s.page {
			return n, nil
		}
	}
}

func chunkToMap(c domain.DocumentChunk) map[string]any {
	m := map[string]any{
		"id":         c.ID,
		"slug":       c.Slug,
		"source":     c.Source,
		"content":    c.Content,
		"created_at": c.CreatedAt,
	}
	if len(c.Embedding) > 0 {
		v := make([]float64, len(c.Embedding))
		for i, x := range c.Embedding {
			v[i] = float64(x)
		}
		m["embedding"] = v
	}
	return m
}

func chunkFromRecord(rec *neo4j.Record) (domain.DocumentChunk, error) {
	p, err := repo.NodeProps(rec, "n")
	if err != nil {
		return domain.DocumentChunk{}, err
	}
	c := domain.DocumentChunk{
		ID:        str(p["id"]),
		Slug:      str(p["slug"]),
		Source:    str(p["source"]),
		Content:   str(p["content"]),
		CreatedAt: timeProp(p["created_at"]),
	}
	if raw, ok := p["embedding"].([]any); ok && len(raw) > 0 {
		c.Embedding = make([]float32, len(raw))
		for i, x := range raw {
			f, ok := x.(float64)
			if !ok {
				return domain.DocumentChunk{}, fmt.Errorf("store: chunk %s embedding[%d] is %T", c.ID, i, x)
			}
			c.Embedding[i] = float32(f)
		}
	}
	return c, nil
}

// Neo4jRunStore persists run records as :AgentRun nodes. Nested lists are
// stored as JSON strings.
type Neo4jRunStore struct {
	repo repo.Repository[domain.AgentRunRecord, string]
}

// NewNeo4jRunStore builds a run store on driver. database may be empty.
func NewNeo4jRunStore(driver neo4j.DriverWithContext, database string) *Neo4jRunStore {
	r := repo.NewNeo4jRepo[domain.AgentRunRecord, string](driver, RunLabel, runToMap, runFromRecord,
		repo.WithDatabase[domain.AgentRunRecord, string](database))
	return &Neo4jRunStore{repo: r}
}

func (s *Neo4jRunStore) Save(ctx context.Context, rec domain.AgentRunRecord) error {
	if _, err := s.repo.Create(ctx, rec); err != nil {
		return fmt.Errorf("store: save run %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Neo4jRunStore) List(ctx context.Context, slug string, limit int) ([]domain.AgentRunRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	opts := repo.ListOpts{Limit: limit, OrderBy: "created_at", Desc: true}
	if slug != "" {
		opts.Filter = map[string]any{"subject_slug": slug}
	}
	runs, err := s.repo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	return runs, nil
}

func runToMap(r domain.AgentRunRecord) map[string]any {
	recs, _ := json.Marshal(r.Recommendations)
	calls, _ := json.Marshal(r.ToolCalls)
	ctxs, _ := json.Marshal(r.RetrievedContexts)
	return map[string]any{
		"id":                  r.ID,
		"subject_slug":        r.SubjectSlug,
		"variant":             r.Variant,
		"audience_role":       r.AudienceRole,
		"audience_experience": string(r.AudienceExperience),
		"summary":             r.Summary,
		"llm_insight":         r.LLMInsight,
		"recommendations":     string(recs),
		"tool_calls":          string(calls),
		"retrieved_contexts":  string(ctxs),
		"used_llm":            r.UsedLLM,
		"created_at":          r.CreatedAt,
	}
}

func runFromRecord(rec *neo4j.Record) (domain.AgentRunRecord, error) {
	p, err := repo.NodeProps(rec, "n")
	if err != nil {
		return domain.AgentRunRecord{}, err
	}
	r := domain.AgentRunRecord{
		ID:                 str(p["id"]),
		SubjectSlug:        str(p["subject_slug"]),
		Variant:            str(p["variant"]),
		AudienceRole:       str(p["audience_role"]),
		AudienceExperience: domain.Experience(str(p["audience_experience"])),
		Summary:            str(p["summary"]),
		LLMInsight:         str(p["llm_insight"]),
		CreatedAt:          timeProp(p["created_at"]),
	}
	r.UsedLLM, _ = p["used_llm"].(bool)
	err = errors.Join(
		unmarshalProp(p, "recommendations", &r.Recommendations),
		unmarshalProp(p, "tool_calls", &r.ToolCalls),
		unmarshalProp(p, "retrieved_contexts", &r.RetrievedContexts),
	)
	if err != nil {
		return domain.AgentRunRecord{}, fmt.Errorf("store: run %s: %w", r.ID, err)
	}
	return r, nil
}

func unmarshalProp(p map[string]any, key string, dst any) error {
	s := str(p[key])
	if s == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), dst); err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func timeProp(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case neo4j.LocalDateTime:
		return t.Time().UTC()
	}
	return time.Time{}
}
