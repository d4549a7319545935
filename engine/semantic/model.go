// Package semantic holds the exact in-memory nearest-neighbour index used by
// retrieval and the Qdrant mirror that ingestion writes to.
package semantic

// Entry is one indexed chunk.
type Entry struct {
	Content string
	Source  string
	Vector  []float32
}

// Hit is a search result. Distance is squared Euclidean: lower is closer.
type Hit struct {
	ID       string  `json:"id,omitempty"`
	Content  string  `json:"content"`
	Source   string  `json:"source"`
	Slug     string  `json:"slug,omitempty"`
	Distance float32 `json:"distance"`
}

// VectorRecord is a single point written to Qdrant.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any // content, slug, source, chunk_id
}
