package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/WessleyAI/routewise/engine/domain"
)

// Document is a source text queued for ingestion. Slug groups its chunks so
// re-ingesting the same document replaces them.
type Document struct {
	Slug    string `json:"slug"`
	Source  string `json:"source"`
	Content string `json:"content"`
}

// ParsedDoc is a validated document split into sentences.
type ParsedDoc struct {
	Document
	Sentences []string
}

// ChunkedDoc is a parsed document split into storable chunks. Embeddings are
// filled in by the embed stage.
type ChunkedDoc struct {
	ParsedDoc
	Chunks []domain.DocumentChunk
}

// Result reports what one ingestion wrote.
type Result struct {
	Slug     string `json:"slug"`
	Chunks   int    `json:"chunks"`
	Replaced int    `json:"replaced"`
}

// ReadDocument loads a text file. The slug is the file name without its
// extension and the source is the base name.
func ReadDocument(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, err
	}
	return Document{
		Slug:    SlugFor(path),
		Source:  filepath.Base(path),
		Content: string(data),
	}, nil
}

// SlugFor returns the slug a file's chunks are stored under.
func SlugFor(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsSource reports whether path names an ingestible text file.
func IsSource(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return !strings.HasPrefix(filepath.Base(path), ".")
	}
	return false
}
