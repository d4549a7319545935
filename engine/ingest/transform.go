package ingest

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/WessleyAI/routewise/engine/domain"
)

const (
	// DefaultChunkSize is the target number of characters per chunk.
	DefaultChunkSize = 500
	// DefaultOverlap is the number of trailing characters carried into the
	// next chunk, counted in whole sentences.
	DefaultOverlap = 50
)

// ChunkID names the i-th chunk of a slug.
func ChunkID(slug string, i int) string {
	return fmt.Sprintf("%s#%04d", slug, i)
}

// splitSentences breaks text after '.', '!' or '?' when followed by
// whitespace. The whitespace run is dropped.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		j := i
		for j < len(text) {
			w, n := utf8.DecodeRuneInString(text[j:])
			if !unicode.IsSpace(w) {
				break
			}
			j += n
		}
		if j == i {
			continue
		}
		if s := strings.TrimSpace(text[start:i]); s != "" {
			sentences = append(sentences, s)
		}
		start, i = j, j
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// chunkSentences packs sentences into chunks of at most chunkSize characters.
// A single sentence longer than chunkSize becomes its own chunk. When a chunk
// closes, its trailing sentences whose combined length fits within overlap
// open the next one.
func chunkSentences(sentences []string, chunkSize, overlap int) []string {
	if len(sentences) == 0 {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}

	var chunks []string
	var current []string
	length := 0
	for _, s := range sentences {
		n := utf8.RuneCountInString(s)
		if length+n > chunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
			carried := 0
			keep := len(current)
			for keep > 0 {
				l := utf8.RuneCountInString(current[keep-1])
				if carried+l > overlap {
					break
				}
				carried += l
				keep--
			}
			current = append([]string(nil), current[keep:]...)
			length = carried
		}
		current = append(current, s)
		length += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// toChunks turns chunk texts into stored chunks for doc.
func toChunks(doc Document, texts []string, now time.Time) []domain.DocumentChunk {
	out := make([]domain.DocumentChunk, len(texts))
	for i, t := range texts {
		out[i] = domain.DocumentChunk{
			ID:        ChunkID(doc.Slug, i),
			Slug:      doc.Slug,
			Source:    doc.Source,
			Content:   t,
			CreatedAt: now,
		}
	}
	return out
}
