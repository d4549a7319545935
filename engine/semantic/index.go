package semantic

import (
	"fmt"
	"sort"

	"github.com/WessleyAI/routewise/engine/domain"
)

// Index is an immutable exact kNN snapshot. Searches are safe for
// concurrent use; rebuilding means constructing a new Index.
type Index struct {
	dim     int
	entries []Entry
}

// NewIndex copies entries into a new snapshot. Every vector must have
// length dim.
func NewIndex(dim int, entries []Entry) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("semantic: index dimension must be positive, got %d", dim)
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		if len(e.Vector) != dim {
			return nil, fmt.Errorf("%w: entry %d (%s) has %d values, index expects %d",
				domain.ErrDimensionMismatch, i, e.Source, len(e.Vector), dim)
		}
		v := make([]float32, dim)
		copy(v, e.Vector)
		out[i] = Entry{Content: e.Content, Source: e.Source, Vector: v}
	}
	return &Index{dim: dim, entries: out}, nil
}

// Len returns the number of indexed entries.
func (x *Index) Len() int { return len(x.entries) }

// Dimension returns the vector size.
func (x *Index) Dimension() int { return x.dim }

// Search returns up to k entries ordered by ascending squared distance to q,
// ties in insertion order. An empty index or k <= 0 yields an empty slice.
func (x *Index) Search(q []float32, k int) ([]Hit, error) {
	if k <= 0 || len(x.entries) == 0 {
		return []Hit{}, nil
	}
	if len(q) != x.dim {
		return nil, fmt.Errorf("%w: query has %d values, index expects %d", domain.ErrDimensionMismatch, len(q), x.dim)
	}

	type scored struct {
		idx  int
		dist float32
	}
	all := make([]scored, len(x.entries))
	for i, e := range x.entries {
		all[i] = scored{idx: i, dist: squaredL2(q, e.Vector)}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].dist < all[j].dist })

	k = min(k, len(all))
	hits := make([]Hit, k)
	for i := 0; i < k; i++ {
		e := x.entries[all[i].idx]
		hits[i] = Hit{Content: e.Content, Source: e.Source, Distance: all[i].dist}
	}
	return hits, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
