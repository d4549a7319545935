// Package embed turns text into fixed-length vectors for the retrieval index.
package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/WessleyAI/routewise/engine/domain"
)

// Embedder produces vectors of a fixed dimension. Implementations must be
// deterministic for a fixed configuration and return a zero vector for
// empty text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// CheckDimension fails with domain.ErrDimensionMismatch when e does not
// produce vectors of size want.
func CheckDimension(e Embedder, want int) error {
	if got := e.Dimension(); got != want {
		return fmt.Errorf("%w: embedder produces %d, index expects %d", domain.ErrDimensionMismatch, got, want)
	}
	return nil
}

// DefaultDimension is the hash embedder's default size.
const DefaultDimension = 256

var tokenRe = regexp.MustCompile(`\w+`)

// Hash is a hashed bag-of-words projection: each lower-cased word token
// increments one FNV-1a bucket and the result is L2-normalised.
type Hash struct {
	dim int
}

// NewHash creates a hash embedder. dim <= 0 uses DefaultDimension.
func NewHash(dim int) *Hash {
	if dim <= 0 {
		dim = DefaultDimension
	}
	return &Hash{dim: dim}
}

func (h *Hash) Dimension() int { return h.dim }

func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	return h.vector(text), nil
}

func (h *Hash) vector(text string) []float32 {
	v := make([]float32, h.dim)
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		f := fnv.New32a()
		f.Write([]byte(tok))
		v[f.Sum32()%uint32(h.dim)]++
	}
	normalize(v)
	return v
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}

// blank reports whether text carries no word tokens.
func blank(text string) bool {
	return !tokenRe.MatchString(text)
}

var (
	sharedMu sync.Mutex
	shared   = map[string]Embedder{}
)

// Shared memoises model-backed embedders process-wide. build runs at most
// once per key unless it fails.
func Shared(key string, build func() (Embedder, error)) (Embedder, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if e, ok := shared[key]; ok {
		return e, nil
	}
	e, err := build()
	if err != nil {
		return nil, err
	}
	shared[key] = e
	return e, nil
}
