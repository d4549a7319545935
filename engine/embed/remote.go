package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/pkg/config"
	"github.com/WessleyAI/routewise/pkg/ollama"
)

// queryEmbedder is the single-text slice of both the Ollama client and the
// langchaingo embedder.
type queryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type queryFunc func(ctx context.Context, text string) ([]float32, error)

func (f queryFunc) Embed(ctx context.Context, text string) ([]float32, error) { return f(ctx, text) }

// Remote adapts a model endpoint to Embedder. It short-circuits blank text
// and enforces the configured dimension on every vector.
type Remote struct {
	name   string
	dim    int
	client queryEmbedder
}

// NewRemote wraps client. name is used in error messages.
func NewRemote(name string, dim int, client queryEmbedder) *Remote {
	return &Remote{name: name, dim: dim, client: client}
}

func (r *Remote) Dimension() int { return r.dim }

func (r *Remote) Embed(ctx context.Context, text string) ([]float32, error) {
	if blank(text) {
		return make([]float32, r.dim), nil
	}
	v, err := r.client.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed: %s: %w", r.name, err)
	}
	if len(v) != r.dim {
		return nil, fmt.Errorf("%w: %s returned %d values, configured %d", domain.ErrDimensionMismatch, r.name, len(v), r.dim)
	}
	return v, nil
}

// Probe embeds a fixed sentence so a misconfigured dimension fails at
// start-up rather than on the first request.
func Probe(ctx context.Context, e Embedder) error {
	_, err := e.Embed(ctx, "delivery route readiness probe")
	return err
}

// New builds the embedder selected by cfg. Model-backed strategies are
// memoised with Shared. ollamaURL is used when cfg.BaseURL is empty.
func New(cfg config.Embedding, ollamaURL string) (Embedder, error) {
	switch cfg.Strategy {
	case "", "hash":
		return NewHash(cfg.Dimension), nil
	case "ollama":
		base := cfg.BaseURL
		if base == "" {
			base = ollamaURL
		}
		if base == "" {
			return nil, fmt.Errorf("embed: ollama strategy needs a base URL")
		}
		key := strings.Join([]string{"ollama", base, cfg.Model, fmt.Sprint(cfg.Dimension)}, "|")
		return Shared(key, func() (Embedder, error) {
			return NewRemote("ollama", cfg.Dimension, ollama.NewEmbedClient(base, cfg.Model)), nil
		})
	case "openai":
		key := strings.Join([]string{"openai", cfg.BaseURL, cfg.Model, fmt.Sprint(cfg.Dimension)}, "|")
		return Shared(key, func() (Embedder, error) {
			token := cfg.APIKey
			if token == "" {
				// the client refuses an empty token; local servers ignore it
				token = "unused"
			}
			llm, err := openai.New(
				openai.WithBaseURL(cfg.BaseURL),
				openai.WithToken(token),
				openai.WithEmbeddingModel(cfg.Model),
			)
			if err != nil {
				return nil, fmt.Errorf("embed: openai client: %w", err)
			}
			lc, err := embeddings.NewEmbedder(llm)
			if err != nil {
				return nil, fmt.Errorf("embed: openai embedder: %w", err)
			}
			return NewRemote("openai", cfg.Dimension, queryFunc(lc.EmbedQuery)), nil
		})
	default:
		return nil, fmt.Errorf("embed: unknown strategy %q", cfg.Strategy)
	}
}
