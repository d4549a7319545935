// Package llm adapts completion providers behind one small interface. Any
// failure is reported as an error; callers degrade to their deterministic
// path instead of failing the request.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/WessleyAI/routewise/engine/prompt"
	"github.com/WessleyAI/routewise/pkg/config"
	"github.com/WessleyAI/routewise/pkg/fn"
	"github.com/WessleyAI/routewise/pkg/metrics"
	"github.com/WessleyAI/routewise/pkg/resilience"
)

var (
	// ErrUnavailable means no provider is configured.
	ErrUnavailable = errors.New("llm: unavailable")
	// ErrEmptyResponse means the provider answered with no text.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, p prompt.Prompt) (string, error)
	Name() string
}

// Provider endpoints and default models.
const (
	GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	GroqBaseURL   = "https://api.groq.com/openai/v1"

	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultGroqModel   = "llama-3.3-70b-versatile"
	DefaultOpenAIModel = "gpt-4o-mini"
	DefaultOllamaModel = "llama3.1:8b"
)

// LangChain wraps any langchaingo model.
type LangChain struct {
	name  string
	model llms.Model
	opts  []llms.CallOption
}

// NewLangChain wraps model. Zero temperature or maxTokens leave the
// provider default in place.
func NewLangChain(name string, model llms.Model, temperature float64, maxTokens int) *LangChain {
	var opts []llms.CallOption
	if temperature > 0 {
		opts = append(opts, llms.WithTemperature(temperature))
	}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	return &LangChain{name: name, model: model, opts: opts}
}

func (l *LangChain) Name() string { return l.name }

// Complete sends the system and human messages and returns the first choice.
func (l *LangChain) Complete(ctx context.Context, p prompt.Prompt) (string, error) {
	msgs := make([]llms.MessageContent, 0, 2)
	if p.System != "" {
		msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeSystem, p.System))
	}
	msgs = append(msgs, llms.TextParts(schema.ChatMessageTypeHuman, p.Human))

	resp, err := l.model.GenerateContent(ctx, msgs, l.opts...)
	if err != nil {
		return "", fmt.Errorf("llm: %s: %w", l.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return "", ErrEmptyResponse
	}
	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// Outcome labels for the llm_requests_total counter.
const (
	OutcomeOK           = "ok"
	OutcomeError        = "error"
	OutcomeEmpty        = "empty"
	OutcomeUnconfigured = "unconfigured"
)

// GuardOpts configures Guarded.
type GuardOpts struct {
	Timeout time.Duration
	Breaker resilience.BreakerOpts
	Metrics *metrics.Registry
}

// Guarded bounds a Completer with a timeout and a circuit breaker and counts
// outcomes. A nil inner completer reports ErrUnavailable on every call.
type Guarded struct {
	next     Completer
	timeout  time.Duration
	breaker  *resilience.Breaker
	outcomes *prometheus.CounterVec
	logger   *slog.Logger
}

// NewGuarded wraps next, which may be nil.
func NewGuarded(next Completer, opts GuardOpts, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Breaker.FailThreshold == 0 {
		opts.Breaker = resilience.DefaultBreakerOpts
	}
	if opts.Breaker.Name == "" {
		opts.Breaker.Name = "llm"
	}
	opts.Breaker.OnStateChange = func(name string, from, to resilience.State) {
		logger.Warn("llm breaker state change", "breaker", name, "from", from.String(), "to", to.String())
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	return &Guarded{
		next:     next,
		timeout:  opts.Timeout,
		breaker:  resilience.NewBreaker(opts.Breaker),
		outcomes: opts.Metrics.Counter("llm_requests_total", "LLM completions by outcome.", "outcome"),
		logger:   logger,
	}
}

// Configured reports whether a provider sits behind the guard.
func (g *Guarded) Configured() bool { return g.next != nil }

func (g *Guarded) Name() string {
	if g.next == nil {
		return "none"
	}
	return g.next.Name()
}

// Complete runs the inner completer under the guard.
func (g *Guarded) Complete(ctx context.Context, p prompt.Prompt) (string, error) {
	if g.next == nil {
		g.outcomes.WithLabelValues(OutcomeUnconfigured).Inc()
		return "", ErrUnavailable
	}
	res := resilience.CallResult(g.breaker, ctx, func(ctx context.Context) fn.Result[string] {
		ctx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		return fn.Try(func() fn.Result[string] {
			text, err := g.next.Complete(ctx, p)
			return fn.FromPair(text, err)
		})
	})
	text, err := res.Unwrap()
	switch {
	case errors.Is(err, ErrEmptyResponse):
		g.outcomes.WithLabelValues(OutcomeEmpty).Inc()
	case err != nil:
		g.outcomes.WithLabelValues(OutcomeError).Inc()
		g.logger.Warn("llm call failed, continuing without", "provider", g.next.Name(), "err", err)
	default:
		g.outcomes.WithLabelValues(OutcomeOK).Inc()
	}
	return text, err
}

// FromConfig builds the provider selected by cfg. It returns a nil
// Completer, without error, when none is configured.
func FromConfig(cfg config.LLM) (Completer, error) {
	provider := cfg.Provider
	if provider == "auto" || provider == "" {
		provider = autoProvider(cfg)
	}
	model := func(def string) string {
		if cfg.Model != "" {
			return cfg.Model
		}
		return def
	}
	baseURL := func(def string) string {
		if cfg.BaseURL != "" {
			return cfg.BaseURL
		}
		return def
	}

	var (
		m   llms.Model
		err error
	)
	switch provider {
	case "none", "":
		return nil, nil
	case "gemini":
		m, err = openai.New(openai.WithBaseURL(baseURL(GeminiBaseURL)), openai.WithToken(cfg.GeminiAPIKey), openai.WithModel(model(DefaultGeminiModel)))
	case "groq":
		m, err = openai.New(openai.WithBaseURL(baseURL(GroqBaseURL)), openai.WithToken(cfg.GroqAPIKey), openai.WithModel(model(DefaultGroqModel)))
	case "openai":
		opts := []openai.Option{openai.WithToken(cfg.OpenAIAPIKey), openai.WithModel(model(DefaultOpenAIModel))}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		m, err = openai.New(opts...)
	case "ollama":
		m, err = ollama.New(ollama.WithServerURL(cfg.OllamaURL), ollama.WithModel(model(DefaultOllamaModel)))
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("llm: %s client: %w", provider, err)
	}
	return NewLangChain(provider, m, cfg.Temperature, cfg.MaxTokens), nil
}

func autoProvider(cfg config.LLM) string {
	switch {
	case cfg.GeminiAPIKey != "":
		return "gemini"
	case cfg.GroqAPIKey != "":
		return "groq"
	case cfg.OpenAIAPIKey != "":
		return "openai"
	case cfg.OllamaURL != "":
		return "ollama"
	}
	return "none"
}
