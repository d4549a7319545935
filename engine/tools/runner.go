package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/pkg/fn"
	"github.com/WessleyAI/routewise/pkg/metrics"
	"github.com/WessleyAI/routewise/pkg/resilience"
)

// PreviewLen bounds ToolCall.OutputPreview.
const PreviewLen = 200

// Step is one planned invocation.
type Step struct {
	Tool string
	Args Args
}

// Outcome pairs the trace entry with the typed payload. Payload is nil when
// the call failed.
type Outcome struct {
	Call    domain.ToolCall
	Payload Payload
}

// Calls extracts the trace in invocation order.
func Calls(outs []Outcome) []domain.ToolCall {
	calls := make([]domain.ToolCall, len(outs))
	for i, o := range outs {
		calls[i] = o.Call
	}
	return calls
}

// Find returns the first successful payload of type T.
func Find[T Payload](outs []Outcome) (T, bool) {
	for _, o := range outs {
		if p, ok := o.Payload.(T); ok {
			return p, true
		}
	}
	var zero T
	return zero, false
}

// RunnerOpts configures invocation guards.
type RunnerOpts struct {
	// Timeout bounds each invocation.
	Timeout time.Duration
	// Breaker configures the per-capability breaker of external capabilities.
	Breaker resilience.BreakerOpts
	Metrics *metrics.Registry
}

// DefaultRunnerOpts returns sensible defaults.
func DefaultRunnerOpts() RunnerOpts {
	return RunnerOpts{
		Timeout: 5 * time.Second,
		Breaker: resilience.DefaultBreakerOpts,
	}
}

// Runner executes steps strictly in order and never lets one failure stop
// the rest.
type Runner struct {
	reg    *Registry
	opts   RunnerOpts
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*resilience.Breaker

	invocations *prometheus.CounterVec
	failures    *prometheus.CounterVec
}

// NewRunner creates a Runner over reg.
func NewRunner(reg *Registry, opts RunnerOpts, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRunnerOpts().Timeout
	}
	if opts.Breaker.FailThreshold <= 0 {
		opts.Breaker = resilience.DefaultBreakerOpts
	}
	r := &Runner{reg: reg, opts: opts, logger: logger, breakers: make(map[string]*resilience.Breaker)}
	if opts.Metrics != nil {
		r.invocations = opts.Metrics.Counter("tool_invocations_total", "Capability invocations.", "tool")
		r.failures = opts.Metrics.Counter("tool_failures_total", "Capability invocations that produced an error marker.", "tool")
	}
	return r
}

// Run invokes every step in order. Steps whose capability is not configured
// are left out of the result.
func (r *Runner) Run(ctx context.Context, steps []Step) []Outcome {
	outs := make([]Outcome, 0, len(steps))
	for _, s := range steps {
		if o, ok := r.invoke(ctx, s); ok {
			outs = append(outs, o)
		}
	}
	return outs
}

func (r *Runner) invoke(ctx context.Context, step Step) (Outcome, bool) {
	call := domain.ToolCall{Tool: step.Tool, Arguments: step.Args}
	c, ok := r.reg.Lookup(step.Tool)
	if !ok {
		return r.fail(call, fmt.Errorf("unknown capability")), true
	}

	var skipped bool
	stage := fn.TracedStage("tool."+step.Tool, func(ctx context.Context, args Args) fn.Result[Payload] {
		ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
		call := func(ctx context.Context) fn.Result[Payload] {
			res := fn.Try(func() fn.Result[Payload] { return c.Invoke(ctx, args) })
			if errors.Is(res.Error(), ErrNotConfigured) {
				skipped = true
				return fn.Ok[Payload](nil)
			}
			return res
		}
		if c.External() {
			return resilience.CallResult(r.breaker(step.Tool), ctx, call)
		}
		return call(ctx)
	})
	res := stage(ctx, step.Args)
	if skipped {
		r.logger.Debug("tool not configured, skipped", "tool", step.Tool)
		return Outcome{}, false
	}
	if r.invocations != nil {
		r.invocations.WithLabelValues(step.Tool).Inc()
	}

	payload, err := res.Unwrap()
	if err == nil && payload == nil {
		err = errors.New("empty payload")
	}
	if err != nil {
		return r.fail(call, err), true
	}
	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return r.fail(call, fmt.Errorf("encode payload: %w", err)), true
	}
	call.RawOutput = string(raw)
	call.OutputPreview = Preview(call.RawOutput)
	return Outcome{Call: call, Payload: payload}, true
}

func (r *Runner) fail(call domain.ToolCall, err error) Outcome {
	te := &ToolError{Tool: call.Tool, Err: err}
	r.logger.Warn("tool failed, continuing without", "tool", call.Tool, "err", err)
	if r.failures != nil {
		r.failures.WithLabelValues(call.Tool).Inc()
	}
	marker, _ := json.Marshal(map[string]string{"error": te.Error()})
	call.Error = te.Error()
	call.RawOutput = string(marker)
	call.OutputPreview = Preview(call.RawOutput)
	return Outcome{Call: call}
}

func (r *Runner) breaker(tool string) *resilience.Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[tool]
	if !ok {
		opts := r.opts.Breaker
		opts.Name = tool
		b = resilience.NewBreaker(opts)
		r.breakers[tool] = b
	}
	return b
}

// Preview truncates s to PreviewLen runes, marking the cut with "...".
func Preview(s string) string {
	rs := []rune(s)
	if len(rs) <= PreviewLen {
		return s
	}
	return string(rs[:PreviewLen]) + "..."
}
