// Package tools implements the fixed capability set the agents call. Each
// capability returns an fn.Result carrying a typed Payload; the Runner turns
// failures into trace entries so one capability never blocks another.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/pkg/fn"
)

// Capability names as they appear in traces and prompt sections.
const (
	FetchBrief    = "fetch_brief"
	FetchWindow   = "fetch_window"
	FetchContacts = "fetch_contacts"
	ListRisks     = "list_risks"
	RouteMetrics  = "calculate_route_metrics"
	TimeWindows   = "validate_time_windows"
	StopSequence  = "optimize_stop_sequence"
	CheckWeather  = "check_weather"
	CheckTraffic  = "check_traffic"
	StopDistance  = "calculate_distance"
	WebSearch     = "web_search"
	RAGRetrieval  = "rag_retrieval"
	LLMInsight    = "llm_insight"
)

// ErrNotConfigured marks an optional capability that has no backend. The
// Runner drops such calls from the trace.
var ErrNotConfigured = errors.New("tools: capability not configured")

// ToolError names the capability that failed.
type ToolError struct {
	Tool string
	Err  error
}

func (e *ToolError) Error() string { return fmt.Sprintf("%s: %v", e.Tool, e.Err) }
func (e *ToolError) Unwrap() error { return e.Err }

// Capability is one named, independently invocable unit of information
// gathering.
type Capability interface {
	Name() string
	// External reports whether the capability leaves the process, in which
	// case the Runner guards it with a circuit breaker.
	External() bool
	Invoke(ctx context.Context, args Args) fn.Result[Payload]
}

// Args are the named arguments of one invocation. Values are whatever the
// orchestrator passed; accessors coerce the common cases.
type Args map[string]any

// String returns args[key] as a string, or "".
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Float returns args[key] as a float64, or def when absent or unparsable.
func (a Args) Float(key string, def float64) float64 {
	switch v := a[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case *float64:
		if v != nil {
			return *v
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

// Int returns args[key] as an int, or def.
func (a Args) Int(key string, def int) int {
	return int(a.Float(key, float64(def)))
}

// Stops returns args[key] as delivery stops.
func (a Args) Stops(key string) []domain.DeliveryStop {
	stops, _ := a[key].([]domain.DeliveryStop)
	return stops
}

// Constraints returns args[key] as route constraints, nil when absent.
func (a Args) Constraints(key string) *domain.Constraints {
	c, _ := a[key].(*domain.Constraints)
	return c
}

// Func adapts a plain function into a Capability.
type Func struct {
	ToolName string
	Remote   bool
	Fn       func(ctx context.Context, args Args) fn.Result[Payload]
}

func (f Func) Name() string   { return f.ToolName }
func (f Func) External() bool { return f.Remote }
func (f Func) Invoke(ctx context.Context, args Args) fn.Result[Payload] {
	return f.Fn(ctx, args)
}

// Registry is the fixed set of capabilities available to the agents.
type Registry struct {
	caps map[string]Capability
}

// NewRegistry registers caps by name; a later duplicate replaces an earlier one.
func NewRegistry(caps ...Capability) *Registry {
	r := &Registry{caps: make(map[string]Capability, len(caps))}
	for _, c := range caps {
		if c != nil {
			r.caps[c.Name()] = c
		}
	}
	return r
}

// Lookup returns the capability registered under name.
func (r *Registry) Lookup(name string) (Capability, bool) {
	c, ok := r.caps[name]
	return c, ok
}

// Names lists the registered capabilities.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.caps))
	for n := range r.caps {
		out = append(out, n)
	}
	return out
}

// Route returns args[key] as a route request.
func (a Args) Route(key string) (domain.RouteRequest, bool) {
	switch v := a[key].(type) {
	case domain.RouteRequest:
		return v, true
	case *domain.RouteRequest:
		if v != nil {
			return *v, true
		}
	}
	return domain.RouteRequest{}, false
}
