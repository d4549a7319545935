package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/pkg/fn"
	"github.com/WessleyAI/routewise/pkg/metrics"
	"github.com/WessleyAI/routewise/pkg/resilience"
)

func okTool(name string) Capability {
	return Func{ToolName: name, Fn: func(context.Context, Args) fn.Result[Payload] {
		return fn.Ok[Payload](RiskPayload{Slug: name, Items: []string{"item"}})
	}}
}

func TestRunIsolatesFailures(t *testing.T) {
	reg := NewRegistry(
		okTool("first"),
		Func{ToolName: "boom", Fn: func(context.Context, Args) fn.Result[Payload] { panic("kaboom") }},
		Func{ToolName: "bad", Fn: func(context.Context, Args) fn.Result[Payload] {
			return fn.Errf[Payload]("upstream returned garbage")
		}},
		okTool("last"),
	)
	r := NewRunner(reg, DefaultRunnerOpts(), nil)
	outs := r.Run(context.Background(), []Step{
		{Tool: "first"}, {Tool: "boom"}, {Tool: "bad"}, {Tool: "missing"}, {Tool: "last"},
	})

	want := []string{"first", "boom", "bad", "missing", "last"}
	calls := Calls(outs)
	if len(calls) != len(want) {
		t.Fatalf("expected %d trace entries, got %d", len(want), len(calls))
	}
	for i, name := range want {
		if calls[i].Tool != name {
			t.Fatalf("entry %d: expected %s, got %s", i, name, calls[i].Tool)
		}
	}
	for _, i := range []int{1, 2, 3} {
		if !calls[i].Failed() || outs[i].Payload != nil {
			t.Fatalf("entry %d should be an error marker: %+v", i, calls[i])
		}
		if !strings.Contains(calls[i].OutputPreview, `"error"`) {
			t.Fatalf("entry %d preview lacks marker: %s", i, calls[i].OutputPreview)
		}
	}
	if !strings.Contains(calls[1].Error, "panic") {
		t.Fatalf("panic not converted: %s", calls[1].Error)
	}
	if calls[4].Failed() || calls[4].RawOutput == "" {
		t.Fatalf("last call should succeed: %+v", calls[4])
	}
}

func TestRunSkipsUnconfigured(t *testing.T) {
	reg := NewRegistry(okTool("a"), SearchTool(SearchOpts{}), okTool("b"))
	outs := NewRunner(reg, DefaultRunnerOpts(), nil).Run(context.Background(), []Step{
		{Tool: "a"}, {Tool: WebSearch, Args: Args{"query": "x"}}, {Tool: "b"},
	})
	if len(outs) != 2 || outs[0].Call.Tool != "a" || outs[1].Call.Tool != "b" {
		t.Fatalf("unconfigured search should vanish from the trace: %+v", Calls(outs))
	}
}

func TestRunTimesOut(t *testing.T) {
	slow := Func{ToolName: "slow", Fn: func(ctx context.Context, _ Args) fn.Result[Payload] {
		<-ctx.Done()
		return fn.Err[Payload](ctx.Err())
	}}
	opts := DefaultRunnerOpts()
	opts.Timeout = 10 * time.Millisecond
	outs := NewRunner(NewRegistry(slow), opts, nil).Run(context.Background(), []Step{{Tool: "slow"}})
	if len(outs) != 1 || !strings.Contains(outs[0].Call.Error, "deadline") {
		t.Fatalf("expected deadline marker, got %+v", outs)
	}
}

func TestRunBreakerOpensForExternal(t *testing.T) {
	calls := 0
	flaky := Func{ToolName: "remote", Remote: true, Fn: func(context.Context, Args) fn.Result[Payload] {
		calls++
		return fn.Errf[Payload]("503")
	}}
	opts := DefaultRunnerOpts()
	opts.Breaker = resilience.BreakerOpts{FailThreshold: 1, Timeout: time.Hour, HalfOpenMax: 1}
	r := NewRunner(NewRegistry(flaky), opts, nil)

	r.Run(context.Background(), []Step{{Tool: "remote"}})
	outs := r.Run(context.Background(), []Step{{Tool: "remote"}})
	if calls != 1 {
		t.Fatalf("breaker should short-circuit the second call, calls=%d", calls)
	}
	if !strings.Contains(outs[0].Call.Error, resilience.ErrCircuitOpen.Error()) {
		t.Fatalf("expected open circuit marker, got %q", outs[0].Call.Error)
	}
}

func TestRunNilPayloadIsFailure(t *testing.T) {
	empty := Func{ToolName: "empty", Fn: func(context.Context, Args) fn.Result[Payload] { return fn.Ok[Payload](nil) }}
	outs := NewRunner(NewRegistry(empty), DefaultRunnerOpts(), nil).Run(context.Background(), []Step{{Tool: "empty"}})
	if !outs[0].Call.Failed() {
		t.Fatal("nil payload must be reported as a failure")
	}
}

func TestRunRecordsMetrics(t *testing.T) {
	reg := metrics.New()
	opts := DefaultRunnerOpts()
	opts.Metrics = reg
	bad := Func{ToolName: "bad", Fn: func(context.Context, Args) fn.Result[Payload] { return fn.Errf[Payload]("x") }}
	NewRunner(NewRegistry(okTool("good"), bad), opts, nil).Run(context.Background(), []Step{{Tool: "good"}, {Tool: "bad"}})

	families, _ := reg.Gatherer().Gather()
	counts := map[string]float64{}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			for _, l := range m.GetLabel() {
				counts[f.GetName()+"/"+l.GetValue()] = m.GetCounter().GetValue()
			}
		}
	}
	if counts["routewise_tool_invocations_total/good"] != 1 || counts["routewise_tool_failures_total/bad"] != 1 {
		t.Fatalf("unexpected counters: %v", counts)
	}
}

func TestFind(t *testing.T) {
	outs := []Outcome{
		{Call: domain.ToolCall{Tool: "x", Error: "e"}},
		{Payload: TrafficPayload{Period: PeriodNight}},
		{Payload: RiskPayload{Items: []string{"r"}}},
	}
	tp, ok := Find[TrafficPayload](outs)
	if !ok || tp.Period != PeriodNight {
		t.Fatalf("got %+v %v", tp, ok)
	}
	if _, ok := Find[MetricsPayload](outs); ok {
		t.Fatal("no metrics payload present")
	}
}

func TestPreview(t *testing.T) {
	short := "hello"
	if Preview(short) != short {
		t.Fatal("short strings pass through")
	}
	long := strings.Repeat("é", 250)
	p := Preview(long)
	if !strings.HasSuffix(p, "...") || len([]rune(p)) != PreviewLen+3 {
		t.Fatalf("unexpected preview length %d", len([]rune(p)))
	}
}

func TestToolErrorUnwraps(t *testing.T) {
	inner := errors.New("inner")
	err := error(&ToolError{Tool: "t", Err: inner})
	if !errors.Is(err, inner) || err.Error() != "t: inner" {
		t.Fatalf("unexpected %v", err)
	}
}

func TestCatalogTools(t *testing.T) {
	reg := NewRegistry(CatalogTools(domain.DefaultCatalog())...)
	outs := NewRunner(reg, DefaultRunnerOpts(), nil).Run(context.Background(), []Step{
		{Tool: FetchBrief, Args: Args{"route_slug": "express-delivery"}},
		{Tool: FetchWindow, Args: Args{"route_slug": "nope"}},
		{Tool: FetchContacts, Args: Args{"audience_role": "Unknown Role"}},
		{Tool: ListRisks, Args: Args{"route_slug": "express-delivery"}},
	})
	if b, ok := Find[BriefPayload](outs); !ok || b.Slug != "express-delivery" {
		t.Fatalf("brief missing: %+v", outs[0])
	}
	if !strings.Contains(outs[1].Call.Error, "nope") {
		t.Fatalf("unknown window should fail naming the slug: %q", outs[1].Call.Error)
	}
	c, _ := Find[ContactsPayload](outs)
	if len(c.Contacts) != 1 || c.Contacts[0].Contact != domain.FallbackContact {
		t.Fatalf("expected fallback contact, got %+v", c)
	}
	if r, _ := Find[RiskPayload](outs); len(r.Items) == 0 {
		t.Fatal("express-delivery has risk items")
	}
}
