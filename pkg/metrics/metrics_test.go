package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounterGetOrCreate(t *testing.T) {
	r := New()
	c := r.Counter("tool_invocations_total", "Tool invocations", "tool", "outcome")
	c.WithLabelValues("check_weather", "ok").Inc()
	c.WithLabelValues("check_weather", "ok").Add(2)

	if got := testutil.ToFloat64(c.WithLabelValues("check_weather", "ok")); got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
	if r.Counter("tool_invocations_total", "", "tool", "outcome") != c {
		t.Fatal("expected same counter instance")
	}
}

func TestGauge(t *testing.T) {
	r := New()
	g := r.Gauge("index_chunks", "Chunks in the index")
	g.WithLabelValues().Set(42)
	if got := testutil.ToFloat64(g.WithLabelValues()); got != 42 {
		t.Fatalf("expected 42, got %v", got)
	}
}

func TestHistogramDefaultBuckets(t *testing.T) {
	r := New()
	h := r.Histogram("pipeline_duration_seconds", "Pipeline duration", nil, "variant")
	h.WithLabelValues("readiness").Observe(0.3)
	if n := testutil.CollectAndCount(h); n != 1 {
		t.Fatalf("expected 1 series, got %d", n)
	}
}

func TestHandlerExposesNamespacedMetrics(t *testing.T) {
	r := New()
	r.Counter("llm_requests_total", "LLM requests", "outcome").WithLabelValues("ok").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `routewise_llm_requests_total{outcome="ok"} 1`) {
		t.Fatalf("metric missing from exposition:\n%s", body)
	}
}
