package parse

import (
	"reflect"
	"strings"
	"testing"

	"github.com/WessleyAI/routewise/engine/domain"
)

func TestParseReadinessReply(t *testing.T) {
	reply := `INSIGHT: Drivers need a short briefing before the window opens.
RECOMMENDATION_1: Brief drivers|Run a 15 minute stand-up on the new stops|high
RECOMMENDATION_2: Check dashboards|Confirm ETA panels are live|urgent`

	r := Parse(reply)
	if r.State != Structured {
		t.Fatalf("state = %v", r.State)
	}
	if r.Insight != "Drivers need a short briefing before the window opens." {
		t.Errorf("insight %q", r.Insight)
	}
	want := []domain.Recommendation{
		{Title: "[AI] Brief drivers", Detail: "Run a 15 minute stand-up on the new stops", Priority: domain.PriorityHigh},
		{Title: "[AI] Check dashboards", Detail: "Confirm ETA panels are live", Priority: domain.PriorityMedium},
	}
	if !reflect.DeepEqual(r.Recommendations, want) {
		t.Errorf("recommendations = %+v", r.Recommendations)
	}
}

func TestParseValidationReply(t *testing.T) {
	reply := `**VALID:** false
- ISSUE: Stop S2 arrives after its window closes
* ISSUE: Heavy rain expected
1. RECOMMENDATION: Start 30 minutes earlier
OPTIMIZED_ORDER: [S2, S1, "S3"]
summary: Route needs an earlier departure.
Estimated duration: 12.5h`

	r := Parse(reply)
	if r.State != Structured {
		t.Fatalf("state = %v", r.State)
	}
	if r.Valid == nil || *r.Valid {
		t.Fatalf("valid = %v", r.Valid)
	}
	if len(r.Issues) != 2 || r.Issues[1] != "Heavy rain expected" {
		t.Errorf("issues = %q", r.Issues)
	}
	if len(r.Recommendations) != 1 || r.Recommendations[0].Detail != "Start 30 minutes earlier" {
		t.Errorf("recommendations = %+v", r.Recommendations)
	}
	if !reflect.DeepEqual(r.OptimizedOrder, []string{"S2", "S1", "S3"}) {
		t.Errorf("order = %q", r.OptimizedOrder)
	}
	if r.Summary != "Route needs an earlier departure." {
		t.Errorf("summary %q", r.Summary)
	}
}

func TestParseValidTrue(t *testing.T) {
	r := Parse("VALID: True")
	if r.Valid == nil || !*r.Valid {
		t.Fatalf("valid = %v", r.Valid)
	}
}

func TestParsePriorityCoercion(t *testing.T) {
	tests := []struct {
		in   string
		want domain.Priority
	}{
		{"RECOMMENDATION: T|D|high", domain.PriorityHigh},
		{"RECOMMENDATION: T|D|LOW", domain.PriorityLow},
		{"RECOMMENDATION: T|D|urgent", domain.PriorityMedium},
		{"RECOMMENDATION: T|D|priority: high", domain.PriorityHigh},
		{"RECOMMENDATION: T|D", domain.PriorityMedium},
	}
	for _, tt := range tests {
		r := Parse(tt.in)
		if len(r.Recommendations) != 1 {
			t.Fatalf("%q: %d recommendations", tt.in, len(r.Recommendations))
		}
		if got := r.Recommendations[0].Priority; got != tt.want {
			t.Errorf("%q: priority %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseFallbackSentences(t *testing.T) {
	reply := "Route: RT-1. The morning window is tight for downtown stops. OK. " +
		"Consider moving the pharmacy delivery earlier in the day. Drivers should carry rain gear today. " +
		"Customers appreciate a call ahead before arrival."

	r := Parse(reply)
	if r.State != FallbackSentences {
		t.Fatalf("state = %v", r.State)
	}
	if len(r.Recommendations) != MaxFallback {
		t.Fatalf("got %d recommendations", len(r.Recommendations))
	}
	first := r.Recommendations[0]
	if first.Title != "[AI] Recommendation 1" || first.Detail != "The morning window is tight for downtown stops." {
		t.Errorf("first = %+v", first)
	}
	for _, rec := range r.Recommendations {
		if strings.HasPrefix(rec.Detail, "Route:") {
			t.Errorf("fragment kept: %q", rec.Detail)
		}
	}
}

func TestFinalizeFloorFromRisks(t *testing.T) {
	r := Parse("nothing useful").Finalize(nil, []string{"Fleet GPS uptime below 99%", "other"})
	if r.State != Finalized {
		t.Fatalf("state = %v", r.State)
	}
	if len(r.Recommendations) != 1 {
		t.Fatalf("got %+v", r.Recommendations)
	}
	got := r.Recommendations[0]
	if got.Title != "Monitor Critical SLO" || got.Priority != domain.PriorityHigh || got.Detail != "Create monitoring dashboard for: Fleet GPS uptime below 99%" {
		t.Errorf("risk recommendation = %+v", got)
	}
}

func TestFinalizeNoRisks(t *testing.T) {
	r := Parse("").Finalize(nil, nil)
	if len(r.Recommendations) != 0 {
		t.Fatalf("got %+v", r.Recommendations)
	}
}

func TestFinalizeBaseFirstAndCap(t *testing.T) {
	base := []domain.Recommendation{{Title: "a"}, {Title: "b"}, {Title: "c"}, {Title: "d"}}
	r := Parse("RECOMMENDATION_1: x|y|low\nRECOMMENDATION_2: z|w|high").Finalize(base, []string{"risk"})
	if len(r.Recommendations) != 7 {
		t.Fatalf("len = %d", len(r.Recommendations))
	}
	if r.Recommendations[0].Title != "a" || r.Recommendations[4].Title != "[AI] x" || r.Recommendations[6].Title != "Monitor Critical SLO" {
		t.Errorf("order = %+v", r.Recommendations)
	}

	var many strings.Builder
	for i := 0; i < 8; i++ {
		many.WriteString("RECOMMENDATION: keep the stop order stable\n")
	}
	if got := len(Parse(many.String()).Finalize(nil, nil).Recommendations); got != Cap {
		t.Errorf("derived not capped: %d", got)
	}
}

func TestFinalizeFloorIgnoresBase(t *testing.T) {
	base := []domain.Recommendation{{Title: "a"}, {Title: "b"}, {Title: "c"}}
	r := Parse("RECOMMENDATION_1: Only one|Do it|high").Finalize(base, []string{"Dock uptime below 98%"})
	if len(r.Recommendations) != 5 {
		t.Fatalf("got %+v", r.Recommendations)
	}
	if last := r.Recommendations[4]; last.Title != "Monitor Critical SLO" {
		t.Errorf("last = %+v", last)
	}
}

func TestFinalizeAtFloorAddsNothing(t *testing.T) {
	r := Parse("RECOMMENDATION: one\nRECOMMENDATION: two\nRECOMMENDATION: three").Finalize(nil, []string{"risk"})
	for _, rec := range r.Recommendations {
		if rec.Title == "Monitor Critical SLO" {
			t.Fatal("floor item added although floor was met")
		}
	}
}

func TestParseIgnoresNumbers(t *testing.T) {
	// Quantities stated by the model have no typed field to land in.
	r := Parse("VALID: true\nESTIMATED_DURATION: 99h\nSUMMARY: fine")
	if r.Summary != "fine" {
		t.Errorf("summary %q", r.Summary)
	}
}

func TestStateString(t *testing.T) {
	if Finalized.String() != "finalized" || State(42).String() != "state(42)" {
		t.Error("unexpected state names")
	}
}
