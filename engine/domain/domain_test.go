package domain

import (
	"errors"
	"strings"
	"testing"
)

func ptr[T any](v T) *T { return &v }

func validRoute() RouteRequest {
	r := RouteRequest{
		RouteID:          "RT-001",
		StartLocation:    "San Francisco Depot",
		PlannedStartTime: "2025-12-24T07:00:00Z",
		Stops: []DeliveryStop{
			{StopID: "S1", Location: "Market St", SequenceNumber: 1, TimeWindowStart: "08:00", TimeWindowEnd: "09:00"},
			{StopID: "S2", Location: "Mission St", SequenceNumber: 2, Priority: StopHigh},
		},
	}
	r.Normalize()
	return r
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in   string
		want Priority
	}{
		{"high", PriorityHigh},
		{" HIGH ", PriorityHigh},
		{"**low**", PriorityLow},
		{"medium", PriorityMedium},
		{"urgent", PriorityMedium},
		{"", PriorityMedium},
	}
	for _, tt := range tests {
		if got := ParsePriority(tt.in); got != tt.want {
			t.Errorf("ParsePriority(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRunContextWantsRisksDefaultsTrue(t *testing.T) {
	if !(RunContext{}).WantsRisks() {
		t.Fatal("include_risks should default to true")
	}
	if (RunContext{IncludeRisks: ptr(false)}).WantsRisks() {
		t.Fatal("explicit false must be honoured")
	}
}

func TestValidateRunContext(t *testing.T) {
	ok := RunContext{SubjectSlug: "express-delivery", LaunchDate: "2025-01-15", AudienceRole: "Driver", AudienceExperience: Intermediate}
	if err := ValidateRunContext(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name  string
		mut   func(*RunContext)
		field string
		want  error
	}{
		{"missing slug", func(rc *RunContext) { rc.SubjectSlug = "" }, "route_slug", ErrRequired},
		{"short slug", func(rc *RunContext) { rc.SubjectSlug = "x" }, "route_slug", ErrTooShort},
		{"long slug", func(rc *RunContext) { rc.SubjectSlug = strings.Repeat("a", 41) }, "route_slug", ErrTooLong},
		{"bad date", func(rc *RunContext) { rc.LaunchDate = "15/01/2025" }, "launch_date", ErrInvalidFormat},
		{"short role", func(rc *RunContext) { rc.AudienceRole = "D" }, "audience_role", ErrTooShort},
		{"bad experience", func(rc *RunContext) { rc.AudienceExperience = "expert" }, "audience_experience", ErrInvalidEnum},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := ok
			tt.mut(&rc)
			err := ValidateRunContext(rc)
			if !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Field != tt.field {
				t.Fatalf("expected ValidationError on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestValidateRouteRequest(t *testing.T) {
	if err := ValidateRouteRequest(validRoute()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		mut  func(*RouteRequest)
		want error
	}{
		{"no route id", func(r *RouteRequest) { r.RouteID = " " }, ErrRequired},
		{"no stops", func(r *RouteRequest) { r.Stops = nil }, ErrRequired},
		{"bad start time", func(r *RouteRequest) { r.PlannedStartTime = "tomorrow" }, ErrInvalidFormat},
		{"bad task", func(r *RouteRequest) { r.Task = "plan" }, ErrInvalidEnum},
		{"duplicate stop", func(r *RouteRequest) { r.Stops[1].StopID = "S1" }, ErrInvalidFormat},
		{"bad window", func(r *RouteRequest) { r.Stops[0].TimeWindowEnd = "25:00" }, ErrInvalidFormat},
		{"bad priority", func(r *RouteRequest) { r.Stops[0].Priority = "urgent" }, ErrInvalidEnum},
		{"half coords", func(r *RouteRequest) { r.Stops[0].Lat = ptr(37.7) }, ErrRequired},
		{"lat range", func(r *RouteRequest) { r.Stops[0].Lat, r.Stops[0].Lon = ptr(91.0), ptr(0.0) }, ErrOutOfRange},
		{"bad shift end", func(r *RouteRequest) { r.Constraints = &Constraints{DriverShiftEnd: "5pm"} }, ErrInvalidFormat},
		{"zero max duration", func(r *RouteRequest) { r.Constraints = &Constraints{MaxRouteDurationHours: ptr(0.0)} }, ErrOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validRoute()
			tt.mut(&r)
			if err := ValidateRouteRequest(r); !errors.Is(err, tt.want) {
				t.Fatalf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNormalizeDefaults(t *testing.T) {
	r := RouteRequest{Stops: []DeliveryStop{{StopID: "a"}}}
	r.Normalize()
	if r.VehicleType != VehicleVan || r.Task != TaskValidateAndRecommend || r.Stops[0].Priority != StopNormal {
		t.Fatalf("defaults not applied: %+v", r)
	}
}

func TestNormalizeLeavesCallerStops(t *testing.T) {
	stops := []DeliveryStop{{StopID: "a"}, {StopID: "b", Priority: StopHigh}}
	r := RouteRequest{Stops: stops}
	r.Normalize()
	if stops[0].Priority != "" {
		t.Fatalf("caller stop mutated: %+v", stops[0])
	}
	if r.Stops[0].Priority != StopNormal || r.Stops[1].Priority != StopHigh {
		t.Fatalf("normalized stops = %+v", r.Stops)
	}
}

func TestStartTimeAcceptsLocalTimestamp(t *testing.T) {
	r := RouteRequest{PlannedStartTime: "2025-12-24T07:30:00"}
	ts, err := r.StartTime()
	if err != nil || ts.Hour() != 7 || ts.Minute() != 30 {
		t.Fatalf("got %v, %v", ts, err)
	}
}

func TestOrderedStopsIsStable(t *testing.T) {
	r := RouteRequest{Stops: []DeliveryStop{
		{StopID: "c", SequenceNumber: 2},
		{StopID: "a", SequenceNumber: 1},
		{StopID: "b", SequenceNumber: 2},
	}}
	got := StopIDs(r.OrderedStops())
	if strings.Join(got, ",") != "a,c,b" {
		t.Fatalf("got %v", got)
	}
	if r.Stops[0].StopID != "c" {
		t.Fatal("OrderedStops must not reorder the request")
	}
}

func TestStopPriorityRank(t *testing.T) {
	if !(StopHigh.Rank() < StopNormal.Rank() && StopNormal.Rank() < StopLow.Rank()) {
		t.Fatal("expected high < normal < low")
	}
	if StopPriority("weird").Rank() != StopNormal.Rank() {
		t.Fatal("unknown priority should rank as normal")
	}
}

func TestValidateQuestion(t *testing.T) {
	if err := ValidateQuestion("What's the weather in Cairo?"); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(ValidateQuestion("   "), ErrRequired) {
		t.Fatal("blank question should be required")
	}
	if !errors.Is(ValidateQuestion(strings.Repeat("x", 2001)), ErrTooLong) {
		t.Fatal("long question should be rejected")
	}
}

func TestUnknownSubjectError(t *testing.T) {
	err := UnknownSubjectError("nope")
	if !errors.Is(err, ErrUnknownSubject) || !strings.Contains(err.Error(), `"nope"`) {
		t.Fatalf("got %v", err)
	}
}
