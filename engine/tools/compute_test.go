package tools

import (
	"context"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/WessleyAI/routewise/engine/domain"
)

func fp(v float64) *float64 { return &v }

func TestMetricsVan(t *testing.T) {
	p, err := Metrics(100, 5, 40, "van")
	if err != nil {
		t.Fatal(err)
	}
	if p.Duration.DrivingHours != 2.5 || p.Duration.StopTimeHours != 0.42 || p.Duration.TotalHours != 3.21 {
		t.Fatalf("duration: %+v", p.Duration)
	}
	if p.Duration.TotalFormatted != "3h 12m" {
		t.Fatalf("formatted: %s", p.Duration.TotalFormatted)
	}
	if p.Fuel.ConsumptionLiters != 9 || p.Emissions.CO2Kg != 20.79 {
		t.Fatalf("fuel %+v emissions %+v", p.Fuel, p.Emissions)
	}
	if p.Costs.TotalEUR != 123.71 || p.Costs.PerStopEUR != 24.74 {
		t.Fatalf("costs: %+v", p.Costs)
	}
	want := []string{
		"High cost per stop - optimize route density",
		"Stops are far apart - consolidate deliveries if possible",
	}
	if !slices.Equal(p.Recommendations, want) {
		t.Fatalf("recommendations: %v", p.Recommendations)
	}
}

func TestMetricsElectricAndDefaults(t *testing.T) {
	p, err := Metrics(20, 10, 0, "Electric_Van")
	if err != nil {
		t.Fatal(err)
	}
	if p.VehicleType != domain.VehicleElectricVan || p.Emissions.CO2Kg != 0 || p.Fuel.ConsumptionLiters != 0 {
		t.Fatalf("electric van should burn nothing: %+v", p)
	}
	if p.Efficiency.AvgSpeedKmh != DefaultAvgSpeedKmh {
		t.Fatalf("speed default: %v", p.Efficiency.AvgSpeedKmh)
	}

	u, _ := Metrics(10, 2, 40, "hovercraft")
	if u.Fuel.LitersPer100Km != defaultFuelRate {
		t.Fatalf("unknown vehicle should use the van rate, got %v", u.Fuel.LitersPer100Km)
	}
}

func TestMetricsLongHaul(t *testing.T) {
	p, _ := Metrics(1200, 4, 75, "truck")
	joined := strings.Join(p.Recommendations, "\n")
	for _, w := range []string{"8-hour shift", "High fuel consumption", "far apart"} {
		if !strings.Contains(joined, w) {
			t.Fatalf("missing %q in %v", w, p.Recommendations)
		}
	}
}

func TestMetricsRejectsZeroDistance(t *testing.T) {
	if _, err := Metrics(0, 3, 40, "van"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMetricsGoodRoute(t *testing.T) {
	p, _ := Metrics(30, 10, 40, "van")
	if len(p.Recommendations) != 1 || p.Recommendations[0] != "Route metrics look good" {
		t.Fatalf("got %v", p.Recommendations)
	}
}

func TestTimingLateStop(t *testing.T) {
	r := domain.RouteRequest{
		RouteID:          "RT-9",
		PlannedStartTime: "2025-03-01T09:15:00Z",
		Stops: []domain.DeliveryStop{
			{StopID: "S1", Location: "A", SequenceNumber: 1, TimeWindowEnd: "09:00"},
		},
	}
	p, err := Timing(r)
	if err != nil {
		t.Fatal(err)
	}
	if p.IsValid {
		t.Fatal("stop arriving 09:30 for a 09:00 window must be invalid")
	}
	if len(p.Issues) != 1 || !strings.Contains(p.Issues[0], "S1") || !strings.Contains(p.Issues[0], "09:30") {
		t.Fatalf("issue should name the stop and arrival: %v", p.Issues)
	}
	if !p.Arrivals[0].Late {
		t.Fatal("arrival should be flagged late")
	}
}

func TestTimingWaitsForWindowAndChecksShift(t *testing.T) {
	r := domain.RouteRequest{
		PlannedStartTime: "2025-03-01T08:00:00Z",
		Stops: []domain.DeliveryStop{
			{StopID: "B", SequenceNumber: 2, ServiceTimeMinutes: 20},
			{StopID: "A", SequenceNumber: 1, TimeWindowStart: "09:00", TimeWindowEnd: "10:00"},
		},
		Constraints: &domain.Constraints{DriverShiftEnd: "09:30", MaxRouteDurationHours: fp(1)},
	}
	p, err := Timing(r)
	if err != nil {
		t.Fatal(err)
	}
	// A: arrive 08:15, wait to 09:00, leave 09:10. B: arrive 09:25, leave 09:45.
	if p.Arrivals[0].StopID != "A" || p.Arrivals[0].Departure != "09:10" {
		t.Fatalf("A: %+v", p.Arrivals[0])
	}
	if p.Arrivals[1].Arrival != "09:25" || p.Finish != "09:45" || p.TotalMinutes != 105 {
		t.Fatalf("B: %+v finish=%s total=%v", p.Arrivals[1], p.Finish, p.TotalMinutes)
	}
	if p.IsValid || len(p.Issues) != 2 {
		t.Fatalf("expected duration and shift issues: %v", p.Issues)
	}
}

func TestTimingUsesCoordinates(t *testing.T) {
	r := domain.RouteRequest{
		PlannedStartTime: "2025-03-01T08:00:00Z",
		StartLat:         fp(0), StartLon: fp(0),
		Stops: []domain.DeliveryStop{{StopID: "S", Lat: fp(0), Lon: fp(0.5)}},
	}
	p, _ := Timing(r)
	// ~55.6 km at the mixed speed is just over an hour.
	if p.Arrivals[0].Arrival != "09:02" {
		t.Fatalf("arrival %s", p.Arrivals[0].Arrival)
	}
}

func TestTimingBadStart(t *testing.T) {
	if _, err := Timing(domain.RouteRequest{PlannedStartTime: "tomorrow"}); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSequenceOrdering(t *testing.T) {
	stops := []domain.DeliveryStop{
		{StopID: "s4", Priority: domain.StopLow, TimeWindowStart: "08:00"},
		{StopID: "s3", Priority: domain.StopNormal},
		{StopID: "s2", Priority: domain.StopNormal, TimeWindowStart: "10:00"},
		{StopID: "s1", Priority: domain.StopHigh, TimeWindowStart: "12:00"},
		{StopID: "s0", Priority: domain.StopNormal, TimeWindowStart: "10:00"},
	}
	p := Sequence(stops)
	want := []string{"s1", "s0", "s2", "s3", "s4"}
	if !slices.Equal(p.Optimized, want) {
		t.Fatalf("got %v want %v", p.Optimized, want)
	}
	if !p.Changed || p.Original[0] != "s4" {
		t.Fatalf("original order lost: %+v", p)
	}
	if p.Savings.DistancePercent != 18.8 || p.Savings.TimeSavedMinutes != 47 {
		t.Fatalf("savings: %+v", p.Savings)
	}
}

func TestSequenceUnchanged(t *testing.T) {
	p := Sequence([]domain.DeliveryStop{{StopID: "a"}, {StopID: "b"}})
	if p.Changed {
		t.Fatal("already ordered stops should report no change")
	}
}

func TestTrafficPeriods(t *testing.T) {
	tests := []struct {
		in     string
		period string
		delay  int
		recs   int
	}{
		{"08:30", PeriodMorningRush, 50, 2},
		{"12:00", PeriodMidday, 10, 1},
		{"17:00", PeriodEveningRush, 60, 2},
		{"23:00", PeriodNight, 0, 1},
		{"night", PeriodNight, 0, 1},
		{"whenever", PeriodMidday, 10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p := Traffic("downtown", tt.in, time.Time{})
			if p.Period != tt.period || p.DelayPercent != tt.delay || len(p.Recommendations) != tt.recs {
				t.Fatalf("got %+v", p)
			}
		})
	}
	now := time.Date(2025, 1, 1, 7, 30, 0, 0, time.UTC)
	if p := Traffic("x", "now", now); p.Period != PeriodMorningRush {
		t.Fatalf("now at 07:30 is morning rush, got %s", p.Period)
	}
	if p := Traffic("x", "17:00", now); p.Recommendations[0] != "High traffic expected - add 60% buffer time" {
		t.Fatalf("got %q", p.Recommendations[0])
	}
}

func TestHaversine(t *testing.T) {
	// San Francisco to Los Angeles is about 559 km.
	d := Haversine(37.7749, -122.4194, 34.0522, -118.2437)
	if math.Abs(d-559) > 5 {
		t.Fatalf("got %.1f", d)
	}
}

func TestPathDistance(t *testing.T) {
	r := domain.RouteRequest{StartLat: fp(0), StartLon: fp(0)}
	stops := []domain.DeliveryStop{{Lat: fp(0), Lon: fp(1)}, {Lat: fp(0), Lon: fp(2)}}
	km, ok := PathDistanceKm(r, stops)
	if !ok || math.Abs(km-222.4) > 1 {
		t.Fatalf("km=%v ok=%v", km, ok)
	}
	stops = append(stops, domain.DeliveryStop{})
	if _, ok := PathDistanceKm(r, stops); ok {
		t.Fatal("a stop without coordinates makes the path unknown")
	}
}

func TestDistanceTool(t *testing.T) {
	c := DistanceTool()
	p, err := c.Invoke(context.Background(), Args{"start": "Depot", "end": "Mall"}).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	d := p.(DistancePayload)
	if d.Status != "estimated" || d.DistanceKm < 5 || d.DistanceKm > 50 {
		t.Fatalf("got %+v", d)
	}
	again, _ := c.Invoke(context.Background(), Args{"start": "Depot", "end": "Mall"}).Unwrap()
	if again.(DistancePayload).DistanceKm != d.DistanceKm {
		t.Fatal("estimates must be deterministic")
	}

	p, _ = c.Invoke(context.Background(), Args{
		"start": "a", "end": "b",
		"start_latitude": 0.0, "start_longitude": 0.0, "end_latitude": 0.0, "end_longitude": 1.0,
	}).Unwrap()
	if p.(DistancePayload).Status != "computed" {
		t.Fatalf("got %+v", p)
	}
	if c.Invoke(context.Background(), Args{"start": "a"}).IsOk() {
		t.Fatal("missing end should fail")
	}
}

func TestArgsCoercion(t *testing.T) {
	a := Args{"f": "12.5", "i": 3, "p": fp(2), "s": 7}
	if a.Float("f", 0) != 12.5 || a.Int("i", 0) != 3 || a.Float("p", 0) != 2 || a.String("s") != "7" {
		t.Fatal("coercion failed")
	}
	if a.Float("missing", 9) != 9 || a.String("missing") != "" {
		t.Fatal("defaults not applied")
	}
}

func TestRouteDistanceKm(t *testing.T) {
	r := domain.RouteRequest{StartLocation: "Depot"}
	stops := []domain.DeliveryStop{{StopID: "a", Location: "North"}, {StopID: "b", Location: "South"}}
	got := RouteDistanceKm(r, stops)
	want := round(estimateKm("Depot", "North")+estimateKm("North", "South"), 1)
	if got != want {
		t.Fatalf("estimated = %v, want %v", got, want)
	}
	if got < 10 || got > 100 {
		t.Errorf("estimate %v outside two 5-50 km legs", got)
	}
	if again := RouteDistanceKm(r, stops); again != got {
		t.Error("estimate not stable")
	}
	if RouteDistanceKm(r, nil) != 0 {
		t.Error("no stops should be zero")
	}
}
