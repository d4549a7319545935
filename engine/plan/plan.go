// Package plan turns capability payloads into a deterministic, ordered
// action plan. It never looks at LLM output other than a resolved stop order.
package plan

import (
	"fmt"
	"strings"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/engine/tools"
)

// Inputs are the payloads a plan may draw on. Nil or empty fields skip the
// step that would use them.
type Inputs struct {
	Start       string
	Stops       []string
	Metrics     *tools.MetricsPayload
	Weather     *tools.WeatherPayload
	Traffic     *tools.TrafficPayload
	Timing      *tools.TimingPayload
	Constraints *domain.Constraints
}

// FromOutcomes collects the payloads present in a capability trace.
func FromOutcomes(outs []tools.Outcome) Inputs {
	var in Inputs
	if m, ok := tools.Find[tools.MetricsPayload](outs); ok {
		in.Metrics = &m
	}
	if w, ok := tools.Find[tools.WeatherPayload](outs); ok {
		in.Weather = &w
	}
	if t, ok := tools.Find[tools.TrafficPayload](outs); ok {
		in.Traffic = &t
	}
	if t, ok := tools.Find[tools.TimingPayload](outs); ok {
		in.Timing = &t
	}
	return in
}

// Synthesize builds the plan: path, metrics digest, weather, traffic,
// constraint compliance and dispatch, each only when its data is present.
func Synthesize(in Inputs) []string {
	var steps []string
	add := func(s string) {
		if s != "" {
			steps = append(steps, s)
		}
	}
	add(pathStep(in.Start, in.Stops))
	add(metricsStep(in.Metrics))
	add(weatherStep(in.Weather))
	add(trafficStep(in.Traffic))
	add(complianceStep(in.Timing, in.Constraints))
	if len(in.Stops) > 0 {
		add(fmt.Sprintf("Dispatch the vehicle and track arrival at each of the %d stops against its window.", len(in.Stops)))
	}
	return steps
}

func pathStep(start string, stops []string) string {
	if len(stops) == 0 {
		return ""
	}
	path := strings.Join(stops, " -> ")
	if start == "" {
		return "Visit stops in order: " + path + "."
	}
	return fmt.Sprintf("Depart from %s and visit stops in order: %s.", start, path)
}

func metricsStep(m *tools.MetricsPayload) string {
	if m == nil || m.DistanceKm <= 0 {
		return ""
	}
	return fmt.Sprintf("Plan for %.1f km over %s (%.1fh): %.1f L fuel, EUR %.2f total cost, %.1f kg CO2.",
		m.DistanceKm, m.Duration.TotalFormatted, m.Duration.TotalHours,
		m.Fuel.ConsumptionLiters, m.Costs.TotalEUR, m.Emissions.CO2Kg)
}

func weatherStep(w *tools.WeatherPayload) string {
	if w == nil || w.Conditions == "" {
		return ""
	}
	s := fmt.Sprintf("Weather at %s: %s, %.0f°C.", w.Location, w.Conditions, w.TemperatureC)
	if len(w.Advisories) > 0 {
		s += " " + strings.Join(w.Advisories, "; ") + "."
	}
	return s
}

func trafficStep(t *tools.TrafficPayload) string {
	if t == nil || t.Congestion == "" {
		return ""
	}
	s := fmt.Sprintf("Traffic during %s: %s, expect about +%d%% travel time.",
		strings.ReplaceAll(t.Period, "_", " "), t.Congestion, t.DelayPercent)
	if len(t.Recommendations) > 0 {
		s += " " + t.Recommendations[0] + "."
	}
	return s
}

func complianceStep(t *tools.TimingPayload, c *domain.Constraints) string {
	if t != nil && len(t.Issues) > 0 {
		return "Resolve before dispatch: " + strings.Join(t.Issues, "; ") + "."
	}
	if c.IsZero() {
		return ""
	}
	var limits []string
	if c.MaxRouteDurationHours != nil {
		limits = append(limits, fmt.Sprintf("max %.1fh on the road", *c.MaxRouteDurationHours))
	}
	if c.DriverShiftEnd != "" {
		limits = append(limits, "driver shift ends at "+c.DriverShiftEnd)
	}
	if c.VehicleCapacity != nil {
		limits = append(limits, fmt.Sprintf("vehicle capacity %g", *c.VehicleCapacity))
	}
	if n := strings.TrimSpace(c.Notes); n != "" {
		limits = append(limits, n)
	}
	s := "Confirm constraint compliance: " + strings.Join(limits, ", ") + "."
	if t != nil && t.Finish != "" {
		s += " Projected finish " + t.Finish + "."
	}
	return s
}
