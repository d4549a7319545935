package tools

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/WessleyAI/routewise/pkg/fn"
)

// Traffic periods by departure hour.
const (
	PeriodMorningRush = "morning_rush"
	PeriodMidday      = "midday"
	PeriodEveningRush = "evening_rush"
	PeriodNight       = "night"
)

type trafficPattern struct {
	factor      float64
	description string
}

var trafficPatterns = map[string]trafficPattern{
	PeriodMorningRush: {1.5, "Heavy morning traffic"},
	PeriodMidday:      {1.1, "Light to moderate traffic"},
	PeriodEveningRush: {1.6, "Heavy evening traffic"},
	PeriodNight:       {1.0, "Clear roads"},
}

// PeriodForHour maps an hour of day onto a traffic period.
func PeriodForHour(h int) string {
	switch {
	case h >= 7 && h < 10:
		return PeriodMorningRush
	case h >= 10 && h < 16:
		return PeriodMidday
	case h >= 16 && h < 19:
		return PeriodEveningRush
	default:
		return PeriodNight
	}
}

// Traffic estimates congestion for segment at timeOfDay, which is "now", a
// period name or an HH:MM clock. Anything else counts as midday.
func Traffic(segment, timeOfDay string, now time.Time) TrafficPayload {
	timeOfDay = strings.TrimSpace(timeOfDay)
	if timeOfDay == "" {
		timeOfDay = "now"
	}
	period := PeriodMidday
	if timeOfDay == "now" {
		period = PeriodForHour(now.Hour())
	} else if _, ok := trafficPatterns[timeOfDay]; ok {
		period = timeOfDay
	} else if t, err := time.Parse("15:04", timeOfDay); err == nil {
		period = PeriodForHour(t.Hour())
	}
	pat := trafficPatterns[period]
	delay := int(math.Round((pat.factor - 1) * 100))
	p := TrafficPayload{
		Segment:      segment,
		TimeOfDay:    timeOfDay,
		Period:       period,
		Status:       "simulated",
		Congestion:   pat.description,
		DelayFactor:  pat.factor,
		DelayPercent: delay,
	}
	switch {
	case pat.factor > 1.3:
		p.Recommendations = []string{
			fmt.Sprintf("High traffic expected - add %d%% buffer time", delay),
			"Consider alternative routes or departure times",
		}
	case pat.factor > 1.1:
		p.Recommendations = []string{"Moderate delays expected - monitor real-time traffic"}
	default:
		p.Recommendations = []string{"Good travel conditions"}
	}
	return p
}

// TrafficTool wraps Traffic. Arguments: route_segment, time_of_day.
func TrafficTool(now func() time.Time) Capability {
	if now == nil {
		now = time.Now
	}
	return Func{ToolName: CheckTraffic, Fn: func(_ context.Context, a Args) fn.Result[Payload] {
		return fn.Ok[Payload](Traffic(a.String("route_segment"), a.String("time_of_day"), now()))
	}}
}
