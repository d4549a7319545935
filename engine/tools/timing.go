package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/pkg/fn"
)

// Timing overheads applied when a stop or leg does not say otherwise.
const (
	DefaultTransitMinutes = 15
	DefaultServiceMinutes = 10
)

// Timing walks the stops of r in sequence from the planned start, adding
// transit and service time, and flags every stop that arrives after its
// window closes as well as any breach of the route constraints. Arriving
// before a window opens waits for it.
func Timing(r domain.RouteRequest) (TimingPayload, error) {
	start, err := r.StartTime()
	if err != nil {
		return TimingPayload{}, fmt.Errorf("planned_start_time: %w", err)
	}
	p := TimingPayload{IsValid: true, Issues: []string{}}
	cur := start
	lat, lon := r.StartLat, r.StartLon
	for _, s := range r.OrderedStops() {
		transit := float64(DefaultTransitMinutes)
		if lat != nil && lon != nil && s.HasCoords() {
			transit = Haversine(*lat, *lon, *s.Lat, *s.Lon) / MixedSpeedKmh * 60
		}
		arrival := cur.Add(minutes(transit))
		begin := arrival
		if s.TimeWindowStart != "" {
			if open, err := domain.ParseClock(start, s.TimeWindowStart); err == nil && arrival.Before(open) {
				begin = open
			}
		}
		a := StopArrival{StopID: s.StopID, Arrival: arrival.Format(domain.ClockLayout), WindowEnd: s.TimeWindowEnd}
		if s.TimeWindowEnd != "" {
			if closes, err := domain.ParseClock(start, s.TimeWindowEnd); err == nil && arrival.After(closes) {
				a.Late = true
				p.IsValid = false
				p.Issues = append(p.Issues, fmt.Sprintf("Stop %s arrives at %s, after its window closes at %s",
					s.StopID, a.Arrival, s.TimeWindowEnd))
			}
		}
		service := s.ServiceTimeMinutes
		if service <= 0 {
			service = DefaultServiceMinutes
		}
		cur = begin.Add(time.Duration(service) * time.Minute)
		a.Departure = cur.Format(domain.ClockLayout)
		p.Arrivals = append(p.Arrivals, a)
		if s.HasCoords() {
			lat, lon = s.Lat, s.Lon
		} else {
			lat, lon = nil, nil
		}
	}
	p.TotalMinutes = round(cur.Sub(start).Minutes(), 1)
	p.Finish = cur.Format(domain.ClockLayout)

	if c := r.Constraints; c != nil {
		if c.MaxRouteDurationHours != nil && p.TotalMinutes/60 > *c.MaxRouteDurationHours {
			p.IsValid = false
			p.Issues = append(p.Issues, fmt.Sprintf("Route takes %.1fh, exceeding the %.1fh limit",
				p.TotalMinutes/60, *c.MaxRouteDurationHours))
		}
		if c.DriverShiftEnd != "" {
			if end, err := domain.ParseClock(start, c.DriverShiftEnd); err == nil && cur.After(end) {
				p.IsValid = false
				p.Issues = append(p.Issues, fmt.Sprintf("Route finishes at %s, after the driver shift ends at %s",
					p.Finish, c.DriverShiftEnd))
			}
		}
	}
	return p, nil
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

// TimingTool wraps Timing. Argument: route.
func TimingTool() Capability {
	return Func{ToolName: TimeWindows, Fn: func(_ context.Context, a Args) fn.Result[Payload] {
		r, ok := a.Route("route")
		if !ok {
			return fn.Errf[Payload]("route is required")
		}
		p, err := Timing(r)
		if err != nil {
			return fn.Err[Payload](err)
		}
		return fn.Ok[Payload](p)
	}}
}
