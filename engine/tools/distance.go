package tools

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/pkg/fn"
)

const (
	earthRadiusKm = 6371.0
	urbanKmh      = 35.0
	highwayKmh    = 80.0
	urbanShare    = 0.6
)

// MixedSpeedKmh is the blended urban/highway speed used for leg estimates.
var MixedSpeedKmh = urbanKmh*urbanShare + highwayKmh*(1-urbanShare)

// Haversine returns the great-circle distance in kilometres.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// PathDistanceKm sums the legs depot → stop1 → stop2 ... when the depot and
// every stop carry coordinates. ok is false otherwise.
func PathDistanceKm(r domain.RouteRequest, stops []domain.DeliveryStop) (km float64, ok bool) {
	if r.StartLat == nil || r.StartLon == nil || len(stops) == 0 {
		return 0, false
	}
	lat, lon := *r.StartLat, *r.StartLon
	for _, s := range stops {
		if !s.HasCoords() {
			return 0, false
		}
		km += Haversine(lat, lon, *s.Lat, *s.Lon)
		lat, lon = *s.Lat, *s.Lon
	}
	return km, true
}

// RouteDistanceKm is PathDistanceKm when every point has coordinates and
// otherwise the sum of name-derived leg estimates from the start location.
func RouteDistanceKm(r domain.RouteRequest, stops []domain.DeliveryStop) float64 {
	if km, ok := PathDistanceKm(r, stops); ok {
		return round(km, 1)
	}
	var km float64
	prev := r.StartLocation
	for _, s := range stops {
		km += estimateKm(prev, s.Location)
		prev = s.Location
	}
	return round(km, 1)
}

// estimateKm gives a stable 5-50 km figure for a pair of place names when
// no coordinates are known.
func estimateKm(start, end string) float64 {
	h := fnv.New32a()
	h.Write([]byte(start + "\x00" + end))
	return round(5+float64(h.Sum32()%4500)/100, 1)
}

// Distance estimates one leg. Coordinates, when all four are given, use the
// haversine distance; otherwise the estimate is derived from the names.
func Distance(start, end string, coords []float64) DistancePayload {
	p := DistancePayload{Start: start, End: end, AvgSpeedKmh: round(MixedSpeedKmh, 1)}
	if len(coords) == 4 {
		p.Status = "computed"
		p.DistanceKm = round(Haversine(coords[0], coords[1], coords[2], coords[3]), 1)
	} else {
		p.Status = "estimated"
		p.DistanceKm = estimateKm(start, end)
	}
	hours := p.DistanceKm / MixedSpeedKmh
	p.TravelHours = round(hours, 2)
	p.TravelMins = math.Round(hours * 60)
	return p
}

// DistanceTool wraps Distance. Arguments: start, end and optionally
// start_latitude, start_longitude, end_latitude, end_longitude.
func DistanceTool() Capability {
	return Func{ToolName: StopDistance, Fn: func(_ context.Context, a Args) fn.Result[Payload] {
		var coords []float64
		keys := []string{"start_latitude", "start_longitude", "end_latitude", "end_longitude"}
		for _, k := range keys {
			if _, ok := a[k]; !ok {
				coords = nil
				break
			}
			coords = append(coords, a.Float(k, 0))
		}
		if a.String("start") == "" || a.String("end") == "" {
			return fn.Errf[Payload]("start and end are required")
		}
		return fn.Ok[Payload](Distance(a.String("start"), a.String("end"), coords))
	}}
}
