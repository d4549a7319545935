package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/pkg/fn"
)

// Cost model constants.
const (
	DefaultAvgSpeedKmh = 40.0
	StopMinutes        = 5.0
	BufferFactor       = 1.1
	FuelEURPerLiter    = 1.50
	DriverEURPerHour   = 25.0
	VehicleEURPerKm    = 0.30
	CO2KgPerLiter      = 2.31
	ShiftHours         = 8.0
)

// FuelRates are litres per 100 km by vehicle type.
var FuelRates = map[string]float64{
	domain.VehicleMotorcycle:  3.5,
	domain.VehicleVan:         9.0,
	domain.VehicleTruck:       25.0,
	domain.VehicleElectricVan: 0,
}

const defaultFuelRate = 9.0

var errNoDistance = errors.New("distance must be greater than 0")

// Metrics computes the route cost model. It is the single source of the
// numbers a validation result reports.
func Metrics(distanceKm float64, stops int, avgSpeedKmh float64, vehicle string) (MetricsPayload, error) {
	if distanceKm <= 0 {
		return MetricsPayload{}, errNoDistance
	}
	if avgSpeedKmh <= 0 {
		avgSpeedKmh = DefaultAvgSpeedKmh
	}
	vehicle = strings.ToLower(strings.TrimSpace(vehicle))
	if vehicle == "" {
		vehicle = domain.VehicleVan
	}
	rate, ok := FuelRates[vehicle]
	if !ok {
		rate = defaultFuelRate
	}
	perStop := float64(max(stops, 1))

	driving := distanceKm / avgSpeedKmh
	stopTime := float64(stops) * StopMinutes / 60
	total := (driving + stopTime) * BufferFactor

	liters := distanceKm / 100 * rate
	fuelCost := liters * FuelEURPerLiter
	driverCost := total * DriverEURPerHour
	vehicleCost := distanceKm * VehicleEURPerKm
	totalCost := fuelCost + driverCost + vehicleCost
	co2 := liters * CO2KgPerLiter
	if vehicle == domain.VehicleElectricVan {
		co2 = 0
	}

	p := MetricsPayload{
		DistanceKm:  round(distanceKm, 2),
		Stops:       stops,
		VehicleType: vehicle,
		Duration: Duration{
			DrivingHours:   round(driving, 2),
			StopTimeHours:  round(stopTime, 2),
			TotalHours:     round(total, 2),
			TotalFormatted: fmt.Sprintf("%dh %dm", int(total), int(math.Mod(total, 1)*60)),
		},
		Fuel: Fuel{
			ConsumptionLiters: round(liters, 2),
			CostEUR:           round(fuelCost, 2),
			LitersPer100Km:    rate,
		},
		Costs: Costs{
			FuelEUR:    round(fuelCost, 2),
			DriverEUR:  round(driverCost, 2),
			VehicleEUR: round(vehicleCost, 2),
			TotalEUR:   round(totalCost, 2),
			PerStopEUR: round(totalCost/perStop, 2),
		},
		Emissions: Emissions{CO2Kg: round(co2, 2)},
		Efficiency: Efficiency{
			AvgSpeedKmh:        avgSpeedKmh,
			TimePerStopMinutes: round(total*60/perStop, 1),
			KmPerStop:          round(distanceKm/perStop, 2),
		},
	}

	if total > ShiftHours {
		p.Recommendations = append(p.Recommendations, "Route exceeds 8-hour shift - consider splitting")
	}
	if totalCost/perStop > 15 {
		p.Recommendations = append(p.Recommendations, "High cost per stop - optimize route density")
	}
	if avgSpeedKmh < 25 {
		p.Recommendations = append(p.Recommendations, "Low average speed - check for traffic congestion")
	}
	if stops > 0 && distanceKm/float64(stops) > 10 {
		p.Recommendations = append(p.Recommendations, "Stops are far apart - consolidate deliveries if possible")
	}
	if liters > 50 {
		p.Recommendations = append(p.Recommendations, "High fuel consumption - review route optimization")
	}
	if len(p.Recommendations) == 0 {
		p.Recommendations = []string{"Route metrics look good"}
	}
	return p, nil
}

// MetricsTool wraps Metrics. Arguments: distance_km, stops, avg_speed_kmh,
// vehicle_type.
func MetricsTool() Capability {
	return Func{ToolName: RouteMetrics, Fn: func(_ context.Context, a Args) fn.Result[Payload] {
		p, err := Metrics(a.Float("distance_km", 0), a.Int("stops", 0), a.Float("avg_speed_kmh", DefaultAvgSpeedKmh), a.String("vehicle_type"))
		if err != nil {
			return fn.Err[Payload](err)
		}
		return fn.Ok[Payload](p)
	}}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
