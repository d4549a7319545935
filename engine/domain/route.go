package domain

import (
	"slices"
	"sort"
	"strings"
	"time"
)

// StopPriority ranks a delivery stop.
type StopPriority string

const (
	StopHigh   StopPriority = "high"
	StopNormal StopPriority = "normal"
	StopLow    StopPriority = "low"
)

// Rank orders priorities high < normal < low; unknown values sort as normal.
func (p StopPriority) Rank() int {
	switch p {
	case StopHigh:
		return 0
	case StopLow:
		return 2
	default:
		return 1
	}
}

// Task selects what a route validation should produce.
type Task string

const (
	TaskValidate             Task = "validate_route"
	TaskOptimize             Task = "optimize_route"
	TaskValidateAndRecommend Task = "validate_and_recommend"
)

// WantsOptimization reports whether the task asks for a stop order.
func (t Task) WantsOptimization() bool {
	return t == TaskOptimize || t == TaskValidateAndRecommend
}

// Vehicle types with known fuel profiles.
const (
	VehicleMotorcycle  = "motorcycle"
	VehicleVan         = "van"
	VehicleTruck       = "truck"
	VehicleElectricVan = "electric_van"
)

// ClockLayout is the HH:MM layout for stop windows and shift ends.
const ClockLayout = "15:04"

// DeliveryStop is one stop on a route.
type DeliveryStop struct {
	StopID             string       `json:"stop_id"`
	Location           string       `json:"location"`
	SequenceNumber     int          `json:"sequence_number"`
	TimeWindowStart    string       `json:"time_window_start,omitempty"`
	TimeWindowEnd      string       `json:"time_window_end,omitempty"`
	Priority           StopPriority `json:"priority,omitempty"`
	ServiceTimeMinutes int          `json:"service_time_minutes,omitempty"`
	Lat                *float64     `json:"latitude,omitempty"`
	Lon                *float64     `json:"longitude,omitempty"`
}

// HasCoords reports whether both coordinates are set.
func (s DeliveryStop) HasCoords() bool { return s.Lat != nil && s.Lon != nil }

// Constraints bound a route.
type Constraints struct {
	MaxRouteDurationHours *float64 `json:"max_route_duration_hours,omitempty"`
	DriverShiftEnd        string   `json:"driver_shift_end,omitempty"`
	VehicleCapacity       *float64 `json:"vehicle_capacity,omitempty"`
	Notes                 string   `json:"notes,omitempty"`
}

// IsZero reports whether no constraint is set.
func (c *Constraints) IsZero() bool {
	return c == nil || (c.MaxRouteDurationHours == nil && c.DriverShiftEnd == "" && c.VehicleCapacity == nil && strings.TrimSpace(c.Notes) == "")
}

// RouteRequest is a route validation request.
type RouteRequest struct {
	RouteID          string         `json:"route_id"`
	RouteSlug        string         `json:"route_slug,omitempty"`
	StartLocation    string         `json:"start_location"`
	PlannedStartTime string         `json:"planned_start_time"`
	VehicleID        string         `json:"vehicle_id,omitempty"`
	VehicleType      string         `json:"vehicle_type,omitempty"`
	StartLat         *float64       `json:"start_latitude,omitempty"`
	StartLon         *float64       `json:"start_longitude,omitempty"`
	Stops            []DeliveryStop `json:"stops"`
	Constraints      *Constraints   `json:"constraints,omitempty"`
	Task             Task           `json:"task,omitempty"`
}

// Normalize fills defaults: van, validate_and_recommend, normal priority.
// Stops is replaced by a copy, so a request passed by value leaves the
// caller's stops untouched.
func (r *RouteRequest) Normalize() {
	if r.VehicleType == "" {
		r.VehicleType = VehicleVan
	}
	if r.Task == "" {
		r.Task = TaskValidateAndRecommend
	}
	r.Stops = slices.Clone(r.Stops)
	for i := range r.Stops {
		if r.Stops[i].Priority == "" {
			r.Stops[i].Priority = StopNormal
		}
	}
}

// StartTime parses PlannedStartTime as RFC 3339, falling back to a local
// timestamp without zone.
func (r RouteRequest) StartTime() (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, r.PlannedStartTime); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", r.PlannedStartTime)
}

// OrderedStops returns stops sorted by sequence number, stable on input order.
func (r RouteRequest) OrderedStops() []DeliveryStop {
	out := make([]DeliveryStop, len(r.Stops))
	copy(out, r.Stops)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SequenceNumber < out[j].SequenceNumber
	})
	return out
}

// StopIDs lists stop IDs in the order given.
func StopIDs(stops []DeliveryStop) []string {
	ids := make([]string, len(stops))
	for i, s := range stops {
		ids[i] = s.StopID
	}
	return ids
}
