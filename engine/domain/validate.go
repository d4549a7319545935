package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the calendar date layout used by launch dates and windows.
const DateLayout = "2006-01-02"

const (
	minSlugLen     = 2
	maxSlugLen     = 40
	minRoleLen     = 2
	maxRoleLen     = 60
	minQuestionLen = 2
	maxQuestionLen = 2000
)

var clockRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// normalizeToken lower-cases s and strips markdown emphasis and punctuation
// that LLMs like to wrap single words in.
func normalizeToken(s string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(s), "*_`'\".,;:()[] "))
}

// ValidateRunContext validates a readiness request.
func ValidateRunContext(rc RunContext) error {
	slug := strings.TrimSpace(rc.SubjectSlug)
	if slug == "" {
		return NewValidationError("route_slug", slug, ErrRequired)
	}
	if n := utf8.RuneCountInString(slug); n < minSlugLen {
		return NewValidationError("route_slug", slug, ErrTooShort)
	} else if n > maxSlugLen {
		return NewValidationError("route_slug", slug, ErrTooLong)
	}
	if _, err := time.Parse(DateLayout, rc.LaunchDate); err != nil {
		return NewValidationError("launch_date", rc.LaunchDate, ErrInvalidFormat)
	}
	role := strings.TrimSpace(rc.AudienceRole)
	if n := utf8.RuneCountInString(role); n < minRoleLen {
		return NewValidationError("audience_role", role, ErrTooShort)
	} else if n > maxRoleLen {
		return NewValidationError("audience_role", role, ErrTooLong)
	}
	if !rc.AudienceExperience.Valid() {
		return NewValidationError("audience_experience", string(rc.AudienceExperience), ErrInvalidEnum)
	}
	return nil
}

// ValidateRouteRequest validates a route validation request. Call Normalize first
// so defaulted fields are filled.
func ValidateRouteRequest(r RouteRequest) error {
	if strings.TrimSpace(r.RouteID) == "" {
		return NewValidationError("route_id", r.RouteID, ErrRequired)
	}
	if strings.TrimSpace(r.StartLocation) == "" {
		return NewValidationError("start_location", r.StartLocation, ErrRequired)
	}
	if _, err := r.StartTime(); err != nil {
		return NewValidationError("planned_start_time", r.PlannedStartTime, ErrInvalidFormat)
	}
	if len(r.Stops) == 0 {
		return NewValidationError("stops", "", ErrRequired)
	}
	switch r.Task {
	case TaskValidate, TaskOptimize, TaskValidateAndRecommend:
	default:
		return NewValidationError("task", string(r.Task), ErrInvalidEnum)
	}
	if err := validateCoords("start", r.StartLat, r.StartLon); err != nil {
		return err
	}

	seen := make(map[string]bool, len(r.Stops))
	for i, s := range r.Stops {
		field := fmt.Sprintf("stops[%d]", i)
		if strings.TrimSpace(s.StopID) == "" {
			return NewValidationError(field+".stop_id", "", ErrRequired)
		}
		if seen[s.StopID] {
			return NewValidationError(field+".stop_id", s.StopID, ErrInvalidFormat)
		}
		seen[s.StopID] = true
		if strings.TrimSpace(s.Location) == "" {
			return NewValidationError(field+".location", "", ErrRequired)
		}
		if s.TimeWindowStart != "" && !clockRe.MatchString(s.TimeWindowStart) {
			return NewValidationError(field+".time_window_start", s.TimeWindowStart, ErrInvalidFormat)
		}
		if s.TimeWindowEnd != "" && !clockRe.MatchString(s.TimeWindowEnd) {
			return NewValidationError(field+".time_window_end", s.TimeWindowEnd, ErrInvalidFormat)
		}
		switch s.Priority {
		case "", StopHigh, StopNormal, StopLow:
		default:
			return NewValidationError(field+".priority", string(s.Priority), ErrInvalidEnum)
		}
		if s.ServiceTimeMinutes < 0 {
			return NewValidationError(field+".service_time_minutes", fmt.Sprint(s.ServiceTimeMinutes), ErrOutOfRange)
		}
		if err := validateCoords(field, s.Lat, s.Lon); err != nil {
			return err
		}
	}

	if c := r.Constraints; c != nil {
		if c.DriverShiftEnd != "" && !clockRe.MatchString(c.DriverShiftEnd) {
			return NewValidationError("constraints.driver_shift_end", c.DriverShiftEnd, ErrInvalidFormat)
		}
		if c.MaxRouteDurationHours != nil && *c.MaxRouteDurationHours <= 0 {
			return NewValidationError("constraints.max_route_duration_hours", fmt.Sprint(*c.MaxRouteDurationHours), ErrOutOfRange)
		}
	}
	return nil
}

func validateCoords(field string, lat, lon *float64) error {
	if (lat == nil) != (lon == nil) {
		return NewValidationError(field+".coordinates", "", ErrRequired)
	}
	if lat == nil {
		return nil
	}
	if *lat < -90 || *lat > 90 {
		return NewValidationError(field+".latitude", fmt.Sprint(*lat), ErrOutOfRange)
	}
	if *lon < -180 || *lon > 180 {
		return NewValidationError(field+".longitude", fmt.Sprint(*lon), ErrOutOfRange)
	}
	return nil
}

// ValidateQuestion validates a free-text chat question.
func ValidateQuestion(q string) error {
	q = strings.TrimSpace(q)
	n := utf8.RuneCountInString(q)
	switch {
	case n == 0:
		return NewValidationError("question", q, ErrRequired)
	case n < minQuestionLen:
		return NewValidationError("question", q, ErrTooShort)
	case n > maxQuestionLen:
		return NewValidationError("question", q[:32], ErrTooLong)
	}
	return nil
}

// ParseClock parses an HH:MM value onto the calendar day of ref.
func ParseClock(ref time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse(ClockLayout, hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour(), t.Minute(), 0, 0, ref.Location()), nil
}
