package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Brief is the condensed brief of a delivery route under development.
type Brief struct {
	Slug               string       `json:"slug"`
	Name               string       `json:"name"`
	Summary            string       `json:"summary"`
	AudienceRole       string       `json:"audience_role"`
	AudienceExperience Experience   `json:"audience_experience"`
	SuccessMetric      string       `json:"success_metric"`
	Profile            RouteProfile `json:"profile"`
}

// RouteProfile is the typical operating shape of a route, used when a
// readiness run needs numbers the caller did not provide.
type RouteProfile struct {
	Region      string  `json:"region"`
	DistanceKm  float64 `json:"distance_km"`
	Stops       int     `json:"stops"`
	VehicleType string  `json:"vehicle_type"`
	AvgSpeedKmh float64 `json:"avg_speed_kmh,omitempty"`
}

// Window is the delivery window tracked for a route launch.
type Window struct {
	Slug           string    `json:"route_slug"`
	Environment    string    `json:"environment"`
	Start          time.Time `json:"window_start"`
	End            time.Time `json:"window_end"`
	FreezeRequired bool      `json:"freeze_required"`
	Notes          string    `json:"notes"`
}

// Contact is a team that needs proactive updates.
type Contact struct {
	Audience          string `json:"audience"`
	Contact           string `json:"contact"`
	EscalationChannel string `json:"escalation_channel"`
}

// Fallback contact for audiences without a directory entry.
const (
	FallbackContact = "support@logistics.example.com"
	FallbackChannel = "#general-support"
)

// Catalog is the read-only static lookup data. Build it once at start-up
// and share it; no method mutates it.
type Catalog struct {
	briefs   map[string]Brief
	windows  map[string]Window
	contacts map[string][]Contact
	risks    map[string][]string
}

// Brief returns the brief for slug.
func (c *Catalog) Brief(slug string) (Brief, bool) {
	b, ok := c.briefs[slug]
	return b, ok
}

// Window returns the delivery window for slug.
func (c *Catalog) Window(slug string) (Window, bool) {
	w, ok := c.windows[slug]
	return w, ok
}

// Contacts returns the directory entries for role, or a single generic
// support contact when the role is unknown.
func (c *Catalog) Contacts(role string) []Contact {
	if cs := c.contacts[role]; len(cs) > 0 {
		return append([]Contact(nil), cs...)
	}
	return []Contact{{Audience: role, Contact: FallbackContact, EscalationChannel: FallbackChannel}}
}

// Risks returns the SLO watch items for slug, possibly empty.
func (c *Catalog) Risks(slug string) []string {
	return append([]string(nil), c.risks[slug]...)
}

// Slugs lists known route slugs in lexical order.
func (c *Catalog) Slugs() []string {
	out := make([]string, 0, len(c.briefs))
	for s := range c.briefs {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DefaultCatalog returns the built-in routes.
func DefaultCatalog() *Catalog {
	return &Catalog{
		briefs: map[string]Brief{
			"express-delivery": {
				Slug: "express-delivery",
				Name: "Express Delivery Route",
				Summary: "Optimized same-day delivery routes for urban areas with time-sensitive packages. " +
					"Targets 2-hour delivery windows with real-time tracking.",
				AudienceRole:       "Driver",
				AudienceExperience: Intermediate,
				SuccessMetric:      "95% of deliveries completed within promised window",
				Profile:            RouteProfile{Region: "San Francisco", DistanceKm: 45, Stops: 12, VehicleType: VehicleVan, AvgSpeedKmh: 30},
			},
			"cross-country-freight": {
				Slug: "cross-country-freight",
				Name: "Cross-Country Freight Route",
				Summary: "Long-haul freight optimization for multi-day deliveries across regions. " +
					"Focuses on fuel efficiency and driver rest compliance.",
				AudienceRole:       "Fleet Manager",
				AudienceExperience: Advanced,
				SuccessMetric:      "15% reduction in fuel costs while maintaining delivery schedules",
				Profile:            RouteProfile{Region: "Chicago", DistanceKm: 1200, Stops: 4, VehicleType: VehicleTruck, AvgSpeedKmh: 75},
			},
			"last-mile-delivery": {
				Slug: "last-mile-delivery",
				Name: "Last Mile Delivery Route",
				Summary: "Final leg delivery optimization for residential areas. " +
					"Handles package density, access restrictions, and customer availability.",
				AudienceRole:       "Dispatch Coordinator",
				AudienceExperience: Beginner,
				SuccessMetric:      "Reduce failed delivery attempts by 30%",
				Profile:            RouteProfile{Region: "New York", DistanceKm: 28, Stops: 25, VehicleType: VehicleElectricVan, AvgSpeedKmh: 22},
			},
		},
		windows: map[string]Window{
			"express-delivery": {
				Slug: "express-delivery", Environment: "production",
				Start: day(2025, time.January, 15), End: day(2025, time.January, 17),
				FreezeRequired: true,
				Notes:          "Launch coordinated with marketing campaign for same-day delivery service.",
			},
			"cross-country-freight": {
				Slug: "cross-country-freight", Environment: "production",
				Start: day(2025, time.February, 1), End: day(2025, time.February, 5),
				FreezeRequired: true,
				Notes:          "Requires driver training completion before rollout.",
			},
			"last-mile-delivery": {
				Slug: "last-mile-delivery", Environment: "staging",
				Start: day(2025, time.January, 20), End: day(2025, time.January, 22),
				FreezeRequired: false,
				Notes:          "Pilot program in select neighborhoods before full rollout.",
			},
		},
		contacts: map[string][]Contact{
			"Driver": {
				{Audience: "Driver", Contact: "driver-support@logistics.example.com", EscalationChannel: "#driver-support"},
				{Audience: "Driver", Contact: "safety-team@logistics.example.com", EscalationChannel: "#driver-safety"},
			},
			"Fleet Manager": {
				{Audience: "Fleet Manager", Contact: "fleet-ops@logistics.example.com", EscalationChannel: "#fleet-operations"},
			},
			"Dispatch Coordinator": {
				{Audience: "Dispatch Coordinator", Contact: "dispatch-support@logistics.example.com", EscalationChannel: "#dispatch-help"},
			},
		},
		risks: map[string][]string{
			"express-delivery": {
				"Route calculation latency must stay under 500ms",
				"GPS tracking updates required every 30 seconds",
				"Customer notification delivery within 5 seconds of status change",
			},
			"cross-country-freight": {
				"Driver rest compliance tracking accuracy >99%",
				"Fuel consumption predictions within 5% of actual",
				"Border crossing documentation preparation 24h in advance",
			},
			"last-mile-delivery": {
				"Address validation accuracy >98%",
				"Package scan-to-delivery time tracking",
				"Customer availability prediction model latency <1s",
			},
		},
	}
}

// catalogFile is the YAML shape accepted by LoadCatalog. Dates are quoted
// YYYY-MM-DD strings.
type catalogFile struct {
	Routes map[string]struct {
		Name               string   `koanf:"name"`
		Summary            string   `koanf:"summary"`
		AudienceRole       string   `koanf:"audience_role"`
		AudienceExperience string   `koanf:"audience_experience"`
		SuccessMetric      string   `koanf:"success_metric"`
		Risks              []string `koanf:"risks"`
		Profile            struct {
			Region      string  `koanf:"region"`
			DistanceKm  float64 `koanf:"distance_km"`
			Stops       int     `koanf:"stops"`
			VehicleType string  `koanf:"vehicle_type"`
			AvgSpeedKmh float64 `koanf:"avg_speed_kmh"`
		} `koanf:"profile"`
		Window *struct {
			Environment    string `koanf:"environment"`
			Start          string `koanf:"start"`
			End            string `koanf:"end"`
			FreezeRequired bool   `koanf:"freeze_required"`
			Notes          string `koanf:"notes"`
		} `koanf:"window"`
	} `koanf:"routes"`
	Contacts map[string][]struct {
		Contact           string `koanf:"contact"`
		EscalationChannel string `koanf:"escalation_channel"`
	} `koanf:"contacts"`
}

// LoadCatalog overlays YAML catalog data on base. Routes and contact roles in
// the document replace entries of the same key; everything else is kept.
// base is not modified.
func LoadCatalog(base *Catalog, data []byte) (*Catalog, error) {
	k := koanf.New("/")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("domain: parse catalog: %w", err)
	}
	var f catalogFile
	if err := k.Unmarshal("", &f); err != nil {
		return nil, fmt.Errorf("domain: decode catalog: %w", err)
	}

	out := base.clone()
	for slug, r := range f.Routes {
		exp := Experience(r.AudienceExperience)
		if !exp.Valid() {
			return nil, NewValidationError("routes/"+slug+"/audience_experience", r.AudienceExperience, ErrInvalidEnum)
		}
		if r.Name == "" {
			return nil, NewValidationError("routes/"+slug+"/name", "", ErrRequired)
		}
		out.briefs[slug] = Brief{
			Slug:               slug,
			Name:               r.Name,
			Summary:            r.Summary,
			AudienceRole:       r.AudienceRole,
			AudienceExperience: exp,
			SuccessMetric:      r.SuccessMetric,
			Profile: RouteProfile{
				Region:      r.Profile.Region,
				DistanceKm:  r.Profile.DistanceKm,
				Stops:       r.Profile.Stops,
				VehicleType: r.Profile.VehicleType,
				AvgSpeedKmh: r.Profile.AvgSpeedKmh,
			},
		}
		out.risks[slug] = append([]string(nil), r.Risks...)
		delete(out.windows, slug)
		if w := r.Window; w != nil {
			start, err := time.Parse(DateLayout, w.Start)
			if err != nil {
				return nil, NewValidationError("routes/"+slug+"/window/start", w.Start, ErrInvalidFormat)
			}
			end, err := time.Parse(DateLayout, w.End)
			if err != nil {
				return nil, NewValidationError("routes/"+slug+"/window/end", w.End, ErrInvalidFormat)
			}
			if end.Before(start) {
				return nil, NewValidationError("routes/"+slug+"/window/end", w.End, ErrOutOfRange)
			}
			out.windows[slug] = Window{
				Slug: slug, Environment: w.Environment, Start: start, End: end,
				FreezeRequired: w.FreezeRequired, Notes: w.Notes,
			}
		}
	}
	for role, cs := range f.Contacts {
		list := make([]Contact, 0, len(cs))
		for _, c := range cs {
			list = append(list, Contact{Audience: role, Contact: c.Contact, EscalationChannel: c.EscalationChannel})
		}
		out.contacts[role] = list
	}
	return out, nil
}

func (c *Catalog) clone() *Catalog {
	out := &Catalog{
		briefs:   make(map[string]Brief, len(c.briefs)),
		windows:  make(map[string]Window, len(c.windows)),
		contacts: make(map[string][]Contact, len(c.contacts)),
		risks:    make(map[string][]string, len(c.risks)),
	}
	for k, v := range c.briefs {
		out.briefs[k] = v
	}
	for k, v := range c.windows {
		out.windows[k] = v
	}
	for k, v := range c.contacts {
		out.contacts[k] = append([]Contact(nil), v...)
	}
	for k, v := range c.risks {
		out.risks[k] = append([]string(nil), v...)
	}
	return out
}
