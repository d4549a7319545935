package tools

import "github.com/WessleyAI/routewise/engine/domain"

// Payload is the typed output of one capability. Consumers switch on the
// concrete type rather than probing for optional keys.
type Payload interface {
	Kind() string
}

type BriefPayload struct {
	domain.Brief
}

type WindowPayload struct {
	domain.Window
}

type ContactsPayload struct {
	Role     string           `json:"audience_role"`
	Contacts []domain.Contact `json:"contacts"`
}

type RiskPayload struct {
	Slug  string   `json:"route_slug"`
	Items []string `json:"slo_watch_items"`
}

// MetricsPayload is the route cost model. Duration.TotalHours is the single
// canonical duration; the other duration fields are a breakdown of it.
type MetricsPayload struct {
	DistanceKm      float64    `json:"distance_km"`
	Stops           int        `json:"stops"`
	VehicleType     string     `json:"vehicle_type"`
	Duration        Duration   `json:"duration"`
	Fuel            Fuel       `json:"fuel"`
	Costs           Costs      `json:"costs"`
	Emissions       Emissions  `json:"emissions"`
	Efficiency      Efficiency `json:"efficiency"`
	Recommendations []string   `json:"recommendations"`
}

type Duration struct {
	DrivingHours   float64 `json:"driving_hours"`
	StopTimeHours  float64 `json:"stop_time_hours"`
	TotalHours     float64 `json:"total_hours"`
	TotalFormatted string  `json:"total_formatted"`
}

type Fuel struct {
	ConsumptionLiters float64 `json:"consumption_liters"`
	CostEUR           float64 `json:"cost_eur"`
	LitersPer100Km    float64 `json:"efficiency_l_per_100km"`
}

type Costs struct {
	FuelEUR    float64 `json:"fuel_eur"`
	DriverEUR  float64 `json:"driver_eur"`
	VehicleEUR float64 `json:"vehicle_eur"`
	TotalEUR   float64 `json:"total_eur"`
	PerStopEUR float64 `json:"cost_per_stop_eur"`
}

type Emissions struct {
	CO2Kg float64 `json:"co2_kg"`
}

type Efficiency struct {
	AvgSpeedKmh        float64 `json:"avg_speed_kmh"`
	TimePerStopMinutes float64 `json:"time_per_stop_minutes"`
	KmPerStop          float64 `json:"km_per_stop"`
}

// TimingPayload is the outcome of walking the stops against their windows.
type TimingPayload struct {
	IsValid      bool          `json:"is_valid"`
	Issues       []string      `json:"issues"`
	Arrivals     []StopArrival `json:"arrivals"`
	TotalMinutes float64       `json:"total_minutes"`
	Finish       string        `json:"finish"`
}

type StopArrival struct {
	StopID    string `json:"stop_id"`
	Arrival   string `json:"arrival"`
	Departure string `json:"departure"`
	WindowEnd string `json:"window_end,omitempty"`
	Late      bool   `json:"late"`
}

type SequencePayload struct {
	Original  []string `json:"original_sequence"`
	Optimized []string `json:"optimized_sequence"`
	Changed   bool     `json:"changes_made"`
	Rationale []string `json:"optimization_rationale"`
	Savings   Savings  `json:"estimated_savings"`
}

type Savings struct {
	DistancePercent  float64 `json:"distance_reduction_percent"`
	TimeSavedMinutes float64 `json:"time_saved_minutes"`
}

// WeatherPayload reports conditions at a location. Status is live when a
// provider answered and simulated otherwise.
type WeatherPayload struct {
	Location            string   `json:"location"`
	Status              string   `json:"status"`
	TemperatureC        float64  `json:"temperature_c"`
	Conditions          string   `json:"conditions"`
	WindKmh             float64  `json:"wind_speed_kmh"`
	PrecipitationChance *float64 `json:"precipitation_chance,omitempty"`
	HumidityPercent     *float64 `json:"humidity_percent,omitempty"`
	CloudsPercent       float64  `json:"clouds_percent"`
	VisibilityKm        float64  `json:"visibility_km"`
	Advisories          []string `json:"recommendations"`
}

// Favourable reports whether no advisory calls for caution.
func (w WeatherPayload) Favourable() bool {
	return len(w.Advisories) == 1 && w.Advisories[0] == weatherGood
}

type TrafficPayload struct {
	Segment         string   `json:"route_segment"`
	TimeOfDay       string   `json:"time_of_day"`
	Period          string   `json:"traffic_period"`
	Status          string   `json:"status"`
	Congestion      string   `json:"congestion_level"`
	DelayFactor     float64  `json:"delay_factor"`
	DelayPercent    int      `json:"estimated_delay_percent"`
	Recommendations []string `json:"recommendations"`
}

type DistancePayload struct {
	Start       string  `json:"start"`
	End         string  `json:"end"`
	Status      string  `json:"status"`
	DistanceKm  float64 `json:"distance_km"`
	TravelHours float64 `json:"travel_hours"`
	TravelMins  float64 `json:"travel_minutes"`
	AvgSpeedKmh float64 `json:"avg_speed_kmh"`
}

type SearchPayload struct {
	Provider string         `json:"provider"`
	Query    string         `json:"query"`
	Results  []SearchResult `json:"results"`
}

type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func (BriefPayload) Kind() string    { return FetchBrief }
func (WindowPayload) Kind() string   { return FetchWindow }
func (ContactsPayload) Kind() string { return FetchContacts }
func (RiskPayload) Kind() string     { return ListRisks }
func (MetricsPayload) Kind() string  { return RouteMetrics }
func (TimingPayload) Kind() string   { return TimeWindows }
func (SequencePayload) Kind() string { return StopSequence }
func (WeatherPayload) Kind() string  { return CheckWeather }
func (TrafficPayload) Kind() string  { return CheckTraffic }
func (DistancePayload) Kind() string { return StopDistance }
func (SearchPayload) Kind() string   { return WebSearch }
