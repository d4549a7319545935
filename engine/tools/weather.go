package tools

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/WessleyAI/routewise/pkg/fn"
)

// OpenWeatherURL is the current-conditions endpoint.
const OpenWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

const weatherGood = "Good conditions for delivery"

// WeatherOpts configures check_weather. Without an API key the capability
// answers with a fixed simulated report.
type WeatherOpts struct {
	APIKey   string
	BaseURL  string
	Client   *http.Client
	Limiter  *rate.Limiter
	Cache    Cache
	CacheTTL time.Duration
}

// Simulated is the report used when no provider is configured.
func Simulated(location string) WeatherPayload {
	precip := 20.0
	return WeatherPayload{
		Location:            location,
		Status:              "simulated",
		TemperatureC:        18,
		Conditions:          "Partly Cloudy",
		WindKmh:             15,
		PrecipitationChance: &precip,
		VisibilityKm:        10,
		Advisories:          []string{weatherGood},
	}
}

// Advisories turns raw conditions into delivery advice. Wind is in m/s and
// visibility in metres, as providers report them.
func Advisories(tempC, windMS, visibilityM, cloudsPct float64) []string {
	var out []string
	if tempC < 0 {
		out = append(out, "Freezing temperatures - watch for icy roads")
	}
	if tempC > 35 {
		out = append(out, "High heat - ensure vehicle AC and driver hydration")
	}
	if windMS > 15 {
		out = append(out, "High winds - secure cargo and use caution")
	}
	if visibilityM < 1000 {
		out = append(out, "Low visibility - reduce speed and increase following distance")
	}
	if cloudsPct > 80 {
		out = append(out, "Overcast - potential rain, have contingency plans")
	}
	if len(out) == 0 {
		out = []string{weatherGood}
	}
	return out
}

type owmResponse struct {
	Name string `json:"name"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Visibility *float64 `json:"visibility"`
	Clouds     struct {
		All float64 `json:"all"`
	} `json:"clouds"`
}

func (r owmResponse) payload(location string) WeatherPayload {
	vis := 10000.0
	if r.Visibility != nil {
		vis = *r.Visibility
	}
	name := r.Name
	if name == "" {
		name = location
	}
	var conditions string
	if len(r.Weather) > 0 {
		conditions = r.Weather[0].Description
	}
	humidity := r.Main.Humidity
	return WeatherPayload{
		Location:        name,
		Status:          "live",
		TemperatureC:    r.Main.Temp,
		Conditions:      conditions,
		WindKmh:         round(r.Wind.Speed*3.6, 1),
		HumidityPercent: &humidity,
		CloudsPercent:   r.Clouds.All,
		VisibilityKm:    vis / 1000,
		Advisories:      Advisories(r.Main.Temp, r.Wind.Speed, vis, r.Clouds.All),
	}
}

// WeatherTool builds check_weather. Argument: location.
func WeatherTool(opts WeatherOpts) Capability {
	if opts.BaseURL == "" {
		opts.BaseURL = OpenWeatherURL
	}
	get := jsonGetter{client: opts.Client, limiter: opts.Limiter}
	return Func{ToolName: CheckWeather, Remote: opts.APIKey != "", Fn: func(ctx context.Context, a Args) fn.Result[Payload] {
		location := strings.TrimSpace(a.String("location"))
		if location == "" {
			return fn.Errf[Payload]("location is required")
		}
		if opts.APIKey == "" {
			return fn.Ok[Payload](Simulated(location))
		}
		key := "weather:" + strings.ToLower(location)
		p, err := cached(ctx, opts.Cache, key, opts.CacheTTL, func(ctx context.Context) (WeatherPayload, error) {
			q := url.Values{"q": {location}, "appid": {opts.APIKey}, "units": {"metric"}}
			var resp owmResponse
			if err := get.get(ctx, opts.BaseURL+"?"+q.Encode(), nil, &resp); err != nil {
				return WeatherPayload{}, err
			}
			return resp.payload(location), nil
		})
		if err != nil {
			return fn.Err[Payload](err)
		}
		return fn.Ok[Payload](p)
	}}
}
