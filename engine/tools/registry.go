package tools

import (
	"net/http"
	"time"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/pkg/config"
)

// Deps are the shared collaborators of the standard capability set.
type Deps struct {
	Catalog *domain.Catalog
	Cache   Cache
	Client  *http.Client
	Now     func() time.Time
}

// Standard registers every capability the agents use, configured from cfg.
func Standard(cfg config.Tools, deps Deps) *Registry {
	client := deps.Client
	if client == nil {
		client = NewHTTPClient(cfg.Timeout)
	}
	limiter := NewLimiter(cfg.OutboundRPS)
	caps := CatalogTools(deps.Catalog)
	caps = append(caps,
		MetricsTool(),
		TimingTool(),
		SequenceTool(),
		DistanceTool(),
		TrafficTool(deps.Now),
		WeatherTool(WeatherOpts{
			APIKey:   cfg.OpenWeatherAPIKey,
			Client:   client,
			Limiter:  limiter,
			Cache:    deps.Cache,
			CacheTTL: cfg.CacheTTL,
		}),
		SearchTool(SearchOpts{
			Provider:    cfg.SearchProvider,
			BraveAPIKey: cfg.BraveAPIKey,
			Client:      client,
			Limiter:     limiter,
			Cache:       deps.Cache,
			CacheTTL:    cfg.CacheTTL,
		}),
	)
	return NewRegistry(caps...)
}
