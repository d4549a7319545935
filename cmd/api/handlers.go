package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/engine/store"
	"github.com/WessleyAI/routewise/pkg/config"
	"github.com/WessleyAI/routewise/pkg/fn"
	"github.com/WessleyAI/routewise/pkg/metrics"
	"github.com/WessleyAI/routewise/pkg/mid"
	"github.com/WessleyAI/routewise/pkg/resilience"
)

const maxBodyBytes = 1 << 20

// Query bounds for history and search.
const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
	defaultSearchK      = 5
	maxSearchK          = 20
)

type readinessRunner interface {
	Run(ctx context.Context, rc domain.RunContext) (domain.ReadinessResult, error)
}

type routeValidator interface {
	Validate(ctx context.Context, r domain.RouteRequest) (domain.ValidationResult, error)
}

type chatAsker interface {
	Ask(ctx context.Context, question string) (domain.ChatResult, error)
}

type searcher interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedContext, error)
}

// app holds the request handlers' collaborators.
type app struct {
	readiness readinessRunner
	validator routeValidator
	chat      chatAsker
	runs      store.RunStore
	search    searcher
	metrics   *metrics.Registry
	logger    *slog.Logger
	llmName   string
}

// routes builds the HTTP handler with the middleware chain applied.
func (a *app) routes(cfg config.Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("POST /api/agent/run", a.handleRun)
	mux.HandleFunc("POST /api/agent/validate-route", a.handleValidate)
	mux.HandleFunc("GET /api/agent/history", a.handleHistory)
	mux.HandleFunc("GET /api/routes", handleRoutes)
	mux.HandleFunc("GET /api/search", a.handleSearch)
	mux.HandleFunc("POST /api/chat", a.handleChat)
	mux.Handle("GET /metrics", a.metrics.Handler())

	limiter := resilience.NewKeyedLimiter(resilience.LimiterOpts{Rate: cfg.RateLimit, Burst: cfg.RateBurst}, 10*time.Minute)

	// Metrics wraps the mux directly so it sees the matched route pattern.
	return mid.Chain(mux,
		mid.RequestID(),
		mid.OTel("routewise-api"),
		mid.Recover(a.logger),
		mid.Logger(a.logger),
		mid.CORS(cfg.CORSOrigins...),
		mid.RateLimit(limiter),
		mid.Metrics(a.metrics),
	)
}

// --- Handlers ---

func (a *app) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "llm": a.llmName})
}

func (a *app) handleRun(w http.ResponseWriter, r *http.Request) {
	var rc domain.RunContext
	if !decode(w, r, &rc) {
		return
	}
	res, err := a.readiness.Run(r.Context(), rc)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *app) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req domain.RouteRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.validator.Validate(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ChatRequest is the JSON body for POST /api/chat.
type ChatRequest struct {
	Question string `json:"question"`
}

func (a *app) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := a.chat.Ask(r.Context(), req.Question)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HistoryItem is the summary view of one recorded run.
type HistoryItem struct {
	ID           string    `json:"id"`
	RouteSlug    string    `json:"route_slug"`
	Variant      string    `json:"variant"`
	AudienceRole string    `json:"audience_role"`
	Summary      string    `json:"summary"`
	LLMInsight   string    `json:"llm_insight,omitempty"`
	UsedLLM      bool      `json:"used_llm"`
	CreatedAt    time.Time `json:"created_at"`
}

// HistoryResponse is the JSON response for GET /api/agent/history.
type HistoryResponse struct {
	Runs  []HistoryItem `json:"runs"`
	Total int           `json:"total"`
}

func (a *app) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultHistoryLimit, 1, maxHistoryLimit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	slug := strings.TrimSpace(r.URL.Query().Get("route_slug"))
	recs, err := a.runs.List(r.Context(), slug, limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	items := fn.Map(recs, func(rec domain.AgentRunRecord) HistoryItem {
		return HistoryItem{
			ID:           rec.ID,
			RouteSlug:    rec.SubjectSlug,
			Variant:      rec.Variant,
			AudienceRole: rec.AudienceRole,
			Summary:      rec.Summary,
			LLMInsight:   rec.LLMInsight,
			UsedLLM:      rec.UsedLLM,
			CreatedAt:    rec.CreatedAt,
		}
	})
	writeJSON(w, http.StatusOK, HistoryResponse{Runs: items, Total: len(items)})
}

// SearchResponse is the JSON response for GET /api/search.
type SearchResponse struct {
	Results []domain.RetrievedContext `json:"results"`
	Query   string                    `json:"query"`
	Total   int                       `json:"total"`
}

func (a *app) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		a.writeError(w, r, domain.NewValidationError("query", "", domain.ErrRequired))
		return
	}
	k, err := intParam(r, "k", defaultSearchK, 1, maxSearchK)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	hits, err := a.search.Retrieve(r.Context(), query, k)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if hits == nil {
		hits = []domain.RetrievedContext{}
	}
	for i := range hits {
		hits[i].Score = float32(math.Round(float64(hits[i].Score)*1e4) / 1e4)
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: hits, Query: query, Total: len(hits)})
}

// RouteExample is a ready-made validation request for trying the API.
type RouteExample struct {
	RouteID          string `json:"route_id"`
	Name             string `json:"name"`
	StartLocation    string `json:"start_location"`
	PlannedStartTime string `json:"planned_start_time"`
	NumStops         int    `json:"num_stops"`
	Description      string `json:"description"`
}

var routeExamples = []RouteExample{
	{"RT-001", "Downtown Morning Delivery", "San Francisco Depot", "2025-12-24T07:00:00Z", 8, "High-priority deliveries in downtown SF during morning hours"},
	{"RT-002", "Suburban Afternoon Route", "Oakland Warehouse", "2025-12-24T13:00:00Z", 12, "Standard deliveries in suburban areas with flexible time windows"},
	{"RT-003", "Express Cross-City", "San Jose Distribution Center", "2025-12-24T10:00:00Z", 5, "Urgent deliveries across multiple cities"},
}

func handleRoutes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"routes": routeExamples, "total": len(routeExamples)})
}

// --- Helpers ---

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func intParam(r *http.Request, name string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, raw, domain.ErrInvalidFormat)
	}
	if n < lo || n > hi {
		return 0, domain.NewValidationError(name, raw, domain.ErrOutOfRange)
	}
	return n, nil
}

// statusFor maps pipeline errors onto HTTP statuses.
func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrUnknownSubject):
		return http.StatusNotFound
	case errors.As(err, &verr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (a *app) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "request_id", mid.RequestIDFrom(r.Context()), "err", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
