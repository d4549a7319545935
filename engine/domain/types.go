// Package domain defines the core types shared by the readiness and route
// validation pipelines, the static catalog, and request validation. It acts
// as the validation gate at pipeline entry points.
package domain

import "time"

// Experience is the audience's experience level.
type Experience string

const (
	Beginner     Experience = "beginner"
	Intermediate Experience = "intermediate"
	Advanced     Experience = "advanced"
)

// Valid reports whether e is a known level.
func (e Experience) Valid() bool {
	switch e {
	case Beginner, Intermediate, Advanced:
		return true
	}
	return false
}

// Priority ranks a recommendation.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority maps free text onto a Priority. Anything unrecognised is medium.
func ParsePriority(s string) Priority {
	switch Priority(normalizeToken(s)) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// DocumentChunk is a unit of retrievable text. Embedding is nil until the
// first index build backfills it.
type DocumentChunk struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug,omitempty"`
	Source    string    `json:"source"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RetrievedContext is one search hit. Score is a distance: lower is closer.
type RetrievedContext struct {
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float32 `json:"score"`
}

// ToolCall is one entry of the capability trace.
type ToolCall struct {
	Tool          string         `json:"tool"`
	Arguments     map[string]any `json:"arguments"`
	OutputPreview string         `json:"output_preview"`
	// RawOutput is the full serialised payload fed to the prompt.
	RawOutput string `json:"raw_output,omitempty"`
	// Error is set when the capability failed; OutputPreview then carries the marker.
	Error string `json:"error,omitempty"`
}

// Failed reports whether the invocation produced an error marker.
func (c ToolCall) Failed() bool { return c.Error != "" }

// Recommendation is a single advisory item.
type Recommendation struct {
	Title    string   `json:"title"`
	Detail   string   `json:"detail"`
	Priority Priority `json:"priority"`
}

// AgentRunRecord is the persisted audit record of one pipeline execution.
type AgentRunRecord struct {
	ID                 string             `json:"id"`
	SubjectSlug        string             `json:"subject_slug"`
	Variant            string             `json:"variant"`
	AudienceRole       string             `json:"audience_role"`
	AudienceExperience Experience         `json:"audience_experience"`
	Summary            string             `json:"summary"`
	LLMInsight         string             `json:"llm_insight,omitempty"`
	Recommendations    []Recommendation   `json:"recommendations"`
	ToolCalls          []ToolCall         `json:"tool_calls"`
	RetrievedContexts  []RetrievedContext `json:"retrieved_contexts"`
	UsedLLM            bool               `json:"used_llm"`
	CreatedAt          time.Time          `json:"created_at"`
}

// Run variants recorded on AgentRunRecord.
const (
	VariantReadiness  = "readiness"
	VariantValidation = "validation"
)

// RunContext is a readiness request.
type RunContext struct {
	SubjectSlug        string     `json:"route_slug"`
	LaunchDate         string     `json:"launch_date"`
	AudienceRole       string     `json:"audience_role"`
	AudienceExperience Experience `json:"audience_experience"`
	IncludeRisks       *bool      `json:"include_risks,omitempty"`
}

// WantsRisks reports include_risks, which defaults to true.
func (rc RunContext) WantsRisks() bool {
	return rc.IncludeRisks == nil || *rc.IncludeRisks
}

// ReadinessResult is the caller-facing readiness outcome.
type ReadinessResult struct {
	Summary           string             `json:"summary"`
	LLMInsight        string             `json:"llm_insight,omitempty"`
	Recommendations   []Recommendation   `json:"recommendations"`
	ActionPlan        []string           `json:"action_plan"`
	ToolCalls         []ToolCall         `json:"tool_calls"`
	RetrievedContexts []RetrievedContext `json:"retrieved_contexts"`
	UsedLLM           bool               `json:"used_llm"`
}

// ValidationResult is the caller-facing route validation outcome.
type ValidationResult struct {
	IsValid                bool               `json:"is_valid"`
	Issues                 []string           `json:"issues"`
	Recommendations        []string           `json:"recommendations"`
	ActionPlan             []string           `json:"action_plan"`
	OptimizedStopOrder     []string           `json:"optimized_stop_order,omitempty"`
	Summary                string             `json:"summary"`
	EstimatedDurationHours *float64           `json:"estimated_duration_hours,omitempty"`
	EstimatedDistanceKm    *float64           `json:"estimated_distance_km,omitempty"`
	ToolCalls              []ToolCall         `json:"tool_calls"`
	RetrievedContexts      []RetrievedContext `json:"retrieved_contexts"`
	UsedLLM                bool               `json:"used_llm"`
}

// ChatResult is the assistant's answer to a free-form question.
type ChatResult struct {
	Answer            string             `json:"answer"`
	ToolCalls         []ToolCall         `json:"tool_calls"`
	RetrievedContexts []RetrievedContext `json:"retrieved_contexts"`
	UsedLLM           bool               `json:"used_llm"`
}
