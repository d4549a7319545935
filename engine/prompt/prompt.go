// Package prompt turns tool traces and retrieved snippets into the text the
// LLM sees. It formats only; interpretation of numbers happens in the tools
// and the plan synthesizer.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/WessleyAI/routewise/engine/domain"
)

// SnippetLen bounds each related-documentation line.
const SnippetLen = 200

// Prompt is a rendered system/human message pair.
type Prompt struct {
	System string
	Human  string
}

// String joins both messages for providers that take a single prompt.
func (p Prompt) String() string {
	if p.System == "" {
		return p.Human
	}
	return p.System + "\n\n" + p.Human
}

// BuildToolContext groups every successful call's output under its tool name
// and appends retrieved documentation. Failed calls contribute nothing.
func BuildToolContext(calls []domain.ToolCall, contexts []domain.RetrievedContext) string {
	var sections []string
	for _, c := range calls {
		if c.Failed() || c.RawOutput == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("=== %s ===\n%s", strings.ToUpper(c.Tool), c.RawOutput))
	}
	out := strings.Join(sections, "\n\n")
	if len(contexts) > 0 {
		lines := make([]string, len(contexts))
		for i, rc := range contexts {
			lines[i] = fmt.Sprintf("- (%s) %s", rc.Source, snippet(rc.Content))
		}
		if out != "" {
			out += "\n\n"
		}
		out += "=== RELATED DOCUMENTATION ===\n" + strings.Join(lines, "\n")
	}
	return out
}

func snippet(s string) string {
	rs := []rune(s)
	if len(rs) <= SnippetLen {
		return s
	}
	return string(rs[:SnippetLen]) + "..."
}

var (
	readinessSystem = prompts.NewPromptTemplate(`You are a logistics route readiness advisor helping teams prepare for route launches.
Based on the context provided, give:
1. A brief strategic insight (2-3 sentences) about the route readiness
2. Two specific recommendations with priority levels`, nil)

	readinessHuman = prompts.NewPromptTemplate(`Route: {{.route_name}}
Target Audience: {{.audience_role}} ({{.audience_experience}})

Context:
{{.tool_context}}

User's Launch Date: {{.launch_date}}
Include Risk Analysis: {{.include_risks}}

Respond in this exact format:
INSIGHT: <your strategic insight here>
RECOMMENDATION_1: <title>|<detail>|<priority: high/medium/low>
RECOMMENDATION_2: <title>|<detail>|<priority: high/medium/low>`,
		[]string{"route_name", "audience_role", "audience_experience", "tool_context", "launch_date", "include_risks"})

	validationSystem = prompts.NewPromptTemplate(`You are an expert logistics route validation AI.

Based on the tool results below, analyze the route and provide:
1. Whether the route is VALID (can be executed successfully) or INVALID
2. List of specific ISSUES found (timing problems, constraint violations, weather risks)
3. List of RECOMMENDATIONS for improvement
4. If optimization was requested, provide the optimized stop order

Respond in this format:
VALID: true/false
ISSUE: <specific problem>
ISSUE: <specific problem>
RECOMMENDATION: <actionable suggestion>
RECOMMENDATION: <actionable suggestion>
OPTIMIZED_ORDER: stop_id1,stop_id2,stop_id3
SUMMARY: <brief human-readable explanation>`, nil)

	validationHuman = prompts.NewPromptTemplate(`Tool Results:
{{.tool_context}}

Route Request:
- Route ID: {{.route_id}}
- Start: {{.start_location}} at {{.planned_start_time}}
- Vehicle: {{.vehicle}}
- Stops: {{.num_stops}} deliveries
- Task: {{.task}}
- Constraints: {{.constraints}}

Please validate this route.`,
		[]string{"tool_context", "route_id", "start_location", "planned_start_time", "vehicle", "num_stops", "task", "constraints"})

	chatSystem = prompts.NewPromptTemplate(`You are an expert logistics route planning assistant.

Answer the user's question based on the information provided below.
Use short paragraphs, bullet points for lists and numbered lists for steps.
Do not call any tools or functions. The information below has already been retrieved for you.

Retrieved Information:
{{.tool_context}}`, []string{"tool_context"})
)

// ReadinessParams are the caller's structured inputs for a readiness run.
type ReadinessParams struct {
	RouteName          string
	AudienceRole       string
	AudienceExperience domain.Experience
	LaunchDate         string
	IncludeRisks       bool
	ToolContext        string
}

// Readiness renders the readiness instruction template.
func Readiness(p ReadinessParams) (Prompt, error) {
	return render(readinessSystem, readinessHuman, map[string]any{
		"route_name":          p.RouteName,
		"audience_role":       p.AudienceRole,
		"audience_experience": string(p.AudienceExperience),
		"tool_context":        orNone(p.ToolContext),
		"launch_date":         p.LaunchDate,
		"include_risks":       p.IncludeRisks,
	})
}

// ValidationParams are the inputs for a route validation prompt.
type ValidationParams struct {
	Route       domain.RouteRequest
	ToolContext string
}

// Validation renders the route validation template.
func Validation(p ValidationParams) (Prompt, error) {
	vehicle := p.Route.VehicleID
	if vehicle == "" {
		vehicle = "unassigned"
	}
	constraints := "{}"
	if p.Route.Constraints != nil {
		b, err := json.Marshal(p.Route.Constraints)
		if err != nil {
			return Prompt{}, fmt.Errorf("prompt: constraints: %w", err)
		}
		constraints = string(b)
	}
	return render(validationSystem, validationHuman, map[string]any{
		"tool_context":       orNone(p.ToolContext),
		"route_id":           p.Route.RouteID,
		"start_location":     p.Route.StartLocation,
		"planned_start_time": p.Route.PlannedStartTime,
		"vehicle":            vehicle,
		"num_stops":          len(p.Route.Stops),
		"task":               string(p.Route.Task),
		"constraints":        constraints,
	})
}

// Chat renders the assistant prompt; the question is the human message.
func Chat(question, toolContext string) (Prompt, error) {
	if toolContext == "" {
		toolContext = "No tools were needed for this question."
	}
	sys, err := chatSystem.Format(map[string]any{"tool_context": toolContext})
	if err != nil {
		return Prompt{}, fmt.Errorf("prompt: chat: %w", err)
	}
	return Prompt{System: sys, Human: question}, nil
}

func render(system, human prompts.PromptTemplate, values map[string]any) (Prompt, error) {
	sys, err := system.Format(values)
	if err != nil {
		return Prompt{}, fmt.Errorf("prompt: system: %w", err)
	}
	hum, err := human.Format(values)
	if err != nil {
		return Prompt{}, fmt.Errorf("prompt: human: %w", err)
	}
	return Prompt{System: sys, Human: hum}, nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(no tool output)"
	}
	return s
}
