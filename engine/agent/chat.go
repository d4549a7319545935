package agent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/engine/prompt"
	"github.com/WessleyAI/routewise/engine/tools"
	"github.com/WessleyAI/routewise/pkg/fn"
)

const variantChat = "chat"

// Fallback locations when a question names none.
const (
	defaultWeatherLocation = "san francisco"
	defaultTrafficLocation = "downtown"
)

var (
	locationRe = regexp.MustCompile(`\b(?:in|at|for)\s+([a-z\s,.-]+?)(?:\?|$|\s+(?:check|today|now|please))`)
	distanceRe = regexp.MustCompile(`(\d+)\s*(?:km|kilometer)`)
	stopsRe    = regexp.MustCompile(`(\d+)\s*stop`)

	knownPlaces = []string{
		"egypt", "cairo", "alexandria",
		"san francisco", "los angeles", "new york", "chicago", "houston",
		"london", "paris", "tokyo", "dubai", "singapore",
		"boston", "seattle", "miami", "dallas", "denver",
	}
	trafficPlaces = []string{"egypt", "cairo", "san francisco", "los angeles", "new york", "chicago", "boston"}

	weatherWords  = []string{"weather", "temperature", "rain", "conditions", "forecast"}
	metricsWords  = []string{"calculate", "metrics", "distance", "fuel", "cost", "time"}
	trafficWords  = []string{"traffic", "congestion", "delay", "rush hour"}
	optimizeWords = []string{"optimize", "order", "sequence", "priority", "arrange"}
	validateWords = []string{"validate", "check", "verify", "feasible"}
	wikiWords     = []string{"wikipedia", "wikipidia", "encyclopedia"}
	wikiTopics    = []string{"logistic", "supply chain", "route", "delivery", "fleet"}
	newsWords     = []string{"latest", "current", "news", "trend", "2024", "2025", "recent"}

	wikiPrefixes = []string{
		"can you search wikipedia for", "can you search wikipidia for",
		"search wikipedia for", "search wikipidia for",
		"tell me about", "what is", "what are", "explain", "define",
	}
	searchPrefixes = []string{"search for", "find", "look up", "what is", "who is", "tell me about", "when did"}
	wikiKeyTerms   = []string{"logistics", "logistic", "supply", "chain", "route", "delivery", "fleet", "warehouse", "inventory"}
)

// Hints added to the prompt for requests chat cannot serve on its own.
const (
	optimizeHint = "For route optimization, please provide a RouteRequest with stops, priorities, and time windows."
	validateHint = "For route validation, please provide a RouteRequest with planned start time, stops, and constraints."
)

// ChatAgent answers free-form route planning questions.
type ChatAgent struct {
	base
}

// NewChatAgent creates a ChatAgent.
func NewChatAgent(d Deps) *ChatAgent {
	return &ChatAgent{base: newBase(d)}
}

// Ask picks capabilities from keywords in question, retrieves snippets and
// asks the LLM once. When the LLM fails the answer says so politely.
func (c *ChatAgent) Ask(ctx context.Context, question string) (domain.ChatResult, error) {
	if err := domain.ValidateQuestion(question); err != nil {
		return domain.ChatResult{}, err
	}
	start := time.Now()
	defer c.observe(variantChat, start)
	return fn.TracedStage("agent.chat", c.ask)(ctx, strings.TrimSpace(question)).Unwrap()
}

func (c *ChatAgent) ask(ctx context.Context, question string) fn.Result[domain.ChatResult] {
	steps, hints := chatSteps(question, c.Now())
	outs := c.Runner.Run(ctx, steps)

	contexts, ragCall, err := c.retrieve(ctx, question)
	if err != nil {
		return fn.Err[domain.ChatResult](err)
	}
	calls := tools.Calls(outs)
	if ragCall != nil {
		calls = append(calls, *ragCall)
	}

	toolContext := prompt.BuildToolContext(calls, contexts)
	for _, h := range hints {
		if toolContext != "" {
			toolContext += "\n\n"
		}
		toolContext += h
	}

	res := domain.ChatResult{RetrievedContexts: contexts}
	p, err := prompt.Chat(question, toolContext)
	if err == nil {
		var text string
		if text, err = c.completeErr(ctx, p); err == nil {
			res.Answer = text
			res.UsedLLM = true
			calls = append(calls, c.llmCall(text))
		}
	}
	if err != nil {
		res.Answer = fmt.Sprintf("I encountered an error: %v. However, I can tell you that I have access to weather data, "+
			"route calculations, traffic analysis, and best practices documentation. How can I help you with route planning?", err)
	}
	res.ToolCalls = calls
	return fn.Ok(res)
}

// completeErr is complete that keeps the provider error for the answer.
func (c *ChatAgent) completeErr(ctx context.Context, p prompt.Prompt) (string, error) {
	if c.LLM == nil {
		return "", fmt.Errorf("no LLM provider configured")
	}
	return c.LLM.Complete(ctx, p)
}

// chatSteps maps keywords in question to capability steps and prompt hints.
func chatSteps(question string, now time.Time) ([]tools.Step, []string) {
	q := strings.ToLower(question)
	var (
		steps []tools.Step
		hints []string
	)
	if containsAny(q, weatherWords) {
		steps = append(steps, tools.Step{Tool: tools.CheckWeather, Args: tools.Args{"location": extractLocation(q, knownPlaces, defaultWeatherLocation)}})
	}
	if containsAny(q, metricsWords) {
		steps = append(steps, tools.Step{Tool: tools.RouteMetrics, Args: tools.Args{
			"distance_km":  firstInt(distanceRe, q, 100),
			"stops":        firstInt(stopsRe, q, 5),
			"vehicle_type": vehicleFromQuestion(q),
		}})
	}
	if containsAny(q, trafficWords) {
		steps = append(steps, tools.Step{Tool: tools.CheckTraffic, Args: tools.Args{
			"route_segment": extractLocation(q, trafficPlaces, defaultTrafficLocation),
			"time_of_day":   timeOfDay(q, now),
		}})
	}
	if containsAny(q, optimizeWords) {
		hints = append(hints, "=== OPTIMIZATION ===\n"+optimizeHint)
	}
	if containsAny(q, validateWords) {
		hints = append(hints, "=== VALIDATION ===\n"+validateHint)
	}
	switch {
	case containsAny(q, wikiWords) || (strings.Contains(q, "search") && containsAny(q, wikiTopics)):
		steps = append(steps, tools.Step{Tool: tools.WebSearch, Args: tools.Args{"query": wikiQuery(q), "provider": tools.ProviderWikipedia}})
	case containsAny(q, newsWords):
		steps = append(steps, tools.Step{Tool: tools.WebSearch, Args: tools.Args{"query": trimPrefixes(q, searchPrefixes)}})
	}
	return steps, hints
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func extractLocation(q string, places []string, def string) string {
	if m := locationRe.FindStringSubmatch(q); m != nil {
		if loc := strings.TrimSpace(m[1]); loc != "" {
			return loc
		}
	}
	for _, p := range places {
		if strings.Contains(q, p) {
			return p
		}
	}
	return def
}

func firstInt(re *regexp.Regexp, q string, def int) int {
	if m := re.FindStringSubmatch(q); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return def
}

func vehicleFromQuestion(q string) string {
	if !strings.Contains(q, "van") && strings.Contains(q, "truck") {
		return domain.VehicleTruck
	}
	return domain.VehicleVan
}

func timeOfDay(q string, now time.Time) string {
	switch {
	case strings.Contains(q, "morning"):
		return "08:00"
	case strings.Contains(q, "afternoon"), strings.Contains(q, "evening"):
		return "17:00"
	}
	return now.Format(domain.ClockLayout)
}

func trimPrefixes(q string, prefixes []string) string {
	for _, p := range prefixes {
		if strings.HasPrefix(q, p) {
			return strings.TrimSpace(q[len(p):])
		}
	}
	return q
}

// wikiQuery narrows a question down to an encyclopedia topic.
func wikiQuery(q string) string {
	topic := strings.TrimSpace(strings.ReplaceAll(trimPrefixes(q, wikiPrefixes), "?", ""))
	if containsAny(topic, []string{"stratigies", "strategies", "strategy"}) {
		switch {
		case strings.Contains(topic, "logistic"):
			return "logistics"
		case strings.Contains(topic, "supply"):
			return "supply chain"
		case strings.Contains(topic, "route"):
			return "pathfinding"
		}
	}
	if len(strings.Fields(topic)) > 3 {
		for _, term := range wikiKeyTerms {
			if !strings.Contains(topic, term) {
				continue
			}
			if term == "logistics" || term == "logistic" {
				return "logistics"
			}
			return strings.TrimSuffix(term, "s")
		}
	}
	return topic
}
