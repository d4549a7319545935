package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/engine/parse"
	"github.com/WessleyAI/routewise/engine/plan"
	"github.com/WessleyAI/routewise/engine/prompt"
	"github.com/WessleyAI/routewise/engine/tools"
	"github.com/WessleyAI/routewise/pkg/fn"
)

// Audience recorded on validation runs.
const (
	validationRole       = "dispatcher"
	validationExperience = domain.Advanced
)

// RouteValidator checks a concrete route against its windows and
// constraints and advises on it.
type RouteValidator struct {
	base
}

// NewRouteValidator creates a RouteValidator.
func NewRouteValidator(d Deps) *RouteValidator {
	return &RouteValidator{base: newBase(d)}
}

// Validate normalizes and validates r, then runs the validation pipeline.
func (v *RouteValidator) Validate(ctx context.Context, r domain.RouteRequest) (domain.ValidationResult, error) {
	r.Normalize()
	if err := domain.ValidateRouteRequest(r); err != nil {
		return domain.ValidationResult{}, err
	}
	start := time.Now()
	defer v.observe(domain.VariantValidation, start)
	return fn.TracedStage("agent.validate", v.run)(ctx, r).Unwrap()
}

func validationSteps(r domain.RouteRequest) []tools.Step {
	ordered := r.OrderedStops()
	steps := []tools.Step{
		{Tool: tools.RouteMetrics, Args: tools.Args{
			"distance_km":  tools.RouteDistanceKm(r, ordered),
			"stops":        len(r.Stops),
			"vehicle_type": r.VehicleType,
		}},
		{Tool: tools.TimeWindows, Args: tools.Args{"route": r}},
	}
	if r.Task.WantsOptimization() {
		steps = append(steps, tools.Step{Tool: tools.StopSequence, Args: tools.Args{"stops": r.Stops}})
	}
	departure := "now"
	if t, err := r.StartTime(); err == nil {
		departure = t.Format(domain.ClockLayout)
	}
	steps = append(steps,
		tools.Step{Tool: tools.CheckWeather, Args: tools.Args{"location": r.StartLocation}},
		tools.Step{Tool: tools.CheckTraffic, Args: tools.Args{"route_segment": r.StartLocation, "time_of_day": departure}},
		tools.Step{Tool: tools.WebSearch, Args: tools.Args{"query": r.RouteID + " delivery logistics best practices"}},
	)
	return steps
}

func (v *RouteValidator) run(ctx context.Context, r domain.RouteRequest) fn.Result[domain.ValidationResult] {
	outs := v.Runner.Run(ctx, validationSteps(r))

	query := fmt.Sprintf("%s delivery route planning time windows", r.StartLocation)
	contexts, ragCall, err := v.retrieve(ctx, query)
	if err != nil {
		return fn.Err[domain.ValidationResult](err)
	}
	calls := tools.Calls(outs)
	if ragCall != nil {
		calls = append(calls, *ragCall)
	}

	res := domain.ValidationResult{
		IsValid:           true,
		Issues:            []string{},
		Recommendations:   []string{},
		RetrievedContexts: contexts,
	}

	var reply parse.Reply
	p, err := prompt.Validation(prompt.ValidationParams{Route: r, ToolContext: prompt.BuildToolContext(calls, contexts)})
	if err != nil {
		v.Logger.Warn("validation prompt failed, continuing without llm", "err", err)
	} else if text, ok := v.complete(ctx, p); ok {
		if rp := parse.Parse(text); rp.State == parse.Structured || len(rp.Recommendations) > 0 {
			reply = rp.Finalize(nil, nil)
			res.UsedLLM = true
			preview := reply.Summary
			if preview == "" {
				preview = text
			}
			calls = append(calls, v.llmCall(preview))
		}
	}

	if reply.Valid != nil {
		res.IsValid = *reply.Valid
	}
	res.Issues = append(res.Issues, reply.Issues...)
	for _, rec := range reply.Recommendations {
		res.Recommendations = append(res.Recommendations, rec.Detail)
	}

	// Capability payloads are authoritative over anything the model said.
	if t, ok := tools.Find[tools.TimingPayload](outs); ok && !t.IsValid {
		res.IsValid = false
		res.Issues = append(res.Issues, t.Issues...)
	}
	metrics, hasMetrics := tools.Find[tools.MetricsPayload](outs)
	if hasMetrics {
		hours, km := metrics.Duration.TotalHours, metrics.DistanceKm
		res.EstimatedDurationHours = &hours
		res.EstimatedDistanceKm = &km
	}
	if len(res.Recommendations) == 0 {
		res.Recommendations = payloadRecommendations(outs)
	}
	if r.Task.WantsOptimization() {
		res.OptimizedStopOrder = reply.OptimizedOrder
		if len(res.OptimizedStopOrder) == 0 {
			if seq, ok := tools.Find[tools.SequencePayload](outs); ok {
				res.OptimizedStopOrder = seq.Optimized
			}
		}
	}

	res.Summary = reply.Summary
	if res.Summary == "" {
		res.Summary = validationSummary(r, res)
	}

	in := plan.FromOutcomes(outs)
	in.Start = r.StartLocation
	in.Stops = res.OptimizedStopOrder
	if len(in.Stops) == 0 {
		in.Stops = domain.StopIDs(r.OrderedStops())
	}
	in.Constraints = r.Constraints
	res.ActionPlan = plan.Synthesize(in)
	res.ToolCalls = calls

	rec := v.newRecord(domain.VariantValidation)
	rec.SubjectSlug = r.RouteSlug
	if rec.SubjectSlug == "" {
		rec.SubjectSlug = r.RouteID
	}
	rec.AudienceRole = validationRole
	rec.AudienceExperience = validationExperience
	rec.Summary = res.Summary
	if res.UsedLLM {
		rec.LLMInsight = reply.Summary
	}
	rec.Recommendations = make([]domain.Recommendation, len(res.Recommendations))
	for i, s := range res.Recommendations {
		rec.Recommendations[i] = domain.Recommendation{Title: s, Detail: s, Priority: domain.PriorityMedium}
	}
	rec.ToolCalls = res.ToolCalls
	rec.RetrievedContexts = res.RetrievedContexts
	rec.UsedLLM = res.UsedLLM
	v.persist(ctx, rec)

	return fn.Ok(res)
}

// payloadRecommendations collects advice the capabilities produced
// themselves, used when the model gave none.
func payloadRecommendations(outs []tools.Outcome) []string {
	out := []string{}
	if m, ok := tools.Find[tools.MetricsPayload](outs); ok {
		out = append(out, m.Recommendations...)
	}
	if t, ok := tools.Find[tools.TrafficPayload](outs); ok {
		out = append(out, t.Recommendations...)
	}
	if w, ok := tools.Find[tools.WeatherPayload](outs); ok && !w.Favourable() {
		out = append(out, w.Advisories...)
	}
	return out
}

func validationSummary(r domain.RouteRequest, res domain.ValidationResult) string {
	if !res.IsValid {
		return fmt.Sprintf("Route %s has %d issues that must be addressed before execution.", r.RouteID, len(res.Issues))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Route %s is valid with %d stops. ", r.RouteID, len(r.Stops))
	if res.EstimatedDurationHours != nil {
		fmt.Fprintf(&b, "Estimated duration: %.1fh. ", *res.EstimatedDurationHours)
	}
	fmt.Fprintf(&b, "%d recommendations provided.", len(res.Recommendations))
	return b.String()
}
