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

// readinessDeparture is the dispatch time assumed when sizing traffic for a
// route profile.
const readinessDeparture = "08:00"

// ReadinessAgent prepares teams for a route launch.
type ReadinessAgent struct {
	base
}

// NewReadinessAgent creates a ReadinessAgent.
func NewReadinessAgent(d Deps) *ReadinessAgent {
	return &ReadinessAgent{base: newBase(d)}
}

// Run validates rc and executes the readiness pipeline. Only validation,
// unknown-subject and configuration errors are returned.
func (a *ReadinessAgent) Run(ctx context.Context, rc domain.RunContext) (domain.ReadinessResult, error) {
	if err := domain.ValidateRunContext(rc); err != nil {
		return domain.ReadinessResult{}, err
	}
	start := time.Now()
	defer a.observe(domain.VariantReadiness, start)
	return fn.TracedStage("agent.readiness", a.run)(ctx, rc).Unwrap()
}

func (a *ReadinessAgent) run(ctx context.Context, rc domain.RunContext) fn.Result[domain.ReadinessResult] {
	slug := strings.TrimSpace(rc.SubjectSlug)
	outs := a.Runner.Run(ctx, []tools.Step{{Tool: tools.FetchBrief, Args: tools.Args{"route_slug": slug}}})
	brief, ok := tools.Find[tools.BriefPayload](outs)
	if !ok {
		return fn.Err[domain.ReadinessResult](domain.UnknownSubjectError(slug))
	}

	steps := []tools.Step{
		{Tool: tools.FetchWindow, Args: tools.Args{"route_slug": slug}},
		{Tool: tools.FetchContacts, Args: tools.Args{"audience_role": rc.AudienceRole}},
	}
	if rc.WantsRisks() {
		steps = append(steps, tools.Step{Tool: tools.ListRisks, Args: tools.Args{"route_slug": slug}})
	}
	steps = append(steps, profileSteps(brief.Profile)...)
	outs = append(outs, a.Runner.Run(ctx, steps)...)

	query := fmt.Sprintf("%s %s delivery logistics", brief.Name, rc.AudienceRole)
	contexts, ragCall, err := a.retrieve(ctx, query)
	if err != nil {
		return fn.Err[domain.ReadinessResult](err)
	}
	calls := tools.Calls(outs)
	if ragCall != nil {
		calls = append(calls, *ragCall)
	}

	window, hasWindow := tools.Find[tools.WindowPayload](outs)
	contacts, _ := tools.Find[tools.ContactsPayload](outs)
	var risks []string
	if rp, ok := tools.Find[tools.RiskPayload](outs); ok && rc.WantsRisks() {
		risks = rp.Items
	}

	res := domain.ReadinessResult{
		Summary:           readinessSummary(brief.Brief, rc.AudienceRole, window.Window, hasWindow),
		ActionPlan:        plan.Synthesize(plan.FromOutcomes(outs)),
		RetrievedContexts: contexts,
	}
	fixed := readinessRecommendations(window.Window, contacts.Contacts, risks, rc.WantsRisks())

	reply := parse.Reply{}
	replied := false
	p, err := prompt.Readiness(prompt.ReadinessParams{
		RouteName:          brief.Name,
		AudienceRole:       rc.AudienceRole,
		AudienceExperience: rc.AudienceExperience,
		LaunchDate:         rc.LaunchDate,
		IncludeRisks:       rc.WantsRisks(),
		ToolContext:        prompt.BuildToolContext(calls, contexts),
	})
	if err != nil {
		a.Logger.Warn("readiness prompt failed, continuing without llm", "err", err)
	} else if text, ok := a.complete(ctx, p); ok {
		replied = true
		if r := parse.Parse(text); r.State == parse.Structured || len(r.Recommendations) > 0 {
			reply = r
			res.UsedLLM = true
			res.LLMInsight = r.Insight
			preview := r.Insight
			if preview == "" {
				preview = text
			}
			calls = append(calls, a.llmCall(preview))
		}
	}
	// The floor tops up what the model said; the fixed items already cover
	// the top risk when no model answered.
	floorRisks := risks
	if !replied {
		floorRisks = nil
	}
	res.Recommendations = reply.Finalize(fixed, floorRisks).Recommendations
	res.ToolCalls = calls
	if res.ActionPlan == nil {
		res.ActionPlan = []string{}
	}

	rec := a.newRecord(domain.VariantReadiness)
	rec.SubjectSlug = slug
	rec.AudienceRole = rc.AudienceRole
	rec.AudienceExperience = rc.AudienceExperience
	rec.Summary = res.Summary
	rec.LLMInsight = res.LLMInsight
	rec.Recommendations = res.Recommendations
	rec.ToolCalls = res.ToolCalls
	rec.RetrievedContexts = res.RetrievedContexts
	rec.UsedLLM = res.UsedLLM
	a.persist(ctx, rec)

	return fn.Ok(res)
}

// profileSteps size the route's typical day so the plan has numbers even
// before any concrete route is submitted.
func profileSteps(p domain.RouteProfile) []tools.Step {
	var steps []tools.Step
	if p.DistanceKm > 0 {
		args := tools.Args{"distance_km": p.DistanceKm, "stops": p.Stops, "vehicle_type": p.VehicleType}
		if p.AvgSpeedKmh > 0 {
			args["avg_speed_kmh"] = p.AvgSpeedKmh
		}
		steps = append(steps, tools.Step{Tool: tools.RouteMetrics, Args: args})
	}
	if p.Region != "" {
		steps = append(steps,
			tools.Step{Tool: tools.CheckWeather, Args: tools.Args{"location": p.Region}},
			tools.Step{Tool: tools.CheckTraffic, Args: tools.Args{"route_segment": p.Region, "time_of_day": readinessDeparture}},
		)
	}
	return steps
}

func readinessSummary(b domain.Brief, role string, w domain.Window, hasWindow bool) string {
	window := "not scheduled"
	if hasWindow {
		window = w.Start.Format("Jan 02") + " - " + w.End.Format("Jan 02")
	}
	return fmt.Sprintf("%s targets %s personas. Delivery window: %s. Success metric: %s.", b.Name, role, window, b.SuccessMetric)
}

func readinessRecommendations(w domain.Window, contacts []domain.Contact, risks []string, includeRisks bool) []domain.Recommendation {
	primary := domain.FallbackContact
	if len(contacts) > 0 {
		primary = contacts[0].Contact
	}
	env := w.Environment
	if env == "" {
		env = "launch"
	}
	recs := []domain.Recommendation{
		{
			Title:    "Confirm route communications",
			Detail:   fmt.Sprintf("Share the route brief with %s and align on messaging for the %s window.", primary, env),
			Priority: domain.PriorityHigh,
		},
		{
			Title:    "Validate operational readiness",
			Detail:   "Ensure runbooks and dashboards reflect the new route. Coordinate with operations for rollout approval.",
			Priority: domain.PriorityHigh,
		},
	}
	if includeRisks && len(risks) > 0 {
		recs = append(recs, domain.Recommendation{
			Title:    "Mitigate top risk",
			Detail:   fmt.Sprintf("Create a mitigation plan for: %s.", risks[0]),
			Priority: domain.PriorityHigh,
		})
	}
	if len(contacts) > 1 {
		recs = append(recs, domain.Recommendation{
			Title:    "Broadcast stakeholder update",
			Detail:   "Send a tailored update to secondary contacts so downstream teams can prepare training materials and support docs.",
			Priority: domain.PriorityMedium,
		})
	}
	return recs
}
