package tools

import (
	"context"
	"math"
	"slices"
	"sort"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/pkg/fn"
)

// Per-stop distance assumptions behind the savings estimate.
const (
	unsortedKmPerStop = 8.0
	sortedKmPerStop   = 6.5
)

// Sequence orders stops high before normal before low, then by window
// start (a missing start sorts as 23:59), then by stop id. The sort is
// stable.
func Sequence(stops []domain.DeliveryStop) SequencePayload {
	sorted := make([]domain.DeliveryStop, len(stops))
	copy(sorted, stops)
	windowStart := func(s domain.DeliveryStop) string {
		if s.TimeWindowStart == "" {
			return "23:59"
		}
		return s.TimeWindowStart
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() < b.Priority.Rank()
		}
		if wa, wb := windowStart(a), windowStart(b); wa != wb {
			return wa < wb
		}
		return a.StopID < b.StopID
	})

	original := domain.StopIDs(stops)
	optimized := domain.StopIDs(sorted)
	n := float64(len(stops))
	pct := math.Round((unsortedKmPerStop-sortedKmPerStop)/unsortedKmPerStop*1000) / 10
	return SequencePayload{
		Original:  original,
		Optimized: optimized,
		Changed:   !slices.Equal(original, optimized),
		Rationale: []string{
			"High-priority stops scheduled first",
			"Time windows respected in sequence",
			"Ties broken by stop id for a stable order",
		},
		Savings: Savings{
			DistancePercent:  pct,
			TimeSavedMinutes: math.Round(pct * n * 0.5),
		},
	}
}

// SequenceTool wraps Sequence. Argument: stops.
func SequenceTool() Capability {
	return Func{ToolName: StopSequence, Fn: func(_ context.Context, a Args) fn.Result[Payload] {
		stops := a.Stops("stops")
		if len(stops) == 0 {
			return fn.Errf[Payload]("no stops provided")
		}
		return fn.Ok[Payload](Sequence(stops))
	}}
}
