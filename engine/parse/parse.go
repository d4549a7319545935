// Package parse reads free-text LLM replies as a best-effort lexer.
//
// A reply moves through Unparsed, LineScan, then either Structured (at least
// one recognised prefix matched) or FallbackSentences (none did), and ends
// Finalized once the recommendation floor and cap are applied. Quantities are
// never read from the reply; callers take them from capability payloads.
package parse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/WessleyAI/routewise/engine/domain"
)

// State is the parser's position in the reply lifecycle.
type State int

const (
	Unparsed State = iota
	LineScan
	Structured
	FallbackSentences
	Finalized
)

func (s State) String() string {
	switch s {
	case Unparsed:
		return "unparsed"
	case LineScan:
		return "line_scan"
	case Structured:
		return "structured"
	case FallbackSentences:
		return "fallback_sentences"
	case Finalized:
		return "finalized"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	// TitlePrefix marks recommendation titles that came from the LLM.
	TitlePrefix = "[AI] "
	// Floor is the recommendation count below which a risk-derived item is added.
	Floor = 3
	// Cap bounds the LLM-derived recommendations.
	Cap = 5
	// MinSentenceLen drops sentences too short to be useful in fallback mode.
	MinSentenceLen = 20
	// MaxFallback bounds sentence-derived recommendations.
	MaxFallback = 3

	maxTitleLen = 60
)

var prefixRe = regexp.MustCompile(`(?i)^(INSIGHT|VALID|ISSUE|RECOMMENDATION(?:_\d+)?|OPTIMIZED_ORDER|SUMMARY)\s*:\s*(.*)$`)

// bulletRe matches list markers: "-", "*", "•", "1.", "2)".
var bulletRe = regexp.MustCompile(`^(?:[-*•]+|\d+[.)])\s*`)

// Reply is the typed view of one LLM reply.
type Reply struct {
	State           State
	Insight         string
	Valid           *bool
	Issues          []string
	Recommendations []domain.Recommendation
	OptimizedOrder  []string
	Summary         string
}

// Parse scans text line by line. When no recognised prefix matches it falls
// back to sentence-derived recommendations. The returned reply is not yet
// finalized; call Finalize to apply the floor and cap.
func Parse(text string) Reply {
	r := Reply{State: LineScan}
	matched := false
	for _, raw := range strings.Split(text, "\n") {
		line := cleanLine(raw)
		m := prefixRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if r.apply(strings.ToUpper(m[1]), strings.TrimSpace(m[2])) {
			matched = true
		}
	}
	if matched {
		r.State = Structured
		return r
	}
	r.State = FallbackSentences
	r.Recommendations = Sentences(text)
	return r
}

func cleanLine(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "**", "")
	s = bulletRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// apply stores one prefixed value and reports whether a typed field changed.
func (r *Reply) apply(key, val string) bool {
	if val == "" {
		return false
	}
	switch {
	case key == "INSIGHT":
		if r.Insight == "" {
			r.Insight = val
		} else {
			r.Insight += " " + val
		}
	case key == "VALID":
		v := strings.Contains(strings.ToLower(val), "true")
		r.Valid = &v
	case key == "ISSUE":
		r.Issues = append(r.Issues, val)
	case strings.HasPrefix(key, "RECOMMENDATION"):
		r.Recommendations = append(r.Recommendations, recommendation(val))
	case key == "OPTIMIZED_ORDER":
		order := splitOrder(val)
		if len(order) == 0 {
			return false
		}
		r.OptimizedOrder = order
	case key == "SUMMARY":
		r.Summary = val
	default:
		return false
	}
	return true
}

// recommendation reads "title|detail|priority". Missing parts degrade: a
// bare line is both title and detail at medium priority.
func recommendation(val string) domain.Recommendation {
	parts := strings.Split(val, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	rec := domain.Recommendation{Priority: domain.PriorityMedium}
	switch len(parts) {
	case 1:
		rec.Title = TitlePrefix + truncate(parts[0], maxTitleLen)
		rec.Detail = parts[0]
	case 2:
		rec.Title = TitlePrefix + parts[0]
		rec.Detail = parts[1]
	default:
		rec.Title = TitlePrefix + parts[0]
		rec.Detail = parts[1]
		rec.Priority = domain.ParsePriority(strings.TrimPrefix(strings.ToLower(parts[2]), "priority:"))
	}
	if rec.Detail == "" {
		rec.Detail = parts[0]
	}
	return rec
}

func splitOrder(val string) []string {
	val = strings.Trim(val, "[] ")
	var out []string
	for _, id := range strings.Split(val, ",") {
		id = strings.Trim(strings.TrimSpace(id), `"'`)
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}

// Sentences synthesises up to MaxFallback generic recommendations from the
// sentences of an unstructured reply.
func Sentences(text string) []domain.Recommendation {
	var out []domain.Recommendation
	for _, s := range strings.Split(text, ".") {
		if len(out) == MaxFallback {
			break
		}
		s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
		if fragmentary(s) {
			continue
		}
		out = append(out, domain.Recommendation{
			Title:    fmt.Sprintf("%sRecommendation %d", TitlePrefix, len(out)+1),
			Detail:   s + ".",
			Priority: domain.PriorityMedium,
		})
	}
	return out
}

func fragmentary(s string) bool {
	if len(s) < MinSentenceLen || strings.HasPrefix(s, "Route:") {
		return true
	}
	return !strings.Contains(s, " ")
}

// Finalize caps the LLM-derived recommendations at Cap and prepends base.
// When the reply yielded fewer than Floor items and risks is non-empty, one
// high-priority item for the first risk is appended. base never counts
// towards the floor.
func (r Reply) Finalize(base []domain.Recommendation, risks []string) Reply {
	derived := r.Recommendations
	if len(derived) > Cap {
		derived = derived[:Cap]
	}
	recs := make([]domain.Recommendation, 0, len(base)+len(derived)+1)
	recs = append(recs, base...)
	recs = append(recs, derived...)
	if len(derived) < Floor && len(risks) > 0 {
		recs = append(recs, RiskRecommendation(risks[0]))
	}
	r.Recommendations = recs
	r.State = Finalized
	return r
}

// RiskRecommendation is the deterministic monitoring item for one risk.
func RiskRecommendation(risk string) domain.Recommendation {
	return domain.Recommendation{
		Title:    "Monitor Critical SLO",
		Detail:   "Create monitoring dashboard for: " + risk,
		Priority: domain.PriorityHigh,
	}
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
