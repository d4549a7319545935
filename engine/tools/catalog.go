package tools

import (
	"context"

	"github.com/WessleyAI/routewise/engine/domain"
	"github.com/WessleyAI/routewise/pkg/fn"
)

// CatalogTools returns the four static lookups backed by cat. Lookups of an
// unknown slug fail with domain.ErrUnknownSubject.
func CatalogTools(cat *domain.Catalog) []Capability {
	return []Capability{
		Func{ToolName: FetchBrief, Fn: func(_ context.Context, a Args) fn.Result[Payload] {
			slug := a.String("route_slug")
			b, ok := cat.Brief(slug)
			if !ok {
				return fn.Err[Payload](domain.UnknownSubjectError(slug))
			}
			return fn.Ok[Payload](BriefPayload{Brief: b})
		}},
		Func{ToolName: FetchWindow, Fn: func(_ context.Context, a Args) fn.Result[Payload] {
			slug := a.String("route_slug")
			w, ok := cat.Window(slug)
			if !ok {
				return fn.Err[Payload](domain.UnknownSubjectError(slug))
			}
			return fn.Ok[Payload](WindowPayload{Window: w})
		}},
		Func{ToolName: FetchContacts, Fn: func(_ context.Context, a Args) fn.Result[Payload] {
			role := a.String("audience_role")
			return fn.Ok[Payload](ContactsPayload{Role: role, Contacts: cat.Contacts(role)})
		}},
		Func{ToolName: ListRisks, Fn: func(_ context.Context, a Args) fn.Result[Payload] {
			slug := a.String("route_slug")
			return fn.Ok[Payload](RiskPayload{Slug: slug, Items: cat.Risks(slug)})
		}},
	}
}
