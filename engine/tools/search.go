package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/WessleyAI/routewise/pkg/fn"
)

// Search providers.
const (
	ProviderBrave     = "brave"
	ProviderWikipedia = "wikipedia"
)

const (
	BraveURL     = "https://api.search.brave.com/res/v1/web/search"
	WikipediaURL = "https://en.wikipedia.org/w/api.php"
)

// SearchOpts configures web_search. An empty Provider disables the
// capability for calls that do not name a provider; it then reports
// ErrNotConfigured.
type SearchOpts struct {
	Provider     string
	BraveAPIKey  string
	BraveURL     string
	WikipediaURL string
	Results      int
	Client       *http.Client
	Limiter      *rate.Limiter
	Cache        Cache
	CacheTTL     time.Duration
}

var htmlTag = regexp.MustCompile(`<[^>]+>`)

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

type wikiResponse struct {
	Query struct {
		Search []struct {
			Title   string `json:"title"`
			Snippet string `json:"snippet"`
		} `json:"search"`
	} `json:"query"`
}

type searcher struct {
	opts SearchOpts
	get  jsonGetter
}

// SearchTool builds web_search. Arguments: query and optionally provider,
// which selects wikipedia or brave when search is enabled at all.
func SearchTool(opts SearchOpts) Capability {
	if opts.BraveURL == "" {
		opts.BraveURL = BraveURL
	}
	if opts.WikipediaURL == "" {
		opts.WikipediaURL = WikipediaURL
	}
	if opts.Results <= 0 {
		opts.Results = 3
	}
	s := &searcher{opts: opts, get: jsonGetter{client: opts.Client, limiter: opts.Limiter}}
	return Func{ToolName: WebSearch, Remote: true, Fn: s.invoke}
}

func (s *searcher) invoke(ctx context.Context, a Args) fn.Result[Payload] {
	provider := strings.ToLower(a.String("provider"))
	if provider == "" {
		provider = s.opts.Provider
	}
	if provider == "" || provider == ProviderBrave && s.opts.BraveAPIKey == "" {
		return fn.Err[Payload](ErrNotConfigured)
	}
	query := strings.TrimSpace(a.String("query"))
	if query == "" {
		return fn.Errf[Payload]("query is required")
	}

	key := "search:" + provider + ":" + strings.ToLower(query)
	results, err := cached(ctx, s.opts.Cache, key, s.opts.CacheTTL, func(ctx context.Context) ([]SearchResult, error) {
		switch provider {
		case ProviderBrave:
			return s.brave(ctx, query)
		case ProviderWikipedia:
			return s.wikipedia(ctx, query)
		}
		return nil, fmt.Errorf("unknown search provider %q", provider)
	})
	if err != nil {
		return fn.Err[Payload](err)
	}
	return fn.Ok[Payload](SearchPayload{Provider: provider, Query: query, Results: results})
}

func (s *searcher) brave(ctx context.Context, query string) ([]SearchResult, error) {
	q := url.Values{"q": {query}, "count": {strconv.Itoa(s.opts.Results)}}
	h := http.Header{"X-Subscription-Token": {s.opts.BraveAPIKey}}
	var resp braveResponse
	if err := s.get.get(ctx, s.opts.BraveURL+"?"+q.Encode(), h, &resp); err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		out = append(out, SearchResult{Title: r.Title, URL: r.URL, Snippet: htmlTag.ReplaceAllString(r.Description, "")})
	}
	return out, nil
}

func (s *searcher) wikipedia(ctx context.Context, query string) ([]SearchResult, error) {
	q := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {strconv.Itoa(s.opts.Results)},
		"format":   {"json"},
	}
	var resp wikiResponse
	if err := s.get.get(ctx, s.opts.WikipediaURL+"?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(resp.Query.Search))
	for _, r := range resp.Query.Search {
		out = append(out, SearchResult{
			Title:   r.Title,
			URL:     "https://en.wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(r.Title, " ", "_")),
			Snippet: htmlTag.ReplaceAllString(r.Snippet, ""),
		})
	}
	return out, nil
}
