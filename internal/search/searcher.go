package search

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/cache"
	"github.com/sells-group/company-research/internal/llm"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/pkg/ddg"
	"github.com/sells-group/company-research/pkg/firecrawl"
)

// CostRecorder receives one call per paid search executed. Cache hits and
// free-provider queries are not reported.
type CostRecorder interface {
	Search()
}

// Searcher executes queries against the paid provider, falling back to free
// search when credits run out. The payment-failure fallback is sticky for the
// remainder of the process; all other failures degrade per query.
type Searcher struct {
	firecrawl firecrawl.Client
	ddg       ddg.Client
	store     *cache.Store
	state     *llm.ProviderState
	costs     CostRecorder
}

// NewSearcher wires a searcher. firecrawl may be nil when no key is
// configured, in which case every query goes straight to the free provider.
func NewSearcher(fc firecrawl.Client, free ddg.Client, store *cache.Store, state *llm.ProviderState) *Searcher {
	return &Searcher{firecrawl: fc, ddg: free, store: store, state: state}
}

// SetCosts attaches a cost recorder for paid queries.
func (s *Searcher) SetCosts(r CostRecorder) { s.costs = r }

// Search runs one query and returns up to n normalized results. Provider
// failures never propagate: a query that cannot be served yields an empty
// result set so the entity's research continues on whatever else is found.
func (s *Searcher) Search(ctx context.Context, query Query, n int) []model.SearchResult {
	key := cache.QueryKey(query.Text)

	var cached []model.SearchResult
	if s.store != nil && s.store.Get(ctx, cache.NamespaceSearch, key, &cached) {
		zap.L().Debug("search: cache hit", zap.String("purpose", query.Purpose))
		return tagResults(cached, query.Purpose, n)
	}

	results := s.providerSearch(ctx, query, n)
	if len(results) > 0 && s.store != nil {
		s.store.Set(ctx, cache.NamespaceSearch, key, results)
	}
	return tagResults(results, query.Purpose, n)
}

func (s *Searcher) providerSearch(ctx context.Context, query Query, n int) []model.SearchResult {
	if s.firecrawl != nil && !s.state.SearchUsesFallback() {
		results, err := s.firecrawlSearch(ctx, query, n)
		if err == nil {
			return results
		}
		if firecrawl.IsPaymentRequired(err) {
			s.state.MarkSearchFallback()
			zap.L().Warn("search: paid provider out of credits, switching to free provider for the rest of the run",
				zap.Error(err))
		} else {
			zap.L().Warn("search: paid provider failed, trying free provider for this query",
				zap.String("purpose", query.Purpose),
				zap.Error(err))
		}
	}

	results, err := s.ddg.Search(ctx, query.Text, n)
	if err != nil {
		zap.L().Warn("search: free provider failed, returning no results",
			zap.String("purpose", query.Purpose),
			zap.Error(err))
		return nil
	}

	out := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, model.SearchResult{
			URL:      r.URL,
			Title:    r.Title,
			Snippet:  r.Snippet,
			Position: r.Position,
		})
	}
	return out
}

func (s *Searcher) firecrawlSearch(ctx context.Context, query Query, n int) ([]model.SearchResult, error) {
	resp, err := s.firecrawl.Search(ctx, firecrawl.SearchRequest{
		Query: query.Text,
		Limit: n,
		ScrapeOptions: &firecrawl.ScrapeOptions{
			Formats:         []string{"markdown"},
			OnlyMainContent: true,
		},
	})
	if err != nil {
		return nil, err
	}
	if s.costs != nil {
		s.costs.Search()
	}

	out := make([]model.SearchResult, 0, len(resp.Data.Web))
	for i, web := range resp.Data.Web {
		out = append(out, model.SearchResult{
			URL:      web.URL,
			Title:    web.Title,
			Snippet:  web.Description,
			Markdown: web.Markdown,
			Position: i + 1,
		})
	}
	return out, nil
}

// tagResults stamps the query purpose on each result and applies the caller's
// limit. Cached entries were stored under a different purpose's run, so the
// tag is always overwritten.
func tagResults(results []model.SearchResult, purpose string, n int) []model.SearchResult {
	if n > 0 && len(results) > n {
		results = results[:n]
	}
	for i := range results {
		results[i].QueryPurpose = purpose
	}
	return results
}
