// Package pipeline orchestrates company and person research: query planning,
// gated searches and scrapes, LLM analysis, CRM hydration, scoring, and cache
// management. Serial and batch execution share the same building blocks.
package pipeline

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/sells-group/company-research/internal/cache"
	"github.com/sells-group/company-research/internal/config"
	"github.com/sells-group/company-research/internal/cost"
	"github.com/sells-group/company-research/internal/llm"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/search"
	"github.com/sells-group/company-research/pkg/apollo"
	"github.com/sells-group/company-research/pkg/salesforce"
)

// Searcher runs one query and returns normalized results. Failures degrade to
// an empty slice inside the implementation.
type Searcher interface {
	Search(ctx context.Context, query search.Query, n int) []model.SearchResult
}

// Extractor turns one ranked URL into page text.
type Extractor interface {
	Extract(ctx context.Context, ranked model.RankedURL, companyName string) model.ScrapedPage
}

// BatchRunner submits a set of prompts as one batch job and blocks for the
// demuxed results.
type BatchRunner interface {
	Run(ctx context.Context, items []llm.BatchItem) (map[string]string, error)
}

// CRMLookup is the slice of the Salesforce client the pipeline reads.
type CRMLookup interface {
	LookupContact(ctx context.Context, email string) (*salesforce.ContactHistory, error)
	LookupAccount(ctx context.Context, accountName string) (*model.SFAccountInfo, error)
}

// Deps carries the pipeline's collaborators. CRM, Apollo, Batch, Store,
// Tracker, and Events are optional; the corresponding step is skipped when nil.
type Deps struct {
	Searcher  Searcher
	Ranker    *search.Ranker
	Extractor Extractor
	LLM       llm.Client
	Batch     BatchRunner
	CRM       CRMLookup
	Apollo    apollo.Client
	Store     *cache.Store
	State     *llm.ProviderState
	Tracker   *cost.Tracker
	Events    chan<- Event
}

// Option tweaks pipeline behavior.
type Option func(*Pipeline)

// WithForceRefresh bypasses company and person cache reads. Search and scrape
// caches still apply.
func WithForceRefresh() Option {
	return func(p *Pipeline) { p.forceRefresh = true }
}

// Pipeline runs research with four independent concurrency gates. Companies
// are gated by the caller (Run); searches, scrapes, and LLM calls are gated
// here so a stall in one stage never starves the others.
type Pipeline struct {
	cfg  *config.Config
	deps Deps

	forceRefresh bool

	searchGate *semaphore.Weighted
	scrapeGate *semaphore.Weighted
	llmGate    *semaphore.Weighted
}

// New wires a pipeline from configuration and collaborators.
func New(cfg *config.Config, deps Deps, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:        cfg,
		deps:       deps,
		searchGate: semaphore.NewWeighted(int64(gateSize(cfg.Concurrency.Searches))),
		scrapeGate: semaphore.NewWeighted(int64(gateSize(cfg.Concurrency.Scrapes))),
		llmGate:    semaphore.NewWeighted(int64(gateSize(cfg.Concurrency.LLMCalls))),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.deps.Tracker != nil {
		if s, ok := p.deps.Searcher.(*search.Searcher); ok {
			s.SetCosts(p.deps.Tracker)
		}
	}
	return p
}

func gateSize(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// runSearches executes a query plan under the search gate and concatenates
// results in plan order so ranking stays deterministic.
func (p *Pipeline) runSearches(ctx context.Context, queries []search.Query, n int) []model.SearchResult {
	perQuery := make([][]model.SearchResult, len(queries))

	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func(i int, q search.Query) {
			defer wg.Done()
			if err := p.searchGate.Acquire(ctx, 1); err != nil {
				return
			}
			defer p.searchGate.Release(1)
			perQuery[i] = p.deps.Searcher.Search(ctx, q, n)
		}(i, q)
	}
	wg.Wait()

	var all []model.SearchResult
	for _, results := range perQuery {
		all = append(all, results...)
	}
	return all
}

// scrapeAll extracts a shortlist under the scrape gate, preserving rank order.
func (p *Pipeline) scrapeAll(ctx context.Context, ranked []model.RankedURL, companyName string) []model.ScrapedPage {
	pages := make([]model.ScrapedPage, len(ranked))

	var wg sync.WaitGroup
	for i, r := range ranked {
		wg.Add(1)
		go func(i int, r model.RankedURL) {
			defer wg.Done()
			if err := p.scrapeGate.Acquire(ctx, 1); err != nil {
				pages[i] = model.ScrapedPage{URL: r.URL, Error: err.Error()}
				return
			}
			defer p.scrapeGate.Release(1)
			pages[i] = p.deps.Extractor.Extract(ctx, r, companyName)
		}(i, r)
	}
	wg.Wait()

	return pages
}

// complete issues one serial LLM call under the llm gate and records its
// token usage.
func (p *Pipeline) complete(ctx context.Context, req llm.Request) (string, error) {
	if err := p.llmGate.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.llmGate.Release(1)

	resp, err := p.deps.LLM.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	if p.deps.Tracker != nil {
		p.deps.Tracker.Completion(resp.Model, false, resp.InputTokens, resp.OutputTokens)
	}
	return resp.Text, nil
}

// goodPages filters to pages that yielded content and collects their URLs for
// source citations.
func goodPages(pages []model.ScrapedPage) ([]model.ScrapedPage, []string) {
	var good []model.ScrapedPage
	var urls []string
	for _, page := range pages {
		if page.Content == "" {
			continue
		}
		good = append(good, page)
		urls = append(urls, page.URL)
	}
	return good, urls
}

// companyDomain derives the company's website domain, preferring what the
// extraction found over a guess from the name.
func companyDomain(websiteURL, searchName string) string {
	if websiteURL != "" {
		if u, err := url.Parse(websiteURL); err == nil {
			host := u.Host
			if host == "" {
				host = u.Path
			}
			host = strings.TrimPrefix(host, "www.")
			if host != "" {
				return host
			}
		}
	}
	return search.GuessDomain(searchName)
}

func contactEmail(contacts []model.Contact, name string) string {
	for _, c := range contacts {
		if c.Name == name && c.Email != "" {
			return c.Email
		}
	}
	return ""
}

func contactLinkedIn(contacts []model.Contact, name string) string {
	for _, c := range contacts {
		if c.Name == name && c.LinkedInURL != "" {
			return c.LinkedInURL
		}
	}
	return ""
}

// splitName separates a full name into first and last for enrichment lookups.
func splitName(full string) (first, last string) {
	fields := strings.Fields(strings.TrimSpace(full))
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	}
	return fields[0], fields[len(fields)-1]
}
