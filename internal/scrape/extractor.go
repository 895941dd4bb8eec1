package scrape

import (
	"context"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/cache"
	"github.com/sells-group/company-research/internal/config"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/pkg/jina"
)

// Fallback thresholds when the scrape config leaves them unset.
const (
	defaultMinContentChars = 100
	defaultMaxPageChars    = 12000
)

// CostRecorder receives token counts for reader-tier fetches.
type CostRecorder interface {
	Jina(tokens int)
}

// Extractor runs the tiered extraction waterfall. A failed URL yields a page
// with an error string and empty content; it never aborts the caller.
type Extractor struct {
	fetcher  *Fetcher
	jina     jina.Client
	store    *cache.Store
	minChars int // a tier yielding less than this is starved and the next tier runs
	maxChars int
	costs    CostRecorder
}

// SetCosts attaches a cost recorder for reader-tier usage.
func (e *Extractor) SetCosts(r CostRecorder) { e.costs = r }

// NewExtractor wires the waterfall. jinaClient may be nil when no key is
// configured; the reader tier is then skipped.
func NewExtractor(fetcher *Fetcher, jinaClient jina.Client, store *cache.Store, cfg config.ScrapeConfig) *Extractor {
	minChars := cfg.MinContentChars
	if minChars <= 0 {
		minChars = defaultMinContentChars
	}
	maxChars := cfg.MaxPageChars
	if maxChars <= 0 {
		maxChars = defaultMaxPageChars
	}
	return &Extractor{
		fetcher:  fetcher,
		jina:     jinaClient,
		store:    store,
		minChars: minChars,
		maxChars: maxChars,
	}
}

// Extract produces plain text for one ranked URL. Invariant: the returned
// page has content exactly when it has no error.
func (e *Extractor) Extract(ctx context.Context, ranked model.RankedURL, companyName string) model.ScrapedPage {
	// Tier 1: inline markdown delivered with the search result.
	if len(ranked.Markdown) >= e.minChars {
		return e.finish(ctx, ranked, companyName, ranked.Markdown, "inline")
	}

	// Tier 2: scrape cache.
	key := cache.URLKey(ranked.URL)
	var cached model.ScrapedPage
	if e.store != nil && e.store.Get(ctx, cache.NamespaceScrape, key, &cached) && cached.Content != "" {
		zap.L().Debug("scrape: cache hit", zap.String("url", ranked.URL))
		return cached
	}

	// Tier 3: local fetch plus readability, with a raw tag strip when
	// readability starves on the same HTML.
	var content, extractor, fetchErrMsg string
	html, fetchErr := e.fetcher.Fetch(ctx, ranked.URL)
	if fetchErr != nil {
		fetchErrMsg = fetchErr.Error()
		zap.L().Debug("scrape: local fetch failed", zap.String("url", ranked.URL), zap.Error(fetchErr))
	}
	if html != "" {
		content, extractor = extractReadable(html, ranked.URL)
		if len(content) < e.minChars {
			content, extractor = stripHTML(html), "strip"
		}
	}

	// Tier 4: reader service for JS-heavy pages and paywalls.
	if len(content) < e.minChars && e.jina != nil {
		if resp, err := e.jina.Read(ctx, ranked.URL); err != nil {
			zap.L().Debug("scrape: reader tier failed", zap.String("url", ranked.URL), zap.Error(err))
		} else {
			if e.costs != nil {
				// Reader pricing is per token, roughly four chars each.
				e.costs.Jina(len(resp.Data.Content) / 4)
			}
			if len(resp.Data.Content) > len(content) {
				content, extractor = resp.Data.Content, "jina"
			}
		}
	}

	if len(content) < e.minChars/2 {
		if fetchErrMsg == "" {
			fetchErrMsg = "no_extractable_content"
		}
		return model.ScrapedPage{
			URL:   ranked.URL,
			Title: ranked.Title,
			Error: fetchErrMsg,
		}
	}

	return e.finish(ctx, ranked, companyName, content, extractor)
}

// ExtractAll runs the waterfall over a shortlist serially; callers gate
// concurrency above this level.
func (e *Extractor) ExtractAll(ctx context.Context, ranked []model.RankedURL, companyName string) []model.ScrapedPage {
	pages := make([]model.ScrapedPage, 0, len(ranked))
	for _, r := range ranked {
		pages = append(pages, e.Extract(ctx, r, companyName))
	}
	return pages
}

func (e *Extractor) finish(ctx context.Context, ranked model.RankedURL, companyName, content, extractor string) model.ScrapedPage {
	content = truncateContent(content, e.maxChars)
	page := model.ScrapedPage{
		URL:           ranked.URL,
		Title:         ranked.Title,
		Content:       content,
		ContentLength: len(content),
		QualityScore:  scoreQuality(content, companyName),
		Extractor:     extractor,
	}
	if e.store != nil {
		e.store.Set(ctx, cache.NamespaceScrape, cache.URLKey(ranked.URL), page)
	}
	return page
}

// extractReadable runs the boilerplate-removal extractor over fetched HTML.
func extractReadable(html, pageURL string) (string, string) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", ""
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return "", ""
	}
	return strings.TrimSpace(article.TextContent), "readability"
}

// DefaultFetchTimeout bounds one local page fetch.
const DefaultFetchTimeout = 30 * time.Second
