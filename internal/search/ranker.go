package search

import (
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/company-research/internal/model"
)

// domainEntry is one row of a reputation table. The tables are ordered slices
// so substring matching always checks entries in the same order.
type domainEntry struct {
	domain string
	value  int
}

// Domain quality scores for private credit research.
var domainScores = []domainEntry{
	{"pitchbook.com", 9},
	{"privatedebtinvestor.com", 9},
	{"middlemarketgrowth.org", 8},
	{"prnewswire.com", 8},
	{"businesswire.com", 8},
	{"globenewswire.com", 8},
	{"linkedin.com", 2}, // login walls block scraping; URLs still captured for links
	{"reuters.com", 7},
	{"bloomberg.com", 7},
	{"wsj.com", 7},
	{"ft.com", 7},
	{"sec.gov", 7},
	{"spglobal.com", 7},
	{"moodys.com", 6},
	{"pehub.com", 7},
	{"buyoutsinsider.com", 7},
	{"creditflux.com", 8},
	{"leveragedloan.com", 8},
}

// Domains to deprioritize.
var domainPenalties = []domainEntry{
	{"facebook.com", -10},
	{"instagram.com", -10},
	{"twitter.com", -5},
	{"x.com", -5},
	{"youtube.com", -3},
	{"wikipedia.org", -2},
	{"glassdoor.com", -8},
	{"indeed.com", -8},
	{"yelp.com", -10},
	{"reddit.com", -3},
	{"quora.com", -5},
	{"whalewisdom.com", -3},
	{"rashmanly.com", -10},
}

// Keywords that signal high relevance for private credit.
var relevanceKeywords = []string{
	"private credit",
	"direct lending",
	"middle market",
	"unitranche",
	"first lien",
	"senior secured",
	"portfolio",
	"fund",
	"aum",
	"credit facility",
	"leveraged",
	"mezzanine",
	"private debt",
	"credit agreement",
	"covenant",
}

// Subpages that are high value on a company's own site.
var highValuePaths = []string{
	"/credit", "/direct-lending", "/strategies", "/strategy",
	"/team", "/about", "/about-us", "/leadership", "/our-team",
	"/investment", "/investments", "/portfolio", "/funds",
}

// Overrides extends or replaces entries in the built-in domain tables. Loaded
// from an optional YAML file so the reputation tables can be tuned without a
// rebuild.
type Overrides struct {
	DomainScores    map[string]int `yaml:"domain_scores"`
	DomainPenalties map[string]int `yaml:"domain_penalties"`
}

// LoadOverrides reads a YAML override file. A missing path returns empty
// overrides, not an error.
func LoadOverrides(path string) (*Overrides, error) {
	if path == "" {
		return &Overrides{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Overrides{}, nil
		}
		return nil, eris.Wrap(err, "search: read domain overrides")
	}
	var o Overrides
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, eris.Wrap(err, "search: parse domain overrides")
	}
	return &o, nil
}

// Ranker scores, deduplicates, and ranks candidate URLs. It is pure and
// carries no per-entity state; one instance serves the whole process.
type Ranker struct {
	scores    []domainEntry
	penalties []domainEntry
}

// NewRanker builds a ranker from the built-in tables plus any overrides.
// Overridden domains keep their table position; new ones are appended in
// sorted order so rankings stay reproducible across runs.
func NewRanker(overrides *Overrides) *Ranker {
	r := &Ranker{
		scores:    append([]domainEntry(nil), domainScores...),
		penalties: append([]domainEntry(nil), domainPenalties...),
	}
	if overrides != nil {
		r.scores = applyOverrides(r.scores, overrides.DomainScores)
		r.penalties = applyOverrides(r.penalties, overrides.DomainPenalties)
	}
	return r
}

func applyOverrides(table []domainEntry, overrides map[string]int) []domainEntry {
	if len(overrides) == 0 {
		return table
	}
	remaining := make(map[string]int, len(overrides))
	for k, v := range overrides {
		remaining[k] = v
	}
	for i := range table {
		if v, ok := remaining[table[i].domain]; ok {
			table[i].value = v
			delete(remaining, table[i].domain)
		}
	}
	extra := make([]string, 0, len(remaining))
	for k := range remaining {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		table = append(table, domainEntry{k, remaining[k]})
	}
	return table
}

// Rank deduplicates results by normalized URL, scores each, and returns the
// top maxURLs by score descending. A URL surfaced by multiple query purposes
// gets a +5 boost per extra appearance. The sort is stable, so ties keep
// insertion order.
func (r *Ranker) Rank(results []model.SearchResult, companyName string, maxURLs int) []model.RankedURL {
	companySlug := cleanCompanyName(companyName)

	seen := make(map[string]int) // normalized URL -> index into ranked
	var ranked []model.RankedURL

	for _, result := range results {
		rawURL := strings.TrimSpace(result.URL)
		if rawURL == "" || !(strings.HasPrefix(rawURL, "http://") || strings.HasPrefix(rawURL, "https://")) {
			continue
		}

		normalized := normalizeURL(rawURL)
		if idx, ok := seen[normalized]; ok {
			existing := &ranked[idx]
			if !containsString(existing.SourceQuery, result.QueryPurpose) {
				existing.SourceQuery = append(existing.SourceQuery, result.QueryPurpose)
				existing.QualityScore += 5
			}
			if existing.Markdown == "" && result.Markdown != "" {
				existing.Markdown = result.Markdown
			}
			continue
		}

		domain := extractDomain(rawURL)
		score := r.scoreURL(rawURL, result.Title, result.Snippet, domain, result.Position, companySlug)

		seen[normalized] = len(ranked)
		ranked = append(ranked, model.RankedURL{
			URL:          rawURL,
			Title:        result.Title,
			Domain:       domain,
			QualityScore: score,
			Markdown:     result.Markdown,
			SourceQuery:  []string{result.QueryPurpose},
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].QualityScore > ranked[j].QualityScore
	})
	if maxURLs > 0 && len(ranked) > maxURLs {
		ranked = ranked[:maxURLs]
	}
	return ranked
}

func (r *Ranker) scoreURL(rawURL, title, snippet, domain string, position int, companySlug string) float64 {
	score := 50.0

	isCompanySite := isCompanyDomain(domain, companySlug)
	if isCompanySite {
		score += 30
		if parsed, err := url.Parse(rawURL); err == nil {
			path := strings.TrimRight(strings.ToLower(parsed.Path), "/")
			for _, hvp := range highValuePaths {
				if strings.Contains(path, hvp) {
					score += 10
					break
				}
			}
		}
	}

	// Reputation table only applies off the company's own site.
	if !isCompanySite {
		if bonus, ok := matchDomain(r.scores, domain); ok {
			score += float64(bonus * 3)
		} else if penalty, ok := matchDomain(r.penalties, domain); ok {
			score += float64(penalty * 3)
		}
	}

	combined := strings.ToLower(title + " " + snippet)
	hits := 0
	for _, kw := range relevanceKeywords {
		if strings.Contains(combined, kw) {
			hits++
		}
	}
	score += min(20, float64(hits*4))

	switch {
	case position <= 3:
		score += 10
	case position <= 6:
		score += 5
	case position <= 10:
		score += 2
	}

	return score
}

func matchDomain(table []domainEntry, domain string) (int, bool) {
	for _, entry := range table {
		if strings.Contains(domain, entry.domain) {
			return entry.value, true
		}
	}
	return 0, false
}

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]`)

// cleanCompanyName reduces a company name to a slug for domain matching,
// e.g. "Golub Capital" -> "golubcapital".
func cleanCompanyName(name string) string {
	return nonSlugRe.ReplaceAllString(strings.ToLower(name), "")
}

// isCompanyDomain reports whether a domain likely belongs to the company.
// Very short slugs are skipped to avoid false positives.
func isCompanyDomain(domain, companySlug string) bool {
	if companySlug == "" || len(companySlug) < 4 {
		return false
	}
	clean := strings.Replace(domain, "www.", "", 1)
	if idx := strings.Index(clean, "."); idx >= 0 {
		clean = clean[:idx]
	}
	return strings.Contains(clean, companySlug)
}

// normalizeURL produces the dedup key: lowercased host+path with trailing
// slashes and fragments dropped.
func normalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return strings.ToLower(rawURL)
	}
	path := strings.TrimRight(parsed.Path, "/")
	return strings.ToLower(parsed.Host + path)
}

func extractDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Host)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
