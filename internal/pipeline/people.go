package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/analysis"
	"github.com/sells-group/company-research/internal/cache"
	"github.com/sells-group/company-research/internal/llm"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/search"
)

const (
	// snippetPageURL marks the pseudo-page that aggregates search snippets.
	snippetPageURL = "search-snippets://aggregated"

	maxSnippetLines  = 15
	maxTeamPageChars = 20000

	personSearchResults = 5
)

// ResearchPeople researches every person attached to a company. The team
// directory is located once and shared as bonus context for each profile.
func (p *Pipeline) ResearchPeople(ctx context.Context, company model.CompanyInput, domain string) []model.PersonProfile {
	if len(company.People) == 0 {
		return nil
	}

	teamContent := p.teamPageContent(ctx, domain)
	if teamContent != "" {
		zap.L().Debug("pipeline: team directory found",
			zap.String("company", company.Name),
			zap.Int("chars", len(teamContent)))
	}

	profiles := make([]model.PersonProfile, len(company.People))
	var wg sync.WaitGroup
	for i, person := range company.People {
		wg.Add(1)
		go func(i int, person string) {
			defer wg.Done()
			profiles[i] = p.researchPerson(ctx, person, company, domain, teamContent)
		}(i, person)
	}
	wg.Wait()

	return profiles
}

// researchPerson builds one profile: cached if available, otherwise searched,
// scraped, and extracted. CRM hydration happens later, on cached and fresh
// profiles alike.
func (p *Pipeline) researchPerson(ctx context.Context, personName string, company model.CompanyInput, domain, teamContent string) model.PersonProfile {
	key := cache.PersonKey(personName, company.Name)
	if !p.forceRefresh && p.deps.Store != nil {
		var cached model.PersonProfile
		if p.deps.Store.Get(ctx, cache.NamespacePerson, key, &cached) && cached.Name != "" {
			zap.L().Debug("pipeline: person served from cache", zap.String("person", personName))
			return cached
		}
	}

	results := p.runSearches(ctx, search.PersonQueries(personName, company.SearchName, domain), personSearchResults)
	pages, searchLinkedIn := p.personPages(ctx, personName, company, results, domain, teamContent)

	profile := p.extractPerson(ctx, personName, company.Name, pages)

	// LinkedIn precedence: input file, then search results, then extraction.
	if li := contactLinkedIn(company.Contacts, personName); li != "" {
		profile.LinkedInURL = li
	} else if searchLinkedIn != "" {
		profile.LinkedInURL = searchLinkedIn
	}
	if email := contactEmail(company.Contacts, personName); email != "" {
		profile.Email = email
	}

	profile.SourceURLs = nil
	for _, page := range pages {
		if page.Content != "" {
			profile.SourceURLs = append(profile.SourceURLs, page.URL)
		}
	}

	if p.deps.Store != nil {
		cacheable := profile
		cacheable.StripVolatile()
		p.deps.Store.Set(ctx, cache.NamespacePerson, key, cacheable)
	}
	return profile
}

// personPages assembles the evidence for one person: scraped non-LinkedIn
// pages, the shared team directory, and a pseudo-page of search snippets.
// LinkedIn profile pages block scrapers, so only their URL and snippet are
// used. Returns the pages and the first LinkedIn profile URL seen.
func (p *Pipeline) personPages(ctx context.Context, personName string, company model.CompanyInput, results []model.SearchResult, domain, teamContent string) ([]model.ScrapedPage, string) {
	linkedIn := ""
	var scrapable []model.SearchResult
	for _, r := range results {
		if strings.Contains(r.URL, "linkedin.com") {
			if linkedIn == "" && strings.Contains(r.URL, "linkedin.com/in/") {
				linkedIn = r.URL
			}
			continue
		}
		scrapable = append(scrapable, r)
	}

	var pages []model.ScrapedPage
	if len(scrapable) > 0 {
		ranked := p.deps.Ranker.Rank(scrapable, company.SearchName, p.cfg.Search.PersonTopURLs)
		scraped := p.scrapeAll(ctx, ranked, company.SearchName)
		pages, _ = goodPages(scraped)
	}

	if teamContent != "" {
		pages = append(pages, model.ScrapedPage{
			URL:           "https://" + domain + "/team",
			Title:         company.Name + " Team Directory",
			Content:       teamContent,
			ContentLength: len(teamContent),
			QualityScore:  60,
		})
	}

	if snippets := snippetPage(personName, results); snippets.Content != "" {
		pages = append(pages, snippets)
	}
	return pages, linkedIn
}

func (p *Pipeline) extractPerson(ctx context.Context, personName, companyName string, pages []model.ScrapedPage) model.PersonProfile {
	fallback := model.PersonProfile{Name: personName, CurrentCompany: companyName}
	if len(pages) == 0 {
		return fallback
	}

	prompt, sources := analysis.BuildPersonPrompt(personName, companyName, pages)
	if sources == 0 {
		return fallback
	}

	temp := extractionTemperature
	text, err := p.complete(ctx, llm.Request{
		Prompt:      prompt,
		MaxTokens:   personMaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		zap.L().Warn("pipeline: person extraction failed",
			zap.String("person", personName),
			zap.Error(err))
		return fallback
	}
	return analysis.ParsePerson(text, personName, companyName)
}

// teamPageContent locates the company's team or professionals directory and
// returns its inline markdown. Only content delivered with the search itself
// is used; a dedicated scrape pass is not worth it for bonus context.
func (p *Pipeline) teamPageContent(ctx context.Context, domain string) string {
	if domain == "" {
		return ""
	}

	results := p.runSearches(ctx, []search.Query{search.TeamPageQuery(domain)}, personSearchResults)

	var b strings.Builder
	for _, r := range results {
		if r.Markdown == "" {
			continue
		}
		if b.Len() > maxTeamPageChars {
			break
		}
		fmt.Fprintf(&b, "--- Team page: %s ---\n%s\n\n", r.URL, r.Markdown)
	}
	return strings.TrimSpace(b.String())
}

// snippetPage aggregates search snippets into a supplementary pseudo-page.
// For LinkedIn results this is the only text available.
func snippetPage(personName string, results []model.SearchResult) model.ScrapedPage {
	var lines []string
	for _, r := range results {
		snippet := strings.TrimSpace(r.Snippet)
		if snippet == "" {
			continue
		}
		label := r.Title
		if strings.Contains(r.URL, "linkedin.com") {
			label = "LinkedIn"
		} else if len(label) > 50 {
			cut := 50
			// Cut on a rune boundary.
			for cut > 0 && !utf8.RuneStart(label[cut]) {
				cut--
			}
			label = label[:cut]
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s", label, snippet))
		if len(lines) == maxSnippetLines {
			break
		}
	}
	if len(lines) == 0 {
		return model.ScrapedPage{}
	}

	content := fmt.Sprintf("Search result snippets about %s:\n%s", personName, strings.Join(lines, "\n"))
	return model.ScrapedPage{
		URL:           snippetPageURL,
		Title:         "Search Snippets for " + personName,
		Content:       content,
		ContentLength: len(content),
		QualityScore:  30,
	}
}
