package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/company-research/internal/analysis"
	"github.com/sells-group/company-research/internal/cache"
	"github.com/sells-group/company-research/internal/llm"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/search"
)

// Batch analysis areas. Extraction runs in the first job; summary and person
// prompts depend on its output and run in the second.
const (
	areaExtract = "extract"
	areaSummary = "summary"
	areaPerson  = "person"
)

// entityWork accumulates one pending company's state across batch phases.
type entityWork struct {
	company    model.CompanyInput
	pages      []model.ScrapedPage
	sourceURLs []string
	intel      model.CompanyIntelligence
	summary    model.CompanySummary
	domain     string
	people     []personWork
}

type personWork struct {
	name     string
	cacheKey string
	pages    []model.ScrapedPage
	linkedIn string
	cached   *model.PersonProfile
}

// RunBatch researches companies through the Batch API: all searches and
// scrapes up front, then two batch LLM jobs covering every (entity, area)
// pair, then assembly, CRM hydration, and cache writes. Any batch
// infrastructure failure falls back to the serial pipeline for the entities
// that have not finished; search and scrape caches make the retry cheap.
func (p *Pipeline) RunBatch(ctx context.Context, companies []model.CompanyInput) model.RunReport {
	if p.deps.Batch == nil || p.cfg.Batch.Disabled {
		return p.Run(ctx, companies)
	}

	start := time.Now()
	resultsByKey := make(map[string]model.CompanyResult, len(companies))

	// Phase 1: cache partition.
	var pending []*entityWork
	for _, company := range companies {
		if result, ok := p.cachedCompany(ctx, company); ok {
			resultsByKey[company.Key()] = result
			p.emit(company.Name, model.RunStatusComplete, "cache")
			continue
		}
		pending = append(pending, &entityWork{company: company})
	}

	if len(pending) > 0 {
		if err := p.batchResearch(ctx, pending, resultsByKey); err != nil {
			zap.L().Warn("pipeline: batch infrastructure failed, falling back to serial mode",
				zap.Error(err))
			report := p.Run(ctx, unfinished(pending, resultsByKey))
			for _, result := range report.Results {
				resultsByKey[result.Company.Key()] = result
			}
		}
	}

	report := model.RunReport{Elapsed: time.Since(start)}
	for _, company := range companies {
		if result, ok := resultsByKey[company.Key()]; ok {
			report.Results = append(report.Results, result)
		}
	}
	report.Tally()
	return report
}

// batchResearch runs phases 2-6 for the pending entities, filling
// resultsByKey as companies complete. An error means a batch job could not be
// submitted or finished; per-line failures never surface here.
func (p *Pipeline) batchResearch(ctx context.Context, pending []*entityWork, resultsByKey map[string]model.CompanyResult) error {
	// Phases 2 and 3: all company searches and scrapes, gated.
	g := new(errgroup.Group)
	g.SetLimit(gateSize(p.cfg.Concurrency.Companies))
	for _, work := range pending {
		work := work
		g.Go(func() error {
			p.emit(work.company.Name, model.RunStatusSearching, "")
			work.pages, work.sourceURLs = p.gatherCompanyPages(ctx, work.company)
			return nil
		})
	}
	_ = g.Wait()

	// Phase 4, first job: intelligence extraction for every entity with
	// content.
	var extractItems []llm.BatchItem
	for _, work := range pending {
		prompt, sources := analysis.BuildExtractionPrompt(work.company.Name, work.pages)
		if sources == 0 {
			zap.L().Warn("pipeline: no content to analyze", zap.String("company", work.company.Name))
			continue
		}
		p.emit(work.company.Name, model.RunStatusAnalyzing, "")
		extractItems = append(extractItems, llm.BatchItem{
			CustomID: llm.CorrelationID(work.company.Key(), areaExtract),
			Request:  llm.Request{Prompt: prompt},
		})
	}
	extracted, err := p.runBatchJob(ctx, extractItems)
	if err != nil {
		return err
	}
	for _, work := range pending {
		if text, ok := extracted[llm.CorrelationID(work.company.Key(), areaExtract)]; ok && text != "" {
			work.intel = analysis.ParseIntelligence(text)
		}
		work.domain = companyDomain(work.intel.CompanyOverview.WebsiteURL, work.company.SearchName)
	}

	// Person searches and scrapes need the extracted website domain, so they
	// run between the two jobs.
	g = new(errgroup.Group)
	g.SetLimit(gateSize(p.cfg.Concurrency.Companies))
	for _, work := range pending {
		work := work
		g.Go(func() error {
			p.gatherPeople(ctx, work)
			return nil
		})
	}
	_ = g.Wait()

	// Phase 4, second job: summaries and person profiles.
	var items []llm.BatchItem
	for _, work := range pending {
		if !work.intel.IsEmpty() {
			items = append(items, llm.BatchItem{
				CustomID: llm.CorrelationID(work.company.Key(), areaSummary),
				Request: llm.Request{
					Prompt:    analysis.BuildSummaryPrompt(work.company.Name, work.intel),
					MaxTokens: summaryMaxTokens,
				},
			})
		}
		for _, person := range work.people {
			if person.cached != nil || len(person.pages) == 0 {
				continue
			}
			prompt, sources := analysis.BuildPersonPrompt(person.name, work.company.Name, person.pages)
			if sources == 0 {
				continue
			}
			items = append(items, llm.BatchItem{
				CustomID: llm.CorrelationID(person.cacheKey, areaPerson),
				Request:  llm.Request{Prompt: prompt, MaxTokens: personMaxTokens},
			})
		}
	}
	analyzed, err := p.runBatchJob(ctx, items)
	if err != nil {
		return err
	}

	// Phases 5 and 6: assembly, CRM hydration, scoring, cache writes.
	for _, work := range pending {
		if text := analyzed[llm.CorrelationID(work.company.Key(), areaSummary)]; text != "" {
			work.summary = analysis.ParseSummary(text)
		}
		resultsByKey[work.company.Key()] = p.assembleBatchResult(ctx, work, analyzed)
		p.emit(work.company.Name, model.RunStatusComplete, "")
	}
	return nil
}

// gatherPeople searches and scrapes evidence for each of a company's people,
// honoring the person cache.
func (p *Pipeline) gatherPeople(ctx context.Context, work *entityWork) {
	if len(work.company.People) == 0 {
		return
	}

	teamContent := p.teamPageContent(ctx, work.domain)
	work.people = make([]personWork, len(work.company.People))
	for i, name := range work.company.People {
		person := personWork{name: name, cacheKey: cache.PersonKey(name, work.company.Name)}

		if !p.forceRefresh && p.deps.Store != nil {
			var cached model.PersonProfile
			if p.deps.Store.Get(ctx, cache.NamespacePerson, person.cacheKey, &cached) && cached.Name != "" {
				person.cached = &cached
				work.people[i] = person
				continue
			}
		}

		results := p.runSearches(ctx, search.PersonQueries(name, work.company.SearchName, work.domain), personSearchResults)
		person.pages, person.linkedIn = p.personPages(ctx, name, work.company, results, work.domain, teamContent)
		work.people[i] = person
	}
}

// assembleBatchResult builds the final result for one entity from the demuxed
// batch output and writes the caches.
func (p *Pipeline) assembleBatchResult(ctx context.Context, work *entityWork, analyzed map[string]string) model.CompanyResult {
	profiles := make([]model.PersonProfile, 0, len(work.people))
	for _, person := range work.people {
		var profile model.PersonProfile
		switch {
		case person.cached != nil:
			profile = *person.cached
		default:
			if text := analyzed[llm.CorrelationID(person.cacheKey, areaPerson)]; text != "" {
				profile = analysis.ParsePerson(text, person.name, work.company.Name)
			} else {
				profile = model.PersonProfile{Name: person.name, CurrentCompany: work.company.Name}
			}
			if li := contactLinkedIn(work.company.Contacts, person.name); li != "" {
				profile.LinkedInURL = li
			} else if person.linkedIn != "" {
				profile.LinkedInURL = person.linkedIn
			}
			if email := contactEmail(work.company.Contacts, person.name); email != "" {
				profile.Email = email
			}
			for _, page := range person.pages {
				if page.Content != "" {
					profile.SourceURLs = append(profile.SourceURLs, page.URL)
				}
			}
			if p.deps.Store != nil {
				cacheable := profile
				cacheable.StripVolatile()
				p.deps.Store.Set(ctx, cache.NamespacePerson, person.cacheKey, cacheable)
			}
		}
		profiles = append(profiles, profile)
	}

	result := model.CompanyResult{
		Company:        work.company,
		Intelligence:   work.intel,
		Summary:        work.summary,
		PersonProfiles: profiles,
		SourceURLs:     work.sourceURLs,
		ProcessedAt:    time.Now(),
	}

	p.emit(work.company.Name, model.RunStatusEnriching, "")
	p.hydrateCRM(ctx, &result)
	result.FitScore = analysis.ComputeFitScore(result.Intelligence)
	p.writeCompanyCache(ctx, result)
	return result
}

// runBatchJob submits one batch job and records estimated token usage. Batch
// output carries no usage numbers, so tokens are estimated at four characters
// each.
func (p *Pipeline) runBatchJob(ctx context.Context, items []llm.BatchItem) (map[string]string, error) {
	if len(items) == 0 {
		return map[string]string{}, nil
	}

	results, err := p.deps.Batch.Run(ctx, items)
	if err != nil {
		return nil, err
	}

	if p.deps.Tracker != nil {
		for _, item := range items {
			inTokens := len(item.Request.Prompt) / 4
			outTokens := len(results[item.CustomID]) / 4
			p.deps.Tracker.Completion(p.cfg.OpenAI.Model, true, inTokens, outTokens)
		}
	}
	return results, nil
}

// unfinished lists the pending companies that have no result yet.
func unfinished(pending []*entityWork, resultsByKey map[string]model.CompanyResult) []model.CompanyInput {
	var companies []model.CompanyInput
	for _, work := range pending {
		if _, ok := resultsByKey[work.company.Key()]; !ok {
			companies = append(companies, work.company)
		}
	}
	return companies
}
