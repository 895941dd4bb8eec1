package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/analysis"
	"github.com/sells-group/company-research/internal/cache"
	"github.com/sells-group/company-research/internal/llm"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/search"
	"github.com/sells-group/company-research/pkg/apollo"
)

const (
	summaryMaxTokens = 2000
	personMaxTokens  = 3000

	extractionTemperature = 0.0
	summaryTemperature    = 0.2
)

// ResearchCompany runs the full pipeline for one company. Failures are
// recorded on the result; this never returns an error to the caller so one
// company cannot take down a run.
func (p *Pipeline) ResearchCompany(ctx context.Context, company model.CompanyInput) model.CompanyResult {
	if result, ok := p.cachedCompany(ctx, company); ok {
		p.emit(company.Name, model.RunStatusComplete, "cache")
		return result
	}

	result, err := p.researchCompany(ctx, company)
	if err != nil {
		zap.L().Error("pipeline: company research failed",
			zap.String("company", company.Name),
			zap.Error(err))
		p.emit(company.Name, model.RunStatusFailed, err.Error())
		return model.ErrorResult(company, err)
	}
	p.emit(company.Name, model.RunStatusComplete, "")
	return result
}

func (p *Pipeline) researchCompany(ctx context.Context, company model.CompanyInput) (model.CompanyResult, error) {
	p.emit(company.Name, model.RunStatusSearching, "")
	pages, sourceURLs := p.gatherCompanyPages(ctx, company)

	p.emit(company.Name, model.RunStatusAnalyzing, "")
	intel, err := p.extractIntelligence(ctx, company.Name, pages)
	if err != nil {
		return model.CompanyResult{}, eris.Wrapf(err, "extract intelligence for %s", company.Name)
	}

	summary, err := p.generateSummary(ctx, company.Name, intel)
	if err != nil {
		return model.CompanyResult{}, eris.Wrapf(err, "summarize %s", company.Name)
	}

	domain := companyDomain(intel.CompanyOverview.WebsiteURL, company.SearchName)
	profiles := p.ResearchPeople(ctx, company, domain)

	result := model.CompanyResult{
		Company:        company,
		Intelligence:   intel,
		Summary:        summary,
		PersonProfiles: profiles,
		SourceURLs:     sourceURLs,
		ProcessedAt:    time.Now(),
	}

	p.emit(company.Name, model.RunStatusEnriching, "")
	p.hydrateCRM(ctx, &result)
	result.FitScore = analysis.ComputeFitScore(result.Intelligence)

	p.writeCompanyCache(ctx, result)
	return result, nil
}

// cachedCompany serves a prior result when the cache has one with usable
// intelligence. The fit score and CRM data are always recomputed fresh.
func (p *Pipeline) cachedCompany(ctx context.Context, company model.CompanyInput) (model.CompanyResult, bool) {
	if p.forceRefresh || p.deps.Store == nil {
		return model.CompanyResult{}, false
	}

	var result model.CompanyResult
	if !p.deps.Store.Get(ctx, cache.NamespaceCompany, company.Key(), &result) {
		return model.CompanyResult{}, false
	}
	if result.Intelligence.IsEmpty() {
		zap.L().Info("pipeline: cached result has empty intelligence, re-researching",
			zap.String("company", company.Name))
		return model.CompanyResult{}, false
	}

	result.Company = company
	result.FromCache = true
	result.FitScore = analysis.ComputeFitScore(result.Intelligence)
	p.hydrateCRM(ctx, &result)

	zap.L().Info("pipeline: served from cache", zap.String("company", company.Name))
	return result, true
}

// gatherCompanyPages runs the query plan, ranks the merged results, and
// scrapes the shortlist.
func (p *Pipeline) gatherCompanyPages(ctx context.Context, company model.CompanyInput) ([]model.ScrapedPage, []string) {
	queries := search.CompanyQueries(company.SearchName, 0)
	results := p.runSearches(ctx, queries, p.cfg.Search.MaxResultsPerQuery)
	ranked := p.deps.Ranker.Rank(results, company.SearchName, p.cfg.Search.TopURLs)

	zap.L().Info("pipeline: search complete",
		zap.String("company", company.Name),
		zap.Int("results", len(results)),
		zap.Int("shortlist", len(ranked)))

	p.emit(company.Name, model.RunStatusScraping, "")
	pages := p.scrapeAll(ctx, ranked, company.SearchName)
	good, urls := goodPages(pages)

	zap.L().Info("pipeline: scrape complete",
		zap.String("company", company.Name),
		zap.Int("pages", len(good)),
		zap.Int("attempted", len(pages)))
	return good, urls
}

// extractIntelligence runs the extraction prompt over the scraped pages. No
// scrapable content yields empty intelligence rather than an error; the
// report flags it and the result is not cached as usable.
func (p *Pipeline) extractIntelligence(ctx context.Context, companyName string, pages []model.ScrapedPage) (model.CompanyIntelligence, error) {
	prompt, sources := analysis.BuildExtractionPrompt(companyName, pages)
	if sources == 0 {
		zap.L().Warn("pipeline: no content to analyze", zap.String("company", companyName))
		return model.CompanyIntelligence{}, nil
	}

	temp := extractionTemperature
	text, err := p.complete(ctx, llm.Request{Prompt: prompt, Temperature: &temp})
	if err != nil {
		return model.CompanyIntelligence{}, err
	}
	return analysis.ParseIntelligence(text), nil
}

func (p *Pipeline) generateSummary(ctx context.Context, companyName string, intel model.CompanyIntelligence) (model.CompanySummary, error) {
	if intel.IsEmpty() {
		return model.CompanySummary{}, nil
	}

	temp := summaryTemperature
	text, err := p.complete(ctx, llm.Request{
		Prompt:      analysis.BuildSummaryPrompt(companyName, intel),
		MaxTokens:   summaryMaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return model.CompanySummary{}, err
	}
	return analysis.ParseSummary(text), nil
}

// hydrateCRM fills the volatile CRM fields on a result: the Salesforce
// account and per-person contact history, with Apollo filling identity gaps.
// Runs on both fresh and cached results so CRM data is never stale.
func (p *Pipeline) hydrateCRM(ctx context.Context, result *model.CompanyResult) {
	if p.deps.CRM != nil {
		account, err := p.deps.CRM.LookupAccount(ctx, result.Company.Name)
		if err != nil {
			zap.L().Warn("pipeline: account lookup failed",
				zap.String("company", result.Company.Name),
				zap.Error(err))
		} else {
			result.SFAccount = account
		}
	}

	for i := range result.PersonProfiles {
		p.hydrateProfile(ctx, &result.PersonProfiles[i], result.Company)
	}
}

func (p *Pipeline) hydrateProfile(ctx context.Context, profile *model.PersonProfile, company model.CompanyInput) {
	profile.StripVolatile()

	if profile.Email == "" {
		profile.Email = contactEmail(company.Contacts, profile.Name)
	}

	if p.deps.Apollo != nil && (profile.Email == "" || profile.LinkedInURL == "" || profile.CurrentTitle == "") {
		first, last := splitName(profile.Name)
		match, err := p.deps.Apollo.MatchPerson(ctx, apollo.MatchRequest{
			FirstName:        first,
			LastName:         last,
			OrganizationName: company.SearchName,
			LinkedInURL:      profile.LinkedInURL,
		})
		if err != nil {
			zap.L().Warn("pipeline: apollo match failed",
				zap.String("person", profile.Name),
				zap.Error(err))
		} else if match != nil {
			if profile.Email == "" && match.Email != "" && match.EmailStatus != "unavailable" {
				profile.Email = match.Email
			}
			if profile.LinkedInURL == "" {
				profile.LinkedInURL = match.LinkedInURL
			}
			if profile.CurrentTitle == "" {
				profile.CurrentTitle = match.Title
			}
		}
	}

	if p.deps.CRM == nil || profile.Email == "" {
		return
	}
	history, err := p.deps.CRM.LookupContact(ctx, profile.Email)
	if err != nil {
		zap.L().Warn("pipeline: contact lookup failed",
			zap.String("person", profile.Name),
			zap.Error(err))
		return
	}
	if history == nil {
		return
	}
	profile.SFStatus = history.Status
	profile.LastContacted = history.LastActivityDate
	profile.Interactions = history.Activities
	if profile.CurrentTitle == "" {
		profile.CurrentTitle = history.Title
	}
}

// writeCompanyCache stores the result with volatile CRM fields and the fit
// score stripped; both are recomputed on every read.
func (p *Pipeline) writeCompanyCache(ctx context.Context, result model.CompanyResult) {
	if p.deps.Store == nil || result.Error != "" {
		return
	}
	cacheable := result
	cacheable.PersonProfiles = append([]model.PersonProfile(nil), result.PersonProfiles...)
	cacheable.StripVolatile()
	cacheable.FromCache = false
	p.deps.Store.Set(ctx, cache.NamespaceCompany, result.Company.Key(), cacheable)
}
