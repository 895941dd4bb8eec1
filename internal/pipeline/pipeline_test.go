package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-research/internal/config"
	"github.com/sells-group/company-research/internal/llm"
	"github.com/sells-group/company-research/internal/model"
	"github.com/sells-group/company-research/internal/search"
	"github.com/sells-group/company-research/pkg/apollo"
	"github.com/sells-group/company-research/pkg/salesforce"
)

const extractionJSON = `{
  "companyOverview": {
    "companyName": "Crestline Partners",
    "companyType": "Private Credit Fund",
    "aum": "$12 billion",
    "websiteURL": "https://crestline.com"
  },
  "recentActivity": {
    "fundRaisings": ["Closed Fund IV at $2B (March 2025)"],
    "majorAnnouncements": ["Opened Dallas office (January 2025)"]
  },
  "investmentStrategy": {
    "lendingTypes": ["direct lending", "unitranche"],
    "facilityStructures": ["first lien"],
    "syndicationApproach": ["lead arranger"]
  },
  "investmentCriteria": {
    "checkSizes": ["$25M-$150M"]
  },
  "portfolioHighlights": {
    "recentDeals": ["Provided $80M facility to Acme Industrial"]
  }
}`

const summaryJSON = `{
  "overview": "Crestline Partners is a $12B private credit fund.",
  "credit_focus": "Direct lending and unitranche, typically as lead arranger.",
  "notable_details": "Recently closed Fund IV at $2B."
}`

const personJSON = `{
  "currentTitle": null,
  "currentCompany": "Crestline Partners LP",
  "tenureCurrent": "Since 2019",
  "priorExperience": [
    {"firm": "Bigbank Capital", "title": "VP", "duration": "2014-2019"}
  ],
  "education": [
    {"school": "Wharton", "degree": "MBA", "graduationYear": "2014"}
  ],
  "bioSummary": "Credit investor focused on sponsor-backed direct lending."
}`

type fakeSearcher struct {
	byPurpose map[string][]model.SearchResult
	defaults  []model.SearchResult
}

func (f *fakeSearcher) Search(_ context.Context, q search.Query, _ int) []model.SearchResult {
	if results, ok := f.byPurpose[q.Purpose]; ok {
		return results
	}
	return f.defaults
}

type fakeExtractor struct {
	content map[string]string
}

func (f *fakeExtractor) Extract(_ context.Context, ranked model.RankedURL, _ string) model.ScrapedPage {
	content, ok := f.content[ranked.URL]
	if !ok {
		return model.ScrapedPage{URL: ranked.URL, Title: ranked.Title, Error: "fetch_failed"}
	}
	return model.ScrapedPage{
		URL:           ranked.URL,
		Title:         ranked.Title,
		Content:       content,
		ContentLength: len(content),
		QualityScore:  50,
	}
}

type fakeLLM struct {
	mu      sync.Mutex
	calls   int
	failFor string // fail prompts mentioning this string
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.failFor != "" && strings.Contains(req.Prompt, f.failFor) {
		return nil, eris.New("provider unavailable")
	}

	var text string
	switch {
	case strings.Contains(req.Prompt, "intelligence profile"):
		text = extractionJSON
	case strings.Contains(req.Prompt, "**COMPANY DATA:**"):
		text = summaryJSON
	case strings.Contains(req.Prompt, "Extract professional background"):
		text = personJSON
	}
	return &llm.Response{Text: text, Model: "test-model", InputTokens: 100, OutputTokens: 50}, nil
}

type fakeBatch struct {
	mu   sync.Mutex
	jobs [][]llm.BatchItem
	err  error
}

func (f *fakeBatch) Run(_ context.Context, items []llm.BatchItem) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		f.jobs = append(f.jobs, nil)
		return nil, f.err
	}
	f.jobs = append(f.jobs, items)

	out := make(map[string]string, len(items))
	for _, item := range items {
		_, area := llm.SplitCorrelationID(item.CustomID)
		switch area {
		case areaExtract:
			out[item.CustomID] = extractionJSON
		case areaSummary:
			out[item.CustomID] = summaryJSON
		case areaPerson:
			out[item.CustomID] = personJSON
		}
	}
	return out, nil
}

func (f *fakeBatch) jobCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

type fakeCRM struct {
	account *model.SFAccountInfo
	history map[string]*salesforce.ContactHistory
}

func (f *fakeCRM) LookupContact(_ context.Context, email string) (*salesforce.ContactHistory, error) {
	return f.history[email], nil
}

func (f *fakeCRM) LookupAccount(_ context.Context, _ string) (*model.SFAccountInfo, error) {
	return f.account, nil
}

type fakeApollo struct {
	match *apollo.Person
}

func (f *fakeApollo) SearchPeople(_ context.Context, _ apollo.PeopleSearchRequest) (*apollo.SearchResponse, error) {
	return &apollo.SearchResponse{}, nil
}

func (f *fakeApollo) SearchOrganizations(_ context.Context, _ apollo.OrgSearchRequest) (*apollo.SearchResponse, error) {
	return &apollo.SearchResponse{}, nil
}

func (f *fakeApollo) MatchPerson(_ context.Context, _ apollo.MatchRequest) (*apollo.Person, error) {
	return f.match, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Concurrency: config.ConcurrencyConfig{Companies: 2, Searches: 2, Scrapes: 4, LLMCalls: 2},
		Search:      config.SearchConfig{MaxResultsPerQuery: 5, TopURLs: 5, PersonTopURLs: 3},
		OpenAI:      config.OpenAIConfig{Model: "gpt-4o-mini"},
	}
}

func testCompany() model.CompanyInput {
	return model.CompanyInput{
		Name:       "Crestline Partners LP",
		SearchName: "Crestline Partners",
		People:     []string{"Jane Doe"},
		Contacts:   []model.Contact{{Name: "Jane Doe", Email: "jane@crestline.com"}},
	}
}

func testDeps(llmClient llm.Client) Deps {
	return Deps{
		Searcher: &fakeSearcher{
			defaults: []model.SearchResult{
				{URL: "https://crestline.com/about", Title: "About Crestline", Position: 1},
				{URL: "https://news.example.com/crestline-fund", Title: "Crestline closes Fund IV", Position: 2},
			},
			byPurpose: map[string][]model.SearchResult{
				"person_at_company": {
					{URL: "https://www.linkedin.com/in/jane-doe", Title: "Jane Doe - LinkedIn", Snippet: "Managing Director at Crestline Partners", Position: 1},
					{URL: "https://crestline.com/team/jane-doe", Title: "Jane Doe | Crestline", Position: 2},
				},
				"person_company_site": {},
				"person_industry":     {},
				"team_directory":      {},
			},
		},
		Ranker: search.NewRanker(nil),
		Extractor: &fakeExtractor{content: map[string]string{
			"https://crestline.com/about":             strings.Repeat("Crestline Partners direct lending. ", 20),
			"https://news.example.com/crestline-fund": strings.Repeat("Fund IV closed at $2 billion. ", 20),
			"https://crestline.com/team/jane-doe":     strings.Repeat("Jane Doe leads origination. ", 20),
		}},
		LLM:   llmClient,
		State: llm.NewProviderState(),
	}
}

func TestResearchCompany_FullFlow(t *testing.T) {
	t.Parallel()

	deps := testDeps(&fakeLLM{})
	deps.CRM = &fakeCRM{
		account: &model.SFAccountInfo{AccountID: "001xx", AccountName: "Crestline Partners LP"},
		history: map[string]*salesforce.ContactHistory{
			"jane@crestline.com": {
				Status:           "Working",
				Title:            "Managing Director",
				LastActivityDate: "2025-06-01",
				Activities: []model.InteractionRecord{
					{Date: "2025-06-01", ActivityType: "Call", Subject: "Intro call"},
				},
			},
		},
	}

	p := New(testConfig(), deps)
	result := p.ResearchCompany(context.Background(), testCompany())

	require.Empty(t, result.Error)
	assert.Equal(t, "$12 billion", result.Intelligence.CompanyOverview.AUM)
	assert.Equal(t, "Crestline Partners is a $12B private credit fund.", result.Summary.Overview)
	assert.Positive(t, result.FitScore.Total)
	assert.NotEmpty(t, result.FitScore.Rating)
	assert.Contains(t, result.SourceURLs, "https://crestline.com/about")

	require.NotNil(t, result.SFAccount)
	assert.Equal(t, "001xx", result.SFAccount.AccountID)

	require.Len(t, result.PersonProfiles, 1)
	profile := result.PersonProfiles[0]
	assert.Equal(t, "Jane Doe", profile.Name)
	assert.Equal(t, "jane@crestline.com", profile.Email)
	assert.Equal(t, "https://www.linkedin.com/in/jane-doe", profile.LinkedInURL)
	assert.Equal(t, "Managing Director", profile.CurrentTitle) // CRM fills the title gap
	assert.Equal(t, "Working", profile.SFStatus)
	require.Len(t, profile.Interactions, 1)
	assert.Equal(t, "Intro call", profile.Interactions[0].Subject)
	assert.Contains(t, profile.SourceURLs, snippetPageURL)
}

func TestResearchCompany_LLMFailureIsRecorded(t *testing.T) {
	t.Parallel()

	p := New(testConfig(), testDeps(&fakeLLM{failFor: "Crestline"}))
	result := p.ResearchCompany(context.Background(), testCompany())

	assert.NotEmpty(t, result.Error)
	assert.Contains(t, result.Error, "Crestline Partners LP")
}

func TestRun_EntityIsolation(t *testing.T) {
	t.Parallel()

	companies := []model.CompanyInput{
		testCompany(),
		{Name: "Doomed Capital", SearchName: "Doomed Capital"},
	}
	p := New(testConfig(), testDeps(&fakeLLM{failFor: "Doomed"}))

	report := p.Run(context.Background(), companies)

	require.Len(t, report.Results, 2)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, report.Results[0].Error)
	assert.NotEmpty(t, report.Results[1].Error)
	assert.Equal(t, "Doomed Capital", report.Results[1].Company.Name)
}

func TestRunBatch_TwoJobsCoverAllAreas(t *testing.T) {
	t.Parallel()

	batch := &fakeBatch{}
	deps := testDeps(&fakeLLM{})
	deps.Batch = batch

	p := New(testConfig(), deps)
	report := p.RunBatch(context.Background(), []model.CompanyInput{testCompany()})

	require.Len(t, report.Results, 1)
	result := report.Results[0]
	require.Empty(t, result.Error)
	assert.Equal(t, "$12 billion", result.Intelligence.CompanyOverview.AUM)
	assert.Equal(t, "Recently closed Fund IV at $2B.", result.Summary.NotableDetails)
	assert.Positive(t, result.FitScore.Total)
	require.Len(t, result.PersonProfiles, 1)
	assert.Equal(t, "Since 2019", result.PersonProfiles[0].TenureCurrent)

	require.Equal(t, 2, batch.jobCount())

	areas := func(items []llm.BatchItem) []string {
		var out []string
		for _, item := range items {
			_, area := llm.SplitCorrelationID(item.CustomID)
			out = append(out, area)
		}
		return out
	}
	assert.Equal(t, []string{areaExtract}, areas(batch.jobs[0]))
	assert.ElementsMatch(t, []string{areaSummary, areaPerson}, areas(batch.jobs[1]))
}

func TestRunBatch_InfrastructureFailureFallsBackToSerial(t *testing.T) {
	t.Parallel()

	batch := &fakeBatch{err: eris.New("batch submit failed")}
	deps := testDeps(&fakeLLM{})
	deps.Batch = batch

	p := New(testConfig(), deps)
	report := p.RunBatch(context.Background(), []model.CompanyInput{testCompany()})

	require.Len(t, report.Results, 1)
	assert.Empty(t, report.Results[0].Error)
	assert.Equal(t, "$12 billion", report.Results[0].Intelligence.CompanyOverview.AUM)
	assert.Equal(t, 1, batch.jobCount()) // gave up after the first failure
}

func TestRunBatch_DisabledUsesSerial(t *testing.T) {
	t.Parallel()

	batch := &fakeBatch{}
	cfg := testConfig()
	cfg.Batch.Disabled = true
	deps := testDeps(&fakeLLM{})
	deps.Batch = batch

	p := New(cfg, deps)
	report := p.RunBatch(context.Background(), []model.CompanyInput{testCompany()})

	require.Len(t, report.Results, 1)
	assert.Empty(t, report.Results[0].Error)
	assert.Zero(t, batch.jobCount())
}

func TestHydrateProfile_ApolloFillsGaps(t *testing.T) {
	t.Parallel()

	deps := testDeps(&fakeLLM{})
	deps.Apollo = &fakeApollo{match: &apollo.Person{
		Email:       "jdoe@crestline.com",
		EmailStatus: "verified",
		Title:       "Director of Credit",
		LinkedInURL: "https://www.linkedin.com/in/jdoe",
	}}
	deps.CRM = &fakeCRM{history: map[string]*salesforce.ContactHistory{
		"jdoe@crestline.com": {Status: "Contacted"},
	}}
	p := New(testConfig(), deps)

	profile := model.PersonProfile{Name: "John Doe"}
	company := model.CompanyInput{Name: "Crestline Partners LP", SearchName: "Crestline Partners"}
	p.hydrateProfile(context.Background(), &profile, company)

	assert.Equal(t, "jdoe@crestline.com", profile.Email)
	assert.Equal(t, "Director of Credit", profile.CurrentTitle)
	assert.Equal(t, "https://www.linkedin.com/in/jdoe", profile.LinkedInURL)
	assert.Equal(t, "Contacted", profile.SFStatus) // CRM looked up with the Apollo email
}

func TestHydrateProfile_UnavailableApolloEmailIgnored(t *testing.T) {
	t.Parallel()

	deps := testDeps(&fakeLLM{})
	deps.Apollo = &fakeApollo{match: &apollo.Person{Email: "guess@x.com", EmailStatus: "unavailable"}}
	p := New(testConfig(), deps)

	profile := model.PersonProfile{Name: "John Doe"}
	p.hydrateProfile(context.Background(), &profile, model.CompanyInput{Name: "X"})

	assert.Empty(t, profile.Email)
}

func TestEvents_PhaseTransitionsObserved(t *testing.T) {
	t.Parallel()

	events := make(chan Event, 32)
	deps := testDeps(&fakeLLM{})
	deps.Events = events

	p := New(testConfig(), deps)
	p.ResearchCompany(context.Background(), testCompany())
	close(events)

	var statuses []model.RunStatus
	for ev := range events {
		assert.Equal(t, "Crestline Partners LP", ev.Entity)
		statuses = append(statuses, ev.Status)
	}
	assert.Contains(t, statuses, model.RunStatusSearching)
	assert.Contains(t, statuses, model.RunStatusScraping)
	assert.Contains(t, statuses, model.RunStatusAnalyzing)
	assert.Contains(t, statuses, model.RunStatusEnriching)
	assert.Equal(t, model.RunStatusComplete, statuses[len(statuses)-1])
}

func TestEvents_FullObserverNeverBlocks(t *testing.T) {
	t.Parallel()

	events := make(chan Event) // unbuffered, no reader
	deps := testDeps(&fakeLLM{})
	deps.Events = events

	p := New(testConfig(), deps)
	result := p.ResearchCompany(context.Background(), testCompany())
	assert.Empty(t, result.Error)
}

func TestSplitName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		full  string
		first string
		last  string
	}{
		{"Jane Doe", "Jane", "Doe"},
		{"Jane van der Berg", "Jane", "Berg"},
		{"Madonna", "Madonna", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		first, last := splitName(tt.full)
		assert.Equal(t, tt.first, first)
		assert.Equal(t, tt.last, last)
	}
}

func TestCompanyDomain(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "crestline.com", companyDomain("https://www.crestline.com/about", "Other Name"))
	assert.Equal(t, "crestline.com", companyDomain("", "Crestline Partners"))
	assert.Equal(t, "crestline.com", companyDomain("www.crestline.com", "Other Name"))
}

func TestSnippetPage(t *testing.T) {
	t.Parallel()

	results := []model.SearchResult{
		{URL: "https://www.linkedin.com/in/jane", Title: "Jane Doe - LinkedIn", Snippet: "MD at Crestline"},
		{URL: "https://example.com/article", Title: "A very long article title that should definitely be truncated at fifty characters", Snippet: "Jane spoke on a panel"},
		{URL: "https://example.com/empty", Title: "No snippet here"},
	}

	page := snippetPage("Jane Doe", results)
	assert.Equal(t, snippetPageURL, page.URL)
	assert.Contains(t, page.Content, "[LinkedIn] MD at Crestline")
	assert.Contains(t, page.Content, "Jane spoke on a panel")
	assert.NotContains(t, page.Content, "No snippet here")

	empty := snippetPage("Jane Doe", nil)
	assert.Empty(t, empty.Content)
}

func TestSnippetPage_TitleCutKeepsRunesIntact(t *testing.T) {
	t.Parallel()

	// 61 bytes of mostly two-byte runes; the 50-byte cut lands mid-rune.
	title := "Q" + strings.Repeat("é", 30)
	page := snippetPage("Jane Doe", []model.SearchResult{
		{URL: "https://example.com/a", Title: title, Snippet: "Jane spoke on a panel"},
	})

	assert.True(t, utf8.ValidString(page.Content))
	assert.Contains(t, page.Content, "[Q"+strings.Repeat("é", 24)+"]")
}
