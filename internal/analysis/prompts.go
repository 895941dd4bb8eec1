package analysis

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/company-research/internal/model"
)

// CombineContent merges scraped pages into a single source-numbered document.
// Pages without content are skipped but still count toward the "of N" total so
// source numbers stay aligned with the page list. Returns the document and the
// number of usable sources.
func CombineContent(pages []model.ScrapedPage) (string, int) {
	var sections []string
	valid := 0

	separator := strings.Repeat("=", 80)
	for _, page := range pages {
		if page.Content == "" {
			continue
		}
		valid++
		sections = append(sections, fmt.Sprintf(
			"\n%s\nSOURCE %d of %d\nURL: %s\nPAGE TITLE: %s\n%s\n\n%s\n",
			separator, valid, len(pages), page.URL, page.Title, separator, page.Content,
		))
	}

	return strings.Join(sections, "\n"), valid
}

const extractionPromptTemplate = `You are analyzing %[1]s to create a comprehensive intelligence profile for a private credit research tool.

**CRITICAL RULES:**
1. Extract ONLY information explicitly stated in the provided content
2. NEVER infer, assume, or generate information not present in the sources
3. When uncertain, omit the data point - empty fields are better than wrong data
4. Use null for missing singular values, [] for missing arrays, false for missing booleans
5. For recent news: ONLY include items where you can identify a specific event AND at least an approximate timeframe
6. Today's date is %[2]s - prioritize news from the last 12-18 months

**========================================**
**CONTENT TO ANALYZE**
**========================================**

You are analyzing content from %[3]d different web pages about %[1]s:

%[4]s

**========================================**
**REQUIRED OUTPUT STRUCTURE**
**========================================**

Respond with ONLY valid JSON (no markdown, no explanations):

{
  "companyOverview": {
    "companyName": null,
    "companyType": null,
    "businessModel": [],
    "assetBackedFocus": false,
    "aum": null,
    "aumType": null,
    "founded": null,
    "employees": null,
    "headquarters": null,
    "officeLocations": [],
    "websiteURL": null
  },

  "recentActivity": {
    "acquisitions": [],
    "partnerships": [],
    "fundRaisings": [],
    "majorAnnouncements": [],
    "executiveChanges": []
  },

  "investmentStrategy": {
    "lendingTypes": [],
    "facilityStructures": [],
    "dealTypes": [],
    "sponsorTypes": [],
    "syndicationApproach": [],
    "geographicFocus": [],
    "industryFocus": []
  },

  "investmentCriteria": {
    "checkSizes": [],
    "dealSizeRanges": [],
    "ebitdaThresholds": [],
    "revenueRequirements": []
  },

  "portfolioHighlights": {
    "recentDeals": [],
    "notableCompanies": []
  }
}

**========================================**
**CRITICAL FIELDS - SEARCH THOROUGHLY**
**========================================**

These fields are the MOST IMPORTANT. Search ALL provided content carefully for any mention of:

**lendingTypes**: What types of credit do they provide? Look for mentions of:
  First Lien, Unitranche, Second Lien, Mezzanine, Senior Secured, Subordinated, PIK, NAV Financing, Asset-Based Lending, Revolving Credit, Stretch Senior, Split Lien
  Also check for: "we provide...", "our lending solutions", "credit strategies", "investment strategies include"

**facilityStructures**: What structures do they use?
  Term Loan, Revolver, Delayed Draw, Bridge, Unitranche Facility, Club Deal, Bilateral
  Look for: "facility types", "structures we offer", "financing solutions"

**dealTypes**: What kinds of deals do they do?
  LBO, Buyout, Growth Capital, Refinancing, Recapitalization, Add-On Acquisition, Dividend Recap, M&A Financing, Sponsor Finance, Non-Sponsor
  Look for: "we finance...", "transaction types", "deal types"

**checkSizes**: How much do they lend per deal?
  Look for: "$X million", "hold sizes", "check sizes", "commitment sizes", "we can hold up to"
  Format as: "$10M-$50M", "Up to $300 million", etc.

**ebitdaThresholds**: What size companies do they target?
  Look for: "EBITDA of $X+", "minimum EBITDA", "target EBITDA range"

**geographicFocus**: Where do they invest?
  Look for: "North America", "US", "United States", "Europe", "global", regional mentions

**aum**: Assets under management - look for the MOST RECENT figure.
  PRIORITIZE private credit / direct lending AUM if available. Only use total AUM if no private credit-specific figure is found.
  Format: "$X billion" or "$X million"

**aumType**: Set to "Private Credit" if the aum figure is specific to their private credit / direct lending business.
  Set to "Total" if the figure represents total firm-wide AUM across all strategies.
  This distinction is critical for accurate reporting.

**founded**: Year the company was founded. Look for "founded in", "established", "since YYYY"

**========================================**
**FIELD DEFINITIONS**
**========================================**

**companyType**: PRIMARY business classification based on what the content explicitly says about the company:
  "Direct Lender", "Private Credit Manager", "Private Equity Firm", "Multi-Strategy",
  "BDC", "Asset Manager", "CLO Manager", "Investment Consultant", "Law Firm",
  "Pension Fund", "Insurance Company", or null if unclear.
  Do NOT guess - only classify if the content clearly describes their business

**businessModel**: Array of ALL distinct strategies/platforms mentioned

**aum**: Most recent figure - prefer private credit AUM over total AUM
**aumType**: "Private Credit" or "Total" - indicates what the aum figure represents

**Recent Activity**: Each item MUST include timeframe. Format: "Month Year - Description [Source N]"
  where N is the SOURCE number from the content above that contains this information.

**sponsorTypes**: ["Sponsored", "Private Equity Sponsored", "Non-Sponsored", "Founder-Owned"]

**syndicationApproach**: ["Lead Arranger", "Sole Lender", "Club Deal", "Broadly Syndicated", "Bilateral"]

**recentDeals**: Format: "Company Name - Deal Type - $Amount if stated [Source N]" (max 10)

**notableCompanies**: Just company names (max 20)

**========================================**
**OUTPUT REQUIREMENTS**
**========================================**

1. Respond with ONLY the JSON object (no ` + "```" + `json blocks, no explanations)
2. All string values must use proper quotes
3. Use null for missing singular fields
4. Use [] for missing array fields
5. Prioritize most recent/credible information when conflicts exist

Extract all information now:`

// BuildExtractionPrompt assembles the structured-extraction prompt over the
// scraped pages. The returned count is the number of usable sources; callers
// skip the LLM call entirely when it is zero.
func BuildExtractionPrompt(companyName string, pages []model.ScrapedPage) (string, int) {
	combined, sources := CombineContent(pages)
	if sources == 0 {
		return "", 0
	}
	today := time.Now().Format("January 2, 2006")
	return fmt.Sprintf(extractionPromptTemplate, companyName, today, sources, combined), sources
}

// BuildSummaryPrompt assembles the summary prompt from validated intelligence.
// It only ever sees structured data, never raw page text.
func BuildSummaryPrompt(companyName string, intel model.CompanyIntelligence) string {
	overview := intel.CompanyOverview
	strategy := intel.InvestmentStrategy
	criteria := intel.InvestmentCriteria
	recent := intel.RecentActivity
	portfolio := intel.PortfolioHighlights

	var news []string
	news = append(news, recent.Acquisitions...)
	news = append(news, recent.Partnerships...)
	news = append(news, recent.FundRaisings...)
	news = append(news, recent.MajorAnnouncements...)
	news = append(news, recent.ExecutiveChanges...)
	newsBlock := "  No recent activity found"
	if len(news) > 0 {
		lines := make([]string, len(news))
		for i, item := range news {
			lines[i] = "  - " + item
		}
		newsBlock = strings.Join(lines, "\n")
	}

	recentDeals := portfolio.RecentDeals
	if len(recentDeals) > 5 {
		recentDeals = recentDeals[:5]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Summarize %s for a sales research brief. Use ONLY the validated data below - do not fabricate.\n\n", companyName)
	b.WriteString("**COMPANY DATA:**\n")
	fmt.Fprintf(&b, "- Name: %s\n", orDefault(overview.CompanyName, companyName))
	fmt.Fprintf(&b, "- Type: %s\n", orDefault(overview.CompanyType, "Unknown"))
	fmt.Fprintf(&b, "- Business Model: %s\n", fmtList(overview.BusinessModel))
	fmt.Fprintf(&b, "- AUM: %s\n", orDefault(overview.AUM, "Not found"))
	fmt.Fprintf(&b, "- Founded: %s\n", orDefault(overview.Founded, "Not found"))
	fmt.Fprintf(&b, "- HQ: %s\n", orDefault(overview.Headquarters, "Not found"))
	fmt.Fprintf(&b, "- Lending Types: %s\n", fmtList(strategy.LendingTypes))
	fmt.Fprintf(&b, "- Structures: %s\n", fmtList(strategy.FacilityStructures))
	fmt.Fprintf(&b, "- Deal Types: %s\n", fmtList(strategy.DealTypes))
	fmt.Fprintf(&b, "- Check Sizes: %s\n", fmtList(criteria.CheckSizes))
	fmt.Fprintf(&b, "- EBITDA Thresholds: %s\n", fmtList(criteria.EBITDAThresholds))
	fmt.Fprintf(&b, "- Geography: %s\n", fmtList(strategy.GeographicFocus))
	fmt.Fprintf(&b, "- Industries: %s\n", fmtList(strategy.IndustryFocus))
	fmt.Fprintf(&b, "- Recent Deals: %s\n", fmtList(recentDeals))
	fmt.Fprintf(&b, "- Recent News:\n%s\n\n", newsBlock)
	b.WriteString("**OUTPUT:** Respond with ONLY valid JSON (no markdown):\n\n")
	fmt.Fprintf(&b, `{
  "overview": "3-4 sentences: what %[1]s does, their scale, market positioning",
  "credit_focus": "2-3 sentences: their private credit / lending approach, strategies, deal preferences",
  "notable_details": "2-3 sentences: anything else noteworthy - recent activity, growth signals, unique aspects"
}`, companyName)
	b.WriteString("\n\nBe factual and concise. If data is missing, say so briefly rather than guessing.")
	return b.String()
}

const personPromptTemplate = `Extract professional background information for %[1]s who works at %[2]s.

**CONTENT TO ANALYZE:**

%[3]s

**RULES:**
1. Extract ONLY information explicitly stated in the content - NEVER invent or guess
2. Do NOT fabricate titles, dates, companies, education, or career details
3. If information is not found, use null or empty arrays - empty is always better than wrong
4. Do NOT generate a bioSummary if you have no real facts about the person - return null instead
5. Do NOT guess titles like "Managing Director" or "Partner" unless explicitly stated in the content

**OUTPUT:** Respond with ONLY valid JSON (no markdown):

{
  "currentTitle": null,
  "currentCompany": "%[2]s",
  "tenureCurrent": null,
  "linkedinUrl": null,
  "priorExperience": [
    {
      "firm": "Previous Company Name",
      "title": "Their Title",
      "duration": "YYYY-YYYY (X years)",
      "highlights": ["Notable accomplishment or responsibility"]
    }
  ],
  "education": [
    {
      "school": "University Name",
      "degree": "MBA, BS Finance, etc.",
      "graduationYear": "YYYY"
    }
  ],
  "bioSummary": "2-3 sentence summary of their career trajectory and expertise"
}

**FIELD NOTES:**
- **currentTitle**: Their current job title at %[2]s
- **tenureCurrent**: How long they've been at %[2]s, e.g. "3 years" or "Since 2019"
- **linkedinUrl**: Their LinkedIn profile URL if found in the content (e.g. https://linkedin.com/in/...)
- **priorExperience**: Previous jobs, most recent first. Include firm name, title, duration, and any notable highlights
- **education**: Schools, degrees, graduation years
- **bioSummary**: Brief professional summary based on the facts found

Extract information for %[1]s now:`

// BuildPersonPrompt assembles the person-profile extraction prompt. The
// returned count is zero when no page had content.
func BuildPersonPrompt(personName, companyName string, pages []model.ScrapedPage) (string, int) {
	combined, sources := CombineContent(pages)
	if sources == 0 {
		return "", 0
	}
	return fmt.Sprintf(personPromptTemplate, personName, companyName, combined), sources
}

func fmtList(items []string) string {
	if len(items) == 0 {
		return "Not identified"
	}
	return strings.Join(items, ", ")
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
