// Package search turns a company or person into a plan of targeted queries,
// executes them against the configured providers, and ranks the resulting
// URLs into a bounded shortlist for scraping.
package search

import (
	"fmt"
	"regexp"
	"strings"
)

// Query is one search to run, tagged with the research purpose it serves.
// The purpose travels with every result so the ranker can reward URLs that
// multiple query angles corroborate.
type Query struct {
	Text    string
	Purpose string
}

// CompanyQueries generates targeted queries for a company, each covering a
// different intelligence angle. maxQueries caps the plan; zero means all.
func CompanyQueries(searchName string, maxQueries int) []Query {
	likelyDomain := GuessDomain(searchName)

	queries := []Query{
		{
			Text:    fmt.Sprintf(`"%s" private credit direct lending`, searchName),
			Purpose: "core_strategy",
		},
		{
			Text:    fmt.Sprintf(`"%s" site:%s credit OR lending OR "direct lending"`, searchName, likelyDomain),
			Purpose: "company_site_credit",
		},
		{
			Text:    fmt.Sprintf(`"%s" AUM OR "assets under management" OR fund OR fundraise`, searchName),
			Purpose: "fund_activity",
		},
		{
			Text:    fmt.Sprintf(`"%s" unitranche OR "first lien" OR "senior secured" OR mezzanine`, searchName),
			Purpose: "deal_structure",
		},
		{
			Text:    fmt.Sprintf(`"%s" portfolio OR "recent transaction" OR deal OR "credit facility"`, searchName),
			Purpose: "portfolio_deals",
		},
		{
			Text:    fmt.Sprintf(`"%s" founded OR history OR "about us" OR team`, searchName),
			Purpose: "about_team",
		},
	}

	if maxQueries > 0 && maxQueries < len(queries) {
		queries = queries[:maxQueries]
	}
	return queries
}

// PersonQueries generates queries for a person at a company. The plan is kept
// to two queries to limit pressure on the free search provider; LinkedIn
// site-search is skipped because its backends block it.
func PersonQueries(personName, companyName, companyDomain string) []Query {
	queries := []Query{
		{
			Text:    fmt.Sprintf(`"%s" "%s"`, personName, companyName),
			Purpose: "person_at_company",
		},
	}

	if companyDomain != "" {
		queries = append(queries, Query{
			Text:    fmt.Sprintf(`site:%s "%s"`, companyDomain, personName),
			Purpose: "person_company_site",
		})
	} else {
		queries = append(queries, Query{
			Text:    fmt.Sprintf(`"%s" private credit OR direct lending`, personName),
			Purpose: "person_industry",
		})
	}
	return queries
}

// TeamPageQuery finds the company's team or professionals directory page.
func TeamPageQuery(companyDomain string) Query {
	return Query{
		Text:    fmt.Sprintf(`site:%s team OR professionals OR people OR "our team" OR leadership`, companyDomain),
		Purpose: "team_directory",
	}
}

var (
	parentheticalRe = regexp.MustCompile(`\s*\([^)]*\)`)
	lpSuffixRe      = regexp.MustCompile(`(?i),?\s*L\.?P\.?$`)
	llcSuffixRe     = regexp.MustCompile(`(?i),?\s*L\.?L\.?C\.?$`)
	legalSuffixRe   = regexp.MustCompile(`(?i)\b(Inc|LLC|LP|Ltd|Corp|Group|Holdings|Partners|` +
		`Capital|Credit|Management|Advisors|Advisory|` +
		`Asset Management|Investments|Investment)\b`)
	nonAlnumRe = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// GuessDomain guesses a company's likely website domain from its name, e.g.
// "Blackstone Credit (fka GSO)" -> "blackstone.com".
func GuessDomain(searchName string) string {
	cleaned := parentheticalRe.ReplaceAllString(searchName, "")
	cleaned = lpSuffixRe.ReplaceAllString(cleaned, "")
	cleaned = llcSuffixRe.ReplaceAllString(cleaned, "")
	cleaned = legalSuffixRe.ReplaceAllString(cleaned, "")
	cleaned = strings.ToLower(nonAlnumRe.ReplaceAllString(cleaned, ""))
	if cleaned == "" {
		cleaned = strings.ToLower(nonAlnumRe.ReplaceAllString(searchName, ""))
	}
	return cleaned + ".com"
}
