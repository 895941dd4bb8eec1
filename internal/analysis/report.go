package analysis

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/company-research/internal/model"
)

// sourceMarkerRe matches the "[Source N]" citations the extraction prompt asks
// the model to attach to news and deal items.
var sourceMarkerRe = regexp.MustCompile(`\s*\[Source (\d+)\]`)

var monthIndex = map[string]int{
	"january": 1, "february": 2, "march": 3, "april": 4,
	"may": 5, "june": 6, "july": 7, "august": 8,
	"september": 9, "october": 10, "november": 11, "december": 12,
}

var quarterIndex = map[string]int{"q1": 2, "q2": 5, "q3": 8, "q4": 11}

var (
	quarterRe   = regexp.MustCompile(`^(q[1-4])\s+(\d{4})`)
	monthYearRe = regexp.MustCompile(`^(\w+)\s+(\d{4})`)
	yearSpanRe  = regexp.MustCompile(`(\d{4})\s*-\s*(\d{4})`)
	bareYearRe  = regexp.MustCompile(`^(?:approximately\s+)?(\d{4})\s`)
)

// newsSortKey extracts a (year, month) ordering key from a news item's leading
// timeframe. Items with no recognizable date sort last.
func newsSortKey(item string) (int, int) {
	text := strings.ToLower(strings.TrimSpace(item))
	if m := quarterRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[2])
		return year, quarterIndex[m[1]]
	}
	if m := monthYearRe.FindStringSubmatch(text); m != nil {
		if month, ok := monthIndex[m[1]]; ok {
			year, _ := strconv.Atoi(m[2])
			return year, month
		}
	}
	if m := yearSpanRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[2])
		return year, 6
	}
	if m := bareYearRe.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[1])
		return year, 6
	}
	return 0, 0
}

// sortNewsReverseChrono orders news items newest first by their embedded
// timeframe. The sort is stable so equally-dated items keep extraction order.
func sortNewsReverseChrono(items []string) []string {
	sorted := make([]string, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		yi, mi := newsSortKey(sorted[i])
		yj, mj := newsSortKey(sorted[j])
		if yi != yj {
			return yi > yj
		}
		return mi > mj
	})
	return sorted
}

// linkifySources rewrites "[Source N]" markers as markdown links into the
// numbered source list, or strips them when no sources are available.
func linkifySources(text string, sourceURLs []string) string {
	if len(sourceURLs) == 0 {
		return sourceMarkerRe.ReplaceAllString(text, "")
	}
	return sourceMarkerRe.ReplaceAllStringFunc(text, func(marker string) string {
		m := sourceMarkerRe.FindStringSubmatch(marker)
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(sourceURLs) {
			return marker
		}
		return fmt.Sprintf(" [[%d]](%s)", n, sourceURLs[n-1])
	})
}

func domainLabel(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 40 {
			return rawURL[:40]
		}
		return rawURL
	}
	return strings.TrimPrefix(parsed.Host, "www.")
}

// RenderCompany renders one company result as a markdown research brief:
// overview stats, fit breakdown, CRM context, news, strategy and criteria,
// deals, summary, people, and numbered sources.
func RenderCompany(result model.CompanyResult) string {
	intel := result.Intelligence
	overview := intel.CompanyOverview
	strategy := intel.InvestmentStrategy
	criteria := intel.InvestmentCriteria
	fit := result.FitScore

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", result.Company.Name)

	if result.Error != "" {
		fmt.Fprintf(&b, "> Research failed: %s\n", result.Error)
		return b.String()
	}

	fmt.Fprintf(&b, "**Fit: %d/100 (%s)** - deal volume %d, strategy %d, growth %d, product fit %d\n\n",
		fit.Total, fit.Rating, fit.DealVolume, fit.StrategyComplexity, fit.GrowthTrajectory, fit.ProductFit)

	writeStat := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "- **%s:** %s\n", label, value)
		}
	}
	aumLabel := "AUM"
	switch overview.AUMType {
	case "Private Credit":
		aumLabel = "Private Credit AUM"
	case "Total":
		aumLabel = "Total AUM"
	}
	writeStat(aumLabel, overview.AUM)
	writeStat("Type", overview.CompanyType)
	writeStat("Founded", overview.Founded)
	writeStat("HQ", overview.Headquarters)
	writeStat("Employees", overview.Employees)
	b.WriteString("\n")

	if intel.IsEmpty() {
		b.WriteString("> Insufficient data - intelligence extraction returned nothing. Re-run with --force-refresh.\n\n")
	}

	if sf := result.SFAccount; sf != nil {
		b.WriteString("## Salesforce Account\n\n")
		writeStat("Owner", sf.AccountOwner)
		writeStat("Account Type", sf.AccountType)
		writeStat("Last Activity", sf.LastActivityDate)
		b.WriteString("\n")
		if len(sf.Opportunities) > 0 {
			b.WriteString("### Opportunities\n\n")
			b.WriteString("| Name | Stage | Amount | Close Date | Owner |\n")
			b.WriteString("|---|---|---|---|---|\n")
			for _, opp := range sf.Opportunities {
				fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
					opp.Name, opp.Stage, opp.Amount, opp.CloseDate, opp.Owner)
			}
			b.WriteString("\n")
			for _, opp := range sf.Opportunities {
				if opp.NextStep != "" {
					fmt.Fprintf(&b, "- %s next step: %s\n", opp.Name, opp.NextStep)
				}
				if opp.Roadblocks != "" {
					fmt.Fprintf(&b, "- %s roadblocks: %s\n", opp.Name, opp.Roadblocks)
				}
			}
			b.WriteString("\n")
		}
		if len(sf.Notes) > 0 {
			b.WriteString("### Account Notes\n\n")
			for _, note := range sf.Notes {
				fmt.Fprintf(&b, "> %s\n\n", note)
			}
		}
	}

	var news []string
	news = append(news, intel.RecentActivity.FundRaisings...)
	news = append(news, intel.RecentActivity.MajorAnnouncements...)
	news = append(news, intel.RecentActivity.Acquisitions...)
	news = append(news, intel.RecentActivity.Partnerships...)
	news = append(news, intel.RecentActivity.ExecutiveChanges...)
	if len(news) > 0 {
		b.WriteString("## Recent Activity\n\n")
		for _, item := range sortNewsReverseChrono(news) {
			fmt.Fprintf(&b, "- %s\n", linkifySources(item, result.SourceURLs))
		}
		b.WriteString("\n")
	}

	writeList := func(label string, items []string) {
		if len(items) > 0 {
			fmt.Fprintf(&b, "- **%s:** %s\n", label, strings.Join(items, ", "))
		}
	}
	if len(strategy.LendingTypes)+len(strategy.FacilityStructures)+len(strategy.DealTypes)+
		len(strategy.SponsorTypes)+len(strategy.SyndicationApproach) > 0 {
		b.WriteString("## Investment Strategy\n\n")
		writeList("Lending Types", strategy.LendingTypes)
		writeList("Structures", strategy.FacilityStructures)
		writeList("Deal Types", strategy.DealTypes)
		writeList("Sponsor Focus", strategy.SponsorTypes)
		writeList("Syndication", strategy.SyndicationApproach)
		b.WriteString("\n")
	}
	if len(criteria.CheckSizes)+len(criteria.EBITDAThresholds)+
		len(strategy.IndustryFocus)+len(strategy.GeographicFocus) > 0 {
		b.WriteString("## Investment Criteria\n\n")
		writeList("Check Sizes", criteria.CheckSizes)
		writeList("EBITDA Thresholds", criteria.EBITDAThresholds)
		writeList("Industry Focus", strategy.IndustryFocus)
		writeList("Geography", strategy.GeographicFocus)
		b.WriteString("\n")
	}

	if deals := intel.PortfolioHighlights.RecentDeals; len(deals) > 0 {
		b.WriteString("## Recent Transactions\n\n")
		if len(deals) > 10 {
			deals = deals[:10]
		}
		for _, deal := range deals {
			fmt.Fprintf(&b, "- %s\n", linkifySources(deal, result.SourceURLs))
		}
		b.WriteString("\n")
	}

	summary := result.Summary
	if summary.Overview != "" || summary.CreditFocus != "" || summary.NotableDetails != "" {
		b.WriteString("## Summary\n\n")
		if summary.Overview != "" {
			fmt.Fprintf(&b, "**Overview.** %s\n\n", summary.Overview)
		}
		if summary.CreditFocus != "" {
			fmt.Fprintf(&b, "**Credit Focus.** %s\n\n", summary.CreditFocus)
		}
		if summary.NotableDetails != "" {
			fmt.Fprintf(&b, "**Notable.** %s\n\n", summary.NotableDetails)
		}
	}

	if len(result.PersonProfiles) > 0 {
		b.WriteString("## People\n\n")
		for _, person := range result.PersonProfiles {
			renderPerson(&b, person)
		}
	}

	if len(result.SourceURLs) > 0 {
		b.WriteString("## Sources\n\n")
		for i, src := range result.SourceURLs {
			fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, domainLabel(src), src)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func renderPerson(b *strings.Builder, person model.PersonProfile) {
	title := person.CurrentTitle
	if title == "" {
		title = "No title"
	}
	fmt.Fprintf(b, "### %s - %s\n\n", person.Name, title)
	if person.Email != "" {
		fmt.Fprintf(b, "- Email: %s\n", person.Email)
	}
	if person.LinkedInURL != "" {
		fmt.Fprintf(b, "- LinkedIn: %s\n", person.LinkedInURL)
	}
	if person.SFStatus != "" {
		fmt.Fprintf(b, "- CRM status: %s\n", person.SFStatus)
	}
	if person.LastContacted != "" {
		fmt.Fprintf(b, "- Last contacted: %s\n", person.LastContacted)
	}
	if person.BioSummary != "" {
		fmt.Fprintf(b, "\n%s\n", person.BioSummary)
	}

	if person.CurrentTitle != "" && person.CurrentCompany != "" || len(person.PriorExperience) > 0 {
		b.WriteString("\n**Experience**\n\n")
		if person.CurrentTitle != "" && person.CurrentCompany != "" {
			tenure := ""
			if person.TenureCurrent != "" {
				tenure = fmt.Sprintf(" (%s)", person.TenureCurrent)
			}
			fmt.Fprintf(b, "- %s, %s%s - current\n", person.CurrentTitle, person.CurrentCompany, tenure)
		}
		for _, exp := range person.PriorExperience {
			expTitle := exp.Title
			if expTitle == "" {
				expTitle = "Role"
			}
			duration := ""
			if exp.Duration != "" {
				duration = fmt.Sprintf(" (%s)", exp.Duration)
			}
			fmt.Fprintf(b, "- %s, %s%s\n", expTitle, exp.Firm, duration)
			for _, highlight := range exp.Highlights {
				fmt.Fprintf(b, "  - %s\n", highlight)
			}
		}
	}

	if len(person.Education) > 0 {
		b.WriteString("\n**Education**\n\n")
		for _, edu := range person.Education {
			line := edu.School
			if edu.Degree != "" {
				line = edu.Degree + ", " + edu.School
			}
			if edu.GraduationYear != "" {
				line += " (" + edu.GraduationYear + ")"
			}
			fmt.Fprintf(b, "- %s\n", line)
		}
	}

	if len(person.Interactions) > 0 {
		b.WriteString("\n**CRM History**\n\n")
		interactions := person.Interactions
		if len(interactions) > 10 {
			interactions = interactions[:10]
		}
		for _, it := range interactions {
			line := it.ActivityType
			if it.Date != "" {
				line = it.Date + " " + line
			}
			if it.Subject != "" {
				line += ": " + it.Subject
			}
			fmt.Fprintf(b, "- %s\n", line)
		}
	}
	b.WriteString("\n")
}

// RenderRunReport renders a multi-company run as one markdown document with a
// scoreboard up top, highest fit first.
func RenderRunReport(report model.RunReport) string {
	var b strings.Builder

	b.WriteString("# Research Run\n\n")
	fmt.Fprintf(&b, "%d companies: %d succeeded (%d from cache), %d failed. Elapsed %s.\n\n",
		len(report.Results), report.Succeeded, report.FromCache, report.Failed,
		report.Elapsed.Round(time.Second))

	ordered := make([]model.CompanyResult, len(report.Results))
	copy(ordered, report.Results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].FitScore.Total > ordered[j].FitScore.Total
	})

	b.WriteString("| Company | Fit | Rating | Contacts | Status |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, result := range ordered {
		status := "ok"
		switch {
		case result.Error != "":
			status = "failed"
		case result.FromCache:
			status = "cached"
		}
		fmt.Fprintf(&b, "| %s | %d | %s | %d | %s |\n",
			result.Company.Name, result.FitScore.Total, result.FitScore.Rating,
			len(result.PersonProfiles), status)
	}
	b.WriteString("\n---\n\n")

	for _, result := range ordered {
		b.WriteString(RenderCompany(result))
		b.WriteString("\n---\n\n")
	}
	return b.String()
}
