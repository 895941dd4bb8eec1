package analysis

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/company-research/internal/model"
)

var (
	fenceOpenJSONRe = regexp.MustCompile("^```json\\s*")
	fenceOpenRe     = regexp.MustCompile("^```\\s*")
	fenceCloseRe    = regexp.MustCompile("\\s*```\\s*$")
)

// ExtractJSON pulls the first valid JSON object out of an LLM response.
// Handles code fences, leading/trailing prose, and multiple JSON blocks. When
// no valid object is found the cleaned text is returned as-is and the caller's
// decode fails normally.
func ExtractJSON(text string) string {
	cleaned := strings.TrimSpace(text)
	cleaned = fenceOpenJSONRe.ReplaceAllString(cleaned, "")
	cleaned = fenceOpenRe.ReplaceAllString(cleaned, "")
	cleaned = fenceCloseRe.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)

	if json.Valid([]byte(cleaned)) {
		return cleaned
	}

	start := strings.IndexByte(cleaned, '{')
	if start == -1 {
		return cleaned
	}

	// Scan to the matching close brace, ignoring braces inside strings.
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(cleaned); i++ {
		c := cleaned[i]
		if escape {
			escape = false
			continue
		}
		switch {
		case c == '\\':
			escape = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				candidate := cleaned[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate
				}
				return cleaned
			}
		}
	}

	return cleaned
}

// Intermediate decode types matching the camelCase keys the prompts demand.
// The model types use snake_case tags for cache and report serialization.

type rawOverview struct {
	CompanyName      string   `json:"companyName"`
	CompanyType      string   `json:"companyType"`
	BusinessModel    []string `json:"businessModel"`
	AssetBackedFocus bool     `json:"assetBackedFocus"`
	AUM              string   `json:"aum"`
	AUMType          string   `json:"aumType"`
	Founded          string   `json:"founded"`
	Employees        string   `json:"employees"`
	Headquarters     string   `json:"headquarters"`
	OfficeLocations  []string `json:"officeLocations"`
	WebsiteURL       string   `json:"websiteURL"`
}

type rawRecentActivity struct {
	Acquisitions       []string `json:"acquisitions"`
	Partnerships       []string `json:"partnerships"`
	FundRaisings       []string `json:"fundRaisings"`
	MajorAnnouncements []string `json:"majorAnnouncements"`
	ExecutiveChanges   []string `json:"executiveChanges"`
}

type rawStrategy struct {
	LendingTypes        []string `json:"lendingTypes"`
	FacilityStructures  []string `json:"facilityStructures"`
	DealTypes           []string `json:"dealTypes"`
	SponsorTypes        []string `json:"sponsorTypes"`
	SyndicationApproach []string `json:"syndicationApproach"`
	GeographicFocus     []string `json:"geographicFocus"`
	IndustryFocus       []string `json:"industryFocus"`
}

type rawCriteria struct {
	CheckSizes          []string `json:"checkSizes"`
	DealSizeRanges      []string `json:"dealSizeRanges"`
	EBITDAThresholds    []string `json:"ebitdaThresholds"`
	RevenueRequirements []string `json:"revenueRequirements"`
}

type rawPortfolio struct {
	RecentDeals      []string `json:"recentDeals"`
	NotableCompanies []string `json:"notableCompanies"`
}

// ParseIntelligence decodes an extraction response into CompanyIntelligence.
// Each of the five areas decodes independently so a malformed section loses
// only itself; a fully undecodable response yields the empty value, never an
// error.
func ParseIntelligence(text string) model.CompanyIntelligence {
	cleaned := ExtractJSON(text)

	var sections map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &sections); err != nil {
		zap.L().Error("analysis: undecodable extraction response",
			zap.Error(err),
			zap.String("preview", preview(cleaned, 200)),
		)
		return model.CompanyIntelligence{}
	}

	var intel model.CompanyIntelligence

	var overview rawOverview
	if decodeSection(sections, "companyOverview", &overview) {
		intel.CompanyOverview = model.CompanyOverview{
			CompanyName:      overview.CompanyName,
			CompanyType:      overview.CompanyType,
			BusinessModel:    overview.BusinessModel,
			AssetBackedFocus: overview.AssetBackedFocus,
			AUM:              overview.AUM,
			AUMType:          overview.AUMType,
			Founded:          overview.Founded,
			Employees:        overview.Employees,
			Headquarters:     overview.Headquarters,
			OfficeLocations:  overview.OfficeLocations,
			WebsiteURL:       overview.WebsiteURL,
		}
	}

	var recent rawRecentActivity
	if decodeSection(sections, "recentActivity", &recent) {
		intel.RecentActivity = model.RecentActivity{
			Acquisitions:       recent.Acquisitions,
			Partnerships:       recent.Partnerships,
			FundRaisings:       recent.FundRaisings,
			MajorAnnouncements: recent.MajorAnnouncements,
			ExecutiveChanges:   recent.ExecutiveChanges,
		}
	}

	var strategy rawStrategy
	if decodeSection(sections, "investmentStrategy", &strategy) {
		intel.InvestmentStrategy = model.InvestmentStrategy{
			LendingTypes:        strategy.LendingTypes,
			FacilityStructures:  strategy.FacilityStructures,
			DealTypes:           strategy.DealTypes,
			SponsorTypes:        strategy.SponsorTypes,
			SyndicationApproach: strategy.SyndicationApproach,
			GeographicFocus:     strategy.GeographicFocus,
			IndustryFocus:       strategy.IndustryFocus,
		}
	}

	var criteria rawCriteria
	if decodeSection(sections, "investmentCriteria", &criteria) {
		intel.InvestmentCriteria = model.InvestmentCriteria{
			CheckSizes:          criteria.CheckSizes,
			DealSizeRanges:      criteria.DealSizeRanges,
			EBITDAThresholds:    criteria.EBITDAThresholds,
			RevenueRequirements: criteria.RevenueRequirements,
		}
	}

	var portfolio rawPortfolio
	if decodeSection(sections, "portfolioHighlights", &portfolio) {
		intel.PortfolioHighlights = model.PortfolioHighlights{
			RecentDeals:      portfolio.RecentDeals,
			NotableCompanies: portfolio.NotableCompanies,
		}
	}

	return intel
}

func decodeSection(sections map[string]json.RawMessage, key string, out any) bool {
	raw, ok := sections[key]
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		zap.L().Warn("analysis: dropping malformed section",
			zap.String("section", key),
			zap.Error(err),
		)
		return false
	}
	return true
}

// ParseSummary decodes a summary response. An undecodable response degrades to
// the first 500 characters of raw text in the overview slot so something still
// reaches the report.
func ParseSummary(text string) model.CompanySummary {
	cleaned := ExtractJSON(text)

	var summary model.CompanySummary
	if err := json.Unmarshal([]byte(cleaned), &summary); err != nil {
		zap.L().Warn("analysis: undecodable summary response", zap.Error(err))
		return model.CompanySummary{Overview: preview(text, 500)}
	}
	return summary
}

type rawExperience struct {
	Firm       string   `json:"firm"`
	Title      string   `json:"title"`
	Duration   string   `json:"duration"`
	Highlights []string `json:"highlights"`
}

type rawEducation struct {
	School         string `json:"school"`
	Degree         string `json:"degree"`
	GraduationYear string `json:"graduationYear"`
}

type rawPerson struct {
	CurrentTitle    string          `json:"currentTitle"`
	CurrentCompany  string          `json:"currentCompany"`
	TenureCurrent   string          `json:"tenureCurrent"`
	LinkedInURL     string          `json:"linkedinUrl"`
	PriorExperience []rawExperience `json:"priorExperience"`
	Education       []rawEducation  `json:"education"`
	BioSummary      string          `json:"bioSummary"`
}

// ParsePerson decodes a person-extraction response. Failures yield a profile
// carrying only the known name and company.
func ParsePerson(text, personName, companyName string) model.PersonProfile {
	fallback := model.PersonProfile{Name: personName, CurrentCompany: companyName}

	cleaned := ExtractJSON(text)
	var raw rawPerson
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		zap.L().Warn("analysis: undecodable person response",
			zap.String("person", personName),
			zap.Error(err),
		)
		return fallback
	}

	profile := model.PersonProfile{
		Name:           personName,
		CurrentTitle:   raw.CurrentTitle,
		CurrentCompany: orDefault(raw.CurrentCompany, companyName),
		TenureCurrent:  raw.TenureCurrent,
		BioSummary:     cleanBio(raw.BioSummary),
		LinkedInURL:    raw.LinkedInURL,
	}
	for _, exp := range raw.PriorExperience {
		if exp.Firm == "" {
			continue
		}
		profile.PriorExperience = append(profile.PriorExperience, model.WorkExperience{
			Firm:       exp.Firm,
			Title:      exp.Title,
			Duration:   exp.Duration,
			Highlights: exp.Highlights,
		})
	}
	for _, edu := range raw.Education {
		if edu.School == "" {
			continue
		}
		profile.Education = append(profile.Education, model.Education{
			School:         edu.School,
			Degree:         edu.Degree,
			GraduationYear: edu.GraduationYear,
		})
	}
	return profile
}

// bioSkipPhrases are LLM placeholder responses that are not real bios.
var bioSkipPhrases = []string{
	"no professional background",
	"no information found",
	"not found in the provided",
	"no details available",
	"does not contain any information",
	"could not find",
	"no data available",
	"no biographical",
}

func cleanBio(bio string) string {
	lower := strings.ToLower(bio)
	for _, phrase := range bioSkipPhrases {
		if strings.Contains(lower, phrase) {
			return ""
		}
	}
	return bio
}

func preview(text string, n int) string {
	if len(text) <= n {
		return text
	}
	// Cut on a rune boundary.
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}
