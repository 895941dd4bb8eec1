package analysis

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/company-research/internal/model"
)

// ComputeFitScore derives a deterministic 0-100 fit score from extracted
// intelligence. No LLM involvement, so cached profiles rescore instantly when
// the weights change.
//
// Four categories, 25 points each: deal volume (AUM, recent deal activity),
// strategy complexity (lending types, structures, syndication role), growth
// trajectory (news momentum, fund raises), product fit (company type, check
// sizes).
func ComputeFitScore(intel model.CompanyIntelligence) model.FitScore {
	overview := intel.CompanyOverview
	strategy := intel.InvestmentStrategy
	criteria := intel.InvestmentCriteria
	recent := intel.RecentActivity
	portfolio := intel.PortfolioHighlights

	dealScore := 0
	if aumBillions, ok := parseAUMBillions(overview.AUM); ok {
		switch {
		case aumBillions >= 10:
			dealScore += 20
		case aumBillions >= 2:
			dealScore += 15
		case aumBillions >= 0.5:
			dealScore += 10
		default:
			dealScore += 5
		}
	}
	switch dealCount := len(portfolio.RecentDeals); {
	case dealCount >= 5:
		dealScore += 5
	case dealCount >= 2:
		dealScore += 3
	case dealCount >= 1:
		dealScore++
	}
	dealVolume := min(25, dealScore)

	stratScore := 0
	stratScore += min(10, len(strategy.LendingTypes)*2)
	stratScore += min(8, len(strategy.FacilityStructures)*2)
	switch {
	case syndicationMentions(strategy.SyndicationApproach, "lead"):
		stratScore += 7
	case syndicationMentions(strategy.SyndicationApproach, "sole"):
		stratScore += 5
	case syndicationMentions(strategy.SyndicationApproach, "club"):
		stratScore += 4
	case syndicationMentions(strategy.SyndicationApproach, "bilateral"):
		stratScore += 3
	}
	strategyComplexity := min(25, stratScore)

	growthScore := 0
	totalNews := len(recent.FundRaisings) + len(recent.Acquisitions) +
		len(recent.Partnerships) + len(recent.MajorAnnouncements) +
		len(recent.ExecutiveChanges)
	switch {
	case totalNews >= 4:
		growthScore += 12
	case totalNews >= 2:
		growthScore += 8
	case totalNews >= 1:
		growthScore += 4
	}
	if len(recent.FundRaisings) > 0 {
		growthScore += 8
	}
	if len(recent.ExecutiveChanges) > 0 {
		growthScore += 5
	}
	growthTrajectory := min(25, growthScore)

	fit := 0
	companyType := strings.ToLower(overview.CompanyType)
	switch {
	case strings.Contains(companyType, "direct lend") || strings.Contains(companyType, "private credit"):
		fit += 15
	case strings.Contains(companyType, "bdc") || strings.Contains(companyType, "business development"):
		fit += 12
	case strings.Contains(companyType, "clo"):
		fit += 10
	case strings.Contains(companyType, "multi-strategy") || strings.Contains(companyType, "multi strategy"):
		fit += 8
	case strings.Contains(companyType, "asset manager") || strings.Contains(companyType, "alternative"):
		fit += 7
	case strings.Contains(companyType, "private equity"):
		fit += 5
	}
	if overview.AssetBackedFocus {
		fit = max(0, fit-3)
	}
	for _, checkSize := range criteria.CheckSizes {
		low, high, ok := parseDollarRange(checkSize)
		if !ok {
			continue
		}
		if (low >= 10 && low <= 500) || (high >= 10 && high <= 500) {
			fit += 10
			break
		}
	}
	productFit := min(25, max(0, fit))

	total := dealVolume + strategyComplexity + growthTrajectory + productFit
	rating := "Low"
	switch {
	case total >= 70:
		rating = "High"
	case total >= 40:
		rating = "Medium"
	}

	return model.FitScore{
		Total:              total,
		Rating:             rating,
		DealVolume:         dealVolume,
		StrategyComplexity: strategyComplexity,
		GrowthTrajectory:   growthTrajectory,
		ProductFit:         productFit,
	}
}

func syndicationMentions(approaches []string, marker string) bool {
	for _, a := range approaches {
		if strings.Contains(strings.ToLower(a), marker) {
			return true
		}
	}
	return false
}

var (
	aumBillionsRe  = regexp.MustCompile(`\$?([\d.]+)\s*(billion|b\b|bn\b)`)
	aumMillionsRe  = regexp.MustCompile(`\$?([\d.]+)\s*(million|m\b|mm\b)`)
	aumTrillionsRe = regexp.MustCompile(`\$?([\d.]+)\s*(trillion|t\b)`)

	dollarRangeRe = regexp.MustCompile(`\$?([\d.]+)\s*(million|billion|m|mm|b|bn)?\s*[-–to]+\s*\$?([\d.]+)\s*(million|billion|m|mm|b|bn)?`)
	dollarUpToRe  = regexp.MustCompile(`up\s+to\s+\$?([\d.]+)\s*(million|billion|m|mm|b|bn)?`)
	dollarSoloRe  = regexp.MustCompile(`\$?([\d.]+)\s*(million|billion|m|mm|b|bn)`)
)

// parseAUMBillions parses an AUM string like "$12.5 billion" or "$750M" into
// billions.
func parseAUMBillions(aum string) (float64, bool) {
	if aum == "" {
		return 0, false
	}
	text := strings.ToLower(aum)
	text = strings.ReplaceAll(text, ",", "")
	text = strings.ReplaceAll(text, "+", "")
	text = strings.TrimSpace(text)

	if m := aumBillionsRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v, true
		}
	}
	if m := aumMillionsRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v / 1000, true
		}
	}
	if m := aumTrillionsRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			return v * 1000, true
		}
	}
	return 0, false
}

// parseDollarRange parses check-size strings like "$10M-$50M", "Up to $300
// million", or "$25M+" into a (low, high) pair in millions. A bare figure is
// treated as the low end with a 5x assumed ceiling.
func parseDollarRange(text string) (low, high float64, ok bool) {
	text = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(text, ",", "")))

	toMillions := func(num, unit string) (float64, bool) {
		v, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, false
		}
		if strings.Contains(unit, "billion") || unit == "b" || unit == "bn" {
			return v * 1000, true
		}
		return v, true
	}

	if m := dollarRangeRe.FindStringSubmatch(text); m != nil {
		lowUnit := m[2]
		if lowUnit == "" {
			lowUnit = "m"
		}
		highUnit := m[4]
		if highUnit == "" {
			highUnit = lowUnit
		}
		l, lok := toMillions(m[1], lowUnit)
		h, hok := toMillions(m[3], highUnit)
		if lok && hok {
			return l, h, true
		}
	}
	if m := dollarUpToRe.FindStringSubmatch(text); m != nil {
		unit := m[2]
		if unit == "" {
			unit = "m"
		}
		if v, vok := toMillions(m[1], unit); vok {
			return 0, v, true
		}
	}
	if m := dollarSoloRe.FindStringSubmatch(text); m != nil {
		if v, vok := toMillions(m[1], m[2]); vok {
			return v, v * 5, true
		}
	}
	return 0, 0, false
}
