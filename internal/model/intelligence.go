package model

// CompanyOverview holds basic facts extracted from scraped pages.
type CompanyOverview struct {
	CompanyName      string   `json:"company_name,omitempty"`
	CompanyType      string   `json:"company_type,omitempty"`
	BusinessModel    []string `json:"business_model,omitempty"`
	AssetBackedFocus bool     `json:"asset_backed_focus,omitempty"`
	AUM              string   `json:"aum,omitempty"`
	AUMType          string   `json:"aum_type,omitempty"` // "Private Credit" or "Total"
	Founded          string   `json:"founded,omitempty"`
	Employees        string   `json:"employees,omitempty"`
	Headquarters     string   `json:"headquarters,omitempty"`
	OfficeLocations  []string `json:"office_locations,omitempty"`
	WebsiteURL       string   `json:"website_url,omitempty"`
}

// RecentActivity holds news-derived signals.
type RecentActivity struct {
	Acquisitions       []string `json:"acquisitions,omitempty"`
	Partnerships       []string `json:"partnerships,omitempty"`
	FundRaisings       []string `json:"fund_raisings,omitempty"`
	MajorAnnouncements []string `json:"major_announcements,omitempty"`
	ExecutiveChanges   []string `json:"executive_changes,omitempty"`
}

// InvestmentStrategy describes how the firm deploys capital.
type InvestmentStrategy struct {
	LendingTypes        []string `json:"lending_types,omitempty"`
	FacilityStructures  []string `json:"facility_structures,omitempty"`
	DealTypes           []string `json:"deal_types,omitempty"`
	SponsorTypes        []string `json:"sponsor_types,omitempty"`
	SyndicationApproach []string `json:"syndication_approach,omitempty"`
	GeographicFocus     []string `json:"geographic_focus,omitempty"`
	IndustryFocus       []string `json:"industry_focus,omitempty"`
}

// InvestmentCriteria holds stated deal parameters.
type InvestmentCriteria struct {
	CheckSizes          []string `json:"check_sizes,omitempty"`
	DealSizeRanges      []string `json:"deal_size_ranges,omitempty"`
	EBITDAThresholds    []string `json:"ebitda_thresholds,omitempty"`
	RevenueRequirements []string `json:"revenue_requirements,omitempty"`
}

// PortfolioHighlights lists known deals and portfolio companies.
type PortfolioHighlights struct {
	RecentDeals      []string `json:"recent_deals,omitempty"`
	NotableCompanies []string `json:"notable_companies,omitempty"`
}

// CompanyIntelligence is the structured output of per-area LLM analysis.
type CompanyIntelligence struct {
	CompanyOverview     CompanyOverview     `json:"company_overview"`
	RecentActivity      RecentActivity      `json:"recent_activity"`
	InvestmentStrategy  InvestmentStrategy  `json:"investment_strategy"`
	InvestmentCriteria  InvestmentCriteria  `json:"investment_criteria"`
	PortfolioHighlights PortfolioHighlights `json:"portfolio_highlights"`
}

// IsEmpty reports whether no analysis area produced anything. Cached profiles
// with empty intelligence are re-researched rather than served.
func (ci CompanyIntelligence) IsEmpty() bool {
	o := ci.CompanyOverview
	if o.CompanyName != "" || o.CompanyType != "" || o.AUM != "" || o.Headquarters != "" ||
		len(o.BusinessModel) > 0 || len(o.OfficeLocations) > 0 {
		return false
	}
	r := ci.RecentActivity
	if len(r.Acquisitions)+len(r.Partnerships)+len(r.FundRaisings)+
		len(r.MajorAnnouncements)+len(r.ExecutiveChanges) > 0 {
		return false
	}
	s := ci.InvestmentStrategy
	if len(s.LendingTypes)+len(s.FacilityStructures)+len(s.DealTypes)+
		len(s.SponsorTypes)+len(s.SyndicationApproach)+len(s.GeographicFocus)+
		len(s.IndustryFocus) > 0 {
		return false
	}
	c := ci.InvestmentCriteria
	if len(c.CheckSizes)+len(c.DealSizeRanges)+len(c.EBITDAThresholds)+
		len(c.RevenueRequirements) > 0 {
		return false
	}
	p := ci.PortfolioHighlights
	if len(p.RecentDeals)+len(p.NotableCompanies) > 0 {
		return false
	}
	return true
}

// CompanySummary is the prose summary generated from the intelligence.
type CompanySummary struct {
	Overview       string `json:"overview,omitempty"`
	CreditFocus    string `json:"credit_focus,omitempty"`
	NotableDetails string `json:"notable_details,omitempty"`
}

// FitScore is the deterministic 0-100 fit rating.
type FitScore struct {
	Total              int    `json:"total"`
	Rating             string `json:"rating"` // High, Medium, Low
	DealVolume         int    `json:"deal_volume"`
	StrategyComplexity int    `json:"strategy_complexity"`
	GrowthTrajectory   int    `json:"growth_trajectory"`
	ProductFit         int    `json:"product_fit"`
}
