package model

import "time"

// CompanyResult is the complete output for one company.
type CompanyResult struct {
	Company        CompanyInput        `json:"company"`
	Intelligence   CompanyIntelligence `json:"intelligence"`
	Summary        CompanySummary      `json:"summary"`
	FitScore       FitScore            `json:"fit_score"`
	PersonProfiles []PersonProfile     `json:"person_profiles,omitempty"`
	SFAccount      *SFAccountInfo      `json:"sf_account,omitempty"`
	SourceURLs     []string            `json:"source_urls,omitempty"`
	ProcessedAt    time.Time           `json:"processed_at"`
	FromCache      bool                `json:"from_cache,omitempty"`
	Error          string              `json:"error,omitempty"`
}

// ErrorResult builds a result recording a per-company failure.
func ErrorResult(company CompanyInput, err error) CompanyResult {
	return CompanyResult{
		Company:     company,
		ProcessedAt: time.Now(),
		Error:       err.Error(),
	}
}

// StripVolatile clears CRM-sourced fields and the fit score before the result
// is written to the durable cache.
func (r *CompanyResult) StripVolatile() {
	r.SFAccount = nil
	r.FitScore = FitScore{}
	for i := range r.PersonProfiles {
		r.PersonProfiles[i].StripVolatile()
	}
}

// RunReport summarizes a multi-company run.
type RunReport struct {
	Results   []CompanyResult `json:"results"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	FromCache int             `json:"from_cache"`
	Elapsed   time.Duration   `json:"elapsed"`
}

// Tally recomputes the counters from the result list.
func (r *RunReport) Tally() {
	r.Succeeded, r.Failed, r.FromCache = 0, 0, 0
	for _, res := range r.Results {
		switch {
		case res.Error != "":
			r.Failed++
		case res.FromCache:
			r.FromCache++
			r.Succeeded++
		default:
			r.Succeeded++
		}
	}
}
