package model

import "time"

// Contact is a person attached to a company in the input file.
type Contact struct {
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	LinkedInURL string `json:"linkedin_url,omitempty"`
}

// CompanyInput is one company to research, as parsed from the input file.
type CompanyInput struct {
	Name       string    `json:"company_name"`
	SearchName string    `json:"search_name"` // cleaned name (no Inc/LLC suffixes) used in queries
	Domain     string    `json:"domain,omitempty"`
	People     []string  `json:"people,omitempty"`
	Contacts   []Contact `json:"contacts,omitempty"`
}

// Key returns the cache key form of the company name.
func (c CompanyInput) Key() string {
	return NormalizeName(c.Name)
}

// RunStatus represents the state of a research run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusSearching RunStatus = "searching"
	RunStatusScraping  RunStatus = "scraping"
	RunStatusAnalyzing RunStatus = "analyzing"
	RunStatusEnriching RunStatus = "enriching"
	RunStatusComplete  RunStatus = "complete"
	RunStatusFailed    RunStatus = "failed"
)

// Run tracks one company's progress through the pipeline, for the serve API.
type Run struct {
	ID        string         `json:"id"`
	Company   CompanyInput   `json:"company"`
	Status    RunStatus      `json:"status"`
	Result    *CompanyResult `json:"result,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
