package model

// WorkExperience is one prior role on a person profile.
type WorkExperience struct {
	Firm       string   `json:"firm"`
	Title      string   `json:"title,omitempty"`
	Duration   string   `json:"duration,omitempty"` // e.g. "2019-2022 (3 years)"
	Highlights []string `json:"highlights,omitempty"`
}

// Education is one school entry on a person profile.
type Education struct {
	School         string `json:"school"`
	Degree         string `json:"degree,omitempty"`
	GraduationYear string `json:"graduation_year,omitempty"`
}

// InteractionRecord is one CRM activity against a person.
type InteractionRecord struct {
	Date         string `json:"date,omitempty"`
	ActivityType string `json:"activity_type,omitempty"` // Call, Email, Meeting, Task
	Subject      string `json:"subject,omitempty"`
	Notes        string `json:"notes,omitempty"`
	Owner        string `json:"owner,omitempty"`
}

// PersonProfile is the researched profile of one person.
type PersonProfile struct {
	Name            string              `json:"name"`
	Email           string              `json:"email,omitempty"`
	CurrentTitle    string              `json:"current_title,omitempty"`
	CurrentCompany  string              `json:"current_company,omitempty"`
	TenureCurrent   string              `json:"tenure_current,omitempty"`
	PriorExperience []WorkExperience    `json:"prior_experience,omitempty"`
	Education       []Education         `json:"education,omitempty"`
	BioSummary      string              `json:"bio_summary,omitempty"`
	LinkedInURL     string              `json:"linkedin_url,omitempty"`
	SourceURLs      []string            `json:"source_urls,omitempty"`
	SFStatus        string              `json:"sf_status,omitempty"`
	LastContacted   string              `json:"last_contacted,omitempty"`
	Interactions    []InteractionRecord `json:"interactions,omitempty"`
}

// StripVolatile clears CRM-sourced fields that must never be cached. They are
// re-hydrated fresh from Salesforce on every run.
func (p *PersonProfile) StripVolatile() {
	p.SFStatus = ""
	p.LastContacted = ""
	p.Interactions = nil
}
