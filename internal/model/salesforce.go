package model

// SFOpportunity is one open or historical opportunity on the account.
type SFOpportunity struct {
	Name        string   `json:"name,omitempty"`
	Stage       string   `json:"stage,omitempty"`
	Amount      string   `json:"amount,omitempty"` // formatted, e.g. "$1,500,000"
	CloseDate   string   `json:"close_date,omitempty"`
	Owner       string   `json:"owner,omitempty"`
	Probability string   `json:"probability,omitempty"`
	OppType     string   `json:"opp_type,omitempty"`
	NextStep    string   `json:"next_step,omitempty"`
	Roadblocks  string   `json:"roadblocks,omitempty"`
	Description string   `json:"description,omitempty"`
	OppNotes    []string `json:"opp_notes,omitempty"`
}

// SFAccountInfo is account-level CRM context, fetched fresh on every run.
type SFAccountInfo struct {
	AccountID        string          `json:"account_id,omitempty"`
	AccountName      string          `json:"account_name,omitempty"`
	AccountOwner     string          `json:"account_owner,omitempty"`
	AccountType      string          `json:"account_type,omitempty"`
	Industry         string          `json:"industry,omitempty"`
	LastActivityDate string          `json:"last_activity_date,omitempty"`
	Opportunities    []SFOpportunity `json:"opportunities,omitempty"`
	Notes            []string        `json:"notes,omitempty"`
}
