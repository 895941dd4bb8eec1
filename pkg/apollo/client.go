// Package apollo provides a client for the Apollo.io people and company
// enrichment API. Apollo is an optional data source: HTTP failures degrade to
// empty results so a missing key or an outage never blocks a research run.
package apollo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	defaultBaseURL = "https://api.apollo.io/api/v1"

	// Apollo throttles aggressively; cap in-flight requests.
	maxConcurrent = 3
)

// Client defines the Apollo API operations used by people research.
type Client interface {
	// SearchPeople finds people via the mixed_people/search endpoint.
	SearchPeople(ctx context.Context, req PeopleSearchRequest) (*SearchResponse, error)

	// SearchOrganizations finds companies via the mixed_companies/search endpoint.
	SearchOrganizations(ctx context.Context, req OrgSearchRequest) (*SearchResponse, error)

	// MatchPerson enriches a single person via the people/match endpoint.
	// Returns (nil, nil) when Apollo has no match.
	MatchPerson(ctx context.Context, req MatchRequest) (*Person, error)
}

// PeopleSearchRequest filters a people search. Zero-value fields are omitted.
type PeopleSearchRequest struct {
	Titles           []string
	OrganizationName string
	Locations        []string
	Seniorities      []string
	EmployeeRanges   []string
	Page             int
	PerPage          int
}

// OrgSearchRequest filters a company search. Zero-value fields are omitted.
type OrgSearchRequest struct {
	OrganizationName string
	IndustryTagIDs   []string
	EmployeeRanges   []string
	Locations        []string
	KeywordTags      []string
	Page             int
	PerPage          int
}

// MatchRequest identifies a person for enrichment. At least one field must be set.
type MatchRequest struct {
	Email            string
	FirstName        string
	LastName         string
	OrganizationName string
	LinkedInURL      string
}

// SearchResponse holds either people or organizations plus pagination.
type SearchResponse struct {
	People        []Person       `json:"people"`
	Organizations []Organization `json:"organizations"`
	Pagination    Pagination     `json:"pagination"`
}

// Pagination mirrors Apollo's paging envelope.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
	TotalItems int `json:"total_entries"`
}

// Person is one Apollo person record.
type Person struct {
	ID                string              `json:"id"`
	FirstName         string              `json:"first_name"`
	LastName          string              `json:"last_name"`
	Name              string              `json:"name"`
	Title             string              `json:"title"`
	Email             string              `json:"email"`
	EmailStatus       string              `json:"email_status"` // verified, guessed, unavailable
	LinkedInURL       string              `json:"linkedin_url"`
	PhotoURL          string              `json:"photo_url"`
	PhoneNumbers      []Phone             `json:"phone_numbers"`
	Organization      *Organization       `json:"organization"`
	OrganizationName  string              `json:"organization_name"`
	City              string              `json:"city"`
	State             string              `json:"state"`
	Country           string              `json:"country"`
	EmploymentHistory []EmploymentHistory `json:"employment_history"`
	Departments       []string            `json:"departments"`
	Seniority         string              `json:"seniority"` // c_suite, vp, director, ...
}

// CompanyName prefers the linked organization record over the flat field.
func (p *Person) CompanyName() string {
	if p.Organization != nil && p.Organization.Name != "" {
		return p.Organization.Name
	}
	return p.OrganizationName
}

// Phone is one phone number on a person record.
type Phone struct {
	RawNumber       string `json:"raw_number"`
	SanitizedNumber string `json:"sanitized_number"`
	Type            string `json:"type"`
}

// EmploymentHistory is one role in a person's work history.
type EmploymentHistory struct {
	Title            string `json:"title"`
	OrganizationName string `json:"organization_name"`
	StartDate        string `json:"start_date"`
	EndDate          string `json:"end_date"`
	Current          bool   `json:"current"`
}

// Organization is one Apollo company record.
type Organization struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	WebsiteURL        string   `json:"website_url"`
	LinkedInURL       string   `json:"linkedin_url"`
	Phone             string   `json:"phone"`
	FoundedYear       *int     `json:"founded_year"`
	EstimatedEmployees *int    `json:"estimated_num_employees"`
	Industry          string   `json:"industry"`
	Keywords          []string `json:"keywords"`
	City              string   `json:"city"`
	State             string   `json:"state"`
	Country           string   `json:"country"`
	ShortDescription  string   `json:"short_description"`
	AnnualRevenue     *float64 `json:"annual_revenue"`
	TotalFunding      *float64 `json:"total_funding"`
}

// Option configures the Apollo client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	sem     *semaphore.Weighted
}

// NewClient creates a new Apollo client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 20 * time.Second,
		},
		sem: semaphore.NewWeighted(maxConcurrent),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchPeople(ctx context.Context, req PeopleSearchRequest) (*SearchResponse, error) {
	payload := map[string]any{
		"page":     pageOrDefault(req.Page),
		"per_page": perPageOrDefault(req.PerPage),
	}
	if len(req.Titles) > 0 {
		payload["person_titles"] = req.Titles
	}
	if req.OrganizationName != "" {
		payload["q_organization_name"] = req.OrganizationName
	}
	if len(req.Locations) > 0 {
		payload["person_locations"] = req.Locations
	}
	if len(req.Seniorities) > 0 {
		payload["person_seniorities"] = req.Seniorities
	}
	if len(req.EmployeeRanges) > 0 {
		payload["organization_num_employees_ranges"] = req.EmployeeRanges
	}

	var resp SearchResponse
	if err := c.post(ctx, "/mixed_people/search", payload, &resp); err != nil {
		return degrade(ctx, "mixed_people/search", err, &SearchResponse{})
	}
	return &resp, nil
}

func (c *httpClient) SearchOrganizations(ctx context.Context, req OrgSearchRequest) (*SearchResponse, error) {
	payload := map[string]any{
		"page":     pageOrDefault(req.Page),
		"per_page": perPageOrDefault(req.PerPage),
	}
	if req.OrganizationName != "" {
		payload["q_organization_name"] = req.OrganizationName
	}
	if len(req.IndustryTagIDs) > 0 {
		payload["organization_industry_tag_ids"] = req.IndustryTagIDs
	}
	if len(req.EmployeeRanges) > 0 {
		payload["organization_num_employees_ranges"] = req.EmployeeRanges
	}
	if len(req.Locations) > 0 {
		payload["organization_locations"] = req.Locations
	}
	if len(req.KeywordTags) > 0 {
		payload["q_organization_keyword_tags"] = req.KeywordTags
	}

	var resp SearchResponse
	if err := c.post(ctx, "/mixed_companies/search", payload, &resp); err != nil {
		return degrade(ctx, "mixed_companies/search", err, &SearchResponse{})
	}
	return &resp, nil
}

func (c *httpClient) MatchPerson(ctx context.Context, req MatchRequest) (*Person, error) {
	payload := map[string]any{}
	if req.Email != "" {
		payload["email"] = req.Email
	}
	if req.FirstName != "" {
		payload["first_name"] = req.FirstName
	}
	if req.LastName != "" {
		payload["last_name"] = req.LastName
	}
	if req.OrganizationName != "" {
		payload["organization_name"] = req.OrganizationName
	}
	if req.LinkedInURL != "" {
		payload["linkedin_url"] = req.LinkedInURL
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var resp struct {
		Person *Person `json:"person"`
	}
	if err := c.post(ctx, "/people/match", payload, &resp); err != nil {
		return degrade[Person](ctx, "people/match", err, nil)
	}
	return resp.Person, nil
}

// post sends an authenticated request and decodes the JSON response. The API
// key travels in the request body, not a header.
func (c *httpClient) post(ctx context.Context, endpoint string, payload map[string]any, out any) error {
	if c.apiKey == "" {
		return eris.New("apollo: api key not configured")
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return eris.Wrap(err, "apollo: acquire slot")
	}
	defer c.sem.Release(1)

	payload["api_key"] = c.apiKey
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "apollo: marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "apollo: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "apollo: execute request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "apollo: read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return eris.Errorf("apollo: status %d for %s: %s", resp.StatusCode, endpoint, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, "apollo: unmarshal response")
	}
	return nil
}

// degrade converts an API failure into an empty result so callers can treat
// Apollo as best-effort. Context cancellation still propagates.
func degrade[T any](ctx context.Context, endpoint string, err error, empty *T) (*T, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	zap.L().Warn("apollo: request failed, returning empty result",
		zap.String("endpoint", endpoint),
		zap.Error(err),
	)
	return empty, nil
}

func pageOrDefault(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func perPageOrDefault(perPage int) int {
	if perPage < 1 {
		return 25
	}
	return perPage
}
