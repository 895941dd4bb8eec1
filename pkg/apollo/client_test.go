package apollo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchPeople_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mixed_people/search", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "test-key", payload["api_key"])
		assert.Equal(t, "Acme Capital", payload["q_organization_name"])
		assert.Equal(t, float64(1), payload["page"])
		assert.Equal(t, float64(25), payload["per_page"])

		w.Write([]byte(`{
			"people": [{
				"id": "p1",
				"name": "Jordan Reeves",
				"title": "Managing Director",
				"email": "jordan@acme.com",
				"email_status": "verified",
				"seniority": "c_suite",
				"organization": {"id": "o1", "name": "Acme Capital Partners"},
				"employment_history": [
					{"title": "MD", "organization_name": "Acme Capital Partners", "start_date": "2019-01-01", "current": true}
				]
			}],
			"pagination": {"page": 1, "per_page": 25, "total_pages": 1, "total_entries": 1}
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.SearchPeople(context.Background(), PeopleSearchRequest{
		OrganizationName: "Acme Capital",
		Titles:           []string{"Managing Director"},
	})
	require.NoError(t, err)
	require.Len(t, resp.People, 1)

	person := resp.People[0]
	assert.Equal(t, "Jordan Reeves", person.Name)
	assert.Equal(t, "verified", person.EmailStatus)
	assert.Equal(t, "Acme Capital Partners", person.CompanyName())
	require.Len(t, person.EmploymentHistory, 1)
	assert.True(t, person.EmploymentHistory[0].Current)
	assert.Equal(t, 1, resp.Pagination.TotalItems)
}

func TestSearchPeople_HTTPErrorDegradesToEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"invalid filters"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.SearchPeople(context.Background(), PeopleSearchRequest{OrganizationName: "Acme"})
	require.NoError(t, err)
	assert.Empty(t, resp.People)
	assert.Empty(t, resp.Organizations)
}

func TestSearchPeople_ContextCancelPropagates(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient("test-key")
	_, err := client.SearchPeople(ctx, PeopleSearchRequest{OrganizationName: "Acme"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSearchOrganizations_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mixed_companies/search", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, []any{"private credit"}, payload["q_organization_keyword_tags"])

		w.Write([]byte(`{
			"organizations": [{
				"id": "o1", "name": "Acme Capital Partners",
				"website_url": "https://acme.com", "industry": "financial services",
				"estimated_num_employees": 85, "founded_year": 2011
			}],
			"pagination": {"page": 1}
		}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	resp, err := client.SearchOrganizations(context.Background(), OrgSearchRequest{
		OrganizationName: "Acme Capital",
		KeywordTags:      []string{"private credit"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Organizations, 1)

	org := resp.Organizations[0]
	assert.Equal(t, "https://acme.com", org.WebsiteURL)
	require.NotNil(t, org.EstimatedEmployees)
	assert.Equal(t, 85, *org.EstimatedEmployees)
}

func TestMatchPerson_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/people/match", r.URL.Path)
		w.Write([]byte(`{"person": {"id": "p9", "name": "Riley Chen", "linkedin_url": "https://linkedin.com/in/rileychen"}}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	person, err := client.MatchPerson(context.Background(), MatchRequest{Email: "riley@fundco.com"})
	require.NoError(t, err)
	require.NotNil(t, person)
	assert.Equal(t, "Riley Chen", person.Name)
}

func TestMatchPerson_NoMatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"person": null}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	person, err := client.MatchPerson(context.Background(), MatchRequest{Email: "nobody@nowhere.com"})
	require.NoError(t, err)
	assert.Nil(t, person)
}

func TestMatchPerson_EmptyRequest(t *testing.T) {
	t.Parallel()

	person, err := NewClient("test-key").MatchPerson(context.Background(), MatchRequest{})
	require.NoError(t, err)
	assert.Nil(t, person)
}

func TestPost_MissingKeyDegrades(t *testing.T) {
	t.Parallel()

	resp, err := NewClient("").SearchPeople(context.Background(), PeopleSearchRequest{OrganizationName: "Acme"})
	require.NoError(t, err)
	assert.Empty(t, resp.People)
}
