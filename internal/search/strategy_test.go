package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompanyQueries(t *testing.T) {
	t.Parallel()

	queries := CompanyQueries("Golub Capital", 0)
	require.Len(t, queries, 6)

	purposes := make([]string, len(queries))
	for i, q := range queries {
		purposes[i] = q.Purpose
		assert.Contains(t, q.Text, "Golub Capital")
	}
	assert.Equal(t, []string{
		"core_strategy", "company_site_credit", "fund_activity",
		"deal_structure", "portfolio_deals", "about_team",
	}, purposes)

	assert.Contains(t, queries[1].Text, "site:golub.com")
}

func TestCompanyQueries_MaxCap(t *testing.T) {
	t.Parallel()

	assert.Len(t, CompanyQueries("Acme", 3), 3)
	assert.Len(t, CompanyQueries("Acme", 99), 6)
}

func TestPersonQueries(t *testing.T) {
	t.Parallel()

	withDomain := PersonQueries("Jordan Reeves", "Acme Capital", "acme.com")
	require.Len(t, withDomain, 2)
	assert.Equal(t, "person_at_company", withDomain[0].Purpose)
	assert.Contains(t, withDomain[1].Text, "site:acme.com")

	withoutDomain := PersonQueries("Jordan Reeves", "Acme Capital", "")
	require.Len(t, withoutDomain, 2)
	assert.Equal(t, "person_industry", withoutDomain[1].Purpose)
}

func TestTeamPageQuery(t *testing.T) {
	t.Parallel()

	q := TeamPageQuery("acme.com")
	assert.Equal(t, "team_directory", q.Purpose)
	assert.Contains(t, q.Text, "site:acme.com")
}

func TestGuessDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{"Golub Capital", "golub.com"},
		{"Blackstone Credit (fka GSO)", "blackstone.com"},
		{"PGIM Inc", "pgim.com"},
		{"Monroe Capital LLC", "monroe.com"},
		{"Ares Management, L.P.", "ares.com"},
		{"Capital Group", "capitalgroup.com"}, // everything stripped, falls back to raw name
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GuessDomain(tt.name), tt.name)
	}
}
