package search

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/company-research/internal/model"
)

func TestRank_CompanySiteOutranksThirdParty(t *testing.T) {
	t.Parallel()

	ranker := NewRanker(nil)
	ranked := ranker.Rank([]model.SearchResult{
		{URL: "https://www.reuters.com/markets/acme-capital-fund", Title: "Acme raises fund", Position: 1, QueryPurpose: "fund_activity"},
		{URL: "https://www.acmecapital.com/team", Title: "Our Team", Position: 2, QueryPurpose: "about_team"},
	}, "Acme Capital", 10)

	require.Len(t, ranked, 2)
	// 50 + 30 (own domain) + 10 (high-value path) + 10 (position) beats
	// 50 + 21 (reuters x3) + 4 ("fund" keyword) + 10 (position).
	assert.Equal(t, "https://www.acmecapital.com/team", ranked[0].URL)
	assert.Equal(t, 100.0, ranked[0].QualityScore)
	assert.Equal(t, 85.0, ranked[1].QualityScore)
}

func TestRank_DuplicateURLBoosted(t *testing.T) {
	t.Parallel()

	ranker := NewRanker(nil)

	once := ranker.Rank([]model.SearchResult{
		{URL: "https://news.example.com/acme", Title: "Acme", Position: 1, QueryPurpose: "core_strategy"},
	}, "Acme Capital", 10)

	twice := ranker.Rank([]model.SearchResult{
		{URL: "https://news.example.com/acme", Title: "Acme", Position: 1, QueryPurpose: "core_strategy"},
		{URL: "https://news.example.com/acme/", Title: "Acme", Position: 4, QueryPurpose: "fund_activity"},
	}, "Acme Capital", 10)

	require.Len(t, twice, 1)
	assert.Greater(t, twice[0].QualityScore, once[0].QualityScore)
	assert.ElementsMatch(t, []string{"core_strategy", "fund_activity"}, twice[0].SourceQuery)

	// Same purpose twice is recorded once with no extra boost.
	samePurpose := ranker.Rank([]model.SearchResult{
		{URL: "https://news.example.com/acme", Title: "Acme", Position: 1, QueryPurpose: "core_strategy"},
		{URL: "https://news.example.com/acme", Title: "Acme", Position: 1, QueryPurpose: "core_strategy"},
	}, "Acme Capital", 10)
	require.Len(t, samePurpose, 1)
	assert.Equal(t, once[0].QualityScore, samePurpose[0].QualityScore)
}

func TestRank_Idempotent(t *testing.T) {
	t.Parallel()

	results := []model.SearchResult{
		{URL: "https://a.example.com/x", Title: "first lien facility", Position: 1, QueryPurpose: "deal_structure"},
		{URL: "https://b.example.com/y", Title: "portfolio update", Position: 2, QueryPurpose: "portfolio_deals"},
		{URL: "https://c.example.com/z", Title: "misc", Position: 3, QueryPurpose: "about_team"},
	}
	ranker := NewRanker(nil)
	first := ranker.Rank(results, "Acme Capital", 10)
	second := ranker.Rank(results, "Acme Capital", 10)
	assert.Equal(t, first, second)
}

func TestRank_PenaltyAndKeywordCap(t *testing.T) {
	t.Parallel()

	ranker := NewRanker(nil)
	ranked := ranker.Rank([]model.SearchResult{
		{
			URL:      "https://www.facebook.com/acmecap",
			Title:    "private credit direct lending middle market unitranche first lien senior secured portfolio",
			Position: 1,
			QueryPurpose: "core_strategy",
		},
	}, "Acme Capital", 10)

	require.Len(t, ranked, 1)
	// 50 - 30 (facebook penalty x3) + 20 (keyword cap) + 10 (position).
	assert.Equal(t, 50.0, ranked[0].QualityScore)
}

func TestRank_SkipsInvalidURLsAndAppliesLimit(t *testing.T) {
	t.Parallel()

	ranker := NewRanker(nil)
	ranked := ranker.Rank([]model.SearchResult{
		{URL: "", QueryPurpose: "a"},
		{URL: "ftp://files.example.com/x", QueryPurpose: "a"},
		{URL: "https://one.example.com", Position: 1, QueryPurpose: "a"},
		{URL: "https://two.example.com", Position: 2, QueryPurpose: "a"},
		{URL: "https://three.example.com", Position: 11, QueryPurpose: "a"},
	}, "Acme Capital", 2)

	require.Len(t, ranked, 2)
	assert.Equal(t, "https://one.example.com", ranked[0].URL)
}

func TestRank_CarriesInlineMarkdown(t *testing.T) {
	t.Parallel()

	ranker := NewRanker(nil)
	ranked := ranker.Rank([]model.SearchResult{
		{URL: "https://acme.example.com/a", Position: 1, QueryPurpose: "a"},
		{URL: "https://acme.example.com/a", Position: 2, QueryPurpose: "b", Markdown: "# Acme"},
	}, "Acme Capital", 10)

	require.Len(t, ranked, 1)
	assert.Equal(t, "# Acme", ranked[0].Markdown)
}

func TestMatchDomain_DeclarationOrderWins(t *testing.T) {
	t.Parallel()

	// "x.com" sits after "facebook.com", so a host matching both entries
	// resolves to the earlier one every time.
	value, ok := matchDomain(domainPenalties, "facebook.com.x.com")
	require.True(t, ok)
	assert.Equal(t, -10, value)
}

func TestRank_AggregatorPenalty(t *testing.T) {
	t.Parallel()

	ranker := NewRanker(nil)
	ranked := ranker.Rank([]model.SearchResult{
		{URL: "https://rashmanly.com/acme-capital-profile", Title: "Acme", Position: 1, QueryPurpose: "a"},
	}, "Acme Capital", 10)

	require.Len(t, ranked, 1)
	// 50 - 30 (rashmanly penalty x3) + 10 (position).
	assert.Equal(t, 30.0, ranked[0].QualityScore)
}

func TestApplyOverrides_KeepsTableOrder(t *testing.T) {
	t.Parallel()

	ranker := NewRanker(&Overrides{DomainPenalties: map[string]int{
		"twitter.com": -9,
		"b.example":   -1,
		"a.example":   -2,
	}})

	value, ok := matchDomain(ranker.penalties, "twitter.com")
	require.True(t, ok)
	assert.Equal(t, -9, value)

	// Built-in entries stay in place; new domains land at the end, sorted.
	n := len(ranker.penalties)
	assert.Equal(t, domainEntry{"a.example", -2}, ranker.penalties[n-2])
	assert.Equal(t, domainEntry{"b.example", -1}, ranker.penalties[n-1])
	assert.Equal(t, domainPenalties[0], ranker.penalties[0])
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "domains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"domain_scores:\n  specialist.example.com: 9\ndomain_penalties:\n  junk.example.com: -10\n"), 0o644))

	overrides, err := LoadOverrides(path)
	require.NoError(t, err)

	ranker := NewRanker(overrides)
	ranked := ranker.Rank([]model.SearchResult{
		{URL: "https://specialist.example.com/report", Position: 1, QueryPurpose: "a"},
		{URL: "https://junk.example.com/spam", Position: 2, QueryPurpose: "a"},
	}, "Acme Capital", 10)

	require.Len(t, ranked, 2)
	assert.Equal(t, 87.0, ranked[0].QualityScore) // 50 + 27 + 10
	assert.Equal(t, 30.0, ranked[1].QualityScore) // 50 - 30 + 10
}

func TestLoadOverrides_MissingFile(t *testing.T) {
	t.Parallel()

	overrides, err := LoadOverrides(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, overrides.DomainScores)

	overrides, err = LoadOverrides("")
	require.NoError(t, err)
	assert.NotNil(t, overrides)
}
