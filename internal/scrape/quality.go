package scrape

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// Keywords for content quality scoring.
var qualityKeywords = []string{
	"private credit", "direct lending", "middle market", "unitranche",
	"first lien", "senior secured", "portfolio", "fund", "aum",
	"credit facility", "leveraged", "mezzanine", "private debt",
	"credit agreement", "covenant", "loan", "borrower", "lender",
	"investment", "capital", "billion", "million",
}

var (
	scriptRe     = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleRe      = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	commentRe    = regexp.MustCompile(`<!--[\s\S]*?-->`)
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	entityRe     = regexp.MustCompile(`(?i)&[a-z]+;`)
	spaceRe      = regexp.MustCompile(`\s+`)
	dollarAmtRe  = regexp.MustCompile(`(?i)\$[\d,.]+\s*(million|billion|M|B|MM)`)
)

// stripHTML is the last-resort extractor: drop scripts, styles, comments, and
// tags, decode common entities, collapse whitespace.
func stripHTML(html string) string {
	text := scriptRe.ReplaceAllString(html, "")
	text = styleRe.ReplaceAllString(text, "")
	text = commentRe.ReplaceAllString(text, "")
	text = tagRe.ReplaceAllString(text, " ")

	replacer := strings.NewReplacer(
		"&nbsp;", " ",
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
	)
	text = replacer.Replace(text)
	text = entityRe.ReplaceAllString(text, " ")

	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// truncateContent cuts text at maxChars, preferring a sentence or line
// boundary when one falls past 80% of the budget.
func truncateContent(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}

	// Back off to a rune boundary so the cut never splits a multibyte char.
	for maxChars > 0 && !utf8.RuneStart(text[maxChars]) {
		maxChars--
	}
	truncated := text[:maxChars]
	cut := strings.LastIndex(truncated, ". ")
	if nl := strings.LastIndex(truncated, "\n"); nl > cut {
		cut = nl
	}
	if float64(cut) > float64(maxChars)*0.8 {
		return truncated[:cut+1] + " [content truncated]"
	}
	return truncated + "... [content truncated]"
}

// scoreQuality estimates content relevance 0-100 from length, entity-name
// presence, keyword density, dollar figures, and recency mentions.
func scoreQuality(text, companyName string) float64 {
	if len(text) < 200 {
		return 5.0
	}

	score := min(20.0, float64(len(text))/500)
	lower := strings.ToLower(text)

	if companyName != "" && strings.Contains(lower, strings.ToLower(companyName)) {
		score += 25.0
	}

	hits := 0
	for _, kw := range qualityKeywords {
		if strings.Contains(lower, kw) {
			hits++
		}
	}
	score += min(30.0, float64(hits*4))

	if dollarAmtRe.MatchString(text) {
		score += 15.0
	}

	currentYear := time.Now().Year()
	for _, year := range []int{currentYear, currentYear - 1} {
		if strings.Contains(text, strconv.Itoa(year)) {
			score += 10.0
			break
		}
	}

	return min(100.0, score)
}
