package model

// SearchResult is one raw result from a search provider.
type SearchResult struct {
	URL          string `json:"url"`
	Title        string `json:"title,omitempty"`
	Snippet      string `json:"snippet,omitempty"`
	Markdown     string `json:"markdown,omitempty"` // inline content, when the provider returns it
	QueryPurpose string `json:"query_purpose,omitempty"`
	Position     int    `json:"position"`
}

// RankedURL is a deduplicated, scored URL ready for scraping.
type RankedURL struct {
	URL          string   `json:"url"`
	Title        string   `json:"title,omitempty"`
	Domain       string   `json:"domain,omitempty"`
	QualityScore float64  `json:"quality_score"`
	Markdown     string   `json:"markdown,omitempty"`
	SourceQuery  []string `json:"source_queries,omitempty"`
}

// ScrapedPage is extracted page text plus a content quality estimate.
type ScrapedPage struct {
	URL           string  `json:"url"`
	Title         string  `json:"title,omitempty"`
	Content       string  `json:"content,omitempty"`
	ContentLength int     `json:"content_length"`
	QualityScore  float64 `json:"quality_score"`
	Extractor     string  `json:"extractor,omitempty"`
	Error         string  `json:"error,omitempty"`
}
