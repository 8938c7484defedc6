package models

// SearchResult is one ranked hit.
type SearchResult struct {
	Rank      int     `json:"rank"`
	Doc       int     `json:"doc"`
	Score     float64 `json:"score"`
	Path      string  `json:"path"`
	FirstLine string  `json:"first_line,omitempty"`
	Highlight string  `json:"highlight,omitempty"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query      string          `json:"query"`
	Parsed     string          `json:"parsed"`
	Total      int             `json:"total"`
	Results    []*SearchResult `json:"results"`
	QueryTime  int64           `json:"query_time_ms"`
	Generation uint64          `json:"generation"`
	// Suggestions holds "did you mean" rewrites of the query, only when it
	// matched nothing.
	Suggestions []string `json:"suggestions,omitempty"`
}
