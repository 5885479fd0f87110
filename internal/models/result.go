package models

// SearchResult is a single search hit.
type SearchResult struct {
	SourcePath string  `json:"source_path"`
	OwnerID    string  `json:"owner_id,omitempty"`
	Score      float64 `json:"score"`
	Rank       int     `json:"rank"`
}

// SearchResponse is the response for a search request. Results are ordered by
// descending score.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
}
