package models

// SearchResult is a single retrieved passage.
// Score is the squared L2 distance to the query: lower is more similar.
type SearchResult struct {
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	Filename string  `json:"filename"`
	ChunkID  string  `json:"chunk_id"`
	Position int     `json:"position"`
}

// QueryResponse is the merged result of a query over all of a user's indexes.
type QueryResponse struct {
	Query   string          `json:"query"`
	Results []*SearchResult `json:"results"`
	// IndexesSearched counts indexes that loaded and searched successfully.
	IndexesSearched int `json:"indexes_searched"`
	// IndexesFailed counts indexes that were skipped because they could not be loaded or searched.
	IndexesFailed int `json:"indexes_failed"`
	// AllIndexesUnavailable is set when the user has indexes but none could be searched.
	AllIndexesUnavailable bool  `json:"all_indexes_unavailable,omitempty"`
	QueryTime             int64 `json:"query_time_ms"`
}
