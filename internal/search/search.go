// Package search finds designs by title and owner. Meilisearch serves
// queries when it is reachable; Postgres full-text search is the fallback,
// so search keeps working on a bare deployment.
package search

// Query is one design search.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Result is one matching design.
type Result struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	OwnerName string `json:"ownerName"`
}

// Response is what the API hands back for a search call.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// DesignRecord is the indexed shape of a design.
type DesignRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	OwnerName string `json:"ownerName"`
}
