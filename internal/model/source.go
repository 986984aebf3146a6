package model

import "strings"

// DefaultSourceTitle is used when a search result carries no title.
const DefaultSourceTitle = "Source"

// Source is a cited URL surfaced alongside an answer.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SearchResult is one ranked hit returned by the search collaborator.
// Content feeds the generation prompt; Title and URL become a Source.
type SearchResult struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// Source converts a search result into a client-facing citation.
// Returns false when the URL is unusable (only absolute http(s) URLs
// reach the client).
func (r SearchResult) Source() (Source, bool) {
	if !strings.HasPrefix(r.URL, "http") {
		return Source{}, false
	}
	title := r.Title
	if title == "" {
		title = DefaultSourceTitle
	}
	return Source{Title: title, URL: r.URL}, true
}
