package tool

import "context"

// SearchBackend abstracts a web search engine.
type SearchBackend interface {
	// Search returns at most count results for query.
	Search(ctx context.Context, query string, count int) ([]SearchResult, error)
	// Name returns the backend identifier (e.g. "searxng").
	Name() string
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string
	URL     string
	Content string
}
