package tool

import "context"

// BrowserBackend drives a single browser tab for the open-url and
// page-action directives.
type BrowserBackend interface {
	// Navigate loads a URL and waits for the body to be ready.
	Navigate(ctx context.Context, url string) error
	// GetContent extracts readable page text. A non-empty selector limits
	// extraction to that element's subtree.
	GetContent(ctx context.Context, selector string) (*PageContent, error)
	// Screenshot captures the viewport, or the whole page when fullPage is
	// set, as base64 JPEG.
	Screenshot(ctx context.Context, fullPage bool) (string, error)
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector string, text string) error
	// Evaluate runs JavaScript and returns the result as a string.
	Evaluate(ctx context.Context, expression string) (string, error)
	WaitVisible(ctx context.Context, selector string) error
	// Close releases all browser resources.
	Close() error
	// Name returns the backend identifier (e.g. "chromedp").
	Name() string
}

// PageContent is the text view of a page handed back to the chair.
type PageContent struct {
	Title string     `json:"title"`
	URL   string     `json:"url"`
	Text  string     `json:"text"`
	Links []PageLink `json:"links,omitempty"`
}

// PageLink is one link found on the page, with a selector the chair can pass
// to page:click.
type PageLink struct {
	Text     string `json:"text"`
	Href     string `json:"href"`
	Selector string `json:"selector"`
}
