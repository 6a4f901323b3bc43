package directive

import (
	"strings"

	"council-ai/internal/domain"
)

// placeholderMarkers are substrings that only show up in illustrative
// directives, never in real requests. Matching is case-insensitive. A real
// path that happens to contain one of them is dropped as well.
var placeholderMarkers = []string{
	"path/to/",
	"/path/to",
	"example.com",
	"example.org",
	"example.net",
	"<path>",
	"<file>",
	"<url>",
	"<query>",
	"<command>",
	"your-file",
	"yourdomain",
}

// isEllipsis reports whether s stands in for content the model left out.
func isEllipsis(s string) bool {
	switch strings.TrimSpace(s) {
	case "...", "....", "…":
		return true
	}
	return false
}

// isPlaceholder reports whether d is an example embedded in prose. Arguments
// are checked against the marker list; bodies are only rejected when they are
// literally an ellipsis, so that file content may mention example.com.
func isPlaceholder(d domain.ToolDirective, body string) bool {
	if isEllipsis(body) || isEllipsis(d.Primary) {
		return true
	}
	if hasMarker(d.Primary) {
		return true
	}
	switch d.Kind {
	case domain.KindSearchText:
		return hasMarker(d.Secondary)
	case domain.KindWriteFile, domain.KindEditFile, domain.KindProjectConfig:
		return isEllipsis(d.Secondary)
	}
	return false
}

func hasMarker(s string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, m := range placeholderMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
