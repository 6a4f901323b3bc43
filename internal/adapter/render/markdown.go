package render

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// DefaultWidth is the wrap width when the terminal size is unknown.
const DefaultWidth = 100

// Markdown renders text for a terminal. When color is false, or glamour
// fails, the text is returned unchanged with a trailing newline.
func Markdown(text string, width int, color bool) string {
	if !color {
		return ensureNewline(text)
	}
	if width <= 0 {
		width = DefaultWidth
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return ensureNewline(text)
	}
	out, err := r.Render(text)
	if err != nil {
		return ensureNewline(text)
	}
	return out
}

func ensureNewline(s string) string {
	if strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
