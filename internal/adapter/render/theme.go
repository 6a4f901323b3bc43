// Package render draws council progress and answers on a terminal.
// Colours adapt to light and dark backgrounds; writers that are not a
// terminal, and NO_COLOR, get plain text.
package render

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorSuccess = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#66bb6a"}
	colorError   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"}
	colorWarning = lipgloss.AdaptiveColor{Light: "#e65100", Dark: "#ffa726"}
	colorInfo    = lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"}
	colorAccent  = lipgloss.AdaptiveColor{Light: "#6a1b9a", Dark: "#ce93d8"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9e9e9e"}
)

// Symbols are the glyphs prefixed to event lines.
type Symbols struct {
	Success string
	Error   string
	Info    string
	Step    string
	Tool    string
	Waiting string
	Denied  string
}

var unicodeSymbols = Symbols{
	Success: "✓",
	Error:   "✗",
	Info:    "●",
	Step:    "›",
	Tool:    "→",
	Waiting: "…",
	Denied:  "⊘",
}

var asciiSymbols = Symbols{
	Success: "[ok]",
	Error:   "[err]",
	Info:    "[i]",
	Step:    ">",
	Tool:    "->",
	Waiting: "...",
	Denied:  "[denied]",
}

// DetectSymbols picks ASCII glyphs when COUNCIL_ASCII_SYMBOLS is set or the
// locale is explicitly non-UTF-8.
func DetectSymbols() Symbols {
	if v := os.Getenv("COUNCIL_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return asciiSymbols
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if val == "" {
			continue
		}
		if strings.Contains(val, "utf-8") || strings.Contains(val, "utf8") {
			return unicodeSymbols
		}
		if val == "c" || val == "posix" {
			return asciiSymbols
		}
	}
	return unicodeSymbols
}

// styles are bound to one renderer so the colour profile follows the
// destination writer rather than stdout.
type styles struct {
	bold    lipgloss.Style
	dim     lipgloss.Style
	success lipgloss.Style
	err     lipgloss.Style
	warning lipgloss.Style
	info    lipgloss.Style
	accent  lipgloss.Style
	muted   lipgloss.Style
	heading lipgloss.Style
}

func newStyles(w io.Writer, color bool) styles {
	if !color {
		// A writer that is not a terminal yields the ASCII profile.
		w = io.Discard
	}
	r := lipgloss.NewRenderer(w)
	return styles{
		bold:    r.NewStyle().Bold(true),
		dim:     r.NewStyle().Faint(true),
		success: r.NewStyle().Foreground(colorSuccess).Bold(true),
		err:     r.NewStyle().Foreground(colorError).Bold(true),
		warning: r.NewStyle().Foreground(colorWarning).Bold(true),
		info:    r.NewStyle().Foreground(colorInfo),
		accent:  r.NewStyle().Foreground(colorAccent).Bold(true),
		muted:   r.NewStyle().Foreground(colorMuted),
		heading: r.NewStyle().Foreground(colorAccent).Bold(true).Underline(true),
	}
}
