package render

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"council-ai/internal/domain"
)

// previewChars bounds the reply excerpt shown for each opinion.
const previewChars = 160

// PrinterOptions configure an EventPrinter.
type PrinterOptions struct {
	Color bool
	// Verbose prints full replies instead of a one-line preview.
	Verbose bool
	// Names maps agent ids to display names.
	Names   map[string]string
	Symbols Symbols
}

// EventPrinter writes one line per council event. It is safe to use as an
// event bus handler.
type EventPrinter struct {
	mu   sync.Mutex
	out  io.Writer
	opts PrinterOptions
	st   styles
}

// NewEventPrinter returns a printer writing to w. Zero Symbols are replaced
// by DetectSymbols.
func NewEventPrinter(w io.Writer, opts PrinterOptions) *EventPrinter {
	if opts.Symbols == (Symbols{}) {
		opts.Symbols = DetectSymbols()
	}
	return &EventPrinter{out: w, opts: opts, st: newStyles(w, opts.Color)}
}

// Handle implements domain.EventHandler. The final answer (EventSuccess) is
// not printed here; callers render it with Markdown.
func (p *EventPrinter) Handle(_ context.Context, e domain.Event) {
	line := p.Format(e)
	if line == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

// Format returns the rendered line for e, or "" for events that are not
// shown.
func (p *EventPrinter) Format(e domain.Event) string {
	sym := p.opts.Symbols
	who := p.name(e.AgentID)

	switch e.Type {
	case domain.EventStep:
		return p.st.info.Render(sym.Step + " " + e.Text)

	case domain.EventAgentThinking:
		return p.st.muted.Render(sym.Waiting + " " + e.Text)

	case domain.EventAgentResponse:
		var rp domain.ResponsePayload
		_ = json.Unmarshal(e.Payload, &rp)
		head := p.st.success.Render(sym.Success) + " " + p.st.bold.Render(who)
		if rp.Model != "" {
			head += p.st.dim.Render(" (" + rp.Model + ")")
		}
		if rp.Tokens > 0 {
			head += p.st.dim.Render(fmt.Sprintf(" %d tokens", rp.Tokens))
		}
		if p.opts.Verbose {
			return head + "\n" + indent(e.Text)
		}
		return head + " " + p.st.muted.Render(preview(e.Text))

	case domain.EventToolStart:
		var tp domain.ToolStartPayload
		_ = json.Unmarshal(e.Payload, &tp)
		if len(e.Payload) > 0 && !tp.Allowed {
			return p.st.err.Render(sym.Denied) + " " + p.st.warning.Render(e.Text) + p.st.dim.Render(" (permission denied)")
		}
		return p.st.warning.Render(sym.Tool + " " + e.Text)

	case domain.EventInfo:
		if who != "" {
			return p.st.accent.Render(sym.Info+" "+who) + " " + e.Text
		}
		return p.st.accent.Render(sym.Info) + " " + e.Text

	case domain.EventError:
		return p.st.err.Render(sym.Error + " " + e.Text)
	}
	return ""
}

func (p *EventPrinter) name(id string) string {
	if n, ok := p.opts.Names[id]; ok && n != "" {
		return n
	}
	return id
}

// preview flattens text to one line of at most previewChars runes.
func preview(text string) string {
	flat := strings.Join(strings.Fields(text), " ")
	r := []rune(flat)
	if len(r) <= previewChars {
		return flat
	}
	return string(r[:previewChars]) + "..."
}

func indent(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "    " + l
	}
	return strings.Join(lines, "\n")
}
