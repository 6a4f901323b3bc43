package render

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council-ai/internal/domain"
)

func newTestPrinter(buf *bytes.Buffer, verbose bool) *EventPrinter {
	return NewEventPrinter(buf, PrinterOptions{
		Verbose: verbose,
		Names:   map[string]string{"gpt": "GPT"},
		Symbols: asciiSymbols,
	})
}

func payload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestEventPrinter_Lines(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPrinter(&buf, false)
	ctx := context.Background()

	p.Handle(ctx, domain.Event{Type: domain.EventStep, Text: "Preparing the council"})
	p.Handle(ctx, domain.Event{Type: domain.EventAgentThinking, AgentID: "gpt", Text: "GPT is thinking"})
	p.Handle(ctx, domain.Event{
		Type: domain.EventAgentResponse, AgentID: "gpt", Text: "Use a mutex.\nIt is simpler.",
		Payload: payload(t, domain.ResponsePayload{Model: "gpt-4o", Role: "member", Tokens: 42}),
	})
	p.Handle(ctx, domain.Event{Type: domain.EventError, AgentID: "mini", Text: "mini: HTTP 500"})
	p.Handle(ctx, domain.Event{Type: domain.EventSuccess, Text: "final answer"})

	out := buf.String()
	assert.Contains(t, out, "> Preparing the council\n")
	assert.Contains(t, out, "... GPT is thinking\n")
	assert.Contains(t, out, "[ok] GPT (gpt-4o) 42 tokens Use a mutex. It is simpler.\n")
	assert.Contains(t, out, "[err] mini: HTTP 500\n")
	assert.NotContains(t, out, "final answer")
	assert.NotContains(t, out, "\x1b[", "no escape codes without colour")
}

func TestEventPrinter_VerboseShowsFullReply(t *testing.T) {
	var buf bytes.Buffer
	p := newTestPrinter(&buf, true)
	p.Handle(context.Background(), domain.Event{
		Type: domain.EventAgentResponse, AgentID: "gpt", Text: "line one\nline two",
	})
	assert.Contains(t, buf.String(), "    line one\n    line two\n")
}

func TestEventPrinter_ToolStart(t *testing.T) {
	p := newTestPrinter(&bytes.Buffer{}, false)

	allowed := p.Format(domain.Event{
		Type: domain.EventToolStart, Text: "read-file main.go",
		Payload: payload(t, domain.ToolStartPayload{Kind: domain.KindReadFile, Allowed: true}),
	})
	assert.Equal(t, "-> read-file main.go", allowed)

	denied := p.Format(domain.Event{
		Type: domain.EventToolStart, Text: "run-command rm -rf /",
		Payload: payload(t, domain.ToolStartPayload{Kind: domain.KindRunCommand, Allowed: false}),
	})
	assert.Equal(t, "[denied] run-command rm -rf / (permission denied)", denied)
}

func TestEventPrinter_InfoWithAgent(t *testing.T) {
	p := newTestPrinter(&bytes.Buffer{}, false)
	assert.Equal(t, "[i] GPT accepted: GPT", p.Format(domain.Event{Type: domain.EventInfo, AgentID: "gpt", Text: "accepted: GPT"}))
	assert.Equal(t, "[i] Aborted", p.Format(domain.Event{Type: domain.EventInfo, Text: "Aborted"}))
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b c", preview("  a\n\tb   c \n"))
	long := strings.Repeat("x", previewChars+10)
	assert.Equal(t, strings.Repeat("x", previewChars)+"...", preview(long))
}

func TestDetectSymbols(t *testing.T) {
	t.Setenv("COUNCIL_ASCII_SYMBOLS", "1")
	assert.Equal(t, asciiSymbols, DetectSymbols())

	t.Setenv("COUNCIL_ASCII_SYMBOLS", "")
	t.Setenv("LC_ALL", "")
	t.Setenv("LC_CTYPE", "")
	t.Setenv("LANG", "en_US.UTF-8")
	assert.Equal(t, unicodeSymbols, DetectSymbols())

	t.Setenv("LANG", "C")
	assert.Equal(t, asciiSymbols, DetectSymbols())
}

func TestMarkdown_PlainWithoutColor(t *testing.T) {
	assert.Equal(t, "# Title\n", Markdown("# Title", 80, false))
	assert.Equal(t, "body\n", Markdown("body\n", 80, false))
}

func TestStatsTable(t *testing.T) {
	var buf bytes.Buffer
	agents := []domain.Agent{
		{ID: "gpt", Name: "GPT", Model: "gpt-4o"},
		{ID: "mini", Model: "gpt-4o-mini"},
	}
	stats := []domain.AgentStats{
		{AgentID: "gpt", Total: 4, Accepted: 2, Partial: 2},
		{AgentID: "old", Total: 1, Rejected: 1},
	}
	StatsTable(&buf, agents, stats)

	out := buf.String()
	assert.Contains(t, out, "GPT")
	assert.Contains(t, out, "75.0%")
	assert.Contains(t, out, "mini")
	assert.Contains(t, out, "(removed)")
	assert.Contains(t, out, "0.0%")
}

func TestAgentsTable_MarksRoles(t *testing.T) {
	var buf bytes.Buffer
	AgentsTable(&buf, []domain.Agent{{ID: "gpt", Enabled: true}, {ID: "claude"}},
		domain.Roles{ChairID: "gpt", SecretaryID: "gpt"})
	out := buf.String()
	assert.Contains(t, out, "chair, secretary")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "no")
}

func TestPermissionsTable(t *testing.T) {
	var buf bytes.Buffer
	PermissionsTable(&buf, domain.DefaultPermissions())
	out := buf.String()
	assert.Contains(t, out, "file_read")
	assert.Contains(t, out, "read-file")
	assert.Contains(t, out, "run-command")
}
