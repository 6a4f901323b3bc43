package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"council-ai/internal/domain"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", Truncate("hello", 10))
	assert.Equal(t, "hello", Truncate("hello", 0))
	assert.Equal(t, "he"+TruncationMarker, Truncate("hello", 2))
	// Rune based, never splits a multi-byte character.
	assert.Equal(t, "héé"+TruncationMarker, Truncate("hééllo", 3))
}

func TestChairPrompt_OrderAndFailures(t *testing.T) {
	opinions := []domain.ProviderResponse{
		{AgentID: "a", AgentName: "Alpha", Model: "m1", Text: "first opinion"},
		{AgentID: "b", AgentName: "Beta", Model: "m2", Error: "timeout"},
		{AgentID: "c", AgentName: "Gamma", Model: "m3", Text: strings.Repeat("x", 50)},
	}
	got := ChairPrompt("What is best?", opinions, 10)

	assert.True(t, strings.HasPrefix(got, "User question:\nWhat is best?"))
	assert.Contains(t, got, "## Council member Alpha (m1)\nfirst opin"+TruncationMarker)
	assert.NotContains(t, got, "Beta")
	assert.Less(t, strings.Index(got, "Alpha"), strings.Index(got, "Gamma"))
	assert.NotContains(t, got, strings.Repeat("x", 11))
}

func TestChairPrompt_NoOpinions(t *testing.T) {
	got := ChairPrompt("q", []domain.ProviderResponse{{AgentID: "a", Error: "down"}}, 100)
	assert.Contains(t, got, "No council member answered")
}

func TestChairSystemPrompt_MarksDisabledKinds(t *testing.T) {
	chair := domain.Agent{ID: "c", Name: "Claude", Model: "claude-sonnet-4"}
	got := ChairSystemPrompt(chair, domain.DefaultPermissions(), domain.ProjectSettings{}, "")

	assert.Contains(t, got, "Claude")
	for _, k := range domain.AllDirectiveKinds {
		assert.Contains(t, got, "- "+string(k)+":")
	}
	assert.Contains(t, got, "run the project's checker")
	assert.Contains(t, got, "(unavailable: command permission is off)")
	assert.NotContains(t, got, "(unavailable: file_read permission is off)")
	assert.NotContains(t, got, "Project settings")
}

func TestChairSystemPrompt_ProjectAndExtra(t *testing.T) {
	project := domain.ProjectSettings{
		Name:         "demo",
		Language:     "go",
		TestCommand:  "go test ./...",
		Instructions: "Keep functions small.",
	}
	got := ChairSystemPrompt(domain.Agent{ID: "c"}, domain.PermissionSet{}, project, "Reply in French.")
	assert.Contains(t, got, "- name: demo")
	assert.Contains(t, got, "- test command: go test ./...")
	assert.Contains(t, got, "Project instructions:\nKeep functions small.")
	assert.True(t, strings.HasSuffix(got, "Reply in French.\n"))
}

func TestToolResultsText(t *testing.T) {
	results := []ToolResult{
		{Directive: domain.ToolDirective{Kind: domain.KindRunCommand, Primary: "make\nmake test"}, Denied: true},
		{Directive: domain.ToolDirective{Kind: domain.KindReadFile, Primary: "a.txt"}, Output: domain.ToolOutput{Output: "0123456789abc"}},
		{Directive: domain.ToolDirective{Kind: domain.KindListTree, Primary: "."}, Output: domain.ToolOutput{}},
		{Directive: domain.ToolDirective{Kind: domain.KindOpenURL, Primary: "https://go.dev"}, Output: domain.ToolOutput{Error: "navigation failed"}},
	}
	got := ToolResultsText(results, 10)

	assert.True(t, strings.HasPrefix(got, "Tool results:\n"))
	assert.Contains(t, got, "### run-command make ...\nPermission denied")
	assert.Contains(t, got, "### read-file a.txt\n0123456789"+TruncationMarker)
	assert.Contains(t, got, "### list-tree .\n(no output)")
	assert.Contains(t, got, "### open-url https://go.dev\nError: navigation")
}

func TestMemberPreamble(t *testing.T) {
	got := MemberPreamble(domain.Agent{ID: "g", Name: "Gemini", Model: "gemini-2.5-pro"})
	assert.Contains(t, got, "Gemini")
	assert.Contains(t, got, "gemini-2.5-pro")
	assert.Contains(t, got, "do not emit tool directive blocks")
}
