package usecase

import (
	"fmt"
	"strings"

	"council-ai/internal/domain"
	"council-ai/internal/usecase/directive"
)

// TruncationMarker is appended to text cut at a character limit.
const TruncationMarker = "\n[...truncated]"

// ContinuePrompt is sent to the chair after a turn that ran tools.
const ContinuePrompt = "Continue. Use the tool results above. Emit more directives if you still need them, " +
	"otherwise give your final answer without any directive blocks."

// Truncate cuts s to limit runes and appends TruncationMarker. A limit of
// zero or less disables truncation.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + TruncationMarker
}

// MemberPreamble tells a council member who it is, so that it answers in its
// own voice rather than as the chair.
func MemberPreamble(agent domain.Agent) string {
	return fmt.Sprintf("You are %s, running model %s, one member of an advisory council. "+
		"Answer the user's question independently and concretely. "+
		"A separate chair will read every member's answer and write the final reply, "+
		"so state your recommendation and the reasoning behind it. "+
		"You cannot run tools; do not emit tool directive blocks.",
		agent.DisplayName(), agent.Model)
}

// ChairSystemPrompt describes the chair's job and the directive grammar.
// Kinds whose permission is off are listed as unavailable.
func ChairSystemPrompt(chair domain.Agent, perms domain.PermissionSet, project domain.ProjectSettings, extra string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, the chair of an advisory council of language models. ", chair.DisplayName())
	b.WriteString("You receive the user's question together with the council members' answers. ")
	b.WriteString("Weigh them, resolve disagreements and write the final answer for the user.\n\n")

	b.WriteString("You may act on the user's machine by emitting tool directives: fenced blocks whose tag names a tool. ")
	b.WriteString("Directives run in the order you write them and their results come back in the next message. ")
	b.WriteString("When you need no more tools, reply without any directive blocks; that reply is final.\n\n")
	b.WriteString("Available directives:\n")

	for _, r := range directive.Rules() {
		state := ""
		if !perms.Allows(r.Kind) {
			perm, _ := domain.PermissionFor(r.Kind)
			state = fmt.Sprintf(" (unavailable: %s permission is off)", perm)
		}
		fmt.Fprintf(&b, "\n- %s: %s%s\n%s\n", r.Kind, r.Help, state, r.Usage)
	}

	b.WriteString("\nNever emit a directive as an illustration; every directive you write is executed.\n")

	if !project.Empty() {
		b.WriteString("\nProject settings:\n")
		if project.Name != "" {
			fmt.Fprintf(&b, "- name: %s\n", project.Name)
		}
		if project.Language != "" {
			fmt.Fprintf(&b, "- language: %s\n", project.Language)
		}
		if project.TestCommand != "" {
			fmt.Fprintf(&b, "- test command: %s\n", project.TestCommand)
		}
		if project.DiagnosticsCommand != "" {
			fmt.Fprintf(&b, "- diagnostics command: %s\n", project.DiagnosticsCommand)
		}
		if project.Instructions != "" {
			fmt.Fprintf(&b, "\nProject instructions:\n%s\n", strings.TrimSpace(project.Instructions))
		}
	}

	if extra = strings.TrimSpace(extra); extra != "" {
		b.WriteString("\n" + extra + "\n")
	}
	return b.String()
}

// ChairPrompt assembles the question and the members' opinions in member
// order. Failed members are left out; each opinion is capped at limit.
func ChairPrompt(question string, opinions []domain.ProviderResponse, limit int) string {
	var b strings.Builder
	b.WriteString("User question:\n")
	b.WriteString(question)
	b.WriteString("\n\n")

	n := 0
	for _, op := range opinions {
		if op.Failed() || strings.TrimSpace(op.Text) == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "## Council member %s (%s)\n%s\n\n", op.AgentName, op.Model, Truncate(op.Text, limit))
	}
	if n == 0 {
		b.WriteString("No council member answered. Answer the question yourself.\n")
	} else {
		b.WriteString("Synthesize the final answer from these opinions.\n")
	}
	return b.String()
}

// ToolResult is one executed (or denied) directive of a chair turn.
type ToolResult struct {
	Directive domain.ToolDirective
	Output    domain.ToolOutput
	Denied    bool
}

// ToolResultsText renders a turn's results as the synthetic user message.
// Each result is headed "### <kind> <primary>" and capped at limit.
func ToolResultsText(results []ToolResult, limit int) string {
	var b strings.Builder
	b.WriteString("Tool results:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "\n### %s", r.Directive.Kind)
		if p := headerArg(r.Directive.Primary); p != "" {
			b.WriteString(" " + p)
		}
		b.WriteString("\n")
		switch {
		case r.Denied:
			b.WriteString(domain.DenialText(r.Directive))
		case r.Output.Failed():
			b.WriteString("Error: " + Truncate(r.Output.Error, limit))
			if out := strings.TrimSpace(r.Output.Output); out != "" {
				b.WriteString("\n" + Truncate(out, limit))
			}
		case strings.TrimSpace(r.Output.Output) == "":
			b.WriteString("(no output)")
		default:
			b.WriteString(Truncate(r.Output.Output, limit))
		}
		if r.Output.Image != "" {
			b.WriteString("\n[image attached]")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// headerArg keeps result headers on one line.
func headerArg(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " ..."
	}
	return s
}

// ScorerSystemPrompt instructs the secretary.
const ScorerSystemPrompt = "You are the secretary of an advisory council. You judge how much of each " +
	"contributor's advice made it into the chair's final decision. Reply with a single JSON object " +
	"and nothing else."

// ScorerPrompt asks the secretary to classify each contributor.
func ScorerPrompt(in ScoreInput, limit int) string {
	var b strings.Builder
	b.WriteString("Question:\n")
	b.WriteString(Truncate(in.Question, limit))
	b.WriteString("\n\n")

	for _, op := range in.Opinions {
		if op.Failed() {
			continue
		}
		fmt.Fprintf(&b, "## Advice from agent id %q (%s)\n%s\n\n", op.AgentID, op.AgentName, Truncate(op.Text, limit))
	}
	fmt.Fprintf(&b, "## Final decision by the chair, agent id %q\n%s\n\n", in.Chair.ID, Truncate(in.ChairAnswer, limit))

	ids := in.scoredIDs()
	b.WriteString("Classify every agent id below as \"accepted\" (its advice was used), " +
		"\"partial\" (some of it was used) or \"rejected\" (it was not used). ")
	b.WriteString("Judge the chair on whether its decision answers the question.\n")
	b.WriteString("Agent ids: " + strings.Join(quoteAll(ids), ", ") + "\n\n")
	b.WriteString("Answer with JSON only, for example {\"agent-id\": \"accepted\"}.")
	return b.String()
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
