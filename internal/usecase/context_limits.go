package usecase

import (
	"strings"

	"council-ai/internal/domain"
)

// knownContextLimits are context windows of common model families, matched
// as case-insensitive substrings of the model id.
var knownContextLimits = map[string]int{
	"gpt-4o":      128000,
	"gpt-4.1":     1000000,
	"gpt-5":       400000,
	"o1":          200000,
	"o3":          200000,
	"o4-mini":     200000,
	"claude":      200000,
	"gemini":      1000000,
	"deepseek":    64000,
	"llama3":      8192,
	"llama-3.1":   128000,
	"llama3.1":    128000,
	"qwen":        32768,
	"mistral":     32000,
	"grok":        131072,
	"gpt-3.5":     16385,
	"gpt-4-turbo": 128000,
}

// ContextLimits resolves the context window of an agent's model.
type ContextLimits struct {
	overrides map[string]int
	fallback  int
}

// NewContextLimits creates a resolver. overrides take precedence over the
// built-in table; fallback applies when nothing matches.
func NewContextLimits(overrides map[string]int, fallback int) ContextLimits {
	if fallback <= 0 {
		fallback = DefaultContextLimit
	}
	lower := make(map[string]int, len(overrides))
	for k, v := range overrides {
		lower[strings.ToLower(k)] = v
	}
	return ContextLimits{overrides: lower, fallback: fallback}
}

// For returns the agent's explicit limit, else the longest matching override,
// else the longest matching built-in entry, else the fallback.
func (l ContextLimits) For(agent domain.Agent) int {
	if agent.ContextLimit > 0 {
		return agent.ContextLimit
	}
	model := strings.ToLower(agent.Model)
	if n, ok := longestMatch(l.overrides, model); ok {
		return n
	}
	if n, ok := longestMatch(knownContextLimits, model); ok {
		return n
	}
	return l.fallback
}

// Smallest returns the tightest limit among agents, or the fallback when
// agents is empty.
func (l ContextLimits) Smallest(agents ...domain.Agent) int {
	smallest := 0
	for _, a := range agents {
		if n := l.For(a); smallest == 0 || n < smallest {
			smallest = n
		}
	}
	if smallest == 0 {
		return l.fallback
	}
	return smallest
}

func longestMatch(table map[string]int, model string) (int, bool) {
	best, bestLen := 0, 0
	for key, n := range table {
		if n > 0 && len(key) > bestLen && strings.Contains(model, key) {
			best, bestLen = n, len(key)
		}
	}
	return best, bestLen > 0
}
