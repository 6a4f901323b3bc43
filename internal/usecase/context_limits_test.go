package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"council-ai/internal/domain"
)

func TestContextLimits_For(t *testing.T) {
	l := NewContextLimits(map[string]int{"Llama3": 4096, "my-local": 2048}, 50000)

	tests := []struct {
		name  string
		agent domain.Agent
		want  int
	}{
		{"explicit limit wins", domain.Agent{Model: "gpt-4o", ContextLimit: 1000}, 1000},
		{"override beats builtin", domain.Agent{Model: "llama3:8b"}, 4096},
		{"builtin", domain.Agent{Model: "claude-sonnet-4"}, 200000},
		{"longest builtin match", domain.Agent{Model: "gpt-4-turbo-preview"}, 128000},
		{"case insensitive", domain.Agent{Model: "GPT-4o-mini"}, 128000},
		{"override only", domain.Agent{Model: "my-local-model"}, 2048},
		{"fallback", domain.Agent{Model: "unknown-model"}, 50000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, l.For(tt.agent))
		})
	}
}

func TestContextLimits_Smallest(t *testing.T) {
	l := NewContextLimits(nil, 0)
	assert.Equal(t, DefaultContextLimit, l.Smallest())
	assert.Equal(t, 8192, l.Smallest(
		domain.Agent{Model: "claude-sonnet-4"},
		domain.Agent{Model: "llama3"},
		domain.Agent{Model: "gemini-2.5-pro"},
	))
}
