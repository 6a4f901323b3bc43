package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council-ai/internal/domain"
	"council-ai/internal/infra/config"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&mockProvider{name: "b"}))
	require.NoError(t, reg.Register(&mockProvider{name: "a"}))

	err := reg.Register(&mockProvider{name: "a"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	p, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", p.Name())

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)

	assert.Equal(t, []string{"a", "b"}, reg.List())
}

func TestNewRegistryFromConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Providers = []config.ProviderConfig{
		{Name: "openai", Type: TypeOpenAI, APIKey: "k"},
		{Name: "claude", Type: TypeAnthropic, APIKey: "k"},
		{Name: "google", Type: TypeGemini, APIKey: "k"},
		{Name: "local", Type: TypeOllama},
		{Name: "router", Type: TypeOpenRouter, APIKey: "k"},
	}

	reg, err := NewRegistryFromConfig(context.Background(), cfg, newTestLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"claude", "google", "local", "openai", "router"}, reg.List())

	p, err := reg.Get("claude")
	require.NoError(t, err)
	cb, ok := p.(*CircuitBreakerProvider)
	require.True(t, ok, "circuit breaker enabled by default")
	_, ok = cb.Inner().(*AnthropicProvider)
	assert.True(t, ok)

	o, ok := reg.Ollama("local")
	require.True(t, ok)
	assert.Equal(t, "http://localhost:11434", o.BaseURL())

	_, ok = reg.Ollama("openai")
	assert.False(t, ok)
}

func TestNewRegistryFromConfig_NoBreaker(t *testing.T) {
	cfg := config.Defaults()
	cfg.CircuitBreaker.Enabled = false
	cfg.Providers = []config.ProviderConfig{{Name: "openai", Type: TypeOpenAI}}

	reg, err := NewRegistryFromConfig(context.Background(), cfg, newTestLogger())
	require.NoError(t, err)
	p, err := reg.Get("openai")
	require.NoError(t, err)
	_, ok := p.(*OpenAIProvider)
	assert.True(t, ok)
}

func TestNewProvider_TypeFromName(t *testing.T) {
	p, err := NewProvider(context.Background(), config.ProviderConfig{Name: "gemini"}, newTestLogger())
	require.NoError(t, err)
	_, ok := p.(*GeminiProvider)
	assert.True(t, ok)
}

func TestNewProvider_UnknownType(t *testing.T) {
	_, err := NewProvider(context.Background(), config.ProviderConfig{Name: "x", Type: "cohere"}, newTestLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}
