package llm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"council-ai/internal/domain"
	"council-ai/internal/infra/config"
)

// Provider types accepted in config.
const (
	TypeOpenAI     = "openai"
	TypeAnthropic  = "anthropic"
	TypeGemini     = "gemini"
	TypeOllama     = "ollama"
	TypeOpenRouter = "openrouter"
	TypeBedrock    = "bedrock"
)

// Registry holds named LLM providers. It implements domain.ProviderResolver.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

var _ domain.ProviderResolver = (*Registry)(nil)

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.LLMProvider),
	}
}

// NewRegistryFromConfig builds one provider per configured entry, wrapped in
// a circuit breaker when cfg enables it.
func NewRegistryFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry()
	for _, pc := range cfg.Providers {
		p, err := NewProvider(ctx, pc, logger)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", pc.Name, err)
		}
		if cfg.CircuitBreaker.Enabled {
			p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
		logger.Debug("llm: provider registered", "name", pc.Name, "type", pc.Type)
	}
	return reg, nil
}

// NewProvider builds the adapter for one provider entry. An empty type is
// taken from the name, so "openai" needs no type line.
func NewProvider(ctx context.Context, pc config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	typ := strings.ToLower(pc.Type)
	if typ == "" {
		typ = strings.ToLower(pc.Name)
	}
	switch typ {
	case TypeOpenAI:
		return NewOpenAIProvider(pc, logger), nil
	case TypeAnthropic:
		return NewAnthropicProvider(pc, logger), nil
	case TypeGemini:
		return NewGeminiProvider(pc, logger), nil
	case TypeOllama:
		return NewOllamaProvider(pc, logger), nil
	case TypeOpenRouter:
		return NewOpenRouterProvider(pc, logger), nil
	case TypeBedrock:
		return NewBedrockProvider(ctx, pc, logger)
	default:
		return nil, domain.NewDomainError("NewProvider", domain.ErrInvalidInput, "unknown provider type "+pc.Type)
	}
}

// Register adds a provider. Returns error if name already registered.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, name)
	}
	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ollama returns the Ollama adapter registered under name, unwrapping the
// circuit breaker.
func (r *Registry) Ollama(name string) (*OllamaProvider, bool) {
	p, err := r.Get(name)
	if err != nil {
		return nil, false
	}
	if cb, ok := p.(*CircuitBreakerProvider); ok {
		p = cb.Inner()
	}
	o, ok := p.(*OllamaProvider)
	return o, ok
}
