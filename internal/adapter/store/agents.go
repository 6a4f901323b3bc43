package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"council-ai/internal/domain"
	"council-ai/internal/infra/config"
)

// ConfigAgentStore implements domain.AgentStore on top of the YAML config
// file. Each call re-reads the file; mutations write it back atomically.
// Reads go through config.Read, so encrypted API keys stay encrypted on
// save.
type ConfigAgentStore struct {
	path string
	mu   sync.Mutex
}

// NewConfigAgentStore returns a store backed by the config file at path.
func NewConfigAgentStore(path string) *ConfigAgentStore {
	return &ConfigAgentStore{path: path}
}

func (s *ConfigAgentStore) read(op string) (*config.Config, error) {
	cfg, err := config.Read(s.path)
	if err != nil {
		return nil, domain.NewDomainError(op, domain.ErrConfigLoad, err.Error())
	}
	return cfg, nil
}

// update applies fn to a fresh copy of the config and saves it.
func (s *ConfigAgentStore) update(op string, fn func(*config.Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.read(op)
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	if err := config.Save(s.path, cfg); err != nil {
		return domain.NewDomainError(op, domain.ErrStore, err.Error())
	}
	return nil
}

func (s *ConfigAgentStore) Agents(_ context.Context) ([]domain.Agent, error) {
	cfg, err := s.read("ConfigAgentStore.Agents")
	if err != nil {
		return nil, err
	}
	out := make([]domain.Agent, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		out = append(out, toAgent(a))
	}
	return out, nil
}

func (s *ConfigAgentStore) Agent(_ context.Context, id string) (domain.Agent, error) {
	cfg, err := s.read("ConfigAgentStore.Agent")
	if err != nil {
		return domain.Agent{}, err
	}
	a, ok := cfg.Agent(id)
	if !ok {
		return domain.Agent{}, domain.NewDomainError("ConfigAgentStore.Agent", domain.ErrAgentNotFound, id)
	}
	return toAgent(*a), nil
}

// SaveAgent adds the agent or replaces the one with the same id. The
// provider must already be configured.
func (s *ConfigAgentStore) SaveAgent(_ context.Context, a domain.Agent) error {
	const op = "ConfigAgentStore.SaveAgent"
	a.ID = strings.TrimSpace(a.ID)
	switch {
	case a.ID == "":
		return domain.NewDomainError(op, domain.ErrInvalidInput, "agent id is required")
	case strings.TrimSpace(a.Model) == "":
		return domain.NewDomainError(op, domain.ErrInvalidInput, "model is required")
	case a.ContextLimit < 0:
		return domain.NewDomainError(op, domain.ErrInvalidInput, "context limit must be >= 0")
	}

	return s.update(op, func(cfg *config.Config) error {
		if _, ok := cfg.Provider(a.Provider); !ok {
			return domain.NewDomainError(op, domain.ErrProviderNotFound, a.Provider)
		}
		if existing, ok := cfg.Agent(a.ID); ok {
			*existing = fromAgent(a)
			return nil
		}
		cfg.Agents = append(cfg.Agents, fromAgent(a))
		return nil
	})
}

// RemoveAgent deletes the agent and clears any role it held.
func (s *ConfigAgentStore) RemoveAgent(_ context.Context, id string) error {
	const op = "ConfigAgentStore.RemoveAgent"
	return s.update(op, func(cfg *config.Config) error {
		idx := -1
		for i, a := range cfg.Agents {
			if a.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return domain.NewDomainError(op, domain.ErrAgentNotFound, id)
		}
		cfg.Agents = append(cfg.Agents[:idx], cfg.Agents[idx+1:]...)
		if cfg.Roles.Chair == id {
			cfg.Roles.Chair = ""
		}
		if cfg.Roles.Secretary == id {
			cfg.Roles.Secretary = ""
		}
		return nil
	})
}

func (s *ConfigAgentStore) Roles(_ context.Context) (domain.Roles, error) {
	cfg, err := s.read("ConfigAgentStore.Roles")
	if err != nil {
		return domain.Roles{}, err
	}
	return domain.Roles{ChairID: cfg.Roles.Chair, SecretaryID: cfg.Roles.Secretary}, nil
}

// SetRole assigns role to agentID. An empty agentID clears the role.
func (s *ConfigAgentStore) SetRole(_ context.Context, role, agentID string) error {
	const op = "ConfigAgentStore.SetRole"
	role = strings.ToLower(strings.TrimSpace(role))
	if role != domain.RoleChair && role != domain.RoleSecretary {
		return domain.NewDomainError(op, domain.ErrInvalidInput,
			fmt.Sprintf("unknown role %q (want %s or %s)", role, domain.RoleChair, domain.RoleSecretary))
	}

	return s.update(op, func(cfg *config.Config) error {
		if agentID != "" {
			if _, ok := cfg.Agent(agentID); !ok {
				return domain.NewDomainError(op, domain.ErrAgentNotFound, agentID)
			}
		}
		if role == domain.RoleChair {
			cfg.Roles.Chair = agentID
		} else {
			cfg.Roles.Secretary = agentID
		}
		return nil
	})
}

func (s *ConfigAgentStore) Permissions(_ context.Context) (domain.PermissionSet, error) {
	cfg, err := s.read("ConfigAgentStore.Permissions")
	if err != nil {
		return domain.PermissionSet{}, err
	}
	p := cfg.Permissions
	return domain.PermissionSet{
		Command:   p.Command,
		FileRead:  p.FileRead,
		FileWrite: p.FileWrite,
		FileEdit:  p.FileEdit,
		Browser:   p.Browser,
		Desktop:   p.Desktop,
	}, nil
}

func (s *ConfigAgentStore) SetPermissions(_ context.Context, p domain.PermissionSet) error {
	return s.update("ConfigAgentStore.SetPermissions", func(cfg *config.Config) error {
		cfg.Permissions = config.PermissionsConfig{
			Command:   p.Command,
			FileRead:  p.FileRead,
			FileWrite: p.FileWrite,
			FileEdit:  p.FileEdit,
			Browser:   p.Browser,
			Desktop:   p.Desktop,
		}
		return nil
	})
}

func toAgent(a config.AgentConfig) domain.Agent {
	return domain.Agent{
		ID:           a.ID,
		Name:         a.Name,
		Provider:     a.Provider,
		Model:        a.Model,
		Enabled:      a.Enabled,
		ContextLimit: a.ContextLimit,
	}
}

func fromAgent(a domain.Agent) config.AgentConfig {
	return config.AgentConfig{
		ID:           a.ID,
		Name:         a.Name,
		Provider:     a.Provider,
		Model:        a.Model,
		Enabled:      a.Enabled,
		ContextLimit: a.ContextLimit,
	}
}

var _ domain.AgentStore = (*ConfigAgentStore)(nil)
