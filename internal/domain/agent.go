package domain

import (
	"context"
	"strings"
)

// Agent is a configured model identity. Roles are assigned externally by id.
type Agent struct {
	ID       string `json:"id"       yaml:"id"`
	Name     string `json:"name"     yaml:"name"`
	Provider string `json:"provider" yaml:"provider"`
	Model    string `json:"model"    yaml:"model"`
	// Enabled agents take part in council voting.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// ContextLimit overrides the model's context window in tokens.
	ContextLimit int `json:"context_limit,omitempty" yaml:"context_limit,omitempty"`
}

// DisplayName returns the name, falling back to the id.
func (a Agent) DisplayName() string {
	if strings.TrimSpace(a.Name) != "" {
		return a.Name
	}
	return a.ID
}

// Roles holds the chair and secretary assignments by agent id. Empty means
// unassigned.
type Roles struct {
	ChairID     string `json:"chair,omitempty"     yaml:"chair,omitempty"`
	SecretaryID string `json:"secretary,omitempty" yaml:"secretary,omitempty"`
}

// Role names accepted by AgentStore.SetRole.
const (
	RoleChair     = "chair"
	RoleSecretary = "secretary"
)

// Lineup is the resolved set of participants for one question.
type Lineup struct {
	Chair     Agent
	Secretary *Agent
	Members   []Agent
}

// ResolveLineup picks the chair, secretary and council members from the
// configured agents. The chair and secretary are excluded from the council.
// Disabled agents never sit on the council but may still hold a role.
func ResolveLineup(agents []Agent, roles Roles) (Lineup, error) {
	var lineup Lineup
	var chairFound bool
	for _, a := range agents {
		switch {
		case roles.ChairID != "" && a.ID == roles.ChairID:
			lineup.Chair = a
			chairFound = true
		case roles.SecretaryID != "" && a.ID == roles.SecretaryID:
			sec := a
			lineup.Secretary = &sec
		case a.Enabled:
			lineup.Members = append(lineup.Members, a)
		}
	}
	if !chairFound {
		return Lineup{}, NewDomainError("ResolveLineup", ErrNoChair, roles.ChairID)
	}
	// A chair that also holds the secretary role still scores.
	if roles.SecretaryID != "" && roles.SecretaryID == roles.ChairID {
		sec := lineup.Chair
		lineup.Secretary = &sec
	}
	return lineup, nil
}

// AgentStore is the persistence capability for agents, roles and permissions.
type AgentStore interface {
	Agents(ctx context.Context) ([]Agent, error)
	Agent(ctx context.Context, id string) (Agent, error)
	SaveAgent(ctx context.Context, a Agent) error
	RemoveAgent(ctx context.Context, id string) error
	Roles(ctx context.Context) (Roles, error)
	SetRole(ctx context.Context, role, agentID string) error
	Permissions(ctx context.Context) (PermissionSet, error)
	SetPermissions(ctx context.Context, p PermissionSet) error
}
