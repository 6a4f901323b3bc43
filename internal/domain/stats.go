package domain

import (
	"context"
	"fmt"
	"strings"
)

// Verdict is the secretary's classification of one contributor's input.
type Verdict string

const (
	VerdictAccepted Verdict = "accepted"
	VerdictPartial  Verdict = "partial"
	VerdictRejected Verdict = "rejected"
)

// ParseVerdict normalizes a verdict string.
func ParseVerdict(s string) (Verdict, error) {
	switch v := Verdict(strings.ToLower(strings.TrimSpace(s))); v {
	case VerdictAccepted, VerdictPartial, VerdictRejected:
		return v, nil
	}
	return "", NewDomainError("ParseVerdict", ErrInvalidInput, fmt.Sprintf("%q", s))
}

// AgentStats are the persistent scoring counters of one agent.
type AgentStats struct {
	AgentID  string `json:"agent_id"`
	Total    int    `json:"total"`
	Accepted int    `json:"accepted"`
	Partial  int    `json:"partial"`
	Rejected int    `json:"rejected"`
}

// Apply records one verdict. Total always increments.
func (s *AgentStats) Apply(v Verdict) {
	s.Total++
	switch v {
	case VerdictAccepted:
		s.Accepted++
	case VerdictPartial:
		s.Partial++
	case VerdictRejected:
		s.Rejected++
	}
}

// Efficiency is the share of useful suggestions in percent, counting a
// partial acceptance as half. Zero when nothing has been scored.
func (s AgentStats) Efficiency() float64 {
	if s.Total == 0 {
		return 0
	}
	return (float64(s.Accepted) + 0.5*float64(s.Partial)) / float64(s.Total) * 100
}

// HistoryStore is the append-only conversation log. DropOldest is the only
// removal and always trims from the front.
type HistoryStore interface {
	Load(ctx context.Context) ([]Message, error)
	Append(ctx context.Context, msgs ...Message) error
	DropOldest(ctx context.Context, n int) error
	Clear(ctx context.Context) error
}

// StatsStore holds per-agent counters. Record creates the entry lazily and
// persists before returning.
type StatsStore interface {
	Get(ctx context.Context, agentID string) (AgentStats, error)
	All(ctx context.Context) ([]AgentStats, error)
	Record(ctx context.Context, agentID string, v Verdict) (AgentStats, error)
	Reset(ctx context.Context) error
}
