package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"council-ai/internal/domain"
)

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateHeader = true
	tw.Style().Options.DrawBorder = true
	return tw
}

// StatsTable writes per-agent efficiency counters. Agents that have never
// been scored are listed with zero counters.
func StatsTable(w io.Writer, agents []domain.Agent, stats []domain.AgentStats) {
	byID := make(map[string]domain.AgentStats, len(stats))
	for _, s := range stats {
		byID[s.AgentID] = s
	}

	tw := newTable(w)
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})
	tw.AppendHeader(table.Row{"Agent", "Model", "Total", "Accepted", "Partial", "Rejected", "Efficiency"})

	seen := make(map[string]bool, len(agents))
	for _, a := range agents {
		seen[a.ID] = true
		s := byID[a.ID]
		tw.AppendRow(statsRow(a.DisplayName(), a.Model, s))
	}
	// Counters of agents since removed from the config.
	for _, s := range stats {
		if !seen[s.AgentID] {
			tw.AppendRow(statsRow(s.AgentID, "(removed)", s))
		}
	}
	if len(agents) == 0 && len(stats) == 0 {
		tw.AppendRow(table.Row{"(no agents)", "-", 0, 0, 0, 0, "-"})
	}
	tw.Render()
}

func statsRow(name, model string, s domain.AgentStats) table.Row {
	eff := "-"
	if s.Total > 0 {
		eff = fmt.Sprintf("%.1f%%", s.Efficiency())
	}
	return table.Row{name, model, s.Total, s.Accepted, s.Partial, s.Rejected, eff}
}

// AgentsTable lists the configured agents with their roles.
func AgentsTable(w io.Writer, agents []domain.Agent, roles domain.Roles) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"ID", "Name", "Provider", "Model", "Enabled", "Role"})
	for _, a := range agents {
		var r []string
		if a.ID == roles.ChairID {
			r = append(r, domain.RoleChair)
		}
		if a.ID == roles.SecretaryID {
			r = append(r, domain.RoleSecretary)
		}
		enabled := "no"
		if a.Enabled {
			enabled = "yes"
		}
		tw.AppendRow(table.Row{a.ID, a.Name, a.Provider, a.Model, enabled, strings.Join(r, ", ")})
	}
	if len(agents) == 0 {
		tw.AppendRow(table.Row{"(no agents)", "", "", "", "", ""})
	}
	tw.Render()
}

// PermissionsTable lists every tool gate and whether it is open.
func PermissionsTable(w io.Writer, p domain.PermissionSet) {
	tw := newTable(w)
	tw.AppendHeader(table.Row{"Permission", "Allowed", "Directives"})
	for _, perm := range domain.AllPermissions {
		allowed := "off"
		if p.Has(perm) {
			allowed = "on"
		}
		tw.AppendRow(table.Row{string(perm), allowed, strings.Join(kindsFor(perm), ", ")})
	}
	tw.Render()
}

func kindsFor(perm domain.Permission) []string {
	var out []string
	for _, k := range domain.AllDirectiveKinds {
		if p, ok := domain.PermissionFor(k); ok && p == perm {
			out = append(out, string(k))
		}
	}
	return out
}
