package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"council-ai/internal/adapter/render"
	"council-ai/internal/adapter/store"
	"council-ai/internal/domain"
)

func newAgentsCmd(cfgPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Manage council agents",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List configured agents and their roles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := store.NewConfigAgentStore(cfgPath())
			agents, err := s.Agents(cmd.Context())
			if err != nil {
				return err
			}
			roles, err := s.Roles(cmd.Context())
			if err != nil {
				return err
			}
			render.AgentsTable(cmd.OutOrStdout(), agents, roles)
			return nil
		},
	}

	var (
		name         string
		provider     string
		model        string
		contextLimit int
		disabled     bool
	)
	add := &cobra.Command{
		Use:   "add <id>",
		Short: "Add an agent, or replace the one with the same id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := domain.Agent{
				ID:           args[0],
				Name:         name,
				Provider:     provider,
				Model:        model,
				Enabled:      !disabled,
				ContextLimit: contextLimit,
			}
			if err := store.NewConfigAgentStore(cfgPath()).SaveAgent(cmd.Context(), a); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved agent %s (%s/%s)\n", a.ID, a.Provider, a.Model)
			return nil
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&provider, "provider", "", "provider name from the providers section")
	add.Flags().StringVar(&model, "model", "", "model identifier")
	add.Flags().IntVar(&contextLimit, "context-limit", 0, "context window in tokens (0 = look up by model)")
	add.Flags().BoolVar(&disabled, "disabled", false, "add without a council seat")
	_ = add.MarkFlagRequired("provider")
	_ = add.MarkFlagRequired("model")

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an agent and clear any role it held",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.NewConfigAgentStore(cfgPath()).RemoveAgent(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed agent %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, add, remove,
		newEnableCmd(cfgPath, "enable", true),
		newEnableCmd(cfgPath, "disable", false),
	)
	return cmd
}

func newEnableCmd(cfgPath func() string, use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: strings.ToUpper(use[:1]) + use[1:] + " an agent's council seat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := store.NewConfigAgentStore(cfgPath())
			a, err := s.Agent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.Enabled = enabled
			if err := s.SaveAgent(cmd.Context(), a); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Agent %s %sd\n", a.ID, use)
			return nil
		},
	}
}

func newRolesCmd(cfgPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Assign the chair and secretary",
	}
	set := &cobra.Command{
		Use:   "set <chair|secretary> <agent-id>",
		Short: "Assign a role",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.NewConfigAgentStore(cfgPath()).SetRole(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", args[1], strings.ToLower(args[0]))
			return nil
		},
	}
	clearCmd := &cobra.Command{
		Use:   "clear <chair|secretary>",
		Short: "Unassign a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.NewConfigAgentStore(cfgPath()).SetRole(cmd.Context(), args[0], ""); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", strings.ToLower(args[0]))
			return nil
		},
	}
	cmd.AddCommand(set, clearCmd)
	return cmd
}

func newPermsCmd(cfgPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perms",
		Short: "Show or change the chair's tool permissions",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List tool permissions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := store.NewConfigAgentStore(cfgPath()).Permissions(cmd.Context())
			if err != nil {
				return err
			}
			render.PermissionsTable(cmd.OutOrStdout(), p)
			return nil
		},
	}
	set := &cobra.Command{
		Use:   "set <permission> <on|off>",
		Short: "Open or close one tool permission",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseOnOff(args[1])
			if err != nil {
				return err
			}
			s := store.NewConfigAgentStore(cfgPath())
			p, err := s.Permissions(cmd.Context())
			if err != nil {
				return err
			}
			perm := domain.Permission(strings.ReplaceAll(strings.ToLower(args[0]), "-", "_"))
			if p, err = p.With(perm, on); err != nil {
				return fmt.Errorf("unknown permission %q (want one of %s)", args[0], permissionNames())
			}
			if err := s.SetPermissions(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", perm, args[1])
			return nil
		},
	}
	cmd.AddCommand(list, set)
	return cmd
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes", "1", "enable", "enabled":
		return true, nil
	case "off", "false", "no", "0", "disable", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("%q is not on or off", s)
}

func permissionNames() string {
	names := make([]string, len(domain.AllPermissions))
	for i, p := range domain.AllPermissions {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}
