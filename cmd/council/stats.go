package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"council-ai/internal/adapter/render"
	"council-ai/internal/adapter/store"
	"council-ai/internal/infra/config"
)

func newStatsCmd(cfgPath func() string) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show how much of each agent's advice the chair used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stores, err := openStores(cfgPath())
			if err != nil {
				return err
			}
			defer stores.Close()

			if reset {
				if err := stores.Stats.Reset(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Statistics reset")
				return nil
			}

			all, err := stores.Stats.All(cmd.Context())
			if err != nil {
				return err
			}
			agents, err := store.NewConfigAgentStore(cfgPath()).Agents(cmd.Context())
			if err != nil {
				return err
			}
			render.StatsTable(cmd.OutOrStdout(), agents, all)
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "clear all counters")
	return cmd
}

func newHistoryCmd(cfgPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage the shared conversation history",
	}
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the conversation history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stores, err := openStores(cfgPath())
			if err != nil {
				return err
			}
			defer stores.Close()

			if err := stores.History.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared")
			return nil
		},
	}
	cmd.AddCommand(clearCmd)
	return cmd
}

// openStores opens the history and stats backend without loading providers,
// so it works before any key is configured.
func openStores(path string) (*store.Stores, error) {
	cfg, err := config.Read(path)
	if err != nil {
		return nil, err
	}
	config.ApplyEnvOverrides(cfg)
	return store.Open(cfg.Storage)
}
