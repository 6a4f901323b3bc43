package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"council-ai/internal/infra/config"
)

// errAborted is returned by ask after Ctrl-C; the message is already printed.
var errAborted = errors.New("aborted")

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "council",
		Short:         "Ask a council of LLMs and let a chair agent answer with tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(), "config file")

	path := func() string { return config.ExpandHome(cfgPath) }
	root.AddCommand(
		newAskCmd(path),
		newAgentsCmd(path),
		newRolesCmd(path),
		newPermsCmd(path),
		newKeysCmd(path),
		newStatsCmd(path),
		newHistoryCmd(path),
		newDoctorCmd(path),
	)
	return root
}

// defaultConfigPath honours COUNCIL_CONFIG before the home directory default.
func defaultConfigPath() string {
	if p := os.Getenv("COUNCIL_CONFIG"); p != "" {
		return p
	}
	return config.DefaultPath()
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, errAborted) {
			os.Exit(130)
		}
		fmt.Fprintf(os.Stderr, "council: %v\n", err)
		os.Exit(1)
	}
}
