package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"council-ai/internal/infra/config"
)

func newKeysCmd(cfgPath func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage provider API keys",
	}

	var providerType string
	set := &cobra.Command{
		Use:   "set <provider>",
		Short: "Store an API key, encrypted when " + config.MasterKeyEnv + " is set",
		Long: "Reads the key from the terminal without echo, or from stdin when piped.\n" +
			"A provider that is not configured yet is added with --type (default: its name).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			fmt.Fprintf(cmd.ErrOrStderr(), "API key for %s: ", name)
			key, err := readSecret(cmd.InOrStdin(), stdinIsTerminal())
			fmt.Fprintln(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			encrypted, err := setProviderKey(cfgPath(), name, providerType, key, os.Getenv(config.MasterKeyEnv))
			if err != nil {
				return err
			}
			if encrypted {
				fmt.Fprintf(cmd.OutOrStdout(), "Stored encrypted key for %s\n", name)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Stored key for %s in plain text; set %s to encrypt keys\n", name, config.MasterKeyEnv)
			}
			return nil
		},
	}
	set.Flags().StringVar(&providerType, "type", "", "provider type when adding a new provider")

	cmd.AddCommand(set)
	return cmd
}

// setProviderKey writes key into the provider entry, adding the entry when
// missing. With a passphrase the key is stored as "enc:...".
func setProviderKey(path, name, providerType, key, passphrase string) (encrypted bool, err error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("empty key")
	}
	cfg, err := config.Read(path)
	if err != nil {
		return false, err
	}

	value := key
	if passphrase != "" {
		enc, err := config.EncryptValue(key, passphrase)
		if err != nil {
			return false, err
		}
		value = config.EncryptedPrefix + enc
		encrypted = true
	}

	if p, ok := cfg.Provider(name); ok {
		p.APIKey = value
	} else {
		if providerType == "" {
			providerType = name
		}
		cfg.Providers = append(cfg.Providers, config.ProviderConfig{Name: name, Type: providerType, APIKey: value})
	}
	if err := config.Save(path, cfg); err != nil {
		return false, err
	}
	return encrypted, nil
}

// readSecret reads one line, without echo when stdin is a terminal.
func readSecret(in io.Reader, interactive bool) (string, error) {
	if interactive {
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return "", fmt.Errorf("read key: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read key: %w", err)
	}
	return strings.TrimSpace(line), nil
}
