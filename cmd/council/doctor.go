package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"council-ai/internal/adapter/llm"
	"council-ai/internal/domain"
	"council-ai/internal/infra/config"
	"council-ai/internal/infra/logger"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

var errNoConfig = CheckResult{Status: StatusFail, Message: "cannot check: config not loaded"}

func newDoctorCmd(cfgPath func() string) *cobra.Command {
	var warmup bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the configuration, providers and tool dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.OutOrStdout(), cfgPath(), warmup)
		},
	}
	cmd.Flags().BoolVar(&warmup, "warmup", false, "load every Ollama agent's model into memory")
	return cmd
}

// runDoctor executes all health checks and reports results.
func runDoctor(out io.Writer, cfgPath string, warmup bool) error {
	// Some checks work without a valid config.
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Council lineup", Fn: checkLineup},
		{Name: "API keys", Fn: checkAPIKeys},
		{Name: "Ollama", Fn: checkOllama(warmup)},
		{Name: "Data directory", Fn: checkDataDir},
		{Name: "Sandbox", Fn: checkSandbox},
		{Name: "Chromium", Fn: checkChromium},
		{Name: "SearXNG", Fn: checkSearXNG},
		{Name: "Desktop commands", Fn: checkDesktopCommands},
	}

	fmt.Fprintln(out, "council doctor")
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(out, "  [%s] %s: %s\n", result.Status, result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(out, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)
	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

// checkConfigFile returns a check that verifies the config file exists and parses correctly.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config file not found at %s", cfgPath),
				Fix:     "Run 'council keys set <provider>' and 'council agents add' to create one",
			}
		}
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Fix the reported fields in " + cfgPath,
			}
		}
		return CheckResult{Status: StatusPass, Message: "config loaded from " + cfgPath}
	}
}

// checkLineup verifies a chair is assigned and reports the council size.
func checkLineup(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	agents := make([]domain.Agent, 0, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agents = append(agents, domain.Agent{ID: a.ID, Name: a.Name, Model: a.Model, Enabled: a.Enabled})
	}
	lineup, err := domain.ResolveLineup(agents, domain.Roles{ChairID: cfg.Roles.Chair, SecretaryID: cfg.Roles.Secretary})
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: "no chair assigned",
			Fix:     "Run 'council roles set chair <agent-id>'",
		}
	}

	msg := fmt.Sprintf("chair %s, %d council member(s)", lineup.Chair.DisplayName(), len(lineup.Members))
	if lineup.Secretary == nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: msg + ", no secretary (efficiency scoring off)",
			Fix:     "Run 'council roles set secretary <agent-id>'",
		}
	}
	return CheckResult{Status: StatusPass, Message: msg + ", secretary " + lineup.Secretary.DisplayName()}
}

// checkAPIKeys verifies every provider used by an agent has a key. Ollama
// and Bedrock authenticate without one.
func checkAPIKeys(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	used := make(map[string]bool)
	for _, a := range cfg.Agents {
		used[a.Provider] = true
	}

	var missing, ok []string
	for _, p := range cfg.Providers {
		if !used[p.Name] {
			continue
		}
		switch {
		case p.Type == "ollama" || p.Type == "bedrock":
			ok = append(ok, p.Name)
		case p.APIKey == "":
			missing = append(missing, p.Name)
		default:
			ok = append(ok, p.Name)
		}
	}

	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "no API key for: " + strings.Join(missing, ", "),
			Fix:     fmt.Sprintf("Run 'council keys set <provider>' or export %s", config.ProviderKeyEnv(missing[0])),
		}
	}
	if len(ok) == 0 {
		return CheckResult{Status: StatusWarn, Message: "no agent uses a configured provider"}
	}
	return CheckResult{Status: StatusPass, Message: "keys configured for: " + strings.Join(ok, ", ")}
}

// checkOllama probes each Ollama provider and optionally warms up the
// models its agents use.
func checkOllama(warmup bool) func(*config.Config) CheckResult {
	return func(cfg *config.Config) CheckResult {
		if cfg == nil {
			return errNoConfig
		}
		var probed, down, warmed []string
		for _, pc := range cfg.Providers {
			if pc.Type != "ollama" {
				continue
			}
			probed = append(probed, pc.Name)
			p := llm.NewOllamaProvider(pc, logger.Discard())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			healthy := p.IsHealthy(ctx)
			cancel()
			if !healthy {
				down = append(down, pc.Name+" ("+p.BaseURL()+")")
				continue
			}
			if !warmup {
				continue
			}
			for _, a := range cfg.Agents {
				if a.Provider != pc.Name {
					continue
				}
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				if err := p.Warmup(ctx, a.Model); err == nil {
					warmed = append(warmed, a.Model)
				} else {
					down = append(down, fmt.Sprintf("%s warmup: %v", a.Model, err))
				}
				cancel()
			}
		}

		switch {
		case len(probed) == 0:
			return CheckResult{Status: StatusPass, Message: "no Ollama providers configured"}
		case len(down) > 0:
			return CheckResult{
				Status:  StatusFail,
				Message: "unreachable: " + strings.Join(down, "; "),
				Fix:     "Start the server with 'ollama serve' or fix base_url",
			}
		case len(warmed) > 0:
			return CheckResult{Status: StatusPass, Message: "running; warmed up " + strings.Join(warmed, ", ")}
		}
		return CheckResult{Status: StatusPass, Message: "running: " + strings.Join(probed, ", ")}
	}
}

// checkDataDir verifies the history and stats directory is writable.
func checkDataDir(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	dir := config.ExpandHome(cfg.Storage.DataDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot create %s: %v", dir, err),
		}
	}
	probe := filepath.Join(dir, ".doctor-check")
	if err := os.WriteFile(probe, []byte("ok"), 0600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s is not writable: %v", dir, err),
			Fix:     "Fix permissions: chmod 700 " + dir,
		}
	}
	os.Remove(probe)
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s writable (backend: %s)", dir, cfg.Storage.Backend)}
}

// checkSandbox verifies the tool sandbox root is an existing directory.
func checkSandbox(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	root, err := filepath.Abs(config.ExpandHome(cfg.Tools.SandboxRoot))
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return CheckResult{
			Status:  StatusFail,
			Message: root + " is not a directory",
			Fix:     "Set tools.sandbox_root to the project you want the chair to work on",
		}
	}
	return CheckResult{Status: StatusPass, Message: "tools confined to " + root}
}

// checkChromium checks for a browser when the browser permission is on.
func checkChromium(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if !cfg.Permissions.Browser {
		return CheckResult{Status: StatusPass, Message: "browser permission off: Chromium not required"}
	}
	if cfg.Tools.Browser.CDPURL != "" {
		return CheckResult{Status: StatusPass, Message: "attaching to " + cfg.Tools.Browser.CDPURL}
	}
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if path, err := exec.LookPath(name); err == nil {
			return CheckResult{Status: StatusPass, Message: fmt.Sprintf("found %s at %s", name, path)}
		}
	}
	return CheckResult{
		Status:  StatusFail,
		Message: "Chromium not found but the browser permission is on",
		Fix:     "Install Chromium, set tools.browser.cdp_url, or run 'council perms set browser off'",
	}
}

// checkSearXNG checks the search endpoint answers JSON when the browser
// permission is on.
func checkSearXNG(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if !cfg.Permissions.Browser {
		return CheckResult{Status: StatusPass, Message: "browser permission off: SearXNG not required"}
	}
	base := strings.TrimRight(cfg.Tools.Search.SearXNGURL, "/")
	if base == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no SearXNG URL configured: web-search is unavailable",
			Fix:     "Set tools.search.searxng_url",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/search?q=council&format=json", nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("invalid SearXNG URL: %v", err)}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("SearXNG not reachable at %s", base),
			Fix:     "Start SearXNG, e.g. docker run -p 8888:8080 searxng/searxng",
		}
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return CheckResult{
			Status:  StatusWarn,
			Message: "SearXNG refuses JSON output",
			Fix:     "Add json to search.formats in SearXNG's settings.yml",
		}
	case resp.StatusCode != http.StatusOK:
		return CheckResult{Status: StatusWarn, Message: fmt.Sprintf("SearXNG returned HTTP %d", resp.StatusCode)}
	}
	return CheckResult{Status: StatusPass, Message: "SearXNG reachable at " + base}
}

// checkDesktopCommands looks up the programs named by the desktop command
// templates when the desktop permission is on.
func checkDesktopCommands(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errNoConfig
	}
	if !cfg.Permissions.Desktop {
		return CheckResult{Status: StatusPass, Message: "desktop permission off"}
	}
	d := cfg.Tools.Desktop
	var missing []string
	seen := make(map[string]bool)
	for _, tmpl := range []string{d.ScreenshotCommand, d.ClickCommand, d.MoveCommand, d.TypeCommand, d.KeyCommand} {
		fields := strings.Fields(tmpl)
		if len(fields) == 0 || seen[fields[0]] {
			continue
		}
		seen[fields[0]] = true
		if _, err := exec.LookPath(fields[0]); err != nil {
			missing = append(missing, fields[0])
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "missing programs: " + strings.Join(missing, ", "),
			Fix:     "Install them (e.g. imagemagick, xdotool) or change tools.desktop",
		}
	}
	return CheckResult{Status: StatusPass, Message: "desktop commands found"}
}
