package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
// Missing API keys are not an error here; they surface when a provider is used.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateCouncil(cfg, ve)
	validateProviders(cfg, ve)
	validateAgents(cfg, ve)
	validateStorage(cfg, ve)
	validateTools(cfg, ve)
	validateTokenizer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

var validLevels = map[string]bool{"": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	case "file":
		if cfg.Tracer.Output == "" {
			ve.Add("tracer.output is required for the file exporter")
		}
	default:
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout, file)", cfg.Tracer.Exporter)
	}
}

func validateCouncil(cfg *Config, ve *ValidationError) {
	c := cfg.Council
	if c.MaxTurns <= 0 {
		ve.Add("council.max_turns must be > 0")
	}
	if c.OpinionCharLimit <= 0 {
		ve.Add("council.opinion_char_limit must be > 0")
	}
	if c.HistoryWindow < 0 {
		ve.Add("council.history_window must be >= 0")
	}
	if c.MaxAttempts <= 0 {
		ve.Add("council.max_attempts must be > 0")
	}
	if c.RetryDelay < 0 {
		ve.Add("council.retry_delay must be >= 0")
	}
	if c.Timeouts.Standard <= 0 || c.Timeouts.Reasoning <= 0 {
		ve.Add("council.timeouts.standard and council.timeouts.reasoning must be > 0")
	}

	cp := c.Compaction
	if cp.TriggerRatio <= 0 || cp.TriggerRatio > 1 {
		ve.Add("council.compaction.trigger_ratio must be in (0, 1]")
	}
	if cp.TargetRatio <= 0 || cp.TargetRatio > cp.TriggerRatio {
		ve.Add("council.compaction.target_ratio must be in (0, trigger_ratio]")
	}
	if cp.MinKeep < 0 {
		ve.Add("council.compaction.min_keep must be >= 0")
	}
	if cp.DefaultLimit <= 0 {
		ve.Add("council.compaction.default_limit must be > 0")
	}
	for model, limit := range c.ContextLimits {
		if limit <= 0 {
			ve.Add("council.context_limits[%q] must be > 0", model)
		}
	}
}

var validProviderTypes = map[string]bool{
	"openai":     true,
	"anthropic":  true,
	"gemini":     true,
	"openrouter": true,
	"ollama":     true,
	"bedrock":    true,
}

func validateProviders(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool)
	for i, p := range cfg.Providers {
		if p.Name == "" {
			ve.Add("providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if !validProviderTypes[p.Type] {
			ve.Add("providers[%d].type %q is invalid (want: openai, anthropic, gemini, openrouter, ollama, bedrock)", i, p.Type)
		}
		if p.Type == "bedrock" && p.Region == "" {
			ve.Add("providers[%d] (%s): region is required for bedrock provider", i, p.Name)
		}
		if p.BaseURL != "" {
			if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				ve.Add("providers[%d] (%s): base_url %q is not a valid URL", i, p.Name, p.BaseURL)
			}
		}
		if p.RequestsPerMinute < 0 {
			ve.Add("providers[%d] (%s): requests_per_minute must be >= 0", i, p.Name)
		}
	}
}

func validateAgents(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool)
	for i, a := range cfg.Agents {
		if a.ID == "" {
			ve.Add("agents[%d].id must not be empty", i)
			continue
		}
		if seen[a.ID] {
			ve.Add("agents[%d]: duplicate agent id %q", i, a.ID)
		}
		seen[a.ID] = true

		if a.Model == "" {
			ve.Add("agents[%d] (%s): model must not be empty", i, a.ID)
		}
		if _, ok := cfg.Provider(a.Provider); !ok {
			ve.Add("agents[%d] (%s): provider %q is not configured", i, a.ID, a.Provider)
		}
		if a.ContextLimit < 0 {
			ve.Add("agents[%d] (%s): context_limit must be >= 0", i, a.ID)
		}
	}

	if r := cfg.Roles.Chair; r != "" && !seen[r] {
		ve.Add("roles.chair %q does not match any agent", r)
	}
	if r := cfg.Roles.Secretary; r != "" && !seen[r] {
		ve.Add("roles.secretary %q does not match any agent", r)
	}
}

func validateStorage(cfg *Config, ve *ValidationError) {
	switch cfg.Storage.Backend {
	case "file", "sqlite":
	default:
		ve.Add("storage.backend %q is invalid (want: file, sqlite)", cfg.Storage.Backend)
	}
	if cfg.Storage.DataDir == "" {
		ve.Add("storage.data_dir must not be empty")
	}
}

func validateTools(cfg *Config, ve *ValidationError) {
	t := cfg.Tools
	if t.SandboxRoot == "" {
		ve.Add("tools.sandbox_root must not be empty")
	}
	if t.ShellTimeout <= 0 {
		ve.Add("tools.shell_timeout must be > 0")
	}
	if t.OutputLimit <= 0 {
		ve.Add("tools.output_limit must be > 0")
	}
	if t.Browser.Timeout <= 0 {
		ve.Add("tools.browser.timeout must be > 0")
	}
	if t.Search.SearXNGURL != "" {
		if u, err := url.Parse(t.Search.SearXNGURL); err != nil || u.Scheme == "" || u.Host == "" {
			ve.Add("tools.search.searxng_url %q is not a valid URL", t.Search.SearXNGURL)
		}
	}
}

func validateTokenizer(cfg *Config, ve *ValidationError) {
	switch cfg.Tokenizer.Backend {
	case "", "estimate", "tiktoken":
	default:
		ve.Add("tokenizer.backend %q is invalid (want: estimate, tiktoken)", cfg.Tokenizer.Backend)
	}
}
