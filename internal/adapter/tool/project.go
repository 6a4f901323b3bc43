package tool

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"council-ai/internal/domain"
)

// projectConfig merges the YAML body into the stored project settings.
// Keys present in the body replace stored values; absent keys are kept.
func (e *Executor) projectConfig(ctx context.Context, _ trace.Span, d domain.ToolDirective) (domain.ToolOutput, error) {
	if e.projects == nil {
		return domain.ToolOutput{}, domain.NewDomainError("Executor.projectConfig", domain.ErrBackendUnavailable, "no project store configured")
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(d.Secondary), &raw); err != nil {
		return domain.ToolOutput{}, domain.NewDomainError("Executor.projectConfig", domain.ErrInvalidInput,
			fmt.Sprintf("body is not YAML: %v", err))
	}
	if len(raw) == 0 {
		return domain.ToolOutput{}, domain.NewDomainError("Executor.projectConfig", domain.ErrInvalidInput, "no settings given")
	}

	settings, err := e.projects.Load(ctx)
	if err != nil {
		return domain.ToolOutput{}, err
	}

	var meta mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &settings,
		Metadata:         &meta,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return domain.ToolOutput{}, fmt.Errorf("project decoder: %w", err)
	}
	if err := dec.Decode(normalizeKeys(raw)); err != nil {
		return domain.ToolOutput{}, domain.NewDomainError("Executor.projectConfig", domain.ErrInvalidInput, err.Error())
	}
	keys := topLevelKeys(meta.Keys)
	if len(keys) == 0 {
		return domain.ToolOutput{}, domain.NewDomainError("Executor.projectConfig", domain.ErrInvalidInput,
			"no known settings; use name, language, instructions, test_command, diagnostics_command or ignore")
	}

	if err := e.projects.Save(ctx, settings); err != nil {
		return domain.ToolOutput{}, err
	}

	msg := "Saved project settings: " + strings.Join(keys, ", ")
	if len(meta.Unused) > 0 {
		sort.Strings(meta.Unused)
		msg += "\nIgnored unknown keys: " + strings.Join(meta.Unused, ", ")
	}
	e.logger.Info("tool: project settings saved", "keys", keys)
	return text(msg), nil
}

// normalizeKeys lower-cases keys and maps dashes to underscores so that
// "Test-Command" and "test_command" mean the same thing.
func normalizeKeys(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[strings.ReplaceAll(strings.ToLower(strings.TrimSpace(k)), "-", "_")] = v
	}
	return out
}

// topLevelKeys drops element entries such as "ignore[0]" from decoder
// metadata and sorts the rest.
func topLevelKeys(keys []string) []string {
	var out []string
	for _, k := range keys {
		if k != "" && !strings.Contains(k, "[") {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
