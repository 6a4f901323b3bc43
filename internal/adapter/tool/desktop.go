package tool

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"council-ai/internal/domain"
	"council-ai/internal/infra/tracer"
)

// screenCapture runs the configured screenshot command into a temp file and
// returns the image for the next chair turn.
func (e *Executor) screenCapture(ctx context.Context, span trace.Span, _ domain.ToolDirective) (domain.ToolOutput, error) {
	tmpl := e.cfg.Desktop.ScreenshotCommand
	if tmpl == "" {
		return domain.ToolOutput{}, domain.NewDomainError("Executor.screenCapture", domain.ErrBackendUnavailable, "no screenshot command configured")
	}

	dir, err := os.MkdirTemp("", "council-screen-")
	if err != nil {
		return domain.ToolOutput{}, fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	file := filepath.Join(dir, "screen.png")

	out, err := e.shellRun(ctx, span, expandTemplate(tmpl, map[string]string{"file": file}))
	if err != nil {
		return out, err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return domain.ToolOutput{}, domain.NewDomainError("Executor.screenCapture", domain.ErrToolFailure,
			fmt.Sprintf("screenshot command wrote no image: %v", err))
	}
	span.SetAttributes(tracer.IntAttr("image.size", len(data)))
	return domain.ToolOutput{
		Output: "Desktop screenshot attached.",
		Image:  base64.StdEncoding.EncodeToString(data),
	}, nil
}

// inputAction drives the mouse or keyboard through the configured commands.
func (e *Executor) inputAction(ctx context.Context, span trace.Span, d domain.ToolDirective) (domain.ToolOutput, error) {
	action := strings.ToLower(strings.TrimSpace(d.Primary))
	args := strings.TrimSpace(d.Secondary)
	span.SetAttributes(tracer.StringAttr("desktop.action", action))

	var tmpl, done string
	vars := map[string]string{}
	switch action {
	case "click", "move":
		x, y, err := parsePoint(args)
		if err != nil {
			return domain.ToolOutput{}, err
		}
		vars["x"], vars["y"] = strconv.Itoa(x), strconv.Itoa(y)
		if action == "click" {
			tmpl, done = e.cfg.Desktop.ClickCommand, fmt.Sprintf("Clicked at %d,%d", x, y)
		} else {
			tmpl, done = e.cfg.Desktop.MoveCommand, fmt.Sprintf("Moved pointer to %d,%d", x, y)
		}
	case "type":
		if err := requireArg("text", args); err != nil {
			return domain.ToolOutput{}, err
		}
		vars["text"] = args
		tmpl, done = e.cfg.Desktop.TypeCommand, fmt.Sprintf("Typed %d characters", len(args))
	case "key":
		if err := requireArg("key", args); err != nil {
			return domain.ToolOutput{}, err
		}
		vars["key"] = args
		tmpl, done = e.cfg.Desktop.KeyCommand, "Pressed "+args
	default:
		return domain.ToolOutput{}, domain.NewDomainError("Executor.inputAction", domain.ErrInvalidInput,
			fmt.Sprintf("unknown input action %q (want click, move, type or key)", action))
	}

	if tmpl == "" {
		return domain.ToolOutput{}, domain.NewDomainError("Executor.inputAction", domain.ErrBackendUnavailable,
			fmt.Sprintf("no %s command configured", action))
	}
	out, err := e.shellRun(ctx, span, expandTemplate(tmpl, vars))
	if err != nil {
		return out, err
	}
	return text(done), nil
}

// expandTemplate substitutes {name} placeholders with shell-quoted values.
func expandTemplate(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", shellQuote(v))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// parsePoint accepts "x y" or "x,y".
func parsePoint(s string) (x, y int, err error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
	if len(fields) == 2 {
		x, err = strconv.Atoi(fields[0])
		if err == nil {
			y, err = strconv.Atoi(fields[1])
		}
	}
	if len(fields) != 2 || err != nil || x < 0 || y < 0 {
		return 0, 0, domain.NewDomainError("parsePoint", domain.ErrInvalidInput,
			fmt.Sprintf("coordinates %q must be two non-negative integers, e.g. \"640 400\"", s))
	}
	return x, y, nil
}
