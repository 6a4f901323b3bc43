package tool

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"

	"council-ai/internal/domain"
	"council-ai/internal/infra/tracer"
)

// checker maps a project marker file to the command that type-checks or
// lints that kind of project.
type checker struct {
	marker  string
	command string
}

var checkers = []checker{
	{"go.mod", "go vet ./..."},
	{"Cargo.toml", "cargo check --quiet --message-format short"},
	{"tsconfig.json", "npx --no-install tsc --noEmit --pretty false"},
	{"package.json", "npx --no-install tsc --noEmit --pretty false"},
	{"pyproject.toml", "python3 -m compileall -q ."},
	{"setup.py", "python3 -m compileall -q ."},
}

// runDiagnostics runs the project's checker in the requested directory. A
// checker that exits non-zero has found problems; that is reported as
// output, not as a tool failure.
func (e *Executor) runDiagnostics(ctx context.Context, span trace.Span, d domain.ToolDirective) (domain.ToolOutput, error) {
	dir, err := e.resolvePath(d.Primary)
	if err != nil {
		return domain.ToolOutput{}, err
	}
	if info, err := e.files.Stat(dir); err != nil {
		return domain.ToolOutput{}, fmt.Errorf("stat: %w", err)
	} else if !info.IsDir() {
		dir = filepath.Dir(dir)
	}

	command, source := e.diagnosticsCommand(ctx, dir)
	if command == "" {
		return domain.ToolOutput{}, domain.NewDomainError("Executor.runDiagnostics", domain.ErrNotFound,
			"no go.mod, Cargo.toml, package.json or pyproject.toml found; set diagnostics_command with project-config")
	}
	span.SetAttributes(
		tracer.StringAttr("diagnostics.command", command),
		tracer.StringAttr("diagnostics.source", source),
	)

	out, err := e.shellRun(ctx, span, "cd "+shellQuote(dir)+" && "+command)
	header := "$ " + command + "\n"
	switch {
	case err == nil:
		if out.Output == "(no output)" {
			out.Output = "No problems found."
		}
		return text(header + out.Output), nil
	case errors.Is(err, domain.ErrToolFailure):
		return text(header + out.Output + "\n\nProblems found (" + err.Error() + ")"), nil
	default:
		return out, err
	}
}

// diagnosticsCommand picks, in order: the project's recorded command, the
// configured override, then the first marker found walking up from dir to
// the sandbox root.
func (e *Executor) diagnosticsCommand(ctx context.Context, dir string) (command, source string) {
	if e.projects != nil {
		if p, err := e.projects.Load(ctx); err == nil && p.DiagnosticsCommand != "" {
			return p.DiagnosticsCommand, "project"
		}
	}
	if e.cfg.DiagnosticsCommand != "" {
		return e.cfg.DiagnosticsCommand, "config"
	}

	root := e.sandbox.Root()
	for cur := dir; ; cur = filepath.Dir(cur) {
		for _, c := range checkers {
			if _, err := e.files.Stat(filepath.Join(cur, c.marker)); err == nil {
				return c.command, c.marker
			}
		}
		if cur == root || cur == filepath.Dir(cur) {
			return "", ""
		}
	}
}
