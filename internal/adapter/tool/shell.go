package tool

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"council-ai/internal/domain"
	"council-ai/internal/infra/tracer"
)

// runCommand executes the directive body through the configured shell with
// the sandbox root as working directory.
func (e *Executor) runCommand(ctx context.Context, span trace.Span, d domain.ToolDirective) (domain.ToolOutput, error) {
	command := strings.TrimSpace(d.Primary)
	if command == "" {
		return domain.ToolOutput{}, domain.NewDomainError("Executor.runCommand", domain.ErrInvalidInput, "empty command")
	}
	return e.shellRun(ctx, span, command)
}

// shellRun is shared by run-command, run-diagnostics and the desktop tools.
func (e *Executor) shellRun(ctx context.Context, span trace.Span, command string) (domain.ToolOutput, error) {
	stdout, stderr, err := e.shell.Execute(ctx, e.cfg.ShellPath, []string{"-c", command}, e.sandbox.Root())
	output := formatCommandOutput(stdout, stderr)

	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, domain.ErrTimeout) {
		return text(output), domain.Aborted("Executor.shellRun", context.Cause(ctx))
	}

	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		code := exitErr.ExitCode()
		span.SetAttributes(tracer.IntAttr("tool.exit_code", code))
		return text(output), domain.NewDomainError("Executor.shellRun", domain.ErrToolFailure,
			fmt.Sprintf("command exited with code %d", code))
	case err != nil:
		return text(output), domain.WrapOp("Executor.shellRun", err)
	}

	span.SetAttributes(tracer.IntAttr("tool.exit_code", 0))
	if output == "" {
		output = "(no output)"
	}
	return text(output), nil
}

func formatCommandOutput(stdout, stderr string) string {
	stdout = strings.TrimRight(stdout, "\n")
	stderr = strings.TrimRight(stderr, "\n")
	switch {
	case stderr == "":
		return stdout
	case stdout == "":
		return "STDERR:\n" + stderr
	default:
		return stdout + "\nSTDERR:\n" + stderr
	}
}
