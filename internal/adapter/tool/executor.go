// Package tool performs the side effects the chair asks for through
// directives: shell commands, file access, browsing, web search, desktop
// control, diagnostics and project settings.
package tool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"council-ai/internal/domain"
	"council-ai/internal/infra/config"
	"council-ai/internal/infra/tracer"
	"council-ai/internal/security"
)

// transientHint is appended to errors the chair may simply retry.
const transientHint = " (transient error, may succeed on retry)"

// handlerFunc performs one directive kind.
type handlerFunc func(ctx context.Context, span trace.Span, d domain.ToolDirective) (domain.ToolOutput, error)

// BrowserFactory creates the browser backend on first use.
type BrowserFactory func() (BrowserBackend, error)

// ExecutorDeps holds the executor's collaborators. Only Sandbox is required;
// every other backend falls back to a local default or is reported as
// unavailable when its directive runs.
type ExecutorDeps struct {
	Config   config.ToolsConfig
	Sandbox  *security.Sandbox
	Shell    ShellBackend
	Files    FilesystemBackend
	Browser  BrowserFactory
	Search   SearchBackend
	Projects domain.ProjectStore
	Logger   *slog.Logger
}

// Executor implements domain.ToolRunner.
type Executor struct {
	cfg      config.ToolsConfig
	sandbox  *security.Sandbox
	shell    ShellBackend
	files    FilesystemBackend
	search   SearchBackend
	projects domain.ProjectStore
	logger   *slog.Logger

	browserMu      sync.Mutex
	browser        BrowserBackend
	browserFactory BrowserFactory

	handlers map[domain.DirectiveKind]handlerFunc
}

var _ domain.ToolRunner = (*Executor)(nil)

// NewExecutor creates an Executor.
func NewExecutor(deps ExecutorDeps) (*Executor, error) {
	if deps.Sandbox == nil {
		return nil, domain.NewDomainError("NewExecutor", domain.ErrInvalidInput, "sandbox is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Config.ShellPath == "" {
		deps.Config.ShellPath = "/bin/sh"
	}
	if deps.Shell == nil {
		deps.Shell = NewLocalShellBackend(deps.Config.ShellTimeout)
	}
	if deps.Files == nil {
		deps.Files = NewLocalFilesystemBackend()
	}
	if deps.Config.Search.MaxResults <= 0 {
		deps.Config.Search.MaxResults = 8
	}

	e := &Executor{
		cfg:            deps.Config,
		sandbox:        deps.Sandbox,
		shell:          deps.Shell,
		files:          deps.Files,
		search:         deps.Search,
		projects:       deps.Projects,
		logger:         deps.Logger,
		browserFactory: deps.Browser,
	}
	e.handlers = map[domain.DirectiveKind]handlerFunc{
		domain.KindRunCommand:     e.runCommand,
		domain.KindWriteFile:      e.writeFile,
		domain.KindEditFile:       e.editFile,
		domain.KindReadFile:       e.readFile,
		domain.KindListTree:       e.listTree,
		domain.KindSearchText:     e.searchText,
		domain.KindOpenURL:        e.openURL,
		domain.KindWebSearch:      e.webSearch,
		domain.KindPageAction:     e.pageAction,
		domain.KindScreenCapture:  e.screenCapture,
		domain.KindInputAction:    e.inputAction,
		domain.KindRunDiagnostics: e.runDiagnostics,
		domain.KindProjectConfig:  e.projectConfig,
	}
	return e, nil
}

// Run performs d and reports failures in the returned ToolOutput.
func (e *Executor) Run(ctx context.Context, d domain.ToolDirective) (out domain.ToolOutput) {
	spanName := "tool." + string(d.Kind)
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(
			tracer.StringAttr("tool.kind", string(d.Kind)),
			tracer.IntAttr("tool.position", d.Position),
		),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: %s panicked: %v", domain.ErrToolFailure, d.Kind, r)
			tracer.RecordError(span, err)
			e.logger.Error("tool: handler panicked", "kind", d.Kind, "panic", r)
			out = domain.ToolOutput{Error: err.Error()}
		}
	}()

	handler, ok := e.handlers[d.Kind]
	if !ok {
		err := domain.NewDomainError("Executor.Run", domain.ErrUnknownDirective, string(d.Kind))
		tracer.RecordError(span, err)
		return domain.ToolOutput{Error: err.Error()}
	}

	out, err := handler(ctx, span, d)
	if err != nil {
		tracer.RecordError(span, err)
		e.logger.Warn("tool: "+string(d.Kind)+" failed", "target", d.Label(), "error", err)
		msg := err.Error()
		if classifyToolError(err) {
			msg += transientHint
		}
		out.Error = msg
		return out
	}

	span.SetAttributes(
		tracer.IntAttr("tool.output_len", len(out.Output)),
		tracer.BoolAttr("tool.image", out.Image != ""),
	)
	tracer.SetOK(span)
	e.logger.Debug("tool: "+string(d.Kind)+" completed", "target", d.Label(), "output_len", len(out.Output))
	return out
}

// Close releases the browser, if one was started.
func (e *Executor) Close() error {
	e.browserMu.Lock()
	defer e.browserMu.Unlock()
	if e.browser == nil {
		return nil
	}
	err := e.browser.Close()
	e.browser = nil
	return err
}

func text(s string) domain.ToolOutput { return domain.ToolOutput{Output: s} }
