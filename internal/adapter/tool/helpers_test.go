package tool

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"testing"

	"council-ai/internal/domain"
	"council-ai/internal/infra/config"
	"council-ai/internal/security"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memProjects is an in-memory domain.ProjectStore.
type memProjects struct {
	mu       sync.Mutex
	settings domain.ProjectSettings
	saves    int
}

func (m *memProjects) Load(context.Context) (domain.ProjectSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, nil
}

func (m *memProjects) Save(_ context.Context, p domain.ProjectSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = p
	m.saves++
	return nil
}

// recordingShell captures commands instead of running them.
type recordingShell struct {
	mu       sync.Mutex
	commands []string
	workDirs []string
	stdout   string
	stderr   string
	err      error
	onRun    func(command string)
}

func (r *recordingShell) Name() string { return "recording" }

func (r *recordingShell) Execute(_ context.Context, _ string, args []string, workDir string) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd := args[len(args)-1]
	r.commands = append(r.commands, cmd)
	r.workDirs = append(r.workDirs, workDir)
	if r.onRun != nil {
		r.onRun(cmd)
	}
	return r.stdout, r.stderr, r.err
}

func (r *recordingShell) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.commands) == 0 {
		return ""
	}
	return r.commands[len(r.commands)-1]
}

// newTestExecutor builds an Executor over a fresh temp sandbox. mutate may
// adjust the deps before construction.
func newTestExecutor(t *testing.T, mutate func(*ExecutorDeps)) (*Executor, string) {
	t.Helper()
	sandbox, err := security.NewSandbox(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Defaults().Tools
	cfg.ShellTimeout = 0
	deps := ExecutorDeps{
		Config:  cfg,
		Sandbox: sandbox,
		Logger:  newTestLogger(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	e, err := NewExecutor(deps)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close() })
	return e, sandbox.Root()
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}
