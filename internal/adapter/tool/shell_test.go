package tool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council-ai/internal/domain"
)

func runCmd(t *testing.T, e *Executor, cmd string) domain.ToolOutput {
	t.Helper()
	return e.Run(context.Background(), domain.ToolDirective{Kind: domain.KindRunCommand, Primary: cmd})
}

func TestRunCommand_Stdout(t *testing.T) {
	requireShell(t)
	e, _ := newTestExecutor(t, nil)

	out := runCmd(t, e, "echo hello && echo world")
	require.False(t, out.Failed(), out.Error)
	assert.Equal(t, "hello\nworld", out.Output)
}

func TestRunCommand_RunsInSandboxRoot(t *testing.T) {
	requireShell(t)
	e, root := newTestExecutor(t, nil)

	out := runCmd(t, e, "echo x > made.txt && pwd")
	require.False(t, out.Failed(), out.Error)
	_, err := os.Stat(filepath.Join(root, "made.txt"))
	assert.NoError(t, err)
}

func TestRunCommand_NonZeroExit(t *testing.T) {
	requireShell(t)
	e, _ := newTestExecutor(t, nil)

	out := runCmd(t, e, "echo partial; echo oops >&2; exit 3")
	require.True(t, out.Failed())
	assert.Contains(t, out.Error, "exited with code 3")
	assert.Equal(t, "partial\nSTDERR:\noops", out.Output)
}

func TestRunCommand_NoOutput(t *testing.T) {
	requireShell(t)
	e, _ := newTestExecutor(t, nil)

	out := runCmd(t, e, "true")
	require.False(t, out.Failed(), out.Error)
	assert.Equal(t, "(no output)", out.Output)
}

func TestRunCommand_Empty(t *testing.T) {
	e, _ := newTestExecutor(t, nil)
	out := runCmd(t, e, "   ")
	assert.Contains(t, out.Error, "empty command")
}

func TestRunCommand_Timeout(t *testing.T) {
	requireShell(t)
	e, _ := newTestExecutor(t, func(d *ExecutorDeps) {
		d.Shell = NewLocalShellBackend(200 * time.Millisecond)
	})

	start := time.Now()
	out := runCmd(t, e, "sleep 5")
	assert.Less(t, time.Since(start), 4*time.Second)
	require.True(t, out.Failed())
	assert.Contains(t, out.Error, "timed out")
	assert.Contains(t, out.Error, transientHint)
}

func TestRunCommand_CancelledContext(t *testing.T) {
	requireShell(t)
	e, _ := newTestExecutor(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	out := e.Run(ctx, domain.ToolDirective{Kind: domain.KindRunCommand, Primary: "sleep 5"})
	require.True(t, out.Failed())
	assert.Contains(t, out.Error, "aborted")
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 5}
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, _ = b.Write([]byte("defgh"))
	assert.Equal(t, 5, n)
	b.Write([]byte("more"))
	assert.Equal(t, "abcde\n[...truncated]", b.String())
}

func TestFormatCommandOutput(t *testing.T) {
	assert.Equal(t, "out", formatCommandOutput("out\n", ""))
	assert.Equal(t, "STDERR:\nerr", formatCommandOutput("", "err\n"))
	assert.True(t, strings.HasPrefix(formatCommandOutput("a", "b"), "a\nSTDERR:\n"))
}
