package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"council-ai/internal/domain"
)

// maxShellOutput bounds each captured stream so a chatty command cannot
// exhaust memory before the chair's output cap applies.
const maxShellOutput = 1 << 20

// LocalShellBackend executes commands on the local system.
type LocalShellBackend struct {
	timeout time.Duration
}

// NewLocalShellBackend creates a local shell backend. A zero timeout means
// the command is bounded only by ctx.
func NewLocalShellBackend(timeout time.Duration) *LocalShellBackend {
	return &LocalShellBackend{timeout: timeout}
}

func (b *LocalShellBackend) Name() string { return "local" }

func (b *LocalShellBackend) Execute(ctx context.Context, command string, args []string, workDir string) (string, string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = workDir
	// Background children may hold the pipes open after the shell exits.
	cmd.WaitDelay = 2 * time.Second

	stdout := &cappedBuffer{limit: maxShellOutput}
	stderr := &cappedBuffer{limit: maxShellOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if b.timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = domain.NewDomainError("LocalShellBackend.Execute", domain.ErrTimeout,
			fmt.Sprintf("command exceeded %s", b.timeout))
	}
	return stdout.String(), stderr.String(), err
}

// cappedBuffer keeps the first limit bytes written to it and discards the
// rest while still reporting full writes.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	room := c.limit - c.buf.Len()
	if room <= 0 {
		c.truncated = c.truncated || len(p) > 0
		return len(p), nil
	}
	if len(p) > room {
		c.buf.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *cappedBuffer) String() string {
	if c.truncated {
		return c.buf.String() + "\n[...truncated]"
	}
	return c.buf.String()
}
