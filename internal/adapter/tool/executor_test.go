package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"council-ai/internal/domain"
)

func TestNewExecutor_RequiresSandbox(t *testing.T) {
	_, err := NewExecutor(ExecutorDeps{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestExecutor_HandlesEveryKind(t *testing.T) {
	e, _ := newTestExecutor(t, nil)
	for _, k := range domain.AllDirectiveKinds {
		assert.Contains(t, e.handlers, k, "no handler for %s", k)
	}
}

func TestExecutor_UnknownKind(t *testing.T) {
	e, _ := newTestExecutor(t, nil)
	out := e.Run(context.Background(), domain.ToolDirective{Kind: "teleport"})
	assert.True(t, out.Failed())
	assert.Contains(t, out.Error, "unknown directive kind")
}

func TestExecutor_PanicBecomesError(t *testing.T) {
	e, _ := newTestExecutor(t, nil)
	e.handlers[domain.KindRunCommand] = func(context.Context, trace.Span, domain.ToolDirective) (domain.ToolOutput, error) {
		panic("boom")
	}
	out := e.Run(context.Background(), domain.ToolDirective{Kind: domain.KindRunCommand, Primary: "ls"})
	assert.Contains(t, out.Error, "boom")
	assert.Contains(t, out.Error, domain.ErrToolFailure.Error())
}

func TestExecutor_TransientErrorsAreMarked(t *testing.T) {
	e, _ := newTestExecutor(t, func(d *ExecutorDeps) {
		d.Search = &fakeSearch{err: domain.NewDomainError("search", domain.ErrBackendUnavailable, "connection refused")}
	})
	out := e.Run(context.Background(), domain.ToolDirective{Kind: domain.KindWebSearch, Primary: "go generics"})
	require.True(t, out.Failed())
	assert.Contains(t, out.Error, transientHint)
}

func TestExecutor_ErrorKeepsPartialOutput(t *testing.T) {
	shell := &recordingShell{stdout: "FAIL pkg/x\n", err: errors.New("boom")}
	e, _ := newTestExecutor(t, func(d *ExecutorDeps) { d.Shell = shell })

	out := e.Run(context.Background(), domain.ToolDirective{Kind: domain.KindRunCommand, Primary: "go test ./..."})
	assert.True(t, out.Failed())
	assert.Equal(t, "FAIL pkg/x", out.Output)
}

func TestExecutor_CloseWithoutBrowser(t *testing.T) {
	e, _ := newTestExecutor(t, nil)
	assert.NoError(t, e.Close())
}
