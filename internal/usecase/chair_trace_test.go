package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"council-ai/internal/domain"
)

func TestChairLoop_LeavesToolSpansToTheRunner(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	f := newChairFixture(t, func(turn int, _ sendCall) domain.ProviderResponse {
		if turn == 1 {
			return reply("```read:/tmp/a.txt```")
		}
		return reply("done")
	})
	_, err := f.loop.Run(context.Background(), testAgent("chair", "m"),
		domain.TextPrompt("opinions"), questionHistory("q"), "", allPerms())
	require.NoError(t, err)
	require.Len(t, f.runner.Runs(), 1)

	var turns int
	for _, s := range recorder.Ended() {
		assert.False(t, strings.HasPrefix(s.Name(), "tool."), "unexpected span %q", s.Name())
		if s.Name() == "chair.turn" {
			turns++
		}
	}
	assert.Equal(t, 2, turns)
}
