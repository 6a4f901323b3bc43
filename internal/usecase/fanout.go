package usecase

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"council-ai/internal/domain"
	"council-ai/internal/infra/tracer"
)

// FanOut queries every council member concurrently.
type FanOut struct {
	sender domain.Sender
	bus    domain.EventBus
	logger *slog.Logger
}

// NewFanOut creates a FanOut. bus may be nil.
func NewFanOut(sender domain.Sender, bus domain.EventBus, logger *slog.Logger) *FanOut {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FanOut{sender: sender, bus: bus, logger: logger}
}

type indexedResponse struct {
	idx  int
	resp domain.ProviderResponse
}

// Ask sends the same question and history to every member and returns one
// response per member, in member order. A failing member does not affect
// the others. When ctx is cancelled Ask returns at once with
// domain.ErrAborted; members still in flight are reported as aborted.
func (f *FanOut) Ask(ctx context.Context, question domain.Prompt, history []domain.Message, members []domain.Agent) ([]domain.ProviderResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "council.fanout",
		trace.WithAttributes(tracer.IntAttr("members", len(members))),
	)
	defer span.End()

	responses := make([]domain.ProviderResponse, len(members))
	if len(members) == 0 {
		tracer.SetOK(span)
		return responses, nil
	}

	// Buffered so that stragglers never block after an early return.
	results := make(chan indexedResponse, len(members))
	for i, m := range members {
		publishEvent(f.bus, ctx, domain.EventAgentThinking, m.ID, m.DisplayName()+" is thinking", nil)
		go func(idx int, agent domain.Agent) {
			resp := f.sender.Send(ctx, agent, question, history, MemberPreamble(agent))
			results <- indexedResponse{idx: idx, resp: resp}
		}(i, m)
	}

	received := make([]bool, len(members))
	for n := 0; n < len(members); n++ {
		select {
		case r := <-results:
			responses[r.idx] = r.resp
			received[r.idx] = true
			f.report(ctx, members[r.idx], r.resp)
		case <-ctx.Done():
			for i, ok := range received {
				if !ok {
					responses[i] = domain.ProviderResponse{
						AgentID:   members[i].ID,
						AgentName: members[i].DisplayName(),
						Model:     members[i].Model,
						Error:     abortedText,
					}
				}
			}
			err := domain.Aborted("FanOut.Ask", context.Cause(ctx))
			tracer.RecordError(span, err)
			return responses, err
		}
	}

	if ctx.Err() != nil {
		err := domain.Aborted("FanOut.Ask", context.Cause(ctx))
		tracer.RecordError(span, err)
		return responses, err
	}

	failed := 0
	for _, r := range responses {
		if r.Failed() {
			failed++
		}
	}
	span.SetAttributes(tracer.IntAttr("failed", failed))
	tracer.SetOK(span)
	f.logger.Debug("fanout: council answered", "members", len(members), "failed", failed)
	return responses, nil
}

func (f *FanOut) report(ctx context.Context, agent domain.Agent, resp domain.ProviderResponse) {
	payload := domain.ResponsePayload{
		Model:     resp.Model,
		Role:      "member",
		Reasoning: resp.Reasoning,
		Error:     resp.Error,
		Tokens:    resp.Usage.TotalTokens,
	}
	if resp.Failed() {
		if ctx.Err() != nil {
			return
		}
		f.logger.Warn("fanout: member failed", "agent", agent.ID, "error", resp.Error)
		publishEvent(f.bus, ctx, domain.EventError, agent.ID, agent.DisplayName()+": "+resp.Error, payload)
		return
	}
	publishEvent(f.bus, ctx, domain.EventAgentResponse, agent.ID, resp.Text, payload)
}
