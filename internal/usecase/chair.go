package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"council-ai/internal/domain"
	"council-ai/internal/infra/tracer"
	"council-ai/internal/usecase/directive"
)

// ChairConfig bounds the chair loop.
type ChairConfig struct {
	MaxTurns      int // default 5
	OutputLimit   int // per tool result, in characters
	ReserveTokens int
}

// ChairDeps holds the dependencies of a ChairLoop. Without a Compactor the
// history is sent as is.
type ChairDeps struct {
	Sender    domain.Sender
	Tools     domain.ToolRunner
	History   domain.HistoryStore
	Compactor *Compactor
	Limits    ContextLimits
	Bus       domain.EventBus // optional
	Logger    *slog.Logger
	Config    ChairConfig
}

// ChairLoop drives the chair through reply, directives and tool results
// until it answers without directives or runs out of turns.
type ChairLoop struct {
	deps ChairDeps
}

// NewChairLoop creates a ChairLoop with defaults applied.
func NewChairLoop(deps ChairDeps) *ChairLoop {
	if deps.Config.MaxTurns <= 0 {
		deps.Config.MaxTurns = 5
	}
	if deps.Config.OutputLimit <= 0 {
		deps.Config.OutputLimit = 20000
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Limits.fallback == 0 {
		deps.Limits = NewContextLimits(nil, 0)
	}
	return &ChairLoop{deps: deps}
}

// ChairResult is the chair's final reply.
type ChairResult struct {
	Text       string
	Reasoning  string
	Turns      int
	Directives int // directives processed across all turns, denied ones included
	Removed    int // history messages dropped by compaction between turns
	Usage      domain.Usage
	History    []domain.Message
}

// Run executes the loop. history must end with the raw question, which is
// withheld on the first turn because prompt already carries it, and must
// mirror the history store. Every history append is persisted before the
// next step, and history is compacted to the chair's window before every
// turn. Provider failures end
// the run with an error; tool failures do not.
func (c *ChairLoop) Run(ctx context.Context, chair domain.Agent, prompt domain.Prompt, history []domain.Message, systemPrompt string, perms domain.PermissionSet) (ChairResult, error) {
	var result ChairResult
	history = append([]domain.Message(nil), history...)

	for turn := 1; turn <= c.deps.Config.MaxTurns; turn++ {
		if ctx.Err() != nil {
			result.History = history
			return result, domain.Aborted("ChairLoop.Run", context.Cause(ctx))
		}

		kept, removed, err := c.compact(ctx, chair, history)
		if err != nil {
			result.History = history
			return result, err
		}
		history = kept
		result.Removed += removed

		sent := history
		if turn == 1 && len(sent) > 0 {
			sent = sent[:len(sent)-1]
		}

		reply, err := c.ask(ctx, chair, prompt, sent, systemPrompt, turn)
		if err != nil {
			result.History = history
			return result, err
		}
		result.Turns = turn
		result.Text = reply.Text
		result.Reasoning = reply.Reasoning
		result.Usage = addUsage(result.Usage, reply.Usage)

		replyMsg := newMessage(domain.RoleAssistant, reply.Text)
		replyMsg.AgentID = chair.ID
		replyMsg.Thinking = reply.Reasoning

		directives := directive.Parse(reply.Text)
		if len(directives) == 0 {
			history = append(history, replyMsg)
			if err := c.persist(ctx, replyMsg); err != nil {
				result.History = history
				return result, err
			}
			c.deps.Logger.Debug("chair: final answer", "agent", chair.ID, "turn", turn)
			result.History = history
			return result, nil
		}

		results, images := c.runDirectives(ctx, directives, perms, turn)
		result.Directives += len(results)

		toolMsg := newMessage(domain.RoleUser, ToolResultsText(results, c.deps.Config.OutputLimit))
		toolMsg.Images = images
		history = append(history, replyMsg, toolMsg)
		if err := c.persist(ctx, replyMsg, toolMsg); err != nil {
			result.History = history
			return result, err
		}

		if ctx.Err() != nil {
			result.History = history
			return result, domain.Aborted("ChairLoop.Run", context.Cause(ctx))
		}
		if turn == c.deps.Config.MaxTurns {
			c.deps.Logger.Info("chair: turn budget exhausted", "agent", chair.ID, "turns", turn)
			publishEvent(c.deps.Bus, ctx, domain.EventInfo, chair.ID,
				fmt.Sprintf("Turn limit of %d reached; the last reply is final", turn), nil)
			break
		}
		prompt = domain.TextPrompt(ContinuePrompt)
	}

	result.History = history
	return result, nil
}

func (c *ChairLoop) ask(ctx context.Context, chair domain.Agent, prompt domain.Prompt, history []domain.Message, systemPrompt string, turn int) (domain.ProviderResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "chair.turn",
		trace.WithAttributes(tracer.StringAttr("agent.id", chair.ID), tracer.IntAttr("turn", turn)),
	)
	defer span.End()

	publishEvent(c.deps.Bus, ctx, domain.EventStep, chair.ID, fmt.Sprintf("Chair turn %d", turn), nil)
	publishEvent(c.deps.Bus, ctx, domain.EventAgentThinking, chair.ID, chair.DisplayName()+" is thinking", nil)

	reply := c.deps.Sender.Send(ctx, chair, prompt, history, systemPrompt)
	if ctx.Err() != nil {
		err := domain.Aborted("ChairLoop.Run", context.Cause(ctx))
		tracer.RecordError(span, err)
		return reply, err
	}

	payload := domain.ResponsePayload{
		Model:     reply.Model,
		Role:      domain.RoleChair,
		Reasoning: reply.Reasoning,
		Error:     reply.Error,
		Tokens:    reply.Usage.TotalTokens,
	}
	if reply.Failed() {
		err := domain.NewDomainError("ChairLoop.Run", domain.ErrProviderError,
			fmt.Sprintf("chair %s: %s", chair.ID, reply.Error))
		tracer.RecordError(span, err)
		publishEvent(c.deps.Bus, ctx, domain.EventError, chair.ID, reply.Error, payload)
		return reply, err
	}

	publishEvent(c.deps.Bus, ctx, domain.EventAgentResponse, chair.ID, reply.Text, payload)
	tracer.SetOK(span)
	return reply, nil
}

// runDirectives executes the turn's directives in order. A denied
// directive yields its denial text and the next one still runs.
func (c *ChairLoop) runDirectives(ctx context.Context, directives []domain.ToolDirective, perms domain.PermissionSet, turn int) ([]ToolResult, []string) {
	results := make([]ToolResult, 0, len(directives))
	var images []string

	for _, d := range directives {
		if ctx.Err() != nil {
			break
		}
		allowed := perms.Allows(d.Kind)
		publishEvent(c.deps.Bus, ctx, domain.EventToolStart, "", d.Label(), domain.ToolStartPayload{
			Kind:     d.Kind,
			Argument: d.Primary,
			Turn:     turn,
			Allowed:  allowed,
		})

		if !allowed {
			c.deps.Logger.Info("chair: directive denied", "kind", d.Kind, "turn", turn)
			results = append(results, ToolResult{Directive: d, Denied: true})
			continue
		}

		out := c.runTool(ctx, d)
		if out.Failed() {
			c.deps.Logger.Warn("chair: tool failed", "kind", d.Kind, "turn", turn, "error", out.Error)
		}
		if out.Image != "" {
			images = append(images, out.Image)
		}
		results = append(results, ToolResult{Directive: d, Output: out})
	}
	return results, images
}

func (c *ChairLoop) runTool(ctx context.Context, d domain.ToolDirective) domain.ToolOutput {
	start := time.Now()
	out := c.deps.Tools.Run(ctx, d)
	c.deps.Logger.Debug("chair: tool finished", "kind", d.Kind, "duration", time.Since(start))
	return out
}

// compact trims history to the chair's context window and drops the same
// prefix from the store.
func (c *ChairLoop) compact(ctx context.Context, chair domain.Agent, history []domain.Message) ([]domain.Message, int, error) {
	if c.deps.Compactor == nil {
		return history, 0, nil
	}
	limit := c.deps.Limits.For(chair)
	kept, res := c.deps.Compactor.Compact(history, limit, c.deps.Config.ReserveTokens)
	if res.Removed == 0 {
		return history, 0, nil
	}
	if c.deps.History != nil {
		if err := c.deps.History.DropOldest(context.WithoutCancel(ctx), res.Removed); err != nil {
			return history, 0, domain.WrapOp("ChairLoop.compact", err)
		}
	}
	publishEvent(c.deps.Bus, ctx, domain.EventInfo, chair.ID,
		fmt.Sprintf("Compacted history: removed %d old message(s) to fit a %d-token window", res.Removed, limit), res)
	return kept, res.Removed, nil
}

// persist appends to the history store. Cancellation of ctx must not lose
// entries whose calls already returned.
func (c *ChairLoop) persist(ctx context.Context, msgs ...domain.Message) error {
	if c.deps.History == nil {
		return nil
	}
	if err := c.deps.History.Append(context.WithoutCancel(ctx), msgs...); err != nil {
		return domain.WrapOp("ChairLoop.persist", err)
	}
	return nil
}

func newMessage(role, content string) domain.Message {
	return domain.Message{
		ID:        ulid.Make().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

func addUsage(a, b domain.Usage) domain.Usage {
	return domain.Usage{
		PromptTokens:     a.PromptTokens + b.PromptTokens,
		CompletionTokens: a.CompletionTokens + b.CompletionTokens,
		TotalTokens:      a.TotalTokens + b.TotalTokens,
	}
}
