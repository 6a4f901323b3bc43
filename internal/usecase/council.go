package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"council-ai/internal/domain"
	"council-ai/internal/infra/tracer"
)

// CouncilConfig holds orchestration settings.
type CouncilConfig struct {
	MaxTurns         int
	OpinionCharLimit int
	OutputLimit      int
	HistoryWindow    int // messages forwarded to members; 0 = none
	ReserveTokens    int
	SystemPrompt     string // appended to the chair's system prompt
}

// CouncilDeps holds the dependencies of a Council. Scorer, Project and Bus
// are optional.
type CouncilDeps struct {
	Agents    domain.AgentStore
	History   domain.HistoryStore
	Sender    domain.Sender
	Tools     domain.ToolRunner
	Compactor *Compactor
	Limits    ContextLimits
	Scorer    *Scorer
	Project   domain.ProjectStore
	Bus       domain.EventBus
	Logger    *slog.Logger
	Config    CouncilConfig
}

// Council answers one question at a time: compaction, fan-out, chair loop
// and background scoring.
type Council struct {
	deps   CouncilDeps
	fanout *FanOut
	chair  *ChairLoop
}

// NewCouncil wires a Council.
func NewCouncil(deps CouncilDeps) *Council {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Config.OpinionCharLimit <= 0 {
		deps.Config.OpinionCharLimit = 4000
	}
	if deps.Config.HistoryWindow < 0 {
		deps.Config.HistoryWindow = 0
	}
	if deps.Compactor == nil {
		deps.Compactor = NewCompactor(CompactorConfig{}, nil, deps.Logger)
	}
	if deps.Limits.fallback == 0 {
		deps.Limits = NewContextLimits(nil, 0)
	}
	return &Council{
		deps:   deps,
		fanout: NewFanOut(deps.Sender, deps.Bus, deps.Logger),
		chair: NewChairLoop(ChairDeps{
			Sender:    deps.Sender,
			Tools:     deps.Tools,
			History:   deps.History,
			Compactor: deps.Compactor,
			Limits:    deps.Limits,
			Bus:       deps.Bus,
			Logger:    deps.Logger,
			Config: ChairConfig{
				MaxTurns:      deps.Config.MaxTurns,
				OutputLimit:   deps.Config.OutputLimit,
				ReserveTokens: deps.Config.ReserveTokens,
			},
		}),
	}
}

// Answer is the result of Ask.
type Answer struct {
	AskID     string
	Text      string
	Reasoning string
	Chair     domain.Agent
	Opinions  []domain.ProviderResponse // one per member, in member order
	Turns     int
	Removed   int // history messages dropped by compaction
	Usage     domain.Usage
	// Scoring is the detached scoring task, nil without a secretary.
	Scoring *ScoreTask
}

// Ask runs the whole pipeline for one question. Cancellation of ctx yields
// an error matching domain.ErrAborted; history appended before that point
// is kept.
func (c *Council) Ask(ctx context.Context, question string, images []string) (Answer, error) {
	askID := ulid.Make().String()
	ctx = domain.ContextWithAskID(ctx, askID)
	ctx, span := tracer.StartSpan(ctx, "council.ask", trace.WithAttributes(tracer.StringAttr("ask.id", askID)))
	defer span.End()

	answer, err := c.ask(ctx, askID, question, images)
	switch {
	case err == nil:
		tracer.SetOK(span)
	case domain.IsAborted(err):
		span.SetAttributes(tracer.BoolAttr("aborted", true))
		c.deps.Logger.Info("council: ask aborted", "ask", askID)
		publishEvent(c.deps.Bus, ctx, domain.EventInfo, "", "Aborted", nil)
	default:
		tracer.RecordError(span, err)
		c.deps.Logger.Error("council: ask failed", "ask", askID, "error", err)
		publishEvent(c.deps.Bus, ctx, domain.EventError, "", err.Error(), nil)
	}
	return answer, err
}

func (c *Council) ask(ctx context.Context, askID, question string, images []string) (Answer, error) {
	answer := Answer{AskID: askID}
	question = strings.TrimSpace(question)
	if question == "" && len(images) == 0 {
		return answer, domain.NewDomainError("Council.Ask", domain.ErrInvalidInput, "empty question")
	}

	publishEvent(c.deps.Bus, ctx, domain.EventStep, "", "Preparing the council", nil)
	lineup, perms, err := c.lineup(ctx)
	if err != nil {
		return answer, err
	}
	answer.Chair = lineup.Chair

	history, removed, err := c.compact(ctx, lineup)
	if err != nil {
		return answer, err
	}
	answer.Removed = removed

	if err := ctx.Err(); err != nil {
		return answer, domain.Aborted("Council.Ask", context.Cause(ctx))
	}

	questionMsg := newMessage(domain.RoleUser, question)
	questionMsg.Images = images
	if err := c.deps.History.Append(context.WithoutCancel(ctx), questionMsg); err != nil {
		return answer, domain.WrapOp("Council.Ask", err)
	}
	prior := history
	history = append(history, questionMsg)

	prompt := domain.Prompt{Text: question, Images: images}
	if len(lineup.Members) > 0 {
		publishEvent(c.deps.Bus, ctx, domain.EventStep, "",
			fmt.Sprintf("Consulting %d council member(s)", len(lineup.Members)), nil)
		answer.Opinions, err = c.fanout.Ask(ctx, prompt, lastN(prior, c.deps.Config.HistoryWindow), lineup.Members)
		if err != nil {
			return answer, err
		}
	} else {
		publishEvent(c.deps.Bus, ctx, domain.EventInfo, "", "No council members are enabled; the chair answers alone", nil)
	}

	project := c.loadProject(ctx)
	system := ChairSystemPrompt(lineup.Chair, perms, project, c.deps.Config.SystemPrompt)
	chairPrompt := domain.Prompt{
		Text:   ChairPrompt(question, answer.Opinions, c.deps.Config.OpinionCharLimit),
		Images: images,
	}

	publishEvent(c.deps.Bus, ctx, domain.EventStep, lineup.Chair.ID, lineup.Chair.DisplayName()+" is chairing", nil)
	result, err := c.chair.Run(ctx, lineup.Chair, chairPrompt, history, system, perms)
	answer.Turns = result.Turns
	answer.Removed += result.Removed
	if err != nil {
		return answer, err
	}
	answer.Text = result.Text
	answer.Reasoning = result.Reasoning
	answer.Usage = result.Usage

	publishEvent(c.deps.Bus, ctx, domain.EventSuccess, lineup.Chair.ID, result.Text, domain.ResponsePayload{
		Model:     lineup.Chair.Model,
		Role:      domain.RoleChair,
		Reasoning: result.Reasoning,
		Tokens:    result.Usage.TotalTokens,
	})
	c.deps.Logger.Info("council: answered", "ask", askID, "chair", lineup.Chair.ID,
		"members", len(lineup.Members), "turns", result.Turns)

	if c.deps.Scorer != nil && lineup.Secretary != nil {
		answer.Scoring = c.deps.Scorer.Start(ctx, ScoreInput{
			Question:    question,
			Opinions:    answer.Opinions,
			Chair:       lineup.Chair,
			ChairAnswer: result.Text,
			Secretary:   *lineup.Secretary,
		})
	}
	return answer, nil
}

func (c *Council) lineup(ctx context.Context) (domain.Lineup, domain.PermissionSet, error) {
	agents, err := c.deps.Agents.Agents(ctx)
	if err != nil {
		return domain.Lineup{}, domain.PermissionSet{}, domain.WrapOp("Council.lineup", err)
	}
	roles, err := c.deps.Agents.Roles(ctx)
	if err != nil {
		return domain.Lineup{}, domain.PermissionSet{}, domain.WrapOp("Council.lineup", err)
	}
	perms, err := c.deps.Agents.Permissions(ctx)
	if err != nil {
		return domain.Lineup{}, domain.PermissionSet{}, domain.WrapOp("Council.lineup", err)
	}
	lineup, err := domain.ResolveLineup(agents, roles)
	if err != nil {
		return domain.Lineup{}, domain.PermissionSet{}, err
	}
	return lineup, perms, nil
}

// compact trims stored history against the smallest context window among
// the participants and drops the same prefix from the store.
func (c *Council) compact(ctx context.Context, lineup domain.Lineup) ([]domain.Message, int, error) {
	history, err := c.deps.History.Load(ctx)
	if err != nil {
		return nil, 0, domain.WrapOp("Council.compact", err)
	}

	participants := append([]domain.Agent{lineup.Chair}, lineup.Members...)
	limit := c.deps.Limits.Smallest(participants...)
	kept, res := c.deps.Compactor.Compact(history, limit, c.deps.Config.ReserveTokens)
	if res.Removed == 0 {
		return kept, 0, nil
	}

	if err := c.deps.History.DropOldest(ctx, res.Removed); err != nil {
		return nil, 0, domain.WrapOp("Council.compact", err)
	}
	publishEvent(c.deps.Bus, ctx, domain.EventInfo, "",
		fmt.Sprintf("Compacted history: removed %d old message(s) to fit a %d-token window", res.Removed, limit), res)
	return kept, res.Removed, nil
}

func (c *Council) loadProject(ctx context.Context) domain.ProjectSettings {
	if c.deps.Project == nil {
		return domain.ProjectSettings{}
	}
	p, err := c.deps.Project.Load(ctx)
	if err != nil {
		c.deps.Logger.Warn("council: project settings unreadable", "error", err)
		return domain.ProjectSettings{}
	}
	return p
}

// lastN returns the trailing n messages of msgs.
func lastN(msgs []domain.Message, n int) []domain.Message {
	if n <= 0 {
		return nil
	}
	if len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
