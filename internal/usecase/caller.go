package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"council-ai/internal/domain"
	"council-ai/internal/infra/tracer"
)

// abortedText is the ProviderResponse.Error of a cancelled send.
const abortedText = "aborted"

// CallerConfig controls retries, timeouts and rate limits of provider calls.
type CallerConfig struct {
	MaxAttempts      int           // total attempts, default 2
	RetryDelay       time.Duration // fixed delay between attempts
	StandardTimeout  time.Duration // per attempt
	ReasoningTimeout time.Duration // per attempt, extended-reasoning models
	MaxTokens        int
	// RequestsPerMinute caps calls per provider name; zero or absent means
	// unlimited.
	RequestsPerMinute map[string]int
}

// CallerDeps holds the dependencies of a Caller.
type CallerDeps struct {
	Providers  domain.ProviderResolver
	Classifier *ErrorClassifier // nil = NewErrorClassifier()
	Logger     *slog.Logger
	Config     CallerConfig
}

// Caller implements domain.Sender on top of the vendor adapters. It never
// returns a Go error: failures are folded into ProviderResponse.Error.
type Caller struct {
	deps CallerDeps

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewCaller creates a Caller with defaults applied.
func NewCaller(deps CallerDeps) *Caller {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Classifier == nil {
		deps.Classifier = NewErrorClassifier()
	}
	if deps.Config.MaxAttempts <= 0 {
		deps.Config.MaxAttempts = 2
	}
	if deps.Config.RetryDelay < 0 {
		deps.Config.RetryDelay = 0
	}
	if deps.Config.StandardTimeout <= 0 {
		deps.Config.StandardTimeout = 3 * time.Minute
	}
	if deps.Config.ReasoningTimeout <= 0 {
		deps.Config.ReasoningTimeout = 10 * time.Minute
	}
	return &Caller{
		deps:     deps,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Send asks one agent. A retryable failure is attempted again after the
// configured delay; cancellation of ctx ends the call with "aborted".
func (c *Caller) Send(ctx context.Context, agent domain.Agent, prompt domain.Prompt, history []domain.Message, systemPrompt string) domain.ProviderResponse {
	resp := domain.ProviderResponse{
		AgentID:   agent.ID,
		AgentName: agent.DisplayName(),
		Model:     agent.Model,
	}

	ctx, span := tracer.StartSpan(ctx, "provider.send",
		trace.WithAttributes(
			tracer.StringAttr("agent.id", agent.ID),
			tracer.StringAttr("agent.provider", agent.Provider),
			tracer.StringAttr("agent.model", agent.Model),
		),
	)
	defer span.End()

	provider, err := c.deps.Providers.Get(agent.Provider)
	if err != nil {
		tracer.RecordError(span, err)
		resp.Error = err.Error()
		return resp
	}

	req := BuildChatRequest(agent.Model, prompt, history, systemPrompt, c.deps.Config.MaxTokens)
	timeout := c.TimeoutFor(agent.Model)

	var lastErr error
	for attempt := 1; attempt <= c.deps.Config.MaxAttempts; attempt++ {
		if err := c.waitTurn(ctx, agent.Provider); err != nil {
			lastErr = err
			break
		}

		chat, err := c.attempt(ctx, provider, req, timeout)
		if err == nil {
			resp.Text = strings.TrimSpace(chat.Message.Content)
			resp.Reasoning = strings.TrimSpace(chat.Message.Thinking)
			resp.Usage = chat.Usage
			if resp.Text != "" {
				span.SetAttributes(tracer.IntAttr("attempts", attempt), tracer.IntAttr("tokens", chat.Usage.TotalTokens))
				tracer.SetOK(span)
				c.deps.Logger.Debug("caller: response received",
					"agent", agent.ID, "model", agent.Model, "attempt", attempt, "tokens", chat.Usage.TotalTokens)
				return resp
			}
			err = domain.NewDomainError("Caller.Send", domain.ErrProviderError, "empty response")
		}
		lastErr = err

		classified := c.deps.Classifier.Classify(err, ctx.Err() != nil)
		if !classified.Retryable() || attempt == c.deps.Config.MaxAttempts {
			break
		}

		c.deps.Logger.Info("caller: retrying after error",
			"agent", agent.ID, "attempt", attempt, "delay", c.deps.Config.RetryDelay, "error", err)
		select {
		case <-time.After(c.deps.Config.RetryDelay):
		case <-ctx.Done():
			lastErr = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
	}

	resp.Text = ""
	if ctx.Err() != nil {
		span.SetAttributes(tracer.BoolAttr("aborted", true))
		resp.Error = abortedText
		return resp
	}
	tracer.RecordError(span, lastErr)
	resp.Error = lastErr.Error()
	c.deps.Logger.Warn("caller: send failed", "agent", agent.ID, "model", agent.Model, "error", lastErr)
	return resp
}

func (c *Caller) attempt(ctx context.Context, provider domain.LLMProvider, req domain.ChatRequest, timeout time.Duration) (*domain.ChatResponse, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	chat, err := provider.Chat(attemptCtx, req)
	if err != nil {
		// The adapter may hide the deadline inside a transport error.
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
			err = errors.Join(err, context.DeadlineExceeded)
		}
		return nil, err
	}
	if chat == nil {
		return nil, domain.NewDomainError("Caller.attempt", domain.ErrProviderError, "nil response")
	}
	return chat, nil
}

// waitTurn blocks on the provider's rate limiter, if any.
func (c *Caller) waitTurn(ctx context.Context, provider string) error {
	lim := c.limiter(provider)
	if lim == nil {
		return ctx.Err()
	}
	return lim.Wait(ctx)
}

func (c *Caller) limiter(provider string) *rate.Limiter {
	rpm := c.deps.Config.RequestsPerMinute[provider]
	if rpm <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[provider]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)
		c.limiters[provider] = lim
	}
	return lim
}

// TimeoutFor returns the per-attempt timeout class of a model.
func (c *Caller) TimeoutFor(model string) time.Duration {
	if IsReasoningModel(model) {
		return c.deps.Config.ReasoningTimeout
	}
	return c.deps.Config.StandardTimeout
}

var (
	reasoningTokens    = map[string]bool{"o1": true, "o3": true, "o4": true, "r1": true, "qwq": true}
	reasoningFragments = []string{"reasoner", "thinking", "reasoning"}
)

// IsReasoningModel reports whether a model id names an extended-reasoning
// model, e.g. "o3-mini", "deepseek-r1:70b" or "deepseek-reasoner".
func IsReasoningModel(model string) bool {
	model = strings.ToLower(model)
	for _, frag := range reasoningFragments {
		if strings.Contains(model, frag) {
			return true
		}
	}
	tokens := strings.FieldsFunc(model, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for _, tok := range tokens {
		if reasoningTokens[tok] {
			return true
		}
	}
	return false
}

// BuildChatRequest lays out a request as system prompt, history, then the
// prompt as the final user turn. Empty parts are omitted.
func BuildChatRequest(model string, prompt domain.Prompt, history []domain.Message, systemPrompt string, maxTokens int) domain.ChatRequest {
	msgs := make([]domain.Message, 0, len(history)+2)
	if strings.TrimSpace(systemPrompt) != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		msgs = append(msgs, domain.Message{Role: m.Role, Content: m.Content, Images: m.Images})
	}
	if prompt.Text != "" || len(prompt.Images) > 0 {
		msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: prompt.Text, Images: prompt.Images})
	}
	return domain.ChatRequest{
		Model:     model,
		Messages:  msgs,
		MaxTokens: maxTokens,
	}
}

var _ domain.Sender = (*Caller)(nil)
