package usecase

import (
	"log/slog"

	"council-ai/internal/domain"
)

// Compaction defaults.
const (
	DefaultContextLimit   = 128000
	defaultTriggerRatio   = 0.8
	defaultTargetRatio    = 0.5
	defaultMinKeep        = 5
	maxReasonableTriggers = 0.95
)

// CompactorConfig holds settings for the context compactor.
type CompactorConfig struct {
	// TriggerRatio is the share of the context window above which history
	// is trimmed.
	TriggerRatio float64
	// TargetRatio is the share the retained history is trimmed down to.
	TargetRatio float64
	// MinKeep is the number of most recent messages always retained.
	MinKeep int
	// DefaultLimit applies when the model's window is unknown.
	DefaultLimit int
}

// CompactionResult reports what Compact decided.
type CompactionResult struct {
	Removed      int
	Retained     int
	TokensBefore int
	TokensAfter  int
	Limit        int
}

// Compactor keeps conversation history inside a model's context budget by
// discarding the oldest messages.
type Compactor struct {
	cfg     CompactorConfig
	counter domain.TokenCounter
	logger  *slog.Logger
}

// NewCompactor creates a compactor. A nil counter falls back to CharEstimator.
func NewCompactor(cfg CompactorConfig, counter domain.TokenCounter, logger *slog.Logger) *Compactor {
	if cfg.TriggerRatio <= 0 || cfg.TriggerRatio > maxReasonableTriggers {
		cfg.TriggerRatio = defaultTriggerRatio
	}
	if cfg.TargetRatio <= 0 || cfg.TargetRatio >= cfg.TriggerRatio {
		cfg.TargetRatio = defaultTargetRatio
	}
	if cfg.MinKeep <= 0 {
		cfg.MinKeep = defaultMinKeep
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultContextLimit
	}
	if counter == nil {
		counter = CharEstimator{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compactor{cfg: cfg, counter: counter, logger: logger}
}

// Plan decides how many of the oldest messages to drop for a model with the
// given context window, keeping reserve tokens free for the reply. It never
// leaves fewer than MinKeep messages.
func (c *Compactor) Plan(history []domain.Message, contextLimit, reserve int) CompactionResult {
	if contextLimit <= 0 {
		contextLimit = c.cfg.DefaultLimit
	}

	estimates := make([]int, len(history))
	total := 0
	for i, m := range history {
		estimates[i] = c.counter.CountMessage(m)
		total += estimates[i]
	}

	result := CompactionResult{
		Retained:     len(history),
		TokensBefore: total,
		TokensAfter:  total,
		Limit:        contextLimit,
	}

	over := float64(total) > float64(contextLimit)*c.cfg.TriggerRatio ||
		(reserve > 0 && total+reserve > contextLimit)
	if !over || len(history) <= c.cfg.MinKeep {
		return result
	}

	target := float64(contextLimit) * c.cfg.TargetRatio
	maxRemove := len(history) - c.cfg.MinKeep
	running := total
	removed := 0
	for removed < maxRemove && float64(running) > target {
		running -= estimates[removed]
		removed++
	}

	result.Removed = removed
	result.Retained = len(history) - removed
	result.TokensAfter = running
	return result
}

// Compact applies Plan and returns the retained suffix of history.
func (c *Compactor) Compact(history []domain.Message, contextLimit, reserve int) ([]domain.Message, CompactionResult) {
	res := c.Plan(history, contextLimit, reserve)
	if res.Removed == 0 {
		return history, res
	}

	c.logger.Info("compactor: trimmed history",
		"removed", res.Removed,
		"retained", res.Retained,
		"tokens_before", res.TokensBefore,
		"tokens_after", res.TokensAfter,
		"limit", res.Limit,
	)

	kept := make([]domain.Message, res.Retained)
	copy(kept, history[res.Removed:])
	return kept, res
}
