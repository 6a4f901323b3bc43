package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"council-ai/internal/adapter/llm"
	"council-ai/internal/adapter/store"
	"council-ai/internal/adapter/tokenizer"
	"council-ai/internal/adapter/tool"
	"council-ai/internal/domain"
	"council-ai/internal/infra/config"
	"council-ai/internal/infra/logger"
	"council-ai/internal/infra/tracer"
	"council-ai/internal/security"
	"council-ai/internal/usecase"
	"council-ai/internal/usecase/eventbus"
)

// app is the fully wired council for one ask. Close releases
// everything in reverse order of construction.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	bus      *eventbus.Bus
	council  *usecase.Council
	agents   domain.AgentStore
	stores   *store.Stores
	registry *llm.Registry

	closers []func() error
}

func (r *app) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && r.logger != nil {
			r.logger.Warn("council: shutdown step failed", "error", err)
		}
	}
}

// newApp loads the config at cfgPath and wires every component.
func newApp(ctx context.Context, cfgPath string) (_ *app, err error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigLoad, err)
	}

	rt := &app{cfg: cfg}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}
	rt.logger = log
	rt.closers = append(rt.closers, closeLog)

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() error { return shutdownTracer(context.Background()) })

	rt.registry, err = llm.NewRegistryFromConfig(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	rt.stores, err = store.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, rt.stores.Close)

	sandbox, err := security.NewSandbox(config.ExpandHome(cfg.Tools.SandboxRoot))
	if err != nil {
		return nil, err
	}
	projects := store.NewYAMLProjectStore(projectPath(sandbox.Root(), cfg.Council.ProjectFile))

	toolDeps := tool.ExecutorDeps{
		Config:   cfg.Tools,
		Sandbox:  sandbox,
		Projects: projects,
		Logger:   log,
		Browser: func() (tool.BrowserBackend, error) {
			b, err := tool.NewChromeDPBackend(cfg.Tools.Browser, log)
			if err != nil {
				return nil, err
			}
			return b, nil
		},
	}
	if cfg.Tools.Search.SearXNGURL != "" {
		toolDeps.Search = tool.NewSearXNGBackend(cfg.Tools.Search, log)
	}
	executor, err := tool.NewExecutor(toolDeps)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, executor.Close)

	rt.bus = eventbus.New(log)
	rt.closers = append(rt.closers, func() error { rt.bus.Close(); return nil })

	rpm := make(map[string]int)
	for _, p := range cfg.Providers {
		if p.RequestsPerMinute > 0 {
			rpm[p.Name] = p.RequestsPerMinute
		}
	}
	caller := usecase.NewCaller(usecase.CallerDeps{
		Providers: rt.registry,
		Logger:    log,
		Config: usecase.CallerConfig{
			MaxAttempts:       cfg.Council.MaxAttempts,
			RetryDelay:        cfg.Council.RetryDelay,
			StandardTimeout:   cfg.Council.Timeouts.Standard,
			ReasoningTimeout:  cfg.Council.Timeouts.Reasoning,
			MaxTokens:         cfg.Council.MaxTokens,
			RequestsPerMinute: rpm,
		},
	})

	var scorer *usecase.Scorer
	if cfg.Council.Scoring.Enabled {
		scorer, err = usecase.NewScorer(usecase.ScorerDeps{
			Sender: caller,
			Stats:  rt.stores.Stats,
			Bus:    rt.bus,
			Logger: log,
			Config: usecase.ScorerConfig{
				AdviceCharLimit: cfg.Council.Scoring.AdviceCharLimit,
				Timeout:         cfg.Council.Scoring.Timeout,
			},
		})
		if err != nil {
			return nil, err
		}
	}

	cp := cfg.Council.Compaction
	compactor := usecase.NewCompactor(usecase.CompactorConfig{
		TriggerRatio: cp.TriggerRatio,
		TargetRatio:  cp.TargetRatio,
		MinKeep:      cp.MinKeep,
		DefaultLimit: cp.DefaultLimit,
	}, newTokenCounter(cfg.Tokenizer, log), log)

	rt.agents = store.NewConfigAgentStore(cfgPath)
	rt.council = usecase.NewCouncil(usecase.CouncilDeps{
		Agents:    rt.agents,
		History:   rt.stores.History,
		Sender:    caller,
		Tools:     executor,
		Compactor: compactor,
		Limits:    usecase.NewContextLimits(cfg.Council.ContextLimits, cp.DefaultLimit),
		Scorer:    scorer,
		Project:   projects,
		Bus:       rt.bus,
		Logger:    log,
		Config: usecase.CouncilConfig{
			MaxTurns:         cfg.Council.MaxTurns,
			OpinionCharLimit: cfg.Council.OpinionCharLimit,
			OutputLimit:      cfg.Tools.OutputLimit,
			HistoryWindow:    cfg.Council.HistoryWindow,
			ReserveTokens:    cp.ReserveTokens,
			SystemPrompt:     cfg.Council.SystemPrompt,
		},
	})

	log.Info("council: ready",
		"providers", rt.registry.List(),
		"storage", cfg.Storage.Backend,
		"sandbox", sandbox.Root(),
	)
	return rt, nil
}

func newTokenCounter(cfg config.TokenizerConfig, log *slog.Logger) domain.TokenCounter {
	if cfg.Backend == "tiktoken" {
		return tokenizer.New(cfg.Encoding, usecase.CharEstimator{}, log)
	}
	return usecase.CharEstimator{}
}

// projectPath resolves the project settings file against the sandbox root.
func projectPath(root, file string) string {
	if file == "" {
		file = filepath.Join(".council", "project.yaml")
	}
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(root, file)
}
