package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/analysis"
	"github.com/michelcools-creator/gem-radar-bot/internal/cost"
	"github.com/michelcools-creator/gem-radar-bot/internal/discovery"
	"github.com/michelcools-creator/gem-radar-bot/internal/facts"
	"github.com/michelcools-creator/gem-radar-bot/internal/fetcher"
	"github.com/michelcools-creator/gem-radar-bot/internal/links"
	"github.com/michelcools-creator/gem-radar-bot/internal/llm"
	"github.com/michelcools-creator/gem-radar-bot/internal/monitoring"
	"github.com/michelcools-creator/gem-radar-bot/internal/pipeline"
	"github.com/michelcools-creator/gem-radar-bot/internal/resilience"
	"github.com/michelcools-creator/gem-radar-bot/internal/store"
)

// pipelineEnv holds the store, clients and pipeline needed by the run,
// submit, reset and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Factory  *llm.Factory
	Metrics  *monitoring.Metrics
	Registry *prometheus.Registry
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// CircuitOpen reports whether the shared LLM breaker is rejecting calls.
func (pe *pipelineEnv) CircuitOpen() bool {
	return pe.Factory != nil && pe.Factory.Breaker().State() == resilience.CircuitOpen
}

// initPipeline sets up the store, fetcher, LLM factory and metrics and
// builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)

	f := newFetcher()

	factory := llm.NewFactory(cfg.LLM, nil)
	prices := cost.NewCalculator(cfg.LLM.Pricing)
	factory.OnUsage(func(phase, model string, u llm.Usage) {
		metrics.LLMTokens(phase, u.InputTokens, u.OutputTokens)
		metrics.LLMCost(phase, model, prices.LLM(model, u.InputTokens, u.OutputTokens))
	})

	p := pipeline.New(
		st,
		f,
		discovery.NewDiscoverer(f, cfg.Discovery),
		facts.NewExtractor(factory, cfg.LLM, cfg.Pipeline.PromptCharsPerPage),
		analysis.NewAnalyzer(factory, cfg.LLM, cfg.Pipeline.ExcerptChars),
		cfg.Pipeline,
		pipeline.WithResolver(links.NewResolver(links.ListingFilter(cfg.Discovery.ListingsURL))),
		pipeline.WithRecorder(metrics),
	)

	zap.L().Debug("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("respect_robots", cfg.Fetcher.RespectRobots),
	)

	return &pipelineEnv{
		Store:    st,
		Pipeline: p,
		Factory:  factory,
		Metrics:  metrics,
		Registry: reg,
	}, nil
}

func newFetcher() *fetcher.HTTPFetcher {
	opts := fetcher.HTTPOptions{
		UserAgents:        cfg.Fetcher.UserAgents,
		Timeout:           cfg.Fetcher.Timeout(),
		MaxRetries:        cfg.Fetcher.MaxRetries,
		MaxBodyBytes:      cfg.Fetcher.MaxBodyBytes,
		RequestsPerSecond: cfg.Fetcher.RequestsPerSecond,
	}
	if cfg.Fetcher.RespectRobots && len(cfg.Fetcher.UserAgents) > 0 {
		ttl := time.Duration(cfg.Fetcher.RobotsCacheTTLMins) * time.Minute
		opts.Robots = fetcher.NewRobotsChecker(nil, cfg.Fetcher.UserAgents[0], ttl)
	}
	return fetcher.NewHTTPFetcher(opts)
}

