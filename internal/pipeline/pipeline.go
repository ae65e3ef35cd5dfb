// Package pipeline moves coins through the analysis state machine: discovery,
// link resolution, recovery, page fetching, fact extraction, scoring and deep
// analysis. Each run executes the stages once, in that order, over bounded batches.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/config"
	"github.com/michelcools-creator/gem-radar-bot/internal/discovery"
	"github.com/michelcools-creator/gem-radar-bot/internal/facts"
	"github.com/michelcools-creator/gem-radar-bot/internal/fetcher"
	"github.com/michelcools-creator/gem-radar-bot/internal/links"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
	"github.com/michelcools-creator/gem-radar-bot/internal/monitoring"
	"github.com/michelcools-creator/gem-radar-bot/internal/resilience"
	"github.com/michelcools-creator/gem-radar-bot/internal/store"
)

// Phase names as they appear in RunResult and metrics.
const (
	PhaseDiscovery    = "discovery"
	PhaseManualSubmit = "manual_submit"
	PhaseLinks        = "links"
	PhaseRecovery     = "recovery"
	PhaseFetch        = "fetch"
	PhaseFacts        = "facts"
	PhaseScore        = "score"
	PhaseDeepAnalysis = "deep_analysis"
)

// Discoverer finds candidate coins on the listings page.
type Discoverer interface {
	Discover(ctx context.Context, settings *model.Settings) ([]discovery.Listing, error)
}

// FactExtractor turns a coin's pages into a claims payload.
type FactExtractor interface {
	Extract(ctx context.Context, coin *model.Coin, pages []model.Page, settings *model.Settings) (*facts.Result, error)
}

// DeepAnalyzer produces the qualitative due-diligence record.
type DeepAnalyzer interface {
	Analyze(ctx context.Context, coin *model.Coin, fs *model.FactSet, score *model.Score, pages []model.Page, settings *model.Settings) (*model.DeepAnalysis, error)
}

// LinkResolver extracts official links from a detail page body.
type LinkResolver interface {
	Resolve(body, pageURL string) model.Links
}

// Options are the per-run trigger parameters.
type Options struct {
	ManualURL     string `json:"manual_url,omitempty"`
	ResetCoinID   string `json:"reset_coin_id,omitempty"`
	ResetAllStuck bool   `json:"reset_all_stuck,omitempty"`
}

// Pipeline orchestrates the analysis stages.
type Pipeline struct {
	store      store.Store
	fetcher    fetcher.Fetcher
	discoverer Discoverer
	facts      FactExtractor
	analyzer   DeepAnalyzer
	resolver   LinkResolver
	recorder   monitoring.Recorder
	cfg        config.PipelineConfig
	sleep      resilience.SleepFunc
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithResolver overrides the default link resolver.
func WithResolver(r LinkResolver) Option {
	return func(p *Pipeline) { p.resolver = r }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r monitoring.Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithSleep replaces the delay function (used by tests).
func WithSleep(s resilience.SleepFunc) Option {
	return func(p *Pipeline) { p.sleep = s }
}

// WithClock replaces the clock used for age and idle checks.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline with all dependencies.
func New(
	st store.Store,
	f fetcher.Fetcher,
	disc Discoverer,
	fx FactExtractor,
	an DeepAnalyzer,
	cfg config.PipelineConfig,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		store:      st,
		fetcher:    f,
		discoverer: disc,
		facts:      fx,
		analyzer:   an,
		resolver:   links.NewResolver(links.NewFilter(links.DefaultListingDomain)),
		recorder:   monitoring.NopRecorder{},
		cfg:        cfg,
		sleep:      resilience.Sleep,
		now:        time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run executes every stage once. Stage failures are recorded on the returned
// RunResult and do not stop later stages; an error is returned only when the
// run could not start (settings, resets, manual submission) or ctx ends.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*model.RunResult, error) {
	result := &model.RunResult{
		RunID:     uuid.New().String(),
		StartedAt: p.now().UTC(),
	}
	log := zap.L().With(zap.String("run_id", result.RunID))
	log.Info("pipeline: starting run",
		zap.String("manual_url", opts.ManualURL),
		zap.String("reset_coin_id", opts.ResetCoinID),
		zap.Bool("reset_all_stuck", opts.ResetAllStuck),
	)

	defer func() {
		result.FinishedAt = p.now().UTC()
		p.recorder.RunDuration(result.FinishedAt.Sub(result.StartedAt))
	}()

	settings, err := p.store.GetSettings(ctx)
	if err != nil {
		return result, eris.Wrap(err, "pipeline: load settings")
	}

	if opts.ResetCoinID != "" {
		if err := p.ResetCoin(ctx, opts.ResetCoinID); err != nil {
			return result, err
		}
	}
	if opts.ResetAllStuck {
		if _, err := p.ResetAllStuck(ctx); err != nil {
			return result, err
		}
	}

	trackPhase := func(name string, fn func() (*model.PhaseResult, error)) *model.PhaseResult {
		start := time.Now()
		phaseResult, fnErr := fn()
		duration := time.Since(start).Milliseconds()

		if phaseResult == nil {
			phaseResult = &model.PhaseResult{}
		}
		phaseResult.Name = name
		phaseResult.Duration = duration

		switch {
		case fnErr != nil:
			phaseResult.Status = model.PhaseStatusFailed
			phaseResult.Error = fnErr.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		case phaseResult.Status == model.PhaseStatusSkipped:
			log.Info("pipeline: phase skipped", zap.String("phase", name))
		default:
			phaseResult.Status = model.PhaseStatusComplete
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Int("processed", phaseResult.Processed),
			)
		}
		result.Phases = append(result.Phases, *phaseResult)
		return phaseResult
	}

	// Stage 1: discovery, or the manually submitted coin.
	var priorityID string
	if opts.ManualURL != "" {
		var submitErr error
		trackPhase(PhaseManualSubmit, func() (*model.PhaseResult, error) {
			coin, err := p.Submit(ctx, opts.ManualURL)
			if err != nil {
				submitErr = err
				return nil, err
			}
			priorityID = coin.ID
			return &model.PhaseResult{
				Processed: 1,
				Metadata:  map[string]any{"coin_id": coin.ID, "status": string(coin.Status)},
			}, nil
		})
		if submitErr != nil {
			return result, submitErr
		}
	} else {
		trackPhase(PhaseDiscovery, func() (*model.PhaseResult, error) {
			return p.discover(ctx, settings)
		})
	}

	// Stages 2-7.
	trackPhase(PhaseLinks, func() (*model.PhaseResult, error) {
		return p.resolveLinks(ctx, priorityID)
	})
	trackPhase(PhaseRecovery, func() (*model.PhaseResult, error) {
		return p.recover(ctx)
	})
	trackPhase(PhaseFetch, func() (*model.PhaseResult, error) {
		return p.fetchPages(ctx)
	})
	trackPhase(PhaseFacts, func() (*model.PhaseResult, error) {
		return p.extractFacts(ctx, settings, &result.Tokens)
	})
	trackPhase(PhaseScore, func() (*model.PhaseResult, error) {
		return p.scoreCoins(ctx, settings)
	})
	trackPhase(PhaseDeepAnalysis, func() (*model.PhaseResult, error) {
		return p.deepAnalyze(ctx, settings)
	})

	if err := ctx.Err(); err != nil {
		return result, eris.Wrap(err, "pipeline: run interrupted")
	}

	log.Info("pipeline: run complete",
		zap.Int64("input_tokens", result.Tokens.InputTokens),
		zap.Int64("output_tokens", result.Tokens.OutputTokens),
	)
	return result, nil
}

// transition moves coin to status to if the state machine allows it.
func (p *Pipeline) transition(ctx context.Context, coin *model.Coin, to model.CoinStatus) error {
	if !model.CanTransition(coin.Status, to) {
		zap.L().Error("pipeline: illegal transition refused",
			zap.String("coin_id", coin.ID),
			zap.String("from", string(coin.Status)),
			zap.String("to", string(to)),
		)
		return eris.Wrapf(model.ErrIllegalTransition, "pipeline: %s -> %s", coin.Status, to)
	}
	if err := p.store.TransitionCoin(ctx, coin.ID, coin.Status, to); err != nil {
		if errors.Is(err, store.ErrStatusConflict) {
			zap.L().Warn("pipeline: coin moved by another run",
				zap.String("coin_id", coin.ID),
				zap.String("expected", string(coin.Status)),
			)
		}
		return eris.Wrapf(err, "pipeline: transition coin %s", coin.ID)
	}
	coin.Status = to
	return nil
}

// delay pauses after an outbound call. It returns ctx's error on cancellation.
func (p *Pipeline) delay(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return p.sleep(ctx, d)
}

// processingScanWindow bounds how many processing coins a stage inspects
// when looking for its own batch.
const processingScanWindow = 200

// selectProcessing returns up to limit processing coins, oldest update first,
// for which want reports true.
func (p *Pipeline) selectProcessing(ctx context.Context, limit int, want func(*model.Coin) (bool, error)) ([]model.Coin, error) {
	coins, err := p.store.ListCoins(ctx, store.CoinFilter{
		Status: model.CoinStatusProcessing,
		Order:  store.OrderUpdatedAsc,
		Limit:  processingScanWindow,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list processing coins")
	}

	var out []model.Coin
	for i := range coins {
		if len(out) >= batchOrDefault(limit) {
			break
		}
		ok, err := want(&coins[i])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, coins[i])
		}
	}
	return out, nil
}

func batchOrDefault(n int) int {
	if n <= 0 {
		return 5
	}
	return n
}

// coinLogger scopes a logger to one coin within a stage.
func coinLogger(stage string, coin *model.Coin) *zap.Logger {
	return zap.L().With(
		zap.String("stage", stage),
		zap.String("coin_id", coin.ID),
		zap.String("coin", coin.Name),
	)
}
