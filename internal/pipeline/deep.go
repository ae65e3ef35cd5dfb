package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/analysis"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
	"github.com/michelcools-creator/gem-radar-bot/internal/store"
)

// deepAnalyze runs the qualitative pass for deep_analysis_pending coins,
// oldest update first. It fails open: an analysis error, including an open
// LLM circuit, is stored as a failed record and the coin still becomes
// analyzed.
func (p *Pipeline) deepAnalyze(ctx context.Context, settings *model.Settings) (*model.PhaseResult, error) {
	coins, err := p.store.ListCoins(ctx, store.CoinFilter{
		Status: model.CoinStatusDeepAnalysisPending,
		Order:  store.OrderUpdatedAsc,
		Limit:  batchOrDefault(p.cfg.DeepBatchSize),
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list deep_analysis_pending coins")
	}

	var analyzed, failed int
	for i := range coins {
		if i > 0 {
			if err := p.delay(ctx, p.cfg.NetworkDelay()); err != nil {
				return nil, err
			}
		}
		coin := &coins[i]
		log := coinLogger(PhaseDeepAnalysis, coin)

		fs, sc, pages, err := p.analysisInputs(ctx, coin.ID)
		if err != nil {
			log.Warn("pipeline: load analysis inputs", zap.Error(err))
			continue
		}

		da, err := p.analyzer.Analyze(ctx, coin, fs, sc, pages, settings)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("pipeline: deep analysis failed, storing failure", zap.Error(err))
			da = analysis.Failed(coin.ID, err)
		}
		da.CoinID = coin.ID

		if err := p.store.InsertDeepAnalysis(ctx, da); err != nil {
			log.Error("pipeline: store deep analysis", zap.Error(err))
		}
		if err := p.transition(ctx, coin, model.CoinStatusAnalyzed); err != nil {
			log.Warn("pipeline: deep analysis transition failed", zap.Error(err))
			continue
		}

		if da.Failed {
			failed++
			p.recorder.StageCoin(PhaseDeepAnalysis, "failed_open")
		} else {
			analyzed++
			p.recorder.StageCoin(PhaseDeepAnalysis, string(model.CoinStatusAnalyzed))
		}
		log.Info("pipeline: coin analyzed", zap.Bool("analysis_failed", da.Failed))
	}

	return &model.PhaseResult{
		Processed: analyzed + failed,
		Metadata:  map[string]any{"analyzed": analyzed, "failed": failed},
	}, nil
}

// analysisInputs loads the latest facts and score plus the pages of a coin.
// Missing facts or score are tolerated.
func (p *Pipeline) analysisInputs(ctx context.Context, coinID string) (*model.FactSet, *model.Score, []model.Page, error) {
	fs := &model.FactSet{}
	rec, err := p.store.LatestFacts(ctx, coinID)
	if err != nil {
		return nil, nil, nil, err
	}
	if rec != nil {
		fs = &rec.Extracted
	}

	sc, err := p.store.LatestScore(ctx, coinID)
	if err != nil {
		return nil, nil, nil, err
	}
	if sc == nil {
		sc = &model.Score{CoinID: coinID}
	}

	pages, err := p.store.ListPages(ctx, coinID)
	if err != nil {
		return nil, nil, nil, err
	}
	return fs, sc, pages, nil
}
