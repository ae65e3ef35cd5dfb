package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/model"
	"github.com/michelcools-creator/gem-radar-bot/internal/scorer"
)

// scoreCoins scores processing coins that have a fact record and moves them
// to deep_analysis_pending.
func (p *Pipeline) scoreCoins(ctx context.Context, settings *model.Settings) (*model.PhaseResult, error) {
	weights := settings.Weights
	if err := scorer.ValidateWeights(weights); err != nil {
		zap.L().Warn("pipeline: invalid weights, using defaults", zap.Error(err))
		weights = model.DefaultWeights()
	}
	version := settings.StrategyVersion
	if version == "" {
		version = model.DefaultStrategyVersion
	}

	factsByCoin := make(map[string]*model.FactRecord)
	coins, err := p.selectProcessing(ctx, p.cfg.ScoreBatchSize, func(c *model.Coin) (bool, error) {
		rec, err := p.store.LatestFacts(ctx, c.ID)
		if err != nil || rec == nil {
			return false, err
		}
		factsByCoin[c.ID] = rec
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	var scored int
	var sum float64
	for i := range coins {
		coin := &coins[i]
		log := coinLogger(PhaseScore, coin)

		sc := scorer.Score(&factsByCoin[coin.ID].Extracted, weights)
		sc.CoinID = coin.ID
		sc.StrategyVersion = version
		sc.AsOf = p.now().UTC()

		if err := p.store.InsertScore(ctx, &sc); err != nil {
			log.Error("pipeline: store score", zap.Error(err))
			continue
		}
		if err := p.transition(ctx, coin, model.CoinStatusDeepAnalysisPending); err != nil {
			log.Warn("pipeline: score transition failed", zap.Error(err))
			continue
		}

		scored++
		sum += sc.Overall
		p.recorder.StageCoin(PhaseScore, string(model.CoinStatusDeepAnalysisPending))
		log.Info("pipeline: coin scored",
			zap.Float64("overall", sc.Overall),
			zap.Float64("confidence", sc.Confidence),
			zap.Int("red_flags", len(sc.RedFlags)),
		)
	}

	meta := map[string]any{
		"scored":       scored,
		"weights_hash": scorer.WeightsHash(weights),
	}
	if scored > 0 {
		meta["mean_overall"] = sum / float64(scored)
	}
	return &model.PhaseResult{Processed: scored, Metadata: meta}, nil
}
