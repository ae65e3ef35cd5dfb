package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/facts"
	"github.com/michelcools-creator/gem-radar-bot/internal/llm"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
	"github.com/michelcools-creator/gem-radar-bot/internal/resilience"
)

// extractFacts runs fact extraction for processing coins that have fetched
// pages but no fact record. Facts fail closed: unparsable or transient
// failures go to retry_pending, other errors to failed. An open LLM circuit
// or a provider that cannot be built stops the stage and leaves the
// remaining coins untouched.
func (p *Pipeline) extractFacts(ctx context.Context, settings *model.Settings, tokens *model.TokenUsage) (*model.PhaseResult, error) {
	pagesByCoin := make(map[string][]model.Page)
	coins, err := p.selectProcessing(ctx, p.cfg.FactsBatchSize, func(c *model.Coin) (bool, error) {
		rec, err := p.store.LatestFacts(ctx, c.ID)
		if err != nil || rec != nil {
			return false, err
		}
		pages, err := p.store.ListPages(ctx, c.ID)
		if err != nil {
			return false, err
		}
		if !model.HasFetched(pages) {
			return false, nil
		}
		pagesByCoin[c.ID] = pages
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	outcomes := make(map[string]int)
	var processed int
	for i := range coins {
		if i > 0 {
			if err := p.delay(ctx, p.cfg.NetworkDelay()); err != nil {
				return nil, err
			}
		}
		coin := &coins[i]
		log := coinLogger(PhaseFacts, coin)

		res, err := p.facts.Extract(ctx, coin, pagesByCoin[coin.ID], settings)
		if err != nil {
			if errors.Is(err, llm.ErrCircuitOpen) || llm.IsSetupError(err) {
				return &model.PhaseResult{Processed: processed, Metadata: outcomeMeta(outcomes)},
					eris.Wrap(err, "pipeline: facts stage stopped")
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			to := factsFailureStatus(err)
			log.Warn("pipeline: fact extraction failed",
				zap.String("to", string(to)),
				zap.Error(err),
			)
			if tErr := p.transition(ctx, coin, to); tErr != nil {
				log.Warn("pipeline: facts transition failed", zap.Error(tErr))
				continue
			}
			processed++
			outcomes[string(to)]++
			p.recorder.StageCoin(PhaseFacts, string(to))
			continue
		}

		rec := &model.FactRecord{
			CoinID:    coin.ID,
			Extracted: *res.Facts,
			Sources:   res.Sources,
			Model:     res.Model,
		}
		if err := p.store.InsertFacts(ctx, rec); err != nil {
			log.Error("pipeline: store facts", zap.Error(err))
			continue
		}
		if err := p.store.TouchCoin(ctx, coin.ID); err != nil {
			log.Debug("pipeline: touch coin", zap.Error(err))
		}
		tokens.Add(model.TokenUsage{
			InputTokens:  res.Usage.InputTokens,
			OutputTokens: res.Usage.OutputTokens,
		})

		processed++
		outcomes["extracted"]++
		p.recorder.StageCoin(PhaseFacts, "extracted")
		log.Info("pipeline: facts extracted",
			zap.Int("claims", len(res.Facts.Claims)),
			zap.Int("sources", len(res.Sources)),
			zap.String("model", res.Model),
		)
	}

	return &model.PhaseResult{Processed: processed, Metadata: outcomeMeta(outcomes)}, nil
}

// factsFailureStatus maps an extraction error to the coin's next status.
func factsFailureStatus(err error) model.CoinStatus {
	switch {
	case errors.Is(err, facts.ErrNoUsablePages):
		return model.CoinStatusInsufficientData
	case errors.Is(err, facts.ErrUnparsable), resilience.IsTransient(err):
		return model.CoinStatusRetryPending
	default:
		return model.CoinStatusFailed
	}
}

func outcomeMeta(outcomes map[string]int) map[string]any {
	meta := make(map[string]any, len(outcomes))
	for k, v := range outcomes {
		meta[k] = v
	}
	return meta
}
