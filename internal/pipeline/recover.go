package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/model"
	"github.com/michelcools-creator/gem-radar-bot/internal/store"
)

// sweepStatuses are the in-flight statuses the stuck sweep resets.
var sweepStatuses = []model.CoinStatus{model.CoinStatusProcessing, model.CoinStatusRetryPending}

// recover re-routes retry_pending coins, then resets coins stuck in flight.
// Retries go first so a coin re-routed in this pass is not swept as stuck.
func (p *Pipeline) recover(ctx context.Context) (*model.PhaseResult, error) {
	retried, err := p.retryPending(ctx)
	if err != nil {
		return nil, err
	}

	swept, err := p.resetIdle(ctx, p.now().Add(-p.cfg.StuckAfter()))
	if err != nil {
		return nil, err
	}

	meta := map[string]any{"reset": swept}
	for to, n := range retried {
		meta["retry_to_"+string(to)] = n
	}
	total := swept
	for _, n := range retried {
		total += n
	}
	return &model.PhaseResult{Processed: total, Metadata: meta}, nil
}

// retryPending gives up on coins older than the retry age. Younger coins with
// fetched pages go back to processing for extraction only; the rest restart
// from pending.
func (p *Pipeline) retryPending(ctx context.Context) (map[model.CoinStatus]int, error) {
	coins, err := p.store.ListCoins(ctx, store.CoinFilter{
		Status: model.CoinStatusRetryPending,
		Order:  store.OrderCreatedAsc,
		Limit:  batchOrDefault(p.cfg.RetryBatchSize),
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list retry_pending coins")
	}

	moved := make(map[model.CoinStatus]int)
	now := p.now()
	for i := range coins {
		coin := &coins[i]
		log := coinLogger(PhaseRecovery, coin)

		to := model.CoinStatusPending
		if p.cfg.RetryMaxAgeHours > 0 && coin.Age(now) > p.cfg.RetryMaxAge() {
			to = model.CoinStatusFailed
		} else {
			pages, err := p.store.ListPages(ctx, coin.ID)
			if err != nil {
				log.Warn("pipeline: list pages for retry", zap.Error(err))
				continue
			}
			if model.HasFetched(pages) {
				to = model.CoinStatusProcessing
			}
		}

		if err := p.transition(ctx, coin, to); err != nil {
			log.Warn("pipeline: retry transition failed", zap.Error(err))
			continue
		}
		moved[to]++
		p.recorder.StageCoin(PhaseRecovery, string(to))
		log.Info("pipeline: retry routed", zap.String("to", string(to)))
	}
	return moved, nil
}

// resetIdle resets every processing or retry_pending coin last updated before idleBefore.
func (p *Pipeline) resetIdle(ctx context.Context, idleBefore time.Time) (int, error) {
	coins, err := p.store.ListStuckCoins(ctx, sweepStatuses, idleBefore)
	if err != nil {
		return 0, eris.Wrap(err, "pipeline: list stuck coins")
	}

	var reset int
	for i := range coins {
		coin := &coins[i]
		if err := p.store.ResetCoin(ctx, coin.ID); err != nil {
			coinLogger(PhaseRecovery, coin).Warn("pipeline: reset stuck coin", zap.Error(err))
			continue
		}
		reset++
		p.recorder.StageCoin(PhaseRecovery, "reset")
		coinLogger(PhaseRecovery, coin).Info("pipeline: reset stuck coin",
			zap.String("from", string(coin.Status)),
			zap.Time("updated_at", coin.UpdatedAt),
		)
	}
	return reset, nil
}

// ResetCoin clears a coin's pages, facts and scores and returns it to pending.
// Resetting a pending coin is a no-op.
func (p *Pipeline) ResetCoin(ctx context.Context, id string) error {
	coin, err := p.store.GetCoin(ctx, id)
	if err != nil {
		return eris.Wrapf(err, "pipeline: reset coin %s", id)
	}
	if !model.CanReset(coin.Status) {
		return nil
	}
	if err := p.store.ResetCoin(ctx, id); err != nil {
		return eris.Wrapf(err, "pipeline: reset coin %s", id)
	}
	coinLogger(PhaseRecovery, coin).Info("pipeline: coin reset", zap.String("from", string(coin.Status)))
	return nil
}

// ResetAllStuck resets every processing and retry_pending coin regardless of
// how recently it was updated.
func (p *Pipeline) ResetAllStuck(ctx context.Context) (int, error) {
	// A horizon in the future matches every in-flight coin.
	return p.resetIdle(ctx, p.now().Add(time.Minute))
}
