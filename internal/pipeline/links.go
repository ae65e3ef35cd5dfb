package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/model"
	"github.com/michelcools-creator/gem-radar-bot/internal/store"
)

// resolveLinks fetches the detail page of pending coins and moves them to
// processing. priorityID, when set, is handled first.
func (p *Pipeline) resolveLinks(ctx context.Context, priorityID string) (*model.PhaseResult, error) {
	limit := batchOrDefault(p.cfg.LinkBatchSize)
	coins, err := p.store.ListCoins(ctx, store.CoinFilter{
		Status: model.CoinStatusPending,
		Order:  store.OrderCreatedAsc,
		Limit:  limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list pending coins")
	}
	coins, err = p.prioritize(ctx, coins, priorityID, limit)
	if err != nil {
		return nil, err
	}

	var resolved, failed, linkCount int
	for i := range coins {
		if i > 0 {
			if err := p.delay(ctx, p.cfg.LinkDelay()); err != nil {
				return nil, err
			}
		}
		coin := &coins[i]
		log := coinLogger(PhaseLinks, coin)

		n, err := p.resolveCoinLinks(ctx, coin)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			p.recorder.StageCoin(PhaseLinks, "failed")
			log.Warn("pipeline: resolve links failed", zap.Error(err))
			continue
		}
		resolved++
		linkCount += n
		p.recorder.StageCoin(PhaseLinks, string(coin.Status))
		log.Info("pipeline: links resolved", zap.Int("links", n))
	}

	return &model.PhaseResult{
		Processed: resolved,
		Metadata: map[string]any{
			"selected": len(coins),
			"resolved": resolved,
			"failed":   failed,
			"links":    linkCount,
		},
	}, nil
}

// prioritize moves the coin with id first, loading it when it fell outside the batch.
func (p *Pipeline) prioritize(ctx context.Context, coins []model.Coin, id string, limit int) ([]model.Coin, error) {
	if id == "" {
		return coins, nil
	}
	for i := range coins {
		if coins[i].ID == id {
			out := append([]model.Coin{coins[i]}, coins[:i]...)
			return append(out, coins[i+1:]...), nil
		}
	}

	coin, err := p.store.GetCoin(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load priority coin")
	}
	if coin.Status != model.CoinStatusPending {
		return coins, nil
	}
	out := append([]model.Coin{*coin}, coins...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// resolveCoinLinks fetches one detail page, stores its official links and
// advances the coin. A coin without any links still advances; the fetch
// stage then finds nothing to fetch and marks it insufficient_data.
func (p *Pipeline) resolveCoinLinks(ctx context.Context, coin *model.Coin) (int, error) {
	if coin.DetailURL == "" {
		return 0, eris.New("pipeline: coin has no detail url")
	}

	resp, err := p.fetcher.Fetch(ctx, coin.DetailURL, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "pipeline: fetch detail page %s", coin.DetailURL)
	}

	pageURL := resp.URL
	if pageURL == "" {
		pageURL = coin.DetailURL
	}
	found := p.resolver.Resolve(string(resp.Body), pageURL)
	if found == nil {
		found = model.Links{}
	}
	found.Merge(coin.OfficialLinks)
	if err := p.store.UpdateCoinLinks(ctx, coin.ID, found); err != nil {
		return 0, eris.Wrap(err, "pipeline: store links")
	}
	coin.OfficialLinks = found

	if err := p.transition(ctx, coin, model.CoinStatusProcessing); err != nil {
		return 0, err
	}
	return len(found), nil
}
