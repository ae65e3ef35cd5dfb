package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/extract"
	"github.com/michelcools-creator/gem-radar-bot/internal/fetcher"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

const (
	defaultMaxContentChars = 50000
	defaultExcerptChars    = 500
)

// fetchPages fetches the official pages of processing coins that have no
// fetched page yet. Coins ending with zero fetched pages become insufficient_data.
func (p *Pipeline) fetchPages(ctx context.Context) (*model.PhaseResult, error) {
	coins, err := p.selectProcessing(ctx, p.cfg.FetchBatchSize, func(c *model.Coin) (bool, error) {
		pages, err := p.store.ListPages(ctx, c.ID)
		if err != nil {
			return false, err
		}
		return !model.HasFetched(pages), nil
	})
	if err != nil {
		return nil, err
	}

	statuses := make(map[string]int)
	var insufficient, withPages int
	for i := range coins {
		coin := &coins[i]
		log := coinLogger(PhaseFetch, coin)

		pages, err := p.fetchCoin(ctx, coin)
		if err != nil {
			return nil, err
		}

		fetched := 0
		for _, pg := range pages {
			statuses[string(pg.Status)]++
			if pg.Status == model.PageStatusFetched {
				fetched++
			}
		}

		if fetched == 0 {
			if err := p.transition(ctx, coin, model.CoinStatusInsufficientData); err != nil {
				log.Warn("pipeline: mark insufficient data", zap.Error(err))
				continue
			}
			insufficient++
			p.recorder.StageCoin(PhaseFetch, string(model.CoinStatusInsufficientData))
			log.Info("pipeline: no page fetched", zap.Int("attempted", len(pages)))
			continue
		}

		withPages++
		p.recorder.StageCoin(PhaseFetch, "fetched")
		log.Info("pipeline: pages fetched", zap.Int("fetched", fetched), zap.Int("attempted", len(pages)))
	}

	meta := map[string]any{
		"coins":             len(coins),
		"with_pages":        withPages,
		"insufficient_data": insufficient,
	}
	for st, n := range statuses {
		meta["pages_"+st] = n
	}
	return &model.PhaseResult{Processed: len(coins), Metadata: meta}, nil
}

// fetchCoin fetches every fetchable official link of coin in FetchOrder and
// upserts one page per URL. Only context cancellation is returned as an error.
func (p *Pipeline) fetchCoin(ctx context.Context, coin *model.Coin) ([]model.Page, error) {
	log := coinLogger(PhaseFetch, coin)
	seen := make(map[string]bool)

	var pages []model.Page
	for _, lt := range model.FetchOrder {
		u := coin.OfficialLinks[lt]
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true

		if len(pages) > 0 {
			if err := p.delay(ctx, p.cfg.NetworkDelay()); err != nil {
				return nil, err
			}
		}

		page := p.fetchPage(ctx, coin.ID, lt, u)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err := p.store.UpsertPage(ctx, page); err != nil {
			log.Warn("pipeline: store page", zap.String("url", u), zap.Error(err))
			continue
		}
		if err := p.store.TouchCoin(ctx, coin.ID); err != nil {
			log.Debug("pipeline: touch coin", zap.Error(err))
		}
		pages = append(pages, *page)
	}
	return pages, nil
}

// fetchPage downloads and classifies one URL. Every outcome becomes a page status.
func (p *Pipeline) fetchPage(ctx context.Context, coinID string, lt model.LinkType, u string) *model.Page {
	page := &model.Page{
		CoinID:    coinID,
		LinkType:  lt,
		URL:       u,
		FetchedAt: p.now().UTC(),
	}
	defer func() { p.recorder.PageFetched(page.Status) }()

	resp, err := p.fetcher.Fetch(ctx, u, nil)
	switch {
	case errors.Is(err, fetcher.ErrRobotsDisallowed):
		page.Status = model.PageStatusBlocked
		page.Error = err.Error()
		return page
	case err != nil && resp == nil:
		page.Status = model.PageStatusFailed
		page.HTTPStatus = fetcher.StatusCode(err)
		page.Error = err.Error()
		return page
	}

	out := extract.Classify(resp)
	page.Status = out.Status
	page.HTTPStatus = resp.StatusCode
	switch {
	case err != nil:
		page.Error = err.Error()
	case out.Reason != "":
		page.Error = out.Reason
	}

	maxChars := p.cfg.MaxContentChars
	if maxChars <= 0 {
		maxChars = defaultMaxContentChars
	}
	excerptChars := p.cfg.ExcerptChars
	if excerptChars <= 0 {
		excerptChars = defaultExcerptChars
	}
	text := extract.Truncate(out.Result.Text, maxChars)
	if text != "" {
		page.Title = out.Result.Title
		page.Content = text
		page.Excerpt = extract.Excerpt(text, excerptChars)
		page.Hash = extract.ContentHash(text)
	}

	zap.L().Debug("pipeline: page classified",
		zap.String("coin_id", coinID),
		zap.String("url", u),
		zap.String("status", string(page.Status)),
		zap.Int("chars", len(text)),
	)
	return page
}
