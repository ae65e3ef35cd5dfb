package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/discovery"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
	"github.com/michelcools-creator/gem-radar-bot/internal/store"
)

// ErrInvalidDetailURL is returned by Submit for URLs that are not coin detail pages.
var ErrInvalidDetailURL = eris.New("pipeline: not a coin detail url")

// discover stores every new listing as a pending coin. Discovery itself never
// fails the run; only store errors are reported.
func (p *Pipeline) discover(ctx context.Context, settings *model.Settings) (*model.PhaseResult, error) {
	if p.discoverer == nil {
		return &model.PhaseResult{Status: model.PhaseStatusSkipped}, nil
	}

	listings, err := p.discoverer.Discover(ctx, settings)
	if err != nil {
		zap.L().Warn("pipeline: discovery failed", zap.Error(err))
		return &model.PhaseResult{Metadata: map[string]any{"error": err.Error()}}, nil
	}

	var created, known int
	for _, l := range listings {
		existing, err := p.store.FindCoinByDetailURL(ctx, l.DetailURL)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: lookup listing")
		}
		if existing != nil {
			known++
			continue
		}

		coin := &model.Coin{
			Name:      l.Name,
			Symbol:    l.Symbol,
			DetailURL: l.DetailURL,
			Source:    model.CoinSourceAuto,
		}
		if err := p.store.CreateCoin(ctx, coin); err != nil {
			if errors.Is(err, store.ErrDuplicateCoin) {
				known++
				continue
			}
			return nil, eris.Wrap(err, "pipeline: create discovered coin")
		}
		created++
		p.recorder.StageCoin(PhaseDiscovery, string(model.CoinStatusPending))
		zap.L().Info("pipeline: discovered coin",
			zap.String("coin_id", coin.ID),
			zap.String("name", coin.Name),
			zap.String("symbol", coin.Symbol),
		)
	}

	return &model.PhaseResult{
		Processed: created,
		Metadata: map[string]any{
			"listings": len(listings),
			"created":  created,
			"known":    known,
		},
	}, nil
}

// Submit adds a coin by its detail URL. The provisional name and symbol come
// from the page's H1 or title, falling back to the URL slug. Submitting a URL
// that is already tracked returns the existing coin.
func (p *Pipeline) Submit(ctx context.Context, rawURL string) (*model.Coin, error) {
	canonical, slug, ok := discovery.ParseDetailURL(rawURL)
	if !ok {
		return nil, eris.Wrapf(ErrInvalidDetailURL, "pipeline: submit %q", rawURL)
	}

	existing, err := p.store.FindCoinByDetailURL(ctx, canonical)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: lookup submitted url")
	}
	if existing != nil {
		zap.L().Info("pipeline: submitted coin already tracked",
			zap.String("coin_id", existing.ID),
			zap.String("status", string(existing.Status)),
		)
		return existing, nil
	}

	name, symbol := p.identify(ctx, canonical)
	if name == "" {
		name = discovery.NameFromSlug(slug)
	}
	if symbol == "" {
		symbol = discovery.SymbolFromSlug(slug)
	}

	coin := &model.Coin{
		Name:      name,
		Symbol:    symbol,
		DetailURL: canonical,
		Source:    model.CoinSourceManual,
	}
	if err := p.store.CreateCoin(ctx, coin); err != nil {
		if !errors.Is(err, store.ErrDuplicateCoin) {
			return nil, eris.Wrap(err, "pipeline: create submitted coin")
		}
		dup, findErr := p.store.FindCoinByNameSymbol(ctx, name, symbol)
		if findErr != nil || dup == nil {
			return nil, eris.Wrap(err, "pipeline: create submitted coin")
		}
		return dup, nil
	}

	p.recorder.StageCoin(PhaseManualSubmit, string(model.CoinStatusPending))
	zap.L().Info("pipeline: submitted coin",
		zap.String("coin_id", coin.ID),
		zap.String("name", coin.Name),
		zap.String("symbol", coin.Symbol),
	)
	return coin, nil
}

// identify fetches the detail page for a provisional name and symbol.
// Fetch failures are not fatal: the caller falls back to the slug.
func (p *Pipeline) identify(ctx context.Context, detailURL string) (name, symbol string) {
	resp, err := p.fetcher.Fetch(ctx, detailURL, nil)
	if err != nil {
		zap.L().Warn("pipeline: fetch submitted detail page",
			zap.String("url", detailURL),
			zap.Error(err),
		)
		return "", ""
	}
	return discovery.DetailIdentity(string(resp.Body))
}
