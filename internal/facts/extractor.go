package facts

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/config"
	"github.com/michelcools-creator/gem-radar-bot/internal/llm"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

// ErrNoUsablePages is returned before any LLM call when no page has enough text.
var ErrNoUsablePages = eris.New("facts: no usable pages")

// ProviderSource hands out a provider for a model selection.
type ProviderSource interface {
	Provider(sel llm.Selection) (llm.Provider, error)
}

// Result is one successful extraction.
type Result struct {
	Facts   *model.FactSet
	Sources []string
	Model   string
	Usage   llm.Usage
}

// Extractor runs fact extraction for a single coin.
type Extractor struct {
	providers    ProviderSource
	cfg          config.LLMConfig
	charsPerPage int
}

// NewExtractor creates an Extractor. charsPerPage caps each page in the prompt.
func NewExtractor(providers ProviderSource, cfg config.LLMConfig, charsPerPage int) *Extractor {
	return &Extractor{providers: providers, cfg: cfg, charsPerPage: charsPerPage}
}

// Extract builds the prompt from the coin's usable pages, calls the selected
// model and parses its answer. Provider errors are returned wrapped so that
// callers can still match llm.ErrCircuitOpen and context errors.
func (e *Extractor) Extract(ctx context.Context, coin *model.Coin, pages []model.Page, settings *model.Settings) (*Result, error) {
	usable := model.UsablePages(pages)
	if len(usable) == 0 {
		return nil, ErrNoUsablePages
	}

	sel := llm.SelectModel(settings, e.cfg)
	provider, err := e.providers.Provider(sel)
	if err != nil {
		return nil, eris.Wrap(err, "facts: provider")
	}

	temp := e.cfg.Temperature
	resp, err := provider.Complete(ctx, llm.Request{
		Model:       sel.Model,
		System:      SystemPrompt,
		User:        BuildPrompt(coin, usable, e.charsPerPage),
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: &temp,
		JSON:        true,
		Phase:       "facts",
	})
	if err != nil {
		return nil, eris.Wrapf(err, "facts: complete for coin %s", coin.ID)
	}

	fs, err := Parse(resp.Text)
	if err != nil {
		zap.L().Warn("facts: unparsable response",
			zap.String("coin_id", coin.ID),
			zap.String("model", resp.Model),
			zap.Int("response_len", len(resp.Text)),
		)
		return nil, err
	}

	sources := make([]string, 0, len(usable))
	for _, p := range usable {
		sources = append(sources, p.URL)
	}

	zap.L().Info("facts: extracted",
		zap.String("coin_id", coin.ID),
		zap.Int("claims", len(fs.Claims)),
		zap.Int("pages", len(usable)),
		zap.String("model", resp.Model),
	)

	return &Result{
		Facts:   fs,
		Sources: sources,
		Model:   resp.Model,
		Usage:   resp.Usage,
	}, nil
}
