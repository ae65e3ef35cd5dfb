package analysis

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/config"
	"github.com/michelcools-creator/gem-radar-bot/internal/llm"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

// ErrIncomplete is returned when the response lacks one of the six sections.
var ErrIncomplete = eris.New("analysis: incomplete response")

// ProviderSource hands out a provider for a model selection.
type ProviderSource interface {
	Provider(sel llm.Selection) (llm.Provider, error)
}

// Analyzer produces a DeepAnalysis for a scored coin.
type Analyzer struct {
	providers    ProviderSource
	cfg          config.LLMConfig
	excerptChars int
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(providers ProviderSource, cfg config.LLMConfig, excerptChars int) *Analyzer {
	return &Analyzer{providers: providers, cfg: cfg, excerptChars: excerptChars}
}

// Analyze asks the selected model for the six sub-analyses. Any error
// leaves the caller to record a failed analysis; it never blocks the coin.
func (a *Analyzer) Analyze(ctx context.Context, coin *model.Coin, facts *model.FactSet, score *model.Score, pages []model.Page, settings *model.Settings) (*model.DeepAnalysis, error) {
	sel := llm.SelectModel(settings, a.cfg)
	provider, err := a.providers.Provider(sel)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: provider")
	}

	maxTokens := a.cfg.DeepMaxTokens
	if maxTokens <= 0 {
		maxTokens = a.cfg.MaxTokens
	}
	temp := a.cfg.Temperature

	resp, err := provider.Complete(ctx, llm.Request{
		Model:       sel.Model,
		System:      SystemPrompt,
		User:        BuildPrompt(coin, facts, score, model.UsablePages(pages), a.excerptChars),
		MaxTokens:   maxTokens,
		Temperature: &temp,
		JSON:        true,
		Phase:       "deep_analysis",
	})
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: complete for coin %s", coin.ID)
	}

	da, err := Parse(resp.Text)
	if err != nil {
		return nil, err
	}
	da.CoinID = coin.ID
	da.Model = resp.Model

	zap.L().Info("analysis: completed",
		zap.String("coin_id", coin.ID),
		zap.String("model", resp.Model),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)
	return da, nil
}

type rawSection struct {
	Score      *float64 `json:"score"`
	Findings   string   `json:"findings"`
	Supporting []string `json:"supporting"`
	Refuting   []string `json:"refuting"`
}

type rawAnalysis struct {
	Team            *rawSection `json:"team"`
	Partnerships    *rawSection `json:"partnerships"`
	Competitors     *rawSection `json:"competitors"`
	RedFlags        *rawSection `json:"red_flags"`
	SocialSentiment *rawSection `json:"social_sentiment"`
	Financial       *rawSection `json:"financial"`
	Summary         string      `json:"summary"`
}

// Parse decodes the six sections strictly: every section must be present
// with a score. Scores are clamped to 0-100.
func Parse(text string) (*model.DeepAnalysis, error) {
	obj, err := llm.CleanJSON(text)
	if err != nil {
		return nil, eris.Wrap(err, "analysis: parse")
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, eris.Wrap(err, "analysis: decode")
	}

	da := &model.DeepAnalysis{Summary: strings.TrimSpace(raw.Summary)}
	sections := []struct {
		name string
		raw  *rawSection
		dst  *model.AnalysisSection
	}{
		{"team", raw.Team, &da.Team},
		{"partnerships", raw.Partnerships, &da.Partnerships},
		{"competitors", raw.Competitors, &da.Competitors},
		{"red_flags", raw.RedFlags, &da.RedFlags},
		{"social_sentiment", raw.SocialSentiment, &da.SocialSentiment},
		{"financial", raw.Financial, &da.Financial},
	}

	var missing []string
	for _, s := range sections {
		if s.raw == nil || s.raw.Score == nil {
			missing = append(missing, s.name)
			continue
		}
		*s.dst = model.AnalysisSection{
			Score:      math.Max(0, math.Min(100, *s.raw.Score)),
			Findings:   strings.TrimSpace(s.raw.Findings),
			Supporting: nonNil(s.raw.Supporting),
			Refuting:   nonNil(s.raw.Refuting),
		}
	}
	if len(missing) > 0 {
		return nil, eris.Wrapf(ErrIncomplete, "missing %s", strings.Join(missing, ", "))
	}
	return da, nil
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// Failed builds the record stored when analysis could not complete.
func Failed(coinID string, err error) *model.DeepAnalysis {
	empty := model.AnalysisSection{Supporting: []string{}, Refuting: []string{}}
	return &model.DeepAnalysis{
		CoinID:          coinID,
		Team:            empty,
		Partnerships:    empty,
		Competitors:     empty,
		RedFlags:        empty,
		SocialSentiment: empty,
		Financial:       empty,
		Failed:          true,
		Error:           err.Error(),
	}
}
