package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/michelcools-creator/gem-radar-bot/internal/config"
	"github.com/michelcools-creator/gem-radar-bot/internal/llm"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

type staticSource struct {
	p   llm.Provider
	err error
	got llm.Selection
}

func (s *staticSource) Provider(sel llm.Selection) (llm.Provider, error) {
	s.got = sel
	return s.p, s.err
}

const fullResponse = `Here you go:
{
  "team": {"score": 72, "findings": " Named founders. ", "supporting": ["LinkedIn profiles"], "refuting": []},
  "partnerships": {"score": 40, "findings": "Few partners.", "supporting": ["Chainlink"]},
  "competitors": {"score": 55, "findings": "Crowded lending market."},
  "red_flags": {"score": 130, "findings": "None found."},
  "social_sentiment": {"score": -4, "findings": "Little discussion."},
  "financial": {"score": 60, "findings": "Vesting disclosed.", "refuting": ["no audit of treasury"]},
  "summary": "Early but credible."
}`

func testCoin() *model.Coin {
	return &model.Coin{
		ID:     "coin-1",
		Name:   "Omega",
		Symbol: "OMG",
		OfficialLinks: model.Links{
			model.LinkWebsite: "https://omega.io",
			model.LinkGitHub:  "https://github.com/omega",
		},
	}
}

func TestParse(t *testing.T) {
	da, err := Parse(fullResponse)
	require.NoError(t, err)

	assert.Equal(t, 72.0, da.Team.Score)
	assert.Equal(t, "Named founders.", da.Team.Findings)
	assert.Equal(t, []string{"LinkedIn profiles"}, da.Team.Supporting)
	assert.Equal(t, 100.0, da.RedFlags.Score, "clamped high")
	assert.Equal(t, 0.0, da.SocialSentiment.Score, "clamped low")
	assert.NotNil(t, da.Competitors.Supporting)
	assert.Equal(t, []string{"no audit of treasury"}, da.Financial.Refuting)
	assert.Equal(t, "Early but credible.", da.Summary)
	assert.False(t, da.Failed)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		missing string
	}{
		{"no json", "I cannot help with that.", ""},
		{"bad json", `{"team": {"score": }`, ""},
		{"missing sections", `{"team": {"score": 50}, "partnerships": {"findings": "x"}}`, "partnerships"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			if tt.missing != "" {
				assert.True(t, errors.Is(err, ErrIncomplete))
				assert.Contains(t, err.Error(), tt.missing)
				assert.Contains(t, err.Error(), "financial")
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	score := &model.Score{
		Overall:    42.5,
		Confidence: 0.77,
		SubScores:  map[string]float64{"team_transparency": 70},
		RedFlags:   []string{"copycat (-7): same logo"},
	}
	facts := &model.FactSet{Claims: []model.Claim{{Pillar: model.PillarTeam, Type: "doxxed_team", ProofURLs: []string{"https://omega.io/team"}}}}
	pages := []model.Page{{LinkType: model.LinkWebsite, URL: "https://omega.io", Content: strings.Repeat("b", 30)}}

	out := BuildPrompt(testCoin(), facts, score, pages, 10)

	assert.Contains(t, out, "Project: Omega (OMG)")
	assert.Contains(t, out, "- github: https://github.com/omega")
	assert.Less(t, strings.Index(out, "- github:"), strings.Index(out, "- website:"), "links sorted")
	assert.Contains(t, out, "Score: 42.5/100 (confidence 0.77)")
	assert.Contains(t, out, "- team: 70/100")
	assert.Contains(t, out, "red flag: copycat")
	assert.Contains(t, out, `"doxxed_team"`)
	assert.Contains(t, out, "=== website https://omega.io ===")
	assert.NotContains(t, out, strings.Repeat("b", 11))
}

func TestAnalyze(t *testing.T) {
	prov := &mockProvider{}
	prov.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Phase == "deep_analysis" && req.MaxTokens == 6000 && req.JSON && req.System == SystemPrompt
	})).Return(&llm.Response{Text: fullResponse, Model: "cheap"}, nil)
	src := &staticSource{p: prov}

	cfg := config.LLMConfig{DefaultModel: "cheap", DefaultAPIKey: "k", MaxTokens: 4000, DeepMaxTokens: 6000}
	da, err := NewAnalyzer(src, cfg, 0).Analyze(context.Background(), testCoin(), &model.FactSet{}, &model.Score{}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "coin-1", da.CoinID)
	assert.Equal(t, "cheap", da.Model)
	assert.Equal(t, "cheap", src.got.Model)
	prov.AssertExpectations(t)
}

func TestAnalyze_ProviderError(t *testing.T) {
	prov := &mockProvider{}
	prov.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	_, err := NewAnalyzer(&staticSource{p: prov}, config.LLMConfig{}, 0).
		Analyze(context.Background(), testCoin(), nil, nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestFailed(t *testing.T) {
	da := Failed("coin-1", errors.New("analysis: decode"))
	assert.True(t, da.Failed)
	assert.Equal(t, "coin-1", da.CoinID)
	assert.Equal(t, "analysis: decode", da.Error)
	assert.NotNil(t, da.Team.Supporting)
}
