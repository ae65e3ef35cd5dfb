package pipeline

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/michelcools-creator/gem-radar-bot/internal/config"
	"github.com/michelcools-creator/gem-radar-bot/internal/discovery"
	"github.com/michelcools-creator/gem-radar-bot/internal/facts"
	"github.com/michelcools-creator/gem-radar-bot/internal/fetcher"
	"github.com/michelcools-creator/gem-radar-bot/internal/llm"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
	"github.com/michelcools-creator/gem-radar-bot/internal/store"
)

const omegaDetail = "https://www.coingecko.com/en/coins/omega-protocol"

func omegaFacts() *model.FactSet {
	return &model.FactSet{
		Claims: []model.Claim{
			{Pillar: model.PillarTeam, Type: "doxxed_team", Value: "true", ProofURLs: []string{"https://omega.example/team"}},
			{Pillar: model.PillarSecurity, Type: "audit", Value: "Trail of Bits", ProofURLs: []string{"https://omega.example/audit.pdf"}},
		},
		Contradictions: []string{},
	}
}

func idleDiscoverer() *mockDiscoverer {
	d := &mockDiscoverer{}
	d.On("Discover", mock.Anything, mock.Anything).Return([]discovery.Listing{}, nil)
	return d
}

func TestPipeline_Run_FullFlow(t *testing.T) {
	ctx := context.Background()
	st := &recordingStore{Store: newTestStore(t)}

	disc := &mockDiscoverer{}
	disc.On("Discover", mock.Anything, mock.Anything).Return([]discovery.Listing{
		{Name: "Omega Protocol", Symbol: "OMG", DetailURL: omegaDetail},
	}, nil)

	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, omegaDetail, mock.Anything).Return(htmlResponse(omegaDetail, "<html></html>"), nil)
	f.On("Fetch", mock.Anything, "https://omega.example", mock.Anything).Return(htmlResponse("https://omega.example", articleHTML), nil)
	notFound := &fetcher.Response{URL: "https://docs.omega.example", StatusCode: http.StatusNotFound, Body: []byte("nope"), ContentType: "text/html", Header: http.Header{}}
	f.On("Fetch", mock.Anything, "https://docs.omega.example", mock.Anything).
		Return(notFound, &fetcher.HTTPError{URL: "https://docs.omega.example", StatusCode: http.StatusNotFound})

	resolver := staticResolver{omegaDetail: {
		model.LinkWebsite: "https://omega.example",
		model.LinkDocs:    "https://docs.omega.example",
		model.LinkTwitter: "https://x.com/omega",
	}}

	fx := &mockExtractor{}
	fx.On("Extract", mock.Anything, mock.Anything, mock.MatchedBy(func(pages []model.Page) bool {
		return len(pages) == 2
	}), mock.Anything).Return(&facts.Result{
		Facts:   omegaFacts(),
		Sources: []string{"https://omega.example"},
		Model:   "cheap-model",
		Usage:   llm.Usage{InputTokens: 1200, OutputTokens: 300},
	}, nil)

	an := &mockAnalyzer{}
	an.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&model.DeepAnalysis{Summary: "solid team", Model: "premium-model"}, nil)

	rec := newCountingRecorder()
	p := New(st, f, disc, fx, an, testPipelineConfig(),
		WithResolver(resolver), WithRecorder(rec), WithSleep(noSleep))

	result, err := p.Run(ctx, Options{})
	require.NoError(t, err)

	names := make([]string, 0, len(result.Phases))
	for _, ph := range result.Phases {
		names = append(names, ph.Name)
		assert.Equal(t, model.PhaseStatusComplete, ph.Status, ph.Name)
	}
	assert.Equal(t, []string{PhaseDiscovery, PhaseLinks, PhaseRecovery, PhaseFetch, PhaseFacts, PhaseScore, PhaseDeepAnalysis}, names)
	assert.Equal(t, int64(1200), result.Tokens.InputTokens)
	assert.Equal(t, int64(300), result.Tokens.OutputTokens)
	assert.False(t, result.FinishedAt.Before(result.StartedAt))

	coin, err := st.FindCoinByDetailURL(ctx, omegaDetail)
	require.NoError(t, err)
	require.NotNil(t, coin)
	assert.Equal(t, model.CoinStatusAnalyzed, coin.Status)
	assert.Equal(t, model.CoinSourceAuto, coin.Source)
	assert.Equal(t, "https://x.com/omega", coin.OfficialLinks[model.LinkTwitter])

	pages, err := st.ListPages(ctx, coin.ID)
	require.NoError(t, err)
	require.Len(t, pages, 2, "social links are not fetched")
	byType := map[model.LinkType]model.Page{}
	for _, pg := range pages {
		byType[pg.LinkType] = pg
	}
	assert.Equal(t, model.PageStatusFetched, byType[model.LinkWebsite].Status)
	assert.NotEmpty(t, byType[model.LinkWebsite].Hash)
	assert.Equal(t, model.PageStatusFailed, byType[model.LinkDocs].Status)
	assert.Equal(t, http.StatusNotFound, byType[model.LinkDocs].HTTPStatus)

	sc, err := st.LatestScore(ctx, coin.ID)
	require.NoError(t, err)
	require.NotNil(t, sc)
	assert.Equal(t, model.DefaultStrategyVersion, sc.StrategyVersion)
	assert.NotEmpty(t, sc.WeightsHash)
	assert.Greater(t, sc.Overall, 0.0)

	da, err := st.LatestDeepAnalysis(ctx, coin.ID)
	require.NoError(t, err)
	require.NotNil(t, da)
	assert.False(t, da.Failed)
	assert.Equal(t, "solid team", da.Summary)

	assert.Equal(t, 1, rec.stages[PhaseDeepAnalysis+"/analyzed"])
	assert.Equal(t, 1, rec.pages[model.PageStatusFetched])
	assert.Equal(t, 1, rec.runs)

	fx.AssertNumberOfCalls(t, "Extract", 1)
	an.AssertNumberOfCalls(t, "Analyze", 1)

	changes := st.history()
	assertLegalHistory(t, changes)
	assert.Equal(t, []statusChange{
		{coinID: coin.ID, from: model.CoinStatusPending, to: model.CoinStatusProcessing},
		{coinID: coin.ID, from: model.CoinStatusProcessing, to: model.CoinStatusDeepAnalysisPending},
		{coinID: coin.ID, from: model.CoinStatusDeepAnalysisPending, to: model.CoinStatusAnalyzed},
	}, changes)
}

func TestPipeline_Run_MixedBacklogTransitionsAreLegal(t *testing.T) {
	ctx := context.Background()
	st := &recordingStore{Store: newTestStore(t)}

	// alpha: processing with a page, facts unparsable -> retry_pending
	alpha := createCoin(t, st, "alpha", "processing", model.Links{model.LinkWebsite: "https://alpha.example"})
	seedFetchedPage(t, st, alpha.ID, "https://alpha.example")
	// bravo: processing with a page, facts extracted -> scored -> analyzed
	bravo := createCoin(t, st, "bravo", "processing", model.Links{model.LinkWebsite: "https://bravo.example"})
	seedFetchedPage(t, st, bravo.ID, "https://bravo.example")
	// charlie: already waiting for deep analysis, which fails open
	charlie := createCoin(t, st, "charlie", "deep_analysis_pending", nil)
	// delta: failed, reset by the run, resolves no links -> insufficient_data
	delta := createCoin(t, st, "delta", "failed", nil)

	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, delta.DetailURL, mock.Anything).Return(htmlResponse(delta.DetailURL, "<html></html>"), nil)

	fx := &mockExtractor{}
	fx.On("Extract", mock.Anything, mock.MatchedBy(func(c *model.Coin) bool { return c.ID == alpha.ID }), mock.Anything, mock.Anything).
		Return(nil, eris.Wrap(facts.ErrUnparsable, "facts: decode"))
	fx.On("Extract", mock.Anything, mock.MatchedBy(func(c *model.Coin) bool { return c.ID == bravo.ID }), mock.Anything, mock.Anything).
		Return(&facts.Result{Facts: omegaFacts(), Model: "cheap-model"}, nil)

	an := &mockAnalyzer{}
	an.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("analysis: incomplete response"))

	p := New(st, f, idleDiscoverer(), fx, an, testPipelineConfig(),
		WithResolver(staticResolver{}), WithSleep(noSleep))
	_, err := p.Run(ctx, Options{ResetCoinID: delta.ID})
	require.NoError(t, err)

	changes := st.history()
	require.NotEmpty(t, changes)
	assertLegalHistory(t, changes)

	final := map[string]model.CoinStatus{}
	for _, c := range changes {
		final[c.coinID] = c.to
	}
	assert.Equal(t, model.CoinStatusRetryPending, final[alpha.ID])
	assert.Equal(t, model.CoinStatusAnalyzed, final[bravo.ID])
	assert.Equal(t, model.CoinStatusAnalyzed, final[charlie.ID])
	assert.Equal(t, model.CoinStatusInsufficientData, final[delta.ID])
	assert.Contains(t, changes, statusChange{coinID: delta.ID, from: model.CoinStatusFailed, to: model.CoinStatusPending, reset: true})
}

func TestPipeline_Run_ZeroValidPagesSkipsLLM(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	coin := createCoin(t, st, "sigma", "processing", model.Links{
		model.LinkWebsite:  "https://sigma.example",
		model.LinkTelegram: "https://t.me/sigma",
	})

	f := &mockFetcher{}
	spa := `<html><head><script src="/app.js"></script></head><body><div id="root"></div>
<noscript>You need to enable JavaScript to run this app.</noscript></body></html>`
	f.On("Fetch", mock.Anything, "https://sigma.example", mock.Anything).Return(htmlResponse("https://sigma.example", spa), nil)

	fx := &mockExtractor{}
	an := &mockAnalyzer{}
	p := New(st, f, idleDiscoverer(), fx, an, testPipelineConfig(), WithSleep(noSleep))

	result, err := p.Run(ctx, Options{})
	require.NoError(t, err)

	got, err := st.GetCoin(ctx, coin.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CoinStatusInsufficientData, got.Status)

	pages, err := st.ListPages(ctx, coin.ID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, model.PageStatusJSEmpty, pages[0].Status)

	fx.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	an.AssertNotCalled(t, "Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, result.Phase(PhaseFetch).Metadata["insufficient_data"])
}

func TestPipeline_Run_NoLinksBecomesInsufficientData(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	coin := createCoin(t, st, "delta", "pending", nil)

	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, coin.DetailURL, mock.Anything).Return(htmlResponse(coin.DetailURL, "<html><body>nothing</body></html>"), nil)

	fx := &mockExtractor{}
	p := New(st, f, idleDiscoverer(), fx, &mockAnalyzer{}, testPipelineConfig(),
		WithResolver(staticResolver{}), WithSleep(noSleep))

	_, err := p.Run(ctx, Options{})
	require.NoError(t, err)

	got, err := st.GetCoin(ctx, coin.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CoinStatusInsufficientData, got.Status)
	fx.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func seedFetchedPage(t *testing.T, st store.Store, coinID, url string) {
	t.Helper()
	require.NoError(t, st.UpsertPage(context.Background(), &model.Page{
		CoinID:   coinID,
		LinkType: model.LinkWebsite,
		URL:      url,
		Status:   model.PageStatusFetched,
		Content:  "Omega Protocol is a lending market with audited contracts, a public team and open source code on GitHub for review.",
		Hash:     "abc123",
	}))
}

func TestPipeline_Run_FactsFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.CoinStatus
	}{
		{"unparsable", eris.Wrap(facts.ErrUnparsable, "facts: decode"), model.CoinStatusRetryPending},
		{"hard error", errors.New("invalid api key"), model.CoinStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := newTestStore(t)
			coin := createCoin(t, st, "omega", "processing", model.Links{model.LinkWebsite: "https://omega.example"})
			seedFetchedPage(t, st, coin.ID, "https://omega.example")

			fx := &mockExtractor{}
			fx.On("Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

			p := New(st, &mockFetcher{}, idleDiscoverer(), fx, &mockAnalyzer{}, testPipelineConfig(), WithSleep(noSleep))
			_, err := p.Run(ctx, Options{})
			require.NoError(t, err)

			got, err := st.GetCoin(ctx, coin.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)

			rec, err := st.LatestFacts(ctx, coin.ID)
			require.NoError(t, err)
			assert.Nil(t, rec, "failed extraction stores no facts")
		})
	}
}

func TestPipeline_Run_CircuitOpenStopsFactsStage(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	a := createCoin(t, st, "alpha", "processing", model.Links{model.LinkWebsite: "https://alpha.example"})
	b := createCoin(t, st, "bravo", "processing", model.Links{model.LinkWebsite: "https://bravo.example"})
	seedFetchedPage(t, st, a.ID, "https://alpha.example")
	seedFetchedPage(t, st, b.ID, "https://bravo.example")

	fx := &mockExtractor{}
	fx.On("Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, eris.Wrap(llm.ErrCircuitOpen, "facts: complete"))

	p := New(st, &mockFetcher{}, idleDiscoverer(), fx, &mockAnalyzer{}, testPipelineConfig(), WithSleep(noSleep))
	result, err := p.Run(ctx, Options{})
	require.NoError(t, err)

	ph := result.Phase(PhaseFacts)
	require.NotNil(t, ph)
	assert.Equal(t, model.PhaseStatusFailed, ph.Status)
	assert.Contains(t, ph.Error, "circuit")
	fx.AssertNumberOfCalls(t, "Extract", 1)

	for _, id := range []string{a.ID, b.ID} {
		got, err := st.GetCoin(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.CoinStatusProcessing, got.Status, "open circuit leaves status unchanged")
	}
	assert.Equal(t, model.PhaseStatusComplete, result.Phase(PhaseDeepAnalysis).Status, "later stages still run")
}

func TestPipeline_Run_MissingDefaultKeyStopsFactsStage(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	a := createCoin(t, st, "alpha", "processing", model.Links{model.LinkWebsite: "https://alpha.example"})
	b := createCoin(t, st, "bravo", "processing", model.Links{model.LinkWebsite: "https://bravo.example"})
	seedFetchedPage(t, st, a.ID, "https://alpha.example")
	seedFetchedPage(t, st, b.ID, "https://bravo.example")

	llmCfg := config.LLMConfig{Provider: "openai", DefaultModel: "gpt-4o-mini", PremiumModel: "gpt-4o"}
	extractor := facts.NewExtractor(llm.NewFactory(llmCfg, nil), llmCfg, 4000)

	p := New(st, &mockFetcher{}, idleDiscoverer(), extractor, &mockAnalyzer{}, testPipelineConfig(), WithSleep(noSleep))
	for run := 0; run < 2; run++ {
		result, err := p.Run(ctx, Options{})
		require.NoError(t, err)

		ph := result.Phase(PhaseFacts)
		require.NotNil(t, ph)
		assert.Equal(t, model.PhaseStatusFailed, ph.Status)
		assert.Contains(t, ph.Error, "no api key")
	}

	for _, id := range []string{a.ID, b.ID} {
		got, err := st.GetCoin(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.CoinStatusProcessing, got.Status, "configuration errors do not fail coins")
	}
}

func TestPipeline_Run_CircuitOpenDeepAnalysisFailsOpen(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	a := createCoin(t, st, "alpha", "deep_analysis_pending", nil)
	b := createCoin(t, st, "bravo", "deep_analysis_pending", nil)

	an := &mockAnalyzer{}
	an.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, eris.Wrap(llm.ErrCircuitOpen, "analysis: complete"))

	p := New(st, &mockFetcher{}, idleDiscoverer(), &mockExtractor{}, an, testPipelineConfig(), WithSleep(noSleep))
	result, err := p.Run(ctx, Options{})
	require.NoError(t, err)

	ph := result.Phase(PhaseDeepAnalysis)
	require.NotNil(t, ph)
	assert.Equal(t, model.PhaseStatusComplete, ph.Status)
	assert.Equal(t, 2, ph.Processed)

	for _, id := range []string{a.ID, b.ID} {
		got, err := st.GetCoin(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.CoinStatusAnalyzed, got.Status)

		da, err := st.LatestDeepAnalysis(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, da)
		assert.True(t, da.Failed)
	}
}

func TestPipeline_Run_DeepAnalysisFailsOpen(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	coin := createCoin(t, st, "omega", "deep_analysis_pending", nil)

	an := &mockAnalyzer{}
	an.On("Analyze", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("analysis: incomplete response"))

	p := New(st, &mockFetcher{}, idleDiscoverer(), &mockExtractor{}, an, testPipelineConfig(), WithSleep(noSleep))
	_, err := p.Run(ctx, Options{})
	require.NoError(t, err)

	got, err := st.GetCoin(ctx, coin.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CoinStatusAnalyzed, got.Status)

	da, err := st.LatestDeepAnalysis(ctx, coin.ID)
	require.NoError(t, err)
	require.NotNil(t, da)
	assert.True(t, da.Failed)
	assert.Contains(t, da.Error, "incomplete")
}

func TestPipeline_Run_ManualURLSkipsDiscovery(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	detail := `<html><head><title>Omega Protocol Price: OMG Live Chart</title></head>
<body><h1>Omega Protocol <span>OMG</span></h1></body></html>`
	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, omegaDetail, mock.Anything).Return(htmlResponse(omegaDetail, detail), nil)

	disc := &mockDiscoverer{}
	p := New(st, f, disc, &mockExtractor{}, &mockAnalyzer{}, testPipelineConfig(),
		WithResolver(staticResolver{}), WithSleep(noSleep))

	result, err := p.Run(ctx, Options{ManualURL: "https://www.coingecko.com/en/coins/omega-protocol/?utm_source=x"})
	require.NoError(t, err)
	assert.Nil(t, result.Phase(PhaseDiscovery))
	require.NotNil(t, result.Phase(PhaseManualSubmit))
	disc.AssertNotCalled(t, "Discover", mock.Anything, mock.Anything)

	coin, err := st.FindCoinByDetailURL(ctx, omegaDetail)
	require.NoError(t, err)
	require.NotNil(t, coin)
	assert.Equal(t, "Omega Protocol", coin.Name)
	assert.Equal(t, "OMG", coin.Symbol)
	assert.Equal(t, model.CoinSourceManual, coin.Source)
	assert.Equal(t, 1, result.Phase(PhaseLinks).Processed)
}

func TestPipeline_Run_InvalidManualURL(t *testing.T) {
	st := newTestStore(t)
	p := New(st, &mockFetcher{}, &mockDiscoverer{}, &mockExtractor{}, &mockAnalyzer{}, testPipelineConfig(), WithSleep(noSleep))

	result, err := p.Run(context.Background(), Options{ManualURL: "https://example.com/not-a-coin"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDetailURL)
	require.NotNil(t, result)
	assert.Equal(t, model.PhaseStatusFailed, result.Phase(PhaseManualSubmit).Status)
	assert.Nil(t, result.Phase(PhaseLinks), "no stage runs after a failed submission")
}

func TestPipeline_Run_Cancelled(t *testing.T) {
	st := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(st, &mockFetcher{}, idleDiscoverer(), &mockExtractor{}, &mockAnalyzer{}, testPipelineConfig(), WithSleep(noSleep))
	_, err := p.Run(ctx, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPipeline_Submit(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, "https://www.coingecko.com/en/coins/pepe-classic", mock.Anything).
		Return(nil, errors.New("connection reset"))
	p := New(st, f, nil, nil, nil, testPipelineConfig(), WithSleep(noSleep))

	coin, err := p.Submit(ctx, "http://www.coingecko.com/en/coins/pepe-classic")
	require.NoError(t, err)
	assert.Equal(t, "Pepe Classic", coin.Name, "slug fallback when the page cannot be fetched")
	assert.NotEmpty(t, coin.Symbol)
	assert.Equal(t, model.CoinStatusPending, coin.Status)

	again, err := p.Submit(ctx, "https://www.coingecko.com/en/coins/pepe-classic")
	require.NoError(t, err)
	assert.Equal(t, coin.ID, again.ID, "resubmitting returns the tracked coin")
	f.AssertNumberOfCalls(t, "Fetch", 1)

	_, err = p.Submit(ctx, "https://www.coingecko.com/en/coins/trending")
	assert.ErrorIs(t, err, ErrInvalidDetailURL)
}

func TestPipeline_Discover_SkipsKnownCoins(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	known := createCoin(t, st, "omega", "analyzed", nil)

	disc := &mockDiscoverer{}
	disc.On("Discover", mock.Anything, mock.Anything).Return([]discovery.Listing{
		{Name: "omega", Symbol: "ome", DetailURL: known.DetailURL},
		{Name: "omega", Symbol: "ome", DetailURL: "https://www.coingecko.com/en/coins/omega-2"},
		{Name: "Kappa", Symbol: "KAP", DetailURL: "https://www.coingecko.com/en/coins/kappa"},
		{Name: "Lambda", Symbol: "LAM", DetailURL: "https://www.coingecko.com/en/coins/lambda"},
	}, nil)

	p := New(st, &mockFetcher{}, disc, nil, nil, testPipelineConfig())
	settings := model.DefaultSettings()
	res, err := p.discover(ctx, &settings)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Metadata["known"], "same detail url or same name and symbol")

	coins, err := st.ListCoins(ctx, store.CoinFilter{Status: model.CoinStatusPending})
	require.NoError(t, err)
	assert.Len(t, coins, 2)
}

func TestPipeline_Discover_ErrorDoesNotFail(t *testing.T) {
	disc := &mockDiscoverer{}
	disc.On("Discover", mock.Anything, mock.Anything).Return(nil, errors.New("listing down"))

	p := New(newTestStore(t), &mockFetcher{}, disc, nil, nil, testPipelineConfig())
	settings := model.DefaultSettings()
	res, err := p.discover(context.Background(), &settings)
	require.NoError(t, err)
	assert.Equal(t, "listing down", res.Metadata["error"])
}

func TestPipeline_Links_DetailFetchFailureLeavesPending(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	coin := createCoin(t, st, "omega", "pending", nil)

	f := &mockFetcher{}
	f.On("Fetch", mock.Anything, coin.DetailURL, mock.Anything).
		Return(nil, &fetcher.HTTPError{URL: coin.DetailURL, StatusCode: http.StatusForbidden})

	p := New(st, f, nil, nil, nil, testPipelineConfig(), WithSleep(noSleep))
	res, err := p.resolveLinks(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Equal(t, 1, res.Metadata["failed"])

	got, err := st.GetCoin(ctx, coin.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CoinStatusPending, got.Status)
}

func TestPipeline_Recover_RoutesRetries(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	withPages := createCoin(t, st, "alpha", "retry_pending", nil)
	seedFetchedPage(t, st, withPages.ID, "https://alpha.example")
	without := createCoin(t, st, "bravo", "retry_pending", nil)

	rec := newCountingRecorder()
	p := New(st, nil, nil, nil, nil, testPipelineConfig(), WithRecorder(rec))
	res, err := p.recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 0, res.Metadata["reset"])

	got, err := st.GetCoin(ctx, withPages.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CoinStatusProcessing, got.Status)

	got, err = st.GetCoin(ctx, without.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CoinStatusPending, got.Status)
	assert.Equal(t, 1, rec.stages[PhaseRecovery+"/processing"])
}

func TestPipeline_RetryPending_OldCoinFails(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	coin := createCoin(t, st, "omega", "retry_pending", nil)

	later := time.Now().Add(25 * time.Hour)
	p := New(st, nil, nil, nil, nil, testPipelineConfig(), WithClock(func() time.Time { return later }))
	moved, err := p.retryPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved[model.CoinStatusFailed])

	got, err := st.GetCoin(ctx, coin.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CoinStatusFailed, got.Status)
}

func TestPipeline_Recover_ResetsStuckCoins(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	stuck := createCoin(t, st, "omega", "processing", model.Links{model.LinkWebsite: "https://omega.example"})
	seedFetchedPage(t, st, stuck.ID, "https://omega.example")
	done := createCoin(t, st, "kappa", "analyzed", nil)

	later := time.Now().Add(2 * time.Hour)
	p := New(st, nil, nil, nil, nil, testPipelineConfig(), WithClock(func() time.Time { return later }))
	res, err := p.recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Metadata["reset"])

	got, err := st.GetCoin(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CoinStatusPending, got.Status)
	pages, err := st.ListPages(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Empty(t, pages, "reset clears pages")

	got, err = st.GetCoin(ctx, done.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CoinStatusAnalyzed, got.Status, "terminal coins are never swept")
}

func TestPipeline_ResetTriggers(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	analyzed := createCoin(t, st, "omega", "analyzed", nil)
	fresh := createCoin(t, st, "kappa", "processing", nil)
	retry := createCoin(t, st, "sigma", "retry_pending", nil)
	pending := createCoin(t, st, "delta", "pending", nil)

	p := New(st, nil, nil, nil, nil, testPipelineConfig())

	require.NoError(t, p.ResetCoin(ctx, analyzed.ID))
	require.NoError(t, p.ResetCoin(ctx, pending.ID), "pending coins reset as a no-op")
	assert.Error(t, p.ResetCoin(ctx, "missing"))

	n, err := p.ResetAllStuck(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "recently updated in-flight coins are reset too")

	for _, id := range []string{analyzed.ID, fresh.ID, retry.ID, pending.ID} {
		got, err := st.GetCoin(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.CoinStatusPending, got.Status)
	}
}

func TestPipeline_Transition(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	coin := createCoin(t, st, "omega", "pending", nil)
	p := New(st, nil, nil, nil, nil, testPipelineConfig())

	err := p.transition(ctx, coin, model.CoinStatusAnalyzed)
	assert.ErrorIs(t, err, model.ErrIllegalTransition)
	assert.Equal(t, model.CoinStatusPending, coin.Status)

	stale := *coin
	require.NoError(t, p.transition(ctx, coin, model.CoinStatusProcessing))
	assert.Equal(t, model.CoinStatusProcessing, coin.Status)

	err = p.transition(ctx, &stale, model.CoinStatusProcessing)
	assert.ErrorIs(t, err, store.ErrStatusConflict, "a coin claimed by another run is not moved twice")
}

func TestFactsFailureStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.CoinStatus
	}{
		{"no usable pages", eris.Wrap(facts.ErrNoUsablePages, "x"), model.CoinStatusInsufficientData},
		{"unparsable", eris.Wrap(facts.ErrUnparsable, "x"), model.CoinStatusRetryPending},
		{"timeout", errors.New("read tcp 10.0.0.1:443: i/o timeout"), model.CoinStatusRetryPending},
		{"no key", llm.ErrNoAPIKey, model.CoinStatusFailed},
		{"other", errors.New("boom"), model.CoinStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, factsFailureStatus(tt.err))
		})
	}
}
