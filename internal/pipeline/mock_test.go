package pipeline

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/michelcools-creator/gem-radar-bot/internal/config"
	"github.com/michelcools-creator/gem-radar-bot/internal/discovery"
	"github.com/michelcools-creator/gem-radar-bot/internal/facts"
	"github.com/michelcools-creator/gem-radar-bot/internal/fetcher"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
	"github.com/michelcools-creator/gem-radar-bot/internal/store"
)

// --- Fetcher Mock ---

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, url string, headers http.Header) (*fetcher.Response, error) {
	args := m.Called(ctx, url, headers)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fetcher.Response), args.Error(1)
}

// --- Discoverer Mock ---

type mockDiscoverer struct {
	mock.Mock
}

func (m *mockDiscoverer) Discover(ctx context.Context, settings *model.Settings) ([]discovery.Listing, error) {
	args := m.Called(ctx, settings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]discovery.Listing), args.Error(1)
}

// --- Fact Extractor Mock ---

type mockExtractor struct {
	mock.Mock
}

func (m *mockExtractor) Extract(ctx context.Context, coin *model.Coin, pages []model.Page, settings *model.Settings) (*facts.Result, error) {
	args := m.Called(ctx, coin, pages, settings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*facts.Result), args.Error(1)
}

// --- Deep Analyzer Mock ---

type mockAnalyzer struct {
	mock.Mock
}

func (m *mockAnalyzer) Analyze(ctx context.Context, coin *model.Coin, fs *model.FactSet, score *model.Score, pages []model.Page, settings *model.Settings) (*model.DeepAnalysis, error) {
	args := m.Called(ctx, coin, fs, score, pages, settings)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeepAnalysis), args.Error(1)
}

// --- Link Resolver Stub ---

type staticResolver map[string]model.Links

func (s staticResolver) Resolve(_ string, pageURL string) model.Links {
	out := model.Links{}
	for k, v := range s[pageURL] {
		out[k] = v
	}
	return out
}

// --- Recorder ---

type countingRecorder struct {
	mu     sync.Mutex
	stages map[string]int
	pages  map[model.PageStatus]int
	runs   int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{stages: map[string]int{}, pages: map[model.PageStatus]int{}}
}

func (r *countingRecorder) StageCoin(stage, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages[stage+"/"+outcome]++
}

func (r *countingRecorder) PageFetched(status model.PageStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages[status]++
}

func (r *countingRecorder) LLMTokens(string, int64, int64) {}

func (r *countingRecorder) RunDuration(time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
}

// --- Transition-recording Store ---

type statusChange struct {
	coinID   string
	from, to model.CoinStatus
	reset    bool
}

// recordingStore logs every status change that reaches the store.
type recordingStore struct {
	store.Store

	mu      sync.Mutex
	changes []statusChange
}

func (r *recordingStore) TransitionCoin(ctx context.Context, id string, from, to model.CoinStatus) error {
	if err := r.Store.TransitionCoin(ctx, id, from, to); err != nil {
		return err
	}
	r.record(statusChange{coinID: id, from: from, to: to})
	return nil
}

func (r *recordingStore) ResetCoin(ctx context.Context, id string) error {
	coin, err := r.Store.GetCoin(ctx, id)
	if err != nil {
		return err
	}
	if err := r.Store.ResetCoin(ctx, id); err != nil {
		return err
	}
	r.record(statusChange{coinID: id, from: coin.Status, to: model.CoinStatusPending, reset: true})
	return nil
}

func (r *recordingStore) record(c statusChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recordingStore) history() []statusChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]statusChange(nil), r.changes...)
}

// assertLegalHistory checks every recorded change against the transition table.
func assertLegalHistory(t *testing.T, changes []statusChange) {
	t.Helper()
	for _, c := range changes {
		if c.reset {
			assert.True(t, model.CanReset(c.from), "reset from %s", c.from)
			continue
		}
		assert.True(t, model.CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
		assert.False(t, c.from == model.CoinStatusPending && c.to == model.CoinStatusAnalyzed,
			"pending coins never jump to analyzed")
	}
}

// --- Store helpers ---

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func createCoin(t *testing.T, st store.Store, name, status string, links model.Links) *model.Coin {
	t.Helper()
	c := &model.Coin{
		Name:          name,
		Symbol:        name[:3],
		DetailURL:     "https://www.coingecko.com/en/coins/" + name,
		OfficialLinks: links,
		Status:        model.CoinStatus(status),
	}
	require.NoError(t, st.CreateCoin(context.Background(), c))
	return c
}

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		LinkBatchSize:    5,
		FetchBatchSize:   5,
		FactsBatchSize:   5,
		ScoreBatchSize:   10,
		DeepBatchSize:    5,
		RetryBatchSize:   10,
		StuckAfterMins:   60,
		RetryMaxAgeHours: 24,
		MaxContentChars:  50000,
		ExcerptChars:     200,
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

// articleHTML is a detail-free content page long enough to count as fetched.
const articleHTML = `<html><head><title>Omega Protocol</title></head><body>
<nav>Home Docs Blog</nav>
<article><h1>Omega Protocol</h1>
<p>Omega Protocol is a decentralized lending market audited by Trail of Bits in 2024. The core team is public
and the contracts are open source on GitHub. The token has a fixed supply of one hundred million units,
with a four year vesting schedule for contributors and no pre-mine for insiders.</p>
<p>Integrations include Chainlink price feeds and Uniswap liquidity pools.</p>
</article></body></html>`

func htmlResponse(url, body string) *fetcher.Response {
	return &fetcher.Response{
		URL:         url,
		StatusCode:  http.StatusOK,
		Body:        []byte(body),
		ContentType: "text/html; charset=utf-8",
		Header:      http.Header{},
		Attempts:    1,
	}
}
