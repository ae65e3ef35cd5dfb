package discovery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/michelcools-creator/gem-radar-bot/internal/config"
	"github.com/michelcools-creator/gem-radar-bot/internal/fetcher"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

const listingsURL = "https://www.coingecko.com/en/new-cryptocurrencies"

// stubFetcher returns canned bodies in order; the last one repeats.
type stubFetcher struct {
	bodies []string
	err    error
	calls  int
}

func (s *stubFetcher) Fetch(_ context.Context, rawURL string, _ http.Header) (*fetcher.Response, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	body := s.bodies[min(s.calls, len(s.bodies))-1]
	return &fetcher.Response{URL: rawURL, StatusCode: http.StatusOK, Body: []byte(body), ContentType: "text/html"}, nil
}

func noSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func mustBase(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse(listingsURL)
	require.NoError(t, err)
	return u
}

func TestParseDetailURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in        string
		canonical string
		slug      string
		ok        bool
	}{
		{"https://www.coingecko.com/en/coins/alpha-protocol", "https://www.coingecko.com/en/coins/alpha-protocol", "alpha-protocol", true},
		{"https://coingecko.com/coins/beta/", "https://coingecko.com/coins/beta", "beta", true},
		{"http://www.coingecko.com/en/coins/gamma?ref=x#top", "https://www.coingecko.com/en/coins/gamma", "gamma", true},
		{"https://www.coingecko.com/pt-br/coins/delta", "https://www.coingecko.com/pt-br/coins/delta", "delta", true},
		{"https://www.coingecko.com/en/coins/trending", "", "", false},
		{"https://www.coingecko.com/en/coins/alpha/historical_data", "", "", false},
		{"https://example.com/coins/alpha", "", "", false},
		{"not a url", "", "", false},
	}
	for _, tt := range tests {
		canonical, slug, ok := ParseDetailURL(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.canonical, canonical, tt.in)
		assert.Equal(t, tt.slug, slug, tt.in)
	}
}

func TestNameAndSymbolFromSlug(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Alpha Protocol", NameFromSlug("alpha-protocol"))
	assert.Equal(t, "ALPHAPRO", SymbolFromSlug("alpha-protocol"))
	assert.Equal(t, "PEPE", SymbolFromSlug("pepe"))
}

func TestAnchorParser(t *testing.T) {
	t.Parallel()

	body := `<html><body>
		<a href="/en/coins/alpha-protocol"><img src="a.png"><span>Alpha Protocol</span> <span>ALP</span></a>
		<a href="/en/coins/beta-coin">Beta Coin BETA</a>
		<a href="/en/coins/gamma"><span>Gamma</span></a>
		<a href="/en/coins/alpha-protocol">Alpha Protocol ALP</a>
		<a href="/en/coins/trending">Trending</a>
		<a href="https://twitter.com/x">Twitter</a>
		<a href="/en/coins/empty"><img src="e.png"></a>
	</body></html>`

	got := AnchorParser{}.Parse(body, mustBase(t))
	require.Len(t, got, 4)
	assert.Equal(t, Listing{Name: "Alpha Protocol", Symbol: "ALP", DetailURL: "https://www.coingecko.com/en/coins/alpha-protocol"}, got[0])
	assert.Equal(t, Listing{Name: "Beta Coin", Symbol: "BETA", DetailURL: "https://www.coingecko.com/en/coins/beta-coin"}, got[1])
	assert.Equal(t, "Gamma", got[2].Name)
	assert.Equal(t, "GAMMA", got[2].Symbol, "symbol falls back to slug")
}

func TestTableParser(t *testing.T) {
	t.Parallel()

	body := `<table>
		<tr><th>#</th><th>Coin</th><th>Price</th></tr>
		<tr><td>1</td><td><a href="/en/coins/alpha"><span>Alpha</span></a></td><td>ALP</td><td>$0.0012</td></tr>
		<tr><td>2</td><td><a href="/en/coins/beta">Beta</a></td><td>$1.20</td></tr>
		<tr><td>3</td><td>Gamma</td><td>GAM</td></tr>
	</table>`

	got := TableParser{}.Parse(body, mustBase(t))
	require.Len(t, got, 1, "rows without a symbol or link are skipped")
	assert.Equal(t, Listing{Name: "Alpha", Symbol: "ALP", DetailURL: "https://www.coingecko.com/en/coins/alpha"}, got[0])
}

func TestSlugParser(t *testing.T) {
	t.Parallel()

	body := `<div data-x='1'><a class="x" href="/en/coins/delta-finance?utm=1"></a><a href='/en/coins/new'></a></div>`
	got := SlugParser{}.Parse(body, mustBase(t))
	require.Len(t, got, 1)
	assert.Equal(t, Listing{Name: "Delta Finance", Symbol: "DELTAFIN", DetailURL: "https://www.coingecko.com/en/coins/delta-finance"}, got[0])
}

func TestSplitNameSymbol(t *testing.T) {
	t.Parallel()

	tests := []struct {
		chunks []string
		name   string
		symbol string
	}{
		{[]string{"12", "Alpha", "ALP", "$0.10"}, "Alpha", "ALP"},
		{[]string{"Bitcoin BTC"}, "Bitcoin", "BTC"},
		{[]string{"$PEPE"}, "PEPE", "PEPE"},
		{[]string{"1.5%", "#3"}, "", ""},
	}
	for _, tt := range tests {
		name, symbol := splitNameSymbol(tt.chunks)
		assert.Equal(t, tt.name, name, tt.chunks)
		assert.Equal(t, tt.symbol, symbol, tt.chunks)
	}
}

func newTestDiscoverer(f fetcher.Fetcher, waits *[]time.Duration) *Discoverer {
	return NewDiscoverer(f, config.DiscoveryConfig{
		ListingsURL: listingsURL,
		MaxResults:  50,
		MaxAttempts: 3,
		MinHTMLLen:  200,
	}, WithSleep(noSleep(waits)))
}

func TestDiscover_FirstNonEmptyParserWins(t *testing.T) {
	body := `<a href="/en/coins/alpha">Alpha ALP</a><a href="/en/coins/beta">Beta BETA</a>`
	var waits []time.Duration
	f := &stubFetcher{bodies: []string{body}}
	d := newTestDiscoverer(f, &waits)

	settings := model.DefaultSettings()
	got, err := d.Discover(context.Background(), &settings)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "ALP", got[0].Symbol)
	assert.Equal(t, 1, f.calls)
	assert.Empty(t, waits)
}

func TestDiscover_FallsBackToSlugParser(t *testing.T) {
	body := `<a href="/en/coins/alpha"><img src="x.png"></a>`
	f := &stubFetcher{bodies: []string{body}}
	var waits []time.Duration
	d := newTestDiscoverer(f, &waits)

	got, err := d.Discover(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Alpha", got[0].Name)
}

func TestDiscover_CapsAndDedupes(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 80; i++ {
		b.WriteString(`<a href="/en/coins/coin-` + string(rune('a'+i%26)) + string(rune('a'+i/26)) + `">Coin X</a>`)
		b.WriteString(`<a href="/en/coins/coin-` + string(rune('a'+i%26)) + string(rune('a'+i/26)) + `">Coin X</a>`)
	}
	f := &stubFetcher{bodies: []string{b.String()}}
	var waits []time.Duration
	d := newTestDiscoverer(f, &waits)

	got, err := d.Discover(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, got, 50)

	seen := map[string]bool{}
	for _, l := range got {
		assert.False(t, seen[l.DetailURL], l.DetailURL)
		seen[l.DetailURL] = true
	}
}

func TestDiscover_RetriesWhenLargePageParsesEmpty(t *testing.T) {
	blocked := "<html><body>" + strings.Repeat("<p>nothing to see</p>", 50) + "</body></html>"
	good := `<a href="/en/coins/alpha">Alpha ALP</a>`
	f := &stubFetcher{bodies: []string{blocked, blocked, good}}
	var waits []time.Duration
	d := newTestDiscoverer(f, &waits)

	got, err := d.Discover(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, f.calls)
	require.Len(t, waits, 2)
	assert.Greater(t, waits[1], waits[0], "backoff increases")
}

func TestDiscover_GivesUpQuietly(t *testing.T) {
	blocked := strings.Repeat("<div>blocked</div>", 100)
	f := &stubFetcher{bodies: []string{blocked}}
	var waits []time.Duration
	d := newTestDiscoverer(f, &waits)

	got, err := d.Discover(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 3, f.calls)
}

func TestDiscover_ShortEmptyPageNoRetry(t *testing.T) {
	f := &stubFetcher{bodies: []string{"<html></html>"}}
	var waits []time.Duration
	d := newTestDiscoverer(f, &waits)

	got, err := d.Discover(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, f.calls)
}

func TestDiscover_FetchErrorIsNotFatal(t *testing.T) {
	f := &stubFetcher{err: errors.New("connection refused")}
	var waits []time.Duration
	d := newTestDiscoverer(f, &waits)

	got, err := d.Discover(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDiscover_Gates(t *testing.T) {
	tests := []struct {
		name     string
		settings model.Settings
	}{
		{"hybrid mode", model.Settings{HybridMode: true, AllowedDomains: []string{"coingecko.com"}}},
		{"domain not allowed", model.Settings{AllowedDomains: []string{"coinmarketcap.com"}}},
		{"no domains", model.Settings{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &stubFetcher{bodies: []string{`<a href="/en/coins/alpha">Alpha ALP</a>`}}
			var waits []time.Duration
			d := newTestDiscoverer(f, &waits)

			got, err := d.Discover(context.Background(), &tt.settings)
			require.NoError(t, err)
			assert.Empty(t, got)
			assert.Zero(t, f.calls)
		})
	}
}

func TestDiscover_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &stubFetcher{err: context.Canceled}
	var waits []time.Duration
	d := newTestDiscoverer(f, &waits)

	_, err := d.Discover(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDiscover_OverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<table><tr><td><a href="https://www.coingecko.com/en/coins/omega">Omega</a></td><td>OMG</td></tr></table>`))
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{RequestsPerSecond: 1000})
	d := NewDiscoverer(f, config.DiscoveryConfig{ListingsURL: srv.URL + "/en/new"})

	host, err := url.Parse(srv.URL)
	require.NoError(t, err)
	settings := model.Settings{AllowedDomains: []string{host.Hostname()}}

	got, err := d.Discover(context.Background(), &settings)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://www.coingecko.com/en/coins/omega", got[0].DetailURL)
	assert.Equal(t, "Omega", got[0].Name)
}

func TestDetailIdentity(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantName   string
		wantSymbol string
	}{
		{
			"h1 with symbol span",
			`<html><head><title>x</title></head><body><h1><img alt=""> Omega Protocol <span>OMG</span></h1></body></html>`,
			"Omega Protocol", "OMG",
		},
		{
			"h1 single text node",
			`<html><body><h1>Pepe Classic PEPEC</h1></body></html>`,
			"Pepe Classic", "PEPEC",
		},
		{
			"title price pattern",
			`<html><head><title>Omega Protocol Price: OMG Live Price Chart | CoinGecko</title></head><body></body></html>`,
			"Omega Protocol", "OMG",
		},
		{
			"title parentheses",
			`<html><head><title>Omega (OMG) price today</title></head><body><h1>Omega</h1></body></html>`,
			"Omega", "OMG",
		},
		{
			"nothing usable",
			`<html><body><p>loading</p></body></html>`,
			"", "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, symbol := DetailIdentity(tt.body)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantSymbol, symbol)
		})
	}
}
