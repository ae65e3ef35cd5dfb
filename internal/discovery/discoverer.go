package discovery

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/config"
	"github.com/michelcools-creator/gem-radar-bot/internal/fetcher"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
	"github.com/michelcools-creator/gem-radar-bot/internal/resilience"
)

// Discoverer fetches the listings page and parses new coins out of it.
type Discoverer struct {
	fetcher fetcher.Fetcher
	parsers []ListingParser
	cfg     config.DiscoveryConfig
	sleep   resilience.SleepFunc
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithParsers replaces the default parser chain.
func WithParsers(p ...ListingParser) Option {
	return func(d *Discoverer) { d.parsers = p }
}

// WithSleep replaces the backoff wait, for tests.
func WithSleep(s resilience.SleepFunc) Option {
	return func(d *Discoverer) { d.sleep = s }
}

// NewDiscoverer creates a Discoverer. Zero config values take defaults.
func NewDiscoverer(f fetcher.Fetcher, cfg config.DiscoveryConfig, opts ...Option) *Discoverer {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MinHTMLLen <= 0 {
		cfg.MinHTMLLen = 5000
	}
	d := &Discoverer{
		fetcher: f,
		parsers: DefaultParsers(),
		cfg:     cfg,
		sleep:   resilience.Sleep,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Discover returns up to MaxResults listings, deduplicated by detail URL.
// It is a no-op in hybrid mode or when the listings host is not allowed.
// Fetch and parse failures are logged and yield an empty result; only
// context cancellation is returned as an error.
func (d *Discoverer) Discover(ctx context.Context, settings *model.Settings) ([]Listing, error) {
	log := zap.L().With(zap.String("listings_url", d.cfg.ListingsURL))

	if settings == nil {
		s := model.DefaultSettings()
		settings = &s
	}
	if settings.HybridMode {
		log.Info("discovery: hybrid mode on, skipping")
		return nil, nil
	}

	base, err := url.Parse(d.cfg.ListingsURL)
	if err != nil || base.Host == "" {
		log.Warn("discovery: invalid listings url", zap.Error(err))
		return nil, nil
	}
	host := strings.TrimPrefix(strings.ToLower(base.Hostname()), "www.")
	if !settings.DomainAllowed(host) {
		log.Info("discovery: listings domain not allowed, skipping", zap.String("host", host))
		return nil, nil
	}

	for attempt := 0; attempt < d.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := resilience.Backoff(attempt, 2*time.Second, 30*time.Second, time.Second)
			if err := d.sleep(ctx, wait); err != nil {
				return nil, eris.Wrap(err, "discovery: wait")
			}
		}

		resp, err := d.fetcher.Fetch(ctx, d.cfg.ListingsURL, nil)
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "discovery: fetch")
		}
		if err != nil {
			log.Warn("discovery: fetch failed", zap.Int("attempt", attempt+1), zap.Error(err))
			return nil, nil
		}

		listings, parser := d.parse(string(resp.Body), base)
		if len(listings) > 0 {
			listings = dedupe(listings, d.cfg.MaxResults)
			log.Info("discovery: parsed listings",
				zap.String("parser", parser),
				zap.Int("count", len(listings)),
				zap.Int("attempt", attempt+1),
			)
			return listings, nil
		}

		// A short page is an honest empty listing; a long one that parses to
		// nothing is likely a block or a layout change.
		if len(resp.Body) < d.cfg.MinHTMLLen {
			log.Info("discovery: no listings found", zap.Int("html_len", len(resp.Body)))
			return nil, nil
		}
		log.Warn("discovery: zero listings from non-trivial page",
			zap.Int("html_len", len(resp.Body)),
			zap.Int("attempt", attempt+1),
		)
	}

	log.Warn("discovery: giving up", zap.Int("attempts", d.cfg.MaxAttempts))
	return nil, nil
}

// parse tries each parser in order; the first non-empty result wins.
func (d *Discoverer) parse(body string, base *url.URL) ([]Listing, string) {
	for _, p := range d.parsers {
		if out := p.Parse(body, base); len(out) > 0 {
			return out, p.Name()
		}
	}
	return nil, ""
}
