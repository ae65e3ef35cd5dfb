package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/michelcools-creator/gem-radar-bot/internal/resilience"
)

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgents        []string
	Timeout           time.Duration
	MaxRetries        int
	MaxBodyBytes      int64
	RequestsPerSecond float64
	Robots            *RobotsChecker
	Client            *http.Client
	// Sleep replaces backoff waits in tests.
	Sleep resilience.SleepFunc
}

// AdaptiveLimiter wraps a rate.Limiter with adaptive rate adjustment.
// On success it increases the rate by 20% (up to 2x initial).
// On 429 it halves the rate (down to initial/4 minimum).
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive rate limiter that auto-tunes.
func NewAdaptiveLimiter(initialRate rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(initialRate, burst),
		maxRate:     initialRate * 2,
		minRate:     initialRate / 4,
		currentRate: initialRate,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess increases the rate by 20%, up to 2x initial.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate on 429 responses.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("fetcher: reducing host rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPFetcher implements Fetcher using net/http with UA rotation, retry and rate limiting.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
	agents *UserAgentPool

	mu       sync.Mutex
	limiters map[string]*AdaptiveLimiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 << 20
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	if opts.Sleep == nil {
		opts.Sleep = resilience.Sleep
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPFetcher{
		client:   client,
		opts:     opts,
		agents:   NewUserAgentPool(opts.UserAgents),
		limiters: make(map[string]*AdaptiveLimiter),
	}
}

func (f *HTTPFetcher) limiterFor(host string) *AdaptiveLimiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	lim, ok := f.limiters[host]
	if !ok {
		lim = NewAdaptiveLimiter(rate.Limit(f.opts.RequestsPerSecond), 1)
		f.limiters[host] = lim
	}
	return lim
}

// stealthHeaders mimic a top-level browser navigation.
var stealthHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Cache-Control":             "no-cache",
	"Pragma":                    "no-cache",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, headers http.Header) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, eris.Errorf("fetcher: invalid url %q", rawURL)
	}

	if f.opts.Robots != nil {
		allowed, delay, err := f.opts.Robots.Allowed(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, eris.Wrapf(ErrRobotsDisallowed, "fetcher: %s", rawURL)
		}
		if delay > 0 {
			if err := f.opts.Sleep(ctx, delay); err != nil {
				return nil, eris.Wrap(err, "fetcher: crawl delay")
			}
		}
	}

	log := zap.L().With(zap.String("url", rawURL))
	lim := f.limiterFor(u.Host)
	ua := f.agents.Next()

	var lastResp *Response
	var lastErr error
	for attempt := 0; attempt < f.opts.MaxRetries; attempt++ {
		if attempt > 0 && lastResp != nil && lastResp.StatusCode == http.StatusForbidden {
			ua = f.agents.Rotate(ua)
		}

		if err := lim.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "fetcher: rate limiter wait")
		}

		resp, err := f.do(ctx, rawURL, ua, headers)
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrap(ctx.Err(), "fetcher: cancelled")
			}
			lastErr = resilience.NewTransientError(eris.Wrapf(err, "fetcher: get %s", rawURL), 0)
			lastResp = nil
			log.Warn("fetcher: request failed", zap.Int("attempt", attempt+1), zap.Error(err))
			if attempt < f.opts.MaxRetries-1 {
				if err := f.wait(ctx, attempt, 0); err != nil {
					break
				}
			}
			continue
		}
		resp.Attempts = attempt + 1
		lastResp = resp

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			lim.OnSuccess()
			return resp, nil

		case resp.StatusCode == http.StatusForbidden:
			lastErr = &HTTPError{URL: rawURL, StatusCode: resp.StatusCode}
			log.Warn("fetcher: forbidden, rotating user agent", zap.Int("attempt", attempt+1))

		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			lastErr = resilience.NewTransientError(&HTTPError{URL: rawURL, StatusCode: resp.StatusCode}, resp.StatusCode)
			if resp.StatusCode == http.StatusTooManyRequests {
				lim.OnRateLimit()
			}
			log.Warn("fetcher: transient status, backing off",
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			if attempt < f.opts.MaxRetries-1 {
				if err := f.wait(ctx, attempt, retryAfter(resp.Header)); err != nil {
					return resp, eris.Wrap(err, "fetcher: backoff")
				}
			}

		default:
			// Permanent client error.
			return resp, &HTTPError{URL: rawURL, StatusCode: resp.StatusCode}
		}
	}

	if lastResp != nil {
		return lastResp, eris.Wrapf(lastErr, "fetcher: retries exhausted after %d attempts", lastResp.Attempts)
	}
	return nil, eris.Wrap(lastErr, "fetcher: retries exhausted")
}

func (f *HTTPFetcher) do(ctx context.Context, rawURL, ua string, headers http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	for k, v := range stealthHeaders {
		req.Header.Set(k, v)
	}
	for k, vs := range headers {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", ua)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "read body")
	}
	truncated := int64(len(raw)) > f.opts.MaxBodyBytes
	if truncated {
		raw = raw[:f.opts.MaxBodyBytes]
	}

	contentType := resp.Header.Get("Content-Type")
	body := raw
	if kind := ClassifyContentType(contentType); kind == KindHTML || kind == KindText {
		if decoded, err := DecodeBody(raw, contentType); err == nil {
			body = decoded
		}
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		Body:        body,
		ContentType: contentType,
		Header:      resp.Header,
		UserAgent:   ua,
		Truncated:   truncated,
	}, nil
}

// wait sleeps before the next attempt. A server supplied Retry-After wins over backoff.
func (f *HTTPFetcher) wait(ctx context.Context, attempt int, after time.Duration) error {
	d := resilience.Backoff(attempt+1, time.Second, 30*time.Second, time.Second)
	if after > 0 {
		d = min(after, 60*time.Second)
	}
	return f.opts.Sleep(ctx, d)
}

func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
