package fetcher

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

// RobotsChecker answers robots.txt questions with a per-host TTL cache.
type RobotsChecker struct {
	client *http.Client
	agent  string
	cache  *gocache.Cache
}

// NewRobotsChecker creates a checker. agent is matched against robots groups
// by its product token (e.g. "Mozilla").
func NewRobotsChecker(client *http.Client, agent string, ttl time.Duration) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RobotsChecker{
		client: client,
		agent:  productToken(agent),
		cache:  gocache.New(ttl, 2*ttl),
	}
}

// Allowed reports whether rawURL may be fetched and the crawl delay to honour.
// Unreachable or malformed robots.txt files allow everything.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL string) (bool, time.Duration, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false, 0, eris.Wrap(err, "robots: parse url")
	}

	data := r.robotsFor(ctx, u)
	if data == nil {
		return true, 0, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	var delay time.Duration
	if group := data.FindGroup(r.agent); group != nil {
		delay = group.CrawlDelay
	}
	return data.TestAgent(path, r.agent), delay, nil
}

func (r *RobotsChecker) robotsFor(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	key := u.Scheme + "://" + u.Host
	if cached, ok := r.cache.Get(key); ok {
		data, _ := cached.(*robotstxt.RobotsData)
		return data
	}

	data, err := r.download(ctx, key+"/robots.txt")
	if err != nil {
		zap.L().Debug("robots: fetch failed, allowing", zap.String("host", u.Host), zap.Error(err))
	}
	// Failures are cached as nil so a dead host is not asked again every page.
	r.cache.SetDefault(key, data)
	return data
}

func (r *RobotsChecker) download(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "robots: create request")
	}
	req.Header.Set("User-Agent", r.agent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "robots: fetch")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		return robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)
	}
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, eris.Wrap(err, "robots: parse")
	}
	return data, nil
}

func productToken(ua string) string {
	fields := strings.Fields(ua)
	if len(fields) == 0 {
		return "*"
	}
	return strings.SplitN(fields[0], "/", 2)[0]
}
