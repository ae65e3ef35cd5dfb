// Package links extracts a coin's official project links from its detail page.
package links

import (
	"net/url"
	"path"
	"strings"
)

// mediaExtensions are never project pages. PDFs are allowed since
// whitepapers are commonly published that way.
var mediaExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true, ".ico": true, ".bmp": true,
	".mp4": true, ".webm": true, ".mov": true, ".avi": true, ".mp3": true, ".wav": true,
	".zip": true, ".rar": true, ".gz": true, ".tar": true, ".7z": true, ".exe": true, ".dmg": true, ".apk": true,
	".css": true, ".js": true, ".woff": true, ".woff2": true, ".ttf": true, ".json": true, ".xml": true,
}

// trackingDomains are ad, analytics and link-shortener hosts.
var trackingDomains = []string{
	"google-analytics.com",
	"googletagmanager.com",
	"googlesyndication.com",
	"googleadservices.com",
	"doubleclick.net",
	"facebook.net",
	"hotjar.com",
	"segment.io",
	"mixpanel.com",
	"amplitude.com",
	"clarity.ms",
	"scorecardresearch.com",
	"coinzilla.io",
	"a-ads.com",
	"bitmedia.io",
	"adroll.com",
	"bit.ly",
	"tinyurl.com",
}

// postMarkers identify individual social posts rather than profiles.
var postMarkers = []string{"/status/", "/statuses/", "/posts/", "/comments/", "/reel/", "/shorts/"}

// DefaultListingDomain is the listing site blocked when none is configured.
const DefaultListingDomain = "coingecko.com"

// ListingDomain returns the host of a listings URL, lower-cased and without
// a leading "www.". It returns "" when raw has no host.
func ListingDomain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// ListingFilter returns a Filter blocking the host of listingsURL, falling
// back to DefaultListingDomain.
func ListingFilter(listingsURL string) *Filter {
	domain := ListingDomain(listingsURL)
	if domain == "" {
		domain = DefaultListingDomain
	}
	return NewFilter(domain)
}

// Filter decides whether a URL can be recorded as an official link.
type Filter struct {
	blocked []string
}

// NewFilter returns a Filter that additionally rejects the given listing
// domains and their subdomains.
func NewFilter(listingDomains ...string) *Filter {
	blocked := make([]string, 0, len(trackingDomains)+len(listingDomains))
	blocked = append(blocked, trackingDomains...)
	for _, d := range listingDomains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			blocked = append(blocked, d)
		}
	}
	return &Filter{blocked: blocked}
}

// Allowed reports whether raw is an absolute http(s) URL that is not media,
// a social post, a tracker or the listing site itself.
func (f *Filter) Allowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	for _, d := range f.blocked {
		if host == d || strings.HasSuffix(host, "."+d) {
			return false
		}
	}

	p := strings.ToLower(u.Path)
	if mediaExtensions[path.Ext(p)] {
		return false
	}
	if strings.HasPrefix(p, "/p/") || p == "/watch" || strings.HasPrefix(p, "/watch/") {
		return false
	}
	for _, m := range postMarkers {
		if strings.Contains(p, m) {
			return false
		}
	}
	return true
}

// trackingParams are stripped from recorded links.
var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "ref", "referrer", "fbclid", "gclid"}

// Clean strips fragments and tracking parameters and trims a trailing slash
// from bare-host URLs.
func Clean(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	if u.RawQuery != "" {
		q := u.Query()
		for _, p := range trackingParams {
			q.Del(p)
		}
		u.RawQuery = q.Encode()
	}
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String()
}
