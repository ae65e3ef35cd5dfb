// Package discovery finds newly listed coins on a third-party listings page.
package discovery

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// Listing is one candidate coin parsed from the listings page.
type Listing struct {
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	DetailURL string `json:"detail_url"`
}

// ListingParser is one strategy for pulling listings out of HTML.
type ListingParser interface {
	Name() string
	Parse(body string, base *url.URL) []Listing
}

// DetailURLPattern matches coin detail pages, optionally behind a locale prefix.
var DetailURLPattern = regexp.MustCompile(`^https?://(?:www\.)?coingecko\.com/(?:[a-z]{2}(?:-[a-z]{2,4})?/)?coins/([a-z0-9][a-z0-9-]*)/?$`)

// reservedSlugs are /coins/ paths that are listing pages rather than coins.
var reservedSlugs = map[string]bool{
	"all":             true,
	"new":             true,
	"trending":        true,
	"categories":      true,
	"compare":         true,
	"high-volume":     true,
	"recently-added":  true,
	"largest-gainers": true,
	"top-gainers":     true,
}

// ParseDetailURL validates a detail URL and returns its canonical form and slug.
func ParseDetailURL(raw string) (canonical, slug string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", "", false
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)
	u.Path = strings.TrimSuffix(u.Path, "/")

	m := DetailURLPattern.FindStringSubmatch(u.String())
	if m == nil || reservedSlugs[m[1]] {
		return "", "", false
	}
	if u.Scheme == "http" {
		u.Scheme = "https"
	}
	return u.String(), m[1], true
}

// resolveDetailURL resolves href against base and validates it.
func resolveDetailURL(base *url.URL, href string) (string, string, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", "", false
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	return ParseDetailURL(abs.String())
}

var symbolPattern = regexp.MustCompile(`^\$?[A-Z0-9]{2,10}$`)

// looksLikeSymbol reports whether s is a ticker such as "BTC" or "$PEPE".
func looksLikeSymbol(s string) bool {
	return symbolPattern.MatchString(strings.TrimSpace(s))
}

func cleanSymbol(s string) string {
	return strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(s)), "$")
}

// NameFromSlug turns "alpha-protocol" into "Alpha Protocol".
func NameFromSlug(slug string) string {
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// SymbolFromSlug derives a provisional ticker from the slug.
func SymbolFromSlug(slug string) string {
	s := strings.ToUpper(strings.ReplaceAll(slug, "-", ""))
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}

// dedupe drops repeated detail URLs and caps the result.
func dedupe(in []Listing, limit int) []Listing {
	seen := make(map[string]bool, len(in))
	out := make([]Listing, 0, len(in))
	for _, l := range in {
		if seen[l.DetailURL] {
			continue
		}
		seen[l.DetailURL] = true
		out = append(out, l)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
