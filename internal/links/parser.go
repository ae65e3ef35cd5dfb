package links

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

// LinkParser is one strategy for finding typed links on a detail page.
// Candidates may repeat a type; the first accepted one wins.
type LinkParser interface {
	Name() string
	Parse(doc *goquery.Document, page *url.URL) []Candidate
}

// Candidate is a typed link before filtering.
type Candidate struct {
	Type model.LinkType
	URL  string
}

// PatternParser classifies anchors by their target host and path, and by
// the anchor's own text or nearby label.
type PatternParser struct{}

func (PatternParser) Name() string { return "pattern" }

func (PatternParser) Parse(doc *goquery.Document, page *url.URL) []Candidate {
	var out []Candidate
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		u := absolute(page, href)
		if u == nil {
			return
		}
		text, label := anchorContext(a)
		if t, ok := classify(u, text, label); ok {
			out = append(out, Candidate{Type: t, URL: u.String()})
		}
	})
	return out
}

// anchorContext returns the anchor's own text plus attributes, and the short
// label rendered just before its container (detail pages list links under a
// "Website" or "Explorers" heading).
func anchorContext(a *goquery.Selection) (text, label string) {
	parts := []string{a.Text()}
	for _, attr := range []string{"title", "aria-label", "data-label"} {
		if v, ok := a.Attr(attr); ok {
			parts = append(parts, v)
		}
	}
	text = flatten(strings.Join(parts, " "))
	if l := flatten(a.Parent().Prev().Text()); len(l) <= 40 {
		label = l
	}
	return text, label
}

func flatten(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

var (
	githubPath  = regexp.MustCompile(`^/[A-Za-z0-9_.-]+/?`)
	twitterPath = regexp.MustCompile(`^/[A-Za-z0-9_]{1,15}/?$`)
)

// classify maps a URL plus its anchor text and label to a link type.
// The label only decides the website type; other keywords must be in the
// anchor text itself.
func classify(u *url.URL, text, label string) (model.LinkType, bool) {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	p := strings.ToLower(u.Path)

	switch {
	case host == "github.com" || host == "gitlab.com":
		return model.LinkGitHub, githubPath.MatchString(u.Path)
	case host == "twitter.com" || host == "x.com":
		return model.LinkTwitter, twitterPath.MatchString(u.Path) && !isReservedTwitterPath(p)
	case host == "t.me" || host == "telegram.me":
		return model.LinkTelegram, len(p) > 1
	case host == "discord.gg" || (host == "discord.com" && strings.HasPrefix(p, "/invite/")):
		return model.LinkDiscord, true
	case containsWord(p, "whitepaper", "litepaper") || containsWord(text, "whitepaper", "litepaper"):
		return model.LinkWhitepaper, true
	case strings.HasPrefix(host, "docs.") || strings.HasSuffix(host, ".gitbook.io") ||
		strings.HasPrefix(p, "/docs") || containsWord(text, "docs", "documentation"):
		return model.LinkDocs, true
	case host == "medium.com" || strings.HasSuffix(host, ".medium.com") || host == "mirror.xyz" ||
		strings.HasSuffix(host, ".substack.com") || strings.HasPrefix(host, "blog.") ||
		strings.HasPrefix(p, "/blog") || containsWord(text, "blog", "announcement"):
		return model.LinkBlog, true
	case containsWord(text+" "+label, "website", "homepage", "official site"):
		return model.LinkWebsite, true
	}
	return "", false
}

func isReservedTwitterPath(p string) bool {
	switch strings.Trim(p, "/") {
	case "", "home", "share", "intent", "search", "explore", "login", "i":
		return true
	}
	return false
}

func containsWord(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func absolute(page *url.URL, href string) *url.URL {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") ||
		strings.HasPrefix(strings.ToLower(href), "mailto:") {
		return nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return nil
	}
	if page != nil {
		ref = page.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return nil
	}
	return ref
}

// StructuredParser reads JSON-LD url/sameAs, og:url and the canonical link.
type StructuredParser struct{}

func (StructuredParser) Name() string { return "structured" }

func (StructuredParser) Parse(doc *goquery.Document, page *url.URL) []Candidate {
	var out []Candidate

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var raw any
		if err := json.Unmarshal([]byte(s.Text()), &raw); err != nil {
			return
		}
		for _, node := range jsonLDNodes(raw) {
			if v, ok := node["url"].(string); ok {
				if u := absolute(page, v); u != nil {
					out = append(out, Candidate{Type: model.LinkWebsite, URL: u.String()})
				}
			}
			for _, same := range stringList(node["sameAs"]) {
				u := absolute(page, same)
				if u == nil {
					continue
				}
				if t, ok := classify(u, "", ""); ok {
					out = append(out, Candidate{Type: t, URL: u.String()})
				}
			}
		}
	})

	for _, sel := range []string{`meta[property="og:url"]`, `link[rel="canonical"]`} {
		attr := "content"
		if strings.HasPrefix(sel, "link") {
			attr = "href"
		}
		if v, ok := doc.Find(sel).First().Attr(attr); ok {
			if u := absolute(page, v); u != nil {
				out = append(out, Candidate{Type: model.LinkWebsite, URL: u.String()})
			}
		}
	}
	return out
}

// jsonLDNodes flattens a JSON-LD document: a single object, an array, or an @graph.
func jsonLDNodes(raw any) []map[string]any {
	switch v := raw.(type) {
	case map[string]any:
		nodes := []map[string]any{v}
		if g, ok := v["@graph"]; ok {
			nodes = append(nodes, jsonLDNodes(g)...)
		}
		return nodes
	case []any:
		var nodes []map[string]any
		for _, item := range v {
			nodes = append(nodes, jsonLDNodes(item)...)
		}
		return nodes
	}
	return nil
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
