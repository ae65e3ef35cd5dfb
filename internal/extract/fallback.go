package extract

import (
	"html"
	"regexp"
	"strings"
)

var (
	dropBlocks = func() []*regexp.Regexp {
		var out []*regexp.Regexp
		for _, tag := range []string{"script", "style", "noscript", "nav", "footer", "header", "aside", "form", "svg"} {
			out = append(out, regexp.MustCompile(`(?is)<`+tag+`[^>]*>.*?</`+tag+`>`))
		}
		return out
	}()
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	breakRe   = regexp.MustCompile(`(?i)</?(p|div|br|li|h[1-6]|tr|section|article)[^>]*>`)
	tagRe     = regexp.MustCompile(`<[^>]+>`)
	titleRe   = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
)

// StripTags removes non-content blocks and markup with regular expressions,
// decodes entities and collapses whitespace. It is the fallback when the
// readability pass yields too little text.
func StripTags(raw string) string {
	raw = commentRe.ReplaceAllString(raw, "")
	for _, re := range dropBlocks {
		raw = re.ReplaceAllString(raw, "")
	}
	raw = breakRe.ReplaceAllString(raw, "\n")
	raw = tagRe.ReplaceAllString(raw, " ")
	raw = html.UnescapeString(raw)
	return normalize(raw)
}

func extractTitle(raw string) string {
	m := titleRe.FindStringSubmatch(raw)
	if len(m) > 1 {
		return strings.TrimSpace(html.UnescapeString(m[1]))
	}
	return ""
}
