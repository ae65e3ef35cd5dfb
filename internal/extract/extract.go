// Package extract turns raw HTML into clean page text for fact extraction.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// MinReadableChars is the readability output length below which the tag-strip fallback is tried.
const MinReadableChars = 100

// Result is the outcome of extracting one HTML document.
type Result struct {
	Text         string
	Title        string
	IsJSHeavy    bool
	UsedFallback bool
	ScriptCount  int
}

// Len returns the extracted text length in runes.
func (r Result) Len() int {
	return utf8.RuneCountInString(r.Text)
}

// Extract runs readability-style extraction over rawHTML.
func Extract(rawHTML, pageURL string) Result {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		text := StripTags(rawHTML)
		return Result{
			Text:         text,
			Title:        extractTitle(rawHTML),
			UsedFallback: true,
			IsJSHeavy:    detectJSHeavy(rawHTML, 0, text),
		}
	}

	res := Result{
		Title:       documentTitle(doc),
		ScriptCount: doc.Find("script").Length(),
	}

	clean(doc)
	res.Text = readable(doc)

	if utf8.RuneCountInString(res.Text) < MinReadableChars {
		if fb := StripTags(rawHTML); utf8.RuneCountInString(fb) > utf8.RuneCountInString(res.Text) {
			res.Text = fb
			res.UsedFallback = true
		}
	}

	res.IsJSHeavy = detectJSHeavy(rawHTML, res.ScriptCount, res.Text)
	return res
}

// noiseSelectors are removed before scoring.
const noiseSelectors = "script, style, noscript, template, svg, iframe, canvas, nav, header, footer, aside, form, button, select, " +
	"[role=navigation], [role=banner], [role=contentinfo], [aria-hidden=true]"

var (
	positiveHint = regexp.MustCompile(`(?i)article|body|content|entry|main|page|post|text|blog|story|doc|whitepaper|about`)
	negativeHint = regexp.MustCompile(`(?i)comment|meta|footer|footnote|sidebar|widget|sponsor|share|social|cookie|banner|promo|related|menu|nav|popup|modal|newsletter|subscribe`)
	spaceRun     = regexp.MustCompile(`[ \t\x{00a0}]+`)
	blankLines   = regexp.MustCompile(`\n\s*\n+`)
)

func clean(doc *goquery.Document) {
	doc.Find(noiseSelectors).Remove()
	for _, n := range doc.Nodes {
		removeComments(n)
	}
}

func removeComments(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			removeComments(c)
		}
		c = next
	}
}

// readable picks the container with the best paragraph score and returns its text.
func readable(doc *goquery.Document) string {
	scores := make(map[*html.Node]float64)
	var order []*html.Node

	add := func(n *html.Node, s float64) {
		if n == nil || n.Type != html.ElementNode {
			return
		}
		if _, ok := scores[n]; !ok {
			scores[n] = classWeight(n)
			order = append(order, n)
		}
		scores[n] += s
	}

	doc.Find("p, pre, li, td, h2, h3").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if utf8.RuneCountInString(text) < 25 {
			return
		}
		s := 1 + float64(strings.Count(text, ",")) + math.Min(float64(utf8.RuneCountInString(text))/100, 3)
		parent := sel.Nodes[0].Parent
		add(parent, s)
		if parent != nil {
			add(parent.Parent, s/2)
		}
	})

	var best *html.Node
	bestScore := 0.0
	for _, n := range order {
		sel := goquery.NewDocumentFromNode(n).Selection
		s := scores[n] * (1 - linkDensity(sel))
		if s > bestScore {
			best, bestScore = n, s
		}
	}

	root := doc.Find("body").First()
	if best != nil {
		root = goquery.NewDocumentFromNode(best).Selection
	}
	if root.Length() == 0 {
		root = doc.Selection
	}
	return normalize(blockText(root))
}

func classWeight(n *html.Node) float64 {
	w := 0.0
	for _, a := range n.Attr {
		if a.Key != "class" && a.Key != "id" {
			continue
		}
		if negativeHint.MatchString(a.Val) {
			w -= 25
		}
		if positiveHint.MatchString(a.Val) {
			w += 25
		}
	}
	switch n.Data {
	case "article", "main":
		w += 10
	case "section", "div":
		w += 5
	}
	return w
}

func linkDensity(sel *goquery.Selection) float64 {
	total := utf8.RuneCountInString(sel.Text())
	if total == 0 {
		return 0
	}
	links := 0
	sel.Find("a").Each(func(_ int, a *goquery.Selection) {
		links += utf8.RuneCountInString(a.Text())
	})
	return float64(links) / float64(total)
}

var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true, "li": true, "ul": true, "ol": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "tr": true, "table": true,
	"pre": true, "blockquote": true, "br": true, "dd": true, "dt": true,
}

// blockText renders text with newlines between block-level elements.
func blockText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if blockTags[n.Data] {
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			b.WriteByte('\n')
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}

func normalize(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func documentTitle(doc *goquery.Document) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if t, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t)
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// ContentHash returns the first 16 hex characters of the SHA-256 of the
// lower-cased, trimmed text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])[:16]
}

// Truncate caps text at n runes.
func Truncate(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	r := []rune(text)
	return string(r[:n])
}

// Excerpt returns at most n runes of text on a single line, cut at a word boundary.
func Excerpt(text string, n int) string {
	flat := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(flat) <= n {
		return flat
	}
	cut := Truncate(flat, n)
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return cut + "..."
}
