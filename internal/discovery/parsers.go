package discovery

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// DefaultParsers returns the strategies in the order they are tried.
func DefaultParsers() []ListingParser {
	return []ListingParser{AnchorParser{}, TableParser{}, SlugParser{}}
}

// AnchorParser scans every anchor pointing at a detail page and reads the
// coin name from the link text.
type AnchorParser struct{}

func (AnchorParser) Name() string { return "anchor" }

func (AnchorParser) Parse(body string, base *url.URL) []Listing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var out []Listing
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		detail, slug, ok := resolveDetailURL(base, href)
		if !ok {
			return
		}

		name, symbol := splitNameSymbol(textChunks(a))
		if name == "" {
			return
		}
		if symbol == "" {
			symbol = SymbolFromSlug(slug)
		}
		out = append(out, Listing{Name: name, Symbol: symbol, DetailURL: detail})
	})
	return out
}

// TableParser reads table rows that carry a detail link, a name and a symbol.
// Rows missing any of the three are skipped.
type TableParser struct{}

func (TableParser) Name() string { return "table" }

func (TableParser) Parse(body string, base *url.URL) []Listing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil
	}

	var out []Listing
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		var detail string
		row.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
			href, _ := a.Attr("href")
			if u, _, ok := resolveDetailURL(base, href); ok {
				detail = u
				return false
			}
			return true
		})
		if detail == "" {
			return
		}

		var chunks []string
		row.Find("td, th").Each(func(_ int, cell *goquery.Selection) {
			chunks = append(chunks, textChunks(cell)...)
		})
		name, symbol := splitNameSymbol(chunks)
		if name == "" || symbol == "" {
			return
		}
		out = append(out, Listing{Name: name, Symbol: symbol, DetailURL: detail})
	})
	return out
}

// SlugParser derives listings from detail URLs alone, for markup that
// carries no usable link text.
type SlugParser struct{}

func (SlugParser) Name() string { return "slug" }

var hrefPattern = regexp.MustCompile(`href\s*=\s*["']([^"'#?]*?/coins/[a-z0-9][a-z0-9-]*/?)["'#?]`)

func (SlugParser) Parse(body string, base *url.URL) []Listing {
	var out []Listing
	for _, m := range hrefPattern.FindAllStringSubmatch(body, -1) {
		detail, slug, ok := resolveDetailURL(base, m[1])
		if !ok {
			continue
		}
		out = append(out, Listing{
			Name:      NameFromSlug(slug),
			Symbol:    SymbolFromSlug(slug),
			DetailURL: detail,
		})
	}
	return out
}

var (
	priceLike = regexp.MustCompile(`^[$€£]?[\d.,]+[%kKmMbB]?$`)
	rankLike  = regexp.MustCompile(`^#?\d+$`)
)

// textChunks returns the non-empty text nodes under sel in document order.
func textChunks(sel *goquery.Selection) []string {
	var out []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				out = append(out, t)
			}
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return out
}

// splitNameSymbol picks the first ticker-looking chunk as the symbol and the
// first other non-numeric chunk as the name.
func splitNameSymbol(chunks []string) (name, symbol string) {
	for _, c := range chunks {
		switch {
		case priceLike.MatchString(c) || rankLike.MatchString(c):
			continue
		case symbol == "" && looksLikeSymbol(c):
			symbol = cleanSymbol(c)
		case name == "":
			name = c
		}
	}
	// "Bitcoin BTC" in a single text node
	if name != "" && symbol == "" {
		if f := strings.Fields(name); len(f) > 1 && looksLikeSymbol(f[len(f)-1]) {
			symbol = cleanSymbol(f[len(f)-1])
			name = strings.Join(f[:len(f)-1], " ")
		}
	}
	if name == "" && symbol != "" {
		name = symbol
	}
	return name, symbol
}
