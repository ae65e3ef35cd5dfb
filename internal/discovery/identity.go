package discovery

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// "Bitcoin Price: BTC Live Price Chart ..." and "Bitcoin (BTC) ..."
var (
	titlePricePattern = regexp.MustCompile(`^\s*(.+?)\s+[Pp]rice:?\s+\$?([A-Z0-9]{2,10})\b`)
	titleParenPattern = regexp.MustCompile(`^\s*(.+?)\s*\(\$?([A-Z0-9]{2,10})\)`)
)

// DetailIdentity reads a provisional name and symbol from a detail page,
// preferring the H1 over the document title. Either may be empty.
func DetailIdentity(body string) (name, symbol string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", ""
	}

	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		name, symbol = splitNameSymbol(textChunks(h1))
		if name == symbol {
			name = ""
		}
	}
	if name != "" && symbol != "" {
		return name, symbol
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	for _, re := range []*regexp.Regexp{titlePricePattern, titleParenPattern} {
		if m := re.FindStringSubmatch(title); m != nil {
			if name == "" {
				name = strings.TrimSpace(m[1])
			}
			if symbol == "" {
				symbol = m[2]
			}
			break
		}
	}
	return name, symbol
}
