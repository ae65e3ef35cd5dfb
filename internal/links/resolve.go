package links

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

// Resolver runs link parsers in order over a detail page.
type Resolver struct {
	parsers []LinkParser
	filter  *Filter
}

// NewResolver returns a Resolver using the pattern then structured parsers.
func NewResolver(filter *Filter, parsers ...LinkParser) *Resolver {
	if filter == nil {
		filter = NewFilter()
	}
	if len(parsers) == 0 {
		parsers = []LinkParser{PatternParser{}, StructuredParser{}}
	}
	return &Resolver{parsers: parsers, filter: filter}
}

// Resolve extracts official links from a detail page. Earlier parsers win:
// structured data only fills types the pattern scan left empty.
func (r *Resolver) Resolve(body, pageURL string) model.Links {
	links := model.Links{}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		zap.L().Debug("links: parse html", zap.String("url", pageURL), zap.Error(err))
		return links
	}
	page, err := url.Parse(pageURL)
	if err != nil {
		page = nil
	}

	for _, p := range r.parsers {
		found := model.Links{}
		for _, c := range p.Parse(doc, page) {
			if _, taken := found[c.Type]; taken {
				continue
			}
			cleaned := Clean(c.URL)
			if !r.filter.Allowed(cleaned) {
				continue
			}
			found[c.Type] = cleaned
		}
		links.Merge(found)
	}
	return links
}
