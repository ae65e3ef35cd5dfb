package model

import "time"

// PageStatus is the terminal outcome of fetching one URL.
type PageStatus string

const (
	PageStatusPending             PageStatus = "pending"
	PageStatusFetched             PageStatus = "fetched"
	PageStatusFailed              PageStatus = "failed"
	PageStatusEmpty               PageStatus = "empty"
	PageStatusInvalidContent      PageStatus = "invalid_content"
	PageStatusBlocked             PageStatus = "blocked"
	PageStatusPDFDetected         PageStatus = "pdf_detected"
	PageStatusJSEmpty             PageStatus = "js_empty"
	PageStatusInsufficientContent PageStatus = "insufficient_content"
)

// MinUsableChars is the shortest extracted text a page may have and still feed fact extraction.
const MinUsableChars = 100

// Page is one fetched URL belonging to a coin. Pages are unique on (CoinID, URL).
type Page struct {
	ID         string     `json:"id"`
	CoinID     string     `json:"coin_id"`
	LinkType   LinkType   `json:"link_type"`
	URL        string     `json:"url"`
	Status     PageStatus `json:"status"`
	HTTPStatus int        `json:"http_status,omitempty"`
	Title      string     `json:"title,omitempty"`
	Content    string     `json:"content,omitempty"`
	Excerpt    string     `json:"excerpt,omitempty"`
	Hash       string     `json:"content_hash,omitempty"`
	Error      string     `json:"error,omitempty"`
	FetchedAt  time.Time  `json:"fetched_at"`
}

// Usable reports whether the page can be included in a fact extraction prompt.
func (p *Page) Usable() bool {
	return p.Status == PageStatusFetched && len([]rune(p.Content)) >= MinUsableChars
}

// UsablePages filters pages down to those fit for fact extraction,
// dropping later pages whose content hash repeats an earlier one.
func UsablePages(pages []Page) []Page {
	var out []Page
	seen := make(map[string]bool)
	for _, p := range pages {
		if !p.Usable() {
			continue
		}
		if p.Hash != "" {
			if seen[p.Hash] {
				continue
			}
			seen[p.Hash] = true
		}
		out = append(out, p)
	}
	return out
}

// HasFetched reports whether any page was fetched successfully.
func HasFetched(pages []Page) bool {
	for _, p := range pages {
		if p.Status == PageStatusFetched {
			return true
		}
	}
	return false
}
