package fetcher

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher defines the interface for downloading web pages.
type Fetcher interface {
	// Fetch performs a GET with stealth headers, retrying transient failures.
	// Non-2xx terminal outcomes are returned as *HTTPError alongside the last response.
	Fetch(ctx context.Context, url string, headers http.Header) (*Response, error)
}

// Response is the decoded result of a fetch.
type Response struct {
	URL         string // final URL after redirects
	StatusCode  int
	Body        []byte // UTF-8 decoded, capped at the configured size
	ContentType string
	Header      http.Header
	Attempts    int
	UserAgent   string
	Truncated   bool
}

// Kind classifies the response body by content type.
func (r *Response) Kind() ContentKind {
	return ClassifyContentType(r.ContentType)
}

// ErrRobotsDisallowed is returned when robots.txt forbids the URL.
var ErrRobotsDisallowed = eris.New("fetcher: disallowed by robots.txt")

// HTTPError is returned for a terminal non-2xx response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("fetcher: http %d from %s", e.StatusCode, e.URL)
}

// StatusCode extracts the HTTP status from an error chain, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// ContentKind is a coarse content-type family.
type ContentKind string

const (
	KindHTML   ContentKind = "html"
	KindPDF    ContentKind = "pdf"
	KindText   ContentKind = "text"
	KindBinary ContentKind = "binary"
)

// ClassifyContentType maps a Content-Type header value to a ContentKind.
// A missing header is treated as HTML since many project sites omit it.
func ClassifyContentType(contentType string) ContentKind {
	if strings.TrimSpace(contentType) == "" {
		return KindHTML
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	switch {
	case mediaType == "text/html", mediaType == "application/xhtml+xml":
		return KindHTML
	case mediaType == "application/pdf":
		return KindPDF
	case strings.HasPrefix(mediaType, "text/"),
		mediaType == "application/json",
		mediaType == "application/xml",
		mediaType == "application/ld+json":
		return KindText
	default:
		return KindBinary
	}
}
