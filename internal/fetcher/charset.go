package fetcher

import (
	"mime"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
)

// DecodeBody converts body to UTF-8. The charset parameter of contentType wins;
// otherwise the encoding is sniffed from BOMs and <meta> tags.
func DecodeBody(body []byte, contentType string) ([]byte, error) {
	if len(body) == 0 {
		return body, nil
	}

	name := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		name = params["charset"]
	}
	if name == "" {
		_, name, _ = charset.DetermineEncoding(body, contentType)
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		// Unknown labels are served as-is rather than failing the page.
		return body, nil
	}
	if canonical, _ := htmlindex.Name(enc); canonical == "utf-8" {
		return body, nil
	}

	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: decode %s body", name)
	}
	return out, nil
}
