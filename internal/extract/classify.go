package extract

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/michelcools-creator/gem-radar-bot/internal/fetcher"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

// BlockType describes the kind of anti-bot block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockChallenge  BlockType = "challenge"
)

// challengeSignatures only count on short pages; long pages mentioning them are real content.
var challengeSignatures = []string{
	"checking your browser",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"attention required",
	"verify you are human",
	"ddos protection by",
}

// DetectBlock checks a response for signs of anti-bot protection.
func DetectBlock(statusCode int, header http.Header, body []byte) (bool, BlockType) {
	if statusCode == http.StatusForbidden || statusCode == http.StatusServiceUnavailable {
		if header.Get("cf-ray") != "" || header.Get("cf-mitigated") != "" ||
			strings.EqualFold(header.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cf_chl_opt") ||
		strings.Contains(lower, "challenge-platform") {
		return true, BlockCloudflare
	}

	if len(body) < 20000 && (strings.Contains(lower, "g-recaptcha") ||
		strings.Contains(lower, "h-captcha") ||
		strings.Contains(lower, "captcha-container")) {
		return true, BlockCaptcha
	}

	if len(body) < 5000 {
		for _, sig := range challengeSignatures {
			if strings.Contains(lower, sig) {
				return true, BlockChallenge
			}
		}
	}

	return false, BlockNone
}

// Outcome is the classified result of fetching and extracting one page.
type Outcome struct {
	Status model.PageStatus
	Result Result
	Block  BlockType
	Reason string
}

// Classify decides the page status for a fetch response and, for HTML/text
// bodies, runs extraction. resp may carry a non-2xx status when the fetch failed.
func Classify(resp *fetcher.Response) Outcome {
	if resp == nil {
		return Outcome{Status: model.PageStatusFailed, Reason: "no response"}
	}

	if blocked, bt := DetectBlock(resp.StatusCode, resp.Header, resp.Body); blocked {
		return Outcome{Status: model.PageStatusBlocked, Block: bt, Reason: "blocked: " + string(bt)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Outcome{Status: model.PageStatusFailed, Reason: http.StatusText(resp.StatusCode)}
	}

	if strings.HasPrefix(string(resp.Body[:min(len(resp.Body), 5)]), "%PDF") {
		return Outcome{Status: model.PageStatusPDFDetected, Reason: "pdf document"}
	}

	switch resp.Kind() {
	case fetcher.KindPDF:
		return Outcome{Status: model.PageStatusPDFDetected, Reason: "pdf document"}
	case fetcher.KindBinary:
		return Outcome{Status: model.PageStatusInvalidContent, Reason: "unsupported content type " + resp.ContentType}
	}

	if len(strings.TrimSpace(string(resp.Body))) == 0 {
		return Outcome{Status: model.PageStatusEmpty, Reason: "empty body"}
	}

	var res Result
	if resp.Kind() == fetcher.KindText {
		res = Result{Text: normalize(string(resp.Body))}
	} else {
		res = Extract(string(resp.Body), resp.URL)
	}

	return Outcome{Status: TextStatus(res), Result: res}
}

// TextStatus maps an extraction result to a page status.
func TextStatus(res Result) model.PageStatus {
	n := utf8.RuneCountInString(strings.TrimSpace(res.Text))
	switch {
	case res.IsJSHeavy && n < 50:
		return model.PageStatusJSEmpty
	case n == 0:
		return model.PageStatusEmpty
	case n < model.MinUsableChars:
		return model.PageStatusInsufficientContent
	default:
		return model.PageStatusFetched
	}
}
