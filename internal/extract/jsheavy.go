package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var noscriptRe = regexp.MustCompile(`(?is)<noscript[^>]*>(.*?)</noscript>`)

// spaMarkers are fingerprints of client-rendered application shells.
var spaMarkers = []string{
	`id="__next"`,
	`__next_data__`,
	`id="root"></div>`,
	`id="app"></div>`,
	`data-reactroot`,
	`ng-version=`,
	`window.__nuxt__`,
	`data-v-app`,
	`id="___gatsby"`,
	`data-sveltekit`,
}

// placeholderPhrases appear on pages that render nothing without JavaScript.
var placeholderPhrases = []string{
	"enable javascript",
	"javascript is required",
	"javascript is disabled",
	"you need to enable javascript to run this app",
	"loading...",
	"please wait while",
}

// detectJSHeavy reports whether a page likely needs a browser to render its content.
func detectJSHeavy(rawHTML string, scriptCount int, text string) bool {
	lower := strings.ToLower(rawHTML)
	for _, m := range spaMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	if scriptCount > 5 && utf8.RuneCountInString(text) < 500 {
		return true
	}
	haystack := strings.ToLower(text)
	for _, m := range noscriptRe.FindAllStringSubmatch(lower, -1) {
		haystack += "\n" + m[1]
	}
	for _, p := range placeholderPhrases {
		if strings.Contains(haystack, p) {
			return true
		}
	}
	return false
}
