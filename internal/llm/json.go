package llm

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ErrNoJSONObject is returned when a completion contains no {...} span.
var ErrNoJSONObject = eris.New("llm: no json object in response")

// CleanJSON strips markdown code fences and returns the outermost {...}
// span of text.
func CleanJSON(text string) (string, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.HasPrefix(strings.TrimSpace(s[:nl]), "{") {
			s = s[nl+1:] // language tag line
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", ErrNoJSONObject
	}
	return s[start : end+1], nil
}
