package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageUsable(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", MinUsableChars)

	tests := []struct {
		name string
		page Page
		want bool
	}{
		{"fetched with content", Page{Status: PageStatusFetched, Content: long}, true},
		{"fetched but short", Page{Status: PageStatusFetched, Content: "short"}, false},
		{"js empty", Page{Status: PageStatusJSEmpty, Content: long}, false},
		{"failed", Page{Status: PageStatusFailed}, false},
		{"blocked", Page{Status: PageStatusBlocked, Content: long}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.page.Usable())
		})
	}
}

func TestUsablePagesDedupesByHash(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("b", MinUsableChars+10)
	pages := []Page{
		{URL: "https://a.io", Status: PageStatusFetched, Content: long, Hash: "h1"},
		{URL: "https://a.io/docs", Status: PageStatusFetched, Content: long, Hash: "h1"},
		{URL: "https://a.io/blog", Status: PageStatusFetched, Content: long, Hash: "h2"},
		{URL: "https://a.io/x", Status: PageStatusFailed},
	}

	got := UsablePages(pages)
	assert.Len(t, got, 2)
	assert.Equal(t, "https://a.io", got[0].URL)
	assert.Equal(t, "https://a.io/blog", got[1].URL)
}

func TestHasFetched(t *testing.T) {
	t.Parallel()

	assert.False(t, HasFetched(nil))
	assert.False(t, HasFetched([]Page{{Status: PageStatusFailed}, {Status: PageStatusJSEmpty}}))
	assert.True(t, HasFetched([]Page{{Status: PageStatusFailed}, {Status: PageStatusFetched}}))
}
