package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

func TestFormatCoinsList(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	coins := []model.Coin{
		{
			ID:            "c1",
			Name:          "Omega Protocol",
			Symbol:        "OMG",
			Status:        model.CoinStatusAnalyzed,
			Source:        model.CoinSourceAuto,
			OfficialLinks: model.Links{"website": "https://omega.example"},
			UpdatedAt:     updated,
		},
		{
			ID:     "c2",
			Name:   strings.Repeat("Long Name ", 6),
			Symbol: "LNG",
			Status: model.CoinStatusPending,
			Source: model.CoinSourceManual,
		},
	}

	var buf bytes.Buffer
	formatCoinsList(&buf, coins)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")

	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "STATUS")
	assert.Contains(t, lines[1], "Omega Protocol")
	assert.Contains(t, lines[1], "analyzed")
	assert.Contains(t, lines[1], "2026-03-01T12:00:00Z")
	assert.Contains(t, lines[2], "…")
	assert.Contains(t, lines[2], "manual")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcde", truncate("abcde", 5))
	assert.Equal(t, "abcd…", truncate("abcdef", 5))
	assert.Equal(t, "ünï…", truncate("ünïcode", 4))
}
