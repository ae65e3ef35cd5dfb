package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// CoinStatus is the position of a coin in the analysis state machine.
type CoinStatus string

const (
	CoinStatusPending             CoinStatus = "pending"
	CoinStatusProcessing          CoinStatus = "processing"
	CoinStatusDeepAnalysisPending CoinStatus = "deep_analysis_pending"
	CoinStatusAnalyzed            CoinStatus = "analyzed"
	CoinStatusFailed              CoinStatus = "failed"
	CoinStatusInsufficientData    CoinStatus = "insufficient_data"
	CoinStatusRetryPending        CoinStatus = "retry_pending"
)

// AllCoinStatuses returns every defined coin status.
func AllCoinStatuses() []CoinStatus {
	return []CoinStatus{
		CoinStatusPending,
		CoinStatusProcessing,
		CoinStatusDeepAnalysisPending,
		CoinStatusAnalyzed,
		CoinStatusFailed,
		CoinStatusInsufficientData,
		CoinStatusRetryPending,
	}
}

// Valid reports whether s is a known status.
func (s CoinStatus) Valid() bool {
	for _, known := range AllCoinStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no pipeline stage moves a coin out of s.
// Terminal coins only leave through an explicit reset.
func (s CoinStatus) Terminal() bool {
	switch s {
	case CoinStatusAnalyzed, CoinStatusFailed, CoinStatusInsufficientData:
		return true
	}
	return false
}

// ErrIllegalTransition is returned when a status change is not in the transition table.
var ErrIllegalTransition = eris.New("model: illegal coin status transition")

// transitions lists every forward edge a pipeline stage may take.
// Resets back to pending are handled separately by CanReset.
var transitions = map[CoinStatus][]CoinStatus{
	CoinStatusPending: {
		CoinStatusProcessing,
	},
	CoinStatusProcessing: {
		CoinStatusInsufficientData,
		CoinStatusRetryPending,
		CoinStatusFailed,
		CoinStatusDeepAnalysisPending,
	},
	CoinStatusDeepAnalysisPending: {
		CoinStatusAnalyzed,
	},
	CoinStatusRetryPending: {
		CoinStatusProcessing,
		CoinStatusPending,
		CoinStatusFailed,
	},
}

// CanTransition reports whether a pipeline stage may move a coin from one status to another.
func CanTransition(from, to CoinStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanReset reports whether a coin in status s may be reset to pending.
// Any status other than pending itself may be reset by an explicit user action.
// The automatic stuck sweep only resets processing and retry_pending coins.
func CanReset(s CoinStatus) bool {
	return s.Valid() && s != CoinStatusPending
}

// CoinSource records how a coin entered the system.
type CoinSource string

const (
	CoinSourceAuto   CoinSource = "auto"
	CoinSourceManual CoinSource = "manual"
)

// LinkType categorizes an official project link.
type LinkType string

const (
	LinkWebsite    LinkType = "website"
	LinkDocs       LinkType = "docs"
	LinkWhitepaper LinkType = "whitepaper"
	LinkGitHub     LinkType = "github"
	LinkBlog       LinkType = "blog"
	LinkTwitter    LinkType = "twitter"
	LinkTelegram   LinkType = "telegram"
	LinkDiscord    LinkType = "discord"
)

// Fetchable reports whether pages of this link type are fetched for fact extraction.
// Social profiles are kept as metadata only.
func (t LinkType) Fetchable() bool {
	switch t {
	case LinkWebsite, LinkDocs, LinkWhitepaper, LinkGitHub, LinkBlog:
		return true
	}
	return false
}

// FetchOrder is the order in which link types are fetched.
var FetchOrder = []LinkType{LinkWebsite, LinkDocs, LinkWhitepaper, LinkGitHub, LinkBlog}

// Links maps a link type to its URL.
type Links map[LinkType]string

// Merge copies entries from other that are not already present.
func (l Links) Merge(other Links) {
	for k, v := range other {
		if v == "" {
			continue
		}
		if _, ok := l[k]; !ok {
			l[k] = v
		}
	}
}

// Coin is a tracked cryptocurrency project.
type Coin struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Symbol        string     `json:"symbol"`
	Source        CoinSource `json:"source"`
	DetailURL     string     `json:"detail_url"`
	OfficialLinks Links      `json:"official_links"`
	Status        CoinStatus `json:"status"`
	FirstSeen     time.Time  `json:"first_seen"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Age returns how long ago the coin was created.
func (c *Coin) Age(now time.Time) time.Duration {
	return now.Sub(c.CreatedAt)
}

// IdleFor returns how long the coin has gone without an update.
func (c *Coin) IdleFor(now time.Time) time.Duration {
	return now.Sub(c.UpdatedAt)
}
