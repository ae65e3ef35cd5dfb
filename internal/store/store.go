package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

var (
	// ErrNotFound is returned when a single-row lookup matches nothing.
	ErrNotFound = eris.New("store: not found")
	// ErrStatusConflict is returned by TransitionCoin when the coin is no longer in the expected status.
	ErrStatusConflict = eris.New("store: coin status changed concurrently")
	// ErrDuplicateCoin is returned by CreateCoin when name+symbol or the detail URL already exists.
	ErrDuplicateCoin = eris.New("store: duplicate coin")
)

// CoinOrder selects the ordering of coin listings.
type CoinOrder string

const (
	OrderCreatedAsc  CoinOrder = "created_asc"
	OrderUpdatedAsc  CoinOrder = "updated_asc"
	OrderCreatedDesc CoinOrder = "created_desc"
)

// CoinFilter specifies criteria for listing coins.
type CoinFilter struct {
	Status model.CoinStatus `json:"status,omitempty"`
	Order  CoinOrder        `json:"order,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for the analysis pipeline.
type Store interface {
	// Coins
	CreateCoin(ctx context.Context, coin *model.Coin) error
	GetCoin(ctx context.Context, id string) (*model.Coin, error)
	FindCoinByDetailURL(ctx context.Context, detailURL string) (*model.Coin, error)
	FindCoinByNameSymbol(ctx context.Context, name, symbol string) (*model.Coin, error)
	ListCoins(ctx context.Context, filter CoinFilter) ([]model.Coin, error)
	UpdateCoinLinks(ctx context.Context, id string, links model.Links) error
	TransitionCoin(ctx context.Context, id string, from, to model.CoinStatus) error
	TouchCoin(ctx context.Context, id string) error
	ResetCoin(ctx context.Context, id string) error
	DeleteCoin(ctx context.Context, id string) error
	ListStuckCoins(ctx context.Context, statuses []model.CoinStatus, idleBefore time.Time) ([]model.Coin, error)
	CountCoinsByStatus(ctx context.Context) (map[model.CoinStatus]int, error)

	// Pages
	UpsertPage(ctx context.Context, page *model.Page) error
	ListPages(ctx context.Context, coinID string) ([]model.Page, error)

	// Facts, scores and deep analysis (append-only)
	InsertFacts(ctx context.Context, rec *model.FactRecord) error
	LatestFacts(ctx context.Context, coinID string) (*model.FactRecord, error)
	InsertScore(ctx context.Context, score *model.Score) error
	LatestScore(ctx context.Context, coinID string) (*model.Score, error)
	ListScores(ctx context.Context, coinID string, limit int) ([]model.Score, error)
	InsertDeepAnalysis(ctx context.Context, da *model.DeepAnalysis) error
	LatestDeepAnalysis(ctx context.Context, coinID string) (*model.DeepAnalysis, error)

	// Settings singleton
	GetSettings(ctx context.Context) (*model.Settings, error)
	SaveSettings(ctx context.Context, s *model.Settings) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func limitOrDefault(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}

func orderClause(o CoinOrder) string {
	switch o {
	case OrderUpdatedAsc:
		return ` ORDER BY updated_at ASC, created_at ASC`
	case OrderCreatedDesc:
		return ` ORDER BY created_at DESC`
	default:
		return ` ORDER BY created_at ASC`
	}
}

// prepareCoin fills generated fields before insert.
func prepareCoin(c *model.Coin, id string, now time.Time) {
	if c.ID == "" {
		c.ID = id
	}
	if c.Status == "" {
		c.Status = model.CoinStatusPending
	}
	if c.Source == "" {
		c.Source = model.CoinSourceAuto
	}
	if c.OfficialLinks == nil {
		c.OfficialLinks = model.Links{}
	}
	if c.FirstSeen.IsZero() {
		c.FirstSeen = now
	}
	c.CreatedAt = now
	c.UpdatedAt = now
}

// settingsOrDefault fills missing settings fields with defaults.
func settingsOrDefault(s *model.Settings) *model.Settings {
	def := model.DefaultSettings()
	if s.Weights == nil {
		s.Weights = def.Weights
	}
	if s.AllowedDomains == nil {
		s.AllowedDomains = def.AllowedDomains
	}
	if s.StrategyVersion == "" {
		s.StrategyVersion = def.StrategyVersion
	}
	return s
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// encodedScore holds the JSON columns of a score row.
type encodedScore struct {
	pillars    []byte
	subScores  []byte
	redFlags   []byte
	greenFlags []byte
}

func encodeScore(sc *model.Score) (encodedScore, error) {
	var enc encodedScore
	var err error
	if enc.pillars, err = json.Marshal(sc.Pillars); err != nil {
		return enc, err
	}
	if enc.subScores, err = json.Marshal(sc.SubScores); err != nil {
		return enc, err
	}
	if enc.redFlags, err = json.Marshal(nonNil(sc.RedFlags)); err != nil {
		return enc, err
	}
	enc.greenFlags, err = json.Marshal(nonNil(sc.GreenFlags))
	return enc, err
}

func (enc encodedScore) decodeInto(sc *model.Score) error {
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{enc.pillars, &sc.Pillars},
		{enc.subScores, &sc.SubScores},
		{enc.redFlags, &sc.RedFlags},
		{enc.greenFlags, &sc.GreenFlags},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return err
		}
	}
	return nil
}

// analysisSections is the JSON document stored in deep_analysis.sections.
type analysisSections struct {
	Team            model.AnalysisSection `json:"team"`
	Partnerships    model.AnalysisSection `json:"partnerships"`
	Competitors     model.AnalysisSection `json:"competitors"`
	RedFlags        model.AnalysisSection `json:"red_flags"`
	SocialSentiment model.AnalysisSection `json:"social_sentiment"`
	Financial       model.AnalysisSection `json:"financial"`
}

func sectionsOf(da *model.DeepAnalysis) analysisSections {
	return analysisSections{
		Team:            da.Team,
		Partnerships:    da.Partnerships,
		Competitors:     da.Competitors,
		RedFlags:        da.RedFlags,
		SocialSentiment: da.SocialSentiment,
		Financial:       da.Financial,
	}
}

func (a analysisSections) apply(da *model.DeepAnalysis) {
	da.Team = a.Team
	da.Partnerships = a.Partnerships
	da.Competitors = a.Competitors
	da.RedFlags = a.RedFlags
	da.SocialSentiment = a.SocialSentiment
	da.Financial = a.Financial
}
