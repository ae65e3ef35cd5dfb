package model

import "time"

// Score is one scoring run for a coin.
type Score struct {
	ID              string             `json:"id"`
	CoinID          string             `json:"coin_id"`
	Overall         float64            `json:"overall"`
	OverallCap      *float64           `json:"overall_cap,omitempty"`
	Confidence      float64            `json:"confidence"`
	// Pillars and SubScores are keyed by settings weight key.
	Pillars         map[string]float64 `json:"pillars"`
	SubScores       map[string]float64 `json:"sub_scores"`
	Penalties       float64            `json:"penalties"`
	RedFlags        []string           `json:"red_flags"`
	GreenFlags      []string           `json:"green_flags"`
	Summary         string             `json:"summary"`
	StrategyVersion string             `json:"strategy_version,omitempty"`
	WeightsHash     string             `json:"weights_hash,omitempty"`
	AsOf            time.Time          `json:"as_of"`
}

// AnalysisSection is one qualitative sub-analysis of a deep analysis.
type AnalysisSection struct {
	Score      float64  `json:"score"`
	Findings   string   `json:"findings"`
	Supporting []string `json:"supporting"`
	Refuting   []string `json:"refuting"`
}

// DeepAnalysis is the qualitative due-diligence record for a coin.
// Failed analyses are stored too so the dashboard can show why enrichment is missing.
type DeepAnalysis struct {
	ID              string          `json:"id"`
	CoinID          string          `json:"coin_id"`
	Team            AnalysisSection `json:"team"`
	Partnerships    AnalysisSection `json:"partnerships"`
	Competitors     AnalysisSection `json:"competitors"`
	RedFlags        AnalysisSection `json:"red_flags"`
	SocialSentiment AnalysisSection `json:"social_sentiment"`
	Financial       AnalysisSection `json:"financial"`
	Summary         string          `json:"summary"`
	Model           string          `json:"model,omitempty"`
	Failed          bool            `json:"failed"`
	Error           string          `json:"error,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
