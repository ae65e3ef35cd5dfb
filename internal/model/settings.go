package model

import (
	"strings"
	"time"
)

// DefaultStrategyVersion tags scores produced by the current scoring heuristics.
const DefaultStrategyVersion = "v2-claims"

// Settings is the singleton runtime configuration edited from the dashboard.
type Settings struct {
	Weights         map[string]float64 `json:"weights" yaml:"weights"`
	HybridMode      bool               `json:"hybrid_mode" yaml:"hybrid_mode"`
	AllowedDomains  []string           `json:"allowed_domains" yaml:"allowed_domains"`
	StrategyVersion string             `json:"strategy_version" yaml:"strategy_version"`
	UserAPIKey      string             `json:"user_api_key,omitempty" yaml:"user_api_key,omitempty"`
	UpdatedAt       time.Time          `json:"updated_at" yaml:"-"`
}

// DefaultWeights returns the stock pillar weights. They sum to 100.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		PillarSecurity.WeightKey():   20,
		PillarTokenomics.WeightKey(): 15,
		PillarTeam.WeightKey():       20,
		PillarProduct.WeightKey():    15,
		PillarMarket.WeightKey():     10,
		PillarCommunity.WeightKey():  10,
		PillarTraction.WeightKey():   10,
	}
}

// DefaultSettings returns the settings used when no row has been saved yet.
func DefaultSettings() Settings {
	return Settings{
		Weights:         DefaultWeights(),
		HybridMode:      false,
		AllowedDomains:  []string{"coingecko.com"},
		StrategyVersion: DefaultStrategyVersion,
	}
}

// DomainAllowed reports whether host or one of its parents is in
// AllowedDomains. Both sides compare case-insensitively.
func (s *Settings) DomainAllowed(host string) bool {
	host = NormalizeDomain(host)
	if host == "" {
		return false
	}
	for _, d := range s.AllowedDomains {
		d = NormalizeDomain(d)
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// NormalizeDomain lower-cases a domain and strips surrounding space and a
// trailing dot.
func NormalizeDomain(d string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
}

// HasUserKey reports whether a user-supplied LLM key is configured.
func (s *Settings) HasUserKey() bool {
	return s.UserAPIKey != ""
}
