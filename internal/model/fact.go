package model

import "time"

// Pillar is one of the fixed scoring categories a claim can belong to.
type Pillar string

const (
	PillarSecurity   Pillar = "security"
	PillarTokenomics Pillar = "tokenomics"
	PillarTeam       Pillar = "team"
	PillarProduct    Pillar = "product"
	PillarMarket     Pillar = "market"
	PillarCommunity  Pillar = "community"
	PillarTraction   Pillar = "traction"
)

// AllPillars returns the pillars in display order.
func AllPillars() []Pillar {
	return []Pillar{
		PillarSecurity,
		PillarTokenomics,
		PillarTeam,
		PillarProduct,
		PillarMarket,
		PillarCommunity,
		PillarTraction,
	}
}

// Valid reports whether p is in the closed pillar set.
func (p Pillar) Valid() bool {
	_, ok := pillarWeightKeys[p]
	return ok
}

var pillarWeightKeys = map[Pillar]string{
	PillarSecurity:   "security_audit",
	PillarTokenomics: "tokenomics_fairness",
	PillarTeam:       "team_transparency",
	PillarProduct:    "product_maturity",
	PillarMarket:     "market_liquidity",
	PillarCommunity:  "community_health",
	PillarTraction:   "onchain_traction",
}

// WeightKey returns the settings weight key for the pillar.
func (p Pillar) WeightKey() string {
	return pillarWeightKeys[p]
}

// PillarForWeightKey maps a weight key back to its pillar.
func PillarForWeightKey(key string) (Pillar, bool) {
	for p, k := range pillarWeightKeys {
		if k == key {
			return p, true
		}
	}
	return "", false
}

// Claim is one evidence-backed statement about a coin.
type Claim struct {
	Pillar    Pillar   `json:"pillar"`
	Type      string   `json:"type"`
	Value     string   `json:"value,omitempty"`
	Statement string   `json:"statement,omitempty"`
	ProofURLs []string `json:"proof_urls"`
}

// OnChainTraction holds adoption evidence that is not tied to a single claim.
type OnChainTraction struct {
	Partners     []string `json:"partners"`
	Integrations []string `json:"integrations"`
	Holders      string   `json:"holders,omitempty"`
	TVL          string   `json:"tvl,omitempty"`
	Volume24h    string   `json:"volume_24h,omitempty"`
}

// RedFlags groups warning phrases found in the coin's pages.
type RedFlags struct {
	GuaranteedReturns []string `json:"guaranteed_returns"`
	MisleadingClaims  []string `json:"misleading_claims"`
	UnverifiableAudit []string `json:"unverifiable_audit"`
	Copycat           []string `json:"copycat"`
	Other             []string `json:"other"`
}

// Empty reports whether no red flag of any kind was recorded.
func (r RedFlags) Empty() bool {
	return len(r.GuaranteedReturns) == 0 &&
		len(r.MisleadingClaims) == 0 &&
		len(r.UnverifiableAudit) == 0 &&
		len(r.Copycat) == 0 &&
		len(r.Other) == 0
}

// FactSet is the normalized claims payload produced by fact extraction.
// After normalization every slice is non-nil and every claim has a proof URL.
type FactSet struct {
	Claims          []Claim         `json:"claims"`
	OnChainTraction OnChainTraction `json:"on_chain_traction"`
	Contradictions  []string        `json:"contradictions"`
	RedFlags        RedFlags        `json:"red_flags"`
}

// ClaimsFor returns the claims tagged with the given pillar.
func (f *FactSet) ClaimsFor(p Pillar) []Claim {
	var out []Claim
	for _, c := range f.Claims {
		if c.Pillar == p {
			out = append(out, c)
		}
	}
	return out
}

// FactRecord is one stored fact extraction attempt.
type FactRecord struct {
	ID        string    `json:"id"`
	CoinID    string    `json:"coin_id"`
	Extracted FactSet   `json:"extracted"`
	Sources   []string  `json:"sources"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
