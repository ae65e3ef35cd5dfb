package scorer

import (
	"math"
	"strings"

	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

// rule awards points once when any claim of the pillar has one of types.
type rule struct {
	types  []string
	points float64
	truthy bool
}

var pillarRules = map[model.Pillar][]rule{
	model.PillarSecurity: {
		{types: []string{"audit"}, points: 60},
		{types: []string{"bug_bounty"}, points: 20},
		{types: []string{"multisig", "timelock", "kyc"}, points: 20},
	},
	model.PillarTeam: {
		{types: []string{"doxxed_team"}, points: 70, truthy: true},
		{types: []string{"team_size", "linkedin"}, points: 15},
		{types: []string{"advisors", "experience"}, points: 15},
	},
	model.PillarTokenomics: {
		{types: []string{"supply", "distribution", "allocation"}, points: 40},
		{types: []string{"vesting"}, points: 30},
		{types: []string{"liquidity_lock"}, points: 30},
	},
	model.PillarProduct: {
		{types: []string{"mainnet", "live_product"}, points: 50},
		{types: []string{"testnet"}, points: 20},
		{types: []string{"github", "open_source"}, points: 25},
		{types: []string{"docs", "whitepaper"}, points: 25},
	},
	model.PillarMarket: {
		{types: []string{"exchange_listing", "listing"}, points: 50},
		{types: []string{"liquidity"}, points: 30},
		{types: []string{"market_cap", "volume"}, points: 20},
	},
	model.PillarCommunity: {
		{types: []string{"social_following"}, points: 40},
		{types: []string{"active_community"}, points: 30},
		{types: []string{"governance"}, points: 30},
	},
	model.PillarTraction: {
		{types: []string{"users", "tvl"}, points: 10},
	},
}

// partnerBands maps a distinct partner count to points; the last band
// covers every count beyond it.
var partnerBands = []float64{0, 25, 45, 65, 85}

const (
	integrationPoints   = 5
	maxIntegrationBonus = 15
)

// falsy values negate a truthy rule.
var falsy = map[string]bool{
	"no": true, "false": true, "0": true, "none": true,
	"n/a": true, "anonymous": true, "unknown": true,
}

func isTruthy(v string) bool {
	return !falsy[strings.ToLower(strings.TrimSpace(v))]
}

// subScore computes the raw 0-100 evidence score for one pillar.
func subScore(p model.Pillar, fs *model.FactSet) float64 {
	claims := fs.ClaimsFor(p)

	var score float64
	for _, r := range pillarRules[p] {
		if matchRule(r, claims) {
			score += r.points
		}
	}
	if p == model.PillarTraction {
		score += tractionPoints(fs, claims)
	}
	return math.Min(score, 100)
}

func matchRule(r rule, claims []model.Claim) bool {
	for _, c := range claims {
		for _, t := range r.types {
			if c.Type != t {
				continue
			}
			if r.truthy && !isTruthy(c.Value) {
				continue
			}
			return true
		}
	}
	return false
}

// tractionPoints scores distinct partners in bands plus a capped bonus
// for integrations.
func tractionPoints(fs *model.FactSet, claims []model.Claim) float64 {
	partners := distinct(fs.OnChainTraction.Partners, claimValues(claims, "partnership"))
	integrations := distinct(fs.OnChainTraction.Integrations, claimValues(claims, "integration"))

	n := partners
	if n >= len(partnerBands) {
		n = len(partnerBands) - 1
	}
	bonus := math.Min(float64(integrations*integrationPoints), maxIntegrationBonus)
	return partnerBands[n] + bonus
}

func claimValues(claims []model.Claim, typ string) []string {
	var out []string
	for _, c := range claims {
		if c.Type == typ && c.Value != "" {
			out = append(out, c.Value)
		}
	}
	return out
}

// distinct counts case-insensitive unique non-blank entries across lists.
func distinct(lists ...[]string) int {
	seen := make(map[string]bool)
	for _, l := range lists {
		for _, s := range l {
			k := strings.ToLower(strings.TrimSpace(s))
			if k != "" {
				seen[k] = true
			}
		}
	}
	return len(seen)
}
