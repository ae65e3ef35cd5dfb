package scorer

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

const (
	// GreenFlagThreshold is the sub-score at which a pillar earns a green flag.
	GreenFlagThreshold = 60

	// freshnessPlaceholder stands in for a page-age signal.
	freshnessPlaceholder = 0.5
	// domainSaturation is the number of distinct proof domains that earns full diversity credit.
	domainSaturation = 3
)

// Score computes the overall score for a fact set. It is pure: the same
// facts and weights always produce the same result. Pillars holds weighted
// contributions and SubScores the raw 0-100 pillar evidence, both keyed by
// the settings weight key (team_transparency, security_audit, ...). AsOf,
// StrategyVersion and the ids are left for the caller.
func Score(fs *model.FactSet, weights map[string]float64) model.Score {
	if fs == nil {
		fs = &model.FactSet{}
	}

	s := model.Score{
		Pillars:     make(map[string]float64, len(model.AllPillars())),
		SubScores:   make(map[string]float64, len(model.AllPillars())),
		RedFlags:    []string{},
		GreenFlags:  []string{},
		WeightsHash: WeightsHash(weights),
	}

	var base float64
	var best model.Pillar
	for _, p := range model.AllPillars() {
		sub := subScore(p, fs)
		w := math.Max(weights[p.WeightKey()], 0)
		contribution := round2(sub / 100 * w)

		key := p.WeightKey()
		s.SubScores[key] = sub
		s.Pillars[key] = contribution
		base += contribution

		if sub >= GreenFlagThreshold {
			s.GreenFlags = append(s.GreenFlags, fmt.Sprintf("%s: strong evidence (%.0f/100)", key, sub))
		}
		if best == "" || contribution > s.Pillars[best.WeightKey()] {
			best = p
		}
	}

	pen := penalties(fs)
	s.Penalties = pen.total
	s.RedFlags = append(s.RedFlags, pen.redFlags...)
	s.OverallCap = pen.cap

	overall := base + pen.total
	if pen.cap != nil {
		overall = math.Min(*pen.cap, overall)
	}
	s.Overall = round2(clamp(overall, 0, 100))
	s.Confidence = confidence(fs)
	s.Summary = summary(s, best)
	return s
}

// confidence blends proof coverage, source-domain diversity and a fixed
// freshness term, rounded to two decimals.
func confidence(fs *model.FactSet) float64 {
	if len(fs.Claims) == 0 {
		return round2(0.2 * freshnessPlaceholder)
	}

	proven := 0
	domains := make(map[string]bool)
	for _, c := range fs.Claims {
		if len(c.ProofURLs) > 0 {
			proven++
		}
		for _, raw := range c.ProofURLs {
			if u, err := url.Parse(raw); err == nil && u.Host != "" {
				domains[strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")] = true
			}
		}
	}

	coverage := float64(proven) / float64(len(fs.Claims))
	diversity := math.Min(float64(len(domains))/domainSaturation, 1)
	return round2(clamp(0.6*coverage+0.2*diversity+0.2*freshnessPlaceholder, 0, 1))
}

func summary(s model.Score, best model.Pillar) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall %.1f/100, confidence %.2f", s.Overall, s.Confidence)
	if s.Pillars[best.WeightKey()] > 0 {
		fmt.Fprintf(&b, "; strongest pillar %s", best.WeightKey())
	}
	if n := len(s.RedFlags); n > 0 {
		fmt.Fprintf(&b, "; %d red flag(s)", n)
	}
	if s.OverallCap != nil {
		fmt.Fprintf(&b, "; capped at %.0f", *s.OverallCap)
	}
	return b.String()
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
