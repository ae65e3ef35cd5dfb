// Package scorer turns a normalized fact set into a deterministic 0-100 score.
package scorer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

// WeightSum returns the sum of all known pillar weights.
func WeightSum(weights map[string]float64) float64 {
	var sum float64
	for _, p := range model.AllPillars() {
		sum += weights[p.WeightKey()]
	}
	return sum
}

// ValidateWeights checks that every key is a known pillar weight and that
// no weight is negative. A sum other than 100 is allowed but logged.
func ValidateWeights(weights map[string]float64) error {
	var errs []string

	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, ok := model.PillarForWeightKey(k); !ok {
			errs = append(errs, fmt.Sprintf("unknown weight %q", k))
			continue
		}
		w := weights[k]
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", k))
		}
	}

	sum := WeightSum(weights)
	if sum <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("scorer: weights validation failed: %s", strings.Join(errs, "; "))
	}

	if math.Abs(sum-100) > 1 {
		zap.L().Warn("scorer: weights do not sum to 100",
			zap.Float64("sum", sum),
		)
	}
	return nil
}

// WeightsHash fingerprints a weight map so a score can be traced to the
// weights that produced it.
func WeightsHash(weights map[string]float64) string {
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%g;", k, weights[k])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
