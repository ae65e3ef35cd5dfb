package scorer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

// Severity grades a guaranteed-returns phrase.
type Severity string

const (
	SeveritySevere   Severity = "severe"
	SeverityModerate Severity = "moderate"
	SeverityGeneric  Severity = "generic"
)

var severityPenalty = map[Severity]float64{
	SeveritySevere:   -15,
	SeverityModerate: -10,
	SeverityGeneric:  -5,
}

const (
	unverifiableAuditPenalty = -3
	copycatPenalty           = -7
	contradictionCap         = 20
)

var (
	// A promised percentage or multiple, or an explicit absence of risk.
	severePattern = regexp.MustCompile(`\d+(\.\d+)?\s*%|\b\d+\s*x\b|risk[\s-]?free|no risk|zero risk|double your`)
	// A guarantee attached to money.
	moderatePattern = regexp.MustCompile(`guarantee[ds]?\b.*\b(profit|return|yield|income|apy|apr|roi|gain)s?\b|\b(profit|return|yield|income|apy|apr|roi|gain)s?\b.*guarantee[ds]?`)
)

// ClassifyGuarantee grades one guaranteed-returns phrase.
func ClassifyGuarantee(phrase string) Severity {
	s := strings.ToLower(phrase)
	switch {
	case severePattern.MatchString(s):
		return SeveritySevere
	case moderatePattern.MatchString(s):
		return SeverityModerate
	default:
		return SeverityGeneric
	}
}

// penaltyResult is the summed deduction and the red flags explaining it.
type penaltyResult struct {
	total    float64
	redFlags []string
	cap      *float64
}

// penalties applies each guaranteed-returns category once, then the fixed
// deductions, then the contradiction cap.
func penalties(fs *model.FactSet) penaltyResult {
	var res penaltyResult

	present := make(map[Severity][]string)
	for _, phrase := range fs.RedFlags.GuaranteedReturns {
		sev := ClassifyGuarantee(phrase)
		present[sev] = append(present[sev], phrase)
	}
	for _, sev := range []Severity{SeveritySevere, SeverityModerate, SeverityGeneric} {
		phrases, ok := present[sev]
		if !ok {
			continue
		}
		res.total += severityPenalty[sev]
		res.redFlags = append(res.redFlags, fmt.Sprintf("guaranteed returns (%s, %+.0f): %s",
			sev, severityPenalty[sev], strings.Join(phrases, "; ")))
	}

	if len(fs.RedFlags.UnverifiableAudit) > 0 {
		res.total += unverifiableAuditPenalty
		res.redFlags = append(res.redFlags, fmt.Sprintf("unverifiable audit (%+d): %s",
			unverifiableAuditPenalty, strings.Join(fs.RedFlags.UnverifiableAudit, "; ")))
	}
	if len(fs.RedFlags.Copycat) > 0 {
		res.total += copycatPenalty
		res.redFlags = append(res.redFlags, fmt.Sprintf("copycat (%+d): %s",
			copycatPenalty, strings.Join(fs.RedFlags.Copycat, "; ")))
	}

	if len(fs.Contradictions) > 0 || len(fs.RedFlags.MisleadingClaims) > 0 {
		c := float64(contradictionCap)
		res.cap = &c
		if len(fs.Contradictions) > 0 {
			res.redFlags = append(res.redFlags, fmt.Sprintf("contradictions (capped at %d): %s",
				contradictionCap, strings.Join(fs.Contradictions, "; ")))
		}
		if len(fs.RedFlags.MisleadingClaims) > 0 {
			res.redFlags = append(res.redFlags, fmt.Sprintf("misleading claims (capped at %d): %s",
				contradictionCap, strings.Join(fs.RedFlags.MisleadingClaims, "; ")))
		}
	}

	for _, other := range fs.RedFlags.Other {
		res.redFlags = append(res.redFlags, other)
	}
	return res
}
