package facts

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/michelcools-creator/gem-radar-bot/internal/llm"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

// ErrUnparsable is returned when the completion is not a claims JSON object.
var ErrUnparsable = eris.New("facts: unparsable llm output")

// flexString accepts a JSON string, number, bool or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case nil:
		*f = ""
	case bool:
		*f = flexString(strconv.FormatBool(t))
	case float64:
		*f = flexString(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		*f = flexString(strings.TrimSpace(string(b)))
	}
	return nil
}

// flexList accepts a single string or a list of strings and objects.
// Objects contribute their "name", "url" or "title" field.
type flexList []string

func (f *flexList) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexList(collectStrings(v))
	return nil
}

func collectStrings(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return []string{t}
	case bool:
		return []string{strconv.FormatBool(t)}
	case float64:
		return []string{strconv.FormatFloat(t, 'f', -1, 64)}
	case map[string]any:
		for _, k := range []string{"name", "url", "title", "value"} {
			if s, ok := t[k].(string); ok {
				return []string{s}
			}
		}
		return nil
	case []any:
		var out []string
		for _, item := range t {
			out = append(out, collectStrings(item)...)
		}
		return out
	}
	return nil
}

type rawClaim struct {
	Pillar    string     `json:"pillar"`
	Type      string     `json:"type"`
	Value     flexString `json:"value"`
	Statement string     `json:"statement"`
	ProofURLs flexList   `json:"proof_urls"`
	ProofURL  flexList   `json:"proof_url"`
}

type rawFacts struct {
	Claims          []rawClaim `json:"claims"`
	OnChainTraction struct {
		Partners     flexList   `json:"partners"`
		Integrations flexList   `json:"integrations"`
		Holders      flexString `json:"holders"`
		TVL          flexString `json:"tvl"`
		Volume24h    flexString `json:"volume_24h"`
	} `json:"on_chain_traction"`
	Contradictions flexList `json:"contradictions"`
	RedFlags       struct {
		GuaranteedReturns flexList `json:"guaranteed_returns"`
		MisleadingClaims  flexList `json:"misleading_claims"`
		UnverifiableAudit flexList `json:"unverifiable_audit"`
		Copycat           flexList `json:"copycat"`
		Other             flexList `json:"other"`
	} `json:"red_flags"`
}

// Parse reads a completion into a normalized FactSet. Fences and prose
// around the JSON object are tolerated; anything else is ErrUnparsable.
func Parse(text string) (*model.FactSet, error) {
	obj, err := llm.CleanJSON(text)
	if err != nil {
		return nil, eris.Wrap(ErrUnparsable, err.Error())
	}

	var raw rawFacts
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return nil, eris.Wrapf(ErrUnparsable, "decode: %v", err)
	}

	fs := &model.FactSet{
		OnChainTraction: model.OnChainTraction{
			Partners:     raw.OnChainTraction.Partners,
			Integrations: raw.OnChainTraction.Integrations,
			Holders:      string(raw.OnChainTraction.Holders),
			TVL:          string(raw.OnChainTraction.TVL),
			Volume24h:    string(raw.OnChainTraction.Volume24h),
		},
		Contradictions: raw.Contradictions,
		RedFlags: model.RedFlags{
			GuaranteedReturns: raw.RedFlags.GuaranteedReturns,
			MisleadingClaims:  raw.RedFlags.MisleadingClaims,
			UnverifiableAudit: raw.RedFlags.UnverifiableAudit,
			Copycat:           raw.RedFlags.Copycat,
			Other:             raw.RedFlags.Other,
		},
	}
	for _, rc := range raw.Claims {
		fs.Claims = append(fs.Claims, model.Claim{
			Pillar:    model.Pillar(rc.Pillar),
			Type:      rc.Type,
			Value:     string(rc.Value),
			Statement: rc.Statement,
			ProofURLs: append(rc.ProofURLs, rc.ProofURL...),
		})
	}

	Normalize(fs)
	return fs, nil
}

// Normalize fills missing slices, lower-cases pillar and type tags, maps
// weight keys to pillars, and drops claims with an unknown pillar or no
// http(s) proof URL. It is idempotent.
func Normalize(fs *model.FactSet) {
	claims := make([]model.Claim, 0, len(fs.Claims))
	for _, c := range fs.Claims {
		p, ok := normalizePillar(string(c.Pillar))
		if !ok {
			continue
		}
		proofs := proofURLs(c.ProofURLs)
		if len(proofs) == 0 {
			continue
		}
		claims = append(claims, model.Claim{
			Pillar:    p,
			Type:      normalizeTag(c.Type),
			Value:     strings.TrimSpace(c.Value),
			Statement: strings.TrimSpace(c.Statement),
			ProofURLs: proofs,
		})
	}
	fs.Claims = claims

	fs.OnChainTraction.Partners = cleanList(fs.OnChainTraction.Partners)
	fs.OnChainTraction.Integrations = cleanList(fs.OnChainTraction.Integrations)
	fs.OnChainTraction.Holders = strings.TrimSpace(fs.OnChainTraction.Holders)
	fs.OnChainTraction.TVL = strings.TrimSpace(fs.OnChainTraction.TVL)
	fs.OnChainTraction.Volume24h = strings.TrimSpace(fs.OnChainTraction.Volume24h)
	fs.Contradictions = cleanList(fs.Contradictions)

	fs.RedFlags.GuaranteedReturns = cleanList(fs.RedFlags.GuaranteedReturns)
	fs.RedFlags.MisleadingClaims = cleanList(fs.RedFlags.MisleadingClaims)
	fs.RedFlags.UnverifiableAudit = cleanList(fs.RedFlags.UnverifiableAudit)
	fs.RedFlags.Copycat = cleanList(fs.RedFlags.Copycat)
	fs.RedFlags.Other = cleanList(fs.RedFlags.Other)
}

func normalizeTag(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}

func normalizePillar(s string) (model.Pillar, bool) {
	tag := normalizeTag(s)
	p := model.Pillar(tag)
	if p.Valid() {
		return p, true
	}
	return model.PillarForWeightKey(tag)
}

func proofURLs(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, raw := range in {
		s := strings.TrimSpace(raw)
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// cleanList trims entries and drops blanks and case-insensitive repeats.
func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
