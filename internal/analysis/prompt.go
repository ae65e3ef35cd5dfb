// Package analysis runs the qualitative due-diligence pass over a scored coin.
package analysis

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/michelcools-creator/gem-radar-bot/internal/extract"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

// SystemPrompt asks for six scored sub-analyses as one JSON object.
const SystemPrompt = `You are a senior crypto due-diligence analyst writing for cautious retail investors.
You receive a project's extracted claims, its quantitative score and excerpts of its official pages.
Judge only from this material. Say so when evidence is missing.

Produce six sub-analyses: team, partnerships, competitors, red_flags, social_sentiment, financial.
Each has a 0-100 score (100 = strongest evidence in the project's favour; for red_flags 100 = no concerns),
a short narrative in "findings", and lists of "supporting" and "refuting" evidence.
Finish with a two or three sentence "summary".

Respond with one JSON object and nothing else:
{
  "team": {"score": 0, "findings": "", "supporting": [], "refuting": []},
  "partnerships": {...},
  "competitors": {...},
  "red_flags": {...},
  "social_sentiment": {...},
  "financial": {...},
  "summary": ""
}`

// DefaultExcerptChars caps each page excerpt in the prompt.
const DefaultExcerptChars = 1500

// BuildPrompt assembles the full context for one coin.
func BuildPrompt(coin *model.Coin, facts *model.FactSet, score *model.Score, pages []model.Page, excerptChars int) string {
	if excerptChars <= 0 {
		excerptChars = DefaultExcerptChars
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s (%s)\n", coin.Name, coin.Symbol)

	if len(coin.OfficialLinks) > 0 {
		b.WriteString("\nOfficial links:\n")
		types := make([]string, 0, len(coin.OfficialLinks))
		for t := range coin.OfficialLinks {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(&b, "- %s: %s\n", t, coin.OfficialLinks[model.LinkType(t)])
		}
	}

	if score != nil {
		fmt.Fprintf(&b, "\nScore: %.1f/100 (confidence %.2f)\n", score.Overall, score.Confidence)
		for _, p := range model.AllPillars() {
			fmt.Fprintf(&b, "- %s: %.0f/100\n", p, score.SubScores[p.WeightKey()])
		}
		for _, f := range score.RedFlags {
			fmt.Fprintf(&b, "- red flag: %s\n", f)
		}
	}

	if facts != nil {
		if raw, err := json.MarshalIndent(facts, "", "  "); err == nil {
			b.WriteString("\nExtracted facts:\n")
			b.Write(raw)
			b.WriteByte('\n')
		}
	}

	for _, p := range pages {
		fmt.Fprintf(&b, "\n=== %s %s ===\n", p.LinkType, p.URL)
		b.WriteString(extract.Truncate(p.Content, excerptChars))
		b.WriteByte('\n')
	}

	b.WriteString("\nWrite the six sub-analyses as JSON.")
	return b.String()
}
