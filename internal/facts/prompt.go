// Package facts turns a coin's fetched pages into a claims-based fact set
// through one LLM call.
package facts

import (
	"fmt"
	"strings"

	"github.com/michelcools-creator/gem-radar-bot/internal/extract"
	"github.com/michelcools-creator/gem-radar-bot/internal/model"
)

// SystemPrompt instructs the model to answer with the claims schema only.
const SystemPrompt = `You are a due-diligence analyst for newly listed crypto projects.
Read the project pages provided and extract verifiable factual claims.

Rules:
- Only state what the pages say. Do not guess or use outside knowledge.
- Every claim must cite at least one proof URL taken from the page URLs given.
- Tag each claim with exactly one pillar: security, tokenomics, team, product, market, community, traction.
- Use these claim types where they fit:
  security: audit, bug_bounty, multisig, timelock, kyc
  tokenomics: supply, distribution, vesting, liquidity_lock
  team: doxxed_team (value "yes" or "no"), team_size, linkedin, advisors, experience
  product: mainnet, live_product, testnet, github, open_source, docs, whitepaper
  market: exchange_listing, liquidity, market_cap, volume
  community: social_following, active_community, governance
  traction: partnership, integration, users, tvl
- Record statements that contradict each other in "contradictions".
- Copy red-flag wording verbatim into the matching "red_flags" list:
  guaranteed_returns (promised profit or yield), misleading_claims, unverifiable_audit
  (an audit is claimed but no auditor or report is named), copycat (imitates another brand).

Respond with one JSON object and nothing else:
{
  "claims": [{"pillar": "", "type": "", "value": "", "statement": "", "proof_urls": [""]}],
  "on_chain_traction": {"partners": [], "integrations": [], "holders": "", "tvl": "", "volume_24h": ""},
  "contradictions": [],
  "red_flags": {"guaranteed_returns": [], "misleading_claims": [], "unverifiable_audit": [], "copycat": [], "other": []}
}`

// DefaultCharsPerPage caps each page's text inside the prompt.
const DefaultCharsPerPage = 6000

// BuildPrompt embeds the usable pages of a coin into the user message.
// Pages are expected to be pre-filtered with model.UsablePages.
func BuildPrompt(coin *model.Coin, pages []model.Page, charsPerPage int) string {
	if charsPerPage <= 0 {
		charsPerPage = DefaultCharsPerPage
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Project: %s (%s)\n", coin.Name, coin.Symbol)
	if coin.DetailURL != "" {
		fmt.Fprintf(&b, "Listing: %s\n", coin.DetailURL)
	}
	fmt.Fprintf(&b, "Pages: %d\n", len(pages))

	for i, p := range pages {
		fmt.Fprintf(&b, "\n=== PAGE %d [%s] %s ===\n", i+1, p.LinkType, p.URL)
		if p.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", p.Title)
		}
		b.WriteString(extract.Truncate(p.Content, charsPerPage))
		b.WriteByte('\n')
	}

	b.WriteString("\nExtract the claims JSON for this project.")
	return b.String()
}
