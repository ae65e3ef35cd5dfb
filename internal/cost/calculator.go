// Package cost estimates the dollar cost of LLM calls from token counts.
package cost

import "strings"

// ModelRate holds per-model token pricing in dollars per million tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps model names to their pricing.
type Rates map[string]ModelRate

// Calculator computes costs for LLM usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator. Nil or empty rates use DefaultRates.
func NewCalculator(rates Rates) *Calculator {
	if len(rates) == 0 {
		rates = DefaultRates()
	}
	return &Calculator{rates: rates}
}

// Rate returns the pricing for model. Dated snapshot names such as
// "gpt-4o-2024-08-06" resolve to the longest configured prefix.
func (c *Calculator) Rate(model string) (ModelRate, bool) {
	if r, ok := c.rates[model]; ok {
		return r, true
	}
	var best string
	for name := range c.rates {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return ModelRate{}, false
	}
	return c.rates[best], true
}

// LLM computes the cost of one completion. Unknown models cost 0.
func (c *Calculator) LLM(model string, input, output int64) float64 {
	rate, ok := c.Rate(model)
	if !ok {
		return 0
	}
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// DefaultRates returns list prices for the models the pipeline selects by
// default on either provider.
func DefaultRates() Rates {
	return Rates{
		"gpt-4o-mini":       {Input: 0.15, Output: 0.60},
		"gpt-4o":            {Input: 2.50, Output: 10.00},
		"gpt-4.1-mini":      {Input: 0.40, Output: 1.60},
		"gpt-4.1":           {Input: 2.00, Output: 8.00},
		"claude-haiku-4-5":  {Input: 1.00, Output: 5.00},
		"claude-sonnet-4-5": {Input: 3.00, Output: 15.00},
		"claude-opus-4-1":   {Input: 15.00, Output: 75.00},
	}
}
