// Package pricing holds the static per-model rate table and the pure
// cost function used by the Gateway and the report renderer.
package pricing

import (
	"fmt"
	"math"
)

// Rate is the per-thousand-token price for a model, in USD.
type Rate struct {
	Input  float64
	Output float64
}

// Table maps a model name to its per-thousand-token input/output rate.
// A Table is what the Gateway is constructed with; the package-level
// DefaultTable below is editable data, not part of the contract, and
// callers are free to substitute their own.
type Table map[string]Rate

// DefaultTable is the built-in rate table. Pricing as of 2026-01-01;
// update as needed.
var DefaultTable = Table{
	"gpt-4o":        {Input: 0.005, Output: 0.015},
	"gpt-4o-mini":   {Input: 0.00015, Output: 0.0006},
	"gpt-4-turbo":   {Input: 0.01, Output: 0.03},
	"gpt-3.5-turbo": {Input: 0.0005, Output: 0.0015},
	"gpt-4-mock":    {Input: 0, Output: 0},
}

const mockProvider = "mock"

// Cost computes cost(model, promptTokens, completionTokens, provider)
// rounded to 6 decimal places against t. Unknown model yields 0; the
// mock provider always costs 0 regardless of model.
func (t Table) Cost(model string, provider string, promptTokens, completionTokens int) float64 {
	if provider == mockProvider {
		return 0
	}
	rate, ok := t[model]
	if !ok {
		return 0
	}
	input := float64(promptTokens) / 1000 * rate.Input
	output := float64(completionTokens) / 1000 * rate.Output
	return round6(input + output)
}

// Cost is the package-level convenience form of Table.Cost against
// DefaultTable, kept for callers (and Report Renderer helpers) that
// don't carry their own Gateway-scoped Table.
func Cost(model string, provider string, promptTokens, completionTokens int) float64 {
	return DefaultTable.Cost(model, provider, promptTokens, completionTokens)
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// FormatUSD renders a cost for display: zero costs print as "$0.00",
// costs below $0.001 use 6 decimal places, everything else uses 4
// decimal places.
func FormatUSD(cost float64) string {
	switch {
	case cost == 0:
		return "$0.00"
	case cost < 0.001:
		return fmt.Sprintf("$%.6f", cost)
	default:
		return fmt.Sprintf("$%.4f", cost)
	}
}
