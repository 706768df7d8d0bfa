package inference

import "strings"

// modelRates holds USD prices per million tokens, input and output.
// Unknown models fall back to conservative defaults so cost estimates
// stay estimates rather than zeros.
type modelRates struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

var pricingTable = map[string]modelRates{
	"claude-haiku-3-5": {0.80, 4.00},
	"claude-sonnet-4":  {3.00, 15.00},
	"claude-opus-4":    {15.00, 75.00},
	"gemini-2.0-flash": {0.10, 0.40},
	"gemini-2.5-flash": {0.30, 2.50},
	"gemini-2.5-pro":   {1.25, 10.00},
}

var defaultRates = modelRates{3.00, 15.00}

// ratesFor resolves the price row for a model by longest prefix match,
// so dated variants like "claude-haiku-3-5-20241022" hit the base row.
func ratesFor(model string) modelRates {
	m := strings.ToLower(NormalizeModel(model))

	var best string
	for prefix := range pricingTable {
		if strings.HasPrefix(m, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return defaultRates
	}
	return pricingTable[best]
}

// EstimateCost returns the estimated USD cost of one completion call.
func EstimateCost(model string, inputTokens, outputTokens int) float64 {
	rates := ratesFor(model)
	return float64(inputTokens)/1e6*rates.InputPerMTok +
		float64(outputTokens)/1e6*rates.OutputPerMTok
}
