package cost

import "github.com/sells-group/company-research/internal/config"

// FromConfig builds the rate table from configuration, overlaying configured
// models onto the defaults so partial pricing config never zeroes out a model.
func FromConfig(pricing config.PricingConfig) Rates {
	rates := DefaultRates()
	for model, p := range pricing.Models {
		rates.Models[model] = ModelRate{
			Input:         p.Input,
			Output:        p.Output,
			BatchDiscount: p.BatchDiscount,
		}
	}
	if pricing.Jina.PerMTok > 0 {
		rates.Jina.PerMTok = pricing.Jina.PerMTok
	}
	if pricing.Firecrawl.PerSearch > 0 {
		rates.Firecrawl.PerSearch = pricing.Firecrawl.PerSearch
	}
	return rates
}
