package cost

// Rates holds per-provider pricing configuration.
type Rates struct {
	Models    map[string]ModelRate `yaml:"models" mapstructure:"models"`
	Jina      JinaRate             `yaml:"jina" mapstructure:"jina"`
	Firecrawl FirecrawlRate        `yaml:"firecrawl" mapstructure:"firecrawl"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	BatchDiscount float64 `yaml:"batch_discount" mapstructure:"batch_discount"`
}

// JinaRate holds Jina Reader pricing.
type JinaRate struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// FirecrawlRate holds Firecrawl per-query pricing.
type FirecrawlRate struct {
	PerSearch float64 `yaml:"per_search" mapstructure:"per_search"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Completion computes the cost of one LLM call. Unknown models cost zero so a
// new model never breaks a run before its rate lands in config.
func (c *Calculator) Completion(model string, isBatch bool, input, output int) float64 {
	rate, ok := c.rates.Models[model]
	if !ok {
		return 0
	}

	batchMul := 1.0
	if isBatch && rate.BatchDiscount > 0 {
		batchMul = rate.BatchDiscount
	}

	inCost := (float64(input) / 1e6) * rate.Input * batchMul
	outCost := (float64(output) / 1e6) * rate.Output * batchMul
	return inCost + outCost
}

// Jina computes the cost for Jina Reader token usage.
func (c *Calculator) Jina(tokens int) float64 {
	return (float64(tokens) / 1e6) * c.rates.Jina.PerMTok
}

// Search returns the per-query cost of a paid search.
func (c *Calculator) Search() float64 {
	return c.rates.Firecrawl.PerSearch
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00, BatchDiscount: 0.5},
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00, BatchDiscount: 0.5},
			"gpt-4o":                     {Input: 2.50, Output: 10.00, BatchDiscount: 0.5},
			"gpt-4o-mini":                {Input: 0.15, Output: 0.60, BatchDiscount: 0.5},
		},
		Jina:      JinaRate{PerMTok: 0.02},
		Firecrawl: FirecrawlRate{PerSearch: 0.006},
	}
}
