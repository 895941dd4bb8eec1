package cost

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ModelUsage is accumulated token traffic for one model.
type ModelUsage struct {
	Calls        int     `json:"calls"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Summary is a point-in-time snapshot of a run's spend.
type Summary struct {
	Models     map[string]ModelUsage `json:"models"`
	JinaCost   float64               `json:"jina_cost"`
	SearchCost float64               `json:"search_cost"`
	Total      float64               `json:"total"`
}

// Tracker accumulates usage across a run. Safe for concurrent use; every
// pipeline worker records into the same tracker.
type Tracker struct {
	mu     sync.Mutex
	calc   *Calculator
	models map[string]ModelUsage
	jina   float64
	search float64
}

// NewTracker creates a tracker priced with the given calculator.
func NewTracker(calc *Calculator) *Tracker {
	return &Tracker{calc: calc, models: make(map[string]ModelUsage)}
}

// Completion records one LLM call's token usage.
func (t *Tracker) Completion(model string, isBatch bool, input, output int) {
	cost := t.calc.Completion(model, isBatch, input, output)

	t.mu.Lock()
	defer t.mu.Unlock()
	usage := t.models[model]
	usage.Calls++
	usage.InputTokens += input
	usage.OutputTokens += output
	usage.Cost += cost
	t.models[model] = usage
}

// Jina records a Jina Reader fetch of roughly len(content)/4 tokens.
func (t *Tracker) Jina(tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jina += t.calc.Jina(tokens)
}

// Search records one paid search query.
func (t *Tracker) Search() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.search += t.calc.Search()
}

// Snapshot returns the current totals.
func (t *Tracker) Snapshot() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	summary := Summary{
		Models:     make(map[string]ModelUsage, len(t.models)),
		JinaCost:   t.jina,
		SearchCost: t.search,
	}
	total := t.jina + t.search
	for model, usage := range t.models {
		summary.Models[model] = usage
		total += usage.Cost
	}
	summary.Total = total
	return summary
}

// Log writes the run's spend to the structured log, one line per model.
func (t *Tracker) Log() {
	summary := t.Snapshot()

	models := make([]string, 0, len(summary.Models))
	for model := range summary.Models {
		models = append(models, model)
	}
	sort.Strings(models)
	for _, model := range models {
		usage := summary.Models[model]
		zap.L().Info("cost: model usage",
			zap.String("model", model),
			zap.Int("calls", usage.Calls),
			zap.Int("input_tokens", usage.InputTokens),
			zap.Int("output_tokens", usage.OutputTokens),
			zap.Float64("cost_usd", usage.Cost),
		)
	}
	zap.L().Info("cost: run total",
		zap.Float64("llm_usd", summary.Total-summary.JinaCost-summary.SearchCost),
		zap.Float64("jina_usd", summary.JinaCost),
		zap.Float64("search_usd", summary.SearchCost),
		zap.Float64("total_usd", summary.Total),
	)
}
