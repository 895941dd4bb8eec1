package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/company-research/internal/model"
)

// Run researches companies concurrently under the company gate. A failed
// company is recorded in the report and never cancels its siblings.
func (p *Pipeline) Run(ctx context.Context, companies []model.CompanyInput) model.RunReport {
	start := time.Now()
	results := make([]model.CompanyResult, len(companies))

	g := new(errgroup.Group)
	g.SetLimit(gateSize(p.cfg.Concurrency.Companies))
	for i, company := range companies {
		i, company := i, company
		g.Go(func() error {
			results[i] = p.ResearchCompany(ctx, company)
			return nil
		})
	}
	_ = g.Wait() // tasks record their own failures

	report := model.RunReport{Results: results, Elapsed: time.Since(start)}
	report.Tally()
	return report
}
