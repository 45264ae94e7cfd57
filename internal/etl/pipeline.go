package etl

import (
	"context"
	"time"

	"github.com/aryanagg/si206-final/pkg/logger"
)

type Pipeline struct {
	Dataset   string
	Source    Source
	Writer    *Writer
	BatchSize int
	DryRun    bool
}

func NewPipeline(dataset string, src Source, writer *Writer, batchSize int, dryRun bool) *Pipeline {
	return &Pipeline{
		Dataset:   dataset,
		Source:    src,
		Writer:    writer,
		BatchSize: batchSize,
		DryRun:    dryRun,
	}
}

// Report summarizes one run.
type Report struct {
	Dataset    string
	Fetched    int
	Added      int
	TotalAfter int
	DryRun     bool
	Duration   time.Duration
}

// Run performs one fetch, slice, commit cycle. Errors are returned as-is from
// the source or the store, and a failed run leaves the store untouched.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	startTime := time.Now()
	logger.Infof("Starting ingestion of %s. Batch Size: %d, Policy: %s, DryRun: %v",
		p.Dataset, p.BatchSize, p.Writer.Policy, p.DryRun)

	records, err := p.Source.Fetch(ctx)
	if err != nil {
		logger.Errorf("Fetching %s failed: %v", p.Dataset, err)
		return nil, err
	}

	report := &Report{Dataset: p.Dataset, Fetched: len(records), DryRun: p.DryRun}

	if p.DryRun {
		plan, err := p.Writer.Plan(ctx, records, p.BatchSize)
		if err != nil {
			logger.Errorf("Planning %s failed: %v", p.Dataset, err)
			return nil, err
		}
		report.Added = len(plan.Candidate)
		report.TotalAfter = plan.Watermark
		logger.Infof("[DRY RUN] Would add %d of %d fetched records", report.Added, report.Fetched)
	} else {
		added, err := p.Writer.Apply(ctx, records, p.BatchSize)
		if err != nil {
			logger.Errorf("Writing %s failed: %v", p.Dataset, err)
			return nil, err
		}
		report.Added = added

		total, err := p.Writer.Store.ReadWatermark(ctx)
		if err != nil {
			return nil, persistenceError(err, "read watermark after commit")
		}
		report.TotalAfter = total
	}

	report.Duration = time.Since(startTime)
	if report.Added == 0 {
		logger.Infof("No new records for %s. Watermark stays at %d.", p.Dataset, report.TotalAfter)
	} else {
		logger.Infof("Ingestion of %s finished. Added: %d. Watermark: %d. Took %s.",
			p.Dataset, report.Added, report.TotalAfter, report.Duration.Round(time.Millisecond))
	}
	return report, nil
}
