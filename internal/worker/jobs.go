package worker

import (
	"context"
	"fmt"

	"github.com/portfolio-evaluator/internal/config"
	"github.com/portfolio-evaluator/internal/service"
)

// Job names
const (
	JobPriceSweep   = "price_sweep"
	JobIngest       = "ingest"
	JobProcessPosts = "process_posts"
)

// PriceSweeper refreshes tracked prices
type PriceSweeper interface {
	RefreshCurrentWeek(ctx context.Context) (*service.SweepReport, error)
	Backfill(ctx context.Context, weeks int) (*service.SweepReport, error)
}

// PostIngestor pulls and processes new posts
type PostIngestor interface {
	IngestNew(ctx context.Context) *service.IngestReport
	ProcessPending(ctx context.Context, limit int) (*service.IngestReport, error)
}

// PipelineJobs builds the scheduled jobs of the worker. ingestor may be nil
// when no communities are configured.
func PipelineJobs(cfg config.WorkerConfig, sweeper PriceSweeper, ingestor PostIngestor) []ScheduledJob {
	jobs := []ScheduledJob{{
		Name:     JobPriceSweep,
		Schedule: cfg.PriceSweepSchedule,
		Handler: func(ctx context.Context) error {
			if _, err := sweeper.RefreshCurrentWeek(ctx); err != nil {
				return fmt.Errorf("weekly refresh failed: %w", err)
			}
			if _, err := sweeper.Backfill(ctx, cfg.BackfillWeeks); err != nil {
				return fmt.Errorf("backfill failed: %w", err)
			}
			return nil
		},
	}}

	if ingestor == nil {
		return jobs
	}
	return append(jobs,
		ScheduledJob{
			Name:     JobIngest,
			Schedule: cfg.IngestSchedule,
			Handler: func(ctx context.Context) error {
				ingestor.IngestNew(ctx)
				return nil
			},
		},
		ScheduledJob{
			Name:     JobProcessPosts,
			Schedule: cfg.ProcessSchedule,
			Handler: func(ctx context.Context) error {
				_, err := ingestor.ProcessPending(ctx, cfg.ProcessBatchSize)
				return err
			},
		},
	)
}
