package service

import (
	"context"
	"time"

	"github.com/portfolio-evaluator/internal/logging"
	"github.com/portfolio-evaluator/internal/types"
)

// IngestReport summarizes one ingest or processing batch
type IngestReport struct {
	Fetched  int                   `json:"fetched"`
	Stored   int                   `json:"stored"`
	Outcomes map[types.Outcome]int `json:"outcomes,omitempty"`
	Failed   map[string]string     `json:"failed"`
	Duration time.Duration         `json:"duration"`
}

func newIngestReport() *IngestReport {
	return &IngestReport{
		Outcomes: make(map[types.Outcome]int),
		Failed:   make(map[string]string),
	}
}

// PostIngestor pulls new posts from communities and runs pending posts through the pipeline
type PostIngestor struct {
	source      PostSource
	posts       SourcePostStore
	pipeline    *Pipeline
	sourceName  string
	communities []string
	postLimit   int
}

// NewPostIngestor creates an ingestor for the given communities
func NewPostIngestor(source PostSource, posts SourcePostStore, pipeline *Pipeline, sourceName string, communities []string, postLimit int) *PostIngestor {
	return &PostIngestor{
		source:      source,
		posts:       posts,
		pipeline:    pipeline,
		sourceName:  sourceName,
		communities: communities,
		postLimit:   postLimit,
	}
}

// IngestNew stores the newest posts of every community. Stored posts keep
// their processing flags. A failing community does not stop the others.
func (i *PostIngestor) IngestNew(ctx context.Context) *IngestReport {
	start := time.Now()
	report := newIngestReport()
	logger := logging.FromContext(ctx)

	for _, community := range i.communities {
		posts, err := i.source.NewPosts(ctx, community, i.postLimit)
		if err != nil {
			report.Failed[community] = err.Error()
			logger.WithField("community", community).WithError(err).Warn("Failed to list new posts")
			continue
		}
		report.Fetched += len(posts)

		for _, post := range posts {
			if len(post.ImageURLs()) == 0 {
				continue
			}
			if err := i.posts.Upsert(ctx, post); err != nil {
				report.Failed[post.SourceID] = err.Error()
				continue
			}
			report.Stored++
		}
	}

	report.Duration = time.Since(start)
	logger.WithFields(map[string]interface{}{
		"fetched":  report.Fetched,
		"stored":   report.Stored,
		"failed":   len(report.Failed),
		"duration": report.Duration.String(),
	}).Info("Ingest finished")
	return report
}

// ProcessPending runs up to limit unprocessed posts through the pipeline.
// Each post is handled on its own; failures are reported, never returned.
func (i *PostIngestor) ProcessPending(ctx context.Context, limit int) (*IngestReport, error) {
	start := time.Now()
	report := newIngestReport()

	pending, err := i.posts.ListUnprocessed(ctx, i.sourceName, limit)
	if err != nil {
		return nil, err
	}
	report.Fetched = len(pending)

	for _, post := range pending {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		result := i.pipeline.RunPost(withPostLogger(ctx, post), post)
		report.Outcomes[result.Outcome]++
		if result.Err != nil && result.Outcome != types.OutcomeNotPortfolio {
			report.Failed[post.SourceID] = result.Err.Error()
		}
	}

	report.Duration = time.Since(start)
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"processed": report.Fetched,
		"failed":    len(report.Failed),
		"duration":  report.Duration.String(),
	}).Info("Pending posts processed")
	return report, nil
}
