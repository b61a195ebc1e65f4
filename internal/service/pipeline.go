package service

import (
	"context"
	"time"

	"github.com/portfolio-evaluator/internal/adapter"
	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/logging"
	"github.com/portfolio-evaluator/internal/metrics"
	"github.com/portfolio-evaluator/internal/models"
	"github.com/portfolio-evaluator/internal/retry"
	"github.com/portfolio-evaluator/internal/types"
)

// PipelineOptions tunes a Pipeline
type PipelineOptions struct {
	// Debug stops each run after interpretation without initializing a portfolio
	Debug bool
	// FetchRetry retries fetching the post. Nil means a single attempt.
	FetchRetry *retry.RetryConfig
}

// RunResult is the final state of a single post run
type RunResult struct {
	Source         string            `json:"source"`
	SourceID       string            `json:"sourceId"`
	Outcome        types.Outcome     `json:"outcome"`
	Portfolio      *models.Portfolio `json:"portfolio,omitempty"`
	Interpretation *Interpretation   `json:"interpretation,omitempty"`
	// Interpreted is true when this run performed the interpretation
	Interpreted bool  `json:"interpreted"`
	Err         error `json:"-"`
}

// Pipeline moves a post through fetch, interpretation, purchase recording and evaluation
type Pipeline struct {
	source      PostSource
	posts       SourcePostStore
	portfolios  PortfolioStore
	recorder    PortfolioRecorder
	interpreter *PostInterpreter
	normalizer  *PurchaseNormalizer
	resolver    *PriceResolver
	evaluator   *PortfolioEvaluator
	opts        PipelineOptions
}

// NewPipeline creates a pipeline from its stages
func NewPipeline(
	source PostSource,
	posts SourcePostStore,
	portfolios PortfolioStore,
	recorder PortfolioRecorder,
	interpreter *PostInterpreter,
	normalizer *PurchaseNormalizer,
	resolver *PriceResolver,
	evaluator *PortfolioEvaluator,
	opts PipelineOptions,
) *Pipeline {
	return &Pipeline{
		source:      source,
		posts:       posts,
		portfolios:  portfolios,
		recorder:    recorder,
		interpreter: interpreter,
		normalizer:  normalizer,
		resolver:    resolver,
		evaluator:   evaluator,
		opts:        opts,
	}
}

// FetchAndRecord fetches the post behind url and stores it. The stored row
// is returned, so processing flags from earlier runs are preserved.
func (p *Pipeline) FetchAndRecord(ctx context.Context, url string) (*models.SourcePost, error) {
	if err := adapter.ValidatePostURL(url); err != nil {
		return nil, err
	}

	var post *models.SourcePost
	fetch := func(ctx context.Context, _ int) error {
		var err error
		post, err = p.source.FetchPost(ctx, url)
		return err
	}
	var err error
	if p.opts.FetchRetry != nil {
		err = retry.WithExponentialBackoff(ctx, p.opts.FetchRetry, fetch).Err()
	} else {
		err = fetch(ctx, 1)
	}
	metrics.ObserveStage("fetch", err)
	if err != nil {
		return nil, err
	}

	return p.Record(ctx, post)
}

// Record stores an already fetched post and returns the stored row
func (p *Pipeline) Record(ctx context.Context, post *models.SourcePost) (*models.SourcePost, error) {
	if err := p.posts.Upsert(ctx, post); err != nil {
		return nil, err
	}
	return p.posts.Get(ctx, post.Source, post.SourceID)
}

// Interpret runs the interpreter on a stored post and records the flags.
// A post is interpreted at most once. Purchases of a portfolio post are
// recorded by a later RecordPurchases call.
func (p *Pipeline) Interpret(ctx context.Context, source, sourceID string) (*Interpretation, error) {
	post, err := p.posts.Get(ctx, source, sourceID)
	if err != nil {
		return nil, err
	}
	ctx = withPostLogger(ctx, post)

	result, err := p.extract(ctx, post)
	if err != nil {
		return nil, err
	}
	if result.IsPortfolio {
		post.MarkInterpreted(true)
		if err := p.posts.UpdateStatus(ctx, post); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// extract interprets a post that was never processed. Failed and
// non-portfolio outcomes are stored immediately; a portfolio outcome is left
// to the caller so the flags are written together with the purchases.
func (p *Pipeline) extract(ctx context.Context, post *models.SourcePost) (*Interpretation, error) {
	if post.Processed {
		return nil, apperrors.NewAlreadyInterpretedError(post.Source, post.SourceID)
	}

	result, err := p.interpreter.InterpretPost(ctx, post)
	metrics.ObserveStage("interpret", err)
	if err != nil {
		post.MarkFailed()
		if statusErr := p.posts.UpdateStatus(ctx, post); statusErr != nil {
			return nil, statusErr
		}
		return nil, err
	}

	if !result.IsPortfolio {
		post.MarkInterpreted(false)
		if err := p.posts.UpdateStatus(ctx, post); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// RecordPurchases initializes the portfolio of an interpreted post and stores
// its USD purchases. The stored post must already be interpreted as a
// portfolio. When the portfolio already exists the stored one is returned
// unchanged.
func (p *Pipeline) RecordPurchases(ctx context.Context, post *models.SourcePost, result *Interpretation) (*models.Portfolio, error) {
	if result == nil || !result.IsPortfolio {
		return nil, apperrors.NewNotPortfolioError(post.Source, post.SourceID)
	}

	stored, err := p.posts.Get(ctx, post.Source, post.SourceID)
	if err != nil {
		return nil, err
	}
	switch {
	case !stored.Processed:
		return nil, apperrors.NewNotInterpretedError(stored.Source, stored.SourceID)
	case stored.Failed, !stored.IsPortfolio:
		return nil, apperrors.NewNotPortfolioError(stored.Source, stored.SourceID)
	}

	return p.record(withPostLogger(ctx, stored), stored, result)
}

// record normalizes the purchases of a portfolio post and hands them to the
// recorder along with the post's flags. Newly seen assets are registered with
// the resolver.
func (p *Pipeline) record(ctx context.Context, post *models.SourcePost, result *Interpretation) (*models.Portfolio, error) {
	logger := logging.FromContext(ctx)

	exists, err := p.portfolios.Exists(ctx, post.Source, post.SourceID)
	if err != nil {
		return nil, err
	}

	var purchases []*models.Purchase
	if exists {
		logger.Info("Portfolio already initialized, keeping recorded purchases")
	} else {
		purchases = make([]*models.Purchase, 0, len(result.Purchases))
		for _, record := range result.Purchases {
			purchase, err := p.normalizer.Normalize(ctx, NormalizeInput{
				Source:       post.Source,
				SourceID:     post.SourceID,
				Name:         record.Name,
				Abbreviation: record.Abbreviation,
				Amount:       record.Amount,
				TotalValue:   record.Price,
				Currency:     record.Currency,
				Date:         post.CreatedDate,
			})
			if err != nil {
				return nil, err
			}
			purchases = append(purchases, purchase)

			if _, err := p.resolver.Resolve(ctx, record.Name, record.Abbreviation); err != nil {
				if !apperrors.IsCategory(err, apperrors.CategoryAssetNotFound) {
					return nil, err
				}
				logger.WithField("asset", purchase.Key().String()).Warn("No price provider knows asset")
			}
		}
	}

	post.MarkInterpreted(true)
	portfolio := models.NewPortfolio(post.Source, post.SourceID, post.CreatedDate)
	inserted, err := p.recorder.Record(ctx, post, portfolio, purchases)
	metrics.ObserveStage("record_purchases", err)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return p.portfolios.Get(ctx, post.Source, post.SourceID)
	}
	portfolio.Purchases = purchases

	logger.WithField("purchases", len(purchases)).Info("Portfolio initialized")
	return portfolio, nil
}

// Evaluate recomputes the metrics of a recorded portfolio
func (p *Pipeline) Evaluate(ctx context.Context, source, sourceID string) (*models.Portfolio, error) {
	return p.evaluate(withSourceLogger(ctx, source, sourceID), source, sourceID)
}

func (p *Pipeline) evaluate(ctx context.Context, source, sourceID string) (*models.Portfolio, error) {
	portfolio, err := p.evaluator.EvaluatePortfolio(ctx, source, sourceID)
	metrics.ObserveStage("evaluate", err)
	return portfolio, err
}

// Run takes one post URL through the whole pipeline. An already interpreted
// post is never interpreted again; a portfolio post is only re-evaluated.
func (p *Pipeline) Run(ctx context.Context, url string) (*RunResult, error) {
	start := time.Now()
	post, err := p.FetchAndRecord(ctx, url)
	if err != nil {
		return nil, err
	}

	ctx = withPostLogger(ctx, post)
	result := p.RunPost(ctx, post)

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"outcome":  result.Outcome,
		"duration": time.Since(start).String(),
	}).Info("Pipeline run finished")
	return result, nil
}

// RunPost continues the pipeline for a stored post
func (p *Pipeline) RunPost(ctx context.Context, post *models.SourcePost) *RunResult {
	result := &RunResult{Source: post.Source, SourceID: post.SourceID}

	if !post.Processed {
		interpretation, err := p.extract(ctx, post)
		if err != nil {
			result.Outcome = types.OutcomeUndetermined
			result.Err = err
			return result
		}
		result.Interpretation = interpretation
		result.Interpreted = true

		if !interpretation.IsPortfolio {
			result.Outcome = types.OutcomeNotPortfolio
			result.Err = apperrors.NewNotPortfolioError(post.Source, post.SourceID)
			return result
		}
		if p.opts.Debug {
			// nothing is stored, a later run interprets the post again
			logging.FromContext(ctx).Info("Debug mode, skipping portfolio initialization")
			result.Outcome = types.OutcomeInterpreted
			return result
		}
		if _, err := p.record(ctx, post, interpretation); err != nil {
			result.Outcome = types.OutcomeEvaluationIncomplete
			result.Err = apperrors.NewEvaluationIncompleteError(post.Source, post.SourceID, err)
			return result
		}
	} else if post.Failed {
		result.Outcome = types.OutcomeUndetermined
		result.Err = apperrors.NewExtractionError(post.SourceID, nil)
		return result
	} else if !post.IsPortfolio {
		result.Outcome = types.OutcomeNotPortfolio
		result.Err = apperrors.NewNotPortfolioError(post.Source, post.SourceID)
		return result
	}

	portfolio, err := p.evaluate(ctx, post.Source, post.SourceID)
	if err != nil {
		result.Outcome = types.OutcomeEvaluationIncomplete
		result.Err = apperrors.NewEvaluationIncompleteError(post.Source, post.SourceID, err)
		return result
	}
	result.Outcome = types.OutcomeEvaluated
	result.Portfolio = portfolio
	return result
}

// withPostLogger scopes the context logger to one post
func withPostLogger(ctx context.Context, post *models.SourcePost) context.Context {
	return withSourceLogger(ctx, post.Source, post.SourceID)
}

func withSourceLogger(ctx context.Context, source, sourceID string) context.Context {
	return logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(map[string]interface{}{
		"source":   source,
		"sourceId": sourceID,
	}))
}
