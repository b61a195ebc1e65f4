package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/portfolio-evaluator/internal/logging"
	"github.com/portfolio-evaluator/internal/metrics"
	"github.com/portfolio-evaluator/internal/models"
	"github.com/portfolio-evaluator/internal/types"
	"golang.org/x/sync/errgroup"
)

// SweepReport collects the per asset results of a sweep
type SweepReport struct {
	Job       string            `json:"job"`
	Week      types.ISOWeek     `json:"week"`
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
	// Written counts the price points stored by the sweep
	Written  int           `json:"written"`
	Duration time.Duration `json:"duration"`

	mu sync.Mutex
}

func newSweepReport(job string, week types.ISOWeek) *SweepReport {
	return &SweepReport{
		Job:       job,
		Week:      week,
		Succeeded: []string{},
		Failed:    make(map[string]string),
	}
}

func (r *SweepReport) record(asset string, written int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Written += written
	if err != nil {
		r.Failed[asset] = err.Error()
		metrics.SweepAssets.WithLabelValues(r.Job, "error").Inc()
		return
	}
	r.Succeeded = append(r.Succeeded, asset)
	metrics.SweepAssets.WithLabelValues(r.Job, "success").Inc()
}

// PriceSweeper refreshes tracked prices for every tracked asset
type PriceSweeper struct {
	assets      AssetStore
	prices      PriceStore
	resolver    *PriceResolver
	spot        *SpotPriceFetcher
	benchmark   Benchmark
	concurrency int
}

// NewPriceSweeper creates a sweeper running at most concurrency assets at once
func NewPriceSweeper(assets AssetStore, prices PriceStore, resolver *PriceResolver, spot *SpotPriceFetcher, benchmark Benchmark, concurrency int) *PriceSweeper {
	if concurrency < 1 {
		concurrency = 1
	}
	return &PriceSweeper{
		assets:      assets,
		prices:      prices,
		resolver:    resolver,
		spot:        spot,
		benchmark:   benchmark,
		concurrency: concurrency,
	}
}

// RefreshCurrentWeek stores today's spot price of every tracked asset in the
// current ISO week. A failing asset is reported and the sweep goes on.
func (s *PriceSweeper) RefreshCurrentWeek(ctx context.Context) (*SweepReport, error) {
	start := time.Now()
	today := s.spot.Today()
	report := newSweepReport("refresh", types.ISOWeekOf(today))

	assets, err := s.trackedAssets(ctx)
	if err != nil {
		return nil, err
	}

	s.each(ctx, assets, func(ctx context.Context, asset *models.Asset) (int, error) {
		spot := s.spot.FetchAssetPrice(ctx, asset.Key(), asset.ProviderIDs(), "usd")
		if spot.IsError {
			return 0, errors.New(spot.ErrorMessage)
		}
		point := models.NewPricePoint(asset.Key(), report.Week, spot.Price, "usd", today)
		if err := s.prices.Upsert(ctx, point); err != nil {
			return 0, err
		}
		return 1, nil
	}, report)

	report.Duration = time.Since(start)
	s.log(ctx, report)
	return report, nil
}

// Backfill stores historical prices for the given number of weeks before the
// current one, priced on each week's Monday. Weeks already tracked are skipped.
func (s *PriceSweeper) Backfill(ctx context.Context, weeks int) (*SweepReport, error) {
	start := time.Now()
	current := types.ISOWeekOf(s.spot.Today())
	report := newSweepReport("backfill", current)

	assets, err := s.trackedAssets(ctx)
	if err != nil {
		return nil, err
	}

	s.each(ctx, assets, func(ctx context.Context, asset *models.Asset) (int, error) {
		coinID, ok := asset.ProviderIDs().Get(types.ProviderCoinGecko)
		if !ok {
			return 0, fmt.Errorf("no %s identifier for historical prices", types.ProviderCoinGecko)
		}

		tracked, err := s.prices.ListTrackedWeeks(ctx, asset.Key())
		if err != nil {
			return 0, err
		}

		written := 0
		var firstErr error
		for i := 1; i <= weeks; i++ {
			week := current.Previous(i)
			if tracked[week] {
				continue
			}
			price, err := s.spot.FetchPriceForISOWeek(ctx, coinID, week, "usd")
			if err == nil {
				err = s.prices.Upsert(ctx, models.NewPricePoint(asset.Key(), week, price, "usd", week.Monday()))
			}
			if err != nil {
				if ctx.Err() != nil {
					return written, ctx.Err()
				}
				if firstErr == nil {
					firstErr = fmt.Errorf("%s: %w", week, err)
				}
				continue
			}
			written++
		}
		return written, firstErr
	}, report)

	report.Duration = time.Since(start)
	s.log(ctx, report)
	return report, nil
}

// trackedAssets lists every tracked asset and makes sure the benchmark is among them
func (s *PriceSweeper) trackedAssets(ctx context.Context) ([]*models.Asset, error) {
	if _, err := s.resolver.Resolve(ctx, s.benchmark.Name, s.benchmark.Abbreviation); err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Benchmark asset could not be resolved")
	}
	return s.assets.List(ctx)
}

func (s *PriceSweeper) each(ctx context.Context, assets []*models.Asset, fn func(context.Context, *models.Asset) (int, error), report *SweepReport) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, asset := range assets {
		g.Go(func() error {
			written, err := fn(gctx, asset)
			report.record(asset.Key().String(), written, err)
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(report.Succeeded)
}

func (s *PriceSweeper) log(ctx context.Context, report *SweepReport) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"job":       report.Job,
		"week":      report.Week.String(),
		"succeeded": len(report.Succeeded),
		"failed":    len(report.Failed),
		"written":   report.Written,
		"duration":  report.Duration.String(),
	})
	for asset, reason := range report.Failed {
		logger.WithFields(map[string]interface{}{"asset": asset, "reason": reason}).Warn("Price sweep failed for asset")
	}
	logger.Info("Price sweep finished")
}
