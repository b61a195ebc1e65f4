package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/logging"
	"github.com/portfolio-evaluator/internal/models"
	"github.com/portfolio-evaluator/internal/types"
)

// Evaluate computes the portfolio metrics against the benchmark asset.
// Every purchase must already carry its current price. The input portfolio
// is left untouched; the evaluated copy is returned.
func Evaluate(p *models.Portfolio, currentBenchmark, pastBenchmark float64, on time.Time) (*models.Portfolio, error) {
	if pastBenchmark <= 0 || currentBenchmark <= 0 {
		return nil, fmt.Errorf("benchmark prices must be positive, got past %v and current %v", pastBenchmark, currentBenchmark)
	}

	var total, current float64
	for _, purchase := range p.Purchases {
		total += purchase.TotalPurchaseValue
		current += purchase.CurrentValue()
	}
	if total == 0 {
		return nil, apperrors.NewZeroInvestmentError(p.Source, p.SourceID)
	}

	profit := current - total
	btciStart := total / pastBenchmark
	btciCurrent := btciStart * currentBenchmark
	btciProfit := btciCurrent - total

	evaluated := *p
	evaluated.ApplyEvaluation(models.Evaluation{
		TotalInvestment:      total,
		CurrentValue:         current,
		ProfitTotal:          profit,
		ProfitPercentage:     profit / total * 100,
		BTCIStartAmount:      btciStart,
		BTCICurrentValue:     btciCurrent,
		BTCIProfitTotal:      btciProfit,
		BTCIProfitPercentage: btciProfit / total * 100,
		EvaluatedOn:          on,
	})
	return &evaluated, nil
}

// Benchmark names the asset portfolios are compared against
type Benchmark struct {
	Name         string
	Abbreviation string
}

// Key returns the price key of the benchmark
func (b Benchmark) Key() models.AssetKey {
	return models.KeyOf(b.Name, b.Abbreviation)
}

// PortfolioEvaluator resolves current prices and persists evaluations
type PortfolioEvaluator struct {
	portfolios PortfolioStore
	purchases  PurchaseStore
	prices     PriceStore
	resolver   *PriceResolver
	spot       *SpotPriceFetcher
	history    EvaluationHistory
	benchmark  Benchmark
}

// NewPortfolioEvaluator creates an evaluator. history may be nil.
func NewPortfolioEvaluator(
	portfolios PortfolioStore,
	purchases PurchaseStore,
	prices PriceStore,
	resolver *PriceResolver,
	spot *SpotPriceFetcher,
	history EvaluationHistory,
	benchmark Benchmark,
) *PortfolioEvaluator {
	return &PortfolioEvaluator{
		portfolios: portfolios,
		purchases:  purchases,
		prices:     prices,
		resolver:   resolver,
		spot:       spot,
		history:    history,
		benchmark:  benchmark,
	}
}

// EvaluatePortfolio recomputes and stores the metrics of one portfolio. Any
// price that cannot be resolved aborts the run before anything is written.
// The context logger is expected to carry the post fields.
func (e *PortfolioEvaluator) EvaluatePortfolio(ctx context.Context, source, sourceID string) (*models.Portfolio, error) {
	logger := logging.FromContext(ctx)

	portfolio, err := e.portfolios.Get(ctx, source, sourceID)
	if err != nil {
		return nil, err
	}
	purchases, err := e.purchases.ListBySource(ctx, source, sourceID)
	if err != nil {
		return nil, err
	}
	portfolio.Purchases = nil
	for _, purchase := range purchases {
		portfolio.AddPurchase(purchase)
	}

	today := e.spot.Today()
	week := types.ISOWeekOf(today)

	resolved := make(map[models.AssetKey]float64)
	for _, purchase := range portfolio.Purchases {
		key := purchase.Key()
		price, ok := resolved[key]
		if !ok {
			price, err = e.CurrentPrice(ctx, purchase.Name, purchase.Abbreviation, week)
			if err != nil {
				return nil, err
			}
			resolved[key] = price
		}
		purchase.SetCurrentPrice(price)
	}

	currentBenchmark, err := e.CurrentPrice(ctx, e.benchmark.Name, e.benchmark.Abbreviation, week)
	if err != nil {
		return nil, err
	}

	createdWeek := portfolio.CreatedWeek()
	past, err := e.prices.Get(ctx, e.benchmark.Key(), createdWeek)
	if err != nil {
		if apperrors.IsCategory(err, apperrors.CategoryNotFound) {
			return nil, apperrors.NewMissingBenchmarkPriceError(e.benchmark.Key().String(), createdWeek)
		}
		return nil, err
	}

	evaluated, err := Evaluate(portfolio, currentBenchmark, past.Price, today)
	if err != nil {
		return nil, err
	}
	if err := e.portfolios.UpdateMetrics(ctx, evaluated); err != nil {
		return nil, err
	}

	if e.history != nil {
		snapshot := models.SnapshotOf(evaluated, e.spot.now().UTC(), past.Price, currentBenchmark)
		if err := e.history.Append(ctx, snapshot); err != nil {
			logger.WithError(err).Warn("Failed to record evaluation history")
		}
	}

	logger.WithFields(map[string]interface{}{
		"totalInvestment":  evaluated.TotalInvestment,
		"profitPercentage": evaluated.ProfitPercentage,
		"btciPercentage":   evaluated.BTCIProfitPercentage,
	}).Info("Portfolio evaluated")
	return evaluated, nil
}

// CurrentPrice returns the price of an asset for the given week. A tracked
// price is used when present; otherwise a spot price is fetched and stored.
func (e *PortfolioEvaluator) CurrentPrice(ctx context.Context, name, abbreviation string, week types.ISOWeek) (float64, error) {
	key := models.KeyOf(name, abbreviation)

	point, err := e.prices.Get(ctx, key, week)
	if err == nil {
		return point.Price, nil
	}
	if !apperrors.IsCategory(err, apperrors.CategoryNotFound) {
		return 0, err
	}

	ids, err := e.resolver.Resolve(ctx, name, abbreviation)
	if err != nil {
		return 0, err
	}

	spot := e.spot.FetchAssetPrice(ctx, key, ids, "usd")
	if spot.IsError {
		return 0, apperrors.NewPriceUnavailableError(key.String(), week, errors.New(spot.ErrorMessage))
	}

	if err := e.prices.Upsert(ctx, models.NewPricePoint(key, week, spot.Price, "usd", e.spot.Today())); err != nil {
		return 0, err
	}
	return spot.Price, nil
}
