package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/portfolio-evaluator/internal/adapter"
	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/logging"
	"github.com/portfolio-evaluator/internal/metrics"
	"github.com/portfolio-evaluator/internal/models"
	"github.com/portfolio-evaluator/internal/types"
)

// SpotPrice is the outcome of a current price lookup. A failed lookup is
// reported through IsError and ErrorMessage, never as a Go error.
type SpotPrice struct {
	Price        float64 `json:"price"`
	Date         string  `json:"date"`
	Provider     string  `json:"provider,omitempty"`
	IsError      bool    `json:"isError"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
}

// SpotPriceFetcher asks the primary provider first and the secondary provider
// when the primary has no price. Each provider is addressed by its own identifier.
type SpotPriceFetcher struct {
	primary   adapter.HistoricalPriceProvider
	secondary adapter.PriceProvider
	cache     SpotPriceCache
	cacheTTL  time.Duration
	now       func() time.Time
}

// NewSpotPriceFetcher creates a fetcher. secondary may be nil.
func NewSpotPriceFetcher(primary adapter.HistoricalPriceProvider, secondary adapter.PriceProvider) *SpotPriceFetcher {
	return &SpotPriceFetcher{
		primary:   primary,
		secondary: secondary,
		now:       time.Now,
	}
}

// WithCache enables caching of successful asset spot prices per calendar day
func (f *SpotPriceFetcher) WithCache(cache SpotPriceCache, ttl time.Duration) *SpotPriceFetcher {
	f.cache = cache
	f.cacheTTL = ttl
	return f
}

// Today is the calendar date a spot price is attributed to
func (f *SpotPriceFetcher) Today() time.Time {
	now := f.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// FetchCurrentPrice returns today's price of an asset in currency. Provider
// errors are logged and turned into a missing price.
func (f *SpotPriceFetcher) FetchCurrentPrice(ctx context.Context, ids types.ProviderIDs, currency string) SpotPrice {
	currency = strings.ToLower(currency)
	if currency == "" {
		currency = "usd"
	}
	result := SpotPrice{Date: f.Today().Format(types.DateLayout)}
	logger := logging.FromContext(ctx)

	var failures []string
	for i, provider := range f.providers() {
		coinID, ok := ids.Get(provider.Name())
		if !ok {
			failures = append(failures, fmt.Sprintf("%s: no identifier", provider.Name()))
			continue
		}

		price, err := provider.SpotPrice(ctx, coinID, currency)
		if err == nil && price > 0 {
			if i > 0 {
				metrics.SpotPriceFallbacks.Inc()
			}
			result.Price = price
			result.Provider = string(provider.Name())
			return result
		}
		if err == nil {
			err = adapter.ErrNoData
		}
		failures = append(failures, fmt.Sprintf("%s: %v", provider.Name(), err))
		logger.WithFields(map[string]interface{}{
			"provider": provider.Name(),
			"coinId":   coinID,
		}).WithError(err).Warn("Spot price provider returned no price")
	}

	result.IsError = true
	result.ErrorMessage = "no provider returned a price (" + strings.Join(failures, "; ") + ")"
	return result
}

// FetchAssetPrice is FetchCurrentPrice behind the per-day spot price cache
func (f *SpotPriceFetcher) FetchAssetPrice(ctx context.Context, key models.AssetKey, ids types.ProviderIDs, currency string) SpotPrice {
	if f.cache == nil {
		return f.FetchCurrentPrice(ctx, ids, currency)
	}

	logger := logging.FromContext(ctx).WithField("asset", key.String())
	cacheKey := f.cache.GenerateSpotPriceKey(key, currency, f.Today())

	var cached SpotPrice
	found, err := f.cache.Get(ctx, cacheKey, &cached)
	if err != nil {
		logger.WithError(err).Warn("Spot price cache read failed")
	}
	if found && !cached.IsError {
		return cached
	}

	result := f.FetchCurrentPrice(ctx, ids, currency)
	if !result.IsError {
		if err := f.cache.SetWithTTL(ctx, cacheKey, result, f.cacheTTL); err != nil {
			logger.WithError(err).Warn("Spot price cache write failed")
		}
	}
	return result
}

// FetchPriceForISOWeek prices coinID on the Monday of week with the primary
// provider. Unlike FetchCurrentPrice the error is returned to the caller.
func (f *SpotPriceFetcher) FetchPriceForISOWeek(ctx context.Context, coinID string, week types.ISOWeek, currency string) (float64, error) {
	if !week.Valid() {
		return 0, apperrors.NewInvalidParameterError("week", fmt.Sprintf("%s is not a valid ISO week", week))
	}
	if currency == "" {
		currency = "usd"
	}

	price, err := f.primary.PriceOn(ctx, coinID, week.Monday(), strings.ToLower(currency))
	if err != nil {
		return 0, apperrors.NewPriceUnavailableError(coinID, week, err)
	}
	if price <= 0 {
		return 0, apperrors.NewPriceUnavailableError(coinID, week, adapter.ErrNoData)
	}
	return price, nil
}

func (f *SpotPriceFetcher) providers() []adapter.PriceProvider {
	providers := []adapter.PriceProvider{f.primary}
	if f.secondary != nil {
		providers = append(providers, f.secondary)
	}
	return providers
}
