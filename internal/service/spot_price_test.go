package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/models"
	"github.com/portfolio-evaluator/internal/storage"
	"github.com/portfolio-evaluator/internal/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testToday = time.Date(2024, time.March, 14, 15, 30, 0, 0, time.UTC)

func btcIDs() types.ProviderIDs {
	return types.ProviderIDs{types.ProviderCoinGecko: "bitcoin", types.ProviderCoinMarketCap: "bitcoin"}
}

func newTestFetcher(primary *fakeProvider, secondary *fakeProvider) *SpotPriceFetcher {
	var f *SpotPriceFetcher
	if secondary == nil {
		f = NewSpotPriceFetcher(primary, nil)
	} else {
		f = NewSpotPriceFetcher(primary, secondary)
	}
	f.now = fixedClock(testToday)
	return f
}

func TestFetchCurrentPricePrimary(t *testing.T) {
	primary := &fakeProvider{name: types.ProviderCoinGecko, prices: map[string]float64{"bitcoin": 65000}}
	secondary := &fakeProvider{name: types.ProviderCoinMarketCap, prices: map[string]float64{"bitcoin": 64000}}

	result := newTestFetcher(primary, secondary).FetchCurrentPrice(context.Background(), btcIDs(), "USD")
	assert.False(t, result.IsError)
	assert.Equal(t, 65000.0, result.Price)
	assert.Equal(t, "2024-03-14", result.Date)
	assert.Equal(t, "coin_gecko", result.Provider)
	assert.Zero(t, secondary.calls)
}

func TestFetchCurrentPriceFallsBack(t *testing.T) {
	primary := &fakeProvider{name: types.ProviderCoinGecko, err: errors.New("502 bad gateway")}
	secondary := &fakeProvider{name: types.ProviderCoinMarketCap, prices: map[string]float64{"bitcoin": 64000}}

	result := newTestFetcher(primary, secondary).FetchCurrentPrice(context.Background(), btcIDs(), "usd")
	assert.False(t, result.IsError)
	assert.Equal(t, 64000.0, result.Price)
	assert.Equal(t, "2024-03-14", result.Date)
}

func TestFetchCurrentPriceBothMissing(t *testing.T) {
	primary := &fakeProvider{name: types.ProviderCoinGecko, prices: map[string]float64{}}
	secondary := &fakeProvider{name: types.ProviderCoinMarketCap, err: errors.New("timeout")}

	result := newTestFetcher(primary, secondary).FetchCurrentPrice(context.Background(), btcIDs(), "usd")
	assert.True(t, result.IsError)
	assert.NotEmpty(t, result.ErrorMessage)
	assert.Zero(t, result.Price)
	assert.Equal(t, "2024-03-14", result.Date)
}

func TestFetchCurrentPriceUsesProviderIdentifiers(t *testing.T) {
	primary := &fakeProvider{name: types.ProviderCoinGecko, prices: map[string]float64{"x": 1}}
	secondary := &fakeProvider{name: types.ProviderCoinMarketCap, prices: map[string]float64{"cmc-only": 2.5}}

	ids := types.ProviderIDs{types.ProviderCoinMarketCap: "cmc-only"}
	result := newTestFetcher(primary, secondary).FetchCurrentPrice(context.Background(), ids, "usd")
	assert.Equal(t, 2.5, result.Price)
	assert.Zero(t, primary.calls)
}

func TestFetchAssetPriceCachesPerDay(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := storage.NewCacheService(storage.NewRedisCacheFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()})), time.Hour)

	primary := &fakeProvider{name: types.ProviderCoinGecko, prices: map[string]float64{"bitcoin": 65000}}
	fetcher := newTestFetcher(primary, nil).WithCache(cache, time.Hour)
	key := models.KeyOf("Bitcoin", "BTC")

	first := fetcher.FetchAssetPrice(context.Background(), key, btcIDs(), "usd")
	second := fetcher.FetchAssetPrice(context.Background(), key, btcIDs(), "usd")
	assert.Equal(t, first, second)
	assert.Equal(t, 1, primary.calls)
	assert.True(t, mr.Exists("spot:bitcoin:btc:usd:2024-03-14"))
}

func TestFetchPriceForISOWeek(t *testing.T) {
	primary := &fakeProvider{
		name:       types.ProviderCoinGecko,
		historical: map[string]float64{"bitcoin@2024-03-11": 68000},
	}
	fetcher := newTestFetcher(primary, nil)
	ctx := context.Background()

	price, err := fetcher.FetchPriceForISOWeek(ctx, "bitcoin", types.ISOWeek{Year: 2024, Week: 11}, "usd")
	require.NoError(t, err)
	assert.Equal(t, 68000.0, price)

	_, err = fetcher.FetchPriceForISOWeek(ctx, "bitcoin", types.ISOWeek{Year: 2024, Week: 10}, "usd")
	assert.True(t, apperrors.HasCode(err, apperrors.CodePriceUnavailable))

	_, err = fetcher.FetchPriceForISOWeek(ctx, "bitcoin", types.ISOWeek{Year: 2023, Week: 53}, "usd")
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryValidation))
}
