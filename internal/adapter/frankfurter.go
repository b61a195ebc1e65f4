package adapter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/portfolio-evaluator/internal/circuitbreaker"
	"github.com/portfolio-evaluator/internal/config"
	"github.com/portfolio-evaluator/internal/logging"
	"github.com/portfolio-evaluator/internal/types"
)

// FrankfurterClient reads historical fiat exchange rates
type FrankfurterClient struct {
	http     *httpClient
	cache    Cache
	cacheTTL time.Duration
}

type frankfurterResponse struct {
	Amount float64            `json:"amount"`
	Base   string             `json:"base"`
	Date   string             `json:"date"`
	Rates  map[string]float64 `json:"rates"`
}

// NewFrankfurterClient creates an FX client. cache may be nil.
func NewFrankfurterClient(cfg config.ProviderConfig, breaker *circuitbreaker.CircuitBreaker, cache Cache, cacheTTL time.Duration) *FrankfurterClient {
	return &FrankfurterClient{
		http:     newHTTPClient("frankfurter", cfg, breaker),
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// HistoricalRate returns how many USD one unit of base was worth on date
func (c *FrankfurterClient) HistoricalRate(ctx context.Context, date time.Time, base string) (float64, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	if len(base) != 3 {
		return 0, fmt.Errorf("invalid currency code %q", base)
	}
	day := date.Format(types.DateLayout)

	cacheKey := "fx:" + strings.ToLower(base) + ":usd:" + day
	if c.cache != nil {
		var rate float64
		found, err := c.cache.Get(ctx, cacheKey, &rate)
		if err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Failed to read FX rate from cache")
		} else if found {
			return rate, nil
		}
	}

	params := url.Values{}
	params.Set("from", base)
	params.Set("to", "USD")
	endpoint := fmt.Sprintf("%s/%s?%s", c.http.baseURL, day, params.Encode())

	var resp frankfurterResponse
	err := c.http.doJSON(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, &resp)
	if err != nil {
		return 0, err
	}

	rate, ok := resp.Rates["USD"]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("no USD rate for %s on %s: %w", base, day, ErrNoData)
	}

	if c.cache != nil && c.cacheTTL > 0 {
		if err := c.cache.SetWithTTL(ctx, cacheKey, rate, c.cacheTTL); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Failed to cache FX rate")
		}
	}
	return rate, nil
}
