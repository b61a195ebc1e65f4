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
	"github.com/portfolio-evaluator/internal/types"
)

// CoinGeckoClient reads daily prices from the CoinGecko coin history endpoint
type CoinGeckoClient struct {
	http   *httpClient
	apiKey string
}

// coinHistoryResponse is the subset of /coins/{id}/history we read
type coinHistoryResponse struct {
	ID         string `json:"id"`
	MarketData *struct {
		CurrentPrice map[string]float64 `json:"current_price"`
	} `json:"market_data"`
}

// NewCoinGeckoClient creates a CoinGecko client
func NewCoinGeckoClient(cfg config.ProviderConfig, breaker *circuitbreaker.CircuitBreaker) *CoinGeckoClient {
	return &CoinGeckoClient{
		http:   newHTTPClient(string(types.ProviderCoinGecko), cfg, breaker),
		apiKey: cfg.APIKey,
	}
}

// Name returns the provider identifier
func (c *CoinGeckoClient) Name() types.Provider {
	return types.ProviderCoinGecko
}

// SpotPrice returns today's price
func (c *CoinGeckoClient) SpotPrice(ctx context.Context, coinID, currency string) (float64, error) {
	return c.PriceOn(ctx, coinID, time.Now().UTC(), currency)
}

// PriceOn returns the price of coinID on date. ErrNoData is returned when
// CoinGecko has no market data for that day or currency.
func (c *CoinGeckoClient) PriceOn(ctx context.Context, coinID string, date time.Time, currency string) (float64, error) {
	if coinID == "" {
		return 0, fmt.Errorf("coin gecko id is empty")
	}

	params := url.Values{}
	params.Set("date", date.Format("02-01-2006"))
	params.Set("localization", "false")
	endpoint := fmt.Sprintf("%s/coins/%s/history?%s", c.http.baseURL, url.PathEscape(coinID), params.Encode())

	var resp coinHistoryResponse
	err := c.http.doJSON(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("x-cg-demo-api-key", c.apiKey)
		}
		return req, nil
	}, &resp)
	if err != nil {
		return 0, err
	}

	if resp.MarketData == nil {
		return 0, fmt.Errorf("%s on %s: %w", coinID, date.Format(types.DateLayout), ErrNoData)
	}
	price, ok := resp.MarketData.CurrentPrice[strings.ToLower(currency)]
	if !ok {
		return 0, fmt.Errorf("%s has no %s price on %s: %w", coinID, currency, date.Format(types.DateLayout), ErrNoData)
	}
	return price, nil
}
