package adapter

import (
	"context"
	"encoding/json"
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

// listingLimit is the number of listings fetched; slugs outside it are unpriced
const listingLimit = 5000

// CoinMarketCapClient reads current prices from the CoinMarketCap listings endpoint
type CoinMarketCapClient struct {
	http       *httpClient
	apiKey     string
	cache      Cache
	listingTTL time.Duration
}

type cmcListingResponse struct {
	Status struct {
		ErrorCode    int     `json:"error_code"`
		ErrorMessage *string `json:"error_message"`
	} `json:"status"`
	Data []cmcListing `json:"data"`
}

type cmcListing struct {
	ID     int                       `json:"id"`
	Name   string                    `json:"name"`
	Symbol string                    `json:"symbol"`
	Slug   string                    `json:"slug"`
	Quote  map[string]cmcQuoteValues `json:"quote"`
}

type cmcQuoteValues struct {
	Price float64 `json:"price"`
}

// NewCoinMarketCapClient creates a CoinMarketCap client. cache may be nil.
func NewCoinMarketCapClient(cfg config.ProviderConfig, breaker *circuitbreaker.CircuitBreaker, cache Cache, listingTTL time.Duration) *CoinMarketCapClient {
	return &CoinMarketCapClient{
		http:       newHTTPClient(string(types.ProviderCoinMarketCap), cfg, breaker),
		apiKey:     cfg.APIKey,
		cache:      cache,
		listingTTL: listingTTL,
	}
}

// Name returns the provider identifier
func (c *CoinMarketCapClient) Name() types.Provider {
	return types.ProviderCoinMarketCap
}

// SpotPrice returns the latest price of the listing whose slug is coinID
func (c *CoinMarketCapClient) SpotPrice(ctx context.Context, coinID, currency string) (float64, error) {
	if coinID == "" {
		return 0, fmt.Errorf("coin market cap slug is empty")
	}
	convert := strings.ToUpper(currency)

	prices, err := c.listingPrices(ctx, convert)
	if err != nil {
		return 0, err
	}
	price, ok := prices[coinID]
	if !ok {
		return 0, fmt.Errorf("%s not in the top %d listings: %w", coinID, listingLimit, ErrNoData)
	}
	return price, nil
}

// listingPrices returns slug -> price for the latest listings, cached per currency
func (c *CoinMarketCapClient) listingPrices(ctx context.Context, convert string) (map[string]float64, error) {
	cacheKey := "cmc:listings:" + strings.ToLower(convert)
	if c.cache != nil {
		var cached map[string]float64
		found, err := c.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Failed to read CoinMarketCap listings from cache")
		} else if found {
			return cached, nil
		}
	}

	params := url.Values{}
	params.Set("start", "1")
	params.Set("limit", fmt.Sprintf("%d", listingLimit))
	params.Set("convert", convert)
	endpoint := fmt.Sprintf("%s/v1/cryptocurrency/listings/latest?%s", c.http.baseURL, params.Encode())

	body, _, err := c.http.do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var resp cmcListingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode CoinMarketCap listings: %w", err)
	}
	if resp.Status.ErrorCode != 0 {
		msg := ""
		if resp.Status.ErrorMessage != nil {
			msg = *resp.Status.ErrorMessage
		}
		return nil, fmt.Errorf("coin market cap error %d: %s", resp.Status.ErrorCode, msg)
	}

	prices := make(map[string]float64, len(resp.Data))
	for _, listing := range resp.Data {
		quote, ok := listing.Quote[convert]
		if !ok {
			continue
		}
		prices[listing.Slug] = quote.Price
	}

	if c.cache != nil && c.listingTTL > 0 {
		if err := c.cache.SetWithTTL(ctx, cacheKey, prices, c.listingTTL); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Failed to cache CoinMarketCap listings")
		}
	}
	return prices, nil
}
