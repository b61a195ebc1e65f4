package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/portfolio-evaluator/internal/circuitbreaker"
	"github.com/portfolio-evaluator/internal/config"
	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/metrics"
	"golang.org/x/time/rate"
)

// maxErrorBody caps how much of a failed response is kept for error messages
const maxErrorBody = 512

// ErrNoData is returned when a provider answered but has no value for the request
var ErrNoData = errors.New("provider returned no data")

// Cache is the subset of the cache service adapters use to avoid repeated calls
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// httpClient is the shared outbound client: per-call timeout, token bucket
// throttle, optional circuit breaker, metrics.
type httpClient struct {
	name    string
	baseURL string
	timeout time.Duration
	client  *http.Client
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
}

func newHTTPClient(name string, cfg config.ProviderConfig, breaker *circuitbreaker.CircuitBreaker) *httpClient {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		name:    name,
		baseURL: cfg.BaseURL,
		timeout: timeout,
		client:  &http.Client{},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		breaker: breaker,
	}
}

// doJSON sends req and decodes a 200 response body into dest
func (c *httpClient) doJSON(ctx context.Context, build func(ctx context.Context) (*http.Request, error), dest interface{}) error {
	body, _, err := c.do(ctx, build)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return apperrors.NewExternalServiceError(c.name, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// do sends the request built by build and returns the body and content type
// of a 2xx response. The timeout covers throttling and the full body read.
func (c *httpClient) do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", apperrors.NewExternalTimeoutError(c.name, err)
	}

	var (
		body        []byte
		contentType string
	)
	call := func() error {
		start := time.Now()
		var err error
		body, contentType, err = c.roundTrip(ctx, build)
		metrics.ObserveProvider(c.name, start, err)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
			return nil, "", apperrors.NewExternalServiceError(c.name, err)
		}
	} else {
		err = call()
	}
	if err != nil {
		return nil, "", err
	}
	return body, contentType, nil
}

func (c *httpClient) roundTrip(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, string, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, "", apperrors.NewInternalError("failed to build request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, "", apperrors.NewExternalTimeoutError(c.name, stripURL(err))
		}
		if errors.Is(err, context.Canceled) {
			return nil, "", context.Canceled
		}
		return nil, "", apperrors.NewExternalServiceError(c.name, stripURL(err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperrors.NewExternalServiceError(c.name, fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, "", apperrors.NewExternalRateLimitError(c.name)
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", apperrors.NewNotFoundError(c.name+" resource", req.URL.Path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		snippet := body
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, "", apperrors.NewExternalServiceError(c.name,
			fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(snippet)))
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// stripURL drops the request URL from transport errors so query string
// credentials never reach logs
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return fmt.Errorf("%s request failed: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
