package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/portfolio-evaluator/internal/models"
	"github.com/portfolio-evaluator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPortfolio(t *testing.T) {
	env := newTestEnv(t)
	env.store.portfolio = &models.Portfolio{Source: "reddit", SourceID: "abc123", TotalInvestment: 10000}
	env.store.purchases = []*models.Purchase{
		{Source: "reddit", SourceID: "abc123", Name: "Bitcoin", Abbreviation: "BTC", Amount: 0.5, TotalPurchaseValue: 10000},
	}

	w := env.do("GET", "/api/portfolios/reddit/abc123", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, 10000.0, body["totalInvestment"])
	assert.Len(t, body["purchases"], 1)
}

func TestGetPortfolio_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/api/portfolios/reddit/missing", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetHistory(t *testing.T) {
	env := newTestEnv(t)
	env.store.history = []models.EvaluationSnapshot{
		{Source: "reddit", SourceID: "abc123", EvaluatedAt: createdDate, ProfitPercentage: 12.5},
	}

	w := env.do("GET", "/api/portfolios/reddit/abc123/history?limit=5", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, env.store.historyLimit)
	assert.Len(t, decodeBody(t, w)["evaluations"], 1)
}

func TestGetHistory_Errors(t *testing.T) {
	env := newTestEnv(t)
	w := env.do("GET", "/api/portfolios/reddit/abc123/history?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	env.server.deps.History = nil
	w = env.do("GET", "/api/portfolios/reddit/abc123/history", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "SERVICE_UNAVAILABLE", errorCode(t, w))
}

func TestGetHistory_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/api/portfolios/reddit/abc123/history", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, defaultHistoryLimit, env.store.historyLimit)
	assert.Equal(t, []interface{}{}, decodeBody(t, w)["evaluations"])
}

func TestListAssets(t *testing.T) {
	env := newTestEnv(t)
	env.store.assets = []*models.Asset{
		models.NewAsset("bitcoin", "btc", types.ProviderIDs{types.ProviderCoinGecko: "bitcoin"}),
	}

	w := env.do("GET", "/api/assets", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, 1.0, body["count"])
}

func pricePoint(year, week int, price float64) *models.PricePoint {
	return models.NewPricePoint(models.KeyOf("Bitcoin", "BTC"), types.ISOWeek{Year: year, Week: week}, price, "usd", time.Now())
}

func TestListPrices(t *testing.T) {
	env := newTestEnv(t)
	env.store.prices = []*models.PricePoint{
		pricePoint(2024, 3, 42000),
		pricePoint(2024, 2, 41000),
		pricePoint(2023, 52, 40000),
	}

	tests := []struct {
		name     string
		path     string
		wantYear int
		want     int
	}{
		{name: "all", path: "/api/assets/BTC/prices?name=Bitcoin", want: 3},
		{name: "one year", path: "/api/assets/btc/prices?name=bitcoin&year=2024", wantYear: 2024, want: 2},
		{name: "one week", path: "/api/assets/btc/prices?name=bitcoin&year=2024&week=2", wantYear: 2024, want: 1},
		{name: "unknown asset", path: "/api/assets/eth/prices?name=ethereum", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("GET", tt.path, nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.wantYear, env.store.priceYear)
			assert.Len(t, decodeBody(t, w)["prices"], tt.want)
		})
	}
}

func TestListPrices_InvalidQuery(t *testing.T) {
	paths := []string{
		"/api/assets/btc/prices",
		"/api/assets/btc/prices?name=bitcoin&year=abc",
		"/api/assets/btc/prices?name=bitcoin&week=2",
		"/api/assets/btc/prices?name=bitcoin&year=2024&week=60",
	}

	env := newTestEnv(t)
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			w := env.do("GET", path, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSweep(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/prices/sweep", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "refresh", decodeBody(t, w)["job"])
}

func TestBackfill(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/prices/backfill", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 12, env.sweeper.weeks)

	w = env.do("POST", "/api/prices/backfill", map[string]int{"weeks": 4})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, env.sweeper.weeks)

	w = env.do("POST", "/api/prices/backfill", map[string]int{"weeks": 1000})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		origin string
		want   string
	}{
		{origin: "https://app.example.com", want: "https://app.example.com"},
		{origin: "https://evil.example.com", want: ""},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("OPTIONS", "/api/pipeline/run", nil)
		req.Header.Set("Origin", tt.origin)
		w := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, tt.want, w.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.RequestsPerMinute = 1
	cfg.Burst = 2
	env := newTestEnvWithConfig(t, cfg)

	for i := 0; i < 2; i++ {
		w := env.do("GET", "/api/assets", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := env.do("GET", "/api/assets", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, ErrCodeRateLimitExceeded, errorCode(t, w))
	details := decodeBody(t, w)["error"].(map[string]interface{})["details"].(map[string]interface{})
	assert.Equal(t, float64(60), details["retryAfter"])

	// probes are never limited
	w = env.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// another client has its own budget
	req := httptest.NewRequest("GET", "/api/assets", nil)
	req.Header.Set(ClientIDHeader, "dashboard")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, ErrCodeInternalError, errorCode(t, w))
}

func TestCompressionMiddleware(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
}
