package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "github.com/portfolio-evaluator/internal/errors"
	"github.com/portfolio-evaluator/internal/models"
	"github.com/portfolio-evaluator/internal/service"
	"github.com/portfolio-evaluator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPostURL = "https://www.reddit.com/r/CryptoCurrency/comments/abc123/my_portfolio/"

var createdDate = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

// Mock services for testing
type mockPipeline struct {
	runFunc       func(ctx context.Context, url string) (*service.RunResult, error)
	fetchFunc     func(ctx context.Context, url string) (*models.SourcePost, error)
	interpretFunc func(ctx context.Context, source, sourceID string) (*service.Interpretation, error)
	evaluateFunc  func(ctx context.Context, source, sourceID string) (*models.Portfolio, error)

	recorded *service.Interpretation
}

func (m *mockPipeline) Run(ctx context.Context, url string) (*service.RunResult, error) {
	if m.runFunc != nil {
		return m.runFunc(ctx, url)
	}
	return &service.RunResult{
		Source:    "reddit",
		SourceID:  "abc123",
		Outcome:   types.OutcomeEvaluated,
		Portfolio: &models.Portfolio{Source: "reddit", SourceID: "abc123", TotalInvestment: 100},
	}, nil
}

func (m *mockPipeline) FetchAndRecord(ctx context.Context, url string) (*models.SourcePost, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx, url)
	}
	return &models.SourcePost{Source: "reddit", SourceID: "abc123", CreatedDate: createdDate}, nil
}

func (m *mockPipeline) Interpret(ctx context.Context, source, sourceID string) (*service.Interpretation, error) {
	if m.interpretFunc != nil {
		return m.interpretFunc(ctx, source, sourceID)
	}
	return &service.Interpretation{IsPortfolio: true, Purchases: []service.PurchaseRecord{
		{Name: "Bitcoin", Abbreviation: "BTC", Amount: 0.5, Price: 20000, Currency: "USD"},
	}}, nil
}

func (m *mockPipeline) RecordPurchases(ctx context.Context, post *models.SourcePost, result *service.Interpretation) (*models.Portfolio, error) {
	m.recorded = result
	if !result.IsPortfolio {
		return nil, apperrors.NewNotPortfolioError(post.Source, post.SourceID)
	}
	if !post.Processed {
		return nil, apperrors.NewNotInterpretedError(post.Source, post.SourceID)
	}
	return models.NewPortfolio(post.Source, post.SourceID, post.CreatedDate), nil
}

func (m *mockPipeline) Evaluate(ctx context.Context, source, sourceID string) (*models.Portfolio, error) {
	if m.evaluateFunc != nil {
		return m.evaluateFunc(ctx, source, sourceID)
	}
	return &models.Portfolio{Source: source, SourceID: sourceID, TotalInvestment: 100, CurrentValue: 150}, nil
}

type mockStore struct {
	posts     map[string]*models.SourcePost
	portfolio *models.Portfolio
	purchases []*models.Purchase
	history   []models.EvaluationSnapshot
	assets    []*models.Asset
	prices    []*models.PricePoint

	historyLimit int
	priceYear    int
}

func (m *mockStore) Get(ctx context.Context, source, sourceID string) (*models.SourcePost, error) {
	if post, ok := m.posts[source+"/"+sourceID]; ok {
		return post, nil
	}
	return nil, apperrors.NewNotFoundError("post", source+"/"+sourceID)
}

type portfolioReader struct{ *mockStore }

func (m portfolioReader) Get(ctx context.Context, source, sourceID string) (*models.Portfolio, error) {
	if m.portfolio == nil {
		return nil, apperrors.NewNotFoundError("portfolio", source+"/"+sourceID)
	}
	return m.portfolio, nil
}

func (m *mockStore) ListBySource(ctx context.Context, source, sourceID string) ([]*models.Purchase, error) {
	return m.purchases, nil
}

func (m *mockStore) List(ctx context.Context, source, sourceID string, limit int) ([]models.EvaluationSnapshot, error) {
	m.historyLimit = limit
	return m.history, nil
}

type assetReader struct{ *mockStore }

func (m assetReader) List(ctx context.Context) ([]*models.Asset, error) {
	return m.assets, nil
}

func (m *mockStore) ListForAsset(ctx context.Context, key models.AssetKey, year, limit int) ([]*models.PricePoint, error) {
	m.priceYear = year
	var out []*models.PricePoint
	for _, p := range m.prices {
		if p.Name == key.Name && p.Abbreviation == key.Abbreviation && (year == 0 || p.ISOYear == year) {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockSweeper struct {
	weeks int
}

func (m *mockSweeper) RefreshCurrentWeek(ctx context.Context) (*service.SweepReport, error) {
	return &service.SweepReport{Job: "refresh", Succeeded: []string{"bitcoin (BTC)"}, Written: 1}, nil
}

func (m *mockSweeper) Backfill(ctx context.Context, weeks int) (*service.SweepReport, error) {
	m.weeks = weeks
	return &service.SweepReport{Job: "backfill", Written: weeks}, nil
}

type testEnv struct {
	server   *Server
	pipeline *mockPipeline
	store    *mockStore
	sweeper  *mockSweeper
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithConfig(t, testServerConfig())
}

func testServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:              "localhost",
		Port:              "0",
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		AllowedOrigins:    []string{"https://app.example.com"},
		RequestsPerMinute: 6000,
		Burst:             100,
		BackfillWeeks:     12,
	}
}

func newTestEnvWithConfig(t *testing.T, cfg *ServerConfig) *testEnv {
	t.Helper()
	env := &testEnv{
		pipeline: &mockPipeline{},
		store: &mockStore{
			posts: map[string]*models.SourcePost{
				"reddit/abc123":  {Source: "reddit", SourceID: "abc123", CreatedDate: createdDate, Processed: true, IsPortfolio: true},
				"reddit/fresh01": {Source: "reddit", SourceID: "fresh01", CreatedDate: createdDate},
			},
		},
		sweeper: &mockSweeper{},
	}
	env.server = NewServer(cfg, Dependencies{
		Pipeline:   env.pipeline,
		Posts:      env.store,
		Portfolios: portfolioReader{env.store},
		Purchases:  env.store,
		History:    env.store,
		Assets:     assetReader{env.store},
		Prices:     env.store,
		Sweeper:    env.sweeper,
	})
	return env
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody(t, w)
	errBody, ok := body["error"].(map[string]interface{})
	require.True(t, ok, "no error object in %s", w.Body.String())
	code, _ := errBody["code"].(string)
	return code
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("GET", "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do("GET", "/health", nil)

	w := env.do("GET", "/metrics", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "portfolio_http_requests_total")
}

func TestRunPipeline(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/pipeline/run", map[string]string{"url": testPostURL})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "evaluated", body["outcome"])
	assert.Equal(t, "abc123", body["sourceId"])
	assert.Nil(t, body["error"])
	portfolio := body["portfolio"].(map[string]interface{})
	assert.Equal(t, 100.0, portfolio["totalInvestment"])
}

func TestRunPipeline_OutcomeWithError(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.runFunc = func(ctx context.Context, url string) (*service.RunResult, error) {
		return &service.RunResult{
			Source:   "reddit",
			SourceID: "abc123",
			Outcome:  types.OutcomeEvaluationIncomplete,
			Err: apperrors.NewEvaluationIncompleteError("reddit", "abc123",
				apperrors.NewMissingBenchmarkPriceError("bitcoin (BTC)", types.ISOWeek{Year: 2024, Week: 2})),
		}, nil
	}

	w := env.do("POST", "/api/pipeline/run", map[string]string{"url": testPostURL})

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "evaluation_incomplete", body["outcome"])
	assert.Equal(t, apperrors.CodeEvaluationIncomplete, body["error"].(map[string]interface{})["code"])
}

func TestRunPipeline_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{name: "malformed json", body: "not json"},
		{name: "missing url", body: map[string]string{}},
		{name: "not a reddit url", body: map[string]string{"url": "https://example.com/comments/abc123/"}},
		{name: "no post id", body: map[string]string{"url": "https://www.reddit.com/r/CryptoCurrency/"}},
		{name: "unknown field", body: map[string]string{"url": testPostURL, "extra": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do("POST", "/api/pipeline/run", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, ErrCodeInvalidInput, errorCode(t, w))
		})
	}
}

func TestRunPipeline_ValidationDetails(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/pipeline/run", map[string]string{"url": "https://example.com/x"})

	body := decodeBody(t, w)
	details := body["error"].(map[string]interface{})["details"].(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"url": "posturl"}, details["fields"])
}

func TestFetchPost_NotFound(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.fetchFunc = func(ctx context.Context, url string) (*models.SourcePost, error) {
		return nil, apperrors.NewNotFoundError("post", url)
	}

	w := env.do("POST", "/api/pipeline/fetch", map[string]string{"url": testPostURL})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperrors.CodeNotFound, errorCode(t, w))
}

func TestInterpret(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/pipeline/reddit/abc123/interpret", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["isPortfolio"])
	assert.Len(t, body["purchases"], 1)
}

func TestInterpret_AlreadyInterpreted(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.interpretFunc = func(ctx context.Context, source, sourceID string) (*service.Interpretation, error) {
		return nil, apperrors.NewAlreadyInterpretedError(source, sourceID)
	}

	w := env.do("POST", "/api/pipeline/reddit/abc123/interpret", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperrors.CodeAlreadyInterpreted, errorCode(t, w))
}

func TestRecordPurchases(t *testing.T) {
	env := newTestEnv(t)
	body := map[string]interface{}{
		"isPortfolio": true,
		"purchases": []map[string]interface{}{
			{"name": "Bitcoin", "abbreviation": "BTC", "amount": 0.5, "price": 20000, "currency": "EUR"},
		},
	}

	w := env.do("POST", "/api/pipeline/reddit/abc123/purchases", body)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotNil(t, env.pipeline.recorded)
	assert.Equal(t, []service.PurchaseRecord{
		{Name: "Bitcoin", Abbreviation: "BTC", Amount: 0.5, Price: 20000, Currency: "EUR"},
	}, env.pipeline.recorded.Purchases)
	assert.Equal(t, "abc123", decodeBody(t, w)["sourceId"])
}

func TestRecordPurchases_Invalid(t *testing.T) {
	tests := []struct {
		name string
		path string
		body interface{}
		want int
	}{
		{
			name: "missing abbreviation",
			path: "/api/pipeline/reddit/abc123/purchases",
			body: map[string]interface{}{
				"isPortfolio": true,
				"purchases":   []map[string]interface{}{{"name": "Bitcoin", "amount": 1, "price": 10}},
			},
			want: http.StatusBadRequest,
		},
		{
			name: "negative amount",
			path: "/api/pipeline/reddit/abc123/purchases",
			body: map[string]interface{}{
				"isPortfolio": true,
				"purchases":   []map[string]interface{}{{"name": "Bitcoin", "abbreviation": "BTC", "amount": -1, "price": 10}},
			},
			want: http.StatusBadRequest,
		},
		{
			name: "not a portfolio",
			path: "/api/pipeline/reddit/abc123/purchases",
			body: map[string]interface{}{"isPortfolio": false},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "unknown post",
			path: "/api/pipeline/reddit/zzz999/purchases",
			body: map[string]interface{}{
				"isPortfolio": true,
				"purchases":   []map[string]interface{}{{"name": "Bitcoin", "abbreviation": "BTC", "amount": 1, "price": 10}},
			},
			want: http.StatusNotFound,
		},
		{
			name: "post not interpreted yet",
			path: "/api/pipeline/reddit/fresh01/purchases",
			body: map[string]interface{}{
				"isPortfolio": true,
				"purchases":   []map[string]interface{}{{"name": "Bitcoin", "abbreviation": "BTC", "amount": 1, "price": 10}},
			},
			want: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			w := env.do("POST", tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestEvaluate(t *testing.T) {
	env := newTestEnv(t)

	w := env.do("POST", "/api/pipeline/reddit/abc123/evaluate", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 150.0, decodeBody(t, w)["currentValue"])
}

func TestEvaluate_MissingBenchmarkPrice(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.evaluateFunc = func(ctx context.Context, source, sourceID string) (*models.Portfolio, error) {
		return nil, apperrors.NewMissingBenchmarkPriceError("bitcoin (BTC)", types.ISOWeek{Year: 2024, Week: 2})
	}

	w := env.do("POST", "/api/pipeline/reddit/abc123/evaluate", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperrors.CodeMissingBenchmarkPrice, errorCode(t, w))
}

func TestInternalErrorsAreMasked(t *testing.T) {
	env := newTestEnv(t)
	env.pipeline.evaluateFunc = func(ctx context.Context, source, sourceID string) (*models.Portfolio, error) {
		return nil, apperrors.NewInternalError("secret connection string", nil)
	}

	w := env.do("POST", "/api/pipeline/reddit/abc123/evaluate", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret")
}
