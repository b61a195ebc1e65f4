// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/portfolio-evaluator/internal/config"
	"github.com/portfolio-evaluator/internal/logging"
	"github.com/portfolio-evaluator/internal/metrics"
	"github.com/portfolio-evaluator/internal/models"
	"github.com/portfolio-evaluator/internal/service"
)

// Service interfaces for dependency injection and testing

// PipelineService defines the pipeline stages exposed over HTTP
type PipelineService interface {
	Run(ctx context.Context, url string) (*service.RunResult, error)
	FetchAndRecord(ctx context.Context, url string) (*models.SourcePost, error)
	Interpret(ctx context.Context, source, sourceID string) (*service.Interpretation, error)
	RecordPurchases(ctx context.Context, post *models.SourcePost, result *service.Interpretation) (*models.Portfolio, error)
	Evaluate(ctx context.Context, source, sourceID string) (*models.Portfolio, error)
}

// PostReader reads stored source posts
type PostReader interface {
	Get(ctx context.Context, source, sourceID string) (*models.SourcePost, error)
}

// PortfolioReader reads stored portfolios
type PortfolioReader interface {
	Get(ctx context.Context, source, sourceID string) (*models.Portfolio, error)
}

// PurchaseReader reads the purchases of a portfolio
type PurchaseReader interface {
	ListBySource(ctx context.Context, source, sourceID string) ([]*models.Purchase, error)
}

// HistoryReader reads evaluation history
type HistoryReader interface {
	List(ctx context.Context, source, sourceID string, limit int) ([]models.EvaluationSnapshot, error)
}

// AssetReader lists known assets
type AssetReader interface {
	List(ctx context.Context) ([]*models.Asset, error)
}

// PriceReader lists stored weekly prices of an asset
type PriceReader interface {
	ListForAsset(ctx context.Context, key models.AssetKey, year, limit int) ([]*models.PricePoint, error)
}

// PriceSweeperService runs price maintenance on demand
type PriceSweeperService interface {
	RefreshCurrentWeek(ctx context.Context) (*service.SweepReport, error)
	Backfill(ctx context.Context, weeks int) (*service.SweepReport, error)
}

// Dependencies are the services the server routes to. History may be nil
// when the analytics store is disabled.
type Dependencies struct {
	Pipeline   PipelineService
	Posts      PostReader
	Portfolios PortfolioReader
	Purchases  PurchaseReader
	History    HistoryReader
	Assets     AssetReader
	Prices     PriceReader
	Sweeper    PriceSweeperService
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	deps       Dependencies
	config     *ServerConfig
	logger     *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	// RequestsPerMinute and Burst bound each client
	RequestsPerMinute int
	Burst             int
	// BackfillWeeks is used when a backfill request names no week count
	BackfillWeeks int
}

// NewServerConfig builds the server configuration from the loaded config
func NewServerConfig(cfg *config.Config) *ServerConfig {
	return &ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * cfg.Server.ReadTimeout,
		ShutdownTimeout:   30 * time.Second,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
		BackfillWeeks:     cfg.Worker.BackfillWeeks,
	}
}

// NewServer creates a new API server instance.
func NewServer(cfg *ServerConfig, deps Dependencies) *Server {
	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		config: cfg,
		logger: logging.GetGlobalLogger().WithField("component", "api"),
	}

	s.setupRouter()

	return s
}

// Handler returns the root handler, including middleware
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerMinute, s.config.Burst)

	// Order matters: request ids must exist before anything logs
	s.router.Use(RequestIDMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware(s.config.AllowedOrigins))
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", metrics.Handler()).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Pipeline endpoints
	api.HandleFunc("/pipeline/run", s.handleRunPipeline).Methods("POST")
	api.HandleFunc("/pipeline/fetch", s.handleFetchPost).Methods("POST")
	api.HandleFunc("/pipeline/{source}/{sourceId}/interpret", s.handleInterpret).Methods("POST")
	api.HandleFunc("/pipeline/{source}/{sourceId}/purchases", s.handleRecordPurchases).Methods("POST")
	api.HandleFunc("/pipeline/{source}/{sourceId}/evaluate", s.handleEvaluate).Methods("POST")

	// Portfolio endpoints
	api.HandleFunc("/portfolios/{source}/{sourceId}", s.handleGetPortfolio).Methods("GET")
	api.HandleFunc("/portfolios/{source}/{sourceId}/history", s.handleGetHistory).Methods("GET")

	// Asset and price endpoints
	api.HandleFunc("/assets", s.handleListAssets).Methods("GET")
	api.HandleFunc("/assets/{abbreviation}/prices", s.handleListPrices).Methods("GET")
	api.HandleFunc("/prices/sweep", s.handleSweep).Methods("POST")
	api.HandleFunc("/prices/backfill", s.handleBackfill).Methods("POST")

	// preflight requests are answered by CORSMiddleware
	s.router.PathPrefix("/").Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "portfolio-evaluator",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
