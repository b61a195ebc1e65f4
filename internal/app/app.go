// Package app wires configuration, connections, adapters and services into
// the process entry points.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/portfolio-evaluator/internal/adapter"
	"github.com/portfolio-evaluator/internal/api"
	"github.com/portfolio-evaluator/internal/circuitbreaker"
	"github.com/portfolio-evaluator/internal/config"
	"github.com/portfolio-evaluator/internal/logging"
	"github.com/portfolio-evaluator/internal/retry"
	"github.com/portfolio-evaluator/internal/service"
	"github.com/portfolio-evaluator/internal/storage"
	"github.com/portfolio-evaluator/internal/types"
)

// App holds everything one process needs. ClickHouse and History are nil
// when the analytics store is disabled.
type App struct {
	Config *config.Config
	Logger *logging.Logger

	Postgres   *storage.PostgresDB
	Redis      *storage.RedisCache
	ClickHouse *storage.ClickHouseDB
	Cache      *storage.CacheService
	Breakers   *circuitbreaker.CircuitBreakerManager

	Assets     *storage.AssetRepository
	Prices     *storage.PriceRepository
	Posts      *storage.SourcePostRepository
	Portfolios *storage.PortfolioRepository
	Purchases  *storage.PurchaseRepository
	History    *storage.EvaluationHistoryRepository

	Pipeline *service.Pipeline
	Sweeper  *service.PriceSweeper
	Ingestor *service.PostIngestor
}

// LoadConfig loads and validates the configuration and initializes the
// global logger from it
func LoadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logging.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// New connects to the stores and builds the services. Close releases the connections.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, Logger: logging.GetGlobalLogger()}

	if err := a.connect(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.buildServices(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config
	a.Logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		return fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	a.Postgres = postgres

	if err := storage.ValidateSchema(ctx, postgres.Pool()); err != nil {
		return err
	}

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.Redis = redis
	a.Cache = storage.NewCacheService(redis, cfg.Cache.SpotPriceTTL)

	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		a.ClickHouse = clickhouse
		a.History = storage.NewEvaluationHistoryRepository(clickhouse)
	} else {
		a.Logger.Info("ClickHouse disabled, evaluation history is not recorded")
	}

	a.Logger.Info("Database connections established")
	return nil
}

func (a *App) buildServices() error {
	cfg := a.Config

	a.Breakers = circuitbreaker.NewCircuitBreakerManager(&circuitbreaker.Config{
		MinRequests:      cfg.CircuitBreaker.MinRequests,
		FailureRatio:     cfg.CircuitBreaker.FailureRatio,
		Timeout:          cfg.CircuitBreaker.OpenTimeout,
		Interval:         cfg.CircuitBreaker.Interval,
		HalfOpenMaxCalls: 1,
	})

	pool := a.Postgres.Pool()
	a.Assets = storage.NewAssetRepository(pool)
	a.Prices = storage.NewPriceRepository(pool)
	a.Posts = storage.NewSourcePostRepository(pool)
	a.Portfolios = storage.NewPortfolioRepository(pool)
	a.Purchases = storage.NewPurchaseRepository(pool)
	recorder := storage.NewPortfolioRecorder(a.Postgres)

	coinGecko := adapter.NewCoinGeckoClient(cfg.Providers.CoinGecko, a.Breakers.GetOrCreate(string(types.ProviderCoinGecko)))
	coinMarketCap := adapter.NewCoinMarketCapClient(cfg.Providers.CoinMarketCap,
		a.Breakers.GetOrCreate(string(types.ProviderCoinMarketCap)), a.Cache, cfg.Cache.ListingTTL)
	frankfurter := adapter.NewFrankfurterClient(cfg.Providers.Frankfurter, a.Breakers.GetOrCreate("frankfurter"),
		a.Cache, cfg.Cache.FXRateTTL)
	gemini := adapter.NewGeminiClient(cfg.Providers.Gemini, a.Breakers.GetOrCreate("gemini"))
	reddit := adapter.NewRedditClient(cfg.Providers.Reddit, a.Breakers.GetOrCreate(string(types.SourceReddit)))
	images := adapter.NewImageFetcher(cfg.Providers.Images)

	symbols := a.loadSymbolTables()

	benchmark := service.Benchmark{Name: cfg.Pipeline.BenchmarkName, Abbreviation: cfg.Pipeline.BenchmarkAbbreviation}
	resolver := service.NewPriceResolver(a.Assets, symbols...)
	spot := service.NewSpotPriceFetcher(coinGecko, coinMarketCap).WithCache(a.Cache, cfg.Cache.SpotPriceTTL)

	var history service.EvaluationHistory
	if a.History != nil {
		history = a.History
	}
	evaluator := service.NewPortfolioEvaluator(a.Portfolios, a.Purchases, a.Prices, resolver, spot, history, benchmark)

	a.Pipeline = service.NewPipeline(
		reddit,
		a.Posts,
		a.Portfolios,
		recorder,
		service.NewPostInterpreter(gemini, images),
		service.NewPurchaseNormalizer(frankfurter),
		resolver,
		evaluator,
		service.PipelineOptions{
			Debug: cfg.Pipeline.DebugMode,
			FetchRetry: &retry.RetryConfig{
				MaxAttempts:  cfg.Pipeline.RetryMaxAttempts,
				InitialDelay: cfg.Pipeline.RetryInitialDelay,
				MaxDelay:     cfg.Pipeline.RetryMaxDelay,
				Multiplier:   2.0,
			},
		},
	)
	a.Sweeper = service.NewPriceSweeper(a.Assets, a.Prices, resolver, spot, benchmark, cfg.Worker.SweepConcurrency)
	a.Ingestor = service.NewPostIngestor(reddit, a.Posts, a.Pipeline, cfg.Pipeline.Source,
		cfg.Providers.Reddit.Subreddits, cfg.Providers.Reddit.PostLimit)

	a.Logger.WithFields(map[string]interface{}{
		"benchmark":    benchmark.Key().String(),
		"symbolTables": len(symbols),
		"debug":        cfg.Pipeline.DebugMode,
	}).Info("Services initialized")
	return nil
}

// loadSymbolTables loads the offline provider mappings that exist. A missing
// table only disables that provider for new assets.
func (a *App) loadSymbolTables() []adapter.SymbolLookup {
	paths := []struct {
		provider types.Provider
		path     string
	}{
		{types.ProviderCoinGecko, a.Config.SymbolMaps.CoinGeckoPath},
		{types.ProviderCoinMarketCap, a.Config.SymbolMaps.CoinMarketCapPath},
	}

	var tables []adapter.SymbolLookup
	for _, p := range paths {
		if _, err := os.Stat(p.path); err != nil {
			a.Logger.WithFields(map[string]interface{}{
				"provider": p.provider,
				"path":     p.path,
			}).Warn("Symbol table not found, provider ids are only taken from stored assets")
			continue
		}
		table, err := adapter.LoadSymbolTable(p.provider, p.path)
		if err != nil {
			a.Logger.WithError(err).WithField("provider", p.provider).Warn("Failed to load symbol table")
			continue
		}
		tables = append(tables, table)
	}
	return tables
}

// APIDependencies exposes the services to the HTTP server
func (a *App) APIDependencies() api.Dependencies {
	deps := api.Dependencies{
		Pipeline:   a.Pipeline,
		Posts:      a.Posts,
		Portfolios: a.Portfolios,
		Purchases:  a.Purchases,
		Assets:     a.Assets,
		Prices:     a.Prices,
		Sweeper:    a.Sweeper,
	}
	if a.History != nil {
		deps.History = a.History
	}
	return deps
}

// Close releases every open connection
func (a *App) Close() {
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			a.Logger.WithError(err).Warn("Error closing ClickHouse connection")
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.WithError(err).Warn("Error closing Redis connection")
		}
	}
	if a.Postgres != nil {
		a.Postgres.Close()
	}
}
