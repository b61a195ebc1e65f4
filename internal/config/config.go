// Package config provides configuration management for the portfolio evaluator.
// It loads configuration from environment variables and .env files. The
// resulting Config is built once at process start and passed to constructors.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Cache          CacheConfig
	Logging        LoggingConfig
	Providers      ProvidersConfig
	SymbolMaps     SymbolMapsConfig
	Pipeline       PipelineConfig
	Worker         WorkerConfig
	CircuitBreaker CircuitBreakerConfig
	RateLimit      RateLimitConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string
	Host           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
	SSLMode        string
}

// ClickHouseConfig holds ClickHouse configuration. ClickHouse only stores
// evaluation history and may be disabled.
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CacheConfig holds cache TTLs
type CacheConfig struct {
	SpotPriceTTL time.Duration
	FXRateTTL    time.Duration
	ListingTTL   time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// ProviderConfig holds settings shared by every outbound HTTP collaborator
type ProviderConfig struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// GeminiConfig holds vision/text model configuration
type GeminiConfig struct {
	ProviderConfig
	Model       string
	Temperature float64
}

// RedditConfig holds post source configuration
type RedditConfig struct {
	ProviderConfig
	UserAgent  string
	Subreddits []string
	PostLimit  int
}

// ImageConfig holds image download limits
type ImageConfig struct {
	Timeout  time.Duration
	MaxBytes int64
}

// ProvidersConfig holds all external collaborator settings
type ProvidersConfig struct {
	CoinGecko     ProviderConfig
	CoinMarketCap ProviderConfig
	Frankfurter   ProviderConfig
	Gemini        GeminiConfig
	Reddit        RedditConfig
	Images        ImageConfig
}

// SymbolMapsConfig holds paths to the offline provider symbol tables
type SymbolMapsConfig struct {
	CoinGeckoPath     string
	CoinMarketCapPath string
}

// PipelineConfig holds orchestration settings
type PipelineConfig struct {
	Source                string
	BenchmarkName         string
	BenchmarkAbbreviation string
	Currency              string
	RequestTimeout        time.Duration
	DebugMode             bool
	RetryMaxAttempts      int
	RetryInitialDelay     time.Duration
	RetryMaxDelay         time.Duration
}

// WorkerConfig holds scheduled job settings
type WorkerConfig struct {
	PriceSweepSchedule string
	IngestSchedule     string
	ProcessSchedule    string
	BackfillWeeks      int
	ProcessBatchSize   int
	SweepConcurrency   int
	JobTimeout         time.Duration
	MetricsPort        string
}

// CircuitBreakerConfig holds provider circuit breaker settings
type CircuitBreakerConfig struct {
	MinRequests  uint32
	FailureRatio float64
	OpenTimeout  time.Duration
	Interval     time.Duration
}

// RateLimitConfig holds inbound API rate limiting
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// Load .env file (optional in production)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 3*time.Minute),
			AllowedOrigins: getEnvAsSlice("SERVER_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "portfolio_evaluator"),
				User:           getEnv("POSTGRES_USER", "evaluator"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
				SSLMode:        getEnv("POSTGRES_SSLMODE", "disable"),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "portfolio_evaluator"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Cache: CacheConfig{
			SpotPriceTTL: getEnvAsDuration("CACHE_SPOT_PRICE_TTL", 10*time.Minute),
			FXRateTTL:    getEnvAsDuration("CACHE_FX_RATE_TTL", 7*24*time.Hour),
			ListingTTL:   getEnvAsDuration("CACHE_LISTING_TTL", 5*time.Minute),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Providers: ProvidersConfig{
			CoinGecko: ProviderConfig{
				BaseURL:           getEnv("COINGECKO_BASE_URL", "https://api.coingecko.com/api/v3"),
				APIKey:            getEnv("COINGECKO_API_KEY", ""),
				Timeout:           getEnvAsDuration("COINGECKO_TIMEOUT", 10*time.Second),
				RequestsPerSecond: getEnvAsFloat("COINGECKO_RPS", 0.5),
				Burst:             getEnvAsInt("COINGECKO_BURST", 1),
			},
			CoinMarketCap: ProviderConfig{
				BaseURL:           getEnv("CMC_BASE_URL", "https://pro-api.coinmarketcap.com"),
				APIKey:            getEnv("CMC_API_KEY", ""),
				Timeout:           getEnvAsDuration("CMC_TIMEOUT", 10*time.Second),
				RequestsPerSecond: getEnvAsFloat("CMC_RPS", 0.5),
				Burst:             getEnvAsInt("CMC_BURST", 1),
			},
			Frankfurter: ProviderConfig{
				BaseURL:           getEnv("FRANKFURTER_BASE_URL", "https://api.frankfurter.app"),
				Timeout:           getEnvAsDuration("FRANKFURTER_TIMEOUT", 10*time.Second),
				RequestsPerSecond: getEnvAsFloat("FRANKFURTER_RPS", 5),
				Burst:             getEnvAsInt("FRANKFURTER_BURST", 5),
			},
			Gemini: GeminiConfig{
				ProviderConfig: ProviderConfig{
					BaseURL:           getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
					APIKey:            getEnv("GEMINI_API_KEY", ""),
					Timeout:           getEnvAsDuration("GEMINI_TIMEOUT", 60*time.Second),
					RequestsPerSecond: getEnvAsFloat("GEMINI_RPS", 1),
					Burst:             getEnvAsInt("GEMINI_BURST", 2),
				},
				Model:       getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
				Temperature: getEnvAsFloat("GEMINI_TEMPERATURE", 0.1),
			},
			Reddit: RedditConfig{
				ProviderConfig: ProviderConfig{
					BaseURL:           getEnv("REDDIT_BASE_URL", "https://www.reddit.com"),
					Timeout:           getEnvAsDuration("REDDIT_TIMEOUT", 15*time.Second),
					RequestsPerSecond: getEnvAsFloat("REDDIT_RPS", 1),
					Burst:             getEnvAsInt("REDDIT_BURST", 1),
				},
				UserAgent:  getEnv("REDDIT_USER_AGENT", "portfolio-evaluator/1.0"),
				Subreddits: getEnvAsSlice("REDDIT_SUBREDDITS", []string{"CryptoCurrency"}),
				PostLimit:  getEnvAsInt("REDDIT_POST_LIMIT", 25),
			},
			Images: ImageConfig{
				Timeout:  getEnvAsDuration("IMAGE_TIMEOUT", 20*time.Second),
				MaxBytes: int64(getEnvAsInt("IMAGE_MAX_BYTES", 10<<20)),
			},
		},
		SymbolMaps: SymbolMapsConfig{
			CoinGeckoPath:     getEnv("SYMBOL_MAP_COINGECKO", "data/coingecko_symbols.csv"),
			CoinMarketCapPath: getEnv("SYMBOL_MAP_CMC", "data/cmc_symbols.csv"),
		},
		Pipeline: PipelineConfig{
			Source:                getEnv("PIPELINE_SOURCE", "reddit"),
			BenchmarkName:         getEnv("PIPELINE_BENCHMARK_NAME", "bitcoin"),
			BenchmarkAbbreviation: getEnv("PIPELINE_BENCHMARK_ABBREVIATION", "btc"),
			Currency:              getEnv("PIPELINE_CURRENCY", "usd"),
			RequestTimeout:        getEnvAsDuration("PIPELINE_REQUEST_TIMEOUT", 3*time.Minute),
			DebugMode:             getEnvAsBool("PIPELINE_DEBUG", false),
			RetryMaxAttempts:      getEnvAsInt("PIPELINE_RETRY_MAX_ATTEMPTS", 3),
			RetryInitialDelay:     getEnvAsDuration("PIPELINE_RETRY_INITIAL_DELAY", time.Second),
			RetryMaxDelay:         getEnvAsDuration("PIPELINE_RETRY_MAX_DELAY", 20*time.Second),
		},
		Worker: WorkerConfig{
			PriceSweepSchedule: getEnv("WORKER_PRICE_SWEEP_SCHEDULE", "0 0 6 * * MON"),
			IngestSchedule:     getEnv("WORKER_INGEST_SCHEDULE", "0 0 * * * *"),
			ProcessSchedule:    getEnv("WORKER_PROCESS_SCHEDULE", "0 15 * * * *"),
			BackfillWeeks:      getEnvAsInt("WORKER_BACKFILL_WEEKS", 52),
			ProcessBatchSize:   getEnvAsInt("WORKER_PROCESS_BATCH_SIZE", 20),
			SweepConcurrency:   getEnvAsInt("WORKER_SWEEP_CONCURRENCY", 2),
			JobTimeout:         getEnvAsDuration("WORKER_JOB_TIMEOUT", 30*time.Minute),
			MetricsPort:        getEnv("WORKER_METRICS_PORT", "9091"),
		},
		CircuitBreaker: CircuitBreakerConfig{
			MinRequests:  uint32(getEnvAsInt("BREAKER_MIN_REQUESTS", 3)),
			FailureRatio: getEnvAsFloat("BREAKER_FAILURE_RATIO", 0.6),
			OpenTimeout:  getEnvAsDuration("BREAKER_OPEN_TIMEOUT", 30*time.Second),
			Interval:     getEnvAsDuration("BREAKER_INTERVAL", time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 5),
		},
	}

	return config, nil
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	var problems []string

	if c.Providers.Gemini.APIKey == "" {
		problems = append(problems, "GEMINI_API_KEY is required")
	}
	if c.Providers.CoinMarketCap.APIKey == "" {
		problems = append(problems, "CMC_API_KEY is required")
	}
	if c.Pipeline.BenchmarkName == "" || c.Pipeline.BenchmarkAbbreviation == "" {
		problems = append(problems, "benchmark asset name and abbreviation are required")
	}
	if c.Worker.BackfillWeeks < 1 {
		problems = append(problems, "WORKER_BACKFILL_WEEKS must be positive")
	}
	if c.Worker.SweepConcurrency < 1 {
		problems = append(problems, "WORKER_SWEEP_CONCURRENCY must be positive")
	}
	if c.CircuitBreaker.FailureRatio <= 0 || c.CircuitBreaker.FailureRatio > 1 {
		problems = append(problems, "BREAKER_FAILURE_RATIO must be in (0, 1]")
	}
	for name, p := range map[string]ProviderConfig{
		"coingecko":     c.Providers.CoinGecko,
		"coinmarketcap": c.Providers.CoinMarketCap,
		"frankfurter":   c.Providers.Frankfurter,
		"gemini":        c.Providers.Gemini.ProviderConfig,
		"reddit":        c.Providers.Reddit.ProviderConfig,
	} {
		if p.Timeout <= 0 {
			problems = append(problems, fmt.Sprintf("%s timeout must be positive", name))
		}
		if p.RequestsPerSecond <= 0 {
			problems = append(problems, fmt.Sprintf("%s requests per second must be positive", name))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsSlice gets a comma separated environment variable with a default value
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
