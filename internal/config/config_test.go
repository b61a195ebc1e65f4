package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_HOST", "testhost")
	t.Setenv("CACHE_SPOT_PRICE_TTL", "30s")
	t.Setenv("REDDIT_SUBREDDITS", "Bitcoin, CryptoCurrency ,")
	t.Setenv("CLICKHOUSE_ENABLED", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}
	if cfg.Cache.SpotPriceTTL != 30*time.Second {
		t.Errorf("Cache.SpotPriceTTL = %v, want %v", cfg.Cache.SpotPriceTTL, 30*time.Second)
	}
	if want := []string{"Bitcoin", "CryptoCurrency"}; !reflect.DeepEqual(cfg.Providers.Reddit.Subreddits, want) {
		t.Errorf("Reddit.Subreddits = %v, want %v", cfg.Providers.Reddit.Subreddits, want)
	}
	if !cfg.Database.ClickHouse.Enabled {
		t.Errorf("ClickHouse.Enabled = false, want true")
	}
	if cfg.Pipeline.BenchmarkName != "bitcoin" || cfg.Pipeline.BenchmarkAbbreviation != "btc" {
		t.Errorf("benchmark = %s/%s, want bitcoin/btc", cfg.Pipeline.BenchmarkName, cfg.Pipeline.BenchmarkAbbreviation)
	}
	if cfg.Providers.CoinGecko.Timeout != 10*time.Second {
		t.Errorf("CoinGecko.Timeout = %v, want 10s", cfg.Providers.CoinGecko.Timeout)
	}
}

func TestValidate(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("CMC_API_KEY", "c-key")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}

	cfg.Providers.Gemini.APIKey = ""
	cfg.Worker.BackfillWeeks = 0
	if err := cfg.Validate(); err == nil {
		t.Errorf("Validate() error = nil, want error")
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "NONEXISTENT_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_DURATION", "5m")

	if got := getEnvAsInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvAsInt() = %v, want 42", got)
	}
	if got := getEnvAsInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvAsInt() = %v, want default 7", got)
	}
	if got := getEnvAsFloat("TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("getEnvAsFloat() = %v, want 0.25", got)
	}
	if got := getEnvAsBool("TEST_BOOL", false); !got {
		t.Errorf("getEnvAsBool() = false, want true")
	}
	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != 5*time.Minute {
		t.Errorf("getEnvAsDuration() = %v, want 5m", got)
	}
	if got := getEnvAsSlice("TEST_MISSING_SLICE", []string{"a"}); len(got) != 1 || got[0] != "a" {
		t.Errorf("getEnvAsSlice() = %v, want [a]", got)
	}
}
