// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Feed modes
const (
	FeedModeLive      = "live"
	FeedModeSynthetic = "synthetic"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the client data store (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	Feed      FeedConfig
	Portfolio PortfolioConfig
	Wallet    WalletConfig
}

// FeedConfig configures the market data stream
type FeedConfig struct {
	URL               string
	Mode              string // live or synthetic
	MarketPrefix      string // compound code prefix, e.g. KRW in KRW-BTC
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	SyntheticInterval time.Duration
	SyntheticMaxStep  float64            // max relative move per synthetic tick
	SyntheticSeeds    map[string]float64 // starting prices per symbol
	TickEpsilon       float64
	// FallbackAfterFailures switches a live session to synthetic data after this many
	// consecutive connection failures. Zero disables the switch.
	FallbackAfterFailures int
	WatchSymbols          []string
	TickPersistInterval   time.Duration
}

// PortfolioConfig configures valuation and allocation
type PortfolioConfig struct {
	TopN            int
	HoldingsRefresh string // cron spec
}

// WalletConfig configures the holdings source
type WalletConfig struct {
	APIURL       string
	APIToken     string
	HoldingsFile string // static holdings JSON, used when APIURL is empty
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("KONO_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	seeds, err := parseSeeds(getEnv("SYNTHETIC_SEEDS", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:  absDataDir,
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnvAsInt("GO_PORT", 8001),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		Feed: FeedConfig{
			URL:                   getEnv("FEED_URL", "wss://api.upbit.com/websocket/v1"),
			Mode:                  strings.ToLower(getEnv("FEED_MODE", FeedModeLive)),
			MarketPrefix:          strings.ToUpper(getEnv("MARKET_PREFIX", "KRW")),
			ReconnectDelay:        getEnvAsDuration("RECONNECT_DELAY", 30*time.Second),
			MaxReconnectDelay:     getEnvAsDuration("MAX_RECONNECT_DELAY", 30*time.Second),
			SyntheticInterval:     getEnvAsDuration("SYNTHETIC_INTERVAL", 10*time.Second),
			SyntheticMaxStep:      getEnvAsFloat("SYNTHETIC_MAX_STEP", 0.01),
			SyntheticSeeds:        seeds,
			TickEpsilon:           getEnvAsFloat("TICK_EPSILON", 0.001),
			FallbackAfterFailures: getEnvAsInt("FALLBACK_AFTER_FAILURES", 0),
			WatchSymbols:          getEnvAsList("WATCH_SYMBOLS"),
			TickPersistInterval:   getEnvAsDuration("TICK_PERSIST_INTERVAL", time.Minute),
		},
		Portfolio: PortfolioConfig{
			TopN:            getEnvAsInt("TOP_N", 4),
			HoldingsRefresh: getEnv("HOLDINGS_REFRESH", "@every 1m"),
		},
		Wallet: WalletConfig{
			APIURL:       strings.TrimRight(getEnv("WALLET_API_URL", ""), "/"),
			APIToken:     getEnv("WALLET_API_TOKEN", ""),
			HoldingsFile: getEnv("HOLDINGS_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is consistent
func (c *Config) Validate() error {
	switch c.Feed.Mode {
	case FeedModeLive, FeedModeSynthetic:
	default:
		return fmt.Errorf("invalid FEED_MODE %q: must be %q or %q", c.Feed.Mode, FeedModeLive, FeedModeSynthetic)
	}

	if c.Feed.Mode == FeedModeLive && c.Feed.URL == "" {
		return fmt.Errorf("FEED_URL is required in live mode")
	}
	if c.Feed.ReconnectDelay <= 0 {
		return fmt.Errorf("RECONNECT_DELAY must be positive")
	}
	if c.Feed.MaxReconnectDelay < c.Feed.ReconnectDelay {
		return fmt.Errorf("MAX_RECONNECT_DELAY (%s) must not be below RECONNECT_DELAY (%s)",
			c.Feed.MaxReconnectDelay, c.Feed.ReconnectDelay)
	}
	if c.Feed.SyntheticInterval <= 0 {
		return fmt.Errorf("SYNTHETIC_INTERVAL must be positive")
	}
	if c.Feed.SyntheticMaxStep <= 0 || c.Feed.SyntheticMaxStep >= 1 {
		return fmt.Errorf("SYNTHETIC_MAX_STEP must be in (0, 1), got %v", c.Feed.SyntheticMaxStep)
	}
	if c.Feed.TickEpsilon < 0 {
		return fmt.Errorf("TICK_EPSILON must not be negative")
	}
	if c.Feed.FallbackAfterFailures < 0 {
		return fmt.Errorf("FALLBACK_AFTER_FAILURES must not be negative")
	}
	if c.Portfolio.TopN <= 0 {
		return fmt.Errorf("TOP_N must be positive")
	}
	if _, err := cron.ParseStandard(c.Portfolio.HoldingsRefresh); err != nil {
		return fmt.Errorf("invalid HOLDINGS_REFRESH %q: %w", c.Portfolio.HoldingsRefresh, err)
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToUpper(part))
		}
	}
	return out
}

// parseSeeds parses "BTC=60000000,ETH=4000000"
func parseSeeds(raw string) (map[string]float64, error) {
	seeds := make(map[string]float64)
	if strings.TrimSpace(raw) == "" {
		return seeds, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		symbol, price, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid SYNTHETIC_SEEDS entry %q: expected SYMBOL=PRICE", pair)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(price), 64)
		if err != nil || value <= 0 {
			return nil, fmt.Errorf("invalid SYNTHETIC_SEEDS price for %s: %q", symbol, price)
		}
		seeds[strings.ToUpper(strings.TrimSpace(symbol))] = value
	}
	return seeds, nil
}
