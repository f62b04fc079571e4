// Package config loads runtime configuration for the marketsim CLI from
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
)

// Config holds all runtime configuration for the marketsim CLI.
type Config struct {
	Mode     string // "sim" or "feed"
	LogLevel string
	Symbol   string

	// Simulation settings
	Seed        int64
	Steps       int
	MidPrice    decimal.Decimal
	MarketRatio float64
	CancelRatio float64

	// Feed settings
	FeedEndpoint string
	FeedLevels   int
	FeedMessages int
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	mode := getStr("MODE", "sim")
	if mode != "sim" && mode != "feed" {
		return nil, fmt.Errorf("invalid MODE: %q, must be sim or feed", mode)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	seed, err := getInt64("SEED", 1)
	if err != nil {
		return nil, fmt.Errorf("invalid SEED: %w", err)
	}

	steps, err := getInt("STEPS", 1000)
	if err != nil {
		return nil, fmt.Errorf("invalid STEPS: %w", err)
	}
	if steps <= 0 {
		return nil, fmt.Errorf("invalid STEPS: must be positive, got %d", steps)
	}

	midPrice, err := getDecimal("MID_PRICE", decimal.NewFromInt(100))
	if err != nil {
		return nil, fmt.Errorf("invalid MID_PRICE: %w", err)
	}
	if !midPrice.IsPositive() {
		return nil, fmt.Errorf("invalid MID_PRICE: must be positive, got %s", midPrice)
	}

	marketRatio, err := getFloat("MARKET_RATIO", 0.1)
	if err != nil {
		return nil, fmt.Errorf("invalid MARKET_RATIO: %w", err)
	}
	if marketRatio < 0 || marketRatio > 1 {
		return nil, fmt.Errorf("invalid MARKET_RATIO: must be in [0, 1], got %g", marketRatio)
	}

	cancelRatio, err := getFloat("CANCEL_RATIO", 0.1)
	if err != nil {
		return nil, fmt.Errorf("invalid CANCEL_RATIO: %w", err)
	}
	if cancelRatio < 0 || cancelRatio > 1 {
		return nil, fmt.Errorf("invalid CANCEL_RATIO: must be in [0, 1], got %g", cancelRatio)
	}

	feedLevels, err := getInt("FEED_LEVELS", 20)
	if err != nil {
		return nil, fmt.Errorf("invalid FEED_LEVELS: %w", err)
	}

	feedMessages, err := getInt("FEED_MESSAGES", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid FEED_MESSAGES: %w", err)
	}

	return &Config{
		Mode:         mode,
		LogLevel:     logLevel,
		Symbol:       getStr("SYMBOL", "BTC-USD"),
		Seed:         seed,
		Steps:        steps,
		MidPrice:     midPrice,
		MarketRatio:  marketRatio,
		CancelRatio:  cancelRatio,
		FeedEndpoint: getStr("FEED_ENDPOINT", "wss://stream.binance.com:9443"),
		FeedLevels:   feedLevels,
		FeedMessages: feedMessages,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getInt64(key string, defaultVal int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getDecimal(key string, defaultVal decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return decimal.NewFromString(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
