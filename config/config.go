package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// HTTP configuration
	HTTPAddr    string
	MetricsAddr string

	// Database configuration
	DatabaseURL string

	// Auth collaborator: secret used to verify bearer tokens minted by the
	// external auth service. The core never issues tokens itself.
	AuthTokenSecret string

	// Game configuration
	StartingBalance int64
	DefaultBet      int64
	ResolveDelay    time.Duration

	// Environment: "development", "production" or "test"
	Environment string
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		AuthTokenSecret: os.Getenv("AUTH_TOKEN_SECRET"),

		// Game settings with defaults
		StartingBalance: 1000,
		DefaultBet:      100,
		ResolveDelay:    800 * time.Millisecond,

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if config.HTTPAddr == "" {
		config.HTTPAddr = ":3000"
	}
	if config.MetricsAddr == "" {
		config.MetricsAddr = ":9100"
	}

	// Override defaults if environment variables are set
	if balance := os.Getenv("STARTING_BALANCE"); balance != "" {
		if parsedBalance, err := strconv.ParseInt(balance, 10, 64); err == nil {
			config.StartingBalance = parsedBalance
		}
	}
	if bet := os.Getenv("DEFAULT_BET"); bet != "" {
		if parsedBet, err := strconv.ParseInt(bet, 10, 64); err == nil {
			config.DefaultBet = parsedBet
		}
	}
	if delay := os.Getenv("RESOLVE_DELAY_MS"); delay != "" {
		if parsedDelay, err := strconv.ParseInt(delay, 10, 64); err == nil {
			config.ResolveDelay = time.Duration(parsedDelay) * time.Millisecond
		}
	}

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
		if config.AuthTokenSecret == "" {
			return nil, fmt.Errorf("AUTH_TOKEN_SECRET is required")
		}
	}

	return config, nil
}
