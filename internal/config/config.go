// Package config loads the daemon configuration from environment variables,
// optionally seeded from a .env file. Validation is fail-fast: a missing
// required value aborts startup before any chain subscription is opened.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Source strategies.
const (
	SourceWS   = "ws"
	SourcePoll = "poll"
)

// Config is the daemon configuration.
type Config struct {
	// Chain access.
	RPCEndpoint    string // SOLANA_RPC_ENDPOINT
	WSEndpoint     string // SOLANA_WS_ENDPOINT, required for the ws strategy
	SourceStrategy string // SOURCE_STRATEGY: ws | poll, default ws
	PollInterval   time.Duration

	// Persistence.
	PostgresDSN   string // POSTGRES_DSN
	ClickhouseDSN string // CLICKHOUSE_DSN, optional analytics archive
	UseMemory     bool   // USE_MEMORY: in-memory stores, no postgres needed

	// Custody.
	CustodyPassphrase string // CUSTODY_PASSPHRASE

	// Notifications.
	TelegramToken string // TELEGRAM_BOT_TOKEN, optional

	// Pipeline tuning.
	Workers          int
	BufferSize       int
	ScalingFactor    float64
	FeeBuffer        float64
	MinTradeInterval time.Duration

	// HTTP.
	MetricsAddr string // METRICS_ADDR, default :9090
}

// Load reads configuration from the environment. When envFile is non-empty
// it is loaded first; a missing default ".env" is not an error, a missing
// explicit path is.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if envFile != ".env" || !os.IsNotExist(err) {
				return nil, fmt.Errorf("load env file %s: %w", envFile, err)
			}
		}
	}

	cfg := &Config{
		RPCEndpoint:       os.Getenv("SOLANA_RPC_ENDPOINT"),
		WSEndpoint:        os.Getenv("SOLANA_WS_ENDPOINT"),
		SourceStrategy:    envString("SOURCE_STRATEGY", SourceWS),
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
		ClickhouseDSN:     os.Getenv("CLICKHOUSE_DSN"),
		CustodyPassphrase: os.Getenv("CUSTODY_PASSPHRASE"),
		TelegramToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		MetricsAddr:       envString("METRICS_ADDR", ":9090"),
	}

	var err error
	if cfg.UseMemory, err = envBool("USE_MEMORY", false); err != nil {
		return nil, err
	}
	if cfg.Workers, err = envInt("EXECUTOR_WORKERS", 3); err != nil {
		return nil, err
	}
	if cfg.BufferSize, err = envInt("SOURCE_BUFFER_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.ScalingFactor, err = envFloat("SCALING_FACTOR", 0); err != nil {
		return nil, err
	}
	if cfg.FeeBuffer, err = envFloat("FEE_BUFFER_SOL", 0.01); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = envDuration("POLL_INTERVAL", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.MinTradeInterval, err = envDuration("MIN_TRADE_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required values and cross-field constraints.
func (c *Config) Validate() error {
	if c.RPCEndpoint == "" {
		return fmt.Errorf("SOLANA_RPC_ENDPOINT is required")
	}
	switch c.SourceStrategy {
	case SourceWS:
		if c.WSEndpoint == "" {
			return fmt.Errorf("SOLANA_WS_ENDPOINT is required for the ws source strategy")
		}
	case SourcePoll:
	default:
		return fmt.Errorf("SOURCE_STRATEGY must be %q or %q, got %q", SourceWS, SourcePoll, c.SourceStrategy)
	}
	if !c.UseMemory && c.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set USE_MEMORY=true for in-memory storage)")
	}
	if c.CustodyPassphrase == "" {
		return fmt.Errorf("CUSTODY_PASSPHRASE is required")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("EXECUTOR_WORKERS must be positive, got %d", c.Workers)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("SOURCE_BUFFER_SIZE must be positive, got %d", c.BufferSize)
	}
	if c.ScalingFactor < 0 {
		return fmt.Errorf("SCALING_FACTOR must not be negative, got %v", c.ScalingFactor)
	}
	if c.FeeBuffer < 0 {
		return fmt.Errorf("FEE_BUFFER_SOL must not be negative, got %v", c.FeeBuffer)
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, nil
}
