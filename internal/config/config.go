// Package config loads the plugin's auth.* options from the environment
// (optionally seeded by a .env file), and validates the credit limits
// before anything is wired up.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds the recognized plugin options.
type Config struct {
	Account string // auth.account
	Room    string // auth.room
	Host    string // auth.host
	Min     decimal.Decimal
	Max     decimal.Decimal // auth.limit / auth.max

	KafkaBrokers []string
	KafkaTopic   string

	PostgresDSN string // empty means use the in-memory store
}

// Load reads configuration from the environment, first loading envFile if
// it exists. A missing file is not an error; godotenv.Load's own error is
// only surfaced when the file was explicitly requested and unreadable for
// another reason.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return Config{}, fmt.Errorf("config: loading %s: %w", envFile, err)
			}
		}
	}

	cfg := Config{
		Account:     os.Getenv("AUTH_ACCOUNT"),
		Room:        os.Getenv("AUTH_ROOM"),
		Host:        os.Getenv("AUTH_HOST"),
		PostgresDSN: os.Getenv("POSTGRES_DSN"),
		KafkaTopic:  envOr("KAFKA_TOPIC", "ledger.transfers.settled"),
	}

	minStr := envOr("AUTH_LIMIT", "0")
	maxStr := envOr("AUTH_MAX", "0")

	min, err := decimal.NewFromString(minStr)
	if err != nil {
		return Config{}, fmt.Errorf("config: AUTH_LIMIT %q: %w", minStr, err)
	}
	max, err := decimal.NewFromString(maxStr)
	if err != nil {
		return Config{}, fmt.Errorf("config: AUTH_MAX %q: %w", maxStr, err)
	}
	cfg.Min = min
	cfg.Max = max

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	return cfg, cfg.Validate()
}

// Validate enforces that min <= 0 <= max: min is the credit the peer
// extends to us (typically negative or zero), max is the credit we extend
// to the peer (must be nonnegative).
func (c Config) Validate() error {
	if c.Min.GreaterThan(decimal.Zero) {
		return fmt.Errorf("config: auth.limit (min=%s) must be <= 0", c.Min)
	}
	if c.Max.LessThan(decimal.Zero) {
		return fmt.Errorf("config: auth.max (max=%s) must be >= 0", c.Max)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
