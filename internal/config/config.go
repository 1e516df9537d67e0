package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Port string
	Env  string

	DBDriver    string
	DatabaseURL string

	RedisURL  string
	RedisPass string
	RedisDB   int

	JWTSecret string

	AnchorURL      string
	AnchorInterval time.Duration
	SweepInterval  time.Duration
	SeedLength     int

	OpeningBalance decimal.Decimal
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DBDriver:    getEnv("DB_DRIVER", "sqlite3"),
		DatabaseURL: getEnv("DATABASE_URL", "roundhouse.db"),
		RedisURL:    os.Getenv("REDIS_URL"),
		RedisPass:   os.Getenv("REDIS_PASSWORD"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		AnchorURL:   getEnv("ANCHOR_URL", "https://api.blockchair.com/bitcoin/stats"),
	}

	var err error
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.SeedLength, err = getInt("SEED_LENGTH", 5000); err != nil {
		return nil, err
	}
	if cfg.AnchorInterval, err = getDuration("ANCHOR_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}

	cfg.OpeningBalance = decimal.NewFromInt(1000)
	if v := os.Getenv("OPENING_BALANCE"); v != "" {
		cfg.OpeningBalance, err = decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("invalid OPENING_BALANCE %q: %v", v, err)
		}
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite3" {
		return nil, fmt.Errorf("DB_DRIVER must be postgres or sqlite3, got %q", cfg.DBDriver)
	}
	if cfg.SeedLength <= 0 {
		return nil, fmt.Errorf("SEED_LENGTH must be positive")
	}
	if cfg.OpeningBalance.IsNegative() {
		return nil, fmt.Errorf("OPENING_BALANCE must not be negative")
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %v", key, v, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %v", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
