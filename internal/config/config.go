// Package config loads server configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	EnvLocal = "local"
	EnvProd  = "prod"
)

type Config struct {
	Env             string
	HTTPAddr        string
	DBPath          string
	InitialReserve  decimal.Decimal
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first if present; real environment
// variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:             getEnv("APP_ENV", EnvLocal),
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DBPath:          getEnv("DB_PATH", "pf-engine.db"),
		RequestTimeout:  60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}

	reserve := getEnv("INITIAL_RESERVE", "10000")
	var err error
	if cfg.InitialReserve, err = decimal.NewFromString(reserve); err != nil {
		return nil, fmt.Errorf("config: INITIAL_RESERVE %q: %w", reserve, err)
	}
	if cfg.InitialReserve.Sign() < 0 {
		return nil, fmt.Errorf("config: INITIAL_RESERVE must not be negative")
	}

	if d := os.Getenv("REQUEST_TIMEOUT"); d != "" {
		if cfg.RequestTimeout, err = time.ParseDuration(d); err != nil {
			return nil, fmt.Errorf("config: REQUEST_TIMEOUT %q: %w", d, err)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
