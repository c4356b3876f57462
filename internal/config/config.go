// Package config loads process configuration from the environment,
// following the donor service's Config.FromEnv() pattern: typed parse
// helpers, required-field validation, and an optional .env file for
// local development via github.com/joho/godotenv.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	Env                string
	DatabaseURL        string
	JWTSecret          []byte
	DraftLockTTL       time.Duration
	DraftDefaultTTL    time.Duration
	SweepInterval      time.Duration
	ExternalCallTimeout time.Duration
	ReconOutputDir     string
}

func FromEnv() (*Config, error) {
	_ = godotenv.Load() // best-effort; absent .env is not an error

	cfg := &Config{
		Port:                getEnvDefault("PORT", "8080"),
		Env:                 getEnvDefault("APP_ENV", "dev"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		DraftLockTTL:        parseDurationDefault("DRAFT_LOCK_TTL", 30*time.Minute),
		DraftDefaultTTL:     parseDurationDefault("DRAFT_DEFAULT_TTL", 2*time.Hour),
		SweepInterval:       parseDurationDefault("SWEEP_INTERVAL", time.Minute),
		ExternalCallTimeout: parseDurationDefault("EXTERNAL_CALL_TIMEOUT", 10*time.Second),
		ReconOutputDir:      getEnvDefault("RECON_OUTPUT_DIR", "./var/reports"),
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is required")
	}
	cfg.JWTSecret = []byte(secret)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

