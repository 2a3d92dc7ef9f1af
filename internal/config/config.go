package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the application.
type Config struct {
	Port          string
	DatabaseURL   string
	RedisURL      string
	ZulipSite     string
	ZulipBotEmail string
	ZulipAPIKey   string
	NumWorkers    int

	DispatchMaxAttempts    int
	DispatchTimeoutSeconds int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisURL:      getEnv("REDIS_URL", ""),
		ZulipSite:     getEnv("ZULIP_SITE", ""),
		ZulipBotEmail: getEnv("ZULIP_BOT_EMAIL", ""),
		ZulipAPIKey:   getEnv("ZULIP_API_KEY", ""),
		NumWorkers:    getEnvInt("NUM_WORKERS", 10),

		DispatchMaxAttempts:    getEnvInt("DISPATCH_MAX_ATTEMPTS", 3),
		DispatchTimeoutSeconds: getEnvInt("DISPATCH_TIMEOUT_SECONDS", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.ZulipSite == "" {
		return nil, fmt.Errorf("ZULIP_SITE is required")
	}
	if cfg.ZulipBotEmail == "" {
		return nil, fmt.Errorf("ZULIP_BOT_EMAIL is required")
	}
	if cfg.ZulipAPIKey == "" {
		return nil, fmt.Errorf("ZULIP_API_KEY is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
