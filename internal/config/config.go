// Package config loads client configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents poststudio client configuration loaded from environment variables.
type Config struct {
	APIBaseURL string
	APIToken   string

	PollInterval time.Duration
	PollTimeout  time.Duration

	FlowTimeout time.Duration
	SettleDelay time.Duration
	RelayAddr   string

	HTTPTimeout time.Duration
}

// Load builds configuration from environment variables and applies defaults where needed.
func Load() (*Config, error) {
	cfg := &Config{
		APIBaseURL:   os.Getenv("POSTSTUDIO_API_BASE_URL"),
		APIToken:     os.Getenv("POSTSTUDIO_API_TOKEN"),
		PollInterval: getEnvDuration("POSTSTUDIO_POLL_INTERVAL", 3*time.Second),
		PollTimeout:  getEnvDuration("POSTSTUDIO_POLL_TIMEOUT", 15*time.Minute),
		FlowTimeout:  getEnvDuration("POSTSTUDIO_FLOW_TIMEOUT", 5*time.Minute),
		SettleDelay:  getEnvDuration("POSTSTUDIO_SETTLE_DELAY", 2*time.Second),
		RelayAddr:    getEnv("POSTSTUDIO_RELAY_ADDR", "127.0.0.1:0"),
		HTTPTimeout:  time.Second * time.Duration(getEnvInt("POSTSTUDIO_HTTP_TIMEOUT_SECONDS", 30)),
	}

	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("POSTSTUDIO_API_BASE_URL is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
