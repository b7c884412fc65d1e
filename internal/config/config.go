// Package config loads process configuration from the environment. All
// knobs live under the CARBONLEDGER_ prefix; services receive an explicit
// Config value instead of reading the environment themselves.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const envPrefix = "CARBONLEDGER_"

// Config is the full configuration of the API process.
type Config struct {
	Addr          string
	PGDSN         string
	TokenSecret   string
	TokenIssuer   string
	TokenAudience string
	SessionTTL    time.Duration
}

// Load reads configuration from the environment, applying defaults.
// The token secret has no default; refusing to boot beats signing with a
// well-known value.
func Load() (Config, error) {
	cfg := Config{
		Addr:          envString("ADDR", ":8080"),
		PGDSN:         envString("PG_DSN", ""),
		TokenSecret:   envString("TOKEN_SECRET", ""),
		TokenIssuer:   envString("TOKEN_ISSUER", "carbonledger"),
		TokenAudience: envString("TOKEN_AUDIENCE", "carbonledger-web"),
	}
	if cfg.TokenSecret == "" {
		return Config{}, errors.New("CARBONLEDGER_TOKEN_SECRET is required")
	}

	ttl, err := envDuration("SESSION_TTL", 12*time.Hour)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTTL = ttl
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s%s: %w", envPrefix, key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s%s must be positive", envPrefix, key)
	}
	return d, nil
}
