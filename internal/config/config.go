// Package config loads service configuration from the environment. A .env
// file, when present, is folded in by the command entrypoint before Load
// runs.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Port        int
	DBPath      string
	CORSOrigins []string
	IngestToken string

	UpstreamBaseURL string
	SpotCacheTTL    time.Duration
	HistoryCacheTTL time.Duration
	UpstreamTimeout time.Duration

	LogLevel  string
	LogFormat string // auto | console | json
}

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", 8787)
	v.SetDefault("DB_PATH", "data/piptrade.db")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("INGEST_TOKEN", "")
	v.SetDefault("UPSTREAM_BASE_URL", "https://api.binance.com")
	v.SetDefault("SPOT_CACHE_TTL", "20s")
	v.SetDefault("HISTORY_CACHE_TTL", "120s")
	v.SetDefault("UPSTREAM_TIMEOUT", "12s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "auto")

	cfg := Config{
		Port:            v.GetInt("PORT"),
		DBPath:          v.GetString("DB_PATH"),
		CORSOrigins:     splitOrigins(v.GetString("CORS_ORIGINS")),
		IngestToken:     v.GetString("INGEST_TOKEN"),
		UpstreamBaseURL: strings.TrimRight(v.GetString("UPSTREAM_BASE_URL"), "/"),
		SpotCacheTTL:    v.GetDuration("SPOT_CACHE_TTL"),
		HistoryCacheTTL: v.GetDuration("HISTORY_CACHE_TTL"),
		UpstreamTimeout: v.GetDuration("UPSTREAM_TIMEOUT"),
		LogLevel:        v.GetString("LOG_LEVEL"),
		LogFormat:       v.GetString("LOG_FORMAT"),
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the server cannot start with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH must not be empty")
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive")
	}
	return nil
}

// AllowsOrigin reports whether CORS permits the given origin.
func (c Config) AllowsOrigin(origin string) bool {
	for _, o := range c.CORSOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// AllowAnyOrigin reports whether the wildcard origin is configured.
func (c Config) AllowAnyOrigin() bool {
	for _, o := range c.CORSOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func splitOrigins(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}
