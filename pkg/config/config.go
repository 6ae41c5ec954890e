// Package config loads server configuration from the environment and tenant
// execution-policy profiles from yaml.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port           string
	LogLevel       string
	DatabasePath   string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	AdminJWTSecret string

	// PlatformBaseURL is the commerce platform root. Connectors hang off
	// {base}/{service} and stock reads off {base}/stock.
	PlatformBaseURL   string
	ConnectorServices []string
	ConnectorAPIKey   string

	LockTTL         time.Duration
	HoldTTL         time.Duration
	AuthzTimeout    time.Duration
	SweepInterval   time.Duration
	StuckAfter      time.Duration
	LockFailOpen    bool
	ProfilePath     string
	OTLPEndpoint    string
	TracingEnabled  bool
	BreakerCoolDown time.Duration
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		Port:            envOr("PORT", "8080"),
		LogLevel:        envOr("LOG_LEVEL", "INFO"),
		DatabasePath:    envOr("DATABASE_PATH", "keel.db"),
		RedisAddr:       envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		AdminJWTSecret:  os.Getenv("ADMIN_JWT_SECRET"),
		ProfilePath:     os.Getenv("TENANT_PROFILE_PATH"),
		OTLPEndpoint:    envOr("OTLP_ENDPOINT", "localhost:4317"),
		TracingEnabled:  os.Getenv("TRACING_ENABLED") == "true",
		LockTTL:         durationOr("LOCK_TTL", 2*time.Minute),
		HoldTTL:         durationOr("HOLD_TTL", 10*time.Minute),
		AuthzTimeout:    durationOr("AUTHZ_TIMEOUT", 5*time.Minute),
		SweepInterval:   durationOr("SWEEP_INTERVAL", time.Minute),
		StuckAfter:      durationOr("STUCK_AFTER", 15*time.Minute),
		BreakerCoolDown: durationOr("BREAKER_COOLDOWN", 30*time.Second),
		LockFailOpen:    envOr("LOCK_FAIL_OPEN", "true") == "true",
	}
	if db, err := strconv.Atoi(envOr("REDIS_DB", "0")); err == nil {
		cfg.RedisDB = db
	}
	cfg.PlatformBaseURL = os.Getenv("PLATFORM_BASE_URL")
	cfg.ConnectorAPIKey = os.Getenv("CONNECTOR_API_KEY")
	if v := os.Getenv("CONNECTOR_SERVICES"); v != "" {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				cfg.ConnectorServices = append(cfg.ConnectorServices, name)
			}
		}
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
