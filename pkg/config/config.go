// Package config loads runtime configuration for the bill-chain engine from
// environment variables.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"os"
)

// Config holds all configuration for the bill-chain engine.
type Config struct {
	// Service identity
	NodeID   string // this process's identity node_id (hex secp256k1 pubkey)
	LogLevel string

	// Durable storage (optional — an in-memory store is used when empty)
	DatabaseURL         string
	DatabaseMaxOpenConns int
	DatabaseMaxIdleConns int
	DatabaseConnMaxLifetime time.Duration

	// Deadlines (seconds); zero means "use package defaults"
	AcceptDeadlineSeconds  int64
	PaymentDeadlineSeconds int64
	RecourseDeadlineSeconds int64

	// Background loop cadence
	DeadlineScanInterval  time.Duration
	PaymentObserveInterval time.Duration

	// Metrics
	MetricsAddr string
}

// Load reads configuration from environment variables. Only DatabaseURL is
// genuinely optional; everything else has a safe default so a bare `Load()`
// is enough to run the engine against the in-memory stores.
func Load() (*Config, error) {
	cfg := &Config{
		NodeID:   getEnv("NODE_ID", ""),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:             getEnv("DATABASE_URL", ""),
		DatabaseMaxOpenConns:    getEnvInt("DATABASE_MAX_OPEN_CONNS", 25),
		DatabaseMaxIdleConns:    getEnvInt("DATABASE_MAX_IDLE_CONNS", 5),
		DatabaseConnMaxLifetime: getEnvDuration("DATABASE_CONN_MAX_LIFETIME", time.Hour),

		AcceptDeadlineSeconds:   getEnvInt64("ACCEPT_DEADLINE_SECONDS", 0),
		PaymentDeadlineSeconds:  getEnvInt64("PAYMENT_DEADLINE_SECONDS", 0),
		RecourseDeadlineSeconds: getEnvInt64("RECOURSE_DEADLINE_SECONDS", 0),

		DeadlineScanInterval:   getEnvDuration("DEADLINE_SCAN_INTERVAL", time.Minute),
		PaymentObserveInterval: getEnvDuration("PAYMENT_OBSERVE_INTERVAL", 30*time.Second),

		MetricsAddr: getEnv("METRICS_ADDR", "0.0.0.0:9090"),
	}

	return cfg, nil
}

// Validate checks configuration for internal consistency. Unlike the
// durable-storage fields, which are optional, a caller that sets any
// deadline override must set all three — partial overrides are almost
// always a misconfiguration, not a deliberate asymmetry.
func (c *Config) Validate() error {
	var errs []string

	set := 0
	for _, v := range []int64{c.AcceptDeadlineSeconds, c.PaymentDeadlineSeconds, c.RecourseDeadlineSeconds} {
		if v != 0 {
			set++
		}
	}
	if set != 0 && set != 3 {
		errs = append(errs, "ACCEPT_DEADLINE_SECONDS, PAYMENT_DEADLINE_SECONDS and RECOURSE_DEADLINE_SECONDS must all be set together or not at all")
	}
	for _, v := range []int64{c.AcceptDeadlineSeconds, c.PaymentDeadlineSeconds, c.RecourseDeadlineSeconds} {
		if v < 0 {
			errs = append(errs, "deadline overrides must not be negative")
			break
		}
	}

	if c.DatabaseURL != "" && strings.Contains(c.DatabaseURL, "sslmode=disable") {
		errs = append(errs, "DATABASE_URL should not disable TLS outside local development")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
