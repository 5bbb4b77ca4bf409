// Package config handles environment variable loading for ports, database
// strings, worker tuning and auth.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration values for the application.
type Config struct {
	// HTTP server port
	HTTPPort int

	// Database connection string. Empty selects the in-memory store,
	// which is only suitable for development.
	DatabaseURL string

	// Number of concurrent worker loops
	WorkerCount int

	// Capacity of the in-process job queue
	QueueCapacity int

	// Lease protocol tuning
	LeaseDuration      time.Duration
	HeartbeatInterval  time.Duration
	CancelPollInterval time.Duration

	// Reconciler tuning
	CleanupInterval time.Duration
	MaxRetries      int

	// Artificial delay per encode step, for demoing long-running jobs
	EncodeStepDelay time.Duration

	// Basic auth credentials. Empty username disables auth and falls back
	// to the X-User-Id header.
	AuthUsername string
	AuthPassword string

	// Per-user request rate limit. Zero disables limiting.
	RateLimit float64
	RateBurst int

	// OTLP trace collector address. Empty disables tracing.
	OTELEndpoint string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		AuthUsername: os.Getenv("AUTH_USERNAME"),
		AuthPassword: os.Getenv("AUTH_PASSWORD"),
		OTELEndpoint: os.Getenv("OTEL_EXPORTER_ENDPOINT"),
	}

	var err error
	if cfg.HTTPPort, err = intEnv("PORT", 6161); err != nil {
		return nil, err
	}
	if cfg.WorkerCount, err = intEnv("WORKER_COUNT", 2); err != nil {
		return nil, err
	}
	if cfg.QueueCapacity, err = intEnv("QUEUE_CAPACITY", 1000); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = intEnv("MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = intEnv("RATE_BURST", 10); err != nil {
		return nil, err
	}

	if cfg.LeaseDuration, err = durationEnv("LEASE_DURATION", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.HeartbeatInterval, err = durationEnv("HEARTBEAT_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CancelPollInterval, err = durationEnv("CANCEL_POLL_INTERVAL", time.Second); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval, err = durationEnv("CLEANUP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.EncodeStepDelay, err = durationEnv("ENCODE_STEP_DELAY", 0); err != nil {
		return nil, err
	}

	if rateStr := os.Getenv("RATE_LIMIT"); rateStr != "" {
		r, err := strconv.ParseFloat(rateStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT: %w", err)
		}
		cfg.RateLimit = r
	}

	return cfg, nil
}

func intEnv(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return d, nil
}
