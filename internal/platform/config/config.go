// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// # Configuration Schema

// Config holds all runtime configuration for the Tempora API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// SigningKey is the HMAC secret for access and refresh tokens.
	SigningKey string `env:"SIGNING_KEY,required"`

	// Token lifetimes
	AccessTTLSeconds  int `env:"ACCESS_TTL_SECONDS"  envDefault:"900"`
	RefreshTTLSeconds int `env:"REFRESH_TTL_SECONDS" envDefault:"604800"`

	// Request rate limiting (per origin IP, sliding minute window)
	RateLimitGeneralPerMin int `env:"RATE_LIMIT_GENERAL_PER_MIN" envDefault:"60"`
	RateLimitAuthPerMin    int `env:"RATE_LIMIT_AUTH_PER_MIN"    envDefault:"5"`

	// Login lockout
	LoginLockThreshold     int `env:"LOGIN_LOCK_THRESHOLD"      envDefault:"5"`
	LoginLockWindowSeconds int `env:"LOGIN_LOCK_WINDOW_SECONDS" envDefault:"900"`

	// Realtime channel
	WSIdleTimeoutSeconds int `env:"WS_IDLE_TIMEOUT_SECONDS" envDefault:"90"`
	WSOutboundQueueCap   int `env:"WS_OUTBOUND_QUEUE_CAP"   envDefault:"256"`

	// PasswordHashParams optionally overrides the argon2id cost profile,
	// formatted as "m=<KiB>,t=<iterations>,p=<parallelism>".
	PasswordHashParams string `env:"PASSWORD_HASH_PARAMS"`

	// Cross-Origin Resource Sharing
	ExtraOrigins string `env:"EXTRA_ORIGINS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	return cfg, nil
}

// # Derived Durations

// AccessTTL returns the access-token lifetime as a duration.
func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTTLSeconds) * time.Second
}

// RefreshTTL returns the refresh-token lifetime as a duration.
func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTTLSeconds) * time.Second
}

// LoginLockWindow returns the lockout counter TTL as a duration.
func (c *Config) LoginLockWindow() time.Duration {
	return time.Duration(c.LoginLockWindowSeconds) * time.Second
}

// WSIdleTimeout returns the realtime idle deadline as a duration.
func (c *Config) WSIdleTimeout() time.Duration {
	return time.Duration(c.WSIdleTimeoutSeconds) * time.Second
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
