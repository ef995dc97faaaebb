// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverBolt   = "bbolt"
)

// Config holds everything the server reads at startup.
type Config struct {
	Addr           string        `env:"EBBFLOW_ADDR"            envDefault:":8080"`
	StoreDriver    string        `env:"EBBFLOW_STORE_DRIVER"    envDefault:"sqlite"`
	StorePath      string        `env:"EBBFLOW_STORE_PATH"      envDefault:"ebbflow.db"`
	LeafSecret     string        `env:"EBBFLOW_LEAF_SECRET"`
	AdminToken     string        `env:"EBBFLOW_ADMIN_TOKEN"`
	RequestTimeout time.Duration `env:"EBBFLOW_REQUEST_TIMEOUT" envDefault:"15s"`
	PurgeInterval  time.Duration `env:"EBBFLOW_PURGE_INTERVAL"  envDefault:"5m"`
	TimeZone       string        `env:"EBBFLOW_TIME_ZONE"       envDefault:"UTC"`
	CORSOrigin     string        `env:"EBBFLOW_CORS_ORIGIN"     envDefault:"*"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite, DriverBolt:
		if strings.TrimSpace(c.StorePath) == "" {
			return fmt.Errorf("config: store path is required for %s", c.StoreDriver)
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.StoreDriver)
	}
	if c.Addr == "" {
		return errors.New("config: listen address is required")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("config: request timeout must be positive")
	}
	if c.PurgeInterval <= 0 {
		return errors.New("config: purge interval must be positive")
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("config: time zone: %w", err)
	}
	return nil
}

// Location returns the zone that defines the day boundary.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
