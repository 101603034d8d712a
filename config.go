package goquerycache

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix prefixes every variable read by ConfigFromEnv.
const EnvPrefix = "QUERYCACHE_"

type Config struct {
	// EvictionGrace is how long an entry without subscribers stays cached.
	// An observer that comes back within the window is served from the cache
	// instead of triggering a new fetch.
	EvictionGrace time.Duration `env:"EVICTION_GRACE" envDefault:"60s"`

	BaseURL        string        `env:"BASE_URL"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	// TagGraphFile optionally replaces the built-in invalidation graph of
	// the events API.
	TagGraphFile string `env:"TAG_GRAPH_FILE"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		EvictionGrace:  60 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// ConfigFromEnv loads the configuration from QUERYCACHE_* variables,
// falling back to the defaults for anything unset.
func ConfigFromEnv() (Config, error) {
	var c Config
	if err := env.ParseWithOptions(&c, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}
