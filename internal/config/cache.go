package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// CacheConfig defines settings for the Redis response cache placed in front
// of the JSON API.  When Enabled is false or no Redis client is configured,
// caching is disabled.  Methods lists the HTTP methods to cache (GET, HEAD).
// KeyStrategy determines which parts of the request contribute to the cache
// key; Prefix and MaxBodyBytes control namespacing and the largest body that
// is stored.
type CacheConfig struct {
	Enabled      bool          `envconfig:"CACHE_ENABLED" default:"true"`
	MethodList   []string      `envconfig:"CACHE_METHODS" default:"GET"`
	TTL          time.Duration `envconfig:"CACHE_TTL" default:"30s"`
	KeyStrategy  string        `envconfig:"CACHE_KEY_STRATEGY" default:"route_query"`
	Prefix       string        `envconfig:"CACHE_PREFIX" default:"cache"`
	MaxBodyBytes int           `envconfig:"CACHE_MAX_BODY_BYTES" default:"1048576"`

	// Methods is derived from MethodList: upper-cased, blanks dropped.
	Methods map[string]bool `ignored:"true"`
}

// LoadCacheConfig reads the CACHE_* variables.  Defaults are used when
// variables are not set.
func LoadCacheConfig() (CacheConfig, error) {
	var cfg CacheConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return CacheConfig{}, fmt.Errorf("cache config: %w", err)
	}
	cfg.Methods = parseMethods(cfg.MethodList)
	return cfg, nil
}

func parseMethods(list []string) map[string]bool {
	m := map[string]bool{}
	for _, p := range list {
		p = strings.TrimSpace(strings.ToUpper(p))
		if p != "" {
			m[p] = true
		}
	}
	return m
}
