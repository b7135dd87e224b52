package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// RateLimit bounds request rates for one route key.
type RateLimit struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// AuthConfig controls bearer-token verification on the read gateway.
type AuthConfig struct {
	Enabled    bool   `yaml:"enabled"`
	HMACSecret string `yaml:"hmac_secret"`
	Issuer     string `yaml:"issuer"`
	Audience   string `yaml:"audience"`
}

// Config captures the runtime configuration for the read-only gateway.
type Config struct {
	ListenAddress string               `yaml:"listen"`
	Auth          AuthConfig           `yaml:"auth"`
	RateLimits    map[string]RateLimit `yaml:"rate_limits"`
	ClockSkew     Duration             `yaml:"clock_skew"`
}

// Default returns a permissive local configuration.
func Default() Config {
	return Config{
		ListenAddress: "127.0.0.1:8080",
		RateLimits: map[string]RateLimit{
			"policies": {RequestsPerMinute: 600, Burst: 50},
			"balances": {RequestsPerMinute: 600, Burst: 50},
		},
	}
}

// Load reads a YAML gateway configuration, falling back to defaults when the
// path is empty.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse gateway config: %w", err)
	}
	if cfg.Auth.Enabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return Config{}, fmt.Errorf("gateway auth enabled without hmac_secret")
	}
	return cfg, nil
}
