// Package config loads retry, HTTP and logging settings from defaults, an optional
// YAML file and RETRYABLE_* environment variables, in increasing priority.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
// RETRYABLE_RETRY_MAXATTEMPTS maps to retry.maxattempts.
const EnvPrefix = "RETRYABLE_"

// Backoff kinds accepted in retry.backoff.
const (
	BackoffNone        = "none"
	BackoffConstant    = "constant"
	BackoffLinear      = "linear"
	BackoffExponential = "exponential"
)

// Config is the complete configuration of the retryfetch tool.
type Config struct {
	Retry RetryConfig `koanf:"retry"`
	HTTP  HTTPConfig  `koanf:"http"`
	Log   LogConfig   `koanf:"log"`

	k *koanf.Koanf
}

// RetryConfig drives retryable.Controller.
type RetryConfig struct {
	MaxAttempts int           `koanf:"maxattempts" validate:"min=1"`
	Backoff     string        `koanf:"backoff" validate:"oneof=none constant linear exponential"`
	Delay       time.Duration `koanf:"delay" validate:"gte=0s"`
	MaxDelay    time.Duration `koanf:"maxdelay" validate:"gte=0s"`
	Jitter      float64       `koanf:"jitter" validate:"gte=0,lte=1"`
	MaxDuration time.Duration `koanf:"maxduration" validate:"gte=0s"`
	// Timeout cancels the shared signal of a whole invocation; zero disables it.
	Timeout             time.Duration `koanf:"timeout" validate:"gte=0s"`
	PendingOnExhaustion bool          `koanf:"pendingonexhaustion"`
}

// HTTPConfig configures httpretry.Client.
type HTTPConfig struct {
	Timeout                  time.Duration `koanf:"timeout" validate:"gt=0s"`
	RateLimit                float64       `koanf:"ratelimit" validate:"gte=0"`
	RateBurst                int           `koanf:"rateburst" validate:"gte=0"`
	RequestIDHeader          string        `koanf:"requestidheader" validate:"required"`
	RetryOnValidationFailure bool          `koanf:"retryonvalidationfailure"`
}

// LogConfig configures the zerolog logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `koanf:"pretty"`
}

// Load reads configuration with priority:
// 1. Environment variables (highest priority)
// 2. The YAML file at path, when path is not empty
// 3. Default values (lowest priority)
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			// RETRYABLE_RETRY_MAXATTEMPTS -> retry.maxattempts
			key = strings.TrimPrefix(key, EnvPrefix)
			return strings.ReplaceAll(strings.ToLower(key), "_", "."), value
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration Load produces with no file and no environment.
func Default() (*Config, error) {
	k := koanf.New(".")
	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k
	return &cfg, nil
}

// String returns a raw value by its dotted key, such as "retry.backoff".
func (c *Config) String(key string) string {
	if c.k == nil {
		return ""
	}
	return c.k.String(key)
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"retry.maxattempts":         3,
		"retry.backoff":             BackoffNone,
		"retry.delay":               "0s",
		"retry.maxdelay":            "0s",
		"retry.jitter":              0.0,
		"retry.maxduration":         "0s",
		"retry.timeout":             "0s",
		"retry.pendingonexhaustion": false,

		"http.timeout":                  "30s",
		"http.ratelimit":                0.0,
		"http.rateburst":                1,
		"http.requestidheader":          "X-Request-ID",
		"http.retryonvalidationfailure": false,

		"log.level":  "info",
		"log.pretty": false,
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}
