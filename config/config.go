// Package config loads the YAML (or JSON) configuration of a message queue
// process and watches it for changes.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Config is the root configuration document.
type Config struct {
	Log      LogConfig      `json:"log"`
	Registry RegistryConfig `json:"registry"`
	Queues   []QueueConfig  `json:"queues"`
	Metrics  MetricsConfig  `json:"metrics"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error or none.
	Level string `json:"level"`
	// Format is console or json.
	Format string `json:"format"`
}

// RegistryConfig configures the timer registry.
type RegistryConfig struct {
	FallbackInterval string `json:"fallback_interval"`
}

// QueueConfig declares one deferred queue driven by its own loop.
type QueueConfig struct {
	Name        string `json:"name"`
	IdleTimeout string `json:"idle_timeout"`
	HistorySize int    `json:"history_size"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled      bool   `json:"enabled"`
	Addr         string `json:"addr"`
	Namespace    string `json:"namespace"`
	PollInterval string `json:"poll_interval"`
}

const (
	DefaultFallbackInterval = 5 * time.Second
	DefaultIdleTimeout      = time.Second
	DefaultPollInterval     = 5 * time.Second
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "console"},
		Registry: RegistryConfig{
			FallbackInterval: DefaultFallbackInterval.String(),
		},
		Queues: []QueueConfig{
			{Name: "logic", IdleTimeout: DefaultIdleTimeout.String()},
		},
		Metrics: MetricsConfig{
			Addr:         ":9090",
			Namespace:    "msgqueue",
			PollInterval: DefaultPollInterval.String(),
		},
	}
}

// Load reads path, overlays it on Default and validates the result.
// Files ending in .yaml or .yml are parsed as YAML, anything else as JSON.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(path, b)
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data (named path for format detection) strictly: unknown
// fields and trailing data are rejected.
func Parse(path string, data []byte) (*Config, error) {
	jb, _, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	// json reuses existing slice elements; file queues must not inherit defaults.
	defaultQueues := cfg.Queues
	cfg.Queues = nil
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	if cfg.Queues == nil {
		cfg.Queues = defaultQueues
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Log.Level) {
	case "", "trace", "debug", "info", "warn", "error", "none":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	if _, err := ParseDurationField("registry.fallback_interval", c.Registry.FallbackInterval); err != nil {
		errs = append(errs, err)
	}

	seen := make(map[string]bool, len(c.Queues))
	for i, q := range c.Queues {
		path := fmt.Sprintf("queues[%d]", i)
		if strings.TrimSpace(q.Name) == "" {
			errs = append(errs, fmt.Errorf("%s.name: required", path))
		} else if seen[q.Name] {
			errs = append(errs, fmt.Errorf("%s.name: duplicate queue %q", path, q.Name))
		}
		seen[q.Name] = true
		if _, err := ParseDurationField(path+".idle_timeout", q.IdleTimeout); err != nil {
			errs = append(errs, err)
		}
		if q.HistorySize < 0 {
			errs = append(errs, fmt.Errorf("%s.history_size: must be >= 0", path))
		}
	}

	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Addr) == "" {
		errs = append(errs, errors.New("metrics.addr: required when metrics are enabled"))
	}
	if _, err := ParseDurationField("metrics.poll_interval", c.Metrics.PollInterval); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Fallback returns the parsed fallback interval or the default.
func (r RegistryConfig) Fallback() time.Duration {
	d, err := ParseDurationOrDefault("registry.fallback_interval", r.FallbackInterval, DefaultFallbackInterval)
	if err != nil {
		return DefaultFallbackInterval
	}
	return d
}

// Idle returns the parsed idle timeout or the default.
func (q QueueConfig) Idle() time.Duration {
	d, err := ParseDurationOrDefault("idle_timeout", q.IdleTimeout, DefaultIdleTimeout)
	if err != nil {
		return DefaultIdleTimeout
	}
	return d
}

// Poll returns the parsed stats poll interval or the default.
func (m MetricsConfig) Poll() time.Duration {
	d, err := ParseDurationOrDefault("metrics.poll_interval", m.PollInterval, DefaultPollInterval)
	if err != nil {
		return DefaultPollInterval
	}
	return d
}
