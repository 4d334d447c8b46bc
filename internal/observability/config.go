// Package observability provides the collector that records dispatch-core
// and memory-facade activity as Prometheus metrics, plus the bootstrap
// configuration controlling logging level/format, metrics exposure, and
// tracing (spec §4.10).
package observability

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoggingConfig controls the process's structured-log verbosity and shape.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls whether and where Prometheus metrics are exposed.
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// TracingConfig controls distributed tracing export, out of scope for this
// system's core logic (spec Non-goals) but carried as ambient bootstrap
// configuration the way the teacher carries it.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Exporter       string  `yaml:"exporter"`
	JaegerEndpoint string  `yaml:"jaeger_endpoint"`
	SampleRate     float64 `yaml:"sample_rate"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
}

// Config is the observability subsystem's bootstrap configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

type wrapper struct {
	Observability Config `yaml:"observability"`
}

// DefaultConfig returns the observability defaults: info/json logging,
// Prometheus metrics enabled on :9090, tracing disabled with a jaeger
// exporter selected for if it's turned on later.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, PrometheusPort: 9090},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "jaeger",
			SampleRate: 1.0,
		},
	}
}

// LoadConfig reads path as YAML under an `observability:` top-level key and
// merges it over DefaultConfig. A missing file is not an error: the
// defaults are returned unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read observability config %s: %w", path, err)
	}

	w := wrapper{Observability: cfg}
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return Config{}, fmt.Errorf("parse observability config %s: %w", path, err)
	}
	return w.Observability, nil
}

// SaveConfig writes config as YAML to path under an `observability:` key,
// creating any missing parent directory.
func SaveConfig(config Config, path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory %s: %w", dir, err)
		}
	}
	raw, err := yaml.Marshal(wrapper{Observability: config})
	if err != nil {
		return fmt.Errorf("marshal observability config: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write observability config %s: %w", path, err)
	}
	return nil
}
