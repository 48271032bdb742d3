package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leslieo2/go-spec-serve/internal/constants"
)

// ObservabilityConfig contains observability-related configuration
type ObservabilityConfig struct {
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Ops     OpsConfig     `json:"ops" yaml:"ops"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	Format      string `json:"format" yaml:"format"`
	Output      string `json:"output" yaml:"output"`
	Development bool   `json:"development" yaml:"development"`
	// Buffered puts a flushing buffer between the logger and its sink so that
	// request goroutines never wait on the write.
	Buffered bool `json:"buffered" yaml:"buffered"`
}

// OpsConfig configures the operational monitor.
type OpsConfig struct {
	Interval  time.Duration    `json:"interval" yaml:"interval"`
	Reporters []ReporterConfig `json:"reporters" yaml:"reporters"`
}

// ReporterConfig names an output sink and the event kinds it receives.
// An empty Events list, like "*", subscribes to every kind.
type ReporterConfig struct {
	Name   string   `json:"name" yaml:"name"`
	Events []string `json:"events" yaml:"events"`
}

// MetricsConfig contains Prometheus configuration
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

// TracingConfig contains OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	ServiceName string `json:"service_name" yaml:"service_name"`
	Version     string `json:"version" yaml:"version"`
	Environment string `json:"environment" yaml:"environment"`
}

// DefaultObservabilityConfig returns default observability configuration
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Logging: DefaultLoggingConfig(),
		Ops:     DefaultOpsConfig(),
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    constants.PathMetrics,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "go-spec-serve",
			Version:     "1.0.0",
			Environment: "production",
		},
	}
}

// DefaultLoggingConfig returns default logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:       "info",
		Format:      "json",
		Output:      "stdout",
		Development: false,
	}
}

// DefaultOpsConfig samples every second. The console only receives log and
// response events, ops samples only land in the prometheus gauges.
func DefaultOpsConfig() OpsConfig {
	return OpsConfig{
		Interval: constants.DefaultOpsInterval,
		Reporters: []ReporterConfig{
			{Name: constants.ReporterConsole, Events: []string{constants.EventLog, constants.EventResponse}},
			{Name: constants.ReporterPrometheus, Events: []string{constants.EventOps, constants.EventResponse}},
		},
	}
}

// Validate validates the observability configuration
func (o *ObservabilityConfig) Validate() error {
	var errs []error

	if err := o.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	if err := o.Ops.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("ops: %w", err))
	}
	if o.Metrics.Enabled && !strings.HasPrefix(o.Metrics.Path, "/") {
		errs = append(errs, errors.New("metrics.path must start with /"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Validate validates the logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(l.Level)] {
		return fmt.Errorf("invalid level: %s, must be one of: debug, info, warn, error", l.Level)
	}

	validFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validFormats[strings.ToLower(l.Format)] {
		return fmt.Errorf("invalid format: %s, must be one of: json, console", l.Format)
	}

	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}
	return nil
}

// Validate validates the ops configuration. Reporter names are resolved at
// startup, only their shape is checked here.
func (o *OpsConfig) Validate() error {
	if o.Interval <= 0 {
		return errors.New("interval must be positive")
	}

	validEvents := map[string]bool{
		constants.EventOps: true, constants.EventResponse: true, constants.EventLog: true,
	}
	seen := make(map[string]bool, len(o.Reporters))
	for _, r := range o.Reporters {
		if r.Name == "" {
			return errors.New("reporter name cannot be empty")
		}
		if seen[r.Name] {
			return fmt.Errorf("reporter %q configured twice", r.Name)
		}
		seen[r.Name] = true
		for _, e := range r.Events {
			if e != "*" && !validEvents[e] {
				return fmt.Errorf("reporter %q: invalid event %q, must be one of: ops, response, log, *", r.Name, e)
			}
		}
	}
	return nil
}
