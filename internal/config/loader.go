package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/leslieo2/go-spec-serve/internal/constants"
)

// Flag names registered by RegisterFlags
const (
	FlagConfig           = "config"
	FlagSpecFile         = "spec-file"
	FlagHost             = "host"
	FlagPort             = "port"
	FlagMetricsPort      = "metrics-port"
	FlagShutdownTimeout  = "shutdown-timeout"
	FlagDBDriver         = "db-driver"
	FlagDBDSN            = "db-dsn"
	FlagLogLevel         = "log-level"
	FlagLogFormat        = "log-format"
	FlagOpsInterval      = "ops-interval"
	FlagValidateRequests = "validate-requests"
	FlagHotReload        = "hot-reload"
	FlagRateLimitEnabled = "rate-limit-enabled"
)

// RegisterFlags defines the command line flags understood by LoadConfig.
// Flag defaults mirror DefaultConfig, only flags the user sets override
// the other configuration sources.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()

	fs.String(FlagConfig, "", "Path to configuration file (YAML or JSON)")
	fs.String(FlagSpecFile, d.API.SpecFile, "Path to OpenAPI document describing the routes")
	fs.String(FlagHost, d.Server.Address, "Address to listen on")
	fs.String(FlagPort, d.Server.Port, "Port to listen on")
	fs.String(FlagMetricsPort, d.Server.MetricsPort, "Port to run the metrics server on")
	fs.Duration(FlagShutdownTimeout, d.Server.ShutdownTimeout, "Graceful shutdown timeout")
	fs.String(FlagDBDriver, d.Database.Driver, "Database driver: postgres, sqlite")
	fs.String(FlagDBDSN, "", "Database connection string, overrides the discrete database settings")
	fs.String(FlagLogLevel, d.Observability.Logging.Level, "Log level: debug, info, warn, error")
	fs.String(FlagLogFormat, d.Observability.Logging.Format, "Log format: json, console")
	fs.Duration(FlagOpsInterval, d.Observability.Ops.Interval, "Operational sampling interval")
	fs.Bool(FlagValidateRequests, d.API.ValidateRequests, "Validate requests against the OpenAPI document")
	fs.Bool(FlagHotReload, d.HotReload.Enabled, "Reload the OpenAPI document when it changes")
	fs.Bool(FlagRateLimitEnabled, d.RateLimit.Enabled, "Enable per-client rate limiting")
}

// LoadConfig loads configuration with precedence:
// 1. Explicitly set CLI flags (highest priority)
// 2. Environment variables, including a local .env file
// 3. Configuration file values
// 4. Default configuration values (lowest priority)
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	config := DefaultConfig()

	if configFile != "" {
		if err := loadFromFile(configFile, config); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	loadFromEnv(config)

	if flags != nil {
		if err := overrideWithFlags(config, flags); err != nil {
			return nil, fmt.Errorf("failed to read flags: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile decodes a YAML or JSON file on top of config, so keys the file
// leaves out keep their current value.
func loadFromFile(filePath string, config *Config) error {
	if !filepath.IsAbs(filePath) {
		absPath, err := filepath.Abs(filePath)
		if err != nil {
			return fmt.Errorf("failed to get absolute path for %s: %w", filePath, err)
		}
		filePath = absPath
	}

	if err := validateFilePath(filePath); err != nil {
		return fmt.Errorf("invalid config file path %s: %w", filePath, err)
	}

	data, err := os.ReadFile(filePath) // #nosec G304 - file path validated by validateFilePath()
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filePath, err)
	}

	ext := filepath.Ext(filePath)
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	case ".json":
		err = json.Unmarshal(data, config)
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filePath, err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func loadFromEnv(config *Config) {
	// A missing .env file is the normal case outside local development.
	_ = godotenv.Load()

	setString(constants.EnvHost, &config.Server.Address)
	setString(constants.EnvPort, &config.Server.Port)
	setString(constants.EnvMetricsPort, &config.Server.MetricsPort)
	setDuration(constants.EnvReadTimeout, &config.Server.ReadTimeout)
	setDuration(constants.EnvWriteTimeout, &config.Server.WriteTimeout)
	setDuration(constants.EnvIdleTimeout, &config.Server.IdleTimeout)
	setDuration(constants.EnvShutdownTimeout, &config.Server.ShutdownTimeout)
	if val := os.Getenv(constants.EnvMaxRequestSize); val != "" {
		if size, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.Server.MaxRequestSize = size
		}
	}

	setString(constants.EnvSpecFile, &config.API.SpecFile)
	setBool(constants.EnvValidateRequests, &config.API.ValidateRequests)

	setBool(constants.EnvHotReload, &config.HotReload.Enabled)
	setDuration(constants.EnvHotReloadDebounce, &config.HotReload.Debounce)

	setString(constants.EnvLogLevel, &config.Observability.Logging.Level)
	setString(constants.EnvLogFormat, &config.Observability.Logging.Format)
	setDuration(constants.EnvOpsInterval, &config.Observability.Ops.Interval)

	setString(constants.EnvDBDriver, &config.Database.Driver)
	setString(constants.EnvDBDSN, &config.Database.DSN)
	setString(constants.EnvDBHost, &config.Database.Host)
	setString(constants.EnvDBUser, &config.Database.User)
	setString(constants.EnvDBPassword, &config.Database.Password)
	setString(constants.EnvDBName, &config.Database.Name)
	if val := os.Getenv(constants.EnvDBPort); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			config.Database.Port = port
		}
	}

	setBool(constants.EnvRateLimitEnabled, &config.RateLimit.Enabled)
	if val := os.Getenv(constants.EnvRateLimitRPS); val != "" {
		if rps, err := strconv.Atoi(val); err == nil {
			config.RateLimit.RequestsPerSecond = rps
		}
	}
}

func setString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func setDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

// overrideWithFlags applies only the flags that were explicitly set.
func overrideWithFlags(config *Config, fs *pflag.FlagSet) error {
	var err error
	str := func(name string, dst *string) {
		if err == nil && fs.Lookup(name) != nil && fs.Changed(name) {
			*dst, err = fs.GetString(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if err == nil && fs.Lookup(name) != nil && fs.Changed(name) {
			*dst, err = fs.GetBool(name)
		}
	}
	duration := func(name string, dst *time.Duration) {
		if err == nil && fs.Lookup(name) != nil && fs.Changed(name) {
			*dst, err = fs.GetDuration(name)
		}
	}

	str(FlagSpecFile, &config.API.SpecFile)
	str(FlagHost, &config.Server.Address)
	str(FlagPort, &config.Server.Port)
	str(FlagMetricsPort, &config.Server.MetricsPort)
	duration(FlagShutdownTimeout, &config.Server.ShutdownTimeout)
	str(FlagDBDriver, &config.Database.Driver)
	str(FlagDBDSN, &config.Database.DSN)
	str(FlagLogLevel, &config.Observability.Logging.Level)
	str(FlagLogFormat, &config.Observability.Logging.Format)
	duration(FlagOpsInterval, &config.Observability.Ops.Interval)
	boolean(FlagValidateRequests, &config.API.ValidateRequests)
	boolean(FlagHotReload, &config.HotReload.Enabled)
	boolean(FlagRateLimitEnabled, &config.RateLimit.Enabled)

	return err
}

// validateFilePath checks if the file path is safe to read
func validateFilePath(filePath string) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	cleanPath := filepath.Clean(absPath)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains directory traversal attempts")
	}

	return nil
}
