package config

import (
	"errors"
	"time"

	"github.com/leslieo2/go-spec-serve/internal/constants"
)

// RateLimitConfig configures the per-client request limiter.
type RateLimitConfig struct {
	Enabled           bool          `json:"enabled" yaml:"enabled"`
	RequestsPerSecond int           `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int           `json:"burst_size" yaml:"burst_size"`
	CleanupInterval   time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
	MaxCacheSize      int           `json:"max_cache_size" yaml:"max_cache_size"`
}

// DefaultRateLimitConfig returns a disabled limiter with sane limits
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           false,
		RequestsPerSecond: 100,
		BurstSize:         200,
		CleanupInterval:   constants.RateLimitCleanupInterval,
		MaxCacheSize:      constants.RateLimitMaxCacheSize,
	}
}

// Validate validates the rate limit configuration
func (r *RateLimitConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	if r.RequestsPerSecond <= 0 {
		return errors.New("requests_per_second must be positive")
	}
	if r.BurstSize <= 0 {
		return errors.New("burst_size must be positive")
	}
	return nil
}

// HotReloadConfig configures reloading of the API document on change.
type HotReloadConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Debounce time.Duration `json:"debounce" yaml:"debounce"`
}

// DefaultHotReloadConfig returns default hot reload configuration
func DefaultHotReloadConfig() HotReloadConfig {
	return HotReloadConfig{
		Enabled:  false,
		Debounce: 500 * time.Millisecond,
	}
}

// Validate validates the hot reload configuration
func (h *HotReloadConfig) Validate() error {
	if h.Enabled && h.Debounce <= 0 {
		return errors.New("debounce must be positive when hot reload is enabled")
	}
	return nil
}
