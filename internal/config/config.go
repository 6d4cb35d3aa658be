// Package config provides configuration loading for the context memory.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CONTEXTMEM_DATABASE_PATH, CONTEXTMEM_MEMORY_CAPACITY, ...)
//  2. YAML config file
//  3. Hardcoded defaults
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/meridianapps/contextmem/internal/contextmem"
)

// envPrefix is the prefix for environment variable overrides.
const envPrefix = "CONTEXTMEM_"

// Config is the full application configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Logging  LoggingConfig  `koanf:"logging"`
	Memory   MemoryConfig   `koanf:"memory"`
}

// DatabaseConfig configures the SQLite backend.
type DatabaseConfig struct {
	// Path is the SQLite database file; ":memory:" for ephemeral storage.
	Path string `koanf:"path"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// MemoryConfig exposes the retention and decay tunables. The decay curve is
// a policy choice, not a hidden requirement, so every knob is configurable.
type MemoryConfig struct {
	Capacity              int     `koanf:"capacity"`
	StalenessWindowDays   int     `koanf:"staleness_window_days"`
	DecayHalfLifeDays     int     `koanf:"decay_half_life_days"`
	StaleFloor            float64 `koanf:"stale_floor"`
	WeakPatternMinPoints  int     `koanf:"weak_pattern_min_points"`
	WeakPatternMaxAgeDays int     `koanf:"weak_pattern_max_age_days"`
}

// Default returns the built-in defaults.
func Default() *Config {
	p := contextmem.DefaultParams()
	return &Config{
		Database: DatabaseConfig{Path: "contextmem.db"},
		Logging:  LoggingConfig{Level: "info", Format: "console"},
		Memory: MemoryConfig{
			Capacity:              p.Capacity,
			StalenessWindowDays:   int(p.StalenessWindow / (24 * time.Hour)),
			DecayHalfLifeDays:     int(p.DecayHalfLife / (24 * time.Hour)),
			StaleFloor:            p.StaleFloor,
			WeakPatternMinPoints:  p.WeakPatternMinPoints,
			WeakPatternMaxAgeDays: int(p.WeakPatternMaxAge / (24 * time.Hour)),
		},
	}
}

// Load reads configuration from an optional YAML file, then applies
// environment overrides. A missing file is not an error; the defaults stand.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err == nil {
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
			}
		}
	}

	// Environment overrides: CONTEXTMEM_MEMORY_CAPACITY -> memory.capacity.
	// The first underscore after the prefix separates section from field.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.Replace(s, "_", ".", 1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment overrides: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path cannot be empty")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console; got %q", c.Logging.Format)
	}
	if c.Memory.Capacity <= 0 {
		return fmt.Errorf("memory.capacity must be positive; got %d", c.Memory.Capacity)
	}
	if c.Memory.StalenessWindowDays <= 0 {
		return fmt.Errorf("memory.staleness_window_days must be positive; got %d", c.Memory.StalenessWindowDays)
	}
	if c.Memory.DecayHalfLifeDays <= 0 {
		return fmt.Errorf("memory.decay_half_life_days must be positive; got %d", c.Memory.DecayHalfLifeDays)
	}
	if c.Memory.StaleFloor < 0 || c.Memory.StaleFloor > 1 {
		return fmt.Errorf("memory.stale_floor must be in [0,1]; got %v", c.Memory.StaleFloor)
	}
	if c.Memory.WeakPatternMinPoints < 0 {
		return fmt.Errorf("memory.weak_pattern_min_points cannot be negative; got %d", c.Memory.WeakPatternMinPoints)
	}
	if c.Memory.WeakPatternMaxAgeDays <= 0 {
		return fmt.Errorf("memory.weak_pattern_max_age_days must be positive; got %d", c.Memory.WeakPatternMaxAgeDays)
	}
	return nil
}

// Params converts the memory section into engine tunables.
func (c *Config) Params() contextmem.Params {
	return contextmem.Params{
		Capacity:             c.Memory.Capacity,
		StalenessWindow:      time.Duration(c.Memory.StalenessWindowDays) * 24 * time.Hour,
		DecayHalfLife:        time.Duration(c.Memory.DecayHalfLifeDays) * 24 * time.Hour,
		StaleFloor:           c.Memory.StaleFloor,
		WeakPatternMinPoints: c.Memory.WeakPatternMinPoints,
		WeakPatternMaxAge:    time.Duration(c.Memory.WeakPatternMaxAgeDays) * 24 * time.Hour,
	}
}
