package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// Degenerate range policies for the inverse projection error map.
const (
	// PolicyError surfaces ErrDegenerateRange to the caller.
	PolicyError = "error"
	// PolicyZero substitutes an all-zero map and logs the substitution.
	PolicyZero = "zero"
)

// TuningConfig holds the parameters for boundary map generation and error
// estimation. Nil fields fall back to the defaults returned by the Get*
// methods, so partial files are safe.
type TuningConfig struct {
	// Error estimation
	NeighborhoodSize *int    `json:"neighborhood_size,omitempty"`
	Workers          *int    `json:"workers,omitempty"`
	DegeneratePolicy *string `json:"degenerate_policy,omitempty"`

	// Map generation
	Resolution *int `json:"resolution,omitempty"`

	// Persistence
	DatabasePath *string `json:"database_path,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The path must have a .json extension and the file must be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents up to the repository root.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *TuningConfig) Validate() error {
	if c.NeighborhoodSize != nil && *c.NeighborhoodSize <= 1 {
		return fmt.Errorf("neighborhood_size must be greater than 1, got %d", *c.NeighborhoodSize)
	}
	if c.Workers != nil && *c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", *c.Workers)
	}
	if c.Resolution != nil && *c.Resolution <= 0 {
		return fmt.Errorf("resolution must be positive, got %d", *c.Resolution)
	}
	if c.Resolution != nil && c.NeighborhoodSize != nil &&
		*c.Resolution**c.Resolution < *c.NeighborhoodSize {
		return fmt.Errorf("resolution %d yields fewer cells than neighborhood_size %d",
			*c.Resolution, *c.NeighborhoodSize)
	}
	if c.DegeneratePolicy != nil {
		switch *c.DegeneratePolicy {
		case PolicyError, PolicyZero:
		default:
			return fmt.Errorf("degenerate_policy must be %q or %q, got %q",
				PolicyError, PolicyZero, *c.DegeneratePolicy)
		}
	}
	return nil
}

// GetNeighborhoodSize returns K for trustworthiness or the default.
func (c *TuningConfig) GetNeighborhoodSize() int {
	if c.NeighborhoodSize == nil {
		return 8
	}
	return *c.NeighborhoodSize
}

// GetWorkers returns the worker bound or the default (0, one per CPU).
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 0
	}
	return *c.Workers
}

// GetDegeneratePolicy returns the degenerate range policy or the default.
func (c *TuningConfig) GetDegeneratePolicy() string {
	if c.DegeneratePolicy == nil || *c.DegeneratePolicy == "" {
		return PolicyError
	}
	return *c.DegeneratePolicy
}

// GetResolution returns the sampling grid side length or the default.
func (c *TuningConfig) GetResolution() int {
	if c.Resolution == nil {
		return 256
	}
	return *c.Resolution
}

// GetDatabasePath returns the SQLite path or "" when persistence is off.
func (c *TuningConfig) GetDatabasePath() string {
	if c.DatabasePath == nil {
		return ""
	}
	return *c.DatabasePath
}
