// Package config provides configuration loading and management for skymapper.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Filter modes accepted by Config.Filter.Mode.
const (
	FilterNone   = "none"
	FilterMean   = "mean"
	FilterMasked = "masked"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Grid parameters define the output sky map geometry, in degrees
	Grid struct {
		// CenterRA and CenterDec locate the middle of the map
		CenterRA  float64 `yaml:"centerRA"`
		CenterDec float64 `yaml:"centerDec"`

		// ExtentRA and ExtentDec are the full angular widths of the map
		ExtentRA  float64 `yaml:"extentRA"`
		ExtentDec float64 `yaml:"extentDec"`

		// ResRA and ResDec are the pixel sizes along each axis
		ResRA  float64 `yaml:"resRA"`
		ResDec float64 `yaml:"resDec"`
	} `yaml:"grid"`

	// Detectors lists the detector identifiers to map
	Detectors []string `yaml:"detectors"`

	// Filter parameters control per-record baseline removal
	Filter struct {
		// Mode is one of "none", "mean" or "masked"
		Mode string `yaml:"mode"`

		// SourceRA and SourceDec locate the masked source for mode "masked"
		SourceRA  float64 `yaml:"sourceRA"`
		SourceDec float64 `yaml:"sourceDec"`

		// Radius is the mask radius in degrees for mode "masked"
		Radius float64 `yaml:"radius"`
	} `yaml:"filter"`

	// Files point at the run inputs
	Files struct {
		// Records is the JSON-lines scan record file
		Records string `yaml:"records"`

		// Offsets is the detector offsets YAML file
		Offsets string `yaml:"offsets"`

		// Calibration is the gain constants YAML file
		Calibration string `yaml:"calibration"`
	} `yaml:"files"`

	// Output parameters
	Output struct {
		// MapImage is the path of the rendered JPEG map; empty disables it
		MapImage string `yaml:"mapImage"`

		// SnapshotEvery writes an intermediary map every N records; 0 disables
		SnapshotEvery int `yaml:"snapshotEvery"`

		// SnapshotDir is the directory for intermediary map images
		SnapshotDir string `yaml:"snapshotDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default grid parameters: a one degree patch at 0.05 degree pixels
	cfg.Grid.ExtentRA = 1.0
	cfg.Grid.ExtentDec = 1.0
	cfg.Grid.ResRA = 0.05
	cfg.Grid.ResDec = 0.05

	// Set default filter parameters
	cfg.Filter.Mode = FilterMean
	cfg.Filter.Radius = 0.25

	// Set default output parameters
	cfg.Output.MapImage = "skymap.jpg"
	cfg.Output.SnapshotDir = "map_snapshots"
	cfg.Output.Verbose = true

	return cfg
}

// Validate checks the parts of the configuration that can be checked without
// touching the filesystem.
func (cfg *Config) Validate() error {
	if len(cfg.Detectors) == 0 {
		return fmt.Errorf("config lists no detectors")
	}
	switch cfg.Filter.Mode {
	case FilterNone, FilterMean:
	case FilterMasked:
		if cfg.Filter.Radius <= 0 {
			return fmt.Errorf("masked filter requires a positive radius, got %g", cfg.Filter.Radius)
		}
	default:
		return fmt.Errorf("unknown filter mode %q (must be %s, %s or %s)",
			cfg.Filter.Mode, FilterNone, FilterMean, FilterMasked)
	}
	if cfg.Output.SnapshotEvery < 0 {
		return fmt.Errorf("snapshotEvery must not be negative, got %d", cfg.Output.SnapshotEvery)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
