// Package config provides configuration loading and management for fmriqa.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Scrubbing parameters (Power et al.)
	Scrub struct {
		// FDThreshold is the framewise displacement above which a timepoint is a candidate
		FDThreshold float64 `yaml:"fdThreshold"`

		// DVARSThreshold is the DVARS value above which a timepoint is a candidate
		DVARSThreshold float64 `yaml:"dvarsThreshold"`

		// NBack is the number of timepoints before a candidate that are also scrubbed
		NBack int `yaml:"nBack"`

		// NForward is the number of timepoints after a candidate that are also scrubbed
		NForward int `yaml:"nForward"`
	} `yaml:"scrub"`

	// Spike detection parameters
	Spike struct {
		// AJKZThreshold is the absolute jackknife Z above which a timepoint is a spike
		AJKZThreshold float64 `yaml:"ajkzThreshold"`
	} `yaml:"spike"`

	// Motion parameters
	Motion struct {
		// HeadRadius is the sphere radius in mm used to turn rotations into displacements
		HeadRadius float64 `yaml:"headRadius"`
	} `yaml:"motion"`

	// Spectrum parameters for the mean-signal PSD
	Spectrum struct {
		// NFFT is the segment length of the Welch estimate
		NFFT int `yaml:"nfft"`

		// Overlap is the number of samples shared by consecutive segments
		Overlap int `yaml:"overlap"`
	} `yaml:"spectrum"`

	// Output parameters
	Output struct {
		// Plot controls whether the PNG figures are rendered
		Plot bool `yaml:"plot"`

		// SaveSFNR controls whether the voxel-wise SFNR volume is written
		SaveSFNR bool `yaml:"saveSFNR"`

		// MosaicColumns is the number of tiles per row in slice mosaics
		MosaicColumns int `yaml:"mosaicColumns"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Scrub.FDThreshold = 0.5
	cfg.Scrub.DVARSThreshold = 0.5
	cfg.Scrub.NBack = 1
	cfg.Scrub.NForward = 2

	cfg.Spike.AJKZThreshold = 25

	cfg.Motion.HeadRadius = 50

	cfg.Spectrum.NFFT = 128
	cfg.Spectrum.Overlap = 96

	cfg.Output.Plot = true
	cfg.Output.SaveSFNR = true
	cfg.Output.MosaicColumns = 6
	cfg.Output.Verbose = false

	return cfg
}

// Validate checks that the values can drive a QA run
func (c *Config) Validate() error {
	if c.Scrub.NBack < 0 || c.Scrub.NForward < 0 {
		return fmt.Errorf("scrub window must be non-negative, got nBack=%d nForward=%d",
			c.Scrub.NBack, c.Scrub.NForward)
	}
	if c.Motion.HeadRadius <= 0 {
		return fmt.Errorf("head radius must be positive, got %g", c.Motion.HeadRadius)
	}
	if c.Spectrum.NFFT < 2 {
		return fmt.Errorf("spectrum nfft must be at least 2, got %d", c.Spectrum.NFFT)
	}
	if c.Spectrum.Overlap < 0 || c.Spectrum.Overlap >= c.Spectrum.NFFT {
		return fmt.Errorf("spectrum overlap must be in [0, nfft), got %d", c.Spectrum.Overlap)
	}
	if c.Output.MosaicColumns < 1 {
		return fmt.Errorf("mosaic columns must be positive, got %d", c.Output.MosaicColumns)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		return cfg, nil
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

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
