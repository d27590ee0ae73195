// Package config provides configuration loading and management for fpgranules.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"fpgranules/pkg/pipeline"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Run parameters
	Run struct {
		// Date labels every output row and names the output directories
		Date string `yaml:"date"`

		// Prominences are the maxima-detection tolerances to run; 0 disables a slot
		Prominences []int `yaml:"prominences"`

		// SourceDir holds the two-channel input images
		SourceDir string `yaml:"sourceDir"`

		// DestDir receives one output directory per prominence
		DestDir string `yaml:"destDir"`

		// Extension filters input files, e.g. "tif"
		Extension string `yaml:"extension"`

		// Workers analyse images concurrently when greater than 1
		Workers int `yaml:"workers"`
	} `yaml:"run"`

	// Preprocessing parameters
	Preprocess struct {
		// Sigma is the Gaussian blur radius applied to the phase-contrast channel
		Sigma float64 `yaml:"sigma"`

		// Accuracy controls where the Gaussian kernel is truncated
		Accuracy float64 `yaml:"accuracy"`

		// BoundaryBallRadius is the rolling-ball radius for the phase-contrast channel
		BoundaryBallRadius float64 `yaml:"boundaryBallRadius"`

		// SignalBallRadius is the rolling-ball radius for the fluorescence channel
		SignalBallRadius float64 `yaml:"signalBallRadius"`
	} `yaml:"preprocess"`

	// Segmentation parameters
	Segmentation struct {
		MinArea int `yaml:"minArea"`
		MaxArea int `yaml:"maxArea"`
	} `yaml:"segmentation"`

	// Output parameters
	Output struct {
		// SQLitePath additionally stores the tables in a database when set
		SQLitePath string `yaml:"sqlitePath"`

		// Plot saves a bar chart of pct_foci_cell per prominence
		Plot bool `yaml:"plot"`

		// SpreadsheetDateGuard prefixes dates with a blank in the CSV tables
		SpreadsheetDateGuard bool `yaml:"spreadsheetDateGuard"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		Level   string `yaml:"level"`
		Console bool   `yaml:"console"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Run.Prominences = []int{50}
	cfg.Run.Extension = "tif"
	cfg.Run.Workers = 1

	cfg.Preprocess.Sigma = 1
	cfg.Preprocess.Accuracy = 0.01
	cfg.Preprocess.BoundaryBallRadius = 25
	cfg.Preprocess.SignalBallRadius = 10

	cfg.Segmentation.MinArea = 400
	cfg.Segmentation.MaxArea = 3000

	cfg.Output.SpreadsheetDateGuard = true

	cfg.Logging.Level = "info"
	cfg.Logging.Console = true

	return cfg
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

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

// ParseProminences reads a comma separated list such as "50,100,0"
func ParseProminences(s string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		p, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid prominence %q", f)
		}
		out = append(out, p)
	}
	return out, nil
}

// Validate checks the values a run depends on and reports every problem found
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Run.Date) == "" {
		errs = append(errs, errors.New("run.date is required"))
	}
	if c.Run.SourceDir == "" {
		errs = append(errs, errors.New("run.sourceDir is required"))
	}
	if c.Run.DestDir == "" {
		errs = append(errs, errors.New("run.destDir is required"))
	}
	if len(c.Run.Prominences) > pipeline.MaxProminences {
		errs = append(errs, fmt.Errorf("at most %d prominences allowed, got %d", pipeline.MaxProminences, len(c.Run.Prominences)))
	}
	for _, p := range c.Run.Prominences {
		if p < 0 {
			errs = append(errs, fmt.Errorf("prominence %d is negative", p))
		}
	}
	if c.Run.Workers < 0 {
		errs = append(errs, fmt.Errorf("run.workers must not be negative"))
	}
	if c.Preprocess.Sigma <= 0 || c.Preprocess.Accuracy <= 0 || c.Preprocess.Accuracy >= 1 {
		errs = append(errs, errors.New("preprocess.sigma must be positive and accuracy in (0, 1)"))
	}
	if c.Preprocess.BoundaryBallRadius <= 0 || c.Preprocess.SignalBallRadius <= 0 {
		errs = append(errs, errors.New("rolling-ball radii must be positive"))
	}
	if c.Segmentation.MinArea < 1 || c.Segmentation.MaxArea < c.Segmentation.MinArea {
		errs = append(errs, fmt.Errorf("invalid area window [%d, %d]", c.Segmentation.MinArea, c.Segmentation.MaxArea))
	}
	return errors.Join(errs...)
}
