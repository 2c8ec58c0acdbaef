// Package config loads the YAML run configuration.
//
// The file has two sections, database and processor. Processor keys that
// are left out keep their defaults; database values can be overridden from
// the environment (see database.LoadDatabaseConfig).
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"fpdataset/internal/database"
	"fpdataset/internal/grid"
)

// DefaultConfigPath is used when no -config flag is given.
const DefaultConfigPath = "config/db_config.yaml"

// Config is the root of the configuration file.
type Config struct {
	Database  database.DBConfig `yaml:"database"`
	Processor ProcessorConfig   `yaml:"processor"`
}

// ProcessorConfig controls batching and spatial matching.
type ProcessorConfig struct {
	BatchSize            int     `yaml:"batch_size"`
	SpatialMargin        float64 `yaml:"spatial_margin"` // degrees lat/lon
	BuildingPreciseCheck bool    `yaml:"building_precise_check"`
	CellIndexType        string  `yaml:"cell_index_type"`
	CacheEnabled         bool    `yaml:"cache_enabled"`
	CacheSize            int     `yaml:"cache_size"`
	BuildingSearch       bool    `yaml:"building_search"`
	GridLevel            int     `yaml:"grid_level"`

	// Optional shapefile with building polygons, keyed by FootprintUIDField.
	Footprints        string `yaml:"footprints"`
	FootprintUIDField string `yaml:"footprint_uid_field"`
}

// DefaultProcessorConfig returns the processor defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		BatchSize:            1000,
		SpatialMargin:        0.01,
		BuildingPreciseCheck: true,
		CellIndexType:        "btree",
		CacheEnabled:         true,
		CacheSize:            1000,
		BuildingSearch:       false,
		GridLevel:            grid.DefaultLevel,
		FootprintUIDField:    "UID",
	}
}

// Load reads the YAML file at path, applies environment overrides to the
// database section and validates the result.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg := &Config{Processor: DefaultProcessorConfig()}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %q: %w", path, err)
	}

	cfg.Database = database.LoadDatabaseConfig(cfg.Database)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	return c.Processor.Validate()
}

// Validate checks the processor section.
func (p ProcessorConfig) Validate() error {
	if p.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", p.BatchSize)
	}
	if p.SpatialMargin < 0 {
		return fmt.Errorf("spatial_margin must be non-negative, got %f", p.SpatialMargin)
	}
	if p.CacheEnabled && p.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive when cache_enabled, got %d", p.CacheSize)
	}
	if p.GridLevel < 1 {
		return fmt.Errorf("grid_level must be at least 1, got %d", p.GridLevel)
	}
	switch p.CellIndexType {
	case "btree", "hash":
	default:
		return fmt.Errorf("cell_index_type must be btree or hash, got %q", p.CellIndexType)
	}
	if p.Footprints != "" && p.FootprintUIDField == "" {
		return fmt.Errorf("footprint_uid_field is required when footprints is set")
	}
	return nil
}
