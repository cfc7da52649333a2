// Package config handles configuration loading and management
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openet/core/pkg/interpolate"
	"github.com/openet/core/pkg/raster"
	"github.com/openet/core/pkg/types"
)

// DefaultFileName is the config file looked up under the project root
const DefaultFileName = "openet.config.yaml"

// Manager handles configuration operations
type Manager struct{}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{}
}

// LoadConfig loads configuration from a file
func (m *Manager) LoadConfig(path string) (*types.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return m.ParseConfig(data)
}

// ParseConfig decodes a JSON or YAML document and validates it
func (m *Manager) ParseConfig(data []byte) (*types.Config, error) {
	var cfg types.Config

	// Try JSON first
	if err := json.Unmarshal(data, &cfg); err == nil {
		return m.validateConfig(&cfg)
	}

	// YAML goes through JSON so both formats share the json tags
	var yamlData map[string]interface{}
	if err := yaml.Unmarshal(data, &yamlData); err == nil {
		jsonData, err := json.Marshal(yamlData)
		if err == nil {
			if err := json.Unmarshal(jsonData, &cfg); err == nil {
				return m.validateConfig(&cfg)
			}
		}
	}

	return nil, fmt.Errorf("failed to parse config as JSON or YAML")
}

// SaveConfig writes cfg as YAML
func (m *Manager) SaveConfig(path string, cfg *types.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ValidateConfig validates a configuration
func (m *Manager) ValidateConfig(config *types.Config) error {
	if config.Version != "1.0" {
		return fmt.Errorf("unsupported config version: %s", config.Version)
	}

	if config.Interpolation != nil {
		if err := validateInterpolation(config.Interpolation); err != nil {
			return fmt.Errorf("interpolation: %w", err)
		}
	}

	if config.Reference != nil {
		if err := validateReference(config.Reference); err != nil {
			return fmt.Errorf("reference: %w", err)
		}
	}

	if config.Export != nil {
		if err := validateExport(config.Export); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}

	if config.Storage != nil {
		if err := validateStorage(config.Storage); err != nil {
			return fmt.Errorf("storage: %w", err)
		}
	}

	if s := config.Scheduling; s != nil {
		if s.Parallelization < 1 {
			return fmt.Errorf("scheduling: parallelization must be at least 1")
		}
		if s.MaxRetries < 0 || s.Delay < 0 || s.MaxReady < 0 {
			return fmt.Errorf("scheduling: negative values are not allowed")
		}
	}

	if l := config.Logging; l != nil && l.Level != "" {
		switch l.Level {
		case types.LogLevelDebug, types.LogLevelInfo, types.LogLevelWarn, types.LogLevelError:
		default:
			return fmt.Errorf("logging: invalid level: %s", l.Level)
		}
	}

	return nil
}

// GetDefaultConfig returns a configuration with every section filled in
func (m *Manager) GetDefaultConfig() *types.Config {
	enabled := true
	factor := 1.0

	return &types.Config{
		Version: "1.0",
		Collections: &types.CollectionsConfig{
			Scenes:        "scenes/scenes.parquet",
			Reference:     "reference/eto.parquet",
			ReferenceBand: "eto",
		},
		Interpolation: &types.InterpolationConfig{
			Method:                  interpolate.MethodLinear,
			Days:                    interpolate.DefaultInterpDays,
			UseJoins:                &enabled,
			MaskPartialAggregations: &enabled,
		},
		Reference: &types.ReferenceConfig{
			Band:     "eto",
			Factor:   &factor,
			Resample: raster.ResampleNearest,
		},
		CloudMask: &types.CloudMaskConfig{
			Cirrus: true,
			Dilate: true,
			Shadow: true,
			Snow:   true,
		},
		Ensemble: &types.EnsembleConfig{
			MADeScale: 2,
		},
		Export: &types.ExportConfig{
			StudyAreas:   "features/states.geojson",
			Tiles:        "features/mgrs.geojson",
			CellSize:     30,
			Interval:     string(interpolate.IntervalMonthly),
			Variables:    []string{interpolate.VarET, interpolate.VarETReference, interpolate.VarETFraction, interpolate.VarCount},
			OutputPrefix: "exports",
		},
		Storage: &types.StorageConfig{
			Kind:   types.StorageKindLocal,
			Root:   ".openet/store",
			Bucket: "openet",
		},
		Scheduling: &types.SchedulingConfig{
			Parallelization: 2,
			MaxRetries:      3,
		},
		Notifications: &types.NotificationConfig{
			Enabled: &enabled,
		},
		Watch: &types.WatchConfig{
			Dir:           "scenes",
			Patterns:      []string{"*.parquet"},
			SettlingDelay: 1000,
		},
		Logging: &types.LoggingConfig{
			Level: types.LogLevelInfo,
		},
	}
}

// Private methods

func (m *Manager) validateConfig(cfg *types.Config) (*types.Config, error) {
	if err := m.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateInterpolation(c *types.InterpolationConfig) error {
	if c.Method != "" && c.Method != interpolate.MethodLinear {
		return fmt.Errorf("%w: %s", interpolate.ErrInvalidMethod, c.Method)
	}
	if c.Days <= 0 {
		return interpolate.ErrInvalidDays
	}
	if c.ETFractionMin != nil && c.ETFractionMax != nil && *c.ETFractionMin > *c.ETFractionMax {
		return fmt.Errorf("et_fraction_min %v exceeds et_fraction_max %v", *c.ETFractionMin, *c.ETFractionMax)
	}
	return nil
}

func validateReference(c *types.ReferenceConfig) error {
	if c.Factor != nil && *c.Factor <= 0 {
		return fmt.Errorf("factor must be positive, got %v", *c.Factor)
	}
	if c.Resample != "" && !raster.ValidResample(c.Resample) {
		return fmt.Errorf("%w: %s", interpolate.ErrInvalidResample, c.Resample)
	}
	return nil
}

func validateExport(c *types.ExportConfig) error {
	if _, err := interpolate.ParseTInterval(c.Interval); err != nil {
		return err
	}
	for _, v := range c.Variables {
		known := false
		for _, k := range interpolate.Variables {
			if v == k {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%w: %s", interpolate.ErrInvalidVariable, v)
		}
	}
	if c.StartDate != "" || c.EndDate != "" {
		start, end, err := c.DateRange()
		if err != nil {
			return err
		}
		if !end.After(start) {
			return interpolate.ErrInvalidDateRange
		}
	}
	if c.CellSize < 0 {
		return fmt.Errorf("cell_size must be positive, got %v", c.CellSize)
	}
	return nil
}

func validateStorage(c *types.StorageConfig) error {
	switch c.Kind {
	case types.StorageKindLocal:
	case types.StorageKindS3:
		if c.Endpoint == "" {
			return fmt.Errorf("s3 storage requires an endpoint")
		}
	default:
		return fmt.Errorf("invalid storage kind: %s", c.Kind)
	}
	if c.Bucket == "" {
		return fmt.Errorf("missing bucket")
	}
	return nil
}
