// Package config loads the JSON simulation configuration. All fields are
// pointers so a partial file only overrides what it names; the Get* accessors
// supply defaults for everything else. Calibration parameters are NOT
// configured here; they arrive per evaluation as a parameter vector.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/crowd.report/internal/units"
)

// SimConfig represents the fixed (non-calibrated) simulation settings.
// The same JSON schema is accepted by every binary's -config flag.
type SimConfig struct {
	// Timing
	SampleInterval         *string  `json:"sample_interval,omitempty"`          // duration string like "500ms"
	HeadingRefreshInterval *string  `json:"heading_refresh_interval,omitempty"` // duration string like "200ms"
	SimulationSpeed        *float64 `json:"simulation_speed,omitempty"`         // 0 = free run (no wall-clock pacing)

	// Agent body
	AgentRadius *float64 `json:"agent_radius,omitempty"` // metres

	// Neighborhood query
	ObstacleBuffer *float64 `json:"obstacle_buffer,omitempty"` // metres
	GridCellSize   *float64 `json:"grid_cell_size,omitempty"`  // metres

	// Output
	OutputDir        *string `json:"output_dir,omitempty"`
	SpeedUnits       *string `json:"speed_units,omitempty"` // mps, kmph, kph, mph
	WorstAgentCharts *int    `json:"worst_agent_charts,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptySimConfig returns a SimConfig with all fields set to nil, so every
// accessor answers with its default.
func EmptySimConfig() *SimConfig {
	return &SimConfig{}
}

// LoadSimConfig loads a SimConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadSimConfig(path string) (*SimConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptySimConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *SimConfig) Validate() error {
	if c.SampleInterval != nil && *c.SampleInterval != "" {
		d, err := time.ParseDuration(*c.SampleInterval)
		if err != nil {
			return fmt.Errorf("invalid sample_interval '%s': %w", *c.SampleInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("sample_interval must be positive, got %s", d)
		}
	}

	if c.HeadingRefreshInterval != nil && *c.HeadingRefreshInterval != "" {
		d, err := time.ParseDuration(*c.HeadingRefreshInterval)
		if err != nil {
			return fmt.Errorf("invalid heading_refresh_interval '%s': %w", *c.HeadingRefreshInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("heading_refresh_interval must be positive, got %s", d)
		}
	}

	if c.SimulationSpeed != nil && *c.SimulationSpeed < 0 {
		return fmt.Errorf("simulation_speed must be non-negative, got %f", *c.SimulationSpeed)
	}

	if c.AgentRadius != nil && *c.AgentRadius <= 0 {
		return fmt.Errorf("agent_radius must be positive, got %f", *c.AgentRadius)
	}

	if c.ObstacleBuffer != nil && *c.ObstacleBuffer < 0 {
		return fmt.Errorf("obstacle_buffer must be non-negative, got %f", *c.ObstacleBuffer)
	}

	if c.GridCellSize != nil && *c.GridCellSize <= 0 {
		return fmt.Errorf("grid_cell_size must be positive, got %f", *c.GridCellSize)
	}

	if c.SpeedUnits != nil && !units.IsValid(*c.SpeedUnits) {
		return fmt.Errorf("speed_units must be one of %s, got %q", units.GetValidUnitsString(), *c.SpeedUnits)
	}

	if c.WorstAgentCharts != nil && *c.WorstAgentCharts < 0 {
		return fmt.Errorf("worst_agent_charts must be non-negative, got %d", *c.WorstAgentCharts)
	}

	return nil
}

// GetSampleInterval parses and returns the SampleInterval as a time.Duration.
func (c *SimConfig) GetSampleInterval() time.Duration {
	if c.SampleInterval == nil || *c.SampleInterval == "" {
		return 500 * time.Millisecond // default: 2 Hz capture data
	}
	d, err := time.ParseDuration(*c.SampleInterval)
	if err != nil {
		return 500 * time.Millisecond // default on parse error
	}
	return d
}

// GetHeadingRefreshInterval parses and returns the HeadingRefreshInterval as a time.Duration.
func (c *SimConfig) GetHeadingRefreshInterval() time.Duration {
	if c.HeadingRefreshInterval == nil || *c.HeadingRefreshInterval == "" {
		return 200 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.HeadingRefreshInterval)
	if err != nil {
		return 200 * time.Millisecond // default on parse error
	}
	return d
}

// GetSimulationSpeed returns the simulation_speed value or the default.
// Zero means free run: the tick loop never sleeps.
func (c *SimConfig) GetSimulationSpeed() float64 {
	if c.SimulationSpeed == nil {
		return 0
	}
	return *c.SimulationSpeed
}

// GetAgentRadius returns the agent_radius value or the default.
func (c *SimConfig) GetAgentRadius() float64 {
	if c.AgentRadius == nil {
		return 0.25
	}
	return *c.AgentRadius
}

// GetObstacleBuffer returns the obstacle_buffer value or the default.
func (c *SimConfig) GetObstacleBuffer() float64 {
	if c.ObstacleBuffer == nil {
		return 0.1
	}
	return *c.ObstacleBuffer
}

// GetGridCellSize returns the grid_cell_size value or the default.
func (c *SimConfig) GetGridCellSize() float64 {
	if c.GridCellSize == nil {
		return 2.0
	}
	return *c.GridCellSize
}

// GetOutputDir returns the output_dir value or the default.
func (c *SimConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "output"
	}
	return *c.OutputDir
}

// GetSpeedUnits returns the speed_units value or the default.
func (c *SimConfig) GetSpeedUnits() string {
	if c.SpeedUnits == nil || !units.IsValid(*c.SpeedUnits) {
		return units.MPS
	}
	return *c.SpeedUnits
}

// GetWorstAgentCharts returns the worst_agent_charts value or the default.
func (c *SimConfig) GetWorstAgentCharts() int {
	if c.WorstAgentCharts == nil {
		return 5
	}
	return *c.WorstAgentCharts
}
