package config

import (
	"fmt"
	"time"
)

// CalibrationConfig holds the current-to-power calibration factors used when
// converting telemetry current readings into energy. Factors differ between
// device families, so the mapping is keyed by the family prefix of the device
// code with a default for families not listed.
type CalibrationConfig struct {
	DefaultFactor float64            `yaml:"defaultFactor"` // Applied when no family override matches
	FamilyFactors map[string]float64 `yaml:"familyFactors"` // Per-family overrides, keyed by device code prefix
}

// familyPrefixLen is the number of leading device-code characters that
// identify a device family/version.
const familyPrefixLen = 8

// FactorFor resolves the calibration factor for a device code.
func (c CalibrationConfig) FactorFor(deviceID string) float64 {
	prefix := deviceID
	if len(prefix) > familyPrefixLen {
		prefix = prefix[:familyPrefixLen]
	}
	if f, ok := c.FamilyFactors[prefix]; ok {
		return f
	}
	return c.DefaultFactor
}

// AvailabilityConfig holds the device availability gate.
type AvailabilityConfig struct {
	Threshold float64 `yaml:"threshold"` // Minimum availability percentage for a device-date to count
}

// QueryConfig holds settings for external query execution.
type QueryConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"maxRetries"`
	RetryDelay  time.Duration `yaml:"retryDelay"`
	Concurrency int           `yaml:"concurrency"` // Bounded worker pool size for query dispatch
}

// OutputConfig holds the output file locations.
type OutputConfig struct {
	Directory        string `yaml:"directory"`
	ConsolidatedFile string `yaml:"consolidatedFile"`
	UnitRollupFile   string `yaml:"unitRollupFile"`
	UnitHourFile     string `yaml:"unitHourFile"`
}

// ObservabilityConfig holds configuration for monitoring the batch run.
type ObservabilityConfig struct {
	MetricsEnabled bool `yaml:"metricsEnabled"`
	MetricsPort    int  `yaml:"metricsPort"`
}

// Config holds all configuration for the consumption pipeline.
type Config struct {
	Calibration   CalibrationConfig   `yaml:"calibration"`
	Availability  AvailabilityConfig  `yaml:"availability"`
	Query         QueryConfig         `yaml:"query"`
	Output        OutputConfig        `yaml:"output"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// Validate performs validation of the configuration
func (c *Config) Validate() error {
	if c.Calibration.DefaultFactor <= 0 {
		return fmt.Errorf("default calibration factor must be positive")
	}
	for family, factor := range c.Calibration.FamilyFactors {
		if factor <= 0 {
			return fmt.Errorf("calibration factor for family %s must be positive", family)
		}
	}

	if c.Availability.Threshold <= 0 || c.Availability.Threshold > 100 {
		return fmt.Errorf("availability threshold must be in (0, 100], got %v", c.Availability.Threshold)
	}

	if c.Query.Timeout <= 0 {
		return fmt.Errorf("query timeout must be positive")
	}
	if c.Query.MaxRetries < 0 {
		return fmt.Errorf("query max retries must not be negative")
	}
	if c.Query.Concurrency < 1 {
		return fmt.Errorf("query concurrency must be at least 1")
	}

	if c.Output.ConsolidatedFile == "" {
		return fmt.Errorf("consolidated output file is required")
	}
	if c.Output.UnitRollupFile == "" {
		return fmt.Errorf("unit rollup output file is required")
	}
	if c.Output.UnitHourFile == "" {
		return fmt.Errorf("unit hour output file is required")
	}

	return nil
}
