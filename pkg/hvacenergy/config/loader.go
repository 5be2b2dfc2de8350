package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
	"k8s.io/klog/v2"
)

// Default returns the built-in configuration. The default calibration factor
// and availability threshold match the values observed in production
// telemetry calibration.
func Default() *Config {
	return &Config{
		Calibration: CalibrationConfig{
			DefaultFactor: 310.86,
			FamilyFactors: map[string]float64{},
		},
		Availability: AvailabilityConfig{
			Threshold: 75,
		},
		Query: QueryConfig{
			Timeout:     30 * time.Second,
			MaxRetries:  3,
			RetryDelay:  1 * time.Second,
			Concurrency: 4,
		},
		Output: OutputConfig{
			Directory:        "output",
			ConsolidatedFile: "consumption_consolidated.csv",
			UnitRollupFile:   "consumption_aggregated_by_unit.csv",
			UnitHourFile:     "consumption_unit_hours.csv",
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: false,
			MetricsPort:    9090,
		},
	}
}

// Load builds the effective configuration: defaults, overlaid by the YAML
// file at path (when non-empty), overlaid by environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %v", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	klog.V(2).InfoS("Loaded configuration",
		"defaultFactor", cfg.Calibration.DefaultFactor,
		"familyOverrides", len(cfg.Calibration.FamilyFactors),
		"availabilityThreshold", cfg.Availability.Threshold,
		"queryConcurrency", cfg.Query.Concurrency,
		"maxRetries", cfg.Query.MaxRetries)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.Calibration.DefaultFactor = getFloatOrDefault("CALIBRATION_DEFAULT_FACTOR", cfg.Calibration.DefaultFactor)
	cfg.Availability.Threshold = getFloatOrDefault("AVAILABILITY_THRESHOLD", cfg.Availability.Threshold)
	cfg.Query.Timeout = getDurationOrDefault("QUERY_TIMEOUT", cfg.Query.Timeout)
	cfg.Query.MaxRetries = getIntOrDefault("QUERY_MAX_RETRIES", cfg.Query.MaxRetries)
	cfg.Query.RetryDelay = getDurationOrDefault("QUERY_RETRY_DELAY", cfg.Query.RetryDelay)
	cfg.Query.Concurrency = getIntOrDefault("QUERY_CONCURRENCY", cfg.Query.Concurrency)
	cfg.Output.Directory = getEnvOrDefault("OUTPUT_DIRECTORY", cfg.Output.Directory)
	cfg.Observability.MetricsEnabled = getBoolOrDefault("METRICS_ENABLED", cfg.Observability.MetricsEnabled)
	cfg.Observability.MetricsPort = getIntOrDefault("METRICS_PORT", cfg.Observability.MetricsPort)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if strValue := os.Getenv(key); strValue != "" {
		if value, err := strconv.Atoi(strValue); err == nil {
			return value
		}
		klog.V(2).InfoS("Invalid integer value, using default",
			"key", key,
			"value", strValue,
			"default", defaultValue)
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if strValue := os.Getenv(key); strValue != "" {
		if value, err := strconv.ParseFloat(strValue, 64); err == nil {
			return value
		}
		klog.V(2).InfoS("Invalid float value, using default",
			"key", key,
			"value", strValue,
			"default", defaultValue)
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if strValue := os.Getenv(key); strValue != "" {
		value, err := strconv.ParseBool(strValue)
		if err == nil {
			return value
		}
		klog.V(2).InfoS("Invalid boolean value, using default",
			"key", key,
			"value", strValue,
			"default", defaultValue)
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if strValue := os.Getenv(key); strValue != "" {
		if value, err := time.ParseDuration(strValue); err == nil {
			return value
		}
		klog.V(2).InfoS("Invalid duration value, using default",
			"key", key,
			"value", strValue,
			"default", defaultValue)
	}
	return defaultValue
}
