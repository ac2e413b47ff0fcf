package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"globalsig/domain/significance"
	"globalsig/domain/toys"
	"globalsig/internal/errors"
	"globalsig/internal/logging"
)

// Config represents the complete analysis configuration
type Config struct {
	Observation  ObservationConfig
	Scan         ScanConfig
	Significance SignificanceConfig
	TrialFactor  TrialFactorConfig
	Interval     IntervalConfig
	Bootstrap    BootstrapConfig
	Database     DatabaseConfig
	LogLevel     string
}

// ObservationConfig holds the observed excess. At most one of Q0 and Z0 is set.
type ObservationConfig struct {
	Q0   *float64
	Z0   *float64
	Mass int
}

// ScanConfig holds the mass-scan data handling settings
type ScanConfig struct {
	ExpectedMasses    int
	NegativeTolerance float64
	FailurePolicy     string
}

// SignificanceConfig holds local significance settings
type SignificanceConfig struct {
	Method             string
	TailPolicy         string
	SaturationSentinel float64
}

// TrialFactorConfig holds the bounds and start value of the trial-factor fit
type TrialFactorConfig struct {
	Min   float64
	Max   float64
	Start float64
}

// IntervalConfig holds the default root bracket of the binomial interval
type IntervalConfig struct {
	Lo float64
	Hi float64
}

// BootstrapConfig holds bootstrap settings; zero replicates disables the bootstrap
type BootstrapConfig struct {
	Replicates int
	Workers    int
	Seed       int64
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL string
}

// Default returns the configuration with every default applied
func Default() *Config {
	return &Config{
		Observation: ObservationConfig{Mass: 1000},
		Scan: ScanConfig{
			ExpectedMasses:    20,
			NegativeTolerance: toys.DefaultNegativeTolerance,
			FailurePolicy:     string(toys.FailureDrop),
		},
		Significance: SignificanceConfig{
			Method:             string(significance.MethodAsymptotics),
			TailPolicy:         string(significance.TailSentinel),
			SaturationSentinel: significance.DefaultSaturationSentinel,
		},
		TrialFactor: TrialFactorConfig{
			Min:   significance.DefaultTrialFactorMin,
			Max:   significance.DefaultTrialFactorMax,
			Start: significance.DefaultTrialFactorStart,
		},
		Interval: IntervalConfig{
			Lo: significance.DefaultIntervalBracket.Lo,
			Hi: significance.DefaultIntervalBracket.Hi,
		},
		Bootstrap: BootstrapConfig{Workers: 8},
		LogLevel:  "INFO",
	}
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	d := Default()
	env := &envReader{}
	cfg := &Config{
		Observation: ObservationConfig{
			Q0:   env.floatPtr("GLOBALSIG_OBSERVED_Q0"),
			Z0:   env.floatPtr("GLOBALSIG_OBSERVED_Z0"),
			Mass: env.intOr("GLOBALSIG_OBSERVED_MASS", d.Observation.Mass),
		},
		Scan: ScanConfig{
			ExpectedMasses:    env.intOr("GLOBALSIG_EXPECTED_MASSES", d.Scan.ExpectedMasses),
			NegativeTolerance: env.floatOr("GLOBALSIG_NEGATIVE_TOLERANCE", d.Scan.NegativeTolerance),
			FailurePolicy:     getEnvOrDefault("GLOBALSIG_FAILURE_POLICY", d.Scan.FailurePolicy),
		},
		Significance: SignificanceConfig{
			Method:             getEnvOrDefault("GLOBALSIG_METHOD", d.Significance.Method),
			TailPolicy:         getEnvOrDefault("GLOBALSIG_TAIL_POLICY", d.Significance.TailPolicy),
			SaturationSentinel: env.floatOr("GLOBALSIG_SATURATION_SENTINEL", d.Significance.SaturationSentinel),
		},
		TrialFactor: TrialFactorConfig{
			Min:   env.floatOr("GLOBALSIG_TRIAL_MIN", d.TrialFactor.Min),
			Max:   env.floatOr("GLOBALSIG_TRIAL_MAX", d.TrialFactor.Max),
			Start: env.floatOr("GLOBALSIG_TRIAL_START", d.TrialFactor.Start),
		},
		Interval: IntervalConfig{
			Lo: env.floatOr("GLOBALSIG_INTERVAL_LO", d.Interval.Lo),
			Hi: env.floatOr("GLOBALSIG_INTERVAL_HI", d.Interval.Hi),
		},
		Bootstrap: BootstrapConfig{
			Replicates: env.intOr("GLOBALSIG_BOOTSTRAPS", d.Bootstrap.Replicates),
			Workers:    env.intOr("GLOBALSIG_WORKERS", d.Bootstrap.Workers),
			Seed:       env.int64Or("GLOBALSIG_SEED", d.Bootstrap.Seed),
		},
		Database: DatabaseConfig{
			URL: getEnvOrDefault("DATABASE_URL", ""),
		},
		LogLevel: getEnvOrDefault("LOG_LEVEL", d.LogLevel),
	}

	if len(env.invalid) > 0 {
		return nil, errors.ConfigInvalid("unparseable environment values: " + strings.Join(env.invalid, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

// Validate rejects inconsistent settings
func (c *Config) Validate() error {
	if c.Observation.Q0 != nil && c.Observation.Z0 != nil {
		return errors.ConfigInvalid("set only one of GLOBALSIG_OBSERVED_Q0 and GLOBALSIG_OBSERVED_Z0")
	}
	if c.Observation.Q0 != nil && *c.Observation.Q0 < 0 {
		return errors.ConfigInvalid(fmt.Sprintf("observed q0 must be non-negative, got %g", *c.Observation.Q0))
	}
	if c.Observation.Mass <= 0 {
		return errors.ConfigInvalid("observed mass must be positive")
	}
	if c.Scan.ExpectedMasses < 0 {
		return errors.ConfigInvalid("expected mass count must not be negative")
	}
	if c.Scan.NegativeTolerance > 0 {
		return errors.ConfigInvalid(fmt.Sprintf("negative tolerance must be <= 0, got %g", c.Scan.NegativeTolerance))
	}
	if _, err := toys.ParseFailurePolicy(c.Scan.FailurePolicy); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if _, err := significance.ParseMethod(c.Significance.Method); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if _, err := significance.ParseTailPolicy(c.Significance.TailPolicy); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	if !(c.TrialFactor.Min > 0 && c.TrialFactor.Min < c.TrialFactor.Max) {
		return errors.ConfigInvalid(fmt.Sprintf("trial factor bounds [%g, %g] are invalid", c.TrialFactor.Min, c.TrialFactor.Max))
	}
	if c.TrialFactor.Start < c.TrialFactor.Min || c.TrialFactor.Start > c.TrialFactor.Max {
		return errors.ConfigInvalid(fmt.Sprintf("trial factor start %g is outside [%g, %g]",
			c.TrialFactor.Start, c.TrialFactor.Min, c.TrialFactor.Max))
	}
	if !(c.Interval.Lo > 0 && c.Interval.Lo < c.Interval.Hi && c.Interval.Hi < 1) {
		return errors.ConfigInvalid(fmt.Sprintf("interval bracket (%g, %g) must lie inside (0, 1)", c.Interval.Lo, c.Interval.Hi))
	}
	if c.Bootstrap.Replicates < 0 {
		return errors.ConfigInvalid("bootstrap replicates must not be negative")
	}
	if c.Bootstrap.Workers <= 0 {
		return errors.ConfigInvalid("bootstrap workers must be positive")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, err)
	}
	return nil
}

// ObservedQ0 resolves the observed test statistic, squaring a significance when only Z0 is given
func (o ObservationConfig) ObservedQ0() (float64, bool) {
	switch {
	case o.Q0 != nil:
		return *o.Q0, true
	case o.Z0 != nil:
		return *o.Z0 * *o.Z0, true
	}
	return 0, false
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed environment values and records every key that is
// set but does not parse
type envReader struct {
	invalid []string
}

func (r *envReader) reject(key, value string) {
	r.invalid = append(r.invalid, fmt.Sprintf("%s=%q", key, value))
}

func (r *envReader) intOr(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.Atoi(value)
		if err != nil {
			r.reject(key, value)
			return defaultValue
		}
		return intValue
	}
	return defaultValue
}

func (r *envReader) int64Or(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			r.reject(key, value)
			return defaultValue
		}
		return intValue
	}
	return defaultValue
}

func (r *envReader) floatOr(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			r.reject(key, value)
			return defaultValue
		}
		return floatValue
	}
	return defaultValue
}

func (r *envReader) floatPtr(key string) *float64 {
	if value := os.Getenv(key); value != "" {
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			r.reject(key, value)
			return nil
		}
		return &floatValue
	}
	return nil
}
