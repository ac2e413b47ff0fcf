package config

import (
	"testing"

	"globalsig/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Observation.Mass)
	assert.Nil(t, cfg.Observation.Q0)
	assert.Equal(t, 20, cfg.Scan.ExpectedMasses)
	assert.Equal(t, -0.05, cfg.Scan.NegativeTolerance)
	assert.Equal(t, "drop", cfg.Scan.FailurePolicy)
	assert.Equal(t, "asymptotics", cfg.Significance.Method)
	assert.Equal(t, 4.99, cfg.Significance.SaturationSentinel)
	assert.Equal(t, TrialFactorConfig{Min: 10, Max: 21, Start: 15}, cfg.TrialFactor)
	assert.Equal(t, IntervalConfig{Lo: 0.01, Hi: 0.1}, cfg.Interval)
	assert.Equal(t, 8, cfg.Bootstrap.Workers)
	assert.Equal(t, 0, cfg.Bootstrap.Replicates)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("GLOBALSIG_OBSERVED_Z0", "3.0126")
	t.Setenv("GLOBALSIG_OBSERVED_MASS", "1100")
	t.Setenv("GLOBALSIG_METHOD", "toys")
	t.Setenv("GLOBALSIG_TAIL_POLICY", "sqrt")
	t.Setenv("GLOBALSIG_BOOTSTRAPS", "200")
	t.Setenv("GLOBALSIG_WORKERS", "4")
	t.Setenv("GLOBALSIG_SEED", "12345")
	t.Setenv("DATABASE_URL", "postgres://localhost/toys")

	cfg, err := Load()
	require.NoError(t, err)

	q0, ok := cfg.Observation.ObservedQ0()
	require.True(t, ok)
	assert.InDelta(t, 3.0126*3.0126, q0, 1e-12)
	assert.Equal(t, 1100, cfg.Observation.Mass)
	assert.Equal(t, "toys", cfg.Significance.Method)
	assert.Equal(t, "sqrt", cfg.Significance.TailPolicy)
	assert.Equal(t, BootstrapConfig{Replicates: 200, Workers: 4, Seed: 12345}, cfg.Bootstrap)
	assert.Equal(t, "postgres://localhost/toys", cfg.Database.URL)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("GLOBALSIG_TRIAL_MIN", "21")
	t.Setenv("GLOBALSIG_TRIAL_MAX", "10")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
}

func TestLoad_Unparseable(t *testing.T) {
	t.Setenv("GLOBALSIG_TRIAL_MAX", "2l")
	t.Setenv("GLOBALSIG_OBSERVED_Z0", "three")
	t.Setenv("GLOBALSIG_SEED", "0x10")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	assert.Contains(t, err.Error(), `GLOBALSIG_TRIAL_MAX="2l"`)
	assert.Contains(t, err.Error(), `GLOBALSIG_OBSERVED_Z0="three"`)
	assert.Contains(t, err.Error(), `GLOBALSIG_SEED="0x10"`)
}

func TestValidate(t *testing.T) {
	q0, z0 := 9.0, 3.0

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"both observed", func(c *Config) { c.Observation.Q0, c.Observation.Z0 = &q0, &z0 }},
		{"negative observed", func(c *Config) { neg := -1.0; c.Observation.Q0 = &neg }},
		{"positive tolerance", func(c *Config) { c.Scan.NegativeTolerance = 0.1 }},
		{"unknown policy", func(c *Config) { c.Scan.FailurePolicy = "retry" }},
		{"unknown method", func(c *Config) { c.Significance.Method = "bayes" }},
		{"unknown tail", func(c *Config) { c.Significance.TailPolicy = "clip" }},
		{"start outside bounds", func(c *Config) { c.TrialFactor.Start = 30 }},
		{"bracket outside unit", func(c *Config) { c.Interval.Hi = 1.5 }},
		{"bracket inverted", func(c *Config) { c.Interval.Lo = 0.2 }},
		{"no workers", func(c *Config) { c.Bootstrap.Workers = 0 }},
		{"negative bootstraps", func(c *Config) { c.Bootstrap.Replicates = -1 }},
		{"log level", func(c *Config) { c.LogLevel = "LOUD" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestObservedQ0(t *testing.T) {
	_, ok := ObservationConfig{}.ObservedQ0()
	assert.False(t, ok)

	q0 := 4.0
	got, ok := ObservationConfig{Q0: &q0}.ObservedQ0()
	assert.True(t, ok)
	assert.Equal(t, 4.0, got)
}
