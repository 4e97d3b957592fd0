package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "forge.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
primary_backend:
  name: ollama
  base_url: http://localhost:11434/v1
  model: mistral
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.True(t, cfg.EpsilonBudget.Unlimited())
	assert.Equal(t, 0.5, cfg.HandoffEpsilon)
	assert.Equal(t, 1.0, cfg.Sensitivity)
	assert.Equal(t, 3, cfg.MaxEvolutionCycles)
	assert.Equal(t, 0.01, cfg.ConvergenceThreshold)
	assert.Equal(t, 60*time.Second, cfg.PerStageTimeout.Std())
	assert.Equal(t, 2, cfg.RetryCount)
	assert.Equal(t, PolicyAbort, cfg.OnBudgetExceeded)
	assert.Nil(t, cfg.FallbackBackend)
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
epsilon_budget: 2.5
handoff_epsilon: 0.25
sensitivity: 1.0
max_evolution_cycles: 5
convergence_threshold: 0.05
per_stage_timeout: 30s
cycle_time_budget: 2m
retry_count: 3
on_budget_exceeded: continue_unprotected
primary_backend:
  name: openai
  model: gpt-4o-mini
  temperature: 0.7
fallback_backend:
  name: ollama
  base_url: http://localhost:11434/v1
  model: mistral
archive:
  addr: localhost:6379
`))
	require.NoError(t, err)

	assert.Equal(t, 2.5, float64(cfg.EpsilonBudget))
	assert.False(t, cfg.EpsilonBudget.Unlimited())
	assert.Equal(t, 5, cfg.MaxEvolutionCycles)
	assert.Equal(t, 30*time.Second, cfg.PerStageTimeout.Std())
	assert.Equal(t, 2*time.Minute, cfg.CycleTimeBudget.Std())
	assert.Equal(t, PolicyContinueUnprotected, cfg.OnBudgetExceeded)
	require.NotNil(t, cfg.FallbackBackend)
	assert.Equal(t, "ollama", cfg.FallbackBackend.Name)
	require.NotNil(t, cfg.Archive)
	assert.Equal(t, "localhost:6379", cfg.Archive.Addr)
}

func TestBudgetUnlimitedString(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
epsilon_budget: unlimited
primary_backend:
  name: ollama
  model: mistral
`))
	require.NoError(t, err)
	assert.True(t, cfg.EpsilonBudget.Unlimited())
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero handoff epsilon", func(c *Config) { c.HandoffEpsilon = 0 }, "handoff_epsilon"},
		{"negative sensitivity", func(c *Config) { c.Sensitivity = -1 }, "sensitivity"},
		{"cycles too low", func(c *Config) { c.MaxEvolutionCycles = 0 }, "max_evolution_cycles"},
		{"cycles too high", func(c *Config) { c.MaxEvolutionCycles = 6 }, "max_evolution_cycles"},
		{"negative threshold", func(c *Config) { c.ConvergenceThreshold = -0.1 }, "convergence_threshold"},
		{"zero retry count", func(c *Config) { c.RetryCount = 0 }, "retry_count"},
		{"unknown budget policy", func(c *Config) { c.OnBudgetExceeded = "panic" }, "on_budget_exceeded"},
		{"missing primary model", func(c *Config) { c.PrimaryBackend.Model = "" }, "primary_backend.model"},
		{
			"fallback shadows primary",
			func(c *Config) { c.FallbackBackend = &Backend{Name: "ollama", Model: "m"} },
			"fallback_backend name",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.PrimaryBackend = Backend{Name: "ollama", Model: "mistral"}
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
per_stage_timeout: soon
primary_backend:
  name: ollama
  model: mistral
`))
	assert.Error(t, err)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("FORGE_TEST_KEY", "sk-secret")

	cfg := Default()
	cfg.PrimaryBackend = Backend{Name: "openai", Model: "gpt-4o-mini", APIKey: "${FORGE_TEST_KEY}"}
	cfg.ExpandEnv()

	assert.Equal(t, "sk-secret", cfg.PrimaryBackend.APIKey)
}
