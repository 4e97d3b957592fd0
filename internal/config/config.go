// Package config defines the forge.yml analysis configuration: privacy
// budget, evolution loop bounds, retry policy and inference backends.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level forge.yml configuration.
type Config struct {
	// EpsilonBudget is the cumulative privacy ceiling for a session.
	// "unlimited" (the default) means accounting without enforcement.
	EpsilonBudget Budget `yaml:"epsilon_budget"`

	// HandoffEpsilon is charged once per protected stage handoff.
	HandoffEpsilon float64 `yaml:"handoff_epsilon"`

	// Sensitivity calibrates the Laplace noise scale for all handoffs.
	Sensitivity float64 `yaml:"sensitivity"`

	// MaxEvolutionCycles bounds the refine-and-score loop (1-5).
	MaxEvolutionCycles int `yaml:"max_evolution_cycles"`

	// ConvergenceThreshold stops evolution when the best aggregate score
	// improves by less than this between cycles. Unrelated to the privacy
	// epsilon despite the similar name.
	ConvergenceThreshold float64 `yaml:"convergence_threshold"`

	// PerStageTimeout bounds each individual inference call.
	PerStageTimeout Duration `yaml:"per_stage_timeout"`

	// CycleTimeBudget bounds one whole evolution cycle. Zero disables it.
	CycleTimeBudget Duration `yaml:"cycle_time_budget"`

	// RetryCount is the attempt limit per backend per stage.
	RetryCount int `yaml:"retry_count"`

	// OnBudgetExceeded selects the budget-breach policy:
	// "abort" (default) or "continue_unprotected".
	OnBudgetExceeded string `yaml:"on_budget_exceeded"`

	PrimaryBackend  Backend  `yaml:"primary_backend"`
	FallbackBackend *Backend `yaml:"fallback_backend,omitempty"`

	// Archive enables persisting finished sessions to Redis.
	Archive *ArchiveConfig `yaml:"archive,omitempty"`
}

// Backend identifies one inference endpoint.
type Backend struct {
	Name        string  `yaml:"name"`
	BaseURL     string  `yaml:"base_url,omitempty"` // Empty means the provider default
	APIKey      string  `yaml:"api_key,omitempty"`  // May reference an env var via ${VAR}
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
}

// ArchiveConfig specifies the Redis endpoint for session archival.
type ArchiveConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// Budget is an epsilon ceiling that is either a positive number or the
// string "unlimited".
type Budget float64

// Unlimited reports whether no ceiling is enforced.
func (b Budget) Unlimited() bool {
	return math.IsInf(float64(b), 1)
}

// UnmarshalYAML accepts a float or the string "unlimited".
func (b *Budget) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil && s == "unlimited" {
		*b = Budget(math.Inf(1))
		return nil
	}

	var f float64
	if err := value.Decode(&f); err != nil {
		return fmt.Errorf("epsilon_budget must be a number or \"unlimited\": %w", err)
	}
	*b = Budget(f)
	return nil
}

// Duration wraps time.Duration with YAML decoding of strings like "30s".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Budget-breach policies.
const (
	PolicyAbort               = "abort"
	PolicyContinueUnprotected = "continue_unprotected"
)

// Default returns a configuration with working defaults for every field
// except the backends, which have no sensible default endpoint.
func Default() *Config {
	return &Config{
		EpsilonBudget:        Budget(math.Inf(1)),
		HandoffEpsilon:       0.5,
		Sensitivity:          1.0,
		MaxEvolutionCycles:   3,
		ConvergenceThreshold: 0.01,
		PerStageTimeout:      Duration(60 * time.Second),
		RetryCount:           2,
		OnBudgetExceeded:     PolicyAbort,
	}
}

// Load reads and validates a forge.yml file, applying defaults for
// omitted fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate performs strict validation on the configuration.
func (c *Config) Validate() error {
	if float64(c.EpsilonBudget) <= 0 {
		return fmt.Errorf("epsilon_budget must be positive or \"unlimited\"")
	}

	if c.HandoffEpsilon <= 0 {
		return fmt.Errorf("handoff_epsilon must be positive, got %v", c.HandoffEpsilon)
	}

	if c.Sensitivity < 0 {
		return fmt.Errorf("sensitivity cannot be negative, got %v", c.Sensitivity)
	}

	if c.MaxEvolutionCycles < 1 || c.MaxEvolutionCycles > 5 {
		return fmt.Errorf("max_evolution_cycles must be between 1 and 5, got %d", c.MaxEvolutionCycles)
	}

	if c.ConvergenceThreshold < 0 {
		return fmt.Errorf("convergence_threshold cannot be negative, got %v", c.ConvergenceThreshold)
	}

	if c.PerStageTimeout.Std() <= 0 {
		return fmt.Errorf("per_stage_timeout must be positive")
	}

	if c.CycleTimeBudget.Std() < 0 {
		return fmt.Errorf("cycle_time_budget cannot be negative")
	}

	if c.RetryCount < 1 {
		return fmt.Errorf("retry_count must be at least 1, got %d", c.RetryCount)
	}

	switch c.OnBudgetExceeded {
	case PolicyAbort, PolicyContinueUnprotected:
	default:
		return fmt.Errorf("on_budget_exceeded must be %q or %q, got %q",
			PolicyAbort, PolicyContinueUnprotected, c.OnBudgetExceeded)
	}

	if err := c.PrimaryBackend.validate("primary_backend"); err != nil {
		return err
	}
	if c.FallbackBackend != nil {
		if err := c.FallbackBackend.validate("fallback_backend"); err != nil {
			return err
		}
		if c.FallbackBackend.Name == c.PrimaryBackend.Name {
			return fmt.Errorf("fallback_backend name must differ from primary_backend")
		}
	}

	if c.Archive != nil && c.Archive.Addr == "" {
		return fmt.Errorf("archive.addr cannot be empty when archive is configured")
	}

	return nil
}

func (b *Backend) validate(field string) error {
	if b.Name == "" {
		return fmt.Errorf("%s.name cannot be empty", field)
	}
	if b.Model == "" {
		return fmt.Errorf("%s.model cannot be empty", field)
	}
	if b.Temperature < 0 || b.Temperature > 2 {
		return fmt.Errorf("%s.temperature must be in [0, 2], got %v", field, b.Temperature)
	}
	return nil
}

// ExpandEnv resolves ${VAR} references in API keys from the environment.
func (c *Config) ExpandEnv() {
	c.PrimaryBackend.APIKey = os.ExpandEnv(c.PrimaryBackend.APIKey)
	if c.FallbackBackend != nil {
		c.FallbackBackend.APIKey = os.ExpandEnv(c.FallbackBackend.APIKey)
	}
}
