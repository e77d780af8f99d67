// Package config loads the allocator configuration with priority:
// config file > environment variables > defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Environment variable names honored as fallbacks for file settings.
const (
	EnvAPIKey        = "SIMMER_API_KEY"
	EnvBudget        = "SIMMER_AUTOMATON_BUDGET"
	EnvHorizonDays   = "SIMMER_AUTOMATON_DAYS"
	EnvEpsilon       = "SIMMER_AUTOMATON_EPSILON"
	EnvEpsilonDecay  = "SIMMER_AUTOMATON_EPSILON_DECAY"
	EnvMinEpsilon    = "SIMMER_AUTOMATON_MIN_EPSILON"
	EnvMaxConcurrent = "SIMMER_AUTOMATON_MAX_SKILLS"
	EnvCycleInterval = "SIMMER_AUTOMATON_INTERVAL"
)

// Config is the flat automaton configuration.
type Config struct {
	BudgetUSD        float64 `json:"budget_usd"`
	HorizonDays      int     `json:"horizon_days"`
	Epsilon          float64 `json:"epsilon"`
	EpsilonDecay     float64 `json:"epsilon_decay"`
	MinEpsilon       float64 `json:"min_epsilon"`
	MaxConcurrent    int     `json:"max_concurrent"`
	CycleIntervalSec int     `json:"cycle_interval"`
	InvokeTimeoutSec int     `json:"invoke_timeout,omitempty"`
	SkillsDir        string  `json:"skills_dir,omitempty"`
	APIBaseURL       string  `json:"api_base_url,omitempty"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		BudgetUSD:        50.0,
		HorizonDays:      30,
		Epsilon:          0.2,
		EpsilonDecay:     0.995,
		MinEpsilon:       0.05,
		MaxConcurrent:    2,
		CycleIntervalSec: 300,
		InvokeTimeoutSec: 120,
	}
}

// Dir returns the automaton home directory (~/.automaton), honoring the
// AUTOMATON_HOME override used by tests.
func Dir() (string, error) {
	if dir := os.Getenv("AUTOMATON_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".automaton"), nil
}

// Load reads config.json from the automaton home directory, applying
// env fallbacks and defaults for anything unset. A missing file is not
// an error.
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	return LoadFrom(dir)
}

// LoadFrom reads config.json from the given directory.
func LoadFrom(dir string) (*Config, error) {
	cfg := fromEnv(Defaults())

	path := filepath.Join(dir, "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to config.json in the given directory.
func Save(dir string, cfg *Config) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// APIKey returns the ledger credential from the environment. Empty means
// live cycles cannot run (configuration error at first deployment).
func APIKey() string {
	return os.Getenv(EnvAPIKey)
}

// Set updates a single named parameter, validating key and value type.
func (c *Config) Set(key, value string) error {
	switch key {
	case "budget_usd":
		return setFloat(&c.BudgetUSD, key, value, func(v float64) bool { return v > 0 })
	case "horizon_days":
		return setInt(&c.HorizonDays, key, value, func(v int) bool { return v > 0 })
	case "epsilon":
		return setFloat(&c.Epsilon, key, value, func(v float64) bool { return v >= 0 && v <= 1 })
	case "epsilon_decay":
		return setFloat(&c.EpsilonDecay, key, value, func(v float64) bool { return v > 0 && v <= 1 })
	case "min_epsilon":
		return setFloat(&c.MinEpsilon, key, value, func(v float64) bool { return v >= 0 && v <= 1 })
	case "max_concurrent":
		return setInt(&c.MaxConcurrent, key, value, func(v int) bool { return v > 0 })
	case "cycle_interval":
		return setInt(&c.CycleIntervalSec, key, value, func(v int) bool { return v > 0 })
	case "invoke_timeout":
		return setInt(&c.InvokeTimeoutSec, key, value, func(v int) bool { return v > 0 })
	case "skills_dir":
		c.SkillsDir = value
		return nil
	case "api_base_url":
		c.APIBaseURL = value
		return nil
	default:
		return fmt.Errorf("unknown config key %q (valid: budget_usd, horizon_days, epsilon, epsilon_decay, min_epsilon, max_concurrent, cycle_interval, invoke_timeout, skills_dir, api_base_url)", key)
	}
}

func setFloat(dst *float64, key, value string, valid func(float64) bool) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid value %q for %s: expected number", value, key)
	}
	if !valid(v) {
		return fmt.Errorf("value %v out of range for %s", v, key)
	}
	*dst = v
	return nil
}

func setInt(dst *int, key, value string, valid func(int) bool) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value %q for %s: expected integer", value, key)
	}
	if !valid(v) {
		return fmt.Errorf("value %d out of range for %s", v, key)
	}
	*dst = v
	return nil
}

func fromEnv(cfg *Config) *Config {
	if v, ok := envFloat(EnvBudget); ok {
		cfg.BudgetUSD = v
	}
	if v, ok := envInt(EnvHorizonDays); ok {
		cfg.HorizonDays = v
	}
	if v, ok := envFloat(EnvEpsilon); ok {
		cfg.Epsilon = v
	}
	if v, ok := envFloat(EnvEpsilonDecay); ok {
		cfg.EpsilonDecay = v
	}
	if v, ok := envFloat(EnvMinEpsilon); ok {
		cfg.MinEpsilon = v
	}
	if v, ok := envInt(EnvMaxConcurrent); ok {
		cfg.MaxConcurrent = v
	}
	if v, ok := envInt(EnvCycleInterval); ok {
		cfg.CycleIntervalSec = v
	}
	return cfg
}

func envFloat(name string) (float64, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}
