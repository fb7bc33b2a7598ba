// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sampler

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FitConfig contains all sampler-related configuration.
// This is the top-level config struct that can be loaded from files/env.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type FitConfig struct {
	// Run contains ensemble size and budget settings.
	Run RunConfig `json:"run" yaml:"run"`

	// Move contains proposal move settings.
	Move MoveConfig `json:"move" yaml:"move"`

	// Parallel contains parallel execution settings.
	Parallel ParallelConfig `json:"parallel" yaml:"parallel"`

	// Convergence contains convergence diagnostic settings.
	Convergence ConvergenceConfig `json:"convergence" yaml:"convergence"`

	// Checkpoint contains checkpoint settings.
	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint"`

	// Observability contains observability settings.
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// RunConfig contains ensemble size and budget settings.
type RunConfig struct {
	// Walkers is the ensemble size. Must be even and at least twice the
	// search dimension.
	Walkers int `json:"walkers" yaml:"walkers"`

	// MaxIterations caps the run length.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`

	// Seed seeds the sampler's random stream. Runs with equal seed,
	// config and data reproduce bit-identical chains.
	Seed uint64 `json:"seed" yaml:"seed"`

	// InitBallScale is the relative radius of the Gaussian ball the
	// walkers start in, as a fraction of each parameter's bound range.
	InitBallScale float64 `json:"init_ball_scale" yaml:"init_ball_scale"`

	// MaxInitRetries bounds per-walker redraws when the initial position
	// lands at -Inf posterior.
	MaxInitRetries int `json:"max_init_retries" yaml:"max_init_retries"`

	// StallWindow is the number of consecutive iterations with zero
	// accepted proposals tolerated before the run fails.
	StallWindow int `json:"stall_window" yaml:"stall_window"`

	// BurnInFraction is the leading fraction of the chain discarded by
	// posterior summaries. 0 <= f < 1.
	BurnInFraction float64 `json:"burn_in_fraction" yaml:"burn_in_fraction"`
}

// MoveConfig contains proposal move settings.
type MoveConfig struct {
	// StretchScale is the stretch move scale parameter a. Proposals draw
	// z from g(z) ~ 1/sqrt(z) on [1/a, a]. The conventional value is 2.
	StretchScale float64 `json:"stretch_scale" yaml:"stretch_scale"`
}

// ParallelConfig contains parallel execution settings.
type ParallelConfig struct {
	// Workers is the number of concurrent likelihood evaluators.
	// 0 selects runtime.GOMAXPROCS(0).
	Workers int `json:"workers" yaml:"workers"`
}

// ConvergenceConfig contains convergence diagnostic settings.
type ConvergenceConfig struct {
	// CheckInterval is the number of iterations between convergence
	// checks. 0 disables convergence-based stopping.
	CheckInterval int `json:"check_interval" yaml:"check_interval"`

	// MinTauFactor requires the chain length to exceed this multiple of
	// the largest autocorrelation time before declaring convergence.
	MinTauFactor float64 `json:"min_tau_factor" yaml:"min_tau_factor"`

	// TauRelTol is the maximum relative change in the autocorrelation
	// estimate between consecutive checks for it to count as stable.
	TauRelTol float64 `json:"tau_rel_tol" yaml:"tau_rel_tol"`
}

// CheckpointConfig contains checkpoint settings.
type CheckpointConfig struct {
	// Enabled turns periodic checkpointing on.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Interval is the number of iterations between checkpoints.
	Interval int `json:"interval" yaml:"interval"`
}

// ObservabilityConfig contains observability settings.
type ObservabilityConfig struct {
	TracingEnabled bool   `json:"tracing_enabled" yaml:"tracing_enabled"`
	MetricsEnabled bool   `json:"metrics_enabled" yaml:"metrics_enabled"`
	LogLevel       string `json:"log_level" yaml:"log_level"`
	ServiceName    string `json:"service_name" yaml:"service_name"`
}

// DefaultFitConfig returns the default configuration.
//
// Outputs:
//   - FitConfig: Default configuration with sensible values.
func DefaultFitConfig() FitConfig {
	return FitConfig{
		Run: RunConfig{
			Walkers:        32,
			MaxIterations:  5000,
			Seed:           0,
			InitBallScale:  1e-3,
			MaxInitRetries: 100,
			StallWindow:    50,
			BurnInFraction: 0.2,
		},
		Move: MoveConfig{
			StretchScale: 2.0,
		},
		Parallel: ParallelConfig{
			Workers: 0, // GOMAXPROCS
		},
		Convergence: ConvergenceConfig{
			CheckInterval: 100,
			MinTauFactor:  50,
			TauRelTol:     0.01,
		},
		Checkpoint: CheckpointConfig{
			Enabled:  false,
			Interval: 500,
		},
		Observability: ObservabilityConfig{
			TracingEnabled: true,
			MetricsEnabled: true,
			LogLevel:       "info",
			ServiceName:    "ppdfit-sampler",
		},
	}
}

// LoadFitConfig loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - configPath: Path to YAML/JSON config file (optional, can be empty).
//
// Outputs:
//   - FitConfig: Merged configuration.
//   - error: Non-nil if file exists but is invalid.
func LoadFitConfig(configPath string) (FitConfig, error) {
	config := DefaultFitConfig()

	if configPath != "" {
		if err := loadConfigFile(configPath, &config); err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
	}

	loadConfigFromEnv(&config)

	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func loadConfigFile(path string, config *FitConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}

	return nil
}

func loadConfigFromEnv(config *FitConfig) {
	// Run
	if v := os.Getenv("PPDFIT_WALKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Run.Walkers = i
		}
	}
	if v := os.Getenv("PPDFIT_MAX_ITERATIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Run.MaxIterations = i
		}
	}
	if v := os.Getenv("PPDFIT_SEED"); v != "" {
		if u, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Run.Seed = u
		}
	}
	if v := os.Getenv("PPDFIT_INIT_BALL_SCALE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Run.InitBallScale = f
		}
	}
	if v := os.Getenv("PPDFIT_BURN_IN_FRACTION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Run.BurnInFraction = f
		}
	}

	// Move
	if v := os.Getenv("PPDFIT_STRETCH_SCALE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Move.StretchScale = f
		}
	}

	// Parallel
	if v := os.Getenv("PPDFIT_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Parallel.Workers = i
		}
	}

	// Convergence
	if v := os.Getenv("PPDFIT_CHECK_INTERVAL"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Convergence.CheckInterval = i
		}
	}
	if v := os.Getenv("PPDFIT_MIN_TAU_FACTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Convergence.MinTauFactor = f
		}
	}

	// Checkpoint
	if v := os.Getenv("PPDFIT_CHECKPOINT_ENABLED"); v != "" {
		config.Checkpoint.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("PPDFIT_CHECKPOINT_INTERVAL"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			config.Checkpoint.Interval = i
		}
	}

	// Observability
	if v := os.Getenv("PPDFIT_TRACING_ENABLED"); v != "" {
		config.Observability.TracingEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("PPDFIT_METRICS_ENABLED"); v != "" {
		config.Observability.MetricsEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("PPDFIT_LOG_LEVEL"); v != "" {
		config.Observability.LogLevel = v
	}
}

// Validate checks that the configuration is valid.
//
// The ensemble-size-vs-dimension requirement is checked by NewEngine,
// which knows the search dimension.
//
// Outputs:
//   - error: Non-nil if configuration is invalid.
func (c FitConfig) Validate() error {
	if c.Run.Walkers < 4 {
		return fmt.Errorf("%w: walkers must be >= 4", ErrConfiguration)
	}
	if c.Run.Walkers%2 != 0 {
		return fmt.Errorf("%w: walkers must be even for half-ensemble updates", ErrConfiguration)
	}
	if c.Run.MaxIterations < 1 {
		return fmt.Errorf("%w: max_iterations must be >= 1", ErrConfiguration)
	}
	if c.Run.InitBallScale <= 0 || c.Run.InitBallScale > 1 {
		return fmt.Errorf("%w: init_ball_scale must be in (0, 1]", ErrConfiguration)
	}
	if c.Run.MaxInitRetries < 1 {
		return fmt.Errorf("%w: max_init_retries must be >= 1", ErrConfiguration)
	}
	if c.Run.StallWindow < 1 {
		return fmt.Errorf("%w: stall_window must be >= 1", ErrConfiguration)
	}
	if c.Run.BurnInFraction < 0 || c.Run.BurnInFraction >= 1 {
		return fmt.Errorf("%w: burn_in_fraction must be in [0, 1)", ErrConfiguration)
	}
	if c.Move.StretchScale <= 1 {
		return fmt.Errorf("%w: stretch_scale must be > 1", ErrConfiguration)
	}
	if c.Parallel.Workers < 0 {
		return fmt.Errorf("%w: workers must be >= 0", ErrConfiguration)
	}
	if c.Convergence.CheckInterval < 0 {
		return fmt.Errorf("%w: check_interval must be >= 0", ErrConfiguration)
	}
	if c.Convergence.CheckInterval > 0 {
		if c.Convergence.MinTauFactor <= 0 {
			return fmt.Errorf("%w: min_tau_factor must be > 0", ErrConfiguration)
		}
		if c.Convergence.TauRelTol <= 0 {
			return fmt.Errorf("%w: tau_rel_tol must be > 0", ErrConfiguration)
		}
	}
	if c.Checkpoint.Enabled && c.Checkpoint.Interval < 1 {
		return fmt.Errorf("%w: checkpoint interval must be >= 1", ErrConfiguration)
	}
	return nil
}
