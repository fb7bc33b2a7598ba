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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFitConfig_IsValid(t *testing.T) {
	cfg := DefaultFitConfig()
	assert.NoError(t, cfg.Validate())
}

func TestFitConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*FitConfig)
	}{
		{"too few walkers", func(c *FitConfig) { c.Run.Walkers = 2 }},
		{"odd walkers", func(c *FitConfig) { c.Run.Walkers = 33 }},
		{"no iterations", func(c *FitConfig) { c.Run.MaxIterations = 0 }},
		{"zero init ball", func(c *FitConfig) { c.Run.InitBallScale = 0 }},
		{"oversized init ball", func(c *FitConfig) { c.Run.InitBallScale = 2 }},
		{"no init retries", func(c *FitConfig) { c.Run.MaxInitRetries = 0 }},
		{"no stall window", func(c *FitConfig) { c.Run.StallWindow = 0 }},
		{"negative burn-in", func(c *FitConfig) { c.Run.BurnInFraction = -0.1 }},
		{"burn-in at one", func(c *FitConfig) { c.Run.BurnInFraction = 1 }},
		{"stretch scale at one", func(c *FitConfig) { c.Move.StretchScale = 1 }},
		{"negative workers", func(c *FitConfig) { c.Parallel.Workers = -1 }},
		{"negative check interval", func(c *FitConfig) { c.Convergence.CheckInterval = -1 }},
		{"zero tau factor", func(c *FitConfig) { c.Convergence.MinTauFactor = 0 }},
		{"checkpoint without interval", func(c *FitConfig) {
			c.Checkpoint.Enabled = true
			c.Checkpoint.Interval = 0
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultFitConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrConfiguration)
		})
	}
}

func TestLoadFitConfig_Defaults(t *testing.T) {
	cfg, err := LoadFitConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultFitConfig(), cfg)
}

func TestLoadFitConfig_FromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fit.yaml")
	content := []byte(`
run:
  walkers: 64
  max_iterations: 2000
move:
  stretch_scale: 1.5
convergence:
  check_interval: 200
`)
	require.NoError(t, os.WriteFile(path, content, 0600))

	cfg, err := LoadFitConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Run.Walkers)
	assert.Equal(t, 2000, cfg.Run.MaxIterations)
	assert.Equal(t, 1.5, cfg.Move.StretchScale)
	assert.Equal(t, 200, cfg.Convergence.CheckInterval)
	// Untouched sections keep defaults.
	assert.Equal(t, DefaultFitConfig().Run.StallWindow, cfg.Run.StallWindow)
}

func TestLoadFitConfig_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  walkers: 64\n"), 0600))

	t.Setenv("PPDFIT_WALKERS", "128")
	t.Setenv("PPDFIT_SEED", "42")
	t.Setenv("PPDFIT_CHECKPOINT_ENABLED", "true")

	cfg, err := LoadFitConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Run.Walkers)
	assert.Equal(t, uint64(42), cfg.Run.Seed)
	assert.True(t, cfg.Checkpoint.Enabled)
}

func TestLoadFitConfig_InvalidFileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fit.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  walkers: 3\n"), 0600))

	_, err := LoadFitConfig(path)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestLoadFitConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFitConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultFitConfig(), cfg)
}
