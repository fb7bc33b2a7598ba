// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ppdfit/services/fit/param"
)

func fptr(v float64) *float64 { return &v }
func bptr(v bool) *bool       { return &v }

func TestConfig_BuildWithOverrides(t *testing.T) {
	cfg := Config{Components: []ComponentConfig{
		{
			Type: "ring",
			Params: map[string]ParamConfig{
				"radius": {Value: fptr(3.5), Min: fptr(1.0), Max: fptr(6.0)},
				"flux":   {Value: fptr(2.0)},
				"pa":     {Free: bptr(false)},
			},
		},
		{Type: "gauss"},
	}}

	m, err := cfg.Build()
	require.NoError(t, err)

	set, err := m.Params()
	require.NoError(t, err)
	radius, err := set.Get("c1_ring_radius")
	require.NoError(t, err)
	assert.Equal(t, 3.5, radius.Value)
	assert.Equal(t, 1.0, radius.Min)
	assert.Equal(t, 6.0, radius.Max)
	assert.True(t, radius.Free)

	assert.Equal(t, 2.0, set.Value("c1_ring_flux"))

	// pa was pinned, so only radius and the gaussian fwhm remain free.
	assert.Equal(t, []string{"c1_ring_radius", "c2_gauss_fwhm"}, m.FreeNames())
}

func TestConfig_BuildErrors(t *testing.T) {
	_, err := Config{}.Build()
	assert.ErrorIs(t, err, ErrEmptyComposite)

	_, err = Config{Components: []ComponentConfig{{Type: "torus"}}}.Build()
	assert.ErrorIs(t, err, ErrInvalidGeometry)

	_, err = Config{Components: []ComponentConfig{{
		Type:   "ring",
		Params: map[string]ParamConfig{"bogus": {Value: fptr(1)}},
	}}}.Build()
	assert.ErrorIs(t, err, param.ErrUnknownName)

	// Overridden value outside its bounds must be rejected by the set.
	_, err = Config{Components: []ComponentConfig{{
		Type:   "ring",
		Params: map[string]ParamConfig{"radius": {Value: fptr(50)}},
	}}}.Build()
	assert.Error(t, err)
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	content := []byte(`
components:
  - type: disk
    params:
      rin:  {value: 1.5}
      rout: {value: 20.0}
  - type: star
`)
	require.NoError(t, os.WriteFile(path, content, 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Components, 2)

	m, err := cfg.Build()
	require.NoError(t, err)
	set, err := m.Params()
	require.NoError(t, err)
	assert.Equal(t, 1.5, set.Value("c1_disk_rin"))
	assert.Equal(t, 20.0, set.Value("c1_disk_rout"))
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
