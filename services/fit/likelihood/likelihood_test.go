// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package likelihood

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ppdfit/services/fit/data"
	"github.com/AleutianAI/ppdfit/services/fit/grid"
	"github.com/AleutianAI/ppdfit/services/fit/model"
	"github.com/AleutianAI/ppdfit/services/fit/transform"
)

const testWavelength = 10e-6

func ringModel(t *testing.T, radiusMas float64) *model.Composite {
	t.Helper()
	set, err := model.NewRingParams(radiusMas, 0.5, 1.0)
	require.NoError(t, err)
	m, err := model.NewComposite(model.NewRing(set))
	require.NoError(t, err)
	return m
}

func testGrid(t *testing.T) *grid.Grid {
	t.Helper()
	g, err := grid.New(32, 64)
	require.NoError(t, err)
	return g
}

// testSamples covers all four observable kinds at a handful of baselines.
func testSamples(t *testing.T) []data.Sample {
	t.Helper()
	uvAt := func(bx, by float64) grid.UVPoint {
		uv, err := grid.UVFromBaseline(bx, by, testWavelength)
		require.NoError(t, err)
		return uv
	}
	u1 := uvAt(20, 0)
	u2 := uvAt(0, 35)
	samples := []data.Sample{
		{Kind: data.KindFlux, Wavelength: testWavelength, Value: 1, Sigma: 0.05},
		{Kind: data.KindVis, UV: u1, Wavelength: testWavelength, Value: 0.5, Sigma: 0.02},
		{Kind: data.KindVis2, UV: u2, Wavelength: testWavelength, Value: 0.3, Sigma: 0.02},
		{
			Kind:       data.KindClosurePhase,
			Triangle:   [3]grid.UVPoint{u1, u2, u1.Add(u2)},
			Wavelength: testWavelength,
			Value:      0,
			Sigma:      1.0,
		},
	}
	return samples
}

func newEvaluator(t *testing.T, m *model.Composite, cfg Config, samples []data.Sample) *Evaluator {
	t.Helper()
	ds, err := data.New(samples)
	require.NoError(t, err)
	ev, err := New(m, testGrid(t), ds, transform.Direct{}, cfg, nil)
	require.NoError(t, err)
	return ev
}

// synthEvaluator rebuilds the evaluator on noise-free data drawn from its
// own model, so the model vector is the exact maximum of the likelihood.
func synthEvaluator(t *testing.T, m *model.Composite, cfg Config) *Evaluator {
	t.Helper()
	ev := newEvaluator(t, m, cfg, testSamples(t))
	ds, err := Synthesize(context.Background(), ev, testSamples(t), nil)
	require.NoError(t, err)
	out, err := New(m, testGrid(t), ds, transform.Direct{}, cfg, nil)
	require.NoError(t, err)
	return out
}

func TestNew_NilInputs(t *testing.T) {
	ds, err := data.New(testSamples(t))
	require.NoError(t, err)
	g := testGrid(t)
	m := ringModel(t, 2.0)

	_, err = New(nil, g, ds, transform.Direct{}, Config{}, nil)
	assert.ErrorIs(t, err, ErrNilInput)
	_, err = New(m, nil, ds, transform.Direct{}, Config{}, nil)
	assert.ErrorIs(t, err, ErrNilInput)
	_, err = New(m, g, nil, transform.Direct{}, Config{}, nil)
	assert.ErrorIs(t, err, ErrNilInput)
	_, err = New(m, g, ds, nil, Config{}, nil)
	assert.ErrorIs(t, err, ErrNilInput)
}

func TestNew_AliasedDataset(t *testing.T) {
	g := testGrid(t)
	beyond := grid.UVPoint{U: g.MaxFrequency() * 2}
	ds, err := data.New([]data.Sample{
		{Kind: data.KindVis, UV: beyond, Wavelength: testWavelength, Value: 0.5, Sigma: 0.02},
	})
	require.NoError(t, err)

	_, err = New(ringModel(t, 2.0), g, ds, transform.Direct{}, Config{}, nil)
	assert.ErrorIs(t, err, ErrAliasedDataset)
}

func TestEvaluator_DimAndNames(t *testing.T) {
	m := ringModel(t, 2.0)
	ev := newEvaluator(t, m, Config{}, testSamples(t))
	assert.Equal(t, 2, ev.Dim())
	assert.Equal(t, []string{"c1_ring_radius", "c1_ring_pa"}, ev.FreeNames())

	withF := newEvaluator(t, m, Config{FitLnF: true, LnFMin: -10, LnFMax: 1}, testSamples(t))
	assert.Equal(t, 3, withF.Dim())
	assert.Equal(t, "lnf", withF.FreeNames()[2])
}

func TestEvaluator_BoundsAndInitialVector(t *testing.T) {
	m := ringModel(t, 2.0)
	ev := newEvaluator(t, m, Config{}, testSamples(t))

	lo, hi := ev.Bounds()
	assert.Equal(t, []float64{0.1, 0}, lo, "radius and pa lower bounds")
	assert.Equal(t, []float64{10.0, 360}, hi, "radius and pa upper bounds")
	assert.Equal(t, []float64{2.0, 0}, ev.InitialVector())

	withF := newEvaluator(t, m, Config{FitLnF: true, LnFMin: -10, LnFMax: 1}, testSamples(t))
	lo, hi = withF.Bounds()
	require.Len(t, lo, 3)
	assert.Equal(t, -10.0, lo[2])
	assert.Equal(t, 1.0, hi[2])
	assert.Equal(t, -4.5, withF.InitialVector()[2], "lnf starts at the bound midpoint")
}

func TestLogPosterior_OutOfBounds(t *testing.T) {
	ev := newEvaluator(t, ringModel(t, 2.0), Config{}, testSamples(t))

	lp, err := ev.LogPosterior(context.Background(), []float64{-1, 45})
	require.NoError(t, err)
	assert.True(t, math.IsInf(lp, -1))

	lp, err = ev.LogPosterior(context.Background(), []float64{2, 45, 99})
	require.NoError(t, err)
	assert.True(t, math.IsInf(lp, -1), "wrong dimension is out of bounds")
}

func TestLogPosterior_LnFBounds(t *testing.T) {
	cfg := Config{FitLnF: true, LnFMin: -10, LnFMax: 1}
	ev := newEvaluator(t, ringModel(t, 2.0), cfg, testSamples(t))

	lp, err := ev.LogPosterior(context.Background(), []float64{2, 45, 5})
	require.NoError(t, err)
	assert.True(t, math.IsInf(lp, -1))

	lp, err = ev.LogPosterior(context.Background(), []float64{2, 45, -3})
	require.NoError(t, err)
	assert.False(t, math.IsInf(lp, -1))
}

func TestLogPosterior_InvalidGeometryContained(t *testing.T) {
	set, err := model.NewPowerLawDiskParams(1.0, 5.0, 0.5, 0.3)
	require.NoError(t, err)
	m, err := model.NewComposite(model.NewPowerLawDisk(set))
	require.NoError(t, err)
	ev := newEvaluator(t, m, Config{}, testSamples(t))

	// rin = 8 mas is inside its declared bounds but beyond rout = 5 mas.
	lp, err := ev.LogPosterior(context.Background(), []float64{8.0, 0.5})
	require.NoError(t, err, "geometry failures are rejected proposals, not errors")
	assert.True(t, math.IsInf(lp, -1))
}

func TestLogPosterior_TruthBeatsOffsets(t *testing.T) {
	m := ringModel(t, 2.0)
	ev := synthEvaluator(t, m, Config{})
	truth := m.Vector()

	best, err := ev.LogPosterior(context.Background(), truth)
	require.NoError(t, err)
	for _, radius := range []float64{1.0, 3.0, 5.0} {
		lp, err := ev.LogPosterior(context.Background(), []float64{radius, truth[1]})
		require.NoError(t, err)
		assert.Less(t, lp, best, "radius %g should score below the truth", radius)
	}
}

func TestChiSquared_ZeroAtTruth(t *testing.T) {
	m := ringModel(t, 2.0)
	ev := synthEvaluator(t, m, Config{})

	chi2, err := ev.ChiSquared(context.Background(), m.Vector())
	require.NoError(t, err)
	require.Len(t, chi2, 4)
	for k, v := range chi2 {
		assert.InDelta(t, 0, v, 1e-12, "kind %s", k)
	}
}

func TestLogPosterior_KindWeights(t *testing.T) {
	m := ringModel(t, 2.0)
	base := synthEvaluator(t, m, Config{})
	weighted := synthEvaluator(t, m, Config{
		Weights: map[data.Kind]float64{data.KindVis: 3},
	})

	// Away from the truth the visibility residual dominates, so tripling
	// its weight must lower the posterior further.
	off := []float64{3.5, 45}
	lpBase, err := base.LogPosterior(context.Background(), off)
	require.NoError(t, err)
	lpW, err := weighted.LogPosterior(context.Background(), off)
	require.NoError(t, err)
	assert.Less(t, lpW, lpBase)
}

func TestEvaluator_CloneIsIndependent(t *testing.T) {
	ev := synthEvaluator(t, ringModel(t, 2.0), Config{})
	clone := ev.Clone()

	// Evaluating the clone at a different vector must not disturb the
	// original's model state.
	_, err := clone.LogPosterior(context.Background(), []float64{4.0, 10})
	require.NoError(t, err)

	truth := []float64{2.0, 0}
	chi2, err := ev.ChiSquared(context.Background(), truth)
	require.NoError(t, err)
	for _, v := range chi2 {
		assert.InDelta(t, 0, v, 1e-12)
	}
}

func TestLogPosterior_Cancelled(t *testing.T) {
	ev := newEvaluator(t, ringModel(t, 2.0), Config{}, testSamples(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ev.LogPosterior(ctx, []float64{2.0, 45})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSynthesize_NoiseAndDeterminism(t *testing.T) {
	ev := newEvaluator(t, ringModel(t, 2.0), Config{}, testSamples(t))

	clean, err := Synthesize(context.Background(), ev, testSamples(t), nil)
	require.NoError(t, err)
	noisy1, err := Synthesize(context.Background(), ev, testSamples(t), rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	noisy2, err := Synthesize(context.Background(), ev, testSamples(t), rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)

	var moved bool
	for i := 0; i < clean.Len(); i++ {
		assert.Equal(t, noisy1.At(i).Value, noisy2.At(i).Value, "same seed, same noise")
		if noisy1.At(i).Value != clean.At(i).Value {
			moved = true
		}
	}
	assert.True(t, moved, "noise should perturb at least one sample")
}

func TestWrapDeg(t *testing.T) {
	assert.InDelta(t, -20, wrapDeg(340), 1e-12)
	assert.InDelta(t, 20, wrapDeg(-340), 1e-12)
	assert.InDelta(t, 180, wrapDeg(180), 1e-12)
	assert.InDelta(t, 180, wrapDeg(-180), 1e-12)
	assert.InDelta(t, 0, wrapDeg(720), 1e-12)
}
