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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fillChain appends n iterations of a 2-walker, 2-dim chain with
// predictable values: walker w at iteration it sits at (it, w) with
// log prob -(it + w).
func fillChain(c *Chain, n int) {
	for it := 0; it < n; it++ {
		pos := []float64{float64(it), 0, float64(it), 1}
		lp := []float64{-float64(it), -float64(it + 1)}
		c.Append(pos, lp, []bool{true, it%2 == 0})
	}
}

func TestChain_AppendAndLast(t *testing.T) {
	c := NewChain(2, 2)
	assert.Equal(t, 0, c.Len())

	_, _, err := c.Last()
	assert.ErrorIs(t, err, ErrNoChain)

	fillChain(c, 3)
	assert.Equal(t, 3, c.Len())

	pos, lp, err := c.Last()
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 0, 2, 1}, pos)
	assert.Equal(t, []float64{-2, -3}, lp)
}

func TestChain_BestTracksHighestPosterior(t *testing.T) {
	c := NewChain(2, 2)
	fillChain(c, 5)

	best, lp, err := c.Best()
	require.NoError(t, err)
	assert.Equal(t, 0.0, lp, "iteration 0, walker 0 has the highest log prob")
	assert.Equal(t, []float64{0, 0}, best)
}

func TestChain_FlatChainShape(t *testing.T) {
	c := NewChain(2, 2)
	fillChain(c, 10)

	flat, err := c.FlatChain(0, 1)
	require.NoError(t, err)
	r, cols := flat.Dims()
	assert.Equal(t, 20, r, "iterations * walkers rows")
	assert.Equal(t, 2, cols)

	burned, err := c.FlatChain(6, 1)
	require.NoError(t, err)
	r, _ = burned.Dims()
	assert.Equal(t, 8, r)
	assert.Equal(t, 6.0, burned.At(0, 0), "first kept row is iteration 6, walker 0")

	thinned, err := c.FlatChain(0, 2)
	require.NoError(t, err)
	r, _ = thinned.Dims()
	assert.Equal(t, 10, r)

	_, err = c.FlatChain(10, 1)
	assert.ErrorIs(t, err, ErrNoChain)
}

func TestChain_PosteriorMean(t *testing.T) {
	c := NewChain(2, 2)
	fillChain(c, 10)

	mean, err := c.PosteriorMean(6)
	require.NoError(t, err)
	assert.InDelta(t, 7.5, mean[0], 1e-12, "mean of iterations 6..9")
	assert.InDelta(t, 0.5, mean[1], 1e-12, "walkers sit at 0 and 1")

	_, err = c.PosteriorMean(10)
	assert.ErrorIs(t, err, ErrNoChain)
}

func TestChain_AcceptanceFraction(t *testing.T) {
	c := NewChain(2, 2)
	fillChain(c, 10)

	af := c.AcceptanceFraction()
	assert.Equal(t, 1.0, af[0])
	assert.Equal(t, 0.5, af[1])
}

func TestChain_SeriesAccessors(t *testing.T) {
	c := NewChain(2, 2)
	fillChain(c, 4)

	assert.Equal(t, []float64{0, 1, 2, 3}, c.WalkerSeries(0, 0))
	assert.Equal(t, []float64{0, 0, 0, 0}, c.WalkerSeries(0, 1))
	assert.Equal(t, []float64{0.5, 0.5, 0.5, 0.5}, c.MeanSeries(1))
}

func TestChain_StateRoundTrip(t *testing.T) {
	c := NewChain(2, 2)
	fillChain(c, 5)

	restored, err := NewChainFromState(c.State())
	require.NoError(t, err)
	assert.Equal(t, c.Len(), restored.Len())
	assert.Equal(t, c.AcceptanceFraction(), restored.AcceptanceFraction())

	pos, lp, err := restored.Last()
	require.NoError(t, err)
	wantPos, wantLP, _ := c.Last()
	assert.Equal(t, wantPos, pos)
	assert.Equal(t, wantLP, lp)

	best, bestLP, err := restored.Best()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, best)
	assert.Equal(t, 0.0, bestLP)
}

func TestNewChainFromState_ShapeMismatch(t *testing.T) {
	c := NewChain(2, 2)
	fillChain(c, 2)

	state := c.State()
	state.Positions = state.Positions[:len(state.Positions)-1]
	_, err := NewChainFromState(state)
	assert.ErrorIs(t, err, ErrConfiguration)
}
