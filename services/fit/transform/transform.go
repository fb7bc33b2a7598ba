// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transform converts spatial brightness distributions into
// synthetic interferometric observables.
//
// Observations land at arbitrary (u,v) coordinates, never on an FFT grid,
// so two strategies are provided: Direct computes the exact discrete
// Fourier sum at each requested frequency, and FFT computes a zero-padded
// fast transform and interpolates. Both are linear in brightness and agree
// to interpolation accuracy; Direct is exact and preferred for small
// datasets, FFT wins when the frequency list is long.
package transform

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/ppdfit/services/fit/grid"
)

// Transform computes complex visibilities at the requested spatial
// frequencies from a brightness map in Jy per pixel.
//
// Guarantees: linear in brightness; the zero-frequency visibility equals
// the total flux.
type Transform interface {
	// Visibilities evaluates V(u,v) at every requested frequency.
	//
	// Outputs:
	//   - []complex128: One visibility per uv point, in Jy.
	//   - error: ErrShapeMismatch or ErrFrequencyOutOfRange.
	Visibilities(ctx context.Context, b *mat.Dense, g *grid.Grid, uv []grid.UVPoint) ([]complex128, error)
}

// ClosurePhaseDeg derives the closure phase in degrees from the three
// visibilities of a baseline triangle where uv3 = uv1 + uv2:
// arg(V1 V2 conj(V3)). It vanishes for centro-symmetric brightness.
func ClosurePhaseDeg(v1, v2, v3 complex128) float64 {
	return cmplx.Phase(v1*v2*cmplx.Conj(v3)) * 180.0 / math.Pi
}

// Vis2 returns the squared visibility amplitude normalised by the
// zero-frequency visibility (the total flux).
func Vis2(v, v0 complex128) float64 {
	a0 := cmplx.Abs(v0)
	if a0 == 0 {
		return 0
	}
	a := cmplx.Abs(v) / a0
	return a * a
}

func checkShape(b *mat.Dense, g *grid.Grid) error {
	rows, cols := b.Dims()
	if rows != g.Pixels() || cols != g.Pixels() {
		return fmt.Errorf("%w: map %dx%d, grid %d px", ErrShapeMismatch, rows, cols, g.Pixels())
	}
	return nil
}
