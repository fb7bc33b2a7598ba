// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model maps parameter vectors onto 2-D brightness distributions.
//
// Every disk geometry implements the Component contract: given its resolved
// parameter set and an immutable grid, Evaluate produces a brightness map
// in Jy per pixel. Evaluation is pure; the same parameters and grid always
// yield the same map. Physically invalid parameter combinations fail with
// an error wrapping ErrInvalidGeometry, never with silent negative pixels.
//
// New geometries are added by implementing Component, not by subclassing.
package model

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/ppdfit/services/fit/grid"
	"github.com/AleutianAI/ppdfit/services/fit/param"
)

// Component is one additive piece of a disk model.
//
// Thread Safety: A Component owns a mutable parameter set and is NOT safe
// for concurrent use. The sampler hands each worker its own Clone.
type Component interface {
	// ShortName is a lowercase identifier used to namespace parameters.
	ShortName() string

	// Params returns the component's own parameter set. Mutating it
	// (through Apply) changes what the next Evaluate sees.
	Params() *param.Set

	// Clone returns a deep copy with an independent parameter set.
	Clone() Component

	// Evaluate renders the component's brightness on the grid at the
	// given wavelength, in Jy per pixel.
	//
	// Outputs:
	//   - *mat.Dense: Non-negative brightness map, pixels rows x cols.
	//   - error: Wraps ErrInvalidGeometry for unphysical parameters.
	Evaluate(ctx context.Context, g *grid.Grid, wavelengthM float64) (*mat.Dense, error)
}

// applyModulation multiplies brightness by the first-order azimuthal
// modulation 1 + amp*cos(phi - angle) and floors negative pixels at zero.
// amp = 0 leaves the map untouched.
func applyModulation(b, phi *mat.Dense, amp, angleDeg float64) {
	if amp == 0 {
		return
	}
	angle := angleDeg * math.Pi / 180.0
	rows, cols := b.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := b.At(i, j) * (1 + amp*math.Cos(phi.At(i, j)-angle))
			if v < 0 {
				v = 0
			}
			b.Set(i, j, v)
		}
	}
}

// TotalFlux sums a brightness map to the total flux in Jy.
func TotalFlux(b *mat.Dense) float64 {
	rows, cols := b.Dims()
	sum := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			sum += b.At(i, j)
		}
	}
	return sum
}
