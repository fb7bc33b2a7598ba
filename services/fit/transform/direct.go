// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transform

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/ppdfit/services/fit/grid"
)

// Direct computes the exact discrete Fourier sum at each requested
// frequency:
//
//	V(u,v) = sum_xy B(x,y) exp(-2*pi*i*(u*x + v*y))
//
// with x, y in radians and B in Jy per pixel. Cost is O(pixels^2) per
// frequency; exact at any (u,v), no aliasing restriction.
//
// Thread Safety: Stateless; safe for concurrent use.
type Direct struct{}

// Visibilities implements Transform.
func (Direct) Visibilities(ctx context.Context, b *mat.Dense, g *grid.Grid, uv []grid.UVPoint) ([]complex128, error) {
	if err := checkShape(b, g); err != nil {
		return nil, err
	}
	n := g.Pixels()
	axis := g.Axis()

	// Radian coordinates, shared by rows and columns (square grid).
	coord := make([]float64, n)
	for i, a := range axis {
		coord[i] = a * grid.MasToRad
	}

	out := make([]complex128, len(uv))
	for k, p := range uv {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Separable phase factors keep this O(n^2) per frequency
		// instead of O(n^2) trig calls with two arguments.
		rowPh := make([]complex128, n)
		colPh := make([]complex128, n)
		for i := 0; i < n; i++ {
			s, c := math.Sincos(-2 * math.Pi * p.V * coord[i])
			rowPh[i] = complex(c, s)
			s, c = math.Sincos(-2 * math.Pi * p.U * coord[i])
			colPh[i] = complex(c, s)
		}
		var sum complex128
		for i := 0; i < n; i++ {
			var rowSum complex128
			for j := 0; j < n; j++ {
				if v := b.At(i, j); v != 0 {
					rowSum += complex(v, 0) * colPh[j]
				}
			}
			sum += rowSum * rowPh[i]
		}
		out[k] = sum
	}
	return out, nil
}
