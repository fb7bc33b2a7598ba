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
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/ppdfit/services/fit/grid"
	"github.com/AleutianAI/ppdfit/services/fit/param"
)

// Star is the unresolved central photosphere. Its flux is computed from
// the stellar effective temperature, luminosity and distance at the
// requested wavelength, and is split over the four pixels that straddle
// the grid centre so the centroid sits exactly on axis.
//
// Parameters (all conventionally fixed):
//   - teff [K]:    effective temperature.
//   - lum  [Lsun]: luminosity.
//   - dist [pc]:   distance.
type Star struct {
	params *param.Set
}

// NewStar creates the component with the given parameter set.
func NewStar(set *param.Set) *Star { return &Star{params: set} }

// NewStarParams returns the conventional (fully fixed) parameter set.
func NewStarParams(teffK, lumLsun, distPc float64) (*param.Set, error) {
	return param.NewSet(
		param.Parameter{Name: "teff", Value: teffK, Min: 2000, Max: 50000, Unit: "K"},
		param.Parameter{Name: "lum", Value: lumLsun, Min: 0.01, Max: 1e6, Unit: "Lsun"},
		param.Parameter{Name: "dist", Value: distPc, Min: 1, Max: 10000, Unit: "pc"},
	)
}

// ShortName implements Component.
func (s *Star) ShortName() string { return "star" }

// Params implements Component.
func (s *Star) Params() *param.Set { return s.params }

// Clone implements Component.
func (s *Star) Clone() Component { return &Star{params: s.params.Clone()} }

// Evaluate implements Component.
func (s *Star) Evaluate(ctx context.Context, g *grid.Grid, wavelengthM float64) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	teff := s.params.Value("teff")
	lum := s.params.Value("lum")
	dist := s.params.Value("dist")

	if teff <= 0 || lum <= 0 || dist <= 0 {
		return nil, fmt.Errorf("%w: teff %g K, lum %g Lsun, dist %g pc", ErrInvalidGeometry, teff, lum, dist)
	}
	if wavelengthM <= 0 {
		return nil, fmt.Errorf("%w: wavelength %g m", grid.ErrBadWavelength, wavelengthM)
	}

	n := g.Pixels()
	b := mat.NewDense(n, n, nil)
	flux := StellarFluxJy(teff, lum, dist, wavelengthM)
	if n%2 != 0 {
		b.Set(n/2, n/2, flux)
		return b, nil
	}
	// Pixel centres straddle the origin on even grids, so the flux is
	// split over the four central pixels to keep the centroid on axis.
	for _, i := range []int{n/2 - 1, n / 2} {
		for _, j := range []int{n/2 - 1, n / 2} {
			b.Set(i, j, flux/4)
		}
	}
	return b, nil
}
