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
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/ppdfit/services/fit/grid"
	"github.com/AleutianAI/ppdfit/services/fit/param"
)

// Gaussian is a circular (or inclined) Gaussian halo.
//
// Parameters:
//   - fwhm [mas]: full width at half maximum.
//   - flux [Jy]:  total flux.
//   - pa   [deg]: position angle.
//   - elong []:   axis ratio >= 1.
type Gaussian struct {
	params *param.Set
}

// NewGaussian creates the component with the given parameter set.
func NewGaussian(set *param.Set) *Gaussian { return &Gaussian{params: set} }

// NewGaussianParams returns the conventional parameter set with the FWHM
// free and the remaining parameters fixed.
func NewGaussianParams(fwhmMas, fluxJy float64) (*param.Set, error) {
	return param.NewSet(
		param.Parameter{Name: "fwhm", Value: fwhmMas, Min: 0.1, Max: 50, Unit: "mas", Free: true},
		param.Parameter{Name: "flux", Value: fluxJy, Min: 0, Max: 1000, Unit: "Jy"},
		param.Parameter{Name: "pa", Value: 0, Min: 0, Max: 360, Unit: "deg"},
		param.Parameter{Name: "elong", Value: 1, Min: 1, Max: 10},
	)
}

// ShortName implements Component.
func (c *Gaussian) ShortName() string { return "gauss" }

// Params implements Component.
func (c *Gaussian) Params() *param.Set { return c.params }

// Clone implements Component.
func (c *Gaussian) Clone() Component { return &Gaussian{params: c.params.Clone()} }

// Evaluate implements Component.
func (c *Gaussian) Evaluate(ctx context.Context, g *grid.Grid, wavelengthM float64) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fwhm := c.params.Value("fwhm")
	flux := c.params.Value("flux")
	elong := c.params.Value("elong")

	if fwhm <= 0 {
		return nil, fmt.Errorf("%w: fwhm %g mas", ErrInvalidGeometry, fwhm)
	}
	if elong < 1 {
		return nil, fmt.Errorf("%w: axis ratio %g < 1", ErrInvalidGeometry, elong)
	}
	if flux < 0 {
		return nil, fmt.Errorf("%w: negative flux %g Jy", ErrInvalidGeometry, flux)
	}

	proj := grid.Projection{PosAngleDeg: c.params.Value("pa"), AxisRatio: elong}
	radius := g.Radius(proj)

	// Peak surface density normalised so the map integrates to flux.
	// The axis ratio enters through the deprojected radius; the matching
	// Jacobian keeps the total flux independent of inclination.
	fourLn2 := 4 * math.Ln2
	px := g.PixelScale()
	norm := flux * fourLn2 / (math.Pi * fwhm * fwhm) * px * px * elong

	n := g.Pixels()
	b := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			r := radius.At(i, j)
			b.Set(i, j, norm*math.Exp(-fourLn2*r*r/(fwhm*fwhm)))
		}
	}
	return b, nil
}
