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

// Ring is a uniform-brightness annulus, optionally inclined and
// azimuthally modulated.
//
// Parameters:
//   - radius [mas]: inner radius of the annulus.
//   - width  [mas]: radial width; the outer radius is radius + width.
//   - flux   [Jy]:  total flux, spread uniformly over the annulus pixels.
//   - pa     [deg]: position angle of the major axis.
//   - elong  []:    axis ratio >= 1 (1 = face-on).
//   - mod_amp []:   azimuthal modulation amplitude, 0..1.
//   - mod_angle [deg]: azimuthal modulation angle.
type Ring struct {
	params *param.Set
}

// NewRing creates a ring component with the given parameter set.
//
// The set must carry the parameters listed on the Ring type; NewRingParams
// builds a conventional one.
func NewRing(set *param.Set) *Ring { return &Ring{params: set} }

// NewRingParams returns the conventional parameter set for a ring, with
// radius and position angle free and everything else fixed.
func NewRingParams(radiusMas, widthMas, fluxJy float64) (*param.Set, error) {
	return param.NewSet(
		param.Parameter{Name: "radius", Value: radiusMas, Min: 0.1, Max: 10.0, Unit: "mas", Free: true},
		param.Parameter{Name: "width", Value: widthMas, Min: 0.01, Max: 10.0, Unit: "mas"},
		param.Parameter{Name: "flux", Value: fluxJy, Min: 0, Max: 1000, Unit: "Jy"},
		param.Parameter{Name: "pa", Value: 0, Min: 0, Max: 360, Unit: "deg", Free: true},
		param.Parameter{Name: "elong", Value: 1, Min: 1, Max: 10},
		param.Parameter{Name: "mod_amp", Value: 0, Min: 0, Max: 1},
		param.Parameter{Name: "mod_angle", Value: 0, Min: 0, Max: 360, Unit: "deg"},
	)
}

// ShortName implements Component.
func (r *Ring) ShortName() string { return "ring" }

// Params implements Component.
func (r *Ring) Params() *param.Set { return r.params }

// Clone implements Component.
func (r *Ring) Clone() Component { return &Ring{params: r.params.Clone()} }

// Evaluate implements Component.
func (r *Ring) Evaluate(ctx context.Context, g *grid.Grid, wavelengthM float64) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rin := r.params.Value("radius")
	width := r.params.Value("width")
	flux := r.params.Value("flux")
	elong := r.params.Value("elong")

	if rin < 0 || width <= 0 {
		return nil, fmt.Errorf("%w: ring radius %g mas, width %g mas", ErrInvalidGeometry, rin, width)
	}
	if elong < 1 {
		return nil, fmt.Errorf("%w: axis ratio %g < 1", ErrInvalidGeometry, elong)
	}
	if flux < 0 {
		return nil, fmt.Errorf("%w: negative flux %g Jy", ErrInvalidGeometry, flux)
	}

	proj := grid.Projection{PosAngleDeg: r.params.Value("pa"), AxisRatio: elong}
	radius := g.Radius(proj)
	rout := rin + width

	n := g.Pixels()
	b := mat.NewDense(n, n, nil)
	count := 0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if rr := radius.At(i, j); rr >= rin && rr < rout {
				b.Set(i, j, 1)
				count++
			}
		}
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: ring [%g, %g) mas on %g mas/px grid", ErrUnresolved, rin, rout, g.PixelScale())
	}
	b.Scale(flux/float64(count), b)

	applyModulation(b, g.PolarAngle(proj), r.params.Value("mod_amp"), r.params.Value("mod_angle"))
	return b, nil
}
