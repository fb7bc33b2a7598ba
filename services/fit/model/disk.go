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

// PowerLawDisk is a temperature-gradient disk: a power-law temperature
// profile anchored at the inner rim, a power-law optical depth, and Planck
// emission attenuated by (1 - exp(-tau)) per pixel.
//
// Parameters:
//   - rin  [mas]: inner rim radius (usually the sublimation radius).
//   - rout [mas]: outer truncation radius. Must exceed rin.
//   - q    []:    temperature power-law exponent, T(r) = tsub (r/rin)^-q.
//   - p    []:    optical-depth power-law exponent, tau(r) = tau0 (r/rin)^-p.
//   - tau0 []:    optical depth at the inner rim, 0..1 for thin disks.
//   - tsub [K]:   inner rim temperature, conventionally ~1500 K.
//   - pa   [deg]: position angle.
//   - elong []:   axis ratio >= 1.
type PowerLawDisk struct {
	params *param.Set
}

// NewPowerLawDisk creates the component with the given parameter set.
func NewPowerLawDisk(set *param.Set) *PowerLawDisk { return &PowerLawDisk{params: set} }

// NewPowerLawDiskParams returns the conventional parameter set with the
// temperature exponent and inner radius free.
func NewPowerLawDiskParams(rinMas, routMas, q, tau0 float64) (*param.Set, error) {
	return param.NewSet(
		param.Parameter{Name: "rin", Value: rinMas, Min: 0.05, Max: 20, Unit: "mas", Free: true},
		param.Parameter{Name: "rout", Value: routMas, Min: 0.1, Max: 100, Unit: "mas"},
		param.Parameter{Name: "q", Value: q, Min: 0, Max: 1.5, Free: true},
		param.Parameter{Name: "p", Value: 1.0, Min: 0, Max: 3},
		param.Parameter{Name: "tau0", Value: tau0, Min: 0, Max: 1},
		param.Parameter{Name: "tsub", Value: 1500, Min: 100, Max: 3000, Unit: "K"},
		param.Parameter{Name: "pa", Value: 0, Min: 0, Max: 360, Unit: "deg"},
		param.Parameter{Name: "elong", Value: 1, Min: 1, Max: 10},
	)
}

// ShortName implements Component.
func (d *PowerLawDisk) ShortName() string { return "disk" }

// Params implements Component.
func (d *PowerLawDisk) Params() *param.Set { return d.params }

// Clone implements Component.
func (d *PowerLawDisk) Clone() Component { return &PowerLawDisk{params: d.params.Clone()} }

// Temperature returns the temperature profile in Kelvin at radius rMas.
// Radii inside the rim return 0.
func (d *PowerLawDisk) Temperature(rMas float64) float64 {
	rin := d.params.Value("rin")
	if rMas < rin || rin <= 0 {
		return 0
	}
	return d.params.Value("tsub") * math.Pow(rMas/rin, -d.params.Value("q"))
}

// Evaluate implements Component.
func (d *PowerLawDisk) Evaluate(ctx context.Context, g *grid.Grid, wavelengthM float64) (*mat.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rin := d.params.Value("rin")
	rout := d.params.Value("rout")
	q := d.params.Value("q")
	p := d.params.Value("p")
	tau0 := d.params.Value("tau0")
	tsub := d.params.Value("tsub")
	elong := d.params.Value("elong")

	if rin <= 0 || rout <= rin {
		return nil, fmt.Errorf("%w: disk rin %g mas, rout %g mas", ErrInvalidGeometry, rin, rout)
	}
	if tau0 < 0 || tsub <= 0 {
		return nil, fmt.Errorf("%w: tau0 %g, tsub %g K", ErrInvalidGeometry, tau0, tsub)
	}
	if elong < 1 {
		return nil, fmt.Errorf("%w: axis ratio %g < 1", ErrInvalidGeometry, elong)
	}
	if wavelengthM <= 0 {
		return nil, fmt.Errorf("%w: wavelength %g m", grid.ErrBadWavelength, wavelengthM)
	}

	proj := grid.Projection{PosAngleDeg: d.params.Value("pa"), AxisRatio: elong}
	radius := g.Radius(proj)
	omega := g.SolidAngle()

	n := g.Pixels()
	b := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			r := radius.At(i, j)
			if r < rin || r >= rout {
				continue
			}
			temp := tsub * math.Pow(r/rin, -q)
			tau := tau0 * math.Pow(r/rin, -p)
			flux := PlanckNu(temp, wavelengthM) * -math.Expm1(-tau) * omega * wattToJansky
			b.Set(i, j, flux)
		}
	}
	return b, nil
}
