// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package grid builds the spatial sampling grids shared by all model
// evaluations in a fitting run.
//
// A Grid is immutable after construction and safe to share across workers
// without synchronization. Spatial coordinates are in milliarcseconds
// (mas); spatial frequencies are in cycles per radian, so a baseline B
// observed at wavelength lambda samples frequency B/lambda.
package grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// MasToRad converts milliarcseconds to radians.
const MasToRad = math.Pi / (180.0 * 3600.0 * 1000.0)

// Grid describes a square Cartesian pixel grid centred on the origin.
//
// Thread Safety: Immutable after New; safe for concurrent use.
type Grid struct {
	fov    float64 // field of view [mas]
	pixels int
	axis   []float64 // pixel-centre coordinates along one axis [mas]
}

// New creates a grid with the given field of view and pixel count.
//
// Inputs:
//   - fovMas: Full field of view in mas. Must be > 0.
//   - pixels: Pixels per axis. Must be >= 2.
//
// Outputs:
//   - *Grid: The immutable grid.
//   - error: ErrEmptyGrid for a non-positive extent or fewer than 2 pixels.
func New(fovMas float64, pixels int) (*Grid, error) {
	if fovMas <= 0 {
		return nil, fmt.Errorf("%w: field of view %g mas", ErrEmptyGrid, fovMas)
	}
	if pixels < 2 {
		return nil, fmt.Errorf("%w: %d pixels", ErrEmptyGrid, pixels)
	}
	scale := fovMas / float64(pixels)
	axis := make([]float64, pixels)
	for i := range axis {
		// Pixel centres, symmetric about zero for even pixel counts.
		axis[i] = (float64(i) - float64(pixels)/2 + 0.5) * scale
	}
	return &Grid{fov: fovMas, pixels: pixels, axis: axis}, nil
}

// FOV returns the field of view in mas.
func (g *Grid) FOV() float64 { return g.fov }

// Pixels returns the pixel count per axis.
func (g *Grid) Pixels() int { return g.pixels }

// PixelScale returns the pixel size in mas.
func (g *Grid) PixelScale() float64 { return g.fov / float64(g.pixels) }

// Axis returns the pixel-centre coordinates along one axis in mas.
// The returned slice must not be modified.
func (g *Grid) Axis() []float64 { return g.axis }

// SolidAngle returns the solid angle of one pixel in steradians.
func (g *Grid) SolidAngle() float64 {
	s := g.PixelScale() * MasToRad
	return s * s
}

// Projection describes the on-sky orientation of an inclined, circularly
// symmetric structure: the major axis rotated east of north by the
// position angle, the minor axis compressed by the axis ratio.
type Projection struct {
	// PosAngleDeg is the position angle in degrees.
	PosAngleDeg float64

	// AxisRatio is major/minor >= 1. 1 means face-on (no compression).
	AxisRatio float64
}

// Identity returns the face-on, unrotated projection.
func Identity() Projection { return Projection{AxisRatio: 1} }

// Valid reports whether the projection is physically meaningful.
func (p Projection) Valid() bool { return p.AxisRatio >= 1 }

// Radius returns the deprojected radius of every pixel in mas.
//
// The coordinates are rotated by the position angle and the second axis is
// stretched by the axis ratio before the radius is taken, so an intrinsically
// circular structure evaluated on the result appears as an inclined ellipse.
func (g *Grid) Radius(p Projection) *mat.Dense {
	n := g.pixels
	out := mat.NewDense(n, n, nil)
	sin, cos := math.Sincos(p.PosAngleDeg * math.Pi / 180.0)
	for i := 0; i < n; i++ {
		y := g.axis[i]
		for j := 0; j < n; j++ {
			x := g.axis[j]
			xr := x*cos + y*sin
			yr := (-x*sin + y*cos) * p.AxisRatio
			out.Set(i, j, math.Hypot(xr, yr))
		}
	}
	return out
}

// PolarAngle returns the azimuthal angle of every pixel in radians, in the
// same rotated frame as Radius.
func (g *Grid) PolarAngle(p Projection) *mat.Dense {
	n := g.pixels
	out := mat.NewDense(n, n, nil)
	sin, cos := math.Sincos(p.PosAngleDeg * math.Pi / 180.0)
	for i := 0; i < n; i++ {
		y := g.axis[i]
		for j := 0; j < n; j++ {
			x := g.axis[j]
			xr := x*cos + y*sin
			yr := (-x*sin + y*cos) * p.AxisRatio
			out.Set(i, j, math.Atan2(yr, xr))
		}
	}
	return out
}

// UVPoint is a spatial-frequency coordinate in cycles per radian.
type UVPoint struct {
	U float64 `json:"u" yaml:"u"`
	V float64 `json:"v" yaml:"v"`
}

// Baseline returns the baseline length in cycles per radian.
func (p UVPoint) Baseline() float64 { return math.Hypot(p.U, p.V) }

// Add returns the component-wise sum, used to close baseline triangles.
func (p UVPoint) Add(q UVPoint) UVPoint { return UVPoint{U: p.U + q.U, V: p.V + q.V} }

// UVFromBaseline converts a physical baseline vector in metres observed at
// a wavelength in metres to a spatial frequency in cycles per radian.
//
// Outputs:
//   - UVPoint: The spatial frequency.
//   - error: ErrBadWavelength for a non-positive wavelength, so a missing
//     unit conversion fails loudly instead of producing a silently wrong
//     frequency scale.
func UVFromBaseline(bxM, byM, wavelengthM float64) (UVPoint, error) {
	if wavelengthM <= 0 {
		return UVPoint{}, fmt.Errorf("%w: %g m", ErrBadWavelength, wavelengthM)
	}
	return UVPoint{U: bxM / wavelengthM, V: byM / wavelengthM}, nil
}

// MaxFrequency returns the highest spatial frequency the grid can represent
// without aliasing, in cycles per radian (the Nyquist limit).
func (g *Grid) MaxFrequency() float64 {
	return 1.0 / (2.0 * g.PixelScale() * MasToRad)
}
