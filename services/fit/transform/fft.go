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
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/ppdfit/services/fit/grid"
)

// FFT computes a zero-padded 2-D fast Fourier transform of the brightness
// map and bilinearly interpolates it onto the requested (u,v) coordinates.
//
// The image is circularly shifted so its centre sits at index zero before
// transforming, which keeps the spectrum slowly varying and safe to
// interpolate; the residual half-pixel offset of the grid's pixel centres
// is restored as an analytic phase ramp at the exact requested frequency.
//
// Thread Safety: Stateless apart from configuration; safe for concurrent
// use.
type FFT struct {
	// PaddingOrder doubles the transform size this many times
	// (padded = pixels << PaddingOrder). Higher orders give a finer
	// frequency grid and smaller interpolation error.
	PaddingOrder int
}

// NewFFT creates an FFT transform with the given zero-padding order.
//
// Outputs:
//   - FFT: The transform.
//   - error: Non-nil for a negative padding order.
func NewFFT(paddingOrder int) (FFT, error) {
	if paddingOrder < 0 {
		return FFT{}, fmt.Errorf("padding order must be >= 0, got %d", paddingOrder)
	}
	return FFT{PaddingOrder: paddingOrder}, nil
}

// Visibilities implements Transform.
func (f FFT) Visibilities(ctx context.Context, b *mat.Dense, g *grid.Grid, uv []grid.UVPoint) ([]complex128, error) {
	if err := checkShape(b, g); err != nil {
		return nil, err
	}
	n := g.Pixels()
	np := n << f.PaddingOrder
	scaleRad := g.PixelScale() * grid.MasToRad
	nyquist := 0.5 / scaleRad

	for _, p := range uv {
		if math.Abs(p.U) >= nyquist || math.Abs(p.V) >= nyquist {
			return nil, fmt.Errorf("%w: (%g, %g) cycles/rad, limit %g", ErrFrequencyOutOfRange, p.U, p.V, nyquist)
		}
	}

	// Centre the image at index zero (circular shift by half the image).
	buf := make([]complex128, np*np)
	half := n / 2
	for i := 0; i < n; i++ {
		ri := ((i - half) + np) % np
		for j := 0; j < n; j++ {
			cj := ((j - half) + np) % np
			buf[ri*np+cj] = complex(b.At(i, j), 0)
		}
	}

	fft := fourier.NewCmplxFFT(np)
	tmp := make([]complex128, np)

	// Transform along x (within rows), then along y (within columns).
	for r := 0; r < np; r++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fft.Coefficients(tmp, buf[r*np:(r+1)*np])
		copy(buf[r*np:(r+1)*np], tmp)
	}
	col := make([]complex128, np)
	for c := 0; c < np; c++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for r := 0; r < np; r++ {
			col[r] = buf[r*np+c]
		}
		fft.Coefficients(tmp, col)
		for r := 0; r < np; r++ {
			buf[r*np+c] = tmp[r]
		}
	}

	halfPx := 0.5 * scaleRad
	out := make([]complex128, len(uv))
	for k, p := range uv {
		iu := p.U * scaleRad * float64(np)
		iv := p.V * scaleRad * float64(np)
		v := bilinearWrap(buf, np, iv, iu)
		s, c := math.Sincos(-2 * math.Pi * (p.U + p.V) * halfPx)
		out[k] = v * complex(c, s)
	}
	return out, nil
}

// bilinearWrap interpolates the row-major np x np spectrum at a continuous
// (row, col) index, wrapping negative frequencies onto the upper bins.
func bilinearWrap(buf []complex128, np int, ri, ci float64) complex128 {
	r0 := math.Floor(ri)
	c0 := math.Floor(ci)
	fr := ri - r0
	fc := ci - c0

	wrap := func(i int) int {
		i %= np
		if i < 0 {
			i += np
		}
		return i
	}
	r0i, r1i := wrap(int(r0)), wrap(int(r0)+1)
	c0i, c1i := wrap(int(c0)), wrap(int(c0)+1)

	v00 := buf[r0i*np+c0i]
	v01 := buf[r0i*np+c1i]
	v10 := buf[r1i*np+c0i]
	v11 := buf[r1i*np+c1i]

	cfr := complex(fr, 0)
	cfc := complex(fc, 0)
	one := complex(1, 0)
	return (one-cfr)*((one-cfc)*v00+cfc*v01) + cfr*((one-cfc)*v10+cfc*v11)
}
