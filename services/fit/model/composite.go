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

// Composite sums the brightness of an ordered sequence of components
// (e.g. star + disk + halo). Brightness addition commutes, so component
// order only affects parameter namespacing and diagnostic output order,
// never the physical result.
//
// Thread Safety: Not safe for concurrent use; Clone per worker.
type Composite struct {
	comps []Component
}

// NewComposite builds a composite from components in order.
//
// Outputs:
//   - *Composite: The composite model.
//   - error: ErrEmptyComposite if no components are given.
func NewComposite(comps ...Component) (*Composite, error) {
	if len(comps) == 0 {
		return nil, ErrEmptyComposite
	}
	return &Composite{comps: comps}, nil
}

// Components returns the components in declaration order.
func (c *Composite) Components() []Component { return c.comps }

// Dim returns the total number of free parameters across components.
func (c *Composite) Dim() int {
	n := 0
	for _, comp := range c.comps {
		n += comp.Params().Dim()
	}
	return n
}

// Params returns a snapshot set with every component's parameters
// namespaced as "c{i}_{shortname}_{name}". Mutating the snapshot does not
// affect the components; use Apply for that.
func (c *Composite) Params() (*param.Set, error) {
	out, err := param.NewSet()
	if err != nil {
		return nil, err
	}
	for i, comp := range c.comps {
		prefix := fmt.Sprintf("c%d_%s_", i+1, comp.ShortName())
		if err := out.Merge(prefix, comp.Params()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// FreeNames returns the namespaced free parameter names in order.
func (c *Composite) FreeNames() []string {
	var names []string
	for i, comp := range c.comps {
		prefix := fmt.Sprintf("c%d_%s_", i+1, comp.ShortName())
		for _, n := range comp.Params().FreeNames() {
			names = append(names, prefix+n)
		}
	}
	return names
}

// Apply distributes a free-parameter vector across components in order.
//
// Outputs:
//   - error: param.ErrDimensionMismatch if the vector length is wrong.
func (c *Composite) Apply(vec []float64) error {
	if len(vec) != c.Dim() {
		return fmt.Errorf("%w: got %d, want %d", param.ErrDimensionMismatch, len(vec), c.Dim())
	}
	off := 0
	for _, comp := range c.comps {
		d := comp.Params().Dim()
		if err := comp.Params().Apply(vec[off : off+d]); err != nil {
			return err
		}
		off += d
	}
	return nil
}

// Vector returns the current free values across components in order.
func (c *Composite) Vector() []float64 {
	out := make([]float64, 0, c.Dim())
	for _, comp := range c.comps {
		out = append(out, comp.Params().Vector()...)
	}
	return out
}

// InBounds reports whether every entry of vec is inside its parameter's
// declared range.
func (c *Composite) InBounds(vec []float64) bool {
	if len(vec) != c.Dim() {
		return false
	}
	off := 0
	for _, comp := range c.comps {
		d := comp.Params().Dim()
		if !comp.Params().InBounds(vec[off : off+d]) {
			return false
		}
		off += d
	}
	return true
}

// Clone returns a deep copy with independent component parameter sets.
func (c *Composite) Clone() *Composite {
	comps := make([]Component, len(c.comps))
	for i, comp := range c.comps {
		comps[i] = comp.Clone()
	}
	return &Composite{comps: comps}
}

// Evaluate sums all component brightness maps on the grid.
//
// Outputs:
//   - *mat.Dense: Combined brightness in Jy per pixel.
//   - error: The first component error, geometry errors included.
func (c *Composite) Evaluate(ctx context.Context, g *grid.Grid, wavelengthM float64) (*mat.Dense, error) {
	n := g.Pixels()
	total := mat.NewDense(n, n, nil)
	for _, comp := range c.comps {
		b, err := comp.Evaluate(ctx, g, wavelengthM)
		if err != nil {
			return nil, fmt.Errorf("component %s: %w", comp.ShortName(), err)
		}
		total.Add(total, b)
	}
	return total, nil
}
