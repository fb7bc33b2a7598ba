// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package data models the observed interferometric dataset the engine
// fits against.
//
// File parsing (OIFITS etc.) lives outside the core; this package receives
// already-extracted samples and validates their internal consistency. A
// Dataset is read-only once validated and safe to share across workers.
package data

import (
	"fmt"
	"math"

	"github.com/AleutianAI/ppdfit/services/fit/grid"
)

// Kind identifies the observable type of a sample.
type Kind int

const (
	// KindFlux is the total spectral flux in Jy (zero baseline).
	KindFlux Kind = iota
	// KindVis is a correlated flux / visibility amplitude in Jy.
	KindVis
	// KindVis2 is a squared visibility amplitude (dimensionless).
	KindVis2
	// KindClosurePhase is a closure phase over a baseline triangle, in
	// degrees.
	KindClosurePhase
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindFlux:
		return "flux"
	case KindVis:
		return "vis"
	case KindVis2:
		return "vis2"
	case KindClosurePhase:
		return "closure_phase"
	default:
		return "unknown"
	}
}

// Valid reports whether k is a recognised kind.
func (k Kind) Valid() bool { return k >= KindFlux && k <= KindClosurePhase }

// Sample is one measured data point.
type Sample struct {
	// Kind is the observable type.
	Kind Kind `json:"kind"`

	// UV is the sampled spatial frequency in cycles/rad. Unused for
	// KindFlux and KindClosurePhase.
	UV grid.UVPoint `json:"uv"`

	// Triangle holds the three baseline frequencies of a closure-phase
	// triangle, where Triangle[2] closes the loop:
	// Triangle[2] = Triangle[0] + Triangle[1]. Only set for
	// KindClosurePhase.
	Triangle [3]grid.UVPoint `json:"triangle,omitempty"`

	// Wavelength is the observing wavelength in metres.
	Wavelength float64 `json:"wavelength"`

	// Value is the measured value in the kind's unit.
	Value float64 `json:"value"`

	// Sigma is the reported 1-sigma uncertainty. Must be positive.
	Sigma float64 `json:"sigma"`
}

// Dataset is an ordered, validated sequence of samples.
//
// Thread Safety: Immutable after New; safe for concurrent reads.
type Dataset struct {
	samples []Sample
	byKind  map[Kind][]int
}

// New validates the samples and builds a read-only dataset.
//
// Inputs:
//   - samples: Observations in their original order.
//
// Outputs:
//   - *Dataset: The validated dataset.
//   - error: Wraps ErrDataset (fatal, fail-fast) identifying the offending
//     sample index.
func New(samples []Sample) (*Dataset, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrDataset, ErrEmptyDataset)
	}
	byKind := make(map[Kind][]int)
	for i, s := range samples {
		if !s.Kind.Valid() {
			return nil, fmt.Errorf("%w: sample %d: %w (%d)", ErrDataset, i, ErrUnknownKind, s.Kind)
		}
		if s.Sigma <= 0 || math.IsNaN(s.Sigma) || math.IsInf(s.Sigma, 0) {
			return nil, fmt.Errorf("%w: sample %d (%s): non-positive sigma %g", ErrDataset, i, s.Kind, s.Sigma)
		}
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			return nil, fmt.Errorf("%w: sample %d (%s): non-finite value %g", ErrDataset, i, s.Kind, s.Value)
		}
		if s.Wavelength <= 0 {
			return nil, fmt.Errorf("%w: sample %d (%s): non-positive wavelength %g m", ErrDataset, i, s.Kind, s.Wavelength)
		}
		if s.Kind == KindClosurePhase {
			closed := s.Triangle[0].Add(s.Triangle[1])
			if math.Abs(closed.U-s.Triangle[2].U) > 1e-6*math.Abs(s.Triangle[2].U)+1e-3 ||
				math.Abs(closed.V-s.Triangle[2].V) > 1e-6*math.Abs(s.Triangle[2].V)+1e-3 {
				return nil, fmt.Errorf("%w: sample %d: closure triangle does not close", ErrDataset, i)
			}
		}
		byKind[s.Kind] = append(byKind[s.Kind], i)
	}
	out := &Dataset{samples: make([]Sample, len(samples)), byKind: byKind}
	copy(out.samples, samples)
	return out, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.samples) }

// At returns the i-th sample in original order.
func (d *Dataset) At(i int) Sample { return d.samples[i] }

// Kinds returns the kinds present in the dataset.
func (d *Dataset) Kinds() []Kind {
	kinds := make([]Kind, 0, len(d.byKind))
	for k := KindFlux; k <= KindClosurePhase; k++ {
		if len(d.byKind[k]) > 0 {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// IndicesOf returns the sample indices of one kind, in original order.
// The returned slice must not be modified.
func (d *Dataset) IndicesOf(k Kind) []int { return d.byKind[k] }

// Wavelengths returns the distinct wavelengths present, in first-seen
// order. Model brightness is evaluated once per wavelength.
func (d *Dataset) Wavelengths() []float64 {
	seen := make(map[float64]bool)
	var out []float64
	for _, s := range d.samples {
		if !seen[s.Wavelength] {
			seen[s.Wavelength] = true
			out = append(out, s.Wavelength)
		}
	}
	return out
}
