// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package param defines named, bounded model parameters and ordered
// parameter sets.
//
// A Set is the unit the fitting engine works on: the free parameters of a
// Set define the dimensionality of the search space, and the engine only
// ever touches free values through vectors in declaration order. Fixed
// parameters keep their value for the whole run.
package param

import (
	"fmt"
	"math"
)

// Parameter is a named scalar with a valid range and a free/fixed flag.
//
// A free parameter is fitted; a fixed parameter keeps Value for the run.
type Parameter struct {
	// Name identifies the parameter within its Set. Must be unique.
	Name string `json:"name" yaml:"name"`

	// Value is the current (or initial) value.
	Value float64 `json:"value" yaml:"value"`

	// Min and Max bound the valid range, inclusive.
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`

	// Unit is a human-readable unit label (e.g. "mas", "deg", "Jy").
	// It is carried for reporting; the engine never converts units.
	Unit string `json:"unit" yaml:"unit"`

	// Free marks the parameter as fitted.
	Free bool `json:"free" yaml:"free"`
}

// InBounds reports whether v lies within the parameter's range.
func (p Parameter) InBounds(v float64) bool {
	return v >= p.Min && v <= p.Max
}

// Clip returns v clamped to the parameter's range.
func (p Parameter) Clip(v float64) float64 {
	return math.Min(math.Max(v, p.Min), p.Max)
}

// Set is an ordered collection of parameters.
//
// Order is declaration order and defines the layout of free-parameter
// vectors. A Set is not safe for concurrent mutation; the sampler gives
// each worker its own copy.
type Set struct {
	params []Parameter
	index  map[string]int
}

// NewSet builds a Set from parameters in declaration order.
//
// Inputs:
//   - params: Parameters in the order free-vector slots are assigned.
//
// Outputs:
//   - *Set: The ordered set.
//   - error: ErrDuplicateName, ErrInvalidRange, or ErrOutOfBounds if a
//     free parameter's initial value lies outside its range.
func NewSet(params ...Parameter) (*Set, error) {
	s := &Set{
		params: make([]Parameter, 0, len(params)),
		index:  make(map[string]int, len(params)),
	}
	for _, p := range params {
		if _, ok := s.index[p.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, p.Name)
		}
		if p.Min > p.Max {
			return nil, fmt.Errorf("%w: %q has min %g > max %g", ErrInvalidRange, p.Name, p.Min, p.Max)
		}
		if p.Free && !p.InBounds(p.Value) {
			return nil, fmt.Errorf("%w: %q = %g outside [%g, %g]", ErrOutOfBounds, p.Name, p.Value, p.Min, p.Max)
		}
		s.index[p.Name] = len(s.params)
		s.params = append(s.params, p)
	}
	return s, nil
}

// Len returns the total number of parameters, free and fixed.
func (s *Set) Len() int { return len(s.params) }

// Dim returns the number of free parameters.
func (s *Set) Dim() int {
	n := 0
	for _, p := range s.params {
		if p.Free {
			n++
		}
	}
	return n
}

// Names returns all parameter names in declaration order.
func (s *Set) Names() []string {
	names := make([]string, len(s.params))
	for i, p := range s.params {
		names[i] = p.Name
	}
	return names
}

// FreeNames returns the names of free parameters in declaration order.
func (s *Set) FreeNames() []string {
	names := make([]string, 0, s.Dim())
	for _, p := range s.params {
		if p.Free {
			names = append(names, p.Name)
		}
	}
	return names
}

// Get returns the parameter with the given name.
//
// Outputs:
//   - Parameter: The parameter, zero-valued on error.
//   - error: ErrUnknownName if no parameter has that name.
func (s *Set) Get(name string) (Parameter, error) {
	i, ok := s.index[name]
	if !ok {
		return Parameter{}, fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
	return s.params[i], nil
}

// Value returns the current value of the named parameter, or NaN if the
// name is unknown. Convenience for model evaluation code that has already
// validated its parameter names at construction time.
func (s *Set) Value(name string) float64 {
	i, ok := s.index[name]
	if !ok {
		return math.NaN()
	}
	return s.params[i].Value
}

// At returns the parameter at position i in declaration order.
func (s *Set) At(i int) Parameter { return s.params[i] }

// SetValue sets the named parameter's current value, free or fixed.
// Bounds are not enforced; see InBounds.
//
// Outputs:
//   - error: ErrUnknownName if no parameter has that name.
func (s *Set) SetValue(name string, v float64) error {
	i, ok := s.index[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
	s.params[i].Value = v
	return nil
}

// Vector returns the current free-parameter values in declaration order.
func (s *Set) Vector() []float64 {
	v := make([]float64, 0, s.Dim())
	for _, p := range s.params {
		if p.Free {
			v = append(v, p.Value)
		}
	}
	return v
}

// Apply substitutes the free parameters with the values in vec, in
// declaration order. Fixed parameters are untouched. Bounds are NOT
// enforced here; callers reject out-of-bounds vectors through InBounds
// (the likelihood returns -Inf for them).
//
// Outputs:
//   - error: ErrDimensionMismatch if len(vec) != Dim().
func (s *Set) Apply(vec []float64) error {
	if len(vec) != s.Dim() {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), s.Dim())
	}
	j := 0
	for i := range s.params {
		if s.params[i].Free {
			s.params[i].Value = vec[j]
			j++
		}
	}
	return nil
}

// InBounds reports whether every entry of vec lies within the range of its
// corresponding free parameter. A length mismatch is out of bounds.
func (s *Set) InBounds(vec []float64) bool {
	if len(vec) != s.Dim() {
		return false
	}
	j := 0
	for _, p := range s.params {
		if !p.Free {
			continue
		}
		if !p.InBounds(vec[j]) {
			return false
		}
		j++
	}
	return true
}

// Clip returns a copy of vec with every entry clamped to its free
// parameter's range. Clipping is deterministic: out-of-range values always
// map to the nearest bound.
//
// Outputs:
//   - []float64: The clipped vector.
//   - error: ErrDimensionMismatch if len(vec) != Dim().
func (s *Set) Clip(vec []float64) ([]float64, error) {
	if len(vec) != s.Dim() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), s.Dim())
	}
	out := make([]float64, len(vec))
	j := 0
	for _, p := range s.params {
		if !p.Free {
			continue
		}
		out[j] = p.Clip(vec[j])
		j++
	}
	return out, nil
}

// Clone returns a deep copy of the set.
func (s *Set) Clone() *Set {
	c := &Set{
		params: make([]Parameter, len(s.params)),
		index:  make(map[string]int, len(s.index)),
	}
	copy(c.params, s.params)
	for k, v := range s.index {
		c.index[k] = v
	}
	return c
}

// Merge appends every parameter of other under a name prefix. Used by
// composite models to namespace component parameters as
// "c{i}_{shortname}_{name}".
//
// Outputs:
//   - error: ErrDuplicateName if a prefixed name collides.
func (s *Set) Merge(prefix string, other *Set) error {
	for _, p := range other.params {
		name := prefix + p.Name
		if _, ok := s.index[name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		p.Name = name
		s.index[name] = len(s.params)
		s.params = append(s.params, p)
	}
	return nil
}
