// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package likelihood scores parameter vectors against the observed
// dataset.
//
// The evaluator chains the disk model and the observable transform, then
// computes a chi-squared log-likelihood per observable kind plus a flat
// log-prior over the declared parameter bounds. Out-of-bounds vectors and
// physically invalid geometries score -Inf; they are rejected proposals,
// never fatal errors.
package likelihood

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"

	"github.com/AleutianAI/ppdfit/services/fit/data"
	"github.com/AleutianAI/ppdfit/services/fit/grid"
	"github.com/AleutianAI/ppdfit/services/fit/model"
	"github.com/AleutianAI/ppdfit/services/fit/transform"
)

// Config tunes the likelihood.
type Config struct {
	// Weights scales each observable kind's chi-squared contribution.
	// Missing kinds default to 1.
	Weights map[data.Kind]float64 `json:"weights" yaml:"weights"`

	// FitLnF appends an error-inflation nuisance parameter to the search
	// vector: sigma^2 -> sigma^2 + synthetic^2 * exp(2*lnf). Standard
	// treatment for underestimated interferometric uncertainties.
	FitLnF bool `json:"fit_lnf" yaml:"fit_lnf"`

	// LnFMin and LnFMax bound the nuisance parameter when FitLnF is set.
	LnFMin float64 `json:"lnf_min" yaml:"lnf_min"`
	LnFMax float64 `json:"lnf_max" yaml:"lnf_max"`
}

// DefaultConfig returns sensible defaults: equal kind weights, no
// error-inflation term.
func DefaultConfig() Config {
	return Config{LnFMin: -10, LnFMax: 1}
}

// wavePlan groups the transform work for one observing wavelength.
type wavePlan struct {
	wavelength float64
	uv         []grid.UVPoint
	entries    []planEntry
}

// planEntry maps one dataset sample onto its visibility slots.
type planEntry struct {
	sample int
	kind   data.Kind
	vis    [3]int // indices into the wavePlan's visibility slice
	nVis   int
	zero   int // index of the zero-frequency visibility
}

// Evaluator computes log-posteriors for free-parameter vectors.
//
// Thread Safety: Not safe for concurrent use (it owns a mutable model);
// the sampler gives each worker its own Clone. Grid, dataset and
// transform are shared read-only.
type Evaluator struct {
	model  *model.Composite
	grid   *grid.Grid
	ds     *data.Dataset
	tr     transform.Transform
	cfg    Config
	plans  []wavePlan
	logger *slog.Logger
}

// New builds an evaluator and fail-fast validates the dataset against the
// grid.
//
// Inputs:
//   - m: Composite model. Cloned per worker by the caller.
//   - g: Immutable grid shared by all evaluations.
//   - ds: Validated dataset.
//   - tr: Observable transform.
//   - cfg: Likelihood configuration.
//   - logger: Structured logger; nil uses slog.Default().
//
// Outputs:
//   - *Evaluator: Ready evaluator.
//   - error: ErrNilInput, or ErrAliasedDataset when dataset frequencies
//     exceed the grid Nyquist limit.
func New(m *model.Composite, g *grid.Grid, ds *data.Dataset, tr transform.Transform, cfg Config, logger *slog.Logger) (*Evaluator, error) {
	if m == nil || g == nil || ds == nil || tr == nil {
		return nil, ErrNilInput
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FitLnF && cfg.LnFMin >= cfg.LnFMax {
		return nil, fmt.Errorf("lnf bounds [%g, %g) are empty", cfg.LnFMin, cfg.LnFMax)
	}

	plans, err := buildPlans(ds, g)
	if err != nil {
		return nil, err
	}
	return &Evaluator{model: m, grid: g, ds: ds, tr: tr, cfg: cfg, plans: plans, logger: logger}, nil
}

func buildPlans(ds *data.Dataset, g *grid.Grid) ([]wavePlan, error) {
	nyquist := g.MaxFrequency()
	byWave := make(map[float64]*wavePlan)
	var order []float64

	addUV := func(p *wavePlan, uv grid.UVPoint) (int, error) {
		if math.Abs(uv.U) >= nyquist || math.Abs(uv.V) >= nyquist {
			return 0, fmt.Errorf("%w: (%g, %g) cycles/rad, grid limit %g", ErrAliasedDataset, uv.U, uv.V, nyquist)
		}
		p.uv = append(p.uv, uv)
		return len(p.uv) - 1, nil
	}

	for i := 0; i < ds.Len(); i++ {
		s := ds.At(i)
		p, ok := byWave[s.Wavelength]
		if !ok {
			p = &wavePlan{wavelength: s.Wavelength}
			// Slot 0 always carries the zero-frequency visibility.
			p.uv = append(p.uv, grid.UVPoint{})
			byWave[s.Wavelength] = p
			order = append(order, s.Wavelength)
		}
		e := planEntry{sample: i, kind: s.Kind, zero: 0}
		var err error
		switch s.Kind {
		case data.KindFlux:
			// Zero-frequency only.
		case data.KindVis, data.KindVis2:
			e.vis[0], err = addUV(p, s.UV)
			e.nVis = 1
		case data.KindClosurePhase:
			for t := 0; t < 3 && err == nil; t++ {
				e.vis[t], err = addUV(p, s.Triangle[t])
			}
			e.nVis = 3
		}
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		p.entries = append(p.entries, e)
	}

	plans := make([]wavePlan, 0, len(order))
	for _, w := range order {
		plans = append(plans, *byWave[w])
	}
	return plans, nil
}

// Dim returns the dimensionality of the search space: the model's free
// parameters plus the lnf nuisance term when configured.
func (e *Evaluator) Dim() int {
	d := e.model.Dim()
	if e.cfg.FitLnF {
		d++
	}
	return d
}

// FreeNames returns the namespaced free-parameter names, with "lnf"
// appended when the nuisance term is fitted.
func (e *Evaluator) FreeNames() []string {
	names := e.model.FreeNames()
	if e.cfg.FitLnF {
		names = append(names, "lnf")
	}
	return names
}

// InitialVector returns the model's current free-parameter values as a
// search vector, with the lnf nuisance term started at the midpoint of
// its bounds. Samplers seed their walker ball around this point.
func (e *Evaluator) InitialVector() []float64 {
	vec := e.model.Vector()
	if e.cfg.FitLnF {
		vec = append(vec, 0.5*(e.cfg.LnFMin+e.cfg.LnFMax))
	}
	return vec
}

// Bounds returns the per-dimension prior bounds, in vector order.
func (e *Evaluator) Bounds() (lo, hi []float64) {
	for _, comp := range e.model.Components() {
		set := comp.Params()
		for i := 0; i < set.Len(); i++ {
			p := set.At(i)
			if p.Free {
				lo = append(lo, p.Min)
				hi = append(hi, p.Max)
			}
		}
	}
	if e.cfg.FitLnF {
		lo = append(lo, e.cfg.LnFMin)
		hi = append(hi, e.cfg.LnFMax)
	}
	return lo, hi
}

// InBounds reports whether vec satisfies the flat prior.
func (e *Evaluator) InBounds(vec []float64) bool {
	if len(vec) != e.Dim() {
		return false
	}
	md := e.model.Dim()
	if !e.model.InBounds(vec[:md]) {
		return false
	}
	if e.cfg.FitLnF {
		lnf := vec[md]
		if lnf < e.cfg.LnFMin || lnf > e.cfg.LnFMax {
			return false
		}
	}
	return true
}

// Clone returns an evaluator with an independent model, sharing the
// read-only grid, dataset, transform and plans. Used to hand each worker
// its own evaluation state.
func (e *Evaluator) Clone() *Evaluator {
	c := *e
	c.model = e.model.Clone()
	return &c
}

// LogPosterior scores a free-parameter vector.
//
// Inputs:
//   - ctx: Cancels long evaluations.
//   - vec: Free-parameter vector of length Dim().
//
// Outputs:
//   - float64: log-prior + log-likelihood. -Inf for out-of-bounds vectors
//     and invalid geometries (rejected proposals).
//   - error: Only non-recoverable failures (context cancellation,
//     transform misuse); never geometry errors.
func (e *Evaluator) LogPosterior(ctx context.Context, vec []float64) (float64, error) {
	if !e.InBounds(vec) {
		return math.Inf(-1), nil
	}
	synth, err := e.synthetics(ctx, vec)
	if err != nil {
		if errors.Is(err, model.ErrInvalidGeometry) || errors.Is(err, model.ErrUnresolved) {
			// Invalid region of parameter space: rejected, not fatal.
			return math.Inf(-1), nil
		}
		return math.Inf(-1), err
	}

	lnf := math.Inf(-1) // exp(2*lnf) = 0 when not fitted
	if e.cfg.FitLnF {
		lnf = vec[e.model.Dim()]
	}

	logL := 0.0
	for _, k := range e.ds.Kinds() {
		w := 1.0
		if kw, ok := e.cfg.Weights[k]; ok {
			w = kw
		}
		var sum float64
		for _, i := range e.ds.IndicesOf(k) {
			s := e.ds.At(i)
			res := s.Value - synth[i]
			if k == data.KindClosurePhase {
				res = wrapDeg(res)
			}
			s2 := s.Sigma * s.Sigma
			if e.cfg.FitLnF {
				s2 += synth[i] * synth[i] * math.Exp(2*lnf)
			}
			// The weight scales the residual comparison only; the
			// log(s2) normalization is weight-independent.
			sum += w*res*res/s2 + math.Log(s2)
		}
		logL += -0.5 * sum
	}
	if math.IsNaN(logL) {
		return math.Inf(-1), nil
	}
	return logL, nil
}

// ChiSquared returns the unweighted chi-squared per observable kind for a
// vector, for residual diagnostics. Bounds are not enforced.
func (e *Evaluator) ChiSquared(ctx context.Context, vec []float64) (map[data.Kind]float64, error) {
	synth, err := e.synthetics(ctx, vec)
	if err != nil {
		return nil, err
	}
	out := make(map[data.Kind]float64)
	for _, k := range e.ds.Kinds() {
		var sum float64
		for _, i := range e.ds.IndicesOf(k) {
			s := e.ds.At(i)
			res := s.Value - synth[i]
			if k == data.KindClosurePhase {
				res = wrapDeg(res)
			}
			sum += res * res / (s.Sigma * s.Sigma)
		}
		out[k] = sum
	}
	return out, nil
}

// Synthetic computes the noise-free synthetic observable for every
// dataset sample at the given vector, in dataset order.
func (e *Evaluator) Synthetic(ctx context.Context, vec []float64) ([]float64, error) {
	return e.synthetics(ctx, vec)
}

func (e *Evaluator) synthetics(ctx context.Context, vec []float64) ([]float64, error) {
	md := e.model.Dim()
	if err := e.model.Apply(vec[:md]); err != nil {
		return nil, err
	}
	out := make([]float64, e.ds.Len())
	for _, p := range e.plans {
		b, err := e.model.Evaluate(ctx, e.grid, p.wavelength)
		if err != nil {
			return nil, err
		}
		vis, err := e.tr.Visibilities(ctx, b, e.grid, p.uv)
		if err != nil {
			return nil, err
		}
		for _, en := range p.entries {
			switch en.kind {
			case data.KindFlux:
				out[en.sample] = cmplx.Abs(vis[en.zero])
			case data.KindVis:
				out[en.sample] = cmplx.Abs(vis[en.vis[0]])
			case data.KindVis2:
				out[en.sample] = transform.Vis2(vis[en.vis[0]], vis[en.zero])
			case data.KindClosurePhase:
				out[en.sample] = transform.ClosurePhaseDeg(vis[en.vis[0]], vis[en.vis[1]], vis[en.vis[2]])
			}
		}
	}
	return out, nil
}

// wrapDeg wraps a phase difference into (-180, 180].
func wrapDeg(d float64) float64 {
	d = math.Mod(d, 360)
	switch {
	case d > 180:
		d -= 360
	case d <= -180:
		d += 360
	}
	return d
}
