// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sampler

import (
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Chain is the append-only record of an ensemble run: one walkers-by-dim
// block of positions and one log-probability row per iteration.
//
// Thread Safety: Safe for concurrent use. Only the engine coordinator
// appends; readers see a consistent prefix.
type Chain struct {
	mu       sync.RWMutex
	walkers  int
	dim      int
	n        int       // iterations recorded
	pos      []float64 // n * walkers * dim
	logProb  []float64 // n * walkers
	accepts  []int64   // per walker
	bestVec  []float64
	bestProb float64
}

// ChainState is the serializable form of a Chain, used by checkpoints.
type ChainState struct {
	Walkers    int       `json:"walkers"`
	Dim        int       `json:"dim"`
	Iterations int       `json:"iterations"`
	Positions  []float64 `json:"positions"`
	LogProb    []float64 `json:"log_prob"`
	Accepts    []int64   `json:"accepts"`
}

// NewChain creates an empty chain for the given ensemble shape.
func NewChain(walkers, dim int) *Chain {
	return &Chain{
		walkers:  walkers,
		dim:      dim,
		bestProb: math.Inf(-1),
	}
}

// NewChainFromState restores a chain from its serialized form.
//
// Outputs:
//   - *Chain: Restored chain.
//   - error: Non-nil if the state's shape is inconsistent.
func NewChainFromState(s ChainState) (*Chain, error) {
	if s.Walkers < 1 || s.Dim < 1 {
		return nil, fmt.Errorf("%w: %d walkers, dim %d", ErrConfiguration, s.Walkers, s.Dim)
	}
	if len(s.Positions) != s.Iterations*s.Walkers*s.Dim ||
		len(s.LogProb) != s.Iterations*s.Walkers ||
		len(s.Accepts) != s.Walkers {
		return nil, fmt.Errorf("%w: chain state shape mismatch", ErrConfiguration)
	}
	c := NewChain(s.Walkers, s.Dim)
	c.n = s.Iterations
	c.pos = append([]float64(nil), s.Positions...)
	c.logProb = append([]float64(nil), s.LogProb...)
	c.accepts = append([]int64(nil), s.Accepts...)
	for it := 0; it < c.n; it++ {
		for w := 0; w < c.walkers; w++ {
			lp := c.logProb[it*c.walkers+w]
			if lp > c.bestProb {
				c.bestProb = lp
				off := (it*c.walkers + w) * c.dim
				c.bestVec = append(c.bestVec[:0], c.pos[off:off+c.dim]...)
			}
		}
	}
	return c, nil
}

// State returns a deep copy of the chain for serialization.
func (c *Chain) State() ChainState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	accepts := c.accepts
	if accepts == nil {
		accepts = make([]int64, c.walkers)
	}
	return ChainState{
		Walkers:    c.walkers,
		Dim:        c.dim,
		Iterations: c.n,
		Positions:  append([]float64(nil), c.pos...),
		LogProb:    append([]float64(nil), c.logProb...),
		Accepts:    append([]int64(nil), accepts...),
	}
}

// Append records one completed iteration.
//
// Inputs:
//   - positions: Flat walkers*dim ensemble positions.
//   - logProb: Per-walker log posterior.
//   - accepted: Per-walker acceptance flags for this iteration.
func (c *Chain) Append(positions, logProb []float64, accepted []bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accepts == nil {
		c.accepts = make([]int64, c.walkers)
	}
	c.pos = append(c.pos, positions...)
	c.logProb = append(c.logProb, logProb...)
	for w, ok := range accepted {
		if ok {
			c.accepts[w]++
		}
		if logProb[w] > c.bestProb {
			c.bestProb = logProb[w]
			c.bestVec = append(c.bestVec[:0], positions[w*c.dim:(w+1)*c.dim]...)
		}
	}
	c.n++
}

// Len returns the number of recorded iterations.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.n
}

// Walkers returns the ensemble size.
func (c *Chain) Walkers() int { return c.walkers }

// Dim returns the search dimension.
func (c *Chain) Dim() int { return c.dim }

// Last returns copies of the most recent ensemble positions and log
// probabilities.
//
// Outputs:
//   - []float64: Flat walkers*dim positions.
//   - []float64: Per-walker log posterior.
//   - error: ErrNoChain when nothing has been recorded.
func (c *Chain) Last() ([]float64, []float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.n == 0 {
		return nil, nil, ErrNoChain
	}
	off := (c.n - 1) * c.walkers
	pos := append([]float64(nil), c.pos[off*c.dim:(off+c.walkers)*c.dim]...)
	lp := append([]float64(nil), c.logProb[off:off+c.walkers]...)
	return pos, lp, nil
}

// Best returns the highest-posterior sample seen so far.
//
// Outputs:
//   - []float64: Parameter vector copy.
//   - float64: Its log posterior.
//   - error: ErrNoChain when nothing has been recorded.
func (c *Chain) Best() ([]float64, float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.n == 0 {
		return nil, math.Inf(-1), ErrNoChain
	}
	return append([]float64(nil), c.bestVec...), c.bestProb, nil
}

// FlatChain returns the post-burn-in samples of every walker as one
// matrix with dim columns, iteration-major.
//
// Inputs:
//   - burnIn: Iterations to discard from the front.
//   - thin: Keep every thin-th iteration (1 = keep all).
//
// Outputs:
//   - *mat.Dense: (kept iterations * walkers) x dim samples.
//   - error: ErrNoChain when burn-in leaves nothing.
func (c *Chain) FlatChain(burnIn, thin int) (*mat.Dense, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if thin < 1 {
		thin = 1
	}
	if burnIn < 0 {
		burnIn = 0
	}
	if burnIn >= c.n {
		return nil, fmt.Errorf("%w: burn-in %d >= %d iterations", ErrNoChain, burnIn, c.n)
	}
	kept := 0
	for it := burnIn; it < c.n; it += thin {
		kept++
	}
	out := mat.NewDense(kept*c.walkers, c.dim, nil)
	row := 0
	for it := burnIn; it < c.n; it += thin {
		for w := 0; w < c.walkers; w++ {
			off := (it*c.walkers + w) * c.dim
			out.SetRow(row, c.pos[off:off+c.dim])
			row++
		}
	}
	return out, nil
}

// PosteriorMean returns the per-dimension mean of the post-burn-in
// samples, pooled over walkers.
//
// Outputs:
//   - []float64: dim means.
//   - error: ErrNoChain when burn-in leaves nothing.
func (c *Chain) PosteriorMean(burnIn int) ([]float64, error) {
	flat, err := c.FlatChain(burnIn, 1)
	if err != nil {
		return nil, err
	}
	rows, dim := flat.Dims()
	out := make([]float64, dim)
	col := make([]float64, rows)
	for d := 0; d < dim; d++ {
		mat.Col(col, d, flat)
		out[d] = stat.Mean(col, nil)
	}
	return out, nil
}

// WalkerSeries returns one walker's trajectory along one dimension,
// iteration by iteration. Used by the autocorrelation diagnostic.
func (c *Chain) WalkerSeries(walker, d int) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]float64, c.n)
	for it := 0; it < c.n; it++ {
		out[it] = c.pos[(it*c.walkers+walker)*c.dim+d]
	}
	return out
}

// MeanSeries returns the ensemble-mean trajectory along one dimension.
// Averaging over walkers before estimating autocorrelation follows the
// Goodman-Weare treatment of the ensemble as a single adaptive sampler.
func (c *Chain) MeanSeries(d int) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]float64, c.n)
	for it := 0; it < c.n; it++ {
		var sum float64
		for w := 0; w < c.walkers; w++ {
			sum += c.pos[(it*c.walkers+w)*c.dim+d]
		}
		out[it] = sum / float64(c.walkers)
	}
	return out
}

// AcceptanceFraction returns the per-walker fraction of accepted
// proposals over the whole run.
func (c *Chain) AcceptanceFraction() []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]float64, c.walkers)
	if c.n == 0 {
		return out
	}
	for w := range out {
		out[w] = float64(c.accepts[w]) / float64(c.n)
	}
	return out
}
