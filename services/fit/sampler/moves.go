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
	"math/rand/v2"
)

// StretchMove is the Goodman-Weare affine-invariant stretch move.
//
// A walker at X proposes Y = Xc + z (X - Xc), where Xc is a random walker
// from the complementary half-ensemble and z is drawn from g(z) ~ 1/sqrt(z)
// on [1/a, a]. The move is invariant under affine reparameterizations, so
// correlated, differently-scaled parameters need no tuning.
//
// Thread Safety: Safe for concurrent use (stateless after construction).
type StretchMove struct {
	a float64
}

// NewStretchMove creates the move with scale parameter a.
//
// Outputs:
//   - *StretchMove: The move.
//   - error: ErrConfiguration when scale <= 1.
func NewStretchMove(scale float64) (*StretchMove, error) {
	if scale <= 1 {
		return nil, fmt.Errorf("%w: stretch scale %g must be > 1", ErrConfiguration, scale)
	}
	return &StretchMove{a: scale}, nil
}

// stretchDraw holds the random numbers for one walker's proposal. All
// draws happen on the coordinator before workers run, so chains are
// reproducible regardless of worker scheduling.
type stretchDraw struct {
	partner int     // index into the complementary half-ensemble
	z       float64 // stretch factor
	u       float64 // acceptance uniform in [0, 1)
}

// draw samples the proposal randomness for one walker.
//
// Inverse-CDF sample of g(z) ~ 1/sqrt(z) on [1/a, a]:
// z = ((a-1) u + 1)^2 / a.
func (m *StretchMove) draw(rng *rand.Rand, nComplement int) stretchDraw {
	u := rng.Float64()
	z := (m.a - 1) * u
	z = (z + 1) * (z + 1) / m.a
	return stretchDraw{
		partner: rng.IntN(nComplement),
		z:       z,
		u:       rng.Float64(),
	}
}

// propose writes Y = Xc + z (X - Xc) into dst.
func (m *StretchMove) propose(dst, walker, partner []float64, z float64) {
	for i := range dst {
		dst[i] = partner[i] + z*(walker[i]-partner[i])
	}
}

// logAcceptRatio returns the log of the Metropolis-Hastings acceptance
// ratio for a stretch proposal in dim dimensions:
// (dim - 1) ln z + lnP(Y) - lnP(X).
func (m *StretchMove) logAcceptRatio(dim int, z, newLP, oldLP float64) float64 {
	if math.IsInf(newLP, -1) {
		return math.Inf(-1)
	}
	return float64(dim-1)*math.Log(z) + newLP - oldLP
}
