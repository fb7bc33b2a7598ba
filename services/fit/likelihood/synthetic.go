// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package likelihood

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/AleutianAI/ppdfit/services/fit/data"
)

// Synthesize builds a dataset of noisy observations drawn from a model.
//
// Templates carry the kind, (u,v) geometry, wavelength and sigma of each
// desired sample; the model supplies the noise-free value, to which
// Gaussian noise of the template's sigma is added. Used by tests and the
// synth CLI command to produce datasets with a known ground truth.
//
// Inputs:
//   - ctx: Cancels model evaluation.
//   - ev: Evaluator holding the ground-truth model (its current parameter
//     values are used as-is).
//   - templates: Samples whose Value field is ignored.
//   - rng: Noise source; nil produces noise-free data.
//
// Outputs:
//   - *data.Dataset: Validated dataset.
//   - error: Evaluation or validation failure.
func Synthesize(ctx context.Context, ev *Evaluator, templates []data.Sample, rng *rand.Rand) (*data.Dataset, error) {
	if ev == nil {
		return nil, ErrNilInput
	}
	tmpl, err := data.New(templates)
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}
	truth := ev.Clone()
	truth.ds = tmpl
	truth.plans, err = buildPlans(tmpl, truth.grid)
	if err != nil {
		return nil, err
	}

	vec := truth.model.Vector()
	if truth.cfg.FitLnF {
		vec = append(vec, truth.cfg.LnFMin)
	}
	synth, err := truth.synthetics(ctx, vec)
	if err != nil {
		return nil, err
	}

	out := make([]data.Sample, len(templates))
	for i, s := range templates {
		s.Value = synth[i]
		if rng != nil {
			s.Value += rng.NormFloat64() * s.Sigma
		}
		if s.Kind == data.KindClosurePhase {
			s.Value = wrapDeg(s.Value)
		}
		out[i] = s
	}
	return data.New(out)
}
