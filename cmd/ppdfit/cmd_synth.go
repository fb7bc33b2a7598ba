// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ppdfit/services/fit/data"
	"github.com/AleutianAI/ppdfit/services/fit/likelihood"
)

// runSynthCommand writes a synthetic dataset: the template's samples
// with their observed values replaced by model predictions, optionally
// perturbed by gaussian noise at the template uncertainties.
func runSynthCommand(cmd *cobra.Command, args []string) {
	lg, err := newLogger("ppdfit-synth")
	if err != nil {
		fail("Logger setup failed: %v", err)
	}
	defer lg.Close()

	template, err := data.LoadFile(dataPath)
	if err != nil {
		fail("Loading template dataset failed: %v", err)
	}

	eval, err := buildEvaluator(lg)
	if err != nil {
		fail("Evaluator setup failed: %v", err)
	}

	var rng *rand.Rand
	if synthSeed != 0 {
		rng = rand.New(rand.NewPCG(synthSeed, synthSeed^0x9e3779b97f4a7c15))
	}

	samples := make([]data.Sample, template.Len())
	for i := range samples {
		samples[i] = template.At(i)
	}

	synth, err := likelihood.Synthesize(cmd.Context(), eval, samples, rng)
	if err != nil {
		fail("Synthesis failed: %v", err)
	}
	if err := data.SaveFile(outPath, synth); err != nil {
		fail("Writing dataset failed: %v", err)
	}

	lg.Info("synthetic dataset written",
		"path", outPath,
		"samples", synth.Len(),
		"noise_free", rng == nil,
	)
}
