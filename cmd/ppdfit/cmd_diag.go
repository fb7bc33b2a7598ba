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
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ppdfit/services/fit/sampler"
	badgerstore "github.com/AleutianAI/ppdfit/services/fit/storage/badger"
)

// diagReport is the JSON output of `ppdfit diag`.
type diagReport struct {
	RunID       string              `json:"run_id"`
	State       string              `json:"state"`
	Iterations  int                 `json:"iterations"`
	FreeNames   []string            `json:"free_names,omitempty"`
	BestVector  []float64           `json:"best_vector,omitempty"`
	BestLogProb float64             `json:"best_log_prob,omitempty"`
	Diagnostics sampler.Diagnostics `json:"diagnostics"`
}

// runDiagCommand prints convergence diagnostics for a stored run.
//
// Finished runs carry diagnostics in their saved result. For a run that
// is still checkpointed the chain is restored from the snapshot and the
// autocorrelation analysis recomputed.
func runDiagCommand(cmd *cobra.Command, args []string) {
	runID := args[0]

	store, err := openStore()
	if err != nil {
		fail("Opening run database %q failed: %v", dbPath, err)
	}
	defer store.Close()

	ctx := cmd.Context()

	if result, err := store.LoadResult(ctx, runID); err == nil {
		report := diagReport{
			RunID:       result.RunID,
			State:       result.State.String(),
			Iterations:  result.Iterations,
			FreeNames:   result.FreeNames,
			BestVector:  result.BestVector,
			BestLogProb: result.BestLogProb,
			Diagnostics: result.Diagnostics,
		}
		if err := writeJSON(report, ""); err != nil {
			fail("Writing report failed: %v", err)
		}
		return
	} else if !errors.Is(err, badgerstore.ErrRunNotFound) {
		fail("Loading result for run %s failed: %v", runID, err)
	}

	snap, err := store.LoadSnapshot(ctx, runID)
	if err != nil {
		fail("Run %s has neither a result nor a checkpoint: %v", runID, err)
	}

	chain, err := sampler.NewChainFromState(snap.Chain)
	if err != nil {
		fail("Restoring chain failed: %v", err)
	}
	diag, err := sampler.ComputeDiagnostics(chain, snap.Config.Convergence, snap.PrevMaxTau)
	if err != nil {
		fail("Computing diagnostics failed: %v", err)
	}

	report := diagReport{
		RunID:       snap.RunID,
		State:       snap.State,
		Iterations:  snap.Iteration,
		FreeNames:   snap.FreeNames,
		Diagnostics: diag,
	}
	if vec, lp, err := chain.Best(); err == nil {
		report.BestVector = vec
		report.BestLogProb = lp
	}
	if err := writeJSON(report, ""); err != nil {
		fail("Writing report failed: %v", err)
	}
}

// runListRuns prints the runs stored in the database.
func runListRuns(cmd *cobra.Command, args []string) {
	store, err := openStore()
	if err != nil {
		fail("Opening run database %q failed: %v", dbPath, err)
	}
	defer store.Close()

	runs, err := store.ListRuns(cmd.Context())
	if err != nil {
		fail("Listing runs failed: %v", err)
	}
	if len(runs) == 0 {
		fmt.Println("No stored runs.")
		return
	}
	for _, r := range runs {
		fmt.Printf("%s  %-16s  iter=%-7d  finished=%-5t  %s\n",
			r.RunID, r.State, r.Iterations, r.Finished, r.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}
