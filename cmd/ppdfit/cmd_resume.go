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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ppdfit/services/fit/sampler"
)

// runResumeCommand continues a fit from its latest checkpoint.
//
// The model and imaging flags must reproduce the original evaluator:
// the engine rejects a checkpoint whose free parameter names do not
// match the rebuilt model. The sampler configuration and RNG state come
// from the snapshot, so a resumed run walks the exact chain the
// uninterrupted run would have.
func runResumeCommand(cmd *cobra.Command, args []string) {
	runID := args[0]

	store, err := openStore()
	if err != nil {
		fail("Opening run database %q failed: %v", dbPath, err)
	}
	defer store.Close()

	ctx, stop := signalContext()
	defer stop()

	snap, err := store.LoadSnapshot(ctx, runID)
	if err != nil {
		fail("Loading checkpoint for run %s failed: %v", runID, err)
	}

	if !cmd.Flags().Changed("log-level") && snap.Config.Observability.LogLevel != "" {
		logLevel = snap.Config.Observability.LogLevel
	}
	lg, err := newLogger(snap.Config.Observability.ServiceName)
	if err != nil {
		fail("Logger setup failed: %v", err)
	}
	defer lg.Close()

	eval, err := buildEvaluator(lg)
	if err != nil {
		fail("Evaluator setup failed: %v", err)
	}

	engine, err := sampler.NewEngineFromSnapshot(eval, snap,
		sampler.WithLogger(lg.Logger),
		sampler.WithCheckpointStore(store),
	)
	if err != nil {
		fail("Restoring engine failed: %v", err)
	}

	lg.Info("resuming fit",
		"run_id", runID,
		"iteration", snap.Iteration,
		"max_iterations", snap.Config.Run.MaxIterations,
	)

	result, runErr := engine.Run(ctx)
	finishRun(ctx, lg, store, result, runErr)
}
