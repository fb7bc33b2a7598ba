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
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ppdfit/pkg/logging"
	"github.com/AleutianAI/ppdfit/services/fit/sampler"
	badgerstore "github.com/AleutianAI/ppdfit/services/fit/storage/badger"
)

// runFitCommand starts a fresh ensemble fit.
//
// The sampler configuration is merged from defaults, the optional
// --config file and PPDFIT_* environment variables. Checkpoints and the
// final result land in the --db database; an interrupted run can be
// continued with `ppdfit resume <run-id>`.
func runFitCommand(cmd *cobra.Command, args []string) {
	cfg, err := sampler.LoadFitConfig(fitConfig)
	if err != nil {
		fail("Invalid sampler configuration: %v", err)
	}
	if !cmd.Flags().Changed("log-level") && cfg.Observability.LogLevel != "" {
		logLevel = cfg.Observability.LogLevel
	}

	lg, err := newLogger(cfg.Observability.ServiceName)
	if err != nil {
		fail("Logger setup failed: %v", err)
	}
	defer lg.Close()

	eval, err := buildEvaluator(lg)
	if err != nil {
		fail("Evaluator setup failed: %v", err)
	}

	store, err := openStore()
	if err != nil {
		fail("Opening run database %q failed: %v", dbPath, err)
	}
	defer store.Close()

	engine, err := sampler.NewEngine(eval, cfg,
		sampler.WithLogger(lg.Logger),
		sampler.WithCheckpointStore(store),
	)
	if err != nil {
		fail("Engine setup failed: %v", err)
	}

	ctx, stop := signalContext()
	defer stop()

	lg.Info("starting fit",
		"run_id", engine.RunID(),
		"walkers", cfg.Run.Walkers,
		"max_iterations", cfg.Run.MaxIterations,
		"free_parameters", eval.FreeNames(),
	)

	result, runErr := engine.Run(ctx)
	finishRun(ctx, lg, store, result, runErr)
}

// finishRun persists and prints a run's result. Shared by fit and
// resume; tolerates a nil result when the run failed before producing
// one.
func finishRun(ctx context.Context, lg *logging.Logger, store *badgerstore.Store, result *sampler.Result, runErr error) {
	if result != nil {
		// Persist even partial results so diag can inspect them later.
		if err := store.SaveResult(context.WithoutCancel(ctx), result); err != nil {
			lg.Warn("saving result failed", "error", err)
		}
		if err := writeJSON(result, outPath); err != nil {
			fail("Writing result failed: %v", err)
		}
	}

	switch {
	case runErr == nil:
		lg.Info("fit finished", "state", result.State.String(), "iterations", result.Iterations)
	case errors.Is(runErr, context.Canceled) && result != nil:
		lg.Warn("fit interrupted; resume with: ppdfit resume "+result.RunID,
			"iterations", result.Iterations)
	default:
		fail("Fit failed: %v", runErr)
	}
}
