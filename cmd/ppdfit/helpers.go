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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AleutianAI/ppdfit/pkg/logging"
	"github.com/AleutianAI/ppdfit/services/fit/data"
	"github.com/AleutianAI/ppdfit/services/fit/grid"
	"github.com/AleutianAI/ppdfit/services/fit/likelihood"
	"github.com/AleutianAI/ppdfit/services/fit/model"
	badgerstore "github.com/AleutianAI/ppdfit/services/fit/storage/badger"
	"github.com/AleutianAI/ppdfit/services/fit/transform"
)

// newLogger builds the process logger from the global flags. Callers
// must Close it before exiting so file buffers are flushed.
func newLogger(service string) (*logging.Logger, error) {
	return logging.New(logging.Config{
		Level:   logLevel,
		LogDir:  logDir,
		Service: service,
	})
}

// openStore opens the run database at the --db path.
func openStore() (*badgerstore.Store, error) {
	return badgerstore.NewStore(badgerstore.DefaultConfig(dbPath))
}

// buildEvaluator assembles the likelihood evaluator from the model,
// dataset and imaging flags shared by fit, resume and synth.
func buildEvaluator(lg *logging.Logger) (*likelihood.Evaluator, error) {
	modelCfg, err := model.LoadConfig(modelPath)
	if err != nil {
		return nil, err
	}
	m, err := modelCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}

	ds, err := data.LoadFile(dataPath)
	if err != nil {
		return nil, err
	}

	g, err := grid.New(fovMas, gridPixels)
	if err != nil {
		return nil, err
	}

	var tr transform.Transform = transform.Direct{}
	if !directDFT {
		tr, err = transform.NewFFT(paddingOrder)
		if err != nil {
			return nil, err
		}
	}

	cfg := likelihood.DefaultConfig()
	cfg.FitLnF = fitLnF

	return likelihood.New(m, g, ds, tr, cfg, lg.Logger)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM, so an
// interrupted fit flushes a final checkpoint before exiting.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// writeJSON prints v to stdout and, when path is non-empty, also writes
// it to the file.
func writeJSON(v any, path string) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if path != "" {
		return os.WriteFile(path, append(out, '\n'), 0644)
	}
	return nil
}

// fail logs the error to stderr and exits.
func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
