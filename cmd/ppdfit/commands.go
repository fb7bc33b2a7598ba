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
)

// --- Global Command Variables ---
var (
	dbPath   string
	logLevel string
	logDir   string

	modelPath    string
	dataPath     string
	fitConfig    string
	outPath      string
	fovMas       float64
	gridPixels   int
	directDFT    bool // exact DFT instead of padded FFT + interpolation
	paddingOrder int
	fitLnF       bool

	synthSeed uint64

	rootCmd = &cobra.Command{
		Use:   "ppdfit",
		Short: "Fit protoplanetary disk models to interferometric data",
		Long: `ppdfit samples the posterior of parametric disk models (rings,
temperature-gradient disks, gaussians, stellar photospheres) against
fluxes, visibilities and closure phases, using an affine-invariant
ensemble MCMC sampler with checkpoint/resume support.`,
	}

	fitCmd = &cobra.Command{
		Use:   "fit",
		Short: "Run an ensemble fit of a model against a dataset",
		Run:   runFitCommand, // Defined in cmd_fit.go
	}

	resumeCmd = &cobra.Command{
		Use:   "resume [run-id]",
		Short: "Resume an interrupted fit from its latest checkpoint",
		Args:  cobra.ExactArgs(1),
		Run:   runResumeCommand, // Defined in cmd_resume.go
	}

	diagCmd = &cobra.Command{
		Use:   "diag [run-id]",
		Short: "Print convergence diagnostics for a stored run",
		Args:  cobra.ExactArgs(1),
		Run:   runDiagCommand, // Defined in cmd_diag.go
	}

	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "List stored runs",
		Run:   runListRuns, // Defined in cmd_diag.go
	}

	synthCmd = &cobra.Command{
		Use:   "synth",
		Short: "Generate a synthetic dataset from a model",
		Long: `Evaluates the model at the (u,v) layout of a template dataset and
writes a new dataset with the observed values replaced by model
predictions, optionally perturbed by gaussian noise at the template
uncertainties. Useful for recovery tests and proposal planning.`,
		Run: runSynthCommand, // Defined in cmd_synth.go
	}
)

// addEvaluatorFlags registers the flags every command that rebuilds the
// likelihood evaluator needs. Resume must be invoked with the same model
// and geometry as the original fit; the engine rejects a parameter
// vector whose free names differ from the checkpoint's.
func addEvaluatorFlags(cmd *cobra.Command, dataFlag string) {
	cmd.Flags().StringVar(&modelPath, "model", "", "model description file (YAML or JSON)")
	cmd.Flags().StringVar(&dataPath, dataFlag, "", "dataset file (JSON)")
	cmd.Flags().Float64Var(&fovMas, "fov", 40.0, "image field of view [mas]")
	cmd.Flags().IntVar(&gridPixels, "pixels", 256, "image grid size per axis")
	cmd.Flags().BoolVar(&directDFT, "direct", false, "use the exact direct transform (slow, no interpolation error)")
	cmd.Flags().IntVar(&paddingOrder, "padding", 2, "FFT zero-padding factor as a power of two")
	cmd.Flags().BoolVar(&fitLnF, "fit-lnf", false, "fit an error-inflation nuisance parameter")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired(dataFlag)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "ppdfit.db", "checkpoint/result database directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for JSON log files (empty disables)")

	addEvaluatorFlags(fitCmd, "data")
	fitCmd.Flags().StringVar(&fitConfig, "config", "", "sampler configuration file (YAML or JSON)")
	fitCmd.Flags().StringVar(&outPath, "out", "", "write the fit result JSON to this file")

	addEvaluatorFlags(resumeCmd, "data")
	resumeCmd.Flags().StringVar(&outPath, "out", "", "write the fit result JSON to this file")

	addEvaluatorFlags(synthCmd, "template")
	synthCmd.Flags().StringVar(&outPath, "out", "", "output dataset file")
	synthCmd.Flags().Uint64Var(&synthSeed, "seed", 0, "noise seed (0 writes noise-free values)")
	_ = synthCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(fitCmd, resumeCmd, diagCmd, runsCmd, synthCmd)
}
