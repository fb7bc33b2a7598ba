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

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// sokalWindow is the window constant c in Sokal's automated windowing:
// the autocorrelation sum is truncated at the smallest lag M with
// M >= c * tau(M).
const sokalWindow = 5.0

// minDiagnosticLength is the shortest chain the autocorrelation
// estimator accepts.
const minDiagnosticLength = 16

// Diagnostics summarizes the health of a chain.
type Diagnostics struct {
	// Iterations is the chain length the diagnostics were computed at.
	Iterations int `json:"iterations"`

	// AutocorrTimes holds the integrated autocorrelation time per
	// dimension, in iterations.
	AutocorrTimes []float64 `json:"autocorr_times"`

	// MaxAutocorrTime is the worst (largest) dimension's estimate.
	MaxAutocorrTime float64 `json:"max_autocorr_time"`

	// MeanAcceptance is the acceptance fraction averaged over walkers.
	MeanAcceptance float64 `json:"mean_acceptance"`

	// Converged reports whether the convergence criterion was met.
	Converged bool `json:"converged"`
}

// AutocorrTime estimates the integrated autocorrelation time of a scalar
// series using the FFT-based autocovariance and Sokal's automated window.
//
// Inputs:
//   - series: Iteration-ordered samples of one quantity.
//
// Outputs:
//   - float64: Integrated autocorrelation time in iterations.
//   - error: ErrShortChain when the series is too short, or when it has
//     zero variance.
func AutocorrTime(series []float64) (float64, error) {
	n := len(series)
	if n < minDiagnosticLength {
		return 0, fmt.Errorf("%w: %d samples", ErrShortChain, n)
	}

	rho, err := autocorrFunc(series)
	if err != nil {
		return 0, err
	}

	// Running estimate tau(M) = 2 * sum_{t<=M} rho(t) - 1, truncated at
	// the first M with M >= c * tau(M).
	tau := 0.0
	for m := 0; m < n; m++ {
		tau += 2 * rho[m]
		est := tau - 1
		if float64(m) >= sokalWindow*est {
			if est < 1 {
				est = 1
			}
			return est, nil
		}
	}
	est := tau - 1
	if est < 1 {
		est = 1
	}
	return est, nil
}

// autocorrFunc returns the normalized autocorrelation function of a
// series, computed by FFT with zero padding to avoid circular wraparound.
func autocorrFunc(series []float64) ([]float64, error) {
	n := len(series)
	mean := stat.Mean(series, nil)

	m := 1
	for m < 2*n {
		m <<= 1
	}
	padded := make([]float64, m)
	for i, v := range series {
		padded[i] = v - mean
	}

	fft := fourier.NewFFT(m)
	coeff := fft.Coefficients(nil, padded)
	for i, c := range coeff {
		re, im := real(c), imag(c)
		coeff[i] = complex(re*re+im*im, 0)
	}
	acov := fft.Sequence(nil, coeff)

	if acov[0] <= 0 {
		return nil, fmt.Errorf("%w: series has zero variance", ErrShortChain)
	}
	rho := make([]float64, n)
	for t := 0; t < n; t++ {
		rho[t] = acov[t] / acov[0]
	}
	return rho, nil
}

// ChainAutocorrTimes estimates the integrated autocorrelation time of
// every dimension from the ensemble-mean trajectories.
//
// Outputs:
//   - []float64: Per-dimension estimates, in iterations.
//   - error: ErrShortChain when the chain is too short.
func ChainAutocorrTimes(c *Chain) ([]float64, error) {
	if c.Len() < minDiagnosticLength {
		return nil, fmt.Errorf("%w: %d iterations", ErrShortChain, c.Len())
	}
	taus := make([]float64, c.Dim())
	for d := 0; d < c.Dim(); d++ {
		tau, err := AutocorrTime(c.MeanSeries(d))
		if err != nil {
			return nil, fmt.Errorf("dimension %d: %w", d, err)
		}
		taus[d] = tau
	}
	return taus, nil
}

// ComputeDiagnostics assembles the full diagnostic summary for a chain.
//
// Inputs:
//   - c: The chain.
//   - cfg: Convergence settings; MinTauFactor gates the Converged flag.
//   - prevMaxTau: The previous check's MaxAutocorrTime, or 0 on the
//     first check. Convergence additionally requires the estimate to
//     have stabilized relative to this value.
//
// Outputs:
//   - Diagnostics: The summary.
//   - error: ErrShortChain when the chain cannot be diagnosed yet.
func ComputeDiagnostics(c *Chain, cfg ConvergenceConfig, prevMaxTau float64) (Diagnostics, error) {
	taus, err := ChainAutocorrTimes(c)
	if err != nil {
		return Diagnostics{}, err
	}
	d := Diagnostics{
		Iterations:      c.Len(),
		AutocorrTimes:   taus,
		MaxAutocorrTime: floats.Max(taus),
		MeanAcceptance:  stat.Mean(c.AcceptanceFraction(), nil),
	}

	longEnough := float64(d.Iterations) > cfg.MinTauFactor*d.MaxAutocorrTime
	stable := false
	if prevMaxTau > 0 {
		rel := (d.MaxAutocorrTime - prevMaxTau) / prevMaxTau
		if rel < 0 {
			rel = -rel
		}
		stable = rel < cfg.TauRelTol
	}
	d.Converged = longEnough && stable
	return d, nil
}
