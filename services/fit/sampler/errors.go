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

import "errors"

var (
	// ErrConfiguration indicates invalid sampler configuration.
	ErrConfiguration = errors.New("invalid sampler configuration")

	// ErrInitStall indicates the initial walker ball could not be placed
	// at finite posterior within the retry budget.
	ErrInitStall = errors.New("could not initialize walkers at finite posterior")

	// ErrSamplerStall indicates the ensemble stopped accepting proposals
	// for too many consecutive iterations.
	ErrSamplerStall = errors.New("sampler stalled: no accepted proposals")

	// ErrRunFinished indicates Run was called on an engine whose run has
	// already completed.
	ErrRunFinished = errors.New("sampler run already finished")

	// ErrNoChain indicates a diagnostic was requested before any
	// iterations were recorded.
	ErrNoChain = errors.New("chain is empty")

	// ErrShortChain indicates the chain is too short for a reliable
	// autocorrelation estimate.
	ErrShortChain = errors.New("chain too short for autocorrelation estimate")
)
