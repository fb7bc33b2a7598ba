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

import "errors"

// Sentinel errors for the likelihood package.
var (
	// ErrNilInput indicates a missing model, grid, dataset or transform.
	ErrNilInput = errors.New("nil evaluator input")

	// ErrAliasedDataset indicates dataset frequencies beyond what the
	// grid can resolve. Almost always a unit mismatch between the
	// dataset's (u,v) coordinates and the grid; fails fast at
	// construction instead of producing silently wrong synthetics.
	ErrAliasedDataset = errors.New("dataset frequencies exceed grid resolution")
)
