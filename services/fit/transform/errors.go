// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transform

import "errors"

// Sentinel errors for the transform package.
var (
	// ErrShapeMismatch indicates a brightness map whose shape does not
	// match the grid.
	ErrShapeMismatch = errors.New("brightness map does not match grid")

	// ErrFrequencyOutOfRange indicates a requested spatial frequency
	// beyond the grid's Nyquist limit. Interpolating past it would alias
	// silently, so it fails loudly instead.
	ErrFrequencyOutOfRange = errors.New("spatial frequency beyond grid Nyquist limit")
)
