// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import "errors"

// Sentinel errors for the model package.
var (
	// ErrInvalidGeometry indicates a physically invalid parameter
	// combination (e.g. outer radius below inner radius). The likelihood
	// layer contains this as a rejected proposal; it is never fatal.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrEmptyComposite indicates a composite model with no components.
	ErrEmptyComposite = errors.New("composite model has no components")

	// ErrUnresolved indicates a structure too small for the grid to sample.
	ErrUnresolved = errors.New("structure unresolved by grid")
)
