// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package param

import "errors"

// Sentinel errors for the param package.
var (
	// ErrDuplicateName indicates two parameters share a name within one set.
	ErrDuplicateName = errors.New("duplicate parameter name")

	// ErrUnknownName indicates a lookup for a parameter that does not exist.
	ErrUnknownName = errors.New("unknown parameter name")

	// ErrInvalidRange indicates a parameter range with min > max.
	ErrInvalidRange = errors.New("invalid parameter range")

	// ErrOutOfBounds indicates a value outside the declared [min, max] range.
	ErrOutOfBounds = errors.New("parameter value out of bounds")

	// ErrDimensionMismatch indicates a vector whose length does not match
	// the number of free parameters.
	ErrDimensionMismatch = errors.New("vector length does not match free parameter count")
)
