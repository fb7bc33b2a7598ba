// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package data

import (
	"encoding/json"
	"fmt"
	"os"
)

// ParseKind converts a kind name to its Kind value.
func ParseKind(name string) (Kind, error) {
	for k := KindFlux; k <= KindClosurePhase; k++ {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// MarshalJSON encodes the kind by name, keeping dataset files readable.
func (k Kind) MarshalJSON() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, k)
	}
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind name.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseKind(name)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// fileFormat is the on-disk dataset layout: a single JSON object so the
// format can grow header fields without breaking old files.
type fileFormat struct {
	Samples []Sample `json:"samples"`
}

// LoadFile reads and validates a JSON dataset file.
//
// Outputs:
//   - *Dataset: The validated dataset.
//   - error: I/O failures, malformed JSON, or ErrDataset-wrapped
//     validation failures.
func LoadFile(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var f fileFormat
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return New(f.Samples)
}

// SaveFile writes a dataset as indented JSON.
func SaveFile(path string, d *Dataset) error {
	f := fileFormat{Samples: make([]Sample, d.Len())}
	for i := range f.Samples {
		f.Samples[i] = d.At(i)
	}
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0644); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	return nil
}
