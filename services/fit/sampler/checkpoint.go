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
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is a self-contained, resumable record of a run in progress:
// the full chain, the live ensemble implicit in its last iteration, and
// the serialized random stream. Restoring a snapshot and continuing
// produces the same chain the uninterrupted run would have.
type Snapshot struct {
	// RunID identifies the run the snapshot belongs to.
	RunID string `json:"run_id"`

	// CreatedAt is the snapshot wall-clock time.
	CreatedAt time.Time `json:"created_at"`

	// Iteration is the number of completed iterations at snapshot time.
	Iteration int `json:"iteration"`

	// State is the engine state at snapshot time.
	State string `json:"state"`

	// Config is the full sampler configuration of the run.
	Config FitConfig `json:"config"`

	// FreeNames are the namespaced parameter names, for shape checking
	// on resume.
	FreeNames []string `json:"free_names"`

	// Chain is the serialized chain.
	Chain ChainState `json:"chain"`

	// RNGState is the binary-marshaled PCG source state.
	RNGState []byte `json:"rng_state"`

	// PrevMaxTau carries the last convergence check's estimate across
	// the restart.
	PrevMaxTau float64 `json:"prev_max_tau"`
}

// Encode serializes the snapshot to JSON.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot deserializes a snapshot produced by Encode.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}

// CheckpointStore persists snapshots. The badger-backed implementation
// lives in the storage package; tests use in-memory fakes.
type CheckpointStore interface {
	// SaveSnapshot persists a snapshot, replacing any previous snapshot
	// for the same run.
	SaveSnapshot(ctx context.Context, snap *Snapshot) error

	// LoadSnapshot retrieves the latest snapshot for a run.
	LoadSnapshot(ctx context.Context, runID string) (*Snapshot, error)
}
