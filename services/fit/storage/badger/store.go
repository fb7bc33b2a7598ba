// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/ppdfit/services/fit/sampler"
)

// ErrRunNotFound indicates no stored data exists for a run ID.
var ErrRunNotFound = errors.New("run not found")

// Key layout: run/<id>/snapshot, run/<id>/result, run/<id>/meta.
const (
	keyPrefix   = "run/"
	keySnapshot = "/snapshot"
	keyResult   = "/result"
	keyMeta     = "/meta"
)

// RunInfo is the lightweight per-run index entry.
type RunInfo struct {
	RunID      string    `json:"run_id"`
	UpdatedAt  time.Time `json:"updated_at"`
	Iterations int       `json:"iterations"`
	State      string    `json:"state"`
	Finished   bool      `json:"finished"`
}

// Store persists sampler snapshots and results.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	db *badger.DB
}

// NewStore opens a run store with the given configuration.
//
// Outputs:
//   - *Store: The store. Caller must call Close when done.
//   - error: Non-nil if the database cannot be opened.
func NewStore(cfg Config) (*Store, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SaveSnapshot implements sampler.CheckpointStore. The snapshot replaces
// any previous one for the run, and the run's index entry is refreshed in
// the same transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap *sampler.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := snap.Encode()
	if err != nil {
		return err
	}
	meta, err := json.Marshal(RunInfo{
		RunID:      snap.RunID,
		UpdatedAt:  snap.CreatedAt,
		Iterations: snap.Iteration,
		State:      snap.State,
	})
	if err != nil {
		return fmt.Errorf("encode run meta: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keyPrefix+snap.RunID+keySnapshot), data); err != nil {
			return err
		}
		return txn.Set([]byte(keyPrefix+snap.RunID+keyMeta), meta)
	})
}

// LoadSnapshot implements sampler.CheckpointStore.
//
// Outputs:
//   - *sampler.Snapshot: The latest snapshot.
//   - error: ErrRunNotFound when the run has no snapshot.
func (s *Store) LoadSnapshot(ctx context.Context, runID string) (*sampler.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var snap *sampler.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + runID + keySnapshot))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			snap, err = sampler.DecodeSnapshot(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// SaveResult stores a finished run's summary and marks the run finished
// in the index.
func (s *Store) SaveResult(ctx context.Context, result *sampler.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	meta, err := json.Marshal(RunInfo{
		RunID:      result.RunID,
		UpdatedAt:  time.Now().UTC(),
		Iterations: result.Iterations,
		State:      result.State.String(),
		Finished:   true,
	})
	if err != nil {
		return fmt.Errorf("encode run meta: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(keyPrefix+result.RunID+keyResult), data); err != nil {
			return err
		}
		return txn.Set([]byte(keyPrefix+result.RunID+keyMeta), meta)
	})
}

// LoadResult retrieves a finished run's summary.
//
// Outputs:
//   - *sampler.Result: The stored result.
//   - error: ErrRunNotFound when the run has no result.
func (s *Store) LoadResult(ctx context.Context, runID string) (*sampler.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var result sampler.Result
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + runID + keyResult))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &result)
		})
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ListRuns returns the index entry of every stored run.
func (s *Store) ListRuns(ctx context.Context) ([]RunInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var runs []RunInfo
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		suffix := []byte(keyMeta)
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.Key()
			if len(key) < len(suffix) || string(key[len(key)-len(suffix):]) != keyMeta {
				continue
			}
			var info RunInfo
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &info)
			}); err != nil {
				return err
			}
			runs = append(runs, info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// DeleteRun removes all stored data for a run.
func (s *Store) DeleteRun(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, suffix := range []string{keySnapshot, keyResult, keyMeta} {
			if err := txn.Delete([]byte(keyPrefix + runID + suffix)); err != nil {
				return err
			}
		}
		return nil
	})
}
