// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package learning

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const patternPrefix = "pattern/"

// maxWriteRetries bounds optimistic-concurrency retries before the
// conflict is surfaced.
const maxWriteRetries = 3

// Sentinel errors for the learning store.
var (
	// ErrWriteConflict indicates concurrent writers kept colliding on
	// the same signature.
	ErrWriteConflict = errors.New("pattern write conflict")
)

// Store persists resolution patterns in BadgerDB.
//
// Writes to the same signature serialize on a per-signature lock;
// Badger's transaction conflict detection backstops writers that race
// across signatures sharing a key range. Reads are lock-free.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	db     *badger.DB
	policy MatchPolicy
	logger *slog.Logger

	// locks holds one mutex per signature key.
	locks sync.Map
}

// NewStore creates a learning store.
//
// Inputs:
//
//	db - Opened BadgerDB
//	policy - Match policy; nil uses FacetPolicy
//	logger - Structured logger
func NewStore(db *badger.DB, policy MatchPolicy, logger *slog.Logger) *Store {
	if policy == nil {
		policy = NewFacetPolicy()
	}
	return &Store{db: db, policy: policy, logger: logger}
}

// lockFor returns the mutex for a signature key.
func (s *Store) lockFor(key string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Learn stores or updates the pattern for a signature.
//
// Description:
//
//	Called when a human resolves an escalated claim. A new signature
//	creates a version-1 pattern; re-learning an existing signature
//	replaces its resolution and bumps the version, keeping the
//	application history. The last write wins on version conflicts once
//	retries are exhausted.
//
// Inputs:
//
//	sig - The exception signature
//	resolution - The human's remedy
//	claimID - The claim that taught the pattern
//
// Outputs:
//
//	*Pattern - The stored pattern
//	error - ErrWriteConflict after repeated collisions
func (s *Store) Learn(sig Signature, resolution Resolution, claimID string) (*Pattern, error) {
	mu := s.lockFor(sig.Key())
	mu.Lock()
	defer mu.Unlock()

	var stored *Pattern
	err := s.withRetry(func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			key := []byte(patternPrefix + sig.Key())

			pattern := Pattern{
				Signature:   sig,
				Resolution:  resolution,
				Version:     1,
				LearnedFrom: claimID,
				CreatedAt:   time.Now().UTC(),
			}

			item, err := txn.Get(key)
			switch {
			case err == nil:
				var existing Pattern
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &existing)
				}); err != nil {
					return fmt.Errorf("decode pattern %s: %w", sig.Key(), err)
				}
				pattern.Version = existing.Version + 1
				pattern.Applications = existing.Applications
				pattern.CreatedAt = existing.CreatedAt
				pattern.LastAppliedAt = existing.LastAppliedAt
			case errors.Is(err, badger.ErrKeyNotFound):
				// First resolution for this signature.
			default:
				return err
			}

			data, err := json.Marshal(&pattern)
			if err != nil {
				return fmt.Errorf("encode pattern %s: %w", sig.Key(), err)
			}
			if err := txn.Set(key, data); err != nil {
				return err
			}
			stored = &pattern
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("resolution pattern learned",
		"signature", sig.Key(),
		"outcome", stored.Resolution.Outcome,
		"version", stored.Version,
		"learned_from", claimID)
	return stored, nil
}

// Match finds the pattern for a signature under the store's policy.
//
// Outputs:
//
//	*Pattern - The selected pattern
//	bool - False when no stored pattern is acceptable
//	error - Non-nil if the scan fails
func (s *Store) Match(sig Signature) (*Pattern, bool, error) {
	patterns, err := s.All()
	if err != nil {
		return nil, false, err
	}
	pattern, ok := s.policy.Match(sig, patterns)
	return pattern, ok, nil
}

// RecordApplication bumps a pattern's application counters after it
// auto-resolved a claim.
func (s *Store) RecordApplication(sig Signature) error {
	mu := s.lockFor(sig.Key())
	mu.Lock()
	defer mu.Unlock()

	return s.withRetry(func() error {
		return s.db.Update(func(txn *badger.Txn) error {
			key := []byte(patternPrefix + sig.Key())
			item, err := txn.Get(key)
			if err != nil {
				return fmt.Errorf("pattern %s: %w", sig.Key(), err)
			}

			var pattern Pattern
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &pattern)
			}); err != nil {
				return err
			}

			pattern.Applications++
			pattern.LastAppliedAt = time.Now().UTC()

			data, err := json.Marshal(&pattern)
			if err != nil {
				return err
			}
			return txn.Set(key, data)
		})
	})
}

// All returns every stored pattern.
func (s *Store) All() ([]Pattern, error) {
	var patterns []Pattern

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(patternPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var pattern Pattern
				if err := json.Unmarshal(val, &pattern); err != nil {
					return fmt.Errorf("decode pattern %s: %w", it.Item().Key(), err)
				}
				patterns = append(patterns, pattern)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return patterns, nil
}

// withRetry retries Badger transaction conflicts a bounded number of
// times.
func (s *Store) withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxWriteRetries; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.logger.Debug("pattern write conflict, retrying", "attempt", attempt+1)
	}
	return fmt.Errorf("%w: %v", ErrWriteConflict, err)
}
