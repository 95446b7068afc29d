// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists claims, decisions, and workflow snapshots.
//
// The store is a thin JSON-over-BadgerDB layer. It is the query surface
// external collaborators read from: snapshots are written once when a
// processing run ends and are returned verbatim afterwards, so repeated
// reads of a completed claim are byte-identical and never re-trigger
// processing.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
)

// Key prefixes. Each record type gets its own keyspace so prefix scans
// stay cheap.
const (
	claimPrefix         = "claim/"
	snapshotPrefix      = "snapshot/"
	investigationPrefix = "investigation/"
)

// Sentinel errors for the store.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
)

// ClaimStore persists claims and their processing artifacts.
//
// Thread Safety: ClaimStore is safe for concurrent use; BadgerDB
// transactions provide isolation.
type ClaimStore struct {
	db *badger.DB
}

// New creates a ClaimStore on top of an opened BadgerDB.
func New(db *badger.DB) *ClaimStore {
	return &ClaimStore{db: db}
}

// PutClaim stores or replaces a claim record.
//
// Inputs:
//
//	claim - The claim to persist
//
// Outputs:
//
//	error - Non-nil if serialization or the write fails
func (s *ClaimStore) PutClaim(claim *datatypes.Claim) error {
	return s.putJSON(claimPrefix+claim.ID, claim)
}

// GetClaim retrieves a claim by ID.
//
// Outputs:
//
//	*datatypes.Claim - The claim
//	error - ErrNotFound if no such claim exists
func (s *ClaimStore) GetClaim(id string) (*datatypes.Claim, error) {
	var claim datatypes.Claim
	if err := s.getJSON(claimPrefix+id, &claim); err != nil {
		return nil, err
	}
	return &claim, nil
}

// ListClaims returns all claims, optionally filtered by status, newest
// first.
//
// Inputs:
//
//	status - Status filter; empty string returns every claim
//
// Outputs:
//
//	[]*datatypes.Claim - Matching claims sorted by CreatedAt descending
//	error - Non-nil if the scan fails
func (s *ClaimStore) ListClaims(status datatypes.ClaimStatus) ([]*datatypes.Claim, error) {
	var claims []*datatypes.Claim

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(claimPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var claim datatypes.Claim
				if err := json.Unmarshal(val, &claim); err != nil {
					return fmt.Errorf("decode claim %s: %w", it.Item().Key(), err)
				}
				if status == "" || claim.Status == status {
					claims = append(claims, &claim)
				}
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

	sort.Slice(claims, func(i, j int) bool {
		return claims[i].CreatedAt.After(claims[j].CreatedAt)
	})
	return claims, nil
}

// ClaimsForPatient returns all claims for a patient, newest first.
//
// This is the history query the fraud tools run; it scans the claim
// keyspace rather than maintaining a secondary index, which is adequate
// at demo-table scale.
func (s *ClaimStore) ClaimsForPatient(patientID string) ([]*datatypes.Claim, error) {
	all, err := s.ListClaims("")
	if err != nil {
		return nil, err
	}
	var matched []*datatypes.Claim
	for _, c := range all {
		if c.PatientID == patientID {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

// ClaimsForProvider returns all claims submitted by a provider.
func (s *ClaimStore) ClaimsForProvider(providerName string) ([]*datatypes.Claim, error) {
	all, err := s.ListClaims("")
	if err != nil {
		return nil, err
	}
	var matched []*datatypes.Claim
	for _, c := range all {
		if strings.EqualFold(c.ProviderName, providerName) {
			matched = append(matched, c)
		}
	}
	return matched, nil
}

// PutSnapshot stores the workflow snapshot for a completed run.
func (s *ClaimStore) PutSnapshot(snapshot *datatypes.WorkflowSnapshot) error {
	return s.putJSON(snapshotPrefix+snapshot.ClaimID, snapshot)
}

// GetSnapshot retrieves the workflow snapshot for a claim.
//
// Outputs:
//
//	*datatypes.WorkflowSnapshot - The snapshot
//	error - ErrNotFound if the claim has no recorded run
func (s *ClaimStore) GetSnapshot(claimID string) (*datatypes.WorkflowSnapshot, error) {
	var snapshot datatypes.WorkflowSnapshot
	if err := s.getJSON(snapshotPrefix+claimID, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// InvestigationFlag marks a claim for fraud investigation.
//
// Flagging is idempotent: repeating the flag for a claim overwrites the
// same key, so retried tool invocations do not create duplicates.
type InvestigationFlag struct {
	ClaimID   string    `json:"claim_id"`
	Reason    string    `json:"reason"`
	FlaggedAt time.Time `json:"flagged_at"`
}

// FlagInvestigation records an investigation flag for a claim.
func (s *ClaimStore) FlagInvestigation(claimID, reason string) error {
	return s.putJSON(investigationPrefix+claimID, &InvestigationFlag{
		ClaimID:   claimID,
		Reason:    reason,
		FlaggedAt: time.Now().UTC(),
	})
}

// IsFlagged reports whether a claim carries an investigation flag.
func (s *ClaimStore) IsFlagged(claimID string) (bool, error) {
	var flag InvestigationFlag
	err := s.getJSON(investigationPrefix+claimID, &flag)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DashboardMetrics aggregates claim counts for the overview surface.
type DashboardMetrics struct {
	TotalClaims      int     `json:"total_claims"`
	ApprovedCount    int     `json:"approved_count"`
	DeniedCount      int     `json:"denied_count"`
	EscalatedCount   int     `json:"escalated_count"`
	AutoResolved     int     `json:"auto_resolved_count"`
	FailedCount      int     `json:"failed_count"`
	ApprovalRate     float64 `json:"approval_rate"`
	AvgProcessingSec float64 `json:"avg_processing_time_seconds"`
}

// Dashboard computes aggregate metrics across all claims.
func (s *ClaimStore) Dashboard() (*DashboardMetrics, error) {
	claims, err := s.ListClaims("")
	if err != nil {
		return nil, err
	}

	m := &DashboardMetrics{TotalClaims: len(claims)}
	var processed int
	var totalSec float64

	for _, c := range claims {
		switch c.Status {
		case datatypes.StatusApproved:
			m.ApprovedCount++
		case datatypes.StatusDenied:
			m.DeniedCount++
		case datatypes.StatusEscalated:
			m.EscalatedCount++
		case datatypes.StatusAutoResolved:
			m.AutoResolved++
		case datatypes.StatusFailed:
			m.FailedCount++
		}
		if c.ProcessedAt != nil {
			processed++
			totalSec += c.ProcessedAt.Sub(c.CreatedAt).Seconds()
		}
	}

	decided := m.ApprovedCount + m.DeniedCount + m.AutoResolved
	if decided > 0 {
		m.ApprovalRate = float64(m.ApprovedCount) / float64(decided)
	}
	if processed > 0 {
		m.AvgProcessingSec = totalSec / float64(processed)
	}
	return m, nil
}

// putJSON marshals a value and writes it under key.
func (s *ClaimStore) putJSON(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// getJSON reads key and unmarshals it into out.
func (s *ClaimStore) getJSON(key string, out any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return err
}
