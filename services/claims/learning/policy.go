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
	"sort"
	"time"
)

// Resolution is the remedy a pattern applies.
type Resolution struct {
	// Outcome is APPROVED, DENIED, or ESCALATED.
	Outcome string `json:"outcome"`

	// Rationale explains the remedy.
	Rationale string `json:"rationale"`

	// Confidence carried by auto-applied decisions.
	Confidence float64 `json:"confidence"`
}

// Pattern is a stored resolution for a signature.
type Pattern struct {
	// Signature the pattern was learned under.
	Signature Signature `json:"signature"`

	// Resolution is the remedy.
	Resolution Resolution `json:"resolution"`

	// Version increments each time the pattern is rewritten.
	Version int `json:"version"`

	// Applications counts the auto-resolutions this pattern produced.
	Applications int `json:"applications"`

	// LearnedFrom is the claim whose human resolution taught the pattern.
	LearnedFrom string `json:"learned_from"`

	// CreatedAt is when the pattern was first learned.
	CreatedAt time.Time `json:"created_at"`

	// LastAppliedAt is when the pattern last auto-resolved a claim.
	LastAppliedAt time.Time `json:"last_applied_at,omitempty"`
}

// MatchPolicy decides which stored patterns can serve a signature and
// in what preference order.
//
// Implementations must be deterministic: the same signature against the
// same pattern set always selects the same pattern.
type MatchPolicy interface {
	// Match selects the best pattern for a signature from candidates,
	// or returns false when none is acceptable.
	Match(sig Signature, candidates []Pattern) (*Pattern, bool)
}

// FacetPolicy is the default match policy.
//
// A candidate must share the signature's failed stage and category. An
// exact bucket match is preferred; a candidate with the general bucket
// is accepted as a fallback. Ties break by application count (more
// applied wins), then by most recent application, then by signature key
// for full determinism.
type FacetPolicy struct{}

// NewFacetPolicy returns the default policy.
func NewFacetPolicy() *FacetPolicy {
	return &FacetPolicy{}
}

// Match implements MatchPolicy.
func (p *FacetPolicy) Match(sig Signature, candidates []Pattern) (*Pattern, bool) {
	var eligible []Pattern
	for _, c := range candidates {
		if c.Signature.FailedStage != sig.FailedStage || c.Signature.Category != sig.Category {
			continue
		}
		if c.Signature.Bucket != sig.Bucket && c.Signature.Bucket != BucketGeneral {
			continue
		}
		eligible = append(eligible, c)
	}
	if len(eligible) == 0 {
		return nil, false
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		aExact := a.Signature.Bucket == sig.Bucket
		bExact := b.Signature.Bucket == sig.Bucket
		if aExact != bExact {
			return aExact
		}
		if a.Applications != b.Applications {
			return a.Applications > b.Applications
		}
		if !a.LastAppliedAt.Equal(b.LastAppliedAt) {
			return a.LastAppliedAt.After(b.LastAppliedAt)
		}
		return a.Signature.Key() < b.Signature.Key()
	})

	best := eligible[0]
	return &best, true
}
