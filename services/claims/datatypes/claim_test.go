// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"regexp"
	"testing"
	"time"
)

func TestNewClaimID(t *testing.T) {
	pattern := regexp.MustCompile(`^CLM-[0-9A-F]{8}$`)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewClaimID()
		if !pattern.MatchString(id) {
			t.Fatalf("malformed claim ID %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate claim ID %q", id)
		}
		seen[id] = true
	}
}

func TestNewClaim(t *testing.T) {
	sub := ClaimSubmission{
		PatientName:   "John Smith",
		PatientID:     "PAT-001",
		PolicyNumber:  "POL-12345",
		DiagnosisCode: "Z00.00",
		ProcedureCode: "99213",
		ClaimAmount:   150,
		ServiceDate:   "2026-08-01",
	}
	claim := NewClaim(sub)

	if claim.Status != StatusSubmitted {
		t.Errorf("new claims start SUBMITTED, got %s", claim.Status)
	}
	if claim.ID == "" || claim.CreatedAt.IsZero() {
		t.Error("ID and CreatedAt must be set")
	}
	if claim.ProcessedAt != nil {
		t.Error("ProcessedAt must be nil before processing")
	}
}

func TestServiceDay(t *testing.T) {
	sub := ClaimSubmission{ServiceDate: "2026-08-01"}
	day, err := sub.ServiceDay()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	if !day.Equal(want) {
		t.Errorf("got %v, want %v", day, want)
	}

	sub.ServiceDate = "08/01/2026"
	if _, err := sub.ServiceDay(); err == nil {
		t.Error("expected an error for a non-ISO date")
	}
}

func TestClaimStatusIsTerminal(t *testing.T) {
	terminal := []ClaimStatus{StatusApproved, StatusDenied, StatusAutoResolved, StatusEscalated, StatusFailed}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
	for _, s := range []ClaimStatus{StatusSubmitted, StatusProcessing} {
		if s.IsTerminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
}

func TestVerdictIsNegative(t *testing.T) {
	negative := []Verdict{VerdictDataInvalid, VerdictIneligible, VerdictIncompatible, VerdictHighRisk, VerdictDeny}
	for _, v := range negative {
		if !v.IsNegative() {
			t.Errorf("%s must be negative", v)
		}
	}
	positive := []Verdict{VerdictDataValid, VerdictEligible, VerdictCompatible, VerdictLowRisk, VerdictApprove, VerdictUncertain}
	for _, v := range positive {
		if v.IsNegative() {
			t.Errorf("%s must not be negative", v)
		}
	}
}

func TestStatusForOutcome(t *testing.T) {
	tests := []struct {
		outcome DecisionOutcome
		source  DecisionSource
		want    ClaimStatus
	}{
		{OutcomeApproved, SourceAdjudication, StatusApproved},
		{OutcomeDenied, SourceAdjudication, StatusDenied},
		{OutcomeEscalated, SourceException, StatusEscalated},
		{OutcomeApproved, SourceHuman, StatusApproved},
		{OutcomeApproved, SourceAutoResolution, StatusAutoResolved},
		{OutcomeDenied, SourceAutoResolution, StatusAutoResolved},
	}
	for _, tc := range tests {
		got, err := StatusForOutcome(tc.outcome, tc.source)
		if err != nil {
			t.Errorf("StatusForOutcome(%s, %s): %v", tc.outcome, tc.source, err)
			continue
		}
		if got != tc.want {
			t.Errorf("StatusForOutcome(%s, %s) = %s, want %s", tc.outcome, tc.source, got, tc.want)
		}
	}

	if _, err := StatusForOutcome("MAYBE", SourceAdjudication); err == nil {
		t.Error("expected an error for an unknown outcome")
	}
}

func TestReviewRoles(t *testing.T) {
	roles := ReviewRoles()
	if len(roles) != 3 {
		t.Fatalf("expected 3 review roles, got %d", len(roles))
	}
	for _, r := range roles {
		if r == RoleIntake || r == RoleAdjudication {
			t.Errorf("%s is not a review role", r)
		}
	}
}

func TestSnapshotReport(t *testing.T) {
	snap := WorkflowSnapshot{Reports: []AgentReport{
		{Role: RoleIntake, Verdict: VerdictDataValid},
		{Role: RoleFraud, Verdict: VerdictLowRisk},
	}}

	if r := snap.Report(RoleFraud); r == nil || r.Verdict != VerdictLowRisk {
		t.Errorf("unexpected fraud report %+v", r)
	}
	if snap.Report(RoleClinical) != nil {
		t.Error("missing stage must yield nil")
	}
}
