// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fraud

import (
	"testing"

	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
)

type fakeHistory struct {
	claims []*datatypes.Claim
}

func (f *fakeHistory) ClaimsForPatient(patientID string) ([]*datatypes.Claim, error) {
	var out []*datatypes.Claim
	for _, c := range f.claims {
		if c.PatientID == patientID {
			out = append(out, c)
		}
	}
	return out, nil
}

func claimFor(id, patientID, procedure, serviceDate string, amount float64) *datatypes.Claim {
	return &datatypes.Claim{
		ClaimSubmission: datatypes.ClaimSubmission{
			PatientName:   "John Smith",
			PatientID:     patientID,
			PolicyNumber:  "POL-12345",
			DiagnosisCode: "Z00.00",
			ProcedureCode: procedure,
			ClaimAmount:   amount,
			ServiceDate:   serviceDate,
			ProviderName:  "Dr. Adams",
			ProviderNPI:   "1234567890",
		},
		ID: id,
	}
}

func TestScoreCleanClaim(t *testing.T) {
	a := NewAnalyzer(&fakeHistory{})
	assessment, err := a.Score(claimFor("CLM-00000001", "PAT-001", "99213", "2026-08-01", 150))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if assessment.Score != 0 || assessment.Flag || len(assessment.Indicators) != 0 {
		t.Errorf("expected zero-risk assessment, got %+v", assessment)
	}
}

func TestScoreDuplicateSubmission(t *testing.T) {
	history := &fakeHistory{claims: []*datatypes.Claim{
		claimFor("CLM-00000001", "PAT-001", "99213", "2026-08-01", 150),
	}}
	a := NewAnalyzer(history)

	assessment, err := a.Score(claimFor("CLM-00000002", "PAT-001", "99213", "2026-08-01", 150))
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if len(assessment.Indicators) != 1 || assessment.Indicators[0].Code != "duplicate_submission" {
		t.Fatalf("expected duplicate indicator, got %+v", assessment.Indicators)
	}
	if assessment.Flag {
		t.Error("single duplicate should stay below the flag threshold")
	}
}

func TestScoreExcludesSelf(t *testing.T) {
	claim := claimFor("CLM-00000001", "PAT-001", "99213", "2026-08-01", 150)
	a := NewAnalyzer(&fakeHistory{claims: []*datatypes.Claim{claim}})

	assessment, err := a.Score(claim)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	for _, ind := range assessment.Indicators {
		if ind.Code == "duplicate_submission" {
			t.Error("a stored claim must not count as its own duplicate")
		}
	}
}

func TestScoreStackedIndicatorsFlag(t *testing.T) {
	// Duplicate + amount outlier + velocity crosses the flag threshold.
	history := &fakeHistory{claims: []*datatypes.Claim{
		claimFor("CLM-00000001", "PAT-001", "99213", "2026-08-01", 150),
		claimFor("CLM-00000002", "PAT-001", "99214", "2026-08-02", 200),
		claimFor("CLM-00000003", "PAT-001", "99213", "2026-08-03", 150),
	}}
	a := NewAnalyzer(history)

	suspect := claimFor("CLM-00000004", "PAT-001", "99213", "2026-08-01", 1500)
	assessment, err := a.Score(suspect)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if !assessment.Flag {
		t.Errorf("expected flagged assessment, got score %v with %+v", assessment.Score, assessment.Indicators)
	}
	if assessment.Score > 1 {
		t.Errorf("score must be clamped to 1, got %v", assessment.Score)
	}
}

func TestScoreDeterministic(t *testing.T) {
	history := &fakeHistory{claims: []*datatypes.Claim{
		claimFor("CLM-00000001", "PAT-001", "99213", "2026-08-01", 150),
	}}
	a := NewAnalyzer(history)
	claim := claimFor("CLM-00000002", "PAT-001", "99213", "2026-08-01", 2000)

	first, err := a.Score(claim)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	second, err := a.Score(claim)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if first.Score != second.Score || len(first.Indicators) != len(second.Indicators) {
		t.Errorf("scoring is not deterministic: %v vs %v", first.Score, second.Score)
	}
}

func TestScoreMissingNPIHighValue(t *testing.T) {
	a := NewAnalyzer(&fakeHistory{})
	claim := claimFor("CLM-00000001", "PAT-001", "99213", "2026-08-01", 600)
	claim.ProviderNPI = ""

	assessment, err := a.Score(claim)
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	found := false
	for _, ind := range assessment.Indicators {
		if ind.Code == "missing_npi_high_value" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected missing_npi_high_value indicator, got %+v", assessment.Indicators)
	}
}
