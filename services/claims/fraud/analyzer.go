// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fraud scores claims for fraud risk.
//
// The analyzer is deterministic: the same claim against the same history
// always produces the same score. It is exposed to the fraud review stage
// through the score_fraud_risk and query_claim_history tools rather than
// called by the engine directly.
package fraud

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
	"github.com/AleutianAI/claimpilot/services/claims/validation"
)

// FlagThreshold is the risk score at or above which a claim should be
// flagged for investigation.
const FlagThreshold = 0.7

// Signal weights. They sum above 1.0 on purpose; the final score is
// clamped so stacked indicators saturate rather than overflow.
const (
	duplicateWeight     = 0.45
	amountOutlierWeight = 0.30
	velocityWeight      = 0.20
	roundAmountWeight   = 0.10
	highValueNoNPIScore = 0.15
)

// velocityWindow is how many recent claims from the same patient within
// claimsForVelocity trips the velocity signal.
const velocityLimit = 3

// Indicator is one contributing fraud signal.
type Indicator struct {
	// Code is the machine-readable signal name.
	Code string `json:"code"`

	// Detail explains the signal for the audit trail.
	Detail string `json:"detail"`

	// Weight is the signal's contribution to the score.
	Weight float64 `json:"weight"`
}

// Assessment is the result of scoring one claim.
type Assessment struct {
	// Score is the aggregate fraud risk in [0,1].
	Score float64 `json:"score"`

	// Indicators lists the signals that fired, highest weight first.
	Indicators []Indicator `json:"indicators"`

	// Flag is true when Score >= FlagThreshold.
	Flag bool `json:"flag"`
}

// History is the slice of claim records the analyzer needs.
//
// *store.ClaimStore satisfies it; tests supply an in-memory fake.
type History interface {
	ClaimsForPatient(patientID string) ([]*datatypes.Claim, error)
}

// Analyzer scores claims against patient history.
//
// Thread Safety: Analyzer is stateless apart from the History handle and
// is safe for concurrent use.
type Analyzer struct {
	history History
}

// NewAnalyzer creates an analyzer over the given claim history.
func NewAnalyzer(history History) *Analyzer {
	return &Analyzer{history: history}
}

// Score assesses a claim's fraud risk.
//
// Description:
//
//	Combines four weighted signals: duplicate submissions (same patient,
//	procedure, and service date), billed amount far above the procedure's
//	limit, submission velocity for the patient, and a suspiciously round
//	high amount. A high-value claim with no provider NPI adds a smaller
//	fixed contribution.
//
// Inputs:
//
//	claim - The claim under review
//
// Outputs:
//
//	*Assessment - Score, indicators, and the flag recommendation
//	error - Non-nil only if the history query fails
func (a *Analyzer) Score(claim *datatypes.Claim) (*Assessment, error) {
	history, err := a.history.ClaimsForPatient(claim.PatientID)
	if err != nil {
		return nil, fmt.Errorf("query claim history for %s: %w", claim.PatientID, err)
	}

	assessment := &Assessment{}

	if n := countDuplicates(claim, history); n > 0 {
		assessment.add(Indicator{
			Code:   "duplicate_submission",
			Detail: fmt.Sprintf("%d prior claim(s) with same patient, procedure %s, and service date %s", n, claim.ProcedureCode, claim.ServiceDate),
			Weight: duplicateWeight,
		})
	}

	limit := validation.AmountLimit(claim.ProcedureCode)
	if claim.ClaimAmount > 2*limit {
		assessment.add(Indicator{
			Code:   "amount_outlier",
			Detail: fmt.Sprintf("amount $%.2f is more than twice the $%.2f limit for procedure %s", claim.ClaimAmount, limit, claim.ProcedureCode),
			Weight: amountOutlierWeight,
		})
	}

	if n := len(history); n >= velocityLimit {
		assessment.add(Indicator{
			Code:   "submission_velocity",
			Detail: fmt.Sprintf("patient has %d claims on record", n),
			Weight: velocityWeight,
		})
	}

	if claim.ClaimAmount >= 1000 && claim.ClaimAmount == float64(int64(claim.ClaimAmount)) && int64(claim.ClaimAmount)%1000 == 0 {
		assessment.add(Indicator{
			Code:   "round_amount",
			Detail: fmt.Sprintf("high round-number amount $%.0f", claim.ClaimAmount),
			Weight: roundAmountWeight,
		})
	}

	if claim.ClaimAmount > limit && strings.TrimSpace(claim.ProviderNPI) == "" {
		assessment.add(Indicator{
			Code:   "missing_npi_high_value",
			Detail: "over-limit claim submitted without a provider NPI",
			Weight: highValueNoNPIScore,
		})
	}

	if assessment.Score > 1 {
		assessment.Score = 1
	}
	assessment.Flag = assessment.Score >= FlagThreshold
	return assessment, nil
}

// add records an indicator and accumulates its weight.
func (a *Assessment) add(ind Indicator) {
	a.Indicators = append(a.Indicators, ind)
	a.Score += ind.Weight
}

// countDuplicates counts prior claims that look like resubmissions of
// this one. The claim itself is excluded by ID so scoring a stored claim
// does not count it as its own duplicate.
func countDuplicates(claim *datatypes.Claim, history []*datatypes.Claim) int {
	n := 0
	for _, prior := range history {
		if prior.ID == claim.ID {
			continue
		}
		if prior.ProcedureCode == claim.ProcedureCode && prior.ServiceDate == claim.ServiceDate {
			n++
		}
	}
	return n
}
