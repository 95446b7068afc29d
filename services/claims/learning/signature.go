// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package learning persists exception resolution patterns.
//
// When a human resolves an escalated claim, the resolution is stored
// under a signature derived from how the claim failed. Future claims
// that fail the same way match the signature and resolve automatically,
// so each category of exception only needs a human once.
package learning

import (
	"strings"

	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
)

// Exception categories. Each names one way a claim fails review.
const (
	CategoryMissingReferral      = "missing_referral"
	CategoryIncompleteSubmission = "incomplete_submission"
	CategoryCodeMismatch         = "code_mismatch"
	CategoryMissingAuthorization = "missing_authorization"
	CategoryInvalidProvider      = "invalid_provider"
	CategoryCoverageExpired      = "coverage_expired"
	CategoryDuplicateClaim       = "duplicate_claim"
	CategoryAmountLimitExceeded  = "amount_limit_exceeded"
	CategoryUnsupportedProcedure = "unsupported_procedure"
	CategoryUnclassified         = "unclassified"
)

// Claim-type buckets group procedures so a pattern learned on one
// office visit applies to other office visits but not to surgeries.
const (
	BucketOfficeVisit = "office-visit"
	BucketImaging     = "imaging"
	BucketSurgery     = "surgery"
	BucketLab         = "lab"
	BucketEyeExam     = "eye-exam"
	BucketGeneral     = "general"
)

// Signature identifies a class of exceptions.
//
// Two escalated claims share a signature when the same stage raised the
// same category of problem for the same kind of procedure. The
// derivation is deterministic: identical snapshots produce identical
// signatures.
type Signature struct {
	// FailedStage is the review stage that raised the exception.
	FailedStage datatypes.Role `json:"failed_stage"`

	// Category is the exception category.
	Category string `json:"category"`

	// Bucket is the claim-type bucket.
	Bucket string `json:"bucket"`
}

// Key returns the stable storage key for the signature.
func (s Signature) Key() string {
	return string(s.FailedStage) + "|" + s.Category + "|" + s.Bucket
}

// String returns the Key.
func (s Signature) String() string {
	return s.Key()
}

// BucketForProcedure maps a CPT code to its claim-type bucket.
func BucketForProcedure(procedureCode string) string {
	switch procedureCode {
	case "99213", "99214", "99215":
		return BucketOfficeVisit
	case "73721":
		return BucketImaging
	case "27447":
		return BucketSurgery
	case "36415", "85025":
		return BucketLab
	case "92004":
		return BucketEyeExam
	default:
		return BucketGeneral
	}
}

// Derive builds the signature for an escalated claim from its reports.
//
// Description:
//
//	Walks the review reports in pipeline order and classifies the first
//	problem found: a negative or Uncertain verdict's rationale decides
//	the category. A run with no classifiable problem (for example a
//	pure low-confidence escalation) derives the unclassified category
//	against the stage that was least confident.
//
// Inputs:
//
//	claim - The escalated claim
//	reports - The run's stage reports
//
// Outputs:
//
//	Signature - Deterministic exception signature
func Derive(claim *datatypes.Claim, reports []datatypes.AgentReport) Signature {
	bucket := BucketForProcedure(claim.ProcedureCode)

	order := []datatypes.Role{
		datatypes.RoleIntake,
		datatypes.RoleEligibility,
		datatypes.RoleClinical,
		datatypes.RoleFraud,
	}

	byRole := make(map[datatypes.Role]*datatypes.AgentReport, len(reports))
	for i := range reports {
		byRole[reports[i].Role] = &reports[i]
	}

	for _, role := range order {
		report, ok := byRole[role]
		if !ok {
			continue
		}
		if !report.Verdict.IsNegative() && report.Verdict != datatypes.VerdictUncertain {
			continue
		}
		return Signature{
			FailedStage: role,
			Category:    categorize(role, report),
			Bucket:      bucket,
		}
	}

	// No problematic report: pin the signature on the least confident
	// stage so equally-shaped escalations still converge.
	weakest := datatypes.RoleAdjudication
	lowest := 2.0
	for _, role := range order {
		if report, ok := byRole[role]; ok && report.Confidence < lowest {
			lowest = report.Confidence
			weakest = role
		}
	}
	return Signature{FailedStage: weakest, Category: CategoryUnclassified, Bucket: bucket}
}

// categorize maps a problematic report to an exception category.
func categorize(role datatypes.Role, report *datatypes.AgentReport) string {
	rationale := strings.ToLower(report.Rationale)

	switch role {
	case datatypes.RoleIntake:
		switch {
		case strings.Contains(rationale, "missing required fields"):
			return CategoryIncompleteSubmission
		case strings.Contains(rationale, "code"):
			return CategoryUnsupportedProcedure
		default:
			return CategoryUnclassified
		}

	case datatypes.RoleEligibility:
		switch {
		case strings.Contains(rationale, "expired"):
			return CategoryCoverageExpired
		case strings.Contains(rationale, "authorization"):
			return CategoryMissingAuthorization
		case strings.Contains(rationale, "referral"):
			return CategoryMissingReferral
		case strings.Contains(rationale, "network") || strings.Contains(rationale, "provider"):
			return CategoryInvalidProvider
		case strings.Contains(rationale, "not recognized"):
			return CategoryCoverageExpired
		default:
			return CategoryUnclassified
		}

	case datatypes.RoleClinical:
		switch {
		case strings.Contains(rationale, "not a recognized"):
			return CategoryUnsupportedProcedure
		case strings.Contains(rationale, "not consistent") || strings.Contains(rationale, "mismatch"):
			return CategoryCodeMismatch
		default:
			return CategoryCodeMismatch
		}

	case datatypes.RoleFraud:
		switch {
		case strings.Contains(rationale, "duplicate") || strings.Contains(rationale, "prior claim"):
			return CategoryDuplicateClaim
		case strings.Contains(rationale, "limit") || strings.Contains(rationale, "amount"):
			return CategoryAmountLimitExceeded
		default:
			return CategoryDuplicateClaim
		}

	default:
		return CategoryUnclassified
	}
}
