// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for claim processing.
//
// The types here flow between the workflow engine, the agent stages, the
// learning store, and the HTTP handlers. Claims are append-only: the intake
// payload is immutable after submission, and processing accumulates reports,
// reasoning steps, and tool records alongside it rather than mutating it.
package datatypes

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ClaimStatus represents the lifecycle status of a claim.
type ClaimStatus string

const (
	// StatusSubmitted is the initial status after a successful submission.
	StatusSubmitted ClaimStatus = "SUBMITTED"

	// StatusProcessing indicates the workflow engine owns the claim.
	StatusProcessing ClaimStatus = "PROCESSING"

	// StatusApproved indicates adjudication approved the claim.
	StatusApproved ClaimStatus = "APPROVED"

	// StatusDenied indicates adjudication denied the claim.
	StatusDenied ClaimStatus = "DENIED"

	// StatusEscalated indicates the claim is waiting on human review.
	StatusEscalated ClaimStatus = "ESCALATED"

	// StatusAutoResolved indicates a learned resolution pattern decided
	// the claim without human involvement.
	StatusAutoResolved ClaimStatus = "AUTO_RESOLVED"

	// StatusFailed indicates intake could not validate mandatory fields.
	// No stage beyond intake runs for a failed claim.
	StatusFailed ClaimStatus = "FAILED"
)

// String returns the string representation of the status.
func (s ClaimStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the status is a terminal status.
//
// Escalated counts as terminal from the engine's perspective: the run is
// over and only a human resolution supplied later can move the claim on.
func (s ClaimStatus) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusDenied, StatusAutoResolved, StatusEscalated, StatusFailed:
		return true
	default:
		return false
	}
}

// ClaimSubmission is the intake payload supplied by the caller.
//
// Binding tags drive gin's request validation via go-playground/validator;
// the same struct is validated again by the intake stage's tools so that
// claims injected through other transports get identical treatment.
type ClaimSubmission struct {
	// PatientName is the patient's full name.
	PatientName string `json:"patient_name" binding:"required,min=2,max=100"`

	// PatientID is the payer-assigned patient identifier.
	PatientID string `json:"patient_id" binding:"required,min=3,max=50"`

	// InsuranceProvider is the name of the insurance carrier.
	InsuranceProvider string `json:"insurance_provider" binding:"required,max=100"`

	// PolicyNumber is the member's policy identifier.
	PolicyNumber string `json:"policy_number" binding:"required,min=5,max=50"`

	// DiagnosisCode is the ICD-10 diagnosis code.
	DiagnosisCode string `json:"diagnosis_code" binding:"required"`

	// ProcedureCode is the CPT procedure code.
	ProcedureCode string `json:"procedure_code" binding:"required"`

	// ClaimAmount is the billed amount in USD.
	ClaimAmount float64 `json:"claim_amount" binding:"required,gt=0"`

	// ServiceDate is the date the service was provided (YYYY-MM-DD).
	ServiceDate string `json:"service_date" binding:"required,datetime=2006-01-02"`

	// ProviderName is the rendering provider's name.
	ProviderName string `json:"provider_name" binding:"required,max=100"`

	// ProviderNPI is the provider's National Provider Identifier.
	// Optional; when present it must be exactly 10 digits.
	ProviderNPI string `json:"provider_npi,omitempty" binding:"omitempty,len=10,numeric"`

	// Notes carries free-text context from the submitter.
	Notes string `json:"notes,omitempty" binding:"max=500"`
}

// ServiceDay parses ServiceDate into a time.Time at UTC midnight.
//
// Outputs:
//
//	time.Time - The parsed date
//	error - Non-nil if ServiceDate is not YYYY-MM-DD
func (s *ClaimSubmission) ServiceDay() (time.Time, error) {
	return time.Parse("2006-01-02", s.ServiceDate)
}

// Claim is a submitted claim plus its lifecycle metadata.
//
// The embedded submission is immutable after creation. Status and the
// processing timestamps are mutated only by the workflow engine.
type Claim struct {
	ClaimSubmission

	// ID is the unique claim identifier (CLM-XXXXXXXX).
	ID string `json:"claim_id"`

	// Status is the current lifecycle status.
	Status ClaimStatus `json:"status"`

	// CreatedAt is when the claim was submitted.
	CreatedAt time.Time `json:"created_at"`

	// ProcessedAt is when processing reached a terminal status.
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// NewClaim creates a claim from a submission with a fresh identifier.
//
// Inputs:
//
//	sub - The validated submission payload
//
// Outputs:
//
//	*Claim - Claim in SUBMITTED status with a CLM- prefixed ID
func NewClaim(sub ClaimSubmission) *Claim {
	return &Claim{
		ClaimSubmission: sub,
		ID:              NewClaimID(),
		Status:          StatusSubmitted,
		CreatedAt:       time.Now().UTC(),
	}
}

// NewClaimID generates a claim identifier of the form CLM-XXXXXXXX.
func NewClaimID() string {
	return "CLM-" + strings.ToUpper(uuid.NewString()[:8])
}

// DecisionOutcome is the final disposition of a claim.
type DecisionOutcome string

const (
	// OutcomeApproved approves the claim for payment.
	OutcomeApproved DecisionOutcome = "APPROVED"

	// OutcomeDenied denies the claim.
	OutcomeDenied DecisionOutcome = "DENIED"

	// OutcomeEscalated routes the claim to human review.
	OutcomeEscalated DecisionOutcome = "ESCALATED"
)

// DecisionSource records which mechanism produced the decision.
type DecisionSource string

const (
	// SourceAdjudication means the adjudication stage decided directly.
	SourceAdjudication DecisionSource = "adjudication"

	// SourceAutoResolution means a learned pattern resolved the claim.
	SourceAutoResolution DecisionSource = "auto_resolution"

	// SourceHuman means a reviewer supplied the resolution.
	SourceHuman DecisionSource = "human"

	// SourceException means the exception module escalated the claim.
	SourceException DecisionSource = "exception"
)

// Decision is the terminal decision for one claim.
//
// A decision is set at most once per processing run, after adjudication
// completes or exception handling resolves.
type Decision struct {
	// Outcome is the final disposition.
	Outcome DecisionOutcome `json:"outcome"`

	// Rationale is the free-text explanation.
	Rationale string `json:"rationale"`

	// Confidence is the decision confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Source identifies what produced the decision.
	Source DecisionSource `json:"source"`

	// DecidedAt is when the decision was recorded.
	DecidedAt time.Time `json:"decided_at"`
}

// StatusForOutcome maps a decision outcome and source to a claim status.
//
// Auto-resolved approvals and denials surface as AUTO_RESOLVED so that the
// provenance stays visible on the claim itself.
func StatusForOutcome(outcome DecisionOutcome, source DecisionSource) (ClaimStatus, error) {
	if source == SourceAutoResolution {
		return StatusAutoResolved, nil
	}
	switch outcome {
	case OutcomeApproved:
		return StatusApproved, nil
	case OutcomeDenied:
		return StatusDenied, nil
	case OutcomeEscalated:
		return StatusEscalated, nil
	default:
		return "", fmt.Errorf("unknown decision outcome %q", outcome)
	}
}
