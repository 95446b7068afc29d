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

import "time"

// Role identifies an agent stage in the review pipeline.
type Role string

const (
	// RoleIntake validates claim data and extracts entities.
	RoleIntake Role = "intake"

	// RoleEligibility verifies coverage and provider credentials.
	RoleEligibility Role = "eligibility"

	// RoleClinical validates medical codes and their compatibility.
	RoleClinical Role = "clinical"

	// RoleFraud analyzes claim history and scores fraud risk.
	RoleFraud Role = "fraud"

	// RoleAdjudication combines the review verdicts into a decision.
	RoleAdjudication Role = "adjudication"

	// RoleException resolves claims the pipeline could not decide.
	RoleException Role = "exception"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// ReviewRoles returns the roles that run concurrently during parallel review.
func ReviewRoles() []Role {
	return []Role{RoleEligibility, RoleClinical, RoleFraud}
}

// Verdict is a role-specific conclusion with a shared Uncertain fallback.
type Verdict string

const (
	// VerdictDataValid is intake's verdict for a well-formed claim.
	VerdictDataValid Verdict = "DATA_VALID"

	// VerdictDataInvalid is intake's verdict for a malformed claim.
	VerdictDataInvalid Verdict = "DATA_INVALID"

	// VerdictEligible means coverage is active for the claim.
	VerdictEligible Verdict = "ELIGIBLE"

	// VerdictIneligible means coverage is missing or expired.
	VerdictIneligible Verdict = "INELIGIBLE"

	// VerdictCompatible means diagnosis and procedure codes are valid
	// and clinically consistent.
	VerdictCompatible Verdict = "COMPATIBLE"

	// VerdictIncompatible means the codes fail validation or do not match.
	VerdictIncompatible Verdict = "INCOMPATIBLE"

	// VerdictLowRisk means fraud screening passed.
	VerdictLowRisk Verdict = "LOW_RISK"

	// VerdictHighRisk means fraud indicators were found.
	VerdictHighRisk Verdict = "HIGH_RISK"

	// VerdictApprove is adjudication's approving verdict.
	VerdictApprove Verdict = "APPROVE"

	// VerdictDeny is adjudication's denying verdict.
	VerdictDeny Verdict = "DENY"

	// VerdictUncertain is the low-confidence fallback any role may return.
	// It is also synthesized when a stage exhausts its reasoning budget
	// or times out.
	VerdictUncertain Verdict = "UNCERTAIN"
)

// IsNegative reports whether the verdict argues against approval.
func (v Verdict) IsNegative() bool {
	switch v {
	case VerdictDataInvalid, VerdictIneligible, VerdictIncompatible, VerdictHighRisk, VerdictDeny:
		return true
	default:
		return false
	}
}

// StepPhase tags a reasoning step as thought, action, or observation.
type StepPhase string

const (
	// PhaseReason is a thought produced by the reasoning backend.
	PhaseReason StepPhase = "REASON"

	// PhaseAct is a tool invocation request.
	PhaseAct StepPhase = "ACT"

	// PhaseObserve is a tool result (success or structured failure).
	PhaseObserve StepPhase = "OBSERVE"
)

// ReasoningStep is one entry in the append-only reasoning trail.
//
// Steps are never mutated or removed after being appended; together they
// form the replayable audit trail for a claim.
type ReasoningStep struct {
	// Ordinal is the 1-indexed position within the stage's trail.
	Ordinal int `json:"ordinal"`

	// Role is the stage that produced the step.
	Role Role `json:"role"`

	// Phase tags the step as REASON, ACT, or OBSERVE.
	Phase StepPhase `json:"phase"`

	// Content is the thought text, the tool call description, or the
	// tool result summary.
	Content string `json:"content"`

	// ToolName is set for ACT and OBSERVE steps.
	ToolName string `json:"tool_name,omitempty"`

	// Timestamp is when the step was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// ToolRecord is the immutable record of one tool invocation.
type ToolRecord struct {
	// ID is the unique invocation identifier.
	ID string `json:"id"`

	// Role is the stage that invoked the tool.
	Role Role `json:"role"`

	// ToolName is the invoked tool.
	ToolName string `json:"tool_name"`

	// Arguments are the validated arguments the tool ran with.
	Arguments map[string]any `json:"arguments"`

	// Output is the tool's text output on success.
	Output string `json:"output,omitempty"`

	// Failure describes the failure when Success is false
	// (schema_error, execution_error, or timeout).
	Failure string `json:"failure,omitempty"`

	// Success indicates whether the tool completed without error.
	Success bool `json:"success"`

	// Latency is how long the invocation took.
	Latency time.Duration `json:"latency"`

	// Timestamp is when the invocation completed.
	Timestamp time.Time `json:"timestamp"`
}

// AgentReport is one stage's conclusion about a claim.
//
// Reports are immutable once produced. Each stage writes exactly one
// report into its designated workflow slot.
type AgentReport struct {
	// Role is the stage that produced the report.
	Role Role `json:"role"`

	// Verdict is the stage's conclusion.
	Verdict Verdict `json:"verdict"`

	// Confidence is the stage's confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Rationale is the free-text explanation for the verdict.
	Rationale string `json:"rationale"`

	// ToolInvocationIDs references the ToolRecords used to reach the
	// verdict, in invocation order.
	ToolInvocationIDs []string `json:"tool_invocation_ids,omitempty"`

	// StepsTaken is the number of reasoning cycles consumed.
	StepsTaken int `json:"steps_taken"`

	// BudgetExhausted is set when the stage hit its cycle budget and
	// the Uncertain fallback was synthesized.
	BudgetExhausted bool `json:"budget_exhausted,omitempty"`

	// TimedOut is set when the engine cut the stage over to Uncertain.
	TimedOut bool `json:"timed_out,omitempty"`

	// StartedAt is when the stage began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the report was produced.
	CompletedAt time.Time `json:"completed_at"`
}

// Duration returns how long the stage ran.
func (r *AgentReport) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// WorkflowSnapshot is the read-only view of one processing run.
//
// Snapshots are what the persistence and visualization collaborators
// consume; re-reading a completed claim's snapshot never re-triggers
// processing and always returns identical content.
type WorkflowSnapshot struct {
	// ClaimID is the processed claim.
	ClaimID string `json:"claim_id"`

	// EngineState is the engine state the run ended in.
	EngineState string `json:"engine_state"`

	// Reports holds one report per completed stage, in completion order.
	Reports []AgentReport `json:"reports"`

	// Steps is the full reasoning trail across all stages.
	Steps []ReasoningStep `json:"steps"`

	// ToolLog is the full tool invocation log across all stages.
	ToolLog []ToolRecord `json:"tool_log"`

	// Decision is the terminal decision, if one was reached.
	Decision *Decision `json:"decision,omitempty"`

	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run ended.
	CompletedAt time.Time `json:"completed_at"`
}

// Report returns the report for a role, or nil if that stage has not
// completed.
func (s *WorkflowSnapshot) Report(role Role) *AgentReport {
	for i := range s.Reports {
		if s.Reports[i].Role == role {
			return &s.Reports[i]
		}
	}
	return nil
}
