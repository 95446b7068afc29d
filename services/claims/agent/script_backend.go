// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
)

// ScriptBackend is a deterministic reasoning backend.
//
// Each role follows a fixed playbook: run the role's tools in order,
// then derive the verdict from the observations. It exists for offline
// operation and for tests, and doubles as the reference behavior the
// LLM backend is prompted to imitate. Given the same claim and tool
// outputs it always produces the same directives.
//
// Thread Safety: ScriptBackend is stateless and safe for concurrent use.
type ScriptBackend struct{}

// NewScriptBackend creates the deterministic backend.
func NewScriptBackend() *ScriptBackend {
	return &ScriptBackend{}
}

// Decide implements ReasoningBackend.
func (b *ScriptBackend) Decide(_ context.Context, req *DecideRequest) (*Directive, error) {
	switch req.Role {
	case datatypes.RoleIntake:
		return b.intake(req), nil
	case datatypes.RoleEligibility:
		return b.eligibility(req), nil
	case datatypes.RoleClinical:
		return b.clinical(req), nil
	case datatypes.RoleFraud:
		return b.fraud(req), nil
	case datatypes.RoleAdjudication:
		return b.adjudicate(req), nil
	default:
		return &Directive{Thought: fmt.Sprintf("no playbook for role %s", req.Role)}, nil
	}
}

// call builds a tool-call directive.
func call(thought, tool string, args map[string]any) *Directive {
	return &Directive{Thought: thought, ToolCall: &ToolCall{Name: tool, Arguments: args}}
}

// conclude builds a verdict directive.
func conclude(thought string, verdict datatypes.Verdict, confidence float64, rationale string) *Directive {
	return &Directive{
		Thought: thought,
		Verdict: &VerdictDirective{Verdict: verdict, Confidence: confidence, Rationale: rationale},
	}
}

// lastRecord returns the stage's most recent record for a tool.
func lastRecord(req *DecideRequest, tool string) (*datatypes.ToolRecord, bool) {
	for i := len(req.Records) - 1; i >= 0; i-- {
		if req.Records[i].ToolName == tool {
			return &req.Records[i], true
		}
	}
	return nil, false
}

// anyFailed reports whether any invocation so far failed.
func anyFailed(req *DecideRequest) (string, bool) {
	for _, rec := range req.Records {
		if !rec.Success {
			return fmt.Sprintf("%s failed: %s", rec.ToolName, rec.Failure), true
		}
	}
	return "", false
}

func claimArgs(req *DecideRequest) map[string]any {
	return map[string]any{"claim_id": req.Claim.ID}
}

func (b *ScriptBackend) intake(req *DecideRequest) *Directive {
	switch len(req.Records) {
	case 0:
		return call("verify the submission has every mandatory field", "validate_required_fields", claimArgs(req))
	case 1:
		return call("extract the structured entities for downstream stages", "extract_entities", claimArgs(req))
	default:
		if detail, failed := anyFailed(req); failed {
			return conclude("a validation tool failed; the data state is unknown",
				datatypes.VerdictUncertain, 0.3, detail)
		}
		validate, _ := lastRecord(req, "validate_required_fields")
		if strings.Contains(validate.Output, "all required fields") {
			return conclude("the submission is complete and well formed",
				datatypes.VerdictDataValid, 0.95, "all mandatory fields present and valid")
		}
		return conclude("the submission failed validation",
			datatypes.VerdictDataInvalid, 0.9, validate.Output)
	}
}

func (b *ScriptBackend) eligibility(req *DecideRequest) *Directive {
	switch len(req.Records) {
	case 0:
		return call("confirm the policy covers the service date", "check_coverage", claimArgs(req))
	case 1:
		return call("verify the rendering provider", "verify_provider", claimArgs(req))
	case 2:
		return call("confirm a referral where required", "check_referral", claimArgs(req))
	case 3:
		return call("confirm prior authorization where required", "check_prior_authorization", claimArgs(req))
	default:
		if detail, failed := anyFailed(req); failed {
			return conclude("an eligibility check failed to run",
				datatypes.VerdictUncertain, 0.4, detail)
		}

		var problems []string
		coverage, _ := lastRecord(req, "check_coverage")
		if !strings.Contains(coverage.Output, "is active") {
			problems = append(problems, coverage.Output)
		}
		provider, _ := lastRecord(req, "verify_provider")
		if strings.Contains(provider.Output, "out of network") || strings.Contains(provider.Output, "malformed") {
			problems = append(problems, provider.Output)
		}
		referral, _ := lastRecord(req, "check_referral")
		if strings.Contains(referral.Output, "no referral is on file") {
			problems = append(problems, referral.Output)
		}
		auth, _ := lastRecord(req, "check_prior_authorization")
		if strings.Contains(auth.Output, "none is on file") {
			problems = append(problems, auth.Output)
		}

		if len(problems) > 0 {
			return conclude("eligibility requirements are not met",
				datatypes.VerdictIneligible, 0.85, strings.Join(problems, "; "))
		}
		return conclude("coverage, provider, referral, and authorization all check out",
			datatypes.VerdictEligible, 0.9, "policy active, provider in network, referral and authorization satisfied")
	}
}

func (b *ScriptBackend) clinical(req *DecideRequest) *Directive {
	switch len(req.Records) {
	case 0:
		return call("look up the diagnosis code", "lookup_diagnosis_code",
			map[string]any{"code": req.Claim.DiagnosisCode})
	case 1:
		return call("look up the procedure code", "lookup_procedure_code",
			map[string]any{"code": req.Claim.ProcedureCode})
	case 2:
		return call("check the codes are clinically consistent", "check_code_compatibility",
			map[string]any{
				"diagnosis_code": req.Claim.DiagnosisCode,
				"procedure_code": req.Claim.ProcedureCode,
			})
	default:
		if detail, failed := anyFailed(req); failed {
			return conclude("a clinical lookup failed to run",
				datatypes.VerdictUncertain, 0.4, detail)
		}

		diagnosis, _ := lastRecord(req, "lookup_diagnosis_code")
		procedure, _ := lastRecord(req, "lookup_procedure_code")
		if strings.Contains(diagnosis.Output, "not a recognized") || strings.Contains(procedure.Output, "not a recognized") {
			return conclude("one of the medical codes is unknown",
				datatypes.VerdictIncompatible, 0.9, diagnosis.Output+"; "+procedure.Output)
		}

		compat, _ := lastRecord(req, "check_code_compatibility")
		if strings.Contains(compat.Output, "not consistent") {
			return conclude("the procedure does not match the diagnosis",
				datatypes.VerdictIncompatible, 0.85, compat.Output)
		}
		return conclude("codes are valid and clinically consistent",
			datatypes.VerdictCompatible, 0.9, compat.Output)
	}
}

func (b *ScriptBackend) fraud(req *DecideRequest) *Directive {
	switch len(req.Records) {
	case 0:
		return call("review the patient's claim history", "query_claim_history", claimArgs(req))
	case 1:
		return call("score the claim's fraud risk", "score_fraud_risk", claimArgs(req))
	default:
		if detail, failed := anyFailed(req); failed {
			return conclude("a fraud check failed to run",
				datatypes.VerdictUncertain, 0.4, detail)
		}

		score, _ := lastRecord(req, "score_fraud_risk")
		risk := parseRiskScore(score.Output)

		if risk >= 0.7 {
			if _, flagged := lastRecord(req, "flag_for_investigation"); !flagged {
				return call("risk is above the investigation threshold",
					"flag_for_investigation", map[string]any{
						"claim_id": req.Claim.ID,
						"reason":   score.Output,
					})
			}
			return conclude("the claim carries strong fraud indicators",
				datatypes.VerdictHighRisk, risk, score.Output)
		}
		confidence := 1 - risk
		if confidence > 0.95 {
			confidence = 0.95
		}
		return conclude("no significant fraud indicators",
			datatypes.VerdictLowRisk, confidence, score.Output)
	}
}

func (b *ScriptBackend) adjudicate(req *DecideRequest) *Directive {
	outcome, confidence, rationale := CombineReports(req.PriorReports)

	if len(req.Records) == 0 {
		switch outcome {
		case datatypes.OutcomeApproved:
			return call("every review stage passed; record the approval",
				"approve_claim", map[string]any{"claim_id": req.Claim.ID, "reason": rationale})
		case datatypes.OutcomeDenied:
			return call("a review stage found a confident problem; record the denial",
				"deny_claim", map[string]any{"claim_id": req.Claim.ID, "reason": rationale})
		default:
			return call("the reviews are inconclusive; route to a human",
				"request_human_review", map[string]any{"claim_id": req.Claim.ID, "reason": rationale})
		}
	}

	switch outcome {
	case datatypes.OutcomeApproved:
		return conclude("approval recorded", datatypes.VerdictApprove, confidence, rationale)
	case datatypes.OutcomeDenied:
		return conclude("denial recorded", datatypes.VerdictDeny, confidence, rationale)
	default:
		return conclude("human review requested", datatypes.VerdictUncertain, confidence, rationale)
	}
}

// CombineReports applies the adjudication combine rule to the review
// reports.
//
// Description:
//
//	A negative verdict held with confidence at or above 0.5 denies the
//	claim. If no stage is confidently negative but any report is
//	Uncertain or below 0.5 confidence, the claim escalates. Only a full
//	set of confident positive verdicts approves.
//
// Outputs:
//
//	datatypes.DecisionOutcome - APPROVED, DENIED, or ESCALATED
//	float64 - Decision confidence
//	string - Rationale naming the deciding reports
func CombineReports(reports []datatypes.AgentReport) (datatypes.DecisionOutcome, float64, string) {
	var negatives, uncertain []string
	denyConfidence := 0.0
	minConfidence := 1.0

	for _, r := range reports {
		if r.Verdict.IsNegative() && r.Confidence >= 0.5 {
			negatives = append(negatives, fmt.Sprintf("%s: %s (%s)", r.Role, r.Verdict, r.Rationale))
			if r.Confidence > denyConfidence {
				denyConfidence = r.Confidence
			}
			continue
		}
		if r.Verdict == datatypes.VerdictUncertain || r.Confidence < 0.5 {
			uncertain = append(uncertain, fmt.Sprintf("%s: %s (%s)", r.Role, r.Verdict, r.Rationale))
			continue
		}
		if r.Confidence < minConfidence {
			minConfidence = r.Confidence
		}
	}

	switch {
	case len(negatives) > 0:
		return datatypes.OutcomeDenied, denyConfidence, strings.Join(negatives, "; ")
	case len(uncertain) > 0:
		return datatypes.OutcomeEscalated, 0.4, strings.Join(uncertain, "; ")
	case len(reports) == 0:
		return datatypes.OutcomeEscalated, 0, "no review reports available"
	default:
		return datatypes.OutcomeApproved, minConfidence, "all review stages returned confident positive verdicts"
	}
}

// parseRiskScore extracts the numeric score from the score_fraud_risk
// output. An unparseable output reads as maximal risk so a garbled tool
// never quietly passes a claim.
func parseRiskScore(output string) float64 {
	var risk float64
	if _, err := fmt.Sscanf(output, "fraud risk score %f", &risk); err != nil {
		return 1
	}
	return risk
}
