// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
	"github.com/AleutianAI/claimpilot/services/claims/fraud"
	"github.com/AleutianAI/claimpilot/services/claims/validation"
)

// ClaimSource is the claim data surface the domain tools read and write.
//
// *store.ClaimStore satisfies it.
type ClaimSource interface {
	GetClaim(id string) (*datatypes.Claim, error)
	ClaimsForPatient(patientID string) ([]*datatypes.Claim, error)
	FlagInvestigation(claimID, reason string) error
}

// funcTool adapts a closure into the Tool interface. All the claim
// domain tools are funcTools built by RegisterClaimTools.
type funcTool struct {
	definition ToolDefinition
	exec       func(ctx context.Context, args map[string]any) (*Result, error)
}

func (t *funcTool) Name() string               { return t.definition.Name }
func (t *funcTool) Category() ToolCategory     { return t.definition.Category }
func (t *funcTool) Definition() ToolDefinition { return t.definition }

func (t *funcTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	return t.exec(ctx, args)
}

// claimIDParam is the parameter shared by every claim-scoped tool.
func claimIDParam() map[string]ParamDef {
	return map[string]ParamDef{
		"claim_id": {Type: ParamTypeString, Description: "Claim identifier (CLM-XXXXXXXX)", Required: true},
	}
}

// RegisterClaimTools builds the claim processing toolset and registers
// it on the registry.
//
// Description:
//
//	Installs the full domain toolset: intake validation and entity
//	extraction, eligibility checks, clinical code tools, fraud tools
//	backed by the analyzer, and the adjudication decision tools. Tools
//	load claims by ID from the source so every stage operates on the
//	stored record rather than a payload copy.
//
// Inputs:
//
//	registry - Destination registry
//	source - Claim data access
//	analyzer - Fraud scoring
func RegisterClaimTools(registry *Registry, source ClaimSource, analyzer *fraud.Analyzer) {
	load := func(args map[string]any) (*datatypes.Claim, error) {
		id, _ := args["claim_id"].(string)
		claim, err := source.GetClaim(id)
		if err != nil {
			return nil, fmt.Errorf("load claim %s: %w", id, err)
		}
		return claim, nil
	}

	// ---- Intake ----

	registry.Register(&funcTool{
		definition: ToolDefinition{
			Name:        "validate_required_fields",
			Description: "Check that every mandatory claim field is present and well formed",
			Parameters:  claimIDParam(),
			Category:    CategoryIntake,
		},
		exec: func(_ context.Context, args map[string]any) (*Result, error) {
			claim, err := load(args)
			if err != nil {
				return nil, err
			}
			// Structural rules first: claims seeded outside the HTTP
			// layer never passed request binding.
			violations := validation.StructuralErrors(&claim.ClaimSubmission)
			violations = append(violations, validation.ValidateSubmission(&claim.ClaimSubmission)...)
			if len(violations) == 0 {
				return &Result{
					Output: "all required fields are present and valid",
					Data:   map[string]any{"valid": true},
				}, nil
			}
			return &Result{
				Output: "validation failed: " + strings.Join(violations, "; "),
				Data:   map[string]any{"valid": false, "violations": violations},
			}, nil
		},
	})

	registry.Register(&funcTool{
		definition: ToolDefinition{
			Name:        "extract_entities",
			Description: "Extract the structured entities (patient, provider, codes, amount) from a claim",
			Parameters:  claimIDParam(),
			Category:    CategoryIntake,
		},
		exec: func(_ context.Context, args map[string]any) (*Result, error) {
			claim, err := load(args)
			if err != nil {
				return nil, err
			}
			diagDesc, _ := validation.DiagnosisDescription(claim.DiagnosisCode)
			procDesc, _ := validation.ProcedureDescription(claim.ProcedureCode)
			return &Result{
				Output: fmt.Sprintf("patient %s (%s), provider %s, diagnosis %s, procedure %s, amount $%.2f on %s",
					claim.PatientName, claim.PatientID, claim.ProviderName,
					claim.DiagnosisCode, claim.ProcedureCode, claim.ClaimAmount, claim.ServiceDate),
				Data: map[string]any{
					"patient_id":            claim.PatientID,
					"patient_name":          claim.PatientName,
					"provider_name":         claim.ProviderName,
					"provider_npi":          claim.ProviderNPI,
					"diagnosis_code":        claim.DiagnosisCode,
					"diagnosis_description": diagDesc,
					"procedure_code":        claim.ProcedureCode,
					"procedure_description": procDesc,
					"claim_amount":          claim.ClaimAmount,
					"service_date":          claim.ServiceDate,
				},
			}, nil
		},
	})

	// ---- Eligibility ----

	registry.Register(&funcTool{
		definition: ToolDefinition{
			Name:        "check_coverage",
			Description: "Verify the policy is active and covers the service date",
			Parameters:  claimIDParam(),
			Category:    CategoryEligibility,
		},
		exec: func(_ context.Context, args map[string]any) (*Result, error) {
			claim, err := load(args)
			if err != nil {
				return nil, err
			}
			active, reason := coverageStatus(claim)
			return &Result{
				Output: reason,
				Data:   map[string]any{"covered": active, "policy_number": claim.PolicyNumber},
			}, nil
		},
	})

	registry.Register(&funcTool{
		definition: ToolDefinition{
			Name:        "verify_provider",
			Description: "Verify the rendering provider's credentials and network status",
			Parameters:  claimIDParam(),
			Category:    CategoryEligibility,
		},
		exec: func(_ context.Context, args map[string]any) (*Result, error) {
			claim, err := load(args)
			if err != nil {
				return nil, err
			}
			valid, inNetwork, reason := providerStatus(claim)
			return &Result{
				Output: reason,
				Data:   map[string]any{"valid": valid, "in_network": inNetwork, "provider_npi": claim.ProviderNPI},
			}, nil
		},
	})

	registry.Register(&funcTool{
		definition: ToolDefinition{
			Name:        "check_referral",
			Description: "Check whether the procedure needs a referral and whether one is on file",
			Parameters:  claimIDParam(),
			Category:    CategoryEligibility,
		},
		exec: func(_ context.Context, args map[string]any) (*Result, error) {
			claim, err := load(args)
			if err != nil {
				return nil, err
			}
			required := validation.ReferralRequiredProcedures[claim.ProcedureCode]
			onFile := strings.Contains(strings.ToUpper(claim.Notes), "REF-")
			switch {
			case !required:
				return &Result{
					Output: fmt.Sprintf("procedure %s does not require a referral", claim.ProcedureCode),
					Data:   map[string]any{"required": false, "referred": true},
				}, nil
			case onFile:
				return &Result{
					Output: fmt.Sprintf("referral on file for procedure %s", claim.ProcedureCode),
					Data:   map[string]any{"required": true, "referred": true},
				}, nil
			default:
				return &Result{
					Output: fmt.Sprintf("procedure %s requires a referral and no referral is on file", claim.ProcedureCode),
					Data:   map[string]any{"required": true, "referred": false},
				}, nil
			}
		},
	})

	registry.Register(&funcTool{
		definition: ToolDefinition{
			Name:        "check_prior_authorization",
			Description: "Check whether the procedure needs prior authorization and whether one is on file",
			Parameters:  claimIDParam(),
			Category:    CategoryEligibility,
		},
		exec: func(_ context.Context, args map[string]any) (*Result, error) {
			claim, err := load(args)
			if err != nil {
				return nil, err
			}
			required := validation.AuthorizationRequiredProcedures[claim.ProcedureCode]
			onFile := strings.Contains(strings.ToUpper(claim.Notes), "AUTH-")
			switch {
			case !required:
				return &Result{
					Output: fmt.Sprintf("procedure %s does not require prior authorization", claim.ProcedureCode),
					Data:   map[string]any{"required": false, "authorized": true},
				}, nil
			case onFile:
				return &Result{
					Output: fmt.Sprintf("prior authorization on file for procedure %s", claim.ProcedureCode),
					Data:   map[string]any{"required": true, "authorized": true},
				}, nil
			default:
				return &Result{
					Output: fmt.Sprintf("procedure %s requires prior authorization and none is on file", claim.ProcedureCode),
					Data:   map[string]any{"required": true, "authorized": false},
				}, nil
			}
		},
	})

	// ---- Clinical ----

	registry.Register(&funcTool{
		definition: ToolDefinition{
			Name:        "lookup_diagnosis_code",
			Description: "Look up an ICD-10 diagnosis code",
			Parameters: map[string]ParamDef{
				"code": {Type: ParamTypeString, Description: "ICD-10 diagnosis code", Required: true},
			},
			Category: CategoryClinical,
		},
		exec: func(_ context.Context, args map[string]any) (*Result, error) {
			code, _ := args["code"].(string)
			desc, ok := validation.DiagnosisDescription(code)
			if !ok {
				return &Result{
					Output: fmt.Sprintf("diagnosis code %s is not a recognized ICD-10 code", code),
					Data:   map[string]any{"found": false, "code": code},
				}, nil
			}
			return &Result{
				Output: fmt.Sprintf("%s: %s", code, desc),
				Data:   map[string]any{"found": true, "code": code, "description": desc},
			}, nil
		},
	})

	registry.Register(&funcTool{
		definition: ToolDefinition{
			Name:        "lookup_procedure_code",
			Description: "Look up a CPT procedure code",
			Parameters: map[string]ParamDef{
				"code": {Type: ParamTypeString, Description: "CPT procedure code", Required: true},
			},
			Category: CategoryClinical,
		},
		exec: func(_ context.Context, args map[string]any) (*Result, error) {
			code, _ := args["code"].(string)
			desc, ok := validation.ProcedureDescription(code)
			if !ok {
				return &Result{
					Output: fmt.Sprintf("procedure code %s is not a recognized CPT code", code),
					Data:   map[string]any{"found": false, "code": code},
				}, nil
			}
			return &Result{
				Output: fmt.Sprintf("%s: %s", code, desc),
				Data:   map[string]any{"found": true, "code": code, "description": desc},
			}, nil
		},
	})

	registry.Register(&funcTool{
		definition: ToolDefinition{
			Name:        "check_code_compatibility",
			Description: "Check whether a procedure is clinically consistent with a diagnosis",
			Parameters: map[string]ParamDef{
				"diagnosis_code": {Type: ParamTypeString, Description: "ICD-10 diagnosis code", Required: true},
				"procedure_code": {Type: ParamTypeString, Description: "CPT procedure code", Required: true},
			},
			Category: CategoryClinical,
		},
		exec: func(_ context.Context, args map[string]any) (*Result, error) {
			diagnosis, _ := args["diagnosis_code"].(string)
			procedure, _ := args["procedure_code"].(string)
			compatible := validation.CodesCompatible(diagnosis, procedure)
			output := fmt.Sprintf("procedure %s is clinically consistent with diagnosis %s", procedure, diagnosis)
			if !compatible {
				output = fmt.Sprintf("procedure %s is not consistent with diagnosis %s", procedure, diagnosis)
			}
			return &Result{
				Output: output,
				Data:   map[string]any{"compatible": compatible},
			}, nil
		},
	})

	// ---- Fraud ----

	registry.Register(&funcTool{
		definition: ToolDefinition{
			Name:        "query_claim_history",
			Description: "List prior claims for the claim's patient",
			Parameters:  claimIDParam(),
			Category:    CategoryFraud,
		},
		exec: func(_ context.Context, args map[string]any) (*Result, error) {
			claim, err := load(args)
			if err != nil {
				return nil, err
			}
			history, err := source.ClaimsForPatient(claim.PatientID)
			if err != nil {
				return nil, fmt.Errorf("query history for %s: %w", claim.PatientID, err)
			}
			var lines []string
			for _, prior := range history {
				if prior.ID == claim.ID {
					continue
				}
				lines = append(lines, fmt.Sprintf("%s: %s on %s for $%.2f (%s)",
					prior.ID, prior.ProcedureCode, prior.ServiceDate, prior.ClaimAmount, prior.Status))
			}
			if len(lines) == 0 {
				return &Result{
					Output: fmt.Sprintf("no prior claims on record for patient %s", claim.PatientID),
					Data:   map[string]any{"count": 0},
				}, nil
			}
			return &Result{
				Output: fmt.Sprintf("%d prior claim(s):\n%s", len(lines), strings.Join(lines, "\n")),
				Data:   map[string]any{"count": len(lines)},
			}, nil
		},
	})

	registry.Register(&funcTool{
		definition: ToolDefinition{
			Name:        "score_fraud_risk",
			Description: "Score the claim's fraud risk against patient history",
			Parameters:  claimIDParam(),
			Category:    CategoryFraud,
		},
		exec: func(_ context.Context, args map[string]any) (*Result, error) {
			claim, err := load(args)
			if err != nil {
				return nil, err
			}
			assessment, err := analyzer.Score(claim)
			if err != nil {
				return nil, err
			}
			var details []string
			for _, ind := range assessment.Indicators {
				details = append(details, ind.Detail)
			}
			output := fmt.Sprintf("fraud risk score %.2f", assessment.Score)
			if len(details) > 0 {
				output += "; indicators: " + strings.Join(details, "; ")
			}
			return &Result{
				Output: output,
				Data: map[string]any{
					"score":      assessment.Score,
					"flag":       assessment.Flag,
					"indicators": assessment.Indicators,
				},
			}, nil
		},
	})

	registry.Register(&funcTool{
		definition: ToolDefinition{
			Name:        "flag_for_investigation",
			Description: "Flag the claim for manual fraud investigation",
			Parameters: map[string]ParamDef{
				"claim_id": {Type: ParamTypeString, Description: "Claim identifier", Required: true},
				"reason":   {Type: ParamTypeString, Description: "Why the claim is suspicious", Required: true},
			},
			Category:    CategoryFraud,
			SideEffects: true,
		},
		exec: func(_ context.Context, args map[string]any) (*Result, error) {
			claim, err := load(args)
			if err != nil {
				return nil, err
			}
			reason, _ := args["reason"].(string)
			if err := source.FlagInvestigation(claim.ID, reason); err != nil {
				return nil, fmt.Errorf("flag claim %s: %w", claim.ID, err)
			}
			return &Result{
				Output: fmt.Sprintf("claim %s flagged for investigation: %s", claim.ID, reason),
				Data:   map[string]any{"flagged": true},
			}, nil
		},
	})

	// ---- Adjudication ----
	//
	// The decision tools record intent; the engine is the only writer of
	// claim status. This keeps the decision auditable without letting a
	// single tool call short-circuit the combine rule.

	registry.Register(decisionTool(load, "approve_claim",
		"Record an approval recommendation for the claim", string(datatypes.OutcomeApproved)))
	registry.Register(decisionTool(load, "deny_claim",
		"Record a denial recommendation for the claim", string(datatypes.OutcomeDenied)))
	registry.Register(decisionTool(load, "request_human_review",
		"Route the claim to a human reviewer", string(datatypes.OutcomeEscalated)))
}

// decisionTool builds one of the three adjudication intent tools.
func decisionTool(load func(map[string]any) (*datatypes.Claim, error), name, description, outcome string) Tool {
	return &funcTool{
		definition: ToolDefinition{
			Name:        name,
			Description: description,
			Parameters: map[string]ParamDef{
				"claim_id": {Type: ParamTypeString, Description: "Claim identifier", Required: true},
				"reason":   {Type: ParamTypeString, Description: "Rationale for the recommendation", Required: true},
			},
			Category: CategoryAdjudication,
		},
		exec: func(_ context.Context, args map[string]any) (*Result, error) {
			claim, err := load(args)
			if err != nil {
				return nil, err
			}
			if claim.Status.IsTerminal() {
				return nil, fmt.Errorf("claim %s is already terminal (%s)", claim.ID, claim.Status)
			}
			reason, _ := args["reason"].(string)
			return &Result{
				Output: fmt.Sprintf("recorded %s recommendation for claim %s: %s", outcome, claim.ID, reason),
				Data:   map[string]any{"outcome": outcome, "reason": reason},
			}, nil
		},
	}
}

// coverageStatus evaluates the demo coverage rules.
//
// Policies are active when they carry the POL- prefix; a policy ending
// in 99999 is the canonical expired policy, matching the reference data
// the review scenarios use.
func coverageStatus(claim *datatypes.Claim) (bool, string) {
	policy := strings.ToUpper(strings.TrimSpace(claim.PolicyNumber))
	switch {
	case !strings.HasPrefix(policy, "POL-"):
		return false, fmt.Sprintf("policy %s is not recognized by carrier %s", claim.PolicyNumber, claim.InsuranceProvider)
	case strings.HasSuffix(policy, "99999"):
		return false, fmt.Sprintf("policy %s expired before the service date %s", claim.PolicyNumber, claim.ServiceDate)
	default:
		return true, fmt.Sprintf("policy %s is active and covers the service date %s", claim.PolicyNumber, claim.ServiceDate)
	}
}

// providerStatus evaluates the demo provider rules. An NPI starting
// with 555 denotes an out-of-network provider.
func providerStatus(claim *datatypes.Claim) (valid, inNetwork bool, reason string) {
	npi := strings.TrimSpace(claim.ProviderNPI)
	switch {
	case npi == "":
		return true, true, fmt.Sprintf("provider %s has no NPI on file; accepted provisionally", claim.ProviderName)
	case !validation.ValidNPI(npi):
		return false, false, fmt.Sprintf("provider NPI %s is malformed", npi)
	case strings.HasPrefix(npi, "555"):
		return true, false, fmt.Sprintf("provider %s (NPI %s) is out of network", claim.ProviderName, npi)
	default:
		return true, true, fmt.Sprintf("provider %s (NPI %s) is credentialed and in network", claim.ProviderName, npi)
	}
}
