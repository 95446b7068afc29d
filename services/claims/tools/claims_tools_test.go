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
	"testing"
	"time"

	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
	"github.com/AleutianAI/claimpilot/services/claims/fraud"
)

// fakeSource is an in-memory ClaimSource for tool tests.
type fakeSource struct {
	claims  map[string]*datatypes.Claim
	flagged map[string]string
}

func newFakeSource(claims ...*datatypes.Claim) *fakeSource {
	s := &fakeSource{
		claims:  make(map[string]*datatypes.Claim),
		flagged: make(map[string]string),
	}
	for _, c := range claims {
		s.claims[c.ID] = c
	}
	return s
}

func (s *fakeSource) GetClaim(id string) (*datatypes.Claim, error) {
	c, ok := s.claims[id]
	if !ok {
		return nil, fmt.Errorf("claim %s not found", id)
	}
	return c, nil
}

func (s *fakeSource) ClaimsForPatient(patientID string) ([]*datatypes.Claim, error) {
	var out []*datatypes.Claim
	for _, c := range s.claims {
		if c.PatientID == patientID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeSource) FlagInvestigation(claimID, reason string) error {
	s.flagged[claimID] = reason
	return nil
}

func domainClaim(id string) *datatypes.Claim {
	return &datatypes.Claim{
		ClaimSubmission: datatypes.ClaimSubmission{
			PatientName:       "John Smith",
			PatientID:         "PAT-001",
			InsuranceProvider: "Blue Shield",
			PolicyNumber:      "POL-12345",
			DiagnosisCode:     "Z00.00",
			ProcedureCode:     "99213",
			ClaimAmount:       150,
			ServiceDate:       time.Now().UTC().AddDate(0, 0, -7).Format("2006-01-02"),
			ProviderName:      "Dr. Adams",
			ProviderNPI:       "1234567890",
		},
		ID:        id,
		Status:    datatypes.StatusProcessing,
		CreatedAt: time.Now().UTC(),
	}
}

func domainRegistry(source *fakeSource) *Registry {
	registry := NewRegistry()
	RegisterClaimTools(registry, source, fraud.NewAnalyzer(source))
	return registry
}

func run(t *testing.T, registry *Registry, name string, args map[string]any) *Result {
	t.Helper()
	tool, ok := registry.Get(name)
	if !ok {
		t.Fatalf("tool %s not registered", name)
	}
	result, err := tool.Execute(context.Background(), args)
	if err != nil {
		t.Fatalf("execute %s: %v", name, err)
	}
	return result
}

func TestToolsetRegistration(t *testing.T) {
	registry := domainRegistry(newFakeSource())
	if registry.Count() != 15 {
		t.Errorf("expected 15 registered tools, got %d: %v", registry.Count(), registry.Names())
	}
	if got := registry.ForCategory(CategoryEligibility); len(got) != 4 {
		t.Errorf("expected 4 eligibility tools, got %d", len(got))
	}
	if got := registry.ForCategory(CategoryAdjudication); len(got) != 3 {
		t.Errorf("expected 3 adjudication tools, got %d", len(got))
	}
}

func TestValidateRequiredFieldsTool(t *testing.T) {
	claim := domainClaim("CLM-00000001")
	registry := domainRegistry(newFakeSource(claim))

	result := run(t, registry, "validate_required_fields", map[string]any{"claim_id": claim.ID})
	if result.Data["valid"] != true {
		t.Errorf("expected valid claim, got %v", result.Output)
	}

	claim.DiagnosisCode = "X99.99"
	result = run(t, registry, "validate_required_fields", map[string]any{"claim_id": claim.ID})
	if result.Data["valid"] != false || !strings.Contains(result.Output, "X99.99") {
		t.Errorf("expected validation failure mentioning the code, got %v", result.Output)
	}
}

func TestCheckCoverageTool(t *testing.T) {
	active := domainClaim("CLM-00000001")
	expired := domainClaim("CLM-00000002")
	expired.PolicyNumber = "POL-99999"
	unknown := domainClaim("CLM-00000003")
	unknown.PolicyNumber = "XYZ-1234"
	registry := domainRegistry(newFakeSource(active, expired, unknown))

	if result := run(t, registry, "check_coverage", map[string]any{"claim_id": active.ID}); result.Data["covered"] != true {
		t.Errorf("expected active coverage, got %v", result.Output)
	}
	if result := run(t, registry, "check_coverage", map[string]any{"claim_id": expired.ID}); result.Data["covered"] != false {
		t.Errorf("expected expired coverage, got %v", result.Output)
	}
	if result := run(t, registry, "check_coverage", map[string]any{"claim_id": unknown.ID}); result.Data["covered"] != false {
		t.Errorf("expected unrecognized policy, got %v", result.Output)
	}
}

func TestVerifyProviderTool(t *testing.T) {
	inNetwork := domainClaim("CLM-00000001")
	outOfNetwork := domainClaim("CLM-00000002")
	outOfNetwork.ProviderNPI = "5551234567"
	registry := domainRegistry(newFakeSource(inNetwork, outOfNetwork))

	if result := run(t, registry, "verify_provider", map[string]any{"claim_id": inNetwork.ID}); result.Data["in_network"] != true {
		t.Errorf("expected in-network provider, got %v", result.Output)
	}
	if result := run(t, registry, "verify_provider", map[string]any{"claim_id": outOfNetwork.ID}); result.Data["in_network"] != false {
		t.Errorf("expected out-of-network provider, got %v", result.Output)
	}
}

func TestCheckReferralTool(t *testing.T) {
	notRequired := domainClaim("CLM-00000001")
	missing := domainClaim("CLM-00000002")
	missing.ProcedureCode = "92004"
	onFile := domainClaim("CLM-00000003")
	onFile.ProcedureCode = "92004"
	onFile.Notes = "referral REF-4417 from Dr. Patel"
	registry := domainRegistry(newFakeSource(notRequired, missing, onFile))

	if result := run(t, registry, "check_referral", map[string]any{"claim_id": notRequired.ID}); result.Data["referred"] != true {
		t.Errorf("expected no referral requirement, got %v", result.Output)
	}
	result := run(t, registry, "check_referral", map[string]any{"claim_id": missing.ID})
	if result.Data["referred"] != false || !strings.Contains(result.Output, "no referral is on file") {
		t.Errorf("expected missing referral, got %v", result.Output)
	}
	if result := run(t, registry, "check_referral", map[string]any{"claim_id": onFile.ID}); result.Data["referred"] != true {
		t.Errorf("expected referral on file, got %v", result.Output)
	}
}

func TestCheckPriorAuthorizationTool(t *testing.T) {
	notRequired := domainClaim("CLM-00000001")
	missing := domainClaim("CLM-00000002")
	missing.ProcedureCode = "27447"
	onFile := domainClaim("CLM-00000003")
	onFile.ProcedureCode = "27447"
	onFile.Notes = "prior auth AUTH-2201 approved"
	registry := domainRegistry(newFakeSource(notRequired, missing, onFile))

	if result := run(t, registry, "check_prior_authorization", map[string]any{"claim_id": notRequired.ID}); result.Data["authorized"] != true {
		t.Errorf("expected no auth requirement, got %v", result.Output)
	}
	if result := run(t, registry, "check_prior_authorization", map[string]any{"claim_id": missing.ID}); result.Data["authorized"] != false {
		t.Errorf("expected missing authorization, got %v", result.Output)
	}
	if result := run(t, registry, "check_prior_authorization", map[string]any{"claim_id": onFile.ID}); result.Data["authorized"] != true {
		t.Errorf("expected authorization on file, got %v", result.Output)
	}
}

func TestCodeTools(t *testing.T) {
	registry := domainRegistry(newFakeSource())

	if result := run(t, registry, "lookup_diagnosis_code", map[string]any{"code": "E11.9"}); result.Data["found"] != true {
		t.Errorf("expected known diagnosis, got %v", result.Output)
	}
	if result := run(t, registry, "lookup_diagnosis_code", map[string]any{"code": "X99.99"}); result.Data["found"] != false {
		t.Errorf("expected unknown diagnosis, got %v", result.Output)
	}
	if result := run(t, registry, "lookup_procedure_code", map[string]any{"code": "99213"}); result.Data["found"] != true {
		t.Errorf("expected known procedure, got %v", result.Output)
	}

	result := run(t, registry, "check_code_compatibility",
		map[string]any{"diagnosis_code": "Z00.00", "procedure_code": "27447"})
	if result.Data["compatible"] != false {
		t.Errorf("expected incompatible pair, got %v", result.Output)
	}
}

func TestFraudTools(t *testing.T) {
	claim := domainClaim("CLM-00000001")
	prior := domainClaim("CLM-00000000")
	source := newFakeSource(claim, prior)
	registry := domainRegistry(source)

	history := run(t, registry, "query_claim_history", map[string]any{"claim_id": claim.ID})
	if history.Data["count"] != 1 {
		t.Errorf("expected 1 prior claim, got %v", history.Output)
	}

	score := run(t, registry, "score_fraud_risk", map[string]any{"claim_id": claim.ID})
	if _, ok := score.Data["score"].(float64); !ok {
		t.Errorf("expected numeric score, got %v", score.Data)
	}

	run(t, registry, "flag_for_investigation",
		map[string]any{"claim_id": claim.ID, "reason": "duplicate pattern"})
	if source.flagged[claim.ID] != "duplicate pattern" {
		t.Errorf("expected flag recorded, got %v", source.flagged)
	}
}

func TestDecisionToolRejectsTerminalClaim(t *testing.T) {
	claim := domainClaim("CLM-00000001")
	claim.Status = datatypes.StatusApproved
	registry := domainRegistry(newFakeSource(claim))

	tool, _ := registry.Get("approve_claim")
	_, err := tool.Execute(context.Background(),
		map[string]any{"claim_id": claim.ID, "reason": "looks fine"})
	if err == nil {
		t.Error("expected error for terminal claim")
	}
}

func TestDecisionToolRecordsOutcome(t *testing.T) {
	claim := domainClaim("CLM-00000001")
	registry := domainRegistry(newFakeSource(claim))

	result := run(t, registry, "deny_claim",
		map[string]any{"claim_id": claim.ID, "reason": "codes incompatible"})
	if result.Data["outcome"] != string(datatypes.OutcomeDenied) {
		t.Errorf("expected DENIED outcome, got %v", result.Data)
	}
}
