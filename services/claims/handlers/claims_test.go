// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/claimpilot/services/claims/agent"
	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
	"github.com/AleutianAI/claimpilot/services/claims/engine"
	"github.com/AleutianAI/claimpilot/services/claims/fraud"
	"github.com/AleutianAI/claimpilot/services/claims/learning"
	"github.com/AleutianAI/claimpilot/services/claims/observability"
	"github.com/AleutianAI/claimpilot/services/claims/routes"
	claimbadger "github.com/AleutianAI/claimpilot/services/claims/storage/badger"
	"github.com/AleutianAI/claimpilot/services/claims/store"
	"github.com/AleutianAI/claimpilot/services/claims/tools"
)

// uncertainClinicalBackend makes every claim escalate by forcing the
// clinical review to Uncertain.
type uncertainClinicalBackend struct {
	inner agent.ReasoningBackend
}

func (b *uncertainClinicalBackend) Decide(ctx context.Context, req *agent.DecideRequest) (*agent.Directive, error) {
	if req.Role == datatypes.RoleClinical {
		return &agent.Directive{
			Verdict: &agent.VerdictDirective{
				Verdict:    datatypes.VerdictUncertain,
				Confidence: 0.2,
				Rationale:  "clinical documentation is insufficient to judge the coding",
			},
		}, nil
	}
	return b.inner.Decide(ctx, req)
}

func newTestRouter(t *testing.T, backend agent.ReasoningBackend) (*gin.Engine, *store.ClaimStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := claimbadger.Open(claimbadger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.New(db)
	patterns := learning.NewStore(db, nil, logger)

	registry := tools.NewRegistry()
	tools.RegisterClaimTools(registry, st, fraud.NewAnalyzer(st))

	promRegistry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(promRegistry)
	eng := engine.New(st, patterns, registry, backend, metrics, nil, logger, engine.DefaultConfig())

	router := gin.New()
	routes.SetupRoutes(router, st, eng, promRegistry)
	return router, st
}

func validSubmission() map[string]any {
	return map[string]any{
		"patient_name":       "Jane Doe",
		"patient_id":         "PAT-042",
		"insurance_provider": "Acme Health",
		"policy_number":      "POL-55555",
		"diagnosis_code":     "Z00.00",
		"procedure_code":     "99213",
		"claim_amount":       180.0,
		"service_date":       time.Now().UTC().AddDate(0, 0, -3).Format("2006-01-02"),
		"provider_name":      "Dr. Lee",
		"provider_npi":       "1234567890",
	}
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func submitClaim(t *testing.T, router *gin.Engine) string {
	t.Helper()
	rec := doJSON(router, http.MethodPost, "/v1/claims", validSubmission())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var claim datatypes.Claim
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claim))
	require.NotEmpty(t, claim.ID)
	return claim.ID
}

func TestSubmitClaim(t *testing.T) {
	router, _ := newTestRouter(t, agent.NewScriptBackend())

	rec := doJSON(router, http.MethodPost, "/v1/claims", validSubmission())
	require.Equal(t, http.StatusCreated, rec.Code)

	var claim datatypes.Claim
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claim))
	assert.Regexp(t, `^CLM-[0-9A-F]{8}$`, claim.ID)
	assert.Equal(t, datatypes.StatusSubmitted, claim.Status)
}

func TestSubmitClaimRejectsBadPayload(t *testing.T) {
	router, _ := newTestRouter(t, agent.NewScriptBackend())

	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing patient name", func(m map[string]any) { delete(m, "patient_name") }},
		{"zero amount", func(m map[string]any) { m["claim_amount"] = 0 }},
		{"bad service date", func(m map[string]any) { m["service_date"] = "03/15/2026" }},
		{"short npi", func(m map[string]any) { m["provider_npi"] = "123" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := validSubmission()
			tc.mutate(body)
			rec := doJSON(router, http.MethodPost, "/v1/claims", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestProcessClaimEndToEnd(t *testing.T) {
	router, _ := newTestRouter(t, agent.NewScriptBackend())
	claimID := submitClaim(t, router)

	rec := doJSON(router, http.MethodPost, "/v1/claims/"+claimID+"/process", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var snapshot datatypes.WorkflowSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, "COMPLETE", snapshot.EngineState)
	require.NotNil(t, snapshot.Decision)
	assert.Equal(t, datatypes.OutcomeApproved, snapshot.Decision.Outcome)
	assert.Len(t, snapshot.Reports, 5)

	// The claim now reads APPROVED.
	rec = doJSON(router, http.MethodGet, "/v1/claims/"+claimID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var claim datatypes.Claim
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claim))
	assert.Equal(t, datatypes.StatusApproved, claim.Status)
}

func TestProcessUnknownClaim(t *testing.T) {
	router, _ := newTestRouter(t, agent.NewScriptBackend())

	rec := doJSON(router, http.MethodPost, "/v1/claims/CLM-MISSING1/process", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetClaimNotFound(t *testing.T) {
	router, _ := newTestRouter(t, agent.NewScriptBackend())

	rec := doJSON(router, http.MethodGet, "/v1/claims/CLM-MISSING1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListClaimsFiltersByStatus(t *testing.T) {
	router, _ := newTestRouter(t, agent.NewScriptBackend())
	claimID := submitClaim(t, router)
	submitClaim(t, router)

	rec := doJSON(router, http.MethodPost, "/v1/claims/"+claimID+"/process", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodGet, "/v1/claims?status=SUBMITTED", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var listing struct {
		Claims []datatypes.Claim `json:"claims"`
		Count  int               `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Equal(t, 1, listing.Count)
	for _, claim := range listing.Claims {
		assert.Equal(t, datatypes.StatusSubmitted, claim.Status)
	}
}

func TestGetTrace(t *testing.T) {
	router, _ := newTestRouter(t, agent.NewScriptBackend())
	claimID := submitClaim(t, router)

	// No trace before processing.
	rec := doJSON(router, http.MethodGet, "/v1/claims/"+claimID+"/trace", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(router, http.MethodPost, "/v1/claims/"+claimID+"/process", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodGet, "/v1/claims/"+claimID+"/trace", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot datatypes.WorkflowSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.NotEmpty(t, snapshot.Steps)
	assert.NotEmpty(t, snapshot.ToolLog)
}

func TestResolveClaim(t *testing.T) {
	router, _ := newTestRouter(t, &uncertainClinicalBackend{inner: agent.NewScriptBackend()})
	claimID := submitClaim(t, router)

	rec := doJSON(router, http.MethodPost, "/v1/claims/"+claimID+"/process", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot datatypes.WorkflowSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	require.NotNil(t, snapshot.Decision)
	require.Equal(t, datatypes.OutcomeEscalated, snapshot.Decision.Outcome)

	// Reject a malformed resolution first.
	rec = doJSON(router, http.MethodPost, "/v1/claims/"+claimID+"/resolution",
		map[string]any{"outcome": "MAYBE", "rationale": "not sure"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(router, http.MethodPost, "/v1/claims/"+claimID+"/resolution",
		map[string]any{"outcome": "APPROVED", "rationale": "verified records with the provider"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var claim datatypes.Claim
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &claim))
	assert.Equal(t, datatypes.StatusApproved, claim.Status)

	// A second resolution conflicts: the claim is no longer escalated.
	rec = doJSON(router, http.MethodPost, "/v1/claims/"+claimID+"/resolution",
		map[string]any{"outcome": "DENIED", "rationale": "changed my mind entirely"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDashboard(t *testing.T) {
	router, _ := newTestRouter(t, agent.NewScriptBackend())
	claimID := submitClaim(t, router)
	rec := doJSON(router, http.MethodPost, "/v1/claims/"+claimID+"/process", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodGet, "/v1/metrics/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var metrics store.DashboardMetrics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, 1, metrics.TotalClaims)
	assert.InDelta(t, 1.0, metrics.ApprovalRate, 0.001)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, agent.NewScriptBackend())

	rec := doJSON(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
