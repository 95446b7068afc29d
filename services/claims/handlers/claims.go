// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the claim processing HTTP API.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
	"github.com/AleutianAI/claimpilot/services/claims/engine"
	"github.com/AleutianAI/claimpilot/services/claims/store"
)

// HealthCheck reports service liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SubmitClaim accepts a claim submission and persists it.
//
// Description:
//
//	Validation happens twice: gin's binding rejects structurally bad
//	payloads here, and the intake stage re-validates business rules
//	when processing starts. A submission that passes binding is stored
//	in SUBMITTED status and assigned a CLM- identifier.
func SubmitClaim(st *store.ClaimStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var sub datatypes.ClaimSubmission
		if err := c.ShouldBindJSON(&sub); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claim := datatypes.NewClaim(sub)
		if err := st.PutClaim(claim); err != nil {
			slog.Error("failed to persist submitted claim", "claim_id", claim.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store claim"})
			return
		}

		slog.Info("claim submitted", "claim_id", claim.ID, "patient_id", claim.PatientID)
		c.JSON(http.StatusCreated, claim)
	}
}

// ProcessClaim runs a submitted claim through the workflow engine.
func ProcessClaim(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimID := c.Param("claimId")

		snapshot, err := eng.Process(c.Request.Context(), claimID)
		if err != nil {
			switch {
			case errors.Is(err, engine.ErrClaimNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "claim not found", "claim_id": claimID})
			case errors.Is(err, engine.ErrAlreadyProcessing):
				c.JSON(http.StatusConflict, gin.H{"error": "claim is already being processed", "claim_id": claimID})
			case errors.Is(err, engine.ErrClaimTerminal):
				c.JSON(http.StatusConflict, gin.H{"error": "claim already reached a terminal status", "claim_id": claimID})
			default:
				slog.Error("processing run failed", "claim_id", claimID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
			}
			return
		}

		c.JSON(http.StatusOK, snapshot)
	}
}

// ListClaims lists claims, optionally filtered by status.
func ListClaims(st *store.ClaimStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := datatypes.ClaimStatus(c.Query("status"))

		claims, err := st.ListClaims(status)
		if err != nil {
			slog.Error("failed to list claims", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list claims"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"claims": claims, "count": len(claims)})
	}
}

// GetClaim returns one claim by ID.
func GetClaim(st *store.ClaimStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimID := c.Param("claimId")

		claim, err := st.GetClaim(claimID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "claim not found", "claim_id": claimID})
				return
			}
			slog.Error("failed to load claim", "claim_id", claimID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load claim"})
			return
		}
		c.JSON(http.StatusOK, claim)
	}
}

// GetTrace returns the full processing trace for a claim: the stage
// reports, the reasoning trail, and the tool log.
func GetTrace(st *store.ClaimStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimID := c.Param("claimId")

		snapshot, err := st.GetSnapshot(claimID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "no processing trace for claim", "claim_id": claimID})
				return
			}
			slog.Error("failed to load trace", "claim_id", claimID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load trace"})
			return
		}
		c.JSON(http.StatusOK, snapshot)
	}
}

// ResolutionRequest is the body for a human exception resolution.
type ResolutionRequest struct {
	// Outcome is the reviewer's decision.
	Outcome string `json:"outcome" binding:"required,oneof=APPROVED DENIED"`

	// Rationale explains the decision and seeds the learned pattern.
	Rationale string `json:"rationale" binding:"required,min=5,max=500"`
}

// ResolveClaim applies a human resolution to an escalated claim.
func ResolveClaim(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		claimID := c.Param("claimId")

		var req ResolutionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claim, err := eng.ResolveException(claimID, datatypes.DecisionOutcome(req.Outcome), req.Rationale)
		if err != nil {
			switch {
			case errors.Is(err, engine.ErrClaimNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "claim not found", "claim_id": claimID})
			case errors.Is(err, engine.ErrNotEscalated):
				c.JSON(http.StatusConflict, gin.H{"error": "claim is not awaiting human review", "claim_id": claimID})
			default:
				slog.Error("failed to resolve exception", "claim_id", claimID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve claim"})
			}
			return
		}

		slog.Info("exception resolved", "claim_id", claimID, "outcome", req.Outcome)
		c.JSON(http.StatusOK, claim)
	}
}

// Dashboard returns aggregate processing metrics.
func Dashboard(st *store.ClaimStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics, err := st.Dashboard()
		if err != nil {
			slog.Error("failed to compute dashboard metrics", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute metrics"})
			return
		}
		c.JSON(http.StatusOK, metrics)
	}
}
