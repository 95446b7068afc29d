// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes wires the claim processing API onto a gin router.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/claimpilot/services/claims/engine"
	"github.com/AleutianAI/claimpilot/services/claims/handlers"
	"github.com/AleutianAI/claimpilot/services/claims/store"
)

// SetupRoutes registers every endpoint.
//
// Inputs:
//
//	router - Target gin engine
//	st - Claim and snapshot store
//	eng - Workflow engine
//	registry - Prometheus registry backing /metrics
func SetupRoutes(router *gin.Engine, st *store.ClaimStore, eng *engine.Engine,
	registry *prometheus.Registry) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	{
		claims := v1.Group("/claims")
		{
			claims.POST("", handlers.SubmitClaim(st))
			claims.GET("", handlers.ListClaims(st))
			claims.GET("/:claimId", handlers.GetClaim(st))
			claims.POST("/:claimId/process", handlers.ProcessClaim(eng))
			claims.GET("/:claimId/trace", handlers.GetTrace(st))
			claims.POST("/:claimId/resolution", handlers.ResolveClaim(eng))
		}
		v1.GET("/metrics/dashboard", handlers.Dashboard(st))
	}
}
