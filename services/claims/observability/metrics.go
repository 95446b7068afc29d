// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for claim processing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
)

// Metrics holds the claim processing instruments.
//
// Thread Safety: All methods are safe for concurrent use.
type Metrics struct {
	claimsProcessed *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	toolInvocations *prometheus.CounterVec
	autoResolutions prometheus.Counter
	escalations     prometheus.Counter
	activeRuns      prometheus.Gauge
}

// NewMetrics creates and registers the instruments.
//
// Inputs:
//
//	reg - Target registry; tests pass a fresh prometheus.NewRegistry()
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		claimsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claimpilot",
			Name:      "claims_processed_total",
			Help:      "Processed claims by terminal status.",
		}, []string{"status"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "claimpilot",
			Name:      "stage_duration_seconds",
			Help:      "Stage execution time by role.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"role"}),
		toolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claimpilot",
			Name:      "tool_invocations_total",
			Help:      "Tool invocations by tool name and result.",
		}, []string{"tool", "result"}),
		autoResolutions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "claimpilot",
			Name:      "auto_resolutions_total",
			Help:      "Claims resolved by learned patterns without a human.",
		}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "claimpilot",
			Name:      "escalations_total",
			Help:      "Claims escalated to human review.",
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "claimpilot",
			Name:      "active_runs",
			Help:      "Processing runs currently in flight.",
		}),
	}

	reg.MustRegister(
		m.claimsProcessed,
		m.stageDuration,
		m.toolInvocations,
		m.autoResolutions,
		m.escalations,
		m.activeRuns,
	)
	return m
}

// RunStarted marks a processing run in flight.
func (m *Metrics) RunStarted() {
	m.activeRuns.Inc()
}

// RunFinished marks a run complete and counts its terminal status.
func (m *Metrics) RunFinished(status datatypes.ClaimStatus) {
	m.activeRuns.Dec()
	m.claimsProcessed.WithLabelValues(string(status)).Inc()
}

// ObserveStage records a stage's duration.
func (m *Metrics) ObserveStage(role datatypes.Role, d time.Duration) {
	m.stageDuration.WithLabelValues(string(role)).Observe(d.Seconds())
}

// RecordToolInvocation counts one tool invocation.
func (m *Metrics) RecordToolInvocation(tool string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.toolInvocations.WithLabelValues(tool, result).Inc()
}

// RecordAutoResolution counts a pattern-driven resolution.
func (m *Metrics) RecordAutoResolution() {
	m.autoResolutions.Inc()
}

// RecordEscalation counts an escalation to human review.
func (m *Metrics) RecordEscalation() {
	m.escalations.Inc()
}
