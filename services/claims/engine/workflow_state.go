// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"sync"
	"time"

	"github.com/AleutianAI/claimpilot/services/claims/agent"
	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
)

// WorkflowState accumulates one processing run.
//
// The parallel review stages append their results concurrently; each
// stage writes exactly one report, and reports keep completion order.
// The decision slot is written at most once.
//
// Thread Safety: WorkflowState is safe for concurrent use.
type WorkflowState struct {
	mu sync.RWMutex

	claimID   string
	state     EngineState
	reports   []datatypes.AgentReport
	byRole    map[datatypes.Role]*datatypes.AgentReport
	steps     []datatypes.ReasoningStep
	toolLog   []datatypes.ToolRecord
	decision  *datatypes.Decision
	startedAt time.Time
}

// NewWorkflowState starts a run in the INTAKE state.
func NewWorkflowState(claimID string) *WorkflowState {
	return &WorkflowState{
		claimID:   claimID,
		state:     StateIntake,
		byRole:    make(map[datatypes.Role]*datatypes.AgentReport),
		startedAt: time.Now().UTC(),
	}
}

// State returns the current engine state.
func (w *WorkflowState) State() EngineState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// setState is called by the state machine only.
func (w *WorkflowState) setState(state EngineState) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = state
}

// AddResult appends a stage result: its report in completion order plus
// its trail and tool log. A second report for the same role is ignored;
// the first write to a role's slot wins.
func (w *WorkflowState) AddResult(result *agent.RunResult) {
	w.mu.Lock()
	defer w.mu.Unlock()

	report := result.Report
	if _, taken := w.byRole[report.Role]; taken {
		return
	}
	w.reports = append(w.reports, *report)
	w.byRole[report.Role] = &w.reports[len(w.reports)-1]
	w.steps = append(w.steps, result.Steps...)
	w.toolLog = append(w.toolLog, result.Records...)
}

// Report returns the report for a role, or nil.
func (w *WorkflowState) Report(role datatypes.Role) *datatypes.AgentReport {
	w.mu.RLock()
	defer w.mu.RUnlock()

	report, ok := w.byRole[role]
	if !ok {
		return nil
	}
	copied := *report
	return &copied
}

// Reports returns a copy of all reports in completion order.
func (w *WorkflowState) Reports() []datatypes.AgentReport {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]datatypes.AgentReport, len(w.reports))
	copy(out, w.reports)
	return out
}

// SetDecision records the run's decision. The first decision wins;
// later calls are ignored.
func (w *WorkflowState) SetDecision(decision *datatypes.Decision) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.decision != nil {
		return
	}
	w.decision = decision
}

// Decision returns the recorded decision, or nil.
func (w *WorkflowState) Decision() *datatypes.Decision {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.decision == nil {
		return nil
	}
	copied := *w.decision
	return &copied
}

// Snapshot freezes the run into its read-only view.
func (w *WorkflowState) Snapshot() *datatypes.WorkflowSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snapshot := &datatypes.WorkflowSnapshot{
		ClaimID:     w.claimID,
		EngineState: string(w.state),
		Reports:     make([]datatypes.AgentReport, len(w.reports)),
		Steps:       make([]datatypes.ReasoningStep, len(w.steps)),
		ToolLog:     make([]datatypes.ToolRecord, len(w.toolLog)),
		StartedAt:   w.startedAt,
		CompletedAt: time.Now().UTC(),
	}
	copy(snapshot.Reports, w.reports)
	copy(snapshot.Steps, w.steps)
	copy(snapshot.ToolLog, w.toolLog)

	if w.decision != nil {
		decision := *w.decision
		snapshot.Decision = &decision
	}
	return snapshot
}
