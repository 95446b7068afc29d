// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine orchestrates claim processing runs.
//
// The engine owns the workflow state machine: intake first, then the
// three review stages in parallel behind a barrier, then adjudication,
// with exception handling for claims the pipeline cannot decide. The
// engine is the only writer of claim status and the only component that
// records decisions.
package engine

import "errors"

// EngineState is a phase of one processing run.
type EngineState string

const (
	// StateIntake is the initial phase: data validation.
	StateIntake EngineState = "INTAKE"

	// StateParallelReview runs eligibility, clinical, and fraud
	// concurrently.
	StateParallelReview EngineState = "PARALLEL_REVIEW"

	// StateAdjudication combines the review reports.
	StateAdjudication EngineState = "ADJUDICATION"

	// StateExceptionHandling resolves claims adjudication could not.
	StateExceptionHandling EngineState = "EXCEPTION_HANDLING"

	// StateComplete is the terminal success phase.
	StateComplete EngineState = "COMPLETE"

	// StateFailed is the terminal failure phase: bad intake data, a
	// backend outage across all stages, or a run timeout.
	StateFailed EngineState = "FAILED"
)

// String returns the string representation of the state.
func (s EngineState) String() string {
	return string(s)
}

// IsTerminal reports whether the state ends the run.
func (s EngineState) IsTerminal() bool {
	return s == StateComplete || s == StateFailed
}

// AllStates returns every engine state.
func AllStates() []EngineState {
	return []EngineState{
		StateIntake,
		StateParallelReview,
		StateAdjudication,
		StateExceptionHandling,
		StateComplete,
		StateFailed,
	}
}

// Sentinel errors for the engine.
var (
	// ErrInvalidTransition indicates a disallowed state transition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrClaimNotFound indicates the claim does not exist.
	ErrClaimNotFound = errors.New("claim not found")

	// ErrAlreadyProcessing indicates another run owns the claim.
	ErrAlreadyProcessing = errors.New("claim is already being processed")

	// ErrClaimTerminal indicates the claim already reached a terminal
	// status and cannot be reprocessed.
	ErrClaimTerminal = errors.New("claim is in a terminal status")

	// ErrNotEscalated indicates a resolution was submitted for a claim
	// that is not waiting on human review.
	ErrNotEscalated = errors.New("claim is not awaiting human review")
)
