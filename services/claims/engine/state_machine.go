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
	"fmt"
	"sync"
)

// StateMachine enforces the workflow transition graph:
//
//	INTAKE → PARALLEL_REVIEW        : Claim data validated
//	INTAKE → FAILED                 : Data invalid or backend down
//	PARALLEL_REVIEW → ADJUDICATION  : All review stages reported
//	PARALLEL_REVIEW → FAILED        : Backend down across all stages
//	ADJUDICATION → COMPLETE         : Confident approve or deny
//	ADJUDICATION → EXCEPTION_HANDLING : Inconclusive reviews
//	ADJUDICATION → FAILED           : Backend down
//	EXCEPTION_HANDLING → COMPLETE   : Auto-resolved or escalated
//	EXCEPTION_HANDLING → FAILED     : Resolution machinery failed
//
// Thread Safety:
//
//	StateMachine is safe for concurrent use.
type StateMachine struct {
	mu sync.RWMutex

	// transitions maps (from, to) pairs that are valid.
	transitions map[EngineState]map[EngineState]bool
}

// NewStateMachine creates the workflow state machine.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[EngineState]map[EngineState]bool),
	}

	for _, state := range AllStates() {
		sm.transitions[state] = make(map[EngineState]bool)
	}

	sm.addTransition(StateIntake, StateParallelReview)
	sm.addTransition(StateIntake, StateFailed)

	sm.addTransition(StateParallelReview, StateAdjudication)
	sm.addTransition(StateParallelReview, StateFailed)

	sm.addTransition(StateAdjudication, StateComplete)
	sm.addTransition(StateAdjudication, StateExceptionHandling)
	sm.addTransition(StateAdjudication, StateFailed)

	sm.addTransition(StateExceptionHandling, StateComplete)
	sm.addTransition(StateExceptionHandling, StateFailed)

	return sm
}

// addTransition registers a valid transition.
func (sm *StateMachine) addTransition(from, to EngineState) {
	sm.transitions[from][to] = true
}

// CanTransition checks if a transition is valid.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) CanTransition(from, to EngineState) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Transition moves a workflow to a new state.
//
// Outputs:
//
//	error - ErrInvalidTransition if the transition is not allowed
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) Transition(w *WorkflowState, to EngineState) error {
	from := w.State()
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	w.setState(to)
	return nil
}

// ValidTransitionsFrom returns all valid target states.
//
// Thread Safety: This method is safe for concurrent use.
func (sm *StateMachine) ValidTransitionsFrom(from EngineState) []EngineState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var result []EngineState
	if toMap, ok := sm.transitions[from]; ok {
		for state, valid := range toMap {
			if valid {
				result = append(result, state)
			}
		}
	}
	return result
}
