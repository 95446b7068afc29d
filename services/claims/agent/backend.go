// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent implements the bounded reason-act-observe loop the claim
// review stages run on.
//
// A stage holds a role, a reasoning backend, and a slice of the tool
// registry. Each cycle the backend emits a directive: either a tool call
// or a final verdict. The loop executes tool calls, feeds observations
// back, and enforces the step budget so no stage can run unbounded. A
// stage always produces a report; when it cannot reach a grounded
// verdict it reports Uncertain rather than guessing.
package agent

import (
	"context"
	"errors"

	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
	"github.com/AleutianAI/claimpilot/services/claims/tools"
)

// ErrBackendUnavailable indicates the reasoning backend cannot be
// reached at all. It is distinct from a malformed response, which the
// loop absorbs as a no-op observation.
var ErrBackendUnavailable = errors.New("reasoning backend unavailable")

// ToolCall asks the loop to execute one tool.
type ToolCall struct {
	// Name is the tool to invoke.
	Name string `json:"name"`

	// Arguments are the raw tool arguments.
	Arguments map[string]any `json:"arguments"`
}

// VerdictDirective concludes the stage.
type VerdictDirective struct {
	// Verdict is the stage's conclusion.
	Verdict datatypes.Verdict `json:"verdict"`

	// Confidence is the backend's confidence in [0,1]. Out-of-range
	// values are clamped by the loop.
	Confidence float64 `json:"confidence"`

	// Rationale explains the verdict.
	Rationale string `json:"rationale"`
}

// Directive is one backend decision.
//
// At most one of ToolCall and Verdict is set. A directive with neither
// is malformed; the loop records it as a no-op reasoning step that still
// consumes budget, so a backend stuck emitting garbage runs out of steps
// instead of spinning.
type Directive struct {
	// Thought is the backend's reasoning for this cycle.
	Thought string `json:"thought"`

	// ToolCall requests a tool execution.
	ToolCall *ToolCall `json:"tool_call,omitempty"`

	// Verdict concludes the stage.
	Verdict *VerdictDirective `json:"verdict,omitempty"`
}

// DecideRequest is the context a backend decides from.
type DecideRequest struct {
	// Role is the stage being run.
	Role datatypes.Role

	// Claim is the claim under review.
	Claim *datatypes.Claim

	// Tools are the definitions the role may call.
	Tools []tools.ToolDefinition

	// PriorReports are completed reports from earlier stages, in
	// completion order. Parallel review stages see only intake's report;
	// adjudication sees all four.
	PriorReports []datatypes.AgentReport

	// Steps is this stage's reasoning trail so far.
	Steps []datatypes.ReasoningStep

	// Records is this stage's tool invocation log so far, in order.
	Records []datatypes.ToolRecord
}

// ReasoningBackend produces the next directive for a stage.
//
// Implementations must be safe for concurrent use; the engine runs the
// three review stages in parallel against one backend instance.
type ReasoningBackend interface {
	// Decide returns the next directive.
	//
	// Outputs:
	//   *Directive - The decision; may be malformed (no-op)
	//   error - ErrBackendUnavailable (possibly wrapped) when the
	//           backend cannot be reached; other errors are treated
	//           the same way
	Decide(ctx context.Context, req *DecideRequest) (*Directive, error)
}
