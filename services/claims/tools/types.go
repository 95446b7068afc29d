// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the tool registry and execution framework for
// the claim review agents.
//
// Tools are the only way an agent touches claim data or records a
// finding. Each tool declares a parameter schema; the executor validates
// arguments against it before execution, and every invocation (success
// or failure) produces an immutable record for the audit trail.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package tools

import (
	"context"
	"errors"
	"time"
)

// ToolCategory scopes a tool to the agent roles allowed to call it.
type ToolCategory string

const (
	// CategoryIntake includes data validation and entity extraction tools.
	CategoryIntake ToolCategory = "intake"

	// CategoryEligibility includes coverage and provider verification tools.
	CategoryEligibility ToolCategory = "eligibility"

	// CategoryClinical includes medical code lookup and compatibility tools.
	CategoryClinical ToolCategory = "clinical"

	// CategoryFraud includes history and risk scoring tools.
	CategoryFraud ToolCategory = "fraud"

	// CategoryAdjudication includes the decision tools.
	CategoryAdjudication ToolCategory = "adjudication"
)

// String returns the string representation of the category.
func (c ToolCategory) String() string {
	return string(c)
}

// ParamType represents the type of a tool parameter.
type ParamType string

const (
	// ParamTypeString is a string parameter.
	ParamTypeString ParamType = "string"

	// ParamTypeFloat is a floating-point parameter.
	ParamTypeFloat ParamType = "number"

	// ParamTypeBool is a boolean parameter.
	ParamTypeBool ParamType = "boolean"
)

// ParamDef defines a single parameter for a tool.
type ParamDef struct {
	// Type is the parameter type.
	Type ParamType `json:"type"`

	// Description explains what the parameter is for.
	Description string `json:"description"`

	// Required indicates if the parameter must be provided.
	Required bool `json:"required"`

	// Enum restricts string values to a set of options.
	Enum []string `json:"enum,omitempty"`

	// Minimum is the minimum value (for number type).
	Minimum *float64 `json:"minimum,omitempty"`

	// Maximum is the maximum value (for number type).
	Maximum *float64 `json:"maximum,omitempty"`
}

// ToolDefinition describes a tool's interface for the reasoning backend.
//
// The structure serializes to a JSON-Schema-like shape for LLM tool
// calling APIs.
type ToolDefinition struct {
	// Name is the unique identifier for the tool.
	Name string `json:"name"`

	// Description explains what the tool does.
	Description string `json:"description"`

	// Parameters defines the input parameters.
	Parameters map[string]ParamDef `json:"parameters"`

	// Category is the role scope for the tool.
	Category ToolCategory `json:"category"`

	// SideEffects indicates if the tool modifies state. Side-effecting
	// tools must be idempotent: retrying an invocation with the same
	// arguments must not compound the effect.
	SideEffects bool `json:"side_effects"`

	// Timeout overrides the executor's default per-invocation timeout.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// RequiredParams returns the required parameter names.
func (d *ToolDefinition) RequiredParams() []string {
	var required []string
	for name, param := range d.Parameters {
		if param.Required {
			required = append(required, name)
		}
	}
	return required
}

// Tool defines the interface for executable tools.
//
// Implementations must be safe for concurrent use.
type Tool interface {
	// Name returns the unique tool name.
	Name() string

	// Category returns the role scope.
	Category() ToolCategory

	// Definition returns the tool's parameter schema.
	Definition() ToolDefinition

	// Execute runs the tool with validated arguments.
	//
	// Inputs:
	//   ctx - Context for cancellation and timeout
	//   args - Input arguments (validated against the schema before call)
	//
	// Outputs:
	//   *Result - Execution result
	//   error - Non-nil if execution failed
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// Result contains the outcome of a tool execution.
type Result struct {
	// Output is a text summary suitable for the reasoning trail.
	Output string `json:"output"`

	// Data carries structured output for programmatic consumers.
	Data map[string]any `json:"data,omitempty"`
}

// Failure kinds recorded on ToolRecord.Failure.
const (
	// FailureSchema indicates the arguments did not match the schema.
	FailureSchema = "schema_error"

	// FailureExecution indicates the tool ran and returned an error.
	FailureExecution = "execution_error"

	// FailureTimeout indicates the invocation exceeded its timeout.
	FailureTimeout = "timeout"
)

// Sentinel errors for tool execution.
var (
	// ErrUnknownTool indicates the requested tool is not registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrToolTimeout indicates the invocation exceeded its deadline.
	ErrToolTimeout = errors.New("tool execution timed out")
)

// SchemaError reports an argument that failed schema validation.
type SchemaError struct {
	// Parameter is the argument name that failed validation.
	Parameter string `json:"parameter"`

	// Message describes the validation failure.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	return e.Parameter + ": " + e.Message
}
