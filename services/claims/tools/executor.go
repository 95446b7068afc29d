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
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
)

// DefaultToolTimeout bounds a single tool invocation unless the tool's
// definition overrides it.
const DefaultToolTimeout = 10 * time.Second

// Executor validates and runs tool invocations.
//
// A failed invocation is not an error to the caller: the failure is
// encoded in the returned record so the reasoning loop can surface it as
// an observation and continue. The executor never panics across a tool
// boundary.
//
// Thread Safety: Executor is safe for concurrent use.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
	timeout  time.Duration
}

// NewExecutor creates an executor over a registry.
//
// Inputs:
//
//	registry - Source of tools
//	logger - Structured logger; must not be nil
func NewExecutor(registry *Registry, logger *slog.Logger) *Executor {
	return &Executor{
		registry: registry,
		logger:   logger,
		timeout:  DefaultToolTimeout,
	}
}

// WithTimeout overrides the default per-invocation timeout.
func (e *Executor) WithTimeout(timeout time.Duration) *Executor {
	if timeout > 0 {
		e.timeout = timeout
	}
	return e
}

// Execute runs one tool invocation for a role.
//
// Description:
//
//	Resolves the tool, validates arguments against its schema, then runs
//	it under a per-invocation timeout. Unknown tools, schema violations,
//	execution errors, and timeouts all produce a completed record with
//	Success=false and a Failure kind; the caller decides what to do with
//	the observation.
//
// Inputs:
//
//	ctx - Context for cancellation; the invocation deadline is layered on
//	role - The agent role invoking the tool
//	toolName - The tool to invoke
//	args - Raw arguments from the reasoning backend
//
// Outputs:
//
//	*datatypes.ToolRecord - Immutable invocation record (never nil)
//	*Result - The tool result when Success is true, nil otherwise
//
// Thread Safety: This method is safe for concurrent use.
func (e *Executor) Execute(ctx context.Context, role datatypes.Role, toolName string, args map[string]any) (*datatypes.ToolRecord, *Result) {
	record := &datatypes.ToolRecord{
		ID:        uuid.NewString(),
		Role:      role,
		ToolName:  toolName,
		Arguments: args,
	}
	start := time.Now()

	tool, ok := e.registry.Get(toolName)
	if !ok {
		e.finish(record, start, "", FailureSchema, fmt.Sprintf("%v: %s", ErrUnknownTool, toolName))
		return record, nil
	}

	def := tool.Definition()
	if err := ValidateArgs(&def, args); err != nil {
		e.finish(record, start, "", FailureSchema, err.Error())
		return record, nil
	}

	timeout := e.timeout
	if def.Timeout > 0 {
		timeout = def.Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := e.run(execCtx, tool, args)
	if err != nil {
		kind := FailureExecution
		if execCtx.Err() == context.DeadlineExceeded {
			kind = FailureTimeout
			err = fmt.Errorf("%w after %s", ErrToolTimeout, timeout)
		}
		e.finish(record, start, "", kind, err.Error())
		return record, nil
	}

	e.finish(record, start, result.Output, "", "")
	return record, result
}

// run invokes the tool and converts panics into execution errors.
//
// The tool runs in its own goroutine so a stuck implementation cannot
// block past the deadline; the goroutine's outcome is delivered over a
// buffered channel and discarded if the deadline wins.
func (e *Executor) run(ctx context.Context, tool Tool, args map[string]any) (*Result, error) {
	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("tool panicked", "tool", tool.Name(), "panic", r)
				done <- outcome{err: fmt.Errorf("tool %s panicked: %v", tool.Name(), r)}
			}
		}()
		result, err := tool.Execute(ctx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		if out.result == nil {
			return nil, fmt.Errorf("tool %s returned no result", tool.Name())
		}
		return out.result, nil
	}
}

// finish stamps the record with its outcome and logs it.
func (e *Executor) finish(record *datatypes.ToolRecord, start time.Time, output, failureKind, failureDetail string) {
	record.Latency = time.Since(start)
	record.Timestamp = time.Now().UTC()
	record.Success = failureKind == ""
	record.Output = output
	if failureKind != "" {
		record.Failure = failureKind + ": " + failureDetail
		e.logger.Warn("tool invocation failed",
			"tool", record.ToolName,
			"role", record.Role,
			"failure", failureKind,
			"detail", failureDetail,
			"latency_ms", record.Latency.Milliseconds())
		return
	}
	e.logger.Debug("tool invocation completed",
		"tool", record.ToolName,
		"role", record.Role,
		"latency_ms", record.Latency.Milliseconds())
}

// ValidateArgs checks raw arguments against a tool definition.
//
// Description:
//
//	Rejects missing required parameters, parameters not in the schema,
//	type mismatches, enum violations, and numeric range violations.
//	JSON numbers arrive as float64; integers within a float argument are
//	accepted for number parameters.
//
// Outputs:
//
//	error - *SchemaError describing the first violation, or nil
func ValidateArgs(def *ToolDefinition, args map[string]any) error {
	for name, param := range def.Parameters {
		value, present := args[name]
		if !present {
			if param.Required {
				return &SchemaError{Parameter: name, Message: "required parameter is missing"}
			}
			continue
		}
		if err := validateValue(name, param, value); err != nil {
			return err
		}
	}

	for name := range args {
		if _, ok := def.Parameters[name]; !ok {
			return &SchemaError{Parameter: name, Message: "parameter is not defined for tool " + def.Name}
		}
	}
	return nil
}

func validateValue(name string, param ParamDef, value any) error {
	switch param.Type {
	case ParamTypeString:
		s, ok := value.(string)
		if !ok {
			return &SchemaError{Parameter: name, Message: fmt.Sprintf("expected string, got %T", value)}
		}
		if len(param.Enum) > 0 {
			for _, allowed := range param.Enum {
				if s == allowed {
					return nil
				}
			}
			return &SchemaError{Parameter: name, Message: fmt.Sprintf("value %q is not one of %v", s, param.Enum)}
		}
	case ParamTypeFloat:
		f, ok := toFloat(value)
		if !ok {
			return &SchemaError{Parameter: name, Message: fmt.Sprintf("expected number, got %T", value)}
		}
		if param.Minimum != nil && f < *param.Minimum {
			return &SchemaError{Parameter: name, Message: fmt.Sprintf("value %v is below minimum %v", f, *param.Minimum)}
		}
		if param.Maximum != nil && f > *param.Maximum {
			return &SchemaError{Parameter: name, Message: fmt.Sprintf("value %v is above maximum %v", f, *param.Maximum)}
		}
	case ParamTypeBool:
		if _, ok := value.(bool); !ok {
			return &SchemaError{Parameter: name, Message: fmt.Sprintf("expected boolean, got %T", value)}
		}
	default:
		return &SchemaError{Parameter: name, Message: fmt.Sprintf("unsupported parameter type %q", param.Type)}
	}
	return nil
}

// toFloat widens the numeric types JSON and Go callers supply.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
