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
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubTool is a configurable tool for executor tests.
type stubTool struct {
	definition ToolDefinition
	result     *Result
	err        error
	delay      time.Duration
}

func (t *stubTool) Name() string               { return t.definition.Name }
func (t *stubTool) Category() ToolCategory     { return t.definition.Category }
func (t *stubTool) Definition() ToolDefinition { return t.definition }

func (t *stubTool) Execute(ctx context.Context, _ map[string]any) (*Result, error) {
	if t.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t.delay):
		}
	}
	return t.result, t.err
}

func stubDefinition(name string) ToolDefinition {
	return ToolDefinition{
		Name:     name,
		Category: CategoryIntake,
		Parameters: map[string]ParamDef{
			"claim_id": {Type: ParamTypeString, Required: true},
		},
	}
}

func TestExecuteSuccess(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{
		definition: stubDefinition("echo"),
		result:     &Result{Output: "ok"},
	})
	executor := NewExecutor(registry, quietLogger())

	record, result := executor.Execute(context.Background(), datatypes.RoleIntake, "echo",
		map[string]any{"claim_id": "CLM-00000001"})

	if !record.Success {
		t.Fatalf("expected success, got failure %q", record.Failure)
	}
	if result == nil || result.Output != "ok" {
		t.Errorf("unexpected result %+v", result)
	}
	if record.ID == "" || record.Role != datatypes.RoleIntake || record.ToolName != "echo" {
		t.Errorf("incomplete record %+v", record)
	}
	if record.Latency < 0 {
		t.Errorf("negative latency %v", record.Latency)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	executor := NewExecutor(NewRegistry(), quietLogger())

	record, result := executor.Execute(context.Background(), datatypes.RoleIntake, "nope", nil)
	if record.Success || result != nil {
		t.Fatal("expected failed record for unknown tool")
	}
	if !strings.HasPrefix(record.Failure, FailureSchema) {
		t.Errorf("expected schema failure, got %q", record.Failure)
	}
}

func TestExecuteSchemaViolations(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{definition: stubDefinition("echo"), result: &Result{Output: "ok"}})
	executor := NewExecutor(registry, quietLogger())

	cases := []struct {
		name string
		args map[string]any
	}{
		{"missing required", map[string]any{}},
		{"wrong type", map[string]any{"claim_id": 42}},
		{"undefined parameter", map[string]any{"claim_id": "CLM-00000001", "extra": true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			record, result := executor.Execute(context.Background(), datatypes.RoleIntake, "echo", tc.args)
			if record.Success || result != nil {
				t.Fatal("expected schema failure")
			}
			if !strings.HasPrefix(record.Failure, FailureSchema) {
				t.Errorf("expected schema failure, got %q", record.Failure)
			}
		})
	}
}

func TestExecuteExecutionError(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{
		definition: stubDefinition("broken"),
		err:        errors.New("backend unreachable"),
	})
	executor := NewExecutor(registry, quietLogger())

	record, result := executor.Execute(context.Background(), datatypes.RoleIntake, "broken",
		map[string]any{"claim_id": "CLM-00000001"})
	if record.Success || result != nil {
		t.Fatal("expected execution failure")
	}
	if !strings.HasPrefix(record.Failure, FailureExecution) {
		t.Errorf("expected execution failure, got %q", record.Failure)
	}
	if !strings.Contains(record.Failure, "backend unreachable") {
		t.Errorf("failure should carry the cause, got %q", record.Failure)
	}
}

func TestExecuteTimeout(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{
		definition: stubDefinition("slow"),
		result:     &Result{Output: "too late"},
		delay:      200 * time.Millisecond,
	})
	executor := NewExecutor(registry, quietLogger()).WithTimeout(20 * time.Millisecond)

	record, result := executor.Execute(context.Background(), datatypes.RoleIntake, "slow",
		map[string]any{"claim_id": "CLM-00000001"})
	if record.Success || result != nil {
		t.Fatal("expected timeout failure")
	}
	if !strings.HasPrefix(record.Failure, FailureTimeout) {
		t.Errorf("expected timeout failure, got %q", record.Failure)
	}
}

func TestValidateArgsEnumAndRange(t *testing.T) {
	minimum := 0.0
	maximum := 1.0
	def := ToolDefinition{
		Name: "tuned",
		Parameters: map[string]ParamDef{
			"mode":  {Type: ParamTypeString, Required: true, Enum: []string{"fast", "thorough"}},
			"score": {Type: ParamTypeFloat, Minimum: &minimum, Maximum: &maximum},
			"dry":   {Type: ParamTypeBool},
		},
	}

	if err := ValidateArgs(&def, map[string]any{"mode": "fast", "score": 0.5, "dry": true}); err != nil {
		t.Errorf("valid args rejected: %v", err)
	}
	if err := ValidateArgs(&def, map[string]any{"mode": "sideways"}); err == nil {
		t.Error("enum violation not caught")
	}
	if err := ValidateArgs(&def, map[string]any{"mode": "fast", "score": 1.5}); err == nil {
		t.Error("range violation not caught")
	}
	if err := ValidateArgs(&def, map[string]any{"mode": "fast", "dry": "yes"}); err == nil {
		t.Error("bool type violation not caught")
	}

	var schemaErr *SchemaError
	err := ValidateArgs(&def, map[string]any{"mode": "sideways"})
	if !errors.As(err, &schemaErr) {
		t.Errorf("expected *SchemaError, got %T", err)
	}
}

func TestRegistryCategoriesAndReplacement(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubTool{definition: ToolDefinition{Name: "a", Category: CategoryIntake}})
	registry.Register(&stubTool{definition: ToolDefinition{Name: "b", Category: CategoryFraud}})

	if registry.Count() != 2 {
		t.Fatalf("expected 2 tools, got %d", registry.Count())
	}
	if got := registry.ForCategory(CategoryIntake); len(got) != 1 || got[0].Name() != "a" {
		t.Errorf("unexpected intake tools %v", got)
	}

	// Re-registering under a new category moves the tool.
	registry.Register(&stubTool{definition: ToolDefinition{Name: "a", Category: CategoryFraud}})
	if registry.Count() != 2 {
		t.Errorf("replacement must not grow the registry, got %d", registry.Count())
	}
	if got := registry.ForCategory(CategoryIntake); len(got) != 0 {
		t.Errorf("tool should have left intake category, got %v", got)
	}
	if got := registry.ForCategory(CategoryFraud); len(got) != 2 {
		t.Errorf("expected 2 fraud tools, got %v", got)
	}
}
