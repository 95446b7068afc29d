// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
	"github.com/AleutianAI/claimpilot/services/claims/tools"
)

// Loop limits.
const (
	// DefaultMaxSteps bounds the reasoning cycles per stage.
	DefaultMaxSteps = 8

	// DefaultRepeatThreshold is how many identical tool calls (same tool,
	// same arguments) trip the loop-detection cutoff.
	DefaultRepeatThreshold = 3
)

// LoopConfig tunes the reasoning loop.
type LoopConfig struct {
	// MaxSteps is the cycle budget per stage run.
	MaxSteps int

	// RepeatThreshold cuts the stage over to Uncertain when the backend
	// keeps issuing the same tool call.
	RepeatThreshold int
}

// DefaultLoopConfig returns the production limits.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		MaxSteps:        DefaultMaxSteps,
		RepeatThreshold: DefaultRepeatThreshold,
	}
}

// RunResult is everything one stage run produced.
type RunResult struct {
	// Report is the stage's conclusion. Never nil on success.
	Report *datatypes.AgentReport

	// Steps is the stage's reasoning trail.
	Steps []datatypes.ReasoningStep

	// Records is the stage's tool invocation log.
	Records []datatypes.ToolRecord
}

// Loop drives one stage's reason-act-observe cycles.
//
// Thread Safety: Loop is stateless between runs and safe for concurrent
// use; each Run call keeps its own trail.
type Loop struct {
	backend  ReasoningBackend
	executor *tools.Executor
	logger   *slog.Logger
	cfg      LoopConfig
}

// NewLoop creates a reasoning loop.
func NewLoop(backend ReasoningBackend, executor *tools.Executor, logger *slog.Logger, cfg LoopConfig) *Loop {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.RepeatThreshold <= 0 {
		cfg.RepeatThreshold = DefaultRepeatThreshold
	}
	return &Loop{backend: backend, executor: executor, logger: logger, cfg: cfg}
}

// Run executes the loop for one role until it concludes or runs out of
// budget.
//
// Description:
//
//	Each cycle asks the backend for a directive. Tool calls are executed
//	through the validating executor, and the observation (success or
//	structured failure) is appended to the trail the backend sees next
//	cycle. Tool failures never abort the stage. The stage concludes when
//	the backend issues a verdict; if the budget is exhausted or the
//	backend loops on an identical tool call, an Uncertain report is
//	synthesized instead.
//
// Inputs:
//
//	ctx - Cancellation and the stage deadline
//	role - The stage role
//	claim - The claim under review
//	toolDefs - Tool definitions visible to this role
//	priorReports - Reports from already-completed stages
//
// Outputs:
//
//	*RunResult - The report, trail, and tool log. On error the Report is
//	             nil but the partial trail and tool log are kept.
//	error - Non-nil only when the backend is unreachable or the context
//	        is canceled; tool failures are not errors
func (l *Loop) Run(ctx context.Context, role datatypes.Role, claim *datatypes.Claim,
	toolDefs []tools.ToolDefinition, priorReports []datatypes.AgentReport) (*RunResult, error) {

	started := time.Now().UTC()
	result := &RunResult{}
	callCounts := make(map[string]int)

	for step := 1; step <= l.cfg.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		directive, err := l.backend.Decide(ctx, &DecideRequest{
			Role:         role,
			Claim:        claim,
			Tools:        toolDefs,
			PriorReports: priorReports,
			Steps:        result.Steps,
			Records:      result.Records,
		})
		if err != nil {
			// Distinguish the deadline from a backend outage so the
			// stage can convert timeouts into an Uncertain report.
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			return result, fmt.Errorf("%w: %s stage: %v", ErrBackendUnavailable, role, err)
		}

		if directive.Thought != "" {
			l.append(result, role, datatypes.PhaseReason, directive.Thought, "")
		}

		switch {
		case directive.Verdict != nil:
			result.Report = l.report(role, directive.Verdict, result, started, step, false)
			return result, nil

		case directive.ToolCall != nil:
			call := directive.ToolCall
			sig := callSignature(call)
			callCounts[sig]++
			if callCounts[sig] >= l.cfg.RepeatThreshold {
				l.logger.Warn("stage stuck on repeated tool call",
					"role", role, "claim_id", claim.ID, "tool", call.Name)
				result.Report = l.uncertainReport(role, result, started, step,
					fmt.Sprintf("stage repeated the %s tool call %d times without progress", call.Name, callCounts[sig]))
				return result, nil
			}

			l.append(result, role, datatypes.PhaseAct,
				fmt.Sprintf("invoke %s", call.Name), call.Name)

			record, toolResult := l.executor.Execute(ctx, role, call.Name, call.Arguments)
			result.Records = append(result.Records, *record)

			observation := record.Failure
			if record.Success && toolResult != nil {
				observation = toolResult.Output
			}
			l.append(result, role, datatypes.PhaseObserve, observation, call.Name)

		default:
			// Malformed directive: no-op observation, budget still burns.
			l.append(result, role, datatypes.PhaseObserve,
				"backend produced no actionable directive", "")
		}
	}

	l.logger.Warn("stage exhausted reasoning budget",
		"role", role, "claim_id", claim.ID, "max_steps", l.cfg.MaxSteps)
	result.Report = l.uncertainReport(role, result, started, l.cfg.MaxSteps,
		fmt.Sprintf("reasoning budget of %d steps exhausted without a verdict", l.cfg.MaxSteps))
	result.Report.BudgetExhausted = true
	return result, nil
}

// append adds a step to the trail with the next ordinal.
func (l *Loop) append(result *RunResult, role datatypes.Role, phase datatypes.StepPhase, content, toolName string) {
	result.Steps = append(result.Steps, datatypes.ReasoningStep{
		Ordinal:   len(result.Steps) + 1,
		Role:      role,
		Phase:     phase,
		Content:   content,
		ToolName:  toolName,
		Timestamp: time.Now().UTC(),
	})
}

// report builds the final report from a verdict directive.
func (l *Loop) report(role datatypes.Role, verdict *VerdictDirective, result *RunResult,
	started time.Time, steps int, budgetExhausted bool) *datatypes.AgentReport {

	confidence := verdict.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	ids := make([]string, 0, len(result.Records))
	for _, rec := range result.Records {
		ids = append(ids, rec.ID)
	}

	return &datatypes.AgentReport{
		Role:              role,
		Verdict:           verdict.Verdict,
		Confidence:        confidence,
		Rationale:         verdict.Rationale,
		ToolInvocationIDs: ids,
		StepsTaken:        steps,
		BudgetExhausted:   budgetExhausted,
		StartedAt:         started,
		CompletedAt:       time.Now().UTC(),
	}
}

// uncertainReport synthesizes the fallback report.
func (l *Loop) uncertainReport(role datatypes.Role, result *RunResult, started time.Time, steps int, rationale string) *datatypes.AgentReport {
	return l.report(role, &VerdictDirective{
		Verdict:    datatypes.VerdictUncertain,
		Confidence: 0,
		Rationale:  rationale,
	}, result, started, steps, false)
}

// callSignature canonicalizes a tool call for repeat detection.
func callSignature(call *ToolCall) string {
	args, err := json.Marshal(call.Arguments)
	if err != nil {
		return call.Name
	}
	return call.Name + string(args)
}
