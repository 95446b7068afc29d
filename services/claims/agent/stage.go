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
	"errors"
	"log/slog"
	"time"

	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
	"github.com/AleutianAI/claimpilot/services/claims/tools"
)

// DefaultStageTimeout bounds one stage run.
const DefaultStageTimeout = 30 * time.Second

// Stage binds a role to its tool slice and a reasoning loop.
//
// Thread Safety: Stage is immutable after construction and safe for
// concurrent use; the engine runs review stages in parallel.
type Stage struct {
	role     datatypes.Role
	registry *tools.Registry
	loop     *Loop
	logger   *slog.Logger
	timeout  time.Duration
}

// NewStage creates a stage for a role.
//
// Inputs:
//
//	role - The stage's role
//	registry - Tool source; the stage sees only its role's category
//	loop - The reasoning loop to run
//	logger - Structured logger
//	timeout - Per-run deadline; <= 0 uses DefaultStageTimeout
func NewStage(role datatypes.Role, registry *tools.Registry, loop *Loop, logger *slog.Logger, timeout time.Duration) *Stage {
	if timeout <= 0 {
		timeout = DefaultStageTimeout
	}
	return &Stage{
		role:     role,
		registry: registry,
		loop:     loop,
		logger:   logger,
		timeout:  timeout,
	}
}

// Role returns the stage's role.
func (s *Stage) Role() datatypes.Role {
	return s.role
}

// categoryForRole maps agent roles to tool categories.
func categoryForRole(role datatypes.Role) tools.ToolCategory {
	switch role {
	case datatypes.RoleIntake:
		return tools.CategoryIntake
	case datatypes.RoleEligibility:
		return tools.CategoryEligibility
	case datatypes.RoleClinical:
		return tools.CategoryClinical
	case datatypes.RoleFraud:
		return tools.CategoryFraud
	case datatypes.RoleAdjudication:
		return tools.CategoryAdjudication
	default:
		return tools.ToolCategory(role)
	}
}

// Run executes the stage against a claim.
//
// Description:
//
//	Applies the stage deadline and runs the reasoning loop. A stage that
//	times out yields an Uncertain report with TimedOut set instead of an
//	error; the pipeline always gets a report to combine. Only a backend
//	outage (or cancellation of the parent context) surfaces as an error.
//
// Inputs:
//
//	ctx - Parent context; the run deadline is layered on top
//	claim - The claim under review
//	priorReports - Reports from already-completed stages
//
// Outputs:
//
//	*RunResult - Report, trail, and tool log (nil only on error)
//	error - ErrBackendUnavailable or the parent context's error
func (s *Stage) Run(ctx context.Context, claim *datatypes.Claim, priorReports []datatypes.AgentReport) (*RunResult, error) {
	started := time.Now().UTC()
	stageCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	toolDefs := s.registry.Definitions(categoryForRole(s.role))

	result, err := s.loop.Run(stageCtx, s.role, claim, toolDefs, priorReports)
	if err == nil {
		s.logger.Info("stage completed",
			"role", s.role,
			"claim_id", claim.ID,
			"verdict", result.Report.Verdict,
			"confidence", result.Report.Confidence,
			"steps", result.Report.StepsTaken,
			"duration_ms", time.Since(started).Milliseconds())
		return result, nil
	}

	// Stage deadline: the parent is still live, so report Uncertain
	// rather than failing the run. The trail and tool log accumulated
	// before the deadline stay on the result.
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		s.logger.Warn("stage timed out", "role", s.role, "claim_id", claim.ID, "timeout", s.timeout)
		report := &datatypes.AgentReport{
			Role:        s.role,
			Verdict:     datatypes.VerdictUncertain,
			Confidence:  0,
			Rationale:   "stage exceeded its time limit before reaching a verdict",
			TimedOut:    true,
			StartedAt:   started,
			CompletedAt: time.Now().UTC(),
		}
		timedOut := &RunResult{Report: report}
		if result != nil {
			timedOut.Steps = result.Steps
			timedOut.Records = result.Records
			for _, rec := range result.Records {
				report.ToolInvocationIDs = append(report.ToolInvocationIDs, rec.ID)
			}
		}
		return timedOut, nil
	}

	return nil, err
}
