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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/claimpilot/services/claims/agent"
	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
	"github.com/AleutianAI/claimpilot/services/claims/learning"
	"github.com/AleutianAI/claimpilot/services/claims/observability"
	"github.com/AleutianAI/claimpilot/services/claims/store"
	"github.com/AleutianAI/claimpilot/services/claims/telemetry"
	"github.com/AleutianAI/claimpilot/services/claims/tools"
)

// Engine defaults.
const (
	// DefaultWorkerPoolSize bounds concurrent stage executions per run.
	DefaultWorkerPoolSize = 4

	// DefaultRunTimeout bounds one full processing run.
	DefaultRunTimeout = 2 * time.Minute
)

// Config tunes the engine.
type Config struct {
	// WorkerPoolSize bounds concurrent review stages.
	WorkerPoolSize int `yaml:"worker_pool_size"`

	// StageTimeout bounds one stage run.
	StageTimeout time.Duration `yaml:"stage_timeout"`

	// RunTimeout bounds one full processing run.
	RunTimeout time.Duration `yaml:"run_timeout"`

	// Loop tunes the per-stage reasoning loop.
	Loop agent.LoopConfig `yaml:"-"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		WorkerPoolSize: DefaultWorkerPoolSize,
		StageTimeout:   agent.DefaultStageTimeout,
		RunTimeout:     DefaultRunTimeout,
		Loop:           agent.DefaultLoopConfig(),
	}
}

// Engine runs claims through the review pipeline.
//
// Thread Safety: Engine is safe for concurrent use. Concurrent Process
// calls for distinct claims run independently; a second Process call
// for a claim already in flight returns ErrAlreadyProcessing.
type Engine struct {
	store    *store.ClaimStore
	patterns *learning.Store
	stages   map[datatypes.Role]*agent.Stage
	machine  *StateMachine
	metrics  *observability.Metrics
	tracer   telemetry.Tracer
	logger   *slog.Logger
	cfg      Config

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates an engine.
//
// Inputs:
//
//	claimStore - Claim and snapshot persistence
//	patterns - Exception learning store
//	registry - Tool registry (domain tools already registered)
//	backend - Reasoning backend shared by all stages
//	metrics - Prometheus instruments
//	tracer - Span source for runs and stages; nil uses a no-op tracer
//	logger - Structured logger
//	cfg - Engine tuning; zero values use defaults
func New(claimStore *store.ClaimStore, patterns *learning.Store, registry *tools.Registry,
	backend agent.ReasoningBackend, metrics *observability.Metrics, tracer telemetry.Tracer,
	logger *slog.Logger, cfg Config) *Engine {

	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = DefaultWorkerPoolSize
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	if tracer == nil {
		tracer = telemetry.NewNoopTracer(telemetry.DefaultServiceName)
	}

	executor := tools.NewExecutor(registry, logger)
	loop := agent.NewLoop(backend, executor, logger, cfg.Loop)

	stages := make(map[datatypes.Role]*agent.Stage)
	for _, role := range []datatypes.Role{
		datatypes.RoleIntake,
		datatypes.RoleEligibility,
		datatypes.RoleClinical,
		datatypes.RoleFraud,
		datatypes.RoleAdjudication,
	} {
		stages[role] = agent.NewStage(role, registry, loop, logger, cfg.StageTimeout)
	}

	return &Engine{
		store:    claimStore,
		patterns: patterns,
		stages:   stages,
		machine:  NewStateMachine(),
		metrics:  metrics,
		tracer:   tracer,
		logger:   logger,
		cfg:      cfg,
		inflight: make(map[string]struct{}),
	}
}

// Process runs a claim through the full pipeline.
//
// Description:
//
//	Intake validates the data; eligibility, clinical, and fraud review
//	run in parallel behind a barrier; adjudication combines their
//	reports into a decision, routing inconclusive claims through
//	exception handling. Reprocessing a terminal claim returns its
//	stored snapshot unchanged. Cancellation of the caller's context
//	discards the partial run and reverts the claim to SUBMITTED.
//
// Inputs:
//
//	ctx - Caller's context; the run timeout is layered on top
//	claimID - The claim to process
//
// Outputs:
//
//	*datatypes.WorkflowSnapshot - The completed (or failed) run
//	error - ErrClaimNotFound, ErrAlreadyProcessing, or the context's
//	        error on cancellation
func (e *Engine) Process(ctx context.Context, claimID string) (*datatypes.WorkflowSnapshot, error) {
	claim, err := e.store.GetClaim(claimID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrClaimNotFound, claimID)
		}
		return nil, err
	}

	// Terminal claims are immutable: hand back the recorded run.
	if claim.Status.IsTerminal() {
		if snapshot, err := e.store.GetSnapshot(claimID); err == nil {
			return snapshot, nil
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrClaimTerminal, claimID, claim.Status)
	}

	if !e.acquire(claimID) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessing, claimID)
	}
	defer e.release(claimID)

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.RunTimeout)
	defer cancel()
	runCtx, finishRun := e.tracer.StartSpan(runCtx, "engine.process", map[string]string{
		"claim.id": claimID,
	})

	e.metrics.RunStarted()
	claim.Status = datatypes.StatusProcessing
	if err := e.store.PutClaim(claim); err != nil {
		err = fmt.Errorf("mark claim processing: %w", err)
		finishRun(err)
		e.metrics.RunFinished(claim.Status)
		return nil, err
	}

	w := NewWorkflowState(claimID)
	e.logger.Info("processing run started",
		"claim_id", claimID, "trace_id", e.tracer.TraceID(runCtx))

	snapshot, err := e.run(ctx, runCtx, w, claim)
	if err != nil {
		// Discarded run: the claim goes back to the queue.
		claim.Status = datatypes.StatusSubmitted
		if putErr := e.store.PutClaim(claim); putErr != nil {
			e.logger.Error("failed to revert claim after cancellation", "claim_id", claimID, "error", putErr)
		}
		finishRun(err)
		e.metrics.RunFinished(claim.Status)
		return nil, err
	}

	finishRun(nil)
	e.metrics.RunFinished(claim.Status)
	e.logger.Info("processing run finished",
		"claim_id", claimID,
		"engine_state", snapshot.EngineState,
		"status", claim.Status)
	return snapshot, nil
}

// run executes the pipeline phases. It returns an error only when the
// caller's context was canceled; every other ending is recorded in the
// workflow state and persisted.
func (e *Engine) run(parent, runCtx context.Context, w *WorkflowState, claim *datatypes.Claim) (*datatypes.WorkflowSnapshot, error) {
	// ---- Intake ----
	intake, err := e.runStage(runCtx, datatypes.RoleIntake, claim, nil)
	if err != nil {
		if parent.Err() != nil {
			return nil, parent.Err()
		}
		return e.fail(w, claim, "reasoning backend unavailable during intake")
	}
	w.AddResult(intake)

	if intake.Report.Verdict == datatypes.VerdictDataInvalid {
		return e.fail(w, claim, "intake rejected the claim data: "+intake.Report.Rationale)
	}

	if err := e.machine.Transition(w, StateParallelReview); err != nil {
		return nil, err
	}

	// ---- Parallel review ----
	intakeReport := *intake.Report
	outage, err := e.runReviews(parent, runCtx, w, claim, intakeReport)
	if err != nil {
		return nil, err
	}
	if outage {
		return e.fail(w, claim, "reasoning backend unavailable across all review stages")
	}
	if runCtx.Err() != nil {
		if parent.Err() != nil {
			return nil, parent.Err()
		}
		return e.fail(w, claim, "processing run exceeded its time limit")
	}

	if err := e.machine.Transition(w, StateAdjudication); err != nil {
		return nil, err
	}

	// ---- Adjudication ----
	adj, err := e.runStage(runCtx, datatypes.RoleAdjudication, claim, w.Reports())
	if err != nil {
		if parent.Err() != nil {
			return nil, parent.Err()
		}
		return e.fail(w, claim, "reasoning backend unavailable during adjudication")
	}
	w.AddResult(adj)

	switch adj.Report.Verdict {
	case datatypes.VerdictApprove:
		w.SetDecision(&datatypes.Decision{
			Outcome:    datatypes.OutcomeApproved,
			Rationale:  adj.Report.Rationale,
			Confidence: adj.Report.Confidence,
			Source:     datatypes.SourceAdjudication,
			DecidedAt:  time.Now().UTC(),
		})
		if err := e.machine.Transition(w, StateComplete); err != nil {
			return nil, err
		}

	case datatypes.VerdictDeny:
		w.SetDecision(&datatypes.Decision{
			Outcome:    datatypes.OutcomeDenied,
			Rationale:  adj.Report.Rationale,
			Confidence: adj.Report.Confidence,
			Source:     datatypes.SourceAdjudication,
			DecidedAt:  time.Now().UTC(),
		})
		if err := e.machine.Transition(w, StateComplete); err != nil {
			return nil, err
		}

	default:
		if err := e.machine.Transition(w, StateExceptionHandling); err != nil {
			return nil, err
		}
		e.handleException(w, claim)
		if err := e.machine.Transition(w, StateComplete); err != nil {
			return nil, err
		}
	}

	return e.finish(w, claim)
}

// runReviews fans the three review stages out over the worker pool and
// joins at the barrier. It reports whether every stage hit a backend
// outage; partial outages degrade to Uncertain reports.
func (e *Engine) runReviews(parent, runCtx context.Context, w *WorkflowState,
	claim *datatypes.Claim, intakeReport datatypes.AgentReport) (bool, error) {

	roles := datatypes.ReviewRoles()
	sem := make(chan struct{}, e.cfg.WorkerPoolSize)
	var wg sync.WaitGroup
	var mu sync.Mutex
	outages := 0

	for _, role := range roles {
		wg.Add(1)
		go func(role datatypes.Role) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := e.runStage(runCtx, role, claim, []datatypes.AgentReport{intakeReport})
			if err != nil {
				if runCtx.Err() != nil {
					return
				}
				e.logger.Error("review stage lost its backend", "role", role, "claim_id", claim.ID, "error", err)
				mu.Lock()
				outages++
				mu.Unlock()
				result = &agent.RunResult{Report: &datatypes.AgentReport{
					Role:        role,
					Verdict:     datatypes.VerdictUncertain,
					Confidence:  0,
					Rationale:   "reasoning backend unavailable",
					StartedAt:   time.Now().UTC(),
					CompletedAt: time.Now().UTC(),
				}}
			}
			w.AddResult(result)
		}(role)
	}
	wg.Wait()

	if parent.Err() != nil {
		return false, parent.Err()
	}
	return outages == len(roles), nil
}

// runStage executes one stage under its own span and records metrics.
func (e *Engine) runStage(ctx context.Context, role datatypes.Role,
	claim *datatypes.Claim, prior []datatypes.AgentReport) (*agent.RunResult, error) {

	stageCtx, finish := e.tracer.StartSpan(ctx, "stage."+string(role), map[string]string{
		"claim.id":   claim.ID,
		"stage.role": string(role),
	})

	result, err := e.stages[role].Run(stageCtx, claim, prior)
	finish(err)
	if err != nil {
		return nil, err
	}

	e.metrics.ObserveStage(role, result.Report.Duration())
	for _, record := range result.Records {
		e.metrics.RecordToolInvocation(record.ToolName, record.Success)
	}
	return result, nil
}

// handleException resolves a claim adjudication could not decide.
//
// A learned pattern whose signature matches auto-resolves the claim;
// otherwise the claim escalates to human review.
func (e *Engine) handleException(w *WorkflowState, claim *datatypes.Claim) {
	sig := learning.Derive(claim, w.Reports())

	pattern, ok, err := e.patterns.Match(sig)
	if err != nil {
		e.logger.Error("pattern lookup failed", "claim_id", claim.ID, "signature", sig.Key(), "error", err)
		ok = false
	}

	if ok {
		outcome := datatypes.DecisionOutcome(pattern.Resolution.Outcome)
		if outcome == datatypes.OutcomeApproved || outcome == datatypes.OutcomeDenied {
			w.SetDecision(&datatypes.Decision{
				Outcome:    outcome,
				Rationale:  fmt.Sprintf("auto-resolved by learned pattern %s (v%d): %s", sig.Key(), pattern.Version, pattern.Resolution.Rationale),
				Confidence: pattern.Resolution.Confidence,
				Source:     datatypes.SourceAutoResolution,
				DecidedAt:  time.Now().UTC(),
			})
			if err := e.patterns.RecordApplication(sig); err != nil {
				e.logger.Warn("failed to record pattern application", "signature", sig.Key(), "error", err)
			}
			e.metrics.RecordAutoResolution()
			e.logger.Info("claim auto-resolved",
				"claim_id", claim.ID, "signature", sig.Key(), "outcome", outcome)
			return
		}
		e.logger.Warn("matched pattern carries an unusable outcome",
			"signature", sig.Key(), "outcome", pattern.Resolution.Outcome)
	}

	w.SetDecision(&datatypes.Decision{
		Outcome:    datatypes.OutcomeEscalated,
		Rationale:  fmt.Sprintf("no resolution pattern for signature %s; human review required", sig.Key()),
		Confidence: 0,
		Source:     datatypes.SourceException,
		DecidedAt:  time.Now().UTC(),
	})
	e.metrics.RecordEscalation()
	e.logger.Info("claim escalated", "claim_id", claim.ID, "signature", sig.Key())
}

// fail ends the run in the FAILED state.
func (e *Engine) fail(w *WorkflowState, claim *datatypes.Claim, reason string) (*datatypes.WorkflowSnapshot, error) {
	e.logger.Warn("processing run failed", "claim_id", claim.ID, "reason", reason)
	w.setState(StateFailed)
	claim.Status = datatypes.StatusFailed
	return e.finish(w, claim)
}

// finish persists the claim and the frozen snapshot.
func (e *Engine) finish(w *WorkflowState, claim *datatypes.Claim) (*datatypes.WorkflowSnapshot, error) {
	if decision := w.Decision(); decision != nil {
		status, err := datatypes.StatusForOutcome(decision.Outcome, decision.Source)
		if err != nil {
			return nil, err
		}
		claim.Status = status
	}
	now := time.Now().UTC()
	claim.ProcessedAt = &now

	if err := e.store.PutClaim(claim); err != nil {
		return nil, fmt.Errorf("persist claim %s: %w", claim.ID, err)
	}
	snapshot := w.Snapshot()
	if err := e.store.PutSnapshot(snapshot); err != nil {
		return nil, fmt.Errorf("persist snapshot %s: %w", claim.ID, err)
	}
	return snapshot, nil
}

// ResolveException applies a human resolution to an escalated claim and
// learns the pattern for future automation.
//
// Inputs:
//
//	claimID - The escalated claim
//	outcome - APPROVED or DENIED
//	rationale - The reviewer's explanation
//
// Outputs:
//
//	*datatypes.Claim - The claim with its final status
//	error - ErrClaimNotFound, ErrNotEscalated, or an invalid outcome
func (e *Engine) ResolveException(claimID string, outcome datatypes.DecisionOutcome, rationale string) (*datatypes.Claim, error) {
	if outcome != datatypes.OutcomeApproved && outcome != datatypes.OutcomeDenied {
		return nil, fmt.Errorf("resolution outcome must be APPROVED or DENIED, got %q", outcome)
	}

	claim, err := e.store.GetClaim(claimID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrClaimNotFound, claimID)
		}
		return nil, err
	}
	if claim.Status != datatypes.StatusEscalated {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotEscalated, claimID, claim.Status)
	}

	snapshot, err := e.store.GetSnapshot(claimID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot for %s: %w", claimID, err)
	}

	sig := learning.Derive(claim, snapshot.Reports)
	if _, err := e.patterns.Learn(sig, learning.Resolution{
		Outcome:    string(outcome),
		Rationale:  rationale,
		Confidence: 0.8,
	}, claimID); err != nil {
		return nil, fmt.Errorf("learn pattern for %s: %w", claimID, err)
	}

	decision := &datatypes.Decision{
		Outcome:    outcome,
		Rationale:  rationale,
		Confidence: 1,
		Source:     datatypes.SourceHuman,
		DecidedAt:  time.Now().UTC(),
	}
	status, err := datatypes.StatusForOutcome(outcome, datatypes.SourceHuman)
	if err != nil {
		return nil, err
	}

	claim.Status = status
	now := time.Now().UTC()
	claim.ProcessedAt = &now
	if err := e.store.PutClaim(claim); err != nil {
		return nil, fmt.Errorf("persist claim %s: %w", claimID, err)
	}

	snapshot.Decision = decision
	if err := e.store.PutSnapshot(snapshot); err != nil {
		return nil, fmt.Errorf("persist snapshot %s: %w", claimID, err)
	}

	e.logger.Info("escalated claim resolved by reviewer",
		"claim_id", claimID, "outcome", outcome, "signature", sig.Key())
	return claim, nil
}

// acquire marks a claim in flight.
func (e *Engine) acquire(claimID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[claimID]; busy {
		return false
	}
	e.inflight[claimID] = struct{}{}
	return true
}

// release clears the in-flight mark.
func (e *Engine) release(claimID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, claimID)
}
