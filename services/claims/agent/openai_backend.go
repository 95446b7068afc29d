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
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/claimpilot/services/claims/datatypes"
)

// OpenAIBackendConfig configures the LLM-driven reasoning backend.
type OpenAIBackendConfig struct {
	// BaseURL points at an OpenAI-compatible endpoint. Empty uses the
	// OpenAI default; local inference servers set their own.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates the endpoint. Local servers often accept any
	// non-empty value.
	APIKey string `yaml:"api_key"`

	// Model is the model identifier to request.
	Model string `yaml:"model"`

	// Temperature controls sampling. Claim review wants it low.
	Temperature float32 `yaml:"temperature"`
}

// DefaultOpenAIBackendConfig returns conservative defaults.
func DefaultOpenAIBackendConfig() OpenAIBackendConfig {
	return OpenAIBackendConfig{
		Model:       openai.GPT4oMini,
		Temperature: 0.1,
	}
}

// OpenAIBackend drives the reasoning loop with an OpenAI-compatible
// chat model.
//
// The model is prompted to answer with a single JSON directive per
// cycle. A response that is not valid JSON, or that carries neither a
// tool call nor a verdict, is returned as a malformed directive for the
// loop to absorb; only transport-level failures surface as
// ErrBackendUnavailable.
//
// Thread Safety: OpenAIBackend is safe for concurrent use; the
// underlying client is stateless per request.
type OpenAIBackend struct {
	client *openai.Client
	cfg    OpenAIBackendConfig
	logger *slog.Logger
}

// NewOpenAIBackend creates the LLM backend.
func NewOpenAIBackend(cfg OpenAIBackendConfig, logger *slog.Logger) *OpenAIBackend {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger,
	}
}

// Decide implements ReasoningBackend.
func (b *OpenAIBackend) Decide(ctx context.Context, req *DecideRequest) (*Directive, error) {
	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       b.cfg.Model,
		Temperature: b.cfg.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt(req)},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt(req)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty completion", ErrBackendUnavailable)
	}

	content := resp.Choices[0].Message.Content
	var directive Directive
	if err := json.Unmarshal([]byte(content), &directive); err != nil {
		b.logger.Warn("backend returned non-JSON directive",
			"role", req.Role, "claim_id", req.Claim.ID, "error", err)
		return &Directive{Thought: content}, nil
	}
	if directive.ToolCall != nil && directive.Verdict != nil {
		// Ambiguous answer; prefer the verdict and drop the call.
		directive.ToolCall = nil
	}
	return &directive, nil
}

// systemPrompt describes the role, its tools, and the directive format.
func systemPrompt(req *DecideRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are the %s reviewer in an insurance claim processing pipeline.\n", req.Role)
	sb.WriteString(roleInstructions(req.Role))
	sb.WriteString("\nAvailable tools:\n")
	for _, def := range req.Tools {
		params, _ := json.Marshal(def.Parameters)
		fmt.Fprintf(&sb, "- %s: %s parameters=%s\n", def.Name, def.Description, params)
	}
	sb.WriteString(`
Respond with exactly one JSON object per turn, either a tool call:
  {"thought": "...", "tool_call": {"name": "...", "arguments": {...}}}
or a final verdict:
  {"thought": "...", "verdict": {"verdict": "...", "confidence": 0.0, "rationale": "..."}}
Use the verdict values for your role only, with UNCERTAIN as the
fallback when the evidence is inconclusive. Confidence is in [0,1].
Ground every verdict in tool observations; do not invent facts.`)
	return sb.String()
}

// roleInstructions returns the per-role review charter.
func roleInstructions(role datatypes.Role) string {
	switch role {
	case datatypes.RoleIntake:
		return "Validate the submission data. Verdicts: DATA_VALID, DATA_INVALID, UNCERTAIN."
	case datatypes.RoleEligibility:
		return "Verify coverage, the provider, and prior authorization. Verdicts: ELIGIBLE, INELIGIBLE, UNCERTAIN."
	case datatypes.RoleClinical:
		return "Validate the medical codes and their clinical consistency. Verdicts: COMPATIBLE, INCOMPATIBLE, UNCERTAIN."
	case datatypes.RoleFraud:
		return "Assess fraud risk from history and scoring. Flag high-risk claims. Verdicts: LOW_RISK, HIGH_RISK, UNCERTAIN."
	case datatypes.RoleAdjudication:
		return "Combine the review reports into a final recommendation. Verdicts: APPROVE, DENY, UNCERTAIN."
	default:
		return ""
	}
}

// userPrompt carries the claim, prior reports, and this stage's trail.
func userPrompt(req *DecideRequest) string {
	var sb strings.Builder

	claim, _ := json.Marshal(req.Claim)
	fmt.Fprintf(&sb, "Claim under review:\n%s\n", claim)

	if len(req.PriorReports) > 0 {
		sb.WriteString("\nCompleted stage reports:\n")
		for _, r := range req.PriorReports {
			fmt.Fprintf(&sb, "- %s: %s (confidence %.2f): %s\n", r.Role, r.Verdict, r.Confidence, r.Rationale)
		}
	}

	if len(req.Steps) > 0 {
		sb.WriteString("\nYour reasoning so far:\n")
		for _, s := range req.Steps {
			fmt.Fprintf(&sb, "%d. [%s] %s\n", s.Ordinal, s.Phase, s.Content)
		}
	} else {
		sb.WriteString("\nThis is your first step for this claim.\n")
	}

	sb.WriteString("\nEmit your next directive.")
	return sb.String()
}
