// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/AleutianAI/overseer/services/llm"
	"github.com/AleutianAI/overseer/services/overseer/datatypes"
)

// oracleConfidence is assigned to every accepted oracle proposal. The
// collaborator's self-reported confidence is advisory prose, not a number
// we trust for execution ordering.
const oracleConfidence = 0.7

// enforcementRiskFloor gates enforcement-class actions: below this risk
// score no ban/restrict/quarantine reaches the executor, whatever proposed it.
const enforcementRiskFloor = 50

// OracleAction is one action inside an oracle proposal, pre-validation.
type OracleAction struct {
	Type     string `json:"type" validate:"required"`
	Target   string `json:"target" validate:"required"`
	Reason   string `json:"reason"`
	Severity string `json:"severity"`
	Priority string `json:"priority"`
}

// OracleProposal is the JSON object the reasoning collaborator is asked to
// produce, extracted from whatever prose surrounds it.
type OracleProposal struct {
	Status       string         `json:"status"`
	Reasoning    string         `json:"reasoning"`
	Observations []string       `json:"observations"`
	Actions      []OracleAction `json:"actions" validate:"dive"`
	Confidence   float64        `json:"confidence"`
}

// ProposalParser extracts a proposal from free oracle text. Isolated behind
// an interface so the prose heuristic can later be swapped for a
// schema-validated structured-output mode without touching fusion logic.
type ProposalParser interface {
	// Parse returns the proposal and true, or nil and false when the text
	// contains no usable JSON object.
	Parse(text string) (*OracleProposal, bool)
}

// braceParser extracts the first balanced brace-delimited substring and
// unmarshals it. Anything malformed reads as "no proposal".
type braceParser struct{}

func (braceParser) Parse(text string) (*OracleProposal, bool) {
	candidate, ok := firstJSONObject(text)
	if !ok {
		return nil, false
	}
	var proposal OracleProposal
	if err := json.Unmarshal([]byte(candidate), &proposal); err != nil {
		return nil, false
	}
	return &proposal, true
}

// firstJSONObject scans for the first balanced {...} block, honoring string
// literals and escapes so braces inside reasoning text don't break the scan.
func firstJSONObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, r := range text {
		if start >= 0 && inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start >= 0 {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		case '"':
			if start >= 0 {
				inString = true
			}
		}
	}
	return "", false
}

// FusionOutcome records how a fusion attempt resolved, for logs and metrics.
type FusionOutcome string

const (
	FusionDisabled   FusionOutcome = "disabled"
	FusionOracleErr  FusionOutcome = "oracle_error"
	FusionUnparsable FusionOutcome = "unparsable"
	FusionMerged     FusionOutcome = "merged"
)

// Fuser merges the rule-based plan with oracle proposals under safety
// constraints. A nil oracle client disables fusion entirely.
//
// Thread Safety: safe for concurrent use.
type Fuser struct {
	oracle   llm.LLMClient
	parser   ProposalParser
	validate *validator.Validate
	logger   *slog.Logger
}

// NewFuser creates a Fuser. oracle may be nil.
func NewFuser(oracle llm.LLMClient, logger *slog.Logger) *Fuser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fuser{
		oracle:   oracle,
		parser:   braceParser{},
		validate: validator.New(),
		logger:   logger,
	}
}

// WithParser swaps the proposal parser. Used by tests and reserved for a
// future structured-output mode.
func (f *Fuser) WithParser(p ProposalParser) *Fuser {
	f.parser = p
	return f
}

// Fuse consults the oracle and merges accepted proposals into the plan.
//
// Every failure mode falls back silently to the rule-based plan: an oracle
// error, unparsable output, or an empty proposal never degrades the cycle
// below what the rules already decided. Accepted actions are deduplicated
// against the existing (type, target) pairs, gated by the enforcement risk
// floor, tagged with their provenance, and the merged list is re-sorted and
// re-capped.
func (f *Fuser) Fuse(ctx context.Context, snap datatypes.SensorSnapshot, an datatypes.Analysis, plan []datatypes.PlannedAction) ([]datatypes.PlannedAction, FusionOutcome) {
	if f.oracle == nil {
		return plan, FusionDisabled
	}

	prompt := buildOraclePrompt(snap, an, plan)
	temperature := float32(0.2)
	maxTokens := 1024
	text, err := f.oracle.Generate(ctx, prompt, llm.GenerationParams{
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		f.logger.Warn("oracle call failed, keeping rule-based plan",
			"tenant", snap.TenantID, "error", err)
		return plan, FusionOracleErr
	}

	proposal, ok := f.parser.Parse(text)
	if !ok {
		f.logger.Warn("oracle response had no usable JSON, keeping rule-based plan",
			"tenant", snap.TenantID)
		return plan, FusionUnparsable
	}
	if err := f.validate.Struct(proposal); err != nil {
		f.logger.Warn("oracle proposal failed validation, keeping rule-based plan",
			"tenant", snap.TenantID, "error", err)
		return plan, FusionUnparsable
	}

	merged := f.merge(snap.TenantID, an, plan, proposal)
	SortByPriority(merged)
	return Cap(merged, an.Urgency), FusionMerged
}

// merge appends accepted oracle actions to the plan.
func (f *Fuser) merge(tenantID string, an datatypes.Analysis, plan []datatypes.PlannedAction, proposal *OracleProposal) []datatypes.PlannedAction {
	existing := make(map[string]bool, len(plan))
	for _, a := range plan {
		existing[a.Key()] = true
	}

	merged := plan
	for _, oa := range proposal.Actions {
		actionType, err := datatypes.ParseActionType(oa.Type)
		if err != nil {
			f.logger.Warn("oracle proposed unknown action type, rejecting",
				"tenant", tenantID, "type", oa.Type)
			continue
		}
		if actionType.Enforcement() && an.RiskScore < enforcementRiskFloor {
			f.logger.Warn("oracle proposed enforcement below risk floor, rejecting",
				"tenant", tenantID, "type", actionType, "risk_score", an.RiskScore)
			continue
		}
		action := datatypes.PlannedAction{
			ID:         uuid.NewString(),
			Type:       actionType,
			Target:     oa.Target,
			Reason:     "oracle: " + oa.Reason,
			Priority:   parsePriority(oa.Priority),
			Confidence: oracleConfidence,
			Severity:   parseSeverity(oa.Severity),
		}
		if existing[action.Key()] {
			continue
		}
		existing[action.Key()] = true
		merged = append(merged, action)
	}
	return merged
}

func parsePriority(s string) datatypes.Priority {
	switch p := datatypes.Priority(s); p {
	case datatypes.PriorityCritical, datatypes.PriorityHigh,
		datatypes.PriorityMedium, datatypes.PriorityLow:
		return p
	default:
		return datatypes.PriorityMedium
	}
}

func parseSeverity(s string) datatypes.Severity {
	switch sev := datatypes.Severity(s); sev {
	case datatypes.SeverityLow, datatypes.SeverityMedium, datatypes.SeverityHigh:
		return sev
	default:
		return ""
	}
}

// buildOraclePrompt serializes the snapshot, analysis, and current plan
// into the collaborator prompt, together with the response contract.
func buildOraclePrompt(snap datatypes.SensorSnapshot, an datatypes.Analysis, plan []datatypes.PlannedAction) string {
	contextBlob, _ := json.MarshalIndent(map[string]any{
		"snapshot":     snap,
		"analysis":     an,
		"planned":      plan,
		"action_types": datatypes.AllActionTypes,
	}, "", "  ")

	return fmt.Sprintf(`Review the governance state below and propose corrective actions.

%s

Respond with exactly one JSON object of the form:
{"status": "...", "reasoning": "...", "observations": ["..."],
 "actions": [{"type": "...", "target": "...", "reason": "...", "severity": "...", "priority": "critical|high|medium|low"}],
 "confidence": 0.0}

Only use the listed action_types. Do not repeat actions already planned.`, contextBlob)
}
