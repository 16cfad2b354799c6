// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package executor applies planned actions under the advisory/enforced
// mode gate.
//
// Advisory mode records every action without mutating anything. Enforced
// mode applies actions sequentially in priority order with per-action fault
// isolation: one failing action is recorded as failed and the rest still
// run. Sequential execution lets later actions assume earlier ones landed;
// no two actions in a cycle race on the same target.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"

	"github.com/AleutianAI/overseer/services/overseer/datatypes"
	"github.com/AleutianAI/overseer/services/overseer/store"
)

// trustThresholdName is the tunable threshold adjust_threshold mutates.
const trustThresholdName = "trust"

// Threshold adjustment bounds. Each adjustment tightens by a fixed step;
// the clamp keeps a runaway feedback loop from pinning the threshold.
const (
	thresholdDefault = 70.0
	thresholdStep    = 5.0
	thresholdMin     = 50.0
	thresholdMax     = 95.0
)

// Result is the executor's verdict on one action.
type Result struct {
	ActionID string
	Type     datatypes.ActionType
	Target   string
	Status   datatypes.ActionStatus
	Err      string
}

// Executor applies actions to the document store.
//
// Thread Safety: safe for concurrent use across tenants; within a cycle the
// orchestrator calls Execute once, sequentially.
type Executor struct {
	agents     store.AgentStore
	alerts     store.AlertStore
	thresholds store.ThresholdStore
	logger     *slog.Logger
}

// New creates an Executor over the given stores.
func New(agents store.AgentStore, alerts store.AlertStore, thresholds store.ThresholdStore, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		agents:     agents,
		alerts:     alerts,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Execute applies the ordered action list under the mode gate.
//
// In advisory mode no state is mutated: enforcement-class actions are
// recorded as skipped (they would have mutated an agent), everything else
// as planned. In enforced mode actions run in the order given; a failure is
// recorded on that action alone and execution continues.
func (e *Executor) Execute(ctx context.Context, tenantID string, actions []datatypes.PlannedAction, mode datatypes.Mode) []Result {
	results := make([]Result, 0, len(actions))
	for _, action := range actions {
		result := Result{
			ActionID: action.ID,
			Type:     action.Type,
			Target:   action.Target,
		}

		if mode != datatypes.ModeEnforced {
			if action.Type.Enforcement() {
				result.Status = datatypes.ActionSkipped
			} else {
				result.Status = datatypes.ActionPlanned
			}
			results = append(results, result)
			continue
		}

		if err := e.apply(ctx, tenantID, action); err != nil {
			result.Status = datatypes.ActionFailed
			result.Err = err.Error()
			e.logger.Error("action failed",
				"tenant", tenantID, "type", action.Type, "target", action.Target, "error", err)
		} else {
			result.Status = datatypes.ActionExecuted
			e.logger.Info("action executed",
				"tenant", tenantID, "type", action.Type, "target", action.Target)
		}
		results = append(results, result)
	}
	return results
}

// apply performs the state mutation for one enforced action.
func (e *Executor) apply(ctx context.Context, tenantID string, action datatypes.PlannedAction) error {
	switch action.Type {
	case datatypes.ActionBanAgent:
		return e.agents.SetAgentStatus(ctx, tenantID, action.Target, datatypes.AgentBanned)
	case datatypes.ActionRestrictAgent:
		return e.agents.SetAgentStatus(ctx, tenantID, action.Target, datatypes.AgentRestricted)
	case datatypes.ActionQuarantineAgent:
		return e.agents.SetAgentStatus(ctx, tenantID, action.Target, datatypes.AgentQuarantined)
	case datatypes.ActionUnbanAgent:
		return e.agents.SetAgentStatus(ctx, tenantID, action.Target, datatypes.AgentActive)
	case datatypes.ActionAdjustThreshold:
		return e.adjustThreshold(ctx, tenantID)
	case datatypes.ActionAlert:
		return e.emitAlert(ctx, tenantID, action)
	default:
		return fmt.Errorf("unhandled action type %q", action.Type)
	}
}

// adjustThreshold tightens the tenant's trust threshold by one step.
func (e *Executor) adjustThreshold(ctx context.Context, tenantID string) error {
	current, err := e.thresholds.Threshold(ctx, tenantID, trustThresholdName)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("read trust threshold: %w", err)
		}
		current = thresholdDefault
	}
	next := math.Min(thresholdMax, math.Max(thresholdMin, current+thresholdStep))
	if err := e.thresholds.SetThreshold(ctx, tenantID, trustThresholdName, next); err != nil {
		return fmt.Errorf("write trust threshold: %w", err)
	}
	e.logger.Info("trust threshold adjusted", "tenant", tenantID, "from", current, "to", next)
	return nil
}

// emitAlert writes an alert record for the action.
func (e *Executor) emitAlert(ctx context.Context, tenantID string, action datatypes.PlannedAction) error {
	severity := datatypes.AlertWarning
	switch {
	case action.Priority == datatypes.PriorityCritical || action.Severity == datatypes.SeverityHigh:
		severity = datatypes.AlertCritical
	case action.Severity == datatypes.SeverityLow:
		severity = datatypes.AlertInfo
	}
	return e.alerts.CreateAlert(ctx, datatypes.Alert{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Severity: severity,
		Message:  action.Reason,
		Source:   "overseer",
	})
}
