// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package planner turns an Analysis into a deduplicated, capped,
// priority-ordered list of corrective actions, and fuses it with proposals
// from the external reasoning collaborator under safety constraints.
//
// Planning runs three stages: one action per anomaly, one action per
// uncovered observation, and proactive/predictive actions extrapolated from
// the trend. Cached effectiveness recommendations bias the tables: an action
// type the feedback tracker says to de-emphasize is degraded or suppressed
// before it ever reaches the executor.
package planner

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/AleutianAI/overseer/services/overseer/analysis"
	"github.com/AleutianAI/overseer/services/overseer/datatypes"
)

// Action-list caps by urgency: at most 5 actions under immediate urgency,
// at most 3 otherwise.
const (
	maxActionsImmediate = 5
	maxActionsNormal    = 3
)

// Planner builds rule-based action plans.
//
// Thread Safety: safe for concurrent use; Plan reads only its arguments.
type Planner struct {
	logger *slog.Logger
}

// New creates a Planner.
func New(logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{logger: logger}
}

// Plan produces the rule-based action list for one cycle.
//
// The returned list contains no duplicate (type, target) pairs, is sorted
// critical-first, and is capped per the urgency of the analysis.
func (p *Planner) Plan(snap datatypes.SensorSnapshot, an datatypes.Analysis, recs datatypes.RecommendationSet) []datatypes.PlannedAction {
	var actions []datatypes.PlannedAction

	actions = append(actions, p.anomalyActions(an, recs)...)
	actions = append(actions, p.observationActions(an, recs)...)
	actions = append(actions, p.proactiveActions(snap, recs)...)

	actions = Dedup(actions)
	SortByPriority(actions)
	return Cap(actions, an.Urgency)
}

// anomalyActions maps each anomaly to its corrective action.
func (p *Planner) anomalyActions(an datatypes.Analysis, recs datatypes.RecommendationSet) []datatypes.PlannedAction {
	var actions []datatypes.PlannedAction
	for _, anomaly := range an.Anomalies {
		switch anomaly.Type {
		case analysis.AnomalyCriticalTrust:
			actions = append(actions, newAction(datatypes.ActionAlert, "trust",
				"average trust below the critical floor",
				datatypes.PriorityCritical, 0.9, datatypes.SeverityHigh))

		case analysis.AnomalyTrustDeviation:
			actions = append(actions, newAction(datatypes.ActionAlert, "trust",
				fmt.Sprintf("trust %.1f standard deviations below historical mean", anomaly.Value),
				datatypes.PriorityHigh, 0.85, datatypes.SeverityHigh))

		case analysis.AnomalyHighEmergence:
			// Tightening the trust threshold is the standing response to
			// high emergence, unless the feedback loop has learned that
			// threshold adjustments are not paying off.
			if recs.Says(datatypes.ActionAdjustThreshold, datatypes.RecommendDecrease) {
				actions = append(actions, newAction(datatypes.ActionAlert, "emergence",
					"high emergence detected; threshold adjustment de-emphasized by effectiveness history",
					datatypes.PriorityHigh, 0.7, datatypes.SeverityHigh))
			} else {
				actions = append(actions, newAction(datatypes.ActionAdjustThreshold, "trust",
					"tighten trust threshold in response to high emergence",
					datatypes.PriorityHigh, 0.8, datatypes.SeverityHigh))
			}

		case analysis.AnomalyRapidDecline:
			actions = append(actions, newAction(datatypes.ActionAlert, "trend",
				fmt.Sprintf("trust declining rapidly (slope %.2f)", anomaly.Value),
				datatypes.PriorityHigh, 0.8, datatypes.SeverityMedium))

		case analysis.AnomalyHighVolatility:
			actions = append(actions, newAction(datatypes.ActionAlert, "volatility",
				fmt.Sprintf("trust volatility %.1f above threshold", anomaly.Value),
				datatypes.PriorityMedium, 0.7, datatypes.SeverityMedium))
		}
	}
	return actions
}

// observationActions maps observations that no anomaly already covers.
func (p *Planner) observationActions(an datatypes.Analysis, recs datatypes.RecommendationSet) []datatypes.PlannedAction {
	covered := make(map[string]bool, len(an.Anomalies))
	for _, anomaly := range an.Anomalies {
		covered[anomaly.Type] = true
	}

	var actions []datatypes.PlannedAction
	for _, obs := range an.Observations {
		if covered[obs] {
			continue
		}
		switch obs {
		case analysis.ObsLowTrust:
			if recs.Says(datatypes.ActionAdjustThreshold, datatypes.RecommendDecrease) {
				continue
			}
			actions = append(actions, newAction(datatypes.ActionAdjustThreshold, "trust",
				"raise trust threshold while average trust is low",
				datatypes.PriorityMedium, 0.7, ""))

		case analysis.ObsCriticalAlerts:
			actions = append(actions, newAction(datatypes.ActionAlert, "alerts",
				"escalate: critical alerts active",
				datatypes.PriorityHigh, 0.8, datatypes.SeverityHigh))

		case analysis.ObsHighBanRatio:
			actions = append(actions, newAction(datatypes.ActionAlert, "agents",
				"review agent population: more than 20% banned",
				datatypes.PriorityMedium, 0.7, datatypes.SeverityMedium))

		case analysis.ObsAlertBacklog:
			actions = append(actions, newAction(datatypes.ActionAlert, "alert_backlog",
				"unacknowledged alerts piling up",
				datatypes.PriorityLow, 0.6, datatypes.SeverityLow))
		}
	}
	return actions
}

// proactiveActions extrapolates the trend to act before thresholds trip.
func (p *Planner) proactiveActions(snap datatypes.SensorSnapshot, recs datatypes.RecommendationSet) []datatypes.PlannedAction {
	var actions []datatypes.PlannedAction
	trend := snap.TrustTrend

	// Predictive: declining inside the watch band. Extrapolate how many
	// cycles until trust crosses the critical floor of 60.
	if trend.Direction == datatypes.TrendDeclining &&
		snap.AvgTrust > 65 && snap.AvgTrust < 80 && trend.Slope != 0 {
		eta := math.Abs(snap.AvgTrust-60) / math.Abs(trend.Slope)
		if eta < 5 {
			confidence := math.Min(0.9, 0.5+(5-eta)*0.1)
			actions = append(actions, newAction(datatypes.ActionAlert, "trust_forecast",
				fmt.Sprintf("trust projected to reach critical in %.1f cycles", eta),
				datatypes.PriorityHigh, confidence, datatypes.SeverityMedium))
			p.logger.Debug("predictive alert planned",
				"tenant", snap.TenantID, "eta_cycles", eta, "confidence", confidence)
		}
	}

	// Recovery review: trust is high and climbing while agents sit banned.
	if trend.Direction == datatypes.TrendImproving && snap.AvgTrust > 85 &&
		snap.AgentHealth.Banned > 0 &&
		!recs.Says(datatypes.ActionUnbanAgent, datatypes.RecommendDecrease) {
		actions = append(actions, newAction(datatypes.ActionAlert, "banned_agents",
			fmt.Sprintf("trust recovered; review %d banned agents for reinstatement", snap.AgentHealth.Banned),
			datatypes.PriorityLow, 0.6, datatypes.SeverityLow))
	}

	return actions
}

func newAction(t datatypes.ActionType, target, reason string, priority datatypes.Priority, confidence float64, severity datatypes.Severity) datatypes.PlannedAction {
	return datatypes.PlannedAction{
		ID:         uuid.NewString(),
		Type:       t,
		Target:     target,
		Reason:     reason,
		Priority:   priority,
		Confidence: confidence,
		Severity:   severity,
	}
}

// Dedup drops later actions with a (type, target) pair already seen.
func Dedup(actions []datatypes.PlannedAction) []datatypes.PlannedAction {
	seen := make(map[string]bool, len(actions))
	out := actions[:0]
	for _, a := range actions {
		if seen[a.Key()] {
			continue
		}
		seen[a.Key()] = true
		out = append(out, a)
	}
	return out
}

// SortByPriority orders actions critical-first, preserving insertion order
// within a priority class.
func SortByPriority(actions []datatypes.PlannedAction) {
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Priority.Rank() < actions[j].Priority.Rank()
	})
}

// Cap truncates the list per the urgency invariant: 5 under immediate
// urgency, 3 otherwise.
func Cap(actions []datatypes.PlannedAction, urgency datatypes.Urgency) []datatypes.PlannedAction {
	limit := maxActionsNormal
	if urgency == datatypes.UrgencyImmediate {
		limit = maxActionsImmediate
	}
	if len(actions) > limit {
		return actions[:limit]
	}
	return actions
}
