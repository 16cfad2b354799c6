// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for the Overseer
// governance loop: sensor snapshots, analyses, planned actions, cycles,
// and the effectiveness records fed back into planning.
//
// Everything here is plain data. Behavior lives in the sensor, analysis,
// planner, executor, and feedback packages.
package datatypes

import (
	"fmt"
	"time"
)

// =============================================================================
// Sensor Snapshot
// =============================================================================

// TrendDirection classifies the short-window trust trajectory.
type TrendDirection string

const (
	TrendImproving TrendDirection = "improving"
	TrendDeclining TrendDirection = "declining"
	TrendStable    TrendDirection = "stable"
)

// EmergenceLevel is an ordinal classification of how far aggregate behavior
// deviates from linear composition of its parts. Ordering matters:
// Linear < WeakEmergence < HighWeakEmergence.
type EmergenceLevel string

const (
	EmergenceLinear   EmergenceLevel = "LINEAR"
	EmergenceWeak     EmergenceLevel = "WEAK_EMERGENCE"
	EmergenceHighWeak EmergenceLevel = "HIGH_WEAK_EMERGENCE"
)

// Rank returns the ordinal position of the level. Unknown levels rank as
// Linear so a corrupt record never reads as an improvement.
func (e EmergenceLevel) Rank() int {
	switch e {
	case EmergenceHighWeak:
		return 2
	case EmergenceWeak:
		return 1
	default:
		return 0
	}
}

// TrustTrend summarizes the recent trust-score trajectory for a tenant.
type TrustTrend struct {
	Direction    TrendDirection `json:"direction"`
	Slope        float64        `json:"slope"`
	Volatility   float64        `json:"volatility"`
	RecentChange float64        `json:"recent_change"`
}

// AgentHealth holds agent population counts by governance status.
type AgentHealth struct {
	Total         int     `json:"total"`
	Active        int     `json:"active"`
	Banned        int     `json:"banned"`
	Restricted    int     `json:"restricted"`
	Quarantined   int     `json:"quarantined"`
	AvgAgentTrust float64 `json:"avg_agent_trust"`
}

// AlertSummary holds active-alert counts for a tenant.
type AlertSummary struct {
	Total          int `json:"total"`
	Critical       int `json:"critical"`
	Warning        int `json:"warning"`
	Unacknowledged int `json:"unacknowledged"`
}

// SensorSnapshot is the point-in-time observation a cycle reasons over.
//
// Snapshots are ephemeral: recomputed every cycle and never persisted as-is.
// The pre/post snapshot pair of an enforced cycle is reduced to deltas by the
// feedback tracker before anything is written.
type SensorSnapshot struct {
	TenantID        string         `json:"tenant_id"`
	AvgTrust        float64        `json:"avg_trust"`
	HistoricalMean  float64        `json:"historical_mean"`
	HistoricalStd   float64        `json:"historical_std"`
	TrustTrend      TrustTrend     `json:"trust_trend"`
	EmergenceLevel  EmergenceLevel `json:"emergence_level"`
	AgentHealth     AgentHealth    `json:"agent_health"`
	ActiveAlerts    AlertSummary   `json:"active_alerts"`
	Timestamp       time.Time      `json:"timestamp"`
	IsBusinessHours bool           `json:"is_business_hours"`
}

// =============================================================================
// Analysis
// =============================================================================

// Severity grades an anomaly.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly is a single detected deviation with the value that tripped it.
type Anomaly struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	Value       float64  `json:"value"`
	Threshold   float64  `json:"threshold"`
	Description string   `json:"description"`
}

// HealthStatus is the overall classification of a snapshot.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusWarning  HealthStatus = "warning"
	StatusCritical HealthStatus = "critical"
)

// Urgency drives how many corrective actions a cycle may carry.
type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyImmediate Urgency = "immediate"
)

// Analysis is the deterministic classification of a SensorSnapshot.
// It is derived purely from the snapshot: same input, same output, no I/O.
type Analysis struct {
	Status       HealthStatus   `json:"status"`
	Observations []string       `json:"observations"`
	RiskScore    int            `json:"risk_score"`
	Anomalies    []Anomaly      `json:"anomalies"`
	Urgency      Urgency        `json:"urgency"`
	Context      map[string]any `json:"context,omitempty"`
}

// HighAnomalies counts high-severity anomalies.
func (a Analysis) HighAnomalies() int {
	n := 0
	for _, an := range a.Anomalies {
		if an.Severity == SeverityHigh {
			n++
		}
	}
	return n
}

// =============================================================================
// Actions
// =============================================================================

// ActionType is the closed set of corrective actions the Overseer can take.
// Unknown values are rejected at the fusion boundary via ParseActionType.
type ActionType string

const (
	ActionAlert           ActionType = "alert"
	ActionAdjustThreshold ActionType = "adjust_threshold"
	ActionBanAgent        ActionType = "ban_agent"
	ActionRestrictAgent   ActionType = "restrict_agent"
	ActionQuarantineAgent ActionType = "quarantine_agent"
	ActionUnbanAgent      ActionType = "unban_agent"
)

// AllActionTypes lists every valid action type, in a stable order.
// Used by the feedback tracker when recomputing recommendations.
var AllActionTypes = []ActionType{
	ActionAlert,
	ActionAdjustThreshold,
	ActionBanAgent,
	ActionRestrictAgent,
	ActionQuarantineAgent,
	ActionUnbanAgent,
}

// ParseActionType validates a raw string against the closed action set.
func ParseActionType(s string) (ActionType, error) {
	switch t := ActionType(s); t {
	case ActionAlert, ActionAdjustThreshold, ActionBanAgent,
		ActionRestrictAgent, ActionQuarantineAgent, ActionUnbanAgent:
		return t, nil
	default:
		return "", fmt.Errorf("unknown action type %q", s)
	}
}

// Enforcement reports whether the action mutates an agent's standing.
// Enforcement actions are gated behind a minimum risk score regardless of
// where the proposal came from.
func (t ActionType) Enforcement() bool {
	switch t {
	case ActionBanAgent, ActionRestrictAgent, ActionQuarantineAgent:
		return true
	default:
		return false
	}
}

// Priority orders actions for execution. Lower rank executes first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Rank maps a priority to its sort position. Unknown priorities sink last.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// PlannedAction is a single corrective action proposed for a cycle.
type PlannedAction struct {
	ID         string     `json:"id"`
	Type       ActionType `json:"type"`
	Target     string     `json:"target"`
	Reason     string     `json:"reason"`
	Priority   Priority   `json:"priority"`
	Confidence float64    `json:"confidence"`
	Severity   Severity   `json:"severity,omitempty"`
}

// Key identifies an action for dedup purposes.
func (a PlannedAction) Key() string {
	return string(a.Type) + "|" + a.Target
}

// =============================================================================
// Cycle
// =============================================================================

// Mode gates whether a cycle mutates state.
type Mode string

const (
	// ModeAdvisory records planned actions without applying them.
	ModeAdvisory Mode = "advisory"
	// ModeEnforced applies state-changing actions.
	ModeEnforced Mode = "enforced"
)

// ParseMode validates a raw mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAdvisory, ModeEnforced:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// CycleStatus is the lifecycle state of a cycle record.
type CycleStatus string

const (
	CycleStarted   CycleStatus = "started"
	CycleCompleted CycleStatus = "completed"
	CycleFailed    CycleStatus = "failed"
)

// ActionStatus is the executor's verdict on a single action.
type ActionStatus string

const (
	ActionPlanned  ActionStatus = "planned"
	ActionSkipped  ActionStatus = "skipped"
	ActionExecuted ActionStatus = "executed"
	ActionFailed   ActionStatus = "failed"
)

// CycleAction is the persisted trace of one action within a cycle.
type CycleAction struct {
	ID     string       `json:"id"`
	Type   ActionType   `json:"type"`
	Target string       `json:"target"`
	Reason string       `json:"reason"`
	Status ActionStatus `json:"status"`
}

// CycleMetrics are summary numbers recorded on the finished cycle.
type CycleMetrics struct {
	DurationMS      int64 `json:"duration_ms"`
	RiskScore       int   `json:"risk_score"`
	ActionsPlanned  int   `json:"actions_planned"`
	ActionsExecuted int   `json:"actions_executed"`
	ActionsFailed   int   `json:"actions_failed"`
}

// Cycle is the persisted record of one governance loop iteration.
//
// A Cycle is created at cycle start, mutated exclusively by the orchestrator,
// and immutable once its status is completed or failed.
type Cycle struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id"`
	Mode         Mode           `json:"mode"`
	Status       CycleStatus    `json:"status"`
	Observations []string       `json:"observations"`
	Actions      []CycleAction  `json:"actions"`
	InputContext map[string]any `json:"input_context,omitempty"`
	Metrics      CycleMetrics   `json:"metrics"`
	Error        string         `json:"error,omitempty"`
	StartedAt    time.Time      `json:"started_at"`
	CompletedAt  time.Time      `json:"completed_at"`
}

// =============================================================================
// Feedback
// =============================================================================

// OutcomeMetrics carries the raw pre/post deltas behind an outcome.
type OutcomeMetrics struct {
	TrustDelta     float64 `json:"trust_delta"`
	EmergenceDelta int     `json:"emergence_delta"`
}

// ActionOutcome is the measured effect of one executed action.
// Outcomes exist only for enforced cycles with executed actions.
type ActionOutcome struct {
	ActionID   string         `json:"action_id"`
	TenantID   string         `json:"tenant_id"`
	ActionType ActionType     `json:"action_type"`
	Success    bool           `json:"success"`
	Impact     float64        `json:"impact"`
	Metrics    OutcomeMetrics `json:"metrics"`
	Timestamp  time.Time      `json:"timestamp"`
}

// EffectivenessScore aggregates outcomes of one action type over a rolling
// window, keyed by (tenant, action type).
type EffectivenessScore struct {
	ActionType  ActionType `json:"action_type"`
	SuccessRate float64    `json:"success_rate"`
	AvgImpact   float64    `json:"avg_impact"`
	SampleSize  int        `json:"sample_size"`
	LastUpdated time.Time  `json:"last_updated"`
}

// RecommendationKind is the planner-facing verdict on an action type.
type RecommendationKind string

const (
	RecommendIncrease RecommendationKind = "increase"
	RecommendDecrease RecommendationKind = "decrease"
	RecommendMaintain RecommendationKind = "maintain"
)

// Recommendation biases future planning for one action type.
type Recommendation struct {
	ActionType     ActionType         `json:"action_type"`
	Recommendation RecommendationKind `json:"recommendation"`
	Confidence     float64            `json:"confidence"`
	Reason         string             `json:"reason"`
}

// RecommendationSet is the cached, per-tenant recommendation table.
// Recomputed at most once per hour per tenant.
type RecommendationSet struct {
	TenantID   string                        `json:"tenant_id"`
	Items      map[ActionType]Recommendation `json:"items"`
	ComputedAt time.Time                     `json:"computed_at"`
}

// Says reports whether the set recommends the given kind for an action type.
// A nil or missing entry never matches.
func (r RecommendationSet) Says(t ActionType, kind RecommendationKind) bool {
	rec, ok := r.Items[t]
	return ok && rec.Recommendation == kind
}

// =============================================================================
// Store Records
// =============================================================================

// TrustSample is one persisted trust measurement for a tenant.
// The aggregate score is the mean of the three sub-metrics.
type TrustSample struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	AgentID     string    `json:"agent_id,omitempty"`
	Accuracy    float64   `json:"accuracy"`
	Consistency float64   `json:"consistency"`
	Compliance  float64   `json:"compliance"`
	Timestamp   time.Time `json:"timestamp"`
}

// Score returns the aggregate trust score for the sample.
func (s TrustSample) Score() float64 {
	return (s.Accuracy + s.Consistency + s.Compliance) / 3.0
}

// AgentStatus is the governance standing of an agent.
type AgentStatus string

const (
	AgentActive      AgentStatus = "active"
	AgentBanned      AgentStatus = "banned"
	AgentRestricted  AgentStatus = "restricted"
	AgentQuarantined AgentStatus = "quarantined"
)

// Agent is the persisted record of a governed agent.
type Agent struct {
	ID         string      `json:"id"`
	TenantID   string      `json:"tenant_id"`
	Name       string      `json:"name"`
	Status     AgentStatus `json:"status"`
	TrustScore float64     `json:"trust_score"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// AlertSeverity grades an alert record.
type AlertSeverity string

const (
	AlertCritical AlertSeverity = "critical"
	AlertWarning  AlertSeverity = "warning"
	AlertInfo     AlertSeverity = "info"
)

// Alert is a persisted alert record for a tenant.
type Alert struct {
	ID           string        `json:"id"`
	TenantID     string        `json:"tenant_id"`
	Severity     AlertSeverity `json:"severity"`
	Message      string        `json:"message"`
	Source       string        `json:"source,omitempty"`
	Acknowledged bool          `json:"acknowledged"`
	Resolved     bool          `json:"resolved"`
	CreatedAt    time.Time     `json:"created_at"`
}
