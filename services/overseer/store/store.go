// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store defines the query-shaped persistence interfaces the Overseer
// consumes. The control loop never sees storage details: everything is
// find-by-filter, count, or append. The badger subpackage provides the
// embedded implementation; tests substitute in-memory fakes.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/AleutianAI/overseer/services/overseer/datatypes"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("store: not found")

// TrustSampleStore reads and appends the trust-score time series.
type TrustSampleStore interface {
	// RecentSamples returns up to limit samples for the tenant,
	// newest first.
	RecentSamples(ctx context.Context, tenantID string, limit int) ([]datatypes.TrustSample, error)

	// AppendSample persists a new trust measurement.
	AppendSample(ctx context.Context, sample datatypes.TrustSample) error
}

// AgentStore reads and mutates agent governance records.
type AgentStore interface {
	// ListAgents returns every agent for the tenant.
	ListAgents(ctx context.Context, tenantID string) ([]datatypes.Agent, error)

	// GetAgent returns a single agent or ErrNotFound.
	GetAgent(ctx context.Context, tenantID, agentID string) (datatypes.Agent, error)

	// PutAgent creates or replaces an agent record.
	PutAgent(ctx context.Context, agent datatypes.Agent) error

	// SetAgentStatus transitions an agent's governance standing.
	// Returns ErrNotFound if the agent does not exist.
	SetAgentStatus(ctx context.Context, tenantID, agentID string, status datatypes.AgentStatus) error
}

// AlertStore reads and appends alert records.
type AlertStore interface {
	// ActiveAlerts returns unresolved alerts for the tenant.
	ActiveAlerts(ctx context.Context, tenantID string) ([]datatypes.Alert, error)

	// CreateAlert persists a new alert.
	CreateAlert(ctx context.Context, alert datatypes.Alert) error
}

// CycleStore persists cycle lifecycle records.
type CycleStore interface {
	// SaveCycle writes or overwrites a cycle record.
	SaveCycle(ctx context.Context, cycle datatypes.Cycle) error

	// LatestCycle returns the most recent cycle for the tenant,
	// or ErrNotFound if the tenant has never cycled.
	LatestCycle(ctx context.Context, tenantID string) (datatypes.Cycle, error)
}

// OutcomeStore persists measured action outcomes for effectiveness scoring.
type OutcomeStore interface {
	// RecordOutcome appends one measured outcome.
	RecordOutcome(ctx context.Context, outcome datatypes.ActionOutcome) error

	// OutcomesSince returns outcomes of the given action type recorded at or
	// after the cutoff, for the tenant.
	OutcomesSince(ctx context.Context, tenantID string, actionType datatypes.ActionType, since time.Time) ([]datatypes.ActionOutcome, error)
}

// RecommendationCache persists the per-tenant recommendation table between
// cycles. The hourly refresh gate lives on RecommendationSet.ComputedAt,
// per tenant, never process-global.
type RecommendationCache interface {
	// Recommendations returns the cached set, or ErrNotFound.
	Recommendations(ctx context.Context, tenantID string) (datatypes.RecommendationSet, error)

	// PutRecommendations replaces the cached set.
	PutRecommendations(ctx context.Context, set datatypes.RecommendationSet) error
}

// ThresholdStore holds per-tenant tunable thresholds (e.g. the minimum
// trust score) that adjust_threshold actions mutate.
type ThresholdStore interface {
	// Threshold returns a named threshold, or ErrNotFound.
	Threshold(ctx context.Context, tenantID, name string) (float64, error)

	// SetThreshold writes a named threshold.
	SetThreshold(ctx context.Context, tenantID, name string, value float64) error
}

// Store is the full document-store surface the Overseer wires against.
type Store interface {
	TrustSampleStore
	AgentStore
	AlertStore
	CycleStore
	OutcomeStore
	RecommendationCache
	ThresholdStore

	Close() error
}
