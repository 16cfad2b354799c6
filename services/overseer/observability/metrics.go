// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the governance loop.
//
// Metrics are exposed via the /metrics endpoint. All metric operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "overseer"

// CycleMetrics holds all Prometheus metrics for governance cycles.
//
// Initialize once at startup via InitMetrics(); registering twice on the
// default registry panics.
type CycleMetrics struct {
	// CyclesTotal counts finished cycles.
	// Labels: tenant, status (completed, failed)
	CyclesTotal *prometheus.CounterVec

	// CycleDurationSeconds measures full cycle duration.
	// Labels: tenant
	CycleDurationSeconds *prometheus.HistogramVec

	// ActionsTotal counts actions by final status.
	// Labels: tenant, type, status (planned, skipped, executed, failed)
	ActionsTotal *prometheus.CounterVec

	// OracleFusionTotal counts decision-fusion attempts by outcome.
	// Labels: outcome (disabled, oracle_error, unparsable, merged)
	OracleFusionTotal *prometheus.CounterVec

	// RiskScore records the last observed risk score per tenant.
	// Labels: tenant
	RiskScore *prometheus.GaugeVec
}

// DefaultMetrics is the singleton instance of CycleMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *CycleMetrics

// InitMetrics creates and registers all Prometheus metrics on the default
// registry. Call once at application startup.
func InitMetrics() *CycleMetrics {
	DefaultMetrics = &CycleMetrics{
		CyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "cycles_total",
				Help:      "Finished governance cycles by status.",
			},
			[]string{"tenant", "status"},
		),
		CycleDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "cycle_duration_seconds",
				Help:      "Wall-clock duration of a full governance cycle.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"tenant"},
		),
		ActionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "actions_total",
				Help:      "Cycle actions by type and final status.",
			},
			[]string{"tenant", "type", "status"},
		),
		OracleFusionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "oracle_fusion_total",
				Help:      "Decision-fusion attempts by outcome.",
			},
			[]string{"outcome"},
		),
		RiskScore: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "risk_score",
				Help:      "Risk score of the most recent analysis.",
			},
			[]string{"tenant"},
		),
	}
	return DefaultMetrics
}

// ObserveCycle records the outcome of one finished cycle.
func (m *CycleMetrics) ObserveCycle(tenant, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.CyclesTotal.WithLabelValues(tenant, status).Inc()
	m.CycleDurationSeconds.WithLabelValues(tenant).Observe(duration.Seconds())
}

// ObserveAction records the final status of one action.
func (m *CycleMetrics) ObserveAction(tenant, actionType, status string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(tenant, actionType, status).Inc()
}

// ObserveFusion records a decision-fusion outcome.
func (m *CycleMetrics) ObserveFusion(outcome string) {
	if m == nil {
		return
	}
	m.OracleFusionTotal.WithLabelValues(outcome).Inc()
}

// SetRiskScore publishes the latest risk score for a tenant.
func (m *CycleMetrics) SetRiskScore(tenant string, score int) {
	if m == nil {
		return
	}
	m.RiskScore.WithLabelValues(tenant).Set(float64(score))
}
