// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sensors assembles the point-in-time SensorSnapshot a cycle
// reasons over.
//
// The aggregator pulls from three independent sources (trust samples,
// agent records, alert records) and degrades gracefully per source: a
// failing source is logged and replaced with documented defaults, never
// aborting snapshot assembly. A snapshot is always produced.
package sensors

import (
	"context"
	"log/slog"
	"time"

	"github.com/AleutianAI/overseer/services/overseer/datatypes"
	"github.com/AleutianAI/overseer/services/overseer/store"
)

const (
	// defaultSampleWindow is how many recent trust samples feed the
	// statistical window.
	defaultSampleWindow = 100

	// baselineTrust substitutes for the trust aggregate when the sample
	// source is unavailable. Chosen to read as "assumed healthy": it keeps
	// a blind cycle from escalating on missing data alone.
	baselineTrust = 85.0

	// recentAvgWindow is how many of the newest samples form the current
	// trust aggregate. Kept short so a fresh collapse diverges from the
	// historical mean instead of being averaged away by the full window.
	// Matches the newest-five grouping of the trend's recent-change stat.
	recentAvgWindow = 5
)

// TrustSource is the read side of the trust-score time series.
// store.TrustSampleStore satisfies it; the InfluxDB source provides an
// alternative backend for deployments that keep samples in a TSDB.
type TrustSource interface {
	RecentSamples(ctx context.Context, tenantID string, limit int) ([]datatypes.TrustSample, error)
}

// Aggregator collects SensorSnapshots for tenants.
//
// Thread Safety: safe for concurrent use; all state is read-only after
// construction.
type Aggregator struct {
	trust        TrustSource
	agents       store.AgentStore
	alerts       store.AlertStore
	logger       *slog.Logger
	sampleWindow int
	now          func() time.Time
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithSampleWindow overrides the trust-sample window size.
func WithSampleWindow(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.sampleWindow = n
		}
	}
}

// WithClock overrides the time source. Used by tests to pin the
// business-hours flag.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an Aggregator over the given sources.
func New(trust TrustSource, agents store.AgentStore, alerts store.AlertStore, logger *slog.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		trust:        trust,
		agents:       agents,
		alerts:       alerts,
		logger:       logger,
		sampleWindow: defaultSampleWindow,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Snapshot assembles a SensorSnapshot for the tenant.
//
// Each sub-gather catches its own failure and substitutes defaults, so a
// single source outage never prevents the cycle from observing the rest of
// the system. Snapshot therefore never returns an error.
func (a *Aggregator) Snapshot(ctx context.Context, tenantID string) datatypes.SensorSnapshot {
	now := a.now()
	snap := datatypes.SensorSnapshot{
		TenantID:        tenantID,
		Timestamp:       now,
		IsBusinessHours: isBusinessHours(now),
	}

	a.gatherTrust(ctx, tenantID, &snap)
	a.gatherAgents(ctx, tenantID, &snap)
	a.gatherAlerts(ctx, tenantID, &snap)

	return snap
}

// gatherTrust fills the trust aggregate, historical stats, trend, and
// emergence level. On source failure it substitutes the baseline trust
// value with a flat, stable trend.
func (a *Aggregator) gatherTrust(ctx context.Context, tenantID string, snap *datatypes.SensorSnapshot) {
	defaults := func() {
		snap.AvgTrust = baselineTrust
		snap.HistoricalMean = baselineTrust
		snap.HistoricalStd = 0
		snap.TrustTrend = datatypes.TrustTrend{Direction: datatypes.TrendStable}
		snap.EmergenceLevel = datatypes.EmergenceLinear
	}

	samples, err := a.trust.RecentSamples(ctx, tenantID, a.sampleWindow)
	if err != nil {
		a.logger.Warn("trust source unavailable, using baseline",
			"tenant", tenantID, "baseline", baselineTrust, "error", err)
		defaults()
		return
	}
	if len(samples) == 0 {
		defaults()
		return
	}

	scores := make([]float64, len(samples))
	for i, s := range samples {
		scores[i] = s.Score()
	}

	m, std := meanStd(scores)
	trend := computeTrend(scores)

	// Current trust is the newest few samples; the historical stats span
	// the whole window, so the two diverge when trust moves.
	recent := scores
	if len(recent) > recentAvgWindow {
		recent = recent[:recentAvgWindow]
	}

	snap.AvgTrust = mean(recent)
	snap.HistoricalMean = m
	snap.HistoricalStd = std
	snap.TrustTrend = trend
	snap.EmergenceLevel = classifyEmergence(trend.Volatility, std)
}

// gatherAgents fills agent-health counts. On failure the counts stay zero.
func (a *Aggregator) gatherAgents(ctx context.Context, tenantID string, snap *datatypes.SensorSnapshot) {
	agents, err := a.agents.ListAgents(ctx, tenantID)
	if err != nil {
		a.logger.Warn("agent source unavailable, using zero counts",
			"tenant", tenantID, "error", err)
		return
	}

	health := datatypes.AgentHealth{Total: len(agents)}
	var trustSum float64
	for _, agent := range agents {
		trustSum += agent.TrustScore
		switch agent.Status {
		case datatypes.AgentBanned:
			health.Banned++
		case datatypes.AgentRestricted:
			health.Restricted++
		case datatypes.AgentQuarantined:
			health.Quarantined++
		default:
			health.Active++
		}
	}
	if len(agents) > 0 {
		health.AvgAgentTrust = trustSum / float64(len(agents))
	}
	snap.AgentHealth = health
}

// gatherAlerts fills active-alert counts. On failure the counts stay zero.
func (a *Aggregator) gatherAlerts(ctx context.Context, tenantID string, snap *datatypes.SensorSnapshot) {
	alerts, err := a.alerts.ActiveAlerts(ctx, tenantID)
	if err != nil {
		a.logger.Warn("alert source unavailable, using zero counts",
			"tenant", tenantID, "error", err)
		return
	}

	summary := datatypes.AlertSummary{Total: len(alerts)}
	for _, alert := range alerts {
		switch alert.Severity {
		case datatypes.AlertCritical:
			summary.Critical++
		case datatypes.AlertWarning:
			summary.Warning++
		}
		if !alert.Acknowledged {
			summary.Unacknowledged++
		}
	}
	snap.ActiveAlerts = summary
}

// isBusinessHours reports whether t falls on a weekday between 09:00 and
// 17:59 local time.
func isBusinessHours(t time.Time) bool {
	hour := t.Hour()
	day := t.Weekday()
	return hour >= 9 && hour <= 17 && day >= time.Monday && day <= time.Friday
}
