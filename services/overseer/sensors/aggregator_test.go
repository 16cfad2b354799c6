// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sensors

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/overseer/services/overseer/analysis"
	"github.com/AleutianAI/overseer/services/overseer/datatypes"
)

// -----------------------------------------------------------------------------
// fakes
// -----------------------------------------------------------------------------

type fakeTrustSource struct {
	samples []datatypes.TrustSample
	err     error
}

func (f *fakeTrustSource) RecentSamples(ctx context.Context, tenantID string, limit int) ([]datatypes.TrustSample, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.samples) > limit {
		return f.samples[:limit], nil
	}
	return f.samples, nil
}

type fakeAgentStore struct {
	agents []datatypes.Agent
	err    error
}

func (f *fakeAgentStore) ListAgents(ctx context.Context, tenantID string) ([]datatypes.Agent, error) {
	return f.agents, f.err
}

func (f *fakeAgentStore) GetAgent(ctx context.Context, tenantID, agentID string) (datatypes.Agent, error) {
	return datatypes.Agent{}, errors.New("not implemented")
}

func (f *fakeAgentStore) PutAgent(ctx context.Context, agent datatypes.Agent) error {
	return errors.New("not implemented")
}

func (f *fakeAgentStore) SetAgentStatus(ctx context.Context, tenantID, agentID string, status datatypes.AgentStatus) error {
	return errors.New("not implemented")
}

type fakeAlertStore struct {
	alerts []datatypes.Alert
	err    error
}

func (f *fakeAlertStore) ActiveAlerts(ctx context.Context, tenantID string) ([]datatypes.Alert, error) {
	return f.alerts, f.err
}

func (f *fakeAlertStore) CreateAlert(ctx context.Context, alert datatypes.Alert) error {
	return errors.New("not implemented")
}

func sampleAt(score float64, ts time.Time) datatypes.TrustSample {
	return datatypes.TrustSample{
		TenantID:    "t1",
		Accuracy:    score,
		Consistency: score,
		Compliance:  score,
		Timestamp:   ts,
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// A Tuesday at noon and a Sunday at 3am, for the business-hours flag.
var (
	tuesdayNoon = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	sunday3am   = time.Date(2025, 6, 8, 3, 0, 0, 0, time.UTC)
)

// -----------------------------------------------------------------------------
// tests
// -----------------------------------------------------------------------------

// TestSnapshot_TrustSourceDown verifies the documented degradation: baseline
// trust, zero deviation, stable trend, linear emergence.
func TestSnapshot_TrustSourceDown(t *testing.T) {
	agg := New(
		&fakeTrustSource{err: errors.New("connection refused")},
		&fakeAgentStore{},
		&fakeAlertStore{},
		quietLogger(),
		WithClock(func() time.Time { return tuesdayNoon }),
	)

	snap := agg.Snapshot(context.Background(), "t1")

	assert.Equal(t, 85.0, snap.AvgTrust)
	assert.Equal(t, 85.0, snap.HistoricalMean)
	assert.Zero(t, snap.HistoricalStd)
	assert.Equal(t, datatypes.TrendStable, snap.TrustTrend.Direction)
	assert.Equal(t, datatypes.EmergenceLinear, snap.EmergenceLevel)
	assert.True(t, snap.IsBusinessHours)
}

// TestSnapshot_NoSamples verifies an empty series gets the same defaults as
// an unavailable source.
func TestSnapshot_NoSamples(t *testing.T) {
	agg := New(&fakeTrustSource{}, &fakeAgentStore{}, &fakeAlertStore{}, quietLogger())

	snap := agg.Snapshot(context.Background(), "t1")
	assert.Equal(t, 85.0, snap.AvgTrust)
	assert.Equal(t, datatypes.TrendStable, snap.TrustTrend.Direction)
}

// TestSnapshot_AgentAndAlertDegradation verifies failures of the secondary
// sources zero their sections without touching the trust stats.
func TestSnapshot_AgentAndAlertDegradation(t *testing.T) {
	now := tuesdayNoon
	trust := &fakeTrustSource{samples: []datatypes.TrustSample{
		sampleAt(80, now), sampleAt(80, now.Add(-time.Hour)), sampleAt(80, now.Add(-2*time.Hour)),
	}}
	agg := New(trust,
		&fakeAgentStore{err: errors.New("down")},
		&fakeAlertStore{err: errors.New("down")},
		quietLogger())

	snap := agg.Snapshot(context.Background(), "t1")

	assert.InDelta(t, 80.0, snap.AvgTrust, 1e-9)
	assert.Zero(t, snap.AgentHealth.Total)
	assert.Zero(t, snap.ActiveAlerts.Total)
}

// TestSnapshot_RecentCollapseDivergesFromHistory verifies the current trust
// aggregate tracks the newest samples while the historical stats span the
// full window, so a fresh collapse registers as a deviation from the norm.
func TestSnapshot_RecentCollapseDivergesFromHistory(t *testing.T) {
	now := tuesdayNoon
	var samples []datatypes.TrustSample
	for i := 0; i < 10; i++ {
		samples = append(samples, sampleAt(45, now.Add(-time.Duration(i)*time.Minute)))
	}
	for i := 10; i < 100; i++ {
		samples = append(samples, sampleAt(90, now.Add(-time.Duration(i)*time.Minute)))
	}

	agg := New(&fakeTrustSource{samples: samples}, &fakeAgentStore{}, &fakeAlertStore{}, quietLogger())
	snap := agg.Snapshot(context.Background(), "t1")

	assert.InDelta(t, 45.0, snap.AvgTrust, 1e-9)
	assert.InDelta(t, 85.5, snap.HistoricalMean, 1e-9)
	assert.InDelta(t, 13.5, snap.HistoricalStd, 1e-9)

	// z = (45 - 85.5) / 13.5 = -3: the analyzer must see the collapse as a
	// deviation anomaly, not average it away.
	an := analysis.Analyze(snap)
	types := make([]string, 0, len(an.Anomalies))
	for _, anomaly := range an.Anomalies {
		types = append(types, anomaly.Type)
	}
	assert.Contains(t, types, analysis.AnomalyTrustDeviation)
	assert.Contains(t, types, analysis.AnomalyCriticalTrust)
}

// TestSnapshot_ShortSeriesAggregate verifies a series shorter than the
// recent sub-window averages whatever exists.
func TestSnapshot_ShortSeriesAggregate(t *testing.T) {
	now := tuesdayNoon
	trust := &fakeTrustSource{samples: []datatypes.TrustSample{
		sampleAt(70, now), sampleAt(80, now.Add(-time.Hour)),
	}}
	agg := New(trust, &fakeAgentStore{}, &fakeAlertStore{}, quietLogger())

	snap := agg.Snapshot(context.Background(), "t1")

	assert.InDelta(t, 75.0, snap.AvgTrust, 1e-9)
	assert.InDelta(t, 75.0, snap.HistoricalMean, 1e-9)
}

// TestSnapshot_AgentCounts verifies status bucketing and the population
// trust average.
func TestSnapshot_AgentCounts(t *testing.T) {
	agents := &fakeAgentStore{agents: []datatypes.Agent{
		{ID: "a", Status: datatypes.AgentActive, TrustScore: 90},
		{ID: "b", Status: datatypes.AgentBanned, TrustScore: 40},
		{ID: "c", Status: datatypes.AgentQuarantined, TrustScore: 50},
		{ID: "d", Status: datatypes.AgentRestricted, TrustScore: 60},
	}}
	agg := New(&fakeTrustSource{}, agents, &fakeAlertStore{}, quietLogger())

	snap := agg.Snapshot(context.Background(), "t1")

	assert.Equal(t, 4, snap.AgentHealth.Total)
	assert.Equal(t, 1, snap.AgentHealth.Active)
	assert.Equal(t, 1, snap.AgentHealth.Banned)
	assert.Equal(t, 1, snap.AgentHealth.Quarantined)
	assert.Equal(t, 1, snap.AgentHealth.Restricted)
	assert.InDelta(t, 60.0, snap.AgentHealth.AvgAgentTrust, 1e-9)
}

// TestSnapshot_AlertCounts verifies severity and acknowledgement bucketing.
func TestSnapshot_AlertCounts(t *testing.T) {
	alerts := &fakeAlertStore{alerts: []datatypes.Alert{
		{Severity: datatypes.AlertCritical},
		{Severity: datatypes.AlertWarning, Acknowledged: true},
		{Severity: datatypes.AlertInfo},
	}}
	agg := New(&fakeTrustSource{}, &fakeAgentStore{}, alerts, quietLogger())

	snap := agg.Snapshot(context.Background(), "t1")

	assert.Equal(t, 3, snap.ActiveAlerts.Total)
	assert.Equal(t, 1, snap.ActiveAlerts.Critical)
	assert.Equal(t, 1, snap.ActiveAlerts.Warning)
	assert.Equal(t, 2, snap.ActiveAlerts.Unacknowledged)
}

// TestIsBusinessHours pins the weekday 09:00-17:59 window.
func TestIsBusinessHours(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"tuesday noon", tuesdayNoon, true},
		{"sunday night", sunday3am, false},
		{"weekday before open", time.Date(2025, 6, 10, 8, 59, 0, 0, time.UTC), false},
		{"weekday at open", time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC), true},
		{"weekday last hour", time.Date(2025, 6, 10, 17, 59, 0, 0, time.UTC), true},
		{"weekday after close", time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC), false},
		{"saturday noon", time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC), false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isBusinessHours(tc.at))
		})
	}
}
