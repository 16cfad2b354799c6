// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package overseer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/overseer/services/llm"
	"github.com/AleutianAI/overseer/services/overseer/datatypes"
	"github.com/AleutianAI/overseer/services/overseer/sensors"
	badgerstore "github.com/AleutianAI/overseer/services/overseer/store/badger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testStore(t *testing.T) *badgerstore.Store {
	t.Helper()
	st, err := badgerstore.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// seedLowTrust writes a flat, critically low trust series.
func seedLowTrust(t *testing.T, st *badgerstore.Store, tenantID string) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		require.NoError(t, st.AppendSample(context.Background(), datatypes.TrustSample{
			ID:          fmt.Sprintf("s%d", i),
			TenantID:    tenantID,
			Accuracy:    40,
			Consistency: 40,
			Compliance:  40,
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}))
	}
}

// failingTrustSource simulates a sensor outage.
type failingTrustSource struct{}

func (failingTrustSource) RecentSamples(ctx context.Context, tenantID string, limit int) ([]datatypes.TrustSample, error) {
	return nil, errors.New("influx unreachable")
}

// blockingOracle parks Generate calls until released, counting invocations.
type blockingOracle struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (b *blockingOracle) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	if b.release != nil {
		<-b.release
	}
	return "", errors.New("oracle offline")
}

func (b *blockingOracle) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// TestThink_AdvisoryCycleCompletes verifies a full advisory cycle over a
// degraded tenant produces a completed record with planned actions and no
// state mutation.
func TestThink_AdvisoryCycleCompletes(t *testing.T) {
	st := testStore(t)
	seedLowTrust(t, st, "t1")
	o := New(st, nil, nil, testLogger())

	o.Think(context.Background(), "t1", datatypes.ModeAdvisory)

	cycle, err := st.LatestCycle(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.CycleCompleted, cycle.Status)
	assert.Equal(t, datatypes.ModeAdvisory, cycle.Mode)
	assert.NotZero(t, cycle.Metrics.RiskScore)
	assert.Contains(t, cycle.Observations, "critical_trust")

	require.NotEmpty(t, cycle.Actions)
	for _, a := range cycle.Actions {
		assert.Contains(t,
			[]datatypes.ActionStatus{datatypes.ActionPlanned, datatypes.ActionSkipped}, a.Status,
			"advisory cycles must not execute")
	}
	assert.Zero(t, cycle.Metrics.ActionsExecuted)

	// No alert was written: the planned alert stayed advisory.
	alerts, err := st.ActiveAlerts(context.Background(), "t1")
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

// TestThink_EnforcedCycleExecutesAndLearns verifies an enforced cycle writes
// the alert and records an outcome for it.
func TestThink_EnforcedCycleExecutesAndLearns(t *testing.T) {
	st := testStore(t)
	seedLowTrust(t, st, "t1")
	o := New(st, nil, nil, testLogger())

	o.Think(context.Background(), "t1", datatypes.ModeEnforced)

	cycle, err := st.LatestCycle(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.CycleCompleted, cycle.Status)
	assert.NotZero(t, cycle.Metrics.ActionsExecuted)

	alerts, err := st.ActiveAlerts(context.Background(), "t1")
	require.NoError(t, err)
	assert.NotEmpty(t, alerts)

	outcomes, err := st.OutcomesSince(context.Background(), "t1", datatypes.ActionAlert, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, outcomes)
	assert.True(t, outcomes[0].Success)
}

// TestThink_HealthyTenantPlansNothing verifies a quiet tenant completes with
// an empty action list.
func TestThink_HealthyTenantPlansNothing(t *testing.T) {
	st := testStore(t)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 10; i++ {
		require.NoError(t, st.AppendSample(context.Background(), datatypes.TrustSample{
			ID: fmt.Sprintf("s%d", i), TenantID: "t1",
			Accuracy: 90, Consistency: 90, Compliance: 90,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	o := New(st, nil, nil, testLogger())

	o.Think(context.Background(), "t1", datatypes.ModeEnforced)

	cycle, err := st.LatestCycle(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.CycleCompleted, cycle.Status)
	assert.Empty(t, cycle.Actions)
}

// TestThink_SurvivesTotalSensorAndOracleFailure verifies the cycle still
// completes when the trust source and the oracle are both down.
func TestThink_SurvivesTotalSensorAndOracleFailure(t *testing.T) {
	st := testStore(t)
	oracle := &blockingOracle{}
	o := New(st, oracle, nil, testLogger(),
		WithAggregator(sensors.New(failingTrustSource{}, st, st, testLogger())))

	o.Think(context.Background(), "t1", datatypes.ModeEnforced)

	cycle, err := st.LatestCycle(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.CycleCompleted, cycle.Status)
	// Baseline trust reads healthy, so nothing was planned and the oracle
	// failure was absorbed.
	assert.Empty(t, cycle.Actions)
}

// TestThink_ReentrancyGuard verifies a second Think for the same tenant is a
// no-op while the first is in flight.
func TestThink_ReentrancyGuard(t *testing.T) {
	st := testStore(t)
	seedLowTrust(t, st, "t1")
	oracle := &blockingOracle{release: make(chan struct{})}
	o := New(st, oracle, nil, testLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.Think(context.Background(), "t1", datatypes.ModeAdvisory)
	}()

	// Wait until the first cycle is parked inside the oracle call.
	require.Eventually(t, func() bool { return oracle.callCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	// Reentrant call returns immediately without consulting the oracle.
	o.Think(context.Background(), "t1", datatypes.ModeAdvisory)
	assert.Equal(t, 1, oracle.callCount())

	close(oracle.release)
	wg.Wait()

	// The guard resets once the first cycle finishes.
	o.Think(context.Background(), "t1", datatypes.ModeAdvisory)
	assert.Equal(t, 2, oracle.callCount())
}

// TestThink_TenantsRunIndependently verifies guards are per tenant: a parked
// cycle for one tenant does not block another.
func TestThink_TenantsRunIndependently(t *testing.T) {
	st := testStore(t)
	seedLowTrust(t, st, "t1")
	seedLowTrust(t, st, "t2")
	oracle := &blockingOracle{release: make(chan struct{})}
	o := New(st, oracle, nil, testLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		o.Think(context.Background(), "t1", datatypes.ModeAdvisory)
	}()
	require.Eventually(t, func() bool { return oracle.callCount() == 1 },
		2*time.Second, 10*time.Millisecond)

	wg.Add(1)
	go func() {
		defer wg.Done()
		o.Think(context.Background(), "t2", datatypes.ModeAdvisory)
	}()
	require.Eventually(t, func() bool { return oracle.callCount() == 2 },
		2*time.Second, 10*time.Millisecond)

	close(oracle.release)
	wg.Wait()

	for _, tenant := range []string{"t1", "t2"} {
		cycle, err := st.LatestCycle(context.Background(), tenant)
		require.NoError(t, err)
		assert.Equal(t, datatypes.CycleCompleted, cycle.Status)
	}
}

// TestThink_CancelledContextFailsCycle verifies a cancelled context still
// leaves a persisted, failed cycle record.
func TestThink_CancelledContextFailsCycle(t *testing.T) {
	st := testStore(t)
	seedLowTrust(t, st, "t1")
	o := New(st, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o.Think(ctx, "t1", datatypes.ModeAdvisory)

	cycle, err := st.LatestCycle(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, datatypes.CycleFailed, cycle.Status)
	assert.NotEmpty(t, cycle.Error)
}

// TestScheduler_TriggersCycles verifies the ticker drives Think for each
// configured tenant and stops on context cancellation.
func TestScheduler_TriggersCycles(t *testing.T) {
	st := testStore(t)
	seedLowTrust(t, st, "t1")
	o := New(st, nil, nil, testLogger())
	sched := NewScheduler(o, []string{"t1"}, datatypes.ModeAdvisory, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		_, err := st.LatestCycle(context.Background(), "t1")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancellation")
	}
}
