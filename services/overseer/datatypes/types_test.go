// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseActionType_Valid verifies every member of the closed action set
// parses back to itself.
func TestParseActionType_Valid(t *testing.T) {
	for _, want := range AllActionTypes {
		got, err := ParseActionType(string(want))
		require.NoError(t, err, "action type %q should parse", want)
		assert.Equal(t, want, got)
	}
}

// TestParseActionType_Invalid verifies unknown strings are rejected rather
// than passed through as new action types.
func TestParseActionType_Invalid(t *testing.T) {
	for _, raw := range []string{"", "delete_all_data", "ALERT", "ban agent"} {
		_, err := ParseActionType(raw)
		assert.Error(t, err, "raw %q should not parse", raw)
	}
}

// TestActionType_Enforcement verifies only agent-standing mutations count as
// enforcement.
func TestActionType_Enforcement(t *testing.T) {
	tests := []struct {
		actionType  ActionType
		enforcement bool
	}{
		{ActionBanAgent, true},
		{ActionRestrictAgent, true},
		{ActionQuarantineAgent, true},
		{ActionAlert, false},
		{ActionAdjustThreshold, false},
		{ActionUnbanAgent, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.actionType), func(t *testing.T) {
			assert.Equal(t, tt.enforcement, tt.actionType.Enforcement())
		})
	}
}

// TestParseMode verifies the two valid modes parse and anything else errors.
func TestParseMode(t *testing.T) {
	m, err := ParseMode("advisory")
	require.NoError(t, err)
	assert.Equal(t, ModeAdvisory, m)

	m, err = ParseMode("enforced")
	require.NoError(t, err)
	assert.Equal(t, ModeEnforced, m)

	_, err = ParseMode("dry-run")
	assert.Error(t, err)
	_, err = ParseMode("")
	assert.Error(t, err)
}

// TestPriority_Rank verifies execution ordering: critical first, unknown last.
func TestPriority_Rank(t *testing.T) {
	assert.Less(t, PriorityCritical.Rank(), PriorityHigh.Rank())
	assert.Less(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Less(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.Less(t, PriorityLow.Rank(), Priority("bogus").Rank())
}

// TestEmergenceLevel_Rank verifies ordinal ordering and that corrupt values
// rank as Linear.
func TestEmergenceLevel_Rank(t *testing.T) {
	assert.Equal(t, 0, EmergenceLinear.Rank())
	assert.Equal(t, 1, EmergenceWeak.Rank())
	assert.Equal(t, 2, EmergenceHighWeak.Rank())
	assert.Equal(t, 0, EmergenceLevel("garbage").Rank())
}

// TestPlannedAction_Key verifies the dedup key is (type, target) and nothing
// else.
func TestPlannedAction_Key(t *testing.T) {
	a := PlannedAction{Type: ActionBanAgent, Target: "agent-1", Reason: "r1"}
	b := PlannedAction{Type: ActionBanAgent, Target: "agent-1", Reason: "r2", Priority: PriorityLow}
	c := PlannedAction{Type: ActionBanAgent, Target: "agent-2"}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

// TestTrustSample_Score verifies the aggregate is the mean of the three
// sub-metrics.
func TestTrustSample_Score(t *testing.T) {
	s := TrustSample{Accuracy: 90, Consistency: 80, Compliance: 70}
	assert.InDelta(t, 80.0, s.Score(), 0.001)

	assert.Equal(t, 0.0, TrustSample{}.Score())
}

// TestAnalysis_HighAnomalies verifies only high-severity anomalies count.
func TestAnalysis_HighAnomalies(t *testing.T) {
	a := Analysis{Anomalies: []Anomaly{
		{Type: "critical_trust", Severity: SeverityHigh},
		{Type: "rapid_decline", Severity: SeverityMedium},
		{Type: "trust_deviation", Severity: SeverityHigh},
		{Type: "alert_fatigue", Severity: SeverityLow},
	}}
	assert.Equal(t, 2, a.HighAnomalies())
	assert.Equal(t, 0, Analysis{}.HighAnomalies())
}

// TestRecommendationSet_Says verifies lookups against empty and populated sets.
func TestRecommendationSet_Says(t *testing.T) {
	empty := RecommendationSet{}
	assert.False(t, empty.Says(ActionBanAgent, RecommendDecrease))

	set := RecommendationSet{Items: map[ActionType]Recommendation{
		ActionBanAgent: {ActionType: ActionBanAgent, Recommendation: RecommendDecrease},
		ActionAlert:    {ActionType: ActionAlert, Recommendation: RecommendIncrease},
	}}

	assert.True(t, set.Says(ActionBanAgent, RecommendDecrease))
	assert.False(t, set.Says(ActionBanAgent, RecommendIncrease))
	assert.False(t, set.Says(ActionAdjustThreshold, RecommendMaintain))
}
