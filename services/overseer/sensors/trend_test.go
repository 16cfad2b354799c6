// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sensors

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/AleutianAI/overseer/services/overseer/datatypes"
)

// TestComputeTrend_TooFewSamples verifies the stable-zero result below the
// minimum window.
func TestComputeTrend_TooFewSamples(t *testing.T) {
	for _, scores := range [][]float64{nil, {80}, {80, 75}} {
		trend := computeTrend(scores)
		assert.Equal(t, datatypes.TrendStable, trend.Direction)
		assert.Zero(t, trend.Slope)
		assert.Zero(t, trend.Volatility)
		assert.Zero(t, trend.RecentChange)
	}
}

// TestComputeTrend_Improving verifies a rising chronological series reads as
// improving with a positive slope. Scores arrive newest-first.
func TestComputeTrend_Improving(t *testing.T) {
	// Chronological 71..80, so newest-first is 80..71.
	scores := make([]float64, 10)
	for i := range scores {
		scores[i] = 80 - float64(i)
	}

	trend := computeTrend(scores)
	assert.Equal(t, datatypes.TrendImproving, trend.Direction)
	assert.InDelta(t, 1.0, trend.Slope, 1e-9)
}

// TestComputeTrend_Declining verifies a falling chronological series reads
// as declining.
func TestComputeTrend_Declining(t *testing.T) {
	// Chronological 80..71, newest-first 71..80.
	scores := make([]float64, 10)
	for i := range scores {
		scores[i] = 71 + float64(i)
	}

	trend := computeTrend(scores)
	assert.Equal(t, datatypes.TrendDeclining, trend.Direction)
	assert.InDelta(t, -1.0, trend.Slope, 1e-9)
}

// TestComputeTrend_FlatIsStable verifies a constant series has no slope and
// no volatility.
func TestComputeTrend_FlatIsStable(t *testing.T) {
	scores := []float64{85, 85, 85, 85, 85, 85}

	trend := computeTrend(scores)
	assert.Equal(t, datatypes.TrendStable, trend.Direction)
	assert.Zero(t, trend.Slope)
	assert.Zero(t, trend.Volatility)
}

// TestComputeTrend_WindowCap verifies only the newest 20 points feed the
// regression: old history cannot drown out a recent reversal.
func TestComputeTrend_WindowCap(t *testing.T) {
	// Newest 20 points decline by 1 per step; 80 older points are flat high.
	scores := make([]float64, 100)
	for i := 0; i < 20; i++ {
		scores[i] = 60 + float64(i) // newest-first: 60, 61, ... 79
	}
	for i := 20; i < 100; i++ {
		scores[i] = 90
	}

	trend := computeTrend(scores)
	assert.Equal(t, datatypes.TrendDeclining, trend.Direction)
	assert.InDelta(t, -1.0, trend.Slope, 1e-9)
}

// TestRecentChange verifies the newest-five versus previous-five comparison.
func TestRecentChange(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{
			name:   "too few samples",
			scores: []float64{80, 80, 80, 80, 80},
			want:   0,
		},
		{
			name:   "recent jump up",
			scores: []float64{90, 90, 90, 90, 90, 80, 80, 80, 80, 80},
			want:   10,
		},
		{
			name:   "recent drop",
			scores: []float64{70, 70, 70, 70, 70, 80, 80, 80, 80, 80},
			want:   -10,
		},
		{
			name:   "short previous group",
			scores: []float64{90, 90, 90, 90, 90, 80, 80},
			want:   10,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, recentChange(tc.scores), 1e-9)
		})
	}
}

// TestRMSSuccessiveDiff verifies the volatility estimate.
func TestRMSSuccessiveDiff(t *testing.T) {
	assert.Zero(t, rmsSuccessiveDiff([]float64{80}))
	assert.Zero(t, rmsSuccessiveDiff([]float64{80, 80, 80}))
	// Alternating +-4: every successive diff is 4.
	assert.InDelta(t, 4.0, rmsSuccessiveDiff([]float64{80, 84, 80, 84, 80}), 1e-9)
}

// TestMeanStd verifies the population standard deviation.
func TestMeanStd(t *testing.T) {
	m, std := meanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, m, 1e-9)
	assert.InDelta(t, 2.0, std, 1e-9)

	m, std = meanStd(nil)
	assert.Zero(t, m)
	assert.Zero(t, std)
}

// TestClassifyEmergence verifies the dispersion tiers.
func TestClassifyEmergence(t *testing.T) {
	tests := []struct {
		name       string
		volatility float64
		std        float64
		want       datatypes.EmergenceLevel
	}{
		{"calm", 0, 0, datatypes.EmergenceLinear},
		{"mild dispersion", 4, 3, datatypes.EmergenceLinear},
		{"weak from volatility", 8, 0, datatypes.EmergenceWeak},
		{"weak from spread", 0, 10, datatypes.EmergenceWeak},
		{"high combined", 10, 5, datatypes.EmergenceHighWeak},
		{"saturated index", 100, 100, datatypes.EmergenceHighWeak},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyEmergence(tc.volatility, tc.std))
		})
	}
}
