// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sensors

import (
	"math"

	"github.com/AleutianAI/overseer/services/overseer/datatypes"
)

// trendWindow caps how many recent points feed the regression.
const trendWindow = 20

// computeTrend derives the trust trajectory from scores ordered newest-first.
//
// The slope is a least-squares linear regression over the most recent
// min(n, 20) points in chronological order, so a positive slope means trust
// is rising. Volatility is the RMS of successive absolute differences.
// RecentChange compares the newest five points against the five before them.
//
// With fewer than 3 samples there is no trend to speak of: the result is
// stable with all numeric fields zero.
func computeTrend(scores []float64) datatypes.TrustTrend {
	if len(scores) < 3 {
		return datatypes.TrustTrend{Direction: datatypes.TrendStable}
	}

	n := len(scores)
	if n > trendWindow {
		n = trendWindow
	}

	// Reverse into chronological order for the regression.
	window := make([]float64, n)
	for i := 0; i < n; i++ {
		window[i] = scores[n-1-i]
	}

	slope := regressionSlope(window)
	volatility := rmsSuccessiveDiff(window)
	recentChange := recentChange(scores)

	direction := datatypes.TrendStable
	switch {
	case slope > 0.5:
		direction = datatypes.TrendImproving
	case slope < -0.5:
		direction = datatypes.TrendDeclining
	}

	return datatypes.TrustTrend{
		Direction:    direction,
		Slope:        slope,
		Volatility:   volatility,
		RecentChange: recentChange,
	}
}

// regressionSlope returns the least-squares slope of y over x = 0..n-1.
func regressionSlope(values []float64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// rmsSuccessiveDiff returns the root-mean-square of successive absolute
// differences, a cheap volatility estimate.
func rmsSuccessiveDiff(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sumSq float64
	for i := 1; i < len(values); i++ {
		d := math.Abs(values[i] - values[i-1])
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

// recentChange is mean(newest 5) - mean(previous 5), over scores ordered
// newest-first. Returns 0 when there is no previous group to compare.
func recentChange(scores []float64) float64 {
	if len(scores) < 6 {
		return 0
	}
	first := scores[:5]
	rest := scores[5:]
	if len(rest) > 5 {
		rest = rest[:5]
	}
	return mean(first) - mean(rest)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	m := mean(values)
	var sumSq float64
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return m, math.Sqrt(sumSq / float64(len(values)))
}

// classifyEmergence maps trust dispersion onto the ordinal emergence scale.
//
// The index follows the Bedau-style tiers of the resonance engine:
// below 0.4 behavior composes linearly, 0.4-0.7 shows weak emergence, and
// above 0.7 the aggregate is treated as highly emergent. Dispersion is
// normalized from volatility and historical spread.
func classifyEmergence(volatility, historicalStd float64) datatypes.EmergenceLevel {
	index := volatility/20.0 + historicalStd/25.0
	if index > 1 {
		index = 1
	}
	switch {
	case index >= 0.7:
		return datatypes.EmergenceHighWeak
	case index >= 0.4:
		return datatypes.EmergenceWeak
	default:
		return datatypes.EmergenceLinear
	}
}
