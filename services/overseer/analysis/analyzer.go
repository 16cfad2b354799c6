// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis classifies a SensorSnapshot into an Analysis.
//
// Analyze is a pure function: deterministic given its input, no I/O, no
// side effects. The additive point table and its thresholds are load-bearing
// business rules; the planner's lookup tables key off the observation tags
// and anomaly types emitted here.
package analysis

import (
	"math"

	"github.com/AleutianAI/overseer/services/overseer/datatypes"
)

// Observation tags. The planner maps these to corrective actions.
const (
	ObsCriticalTrust  = "critical_trust"
	ObsLowTrust       = "low_trust"
	ObsModerateTrust  = "moderate_trust"
	ObsTrustBelowNorm = "trust_below_norm"
	ObsHighEmergence  = "high_emergence"
	ObsWeakEmergence  = "weak_emergence"
	ObsDecliningTrend = "declining_trend"
	ObsRapidDecline   = "rapid_decline"
	ObsImprovingTrend = "improving_trend"
	ObsHighVolatility = "high_volatility"
	ObsHighBanRatio   = "high_ban_ratio"
	ObsCriticalAlerts = "critical_alerts_active"
	ObsAlertBacklog   = "alert_backlog"
)

// Anomaly types. A subset of observations rises to anomaly status when the
// deviation is quantifiable against a threshold.
const (
	AnomalyCriticalTrust  = "critical_trust"
	AnomalyTrustDeviation = "trust_deviation"
	AnomalyHighEmergence  = "high_emergence"
	AnomalyRapidDecline   = "rapid_decline"
	AnomalyHighVolatility = "high_volatility"
)

// Analyze derives risk, anomalies, status, and urgency from a snapshot.
func Analyze(snap datatypes.SensorSnapshot) datatypes.Analysis {
	var (
		risk         int
		observations []string
		anomalies    []datatypes.Anomaly
	)

	observe := func(tag string) { observations = append(observations, tag) }

	// Absolute trust level.
	switch {
	case snap.AvgTrust < 50:
		risk += 30
		observe(ObsCriticalTrust)
		anomalies = append(anomalies, datatypes.Anomaly{
			Type:        AnomalyCriticalTrust,
			Severity:    datatypes.SeverityHigh,
			Value:       snap.AvgTrust,
			Threshold:   50,
			Description: "average trust below the critical floor",
		})
	case snap.AvgTrust < 70:
		risk += 15
		observe(ObsLowTrust)
	case snap.AvgTrust < 80:
		risk += 5
		observe(ObsModerateTrust)
	}

	// Deviation from the historical norm.
	if snap.HistoricalStd > 0 {
		z := (snap.AvgTrust - snap.HistoricalMean) / snap.HistoricalStd
		switch {
		case z < -2:
			risk += 20
			anomalies = append(anomalies, datatypes.Anomaly{
				Type:        AnomalyTrustDeviation,
				Severity:    datatypes.SeverityHigh,
				Value:       z,
				Threshold:   -2,
				Description: "trust more than two standard deviations below the historical mean",
			})
		case z < -1.5:
			risk += 10
			observe(ObsTrustBelowNorm)
		}
	}

	// Emergence level.
	switch snap.EmergenceLevel {
	case datatypes.EmergenceHighWeak:
		risk += 25
		observe(ObsHighEmergence)
		anomalies = append(anomalies, datatypes.Anomaly{
			Type:        AnomalyHighEmergence,
			Severity:    datatypes.SeverityHigh,
			Value:       float64(snap.EmergenceLevel.Rank()),
			Threshold:   float64(datatypes.EmergenceWeak.Rank()),
			Description: "aggregate behavior classified as highly emergent",
		})
	case datatypes.EmergenceWeak:
		risk += 10
		observe(ObsWeakEmergence)
	}

	// Trajectory.
	switch snap.TrustTrend.Direction {
	case datatypes.TrendDeclining:
		risk += 15
		observe(ObsDecliningTrend)
		if snap.TrustTrend.Slope < -1 {
			risk += 10
			observe(ObsRapidDecline)
			anomalies = append(anomalies, datatypes.Anomaly{
				Type:        AnomalyRapidDecline,
				Severity:    datatypes.SeverityMedium,
				Value:       snap.TrustTrend.Slope,
				Threshold:   -1,
				Description: "trust declining faster than one point per sample",
			})
		}
	case datatypes.TrendImproving:
		risk -= 5
		observe(ObsImprovingTrend)
	}

	if snap.TrustTrend.Volatility > 10 {
		risk += 10
		observe(ObsHighVolatility)
		anomalies = append(anomalies, datatypes.Anomaly{
			Type:        AnomalyHighVolatility,
			Severity:    datatypes.SeverityMedium,
			Value:       snap.TrustTrend.Volatility,
			Threshold:   10,
			Description: "trust scores swinging sample to sample",
		})
	}

	// Agent population.
	risk += 5 * snap.AgentHealth.Banned
	risk += 10 * snap.AgentHealth.Quarantined
	if snap.AgentHealth.Total > 0 &&
		float64(snap.AgentHealth.Banned)/float64(snap.AgentHealth.Total) > 0.2 {
		risk += 15
		observe(ObsHighBanRatio)
	}

	// Alerts.
	risk += 15 * snap.ActiveAlerts.Critical
	if snap.ActiveAlerts.Critical > 0 {
		observe(ObsCriticalAlerts)
	}
	if snap.ActiveAlerts.Unacknowledged > 5 {
		risk += 10
		observe(ObsAlertBacklog)
	}

	// Off-hours discount: a quiet system at 3am tolerates more deviation
	// before anyone needs to wake up.
	if !snap.IsBusinessHours {
		risk = int(math.Round(float64(risk) * 0.8))
	}

	if risk < 0 {
		risk = 0
	}
	if risk > 100 {
		risk = 100
	}

	highAnomalies := 0
	for _, a := range anomalies {
		if a.Severity == datatypes.SeverityHigh {
			highAnomalies++
		}
	}

	status := datatypes.StatusHealthy
	switch {
	case risk >= 50 || highAnomalies > 0:
		status = datatypes.StatusCritical
	case risk >= 25 || len(anomalies) > 0:
		status = datatypes.StatusWarning
	}

	urgency := datatypes.UrgencyLow
	switch {
	case risk >= 70 || highAnomalies >= 2:
		urgency = datatypes.UrgencyImmediate
	case risk >= 50:
		urgency = datatypes.UrgencyHigh
	case risk >= 25:
		urgency = datatypes.UrgencyMedium
	}

	return datatypes.Analysis{
		Status:       status,
		Observations: observations,
		RiskScore:    risk,
		Anomalies:    anomalies,
		Urgency:      urgency,
		Context: map[string]any{
			"avg_trust":         snap.AvgTrust,
			"historical_mean":   snap.HistoricalMean,
			"historical_std":    snap.HistoricalStd,
			"trend":             snap.TrustTrend,
			"emergence_level":   snap.EmergenceLevel,
			"agent_health":      snap.AgentHealth,
			"active_alerts":     snap.ActiveAlerts,
			"is_business_hours": snap.IsBusinessHours,
		},
	}
}
