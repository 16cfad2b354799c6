// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package feedback closes the control loop: it measures what executed
// actions actually did to the system and turns that history into the
// per-action-type recommendations that bias the next plan.
//
// The scoring formulas here are load-bearing business rules. The neutral
// prior (success rate 0.5, zero impact below five samples) keeps a single
// lucky or unlucky action from steering the planner.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/AleutianAI/overseer/services/overseer/datatypes"
	"github.com/AleutianAI/overseer/services/overseer/executor"
	"github.com/AleutianAI/overseer/services/overseer/store"
)

const (
	// defaultWindowDays is the rolling effectiveness window.
	defaultWindowDays = 30

	// minSampleSize below which the neutral prior applies.
	minSampleSize = 5

	// recommendationTTL rate-limits recommendation recomputation per tenant.
	recommendationTTL = time.Hour

	// Composite-score decision bands.
	compositeIncrease = 0.6
	compositeDecrease = 0.3
)

// Tracker measures outcomes and maintains effectiveness state.
//
// Thread Safety: safe for concurrent use across tenants under the
// single-writer-per-tenant assumption; concurrent writers for one tenant
// are not supported.
type Tracker struct {
	outcomes   store.OutcomeStore
	recs       store.RecommendationCache
	logger     *slog.Logger
	windowDays int
	now        func() time.Time
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithWindowDays overrides the rolling effectiveness window.
func WithWindowDays(days int) Option {
	return func(t *Tracker) {
		if days > 0 {
			t.windowDays = days
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a Tracker.
func New(outcomes store.OutcomeStore, recs store.RecommendationCache, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		outcomes:   outcomes,
		recs:       recs,
		logger:     logger,
		windowDays: defaultWindowDays,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MeasureActionImpact reduces a pre/post snapshot pair to the outcome of
// one executed action.
//
// trustDelta is post minus pre average trust. Emergence counts as improved
// only when the post level is strictly lower on the ordinal scale.
func MeasureActionImpact(action datatypes.PlannedAction, pre, post datatypes.SensorSnapshot) datatypes.ActionOutcome {
	trustDelta := post.AvgTrust - pre.AvgTrust
	emergenceDelta := post.EmergenceLevel.Rank() - pre.EmergenceLevel.Rank()
	emergenceImproved := emergenceDelta < 0

	var success bool
	var impact float64

	switch action.Type {
	case datatypes.ActionAlert:
		// Alerts carry information, not state. Emitting one is its own
		// success, with a small fixed positive impact.
		success = true
		impact = 0.1

	case datatypes.ActionAdjustThreshold:
		success = trustDelta > 0
		impact = clamp(trustDelta/10, -1, 1)

	case datatypes.ActionBanAgent, datatypes.ActionQuarantineAgent:
		success = trustDelta >= 0 || emergenceImproved
		if emergenceImproved {
			impact = 0.5
		} else {
			impact = clamp(trustDelta/20, -1, 0.5)
		}

	case datatypes.ActionRestrictAgent:
		// Restriction is a softer lever: mild trust loss still counts as
		// success, and the upside is capped below the ban/quarantine one.
		success = trustDelta >= -5
		if emergenceImproved {
			impact = 0.5
		} else {
			impact = clamp(trustDelta/20, -1, 0.5)
		}
		impact = math.Min(impact, 0.3)

	case datatypes.ActionUnbanAgent:
		success = trustDelta >= -10
		if trustDelta >= 0 {
			impact = 0.2
		} else {
			impact = math.Max(-0.5, trustDelta/20)
		}
	}

	return datatypes.ActionOutcome{
		ActionID:   action.ID,
		TenantID:   pre.TenantID,
		ActionType: action.Type,
		Success:    success,
		Impact:     impact,
		Metrics: datatypes.OutcomeMetrics{
			TrustDelta:     trustDelta,
			EmergenceDelta: emergenceDelta,
		},
		Timestamp: post.Timestamp,
	}
}

// RecordExecuted measures and persists outcomes for the executed subset of
// a cycle's actions. Only enforced cycles call this.
func (t *Tracker) RecordExecuted(ctx context.Context, actions []datatypes.PlannedAction, results []executor.Result, pre, post datatypes.SensorSnapshot) error {
	byID := make(map[string]datatypes.PlannedAction, len(actions))
	for _, a := range actions {
		byID[a.ID] = a
	}

	var firstErr error
	for _, r := range results {
		if r.Status != datatypes.ActionExecuted {
			continue
		}
		action, ok := byID[r.ActionID]
		if !ok {
			continue
		}
		outcome := MeasureActionImpact(action, pre, post)
		if err := t.outcomes.RecordOutcome(ctx, outcome); err != nil {
			t.logger.Error("record outcome failed",
				"tenant", pre.TenantID, "action_type", action.Type, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// CalculateEffectiveness aggregates outcomes of one action type over the
// rolling window. Below the minimum sample size it returns the neutral
// prior: success rate 0.5, zero average impact.
func (t *Tracker) CalculateEffectiveness(ctx context.Context, tenantID string, actionType datatypes.ActionType) (datatypes.EffectivenessScore, error) {
	since := t.now().AddDate(0, 0, -t.windowDays)
	outcomes, err := t.outcomes.OutcomesSince(ctx, tenantID, actionType, since)
	if err != nil {
		return datatypes.EffectivenessScore{}, fmt.Errorf("load outcomes for %s/%s: %w", tenantID, actionType, err)
	}

	score := datatypes.EffectivenessScore{
		ActionType:  actionType,
		SampleSize:  len(outcomes),
		LastUpdated: t.now(),
	}
	if len(outcomes) < minSampleSize {
		score.SuccessRate = 0.5
		score.AvgImpact = 0
		return score, nil
	}

	successes := 0
	var impactSum float64
	for _, o := range outcomes {
		if o.Success {
			successes++
		}
		impactSum += o.Impact
	}
	score.SuccessRate = float64(successes) / float64(len(outcomes))
	score.AvgImpact = impactSum / float64(len(outcomes))
	return score, nil
}

// ActionRecommendations returns the per-tenant recommendation table,
// recomputing at most once per hour. A fresh cached set is returned as-is;
// anything else triggers a recomputation across all action types.
func (t *Tracker) ActionRecommendations(ctx context.Context, tenantID string) (datatypes.RecommendationSet, error) {
	cached, err := t.recs.Recommendations(ctx, tenantID)
	if err == nil && t.now().Sub(cached.ComputedAt) < recommendationTTL {
		return cached, nil
	}
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		t.logger.Warn("recommendation cache read failed, recomputing",
			"tenant", tenantID, "error", err)
	}

	set := datatypes.RecommendationSet{
		TenantID:   tenantID,
		Items:      make(map[datatypes.ActionType]datatypes.Recommendation, len(datatypes.AllActionTypes)),
		ComputedAt: t.now(),
	}
	for _, actionType := range datatypes.AllActionTypes {
		eff, err := t.CalculateEffectiveness(ctx, tenantID, actionType)
		if err != nil {
			return datatypes.RecommendationSet{}, err
		}
		set.Items[actionType] = recommend(eff)
	}

	if err := t.recs.PutRecommendations(ctx, set); err != nil {
		t.logger.Warn("recommendation cache write failed",
			"tenant", tenantID, "error", err)
	}
	return set, nil
}

// recommend turns an effectiveness score into a planning recommendation.
// composite = successRate * (avgImpact+1)/2 maps impact into [0,1] and
// weights it by how often the action type works at all.
func recommend(eff datatypes.EffectivenessScore) datatypes.Recommendation {
	rec := datatypes.Recommendation{ActionType: eff.ActionType}

	if eff.SampleSize < minSampleSize {
		rec.Recommendation = datatypes.RecommendMaintain
		rec.Confidence = 0.3
		rec.Reason = fmt.Sprintf("insufficient history (%d samples)", eff.SampleSize)
		return rec
	}

	composite := eff.SuccessRate * (eff.AvgImpact + 1) / 2
	rec.Confidence = math.Min(1, float64(eff.SampleSize)/20)
	switch {
	case composite > compositeIncrease:
		rec.Recommendation = datatypes.RecommendIncrease
		rec.Reason = fmt.Sprintf("composite %.2f over %d samples", composite, eff.SampleSize)
	case composite < compositeDecrease:
		rec.Recommendation = datatypes.RecommendDecrease
		rec.Reason = fmt.Sprintf("composite %.2f over %d samples", composite, eff.SampleSize)
	default:
		rec.Recommendation = datatypes.RecommendMaintain
		rec.Reason = fmt.Sprintf("composite %.2f over %d samples", composite, eff.SampleSize)
	}
	return rec
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
