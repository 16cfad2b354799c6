// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package overseer drives the autonomous governance control loop.
//
// One Think call runs one cycle: observe (sensor aggregation), classify
// (analysis), plan (rules + decision fusion with the reasoning
// collaborator), act (mode-gated execution), and learn (outcome
// measurement feeding the effectiveness tracker). The orchestrator owns
// the Cycle record for its whole lifecycle and is the only place allowed
// to mutate it.
//
// Think never propagates an error or panic to its caller: every failure is
// absorbed into a failed Cycle record and a metric. Nothing in this package
// may crash the host process or stall the scheduler's next tick.
package overseer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/overseer/services/llm"
	"github.com/AleutianAI/overseer/services/overseer/analysis"
	"github.com/AleutianAI/overseer/services/overseer/datatypes"
	"github.com/AleutianAI/overseer/services/overseer/executor"
	"github.com/AleutianAI/overseer/services/overseer/feedback"
	"github.com/AleutianAI/overseer/services/overseer/observability"
	"github.com/AleutianAI/overseer/services/overseer/planner"
	"github.com/AleutianAI/overseer/services/overseer/sensors"
	"github.com/AleutianAI/overseer/services/overseer/store"
)

var tracer = otel.Tracer("overseer.cycle")

// Overseer sequences governance cycles for tenants.
//
// Reentrancy: a per-tenant atomic flag guarantees at most one in-flight
// cycle per tenant per instance. A Think call for a tenant whose cycle is
// already running is a silent no-op. The guard is scoped per tenant, not
// per process, so parallelizing tenants later does not reopen the
// overlapping-cycle gap.
//
// Multiple Overseer instances writing the same tenant are NOT safe; the
// deployment model is single-writer-per-tenant.
type Overseer struct {
	store    store.Store
	sensors  *sensors.Aggregator
	planner  *planner.Planner
	fuser    *planner.Fuser
	executor *executor.Executor
	feedback *feedback.Tracker
	metrics  *observability.CycleMetrics
	logger   *slog.Logger

	guards sync.Map // tenantID -> *atomic.Bool
}

// Option customizes an Overseer.
type Option func(*Overseer)

// WithAggregator injects a custom sensor aggregator (e.g. one backed by an
// InfluxDB trust source).
func WithAggregator(a *sensors.Aggregator) Option {
	return func(o *Overseer) { o.sensors = a }
}

// WithFeedback injects a custom feedback tracker.
func WithFeedback(t *feedback.Tracker) Option {
	return func(o *Overseer) { o.feedback = t }
}

// New wires an Overseer over the document store and an optional reasoning
// collaborator. oracle may be nil, in which case planning is rule-based
// only. metrics may be nil, in which case nothing is recorded.
func New(st store.Store, oracle llm.LLMClient, metrics *observability.CycleMetrics, logger *slog.Logger, opts ...Option) *Overseer {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Overseer{
		store:    st,
		sensors:  sensors.New(st, st, st, logger),
		planner:  planner.New(logger),
		fuser:    planner.NewFuser(oracle, logger),
		executor: executor.New(st, st, st, logger),
		feedback: feedback.New(st, st, logger),
		metrics:  metrics,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Think runs one governance cycle for the tenant.
//
// It returns nothing: outcomes are observable through the persisted Cycle
// record and metrics. Invoking Think while a cycle for the same tenant is
// in flight on this instance is a no-op that creates no second Cycle.
func (o *Overseer) Think(ctx context.Context, tenantID string, mode datatypes.Mode) {
	guard := o.guard(tenantID)
	if !guard.CompareAndSwap(false, true) {
		o.logger.Debug("cycle already in flight, skipping", "tenant", tenantID)
		return
	}
	defer guard.Store(false)

	ctx, span := tracer.Start(ctx, "Overseer.Think")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant", tenantID),
		attribute.String("mode", string(mode)),
	)

	start := time.Now()
	cycle := datatypes.Cycle{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Mode:      mode,
		Status:    datatypes.CycleStarted,
		StartedAt: start,
	}
	if err := o.store.SaveCycle(ctx, cycle); err != nil {
		// Not fatal: the cycle still runs; the final save retries the write.
		o.logger.Warn("could not persist cycle start", "tenant", tenantID, "error", err)
	}

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("cycle panicked", "tenant", tenantID, "panic", r)
			o.finalize(ctx, &cycle, start, fmt.Errorf("panic: %v", r))
		}
	}()

	err := o.runPhases(ctx, &cycle)
	o.finalize(ctx, &cycle, start, err)
}

// guard returns the per-tenant reentrancy flag, creating it on first use.
func (o *Overseer) guard(tenantID string) *atomic.Bool {
	if g, ok := o.guards.Load(tenantID); ok {
		return g.(*atomic.Bool)
	}
	g, _ := o.guards.LoadOrStore(tenantID, &atomic.Bool{})
	return g.(*atomic.Bool)
}

// runPhases executes the cycle pipeline, mutating the cycle record as it
// goes. Degradable failures (recommendation cache, outcome writes) are
// logged and absorbed; only a cancelled context fails the cycle outright.
func (o *Overseer) runPhases(ctx context.Context, cycle *datatypes.Cycle) error {
	tenantID := cycle.TenantID

	// Observe.
	_, sensorSpan := tracer.Start(ctx, "phase.sense")
	pre := o.sensors.Snapshot(ctx, tenantID)
	sensorSpan.End()

	// Classify.
	an := analysis.Analyze(pre)
	o.metrics.SetRiskScore(tenantID, an.RiskScore)
	cycle.Observations = an.Observations
	cycle.InputContext = an.Context
	cycle.Metrics.RiskScore = an.RiskScore

	o.logger.Info("snapshot analyzed",
		"tenant", tenantID,
		"status", an.Status,
		"risk_score", an.RiskScore,
		"urgency", an.Urgency,
		"anomalies", len(an.Anomalies))

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cycle cancelled after analysis: %w", err)
	}

	// Plan.
	_, planSpan := tracer.Start(ctx, "phase.plan")
	recs, err := o.feedback.ActionRecommendations(ctx, tenantID)
	if err != nil {
		o.logger.Warn("recommendations unavailable, planning without bias",
			"tenant", tenantID, "error", err)
		recs = datatypes.RecommendationSet{TenantID: tenantID}
	}
	plan := o.planner.Plan(pre, an, recs)
	planSpan.End()

	// Fuse with the reasoning collaborator.
	fuseCtx, fuseSpan := tracer.Start(ctx, "phase.fuse")
	plan, fusionOutcome := o.fuser.Fuse(fuseCtx, pre, an, plan)
	fuseSpan.End()
	o.metrics.ObserveFusion(string(fusionOutcome))

	cycle.Metrics.ActionsPlanned = len(plan)

	// Act.
	execCtx, execSpan := tracer.Start(ctx, "phase.execute")
	results := o.executor.Execute(execCtx, tenantID, plan, cycle.Mode)
	execSpan.End()

	executed := 0
	for i, r := range results {
		cycle.Actions = append(cycle.Actions, datatypes.CycleAction{
			ID:     r.ActionID,
			Type:   r.Type,
			Target: r.Target,
			Reason: plan[i].Reason,
			Status: r.Status,
		})
		o.metrics.ObserveAction(tenantID, string(r.Type), string(r.Status))
		switch r.Status {
		case datatypes.ActionExecuted:
			executed++
		case datatypes.ActionFailed:
			cycle.Metrics.ActionsFailed++
		}
	}
	cycle.Metrics.ActionsExecuted = executed

	// Learn. Only enforced cycles with executed actions produce outcomes.
	if cycle.Mode == datatypes.ModeEnforced && executed > 0 {
		learnCtx, learnSpan := tracer.Start(ctx, "phase.learn")
		post := o.sensors.Snapshot(learnCtx, tenantID)
		if err := o.feedback.RecordExecuted(learnCtx, plan, results, pre, post); err != nil {
			o.logger.Warn("outcome recording degraded", "tenant", tenantID, "error", err)
		}
		learnSpan.End()
	}

	return ctx.Err()
}

// finalize closes out the cycle record exactly once and emits metrics.
func (o *Overseer) finalize(ctx context.Context, cycle *datatypes.Cycle, start time.Time, err error) {
	if cycle.Status != datatypes.CycleStarted {
		return
	}

	duration := time.Since(start)
	cycle.CompletedAt = time.Now()
	cycle.Metrics.DurationMS = duration.Milliseconds()
	if err != nil {
		cycle.Status = datatypes.CycleFailed
		cycle.Error = err.Error()
	} else {
		cycle.Status = datatypes.CycleCompleted
	}

	// The final write must survive a cancelled cycle context.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if saveErr := o.store.SaveCycle(saveCtx, *cycle); saveErr != nil {
		o.logger.Error("could not persist cycle record",
			"tenant", cycle.TenantID, "cycle", cycle.ID, "error", saveErr)
	}

	o.metrics.ObserveCycle(cycle.TenantID, string(cycle.Status), duration)
	o.logger.Info("cycle finished",
		"tenant", cycle.TenantID,
		"cycle", cycle.ID,
		"status", cycle.Status,
		"mode", cycle.Mode,
		"actions", len(cycle.Actions),
		"duration_ms", cycle.Metrics.DurationMS)
}
