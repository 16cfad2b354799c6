// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package overseer

import (
	"context"
	"time"

	"github.com/AleutianAI/overseer/services/overseer/datatypes"
)

// Scheduler drives periodic cycles across a fixed tenant list.
//
// Tenants are iterated sequentially within one tick, so cross-tenant
// concurrency is serialized by construction. If a tick's work overruns into
// the next tick, the per-tenant reentrancy guard in Think makes the overlap
// harmless.
type Scheduler struct {
	overseer *Overseer
	tenants  []string
	mode     datatypes.Mode
	interval time.Duration
}

// NewScheduler creates a Scheduler. interval must be positive.
func NewScheduler(o *Overseer, tenants []string, mode datatypes.Mode, interval time.Duration) *Scheduler {
	return &Scheduler{
		overseer: o,
		tenants:  tenants,
		mode:     mode,
		interval: interval,
	}
}

// Run ticks until the context is cancelled. The first tick fires after one
// full interval, not immediately; callers wanting an eager cycle invoke
// Think themselves.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.overseer.logger.Info("scheduler started",
		"tenants", len(s.tenants), "mode", s.mode, "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.overseer.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one cycle per tenant, in order.
func (s *Scheduler) tick(ctx context.Context) {
	for _, tenant := range s.tenants {
		if ctx.Err() != nil {
			return
		}
		s.overseer.Think(ctx, tenant, s.mode)
	}
}
