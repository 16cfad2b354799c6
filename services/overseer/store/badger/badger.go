// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger implements the Overseer document store on BadgerDB.
//
// BadgerDB gives us low-latency embedded storage (~100µs reads) with no
// external service dependency, which suits the single-writer-per-tenant
// model of the control loop. All records are JSON-encoded under
// tenant-scoped key prefixes:
//
//	sample/{tenant}/{ts}/{id}      trust-score time series (newest = highest key)
//	agent/{tenant}/{id}            agent governance records
//	alert/{tenant}/{ts}/{id}       alert records
//	cycle/{tenant}/{ts}/{id}       cycle records (TTL-bounded)
//	outcome/{tenant}/{type}/{ts}/{id}  measured action outcomes
//	recs/{tenant}                  cached recommendation set
//	threshold/{tenant}/{name}      tunable thresholds
//
// Timestamps are zero-padded unix nanos so lexicographic key order is
// chronological order and reverse iteration yields newest-first.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/overseer/services/overseer/datatypes"
	"github.com/AleutianAI/overseer/services/overseer/store"
)

// Config holds configuration for the embedded store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true for production, false for testing.
	SyncWrites bool

	// CycleTTL bounds how long cycle and outcome records are retained.
	// Default: 30 days, matching the effectiveness rolling window.
	// Set to 0 to retain forever.
	CycleTTL time.Duration

	// Logger receives BadgerDB's internal log output.
	// If nil, internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns production defaults: durable writes and 30-day
// cycle retention.
func DefaultConfig() Config {
	return Config{
		SyncWrites: true,
		CycleTTL:   30 * 24 * time.Hour,
	}
}

// InMemoryConfig returns configuration for tests: no disk I/O, no TTL.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store implements store.Store on BadgerDB.
//
// Thread Safety: safe for concurrent use; BadgerDB transactions provide
// isolation. The single-writer-per-tenant assumption of the control loop
// still applies to read-modify-write sequences across calls.
type Store struct {
	db       *badger.DB
	cycleTTL time.Duration
}

var _ store.Store = (*Store)(nil)

// Open creates and opens the store with the given configuration.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Store{db: db, cycleTTL: cfg.CycleTTL}, nil
}

// OpenInMemory opens an in-memory store for testing.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC triggers value log garbage collection once. Returns badger's
// ErrNoRewrite when there was nothing to collect; callers may ignore it.
func (s *Store) RunGC(ratio float64) error {
	return s.db.RunValueLogGC(ratio)
}

// -----------------------------------------------------------------------------
// Keys
// -----------------------------------------------------------------------------

func tsKey(prefix string, ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", prefix, ts.UnixNano(), id))
}

func samplePrefix(tenantID string) string { return "sample/" + tenantID + "/" }
func agentKey(tenantID, id string) []byte { return []byte("agent/" + tenantID + "/" + id) }
func agentPrefix(tenantID string) string  { return "agent/" + tenantID + "/" }
func alertPrefix(tenantID string) string  { return "alert/" + tenantID + "/" }
func cyclePrefix(tenantID string) string  { return "cycle/" + tenantID + "/" }
func recsKey(tenantID string) []byte      { return []byte("recs/" + tenantID) }

func outcomePrefix(tenantID string, t datatypes.ActionType) string {
	return "outcome/" + tenantID + "/" + string(t) + "/"
}

func thresholdKey(tenantID, name string) []byte {
	return []byte("threshold/" + tenantID + "/" + name)
}

// -----------------------------------------------------------------------------
// Generic helpers
// -----------------------------------------------------------------------------

func (s *Store) putJSON(key []byte, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, data)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
}

func (s *Store) getJSON(key []byte, v any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(data []byte) error {
			return json.Unmarshal(data, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	return err
}

// scanForward visits every value under prefix in key order.
func (s *Store) scanForward(prefix string, visit func(data []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if err := it.Item().Value(func(data []byte) error {
				return visit(data)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// scanReverse visits up to limit values under prefix in reverse key order
// (newest first for timestamp-ordered prefixes). limit <= 0 means no limit.
func (s *Store) scanReverse(prefix string, limit int, visit func(data []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Seek past the last possible key with this prefix.
		seekKey := append([]byte(prefix), 0xFF)
		n := 0
		for it.Seek(seekKey); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if limit > 0 && n >= limit {
				break
			}
			if err := it.Item().Value(func(data []byte) error {
				return visit(data)
			}); err != nil {
				return err
			}
			n++
		}
		return nil
	})
}

// -----------------------------------------------------------------------------
// TrustSampleStore
// -----------------------------------------------------------------------------

// RecentSamples returns up to limit samples for the tenant, newest first.
func (s *Store) RecentSamples(ctx context.Context, tenantID string, limit int) ([]datatypes.TrustSample, error) {
	var samples []datatypes.TrustSample
	err := s.scanReverse(samplePrefix(tenantID), limit, func(data []byte) error {
		var sample datatypes.TrustSample
		if err := json.Unmarshal(data, &sample); err != nil {
			return err
		}
		samples = append(samples, sample)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan samples for %s: %w", tenantID, err)
	}
	return samples, nil
}

// AppendSample persists a new trust measurement.
func (s *Store) AppendSample(ctx context.Context, sample datatypes.TrustSample) error {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}
	key := tsKey(samplePrefix(sample.TenantID), sample.Timestamp, sample.ID)
	return s.putJSON(key, sample, 0)
}

// -----------------------------------------------------------------------------
// AgentStore
// -----------------------------------------------------------------------------

// ListAgents returns every agent for the tenant.
func (s *Store) ListAgents(ctx context.Context, tenantID string) ([]datatypes.Agent, error) {
	var agents []datatypes.Agent
	err := s.scanForward(agentPrefix(tenantID), func(data []byte) error {
		var agent datatypes.Agent
		if err := json.Unmarshal(data, &agent); err != nil {
			return err
		}
		agents = append(agents, agent)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan agents for %s: %w", tenantID, err)
	}
	return agents, nil
}

// GetAgent returns a single agent or store.ErrNotFound.
func (s *Store) GetAgent(ctx context.Context, tenantID, agentID string) (datatypes.Agent, error) {
	var agent datatypes.Agent
	if err := s.getJSON(agentKey(tenantID, agentID), &agent); err != nil {
		return datatypes.Agent{}, err
	}
	return agent, nil
}

// PutAgent creates or replaces an agent record.
func (s *Store) PutAgent(ctx context.Context, agent datatypes.Agent) error {
	if agent.UpdatedAt.IsZero() {
		agent.UpdatedAt = time.Now()
	}
	return s.putJSON(agentKey(agent.TenantID, agent.ID), agent, 0)
}

// SetAgentStatus transitions an agent's governance standing.
func (s *Store) SetAgentStatus(ctx context.Context, tenantID, agentID string, status datatypes.AgentStatus) error {
	agent, err := s.GetAgent(ctx, tenantID, agentID)
	if err != nil {
		return err
	}
	agent.Status = status
	agent.UpdatedAt = time.Now()
	return s.putJSON(agentKey(tenantID, agentID), agent, 0)
}

// -----------------------------------------------------------------------------
// AlertStore
// -----------------------------------------------------------------------------

// ActiveAlerts returns unresolved alerts for the tenant, newest first.
func (s *Store) ActiveAlerts(ctx context.Context, tenantID string) ([]datatypes.Alert, error) {
	var alerts []datatypes.Alert
	err := s.scanReverse(alertPrefix(tenantID), 0, func(data []byte) error {
		var alert datatypes.Alert
		if err := json.Unmarshal(data, &alert); err != nil {
			return err
		}
		if !alert.Resolved {
			alerts = append(alerts, alert)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan alerts for %s: %w", tenantID, err)
	}
	return alerts, nil
}

// CreateAlert persists a new alert.
func (s *Store) CreateAlert(ctx context.Context, alert datatypes.Alert) error {
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	key := tsKey(alertPrefix(alert.TenantID), alert.CreatedAt, alert.ID)
	return s.putJSON(key, alert, 0)
}

// -----------------------------------------------------------------------------
// CycleStore
// -----------------------------------------------------------------------------

// SaveCycle writes or overwrites a cycle record.
func (s *Store) SaveCycle(ctx context.Context, cycle datatypes.Cycle) error {
	key := tsKey(cyclePrefix(cycle.TenantID), cycle.StartedAt, cycle.ID)
	return s.putJSON(key, cycle, s.cycleTTL)
}

// LatestCycle returns the most recent cycle for the tenant.
func (s *Store) LatestCycle(ctx context.Context, tenantID string) (datatypes.Cycle, error) {
	var cycle datatypes.Cycle
	found := false
	err := s.scanReverse(cyclePrefix(tenantID), 1, func(data []byte) error {
		found = true
		return json.Unmarshal(data, &cycle)
	})
	if err != nil {
		return datatypes.Cycle{}, fmt.Errorf("scan cycles for %s: %w", tenantID, err)
	}
	if !found {
		return datatypes.Cycle{}, store.ErrNotFound
	}
	return cycle, nil
}

// -----------------------------------------------------------------------------
// OutcomeStore
// -----------------------------------------------------------------------------

// RecordOutcome appends one measured outcome.
func (s *Store) RecordOutcome(ctx context.Context, outcome datatypes.ActionOutcome) error {
	if outcome.Timestamp.IsZero() {
		outcome.Timestamp = time.Now()
	}
	key := tsKey(outcomePrefix(outcome.TenantID, outcome.ActionType), outcome.Timestamp, outcome.ActionID)
	return s.putJSON(key, outcome, s.cycleTTL)
}

// OutcomesSince returns outcomes of one action type at or after the cutoff.
func (s *Store) OutcomesSince(ctx context.Context, tenantID string, actionType datatypes.ActionType, since time.Time) ([]datatypes.ActionOutcome, error) {
	var outcomes []datatypes.ActionOutcome
	prefix := outcomePrefix(tenantID, actionType)
	// Seek directly to the cutoff timestamp; keys are chronological.
	start := []byte(prefix + fmt.Sprintf("%020d", since.UnixNano()))
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(start); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if err := it.Item().Value(func(data []byte) error {
				var outcome datatypes.ActionOutcome
				if err := json.Unmarshal(data, &outcome); err != nil {
					return err
				}
				outcomes = append(outcomes, outcome)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan outcomes for %s/%s: %w", tenantID, actionType, err)
	}
	return outcomes, nil
}

// -----------------------------------------------------------------------------
// RecommendationCache
// -----------------------------------------------------------------------------

// Recommendations returns the cached set, or store.ErrNotFound.
func (s *Store) Recommendations(ctx context.Context, tenantID string) (datatypes.RecommendationSet, error) {
	var set datatypes.RecommendationSet
	if err := s.getJSON(recsKey(tenantID), &set); err != nil {
		return datatypes.RecommendationSet{}, err
	}
	return set, nil
}

// PutRecommendations replaces the cached set.
func (s *Store) PutRecommendations(ctx context.Context, set datatypes.RecommendationSet) error {
	return s.putJSON(recsKey(set.TenantID), set, 0)
}

// -----------------------------------------------------------------------------
// ThresholdStore
// -----------------------------------------------------------------------------

// Threshold returns a named threshold, or store.ErrNotFound.
func (s *Store) Threshold(ctx context.Context, tenantID, name string) (float64, error) {
	var raw string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(thresholdKey(tenantID, name))
		if err != nil {
			return err
		}
		return item.Value(func(data []byte) error {
			raw = string(data)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("parse threshold %s/%s: %w", tenantID, name, err)
	}
	return value, nil
}

// SetThreshold writes a named threshold.
func (s *Store) SetThreshold(ctx context.Context, tenantID, name string, value float64) error {
	data := []byte(strconv.FormatFloat(value, 'f', -1, 64))
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(thresholdKey(tenantID, name), data)
	})
}
