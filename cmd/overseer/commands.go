// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/overseer/pkg/logging"
	"github.com/AleutianAI/overseer/services/llm"
	"github.com/AleutianAI/overseer/services/overseer"
	"github.com/AleutianAI/overseer/services/overseer/datatypes"
	"github.com/AleutianAI/overseer/services/overseer/observability"
	"github.com/AleutianAI/overseer/services/overseer/routes"
	"github.com/AleutianAI/overseer/services/overseer/sensors"
	badgerstore "github.com/AleutianAI/overseer/services/overseer/store/badger"
)

var (
	thinkTenant string
	thinkMode   string
	seedTenant  string
	seedAgents  int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the governance loop and HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var thinkCmd = &cobra.Command{
	Use:   "think",
	Short: "Run a single governance cycle for one tenant and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runThink(cmd.Context())
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Write synthetic agents, trust samples, and alerts for demos",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd.Context())
	},
}

func init() {
	thinkCmd.Flags().StringVar(&thinkTenant, "tenant", "", "tenant to run the cycle for")
	thinkCmd.Flags().StringVar(&thinkMode, "mode", "", "cycle mode (advisory|enforced); defaults to the configured mode")
	_ = thinkCmd.MarkFlagRequired("tenant")

	seedCmd.Flags().StringVar(&seedTenant, "tenant", "demo", "tenant to seed")
	seedCmd.Flags().IntVar(&seedAgents, "agents", 4, "number of agents to create")
}

// -----------------------------------------------------------------------------
// serve
// -----------------------------------------------------------------------------

func runServe(ctx context.Context) error {
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  config.LogDir,
		Service: "overseer",
	})
	defer logger.Close()

	shutdownTracing := initTracing(config.Trace)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("trace exporter shutdown failed", "error", err)
		}
	}()

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	oracle, err := llm.NewClient(config.LLMProvider)
	if err != nil {
		return fmt.Errorf("initialize LLM client: %w", err)
	}

	mode, err := datatypes.ParseMode(config.Mode)
	if err != nil {
		return err
	}

	metrics := observability.InitMetrics()

	var opts []overseer.Option
	if config.Influx.URL != "" {
		src := sensors.NewInfluxTrustSource(
			config.Influx.URL, config.Influx.Token, config.Influx.Org, config.Influx.Bucket)
		defer src.Close()
		opts = append(opts, overseer.WithAggregator(
			sensors.New(src, st, st, logger.Slog())))
		logger.Info("trust sensor backed by InfluxDB", "url", config.Influx.URL)
	}

	o := overseer.New(st, oracle, metrics, logger.Slog(), opts...)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(config.Tenants) > 0 {
		sched := overseer.NewScheduler(o, config.Tenants, mode, config.Interval())
		go sched.Run(ctx)
		logger.Info("scheduler started",
			"tenants", len(config.Tenants),
			"interval", config.Interval().String(),
			"mode", string(mode))
	} else {
		logger.Info("no tenants configured, cycles run on HTTP trigger only")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	routes.SetupRoutes(router, o, st, mode)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "port", config.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// -----------------------------------------------------------------------------
// think
// -----------------------------------------------------------------------------

func runThink(ctx context.Context) error {
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		Service: "overseer",
	})
	defer logger.Close()

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	oracle, err := llm.NewClient(config.LLMProvider)
	if err != nil {
		return fmt.Errorf("initialize LLM client: %w", err)
	}

	modeStr := config.Mode
	if thinkMode != "" {
		modeStr = thinkMode
	}
	mode, err := datatypes.ParseMode(modeStr)
	if err != nil {
		return err
	}

	o := overseer.New(st, oracle, nil, logger.Slog())
	o.Think(ctx, thinkTenant, mode)

	cycle, err := st.LatestCycle(ctx, thinkTenant)
	if err != nil {
		return fmt.Errorf("read cycle record: %w", err)
	}
	fmt.Printf("cycle %s: status=%s risk=%d actions=%d duration=%dms\n",
		cycle.ID, cycle.Status, cycle.Metrics.RiskScore, len(cycle.Actions), cycle.Metrics.DurationMS)
	for _, a := range cycle.Actions {
		fmt.Printf("  [%s] %s -> %s: %s\n", a.Status, a.Type, a.Target, a.Reason)
	}
	return nil
}

// -----------------------------------------------------------------------------
// seed
// -----------------------------------------------------------------------------

// runSeed writes a declining trust history plus a few agents and alerts so
// a first `overseer think` cycle has something to chew on.
func runSeed(ctx context.Context) error {
	logger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		Service: "overseer",
	})
	defer logger.Close()

	st, err := openStore(logger)
	if err != nil {
		return err
	}
	defer st.Close()

	now := time.Now()
	for i := 0; i < seedAgents; i++ {
		status := datatypes.AgentActive
		if i == seedAgents-1 && seedAgents > 2 {
			status = datatypes.AgentBanned
		}
		agent := datatypes.Agent{
			ID:         fmt.Sprintf("agent-%02d", i+1),
			TenantID:   seedTenant,
			Name:       fmt.Sprintf("worker-%02d", i+1),
			Status:     status,
			TrustScore: 80 - float64(i)*3,
			UpdatedAt:  now,
		}
		if err := st.PutAgent(ctx, agent); err != nil {
			return err
		}
	}

	// 30 samples drifting downward from ~85 to ~62, newest last.
	for i := 0; i < 30; i++ {
		base := 85.0 - float64(i)*0.8
		sample := datatypes.TrustSample{
			ID:          uuid.NewString(),
			TenantID:    seedTenant,
			AgentID:     fmt.Sprintf("agent-%02d", i%seedAgents+1),
			Accuracy:    base + 2,
			Consistency: base,
			Compliance:  base - 2,
			Timestamp:   now.Add(time.Duration(i-30) * time.Hour),
		}
		if err := st.AppendSample(ctx, sample); err != nil {
			return err
		}
	}

	alert := datatypes.Alert{
		ID:        uuid.NewString(),
		TenantID:  seedTenant,
		Severity:  datatypes.AlertWarning,
		Message:   "trust score drift detected by external monitor",
		Source:    "seed",
		CreatedAt: now,
	}
	if err := st.CreateAlert(ctx, alert); err != nil {
		return err
	}

	logger.Info("seeded tenant",
		"tenant", seedTenant,
		"agents", seedAgents,
		"samples", 30,
		"alerts", 1)
	return nil
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

func openStore(logger *logging.Logger) (*badgerstore.Store, error) {
	cfg := badgerstore.DefaultConfig()
	cfg.Path = expandHome(config.DataDir)
	cfg.Logger = logger.Slog()
	st, err := badgerstore.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", cfg.Path, err)
	}
	return st, nil
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
