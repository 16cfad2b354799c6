// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command overseer runs the autonomous governance control loop: a
// periodic sense/analyze/plan/execute/learn cycle over per-tenant trust
// telemetry, with an HTTP surface for manual triggers and inspection.
package main

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	config     Config
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "overseer",
	Short: "Autonomous governance control loop",
	Long: `Overseer watches per-tenant trust telemetry, scores governance risk,
plans corrective actions, optionally fuses them with an LLM collaborator,
and executes them under an advisory or enforced mode gate.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("overseer: %v", err)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "path to YAML configuration")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		config, err = LoadConfig(configFile)
		return err
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(thinkCmd)
	rootCmd.AddCommand(seedCmd)
}

// initTracing installs a stdout span exporter when tracing is enabled.
// The returned shutdown func flushes pending spans.
func initTracing(enabled bool) func(context.Context) error {
	if !enabled {
		return func(context.Context) error { return nil }
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		log.Printf("tracing disabled: %v", err)
		return func(context.Context) error { return nil }
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
