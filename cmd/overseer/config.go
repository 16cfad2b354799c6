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
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration, loaded from an optional YAML file
// and then overridden by environment variables.
type Config struct {
	// Port is the HTTP listen port.
	Port int `yaml:"port" validate:"gte=1,lte=65535"`

	// DataDir is the BadgerDB directory.
	DataDir string `yaml:"data_dir" validate:"required"`

	// Tenants is the list the scheduler iterates each tick.
	Tenants []string `yaml:"tenants"`

	// Mode is the default cycle mode: advisory or enforced.
	Mode string `yaml:"mode" validate:"oneof=advisory enforced"`

	// IntervalSeconds is the scheduler tick interval.
	IntervalSeconds int `yaml:"interval_seconds" validate:"gte=1"`

	// LLMProvider selects the reasoning collaborator backend:
	// "openai", "ollama", or "" to disable decision fusion.
	LLMProvider string `yaml:"llm_provider" validate:"omitempty,oneof=openai ollama"`

	// Influx, when URL is set, replaces the embedded trust-sample source
	// with an InfluxDB-backed one.
	Influx InfluxConfig `yaml:"influx"`

	// Trace enables stdout trace export.
	Trace bool `yaml:"trace"`

	// LogDir enables file logging.
	LogDir string `yaml:"log_dir"`
}

// InfluxConfig points the sensor aggregator at an external TSDB.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	return Config{
		Port:            12300,
		DataDir:         "~/.overseer/data",
		Mode:            "advisory",
		IntervalSeconds: 60,
	}
}

// LoadConfig reads the YAML file (if present), applies environment
// overrides, and validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnvOverrides(&cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OVERSEER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	if v := os.Getenv("OVERSEER_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("OVERSEER_MODE"); v != "" {
		cfg.Mode = v
	}
	if v := os.Getenv("OVERSEER_LLM_PROVIDER"); v != "" {
		cfg.LLMProvider = v
	}
	if v := os.Getenv("OVERSEER_INTERVAL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.IntervalSeconds = secs
		}
	}
	if v := os.Getenv("INFLUXDB_URL"); v != "" {
		cfg.Influx.URL = v
		cfg.Influx.Token = os.Getenv("INFLUXDB_TOKEN")
		cfg.Influx.Org = os.Getenv("INFLUXDB_ORG")
		cfg.Influx.Bucket = os.Getenv("INFLUXDB_BUCKET")
	}
}

// Interval returns the tick interval as a duration.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}
