// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the YAML configuration consumed by cmd/simrun:
// experiment parameters, logging, persistence, and the optional
// livestream broadcaster.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Database describes one persistence backend: which system to use and
// the connection fields that system needs.
type Database struct {
	Primary  bool   `yaml:"primary"`
	System   string `yaml:"system"` // "sqlite" (default) or "postgres"
	Host     string `yaml:"host,omitempty"`
	Port     string `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DBName   string `yaml:"dbname,omitempty"`
}

// Experiment holds one run's replication parameters.
type Experiment struct {
	Replications          int     `yaml:"replications"`
	ReplicationLength     float64 `yaml:"replication_length"`
	WarmUpLength          float64 `yaml:"warm_up_length"`
	Antithetic            bool    `yaml:"antithetic"`
	ResetStreamEachRep    bool    `yaml:"reset_stream_each_replication"`
	AdvanceSubStream      bool    `yaml:"advance_sub_stream"`
	GCAfterReplication    bool    `yaml:"gc_after_replication"`
	StreamAdvanceCount    int     `yaml:"stream_advance_count"`
	WallClockBudgetSecs   float64 `yaml:"wall_clock_budget_seconds"`
	Seed                  uint64  `yaml:"seed"`
	Controls              map[string]string `yaml:"controls,omitempty"`
}

// Logging selects between the default slog text handler and the
// samber/slog-syslog/v2 adapter.
type Logging struct {
	Level  string `yaml:"level"`            // debug|info|warn|error
	Syslog bool   `yaml:"syslog,omitempty"` // use the syslog handler instead of the text handler over pubsub.Logger
	Addr   string `yaml:"syslog_addr,omitempty"`
}

// Persistence configures the result store.
type Persistence struct {
	Enabled  bool     `yaml:"enabled"`
	Database Database `yaml:"database"`
	Dir      string   `yaml:"dir,omitempty"`
}

// Livestream configures the websocket notification broadcaster.
type Livestream struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr,omitempty"`
	RateLimitHz int    `yaml:"rate_limit_hz,omitempty"`
}

// Config is the top-level document cmd/simrun loads.
type Config struct {
	Experiment  Experiment  `yaml:"experiment"`
	Logging     Logging     `yaml:"logging"`
	Persistence Persistence `yaml:"persistence"`
	Livestream  Livestream  `yaml:"livestream"`
}

// New returns a Config with the documented defaults.
func New() *Config {
	return &Config{
		Experiment: Experiment{
			Replications:       1,
			ReplicationLength:  0, // 0 means "run until no events remain"
			Antithetic:         false,
			GCAfterReplication: false,
		},
		Logging: Logging{Level: "info"},
		Persistence: Persistence{
			Enabled:  true,
			Database: Database{Primary: true, System: "sqlite"},
		},
	}
}

// Load reads and parses the YAML document at path, starting from
// New()'s defaults so a partial document only overrides what it
// names.
func Load(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if cfg.Experiment.Replications < 1 {
		cfg.Experiment.Replications = 1
	}
	return cfg, nil
}
