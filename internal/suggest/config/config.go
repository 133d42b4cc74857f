// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the service configuration: YAML file with
// defaults for every knob, overridable per field.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"typeahead/internal/suggest/core"
)

// Config enumerates every tunable knob.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"` // empty disables the /metrics endpoint
	RedisAddr   string `yaml:"redis_addr"`
	DBPath      string `yaml:"db_path"`

	TopK            int `yaml:"top_k"`             // per-node top-K
	SuggestionTTLS  int `yaml:"suggestion_ttl_s"`  // suggestion-cache TTL, seconds
	FlushIntervalMS int `yaml:"flush_interval_ms"` // write-behind flush cadence
	FlushThreshold  int `yaml:"flush_threshold"`   // early flush on burst
	FlushBatchSize  int `yaml:"flush_batch_size"`  // max events per flush
	BufferCapacity  int `yaml:"buffer_capacity"`   // ingestion buffer bound

	TrendingWindowMin int `yaml:"trending_window_min"`
	TrendingTauMin    int `yaml:"trending_tau_min"`
	RecencyTauDays    int `yaml:"recency_tau_days"`
	HistoryCap        int `yaml:"history_cap"`
	HistoryTTLDays    int `yaml:"history_ttl_days"`
	FuzzyBudget       int `yaml:"fuzzy_budget"`

	Weights core.Weights `yaml:"weights"`
}

// Default returns the standard configuration.
func Default() Config {
	return Config{
		HTTPAddr:          ":8080",
		RedisAddr:         "127.0.0.1:6379",
		DBPath:            "typeahead.db",
		TopK:              10,
		SuggestionTTLS:    60,
		FlushIntervalMS:   5000,
		FlushThreshold:    100,
		FlushBatchSize:    500,
		BufferCapacity:    10000,
		TrendingWindowMin: 60,
		TrendingTauMin:    10,
		RecencyTauDays:    7,
		HistoryCap:        50,
		HistoryTTLDays:    30,
		FuzzyBudget:       50,
		Weights:           core.DefaultWeights(),
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Derived durations.
func (c Config) SuggestionTTL() time.Duration  { return time.Duration(c.SuggestionTTLS) * time.Second }
func (c Config) FlushInterval() time.Duration  { return time.Duration(c.FlushIntervalMS) * time.Millisecond }
func (c Config) TrendingWindow() time.Duration { return time.Duration(c.TrendingWindowMin) * time.Minute }
func (c Config) TrendingTau() time.Duration    { return time.Duration(c.TrendingTauMin) * time.Minute }
func (c Config) RecencyTau() time.Duration     { return time.Duration(c.RecencyTauDays) * 24 * time.Hour }
func (c Config) HistoryTTL() time.Duration     { return time.Duration(c.HistoryTTLDays) * 24 * time.Hour }
