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

// Package main is the entry point for the typeahead autocomplete
// service. It wires the suggestion engine end to end:
//
//  1. Open the persistent phrase store and the shared Redis cache.
//  2. Bootstrap: load the moderation set and build the first index
//     generation from persistence.
//  3. Start the write-behind flusher.
//  4. Serve the HTTP API until a signal arrives, then stop the flusher
//     (final flush) and shut the server down gracefully.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"typeahead/internal/suggest/api"
	"typeahead/internal/suggest/cache"
	"typeahead/internal/suggest/config"
	"typeahead/internal/suggest/core"
	"typeahead/internal/suggest/persistence"
	"typeahead/internal/suggest/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config (empty = defaults)")
	httpAddr := flag.String("http_addr", "", "HTTP listen address override (e.g., :8080)")
	metricsAddr := flag.String("metrics_addr", "", "If non-empty, expose Prometheus /metrics on this address (e.g., :9090)")
	redisAddr := flag.String("redis_addr", "", "Redis address override (e.g., 127.0.0.1:6379)")
	dbPath := flag.String("db_path", "", "Phrase store path override")
	devLog := flag.Bool("dev_log", false, "Use human-readable development logging")
	flag.Parse()

	var log *zap.Logger
	var err error
	if *devLog {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *redisAddr != "" {
		cfg.RedisAddr = *redisAddr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	store, err := persistence.Open(cfg.DBPath)
	if err != nil {
		log.Fatal("phrase store open failed", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	rdb := cache.NewClient(cfg.RedisAddr)
	defer func() { _ = rdb.Close() }()

	index := core.NewIndex(cfg.TopK)
	filter := core.NewFilter()
	buf := core.NewBuffer(cfg.BufferCapacity)
	sugg := cache.NewSuggestions(rdb, cfg.SuggestionTTL())
	trending := cache.NewTrending(rdb, cfg.TrendingWindow(), cfg.TrendingTau())
	history := cache.NewHistory(rdb, cfg.HistoryCap, cfg.HistoryTTL())
	mirror := cache.NewFilteredMirror(rdb)

	flusher := core.NewFlusher(buf, store, index, sugg, trending, core.FlusherConfig{
		Interval:  cfg.FlushInterval(),
		Threshold: cfg.FlushThreshold,
		BatchSize: cfg.FlushBatchSize,
	}, log)
	rebuilder := core.NewRebuilder(index, store, sugg, flusher, log)

	svc := core.NewService(index, filter, buf, store, sugg, trending, history, mirror,
		flusher, rebuilder, core.ServiceConfig{
			Weights:     cfg.Weights,
			RecencyTau:  cfg.RecencyTau(),
			FuzzyBudget: cfg.FuzzyBudget,
		}, log)

	bootCtx, bootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if err := svc.Bootstrap(bootCtx); err != nil {
		bootCancel()
		log.Fatal("bootstrap failed", zap.Error(err))
	}
	bootCancel()

	if cfg.MetricsAddr != "" {
		telemetry.StartMetricsEndpoint(cfg.MetricsAddr)
	}

	flusher.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(svc, log)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, cfg.HTTPAddr)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error("server exited", zap.Error(err))
		flusher.Stop()
		os.Exit(1)
	}

	log.Info("shutting down")
	// Final flush so sub-threshold remainders reach persistence.
	flusher.Stop()
	log.Info("stopped")
}
