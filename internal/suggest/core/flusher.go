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

// This file implements the write-behind flusher: the single background
// goroutine that drains the ingestion buffer, persists grouped deltas
// in one transaction, and only then applies them to the in-memory
// index, the trending window and the suggestion cache. Producers never
// wait on any of this.
package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"typeahead/internal/suggest/telemetry"
)

// Flusher defaults.
const (
	DefaultFlushInterval  = 5 * time.Second
	DefaultFlushThreshold = 100
	DefaultFlushBatchSize = 500
	DefaultFlushRetries   = 3
	DefaultFlushTimeout   = 2 * time.Second
)

// FlusherConfig tunes the flush loop.
type FlusherConfig struct {
	Interval   time.Duration // periodic flush trigger
	Threshold  int           // early flush when buffer length reaches this
	BatchSize  int           // max events drained per flush
	MaxRetries int           // per-event retries before dead-lettering
	HighWater  int           // backlog beyond which the interval halves
	Timeout    time.Duration // per persistence call
}

func (c *FlusherConfig) applyDefaults(bufferCap int) {
	if c.Interval <= 0 {
		c.Interval = DefaultFlushInterval
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultFlushThreshold
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultFlushBatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultFlushRetries
	}
	if c.HighWater <= 0 {
		c.HighWater = bufferCap / 2
		if c.HighWater <= 0 {
			c.HighWater = DefaultBufferCapacity / 2
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultFlushTimeout
	}
}

// Flusher is the single consumer of the ingestion buffer. Exactly one
// instance runs per process; it is the only component besides the
// rebuilder's swap that mutates the prefix index.
type Flusher struct {
	buf      *Buffer
	store    Store
	index    *Index
	cache    SuggestionCache
	trending TrendingWindow
	log      *zap.Logger
	cfg      FlusherConfig

	stopChan chan struct{}
	wg       sync.WaitGroup
	stopped  uint32
	state    atomic.Value // flush state machine, for introspection

	deadLettered atomic.Int64

	// shadow, when set, receives every committed (phrase, delta) so the
	// rebuilder can replay concurrent writes into the generation it is
	// building.
	shadowMu sync.Mutex
	shadow   func(phrase string, delta int64)
}

// Flusher states.
const (
	FlushStateIdle       = "idle"
	FlushStateDraining   = "draining"
	FlushStatePersisting = "persisting"
	FlushStateIndexing   = "indexing"
	FlushStateRetrying   = "retrying"
)

// NewFlusher wires the flusher. cache and trending may be nil in tests;
// their updates are best-effort anyway.
func NewFlusher(buf *Buffer, store Store, index *Index, cache SuggestionCache, trending TrendingWindow, cfg FlusherConfig, log *zap.Logger) *Flusher {
	cfg.applyDefaults(buf.capacity)
	if log == nil {
		log = zap.NewNop()
	}
	f := &Flusher{
		buf:      buf,
		store:    store,
		index:    index,
		cache:    cache,
		trending: trending,
		log:      log,
		cfg:      cfg,
		stopChan: make(chan struct{}),
	}
	f.state.Store(FlushStateIdle)
	return f
}

// Start launches the flush goroutine.
func (f *Flusher) Start() {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.loop()
	}()
}

// Stop drains outstanding events with a final flush and waits for the
// goroutine to exit. Idempotent.
func (f *Flusher) Stop() {
	if !atomic.CompareAndSwapUint32(&f.stopped, 0, 1) {
		return
	}
	close(f.stopChan)
	f.wg.Wait()
}

// State returns the current flush state machine position.
func (f *Flusher) State() string { return f.state.Load().(string) }

// DeadLettered returns how many events were dropped after exhausting
// retries.
func (f *Flusher) DeadLettered() int64 { return f.deadLettered.Load() }

func (f *Flusher) setShadow(fn func(phrase string, delta int64)) {
	f.shadowMu.Lock()
	f.shadow = fn
	f.shadowMu.Unlock()
}

func (f *Flusher) tapShadow(phrase string, delta int64) {
	f.shadowMu.Lock()
	fn := f.shadow
	f.shadowMu.Unlock()
	if fn != nil {
		fn(phrase, delta)
	}
}

// interval halves under backpressure so a backlog drains faster.
func (f *Flusher) interval() time.Duration {
	if f.buf.Len() > f.cfg.HighWater {
		return f.cfg.Interval / 2
	}
	return f.cfg.Interval
}

func (f *Flusher) loop() {
	timer := time.NewTimer(f.interval())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			f.flushOnce(context.Background())
		case <-f.buf.Notify():
			if f.buf.Len() >= f.cfg.Threshold {
				f.flushOnce(context.Background())
			}
		case <-f.stopChan:
			// Final flush so sub-threshold remainders are not lost.
			for f.buf.Len() > 0 {
				if !f.flushOnce(context.Background()) {
					break
				}
			}
			f.state.Store(FlushStateIdle)
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(f.interval())
	}
}

// Flush runs flush cycles synchronously until the buffer is empty or
// persistence stops making progress. Callers that need their writes
// durable before proceeding use this instead of waiting on the loop.
func (f *Flusher) Flush(ctx context.Context) bool {
	progressed := false
	for f.buf.Len() > 0 {
		if !f.flushOnce(ctx) {
			break
		}
		progressed = true
	}
	return progressed
}

// flushOnce drains one batch and applies it end to end. Reports whether
// it made progress (false on empty buffer or persistence failure, so
// the shutdown drain does not spin).
func (f *Flusher) flushOnce(ctx context.Context) bool {
	f.state.Store(FlushStateDraining)
	defer f.state.Store(FlushStateIdle)

	events := f.buf.Drain(f.cfg.BatchSize)
	telemetry.SetIngestOverflow(f.buf.Overflow())
	if len(events) == 0 {
		return false
	}

	// Group by phrase, summing occurrences.
	type agg struct {
		delta  int64
		latest time.Time
	}
	groups := make(map[string]*agg)
	for _, e := range events {
		g := groups[e.Phrase]
		if g == nil {
			g = &agg{}
			groups[e.Phrase] = g
		}
		g.delta++
		if e.At.After(g.latest) {
			g.latest = e.At
		}
	}
	// Deterministic phrase order avoids lock-order deadlocks on the
	// persistence side.
	phrases := make([]string, 0, len(groups))
	for p := range groups {
		phrases = append(phrases, p)
	}
	sort.Strings(phrases)

	ups := make([]Upsert, 0, len(phrases))
	for _, p := range phrases {
		ups = append(ups, Upsert{Phrase: p, Delta: groups[p].delta, At: groups[p].latest})
	}

	f.state.Store(FlushStatePersisting)
	pctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	err := f.store.UpsertBatch(pctx, uuid.NewString(), ups)
	cancel()
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			// Cancelled flush: nothing was committed, put everything back.
			f.buf.Requeue(events)
			return false
		}
		f.state.Store(FlushStateRetrying)
		telemetry.IncFlushFailure()
		f.requeueOrDeadLetter(events)
		f.log.Warn("flush persistence failed", zap.Int("events", len(events)), zap.Error(err))
		return false
	}

	// Indexing happens strictly after the commit so the in-memory count
	// never exceeds the persisted count.
	f.state.Store(FlushStateIndexing)
	for _, p := range phrases {
		delta := groups[p].delta
		touched, err := f.index.Increment(p, delta)
		if errors.Is(err, ErrNotFound) {
			touched = f.index.Insert(p, delta)
			err = nil
		}
		if err != nil {
			f.log.Error("index update failed", zap.String("phrase", p), zap.Error(err))
			continue
		}
		telemetry.ObserveTopKDepth(len(touched))
		f.tapShadow(p, delta)

		if f.cache != nil {
			if cerr := f.cache.InvalidatePhrase(ctx, p); cerr != nil {
				f.log.Debug("cache invalidation failed", zap.String("phrase", p), zap.Error(cerr))
			}
		}
		if f.trending != nil {
			if terr := f.trending.Bump(ctx, p); terr != nil {
				f.log.Debug("trending bump failed", zap.String("phrase", p), zap.Error(terr))
			}
		}
	}

	telemetry.ObserveFlushBatch(len(events))
	return true
}

// requeueOrDeadLetter puts failed events back for another attempt,
// dropping those that have exhausted their retries.
func (f *Flusher) requeueOrDeadLetter(events []Event) {
	retry := events[:0]
	dead := 0
	for _, e := range events {
		e.retries++
		if e.retries >= f.cfg.MaxRetries {
			dead++
			continue
		}
		retry = append(retry, e)
	}
	if dead > 0 {
		f.deadLettered.Add(int64(dead))
		telemetry.AddDeadLettered(dead)
	}
	f.buf.Requeue(retry)
}
