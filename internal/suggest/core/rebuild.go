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

package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"typeahead/internal/suggest/telemetry"
)

// DefaultRebuildBatch is the LoadAll page size during a rebuild.
const DefaultRebuildBatch = 1000

// Rebuilder states.
const (
	RebuildStateIdle     = "idle"
	RebuildStateBuilding = "building"
	RebuildStateSwapping = "swapping"
)

const (
	rebuildIdle int32 = iota
	rebuildBuilding
	rebuildSwapping
)

// Rebuilder reconstructs the prefix index from persistence into a
// fresh generation and swaps it in atomically. Reads keep hitting the
// old generation throughout; flush increments that land during the
// build are captured through the flusher's shadow tap and replayed
// just before the swap, so no counts are lost.
type Rebuilder struct {
	index     *Index
	store     Store
	cache     SuggestionCache
	flusher   *Flusher
	log       *zap.Logger
	loadBatch int

	state atomic.Int32

	shadowMu sync.Mutex
	shadow   []Upsert
}

// NewRebuilder wires a rebuilder. flusher and cache may be nil (tests,
// bootstrap before the flusher starts).
func NewRebuilder(index *Index, store Store, cache SuggestionCache, flusher *Flusher, log *zap.Logger) *Rebuilder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Rebuilder{
		index:     index,
		store:     store,
		cache:     cache,
		flusher:   flusher,
		log:       log,
		loadBatch: DefaultRebuildBatch,
	}
}

// State returns the rebuild state machine position.
func (r *Rebuilder) State() string {
	switch r.state.Load() {
	case rebuildBuilding:
		return RebuildStateBuilding
	case rebuildSwapping:
		return RebuildStateSwapping
	default:
		return RebuildStateIdle
	}
}

// Rebuild runs one full reconstruction. Only one rebuild may be in
// flight; a concurrent request gets ErrRebuildInProgress. The call is
// synchronous and returns after the swap.
func (r *Rebuilder) Rebuild(ctx context.Context) error {
	if !r.state.CompareAndSwap(rebuildIdle, rebuildBuilding) {
		return ErrRebuildInProgress
	}
	defer r.state.Store(rebuildIdle)

	start := time.Now()
	gen := newGeneration(r.index.k)

	// Capture concurrent flush commits from here on; they are replayed
	// into the new generation right before the swap.
	r.shadowMu.Lock()
	r.shadow = nil
	r.shadowMu.Unlock()
	if r.flusher != nil {
		r.flusher.setShadow(func(phrase string, delta int64) {
			r.shadowMu.Lock()
			r.shadow = append(r.shadow, Upsert{Phrase: phrase, Delta: delta})
			r.shadowMu.Unlock()
		})
		defer r.flusher.setShadow(nil)
	}

	now := time.Now().Unix()
	cursor := ""
	loaded, skipped := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := r.store.LoadAll(ctx, cursor, r.loadBatch)
		if err != nil {
			return fmt.Errorf("rebuild load after %q: %w", cursor, err)
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			cursor = row.Phrase
			if row.Filtered || row.Count < 0 {
				skipped++
				continue
			}
			// Malformed rows are logged and skipped, never fatal.
			if normalized, err := Normalize(row.Phrase); err != nil || normalized != row.Phrase {
				skipped++
				r.log.Warn("skipping malformed phrase row", zap.String("phrase", row.Phrase))
				continue
			}
			gen.insert(row.Phrase, row.Count, row.LastUpdated.Unix(), now)
			loaded++
		}
		if len(rows) < r.loadBatch {
			break
		}
	}

	r.state.Store(rebuildSwapping)

	// Replay writes that committed while we were loading, then swap.
	r.shadowMu.Lock()
	replayed := len(r.shadow)
	for _, up := range r.shadow {
		if _, err := gen.increment(up.Phrase, up.Delta, now); err != nil {
			gen.insert(up.Phrase, up.Delta, now, now)
		}
	}
	r.shadow = nil
	r.shadowMu.Unlock()

	r.index.swap(gen)

	// The whole suggestion cache predates the new generation.
	if r.cache != nil {
		if err := r.cache.Clear(ctx); err != nil {
			r.log.Warn("cache clear after rebuild failed", zap.Error(err))
		}
	}

	elapsed := time.Since(start)
	telemetry.ObserveRebuildDuration(elapsed)
	r.log.Info("index rebuilt",
		zap.Int("phrases", loaded),
		zap.Int("skipped", skipped),
		zap.Int("replayed", replayed),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}
