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

// This file defines the contracts the core depends on: the persistent
// phrase store and the shared-cache collaborators. Implementations live
// in internal/suggest/persistence and internal/suggest/cache.
package core

import (
	"context"
	"hash/fnv"
	"time"
)

// PhraseRow is one persisted phrase record.
type PhraseRow struct {
	Phrase      string
	Count       int64
	LastUpdated time.Time
	Filtered    bool
}

// Upsert is one (phrase, delta) pair applied by a flush.
type Upsert struct {
	Phrase string
	Delta  int64
	At     time.Time
}

// FilteredPhrase is one persisted moderation entry.
type FilteredPhrase struct {
	Phrase  string
	Reason  string
	AddedAt time.Time
}

// Store is the persistence adapter contract. Implementations must
// provide per-row atomic upserts and transactions; transient failures
// are wrapped in ErrPersistenceUnavailable.
type Store interface {
	// LoadAll pages over all non-filtered phrases in phrase order,
	// returning up to batch rows strictly after afterPhrase. An empty
	// afterPhrase starts from the beginning.
	LoadAll(ctx context.Context, afterPhrase string, batch int) ([]PhraseRow, error)

	// UpsertBatch applies the deltas in one transaction. batchID is an
	// idempotency key: re-applying an already-committed batch is a
	// no-op, so a retried flush never double-counts.
	UpsertBatch(ctx context.Context, batchID string, ups []Upsert) error

	// SeedPhrase adds count to a phrase, creating it if missing. Used
	// by admin add-phrase.
	SeedPhrase(ctx context.Context, phrase string, count int64, at time.Time) error

	AddFiltered(ctx context.Context, phrase, reason string) error
	// RemoveFiltered reports whether the phrase was filtered.
	RemoveFiltered(ctx context.Context, phrase string) (bool, error)
	ListFiltered(ctx context.Context) ([]FilteredPhrase, error)
}

// CacheKey identifies one suggestion-cache slot. The user bucket keeps
// personalization cacheable without per-user cardinality.
type CacheKey struct {
	Prefix     string
	Limit      int
	Fuzzy      bool
	UserBucket int
}

// SuggestionCache is the prefix -> ranked-result cache. All methods are
// best-effort; failures are reported so the caller can degrade.
type SuggestionCache interface {
	Get(ctx context.Context, key CacheKey) ([]Scored, bool, error)
	Set(ctx context.Context, key CacheKey, results []Scored) error
	// InvalidatePhrase deletes entries along the phrase's prefix chain.
	InvalidatePhrase(ctx context.Context, phrase string) error
	Clear(ctx context.Context) error
}

// TrendingEntry is one phrase in the trending window.
type TrendingEntry struct {
	Phrase string
	Score  float64
}

// TrendingWindow is the sliding-window decayed sorted set of recent
// bursts. Writes are best-effort and idempotent.
type TrendingWindow interface {
	Bump(ctx context.Context, phrase string) error
	Top(ctx context.Context, limit int) ([]TrendingEntry, error)
}

// HistoryEntry is one phrase in a user's recent history.
type HistoryEntry struct {
	Phrase   string
	Count    int64
	LastSeen time.Time
}

// History is the per-user recent-search store.
type History interface {
	Record(ctx context.Context, userID, phrase string) error
	Recent(ctx context.Context, userID string, limit int) ([]HistoryEntry, error)
}

// FilterMirror is the shared-cache copy of the moderation set, kept so
// other processes see moderation changes without a persistence read.
type FilterMirror interface {
	Add(ctx context.Context, phrase string) error
	Remove(ctx context.Context, phrase string) error
	Replace(ctx context.Context, phrases []string) error
}

// UserBucketCount is the modulus for the personalization cache bucket.
const UserBucketCount = 64

// UserBucket maps a user ID onto a small bucket via FNV-1a; anonymous
// requests land in bucket 0.
func UserBucket(userID string) int {
	if userID == "" {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum64() % UserBucketCount)
}
