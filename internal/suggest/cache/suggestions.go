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

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"typeahead/internal/suggest/core"
)

// DefaultSuggestionTTL is the suggestion-cache entry lifetime.
const DefaultSuggestionTTL = 60 * time.Second

// defaultScanBudget bounds how many keys one invalidation pass may
// visit per prefix pattern.
const defaultScanBudget = 512

// Suggestions is the Redis-backed prefix -> ranked-list cache.
type Suggestions struct {
	rdb        redis.UniversalClient
	ttl        time.Duration
	scanBudget int
}

// NewSuggestions creates the cache with the given TTL
// (DefaultSuggestionTTL when ttl <= 0).
func NewSuggestions(rdb redis.UniversalClient, ttl time.Duration) *Suggestions {
	if ttl <= 0 {
		ttl = DefaultSuggestionTTL
	}
	return &Suggestions{rdb: rdb, ttl: ttl, scanBudget: defaultScanBudget}
}

// SuggestionKey renders the stable cross-process key for a cache slot.
func SuggestionKey(k core.CacheKey) string {
	fuzzy := 0
	if k.Fuzzy {
		fuzzy = 1
	}
	return fmt.Sprintf("sugg:%s:%d:%d:%d", k.Prefix, k.Limit, fuzzy, k.UserBucket)
}

// Get fetches a cached result list. The second return value reports a
// hit; errors mean the cache is unreachable and the caller should
// bypass it.
func (s *Suggestions) Get(ctx context.Context, key core.CacheKey) ([]core.Scored, bool, error) {
	raw, err := s.rdb.Get(ctx, SuggestionKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", core.ErrCacheUnavailable, err)
	}
	var out []core.Scored
	if err := json.Unmarshal(raw, &out); err != nil {
		// A corrupt entry behaves like a miss; it will be overwritten.
		return nil, false, nil
	}
	return out, true, nil
}

// Set stores a result list with the configured TTL.
func (s *Suggestions) Set(ctx context.Context, key core.CacheKey, results []core.Scored) error {
	raw, err := json.Marshal(results)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, SuggestionKey(key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", core.ErrCacheUnavailable, err)
	}
	return nil
}

// InvalidatePhrase deletes every cache entry whose prefix is a prefix
// of (or equal to) the mutated phrase. The work is bounded: one SCAN
// pattern per prefix of the phrase, each capped at the scan budget.
func (s *Suggestions) InvalidatePhrase(ctx context.Context, phrase string) error {
	runes := []rune(phrase)
	for i := 1; i <= len(runes); i++ {
		pattern := "sugg:" + escapeGlob(string(runes[:i])) + ":*"
		if err := s.deleteMatching(ctx, pattern); err != nil {
			return err
		}
	}
	return nil
}

// Clear drops every suggestion-cache entry.
func (s *Suggestions) Clear(ctx context.Context) error {
	return s.deleteMatching(ctx, "sugg:*")
}

func (s *Suggestions) deleteMatching(ctx context.Context, pattern string) error {
	var cursor uint64
	visited := 0
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", core.ErrCacheUnavailable, err)
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("%w: %v", core.ErrCacheUnavailable, err)
			}
		}
		visited += len(keys)
		cursor = next
		if cursor == 0 || (pattern != "sugg:*" && visited >= s.scanBudget) {
			return nil
		}
	}
}
