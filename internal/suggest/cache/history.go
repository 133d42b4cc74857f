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
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"typeahead/internal/suggest/core"
)

// Personal history defaults.
const (
	DefaultHistoryCap = 50
	DefaultHistoryTTL = 30 * 24 * time.Hour
)

// History keeps per-user recent searches in Redis: a recency zset
// (score = last-seen unix seconds) plus a counts hash, both expiring
// together. Eviction is least-recently-seen when the cap is exceeded.
type History struct {
	rdb redis.UniversalClient
	cap int
	ttl time.Duration
}

// NewHistory creates the store (defaults when non-positive).
func NewHistory(rdb redis.UniversalClient, capN int, ttl time.Duration) *History {
	if capN <= 0 {
		capN = DefaultHistoryCap
	}
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &History{rdb: rdb, cap: capN, ttl: ttl}
}

func historyKey(userID string) string       { return "history:" + userID }
func historyCountsKey(userID string) string { return historyKey(userID) + ":counts" }

// historyRecordScript bumps a phrase, trims least-recently-seen
// entries past the cap, and refreshes the TTLs in one round trip.
const historyRecordScript = `
local zkey = KEYS[1]
local hkey = KEYS[2]
local phrase = ARGV[1]
local now = tonumber(ARGV[2])
local cap = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])
redis.call('ZADD', zkey, now, phrase)
redis.call('HINCRBY', hkey, phrase, 1)
local card = redis.call('ZCARD', zkey)
if card > cap then
  local evicted = redis.call('ZRANGE', zkey, 0, card - cap - 1)
  for _, p in ipairs(evicted) do
    redis.call('ZREM', zkey, p)
    redis.call('HDEL', hkey, p)
  end
end
redis.call('EXPIRE', zkey, ttl)
redis.call('EXPIRE', hkey, ttl)
return card
`

// Record notes that userID searched phrase just now. Anonymous callers
// must be skipped by the caller; userID is required here.
func (h *History) Record(ctx context.Context, userID, phrase string) error {
	if userID == "" {
		return nil
	}
	err := h.rdb.Eval(ctx, historyRecordScript,
		[]string{historyKey(userID), historyCountsKey(userID)},
		phrase, time.Now().Unix(), h.cap, int(h.ttl.Seconds()),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: history record: %v", core.ErrCacheUnavailable, err)
	}
	return nil
}

// Recent returns the user's most recently seen phrases, newest first.
func (h *History) Recent(ctx context.Context, userID string, limit int) ([]core.HistoryEntry, error) {
	if userID == "" || limit <= 0 {
		return nil, nil
	}
	recent, err := h.rdb.ZRevRangeWithScores(ctx, historyKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: history read: %v", core.ErrCacheUnavailable, err)
	}
	if len(recent) == 0 {
		return nil, nil
	}
	phrases := make([]string, len(recent))
	for i, z := range recent {
		phrases[i] = z.Member.(string)
	}
	counts, err := h.rdb.HMGet(ctx, historyCountsKey(userID), phrases...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: history counts read: %v", core.ErrCacheUnavailable, err)
	}
	out := make([]core.HistoryEntry, 0, len(recent))
	for i, z := range recent {
		var cnt int64 = 1
		if raw, ok := counts[i].(string); ok {
			if parsed, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
				cnt = parsed
			}
		}
		out = append(out, core.HistoryEntry{
			Phrase:   phrases[i],
			Count:    cnt,
			LastSeen: time.Unix(int64(z.Score), 0),
		})
	}
	return out, nil
}
