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
	"math"
	"sort"
	"time"

	redis "github.com/redis/go-redis/v9"

	"typeahead/internal/suggest/core"
)

// Trending window defaults.
const (
	DefaultTrendingWindow = 60 * time.Minute
	DefaultTrendingTau    = 10 * time.Minute
)

const (
	trendingKey   = "trending"
	trendingTsKey = "trending:ts"
)

// Trending is the sliding-window decayed sorted set, shared across
// processes through Redis. Stored scores are as-of the last bump; the
// remaining decay is applied lazily at read time, and entries whose
// last bump left the window are evicted on access. All writes are
// best-effort and idempotent: a lost bump degrades trending slightly,
// never corrupts it.
type Trending struct {
	rdb    redis.UniversalClient
	window time.Duration
	tau    time.Duration
}

// NewTrending creates the window with its decay constants (defaults
// when non-positive).
func NewTrending(rdb redis.UniversalClient, window, tau time.Duration) *Trending {
	if window <= 0 {
		window = DefaultTrendingWindow
	}
	if tau <= 0 {
		tau = DefaultTrendingTau
	}
	return &Trending{rdb: rdb, window: window, tau: tau}
}

// trendingBumpScript atomically evicts expired entries, decays the
// phrase's stored score to now, adds one, and stamps the bump time.
// Returns the new score.
const trendingBumpScript = `
local zkey = KEYS[1]
local tskey = KEYS[2]
local phrase = ARGV[1]
local now = tonumber(ARGV[2])
local tau = tonumber(ARGV[3])
local window = tonumber(ARGV[4])
local cutoff = now - window
local expired = redis.call('ZRANGEBYSCORE', tskey, '-inf', cutoff)
for _, p in ipairs(expired) do
  redis.call('ZREM', zkey, p)
  redis.call('ZREM', tskey, p)
end
local s = 0
local stored = redis.call('ZSCORE', zkey, phrase)
local last = redis.call('ZSCORE', tskey, phrase)
if stored and last then
  s = tonumber(stored) * math.exp(-(now - tonumber(last)) / tau)
end
s = s + 1
redis.call('ZADD', zkey, s, phrase)
redis.call('ZADD', tskey, now, phrase)
return tostring(s)
`

// Bump records one occurrence of phrase at now.
func (t *Trending) Bump(ctx context.Context, phrase string) error {
	now := time.Now().Unix()
	err := t.rdb.Eval(ctx, trendingBumpScript,
		[]string{trendingKey, trendingTsKey},
		phrase, now, t.tau.Seconds(), t.window.Seconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: trending bump: %v", core.ErrCacheUnavailable, err)
	}
	return nil
}

// Top returns the highest-scoring phrases currently inside the window,
// with decay applied up to now. Callers filter moderated phrases.
func (t *Trending) Top(ctx context.Context, limit int) ([]core.TrendingEntry, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := time.Now().Unix()
	cutoff := float64(now) - t.window.Seconds()

	// Over-fetch: decay can reorder entries bumped at different times.
	fetch := limit * 3
	stored, err := t.rdb.ZRevRangeWithScores(ctx, trendingKey, 0, int64(fetch-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: trending read: %v", core.ErrCacheUnavailable, err)
	}
	if len(stored) == 0 {
		return nil, nil
	}
	phrases := make([]string, len(stored))
	for i, z := range stored {
		phrases[i] = z.Member.(string)
	}
	lasts, err := t.rdb.ZMScore(ctx, trendingTsKey, phrases...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: trending ts read: %v", core.ErrCacheUnavailable, err)
	}

	out := make([]core.TrendingEntry, 0, limit)
	for i, z := range stored {
		last := lasts[i]
		if last <= 0 || last < cutoff {
			continue
		}
		decayed := z.Score * math.Exp(-(float64(now)-last)/t.tau.Seconds())
		out = append(out, core.TrendingEntry{Phrase: phrases[i], Score: decayed})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Phrase < out[j].Phrase
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
