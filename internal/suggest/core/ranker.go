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
	"math"
	"sort"
	"time"
	"unicode/utf8"
)

// Weights are the ranking component weights. They must be treated as
// configuration; the defaults sum to 1.
type Weights struct {
	Popularity float64 `yaml:"popularity"`
	Recency    float64 `yaml:"recency"`
	Personal   float64 `yaml:"personal"`
	Trending   float64 `yaml:"trending"`
	Match      float64 `yaml:"match"`
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{Popularity: 0.35, Recency: 0.15, Personal: 0.20, Trending: 0.20, Match: 0.10}
}

// Components are the per-candidate score parts, each in [0,1].
type Components struct {
	Popularity float64 `json:"popularity"`
	Recency    float64 `json:"recency"`
	Personal   float64 `json:"personal"`
	Trending   float64 `json:"trending"`
	Match      float64 `json:"match"`
}

// Scored is a ranked candidate.
type Scored struct {
	Candidate
	Score      float64
	Components Components
}

// RankInput is everything the ranker needs. It is a plain value so
// tests can drive the ranker without touching the index or the cache.
type RankInput struct {
	Candidates []Candidate
	Prefix     string
	MaxCount   int64
	Now        int64
	RecencyTau time.Duration
	Weights    Weights

	// Trending maps phrase to a normalized trending score in [0,1];
	// absent phrases contribute 0.
	Trending map[string]float64
	// Personal maps phrase to the requesting user's recorded count;
	// absent phrases contribute 0.
	Personal map[string]int64
}

// Rank scores and orders candidates. It is a pure function: identical
// inputs produce identical output. Ordering is score descending, then
// count descending, then phrase length ascending, then code-point
// order.
func Rank(in RankInput) []Scored {
	tau := in.RecencyTau
	if tau <= 0 {
		tau = recencyTau
	}
	maxCount := in.MaxCount
	prefixLen := utf8.RuneCountInString(in.Prefix)
	if prefixLen < 1 {
		prefixLen = 1
	}

	out := make([]Scored, 0, len(in.Candidates))
	for _, c := range in.Candidates {
		if c.Count > maxCount {
			maxCount = c.Count
		}
		var comp Components
		comp.Popularity = math.Log(float64(c.Count)+1) / math.Log(float64(maxCount)+1)
		age := float64(in.Now - c.LastUpdated)
		if age < 0 {
			age = 0
		}
		comp.Recency = math.Exp(-age / tau.Seconds())
		if cnt, ok := in.Personal[c.Phrase]; ok && cnt > 0 {
			comp.Personal = 1
		}
		if ts, ok := in.Trending[c.Phrase]; ok {
			comp.Trending = clamp01(ts)
		}
		comp.Match = 1 - float64(c.Distance)/float64(prefixLen)
		if comp.Match < 0 {
			comp.Match = 0
		}

		score := in.Weights.Popularity*comp.Popularity +
			in.Weights.Recency*comp.Recency +
			in.Weights.Personal*comp.Personal +
			in.Weights.Trending*comp.Trending +
			in.Weights.Match*comp.Match
		out = append(out, Scored{Candidate: c, Score: score, Components: comp})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		la, lb := utf8.RuneCountInString(a.Phrase), utf8.RuneCountInString(b.Phrase)
		if la != lb {
			return la < lb
		}
		return a.Phrase < b.Phrase
	})
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
