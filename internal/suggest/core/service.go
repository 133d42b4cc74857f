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

// This file implements the Service, which ties the pipeline together:
// cache -> index -> ranker -> moderation on the query side, and
// buffer -> flusher on the ingest side. The query path is fail-soft: a
// cache, trending or history outage degrades ranking, never the
// request; only invalid input or an index invariant breach fails it.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"typeahead/internal/suggest/telemetry"
)

// Request bounds.
const (
	MaxSuggestLimit  = 20
	MaxTrendingLimit = 50
)

// SuggestRequest is one completion query.
type SuggestRequest struct {
	Prefix string
	Limit  int
	UserID string
	Fuzzy  bool
}

// Suggestion is one ranked completion in a response.
type Suggestion struct {
	Phrase     string     `json:"phrase"`
	Count      int64      `json:"count"`
	Score      float64    `json:"score"`
	Components Components `json:"components"`
	IsFuzzy    bool       `json:"isFuzzy"`
	Distance   int        `json:"distance,omitempty"`
}

// SuggestResponse carries the ranked list plus response meta.
type SuggestResponse struct {
	Suggestions    []Suggestion `json:"suggestions"`
	ResponseTimeMs float64      `json:"responseTimeMs"`
	Cached         bool         `json:"cached"`
}

// ServiceConfig tunes the query pipeline.
type ServiceConfig struct {
	Weights       Weights
	RecencyTau    time.Duration // ranker recency time constant
	FuzzyBudget   int
	TrendingProbe int // trending entries fetched per query for ranking
	HistoryProbe  int // history entries fetched per query
}

func (c *ServiceConfig) applyDefaults() {
	if c.Weights == (Weights{}) {
		c.Weights = DefaultWeights()
	}
	if c.RecencyTau <= 0 {
		c.RecencyTau = recencyTau
	}
	if c.FuzzyBudget <= 0 {
		c.FuzzyBudget = DefaultFuzzyBudget
	}
	if c.TrendingProbe <= 0 {
		c.TrendingProbe = 100
	}
	if c.HistoryProbe <= 0 {
		c.HistoryProbe = 50
	}
}

// Service is the suggestion engine facade used by the API layer.
type Service struct {
	index     *Index
	filter    *Filter
	buf       *Buffer
	store     Store
	sugg      SuggestionCache
	trending  TrendingWindow
	history   History
	mirror    FilterMirror
	flusher   *Flusher
	rebuilder *Rebuilder
	log       *zap.Logger
	cfg       ServiceConfig
}

// NewService wires the engine. sugg, trending, history and mirror may
// be nil; the corresponding features then degrade the same way an
// outage would.
func NewService(
	index *Index,
	filter *Filter,
	buf *Buffer,
	store Store,
	sugg SuggestionCache,
	trending TrendingWindow,
	history History,
	mirror FilterMirror,
	flusher *Flusher,
	rebuilder *Rebuilder,
	cfg ServiceConfig,
	log *zap.Logger,
) *Service {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		index:     index,
		filter:    filter,
		buf:       buf,
		store:     store,
		sugg:      sugg,
		trending:  trending,
		history:   history,
		mirror:    mirror,
		flusher:   flusher,
		rebuilder: rebuilder,
		log:       log,
		cfg:       cfg,
	}
}

// Bootstrap loads the moderation set and builds the first index
// generation from persistence. Call once before serving traffic.
func (s *Service) Bootstrap(ctx context.Context) error {
	filtered, err := s.store.ListFiltered(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap filtered set: %w", err)
	}
	phrases := make([]string, 0, len(filtered))
	for _, fp := range filtered {
		phrases = append(phrases, fp.Phrase)
	}
	s.filter.Replace(phrases)
	if s.mirror != nil {
		if err := s.mirror.Replace(ctx, phrases); err != nil {
			s.log.Warn("filtered mirror refresh failed", zap.Error(err))
		}
	}
	return s.rebuilder.Rebuild(ctx)
}

// Suggest answers one completion query.
func (s *Service) Suggest(ctx context.Context, req SuggestRequest) (*SuggestResponse, error) {
	start := time.Now()
	telemetry.IncQuery()

	prefix, err := Normalize(req.Prefix)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	if limit > MaxSuggestLimit {
		limit = MaxSuggestLimit
	}

	key := CacheKey{Prefix: prefix, Limit: limit, Fuzzy: req.Fuzzy, UserBucket: UserBucket(req.UserID)}
	if s.sugg != nil {
		if ranked, ok, cerr := s.sugg.Get(ctx, key); cerr != nil {
			// Cache outage: bypass and serve fresh.
			s.log.Debug("suggestion cache get failed", zap.Error(cerr))
			telemetry.IncCacheMiss()
		} else if ok {
			telemetry.IncCacheHit()
			resp := s.respond(ranked, start, true)
			return resp, nil
		} else {
			telemetry.IncCacheMiss()
		}
	} else {
		telemetry.IncCacheMiss()
	}

	candidates := s.index.Lookup(prefix, limit, s.filter.IsFiltered)
	if req.Fuzzy && len(candidates) < limit {
		fuzzy := s.index.LookupFuzzy(prefix, limit-len(candidates), s.cfg.FuzzyBudget, s.filter.IsFiltered)
		candidates = append(candidates, fuzzy...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := Rank(RankInput{
		Candidates: candidates,
		Prefix:     prefix,
		MaxCount:   s.index.MaxCount(),
		Now:        time.Now().Unix(),
		RecencyTau: s.cfg.RecencyTau,
		Weights:    s.cfg.Weights,
		Trending:   s.trendingSnapshot(ctx),
		Personal:   s.personalSnapshot(ctx, req.UserID),
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	if s.sugg != nil {
		if cerr := s.sugg.Set(ctx, key, ranked); cerr != nil {
			s.log.Debug("suggestion cache set failed", zap.Error(cerr))
		}
	}
	resp := s.respond(ranked, start, false)
	return resp, nil
}

func (s *Service) respond(ranked []Scored, start time.Time, cached bool) *SuggestResponse {
	items := make([]Suggestion, 0, len(ranked))
	for _, r := range ranked {
		items = append(items, Suggestion{
			Phrase:     r.Phrase,
			Count:      r.Count,
			Score:      r.Score,
			Components: r.Components,
			IsFuzzy:    r.Distance > 0,
			Distance:   r.Distance,
		})
	}
	elapsed := time.Since(start)
	telemetry.ObserveQueryLatency(elapsed)
	return &SuggestResponse{
		Suggestions:    items,
		ResponseTimeMs: float64(elapsed.Microseconds()) / 1000,
		Cached:         cached,
	}
}

// trendingSnapshot fetches the current window and normalizes scores to
// [0,1]. Best-effort: an outage contributes an empty snapshot.
func (s *Service) trendingSnapshot(ctx context.Context) map[string]float64 {
	if s.trending == nil {
		return nil
	}
	entries, err := s.trending.Top(ctx, s.cfg.TrendingProbe)
	if err != nil || len(entries) == 0 {
		return nil
	}
	max := entries[0].Score
	for _, e := range entries {
		if e.Score > max {
			max = e.Score
		}
	}
	if max <= 0 {
		return nil
	}
	out := make(map[string]float64, len(entries))
	for _, e := range entries {
		out[e.Phrase] = e.Score / max
	}
	return out
}

// personalSnapshot fetches the user's recent history as phrase->count.
// Best-effort; anonymous users get nil.
func (s *Service) personalSnapshot(ctx context.Context, userID string) map[string]int64 {
	if s.history == nil || userID == "" {
		return nil
	}
	entries, err := s.history.Recent(ctx, userID, s.cfg.HistoryProbe)
	if err != nil || len(entries) == 0 {
		return nil
	}
	out := make(map[string]int64, len(entries))
	for _, e := range entries {
		out[e.Phrase] = e.Count
	}
	return out
}

// LogSearch records one observed search. The event is buffered for the
// write-behind flusher; buffer overflow is counted, never surfaced.
// Personal history is updated inline when the phrase passes moderation.
func (s *Service) LogSearch(ctx context.Context, query, userID, sessionID string) error {
	phrase, err := Normalize(query)
	if err != nil {
		return err
	}
	s.buf.Submit(Event{Phrase: phrase, UserID: userID, SessionID: sessionID, At: time.Now()})

	if userID != "" && s.history != nil && !s.filter.IsFiltered(phrase) {
		if herr := s.history.Record(ctx, userID, phrase); herr != nil {
			s.log.Debug("history record failed", zap.String("user", userID), zap.Error(herr))
		}
	}
	return nil
}

// Trending returns the current trending phrases, filtered through
// moderation.
func (s *Service) Trending(ctx context.Context, limit int) ([]TrendingEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > MaxTrendingLimit {
		limit = MaxTrendingLimit
	}
	if s.trending == nil {
		return nil, nil
	}
	// Over-fetch so moderation filtering does not shrink the page, but
	// bound the Redis read regardless of moderation-set size.
	extra := s.filter.Len()
	if extra > limit {
		extra = limit
	}
	entries, err := s.trending.Top(ctx, limit+extra)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	out := make([]TrendingEntry, 0, limit)
	for _, e := range entries {
		if s.filter.IsFiltered(e.Phrase) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// Rebuild runs a synchronous index rebuild.
func (s *Service) Rebuild(ctx context.Context) error {
	return s.rebuilder.Rebuild(ctx)
}

// ClearCache drops all suggestion-cache entries.
func (s *Service) ClearCache(ctx context.Context) error {
	if s.sugg == nil {
		return nil
	}
	if err := s.sugg.Clear(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// AddPhrase seeds a phrase via admin. For an existing phrase the count
// is added as a delta, matching the flush path's convention so counts
// stay monotonic.
func (s *Service) AddPhrase(ctx context.Context, rawPhrase string, count int64) error {
	phrase, err := Normalize(rawPhrase)
	if err != nil {
		return err
	}
	if count < 0 {
		return fmt.Errorf("%w: negative count", ErrInvalidInput)
	}
	if err := s.store.SeedPhrase(ctx, phrase, count, time.Now()); err != nil {
		return err
	}
	if _, err := s.index.Increment(phrase, count); errors.Is(err, ErrNotFound) {
		s.index.Insert(phrase, count)
	} else if err != nil {
		return err
	}
	s.invalidatePhrase(ctx, phrase)
	return nil
}

// FilterPhrase adds a phrase to the moderation set. Top-K caches are
// left alone; filtering happens at query time and the affected cache
// entries are invalidated here.
func (s *Service) FilterPhrase(ctx context.Context, rawPhrase, reason string) error {
	phrase, err := Normalize(rawPhrase)
	if err != nil {
		return err
	}
	if err := s.store.AddFiltered(ctx, phrase, reason); err != nil {
		return err
	}
	if s.mirror != nil {
		if merr := s.mirror.Add(ctx, phrase); merr != nil {
			s.log.Warn("filtered mirror add failed", zap.Error(merr))
		}
	}
	s.filter.Add(phrase)
	s.invalidatePhrase(ctx, phrase)
	return nil
}

// UnfilterPhrase removes a phrase from the moderation set.
func (s *Service) UnfilterPhrase(ctx context.Context, rawPhrase string) error {
	phrase, err := Normalize(rawPhrase)
	if err != nil {
		return err
	}
	removed, err := s.store.RemoveFiltered(ctx, phrase)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %q is not filtered", ErrNotFound, phrase)
	}
	if s.mirror != nil {
		if merr := s.mirror.Remove(ctx, phrase); merr != nil {
			s.log.Warn("filtered mirror remove failed", zap.Error(merr))
		}
	}
	s.filter.Remove(phrase)
	s.invalidatePhrase(ctx, phrase)
	return nil
}

func (s *Service) invalidatePhrase(ctx context.Context, phrase string) {
	if s.sugg == nil {
		return
	}
	if err := s.sugg.InvalidatePhrase(ctx, phrase); err != nil {
		s.log.Debug("cache invalidation failed", zap.String("phrase", phrase), zap.Error(err))
	}
}

// Stats returns live index counters plus ingestion health.
func (s *Service) Stats() (IndexStats, int64, int64) {
	return s.index.Stats(), s.buf.Overflow(), s.flusherDeadLetters()
}

func (s *Service) flusherDeadLetters() int64 {
	if s.flusher == nil {
		return 0
	}
	return s.flusher.DeadLettered()
}

// VerifyIndex checks index invariants and forces a rebuild on breach.
func (s *Service) VerifyIndex(ctx context.Context) error {
	if err := s.index.CheckInvariants(); err != nil {
		s.log.Error("index invariant breach, forcing rebuild", zap.Error(err))
		if rerr := s.rebuilder.Rebuild(ctx); rerr != nil {
			return fmt.Errorf("forced rebuild after %v: %w", err, rerr)
		}
		return err
	}
	return nil
}
