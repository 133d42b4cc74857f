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

// End-to-end pipeline tests: real SQLite persistence, real cache
// adapters against an embedded Redis, and the service on top. They
// live outside the core package so they can import the adapters.
package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typeahead/internal/suggest/cache"
	"typeahead/internal/suggest/core"
	"typeahead/internal/suggest/persistence"
)

type pipeline struct {
	svc     *core.Service
	flusher *core.Flusher
	buf     *core.Buffer
	store   *persistence.SQLStore
}

func newPipeline(t *testing.T, bufferCap int) *pipeline {
	t.Helper()
	store, err := persistence.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	index := core.NewIndex(10)
	filter := core.NewFilter()
	buf := core.NewBuffer(bufferCap)
	sugg := cache.NewSuggestions(rdb, time.Minute)
	trending := cache.NewTrending(rdb, time.Hour, 10*time.Minute)
	history := cache.NewHistory(rdb, 50, time.Hour)
	mirror := cache.NewFilteredMirror(rdb)

	flusher := core.NewFlusher(buf, store, index, sugg, trending, core.FlusherConfig{
		Interval:  time.Hour, // tests flush explicitly through Stop
		Threshold: 1 << 30,
	}, nil)
	rebuilder := core.NewRebuilder(index, store, sugg, flusher, nil)
	svc := core.NewService(index, filter, buf, store, sugg, trending, history, mirror,
		flusher, rebuilder, core.ServiceConfig{}, nil)
	require.NoError(t, svc.Bootstrap(context.Background()))
	return &pipeline{svc: svc, flusher: flusher, buf: buf, store: store}
}

// flush drains the buffer synchronously, same code path the periodic
// loop runs.
func (p *pipeline) flush() {
	p.flusher.Flush(context.Background())
}

func TestPipeline_SearchToSuggestion(t *testing.T) {
	p := newPipeline(t, 1000)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, p.svc.LogSearch(ctx, "JavaScript  Tutorial", "", ""))
	}
	p.flush()

	// Persisted under the normalized phrase.
	n, err := p.store.Count(ctx, "javascript tutorial")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	resp, err := p.svc.Suggest(ctx, core.SuggestRequest{Prefix: "javascript"})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, "javascript tutorial", resp.Suggestions[0].Phrase)
	assert.Equal(t, int64(5), resp.Suggestions[0].Count)
	assert.False(t, resp.Cached)

	// The second identical query is served from the suggestion cache.
	resp, err = p.svc.Suggest(ctx, core.SuggestRequest{Prefix: "javascript"})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1)
	assert.True(t, resp.Cached)
}

func TestPipeline_CacheInvalidatedByFlush(t *testing.T) {
	p := newPipeline(t, 1000)
	ctx := context.Background()

	require.NoError(t, p.svc.LogSearch(ctx, "golang", "", ""))
	p.flush()

	resp, err := p.svc.Suggest(ctx, core.SuggestRequest{Prefix: "go"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.Suggestions[0].Count)

	// New searches flush and invalidate the cached entry, so the next
	// query sees the fresh count rather than the cached one.
	require.NoError(t, p.svc.LogSearch(ctx, "golang", "", ""))
	p.flush()

	resp, err = p.svc.Suggest(ctx, core.SuggestRequest{Prefix: "go"})
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, int64(2), resp.Suggestions[0].Count)
}

func TestPipeline_TrendingBoostsBursts(t *testing.T) {
	p := newPipeline(t, 1000)
	ctx := context.Background()

	// Equal long-term popularity, but react bursts inside the window.
	for i := 0; i < 10; i++ {
		require.NoError(t, p.svc.LogSearch(ctx, "recipe", "", ""))
		require.NoError(t, p.svc.LogSearch(ctx, "react", "", ""))
	}
	p.flush()
	for i := 0; i < 5; i++ {
		require.NoError(t, p.svc.LogSearch(ctx, "react", "", ""))
	}
	p.flush()

	trending, err := p.svc.Trending(ctx, 10)
	require.NoError(t, err)
	require.NotEmpty(t, trending)
	assert.Equal(t, "react", trending[0].Phrase)

	resp, err := p.svc.Suggest(ctx, core.SuggestRequest{Prefix: "re"})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 2)
	assert.Equal(t, "react", resp.Suggestions[0].Phrase)
	assert.Greater(t, resp.Suggestions[0].Components.Trending, resp.Suggestions[1].Components.Trending)
}

func TestPipeline_PersonalHistoryBoost(t *testing.T) {
	p := newPipeline(t, 1000)
	ctx := context.Background()

	require.NoError(t, p.svc.AddPhrase(ctx, "golf scores", 100))
	require.NoError(t, p.svc.AddPhrase(ctx, "golang tutorial", 100))
	require.NoError(t, p.svc.LogSearch(ctx, "golang tutorial", "user-7", "s1"))
	p.flush()

	// Anonymous query: personal component contributes nothing.
	resp, err := p.svc.Suggest(ctx, core.SuggestRequest{Prefix: "gol"})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 2)
	assert.Zero(t, resp.Suggestions[0].Components.Personal)

	// Drop the anonymous entry in case the user hashes into bucket 0.
	require.NoError(t, p.svc.ClearCache(ctx))

	// The searching user sees their own phrase boosted.
	resp, err = p.svc.Suggest(ctx, core.SuggestRequest{Prefix: "gol", UserID: "user-7"})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 2)
	assert.Equal(t, "golang tutorial", resp.Suggestions[0].Phrase)
	assert.Equal(t, float64(1), resp.Suggestions[0].Components.Personal)
}

func TestPipeline_ModerationHidesEverywhere(t *testing.T) {
	p := newPipeline(t, 1000)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, p.svc.LogSearch(ctx, "badword", "", ""))
	}
	require.NoError(t, p.svc.LogSearch(ctx, "badge", "", ""))
	p.flush()

	require.NoError(t, p.svc.FilterPhrase(ctx, "badword", "offensive"))

	resp, err := p.svc.Suggest(ctx, core.SuggestRequest{Prefix: "bad"})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, "badge", resp.Suggestions[0].Phrase)

	trending, err := p.svc.Trending(ctx, 10)
	require.NoError(t, err)
	for _, e := range trending {
		assert.NotEqual(t, "badword", e.Phrase, "filtered phrase surfaced in trending")
	}

	// Unfiltering restores visibility at query time.
	require.NoError(t, p.svc.UnfilterPhrase(ctx, "badword"))
	resp, err = p.svc.Suggest(ctx, core.SuggestRequest{Prefix: "bad"})
	require.NoError(t, err)
	assert.Len(t, resp.Suggestions, 2)
}

func TestPipeline_UnfilterUnknownPhrase(t *testing.T) {
	p := newPipeline(t, 1000)
	err := p.svc.UnfilterPhrase(context.Background(), "never filtered")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPipeline_FuzzyFallback(t *testing.T) {
	p := newPipeline(t, 1000)
	ctx := context.Background()

	require.NoError(t, p.svc.AddPhrase(ctx, "javascript", 10))

	// Mistyped tail character: nothing exact, fuzzy finds it.
	resp, err := p.svc.Suggest(ctx, core.SuggestRequest{Prefix: "javascrio", Fuzzy: true})
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, "javascript", resp.Suggestions[0].Phrase)
	assert.True(t, resp.Suggestions[0].IsFuzzy)

	// Without the flag the typo yields nothing.
	resp, err = p.svc.Suggest(ctx, core.SuggestRequest{Prefix: "javascrio"})
	require.NoError(t, err)
	assert.Empty(t, resp.Suggestions)
}

func TestPipeline_BufferOverflowCounted(t *testing.T) {
	p := newPipeline(t, 100)
	ctx := context.Background()

	for i := 0; i < 150; i++ {
		require.NoError(t, p.svc.LogSearch(ctx, "overflow test", "", ""))
	}
	_, overflow, dead := p.svc.Stats()
	assert.Equal(t, int64(50), overflow)
	assert.Zero(t, dead)

	// The surviving events still flush normally.
	p.flush()
	n, err := p.store.Count(ctx, "overflow test")
	require.NoError(t, err)
	assert.Equal(t, int64(100), n)
}

func TestPipeline_RebuildMatchesLiveIndex(t *testing.T) {
	p := newPipeline(t, 1000)
	ctx := context.Background()

	for _, q := range []string{"java", "java", "javascript", "go"} {
		require.NoError(t, p.svc.LogSearch(ctx, q, "", ""))
	}
	p.flush()

	before, err := p.svc.Suggest(ctx, core.SuggestRequest{Prefix: "ja"})
	require.NoError(t, err)

	require.NoError(t, p.svc.Rebuild(ctx))

	after, err := p.svc.Suggest(ctx, core.SuggestRequest{Prefix: "ja"})
	require.NoError(t, err)
	require.Len(t, after.Suggestions, len(before.Suggestions))
	for i := range after.Suggestions {
		assert.Equal(t, before.Suggestions[i].Phrase, after.Suggestions[i].Phrase)
		assert.Equal(t, before.Suggestions[i].Count, after.Suggestions[i].Count)
	}
	require.NoError(t, p.svc.VerifyIndex(ctx))
}

func TestPipeline_InvalidQueries(t *testing.T) {
	p := newPipeline(t, 1000)
	ctx := context.Background()

	_, err := p.svc.Suggest(ctx, core.SuggestRequest{Prefix: "   "})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	err = p.svc.LogSearch(ctx, "", "", "")
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	err = p.svc.AddPhrase(ctx, "ok phrase", -1)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
