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

// This file implements the in-memory prefix index: a trie keyed by code
// points of normalized phrases, with a per-node cache of the top-K
// highest statically-scored phrases in the subtree. Reads take a shared
// lock and cost O(|prefix| + K); writes take the exclusive lock and
// re-compute top-K caches only along the mutated path.
package core

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultTopK is the per-node top-K cache size.
const DefaultTopK = 10

// recencyTau is the static-score recency time constant (7 days). The
// static surrogate deliberately ignores per-user and per-request state
// so node caches stay valid across requests.
const recencyTau = 7 * 24 * time.Hour

// Candidate is one completion returned by a lookup.
type Candidate struct {
	Phrase      string
	Count       int64
	LastUpdated int64 // unix seconds
	Distance    int   // edit distance from the requested prefix; 0 for exact
}

// IndexStats is a point-in-time summary of the live generation.
type IndexStats struct {
	PhraseCount int
	NodeCount   int
	MaxDepth    int
	MaxCount    int64
}

// topEntry is one slot of a node's top-K cache. Count and updated are
// carried alongside the score so parents can re-score without another
// subtree walk.
type topEntry struct {
	phrase  string
	count   int64
	updated int64
	score   float64
}

type node struct {
	children map[rune]*node
	terminal bool
	phrase   string
	count    int64
	updated  int64 // unix seconds of last count change
	topK     []topEntry
}

func newNode() *node {
	return &node{children: make(map[rune]*node)}
}

// generation is one immutable-from-the-outside snapshot of the trie.
// The rebuilder populates a fresh generation off to the side and the
// Index swaps it in atomically; generation methods themselves do no
// locking.
type generation struct {
	root        *node
	k           int
	maxCount    int64
	phraseCount int
	nodeCount   int
	maxDepth    int
}

func newGeneration(k int) *generation {
	if k <= 0 {
		k = DefaultTopK
	}
	return &generation{root: newNode(), k: k, nodeCount: 1}
}

// staticScore is the surrogate used inside top-K caches: popularity and
// recency only, so the cache does not depend on who is asking.
func (g *generation) staticScore(count, updated, now int64) float64 {
	maxCount := g.maxCount
	if maxCount < count {
		maxCount = count
	}
	pop := math.Log(float64(count)+1) / math.Log(float64(maxCount)+1)
	age := float64(now - updated)
	if age < 0 {
		age = 0
	}
	rec := math.Exp(-age / recencyTau.Seconds())
	return 0.7*pop + 0.3*rec
}

// walk returns the node at the end of the prefix path, or nil.
func (g *generation) walk(prefix string) *node {
	n := g.root
	for _, r := range prefix {
		n = n.children[r]
		if n == nil {
			return nil
		}
	}
	return n
}

// pathTo returns the nodes from root to the end of the phrase,
// inclusive, creating missing nodes when create is set. The returned
// slice has one entry per code point plus the root.
func (g *generation) pathTo(phrase string, create bool) []*node {
	path := make([]*node, 0, utf8.RuneCountInString(phrase)+1)
	n := g.root
	path = append(path, n)
	for _, r := range phrase {
		child := n.children[r]
		if child == nil {
			if !create {
				return nil
			}
			child = newNode()
			n.children[r] = child
			g.nodeCount++
		}
		n = child
		path = append(path, n)
	}
	if d := len(path) - 1; d > g.maxDepth {
		g.maxDepth = d
	}
	return path
}

// computeTopK builds what a node's top-K should contain, from its own
// terminal entry merged with the children's caches. It never touches
// the node, so it is safe to call under a shared lock.
func (g *generation) computeTopK(n *node, now int64) []topEntry {
	merged := make([]topEntry, 0, g.k+1)
	if n.terminal {
		merged = append(merged, topEntry{phrase: n.phrase, count: n.count, updated: n.updated})
	}
	for _, child := range n.children {
		merged = append(merged, child.topK...)
	}
	for i := range merged {
		merged[i].score = g.staticScore(merged[i].count, merged[i].updated, now)
	}
	sort.Slice(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.score != b.score {
			return a.score > b.score
		}
		la, lb := utf8.RuneCountInString(a.phrase), utf8.RuneCountInString(b.phrase)
		if la != lb {
			return la < lb
		}
		return a.phrase < b.phrase
	})
	if len(merged) > g.k {
		merged = merged[:g.k]
	}
	return merged
}

// recomputeTopK replaces a node's top-K cache. Reports whether the
// cache content changed. Exclusive-lock holders only.
func (g *generation) recomputeTopK(n *node, now int64) bool {
	merged := g.computeTopK(n, now)
	changed := len(merged) != len(n.topK)
	if !changed {
		for i := range merged {
			if merged[i].phrase != n.topK[i].phrase || merged[i].count != n.topK[i].count {
				changed = true
				break
			}
		}
	}
	n.topK = merged
	return changed
}

// refreshPath re-computes top-K caches from the deepest path node back
// to the root and collects the prefixes whose cache changed. The
// returned prefixes are exactly the cache-invalidation targets.
func (g *generation) refreshPath(phrase string, path []*node, now int64) []string {
	runes := []rune(phrase)
	var touched []string
	for i := len(path) - 1; i >= 0; i-- {
		if g.recomputeTopK(path[i], now) {
			touched = append(touched, string(runes[:i]))
		}
	}
	return touched
}

// insert adds a phrase with an initial count, creating path nodes as
// needed. Inserting an existing phrase adds to its count. updatedAt is
// recorded on the terminal; now drives the static-score refresh, so a
// rebuild can seed historical timestamps while scoring at load time.
func (g *generation) insert(phrase string, count, updatedAt, now int64) []string {
	path := g.pathTo(phrase, true)
	n := path[len(path)-1]
	if !n.terminal {
		n.terminal = true
		n.phrase = phrase
		g.phraseCount++
	}
	n.count += count
	n.updated = updatedAt
	if n.count > g.maxCount {
		g.maxCount = n.count
	}
	return g.refreshPath(phrase, path, now)
}

// increment bumps an existing terminal's count by delta and refreshes
// the path caches. Unknown phrases return ErrNotFound so the caller can
// fall back to insert.
func (g *generation) increment(phrase string, delta, now int64) ([]string, error) {
	path := g.pathTo(phrase, false)
	if path == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, phrase)
	}
	n := path[len(path)-1]
	if !n.terminal {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, phrase)
	}
	n.count += delta
	if n.count < 0 {
		n.count = 0
	}
	n.updated = now
	if n.count > g.maxCount {
		g.maxCount = n.count
	}
	return g.refreshPath(phrase, path, now), nil
}

// remove clears a phrase's terminal flag, prunes path nodes that
// become empty, and refreshes the surviving caches.
func (g *generation) remove(phrase string, now int64) ([]string, error) {
	path := g.pathTo(phrase, false)
	if path == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, phrase)
	}
	n := path[len(path)-1]
	if !n.terminal {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, phrase)
	}
	n.terminal = false
	n.phrase = ""
	n.count = 0
	g.phraseCount--

	// Prune empty tail nodes before refreshing the remaining path.
	runes := []rune(phrase)
	for i := len(path) - 1; i > 0; i-- {
		cur := path[i]
		if cur.terminal || len(cur.children) > 0 {
			break
		}
		delete(path[i-1].children, runes[i-1])
		g.nodeCount--
		path = path[:i]
	}
	return g.refreshPath(string(runes[:len(path)-1]), path, now), nil
}

// checkInvariants verifies every node's top-K against a fresh
// recomputation. Used by tests and by the forced-rebuild trigger. It
// is strictly read-only: concurrent lookups under the shared lock must
// never observe a partially checked trie.
func (g *generation) checkInvariants(now int64) error {
	var verify func(n *node, depth int) error
	verify = func(n *node, depth int) error {
		for _, child := range n.children {
			if err := verify(child, depth+1); err != nil {
				return err
			}
		}
		want := g.computeTopK(n, now)
		if len(want) != len(n.topK) {
			return fmt.Errorf("%w: top-K size mismatch at depth %d", ErrFatalInvariant, depth)
		}
		for i := range want {
			if want[i].phrase != n.topK[i].phrase || want[i].count != n.topK[i].count {
				return fmt.Errorf("%w: top-K entry mismatch at depth %d", ErrFatalInvariant, depth)
			}
		}
		return nil
	}
	return verify(g.root, 0)
}

// Index is the live prefix index: a single-writer, many-reader wrapper
// around the current generation. Only the ingestion flusher and the
// rebuilder's swap mutate it; query handlers never do.
type Index struct {
	mu  sync.RWMutex
	gen *generation
	k   int
}

// NewIndex creates an empty index with per-node top-K size k
// (DefaultTopK when k <= 0).
func NewIndex(k int) *Index {
	if k <= 0 {
		k = DefaultTopK
	}
	return &Index{gen: newGeneration(k), k: k}
}

// K returns the configured per-node top-K size.
func (ix *Index) K() int { return ix.k }

// Lookup returns up to limit candidates for the normalized prefix,
// drawn from the prefix node's top-K cache, best first. Filtered
// phrases are excluded. A missing prefix yields an empty list. limit
// values above K are clamped to K.
func (ix *Index) Lookup(prefix string, limit int, filtered func(string) bool) []Candidate {
	if limit <= 0 {
		return nil
	}
	if limit > ix.k {
		limit = ix.k
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := ix.gen.walk(prefix)
	if n == nil {
		return nil
	}
	out := make([]Candidate, 0, limit)
	for _, e := range n.topK {
		if filtered != nil && filtered(e.phrase) {
			continue
		}
		out = append(out, Candidate{Phrase: e.phrase, Count: e.count, LastUpdated: e.updated})
		if len(out) == limit {
			break
		}
	}
	return out
}

// Increment bumps phrase by delta and returns the prefixes whose top-K
// changed, for cache invalidation. The exclusive lock is held only for
// the in-memory update; callers must not be inside any I/O.
func (ix *Index) Increment(phrase string, delta int64) ([]string, error) {
	now := time.Now().Unix()
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.gen.increment(phrase, delta, now)
}

// Insert adds phrase with an initial count (or adds to an existing
// count) and returns the touched prefixes.
func (ix *Index) Insert(phrase string, count int64) []string {
	now := time.Now().Unix()
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.gen.insert(phrase, count, now, now)
}

// Remove deletes a phrase and returns the touched prefixes.
func (ix *Index) Remove(phrase string) ([]string, error) {
	now := time.Now().Unix()
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.gen.remove(phrase, now)
}

// Contains reports whether phrase is a terminal in the live generation.
func (ix *Index) Contains(phrase string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := ix.gen.walk(phrase)
	return n != nil && n.terminal
}

// MaxCount returns the index-wide maximum phrase count, used by the
// ranker's popularity normalization.
func (ix *Index) MaxCount() int64 {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.gen.maxCount
}

// Stats returns counters for the live generation.
func (ix *Index) Stats() IndexStats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return IndexStats{
		PhraseCount: ix.gen.phraseCount,
		NodeCount:   ix.gen.nodeCount,
		MaxDepth:    ix.gen.maxDepth,
		MaxCount:    ix.gen.maxCount,
	}
}

// CheckInvariants validates every node's top-K cache. An error here is
// ErrFatalInvariant and should trigger a forced rebuild.
func (ix *Index) CheckInvariants() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.gen.checkInvariants(time.Now().Unix())
}

// swap atomically replaces the live generation. From a reader's point
// of view a lookup sees either entirely the old or entirely the new
// generation; the old one is released once its last reader unlocks.
func (ix *Index) swap(g *generation) {
	ix.mu.Lock()
	ix.gen = g
	ix.mu.Unlock()
}
