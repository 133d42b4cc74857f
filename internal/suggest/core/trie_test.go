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
	"errors"
	"sync"
	"testing"
)

func phrasesOf(cands []Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Phrase
	}
	return out
}

func TestIndex_InsertAndLookup(t *testing.T) {
	ix := NewIndex(10)
	ix.Insert("javascript", 5)
	ix.Insert("java", 10)
	ix.Insert("jazz", 2)

	got := ix.Lookup("ja", 10, nil)
	if len(got) != 3 {
		t.Fatalf("Lookup(ja) returned %d candidates, want 3: %v", len(got), phrasesOf(got))
	}
	// Highest count first when recency is equal.
	if got[0].Phrase != "java" || got[0].Count != 10 {
		t.Errorf("top candidate = %+v, want java/10", got[0])
	}

	if got := ix.Lookup("jav", 10, nil); len(got) != 1 || got[0].Phrase != "javascript" {
		t.Errorf("Lookup(jav) = %v, want [javascript]", phrasesOf(got))
	}
	if got := ix.Lookup("xyz", 10, nil); len(got) != 0 {
		t.Errorf("Lookup(xyz) = %v, want empty", phrasesOf(got))
	}
	if err := ix.CheckInvariants(); err != nil {
		t.Fatalf("invariants violated after inserts: %v", err)
	}
}

func TestIndex_LimitClamping(t *testing.T) {
	ix := NewIndex(3)
	for _, p := range []string{"aa", "ab", "ac", "ad", "ae"} {
		ix.Insert(p, 1)
	}
	// limit above K clamps to K without error.
	if got := ix.Lookup("a", 10, nil); len(got) != 3 {
		t.Fatalf("Lookup with limit>K returned %d, want K=3", len(got))
	}
	// limit=1 returns exactly the top candidate.
	if got := ix.Lookup("a", 1, nil); len(got) != 1 {
		t.Fatalf("Lookup limit=1 returned %d", len(got))
	}
}

// With equal counts and timestamps the shorter phrase wins the tie.
func TestIndex_TopKTieBreaks(t *testing.T) {
	ix := NewIndex(10)
	ix.Insert("weather radar", 10)
	ix.Insert("weather", 10)
	ix.Insert("weather forecast", 10)

	got := phrasesOf(ix.Lookup("weather", 3, nil))
	if len(got) != 3 || got[0] != "weather" {
		t.Fatalf("tie-break order = %v, want weather first", got)
	}
	if got[1] != "weather radar" || got[2] != "weather forecast" {
		t.Errorf("length tie-break = %v, want radar before forecast", got)
	}
}

func TestIndex_IncrementReordersTopK(t *testing.T) {
	ix := NewIndex(10)
	ix.Insert("react", 5)
	ix.Insert("recipe", 8)

	touched, err := ix.Increment("react", 10)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	// Every prefix of "react" plus the root can change; at minimum the
	// shared prefix nodes must be reported.
	if len(touched) == 0 {
		t.Fatal("Increment reported no touched prefixes")
	}
	got := phrasesOf(ix.Lookup("re", 2, nil))
	if got[0] != "react" {
		t.Errorf("after increment, top = %v, want react first", got)
	}
	if err := ix.CheckInvariants(); err != nil {
		t.Fatalf("invariants violated after increment: %v", err)
	}
}

func TestIndex_IncrementUnknownPhrase(t *testing.T) {
	ix := NewIndex(10)
	ix.Insert("java", 1)
	if _, err := ix.Increment("javascript", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Increment(unknown) = %v, want ErrNotFound", err)
	}
	// A prefix that exists but is not terminal is also not-found.
	if _, err := ix.Increment("ja", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Increment(non-terminal) = %v, want ErrNotFound", err)
	}
}

func TestIndex_RemoveRestoresState(t *testing.T) {
	ix := NewIndex(10)
	ix.Insert("java", 10)
	before := ix.Stats()
	beforeTop := phrasesOf(ix.Lookup("j", 10, nil))

	ix.Insert("javascript", 3)
	if _, err := ix.Remove("javascript"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	after := ix.Stats()
	if after.PhraseCount != before.PhraseCount || after.NodeCount != before.NodeCount {
		t.Errorf("stats not restored: before %+v after %+v", before, after)
	}
	afterTop := phrasesOf(ix.Lookup("j", 10, nil))
	if len(afterTop) != len(beforeTop) || afterTop[0] != beforeTop[0] {
		t.Errorf("top-K not restored: before %v after %v", beforeTop, afterTop)
	}
	if err := ix.CheckInvariants(); err != nil {
		t.Fatalf("invariants violated after remove: %v", err)
	}

	if _, err := ix.Remove("javascript"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Remove = %v, want ErrNotFound", err)
	}
}

func TestIndex_FilteredExcludedFromLookup(t *testing.T) {
	ix := NewIndex(10)
	ix.Insert("badword", 100)
	ix.Insert("badge", 1)

	filtered := func(p string) bool { return p == "badword" }
	got := phrasesOf(ix.Lookup("bad", 10, filtered))
	if len(got) != 1 || got[0] != "badge" {
		t.Fatalf("filtered lookup = %v, want [badge]", got)
	}
}

func TestIndex_Stats(t *testing.T) {
	ix := NewIndex(10)
	ix.Insert("ab", 1)
	ix.Insert("abc", 2)
	st := ix.Stats()
	if st.PhraseCount != 2 {
		t.Errorf("PhraseCount = %d, want 2", st.PhraseCount)
	}
	// root + a + b + c
	if st.NodeCount != 4 {
		t.Errorf("NodeCount = %d, want 4", st.NodeCount)
	}
	if st.MaxDepth != 3 {
		t.Errorf("MaxDepth = %d, want 3", st.MaxDepth)
	}
	if st.MaxCount != 2 {
		t.Errorf("MaxCount = %d, want 2", st.MaxCount)
	}
}

// The invariant check shares the read lock with lookups, so it must
// not write any node state. Run under -race this catches a checker
// that mutates top-K caches while a reader iterates them.
func TestIndex_CheckInvariantsConcurrentWithLookup(t *testing.T) {
	ix := NewIndex(5)
	words := []string{"go", "golang", "google", "gopher", "grid", "group"}
	for i, w := range words {
		ix.Insert(w, int64(i+1))
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				got := ix.Lookup("go", 5, nil)
				for _, c := range got {
					if c.Phrase == "" {
						t.Error("lookup observed a partially built top-K entry")
						return
					}
				}
			}
		}()
	}
	for i := 0; i < 100; i++ {
		if err := ix.CheckInvariants(); err != nil {
			t.Errorf("iteration %d: %v", i, err)
			break
		}
	}
	close(stop)
	wg.Wait()
}

// Every phrase in any node's top-K must be a terminal in that node's
// subtree; spot-check via the deep invariant checker over a larger set.
func TestIndex_InvariantsUnderChurn(t *testing.T) {
	ix := NewIndex(3)
	words := []string{
		"go", "golang", "google", "goose", "gopher",
		"grid", "grind", "group", "grow", "growth",
	}
	for i, w := range words {
		ix.Insert(w, int64(i+1))
	}
	for i, w := range words {
		if i%2 == 0 {
			if _, err := ix.Increment(w, int64(i*3)); err != nil {
				t.Fatalf("Increment(%s): %v", w, err)
			}
		}
	}
	if _, err := ix.Remove("goose"); err != nil {
		t.Fatalf("Remove(goose): %v", err)
	}
	if _, err := ix.Remove("grid"); err != nil {
		t.Fatalf("Remove(grid): %v", err)
	}
	if err := ix.CheckInvariants(); err != nil {
		t.Fatalf("invariants violated: %v", err)
	}
	if got := ix.Stats().PhraseCount; got != len(words)-2 {
		t.Errorf("PhraseCount = %d, want %d", got, len(words)-2)
	}
}
