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

import "testing"

func TestLookupFuzzy_Substitution(t *testing.T) {
	ix := NewIndex(10)
	ix.Insert("javascript", 10)
	ix.Insert("java", 5)

	// "jx" has no exact matches; substituting the tail finds "ja".
	got := ix.LookupFuzzy("jx", 10, 50, nil)
	if len(got) == 0 {
		t.Fatal("LookupFuzzy(jx) found nothing")
	}
	for _, c := range got {
		if c.Distance != 1 {
			t.Errorf("candidate %q has Distance=%d, want 1", c.Phrase, c.Distance)
		}
	}
	if got[0].Phrase != "javascript" {
		t.Errorf("fuzzy top = %q, want javascript (highest count)", got[0].Phrase)
	}
}

func TestLookupFuzzy_Transposition(t *testing.T) {
	ix := NewIndex(10)
	ix.Insert("java", 5)

	got := ix.LookupFuzzy("aj", 10, 50, nil)
	found := false
	for _, c := range got {
		if c.Phrase == "java" {
			found = true
		}
	}
	if !found {
		t.Fatalf("LookupFuzzy(aj) = %v, want java via transposition", phrasesOf(got))
	}
}

func TestLookupFuzzy_Deletion(t *testing.T) {
	ix := NewIndex(10)
	ix.Insert("go", 5)

	// "goq" typed one char too many; dropping the tail matches "go".
	got := ix.LookupFuzzy("goq", 10, 50, nil)
	found := false
	for _, c := range got {
		if c.Phrase == "go" {
			found = true
		}
	}
	if !found {
		t.Fatalf("LookupFuzzy(goq) = %v, want go via deletion", phrasesOf(got))
	}
}

// Phrases already reachable via the exact prefix must not resurface as
// fuzzy candidates.
func TestLookupFuzzy_ExcludesExactMatches(t *testing.T) {
	ix := NewIndex(10)
	ix.Insert("java", 5)
	ix.Insert("jazz", 3)

	got := ix.LookupFuzzy("ja", 10, 50, nil)
	for _, c := range got {
		if c.Phrase == "java" || c.Phrase == "jazz" {
			t.Errorf("exact-prefix phrase %q returned as fuzzy candidate", c.Phrase)
		}
	}
}

func TestLookupFuzzy_RespectsFilterAndLimit(t *testing.T) {
	ix := NewIndex(10)
	ix.Insert("apple", 10)
	ix.Insert("april", 8)
	ix.Insert("army", 6)

	filtered := func(p string) bool { return p == "apple" }
	got := ix.LookupFuzzy("ax", 1, 50, filtered)
	if len(got) > 1 {
		t.Fatalf("limit=1 returned %d candidates", len(got))
	}
	for _, c := range got {
		if c.Phrase == "apple" {
			t.Error("filtered phrase returned")
		}
	}
}

func TestLookupFuzzy_EmptyPrefix(t *testing.T) {
	ix := NewIndex(10)
	ix.Insert("java", 5)
	if got := ix.LookupFuzzy("", 10, 50, nil); len(got) != 0 {
		t.Fatalf("LookupFuzzy(empty) = %v, want nothing", phrasesOf(got))
	}
}
