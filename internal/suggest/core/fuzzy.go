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

import "sort"

// DefaultFuzzyBudget caps how many fuzzy candidates a single lookup may
// collect before giving up the exploration.
const DefaultFuzzyBudget = 50

// LookupFuzzy performs a bounded single-edit exploration around the
// tail of the prefix: dropping the last code point, substituting it
// with a sibling edge, inserting an edge before it, or transposing the
// last two. Candidates are tagged with Distance=1 so the ranker can
// apply the match penalty. Results already reachable by the exact
// prefix are excluded; the exploration stops at budget candidates.
func (ix *Index) LookupFuzzy(prefix string, limit, budget int, filtered func(string) bool) []Candidate {
	if limit <= 0 {
		return nil
	}
	if limit > ix.k {
		limit = ix.k
	}
	if budget <= 0 {
		budget = DefaultFuzzyBudget
	}
	runes := []rune(prefix)
	if len(runes) == 0 {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	head := string(runes[:len(runes)-1])
	last := runes[len(runes)-1]

	variants := make(map[string]struct{})
	addVariant := func(v string) {
		if v != "" && v != prefix {
			variants[v] = struct{}{}
		}
	}

	// Deletion: the user typed one character too many.
	addVariant(head)
	// Transposition of the last two code points.
	if len(runes) >= 2 {
		swapped := make([]rune, len(runes))
		copy(swapped, runes)
		swapped[len(swapped)-2], swapped[len(swapped)-1] = swapped[len(swapped)-1], swapped[len(swapped)-2]
		addVariant(string(swapped))
	}
	// Substitution and insertion are trie-guided: only edges that
	// actually exist become variants, keeping the exploration cheap.
	if parent := ix.gen.walk(head); parent != nil {
		for r := range parent.children {
			if r != last {
				addVariant(head + string(r)) // substitute tail
			}
			addVariant(head + string(r) + string(last)) // insert before tail
		}
	}

	exact := make(map[string]struct{})
	if n := ix.gen.walk(prefix); n != nil {
		for _, e := range n.topK {
			exact[e.phrase] = struct{}{}
		}
	}

	seen := make(map[string]struct{})
	var out []Candidate
	for v := range variants {
		n := ix.gen.walk(v)
		if n == nil {
			continue
		}
		for _, e := range n.topK {
			if _, dup := seen[e.phrase]; dup {
				continue
			}
			if _, ex := exact[e.phrase]; ex {
				continue
			}
			if filtered != nil && filtered(e.phrase) {
				continue
			}
			seen[e.phrase] = struct{}{}
			out = append(out, Candidate{Phrase: e.phrase, Count: e.count, LastUpdated: e.updated, Distance: 1})
			if len(out) >= budget {
				break
			}
		}
		if len(out) >= budget {
			break
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Phrase < out[j].Phrase
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
