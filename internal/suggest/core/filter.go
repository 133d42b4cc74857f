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

import "sync"

// Filter is the in-memory mirror of the persisted moderation set. It
// is consulted on every query and every ingest, so membership is a
// plain map read under a shared lock. Mutations go through the service,
// which writes persistence and the shared-cache mirror first and then
// updates this mirror.
type Filter struct {
	mu      sync.RWMutex
	phrases map[string]struct{}
}

// NewFilter returns an empty filter.
func NewFilter() *Filter {
	return &Filter{phrases: make(map[string]struct{})}
}

// Replace swaps the whole membership, used at boot and on refresh.
func (f *Filter) Replace(phrases []string) {
	next := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		next[p] = struct{}{}
	}
	f.mu.Lock()
	f.phrases = next
	f.mu.Unlock()
}

// Add marks a normalized phrase as filtered.
func (f *Filter) Add(phrase string) {
	f.mu.Lock()
	f.phrases[phrase] = struct{}{}
	f.mu.Unlock()
}

// Remove clears a phrase from the filter. Reports whether it was
// present.
func (f *Filter) Remove(phrase string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.phrases[phrase]; !ok {
		return false
	}
	delete(f.phrases, phrase)
	return true
}

// IsFiltered reports membership. O(1).
func (f *Filter) IsFiltered(phrase string) bool {
	f.mu.RLock()
	_, ok := f.phrases[phrase]
	f.mu.RUnlock()
	return ok
}

// Len returns the number of filtered phrases.
func (f *Filter) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.phrases)
}
