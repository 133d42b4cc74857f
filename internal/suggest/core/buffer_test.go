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
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestBuffer_SubmitDrain(t *testing.T) {
	b := NewBuffer(10)
	b.Submit(Event{Phrase: "a", At: time.Now()})
	b.Submit(Event{Phrase: "b", At: time.Now()})
	b.Submit(Event{Phrase: "c", At: time.Now()})

	got := b.Drain(2)
	if len(got) != 2 || got[0].Phrase != "a" || got[1].Phrase != "b" {
		t.Fatalf("Drain(2) = %v, want oldest two in order", got)
	}
	if b.Len() != 1 {
		t.Errorf("Len = %d after partial drain, want 1", b.Len())
	}
	if rest := b.Drain(10); len(rest) != 1 || rest[0].Phrase != "c" {
		t.Errorf("second Drain = %v, want [c]", rest)
	}
	if got := b.Drain(10); got != nil {
		t.Errorf("Drain on empty = %v, want nil", got)
	}
}

func TestBuffer_OverflowDropsOldest(t *testing.T) {
	b := NewBuffer(3)
	for i := 0; i < 5; i++ {
		b.Submit(Event{Phrase: fmt.Sprintf("p%d", i)})
	}
	if b.Overflow() != 2 {
		t.Errorf("Overflow = %d, want 2", b.Overflow())
	}
	got := b.Drain(10)
	if len(got) != 3 {
		t.Fatalf("Drain = %d entries, want 3", len(got))
	}
	// Oldest were dropped; the newest three survive.
	if got[0].Phrase != "p2" || got[2].Phrase != "p4" {
		t.Errorf("surviving entries = %v, want p2..p4", got)
	}
}

func TestBuffer_RequeuePreservesOrder(t *testing.T) {
	b := NewBuffer(10)
	b.Submit(Event{Phrase: "later"})
	b.Requeue([]Event{{Phrase: "first"}, {Phrase: "second"}})

	got := b.Drain(10)
	if len(got) != 3 || got[0].Phrase != "first" || got[1].Phrase != "second" || got[2].Phrase != "later" {
		t.Fatalf("order after requeue = %v", got)
	}
}

func TestBuffer_RequeueRespectsCapacity(t *testing.T) {
	b := NewBuffer(2)
	b.Submit(Event{Phrase: "x"})
	b.Requeue([]Event{{Phrase: "a"}, {Phrase: "b"}})
	if b.Len() != 2 {
		t.Fatalf("Len = %d, want capacity 2", b.Len())
	}
	if b.Overflow() != 1 {
		t.Errorf("Overflow = %d, want 1", b.Overflow())
	}
	got := b.Drain(10)
	// Drop-oldest applies to requeues too: "a" is the oldest of the
	// merged queue and gives way.
	if got[0].Phrase != "b" || got[1].Phrase != "x" {
		t.Errorf("entries after bounded requeue = %v, want [b x]", got)
	}
}

func TestBuffer_NotifySignal(t *testing.T) {
	b := NewBuffer(10)
	select {
	case <-b.Notify():
		t.Fatal("notify fired before any submit")
	default:
	}
	b.Submit(Event{Phrase: "a"})
	select {
	case <-b.Notify():
	case <-time.After(time.Second):
		t.Fatal("notify did not fire after submit")
	}
}

func TestBuffer_ConcurrentSubmit(t *testing.T) {
	b := NewBuffer(1000)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				b.Submit(Event{Phrase: fmt.Sprintf("g%d-%d", g, i)})
			}
		}(g)
	}
	wg.Wait()
	if b.Len() != 800 {
		t.Fatalf("Len = %d after concurrent submits, want 800", b.Len())
	}
	if b.Overflow() != 0 {
		t.Errorf("Overflow = %d, want 0", b.Overflow())
	}
}
