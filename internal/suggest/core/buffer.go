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
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBufferCapacity bounds the ingestion buffer.
const DefaultBufferCapacity = 10000

// Event is one pending search occurrence. Phrase is already
// normalized; UserID and SessionID may be empty.
type Event struct {
	Phrase    string
	UserID    string
	SessionID string
	At        time.Time
	retries   int
}

// Buffer is the bounded ingestion queue between request handlers and
// the flusher. Submit never blocks: on overflow the oldest entry is
// dropped and the overflow counter incremented. A single consumer
// drains it in batches.
type Buffer struct {
	mu       sync.Mutex
	entries  []Event
	capacity int
	overflow atomic.Int64
	notify   chan struct{}
}

// NewBuffer creates a buffer with the given capacity
// (DefaultBufferCapacity when capacity <= 0).
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Buffer{
		entries:  make([]Event, 0, capacity),
		capacity: capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Submit enqueues an event. It returns in bounded time regardless of
// consumer state; a full buffer drops its oldest entry.
func (b *Buffer) Submit(e Event) {
	b.mu.Lock()
	if len(b.entries) >= b.capacity {
		dropped := len(b.entries) - b.capacity + 1
		b.entries = b.entries[dropped:]
		b.overflow.Add(int64(dropped))
	}
	b.entries = append(b.entries, e)
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Drain removes and returns up to max entries, oldest first.
func (b *Buffer) Drain(max int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return nil
	}
	n := len(b.entries)
	if max > 0 && n > max {
		n = max
	}
	out := make([]Event, n)
	copy(out, b.entries[:n])
	b.entries = append(b.entries[:0], b.entries[n:]...)
	return out
}

// Requeue puts entries back at the front of the queue, preserving
// their order. Used when a flush is cancelled or fails transiently.
// The capacity bound still applies and drops from the front, oldest
// first, same as Submit.
func (b *Buffer) Requeue(entries []Event) {
	if len(entries) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	merged := make([]Event, 0, len(entries)+len(b.entries))
	merged = append(merged, entries...)
	merged = append(merged, b.entries...)
	if len(merged) > b.capacity {
		dropped := len(merged) - b.capacity
		b.overflow.Add(int64(dropped))
		merged = merged[dropped:]
	}
	b.entries = merged
}

// Len returns the number of pending entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Overflow returns how many entries have been dropped so far.
func (b *Buffer) Overflow() int64 { return b.overflow.Load() }

// Notify exposes the wakeup channel the flusher selects on. It carries
// at most one pending signal.
func (b *Buffer) Notify() <-chan struct{} { return b.notify }
