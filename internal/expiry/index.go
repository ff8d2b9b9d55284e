// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package expiry provides an index of entries ordered by deadline, used to
// find everything that has expired without scanning the whole cache.
package expiry

import (
	"container/heap"
	"sync"
	"time"
)

// Entry is a single member of an Index. The deadline of an entry is owned by
// the index it belongs to and may only change while the index lock is held,
// so it is fixed when the entry is created and updated only by Sweep.
//
// An entry may belong to at most one Index.
type Entry[V any] struct {
	Value V

	seq      uint64
	deadline time.Time
	pos      int // -1 when not in an index
}

// NewEntry creates an entry for value that expires at deadline. Ties between
// equal deadlines are broken by seq, lower first.
func NewEntry[V any](value V, seq uint64, deadline time.Time) *Entry[V] {
	return &Entry[V]{
		Value:    value,
		seq:      seq,
		deadline: deadline,
		pos:      -1,
	}
}

// Index is an ordered set of entries keyed by (deadline, seq). It is safe for
// concurrent use. The lock is held for single insert, remove and sweep steps,
// never across a whole sweep or a callback into the caller's code other than
// the extend function given to Sweep.
type Index[V any] struct {
	mu sync.Mutex
	// +checklocks:mu
	entries entryHeap[V]
}

// Add adds e to the index. It returns false if e is already present.
func (x *Index[V]) Add(e *Entry[V]) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if e.pos != -1 {
		return false
	}
	heap.Push(&x.entries, e)
	return true
}

// Remove removes e from the index. Removing an entry that is not present,
// for example because a concurrent sweep already evicted it, is a no-op that
// returns false.
func (x *Index[V]) Remove(e *Entry[V]) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if e.pos == -1 {
		return false
	}
	heap.Remove(&x.entries, e.pos)
	return true
}

// Contains reports whether e is currently in the index.
func (x *Index[V]) Contains(e *Entry[V]) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return e.pos != -1
}

// Deadline returns the deadline under which e is currently indexed.
func (x *Index[V]) Deadline(e *Entry[V]) time.Time {
	x.mu.Lock()
	defer x.mu.Unlock()
	return e.deadline
}

// Len returns the number of indexed entries.
func (x *Index[V]) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}

// Sweep walks the index from the earliest deadline and stops at the first
// entry whose deadline is still in the future. For each due entry, extend (if
// not nil) may return a later deadline; when that deadline is after now the
// entry is rescheduled, otherwise it is removed. The values of removed
// entries are returned in deadline order.
//
// Each due entry is handled by exactly one concurrent sweeper: a value is
// never returned from two Sweep calls.
func (x *Index[V]) Sweep(now time.Time, extend func(V) (time.Time, bool)) []V {
	var evicted []V
	for {
		v, removed, more := x.sweepStep(now, extend)
		if removed {
			evicted = append(evicted, v)
		}
		if !more {
			return evicted
		}
	}
}

func (x *Index[V]) sweepStep(now time.Time, extend func(V) (time.Time, bool)) (value V, removed, more bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if len(x.entries) == 0 {
		return value, false, false
	}
	e := x.entries[0]
	if now.Before(e.deadline) {
		return value, false, false
	}
	if extend != nil {
		if next, ok := extend(e.Value); ok && now.Before(next) {
			e.deadline = next
			heap.Fix(&x.entries, 0)
			return value, false, true
		}
	}
	heap.Pop(&x.entries)
	return e.Value, true, true
}

type entryHeap[V any] []*Entry[V]

func (h entryHeap[V]) Len() int { return len(h) }

func (h entryHeap[V]) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h entryHeap[V]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i
	h[j].pos = j
}

func (h *entryHeap[V]) Push(x any) {
	e := x.(*Entry[V]) //nolint:forcetypeassert,errcheck
	e.pos = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap[V]) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.pos = -1
	*h = old[:n-1]
	return e
}
