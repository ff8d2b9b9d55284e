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

package expiry

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepEvictsOnlyDueEntries(t *testing.T) {
	t.Parallel()

	now := time.Now()
	var index Index[string]
	for i, d := range []time.Duration{15 * time.Second, 5 * time.Second, 10 * time.Second} {
		require.True(t, index.Add(NewEntry(d.String(), uint64(i), now.Add(d))))
	}

	evicted := index.Sweep(now.Add(12*time.Second), nil)
	assert.Equal(t, []string{"5s", "10s"}, evicted)
	assert.Equal(t, 1, index.Len())

	// Nothing else is due yet.
	assert.Empty(t, index.Sweep(now.Add(12*time.Second), nil))
	assert.Equal(t, []string{"15s"}, index.Sweep(now.Add(15*time.Second), nil))
	assert.Zero(t, index.Len())
}

func TestTiesBrokenBySequence(t *testing.T) {
	t.Parallel()

	deadline := time.Now()
	var index Index[int]
	for _, seq := range []uint64{3, 1, 2} {
		index.Add(NewEntry(int(seq), seq, deadline))
	}
	assert.Equal(t, []int{1, 2, 3}, index.Sweep(deadline, nil))
}

func TestSweepReschedules(t *testing.T) {
	t.Parallel()

	now := time.Now()
	var index Index[string]
	stale := NewEntry("stale", 1, now.Add(time.Second))
	plain := NewEntry("plain", 2, now.Add(2*time.Second))
	index.Add(stale)
	index.Add(plain)

	extendTo := now.Add(time.Minute)
	extend := func(v string) (time.Time, bool) {
		if v == "stale" {
			return extendTo, true
		}
		return time.Time{}, false
	}

	evicted := index.Sweep(now.Add(3*time.Second), extend)
	assert.Equal(t, []string{"plain"}, evicted)
	require.True(t, index.Contains(stale))
	assert.Equal(t, extendTo, index.Deadline(stale))

	// An extension that is not in the future evicts.
	evicted = index.Sweep(now.Add(2*time.Minute), extend)
	assert.Equal(t, []string{"stale"}, evicted)
	assert.False(t, index.Contains(stale))
}

func TestAddAndRemoveAreIdempotent(t *testing.T) {
	t.Parallel()

	var index Index[string]
	e := NewEntry("a", 1, time.Now())
	assert.True(t, index.Add(e))
	assert.False(t, index.Add(e))
	assert.Equal(t, 1, index.Len())

	assert.True(t, index.Remove(e))
	assert.False(t, index.Remove(e))
	assert.Zero(t, index.Len())
}

func TestRemoveFromMiddle(t *testing.T) {
	t.Parallel()

	now := time.Now()
	var index Index[int]
	entries := make([]*Entry[int], 10)
	for i := range entries {
		entries[i] = NewEntry(i, uint64(i), now.Add(time.Duration(i)*time.Second))
		index.Add(entries[i])
	}
	for _, i := range []int{7, 2, 5} {
		require.True(t, index.Remove(entries[i]))
	}
	assert.Equal(t, []int{0, 1, 3, 4, 6, 8, 9}, index.Sweep(now.Add(time.Hour), nil))
}

func TestConcurrentSweepsEvictOnce(t *testing.T) {
	t.Parallel()

	const count = 1000
	now := time.Now()
	var index Index[int]
	entries := make([]*Entry[int], count)
	for i := range entries {
		entries[i] = NewEntry(i, uint64(i), now.Add(-time.Duration(i)*time.Millisecond))
		index.Add(entries[i])
	}

	var (
		wg       sync.WaitGroup
		evicted  atomic.Int64
		removed  atomic.Int64
		seenMu   sync.Mutex
		seenOnce = map[int]int{}
	)
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			values := index.Sweep(now, nil)
			evicted.Add(int64(len(values)))
			seenMu.Lock()
			defer seenMu.Unlock()
			for _, v := range values {
				seenOnce[v]++
			}
		}()
		go func() {
			defer wg.Done()
			// Racing removals of entries that a sweep may already have
			// evicted must be harmless.
			for _, e := range entries[:100] {
				if index.Remove(e) {
					removed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(count), evicted.Load()+removed.Load())
	for v, n := range seenOnce {
		assert.Equal(t, 1, n, "value %d evicted more than once", v)
	}
	assert.Zero(t, index.Len())
}
