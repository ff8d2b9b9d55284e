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

package cache

import (
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bufbuild/hostcache/internal/expiry"
)

//nolint:gochecknoglobals
var recordSeq atomic.Uint64

// Record is the result of one lookup, as installed in a Cache. A record with
// a non-nil Err is negative and has no addresses.
//
// The addresses of a record in stale-while-revalidate mode are replaced in
// place when it is refreshed, so Addrs may change over the life of the
// record. Everything else is fixed when the record is created.
type Record struct {
	host    string
	seq     uint64
	err     error
	expires time.Time
	forever bool
	stale   bool
	entry   *expiry.Entry[*Record] // nil when forever

	// refreshing is held by the caller refreshing a stale record.
	refreshing sync.Mutex

	mu sync.Mutex
	// +checklocks:mu
	addrs []netip.Addr
	// +checklocks:mu
	refreshAt time.Time
	// +checklocks:mu
	staleAt time.Time
}

type freshness int

const (
	fresh freshness = iota
	staleServable
	expired
)

// newRecord creates the record for the outcome of a lookup at now. It
// returns nil if the policy says the outcome is not cached.
func newRecord(host string, addrs []netip.Addr, err error, now time.Time, policy Policy) *Record {
	ttl := policy.PositiveTTL
	if err != nil {
		ttl = policy.NegativeTTL
		addrs = nil
	}
	if ttl == Never {
		return nil
	}
	rec := &Record{
		host:  host,
		seq:   recordSeq.Add(1),
		err:   err,
		addrs: addrs,
	}
	if ttl < 0 {
		rec.forever = true
		return rec
	}
	rec.expires = now.Add(ttl)
	if err == nil && policy.staleEnabled() {
		rec.stale = true
		rec.refreshAt = rec.expires
		rec.staleAt = rec.expires.Add(policy.StaleTTL)
	}
	rec.entry = expiry.NewEntry(rec, rec.seq, rec.expires)
	return rec
}

// Host returns the name the record was resolved for.
func (r *Record) Host() string {
	return r.host
}

// Addrs returns a copy of the record's current addresses.
func (r *Record) Addrs() []netip.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.addrs)
}

// Err returns the error of a negative record, or nil.
func (r *Record) Err() error {
	return r.err
}

// Expires returns the time at which the record stops being fresh. For a
// record that is cached forever, it returns the zero time and false.
func (r *Record) Expires() (time.Time, bool) {
	return r.expires, !r.forever
}

// StaleUntil returns the end of the stale window of a record in
// stale-while-revalidate mode. It returns false for any other record.
func (r *Record) StaleUntil() (time.Time, bool) {
	if !r.stale {
		return time.Time{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.staleAt, true
}

// Seq returns the record's creation sequence number. Sequence numbers are
// unique and increase in creation order.
func (r *Record) Seq() uint64 {
	return r.seq
}

func (r *Record) freshness(now time.Time) freshness {
	switch {
	case r.forever:
		return fresh
	case !r.stale:
		if now.Before(r.expires) {
			return fresh
		}
		return expired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case now.Before(r.refreshAt):
		return fresh
	case now.Before(r.staleAt):
		return staleServable
	default:
		return expired
	}
}

func (r *Record) result() ([]netip.Addr, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.Addrs(), nil
}

// staleDeadline is the extend function given to the expiry index: a record
// in stale-while-revalidate mode stays indexed until its stale window ends.
func (r *Record) staleDeadline() (time.Time, bool) {
	return r.StaleUntil()
}

// beginRefresh advances the refresh time of a stale record when it is due,
// so that a failing refresh is not retried until then. It reports whether a
// refresh is due and returns the new refresh time.
func (r *Record) beginRefresh(now time.Time, ttl time.Duration) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if now.Before(r.refreshAt) {
		return time.Time{}, false
	}
	r.refreshAt = now.Add(ttl)
	return r.refreshAt, true
}

func (r *Record) completeRefresh(addrs []netip.Addr, staleAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addrs = addrs
	r.staleAt = staleAt
}
