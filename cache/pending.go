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
	"context"
	"net/netip"
	"slices"
	"sync/atomic"
)

// pending is the value of a cache slot while a lookup is in progress. The
// caller holding its lock performs the lookup, and every other caller for the
// same host waits for the lock.
type pending struct {
	// lock is a one-slot semaphore, so waiting for it can be abandoned.
	lock chan struct{}

	// outcome is only accessed while holding lock.
	outcome *outcome

	// invalidated is set by Cache.Invalidate. The lookup in progress is
	// shared with its waiters but not cached.
	invalidated atomic.Bool
}

// outcome is what a completed lookup returned, kept so that callers that
// waited on the placeholder reuse it instead of looking up again.
type outcome struct {
	addrs []netip.Addr
	err   error
}

func newPending() *pending {
	return &pending{lock: make(chan struct{}, 1)}
}

func (p *pending) acquire(ctx context.Context) error {
	select {
	case p.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pending) release() {
	<-p.lock
}

func (o *outcome) result() ([]netip.Addr, error) {
	if o.err != nil {
		return nil, o.err
	}
	return slices.Clone(o.addrs), nil
}
