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
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bufbuild/hostcache/internal"
	"github.com/bufbuild/hostcache/internal/expiry"
	"github.com/bufbuild/hostcache/resolver"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals
var nopLogger = zap.NewNop()

// errRetry is returned internally when a slot changed under a caller, which
// then starts over.
var errRetry = errors.New("retry")

// panicError is a recovered resolver panic.
type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("resolver panic: %v", e.value)
}

// Config configures a Cache.
type Config struct {
	// Policy controls how long results are cached.
	Policy Policy
	// LookupPolicy is passed to the resolver on every lookup.
	LookupPolicy resolver.LookupPolicy
	// Logger, if not nil, is used to log resolver failures and evictions.
	Logger *zap.Logger
	// Metrics, if not nil, is updated by the cache.
	Metrics *Metrics
	// SweepInterval, if positive, starts a goroutine that removes expired
	// records at this interval, in addition to the removal done on every
	// call to Get. Close stops it.
	SweepInterval time.Duration
}

// Cache maps host names to the addresses they resolve to, performing lookups
// with a resolver.Resolver on a miss.
//
// For each host, at most one lookup is in progress at a time: callers that
// ask for a host while it is being looked up wait for that lookup and share
// its result. Callers for different hosts never wait on each other.
type Cache struct {
	resolver      resolver.Resolver
	policy        Policy
	lookupPolicy  resolver.LookupPolicy
	logger        *zap.Logger
	metrics       *Metrics
	clock         internal.Clock
	sweepInterval time.Duration

	// slots maps each host to a *pending or a *Record.
	slots   sync.Map
	index   expiry.Index[*Record]
	records atomic.Int64

	closeOnce sync.Once
	closing   chan struct{}
	closed    chan struct{}
}

// New creates a cache that resolves names with res.
func New(res resolver.Resolver, config Config) (*Cache, error) {
	return newCache(res, config, internal.NewRealClock())
}

func newCache(res resolver.Resolver, config Config, clock internal.Clock) (*Cache, error) {
	if res == nil {
		return nil, errors.New("resolver is required")
	}
	if err := config.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache policy, %w", err)
	}
	logger := config.Logger
	if logger == nil {
		logger = nopLogger
	}
	cache := &Cache{
		resolver:      res,
		policy:        config.Policy,
		lookupPolicy:  config.LookupPolicy,
		logger:        logger,
		metrics:       config.Metrics,
		clock:         clock,
		sweepInterval: config.SweepInterval,
		closing:       make(chan struct{}),
		closed:        make(chan struct{}),
	}
	if cache.sweepInterval > 0 {
		go cache.janitor()
	} else {
		close(cache.closed)
	}
	return cache, nil
}

// Get returns the addresses of host. A cached result is returned when one
// is available under the cache policy, otherwise host is looked up with the
// resolver and the result is cached.
//
// Failures are reported with errors that match resolver.ErrUnknownHost,
// including unexpected resolver errors, which are wrapped in a
// *resolver.TransientError. When ctx is done before a result is available,
// the error returned reports that and nothing is cached. The returned slice
// belongs to the caller.
func (c *Cache) Get(ctx context.Context, host string) ([]netip.Addr, error) {
	c.Sweep()
	for {
		value, ok := c.slots.Load(host)
		if !ok {
			value, _ = c.slots.LoadOrStore(host, newPending())
		}
		var addrs []netip.Addr
		var err error
		switch value := value.(type) {
		case *pending:
			addrs, err = c.await(ctx, host, value)
		case *Record:
			addrs, err = c.serve(ctx, value)
		}
		if !errors.Is(err, errRetry) {
			return addrs, err
		}
	}
}

// Peek returns the record cached for host without looking it up. It returns
// false while host is being looked up or is not cached.
func (c *Cache) Peek(host string) (*Record, bool) {
	value, ok := c.slots.Load(host)
	if !ok {
		return nil, false
	}
	rec, ok := value.(*Record)
	return rec, ok
}

// Invalidate removes what is cached for host. A lookup of host in progress
// is not interrupted, and callers already waiting for it share its result,
// but the result is not cached. The next lookup of host starts after it
// completes.
func (c *Cache) Invalidate(host string) {
	for {
		value, ok := c.slots.Load(host)
		if !ok {
			return
		}
		switch value := value.(type) {
		case *pending:
			value.invalidated.Store(true)
			// The lookup may have installed its record before seeing the
			// flag, in which case that record is removed next time round.
			if actual, ok := c.slots.Load(host); !ok || actual == value {
				return
			}
		case *Record:
			if c.slots.CompareAndDelete(host, value) {
				if value.entry != nil {
					c.index.Remove(value.entry)
				}
				c.metrics.setEntries(c.records.Add(-1))
				return
			}
		}
	}
}

// Sweep removes records whose expiry, including any stale window, has
// passed. It returns the number of records removed. Sweep is called by Get,
// so calling it directly is only needed to release memory sooner.
func (c *Cache) Sweep() int {
	now := c.clock.Now()
	var count int
	for _, rec := range c.index.Sweep(now, (*Record).staleDeadline) {
		if c.slots.CompareAndDelete(rec.host, rec) {
			count++
			c.metrics.setEntries(c.records.Add(-1))
		}
	}
	if count > 0 {
		c.metrics.evicted(count)
		c.logger.Debug("evicted expired records", zap.Int("count", count))
	}
	return count
}

// Len returns the number of cached records. Lookups in progress are not
// counted.
func (c *Cache) Len() int {
	return int(c.records.Load())
}

// Close stops the background sweep, if one was started. The cache remains
// usable after Close.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		close(c.closing)
	})
	<-c.closed
	return nil
}

// await handles a host whose slot holds placeholder p. It returns errRetry
// when the caller has to start over because the slot changed.
func (c *Cache) await(ctx context.Context, host string, p *pending) ([]netip.Addr, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	defer p.release()

	if p.outcome != nil {
		c.metrics.lookup("shared")
		return p.outcome.result()
	}
	// The placeholder may have been removed without an outcome by a caller
	// that gave up. Re-install it and look up, unless something else took
	// its place. Nothing was cached, so an earlier Invalidate is satisfied.
	p.invalidated.Store(false)
	if actual, loaded := c.slots.LoadOrStore(host, p); loaded && actual != p {
		return nil, errRetry
	}

	c.metrics.lookup("miss")
	addrs, err := c.resolve(ctx, host)
	if err != nil && ctx.Err() != nil {
		c.slots.CompareAndDelete(host, p)
		return nil, err
	}
	p.outcome = &outcome{addrs: addrs, err: err}
	rec := newRecord(host, addrs, err, c.clock.Now(), c.policy)
	switch {
	case rec == nil, p.invalidated.Load():
		c.slots.CompareAndDelete(host, p)
	case c.slots.CompareAndSwap(host, p, rec):
		if rec.entry != nil {
			c.index.Add(rec.entry)
		}
		c.metrics.setEntries(c.records.Add(1))
	}
	return p.outcome.result()
}

// serve returns the result of a completed record. A record that has fully
// expired is evicted and errRetry is returned.
func (c *Cache) serve(ctx context.Context, rec *Record) ([]netip.Addr, error) {
	now := c.clock.Now()
	switch rec.freshness(now) {
	case fresh:
		c.metrics.lookup("hit")
		return rec.result()
	case staleServable:
		c.metrics.lookup("stale")
		addrs := rec.Addrs()
		c.refresh(ctx, rec, now)
		return addrs, nil
	default:
		c.evict(rec)
		return nil, errRetry
	}
}

// refresh looks up a stale record again, unless another caller is already
// doing so. Failures leave the stale addresses in place.
func (c *Cache) refresh(ctx context.Context, rec *Record, now time.Time) {
	if !rec.refreshing.TryLock() {
		return
	}
	defer rec.refreshing.Unlock()
	refreshAt, due := rec.beginRefresh(now, c.policy.PositiveTTL)
	if !due {
		return
	}
	addrs, err := c.resolve(ctx, rec.host)
	c.metrics.refresh(err)
	if err != nil {
		c.logger.Debug("failed to refresh stale record", zap.String("host", rec.host), zap.Error(err))
		return
	}
	rec.completeRefresh(addrs, refreshAt.Add(c.policy.StaleTTL))
}

func (c *Cache) evict(rec *Record) {
	if rec.entry != nil {
		c.index.Remove(rec.entry)
	}
	if c.slots.CompareAndDelete(rec.host, rec) {
		c.metrics.setEntries(c.records.Add(-1))
	}
}

// resolve performs a lookup with the resolver and classifies its outcome.
// The name "localhost" always resolves, to the loopback address if the
// resolver has no answer for it. A lookup cut short by ctx is not an answer.
func (c *Cache) resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	addrs, err := c.callResolver(ctx, host)
	var panicErr *panicError
	canceled := err != nil && ctx.Err() != nil
	c.metrics.resolverCall(err, errors.As(err, &panicErr), canceled)
	if err == nil && len(addrs) == 0 {
		err = &resolver.UnknownHostError{Host: host}
	}
	if err != nil && !canceled && strings.EqualFold(host, "localhost") {
		return []netip.Addr{resolver.Loopback()}, nil
	}
	if err != nil {
		return nil, c.lookupError(host, err)
	}
	return slices.Clone(addrs), nil
}

func (c *Cache) callResolver(ctx context.Context, host string) (addrs []netip.Addr, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("recovered resolver panic", zap.String("host", host), zap.Any("panic", r))
			addrs, err = nil, &panicError{value: r}
		}
	}()
	return c.resolver.LookupByName(ctx, host, c.lookupPolicy)
}

func (c *Cache) lookupError(host string, err error) error {
	if errors.Is(err, resolver.ErrUnknownHost) {
		return err
	}
	var transient *resolver.TransientError
	if !errors.As(err, &transient) {
		transient = &resolver.TransientError{Err: err}
	}
	var panicErr *panicError
	if !errors.As(err, &panicErr) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		c.logger.Warn("resolver failed", zap.String("host", host), zap.Error(err))
	}
	return &resolver.UnknownHostError{Host: host, Err: transient}
}

func (c *Cache) janitor() {
	defer close(c.closed)
	ticker := c.clock.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			c.Sweep()
		case <-c.closing:
			return
		}
	}
}
