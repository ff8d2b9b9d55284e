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

// Package resolvertest provides a scriptable implementation of
// resolver.Resolver for testing code that performs lookups.
package resolvertest

import (
	"context"
	"net/netip"
	"sync"

	"github.com/bufbuild/hostcache/resolver"
)

type answer struct {
	addrs []netip.Addr
	err   error
	panic any
}

// FakeResolver is an implementation of resolver.Resolver whose answers are
// set by test code. Hosts and addresses without an answer are unknown.
//
// It records how many lookups were made for each host and how many were in
// progress at once. Lookups can be held with Hold, so that tests can
// observe callers that are waiting on a lookup in progress.
type FakeResolver struct {
	lookups chan string

	mu sync.Mutex
	// +checklocks:mu
	answers map[string]answer
	// +checklocks:mu
	names map[netip.Addr]string
	// +checklocks:mu
	nameErrs map[netip.Addr]error
	// +checklocks:mu
	calls map[string]int
	// +checklocks:mu
	reverseCalls map[netip.Addr]int
	// +checklocks:mu
	inFlight map[string]int
	// +checklocks:mu
	maxInFlight map[string]int
	// +checklocks:mu
	gate chan struct{}
}

var _ resolver.Resolver = (*FakeResolver)(nil)

// NewFakeResolver constructs a new FakeResolver with no answers.
func NewFakeResolver() *FakeResolver {
	return &FakeResolver{
		lookups:      make(chan string, 1024),
		answers:      map[string]answer{},
		names:        map[netip.Addr]string{},
		nameErrs:     map[netip.Addr]error{},
		calls:        map[string]int{},
		reverseCalls: map[netip.Addr]int{},
		inFlight:     map[string]int{},
		maxInFlight:  map[string]int{},
	}
}

// SetAddrs sets the addresses that host resolves to.
func (r *FakeResolver) SetAddrs(host string, addrs ...netip.Addr) {
	r.setAnswer(host, answer{addrs: addrs})
}

// SetError makes lookups of host fail with err.
func (r *FakeResolver) SetError(host string, err error) {
	r.setAnswer(host, answer{err: err})
}

// SetPanic makes lookups of host panic with value.
func (r *FakeResolver) SetPanic(host string, value any) {
	r.setAnswer(host, answer{panic: value})
}

// SetName sets the name that addr resolves to.
func (r *FakeResolver) SetName(addr netip.Addr, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[addr] = name
	delete(r.nameErrs, addr)
}

// SetNameError makes lookups of addr fail with err.
func (r *FakeResolver) SetNameError(addr netip.Addr, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nameErrs[addr] = err
}

func (r *FakeResolver) setAnswer(host string, ans answer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.answers[host] = ans
}

// Hold causes subsequent lookups by name to block until Release is called
// or their context is done.
func (r *FakeResolver) Hold() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gate == nil {
		r.gate = make(chan struct{})
	}
}

// Release unblocks all held lookups.
func (r *FakeResolver) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gate != nil {
		close(r.gate)
		r.gate = nil
	}
}

// AwaitLookup waits for a held lookup by name to start and returns its
// host. Lookups that were not held are not reported.
func (r *FakeResolver) AwaitLookup(ctx context.Context) (string, error) {
	select {
	case host := <-r.lookups:
		return host, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Calls returns the number of lookups by name made for host.
func (r *FakeResolver) Calls(host string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[host]
}

// ReverseCalls returns the number of lookups by address made for addr.
func (r *FakeResolver) ReverseCalls(addr netip.Addr) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reverseCalls[addr]
}

// MaxInFlight returns the largest number of lookups for host that were
// ever in progress at the same time.
func (r *FakeResolver) MaxInFlight(host string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxInFlight[host]
}

// LookupByName implements resolver.Resolver.
func (r *FakeResolver) LookupByName(ctx context.Context, host string, policy resolver.LookupPolicy) ([]netip.Addr, error) {
	r.mu.Lock()
	r.calls[host]++
	r.inFlight[host]++
	r.maxInFlight[host] = max(r.maxInFlight[host], r.inFlight[host])
	gate := r.gate
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inFlight[host]--
		r.mu.Unlock()
	}()

	if gate != nil {
		select {
		case r.lookups <- host:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	ans, ok := r.answers[host]
	r.mu.Unlock()
	switch {
	case !ok:
		return nil, &resolver.UnknownHostError{Host: host}
	case ans.panic != nil:
		panic(ans.panic) //nolint:forbidigo // simulates a misbehaving resolver
	case ans.err != nil:
		return nil, ans.err
	}
	addrs := resolver.ApplyPolicy(ans.addrs, policy)
	if len(addrs) == 0 {
		return nil, &resolver.UnknownHostError{Host: host}
	}
	return addrs, nil
}

// LookupByAddress implements resolver.Resolver.
func (r *FakeResolver) LookupByAddress(ctx context.Context, addr netip.Addr) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reverseCalls[addr]++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := r.nameErrs[addr]; err != nil {
		return "", err
	}
	name, ok := r.names[addr]
	if !ok {
		return "", &resolver.UnknownHostError{Host: addr.String()}
	}
	return name, nil
}
