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

package hostcache

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"slices"

	"github.com/bufbuild/hostcache/cache"
	"github.com/bufbuild/hostcache/resolver"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

//nolint:gochecknoglobals
var nopLogger = zap.NewNop()

// Service resolves host names to addresses through a cache, and addresses
// back to host names. It is safe for concurrent use.
type Service struct {
	resolver resolver.Resolver
	cache    *cache.Cache
	logger   *zap.Logger
	reverse  singleflight.Group
}

// New creates a service that performs lookups with res.
func New(res resolver.Resolver, options ...Option) (*Service, error) {
	opts := newServiceOptions(options)
	addrCache, err := cache.New(res, cache.Config{
		Policy:        opts.policy,
		LookupPolicy:  opts.lookupPolicy,
		Logger:        opts.logger,
		Metrics:       opts.metrics,
		SweepInterval: opts.sweepInterval,
	})
	if err != nil {
		return nil, err
	}
	return &Service{
		resolver: res,
		cache:    addrCache,
		logger:   opts.logger,
	}, nil
}

// Resolve returns the addresses of host. IP literals are returned as is.
// Other names are looked up through the cache.
//
// If host cannot be resolved, the error matches resolver.ErrUnknownHost. If
// host is not a valid name, the error matches resolver.ErrInvalidInput.
func (s *Service) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	addr, literal, err := parseHost(host)
	if err != nil {
		return nil, err
	}
	if literal {
		return []netip.Addr{addr}, nil
	}
	return s.cache.Get(ctx, host)
}

// ReverseResolve returns the host name of addr. The name is only returned
// if it resolves to addr in turn; otherwise the text form of addr is
// returned. If addr has no name, the error matches resolver.ErrUnknownHost.
//
// Concurrent calls for the same address share one lookup. Names of
// addresses are not cached, but the forward lookups used to confirm them
// are.
func (s *Service) ReverseResolve(ctx context.Context, addr netip.Addr) (string, error) {
	if !addr.IsValid() {
		return "", &resolver.InvalidInputError{Input: addr.String(), Reason: "invalid address"}
	}
	addr = addr.Unmap()
	results := s.reverse.DoChan(addr.String(), func() (any, error) {
		// The lookup is shared, so it must not be canceled by the first
		// caller giving up.
		return s.reverseResolve(context.WithoutCancel(ctx), addr)
	})
	select {
	case result := <-results:
		if result.Err != nil {
			return "", result.Err
		}
		return result.Val.(string), nil //nolint:forcetypeassert,errcheck
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate removes what is cached for host.
func (s *Service) Invalidate(host string) {
	s.cache.Invalidate(host)
}

// Len returns the number of hosts with a cached result.
func (s *Service) Len() int {
	return s.cache.Len()
}

// Close stops any background work of the service. The service remains
// usable after Close.
func (s *Service) Close() error {
	return s.cache.Close()
}

func (s *Service) reverseResolve(ctx context.Context, addr netip.Addr) (string, error) {
	name, err := s.lookupByAddress(ctx, addr)
	if err == nil && name == "" {
		err = &resolver.UnknownHostError{Host: addr.String()}
	}
	if err != nil {
		if errors.Is(err, resolver.ErrUnknownHost) {
			return "", err
		}
		s.logger.Warn("reverse lookup failed", zap.Stringer("addr", addr), zap.Error(err))
		var transient *resolver.TransientError
		if !errors.As(err, &transient) {
			transient = &resolver.TransientError{Err: err}
		}
		return "", &resolver.UnknownHostError{Host: addr.String(), Err: transient}
	}

	addrs, err := s.Resolve(ctx, name)
	if err != nil {
		s.logger.Debug("failed to confirm reverse lookup", zap.Stringer("addr", addr), zap.String("name", name), zap.Error(err))
		return addr.String(), nil
	}
	if !slices.Contains(addrs, addr) {
		s.logger.Debug("reverse lookup not confirmed", zap.Stringer("addr", addr), zap.String("name", name))
		return addr.String(), nil
	}
	return name, nil
}

func (s *Service) lookupByAddress(ctx context.Context, addr netip.Addr) (name string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("recovered resolver panic", zap.Stringer("addr", addr), zap.Any("panic", r))
			name, err = "", &resolver.TransientError{Err: fmt.Errorf("resolver panic: %v", r)}
		}
	}()
	return s.resolver.LookupByAddress(ctx, addr)
}
