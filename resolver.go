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
	"sync"
	"sync/atomic"

	"github.com/bufbuild/hostcache/config"
	"github.com/bufbuild/hostcache/resolver"
	"go.uber.org/zap"
)

// ResolverProvider constructs the resolver used by the process-wide service.
// It may itself resolve names (for example, to find a DNS server by name):
// those lookups use the system resolver.
type ResolverProvider func() (resolver.Resolver, error)

// ErrDefaultResolverInitialized is returned by SetResolverProvider once the
// default resolver has been constructed.
var ErrDefaultResolverInitialized = errors.New("default resolver already initialized")

//nolint:gochecknoglobals
var (
	bootstrapResolver resolver.Resolver = resolver.NewSystemResolver(nil)

	providerMu sync.Mutex
	// +checklocks:providerMu
	provider ResolverProvider
	// +checklocks:providerMu
	providerUsed bool

	// initializing is set while the provider runs. Lookups made in that
	// window, including by the provider itself, use the bootstrap resolver
	// and service instead of waiting for the provider.
	initializing atomic.Bool

	defaultResolver  = sync.OnceValue(newDefaultResolver)
	defaultService   = sync.OnceValues(newDefaultService)
	bootstrapService = sync.OnceValues(newBootstrapService)
)

// SetResolverProvider registers the function that constructs the resolver
// used by the process-wide service. It must be called before the first use
// of DefaultResolver, Default, Resolve or ReverseResolve, otherwise
// ErrDefaultResolverInitialized is returned.
func SetResolverProvider(p ResolverProvider) error {
	providerMu.Lock()
	defer providerMu.Unlock()
	if providerUsed {
		return ErrDefaultResolverInitialized
	}
	provider = p
	return nil
}

// DefaultResolver returns the process-wide resolver. The first call
// constructs it with the provider registered by SetResolverProvider. If no
// provider was registered, or the provider fails, the system resolver is
// used.
func DefaultResolver() resolver.Resolver {
	if initializing.Load() {
		return bootstrapResolver
	}
	return defaultResolver()
}

// Default returns the process-wide service. It uses DefaultResolver, and its
// cache policy is read from the environment with config.Load.
//
// While the resolver provider runs, Default returns a separate service over
// the system resolver, so the provider may itself call Resolve.
func Default() (*Service, error) {
	if initializing.Load() {
		return bootstrapService()
	}
	// The provider must run outside defaultService, which it may re-enter.
	DefaultResolver()
	return defaultService()
}

// Resolve resolves host with the process-wide service. See Service.Resolve.
func Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	service, err := Default()
	if err != nil {
		return nil, err
	}
	return service.Resolve(ctx, host)
}

// ReverseResolve resolves addr with the process-wide service. See
// Service.ReverseResolve.
func ReverseResolve(ctx context.Context, addr netip.Addr) (string, error) {
	service, err := Default()
	if err != nil {
		return "", err
	}
	return service.ReverseResolve(ctx, addr)
}

func newDefaultResolver() resolver.Resolver {
	providerMu.Lock()
	providerUsed = true
	p := provider
	providerMu.Unlock()
	if p == nil {
		return bootstrapResolver
	}

	initializing.Store(true)
	defer initializing.Store(false)
	res, err := callProvider(p)
	if err != nil {
		zap.L().Warn("failed to construct default resolver, using system resolver", zap.Error(err))
		return bootstrapResolver
	}
	return res
}

func callProvider(p ResolverProvider) (res resolver.Resolver, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("resolver provider panic: %v", r)
		}
	}()
	res, err = p()
	if err == nil && res == nil {
		err = errors.New("resolver provider returned nil")
	}
	return res, err
}

func newDefaultService() (*Service, error) {
	return newEnvService(defaultResolver())
}

func newBootstrapService() (*Service, error) {
	return newEnvService(bootstrapResolver)
}

// newEnvService creates a service over res configured from the environment.
func newEnvService(res resolver.Resolver) (*Service, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, fmt.Errorf("failed to load default configuration, %w", err)
	}
	options, err := ConfigOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid default configuration, %w", err)
	}
	options = append(options, WithLogger(zap.L()))
	return New(res, options...)
}
