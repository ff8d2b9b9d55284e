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
	"fmt"
	"time"

	"github.com/bufbuild/hostcache/cache"
	"github.com/bufbuild/hostcache/config"
	"github.com/bufbuild/hostcache/resolver"
	"go.uber.org/zap"
)

// Option is an option used to customize the behavior of a Service.
type Option interface {
	apply(*serviceOptions)
}

// WithPolicy configures how long lookup results are cached. If not
// specified, [cache.DefaultPolicy] is used.
func WithPolicy(policy cache.Policy) Option {
	return optionFunc(func(opts *serviceOptions) {
		opts.policy = policy
	})
}

// WithLookupPolicy configures the address families that names resolve to.
// If not specified, all families are used, in the order the resolver
// returns them.
func WithLookupPolicy(policy resolver.LookupPolicy) Option {
	return optionFunc(func(opts *serviceOptions) {
		opts.lookupPolicy = policy
	})
}

// WithLogger configures the logger used to report resolver failures. If
// not specified, nothing is logged.
func WithLogger(logger *zap.Logger) Option {
	return optionFunc(func(opts *serviceOptions) {
		opts.logger = logger
	})
}

// WithMetrics configures the collectors that the cache updates. See
// [cache.NewMetrics].
func WithMetrics(metrics *cache.Metrics) Option {
	return optionFunc(func(opts *serviceOptions) {
		opts.metrics = metrics
	})
}

// WithSweepInterval starts a goroutine that removes expired results from
// the cache at the given interval. Without it, expired results are removed
// only as the service is used. The goroutine is stopped by Service.Close.
func WithSweepInterval(interval time.Duration) Option {
	return optionFunc(func(opts *serviceOptions) {
		opts.sweepInterval = interval
	})
}

// ConfigOptions returns the options described by the cache and resolver
// sections of cfg.
func ConfigOptions(cfg *config.Config) ([]Option, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	lookupPolicy, err := cfg.LookupPolicy()
	if err != nil {
		return nil, err
	}
	if cfg.Cache.SweepInterval < 0 {
		return nil, fmt.Errorf("invalid sweep interval %d", cfg.Cache.SweepInterval)
	}
	return []Option{
		WithPolicy(policy),
		WithLookupPolicy(lookupPolicy),
		WithSweepInterval(time.Duration(cfg.Cache.SweepInterval) * time.Second),
	}, nil
}

type optionFunc func(*serviceOptions)

func (f optionFunc) apply(opts *serviceOptions) {
	f(opts)
}

type serviceOptions struct {
	policy        cache.Policy
	lookupPolicy  resolver.LookupPolicy
	logger        *zap.Logger
	metrics       *cache.Metrics
	sweepInterval time.Duration
}

func newServiceOptions(options []Option) serviceOptions {
	opts := serviceOptions{
		policy: cache.DefaultPolicy(),
		logger: nopLogger,
	}
	for _, option := range options {
		option.apply(&opts)
	}
	if opts.logger == nil {
		opts.logger = nopLogger
	}
	return opts
}
