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

// Package config loads the configuration of a hostcache service from a YAML
// file and the environment.
//
// Every setting can be overridden by an environment variable named after its
// key, upper-cased, with dots replaced by underscores and a HOSTCACHE_
// prefix. For example, cache.positive_ttl is overridden by
// HOSTCACHE_CACHE_POSITIVE_TTL.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/bufbuild/hostcache/cache"
	"github.com/bufbuild/hostcache/internal/mlog"
	"github.com/bufbuild/hostcache/resolver"
	"github.com/go-redis/redis/v8"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix is the prefix of environment variables that override settings.
const EnvPrefix = "HOSTCACHE"

// Config is the configuration of a hostcache service.
type Config struct {
	Log      mlog.Config    `yaml:"log"`
	Cache    CacheConfig    `yaml:"cache"`
	Resolver ResolverConfig `yaml:"resolver"`
	API      APIConfig      `yaml:"api"`
}

// CacheConfig configures the cache policy. TTLs are in seconds, where -1
// means forever and 0 means never.
type CacheConfig struct {
	PositiveTTL int `yaml:"positive_ttl"`
	NegativeTTL int `yaml:"negative_ttl"`
	// StaleTTL enables stale-while-revalidate when positive.
	StaleTTL int `yaml:"stale_ttl"`
	// SweepInterval, in seconds, enables a background sweep when positive.
	SweepInterval int `yaml:"sweep_interval"`
}

// ResolverConfig selects and configures the resolver.
type ResolverConfig struct {
	// Type is one of "system", "upstream", "hosts" or "redis".
	Type string `yaml:"type"`
	// LookupPolicy is the name of a resolver.LookupPolicy, like
	// "prefer-ipv4".
	LookupPolicy string         `yaml:"lookup_policy"`
	Upstream     UpstreamConfig `yaml:"upstream"`
	HostsFile    string         `yaml:"hosts_file"`
	Redis        RedisConfig    `yaml:"redis"`
}

// UpstreamConfig configures the "upstream" resolver.
type UpstreamConfig struct {
	Addr string `yaml:"addr"`
	Net  string `yaml:"net"`
	// Timeout is in seconds.
	Timeout int `yaml:"timeout"`
}

// RedisConfig configures the "redis" resolver.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	DB        int    `yaml:"db"`
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"key_prefix"`
}

// APIConfig configures the HTTP API of "hostcache serve".
type APIConfig struct {
	HTTP string `yaml:"http"`
}

// defaults lists every key, so that each can be overridden from the
// environment even when absent from the file.
//
//nolint:gochecknoglobals
var defaults = map[string]any{
	"log.level":                 "",
	"log.file":                  "",
	"log.production":            false,
	"cache.positive_ttl":        30,
	"cache.negative_ttl":        10,
	"cache.stale_ttl":           0,
	"cache.sweep_interval":      0,
	"resolver.type":             "system",
	"resolver.lookup_policy":    "all",
	"resolver.upstream.addr":    "",
	"resolver.upstream.net":     "udp",
	"resolver.upstream.timeout": 5,
	"resolver.hosts_file":       "/etc/hosts",
	"resolver.redis.addr":       "localhost:6379",
	"resolver.redis.db":         0,
	"resolver.redis.password":   "",
	"resolver.redis.key_prefix": "hostcache:",
	"api.http":                  "",
}

// Load loads the configuration in the file at filePath, with overrides from
// the environment. If filePath is empty, only defaults and the environment
// are used.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if len(filePath) > 0 {
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config, %w", err)
		}
	}

	decoderOpt := func(cfg *mapstructure.DecoderConfig) {
		cfg.ErrorUnused = true
		cfg.TagName = "yaml"
		cfg.WeaklyTypedInput = true
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg, decoderOpt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config, %w", err)
	}
	return cfg, nil
}

// Policy returns the cache policy.
func (c *Config) Policy() (cache.Policy, error) {
	policy := cache.Policy{
		PositiveTTL: ttl(c.Cache.PositiveTTL),
		NegativeTTL: ttl(c.Cache.NegativeTTL),
		StaleTTL:    ttl(c.Cache.StaleTTL),
	}
	if err := policy.Validate(); err != nil {
		return cache.Policy{}, err
	}
	return policy, nil
}

// LookupPolicy returns the address family policy of the resolver.
func (c *Config) LookupPolicy() (resolver.LookupPolicy, error) {
	return resolver.ParseLookupPolicy(c.Resolver.LookupPolicy)
}

// NewResolver creates the configured resolver. The returned closer releases
// its resources and must be called once the resolver is no longer used.
func (c *Config) NewResolver(logger *zap.Logger) (resolver.Resolver, io.Closer, error) {
	switch c.Resolver.Type {
	case "", "system":
		return resolver.NewSystemResolver(nil), nopCloser{}, nil
	case "upstream":
		upstream, err := resolver.NewUpstreamResolver(resolver.UpstreamConfig{
			Addr:    c.Resolver.Upstream.Addr,
			Net:     c.Resolver.Upstream.Net,
			Timeout: time.Duration(c.Resolver.Upstream.Timeout) * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init upstream resolver, %w", err)
		}
		return upstream, nopCloser{}, nil
	case "hosts":
		hosts, err := resolver.NewHostsFile(c.Resolver.HostsFile, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init hosts file resolver, %w", err)
		}
		return hosts, hosts, nil
	case "redis":
		if c.Resolver.Redis.Addr == "" {
			return nil, nil, errors.New("redis address is required")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     c.Resolver.Redis.Addr,
			DB:       c.Resolver.Redis.DB,
			Password: c.Resolver.Redis.Password,
		})
		return resolver.NewRedisResolver(client, c.Resolver.Redis.KeyPrefix), client, nil
	default:
		return nil, nil, fmt.Errorf("unknown resolver type %q", c.Resolver.Type)
	}
}

func ttl(seconds int) time.Duration {
	if seconds == -1 {
		return cache.Forever
	}
	return time.Duration(seconds) * time.Second
}

type nopCloser struct{}

func (nopCloser) Close() error {
	return nil
}
