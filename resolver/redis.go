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

package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/go-redis/redis/v8"
)

// RedisStore is the subset of [redis.Cmdable] used by RedisResolver. Both
// *redis.Client and *redis.ClusterClient implement it.
type RedisStore interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisResolver resolves names from a directory kept in Redis, typically
// maintained by some other system (like a service registry). A name maps
// to a set of address strings stored under
//
//	<prefix>name:<lower-case name>
//
// and an address maps to a name stored as a string under
//
//	<prefix>addr:<address>
type RedisResolver struct {
	store  RedisStore
	prefix string
}

var _ Resolver = (*RedisResolver)(nil)

// NewRedisResolver creates a resolver that reads from store, using keys
// that start with keyPrefix.
func NewRedisResolver(store RedisStore, keyPrefix string) *RedisResolver {
	return &RedisResolver{store: store, prefix: keyPrefix}
}

// LookupByName implements Resolver. Since the addresses are kept in a set,
// they are returned in ascending order. Members that are not valid
// addresses are ignored.
func (r *RedisResolver) LookupByName(ctx context.Context, host string, policy LookupPolicy) ([]netip.Addr, error) {
	members, err := r.store.SMembers(ctx, r.prefix+"name:"+strings.ToLower(host)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read addresses of %s from redis, %w", host, err)
	}
	addresses := make([]netip.Addr, 0, len(members))
	for _, member := range members {
		if addr, err := netip.ParseAddr(member); err == nil {
			addresses = append(addresses, addr)
		}
	}
	slices.SortFunc(addresses, netip.Addr.Compare)
	addresses = ApplyPolicy(addresses, policy)
	if len(addresses) == 0 {
		return nil, &UnknownHostError{Host: host}
	}
	return addresses, nil
}

// LookupByAddress implements Resolver.
func (r *RedisResolver) LookupByAddress(ctx context.Context, addr netip.Addr) (string, error) {
	name, err := r.store.Get(ctx, r.prefix+"addr:"+addr.Unmap().String()).Result()
	if errors.Is(err, redis.Nil) || (err == nil && name == "") {
		return "", &UnknownHostError{Host: addr.String()}
	}
	if err != nil {
		return "", fmt.Errorf("failed to read name of %s from redis, %w", addr, err)
	}
	return name, nil
}
