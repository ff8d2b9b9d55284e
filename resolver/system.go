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
	"net"
	"net/netip"
	"strings"
)

// SystemResolver resolves names using a [net.Resolver], which consults the
// operating system's configuration (hosts file, resolv.conf) and DNS.
type SystemResolver struct {
	resolver *net.Resolver
}

var _ Resolver = (*SystemResolver)(nil)

// NewSystemResolver creates a resolver backed by the given net.Resolver. If
// resolver is nil, [net.DefaultResolver] is used.
func NewSystemResolver(resolver *net.Resolver) *SystemResolver {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &SystemResolver{resolver: resolver}
}

// LookupByName implements Resolver.
func (r *SystemResolver) LookupByName(ctx context.Context, host string, policy LookupPolicy) ([]netip.Addr, error) {
	addresses, err := r.resolver.LookupNetIP(ctx, policy.network(), host)
	if err != nil {
		return nil, systemError(host, err)
	}
	addresses = ApplyPolicy(addresses, policy)
	if len(addresses) == 0 {
		return nil, &UnknownHostError{Host: host}
	}
	return addresses, nil
}

// LookupByAddress implements Resolver.
func (r *SystemResolver) LookupByAddress(ctx context.Context, addr netip.Addr) (string, error) {
	names, err := r.resolver.LookupAddr(ctx, addr.String())
	if err != nil {
		return "", systemError(addr.String(), err)
	}
	if len(names) == 0 {
		return "", &UnknownHostError{Host: addr.String()}
	}
	return strings.TrimSuffix(names[0], "."), nil
}

// systemError classifies a net.Resolver error. Only definitive "not found"
// answers become UnknownHostError, everything else is left for the caller
// to treat as transient.
func systemError(host string, err error) error {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return &UnknownHostError{Host: host, Err: err}
	}
	return err
}
