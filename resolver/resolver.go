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
	"fmt"
	"net/netip"
	"strings"
)

// LookupPolicy is an option that controls which addresses to consider when
// resolving, based on their address family.
type LookupPolicy int

const (
	// AllFamilies will result in all addresses being used, regardless of
	// their address family, in the order the resolver produced them.
	AllFamilies LookupPolicy = iota

	// PreferIPv4 will result in only IPv4 addresses being used, if any
	// IPv4 addresses are present. If no IPv4 addresses are resolved, then
	// all addresses will be used.
	PreferIPv4

	// PreferIPv6 will result in only IPv6 addresses being used, if any
	// IPv6 addresses are present. If no IPv6 addresses are resolved, then
	// all addresses will be used.
	PreferIPv6

	// RequireIPv4 will result in only IPv4 addresses being used. If no IPv4
	// addresses are present, no addresses will be resolved.
	RequireIPv4

	// RequireIPv6 will result in only IPv6 addresses being used. If no IPv6
	// addresses are present, no addresses will be resolved.
	RequireIPv6
)

func (p LookupPolicy) String() string {
	switch p {
	case AllFamilies:
		return "all"
	case PreferIPv4:
		return "prefer-ipv4"
	case PreferIPv6:
		return "prefer-ipv6"
	case RequireIPv4:
		return "require-ipv4"
	case RequireIPv6:
		return "require-ipv6"
	default:
		return fmt.Sprintf("LookupPolicy(%d)", int(p))
	}
}

// ParseLookupPolicy parses the names produced by LookupPolicy.String. An
// empty string is AllFamilies.
func ParseLookupPolicy(name string) (LookupPolicy, error) {
	switch strings.ToLower(name) {
	case "", "all":
		return AllFamilies, nil
	case "prefer-ipv4":
		return PreferIPv4, nil
	case "prefer-ipv6":
		return PreferIPv6, nil
	case "require-ipv4":
		return RequireIPv4, nil
	case "require-ipv6":
		return RequireIPv6, nil
	}
	return AllFamilies, fmt.Errorf("unknown lookup policy %q", name)
}

// network returns the network name understood by [net.Resolver.LookupNetIP].
func (p LookupPolicy) network() string {
	switch p {
	case RequireIPv4:
		return "ip4"
	case RequireIPv6:
		return "ip6"
	default:
		return "ip"
	}
}

// Resolver performs name resolution against some external source of truth,
// like DNS or a hosts file. Lookups may be slow.
//
// Implementations must be safe for concurrent use. Callers that cache
// results (like the cache package) never invoke LookupByName concurrently
// for the same host, but do so freely for different hosts.
type Resolver interface {
	// LookupByName resolves host into its addresses, filtered and ordered
	// according to the given policy. When the name does not exist or has no
	// addresses, an error satisfying errors.Is(err, ErrUnknownHost) is
	// returned. Any other error is treated as transient by callers.
	LookupByName(ctx context.Context, host string, policy LookupPolicy) ([]netip.Addr, error)

	// LookupByAddress resolves addr into a host name. When there is no
	// mapping, an error satisfying errors.Is(err, ErrUnknownHost) is
	// returned.
	LookupByAddress(ctx context.Context, addr netip.Addr) (string, error)
}

// Loopback returns the IPv4 loopback address, which is the fallback answer
// for the "localhost" name.
func Loopback() netip.Addr {
	return netip.AddrFrom4([4]byte{127, 0, 0, 1})
}

// ApplyPolicy returns the addresses that satisfy the given policy, in their
// original order. IPv4 addresses embedded in IPv6 are unmapped first. The
// given slice is not modified.
func ApplyPolicy(addrs []netip.Addr, policy LookupPolicy) []netip.Addr {
	result := make([]netip.Addr, 0, len(addrs))
	for _, addr := range addrs {
		result = append(result, addr.Unmap())
	}
	switch policy {
	case PreferIPv4, RequireIPv4:
		ip4Addresses := filter(result, netip.Addr.Is4)
		if len(ip4Addresses) > 0 || policy == RequireIPv4 {
			return ip4Addresses
		}
	case PreferIPv6, RequireIPv6:
		ip6Addresses := filter(result, netip.Addr.Is6)
		if len(ip6Addresses) > 0 || policy == RequireIPv6 {
			return ip6Addresses
		}
	case AllFamilies:
	}
	return result
}

func filter(addrs []netip.Addr, keep func(netip.Addr) bool) []netip.Addr {
	var kept []netip.Addr
	for _, addr := range addrs {
		if keep(addr) {
			kept = append(kept, addr)
		}
	}
	return kept
}

// AddrFromRaw converts an address in network byte order into a netip.Addr.
// The slice must be 4 or 16 bytes long.
func AddrFromRaw(raw []byte) (netip.Addr, error) {
	if len(raw) != 4 && len(raw) != 16 {
		return netip.Addr{}, &InvalidInputError{
			Input:  fmt.Sprintf("%x", raw),
			Reason: fmt.Sprintf("invalid address length %d", len(raw)),
		}
	}
	addr, _ := netip.AddrFromSlice(raw)
	return addr, nil
}
