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
	"net/netip"
	"strings"

	"github.com/bufbuild/hostcache/resolver"
	"github.com/miekg/dns"
)

// parseHost checks host before it is looked up. It returns the address and
// true if host needs no lookup.
func parseHost(host string) (netip.Addr, bool, error) {
	if host == "" {
		return resolver.Loopback(), true, nil
	}
	if strings.IndexByte(host, 0) >= 0 {
		return netip.Addr{}, false, &resolver.InvalidInputError{Input: host, Reason: "contains NUL character"}
	}
	if strings.HasPrefix(host, "[") {
		addr, err := netip.ParseAddr(strings.TrimSuffix(host[1:], "]"))
		if !strings.HasSuffix(host, "]") || err != nil || !addr.Is6() {
			return netip.Addr{}, false, &resolver.InvalidInputError{Input: host, Reason: "malformed IPv6 literal"}
		}
		return addr.Unmap(), true, nil
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap(), true, nil
	}
	if _, ok := dns.IsDomainName(host); !ok {
		return netip.Addr{}, false, &resolver.InvalidInputError{Input: host, Reason: "invalid domain name"}
	}
	return netip.Addr{}, false, nil
}
