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
	"testing"

	"github.com/bufbuild/hostcache/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHost(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		host    string
		addr    netip.Addr
		literal bool
		invalid bool
	}{
		{name: "empty", host: "", addr: resolver.Loopback(), literal: true},
		{name: "ipv4", host: "192.0.2.1", addr: netip.MustParseAddr("192.0.2.1"), literal: true},
		{name: "ipv6", host: "2001:db8::1", addr: netip.MustParseAddr("2001:db8::1"), literal: true},
		{name: "bracketed_ipv6", host: "[2001:db8::1]", addr: netip.MustParseAddr("2001:db8::1"), literal: true},
		{name: "mapped_ipv4", host: "::ffff:192.0.2.1", addr: netip.MustParseAddr("192.0.2.1"), literal: true},
		{name: "name", host: "www.example.com"},
		{name: "fqdn", host: "www.example.com."},
		{name: "single_label", host: "localhost"},
		{name: "bracketed_ipv4", host: "[192.0.2.1]", invalid: true},
		{name: "unclosed_bracket", host: "[2001:db8::1", invalid: true},
		{name: "bracketed_name", host: "[example.com]", invalid: true},
		{name: "nul", host: "example.com\x00.evil", invalid: true},
		{name: "empty_label", host: "www..example.com", invalid: true},
		{name: "long_label", host: strings.Repeat("a", 64) + ".example.com", invalid: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			addr, literal, err := parseHost(testCase.host)
			if testCase.invalid {
				require.ErrorIs(t, err, resolver.ErrInvalidInput)
				var inputErr *resolver.InvalidInputError
				require.ErrorAs(t, err, &inputErr)
				assert.Equal(t, testCase.host, inputErr.Input)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.literal, literal)
			assert.Equal(t, testCase.addr, addr)
		})
	}
}
