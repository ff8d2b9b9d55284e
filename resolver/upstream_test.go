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
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpstreamResolver(t *testing.T) {
	t.Parallel()

	records := map[string][]string{
		"example.com.": {
			"example.com. 60 IN A 192.0.2.1",
			"example.com. 60 IN AAAA 2001:db8::1",
			"example.com. 60 IN A 192.0.2.2",
		},
		"v4only.example.com.": {
			"v4only.example.com. 60 IN A 192.0.2.10",
		},
		"1.2.0.192.in-addr.arpa.": {
			"1.2.0.192.in-addr.arpa. 60 IN PTR host.example.com.",
		},
	}
	addr := startDNSServer(t, func(w dns.ResponseWriter, req *dns.Msg) {
		resp := new(dns.Msg)
		resp.SetReply(req)
		question := req.Question[0]
		switch question.Name {
		case "nx.example.com.":
			resp.Rcode = dns.RcodeNameError
		case "fail.example.com.":
			resp.Rcode = dns.RcodeServerFailure
		default:
			for _, text := range records[question.Name] {
				rr, err := dns.NewRR(text)
				if err != nil {
					t.Errorf("bad record %q: %v", text, err)
					continue
				}
				if rr.Header().Rrtype == question.Qtype {
					resp.Answer = append(resp.Answer, rr)
				}
			}
		}
		_ = w.WriteMsg(resp)
	})

	resolver, err := NewUpstreamResolver(UpstreamConfig{Addr: addr, Timeout: 2 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, addr, resolver.Addr())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	addrs, err := resolver.LookupByName(ctx, "example.com", AllFamilies)
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{
		netip.MustParseAddr("192.0.2.1"),
		netip.MustParseAddr("192.0.2.2"),
		netip.MustParseAddr("2001:db8::1"),
	}, addrs)

	addrs, err = resolver.LookupByName(ctx, "example.com", RequireIPv6)
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("2001:db8::1")}, addrs)

	addrs, err = resolver.LookupByName(ctx, "v4only.example.com", PreferIPv6)
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("192.0.2.10")}, addrs)

	_, err = resolver.LookupByName(ctx, "v4only.example.com", RequireIPv6)
	require.ErrorIs(t, err, ErrUnknownHost)

	_, err = resolver.LookupByName(ctx, "nx.example.com", AllFamilies)
	require.ErrorIs(t, err, ErrUnknownHost)

	_, err = resolver.LookupByName(ctx, "fail.example.com", AllFamilies)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrUnknownHost)
	assert.Contains(t, err.Error(), "SERVFAIL")

	name, err := resolver.LookupByAddress(ctx, netip.MustParseAddr("192.0.2.1"))
	require.NoError(t, err)
	assert.Equal(t, "host.example.com", name)

	_, err = resolver.LookupByAddress(ctx, netip.MustParseAddr("192.0.2.99"))
	require.ErrorIs(t, err, ErrUnknownHost)
}

func TestNewUpstreamResolver(t *testing.T) {
	t.Parallel()

	resolver, err := NewUpstreamResolver(UpstreamConfig{Addr: "192.0.2.53"})
	require.NoError(t, err)
	assert.Equal(t, "192.0.2.53:53", resolver.Addr())

	resolver, err = NewUpstreamResolver(UpstreamConfig{Addr: "[2001:db8::53]", Net: "tcp"})
	require.NoError(t, err)
	assert.Equal(t, "[2001:db8::53]:53", resolver.Addr())

	_, err = NewUpstreamResolver(UpstreamConfig{})
	require.Error(t, err)
	_, err = NewUpstreamResolver(UpstreamConfig{Addr: "192.0.2.53", Net: "quic"})
	require.Error(t, err)
}

func startDNSServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        conn,
		Handler:           handler,
		NotifyStartedFunc: func() { close(started) },
	}
	go func() {
		_ = server.ActivateAndServe()
	}()
	t.Cleanup(func() {
		_ = server.Shutdown()
	})
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("dns server did not start")
	}
	return conn.LocalAddr().String()
}
