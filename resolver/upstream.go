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
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/sync/errgroup"
)

const defaultUpstreamTimeout = 5 * time.Second

// UpstreamConfig configures an UpstreamResolver.
type UpstreamConfig struct {
	// Addr is the address of the DNS server. If it has no port, 53 is used.
	Addr string
	// Net is the transport for queries, "udp" (the default) or "tcp".
	// Truncated UDP answers are always retried over TCP.
	Net string
	// Timeout bounds each query. Defaults to 5 seconds.
	Timeout time.Duration
}

// UpstreamResolver queries a single DNS server directly, without going
// through the operating system's resolver configuration.
type UpstreamResolver struct {
	addr      string
	client    *dns.Client
	tcpClient *dns.Client
}

var _ Resolver = (*UpstreamResolver)(nil)

// NewUpstreamResolver creates a resolver that sends queries to the DNS server
// described by config.
func NewUpstreamResolver(config UpstreamConfig) (*UpstreamResolver, error) {
	if config.Addr == "" {
		return nil, errors.New("upstream address is required")
	}
	addr := config.Addr
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(strings.Trim(addr, "[]"), "53")
	}
	switch config.Net {
	case "":
		config.Net = "udp"
	case "udp", "tcp":
	default:
		return nil, fmt.Errorf("unsupported upstream network %q", config.Net)
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultUpstreamTimeout
	}
	return &UpstreamResolver{
		addr:      addr,
		client:    &dns.Client{Net: config.Net, Timeout: config.Timeout},
		tcpClient: &dns.Client{Net: "tcp", Timeout: config.Timeout},
	}, nil
}

// Addr returns the address of the DNS server.
func (r *UpstreamResolver) Addr() string {
	return r.addr
}

// LookupByName implements Resolver. A and AAAA queries are sent in parallel
// unless the policy requires a single family. IPv4 answers come first.
func (r *UpstreamResolver) LookupByName(ctx context.Context, host string, policy LookupPolicy) ([]netip.Addr, error) {
	var qtypes []uint16
	switch policy {
	case RequireIPv4:
		qtypes = []uint16{dns.TypeA}
	case RequireIPv6:
		qtypes = []uint16{dns.TypeAAAA}
	default:
		qtypes = []uint16{dns.TypeA, dns.TypeAAAA}
	}

	results := make([][]netip.Addr, len(qtypes))
	grp, grpCtx := errgroup.WithContext(ctx)
	for i, qtype := range qtypes {
		grp.Go(func() error {
			addresses, err := r.queryAddresses(grpCtx, host, qtype)
			results[i] = addresses
			return err
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	var addresses []netip.Addr
	for _, result := range results {
		addresses = append(addresses, result...)
	}
	addresses = ApplyPolicy(addresses, policy)
	if len(addresses) == 0 {
		return nil, &UnknownHostError{Host: host}
	}
	return addresses, nil
}

// LookupByAddress implements Resolver using a PTR query.
func (r *UpstreamResolver) LookupByAddress(ctx context.Context, addr netip.Addr) (string, error) {
	name, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return "", &InvalidInputError{Input: addr.String(), Reason: err.Error()}
	}
	msg := new(dns.Msg)
	msg.SetQuestion(name, dns.TypePTR)
	resp, err := r.exchange(ctx, msg)
	if err != nil {
		return "", err
	}
	if err := r.checkRcode(addr.String(), resp); err != nil {
		return "", err
	}
	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", &UnknownHostError{Host: addr.String()}
}

func (r *UpstreamResolver) queryAddresses(ctx context.Context, host string, qtype uint16) ([]netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), qtype)
	resp, err := r.exchange(ctx, msg)
	if err != nil {
		return nil, err
	}
	if err := r.checkRcode(host, resp); err != nil {
		return nil, err
	}
	var addresses []netip.Addr
	for _, rr := range resp.Answer {
		var ip net.IP
		switch rr := rr.(type) {
		case *dns.A:
			ip = rr.A
		case *dns.AAAA:
			ip = rr.AAAA
		default:
			continue
		}
		if addr, ok := netip.AddrFromSlice(ip); ok {
			addresses = append(addresses, addr.Unmap())
		}
	}
	return addresses, nil
}

func (r *UpstreamResolver) exchange(ctx context.Context, msg *dns.Msg) (*dns.Msg, error) {
	resp, _, err := r.client.ExchangeContext(ctx, msg, r.addr)
	if err == nil && resp.Truncated && r.client.Net != "tcp" {
		resp, _, err = r.tcpClient.ExchangeContext(ctx, msg, r.addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query upstream %s, %w", r.addr, err)
	}
	return resp, nil
}

func (r *UpstreamResolver) checkRcode(host string, resp *dns.Msg) error {
	switch resp.Rcode {
	case dns.RcodeSuccess:
		return nil
	case dns.RcodeNameError:
		return &UnknownHostError{Host: host, Err: fmt.Errorf("upstream %s answered NXDOMAIN", r.addr)}
	default:
		return fmt.Errorf("upstream %s answered %s", r.addr, dns.RcodeToString[resp.Rcode])
	}
}
