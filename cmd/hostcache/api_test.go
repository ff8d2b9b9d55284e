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

package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"testing"

	"github.com/bufbuild/hostcache"
	"github.com/bufbuild/hostcache/cache"
	"github.com/bufbuild/hostcache/internal/resolvertest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAPIHandler(t *testing.T) {
	t.Parallel()

	res := resolvertest.NewFakeResolver()
	addr := netip.MustParseAddr("192.0.2.1")
	res.SetAddrs("www.example.com", addr)
	res.SetName(addr, "www.example.com")
	registry := prometheus.NewRegistry()
	metrics, err := cache.NewMetrics(prometheus.WrapRegistererWithPrefix("hostcache_", registry))
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	service, err := hostcache.New(res, hostcache.WithLogger(logger), hostcache.WithMetrics(metrics))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, service.Close())
	})
	server := httptest.NewServer(newAPIHandler(service, registry, logger))
	t.Cleanup(server.Close)

	var resolved resolveResponse
	status := getJSON(t, server.URL+"/resolve?host=www.example.com", &resolved)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, resolveResponse{Host: "www.example.com", Addrs: []string{"192.0.2.1"}}, resolved)

	var reversed reverseResponse
	status = getJSON(t, server.URL+"/reverse?ip=192.0.2.1", &reversed)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, reverseResponse{IP: "192.0.2.1", Name: "www.example.com"}, reversed)

	for _, testCase := range []struct {
		path   string
		status int
	}{
		{"/resolve?host=missing.example.com", http.StatusNotFound},
		{"/resolve?host=" + url.QueryEscape("www..example.com"), http.StatusBadRequest},
		{"/reverse?ip=198.51.100.1", http.StatusNotFound},
		{"/reverse?ip=www.example.com", http.StatusBadRequest},
	} {
		var errResp errorResponse
		status = getJSON(t, server.URL+testCase.path, &errResp)
		assert.Equal(t, testCase.status, status, testCase.path)
		assert.NotEmpty(t, errResp.Error, testCase.path)
	}

	resp, err := http.Get(server.URL + "/metrics") //nolint:noctx
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `hostcache_lookups_total{result="miss"}`)
	assert.Contains(t, string(body), "hostcache_entries 2")
}

func getJSON(t *testing.T, target string, body any) int {
	t.Helper()

	resp, err := http.Get(target) //nolint:noctx
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(body))
	return resp.StatusCode
}
