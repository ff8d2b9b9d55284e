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

package cache

import (
	"errors"

	"github.com/bufbuild/hostcache/resolver"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors updated by a Cache. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	lookups       *prometheus.CounterVec
	resolverCalls *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	evictions     prometheus.Counter
	entries       prometheus.Gauge
}

// NewMetrics creates the cache collectors and registers them with reg. Use
// prometheus.WrapRegistererWithPrefix to namespace them.
//
// The collectors are:
//   - lookups_total{result}: cache lookups by result, one of "hit", "stale",
//     "miss" (the caller performed the lookup) or "shared" (the caller reused
//     a lookup performed by another caller).
//   - resolver_calls_total{result}: resolver calls by result, one of
//     "success", "unknown_host", "transient", "panic" or "canceled".
//   - refreshes_total{result}: stale refreshes by result, "success" or
//     "failure".
//   - evictions_total: records removed because they expired.
//   - entries: records currently cached.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lookups_total",
			Help: "The total number of cache lookups, by result.",
		}, []string{"result"}),
		resolverCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "resolver_calls_total",
			Help: "The total number of calls to the resolver, by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refreshes_total",
			Help: "The total number of stale record refreshes, by result.",
		}, []string{"result"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "evictions_total",
			Help: "The total number of expired records evicted.",
		}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "entries",
			Help: "The number of cached records.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		metrics.lookups,
		metrics.resolverCalls,
		metrics.refreshes,
		metrics.evictions,
		metrics.entries,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}
	return metrics, nil
}

func (m *Metrics) lookup(result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(result).Inc()
}

func (m *Metrics) resolverCall(err error, panicked, canceled bool) {
	if m == nil {
		return
	}
	var result string
	switch {
	case panicked:
		result = "panic"
	case canceled:
		result = "canceled"
	case err == nil:
		result = "success"
	case errors.Is(err, resolver.ErrUnknownHost):
		result = "unknown_host"
	default:
		result = "transient"
	}
	m.resolverCalls.WithLabelValues(result).Inc()
}

func (m *Metrics) refresh(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) evicted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.evictions.Add(float64(n))
}

func (m *Metrics) setEntries(n int64) {
	if m == nil {
		return
	}
	m.entries.Set(float64(n))
}
