/**
* Copyright 2018 Comcast Cable Communications Management, LLC
* Licensed under the Apache License, Version 2.0 (the "License");
* you may not use this file except in compliance with the License.
* You may obtain a copy of the License at
* http://www.apache.org/licenses/LICENSE-2.0
* Unless required by applicable law or agreed to in writing, software
* distributed under the License is distributed on an "AS IS" BASIS,
* WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
* See the License for the specific language governing permissions and
* limitations under the License.
 */

// Package metrics registers the Prometheus collectors tiercache exposes on
// its /metrics endpoint, in the WithLabelValues(...).Inc() call shape the
// teacher's proxy engines use against its own (unretrieved) metrics package.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace is the Prometheus metric namespace prefix, set from config at startup.
var Namespace = "tiercache"

var (
	// CacheRequestStatus counts every tier.Coordinator.Get lookup by namespace,
	// tier ("local", "remote"), and outcome ("hit", "miss", "error").
	CacheRequestStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_request_status_total",
			Help:      "Count of cache lookups by namespace, tier, and outcome.",
		},
		[]string{"namespace", "tier", "outcome"},
	)

	// CacheRequestDuration observes the latency of a single tier.Coordinator.Get call, in seconds.
	CacheRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "cache_request_duration_seconds",
			Help:      "Duration of a single-key cache lookup, by namespace and tier.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"namespace", "tier"},
	)

	// PromoteTotal counts values promoted from the remote tier into the local tier.
	PromoteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_promote_total",
			Help:      "Count of values promoted from the remote tier to the local tier.",
		},
		[]string{"namespace"},
	)

	// HotKeyLeaseTotal counts hot-key lease acquisitions and contention outcomes.
	HotKeyLeaseTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_hotkey_lease_total",
			Help:      "Count of hot-key lease attempts by namespace and outcome (acquired, contended).",
		},
		[]string{"namespace", "outcome"},
	)

	// RemoteAvailable reports whether the remote tier is currently considered reachable (1) or not (0).
	RemoteAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cache_remote_available",
			Help:      "1 if the remote tier last responded successfully, 0 otherwise.",
		},
	)

	// BatchSize observes the number of keys passed to a single LoadBatch call.
	BatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "cache_batch_size",
			Help:      "Number of keys in a single batch lookup, by namespace.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"namespace"},
	)

	// LocalEntries reports the resident entry count of a namespace's local
	// tier, refreshed whenever the /cache/stats admin handler is served.
	LocalEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cache_local_entries",
			Help:      "Resident entry count of a namespace's local tier.",
		},
		[]string{"namespace"},
	)
)

func init() {
	prometheus.MustRegister(
		CacheRequestStatus,
		CacheRequestDuration,
		PromoteTotal,
		HotKeyLeaseTotal,
		RemoteAvailable,
		BatchSize,
		LocalEntries,
	)
}

// Handler returns the HTTP handler that serves the registered collectors.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ListenAndServeMetrics starts a dedicated HTTP listener exposing /metrics,
// mirroring the teacher's separate metrics.ListenAddress/ListenPort surface.
func ListenAndServeMetrics(address string, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addrFor(address, port), mux)
}

func addrFor(address string, port int) string {
	if address == "" {
		address = "0.0.0.0"
	}
	return address + ":" + strconv.Itoa(port)
}
