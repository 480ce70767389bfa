// Copyright 2025, 2026 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics holds the prometheus collectors shared by the index reader
// and the server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "zipnum"

var (
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Total queries by mode and status.",
		},
		[]string{"mode", "status"},
	)
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time from query start until its stream is closed.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
	RecordsReturned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_returned_total",
			Help:      "Total CDX records handed to callers.",
		},
	)
	PlansFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plans_fetched_total",
			Help:      "Total merged block plans fetched.",
		},
	)
	BlocksPerPlan = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "blocks_per_plan",
			Help:      "Number of compressed units merged into one fetch.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		},
	)
	FetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Block fetch attempts by location scheme and status.",
		},
		[]string{"scheme", "status"},
	)
	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Block fetch latency by location scheme.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"scheme"},
	)
	FetchBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_bytes_total",
			Help:      "Total compressed bytes fetched from block storage.",
		},
	)
	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_cache_requests_total",
			Help:      "Block cache lookups by result.",
		},
		[]string{"result"},
	)
	DecodeErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Total compressed units that failed to decode.",
		},
	)
	DirectoryReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "directory_reloads_total",
			Help:      "Location directory reloads by status.",
		},
		[]string{"status"},
	)
	DirectoryPartitions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "directory_partitions",
			Help:      "Partitions in the loaded location directory.",
		},
	)
	ActiveQueries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_queries",
			Help:      "Query streams currently open.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		QueriesTotal,
		QueryDuration,
		RecordsReturned,
		PlansFetched,
		BlocksPerPlan,
		FetchAttempts,
		FetchDuration,
		FetchBytes,
		CacheRequests,
		DecodeErrors,
		DirectoryReloads,
		DirectoryPartitions,
		ActiveQueries,
	)
}
