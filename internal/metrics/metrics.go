// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger ─────────────────────────────────────────────────────────────────

// LedgerOperations counts service operations by outcome (ok or an error kind).
var LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "zerobudget",
	Subsystem: "ledger",
	Name:      "operations_total",
	Help:      "Total ledger operations by operation and outcome.",
}, []string{"operation", "outcome"})

// EventsPublished counts ledger events handed to the broker.
var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "zerobudget",
	Subsystem: "events",
	Name:      "published_total",
	Help:      "Ledger events published by result.",
}, []string{"result"})

// EventsRecorded counts events written to the audit trail by the worker.
var EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "zerobudget",
	Subsystem: "events",
	Name:      "recorded_total",
	Help:      "Ledger events consumed by the audit worker by result.",
}, []string{"result"})

// ─── Cache ──────────────────────────────────────────────────────────────────

// CacheRequests counts summary cache lookups.
var CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "zerobudget",
	Subsystem: "cache",
	Name:      "requests_total",
	Help:      "Summary cache lookups by result (hit or miss).",
}, []string{"result"})

// ObserveCache records a cache lookup.
func ObserveCache(hit bool) {
	if hit {
		CacheRequests.WithLabelValues("hit").Inc()
		return
	}
	CacheRequests.WithLabelValues("miss").Inc()
}

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPRequestDuration tracks request latency by route pattern.
var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "zerobudget",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "status"})

// RateLimited counts requests rejected by the rate limiter.
var RateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "zerobudget",
	Subsystem: "http",
	Name:      "rate_limited_total",
	Help:      "Requests rejected by the per-client rate limiter.",
})

// SuspiciousRequests counts requests flagged by the security detector.
var SuspiciousRequests = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "zerobudget",
	Subsystem: "http",
	Name:      "suspicious_requests_total",
	Help:      "Requests matching known probing patterns.",
})
