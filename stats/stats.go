// Package stats tracks counters, latencies and sizes across every
// subsystem and exposes them as Prometheus metrics under the "oiosds"
// namespace, named with the Prometheus suffixes "_total" for counters,
// "_seconds" for latencies and "_bytes" for sizes.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry bundles the counters and histograms shared across the
// conscience, resolver, meta2, layout, upload and gateway packages. One
// Registry is created per process and wired into each component's
// constructor.
type Registry struct {
	ConscienceRegister  prometheus.Counter
	ConscienceExpire    prometheus.Counter
	ConscienceScoreBump prometheus.Histogram

	ResolverHit     prometheus.Counter
	ResolverMiss    prometheus.Counter
	ResolverDecache prometheus.Counter
	ResolverLatency prometheus.Histogram

	Meta2Ops    *prometheus.CounterVec
	Meta2Dedup  prometheus.Counter
	Meta2Purge  prometheus.Counter
	Meta2OpSize prometheus.Histogram

	LayoutGenerated *prometheus.CounterVec

	UploadOK       prometheus.Counter
	UploadFailed   prometheus.Counter
	UploadLatency  prometheus.Histogram
	UploadRedoSize prometheus.Histogram

	GatewayRequests  *prometheus.CounterVec
	GatewayLatency   *prometheus.HistogramVec
	GatewayRedirects prometheus.Counter
}

const ns = "oiosds"

// NewRegistry builds and registers every collector against reg. Pass
// prometheus.NewRegistry() in production, or a throwaway registry in
// tests that don't care about double-registration panics.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ConscienceRegister: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "conscience", Name: "register_total",
			Help: "services registered or refreshed",
		}),
		ConscienceExpire: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "conscience", Name: "expire_total",
			Help: "services evicted for missing their score_expiration",
		}),
		ConscienceScoreBump: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "conscience", Name: "score_delta",
			Help:    "absolute per-tick score variation after clamping",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		}),

		ResolverHit: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "resolver", Name: "cache_hit_total",
		}),
		ResolverMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "resolver", Name: "cache_miss_total",
		}),
		ResolverDecache: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "resolver", Name: "decache_total",
		}),
		ResolverLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "resolver", Name: "lookup_latency_seconds",
			Buckets: prometheus.DefBuckets,
		}),

		Meta2Ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "meta2", Name: "ops_total",
		}, []string{"op", "result"}),
		Meta2Dedup: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "meta2", Name: "dedup_total",
		}),
		Meta2Purge: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "meta2", Name: "purge_total",
		}),
		Meta2OpSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "meta2", Name: "content_size_bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}),

		LayoutGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "layout", Name: "generated_total",
		}, []string{"policy_type"}),

		UploadOK: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "upload", Name: "success_total",
		}),
		UploadFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "upload", Name: "failed_total",
		}),
		UploadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "upload", Name: "latency_seconds",
			Buckets: prometheus.DefBuckets,
		}),
		UploadRedoSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "upload", Name: "content_size_bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}),

		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "gateway", Name: "requests_total",
		}, []string{"route", "status"}),
		GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "gateway", Name: "request_latency_seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		GatewayRedirects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "gateway", Name: "redirects_total",
		}),
	}
	reg.MustRegister(
		r.ConscienceRegister, r.ConscienceExpire, r.ConscienceScoreBump,
		r.ResolverHit, r.ResolverMiss, r.ResolverDecache, r.ResolverLatency,
		r.Meta2Ops, r.Meta2Dedup, r.Meta2Purge, r.Meta2OpSize,
		r.LayoutGenerated,
		r.UploadOK, r.UploadFailed, r.UploadLatency, r.UploadRedoSize,
		r.GatewayRequests, r.GatewayLatency, r.GatewayRedirects,
	)
	return r
}

// Since times a block and records it against o, the way a ".ns"-suffixed
// latency tracker wraps every RPC call. o is
// prometheus.Observer rather than Histogram so a HistogramVec's
// per-label observer (gateway's per-route latency) works the same way
// as a bare Histogram.
func Since(o prometheus.Observer, start time.Time) {
	o.Observe(time.Since(start).Seconds())
}
