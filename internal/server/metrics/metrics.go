// Package metrics exposes the pipeline's Prometheus collectors.
// Every method is safe on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cadence"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	rateLimited     *prometheus.CounterVec
	limiterErrors   prometheus.Counter
	chunksStored    prometheus.Counter
	chunkBytes      prometheus.Counter
	uploads         *prometheus.CounterVec
	sessionsExpired prometheus.Counter
	streamBytes     *prometheus.CounterVec
	tierMigrations  *prometheus.CounterVec
}

// New builds the collectors on a private registry together with the Go and process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejected_total",
			Help:      "requests rejected by the rate limiter per rule",
		}, []string{"rule"}),
		limiterErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "store_errors_total",
			Help:      "rate limit store failures, the request was let through",
		}),
		chunksStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "chunks_total",
			Help:      "chunks durably staged",
		}),
		chunkBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "chunk_bytes_total",
			Help:      "bytes durably staged",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "finalized_total",
			Help:      "finalize attempts by outcome",
		}, []string{"result"}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "sessions_expired_total",
			Help:      "sessions removed by the expiry sweep",
		}),
		streamBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "bytes_total",
			Help:      "bytes served by response kind",
		}, []string{"kind"}),
		tierMigrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tier",
			Name:      "migrations_total",
			Help:      "tier migrations by source, target and outcome",
		}, []string{"from", "to", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.rateLimited,
		m.limiterErrors,
		m.chunksStored,
		m.chunkBytes,
		m.uploads,
		m.sessionsExpired,
		m.streamBytes,
		m.tierMigrations,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) RateLimited(rule string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(rule).Inc()
}

func (m *Metrics) LimiterError() {
	if m == nil {
		return
	}
	m.limiterErrors.Inc()
}

func (m *Metrics) ChunkStored(size int) {
	if m == nil {
		return
	}
	m.chunksStored.Inc()
	m.chunkBytes.Add(float64(size))
}

func (m *Metrics) UploadFinalized(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionsExpired(n int) {
	if m == nil || n == 0 {
		return
	}
	m.sessionsExpired.Add(float64(n))
}

func (m *Metrics) StreamServed(kind string, n int64) {
	if m == nil {
		return
	}
	m.streamBytes.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) TierMigrated(from, to, result string) {
	if m == nil {
		return
	}
	m.tierMigrations.WithLabelValues(from, to, result).Inc()
}
