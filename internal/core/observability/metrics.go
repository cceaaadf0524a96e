// Package observability records service metrics. Until Init is called every
// Observe* function is a no-op, which keeps unit tests free of global
// registration.
package observability

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type collectors struct {
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	upstream       *prometheus.HistogramVec
	upstreamErrors *prometheus.CounterVec
	areaLoads      *prometheus.CounterVec
	cacheOps       *prometheus.CounterVec
	cacheOpDur     *prometheus.HistogramVec
	cacheResults   *prometheus.CounterVec
	hitTests       *prometheus.CounterVec
	prints         *prometheus.CounterVec
	printDuration  prometheus.Histogram
	sessionsActive prometheus.Gauge
	sessionEvents  *prometheus.CounterVec
	invalidations  *prometheus.CounterVec
	kafkaErrors    *prometheus.CounterVec
	kafkaLag       *prometheus.GaugeVec
}

var current atomic.Pointer[collectors]

// Init registers all collectors on reg. Calling it again replaces the set.
func Init(reg prometheus.Registerer) {
	if reg == nil {
		current.Store(nil)
		return
	}
	f := promauto.With(reg)
	buckets := prometheus.ExponentialBuckets(0.005, 2, 12) // 5ms to ~20s
	c := &collectors{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: buckets,
		}, []string{"method", "route", "status"}),
		upstream: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of upstream calls in seconds.",
			Buckets: buckets,
		}, []string{"upstream"}),
		upstreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "upstream_errors_total",
			Help: "Failed upstream calls.",
		}, []string{"upstream"}),
		areaLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "area_loads_total",
			Help: "Area load attempts by outcome.",
		}, []string{"outcome"}),
		cacheOps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Redis operations by op and result.",
		}, []string{"op", "result"}),
		cacheOpDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation latency.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"op"}),
		cacheResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Area cache lookups by outcome.",
		}, []string{"outcome"}),
		hitTests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hit_tests_total",
			Help: "Point hit tests by source and outcome.",
		}, []string{"source", "outcome"}),
		prints: f.NewCounterVec(prometheus.CounterOpts{
			Name: "print_renders_total",
			Help: "Print layout renders by mode and outcome.",
		}, []string{"mode", "outcome"}),
		printDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "print_render_duration_seconds",
			Help:    "Time from print request to rendered document, including ready wait.",
			Buckets: buckets,
		}),
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "map_sessions_active",
			Help: "Open map sessions.",
		}),
		sessionEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "map_session_events_total",
			Help: "Map session lifecycle events.",
		}, []string{"event"}),
		invalidations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "area_invalidations_total",
			Help: "Area invalidation events by outcome.",
		}, []string{"outcome"}),
		kafkaErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		}, []string{"kind"}),
		kafkaLag: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Messages behind the high-water mark after the last marked offset.",
		}, []string{"topic", "partition"}),
	}
	current.Store(c)
}

func get() *collectors { return current.Load() }

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	c := get()
	if c == nil {
		return
	}
	st := strconv.Itoa(status)
	c.httpRequests.WithLabelValues(method, route, st).Inc()
	c.httpDuration.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstream(upstream string, durationSeconds float64, err error) {
	c := get()
	if c == nil {
		return
	}
	c.upstream.WithLabelValues(upstream).Observe(durationSeconds)
	if err != nil {
		c.upstreamErrors.WithLabelValues(upstream).Inc()
	}
}

// Area load outcomes.
const (
	AreaLoaded    = "loaded"
	AreaFailed    = "error"
	AreaCancelled = "cancelled"
	AreaDeduped   = "deduped"
)

func ObserveAreaLoad(outcome string) {
	if c := get(); c != nil {
		c.areaLoads.WithLabelValues(outcome).Inc()
	}
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	c := get()
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.cacheOps.WithLabelValues(op, result).Inc()
	c.cacheOpDur.WithLabelValues(op).Observe(durationSeconds)
}

func IncCacheHit() {
	if c := get(); c != nil {
		c.cacheResults.WithLabelValues("hit").Inc()
	}
}

func IncCacheMiss() {
	if c := get(); c != nil {
		c.cacheResults.WithLabelValues("miss").Inc()
	}
}

func ObserveHitTest(source string, hit bool) {
	c := get()
	if c == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	c.hitTests.WithLabelValues(source, outcome).Inc()
}

func ObservePrint(mode string, durationSeconds float64, err error) {
	c := get()
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.prints.WithLabelValues(mode, outcome).Inc()
	c.printDuration.Observe(durationSeconds)
}

func SessionOpened() {
	if c := get(); c != nil {
		c.sessionsActive.Inc()
		c.sessionEvents.WithLabelValues("opened").Inc()
	}
}

func SessionClosed(reason string) {
	if c := get(); c != nil {
		c.sessionsActive.Dec()
		c.sessionEvents.WithLabelValues(reason).Inc()
	}
}

func ObserveInvalidation(outcome string) {
	if c := get(); c != nil {
		c.invalidations.WithLabelValues(outcome).Inc()
	}
}

func IncKafkaConsumerError(kind string) {
	if c := get(); c != nil {
		c.kafkaErrors.WithLabelValues(kind).Inc()
	}
}

func SetKafkaLag(topic string, partition int32, lag int64) {
	if c := get(); c != nil {
		c.kafkaLag.WithLabelValues(topic, strconv.Itoa(int(partition))).Set(float64(max(lag, 0)))
	}
}
