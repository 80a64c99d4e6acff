// Package metrics provides Prometheus metrics collection for apiward.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for the governance layer.
type Collector struct {
	// Rate limiter metrics
	AcquireWaitSeconds prometheus.Histogram
	AcquireTimeouts    prometheus.Counter
	TokensAvailable    prometheus.Gauge
	WindowRequests     prometheus.Gauge

	// Governor metrics
	RequestsTotal    *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec

	// Offline cache metrics
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	// Connectivity metrics
	ConnectivityOnline prometheus.Gauge

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
}

// New creates a collector registered on the default registry.
func New() *Collector {
	return newCollector(promauto.With(prometheus.DefaultRegisterer))
}

// NewWithRegistry creates a collector registered on a custom registry
// (used by tests to avoid duplicate registration).
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	return newCollector(promauto.With(reg))
}

func newCollector(factory promauto.Factory) *Collector {
	return &Collector{
		AcquireWaitSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "apiward",
				Name:      "acquire_wait_seconds",
				Help:      "Time spent waiting for a rate limit token",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		AcquireTimeouts: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "apiward",
				Name:      "acquire_timeouts_total",
				Help:      "Acquisitions that exhausted the bounded wait and proceeded anyway",
			},
		),
		TokensAvailable: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "apiward",
				Name:      "tokens_available",
				Help:      "Rate limit tokens currently available",
			},
		),
		WindowRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "apiward",
				Name:      "window_requests",
				Help:      "Requests admitted in the current statistics window",
			},
		),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "apiward",
				Name:      "requests_total",
				Help:      "Total governed requests",
			},
			[]string{"class", "connectivity"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "apiward",
				Name:      "upstream_duration_seconds",
				Help:      "Remote API request duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method"},
		),

		CacheHits: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "apiward",
				Name:      "offline_cache_hits_total",
				Help:      "Responses served from the offline cache",
			},
		),
		CacheMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "apiward",
				Name:      "offline_cache_misses_total",
				Help:      "Offline lookups that found no usable copy",
			},
		),

		ConnectivityOnline: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "apiward",
				Name:      "connectivity_online",
				Help:      "1 when the platform reports an online network path",
			},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "apiward",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "apiward",
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
	}
}
