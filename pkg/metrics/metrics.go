// Package metrics exposes Prometheus instruments for the cookie pool and the
// download supervisor. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "siphon"

// Metrics groups every instrument Siphon records.
type Metrics struct {
	registry *prometheus.Registry

	poolLaunches    prometheus.Counter
	poolWorkers     prometheus.Gauge
	fetchAttempts   *prometheus.CounterVec
	fetchDuration   prometheus.Histogram
	downloadsActive prometheus.Gauge
	downloadsTotal  *prometheus.CounterVec
}

// New registers all instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		poolLaunches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "browser_pool_launches_total",
			Help:      "Number of times the browser pool launched its driver.",
		}),
		poolWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "browser_pool_workers",
			Help:      "Workers started by the current browser pool.",
		}),
		fetchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cookie_fetch_attempts_total",
			Help:      "Cookie fetch attempts by outcome.",
		}, []string{"outcome"}),
		fetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cookie_fetch_duration_seconds",
			Help:      "Wall time of a single cookie fetch attempt.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		downloadsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "downloads_active",
			Help:      "Download processes currently running.",
		}),
		downloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_total",
			Help:      "Finished download jobs by terminal status.",
		}, []string{"status"}),
	}
}

// Registry returns the registry holding the instruments.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PoolLaunched records a driver launch with the resulting worker count.
func (m *Metrics) PoolLaunched(workers int) {
	if m == nil {
		return
	}
	m.poolLaunches.Inc()
	m.poolWorkers.Set(float64(workers))
}

// PoolClosed resets the worker gauge.
func (m *Metrics) PoolClosed() {
	if m == nil {
		return
	}
	m.poolWorkers.Set(0)
}

// FetchAttempt records one fetch attempt.
func (m *Metrics) FetchAttempt(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(outcome).Inc()
	m.fetchDuration.Observe(elapsed.Seconds())
}

// DownloadStarted increments the active download gauge.
func (m *Metrics) DownloadStarted() {
	if m == nil {
		return
	}
	m.downloadsActive.Inc()
}

// DownloadFinished records a terminal status. running reports whether the
// job had been counted by DownloadStarted.
func (m *Metrics) DownloadFinished(status string, running bool) {
	if m == nil {
		return
	}
	if running {
		m.downloadsActive.Dec()
	}
	m.downloadsTotal.WithLabelValues(status).Inc()
}
