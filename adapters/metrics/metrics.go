// Package metrics provides Prometheus metrics collection for cfusage.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tola-labs/cfusage/ports"
)

const namespace = "cfusage"

// Collector holds all Prometheus metrics for cfusage.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Cache metrics
	CacheLookups *prometheus.CounterVec
	CacheEntries *prometheus.GaugeVec

	// Upstream metrics
	UpstreamDuration *prometheus.HistogramVec
	UpstreamErrors   *prometheus.CounterVec

	// Refresh metrics
	RefreshRuns        *prometheus.CounterVec
	RefreshUnits       *prometheus.CounterVec
	RefreshDuration    prometheus.Histogram
	RefreshLastSuccess prometheus.Gauge
	DirectoryOrgs      *prometheus.GaugeVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

var _ ports.UsageMetrics = (*Collector)(nil)

// New creates a new metrics collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of API requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of API requests currently being processed",
			},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Rollup cache lookups by kind and result",
			},
			[]string{"kind", "result"},
		),
		CacheEntries: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_entries",
				Help:      "Number of cached rollups by kind",
			},
			[]string{"kind"},
		),

		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_duration_seconds",
				Help:      "Upstream request duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"foundation", "endpoint", "status"},
		),
		UpstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_errors_total",
				Help:      "Total number of upstream errors",
			},
			[]string{"foundation", "type"},
		),

		RefreshRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_runs_total",
				Help:      "Bulk refresh runs by outcome",
			},
			[]string{"outcome"},
		),
		RefreshUnits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_units_total",
				Help:      "Rollups recomputed by bulk refresh, by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		RefreshDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Bulk refresh run duration in seconds",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
			},
		),
		RefreshLastSuccess: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "refresh_last_success_timestamp",
				Help:      "Unix timestamp of the last refresh run without failures",
			},
		),
		DirectoryOrgs: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "directory_orgs",
				Help:      "Organizations known per foundation",
			},
			[]string{"foundation"},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// CacheLookup counts a cache hit or miss.
func (c *Collector) CacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheLookups.WithLabelValues(kind, result).Inc()
}

// CacheSize records the number of cached rollups.
func (c *Collector) CacheSize(kind string, n int) {
	c.CacheEntries.WithLabelValues(kind).Set(float64(n))
}

// RefreshUnit counts one rollup recomputed by bulk refresh.
func (c *Collector) RefreshUnit(kind, outcome string) {
	c.RefreshUnits.WithLabelValues(kind, outcome).Inc()
}

// RefreshRun records a finished bulk refresh.
func (c *Collector) RefreshRun(outcome string, d time.Duration) {
	c.RefreshRuns.WithLabelValues(outcome).Inc()
	c.RefreshDuration.Observe(d.Seconds())
	if outcome == "success" {
		c.RefreshLastSuccess.SetToCurrentTime()
	}
}

// DirectorySize records the org count for a foundation.
func (c *Collector) DirectorySize(foundation string, n int) {
	c.DirectoryOrgs.WithLabelValues(foundation).Set(float64(n))
}

// ObserveUpstream records one upstream call. status is 0 when no response arrived.
func (c *Collector) ObserveUpstream(foundation, endpoint string, status int, d time.Duration) {
	c.UpstreamDuration.WithLabelValues(foundation, endpoint, StatusClass(status)).Observe(d.Seconds())
}

// UpstreamError counts a failed upstream call by failure kind.
func (c *Collector) UpstreamError(foundation, kind string) {
	c.UpstreamErrors.WithLabelValues(foundation, kind).Inc()
}

// StatusClass buckets an HTTP status into 2xx..5xx, or "error" for no response.
func StatusClass(status int) string {
	if status < 100 || status > 599 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}
