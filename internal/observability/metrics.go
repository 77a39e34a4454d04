package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hephaestus"

// Provider call outcomes
const (
	OutcomeOK       = "ok"
	OutcomeRetry    = "retryable_error"
	OutcomeTerminal = "terminal_error"
)

// Collector holds every gateway metric. A nil *Collector is valid and
// records nothing, so components can be built without metrics.
type Collector struct {
	registry prometheus.Gatherer

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	providerRequestsTotal   *prometheus.CounterVec
	providerRequestDuration *prometheus.HistogramVec
	relaySkippedTotal       *prometheus.CounterVec
	decisionsTotal          *prometheus.CounterVec
	cacheLookupsTotal       *prometheus.CounterVec
	rateLimitedTotal        *prometheus.CounterVec
}

// NewCollector registers the metrics on a fresh registry that also carries
// the Go runtime and process collectors
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewCollectorWith(reg, reg)
}

// NewCollectorWith registers the metrics on reg and serves them from gatherer
func NewCollectorWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		registry: gatherer,
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		providerRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of upstream provider calls",
		}, []string{"provider", "mode", "outcome"}),
		providerRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Upstream provider call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"provider", "mode"}),
		relaySkippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_skipped_records_total",
			Help:      "Upstream stream records skipped because they were not valid JSON",
		}, []string{"provider"}),
		decisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Routing decisions by source",
		}, []string{"source"}),
		cacheLookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result",
		}, []string{"result"}),
		rateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests refused by the rate limiter",
		}, []string{"path"}),
	}
}

// Handler serves the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordProviderRequest records one upstream call
func (c *Collector) RecordProviderRequest(provider, mode, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.providerRequestsTotal.WithLabelValues(provider, mode, outcome).Inc()
	c.providerRequestDuration.WithLabelValues(provider, mode).Observe(duration.Seconds())
}

// RelaySkipped counts a malformed upstream record
func (c *Collector) RelaySkipped(provider string) {
	if c == nil {
		return
	}
	c.relaySkippedTotal.WithLabelValues(provider).Inc()
}

// RecordDecision counts a routing decision by its source
func (c *Collector) RecordDecision(source string) {
	if c == nil {
		return
	}
	c.decisionsTotal.WithLabelValues(source).Inc()
}

// RecordCacheLookup counts a cache hit or miss
func (c *Collector) RecordCacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordRateLimited counts a refused request
func (c *Collector) RecordRateLimited(path string) {
	if c == nil {
		return
	}
	c.rateLimitedTotal.WithLabelValues(path).Inc()
}
