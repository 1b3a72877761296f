// Package metrics holds the Prometheus collectors of the aggregation engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
    "net/http"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketdata"

// Attempt outcomes.
const (
    OutcomeSuccess     = "success"
    OutcomeError       = "error"
    OutcomeRateLimited = "rate_limited"
    OutcomeUnavailable = "unavailable"
)

type Metrics struct {
    registry *prometheus.Registry

    ProviderAttempts *prometheus.CounterVec
    ProviderLatency  *prometheus.HistogramVec
    CacheLookups     *prometheus.CounterVec
    MockQuotes       prometheus.Counter
    BatchEnriched    prometheus.Counter
    HTTPRequests     *prometheus.CounterVec
}

// New builds the collectors on a private registry together with the Go and
// process collectors.
func New() *Metrics {
    m := &Metrics{
        registry: prometheus.NewRegistry(),
        ProviderAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "provider_attempts_total",
            Help:      "Provider calls by provider, operation and outcome",
        }, []string{"provider", "op", "outcome"}),
        ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
            Namespace: namespace,
            Name:      "provider_request_duration_seconds",
            Help:      "Provider request duration in seconds",
            Buckets:   prometheus.DefBuckets,
        }, []string{"provider", "op"}),
        CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "cache_lookups_total",
            Help:      "Cache lookups by kind and result",
        }, []string{"kind", "result"}),
        MockQuotes: prometheus.NewCounter(prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "mock_quotes_total",
            Help:      "Synthesized quotes served after every provider failed",
        }),
        BatchEnriched: prometheus.NewCounter(prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "batch_securities_enriched_total",
            Help:      "Securities enriched with a market price by batch updates",
        }),
        HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "http_requests_total",
            Help:      "HTTP requests by route and status code",
        }, []string{"route", "code"}),
    }
    m.registry.MustRegister(
        collectors.NewGoCollector(),
        collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
        m.ProviderAttempts,
        m.ProviderLatency,
        m.CacheLookups,
        m.MockQuotes,
        m.BatchEnriched,
        m.HTTPRequests,
    )
    return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
    if m == nil { return promhttp.Handler() }
    return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Attempt(provider, op, outcome string, seconds float64) {
    if m == nil { return }
    m.ProviderAttempts.WithLabelValues(provider, op, outcome).Inc()
    if outcome == OutcomeSuccess || outcome == OutcomeError {
        m.ProviderLatency.WithLabelValues(provider, op).Observe(seconds)
    }
}

func (m *Metrics) CacheHit(kind string) {
    if m == nil { return }
    m.CacheLookups.WithLabelValues(kind, "hit").Inc()
}

func (m *Metrics) CacheMiss(kind string) {
    if m == nil { return }
    m.CacheLookups.WithLabelValues(kind, "miss").Inc()
}

func (m *Metrics) MockServed() {
    if m == nil { return }
    m.MockQuotes.Inc()
}

func (m *Metrics) Enriched(n int) {
    if m == nil { return }
    m.BatchEnriched.Add(float64(n))
}

func (m *Metrics) Request(route, code string) {
    if m == nil { return }
    m.HTTPRequests.WithLabelValues(route, code).Inc()
}
