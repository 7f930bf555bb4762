package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of one process. Each instance owns
// its registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	upgrades        *prometheus.CounterVec
	claims          prometheus.Counter
	upgradeDuration prometheus.Histogram
	httpRequests    *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		upgrades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "governance",
				Name:      "upgrades_total",
				Help:      "Contract upgrade attempts by outcome.",
			},
			[]string{"outcome"},
		),
		claims: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bridge",
			Subsystem: "governance",
			Name:      "claims_total",
			Help:      "Governance messages claimed.",
		}),
		upgradeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bridge",
			Subsystem: "governance",
			Name:      "upgrade_duration_seconds",
			Help:      "Contract upgrade processing time in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bridge",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route and status.",
			},
			[]string{"route", "status"},
		),
	}
	m.registry.MustRegister(m.upgrades, m.claims, m.upgradeDuration, m.httpRequests)
	return m
}

// RecordUpgrade counts one upgrade attempt with the given outcome.
func (m *Metrics) RecordUpgrade(outcome string, duration time.Duration) {
	m.upgrades.WithLabelValues(outcome).Inc()
	m.upgradeDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordClaim() {
	m.claims.Inc()
}

func (m *Metrics) RecordHTTPRequest(route, status string) {
	m.httpRequests.WithLabelValues(route, status).Inc()
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
