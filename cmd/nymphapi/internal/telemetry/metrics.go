package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Auth outcome labels.
const (
	OutcomeSuccess         = "success"
	OutcomeAbsent          = "absent"
	OutcomeRejected        = "rejected"
	OutcomeUnauthenticated = "unauthenticated"
)

// Metrics holds Prometheus instruments for authentication and token issuance.
type Metrics struct {
	authTotal         *prometheus.CounterVec
	authDuration      prometheus.Histogram
	tokensIssued      prometheus.Counter
	principalsCreated *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

// NewMetrics registers metrics with prometheus.DefaultRegisterer.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer("nymph", prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer registers metrics with a custom registerer.
// Tests pass a private prometheus.NewRegistry().
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "nymph"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		authTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "resolutions_total",
				Help:      "Authentication attempts by scheme and outcome",
			},
			[]string{"scheme", "outcome"},
		),
		authDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "auth",
				Name:      "resolve_duration_seconds",
				Help:      "Time spent resolving a request's credentials",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
			},
		),
		tokensIssued: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "tokens",
				Name:      "issued_total",
				Help:      "Access tokens minted",
			},
		),
		principalsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "principals",
				Name:      "created_total",
				Help:      "Principals provisioned on first contact",
			},
			[]string{"provider"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.authTotal,
		m.authDuration,
		m.tokensIssued,
		m.principalsCreated,
		m.requestDuration,
	} {
		// Duplicate registration is ignored so tests can build several servers.
		_ = registerer.Register(c)
	}

	return m
}

// RecordAuth counts one authenticator outcome.
func (m *Metrics) RecordAuth(scheme, outcome string) {
	if m == nil {
		return
	}
	m.authTotal.WithLabelValues(scheme, outcome).Inc()
}

// ObserveResolve records how long a full resolver pass took.
func (m *Metrics) ObserveResolve(d time.Duration) {
	if m == nil {
		return
	}
	m.authDuration.Observe(d.Seconds())
}

// RecordTokenIssued counts one minted token.
func (m *Metrics) RecordTokenIssued() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
}

// RecordPrincipalCreated counts one provisioned principal.
func (m *Metrics) RecordPrincipalCreated(provider string) {
	if m == nil {
		return
	}
	m.principalsCreated.WithLabelValues(provider).Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
