package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the compliance core. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Access decisions by role, action and outcome
	AccessDecisions *prometheus.CounterVec

	// 1 while the last full verification passed, 0 after a violation
	LedgerIntegrity prometheus.Gauge

	// Verification runs by outcome
	LedgerVerifications *prometheus.CounterVec

	// Ledger events appended by action
	LedgerAppends *prometheus.CounterVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewMetrics registers all collectors on a fresh registry, together with
// the Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,

		AccessDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_access_decisions_total",
			Help: "Access decisions by role, action and decision",
		}, []string{"role", "action", "decision"}),

		LedgerIntegrity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "compliance_ledger_integrity",
			Help: "1 if the last ledger verification passed, 0 if it found a broken hash",
		}),

		LedgerVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_ledger_verifications_total",
			Help: "Ledger verification runs by result",
		}, []string{"result"}),

		LedgerAppends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_ledger_appends_total",
			Help: "Audit events appended to the ledger by action",
		}, []string{"action"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),

		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compliance_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"method", "route"}),
	}
	m.LedgerIntegrity.Set(1)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordAccessDecision counts one access decision
func (m *Metrics) RecordAccessDecision(role, action string, allowed bool) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.AccessDecisions.WithLabelValues(role, action, decision).Inc()
}

// RecordVerification records the outcome of a ledger verification run
func (m *Metrics) RecordVerification(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.LedgerVerifications.WithLabelValues("ok").Inc()
		m.LedgerIntegrity.Set(1)
		return
	}
	m.LedgerVerifications.WithLabelValues("violation").Inc()
	m.LedgerIntegrity.Set(0)
}

// RecordAppend counts one appended ledger event
func (m *Metrics) RecordAppend(action string) {
	if m != nil {
		m.LedgerAppends.WithLabelValues(action).Inc()
	}
}

// ObserveRequest records one served HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// routePattern returns the matched chi pattern so that path parameters do
// not explode label cardinality
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
