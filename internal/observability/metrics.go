// Package observability exposes the guard's Prometheus metrics.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xzc516/fit5032-youthwell-project/internal/contentguard"
	"github.com/xzc516/fit5032-youthwell-project/internal/risk"
)

// Metrics owns a private registry. Methods on a nil *Metrics are no-ops.
type Metrics struct {
	registry *prometheus.Registry

	contentChecks   *prometheus.CounterVec
	signatureHits   *prometheus.CounterVec
	riskAssessments *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	chatReplies     *prometheus.CounterVec
	eventsDropped   prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

// New registers every guard metric plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		contentChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "youthwell_guard_content_checks_total",
			Help: "Content Guard checks by operation and outcome",
		}, []string{"op", "outcome"}),
		signatureHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "youthwell_guard_signature_hits_total",
			Help: "Malicious signature matches by class",
		}, []string{"class"}),
		riskAssessments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "youthwell_guard_risk_assessments_total",
			Help: "Risk assessments by tier",
		}, []string{"tier"}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "youthwell_guard_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"transport"}),
		chatReplies: f.NewCounterVec(prometheus.CounterOpts{
			Name: "youthwell_guard_chat_replies_total",
			Help: "Chat replies by kind",
		}, []string{"kind"}),
		eventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "youthwell_guard_events_dropped_total",
			Help: "Guard events dropped because the write buffer was full",
		}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "youthwell_guard_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"route", "status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveContent records one Content Guard check and its signature matches.
func (m *Metrics) ObserveContent(op string, rejected bool, matches []contentguard.Match) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if rejected {
		outcome = "rejected"
	}
	m.contentChecks.WithLabelValues(op, outcome).Inc()
	for _, mt := range matches {
		m.signatureHits.WithLabelValues(string(mt.Class)).Inc()
	}
}

// ObserveAssessment records one risk assessment.
func (m *Metrics) ObserveAssessment(tier risk.Tier) {
	if m == nil {
		return
	}
	m.riskAssessments.WithLabelValues(string(tier)).Inc()
}

// ObserveRateLimited records a rejected request.
func (m *Metrics) ObserveRateLimited(transport string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(transport).Inc()
}

// ObserveChatReply records the kind of chat reply sent.
func (m *Metrics) ObserveChatReply(kind string) {
	if m == nil {
		return
	}
	m.chatReplies.WithLabelValues(kind).Inc()
}

// ObserveEventDropped counts an event the writer could not buffer.
func (m *Metrics) ObserveEventDropped() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}

// ObserveRequest records HTTP latency.
func (m *Metrics) ObserveRequest(route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(route, status).Observe(d.Seconds())
}
