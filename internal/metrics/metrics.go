// Package metrics collects prometheus metrics for the backend. Each
// process owns its registry, exposed on the ops listener.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one service process.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	inFlight     prometheus.Gauge

	registrations        prometheus.Counter
	submissions          prometheus.Counter
	assessmentsCompleted prometheus.Counter
	scorerFailures       prometheus.Counter
	liveClients          prometheus.Gauge
}

// New creates a registry with the backend's collectors plus the standard
// go and process collectors.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by service, method, route and status.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by service, method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "method", "path"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Requests currently being served.",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Accounts created.",
		}),
		submissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reading_submissions_total",
			Help:      "Reading submissions accepted.",
		}),
		assessmentsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assessments_completed_total",
			Help:      "Assessment sessions submitted and scored.",
		}),
		scorerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scorer_failures_total",
			Help:      "Scoring calls that fell back to the local model.",
		}),
		liveClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "leaderboard_live_clients",
			Help:      "Websocket clients on the live leaderboard feed.",
		}),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.inFlight,
		m.registrations,
		m.submissions,
		m.assessmentsCompleted,
		m.scorerFailures,
		m.liveClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// IncrementInFlight marks a request as started.
func (m *Metrics) IncrementInFlight() {
	m.inFlight.Inc()
}

// DecrementInFlight marks a request as finished.
func (m *Metrics) DecrementInFlight() {
	m.inFlight.Dec()
}

// RecordHTTPRequest records one completed request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordRegistration counts a created account.
func (m *Metrics) RecordRegistration() {
	m.registrations.Inc()
}

// RecordSubmission counts an accepted reading submission.
func (m *Metrics) RecordSubmission() {
	m.submissions.Inc()
}

// RecordAssessmentCompleted counts a scored assessment.
func (m *Metrics) RecordAssessmentCompleted() {
	m.assessmentsCompleted.Inc()
}

// RecordScorerFailure counts a scoring call that used the fallback.
func (m *Metrics) RecordScorerFailure() {
	m.scorerFailures.Inc()
}

// AddLiveClient tracks a websocket subscriber joining the live feed.
func (m *Metrics) AddLiveClient() {
	m.liveClients.Inc()
}

// RemoveLiveClient tracks a websocket subscriber leaving the live feed.
func (m *Metrics) RemoveLiveClient() {
	m.liveClients.Dec()
}
