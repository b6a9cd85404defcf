// Package metrics provides Prometheus metrics for the Synapse client core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Transport labels for submissions.
const (
	TransportRemote = "remote"
	TransportLocal  = "local"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	SessionTransitions *prometheus.CounterVec
	SubmissionsTotal   *prometheus.CounterVec
	LocalQueueDepth    prometheus.Gauge
	APIRequestDuration *prometheus.HistogramVec
	StorageErrorsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SessionTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synapse_session_transitions_total",
				Help: "Session mode transitions by resulting mode.",
			},
			[]string{"mode"},
		),
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synapse_submissions_total",
				Help: "Entity submissions by transport and outcome.",
			},
			[]string{"transport", "outcome"},
		),
		LocalQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "synapse_local_queue_depth",
				Help: "Number of entities held in the local ghost queue.",
			},
		),
		APIRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synapse_api_request_duration_seconds",
				Help:    "Remote API request duration by method and status.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status"},
		),
		StorageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synapse_storage_errors_total",
				Help: "Swallowed local storage failures by owner and operation.",
			},
			[]string{"owner", "op"},
		),
		registry: reg,
	}

	reg.MustRegister(m.SessionTransitions)
	reg.MustRegister(m.SubmissionsTotal)
	reg.MustRegister(m.LocalQueueDepth)
	reg.MustRegister(m.APIRequestDuration)
	reg.MustRegister(m.StorageErrorsTotal)

	return m
}

// Registry exposes the underlying registry (for tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTransition counts a session mode change.
func (m *Metrics) RecordTransition(mode string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(mode).Inc()
}

// RecordSubmission counts a submission outcome ("ok" or "error").
func (m *Metrics) RecordSubmission(transport, outcome string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(transport, outcome).Inc()
}

// SetQueueDepth sets the local queue gauge.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.LocalQueueDepth.Set(float64(n))
}

// ObserveAPIRequest records a remote call. status 0 means a transport failure.
func (m *Metrics) ObserveAPIRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.APIRequestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}

// RecordStorageError counts a storage failure that was degraded silently.
func (m *Metrics) RecordStorageError(owner, op string) {
	if m == nil {
		return
	}
	m.StorageErrorsTotal.WithLabelValues(owner, op).Inc()
}
