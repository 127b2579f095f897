// Package metrics holds the Prometheus collectors of the interview tracker.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

type Metrics struct {
	// Remote persistence issued by workspaces
	RemoteCallsTotal *prometheus.CounterVec
	RemoteDuration   *prometheus.HistogramVec

	// Local mutations applied optimistically
	MutationsTotal *prometheus.CounterVec

	ActiveWorkspaces prometheus.Gauge

	HTTPRequestsTotal *prometheus.CounterVec
	AuthRejectedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors once per process.
//
// Metrics:
//   - interviews_remote_calls_total{op,outcome}
//   - interviews_remote_call_duration_seconds{op}
//   - interviews_mutations_total{op}
//   - interviews_active_workspaces
//   - interviews_http_requests_total{method,code}
//   - interviews_auth_rejected_total{reason}
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RemoteCallsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "interviews_remote_calls_total",
					Help: "Total number of remote store calls issued by workspaces",
				},
				[]string{"op", "outcome"}, // outcome: "ok" or "error"
			),

			RemoteDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "interviews_remote_call_duration_seconds",
					Help:    "Duration of remote store calls in seconds",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
				},
				[]string{"op"},
			),

			MutationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "interviews_mutations_total",
					Help: "Total number of optimistic local mutations",
				},
				[]string{"op"},
			),

			ActiveWorkspaces: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "interviews_active_workspaces",
					Help: "Current number of signed-in workspaces",
				},
			),

			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "interviews_http_requests_total",
					Help: "Total number of HTTP requests served",
				},
				[]string{"method", "code"},
			),

			AuthRejectedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "interviews_auth_rejected_total",
					Help: "Total number of rejected sign-up or sign-in attempts",
				},
				[]string{"reason"},
			),
		}
	})

	return globalMetrics
}

// RecordRemoteCall records one remote store call and how long it took.
func (m *Metrics) RecordRemoteCall(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.RemoteCallsTotal.WithLabelValues(op, outcome).Inc()
	m.RemoteDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordMutation(op string) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(op).Inc()
}

func (m *Metrics) SetActiveWorkspaces(n int) {
	if m == nil {
		return
	}
	m.ActiveWorkspaces.Set(float64(n))
}

func (m *Metrics) RecordHTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func (m *Metrics) RecordAuthRejected(reason string) {
	if m == nil {
		return
	}
	m.AuthRejectedTotal.WithLabelValues(reason).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
