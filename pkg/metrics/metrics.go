// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal tracks runtime events consumed, by event type.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renderer_events_total",
			Help: "Runtime events consumed",
		},
		[]string{"type"},
	)

	// ReconcileOpsTotal tracks delta reconciliation outcomes.
	ReconcileOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renderer_reconcile_ops_total",
			Help: "Delta reconciliation outcomes",
		},
		[]string{"op"}, // append, extend, reset, noop
	)

	// FlushesTotal tracks render flushes by outcome.
	FlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renderer_flushes_total",
			Help: "Render flushes by outcome",
		},
		[]string{"outcome"}, // rendered, suppressed, coalesced, error
	)

	// FlushDuration tracks the duration of one render flush.
	FlushDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "renderer_flush_duration_seconds",
			Help:    "Render flush duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	// ArtifactOpsTotal tracks render-sink calls by operation and status.
	ArtifactOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renderer_artifact_ops_total",
			Help: "Render sink calls",
		},
		[]string{"op", "status"}, // op: send, update, delete; status: ok, error
	)

	// UndoTotal tracks undo operations by outcome.
	UndoTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renderer_undo_total",
			Help: "Undo operations by outcome",
		},
		[]string{"outcome"}, // ok, empty, error
	)

	// PendingPermissions tracks queued permission requests.
	PendingPermissions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "renderer_pending_permissions",
			Help: "Queued tool permission requests",
		},
	)

	// ActiveConversations tracks conversations with live state.
	ActiveConversations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "renderer_active_conversations",
			Help: "Conversations with live renderer state",
		},
	)

	// RequestDuration tracks ops API request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ops_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total ops API requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ops_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordArtifactOp records one render-sink call.
func RecordArtifactOp(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ArtifactOpsTotal.WithLabelValues(op, status).Inc()
}
