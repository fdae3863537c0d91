// Package reconcile turns raw part snapshots and deltas into monotonic
// append operations.
package reconcile

import (
	"strings"
	"sync"

	"github.com/cardbridge/stream-renderer/pkg/metrics"
)

// Reconciler tracks the last seen snapshot per (session, part) and infers
// whether an incoming payload is a progressive delta or a re-sent full
// snapshot. The upstream event stream does not tag payloads either way, so
// naive concatenation would duplicate content.
type Reconciler struct {
	mu        sync.Mutex
	snapshots map[string]map[string]string // sessionID -> partID -> last payload
}

// New creates an empty reconciler.
func New() *Reconciler {
	return &Reconciler{
		snapshots: make(map[string]map[string]string),
	}
}

// Apply reconciles one payload for a part and returns the text that should
// be appended to the part's rendered content. Anonymous parts (empty
// partID) pass through unchanged.
//
// For identified parts the monotonic-prefix rule applies:
//   - payload equals the stored snapshot: no-op.
//   - payload extends the stored snapshot: append the suffix.
//   - payload is a prefix of the stored snapshot: a stale replay, no-op.
//   - otherwise the part was replaced upstream: append the whole payload.
func (r *Reconciler) Apply(sessionID, partID, payload string) string {
	if partID == "" {
		metrics.ReconcileOpsTotal.WithLabelValues("append").Inc()
		return payload
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	parts := r.snapshots[sessionID]
	if parts == nil {
		parts = make(map[string]string)
		r.snapshots[sessionID] = parts
	}

	prev, seen := parts[partID]
	if !seen {
		parts[partID] = payload
		metrics.ReconcileOpsTotal.WithLabelValues("append").Inc()
		return payload
	}

	switch {
	case payload == prev:
		metrics.ReconcileOpsTotal.WithLabelValues("noop").Inc()
		return ""
	case strings.HasPrefix(payload, prev):
		parts[partID] = payload
		metrics.ReconcileOpsTotal.WithLabelValues("extend").Inc()
		return payload[len(prev):]
	case strings.HasPrefix(prev, payload):
		// Replayed earlier snapshot; everything in it is already out.
		metrics.ReconcileOpsTotal.WithLabelValues("noop").Inc()
		return ""
	default:
		parts[partID] = payload
		metrics.ReconcileOpsTotal.WithLabelValues("reset").Inc()
		return payload
	}
}

// Purge drops all snapshot state for a session. Called when the session's
// turn reaches a terminal status, bounding memory.
func (r *Reconciler) Purge(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.snapshots, sessionID)
}

// Sessions returns the number of sessions with live snapshot state.
func (r *Reconciler) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshots)
}
