// Package approval coordinates outstanding tool-permission requests and
// interactive question flows.
package approval

import (
	"sync"
	"time"

	"github.com/cardbridge/stream-renderer/internal/model"
	"github.com/cardbridge/stream-renderer/pkg/metrics"
)

// PermissionQueue holds pending tool-permission requests per conversation,
// FIFO, upserted by permission ID. Entries past the TTL are pruned lazily
// on every access, no background timers.
type PermissionQueue struct {
	mu     sync.Mutex
	byConv map[string][]*model.PendingPermission
	ttl    time.Duration
	now    func() time.Time
}

// NewPermissionQueue creates a queue with the given TTL. Zero disables
// expiry.
func NewPermissionQueue(ttl time.Duration) *PermissionQueue {
	return &PermissionQueue{
		byConv: make(map[string][]*model.PendingPermission),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Enqueue adds a request, or replaces the existing one with the same
// permission ID in place. A duplicate re-announcement must not grow the
// queue.
func (q *PermissionQueue) Enqueue(conversationKey string, req *model.PendingPermission) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prune(conversationKey)

	if req.EnqueuedAt.IsZero() {
		req.EnqueuedAt = q.now()
	}
	queue := q.byConv[conversationKey]
	for i, have := range queue {
		if have.PermissionID == req.PermissionID {
			queue[i] = req
			return
		}
	}
	q.byConv[conversationKey] = append(queue, req)
	metrics.PendingPermissions.Inc()
}

// Peek returns the head request without removing it, or nil.
func (q *PermissionQueue) Peek(conversationKey string) *model.PendingPermission {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prune(conversationKey)
	queue := q.byConv[conversationKey]
	if len(queue) == 0 {
		return nil
	}
	return queue[0]
}

// Resolve removes the request with the given permission ID, not
// necessarily the head. Returns nil when the ID is unknown or expired so
// the caller can report a stale reference.
func (q *PermissionQueue) Resolve(conversationKey, permissionID string) *model.PendingPermission {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prune(conversationKey)
	queue := q.byConv[conversationKey]
	for i, have := range queue {
		if have.PermissionID == permissionID {
			q.byConv[conversationKey] = append(queue[:i], queue[i+1:]...)
			metrics.PendingPermissions.Dec()
			return have
		}
	}
	return nil
}

// Size returns the number of live requests for a conversation.
func (q *PermissionQueue) Size(conversationKey string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prune(conversationKey)
	return len(q.byConv[conversationKey])
}

// Drop discards all requests for a conversation.
func (q *PermissionQueue) Drop(conversationKey string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	metrics.PendingPermissions.Sub(float64(len(q.byConv[conversationKey])))
	delete(q.byConv, conversationKey)
}

// prune drops expired entries. Caller must hold the lock.
func (q *PermissionQueue) prune(conversationKey string) {
	if q.ttl <= 0 {
		return
	}
	now := q.now()
	queue := q.byConv[conversationKey]
	kept := queue[:0]
	for _, req := range queue {
		if req.Expired(now, q.ttl) {
			metrics.PendingPermissions.Dec()
			continue
		}
		kept = append(kept, req)
	}
	if len(kept) == 0 {
		delete(q.byConv, conversationKey)
		return
	}
	q.byConv[conversationKey] = kept
}
