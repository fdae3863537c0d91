package model

import (
	"time"
)

// PendingPermission is one queued tool-permission request for a
// conversation. Queued FIFO, upserted by PermissionID, dropped after a TTL.
type PendingPermission struct {
	SessionID    string    `json:"session_id"`
	PermissionID string    `json:"permission_id"`
	Tool         string    `json:"tool"`
	Description  string    `json:"description"`
	Risk         string    `json:"risk,omitempty"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

// Expired reports whether the request is older than ttl at now.
func (p *PendingPermission) Expired(now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(p.EnqueuedAt) > ttl
}
