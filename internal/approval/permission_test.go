package approval

import (
	"testing"
	"time"

	"github.com/cardbridge/stream-renderer/internal/model"
)

func TestPermissionFIFOWithUpsert(t *testing.T) {
	q := NewPermissionQueue(0)

	q.Enqueue("c1", &model.PendingPermission{PermissionID: "P1", Tool: "bash", Description: "first"})
	q.Enqueue("c1", &model.PendingPermission{PermissionID: "P1", Tool: "bash", Description: "latest"})

	if n := q.Size("c1"); n != 1 {
		t.Fatalf("duplicate enqueue must upsert, size=%d", n)
	}
	if got := q.Peek("c1"); got.Description != "latest" {
		t.Fatalf("peek description=%q", got.Description)
	}
	if got := q.Resolve("c1", "P1"); got == nil {
		t.Fatal("resolve should return the entry")
	}
	if n := q.Size("c1"); n != 0 {
		t.Fatalf("size after resolve=%d", n)
	}
}

func TestPermissionResolveByID(t *testing.T) {
	q := NewPermissionQueue(0)
	q.Enqueue("c1", &model.PendingPermission{PermissionID: "P1"})
	q.Enqueue("c1", &model.PendingPermission{PermissionID: "P2"})
	q.Enqueue("c1", &model.PendingPermission{PermissionID: "P3"})

	// Resolving a non-head entry keeps order for the rest.
	if got := q.Resolve("c1", "P2"); got == nil {
		t.Fatal("P2 should resolve")
	}
	if got := q.Peek("c1"); got.PermissionID != "P1" {
		t.Fatalf("head=%q", got.PermissionID)
	}
	if got := q.Resolve("c1", "P2"); got != nil {
		t.Fatal("re-resolving must report stale")
	}
}

func TestPermissionTTLPrunedLazily(t *testing.T) {
	q := NewPermissionQueue(time.Minute)
	now := time.Unix(1000, 0)
	q.now = func() time.Time { return now }

	q.Enqueue("c1", &model.PendingPermission{PermissionID: "P1"})
	now = now.Add(2 * time.Minute)
	q.Enqueue("c1", &model.PendingPermission{PermissionID: "P2"})

	if n := q.Size("c1"); n != 1 {
		t.Fatalf("expired entry must be dropped, size=%d", n)
	}
	if got := q.Peek("c1"); got.PermissionID != "P2" {
		t.Fatalf("survivor=%q", got.PermissionID)
	}
}

func TestPermissionConversationsIsolated(t *testing.T) {
	q := NewPermissionQueue(0)
	q.Enqueue("c1", &model.PendingPermission{PermissionID: "P1"})
	if got := q.Peek("c2"); got != nil {
		t.Fatalf("c2 should be empty, got %+v", got)
	}
	q.Drop("c1")
	if n := q.Size("c1"); n != 0 {
		t.Fatalf("size after drop=%d", n)
	}
}
