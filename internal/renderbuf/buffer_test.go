package renderbuf

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/cardbridge/stream-renderer/internal/model"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDebounceCoalescesBursts(t *testing.T) {
	var flushes atomic.Int32
	b := New("s1", "u1", 30*time.Millisecond, func() {
		flushes.Add(1)
	})
	defer b.Stop()

	for i := 0; i < 50; i++ {
		b.AppendText("x")
	}

	waitFor(t, func() bool { return flushes.Load() >= 1 })
	time.Sleep(100 * time.Millisecond)
	if n := flushes.Load(); n != 1 {
		t.Fatalf("burst of appends should coalesce into one flush, got %d", n)
	}

	p := b.GetAndClearPending()
	if len(p.Text) != 50 {
		t.Fatalf("pending text length=%d", len(p.Text))
	}
	if p2 := b.GetAndClearPending(); p2.Text != "" {
		t.Fatalf("pending not cleared: %q", p2.Text)
	}
}

func TestEventsDuringFlushFoldIntoNextPass(t *testing.T) {
	var flushes atomic.Int32
	gate := make(chan struct{})
	var b *Buffer
	b = New("s1", "u1", time.Millisecond, func() {
		if flushes.Add(1) == 1 {
			<-gate
		}
	})
	defer b.Stop()

	b.AppendText("first")
	waitFor(t, func() bool { return flushes.Load() == 1 })

	// Arrives while the first flush is blocked; must not be dropped.
	b.AppendText("second")
	close(gate)

	waitFor(t, func() bool { return flushes.Load() == 2 })
	time.Sleep(50 * time.Millisecond)
	if n := flushes.Load(); n != 2 {
		t.Fatalf("expected exactly one follow-up flush, got %d", n)
	}
}

func TestTerminalStatusFlushesImmediately(t *testing.T) {
	var flushes atomic.Int32
	b := New("s1", "u1", time.Hour, func() {
		flushes.Add(1)
	})
	defer b.Stop()

	b.AppendText("text") // scheduled an hour out
	b.SetStatus(model.TurnCompleted)

	waitFor(t, func() bool { return flushes.Load() >= 1 })
	if b.Status() != model.TurnCompleted {
		t.Fatalf("status=%q", b.Status())
	}
}

func TestFinalOverride(t *testing.T) {
	b := New("s1", "u1", time.Hour, nil)
	defer b.Stop()

	if _, _, ok := b.Final(); ok {
		t.Fatal("no final content expected yet")
	}
	b.SetFinal("authoritative", "reasoned")
	text, reasoning, ok := b.Final()
	if !ok || text != "authoritative" || reasoning != "reasoned" {
		t.Fatalf("final=%q/%q ok=%v", text, reasoning, ok)
	}
}

func TestArtifactIDsCopied(t *testing.T) {
	b := New("s1", "u1", time.Hour, nil)
	defer b.Stop()

	ids := []string{"a", "b"}
	b.SetArtifactIDs(ids)
	ids[0] = "mutated"
	got := b.ArtifactIDs()
	if got[0] != "a" || got[1] != "b" {
		t.Fatalf("artifact IDs must be copied, got %v", got)
	}
}

func TestStopCancelsScheduledFlush(t *testing.T) {
	var flushes atomic.Int32
	b := New("s1", "u1", 20*time.Millisecond, func() {
		flushes.Add(1)
	})
	b.AppendText("x")
	b.Stop()
	time.Sleep(80 * time.Millisecond)
	if n := flushes.Load(); n != 0 {
		t.Fatalf("flush fired after Stop, count=%d", n)
	}
}
