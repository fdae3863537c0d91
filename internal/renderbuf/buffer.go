// Package renderbuf accumulates pending render state for one conversation
// and debounces flushes toward the render sink.
package renderbuf

import (
	"sync"
	"time"

	"github.com/cardbridge/stream-renderer/internal/model"
)

// FlushFunc performs one render pass for the owning conversation. At most
// one invocation is in flight per buffer; state changes arriving while it
// runs are folded into an immediately following pass.
type FlushFunc func()

// Pending is the unflushed text accumulated since the last render pass.
type Pending struct {
	Text      string
	Reasoning string
}

// ToolSummary is the live tool state the banner reports on.
type ToolSummary struct {
	Name   string
	Status model.ToolRunStatus
	Output string
}

// Buffer is the per-conversation accumulator. All methods are safe for
// concurrent use; the flush callback itself runs outside the lock.
type Buffer struct {
	mu sync.Mutex

	sessionID      string
	userArtifactID string

	pendingText      string
	pendingReasoning string
	tools            map[string]ToolSummary
	status           model.TurnStatus
	artifactIDs      []string

	// Authoritative terminal content from the runtime's own final
	// message; overrides accumulated deltas on the last render pass.
	finalText      string
	finalReasoning string
	hasFinal       bool

	debounce time.Duration
	flush    FlushFunc
	timer    *time.Timer
	flushing bool
	dirty    bool
	stopped  bool
}

// New creates a buffer for one conversation turn.
func New(sessionID, userArtifactID string, debounce time.Duration, flush FlushFunc) *Buffer {
	return &Buffer{
		sessionID:      sessionID,
		userArtifactID: userArtifactID,
		tools:          make(map[string]ToolSummary),
		status:         model.TurnRunning,
		debounce:       debounce,
		flush:          flush,
	}
}

// SessionID returns the owning session.
func (b *Buffer) SessionID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionID
}

// UserArtifactID returns the chat artifact that started this turn.
func (b *Buffer) UserArtifactID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userArtifactID
}

// AppendText adds reconciled generated text and schedules a flush.
func (b *Buffer) AppendText(delta string) {
	if delta == "" {
		return
	}
	b.mu.Lock()
	b.pendingText += delta
	b.mu.Unlock()
	b.schedule(b.debounce)
}

// AppendReasoning adds reconciled reasoning text and schedules a flush.
func (b *Buffer) AppendReasoning(delta string) {
	if delta == "" {
		return
	}
	b.mu.Lock()
	b.pendingReasoning += delta
	b.mu.Unlock()
	b.schedule(b.debounce)
}

// SetTool records live tool state and schedules a flush.
func (b *Buffer) SetTool(key string, s ToolSummary) {
	b.mu.Lock()
	b.tools[key] = s
	b.mu.Unlock()
	b.schedule(b.debounce)
}

// Tools returns a copy of the live tool state.
func (b *Buffer) Tools() map[string]ToolSummary {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]ToolSummary, len(b.tools))
	for k, v := range b.tools {
		out[k] = v
	}
	return out
}

// SetStatus transitions the turn lifecycle. Leaving running flushes
// immediately, without the debounce delay.
func (b *Buffer) SetStatus(s model.TurnStatus) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
	if s.Terminal() {
		b.schedule(0)
		return
	}
	b.schedule(b.debounce)
}

// Status returns the turn lifecycle state.
func (b *Buffer) Status() model.TurnStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Touch forces a flush even with no new text. Used by status-only events
// (retry notices, permission enqueue, tool completion) that must still
// become visible.
func (b *Buffer) Touch() {
	b.schedule(b.debounce)
}

// GetAndClearPending drains the unflushed text and reasoning.
func (b *Buffer) GetAndClearPending() Pending {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := Pending{Text: b.pendingText, Reasoning: b.pendingReasoning}
	b.pendingText = ""
	b.pendingReasoning = ""
	return p
}

// SetArtifactIDs records the artifacts currently representing this turn.
// Must be called synchronously after the sink diff, never assumed stable
// across an awaited call.
func (b *Buffer) SetArtifactIDs(ids []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.artifactIDs = append([]string(nil), ids...)
}

// ArtifactIDs returns the artifacts currently representing this turn.
func (b *Buffer) ArtifactIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.artifactIDs...)
}

// SetFinal stores the runtime's authoritative terminal content.
func (b *Buffer) SetFinal(text, reasoning string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finalText = text
	b.finalReasoning = reasoning
	b.hasFinal = true
}

// Final returns the authoritative terminal content, if any.
func (b *Buffer) Final() (text, reasoning string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalText, b.finalReasoning, b.hasFinal
}

// Stop cancels any scheduled flush. The buffer must not be reused.
func (b *Buffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *Buffer) schedule(after time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped || b.flush == nil {
		return
	}
	if b.flushing {
		// Folded into the re-flush that follows the in-flight pass.
		b.dirty = true
		return
	}
	if b.timer != nil {
		if after > 0 {
			return // already scheduled, coalesce
		}
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(after, b.fire)
}

func (b *Buffer) fire() {
	b.mu.Lock()
	b.timer = nil
	if b.stopped {
		b.mu.Unlock()
		return
	}
	if b.flushing {
		b.dirty = true
		b.mu.Unlock()
		return
	}
	b.flushing = true
	b.mu.Unlock()

	for {
		b.flush()

		b.mu.Lock()
		if !b.dirty || b.stopped {
			b.flushing = false
			b.mu.Unlock()
			return
		}
		b.dirty = false
		b.mu.Unlock()
	}
}
