// Package timeline keeps the ordered, keyed log of rendering segments for
// one conversation.
package timeline

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cardbridge/stream-renderer/internal/model"
)

const (
	// DefaultRetention caps how many segments are kept per conversation.
	DefaultRetention = 80

	// DefaultToolOutputClip caps retained tool output bytes.
	DefaultToolOutputClip = 6000
)

// Timeline is an insertion-ordered, keyed log of segments. Retention is
// bounded: once the cap is exceeded the oldest segments are evicted,
// except the one being mutated by the in-flight event.
type Timeline struct {
	mu        sync.Mutex
	order     []string
	segments  map[string]*model.Segment
	retention int
	clip      int
}

// New creates an empty timeline. Non-positive limits fall back to the
// package defaults.
func New(retention, toolOutputClip int) *Timeline {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if toolOutputClip <= 0 {
		toolOutputClip = DefaultToolOutputClip
	}
	return &Timeline{
		segments:  make(map[string]*model.Segment),
		retention: retention,
		clip:      toolOutputClip,
	}
}

// UpsertText sets the full content of a text or reasoning segment.
func (t *Timeline) UpsertText(key string, kind model.SegmentKind, fullText string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	seg := t.getOrCreate(key, kind)
	seg.Content = fullText
}

// AppendText appends a reconciled delta to a text or reasoning segment.
func (t *Timeline) AppendText(key string, kind model.SegmentKind, delta string) {
	if delta == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	seg := t.getOrCreate(key, kind)
	seg.Content += delta
}

// UpsertTool records tool or sub-task progress. Later partial output never
// regresses output already observed: discarded when contained in what is
// stored, replacing when it contains what is stored, concatenated
// otherwise (the tool produced discrete observations).
func (t *Timeline) UpsertTool(key, name string, status model.ToolRunStatus, output string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	seg := t.getOrCreate(key, model.SegmentTool)
	if name != "" {
		seg.ToolName = name
	}
	if status != "" {
		seg.ToolStatus = status
	}
	seg.ToolOutput = mergeToolOutput(seg.ToolOutput, output)
	t.clipToolOutput(seg)
}

// UpsertNote records a note segment (retry notices, classified errors,
// compaction markers).
func (t *Timeline) UpsertNote(key, text string, variant model.NoteVariant) {
	t.mu.Lock()
	defer t.mu.Unlock()
	seg := t.getOrCreate(key, model.SegmentNote)
	seg.Content = text
	seg.Variant = variant
}

// Snapshot returns the segments in insertion order. Blank text and
// reasoning segments are filtered out of the snapshot but retained
// internally, a later delta may still fill them in.
func (t *Timeline) Snapshot() []model.Segment {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]model.Segment, 0, len(t.order))
	for _, key := range t.order {
		seg := t.segments[key]
		if seg == nil {
			continue
		}
		switch seg.Kind {
		case model.SegmentText, model.SegmentReasoning:
			if strings.TrimSpace(seg.Content) == "" {
				continue
			}
		}
		out = append(out, *seg)
	}
	return out
}

// Len returns the number of retained segments, including blank ones.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Reset drops all segments. Called when a new turn begins.
func (t *Timeline) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = nil
	t.segments = make(map[string]*model.Segment)
}

// getOrCreate returns the segment for key, creating it at the tail of the
// insertion order. A key never changes kind: the stored kind wins when the
// caller disagrees. Caller must hold the lock.
func (t *Timeline) getOrCreate(key string, kind model.SegmentKind) *model.Segment {
	if seg, ok := t.segments[key]; ok {
		return seg
	}
	seg := &model.Segment{Key: key, Kind: kind}
	t.segments[key] = seg
	t.order = append(t.order, key)
	t.evict(key)
	return seg
}

// evict drops oldest segments over the retention cap, never the one the
// in-flight event is mutating. Caller must hold the lock.
func (t *Timeline) evict(active string) {
	for len(t.order) > t.retention {
		victim := -1
		for i, key := range t.order {
			if key != active {
				victim = i
				break
			}
		}
		if victim < 0 {
			return
		}
		key := t.order[victim]
		t.order = append(t.order[:victim], t.order[victim+1:]...)
		delete(t.segments, key)
	}
}

func (t *Timeline) clipToolOutput(seg *model.Segment) {
	if len(seg.ToolOutput) <= t.clip {
		return
	}
	dropped := len(seg.ToolOutput) - t.clip
	seg.ToolOutput = seg.ToolOutput[dropped:]
	seg.ClippedBytes += dropped
}

func mergeToolOutput(stored, incoming string) string {
	switch {
	case incoming == "" || strings.Contains(stored, incoming):
		return stored
	case stored == "" || strings.Contains(incoming, stored):
		return incoming
	default:
		return stored + "\n" + incoming
	}
}

// ClipAnnotation renders the head-drop marker for a clipped segment.
func ClipAnnotation(seg *model.Segment) string {
	if seg.ClippedBytes == 0 {
		return ""
	}
	return fmt.Sprintf("… [%d bytes clipped]\n", seg.ClippedBytes)
}
