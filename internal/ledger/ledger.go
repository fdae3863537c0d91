// Package ledger records committed exchanges per conversation and drives
// single-level, possibly cascading, undo.
package ledger

import (
	"sync"

	"github.com/cardbridge/stream-renderer/internal/model"
)

// Ledger is the per-conversation ordered log of interactions, most recent
// last.
type Ledger struct {
	mu      sync.Mutex
	entries []*model.Interaction
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Add commits an interaction at the tail.
func (l *Ledger) Add(entry *model.Interaction) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Update applies mutate to the most recent entry matching pred and reports
// whether one matched. Used to attach freshly created artifact IDs onto an
// in-flight entry rather than committing a duplicate.
func (l *Ledger) Update(pred func(*model.Interaction) bool, mutate func(*model.Interaction)) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if pred(l.entries[i]) {
			mutate(l.entries[i])
			return true
		}
	}
	return false
}

// Pop removes and returns the most recent interaction, or nil.
func (l *Ledger) Pop() *model.Interaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	entry := l.entries[len(l.entries)-1]
	l.entries = l.entries[:len(l.entries)-1]
	return entry
}

// PeekLast returns the most recent interaction without removing it, or nil.
func (l *Ledger) PeekLast() *model.Interaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) == 0 {
		return nil
	}
	return l.entries[len(l.entries)-1]
}

// Len returns the number of committed interactions.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Entries returns a copy of the log, oldest first.
func (l *Ledger) Entries() []*model.Interaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*model.Interaction(nil), l.entries...)
}
