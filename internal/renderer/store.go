package renderer

import (
	"sync"

	"github.com/cardbridge/stream-renderer/internal/ledger"
	"github.com/cardbridge/stream-renderer/internal/renderbuf"
	"github.com/cardbridge/stream-renderer/internal/timeline"
	"github.com/cardbridge/stream-renderer/pkg/metrics"
)

// Conversation is the live renderer state for one chat thread bound to
// one assistant session. All state is process-lifetime only.
type Conversation struct {
	Key       string
	ChatID    string
	SessionID string

	timeline *timeline.Timeline
	ledger   *ledger.Ledger

	mu                 sync.Mutex
	buffer             *renderbuf.Buffer
	assistantMessageID string
	textKey            string
	seenErrors         map[string]bool
	finalized          bool
}

func (conv *Conversation) currentBuffer() *renderbuf.Buffer {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.buffer
}

func (conv *Conversation) setAssistantMessageID(id string) {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	conv.assistantMessageID = id
}

func (conv *Conversation) getAssistantMessageID() string {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.assistantMessageID
}

func (conv *Conversation) setTextKey(key string) {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	conv.textKey = key
}

func (conv *Conversation) getTextKey() string {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	return conv.textKey
}

// markErrorSeen records an error identity and reports whether it was
// already delivered. Repeated delivery of the same underlying event must
// not spam the timeline.
func (conv *Conversation) markErrorSeen(identity string) bool {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.seenErrors[identity] {
		return true
	}
	conv.seenErrors[identity] = true
	return false
}

func (conv *Conversation) markFinalized() bool {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	if conv.finalized {
		return true
	}
	conv.finalized = true
	return false
}

// store is the keyed conversation table with explicit lifecycle, owned by
// the coordinator.
type store struct {
	mu        sync.Mutex
	byKey     map[string]*Conversation
	bySession map[string]string
}

func newStore() *store {
	return &store{
		byKey:     make(map[string]*Conversation),
		bySession: make(map[string]string),
	}
}

func (s *store) get(key string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byKey[key]
}

func (s *store) getBySession(sessionID string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.bySession[sessionID]; ok {
		return s.byKey[key]
	}
	return nil
}

// getOrCreate returns the conversation for key, creating it when absent.
func (s *store) getOrCreate(key, chatID, sessionID string, retention, clip int) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conv, ok := s.byKey[key]; ok {
		if sessionID != "" && conv.SessionID != sessionID {
			delete(s.bySession, conv.SessionID)
			conv.SessionID = sessionID
			s.bySession[sessionID] = key
		}
		return conv, false
	}
	conv := &Conversation{
		Key:        key,
		ChatID:     chatID,
		SessionID:  sessionID,
		timeline:   timeline.New(retention, clip),
		ledger:     ledger.New(),
		seenErrors: make(map[string]bool),
	}
	s.byKey[key] = conv
	s.bySession[sessionID] = key
	metrics.ActiveConversations.Inc()
	return conv, true
}

func (s *store) drop(key string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.byKey[key]
	if !ok {
		return nil
	}
	delete(s.byKey, key)
	delete(s.bySession, conv.SessionID)
	metrics.ActiveConversations.Dec()
	return conv
}

func (s *store) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.byKey))
	for key := range s.byKey {
		out = append(out, key)
	}
	return out
}

// resetForTurn swaps in a fresh buffer and clears per-turn state. The
// caller stops the previous buffer.
func (conv *Conversation) resetForTurn(buf *renderbuf.Buffer) *renderbuf.Buffer {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	prev := conv.buffer
	conv.buffer = buf
	conv.assistantMessageID = ""
	conv.textKey = ""
	conv.finalized = false
	conv.seenErrors = make(map[string]bool)
	return prev
}
