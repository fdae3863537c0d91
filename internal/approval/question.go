package approval

import (
	"errors"
	"sync"

	"github.com/cardbridge/stream-renderer/internal/model"
)

// OptionPageSize is how many options one prompt card shows at a time.
const OptionPageSize = 8

var (
	// ErrNoPendingQuestion signals there is no outstanding question set.
	ErrNoPendingQuestion = errors.New("no pending question")

	// ErrStaleQuestion signals a reply referenced a superseded request.
	ErrStaleQuestion = errors.New("stale question request")
)

// questionFlow is the pending state for one session: the outstanding set,
// the current-question cursor, per-question drafts and the option page.
type questionFlow struct {
	set     model.QuestionSet
	cursor  int
	drafts  [][]string
	customs []string
	pages   []int
}

// QuestionCoordinator holds at most one pending question set per session.
// Created when the runtime asks, destroyed on submit or explicit reject.
type QuestionCoordinator struct {
	mu        sync.Mutex
	bySession map[string]*questionFlow
}

// NewQuestionCoordinator creates an empty coordinator.
func NewQuestionCoordinator() *QuestionCoordinator {
	return &QuestionCoordinator{bySession: make(map[string]*questionFlow)}
}

// Ask installs a new pending set for the session, replacing any previous
// one.
func (c *QuestionCoordinator) Ask(set model.QuestionSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(set.Questions)
	c.bySession[set.SessionID] = &questionFlow{
		set:     set,
		drafts:  make([][]string, n),
		customs: make([]string, n),
		pages:   make([]int, n),
	}
}

// Current returns the question at the cursor plus its position.
func (c *QuestionCoordinator) Current(sessionID string) (q model.Question, index, total int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	flow, ok := c.bySession[sessionID]
	if !ok {
		return model.Question{}, 0, 0, ErrNoPendingQuestion
	}
	return flow.set.Questions[flow.cursor], flow.cursor, len(flow.set.Questions), nil
}

// RequestID returns the pending request's ID.
func (c *QuestionCoordinator) RequestID(sessionID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	flow, ok := c.bySession[sessionID]
	if !ok {
		return "", ErrNoPendingQuestion
	}
	return flow.set.RequestID, nil
}

// SetDraft records selected option values for the current question,
// clearing any custom free-text answer. Draft and custom are mutually
// exclusive.
func (c *QuestionCoordinator) SetDraft(sessionID string, values []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	flow, ok := c.bySession[sessionID]
	if !ok {
		return ErrNoPendingQuestion
	}
	flow.drafts[flow.cursor] = append([]string(nil), values...)
	flow.customs[flow.cursor] = ""
	return nil
}

// SetCustom records a free-text answer for the current question, clearing
// any selected options.
func (c *QuestionCoordinator) SetCustom(sessionID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	flow, ok := c.bySession[sessionID]
	if !ok {
		return ErrNoPendingQuestion
	}
	flow.customs[flow.cursor] = text
	flow.drafts[flow.cursor] = nil
	return nil
}

// Draft returns the current question's draft answer.
func (c *QuestionCoordinator) Draft(sessionID string) (values []string, custom string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	flow, ok := c.bySession[sessionID]
	if !ok {
		return nil, "", ErrNoPendingQuestion
	}
	return append([]string(nil), flow.drafts[flow.cursor]...), flow.customs[flow.cursor], nil
}

// PageOptions returns the option slice for the current page, the absolute
// index of its first option, and whether more pages follow.
func (c *QuestionCoordinator) PageOptions(sessionID string) (options []string, offset int, more bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	flow, ok := c.bySession[sessionID]
	if !ok {
		return nil, 0, false, ErrNoPendingQuestion
	}
	all := flow.set.Questions[flow.cursor].Options
	start := flow.pages[flow.cursor] * OptionPageSize
	if start >= len(all) {
		return nil, 0, false, nil
	}
	end := start + OptionPageSize
	if end > len(all) {
		end = len(all)
	}
	return append([]string(nil), all[start:end]...), start, end < len(all), nil
}

// NextPage advances the current question's option page, wrapping to the
// first page past the end.
func (c *QuestionCoordinator) NextPage(sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	flow, ok := c.bySession[sessionID]
	if !ok {
		return ErrNoPendingQuestion
	}
	total := len(flow.set.Questions[flow.cursor].Options)
	pageCount := (total + OptionPageSize - 1) / OptionPageSize
	if pageCount <= 1 {
		return nil
	}
	flow.pages[flow.cursor] = (flow.pages[flow.cursor] + 1) % pageCount
	return nil
}

// Answer commits the current question's draft and advances the cursor. On
// the last question it returns done=true with all answers and destroys the
// pending state; submitting them to the runtime is the caller's job.
func (c *QuestionCoordinator) Answer(sessionID string) (requestID string, answers [][]string, done bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	flow, ok := c.bySession[sessionID]
	if !ok {
		return "", nil, false, ErrNoPendingQuestion
	}

	if custom := flow.customs[flow.cursor]; custom != "" {
		flow.drafts[flow.cursor] = []string{custom}
	}

	if flow.cursor+1 < len(flow.set.Questions) {
		flow.cursor++
		return flow.set.RequestID, nil, false, nil
	}

	answers = make([][]string, len(flow.drafts))
	for i, d := range flow.drafts {
		answers[i] = append([]string(nil), d...)
	}
	delete(c.bySession, sessionID)
	return flow.set.RequestID, answers, true, nil
}

// Skip records an empty answer for the current question and advances
// identically to Answer.
func (c *QuestionCoordinator) Skip(sessionID string) (requestID string, answers [][]string, done bool, err error) {
	c.mu.Lock()
	flow, ok := c.bySession[sessionID]
	if !ok {
		c.mu.Unlock()
		return "", nil, false, ErrNoPendingQuestion
	}
	flow.drafts[flow.cursor] = nil
	flow.customs[flow.cursor] = ""
	c.mu.Unlock()
	return c.Answer(sessionID)
}

// Reject destroys the pending state without submitting and returns the
// request ID so the caller can tell the runtime.
func (c *QuestionCoordinator) Reject(sessionID string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	flow, ok := c.bySession[sessionID]
	if !ok {
		return "", ErrNoPendingQuestion
	}
	delete(c.bySession, sessionID)
	return flow.set.RequestID, nil
}

// Pending reports whether the session has an outstanding question set.
func (c *QuestionCoordinator) Pending(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.bySession[sessionID]
	return ok
}
