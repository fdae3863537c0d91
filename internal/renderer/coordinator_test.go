package renderer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cardbridge/stream-renderer/internal/approval"
	"github.com/cardbridge/stream-renderer/internal/model"
	"github.com/cardbridge/stream-renderer/pkg/logger"
)

type recordedDoc struct {
	ChatID string
	Doc    model.Document
}

type fakeSink struct {
	mu      sync.Mutex
	sends   []recordedDoc
	updates map[string]model.Document
	deletes []string
	nextID  int
}

func newFakeSink() *fakeSink {
	return &fakeSink{updates: make(map[string]model.Document)}
}

func (f *fakeSink) SendArtifact(ctx context.Context, chatID string, doc *model.Document) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, recordedDoc{ChatID: chatID, Doc: *doc})
	f.nextID++
	return fmt.Sprintf("art-%d", f.nextID), nil
}

func (f *fakeSink) UpdateArtifact(ctx context.Context, artifactID string, doc *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[artifactID] = *doc
	return nil
}

func (f *fakeSink) DeleteArtifact(ctx context.Context, artifactID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, artifactID)
	return nil
}

func (f *fakeSink) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends) + len(f.updates) + len(f.deletes)
}

func (f *fakeSink) sentDocs() []recordedDoc {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedDoc(nil), f.sends...)
}

type fakeRuntime struct {
	mu          sync.Mutex
	aborts      []string
	rollbacks   []string
	permissions []string
	replies     map[string][][]string
	rejects     []string
	messages    []model.RuntimeMessage
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{replies: make(map[string][][]string)}
}

func (f *fakeRuntime) Abort(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborts = append(f.aborts, sessionID)
	return nil
}

func (f *fakeRuntime) ListMessages(ctx context.Context, sessionID string) ([]model.RuntimeMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages, nil
}

func (f *fakeRuntime) Rollback(ctx context.Context, sessionID, targetMessageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollbacks = append(f.rollbacks, targetMessageID)
	return nil
}

func (f *fakeRuntime) RespondPermission(ctx context.Context, sessionID, permissionID string, allow, remember bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permissions = append(f.permissions, permissionID)
	return nil
}

func (f *fakeRuntime) ReplyQuestion(ctx context.Context, requestID string, answers [][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[requestID] = answers
	return nil
}

func (f *fakeRuntime) RejectQuestion(ctx context.Context, requestID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects = append(f.rejects, requestID)
	return nil
}

func testCoordinator(t *testing.T) (*Coordinator, *fakeSink, *fakeRuntime) {
	t.Helper()
	fs := newFakeSink()
	rt := newFakeRuntime()
	c := New(fs, rt, Options{
		FlushDebounce:    10 * time.Millisecond,
		ComponentBudget:  40,
		SegmentRetention: 80,
		ToolOutputClip:   6000,
	}, logger.NewNop())
	return c, fs, rt
}

func envelope(t *testing.T, typ model.EventType, sessionID string, payload any) *model.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return &model.Envelope{Type: typ, SessionID: sessionID, Payload: data}
}

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

func TestEmptyRunningTurnSuppressed(t *testing.T) {
	c, fs, _ := testCoordinator(t)
	conv := c.Bind("c1", "chat-1", "s1", "u1")

	conv.currentBuffer().Touch()
	time.Sleep(100 * time.Millisecond)

	if n := fs.callCount(); n != 0 {
		t.Fatalf("empty running flush must produce zero sink calls, got %d", n)
	}
}

func TestTextDeltaRendersCard(t *testing.T) {
	c, fs, _ := testCoordinator(t)
	c.Bind("c1", "chat-1", "s1", "u1")
	ctx := context.Background()

	c.HandleEvent(ctx, envelope(t, model.EventTypePartDelta, "s1", model.PartDeltaEvent{
		SessionID: "s1",
		Part:      &model.Part{ID: "p1", Type: model.PartText, Text: "Hello"},
	}))
	c.HandleEvent(ctx, envelope(t, model.EventTypePartDelta, "s1", model.PartDeltaEvent{
		SessionID: "s1",
		Part:      &model.Part{ID: "p1", Type: model.PartText, Text: "Hello, world"},
	}))

	waitFor(t, func() bool {
		view, err := c.Inspect("c1")
		return err == nil && len(view.ArtifactIDs) == 1
	})

	doc := fs.sentDocs()[0]
	if doc.ChatID != "chat-1" {
		t.Fatalf("chat ID=%q", doc.ChatID)
	}
	body := doc.Doc.Body()
	if !strings.Contains(body, "Hello, world") {
		t.Fatalf("body=%q", body)
	}
	if strings.Count(body, "Hello") != 1 {
		t.Fatalf("re-sent snapshot duplicated content:\n%s", body)
	}

}

func TestTerminalStatusCommitsInteraction(t *testing.T) {
	c, fs, _ := testCoordinator(t)
	conv := c.Bind("c1", "chat-1", "s1", "u1")
	ctx := context.Background()

	c.HandleEvent(ctx, envelope(t, model.EventTypeMessageUpdated, "s1", model.MessageUpdatedEvent{
		SessionID: "s1",
		Info:      model.MessageInfo{ID: "m2", Role: "assistant"},
	}))
	c.HandleEvent(ctx, envelope(t, model.EventTypePartDelta, "s1", model.PartDeltaEvent{
		SessionID: "s1",
		Part:      &model.Part{ID: "p1", Type: model.PartText, Text: "draft answer"},
	}))
	c.HandleEvent(ctx, envelope(t, model.EventTypeSessionStatus, "s1", model.SessionStatusEvent{
		SessionID: "s1",
		Type:      model.SessionStatusIdle,
	}))

	waitFor(t, func() bool { return conv.ledger.Len() == 1 })

	entry := conv.ledger.PeekLast()
	if entry.Kind != model.InteractionNormal {
		t.Fatalf("kind=%q", entry.Kind)
	}
	if entry.AssistantMessageID != "m2" {
		t.Fatalf("assistant message ID=%q", entry.AssistantMessageID)
	}
	if entry.UserArtifactID != "u1" {
		t.Fatalf("user artifact ID=%q", entry.UserArtifactID)
	}
	if len(entry.BotArtifactIDs) == 0 {
		t.Fatal("committed interaction must own artifacts")
	}
	if len(fs.sentDocs()) == 0 {
		t.Fatal("terminal flush must have rendered")
	}
}

func TestFinalOverrideReplacesAccumulated(t *testing.T) {
	c, _, _ := testCoordinator(t)
	conv := c.Bind("c1", "chat-1", "s1", "u1")
	ctx := context.Background()

	c.HandleEvent(ctx, envelope(t, model.EventTypePartDelta, "s1", model.PartDeltaEvent{
		SessionID: "s1",
		Part:      &model.Part{ID: "p1", Type: model.PartText, Text: "streamed draft"},
	}))
	conv.currentBuffer().SetFinal("polished final", "")
	c.HandleEvent(ctx, envelope(t, model.EventTypeSessionStatus, "s1", model.SessionStatusEvent{
		SessionID: "s1",
		Type:      model.SessionStatusIdle,
	}))

	waitFor(t, func() bool { return conv.ledger.Len() == 1 })

	view, _ := c.Inspect("c1")
	var text string
	for _, seg := range view.Segments {
		if seg.Kind == model.SegmentText {
			text = seg.Content
		}
	}
	if text != "polished final" {
		t.Fatalf("final override not applied, text=%q", text)
	}
}

func TestSessionErrorDeduplicated(t *testing.T) {
	c, _, _ := testCoordinator(t)
	c.Bind("c1", "chat-1", "s1", "u1")
	ctx := context.Background()

	ev := model.SessionErrorEvent{SessionID: "s1", MessageID: "m1", Error: "rate limit exceeded"}
	c.HandleEvent(ctx, envelope(t, model.EventTypeSessionError, "s1", ev))
	c.HandleEvent(ctx, envelope(t, model.EventTypeSessionError, "s1", ev))

	view, _ := c.Inspect("c1")
	notes := 0
	for _, seg := range view.Segments {
		if seg.Kind == model.SegmentNote && seg.Variant == model.NoteError {
			notes++
		}
	}
	if notes != 1 {
		t.Fatalf("repeated error must render one note, got %d", notes)
	}
	if view.Status != model.TurnFailed {
		t.Fatalf("status=%q", view.Status)
	}
}

func TestPermissionFlow(t *testing.T) {
	c, _, rt := testCoordinator(t)
	c.Bind("c1", "chat-1", "s1", "u1")
	ctx := context.Background()

	c.HandleEvent(ctx, envelope(t, model.EventTypePermissionRequest, "s1", model.PermissionRequestEvent{
		SessionID:    "s1",
		PermissionID: "P1",
		Tool:         "bash",
		Description:  "run tests",
	}))

	view, _ := c.Inspect("c1")
	if view.PendingPermissions != 1 {
		t.Fatalf("pending permissions=%d", view.PendingPermissions)
	}

	if err := c.RespondPermission(ctx, "c1", "P1", true, false); err != nil {
		t.Fatalf("respond: %v", err)
	}
	rt.mu.Lock()
	granted := len(rt.permissions)
	rt.mu.Unlock()
	if granted != 1 {
		t.Fatalf("runtime permission calls=%d", granted)
	}

	if err := c.RespondPermission(ctx, "c1", "P1", true, false); !errors.Is(err, ErrStalePermission) {
		t.Fatalf("stale reply err=%v", err)
	}
}

func TestQuestionFlowAndUndoCascade(t *testing.T) {
	c, _, rt := testCoordinator(t)
	conv := c.Bind("c1", "chat-1", "s1", "u1")
	ctx := context.Background()
	rt.messages = []model.RuntimeMessage{
		{ID: "m1", Role: "user"},
		{ID: "m2", Role: "assistant"},
	}

	// Seed a committed normal interaction below the question exchange.
	conv.ledger.Add(&model.Interaction{
		Kind:               model.InteractionNormal,
		AssistantMessageID: "m2",
		BotArtifactIDs:     []string{"seed"},
		CreatedAt:          time.Now(),
	})

	c.HandleEvent(ctx, envelope(t, model.EventTypeQuestionAsked, "s1", model.QuestionAskedEvent{
		ID:        "req-1",
		SessionID: "s1",
		Questions: []model.Question{
			{Prompt: "first", Options: []string{"a", "b"}},
			{Prompt: "second", Options: []string{"x", "y"}},
		},
	}))

	if conv.ledger.Len() != 2 || conv.ledger.PeekLast().Kind != model.InteractionQuestionPrompt {
		t.Fatalf("prompt entry missing, len=%d", conv.ledger.Len())
	}

	if err := c.AnswerQuestion(ctx, "c1", []string{"a"}, ""); err != nil {
		t.Fatalf("answer 1: %v", err)
	}
	if conv.ledger.Len() != 3 {
		t.Fatalf("second prompt entry missing, len=%d", conv.ledger.Len())
	}

	if err := c.AnswerQuestion(ctx, "c1", nil, "custom answer"); err != nil {
		t.Fatalf("answer 2: %v", err)
	}

	rt.mu.Lock()
	answers := rt.replies["req-1"]
	rt.mu.Unlock()
	if len(answers) != 2 || answers[0][0] != "a" || answers[1][0] != "custom answer" {
		t.Fatalf("submitted answers=%v", answers)
	}
	if conv.ledger.PeekLast().Kind != model.InteractionQuestionAnswer {
		t.Fatalf("top kind=%q", conv.ledger.PeekLast().Kind)
	}

	// Undo clears the whole question exchange with one rollback.
	if err := c.Undo(ctx, "c1"); err != nil {
		t.Fatalf("undo: %v", err)
	}
	rt.mu.Lock()
	rollbacks := len(rt.rollbacks)
	rt.mu.Unlock()
	if rollbacks != 1 {
		t.Fatalf("rollbacks=%d, want 1", rollbacks)
	}
	if conv.ledger.Len() != 1 || conv.ledger.PeekLast().Kind != model.InteractionNormal {
		t.Fatalf("ledger after cascade: len=%d", conv.ledger.Len())
	}
}

func TestQuestionOptionPaging(t *testing.T) {
	c, fs, _ := testCoordinator(t)
	c.Bind("c1", "chat-1", "s1", "u1")
	ctx := context.Background()

	options := make([]string, approval.OptionPageSize+2)
	for i := range options {
		options[i] = fmt.Sprintf("opt-%d", i)
	}
	c.HandleEvent(ctx, envelope(t, model.EventTypeQuestionAsked, "s1", model.QuestionAskedEvent{
		ID:        "req-1",
		SessionID: "s1",
		Questions: []model.Question{{Prompt: "pick", Options: options}},
	}))

	view, err := c.QuestionOptions("c1")
	if err != nil {
		t.Fatalf("question options: %v", err)
	}
	if len(view.Options) != approval.OptionPageSize || !view.More {
		t.Fatalf("first page=%v more=%v", view.Options, view.More)
	}

	if err := c.NextQuestionPage(ctx, "c1"); err != nil {
		t.Fatalf("next page: %v", err)
	}
	view, _ = c.QuestionOptions("c1")
	if len(view.Options) != 2 || view.More {
		t.Fatalf("second page=%v more=%v", view.Options, view.More)
	}

	// The prompt card (first artifact sent) is refreshed in place, not
	// re-sent.
	fs.mu.Lock()
	promptDoc, refreshed := fs.updates["art-1"]
	fs.mu.Unlock()
	if !refreshed {
		t.Fatal("prompt card not updated in place")
	}
	if !strings.Contains(strings.Join(promptDoc.Blocks, "\n"), "opt-8") {
		t.Fatalf("refreshed card missing second page: %v", promptDoc.Blocks)
	}
}

func TestUndoNothing(t *testing.T) {
	c, _, _ := testCoordinator(t)
	c.Bind("c1", "chat-1", "s1", "u1")

	err := c.Undo(context.Background(), "c1")
	if err == nil {
		t.Fatal("expected nothing-to-undo error")
	}
	if _, err := c.Inspect("missing"); !errors.Is(err, ErrUnknownConversation) {
		t.Fatalf("err=%v", err)
	}
}

func TestToolEventVisibleWithoutText(t *testing.T) {
	c, fs, _ := testCoordinator(t)
	c.Bind("c1", "chat-1", "s1", "u1")
	ctx := context.Background()

	c.HandleEvent(ctx, envelope(t, model.EventTypePartDelta, "s1", model.PartDeltaEvent{
		SessionID: "s1",
		Part: &model.Part{
			ID:    "t1",
			Type:  model.PartTool,
			Tool:  "search",
			State: &model.ToolState{Status: model.ToolRunning, Output: "querying"},
		},
	}))

	waitFor(t, func() bool { return len(fs.sentDocs()) > 0 })
	body := fs.sentDocs()[0].Doc.Body()
	if !strings.Contains(body, "[tool search: running]") {
		t.Fatalf("body=%q", body)
	}
}

func TestDropClearsState(t *testing.T) {
	c, _, _ := testCoordinator(t)
	c.Bind("c1", "chat-1", "s1", "u1")
	c.Drop("c1")

	if _, err := c.Inspect("c1"); !errors.Is(err, ErrUnknownConversation) {
		t.Fatalf("err=%v", err)
	}
	if len(c.List()) != 0 {
		t.Fatalf("list=%v", c.List())
	}
}
