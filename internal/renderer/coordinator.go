// Package renderer reconciles the runtime event stream into bounded chat
// artifacts, one conversation at a time.
package renderer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cardbridge/stream-renderer/internal/approval"
	"github.com/cardbridge/stream-renderer/internal/ledger"
	"github.com/cardbridge/stream-renderer/internal/model"
	"github.com/cardbridge/stream-renderer/internal/paginate"
	"github.com/cardbridge/stream-renderer/internal/reconcile"
	"github.com/cardbridge/stream-renderer/internal/renderbuf"
	"github.com/cardbridge/stream-renderer/internal/runtime"
	"github.com/cardbridge/stream-renderer/internal/sink"
	"github.com/cardbridge/stream-renderer/pkg/logger"
)

var (
	// ErrUnknownConversation signals an operation on a key with no live
	// state.
	ErrUnknownConversation = errors.New("unknown conversation")

	// ErrStalePermission signals a reply to a permission that is no
	// longer queued (resolved or expired). A distinct signal so the
	// caller can tell the user to use the latest state.
	ErrStalePermission = errors.New("stale permission request")
)

// Options tunes the renderer core.
type Options struct {
	FlushDebounce    time.Duration
	ComponentBudget  int
	SegmentRetention int
	ToolOutputClip   int
	PermissionTTL    time.Duration
}

// Coordinator owns all per-conversation renderer state and the flush
// pipeline toward the render sink.
type Coordinator struct {
	store      *store
	reconciler *reconcile.Reconciler
	perms      *approval.PermissionQueue
	questions  *approval.QuestionCoordinator
	paginator  *paginate.Paginator
	differ     *paginate.Differ
	sink       sink.Sink
	runtime    runtime.Client
	undoer     *ledger.Undoer
	opts       Options
	logger     *logger.Logger
}

// New creates a coordinator writing through s and controlling rt.
func New(s sink.Sink, rt runtime.Client, opts Options, log *logger.Logger) *Coordinator {
	return &Coordinator{
		store:      newStore(),
		reconciler: reconcile.New(),
		perms:      approval.NewPermissionQueue(opts.PermissionTTL),
		questions:  approval.NewQuestionCoordinator(),
		paginator:  paginate.New(opts.ComponentBudget),
		differ:     paginate.NewDiffer(s, log),
		sink:       s,
		runtime:    rt,
		undoer:     ledger.NewUndoer(rt, s, log),
		opts:       opts,
		logger:     log,
	}
}

// Bind starts a new turn for a conversation, creating its state when
// needed. The user artifact ID links the turn to the ledger entry that
// undo later clears.
func (c *Coordinator) Bind(key, chatID, sessionID, userArtifactID string) *Conversation {
	conv, created := c.store.getOrCreate(key, chatID, sessionID, c.opts.SegmentRetention, c.opts.ToolOutputClip)
	if !created {
		conv.timeline.Reset()
	}

	var buf *renderbuf.Buffer
	buf = renderbuf.New(sessionID, userArtifactID, c.opts.FlushDebounce, func() {
		c.flush(conv, buf)
	})
	if prev := conv.resetForTurn(buf); prev != nil {
		prev.Stop()
	}

	c.logger.Info("turn bound",
		zap.String("conversation_key", key),
		zap.String("session_id", sessionID),
		zap.Bool("created", created),
	)
	return conv
}

// Drop discards all state for a conversation.
func (c *Coordinator) Drop(key string) {
	conv := c.store.drop(key)
	if conv == nil {
		return
	}
	if buf := conv.currentBuffer(); buf != nil {
		buf.Stop()
	}
	c.reconciler.Purge(conv.SessionID)
	c.perms.Drop(key)
	c.logger.Info("conversation dropped", zap.String("conversation_key", key))
}

// List returns the keys of all live conversations.
func (c *Coordinator) List() []string {
	return c.store.keys()
}

// View is a point-in-time inspection of one conversation.
type View struct {
	Key                string             `json:"key"`
	ChatID             string             `json:"chat_id"`
	SessionID          string             `json:"session_id"`
	Status             model.TurnStatus   `json:"status"`
	Segments           []model.Segment    `json:"segments"`
	ArtifactIDs        []string           `json:"artifact_ids"`
	LedgerLen          int                `json:"ledger_len"`
	PendingPermissions int                `json:"pending_permissions"`
	QuestionPending    bool               `json:"question_pending"`
}

// Inspect returns the current state of one conversation.
func (c *Coordinator) Inspect(key string) (*View, error) {
	conv := c.store.get(key)
	if conv == nil {
		return nil, ErrUnknownConversation
	}
	view := &View{
		Key:                conv.Key,
		ChatID:             conv.ChatID,
		SessionID:          conv.SessionID,
		Segments:           conv.timeline.Snapshot(),
		LedgerLen:          conv.ledger.Len(),
		PendingPermissions: c.perms.Size(key),
		QuestionPending:    c.questions.Pending(conv.SessionID),
	}
	if buf := conv.currentBuffer(); buf != nil {
		view.Status = buf.Status()
		view.ArtifactIDs = buf.ArtifactIDs()
	}
	return view, nil
}

// Undo pops and clears the most recent exchange, then posts a transient
// notice with the outcome.
func (c *Coordinator) Undo(ctx context.Context, key string) error {
	conv := c.store.get(key)
	if conv == nil {
		return ErrUnknownConversation
	}

	err := c.undoer.Undo(ctx, conv.ledger, conv.SessionID)
	notice := "undone"
	if errors.Is(err, ledger.ErrNothingToUndo) {
		notice = "nothing to undo"
	}
	if _, sendErr := c.sink.SendArtifact(ctx, conv.ChatID, c.paginator.RenderNotice(notice)); sendErr != nil {
		c.logger.Warn("undo notice failed",
			zap.String("conversation_key", key),
			zap.Error(sendErr),
		)
	}
	return err
}

// Abort asks the runtime to cancel the in-flight turn. The aborted status
// arrives later as a normal event.
func (c *Coordinator) Abort(ctx context.Context, key string) error {
	conv := c.store.get(key)
	if conv == nil {
		return ErrUnknownConversation
	}
	return c.runtime.Abort(ctx, conv.SessionID)
}

// RespondPermission answers a queued permission request. Unknown or
// expired IDs are a stale no-op.
func (c *Coordinator) RespondPermission(ctx context.Context, key, permissionID string, allow, remember bool) error {
	conv := c.store.get(key)
	if conv == nil {
		return ErrUnknownConversation
	}
	pending := c.perms.Resolve(key, permissionID)
	if pending == nil {
		return ErrStalePermission
	}
	if err := c.runtime.RespondPermission(ctx, pending.SessionID, permissionID, allow, remember); err != nil {
		return err
	}
	if buf := conv.currentBuffer(); buf != nil {
		buf.Touch()
	}
	return nil
}

// AnswerQuestion records an answer for the current question. Values and
// custom text are mutually exclusive; custom wins when both arrive.
func (c *Coordinator) AnswerQuestion(ctx context.Context, key string, values []string, custom string) error {
	conv := c.store.get(key)
	if conv == nil {
		return ErrUnknownConversation
	}
	if custom != "" {
		if err := c.questions.SetCustom(conv.SessionID, custom); err != nil {
			return err
		}
	} else {
		if err := c.questions.SetDraft(conv.SessionID, values); err != nil {
			return err
		}
	}
	requestID, answers, done, err := c.questions.Answer(conv.SessionID)
	if err != nil {
		return err
	}
	return c.afterQuestionAdvance(ctx, conv, requestID, answers, done)
}

// SkipQuestion records an empty answer for the current question.
func (c *Coordinator) SkipQuestion(ctx context.Context, key string) error {
	conv := c.store.get(key)
	if conv == nil {
		return ErrUnknownConversation
	}
	requestID, answers, done, err := c.questions.Skip(conv.SessionID)
	if err != nil {
		return err
	}
	return c.afterQuestionAdvance(ctx, conv, requestID, answers, done)
}

// RejectQuestion destroys the pending question state without submitting.
func (c *Coordinator) RejectQuestion(ctx context.Context, key string) error {
	conv := c.store.get(key)
	if conv == nil {
		return ErrUnknownConversation
	}
	requestID, err := c.questions.Reject(conv.SessionID)
	if err != nil {
		return err
	}
	if err := c.runtime.RejectQuestion(ctx, requestID); err != nil {
		c.logger.Warn("question reject failed",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
	if buf := conv.currentBuffer(); buf != nil {
		buf.Touch()
	}
	return nil
}

// afterQuestionAdvance either prompts the next question or submits all
// answers. Every prompt card gets its own question_prompt ledger entry so
// an undo of the answer cascades through them.
func (c *Coordinator) afterQuestionAdvance(ctx context.Context, conv *Conversation, requestID string, answers [][]string, done bool) error {
	if !done {
		c.promptCurrentQuestion(ctx, conv)
		return nil
	}

	if err := c.runtime.ReplyQuestion(ctx, requestID, answers); err != nil {
		return err
	}
	noticeID, err := c.sink.SendArtifact(ctx, conv.ChatID, c.paginator.RenderNotice("answers submitted"))
	if err != nil {
		c.logger.Warn("answer notice failed", zap.Error(err))
	}
	entry := &model.Interaction{
		Kind:      model.InteractionQuestionAnswer,
		CreatedAt: time.Now(),
	}
	if noticeID != "" {
		entry.BotArtifactIDs = []string{noticeID}
	}
	conv.ledger.Add(entry)
	if buf := conv.currentBuffer(); buf != nil {
		buf.Touch()
	}
	return nil
}

// promptCurrentQuestion sends the dedicated card for the question at the
// cursor and records it in the ledger.
func (c *Coordinator) promptCurrentQuestion(ctx context.Context, conv *Conversation) {
	doc := c.renderQuestionCard(conv.SessionID)
	if doc == nil {
		return
	}
	id, err := c.sink.SendArtifact(ctx, conv.ChatID, doc)
	if err != nil {
		c.logger.Warn("question prompt failed",
			zap.String("conversation_key", conv.Key),
			zap.Error(err),
		)
		return
	}
	conv.ledger.Add(&model.Interaction{
		Kind:           model.InteractionQuestionPrompt,
		BotArtifactIDs: []string{id},
		CreatedAt:      time.Now(),
	})
}

// renderQuestionCard builds the prompt card for the question at the
// cursor, showing only the current option page.
func (c *Coordinator) renderQuestionCard(sessionID string) *model.Document {
	q, index, total, err := c.questions.Current(sessionID)
	if err != nil {
		return nil
	}
	options, offset, more, err := c.questions.PageOptions(sessionID)
	if err != nil {
		return nil
	}
	return c.paginator.RenderQuestion(q, index, total, options, offset, more)
}

// QuestionOptionsView is the ops API's view of the pending question.
type QuestionOptionsView struct {
	Prompt      string   `json:"prompt"`
	Index       int      `json:"index"`
	Total       int      `json:"total"`
	Options     []string `json:"options"`
	More        bool     `json:"more"`
	Multiple    bool     `json:"multiple"`
	AllowCustom bool     `json:"allow_custom"`
}

// QuestionOptions returns the current question and its visible option
// page.
func (c *Coordinator) QuestionOptions(key string) (*QuestionOptionsView, error) {
	conv := c.store.get(key)
	if conv == nil {
		return nil, ErrUnknownConversation
	}
	q, index, total, err := c.questions.Current(conv.SessionID)
	if err != nil {
		return nil, err
	}
	options, _, more, err := c.questions.PageOptions(conv.SessionID)
	if err != nil {
		return nil, err
	}
	return &QuestionOptionsView{
		Prompt:      q.Prompt,
		Index:       index,
		Total:       total,
		Options:     options,
		More:        more,
		Multiple:    q.Multiple,
		AllowCustom: q.AllowCustom,
	}, nil
}

// NextQuestionPage advances the option page and refreshes the prompt card
// in place.
func (c *Coordinator) NextQuestionPage(ctx context.Context, key string) error {
	conv := c.store.get(key)
	if conv == nil {
		return ErrUnknownConversation
	}
	if err := c.questions.NextPage(conv.SessionID); err != nil {
		return err
	}
	doc := c.renderQuestionCard(conv.SessionID)
	if doc == nil {
		return nil
	}
	top := conv.ledger.PeekLast()
	if top == nil || top.Kind != model.InteractionQuestionPrompt || len(top.BotArtifactIDs) == 0 {
		return nil
	}
	if err := c.sink.UpdateArtifact(ctx, top.BotArtifactIDs[0], doc); err != nil {
		c.logger.Warn("question page refresh failed",
			zap.String("conversation_key", key),
			zap.Error(err),
		)
	}
	return nil
}
