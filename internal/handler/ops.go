// Package handler provides HTTP handlers for the ops API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cardbridge/stream-renderer/internal/approval"
	"github.com/cardbridge/stream-renderer/internal/ledger"
	"github.com/cardbridge/stream-renderer/internal/middleware"
	"github.com/cardbridge/stream-renderer/internal/renderer"
	"github.com/cardbridge/stream-renderer/pkg/logger"
)

// OpsHandler exposes the renderer's conversation controls over HTTP.
type OpsHandler struct {
	coordinator *renderer.Coordinator
	logger      *logger.Logger
}

// NewOpsHandler creates a new ops handler.
func NewOpsHandler(c *renderer.Coordinator, log *logger.Logger) *OpsHandler {
	return &OpsHandler{
		coordinator: c,
		logger:      log,
	}
}

// BindRequest binds a chat surface to a runtime session.
type BindRequest struct {
	Key            string `json:"key"`
	ChatID         string `json:"chat_id"`
	SessionID      string `json:"session_id"`
	UserArtifactID string `json:"user_artifact_id"`
}

// Bind handles POST /api/v1/conversations
func (h *OpsHandler) Bind(w http.ResponseWriter, r *http.Request) {
	var req BindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateConversationKey(req.Key); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateSessionID(req.SessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ChatID == "" {
		writeError(w, http.StatusBadRequest, "chat_id cannot be empty")
		return
	}

	h.coordinator.Bind(req.Key, req.ChatID, req.SessionID, req.UserArtifactID)
	writeJSON(w, http.StatusCreated, map[string]string{"key": req.Key})
}

// List handles GET /api/v1/conversations
func (h *OpsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"conversations": h.coordinator.List(),
	})
}

// Inspect handles GET /api/v1/conversations/{key}
func (h *OpsHandler) Inspect(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	view, err := h.coordinator.Inspect(key)
	if err != nil {
		h.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Drop handles DELETE /api/v1/conversations/{key}
func (h *OpsHandler) Drop(w http.ResponseWriter, r *http.Request) {
	h.coordinator.Drop(chi.URLParam(r, "key"))
	w.WriteHeader(http.StatusNoContent)
}

// Undo handles POST /api/v1/conversations/{key}/undo
func (h *OpsHandler) Undo(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.coordinator.Undo(r.Context(), key); err != nil {
		h.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "undone"})
}

// Abort handles POST /api/v1/conversations/{key}/abort
func (h *OpsHandler) Abort(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.coordinator.Abort(r.Context(), key); err != nil {
		h.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "aborting"})
}

// PermissionRequest answers a queued permission prompt.
type PermissionRequest struct {
	PermissionID string `json:"permission_id"`
	Allow        bool   `json:"allow"`
	Remember     bool   `json:"remember"`
}

// RespondPermission handles POST /api/v1/conversations/{key}/permission
func (h *OpsHandler) RespondPermission(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req PermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PermissionID == "" {
		writeError(w, http.StatusBadRequest, "permission_id cannot be empty")
		return
	}

	if err := h.coordinator.RespondPermission(r.Context(), key, req.PermissionID, req.Allow, req.Remember); err != nil {
		h.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "responded"})
}

// AnswerRequest carries one answer for the current question. Values and
// custom text are mutually exclusive.
type AnswerRequest struct {
	Values []string `json:"values,omitempty"`
	Custom string   `json:"custom,omitempty"`
}

// AnswerQuestion handles POST /api/v1/conversations/{key}/question/answer
func (h *OpsHandler) AnswerQuestion(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateAnswerText(req.Custom); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.coordinator.AnswerQuestion(r.Context(), key, req.Values, req.Custom); err != nil {
		h.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "answered"})
}

// Question handles GET /api/v1/conversations/{key}/question
func (h *OpsHandler) Question(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	view, err := h.coordinator.QuestionOptions(key)
	if err != nil {
		h.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// NextQuestionPage handles POST /api/v1/conversations/{key}/question/page
func (h *OpsHandler) NextQuestionPage(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.coordinator.NextQuestionPage(r.Context(), key); err != nil {
		h.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paged"})
}

// SkipQuestion handles POST /api/v1/conversations/{key}/question/skip
func (h *OpsHandler) SkipQuestion(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.coordinator.SkipQuestion(r.Context(), key); err != nil {
		h.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "skipped"})
}

// RejectQuestion handles POST /api/v1/conversations/{key}/question/reject
func (h *OpsHandler) RejectQuestion(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.coordinator.RejectQuestion(r.Context(), key); err != nil {
		h.writeCoordinatorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (h *OpsHandler) writeCoordinatorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, renderer.ErrUnknownConversation):
		writeError(w, http.StatusNotFound, "unknown conversation")
	case errors.Is(err, renderer.ErrStalePermission):
		writeError(w, http.StatusConflict, "permission request expired or already resolved")
	case errors.Is(err, approval.ErrNoPendingQuestion):
		writeError(w, http.StatusConflict, "no question pending")
	case errors.Is(err, approval.ErrStaleQuestion):
		writeError(w, http.StatusConflict, "question no longer current")
	case errors.Is(err, ledger.ErrNothingToUndo):
		writeError(w, http.StatusConflict, "nothing to undo")
	default:
		h.logger.Error("ops request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
