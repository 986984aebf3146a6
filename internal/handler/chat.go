package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/geniechat/genie/internal/auth"
	"github.com/geniechat/genie/internal/handler/dto"
	"github.com/geniechat/genie/internal/model"
	"github.com/geniechat/genie/internal/service"
)

// ChatPipeline is the service surface the chat handler depends on.
type ChatPipeline interface {
	HandleTurn(ctx context.Context, input service.TurnInput) (*service.TurnOutput, error)
	History(ctx context.Context, userID string) ([]*model.HistoryEntry, error)
}

// ChatHandler handles HTTP requests for chat operations.
type ChatHandler struct {
	svc    ChatPipeline
	logger *slog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(svc ChatPipeline, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		svc:    svc,
		logger: logger,
	}
}

// Chat handles POST /api/v1/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing session token")
		return
	}

	var req dto.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	out, err := h.svc.HandleTurn(r.Context(), service.TurnInput{
		UserID: authCtx.UserID,
		Prompt: req.Prompt,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.logger.Info("chat_turn_completed",
		"user_id", authCtx.UserID,
		"tokens_left", out.TokensLeft,
		"source_count", len(out.Sources),
	)

	writeJSON(w, http.StatusOK, dto.ToChatResponse(out.Answer, out.Sources, out.TokensLeft))
}

// History handles GET /api/v1/chat/history.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing session token")
		return
	}

	entries, err := h.svc.History(r.Context(), authCtx.UserID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToHistoryResponse(entries))
}

// handleServiceError maps service errors to HTTP responses.
func (h *ChatHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrEmptyPrompt):
		writeError(w, http.StatusBadRequest, "EMPTY_PROMPT", "Prompt must not be empty")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusForbidden, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, service.ErrQuotaExhausted):
		writeError(w, http.StatusForbidden, "QUOTA_EXHAUSTED", "No tokens left")
	case errors.Is(err, service.ErrGenerationFailed):
		h.logger.Error("generation_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "GENERATION_FAILED", "Answer generation failed")
	case errors.Is(err, service.ErrPersistenceFailed):
		h.logger.Error("persistence_failed", "error", err)
		writeError(w, http.StatusInternalServerError, "PERSISTENCE_FAILED", "Failed to record the turn")
	default:
		h.logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
