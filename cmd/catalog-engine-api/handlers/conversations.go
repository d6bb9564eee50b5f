package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// ConversationStore reads and deletes stored conversations.
type ConversationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*storage.Conversation, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ConversationHandler serves stored conversations.
type ConversationHandler struct {
	logger        *observability.Logger
	conversations ConversationStore
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(logger *observability.Logger, conversations ConversationStore) *ConversationHandler {
	return &ConversationHandler{logger: logger, conversations: conversations}
}

// Get handles GET /api/v1/conversations/{conversationId}.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "conversationId"))
	if err != nil {
		badRequest(w, err)
		return
	}

	c, err := h.conversations.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, "conversation not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toConversation(c))
}

// Delete handles DELETE /api/v1/conversations/{conversationId}.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "conversationId"))
	if err != nil {
		badRequest(w, err)
		return
	}

	if err := h.conversations.Delete(r.Context(), id); err != nil {
		writeServiceError(r.Context(), w, h.logger, "delete conversation failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
