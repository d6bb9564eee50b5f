package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/chat"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/pkg/engine"
)

// TurnHandler answers one user message within a conversation.
type TurnHandler interface {
	Handle(ctx context.Context, req chat.TurnRequest) (*chat.TurnResult, error)
}

// ChatHandler handles conversational requests.
type ChatHandler struct {
	logger *observability.Logger
	turns  TurnHandler
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(logger *observability.Logger, turns TurnHandler) *ChatHandler {
	return &ChatHandler{logger: logger, turns: turns}
}

// Chat handles POST /api/v1/chat.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req engine.ChatRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, err)
		return
	}

	var conversationID uuid.UUID
	if req.ConversationID != "" {
		conversationID = uuid.MustParse(req.ConversationID)
	}

	result, err := h.turns.Handle(ctx, chat.TurnRequest{ConversationID: conversationID, Message: req.Message})
	if err != nil {
		writeServiceError(ctx, w, h.logger, "chat failed", err)
		return
	}

	writeJSON(w, http.StatusOK, engine.ChatResponse{
		ConversationID:     result.ConversationID.String(),
		Content:            result.Content,
		QueryType:          string(result.QueryType),
		ResponseType:       string(result.ResponseType),
		ClassifierFallback: result.Fallback,
		Filters:            toFilters(result.Filters),
		ProductIDs:         toIDStrings(result.ProductIDs),
		Products:           toProducts(result.Products),
		Counts:             toCounts(result.Counts),
		DurationMs:         result.DurationMs,
	})
}
