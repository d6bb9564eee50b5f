package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/retrieval"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// ErrEmptyMessage is returned for a blank user message.
var ErrEmptyMessage = errors.New("message is empty")

// QueryClassifier turns a message into a Classification and never fails.
type QueryClassifier interface {
	Classify(ctx context.Context, query string, cc ClassifyContext) Classification
}

// TurnRequest is one user message. A nil ConversationID starts a new conversation.
type TurnRequest struct {
	ConversationID uuid.UUID
	Message        string
}

// TurnResult is the answer to one user message.
type TurnResult struct {
	ConversationID uuid.UUID              `json:"conversation_id"`
	Content        string                 `json:"content"`
	QueryType      QueryType              `json:"query_type"`
	ResponseType   QueryType              `json:"response_type"`
	Fallback       bool                   `json:"classifier_fallback"`
	Filters        retrieval.Filters      `json:"filters"`
	ProductIDs     storage.IDList         `json:"product_ids"`
	Products       []*storage.Product     `json:"products,omitempty"`
	Counts         *storage.ProductCounts `json:"counts,omitempty"`
	DurationMs     int64                  `json:"duration_ms"`
}

// Orchestrator runs a full conversation turn: classify, dispatch, respond,
// and record both messages.
type Orchestrator struct {
	conversations ConversationStore
	products      ProductLoader
	classifier    QueryClassifier
	dispatcher    *Dispatcher
	responses     *ResponseBuilder
	logger        *observability.Logger
}

// NewOrchestrator creates a turn orchestrator.
func NewOrchestrator(
	conversations ConversationStore,
	products ProductLoader,
	classifier QueryClassifier,
	dispatcher *Dispatcher,
	responses *ResponseBuilder,
	logger *observability.Logger,
) *Orchestrator {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Orchestrator{
		conversations: conversations,
		products:      products,
		classifier:    classifier,
		dispatcher:    dispatcher,
		responses:     responses,
		logger:        logger.WithComponent("chat_orchestrator"),
	}
}

// Handle processes one user message.
func (o *Orchestrator) Handle(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	start := time.Now()
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	conversation, err := o.conversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	logger := o.logger.WithContext(ctx).WithConversation(conversation.ID.String())
	logger.Info().Str("message", storage.Truncate(message, 80)).Msg("Processing chat turn")

	// read before the user message lands so it reflects the previous assistant turn
	state, err := LoadState(ctx, conversation, o.products)
	if err != nil {
		return nil, err
	}

	if err := o.conversations.AppendMessage(ctx, &storage.Message{
		ConversationID: conversation.ID,
		Role:           storage.RoleUser,
		Content:        message,
	}, nil); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	classification := o.classifier.Classify(ctx, message, ClassifyContext{PreviousProducts: state.PreviousProducts})

	result, err := o.dispatcher.Dispatch(ctx, classification, state)
	if err != nil {
		return nil, err
	}

	response, err := o.responses.Build(ctx, message, result)
	if err != nil {
		return nil, err
	}

	if err := o.conversations.AppendMessage(ctx, &storage.Message{
		ConversationID: conversation.ID,
		Role:           storage.RoleAssistant,
		Content:        response.Content,
		Metadata: storage.Metadata{
			"product_ids":   idStrings(response.ProductIDs),
			"response_type": string(response.Type),
			"query_type":    string(classification.Type),
		},
	}, response.ProductIDs); err != nil {
		return nil, fmt.Errorf("store assistant message: %w", err)
	}

	duration := time.Since(start)
	logger.Info().
		Str("query_type", string(classification.Type)).
		Str("response_type", string(response.Type)).
		Int("products", len(response.ProductIDs)).
		Dur("duration", duration).
		Msg("Chat turn complete")

	return &TurnResult{
		ConversationID: conversation.ID,
		Content:        response.Content,
		QueryType:      classification.Type,
		ResponseType:   response.Type,
		Fallback:       classification.Fallback,
		Filters:        classification.Filters,
		ProductIDs:     response.ProductIDs,
		Products:       result.Products,
		Counts:         result.Counts,
		DurationMs:     duration.Milliseconds(),
	}, nil
}

// conversation loads id, creating it when it is nil or unknown.
func (o *Orchestrator) conversation(ctx context.Context, id uuid.UUID) (*storage.Conversation, error) {
	if id != uuid.Nil {
		c, err := o.conversations.GetByID(ctx, id)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("load conversation: %w", err)
		}
	}

	c := &storage.Conversation{ID: id}
	if err := o.conversations.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

func idStrings(ids storage.IDList) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
