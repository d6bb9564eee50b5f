package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// ConversationStore persists conversations and their message log.
type ConversationStore interface {
	Create(ctx context.Context, c *storage.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*storage.Conversation, error)
	AppendMessage(ctx context.Context, m *storage.Message, shown storage.IDList) error
}

// ProductLoader loads products by id, preserving the order of ids.
type ProductLoader interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*storage.Product, error)
}

// State is what a turn knows about its conversation before it runs.
type State struct {
	ConversationID uuid.UUID
	// LastShownProductIDs are the products of the previous assistant turn, in display order.
	LastShownProductIDs []uuid.UUID
	// PreviousProducts are those products as currently stored. Ids that no
	// longer resolve are absent.
	PreviousProducts []*storage.Product
}

// HasPrevious reports whether there is a previous result set to refer to.
func (s State) HasPrevious() bool {
	return len(s.PreviousProducts) > 0
}

// LoadState builds the turn state of a conversation.
func LoadState(ctx context.Context, c *storage.Conversation, products ProductLoader) (State, error) {
	state := State{ConversationID: c.ID}
	if len(c.LastShownProductIDs) == 0 {
		return state, nil
	}

	state.LastShownProductIDs = append([]uuid.UUID(nil), c.LastShownProductIDs...)
	previous, err := products.GetByIDs(ctx, state.LastShownProductIDs)
	if err != nil {
		return state, fmt.Errorf("load previous products: %w", err)
	}
	state.PreviousProducts = previous
	return state, nil
}

// ProductIDs returns the ids of products in order. The result is never nil,
// so storing it clears the previous result set.
func ProductIDs(products []*storage.Product) storage.IDList {
	ids := make(storage.IDList, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}
