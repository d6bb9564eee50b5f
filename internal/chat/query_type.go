// Package chat classifies user messages, dispatches them to a retrieval
// strategy and keeps the per-conversation state follow-up questions rely on.
package chat

import (
	"strings"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/retrieval"
)

// QueryType is the intent of a user message.
type QueryType string

const (
	QueryTypeListing        QueryType = "listing"
	QueryTypeCount          QueryType = "count"
	QueryTypeComparison     QueryType = "comparison"
	QueryTypeContextual     QueryType = "contextual"
	QueryTypeConversational QueryType = "conversational"
)

// QueryTypes lists every query type.
var QueryTypes = []QueryType{
	QueryTypeListing,
	QueryTypeCount,
	QueryTypeComparison,
	QueryTypeContextual,
	QueryTypeConversational,
}

// ParseQueryType maps a label onto a QueryType. Unknown labels are listings.
func ParseQueryType(s string) QueryType {
	t := QueryType(strings.ToLower(strings.TrimSpace(s)))
	if t.Valid() {
		return t
	}
	return QueryTypeListing
}

// Valid reports whether t is one of the known query types.
func (t QueryType) Valid() bool {
	switch t {
	case QueryTypeListing, QueryTypeCount, QueryTypeComparison, QueryTypeContextual, QueryTypeConversational:
		return true
	}
	return false
}

// Classification is the structured reading of one user message.
type Classification struct {
	Type        QueryType         `json:"query_type"`
	Filters     retrieval.Filters `json:"filters"`
	SearchQuery string            `json:"search_query"`
	// Fallback is set when the keyword classifier produced the result.
	Fallback bool `json:"fallback,omitempty"`
}

// DefaultClassification is a listing with no constraints.
func DefaultClassification() Classification {
	return Classification{Type: QueryTypeListing}
}
