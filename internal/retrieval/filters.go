// Package retrieval provides hybrid retrieval services combining structured and semantic search.
package retrieval

import (
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/storage"
)

// Filters is a set of optional catalog constraints. A zero value constrains nothing.
type Filters struct {
	Category       string            `json:"category,omitempty"`
	Brand          string            `json:"brand,omitempty"`
	MinPrice       *float64          `json:"min_price,omitempty"`
	MaxPrice       *float64          `json:"max_price,omitempty"`
	InStock        *bool             `json:"in_stock,omitempty"`
	Query          string            `json:"query,omitempty"`
	Specifications map[string]string `json:"specifications,omitempty"`
}

// IsEmpty reports whether no field constrains the search. Blank strings and
// blank specification values do not count; in_stock=false does.
func (f Filters) IsEmpty() bool {
	return strings.TrimSpace(f.Category) == "" &&
		strings.TrimSpace(f.Brand) == "" &&
		f.MinPrice == nil &&
		f.MaxPrice == nil &&
		f.InStock == nil &&
		strings.TrimSpace(f.Query) == "" &&
		!f.hasSpecs()
}

// IsStrict reports whether category or brand is set. Those are hard
// constraints in a hybrid merge.
func (f Filters) IsStrict() bool {
	return strings.TrimSpace(f.Category) != "" || strings.TrimSpace(f.Brand) != ""
}

// MarshalZerologObject logs the set fields only.
func (f Filters) MarshalZerologObject(e *zerolog.Event) {
	if f.Category != "" {
		e.Str("category", f.Category)
	}
	if f.Brand != "" {
		e.Str("brand", f.Brand)
	}
	if f.MinPrice != nil {
		e.Float64("min_price", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		e.Float64("max_price", *f.MaxPrice)
	}
	if f.InStock != nil {
		e.Bool("in_stock", *f.InStock)
	}
	if f.Query != "" {
		e.Str("query", f.Query)
	}
	if len(f.Specifications) > 0 {
		keys := make([]string, 0, len(f.Specifications))
		for k := range f.Specifications {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.Strs("spec_keys", keys)
	}
}

func (f Filters) hasSpecs() bool {
	for _, v := range f.Specifications {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// Provenance records which retrieval path produced a candidate.
type Provenance string

const (
	ProvenanceStructured Provenance = "structured"
	ProvenanceSemantic   Provenance = "semantic"
	ProvenanceHybrid     Provenance = "hybrid"
)

// ScoredCandidate is a catalog item with a relevance score in [0, 1].
type ScoredCandidate struct {
	Product    *storage.Product `json:"product"`
	Score      float64          `json:"score"`
	Provenance Provenance       `json:"source"`
}

// Products unwraps the candidates in order.
func Products(candidates []ScoredCandidate) []*storage.Product {
	out := make([]*storage.Product, len(candidates))
	for i, c := range candidates {
		out[i] = c.Product
	}
	return out
}

// sortByScore orders candidates by descending score, keeping input order on ties.
func sortByScore(candidates []ScoredCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// roundScore rounds to four decimal places.
func roundScore(s float64) float64 {
	return math.Round(s*10000) / 10000
}
