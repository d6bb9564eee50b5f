package retrieval

import (
	"regexp"
	"strings"
)

// SpecNormalizer maps user vocabulary onto catalog vocabulary: category
// synonyms (including Spanish) and specification key/value variations.
// Lookups are applied at query time, so stored data never needs migrating
// when a synonym is added.
type SpecNormalizer struct {
	categoryAliases map[string]string
	specAliases     map[string][]string // query key -> stored keys
}

// NewSpecNormalizer creates a normalizer with the default tables.
func NewSpecNormalizer() *SpecNormalizer {
	return &SpecNormalizer{
		categoryAliases: buildCategoryAliases(),
		specAliases:     buildSpecAliases(),
	}
}

// NormalizeCategory maps a category token to its canonical slug when a
// synonym is known, otherwise returns the token unchanged.
func (n *SpecNormalizer) NormalizeCategory(token string) string {
	if slug, ok := n.categoryAliases[strings.ToLower(strings.TrimSpace(token))]; ok {
		return slug
	}
	return strings.TrimSpace(token)
}

// KeyVariations returns the stored keys a requested specification key may
// appear under: the key as written, lower and upper case, then any mapped keys.
func (n *SpecNormalizer) KeyVariations(key string) []string {
	key = strings.TrimSpace(key)
	variations := []string{key, strings.ToLower(key), strings.ToUpper(key)}
	variations = append(variations, n.specAliases[strings.ToLower(key)]...)
	return uniqueNonEmpty(variations)
}

var nonNumeric = regexp.MustCompile(`[^\d.]`)

// ValueVariations returns the value as written and its numeric-only form,
// so "32GB" also matches a stored "32".
func (n *SpecNormalizer) ValueVariations(value string) []string {
	value = strings.TrimSpace(value)
	return uniqueNonEmpty([]string{value, nonNumeric.ReplaceAllString(value, "")})
}

func uniqueNonEmpty(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// buildCategoryAliases builds the category synonym map.
func buildCategoryAliases() map[string]string {
	return map[string]string{
		// Spanish
		"computadores":       "laptops",
		"computadoras":       "laptops",
		"portatiles":         "laptops",
		"portátiles":         "laptops",
		"notebooks":          "laptops",
		"ordenadores":        "laptops",
		"tabletas":           "tablets",
		"accesorios":         "mobile-accessories",
		"accesorios moviles": "mobile-accessories",
		"accesorios móviles": "mobile-accessories",
		// English
		"computers":          "laptops",
		"notebook":           "laptops",
		"laptop":             "laptops",
		"tablet":             "tablets",
		"accessories":        "mobile-accessories",
		"mobile accessories": "mobile-accessories",
	}
}

// buildSpecAliases builds the specification key map.
func buildSpecAliases() map[string][]string {
	return map[string][]string{
		"graphics_card":    {"gpu"},
		"graphics":         {"gpu"},
		"video_card":       {"gpu"},
		"processor":        {"cpu"},
		"memory":           {"ram_gb", "RAM"},
		"ram":              {"ram_gb"},
		"storage":          {"storage_gb"},
		"operating_system": {"os"},
	}
}
