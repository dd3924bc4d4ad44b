package adapters

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	sparseMinKeywords = 2
	sparseMaxLength   = 500
)

// recipeKeywords is the vocabulary shared by the sparse-content check and
// comment mining.
var recipeKeywords = []string{
	"ingredient", "cup", "tbsp", "tsp", "tablespoon", "teaspoon", "recipe",
	"step", "cook", "bake", "fry", "boil", "mix", "stir", "chop", "oven",
	"minutes", "grams", "salt", "pepper", "oil", "butter", "flour", "sugar",
	"garlic", "onion",
}

var keywordSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(recipeKeywords))
	for _, kw := range recipeKeywords {
		m[kw] = struct{}{}
	}
	return m
}()

// KeywordHits counts the distinct vocabulary words present in text. Words
// match whole, or with a plural "s".
func KeywordHits(text string) int {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	seen := make(map[string]struct{})
	for _, w := range words {
		for _, cand := range []string{w, strings.TrimSuffix(w, "s")} {
			if _, ok := keywordSet[cand]; ok {
				seen[cand] = struct{}{}
				break
			}
		}
	}
	return len(seen)
}

// IsSparse reports whether text is too thin to extract a recipe from:
// fewer than two keyword hits and shorter than 500 characters.
func IsSparse(text string) bool {
	return KeywordHits(text) < sparseMinKeywords && utf8.RuneCountInString(text) < sparseMaxLength
}
