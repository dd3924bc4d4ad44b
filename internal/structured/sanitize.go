package structured

import (
	"strconv"
	"strings"

	"github.com/jo-hoe/recipeimport/internal/common"
	"github.com/jo-hoe/recipeimport/internal/recipes"
)

const defaultConfidence = 0.5

func sanitize(r *rawResult) Result {
	out := Result{
		Title:       strings.TrimSpace(deref(r.Title)),
		Ingredients: make([]recipes.Ingredient, 0, len(r.Ingredients)),
		Steps:       make([]string, 0, len(r.Steps)),
		Language:    strings.TrimSpace(deref(r.Language)),
	}
	if out.Title == "" {
		out.Title = common.UntitledRecipePlaceholder
	}

	for _, ing := range r.Ingredients {
		text := strings.TrimSpace(deref(ing.Text))
		if text == "" {
			continue
		}
		out.Ingredients = append(out.Ingredients, recipes.Ingredient{
			Text:     text,
			Quantity: scalarString(ing.Quantity),
			Unit:     scalarString(ing.Unit),
			Category: recipes.ParseCategory(deref(ing.Category)),
		})
	}

	for _, s := range r.Steps {
		if step := strings.TrimSpace(deref(s)); step != "" {
			out.Steps = append(out.Steps, step)
		}
	}

	tags := make([]string, 0, len(r.Tags))
	for _, t := range r.Tags {
		tags = append(tags, deref(t))
	}
	out.Tags = FilterTags(tags)

	out.Confidence = clampConfidence(r.Confidence)
	return out
}

// clampConfidence treats a missing or zero score as 0.5 and clamps to [0,1].
func clampConfidence(c *float64) float64 {
	v := defaultConfidence
	if c != nil && *c != 0 {
		v = *c
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
