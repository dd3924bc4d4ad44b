package structured

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/jo-hoe/recipeimport/internal/common"
	"github.com/jo-hoe/recipeimport/internal/recipes"
)

const (
	fallbackFoundConfidence = 0.4
	fallbackEmptyConfidence = 0.1
)

var (
	reBullet     = regexp.MustCompile(`^[-•*]\s*`)
	reStepNumber = regexp.MustCompile(`^\d+[.)]\s*`)
)

// Fallback is the deterministic extractor used when the model is unavailable
// or its answer cannot be used. A description holding a serialised
// schema.org Recipe is read field by field; anything else is scanned line by
// line for ingredient and instruction sections. It never produces tags.
func Fallback(in Input) Result {
	title := strings.TrimSpace(in.Title)

	var ingredients []recipes.Ingredient
	var steps []string
	if rec, ok := parseJSONLDRecipe(in.Description); ok {
		ingredients, steps = rec.ingredients, rec.steps
		if title == "" {
			title = rec.name
		}
	} else {
		ingredients, steps = scanSections(in.Description)
	}

	if title == "" {
		title = common.UntitledRecipePlaceholder
	}
	conf := fallbackEmptyConfidence
	if len(ingredients) > 0 || len(steps) > 0 {
		conf = fallbackFoundConfidence
	}
	if ingredients == nil {
		ingredients = []recipes.Ingredient{}
	}
	if steps == nil {
		steps = []string{}
	}
	return Result{
		Title:       title,
		Ingredients: ingredients,
		Steps:       steps,
		Tags:        []string{},
		Confidence:  conf,
		Mode:        ModeFallback,
	}
}

func scanSections(text string) ([]recipes.Ingredient, []string) {
	const (
		sectionUnknown = iota
		sectionIngredients
		sectionSteps
	)
	var ingredients []recipes.Ingredient
	var steps []string
	section := sectionUnknown

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "ingredient") {
			section = sectionIngredients
			continue
		}
		if strings.Contains(lower, "instruction") || strings.Contains(lower, "direction") ||
			strings.Contains(lower, "method") || strings.Contains(lower, "step") {
			section = sectionSteps
			continue
		}
		switch {
		case section == sectionIngredients && len(line) > 2:
			ingredients = append(ingredients, recipes.Ingredient{
				Text:     reBullet.ReplaceAllString(line, ""),
				Category: recipes.CategoryOther,
			})
		case section == sectionSteps && len(line) > 5:
			steps = append(steps, reStepNumber.ReplaceAllString(line, ""))
		}
	}
	return ingredients, steps
}

type jsonLDRecipe struct {
	name        string
	ingredients []recipes.Ingredient
	steps       []string
}

// parseJSONLDRecipe reads a serialised schema.org Recipe object.
func parseJSONLDRecipe(description string) (jsonLDRecipe, bool) {
	trimmed := strings.TrimSpace(description)
	if !strings.HasPrefix(trimmed, "{") {
		return jsonLDRecipe{}, false
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(trimmed), &data); err != nil {
		return jsonLDRecipe{}, false
	}
	if !IsRecipeType(data["@type"]) {
		if _, ok := data["recipeIngredient"]; !ok {
			return jsonLDRecipe{}, false
		}
	}

	var rec jsonLDRecipe
	if name, ok := data["name"].(string); ok {
		rec.name = strings.TrimSpace(name)
	}
	for _, ing := range stringList(data["recipeIngredient"]) {
		if ing = strings.TrimSpace(ing); ing != "" {
			rec.ingredients = append(rec.ingredients, recipes.Ingredient{Text: ing, Category: recipes.CategoryOther})
		}
	}
	if list, ok := data["recipeInstructions"].([]any); ok {
		for _, step := range list {
			var text string
			switch s := step.(type) {
			case string:
				text = s
			case map[string]any:
				text, _ = s["text"].(string)
			}
			if text = strings.TrimSpace(text); text != "" {
				rec.steps = append(rec.steps, text)
			}
		}
	} else if s, ok := data["recipeInstructions"].(string); ok && strings.TrimSpace(s) != "" {
		rec.steps = append(rec.steps, strings.TrimSpace(s))
	}
	return rec, true
}

// IsRecipeType reports whether a JSON-LD @type value (string or list)
// names Recipe.
func IsRecipeType(v any) bool {
	switch t := v.(type) {
	case string:
		return t == "Recipe"
	case []any:
		for _, x := range t {
			if s, ok := x.(string); ok && s == "Recipe" {
				return true
			}
		}
	}
	return false
}

func stringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
