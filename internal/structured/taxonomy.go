package structured

import "strings"

// TagGroup is one category of the closed tag taxonomy.
type TagGroup struct {
	Name string
	Tags []string
}

// Taxonomy is the closed set of tags a recipe may carry. Tag names are unique
// across groups.
var Taxonomy = []TagGroup{
	{Name: "Cuisine", Tags: []string{"italian", "mexican", "asian", "american", "french", "indian", "mediterranean", "chinese", "japanese", "thai", "korean", "vietnamese", "greek", "spanish", "middle-eastern"}},
	{Name: "Meal Type", Tags: []string{"breakfast", "lunch", "dinner", "snack", "dessert", "appetizer", "side-dish", "drink"}},
	{Name: "Diet", Tags: []string{"vegetarian", "vegan", "gluten-free", "keto", "low-carb", "dairy-free", "paleo", "whole30"}},
	{Name: "Time", Tags: []string{"under-30-min", "30-to-60-min", "over-60-min"}},
	{Name: "Difficulty", Tags: []string{"easy", "intermediate", "advanced"}},
}

var validTags = func() map[string]struct{} {
	m := make(map[string]struct{})
	for _, g := range Taxonomy {
		for _, t := range g.Tags {
			m[t] = struct{}{}
		}
	}
	return m
}()

// IsValidTag reports whether tag (already lower-cased) is in the taxonomy.
func IsValidTag(tag string) bool {
	_, ok := validTags[tag]
	return ok
}

// FilterTags lower-cases tags and keeps only taxonomy members, dropping
// duplicates while keeping first-seen order.
func FilterTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || !IsValidTag(t) {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
