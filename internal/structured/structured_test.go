package structured

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/jo-hoe/recipeimport/internal/recipes"
)

type llmMock struct {
	out    string
	err    error
	system string
	user   string
	calls  int
}

func (m *llmMock) Complete(_ context.Context, system, user string) (string, error) {
	m.calls++
	m.system, m.user = system, user
	return m.out, m.err
}

func TestExtract_SanitizesModelOutput(t *testing.T) {
	m := &llmMock{out: "```json\n" + `{
		"title": "  Garlic Pasta  ",
		"ingredients": [
			{"text": " 200 g spaghetti ", "quantity": " 200 ", "unit": "g", "category": "PANTRY"},
			{"text": "   ", "category": "produce"},
			{"text": "2 cloves garlic", "quantity": 2, "category": "vegetable"},
			{"text": null}
		],
		"steps": ["Boil pasta.", "  ", null, "Toss with garlic."],
		"tags": ["Italian", "DINNER", "yummy", "quick", "italian"],
		"confidence": 1.7,
		"language": "it"
	}` + "\n```"}
	e := NewExtractor(m, nil)

	res := e.Extract(context.Background(), Input{Title: "pasta", Description: "desc"})

	if res.Mode != ModeLLM {
		t.Fatalf("mode = %q", res.Mode)
	}
	if res.Title != "Garlic Pasta" {
		t.Fatalf("title = %q", res.Title)
	}
	want := []recipes.Ingredient{
		{Text: "200 g spaghetti", Quantity: "200", Unit: "g", Category: recipes.CategoryPantry},
		{Text: "2 cloves garlic", Quantity: "2", Category: recipes.CategoryOther},
	}
	if !reflect.DeepEqual(res.Ingredients, want) {
		t.Fatalf("ingredients = %+v", res.Ingredients)
	}
	if !reflect.DeepEqual(res.Steps, []string{"Boil pasta.", "Toss with garlic."}) {
		t.Fatalf("steps = %v", res.Steps)
	}
	if !reflect.DeepEqual(res.Tags, []string{"italian", "dinner"}) {
		t.Fatalf("tags = %v", res.Tags)
	}
	if res.Confidence != 1 || res.Language != "it" {
		t.Fatalf("confidence=%v language=%q", res.Confidence, res.Language)
	}
	if m.system != SystemPrompt {
		t.Fatalf("system prompt not sent")
	}
	if !strings.HasPrefix(m.user, "Extract the recipe from this content:\n\n") {
		t.Fatalf("user prompt = %q", m.user)
	}
}

func TestExtract_ConfidenceDefaults(t *testing.T) {
	cases := []struct {
		name string
		json string
		want float64
	}{
		{"missing", `{"ingredients":[],"steps":[]}`, 0.5},
		{"zero", `{"ingredients":[],"steps":[],"confidence":0}`, 0.5},
		{"negative", `{"ingredients":[],"steps":[],"confidence":-2}`, 0},
		{"in range", `{"ingredients":[],"steps":[],"confidence":0.8}`, 0.8},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res := NewExtractor(&llmMock{out: c.json}, nil).Extract(context.Background(), Input{})
			if res.Confidence != c.want {
				t.Fatalf("confidence = %v, want %v", res.Confidence, c.want)
			}
			if res.Title != "Untitled Recipe" {
				t.Fatalf("title = %q", res.Title)
			}
		})
	}
}

func TestExtract_FallsBackOnFailures(t *testing.T) {
	desc := "Ingredients:\n- 2 eggs\n- 1 cup milk\nInstructions:\n1. Whisk everything together.\n2) Cook in a hot pan."
	cases := []struct {
		name string
		m    *llmMock
	}{
		{"transport error", &llmMock{err: errors.New("status 500")}},
		{"not json", &llmMock{out: "I cannot help with that."}},
		{"missing arrays", &llmMock{out: `{"title":"x"}`}},
		{"wrong types", &llmMock{out: `{"ingredients":"eggs","steps":[]}`}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res := NewExtractor(c.m, nil).Extract(context.Background(), Input{Title: "Omelette", Description: desc})
			if res.Mode != ModeFallback {
				t.Fatalf("mode = %q", res.Mode)
			}
			if len(res.Ingredients) != 2 || len(res.Steps) != 2 || res.Confidence != 0.4 {
				t.Fatalf("unexpected fallback result: %+v", res)
			}
		})
	}

	res := NewExtractor(nil, nil).Extract(context.Background(), Input{Title: "x", Description: desc})
	if res.Mode != ModeFallback {
		t.Fatalf("nil client should use fallback")
	}
}

func TestFallback_Deterministic(t *testing.T) {
	in := Input{
		Title: "  ",
		Description: "My favourite!\nIngredients\n• 2 eggs\n* salt\nab\nMethod\n1. Whisk the eggs.\nStir\n2) Fry gently until set.",
	}
	first := Fallback(in)
	for i := 0; i < 5; i++ {
		if again := Fallback(in); !reflect.DeepEqual(first, again) {
			t.Fatalf("fallback not deterministic: %+v vs %+v", first, again)
		}
	}
	wantIngr := []recipes.Ingredient{
		{Text: "2 eggs", Category: recipes.CategoryOther},
		{Text: "salt", Category: recipes.CategoryOther},
	}
	if !reflect.DeepEqual(first.Ingredients, wantIngr) {
		t.Fatalf("ingredients = %+v", first.Ingredients)
	}
	if !reflect.DeepEqual(first.Steps, []string{"Whisk the eggs.", "Fry gently until set."}) {
		t.Fatalf("steps = %v", first.Steps)
	}
	if first.Title != "Untitled Recipe" || first.Confidence != 0.4 || len(first.Tags) != 0 {
		t.Fatalf("unexpected result: %+v", first)
	}

	empty := Fallback(Input{Title: "Nothing", Description: "just a vlog"})
	if empty.Confidence != 0.1 || len(empty.Ingredients) != 0 || len(empty.Steps) != 0 {
		t.Fatalf("unexpected empty fallback: %+v", empty)
	}
	if empty.Ingredients == nil || empty.Steps == nil || empty.Tags == nil {
		t.Fatalf("fallback slices must be non-nil")
	}
}

func TestFallback_JSONLDRecipe(t *testing.T) {
	desc := `{"@type":["Recipe"],"name":"Best Chili","recipeIngredient":["1 lb beef","2 cans beans"],
		"recipeInstructions":[{"@type":"HowToStep","text":"Brown the beef."},"Simmer with beans."],
		"recipeCategory":"Dinner","recipeCuisine":["Mexican"],"keywords":"spicy, Easy, comfort food"}`
	res := Fallback(Input{Description: desc})
	if res.Title != "Best Chili" {
		t.Fatalf("title = %q", res.Title)
	}
	if len(res.Ingredients) != 2 || res.Ingredients[0].Text != "1 lb beef" {
		t.Fatalf("ingredients = %+v", res.Ingredients)
	}
	if !reflect.DeepEqual(res.Steps, []string{"Brown the beef.", "Simmer with beans."}) {
		t.Fatalf("steps = %v", res.Steps)
	}
	// category, cuisine and keywords are left for the model to classify
	if res.Tags == nil || len(res.Tags) != 0 {
		t.Fatalf("tags = %#v, want empty", res.Tags)
	}
	if res.Mode != ModeFallback || res.Confidence != fallbackFoundConfidence {
		t.Fatalf("mode = %q confidence = %v", res.Mode, res.Confidence)
	}
}

func TestFilterTags_Whitelist(t *testing.T) {
	in := []string{"VEGAN", " Thai ", "Under-30-Min", "spicy", "", "vegan", "Middle-Eastern", "tiktok"}
	got := FilterTags(in)
	want := []string{"vegan", "thai", "under-30-min", "middle-eastern"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("FilterTags = %v, want %v", got, want)
	}
	for _, tag := range got {
		if !IsValidTag(tag) || tag != strings.ToLower(tag) {
			t.Fatalf("tag %q escaped the whitelist", tag)
		}
	}
}

func TestCombinedText_LabelsSources(t *testing.T) {
	in := Input{Title: "T", Description: "D", Captions: "C", Transcript: "X"}
	want := "Title: T\n\n---\n\nDescription:\nD\n\n---\n\nVideo Captions:\nC\n\n---\n\nAudio Transcript:\nX"
	if got := in.CombinedText(); got != want {
		t.Fatalf("CombinedText = %q", got)
	}
	if got := (Input{Description: "D"}).CombinedText(); got != "Description:\nD" {
		t.Fatalf("CombinedText = %q", got)
	}
}

func TestSystemPrompt_ListsTaxonomy(t *testing.T) {
	for _, g := range Taxonomy {
		for _, tag := range g.Tags {
			if !strings.Contains(SystemPrompt, tag) {
				t.Fatalf("system prompt missing tag %q", tag)
			}
		}
	}
}
