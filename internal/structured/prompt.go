package structured

import (
	"fmt"
	"strings"
)

const sourceSeparator = "\n\n---\n\n"

const systemPromptHead = `You are a recipe extraction assistant. Extract recipe information from the provided text (which may include video description, captions, or transcription).

IMPORTANT RULES:
1. Extract ingredients with quantities, units, and categorize each for shopping:
   - produce: fruits, vegetables, herbs
   - meat: chicken, beef, pork, lamb
   - seafood: fish, shrimp, shellfish
   - dairy: milk, cheese, butter, eggs, yogurt
   - pantry: oils, spices, flour, sugar, canned goods, pasta, rice
   - frozen: frozen vegetables, frozen fruits, ice cream
   - bakery: bread, tortillas, buns
   - other: anything else

2. Extract cooking steps as clear, actionable instructions.

3. Assign tags ONLY from this taxonomy (use exact tag names):
`

const systemPromptTail = `
4. Generate a clear, descriptive recipe title:
   - If the provided title is generic (e.g., "Video by [username]", "Instagram post", "TikTok") or empty, create a descriptive title based on the recipe content
   - If the title is already descriptive, clean it up by removing hashtags, excessive emojis, and redundant words like "recipe"

5. If the content is not in English, translate everything to English.

6. Set confidence score:
   - 0.9-1.0: Complete recipe with clear ingredients and steps
   - 0.7-0.8: Good recipe info but some gaps
   - 0.5-0.6: Partial info, missing ingredients or steps
   - 0.3-0.4: Minimal recipe info found
   - 0.1-0.2: Almost no recipe content

Respond ONLY with valid JSON matching this schema:
{
  "title": "string",
  "ingredients": [{"text": "string", "quantity": "string or null", "unit": "string or null", "category": "produce|meat|seafood|dairy|pantry|frozen|bakery|other"}],
  "steps": ["string"],
  "tags": ["string"],
  "confidence": 0.0,
  "language": "string (original language code)"
}`

// SystemPrompt is the fixed instruction set sent with every extraction.
var SystemPrompt = buildSystemPrompt()

func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString(systemPromptHead)
	for _, g := range Taxonomy {
		fmt.Fprintf(&b, "   %s: %s\n", g.Name, strings.Join(g.Tags, ", "))
	}
	b.WriteString(systemPromptTail)
	return b.String()
}

// CombinedText joins the available sources with labelled separators.
func (in Input) CombinedText() string {
	var parts []string
	if in.Title != "" {
		parts = append(parts, "Title: "+in.Title)
	}
	if in.Description != "" {
		parts = append(parts, "Description:\n"+in.Description)
	}
	if in.Captions != "" {
		parts = append(parts, "Video Captions:\n"+in.Captions)
	}
	if in.Transcript != "" {
		parts = append(parts, "Audio Transcript:\n"+in.Transcript)
	}
	return strings.Join(parts, sourceSeparator)
}

// UserPrompt returns the user message for in.
func UserPrompt(in Input) string {
	return "Extract the recipe from this content:\n\n" + in.CombinedText()
}
