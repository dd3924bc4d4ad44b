package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// rawResult mirrors the model's answer before sanitising. Every field is
// untrusted; quantity and unit are accepted as strings or numbers.
type rawResult struct {
	Title       *string         `json:"title"`
	Ingredients []rawIngredient `json:"ingredients"`
	Steps       []*string       `json:"steps"`
	Tags        []*string       `json:"tags"`
	Confidence  *float64        `json:"confidence"`
	Language    *string         `json:"language"`
}

type rawIngredient struct {
	Text     *string `json:"text"`
	Quantity any     `json:"quantity"`
	Unit     any     `json:"unit"`
	Category *string `json:"category"`
}

const resultSchema = `{
  "type": "object",
  "required": ["ingredients", "steps"],
  "properties": {
    "title": {"type": ["string", "null"]},
    "ingredients": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "text": {"type": ["string", "null"]},
          "quantity": {"type": ["string", "number", "null"]},
          "unit": {"type": ["string", "number", "null"]},
          "category": {"type": ["string", "null"]}
        }
      }
    },
    "steps": {"type": "array", "items": {"type": ["string", "null"]}},
    "tags": {"type": ["array", "null"], "items": {"type": ["string", "null"]}},
    "confidence": {"type": ["number", "null"]},
    "language": {"type": ["string", "null"]}
  }
}`

var compiledSchema = jsonschema.MustCompileString("recipe-extraction.json", resultSchema)

// decodeResult parses content, tolerating code fences and leading prose,
// and validates its shape before decoding into rawResult.
func decodeResult(content string) (*rawResult, error) {
	payload, err := extractJSON(content)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal([]byte(payload), &generic); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w (payload snippet: %s)", err, snippet(payload))
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return nil, fmt.Errorf("json does not match schema: %w", err)
	}
	var out rawResult
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &out, nil
}

func extractJSON(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", errors.New("empty payload")
	}
	if json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	sanitized := strings.TrimSpace(stripCodeFence(trimmed))
	if !strings.HasPrefix(sanitized, "{") {
		if start := strings.Index(sanitized, "{"); start >= 0 {
			if end := strings.LastIndex(sanitized, "}"); end > start {
				sanitized = sanitized[start : end+1]
			}
		}
	}
	if sanitized == "" || !json.Valid([]byte(sanitized)) {
		return "", fmt.Errorf("no JSON object in payload (payload snippet: %s)", snippet(trimmed))
	}
	return sanitized, nil
}

func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	body := strings.TrimLeft(content[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return body
}

func snippet(s string) string {
	clean := strings.Join(strings.Fields(s), " ")
	const limit = 160
	runes := []rune(clean)
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	if clean == "" {
		return "<empty>"
	}
	return clean
}
