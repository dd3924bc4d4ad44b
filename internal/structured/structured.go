// Package structured turns the free text gathered by the content adapters
// into a typed recipe: ingredients, steps, tags and a confidence score.
package structured

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jo-hoe/recipeimport/internal/llm"
	"github.com/jo-hoe/recipeimport/internal/logging"
	"github.com/jo-hoe/recipeimport/internal/recipes"
)

// ErrUnavailable is reported when no model client is configured.
var ErrUnavailable = errors.New("language model not configured")

// Extraction modes.
const (
	ModeLLM      = "llm"
	ModeFallback = "fallback"
)

// Input is the text gathered for one recipe.
type Input struct {
	Title       string
	Description string
	Captions    string
	Transcript  string
}

// Result is the sanitised outcome of structured extraction.
type Result struct {
	Title       string
	Ingredients []recipes.Ingredient
	Steps       []string
	Tags        []string
	Confidence  float64
	Language    string
	Mode        string
}

// Extraction returns the persisted part of r.
func (r Result) Extraction() recipes.ExtractionResult {
	return recipes.ExtractionResult{Ingredients: r.Ingredients, Steps: r.Steps, Tags: r.Tags}.Normalized()
}

// Extractor runs the model and falls back to Fallback on any failure.
type Extractor struct {
	client llm.Client
	log    *slog.Logger
}

// NewExtractor creates an Extractor. A nil client always uses the fallback.
func NewExtractor(client llm.Client, logger *slog.Logger) *Extractor {
	return &Extractor{client: client, log: logging.OrDiscard(logger).With("component", "extraction")}
}

// Extract never fails: model errors degrade to the deterministic fallback.
func (e *Extractor) Extract(ctx context.Context, in Input) Result {
	res, err := e.extractWithLLM(ctx, in)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			e.log.Warn("llm.extract.fallback", "reason", "not configured")
		} else {
			e.log.Error("llm.extract.fallback", "err", err)
		}
		return Fallback(in)
	}
	e.log.Info("llm.extract.ok",
		"ingredients", len(res.Ingredients),
		"steps", len(res.Steps),
		"confidence", res.Confidence,
	)
	return res
}

func (e *Extractor) extractWithLLM(ctx context.Context, in Input) (Result, error) {
	if e.client == nil {
		return Result{}, ErrUnavailable
	}
	content, err := e.client.Complete(ctx, SystemPrompt, UserPrompt(in))
	if err != nil {
		return Result{}, err
	}
	raw, err := decodeResult(content)
	if err != nil {
		return Result{}, err
	}
	res := sanitize(raw)
	res.Mode = ModeLLM
	return res, nil
}
