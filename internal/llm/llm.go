package llm

import (
	"context"
	"errors"
)

// ErrEmptyCompletion is returned when the provider answered without content.
var ErrEmptyCompletion = errors.New("empty completion")

// Client defines the capability to run a single JSON-mode chat completion.
type Client interface {
	// Complete sends the system and user messages and returns the raw
	// assistant content, which is expected to be a JSON object.
	Complete(ctx context.Context, system, user string) (string, error)
}
