package mock

import (
	"context"
	"time"

	"github.com/jo-hoe/recipeimport/internal/config"
	"github.com/jo-hoe/recipeimport/internal/llm"
)

var _ llm.Client = (*Client)(nil)

// DefaultResponse is a small well-formed extraction used when no response
// is configured.
const DefaultResponse = `{"title":"Mock Recipe","ingredients":[{"text":"1 cup flour","quantity":"1","unit":"cup","category":"pantry"}],"steps":["Mix everything."],"tags":["easy"],"confidence":0.9}`

// Client is a deterministic llm.Client for local runs and tests.
type Client struct {
	delay    time.Duration
	response string
}

// New creates a mock client.
func New(cfg config.MockSettings) *Client {
	resp := cfg.Response
	if resp == "" {
		resp = DefaultResponse
	}
	return &Client{delay: cfg.Delay, response: resp}
}

// Complete waits for the configured delay and returns the canned response.
func (c *Client) Complete(ctx context.Context, _, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.delay > 0 {
		t := time.NewTimer(c.delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	return c.response, nil
}
