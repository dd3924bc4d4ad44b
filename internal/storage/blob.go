package storage

import (
	"context"
	"errors"
)

// ErrInvalidKey is returned for keys that are empty or escape the store root.
var ErrInvalidKey = errors.New("invalid blob key")

// Blob stores objects under a key and exposes them at a public URL.
type Blob interface {
	// Upload stores data under key, overwriting any existing object, and
	// returns its public URL.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Delete removes the object stored under key.
	Delete(ctx context.Context, key string) error
}
