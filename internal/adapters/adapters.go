// Package adapters gathers the raw text of a recipe from its source: a
// short-video API, a long-video info dump or a recipe web page.
package adapters

import (
	"context"
	"errors"
	"sync"

	"github.com/jo-hoe/recipeimport/internal/platform"
	"github.com/jo-hoe/recipeimport/internal/transcribe"
)

// ErrNoAdapter is returned by Set.For when no adapter handles a platform.
var ErrNoAdapter = errors.New("no adapter for platform")

// Content is the common intermediate every adapter produces.
type Content struct {
	Title       string
	Description string
	Captions    string
	Transcript  string
	SourceName  string
	ImageURL    string // remote thumbnail, if any

	// Image is the in-flight copy of ImageURL into blob storage, or nil.
	Image *ImageFuture
}

// ProgressFunc reports a coarse pipeline stage.
type ProgressFunc func(stage, message string)

// Request identifies one extraction.
type Request struct {
	URL      string
	RecipeID string
	Platform platform.Platform
	Progress ProgressFunc
}

func (r Request) progress(stage, message string) {
	if r.Progress != nil {
		r.Progress(stage, message)
	}
}

// Adapter extracts Content for one platform family.
type Adapter interface {
	Extract(ctx context.Context, req Request) (Content, error)
}

// Transcriber turns audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (transcribe.Transcript, error)
}

// ImagePersister copies a remote image into blob storage and returns its
// public URL, or "" on failure.
type ImagePersister interface {
	Persist(ctx context.Context, remoteURL, recipeID string) string
}

// ImageFuture is an image upload running alongside the rest of the
// extraction.
type ImageFuture struct {
	done chan struct{}
	url  string
}

// StartImage begins persisting remoteURL in the background. It returns nil
// when there is nothing to persist.
func StartImage(ctx context.Context, p ImagePersister, remoteURL, recipeID string) *ImageFuture {
	if p == nil || remoteURL == "" {
		return nil
	}
	f := &ImageFuture{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.url = p.Persist(ctx, remoteURL, recipeID)
	}()
	return f
}

// Wait blocks until the upload finished or ctx is done and returns the
// persisted URL, or "" if it failed or did not finish.
func (f *ImageFuture) Wait(ctx context.Context) string {
	if f == nil {
		return ""
	}
	select {
	case <-f.done:
		return f.url
	case <-ctx.Done():
		return ""
	}
}

// Set dispatches to the adapter registered for a platform.
type Set struct {
	mu       sync.RWMutex
	adapters map[platform.Platform]Adapter
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{adapters: make(map[platform.Platform]Adapter)}
}

// Register binds a to every platform in ps.
func (s *Set) Register(a Adapter, ps ...platform.Platform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		s.adapters[p] = a
	}
}

// For returns the adapter for p.
func (s *Set) For(p platform.Platform) (Adapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.adapters[p]
	if !ok {
		return nil, ErrNoAdapter
	}
	return a, nil
}
