package recipes

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process-local Store used for one-shot CLI runs.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]*Record)}
}

func (s *MemoryStore) Create(_ context.Context, rec *Record) error {
	if err := validateNew(rec); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[rec.ID]; ok {
		return fmt.Errorf("insert recipe: duplicate id %s", rec.ID)
	}
	cpy := cloneRecord(rec)
	s.data[rec.ID] = cpy
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(r), nil
}

func (s *MemoryStore) Complete(_ context.Context, id string, c Completion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data[id]
	if !ok {
		return ErrNotFound
	}
	res := c.Result.Normalized()
	r.Status = StatusPendingReview
	r.Ingredients = append([]Ingredient(nil), res.Ingredients...)
	r.Steps = append([]string(nil), res.Steps...)
	r.Tags = append([]string(nil), res.Tags...)
	if c.Title != "" {
		r.Title = c.Title
	}
	if c.ImageURL != "" {
		r.ImageURL = c.ImageURL
	}
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data[id]
	if !ok {
		return ErrNotFound
	}
	r.Status = StatusFailed
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneRecord(r *Record) *Record {
	c := *r
	c.Ingredients = append([]Ingredient(nil), r.Ingredients...)
	c.Steps = append([]string(nil), r.Steps...)
	c.Tags = append([]string(nil), r.Tags...)
	return &c
}
