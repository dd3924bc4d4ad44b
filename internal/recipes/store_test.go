package recipes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

// exerciseStore runs the record lifecycle against any Store implementation.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	id := uuid.NewString()

	rec := &Record{
		ID:         id,
		UserID:     "user-a",
		Title:      "Untitled",
		SourceType: "url",
		SourceURL:  "https://example.com/recipe",
		SourceName: "example.com",
		Status:     StatusImporting,
	}
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusImporting || got.UserID != "user-a" || got.SourceName != "example.com" || got.ImageURL != "" {
		t.Fatalf("unexpected record after create: %+v", got)
	}
	if got.Ingredients == nil || got.Steps == nil || got.Tags == nil {
		t.Fatalf("result slices should be empty, not nil: %+v", got)
	}

	err = store.Complete(ctx, id, Completion{
		Title:    "Best Chili",
		ImageURL: "https://cdn.example/" + id + ".jpg",
		Result: ExtractionResult{
			Ingredients: []Ingredient{{Text: "2 cups beans", Quantity: "2", Unit: "cups", Category: CategoryPantry}},
			Steps:       []string{"Simmer everything."},
			Tags:        []string{"mexican"},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, err = store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after complete: %v", err)
	}
	if got.Status != StatusPendingReview || got.Title != "Best Chili" || got.ImageURL == "" {
		t.Fatalf("unexpected record after complete: %+v", got)
	}
	if len(got.Ingredients) != 1 || got.Ingredients[0].Category != CategoryPantry || got.Ingredients[0].Unit != "cups" {
		t.Fatalf("ingredients not persisted: %+v", got.Ingredients)
	}
	if len(got.Steps) != 1 || len(got.Tags) != 1 {
		t.Fatalf("steps/tags not persisted: %+v", got)
	}

	// Empty title keeps the stored one.
	if err := store.Complete(ctx, id, Completion{}); err != nil {
		t.Fatalf("Complete again: %v", err)
	}
	got, _ = store.Get(ctx, id)
	if got.Title != "Best Chili" {
		t.Fatalf("title overwritten: %q", got.Title)
	}

	if err := store.MarkFailed(ctx, id); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got, _ = store.Get(ctx, id)
	if got.Status != StatusFailed {
		t.Fatalf("status = %q", got.Status)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := store.MarkFailed(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from MarkFailed, got %v", err)
	}
	if err := store.Create(ctx, &Record{ID: "x"}); err == nil {
		t.Fatalf("expected validation error for missing user")
	}
}

func TestSQLiteStore_RecordLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "recipes.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()
	exerciseStore(t, store)
}

func TestMemoryStore_RecordLifecycle(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestPostgresStore_RecordLifecycle(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	store, err := OpenPostgres(context.Background(), PostgresConfig{DSN: dsn, DialTimeout: 5 * time.Second}, nil)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	defer store.Close()
	exerciseStore(t, store)
}

func TestParseCategory(t *testing.T) {
	if ParseCategory(" Dairy ") != CategoryDairy {
		t.Fatalf("expected dairy")
	}
	if ParseCategory("spices") != CategoryOther || ParseCategory("") != CategoryOther {
		t.Fatalf("unknown categories should map to other")
	}
}

func TestRecordResult_NeverNil(t *testing.T) {
	r := (&Record{}).Result()
	if r.Ingredients == nil || r.Steps == nil || r.Tags == nil {
		t.Fatalf("Result should normalize nil slices: %+v", r)
	}
}
