package recipes

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("recipe not found")

// Status is the lifecycle state of a durable recipe record.
type Status string

const (
	StatusImporting     Status = "importing"
	StatusPendingReview Status = "pending_review"
	StatusActive        Status = "active"
	StatusFailed        Status = "failed"
)

// Category groups ingredients for shopping lists.
type Category string

const (
	CategoryProduce Category = "produce"
	CategoryMeat    Category = "meat"
	CategorySeafood Category = "seafood"
	CategoryDairy   Category = "dairy"
	CategoryPantry  Category = "pantry"
	CategoryFrozen  Category = "frozen"
	CategoryBakery  Category = "bakery"
	CategoryOther   Category = "other"
)

// Categories lists every valid category.
var Categories = []Category{
	CategoryProduce, CategoryMeat, CategorySeafood, CategoryDairy,
	CategoryPantry, CategoryFrozen, CategoryBakery, CategoryOther,
}

// ParseCategory returns the matching category, or CategoryOther.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return CategoryOther
}

// Ingredient is one line of a recipe's ingredient list.
type Ingredient struct {
	Text     string   `json:"text"`
	Quantity string   `json:"quantity,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Category Category `json:"category,omitempty"`
}

// ExtractionResult is the structured payload of a finished import.
type ExtractionResult struct {
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []string     `json:"steps"`
	Tags        []string     `json:"tags"`
}

// Normalized returns r with nil slices replaced by empty ones so that it
// encodes as JSON arrays.
func (r ExtractionResult) Normalized() ExtractionResult {
	if r.Ingredients == nil {
		r.Ingredients = []Ingredient{}
	}
	if r.Steps == nil {
		r.Steps = []string{}
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}
	return r
}

// Record is the persisted recipe row.
type Record struct {
	ID          string       `json:"id"`
	UserID      string       `json:"user_id"`
	Title       string       `json:"title"`
	SourceType  string       `json:"source_type"`
	SourceURL   string       `json:"source_url"`
	SourceName  string       `json:"source_name,omitempty"`
	ImageURL    string       `json:"image_url,omitempty"`
	Status      Status       `json:"status"`
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []string     `json:"steps"`
	Tags        []string     `json:"tags"`
	TimesCooked int          `json:"times_cooked"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Result returns the record's structured payload.
func (r *Record) Result() ExtractionResult {
	return ExtractionResult{Ingredients: r.Ingredients, Steps: r.Steps, Tags: r.Tags}.Normalized()
}

// Completion carries the fields written when extraction succeeds. Empty
// Title or ImageURL leave the stored values unchanged.
type Completion struct {
	Title    string
	ImageURL string
	Result   ExtractionResult
}

// Store persists recipe records.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// Complete moves a record to pending_review with its extracted content.
	Complete(ctx context.Context, id string, c Completion) error
	// MarkFailed moves a record to failed.
	MarkFailed(ctx context.Context, id string) error
	Close() error
}

func validateNew(rec *Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	if rec.ID == "" {
		return errors.New("record.ID is required")
	}
	if rec.UserID == "" {
		return errors.New("record.UserID is required")
	}
	if rec.Status == "" {
		rec.Status = StatusImporting
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	return nil
}
