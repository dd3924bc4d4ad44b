package recipes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jo-hoe/recipeimport/internal/common"
)

var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Busy timeout to avoid SQLITE_BUSY in concurrent access.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, common.SQLiteBusyTimeoutMS)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS recipes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		source_type TEXT NOT NULL,
		source_url TEXT NOT NULL,
		source_name TEXT,
		image_url TEXT,
		status TEXT NOT NULL,
		ingredients TEXT NOT NULL DEFAULT '[]',
		steps TEXT NOT NULL DEFAULT '[]',
		tags TEXT NOT NULL DEFAULT '[]',
		times_cooked INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS recipes_user_id ON recipes (user_id);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Create(ctx context.Context, rec *Record) error {
	if err := validateNew(rec); err != nil {
		return err
	}
	res := rec.Result()
	ingredients, steps, tags, err := marshalResult(res)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recipes (id, user_id, title, source_type, source_url, source_name, image_url, status,
			ingredients, steps, tags, times_cooked, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Title, rec.SourceType, rec.SourceURL, nullable(rec.SourceName), nullable(rec.ImageURL),
		string(rec.Status), ingredients, steps, tags, rec.TimesCooked,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano), rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert recipe: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Complete(ctx context.Context, id string, c Completion) error {
	ingredients, steps, tags, err := marshalResult(c.Result.Normalized())
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE recipes
		SET status = ?, ingredients = ?, steps = ?, tags = ?,
			title = COALESCE(?, title), image_url = COALESCE(?, image_url), updated_at = ?
		WHERE id = ?`,
		string(StatusPendingReview), ingredients, steps, tags,
		nullable(c.Title), nullable(c.ImageURL), time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE recipes SET status = ?, updated_at = ? WHERE id = ?`,
		string(StatusFailed), time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireAffected(res)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, user_id, title, source_type, source_url, source_name, image_url,
		status, ingredients, steps, tags, times_cooked, created_at, updated_at
		FROM recipes WHERE id = ?`, id)

	var rec Record
	var sourceName, imageURL sql.NullString
	var status, ingredients, steps, tags, created, updated string

	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Title,
		&rec.SourceType,
		&rec.SourceURL,
		&sourceName,
		&imageURL,
		&status,
		&ingredients,
		&steps,
		&tags,
		&rec.TimesCooked,
		&created,
		&updated,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan recipe: %w", err)
	}

	rec.Status = Status(status)
	if sourceName.Valid {
		rec.SourceName = sourceName.String
	}
	if imageURL.Valid {
		rec.ImageURL = imageURL.String
	}
	if err := unmarshalResult(&rec, []byte(ingredients), []byte(steps), []byte(tags)); err != nil {
		return nil, err
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// nullable maps "" to NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func marshalResult(res ExtractionResult) (ingredients, steps, tags string, err error) {
	res = res.Normalized()
	i, err := json.Marshal(res.Ingredients)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal ingredients: %w", err)
	}
	st, err := json.Marshal(res.Steps)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal steps: %w", err)
	}
	tg, err := json.Marshal(res.Tags)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(i), string(st), string(tg), nil
}

func unmarshalResult(rec *Record, ingredients, steps, tags []byte) error {
	rec.Ingredients = []Ingredient{}
	rec.Steps = []string{}
	rec.Tags = []string{}
	if len(ingredients) > 0 {
		if err := json.Unmarshal(ingredients, &rec.Ingredients); err != nil {
			return fmt.Errorf("decode ingredients: %w", err)
		}
	}
	if len(steps) > 0 {
		if err := json.Unmarshal(steps, &rec.Steps); err != nil {
			return fmt.Errorf("decode steps: %w", err)
		}
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &rec.Tags); err != nil {
			return fmt.Errorf("decode tags: %w", err)
		}
	}
	return nil
}
