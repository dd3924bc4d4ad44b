package recipes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jo-hoe/recipeimport/internal/logging"
)

var _ Store = (*PostgresStore)(nil)

// PostgresConfig configures the connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// PostgresStore persists records in the hosted recipes table.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS recipes (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	title TEXT NOT NULL,
	source_type TEXT NOT NULL,
	source_url TEXT NOT NULL,
	source_name TEXT,
	image_url TEXT,
	status TEXT NOT NULL,
	ingredients JSONB NOT NULL DEFAULT '[]'::jsonb,
	steps JSONB NOT NULL DEFAULT '[]'::jsonb,
	tags JSONB NOT NULL DEFAULT '[]'::jsonb,
	times_cooked INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// OpenPostgres creates a pool, verifies connectivity and ensures the table exists.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, error) {
	log := logging.OrDiscard(logger)
	log.Info("connecting to database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "recipeimport"

	dialCtx := ctx
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(dialCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	if _, err := pool.Exec(dialCtx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	log.Info("successfully connected to database")
	return &PostgresStore{pool: pool, log: log}, nil
}

func (s *PostgresStore) Create(ctx context.Context, rec *Record) error {
	if err := validateNew(rec); err != nil {
		return err
	}
	ingredients, steps, tags, err := marshalResult(rec.Result())
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO recipes (id, user_id, title, source_type, source_url, source_name, image_url, status,
			ingredients, steps, tags, times_cooked, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, $11::jsonb, $12, $13, $14)`,
		rec.ID, rec.UserID, rec.Title, rec.SourceType, rec.SourceURL, nullable(rec.SourceName), nullable(rec.ImageURL),
		string(rec.Status), ingredients, steps, tags, rec.TimesCooked, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert recipe: %w", err)
	}
	return nil
}

func (s *PostgresStore) Complete(ctx context.Context, id string, c Completion) error {
	ingredients, steps, tags, err := marshalResult(c.Result)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE recipes
		SET status = $1, ingredients = $2::jsonb, steps = $3::jsonb, tags = $4::jsonb,
			title = COALESCE($5, title), image_url = COALESCE($6, image_url), updated_at = now()
		WHERE id = $7`,
		string(StatusPendingReview), ingredients, steps, tags, nullable(c.Title), nullable(c.ImageURL), id,
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE recipes SET status = $1, updated_at = now() WHERE id = $2`, string(StatusFailed), id)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	var rec Record
	var sourceName, imageURL *string
	var status string
	var ingredients, steps, tags []byte
	err := s.pool.QueryRow(ctx, `SELECT id, user_id, title, source_type, source_url, source_name, image_url,
		status, ingredients, steps, tags, times_cooked, created_at, updated_at
		FROM recipes WHERE id = $1`, id).Scan(
		&rec.ID, &rec.UserID, &rec.Title, &rec.SourceType, &rec.SourceURL, &sourceName, &imageURL,
		&status, &ingredients, &steps, &tags, &rec.TimesCooked, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan recipe: %w", err)
	}
	rec.Status = Status(status)
	if sourceName != nil {
		rec.SourceName = *sourceName
	}
	if imageURL != nil {
		rec.ImageURL = *imageURL
	}
	if err := unmarshalResult(&rec, ingredients, steps, tags); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) Close() error {
	s.log.Info("closing database connections")
	s.pool.Close()
	return nil
}
