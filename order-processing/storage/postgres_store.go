package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
    collection  TEXT        NOT NULL,
    id          TEXT        NOT NULL,
    body        JSONB       NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, id)
)`

// PostgresStore keeps documents as JSONB rows in a single table
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects and makes sure the documents table exists
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(ctx, documentsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return &PostgresStore{db: pool}, nil
}

func (s *PostgresStore) Insert(ctx context.Context, coll Collection, id string, doc []byte) error {
	query := `
        INSERT INTO documents (collection, id, body)
        VALUES ($1, $2, $3)
        ON CONFLICT (collection, id) DO NOTHING
    `
	tag, err := s.db.Exec(ctx, query, string(coll), id, doc)
	if err != nil {
		return fmt.Errorf("insert %s/%s: %w", coll, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (s *PostgresStore) Replace(ctx context.Context, coll Collection, id string, doc []byte) error {
	query := `
        UPDATE documents
        SET body = $3, updated_at = now()
        WHERE collection = $1 AND id = $2
    `
	tag, err := s.db.Exec(ctx, query, string(coll), id, doc)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", coll, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, coll Collection, id string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRow(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND id = $2`,
		string(coll), id,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", coll, id, err)
	}
	return body, nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
