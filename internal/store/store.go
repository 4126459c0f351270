package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means the record was written by someone else since it was read.
	ErrConflict = errors.New("revision conflict")
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                   TEXT PRIMARY KEY,
	conversation_context JSONB NOT NULL DEFAULT '{}'::jsonb,
	revision             BIGINT NOT NULL DEFAULT 1,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS conversations (
	id         UUID PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS conversations_owner_idx ON conversations (owner_id);

CREATE TABLE IF NOT EXISTS dialogs (
	id              UUID PRIMARY KEY,
	seq             BIGSERIAL,
	conversation_id UUID NOT NULL REFERENCES conversations (id),
	action          TEXT,
	message         TEXT NOT NULL,
	reply           TEXT NOT NULL,
	logged_at       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS dialogs_conversation_idx ON dialogs (conversation_id, seq);
`

// Migrate creates the tables the concierge needs if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
