package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/concierge/internal/dialog"
	"github.com/jackc/pgx/v5"
)

// User is the durable record for a message sender.
type User struct {
	ID        string
	Context   dialog.Context
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GetUser fetches a user by sender id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, conversation_context, revision, created_at, updated_at
		FROM users WHERE id = $1`, id)

	var (
		u   User
		raw []byte
	)
	err := row.Scan(&u.ID, &raw, &u.Revision, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := json.Unmarshal(raw, &u.Context); err != nil {
		return nil, fmt.Errorf("decode context: %w", err)
	}
	if u.Context == nil {
		u.Context = dialog.Context{}
	}
	return &u, nil
}

// GetOrCreateUser returns the user for id, creating it with an empty context
// on first contact. A concurrent create for the same id resolves to the
// record that won.
func (s *Store) GetOrCreateUser(ctx context.Context, id string) (*User, error) {
	u, err := s.GetUser(ctx, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, conversation_context, revision, created_at, updated_at)
		VALUES ($1, '{}'::jsonb, 1, now(), now())
		RETURNING revision, created_at, updated_at`, id)

	created := User{ID: id, Context: dialog.Context{}}
	err = row.Scan(&created.Revision, &created.CreatedAt, &created.UpdatedAt)
	if isUniqueViolation(err) {
		return s.GetUser(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &created, nil
}

// PersistContext overwrites the user's dialog context. It fails with
// ErrConflict if the stored revision no longer matches u.Revision.
func (s *Store) PersistContext(ctx context.Context, u *User, dctx dialog.Context) (*User, error) {
	raw, err := json.Marshal(dctx)
	if err != nil {
		return nil, fmt.Errorf("encode context: %w", err)
	}

	updated := User{ID: u.ID, Context: dctx, CreatedAt: u.CreatedAt}
	err = s.pool.QueryRow(ctx, `
		UPDATE users
		SET conversation_context = $1, revision = revision + 1, updated_at = now()
		WHERE id = $2 AND revision = $3
		RETURNING revision, updated_at`,
		raw, u.ID, u.Revision,
	).Scan(&updated.Revision, &updated.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("persist context for %s: %w", u.ID, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("persist context: %w", err)
	}
	return &updated, nil
}
