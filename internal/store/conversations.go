package store

import (
	"context"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/concierge/internal/transcript"
	"github.com/google/uuid"
)

// Conversation groups the transcript entries of one logical conversation.
type Conversation struct {
	ID        string
	OwnerID   string
	CreatedAt time.Time
}

// CreateConversation starts a new conversation owned by the given sender.
func (s *Store) CreateConversation(ctx context.Context, ownerID string) (*Conversation, error) {
	id := uuid.New()
	c := Conversation{ID: id.String(), OwnerID: ownerID}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, owner_id, created_at)
		VALUES ($1, $2, now())
		RETURNING created_at`,
		id, ownerID,
	).Scan(&c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	return &c, nil
}

// AppendTranscriptEntry writes one dialog row to its conversation.
func (s *Store) AppendTranscriptEntry(ctx context.Context, e transcript.Entry) error {
	convID, err := uuid.Parse(e.ConversationID)
	if err != nil {
		return fmt.Errorf("invalid conversation id %q: %w", e.ConversationID, err)
	}

	var action *string
	if e.Action != "" {
		action = &e.Action
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO dialogs (id, conversation_id, action, message, reply, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), convID, action, e.Message, e.Reply, e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert dialog: %w", err)
	}
	return nil
}

// ListTranscript returns the entries of a conversation in write order.
func (s *Store) ListTranscript(ctx context.Context, conversationID string) ([]transcript.Entry, error) {
	convID, err := uuid.Parse(conversationID)
	if err != nil {
		return nil, fmt.Errorf("invalid conversation id %q: %w", conversationID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT coalesce(action, ''), message, reply, logged_at
		FROM dialogs WHERE conversation_id = $1
		ORDER BY seq`, convID)
	if err != nil {
		return nil, fmt.Errorf("query dialogs: %w", err)
	}
	defer rows.Close()

	var out []transcript.Entry
	for rows.Next() {
		e := transcript.Entry{ConversationID: conversationID}
		if err := rows.Scan(&e.Action, &e.Message, &e.Reply, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan dialog: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
