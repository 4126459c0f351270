package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MikeSquared-Agency/concierge/internal/dialog"
	"github.com/MikeSquared-Agency/concierge/internal/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetOrCreateUserConcurrentFirstContact(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	users := make([]*User, 16)
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, err := m.GetOrCreateUser(ctx, "u1")
			assert.NoError(t, err)
			users[i] = u
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, m.UserCount())
	for _, u := range users {
		assert.Equal(t, "u1", u.ID)
		assert.Equal(t, int64(1), u.Revision)
		assert.Empty(t, u.Context)
	}
}

func TestMemory_PersistContext(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	u, err := m.GetOrCreateUser(ctx, "u1")
	require.NoError(t, err)

	updated, err := m.PersistContext(ctx, u, dialog.Context{"conversationId": "c1"})
	require.NoError(t, err)
	assert.Equal(t, u.Revision+1, updated.Revision)
	assert.Equal(t, "c1", updated.Context.ConversationID())

	// The first read is now stale.
	_, err = m.PersistContext(ctx, u, dialog.Context{"conversationId": "c2"})
	assert.True(t, errors.Is(err, ErrConflict), "expected ErrConflict, got %v", err)

	got, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.Context.ConversationID())
}

func TestMemory_RecordsAreCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	u, err := m.GetOrCreateUser(ctx, "u1")
	require.NoError(t, err)
	u.Context["action"] = "mutated"
	u.Revision = 99

	got, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.Context.Action())
	assert.Equal(t, int64(1), got.Revision)
}

func TestMemory_GetUserNotFound(t *testing.T) {
	_, err := NewMemory().GetUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_TranscriptAppendAndList(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	conv, err := m.CreateConversation(ctx, "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Len(t, m.Conversations("u1"), 1)

	now := time.Now().UTC()
	require.NoError(t, m.AppendTranscriptEntry(ctx, transcript.Entry{ConversationID: conv.ID, Message: "hi", Reply: "hello\n", Timestamp: now}))
	require.NoError(t, m.AppendTranscriptEntry(ctx, transcript.Entry{ConversationID: conv.ID, Message: "bye", Reply: "ciao\n", Timestamp: now}))

	entries, err := m.ListTranscript(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "hi", entries[0].Message)
	assert.Equal(t, "bye", entries[1].Message)

	err = m.AppendTranscriptEntry(ctx, transcript.Entry{ConversationID: "unknown", Message: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}
