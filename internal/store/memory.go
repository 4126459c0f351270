package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/concierge/internal/dialog"
	"github.com/MikeSquared-Agency/concierge/internal/transcript"
	"github.com/google/uuid"
)

// Memory is a process-local store with the same semantics as Store. It is
// used when no database is configured, and in tests. Records handed out are
// copies; callers cannot mutate stored state.
type Memory struct {
	mu            sync.Mutex
	users         map[string]*User
	conversations map[string]*Conversation
	dialogs       map[string][]transcript.Entry
	now           func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		users:         make(map[string]*User),
		conversations: make(map[string]*Conversation),
		dialogs:       make(map[string][]transcript.Entry),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) GetUser(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (m *Memory) GetOrCreateUser(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return copyUser(u), nil
	}
	now := m.now()
	u := &User{ID: id, Context: dialog.Context{}, Revision: 1, CreatedAt: now, UpdatedAt: now}
	m.users[id] = u
	return copyUser(u), nil
}

func (m *Memory) PersistContext(_ context.Context, u *User, dctx dialog.Context) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.users[u.ID]
	if !ok || cur.Revision != u.Revision {
		return nil, fmt.Errorf("persist context for %s: %w", u.ID, ErrConflict)
	}
	cur.Context = dctx.Clone()
	cur.Revision++
	cur.UpdatedAt = m.now()
	return copyUser(cur), nil
}

func (m *Memory) CreateConversation(_ context.Context, ownerID string) (*Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &Conversation{ID: uuid.New().String(), OwnerID: ownerID, CreatedAt: m.now()}
	m.conversations[c.ID] = c
	out := *c
	return &out, nil
}

func (m *Memory) AppendTranscriptEntry(_ context.Context, e transcript.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[e.ConversationID]; !ok {
		return fmt.Errorf("append dialog to %s: %w", e.ConversationID, ErrNotFound)
	}
	m.dialogs[e.ConversationID] = append(m.dialogs[e.ConversationID], e)
	return nil
}

func (m *Memory) ListTranscript(_ context.Context, conversationID string) ([]transcript.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transcript.Entry(nil), m.dialogs[conversationID]...), nil
}

// Conversations returns the conversations owned by ownerID.
func (m *Memory) Conversations(ownerID string) []Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Conversation
	for _, c := range m.conversations {
		if c.OwnerID == ownerID {
			out = append(out, *c)
		}
	}
	return out
}

// UserCount returns the number of user records.
func (m *Memory) UserCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users)
}

func copyUser(u *User) *User {
	out := *u
	out.Context = u.Context.Clone()
	return &out
}
