package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/concierge/internal/dialog"
	"github.com/MikeSquared-Agency/concierge/internal/store"
	"github.com/MikeSquared-Agency/concierge/internal/transcript"
)

// FallbackReply is sent whenever a message cannot be processed.
const FallbackReply = "Sorry, something went wrong!"

// UserDirectory resolves senders to durable user records.
type UserDirectory interface {
	GetOrCreateUser(ctx context.Context, id string) (*store.User, error)
	PersistContext(ctx context.Context, u *store.User, dctx dialog.Context) (*store.User, error)
}

// ConversationLog creates conversation records.
type ConversationLog interface {
	CreateConversation(ctx context.Context, ownerID string) (*store.Conversation, error)
}

// DialogService is the remote dialog-management service.
type DialogService interface {
	Message(ctx context.Context, text string, dctx dialog.Context) (*dialog.Response, error)
}

// TranscriptQueue accepts transcript entries for asynchronous, ordered persistence.
type TranscriptQueue interface {
	Enqueue(e transcript.Entry)
}

// Reply is what a transport sends back to the user. Response is the raw
// dialog service response and may be nil when processing failed early.
type Reply struct {
	Text     string
	Response *dialog.Response
}

// Bot owns the per-message lifecycle: resolve the sender, ask the dialog
// service, track conversation boundaries, dispatch the action, log the
// exchange and persist the updated context.
//
// Messages from the same sender are not serialized. Two in-flight messages
// for one user race on the context read-modify-write; the loser's
// PersistContext fails with store.ErrConflict and that user gets FallbackReply.
type Bot struct {
	users         UserDirectory
	conversations ConversationLog
	dialog        DialogService
	transcripts   TranscriptQueue
	actions       map[string]ActionHandler
	logger        *slog.Logger
	now           func() time.Time
}

func New(users UserDirectory, conversations ConversationLog, ds DialogService, tq TranscriptQueue, logger *slog.Logger) *Bot {
	return &Bot{
		users:         users,
		conversations: conversations,
		dialog:        ds,
		transcripts:   tq,
		actions:       make(map[string]ActionHandler),
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Handle registers the handler for an action name, replacing any previous one.
func (b *Bot) Handle(action string, h ActionHandler) {
	b.actions[action] = h
}

// ProcessMessage runs one message through the dialog service and returns the
// reply. It never fails: any error is logged and turned into FallbackReply.
func (b *Bot) ProcessMessage(ctx context.Context, senderID, text string) Reply {
	resp, reply, err := b.process(ctx, senderID, text)
	if err != nil {
		b.logger.Error("failed to process message", "sender", senderID, "error", err)
		return Reply{Text: FallbackReply, Response: resp}
	}
	return Reply{Text: reply, Response: resp}
}

func (b *Bot) process(ctx context.Context, senderID, text string) (*dialog.Response, string, error) {
	b.logger.Debug("getting user", "sender", senderID)
	user, err := b.users.GetOrCreateUser(ctx, senderID)
	if err != nil {
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	b.logger.Debug("sending request to dialog service", "sender", senderID)
	resp, err := b.dialog.Message(ctx, text, user.Context)
	if err != nil {
		return nil, "", fmt.Errorf("dialog service: %w", err)
	}
	if resp.Context == nil {
		resp.Context = dialog.Context{}
	}

	conversationID, err := b.activeConversation(ctx, senderID, resp.Context)
	if err != nil {
		return resp, "", err
	}

	action := resp.Context.Action()
	reply, err := b.dispatch(ctx, action, resp)
	if err != nil {
		return resp, "", fmt.Errorf("handle action %q: %w", action, err)
	}

	b.logDialog(conversationID, action, text, reply)

	if _, err := b.users.PersistContext(ctx, user, resp.Context); err != nil {
		return resp, "", fmt.Errorf("update user context: %w", err)
	}

	return resp, reply, nil
}

// activeConversation returns the id of the conversation this message belongs
// to. When the dialog service flags a new conversation, a record is created and
// its id is written into the context so later messages reuse it. The result is
// "" when the context carries neither the flag nor an id.
func (b *Bot) activeConversation(ctx context.Context, senderID string, dctx dialog.Context) (string, error) {
	if !dctx.NewConversation() {
		return dctx.ConversationID(), nil
	}

	dctx.SetNewConversation(false)
	conv, err := b.conversations.CreateConversation(ctx, senderID)
	if err != nil {
		return "", fmt.Errorf("create conversation: %w", err)
	}
	dctx.SetConversationID(conv.ID)
	b.logger.Info("conversation started", "sender", senderID, "conversation_id", conv.ID)
	return conv.ID, nil
}

func (b *Bot) dispatch(ctx context.Context, action string, resp *dialog.Response) (string, error) {
	if h, ok := b.actions[action]; ok {
		return h(ctx, resp)
	}
	return GenericReply(ctx, resp)
}

// logDialog queues the exchange for the transcript. Exchanges outside any
// known conversation are not logged.
func (b *Bot) logDialog(conversationID, action, message, reply string) {
	if conversationID == "" {
		b.logger.Debug("no active conversation, skipping dialog log", "action", action)
		return
	}
	b.transcripts.Enqueue(transcript.Entry{
		ConversationID: conversationID,
		Action:         action,
		Message:        message,
		Reply:          reply,
		Timestamp:      b.now(),
	})
}
