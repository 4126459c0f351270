package bot

import (
	"context"
	"time"

	"github.com/MikeSquared-Agency/concierge/internal/slack"
)

const slackReplyTimeout = 60 * time.Second

// SlackPoster sends replies back into Slack.
type SlackPoster interface {
	PostMessage(ctx context.Context, channel, text, threadTS string) (string, error)
}

// SlackHandler returns the NATS handler for slack.SubjectMessage. Only direct
// messages are answered; each is processed and answered in the DM it came
// from, in-thread when the message was itself in a thread.
func (b *Bot) SlackHandler(poster SlackPoster) func(subject string, data []byte) {
	return func(subject string, data []byte) {
		evt, err := slack.ParseMessageEvent(data)
		if err != nil {
			b.logger.Error("failed to parse slack message", "error", err)
			return
		}
		if evt.FromBot() || evt.Text == "" {
			return
		}
		if !evt.IsDirect() {
			b.logger.Debug("ignoring slack message outside a DM", "channel", evt.Channel)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), slackReplyTimeout)
		defer cancel()

		reply := b.ProcessMessage(ctx, evt.UserID, evt.Text)
		if _, err := poster.PostMessage(ctx, evt.Channel, reply.Text, evt.ThreadTS); err != nil {
			b.logger.Error("failed to post slack reply", "channel", evt.Channel, "user", evt.UserID, "error", err)
		}
	}
}
