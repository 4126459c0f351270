package slack

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SubjectMessage carries Slack message events published by slack-forwarder.
const SubjectMessage = "swarm.slack.message"

// MessageEvent is a Slack message received from slack-forwarder via NATS.
type MessageEvent struct {
	Text        string
	UserID      string
	BotID       string
	Channel     string
	ChannelType string
	MessageTS   string
	ThreadTS    string
}

// FromBot reports whether the message was authored by a bot, including this one.
func (e *MessageEvent) FromBot() bool {
	return e.BotID != ""
}

// IsDirect reports whether the message was sent in a direct-message channel.
// The forwarder's channel_type is used when present; otherwise DM channel ids
// start with "D".
func (e *MessageEvent) IsDirect() bool {
	if e.ChannelType != "" {
		return e.ChannelType == "im"
	}
	return strings.HasPrefix(e.Channel, "D")
}

// ParseMessageEvent parses a NATS message payload from slack-forwarder into a MessageEvent.
func ParseMessageEvent(data []byte) (*MessageEvent, error) {
	// The slack-forwarder publishes events with metadata in a wrapper.
	var wrapper struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse message wrapper: %w", err)
	}

	evt := &MessageEvent{
		Text:        strings.TrimSpace(wrapper.Metadata["text"]),
		UserID:      wrapper.Metadata["user_id"],
		BotID:       wrapper.Metadata["bot_id"],
		Channel:     wrapper.Metadata["channel_id"],
		ChannelType: wrapper.Metadata["channel_type"],
		MessageTS:   wrapper.Metadata["message_ts"],
		ThreadTS:    wrapper.Metadata["thread_ts"],
	}
	if evt.UserID == "" && !evt.FromBot() {
		return nil, fmt.Errorf("message event without user_id")
	}
	if evt.Channel == "" {
		return nil, fmt.Errorf("message event without channel_id")
	}
	return evt, nil
}
