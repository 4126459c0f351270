package transcript

import "time"

// Entry is one logged message/reply exchange within a conversation.
type Entry struct {
	ConversationID string    `json:"conversation_id"`
	Action         string    `json:"action,omitempty"`
	Message        string    `json:"message"`
	Reply          string    `json:"reply"`
	Timestamp      time.Time `json:"timestamp"`
}
